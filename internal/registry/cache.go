package registry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/cashflow-pos/internal/domain/customer"
	"github.com/xenking/cashflow-pos/internal/wire"
)

var _ customer.Registry = (*CachedRegistry)(nil)

const keyPrefix = "pos:"

// Cache is the subset of a redis client used by CachedRegistry.
// *redis.Client satisfies it.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// CachedRegistry is a read-through cache in front of a customer registry.
// Only successful lookups are cached. Cache failures are logged and fall back
// to the upstream registry.
type CachedRegistry struct {
	next  customer.Registry
	cache Cache
	ttl   time.Duration
}

// NewCachedRegistry wraps next with a redis cache whose entries expire after
// ttl.
func NewCachedRegistry(next customer.Registry, cache Cache, ttl time.Duration) *CachedRegistry {
	return &CachedRegistry{next: next, cache: cache, ttl: ttl}
}

// Customer returns the cached customer or fetches it from the registry.
func (r *CachedRegistry) Customer(ctx context.Context, no int) (*customer.Customer, error) {
	key := keyPrefix + "customer:" + strconv.Itoa(no)
	return r.lookup(ctx, key, func(ctx context.Context) (*customer.Customer, error) {
		return r.next.Customer(ctx, no)
	})
}

// CustomerByCard returns the cached card holder or fetches it from the
// registry.
func (r *CachedRegistry) CustomerByCard(ctx context.Context, number int64, year, month int) (*customer.Customer, error) {
	key := fmt.Sprintf("%scard:%d:%d:%d", keyPrefix, number, year, month)
	return r.lookup(ctx, key, func(ctx context.Context) (*customer.Customer, error) {
		return r.next.CustomerByCard(ctx, number, year, month)
	})
}

func (r *CachedRegistry) lookup(
	ctx context.Context,
	key string,
	fetch func(context.Context) (*customer.Customer, error),
) (*customer.Customer, error) {
	lg := zctx.From(ctx).With(zap.String("cache_key", key))

	data, err := r.cache.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		c, err := wire.UnmarshalCustomer(data)
		if err == nil {
			return c, nil
		}
		lg.Warn("Discarding undecodable cache entry", zap.Error(err))
	case !errors.Is(err, redis.Nil):
		lg.Warn("Customer cache read failed", zap.Error(err))
	}

	c, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, key, wire.MarshalCustomer(c), r.ttl).Err(); err != nil {
		lg.Warn("Customer cache write failed", zap.Error(err))
	}
	return c, nil
}
