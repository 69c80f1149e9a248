package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
)

// ScopeAdmin allows catalog price and discount edits.
const ScopeAdmin = "admin"

// ErrKeyNotFound is returned when no active key matches a hash.
var ErrKeyNotFound = errors.New("api key not found")

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key grants scope.
func (i *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(i.Scopes, scope)
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashKey returns the hex HMAC-SHA256 of key under pepper, the form in which
// keys are stored.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

var _ Repository = StaticRepository(nil)

// StaticRepository serves admin keys from configuration, keyed by hash.
type StaticRepository map[string]*APIKeyInfo

// NewStaticRepository creates a repository granting the admin scope to
// every given hex hash.
func NewStaticRepository(hashes []string) StaticRepository {
	r := make(StaticRepository, len(hashes))
	for i, h := range hashes {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		r[h] = &APIKeyInfo{
			ID:      "static-" + strconv.Itoa(i),
			KeyHash: h,
			Name:    "config",
			Scopes:  []string{ScopeAdmin},
		}
	}
	return r
}

// FindByHash implements Repository.
func (r StaticRepository) FindByHash(_ context.Context, hash string) (*APIKeyInfo, error) {
	info, ok := r[hash]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return info, nil
}
