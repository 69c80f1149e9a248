// Package catalog holds the product catalog in memory, keyed by barcode.
package catalog

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/cashflow-pos/internal/domain/product"
)

// ErrProductNotFound is matched by NotFoundError.
var ErrProductNotFound = errors.New("product not found")

// NotFoundError reports the lookup that found no product.
type NotFoundError struct {
	BarCode int
	Keyword string
	Name    string
}

func (e *NotFoundError) Error() string {
	switch {
	case e.Keyword != "":
		return fmt.Sprintf("no products with keyword %q", e.Keyword)
	case e.Name != "":
		return fmt.Sprintf("no product named %q", e.Name)
	default:
		return fmt.Sprintf("no product with barcode %d", e.BarCode)
	}
}

// Is reports whether target is ErrProductNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}

// Source lists the products of an upstream catalog.
type Source interface {
	List(ctx context.Context) ([]product.Product, error)
}

// Store persists catalog edits.
type Store interface {
	Upsert(ctx context.Context, products ...product.Product) error
}

// Catalog is a concurrency-safe product catalog. Lookups return copies, so
// callers can never alter catalog entries in place.
type Catalog struct {
	store Store
	lg    *zap.Logger

	// edit serializes admin edits so that persistence happens outside mu.
	edit sync.Mutex

	mu       sync.RWMutex
	products map[int]product.Product
}

// New creates an empty catalog. Edits are written through to store when it
// is not nil.
func New(store Store, lg *zap.Logger) *Catalog {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Catalog{
		store:    store,
		lg:       lg,
		products: make(map[int]product.Product),
	}
}

// Load replaces the catalog contents with the products listed by src.
func (c *Catalog) Load(ctx context.Context, src Source) (int, error) {
	list, err := src.List(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list products")
	}

	products := make(map[int]product.Product, len(list))
	for _, p := range list {
		if err := p.Validate(); err != nil {
			c.lg.Warn("Skipping invalid catalog entry",
				zap.Int("barcode", p.BarCode),
				zap.Error(err),
			)
			continue
		}
		products[p.BarCode] = p
	}

	c.mu.Lock()
	c.products = products
	c.mu.Unlock()
	return len(products), nil
}

// Add inserts or replaces a product in memory.
func (c *Catalog) Add(p product.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.BarCode] = p
	return nil
}

// Len returns the number of products.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.products)
}

// Has reports whether a product with the barcode exists.
func (c *Catalog) Has(barCode int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.products[barCode]
	return ok
}

// All returns every product ordered by barcode.
func (c *Catalog) All() []product.Product {
	return c.filter(func(product.Product) bool { return true })
}

// FindByBarcode returns the product with the barcode.
func (c *Catalog) FindByBarcode(barCode int) (product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[barCode]
	if !ok {
		return product.Product{}, &NotFoundError{BarCode: barCode}
	}
	return p, nil
}

// FindByKeyword returns products whose keyword equals kw ignoring case,
// ordered by barcode. An empty keyword or "*" matches every product.
func (c *Catalog) FindByKeyword(kw string) []product.Product {
	if kw == "" || kw == "*" {
		return c.All()
	}
	return c.filter(func(p product.Product) bool {
		return strings.EqualFold(p.Keyword, kw)
	})
}

// FindByName returns the first product, by barcode order, whose name equals
// name ignoring case.
func (c *Catalog) FindByName(name string) (product.Product, error) {
	found := c.filter(func(p product.Product) bool {
		return strings.EqualFold(p.Name, name)
	})
	if len(found) == 0 {
		return product.Product{}, &NotFoundError{Name: name}
	}
	return found[0], nil
}

func (c *Catalog) filter(match func(product.Product) bool) []product.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]product.Product, 0)
	for _, barCode := range slices.Sorted(maps.Keys(c.products)) {
		if p := c.products[barCode]; match(p) {
			out = append(out, p)
		}
	}
	return out
}

// SetPrice changes the base price of a product.
func (c *Catalog) SetPrice(ctx context.Context, barCode int, price decimal.Decimal) error {
	if price.IsNegative() {
		return product.ErrInvalidPrice
	}

	c.edit.Lock()
	defer c.edit.Unlock()

	p, err := c.FindByBarcode(barCode)
	if err != nil {
		return err
	}
	p.Price = price
	return c.apply(ctx, p)
}

// SetDiscount applies the discount rule to every listed product. The list is
// validated completely before any product changes: an unknown barcode
// leaves the catalog untouched.
func (c *Catalog) SetDiscount(ctx context.Context, barCodes []int, d product.Discount) error {
	if err := d.Validate(); err != nil {
		return err
	}

	c.edit.Lock()
	defer c.edit.Unlock()

	updated := make([]product.Product, 0, len(barCodes))
	for _, barCode := range barCodes {
		p, err := c.FindByBarcode(barCode)
		if err != nil {
			return err
		}
		p.Discount = d
		updated = append(updated, p)
	}
	return c.apply(ctx, updated...)
}

// SetDiscountByKeyword applies the discount rule to every product matching
// the keyword as FindByKeyword does, returning the number of changed
// products.
func (c *Catalog) SetDiscountByKeyword(ctx context.Context, kw string, d product.Discount) (int, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}

	c.edit.Lock()
	defer c.edit.Unlock()

	updated := c.FindByKeyword(kw)
	if len(updated) == 0 {
		return 0, &NotFoundError{Keyword: kw}
	}
	for i := range updated {
		updated[i].Discount = d
	}
	if err := c.apply(ctx, updated...); err != nil {
		return 0, err
	}
	return len(updated), nil
}

// apply persists the products, then publishes them. Callers hold c.edit.
func (c *Catalog) apply(ctx context.Context, products ...product.Product) error {
	if len(products) == 0 {
		return nil
	}
	if c.store != nil {
		if err := c.store.Upsert(ctx, products...); err != nil {
			return errors.Wrap(err, "persist products")
		}
	}

	c.mu.Lock()
	for _, p := range products {
		c.products[p.BarCode] = p
	}
	c.mu.Unlock()

	c.lg.Info("Catalog updated", zap.Int("products", len(products)))
	return nil
}
