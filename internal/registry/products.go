package registry

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/cashflow-pos/internal/catalog"
	"github.com/xenking/cashflow-pos/internal/domain/product"
)

var _ catalog.Source = (*CatalogClient)(nil)

type xmlProducts struct {
	Products []xmlProduct `xml:"product"`
}

type xmlProduct struct {
	ID                int    `xml:"id"`
	ProductID         int    `xml:"productId"`
	BarCode           int    `xml:"barCode"`
	Name              string `xml:"name"`
	VAT               string `xml:"vat"`
	Keyword           string `xml:"keyword"`
	Price             string `xml:"price"`
	Discount          string `xml:"discount"`
	DiscountFrom      int64  `xml:"discountFrom"`
	DiscountUntil     int64  `xml:"discountUntil"`
	BonusOnlyDiscount bool   `xml:"bonusOnlyDiscount"`
}

func parseDecimal(field, v string) (decimal.Decimal, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "parse %s", field)
	}
	return d, nil
}

func (x xmlProduct) toDomain() (product.Product, error) {
	p := product.Product{
		ID:      x.ID,
		BarCode: x.BarCode,
		Name:    x.Name,
		Keyword: x.Keyword,
		Discount: product.Discount{
			From:      x.DiscountFrom,
			Until:     x.DiscountUntil,
			BonusOnly: x.BonusOnlyDiscount,
		},
	}
	if p.ID == 0 {
		p.ID = x.ProductID
	}

	var err error
	if p.VAT, err = parseDecimal("vat", x.VAT); err != nil {
		return product.Product{}, err
	}
	if p.Price, err = parseDecimal("price", x.Price); err != nil {
		return product.Product{}, err
	}
	if p.Discount.Rate, err = parseDecimal("discount", x.Discount); err != nil {
		return product.Product{}, err
	}
	return p, nil
}

// CatalogClient lists products from the product catalog service.
type CatalogClient struct {
	c *client
}

// NewCatalogClient creates a client for the catalog service at baseURL, for
// example http://localhost:9003/rest.
func NewCatalogClient(baseURL string, opts Options) (*CatalogClient, error) {
	c, err := newClient("product catalog", baseURL, opts)
	if err != nil {
		return nil, err
	}
	return &CatalogClient{c: c}, nil
}

// List returns every product of the upstream catalog.
func (r *CatalogClient) List(ctx context.Context) ([]product.Product, error) {
	var x xmlProducts
	if err := r.c.getXML(ctx, "/findByName/*", &x); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]product.Product, 0, len(x.Products))
	for i, xp := range x.Products {
		p, err := xp.toDomain()
		if err != nil {
			return nil, errors.Wrapf(err, "product %d", i)
		}
		out = append(out, p)
	}
	return out, nil
}

// Ping checks that the catalog service is reachable.
func (r *CatalogClient) Ping(ctx context.Context) error {
	return r.c.ping(ctx)
}
