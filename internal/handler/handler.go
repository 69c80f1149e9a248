// Package handler serves the point-of-sale REST API over net/http.
package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/cashflow-pos/internal/analytics"
	"github.com/xenking/cashflow-pos/internal/catalog"
	"github.com/xenking/cashflow-pos/internal/domain/auth"
	"github.com/xenking/cashflow-pos/internal/domain/customer"
	"github.com/xenking/cashflow-pos/internal/domain/product"
	"github.com/xenking/cashflow-pos/internal/domain/sale"
	"github.com/xenking/cashflow-pos/internal/registry"
	"github.com/xenking/cashflow-pos/internal/wire"
	"github.com/xenking/cashflow-pos/pkg/httpmiddleware"
)

// maxBodySize bounds request bodies; a sale of a few thousand items fits.
const maxBodySize = 1 << 20

// Sales records sales and answers analytics queries.
type Sales interface {
	RecordSale(ctx context.Context, items []product.Product, customerNo *int) (*sale.Transaction, error)
	AllSales(ctx context.Context) []*sale.Transaction
	SalesByDate(ctx context.Context) map[int64]*analytics.Counter[int]
	SalesByCustomer(ctx context.Context, customerNo int) (*customer.Customer, []*sale.Transaction, error)
	PopularInRange(ctx context.Context, rangeStart, rangeEnd int64) *analytics.Counter[int]
	PopularAmongBonusCustomers(ctx context.Context, rangeStart, rangeEnd int64) ([]analytics.CustomerSales, error)
}

// Catalog looks up and edits products.
type Catalog interface {
	All() []product.Product
	FindByBarcode(barCode int) (product.Product, error)
	FindByKeyword(kw string) []product.Product
	FindByName(name string) (product.Product, error)
	SetPrice(ctx context.Context, barCode int, price decimal.Decimal) error
	SetDiscount(ctx context.Context, barCodes []int, d product.Discount) error
	SetDiscountByKeyword(ctx context.Context, kw string, d product.Discount) (int, error)
}

var (
	_ Sales   = (*analytics.Analytics)(nil)
	_ Catalog = (*catalog.Catalog)(nil)
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// APIKeyPepper is the HMAC key under which admin API keys are hashed.
	APIKeyPepper []byte
}

// Handler serves the REST surface.
type Handler struct {
	sales     Sales
	catalog   Catalog
	customers customer.Registry
	apikeys   auth.Repository
	pepper    []byte
	now       func() time.Time
}

// New constructs a Handler.
func New(cfg Config, sales Sales, products Catalog, customers customer.Registry, apikeys auth.Repository) *Handler {
	return &Handler{
		sales:     sales,
		catalog:   products,
		customers: customers,
		apikeys:   apikeys,
		pepper:    cfg.APIKeyPepper,
		now:       time.Now,
	}
}

// Register mounts every API route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	admin := h.RequireAPIKey(auth.ScopeAdmin)

	mux.HandleFunc("POST /api/sale", h.RecordSale)
	mux.HandleFunc("GET /api/sales", h.AllSales)
	mux.HandleFunc("GET /api/sales/bydate", h.SalesByDate)
	mux.HandleFunc("GET /api/sales/{customer}", h.SalesByCustomer)
	mux.HandleFunc("GET /api/popular/{range}", h.PopularInRange)
	mux.HandleFunc("GET /api/popular/{range}/bonus", h.PopularAmongBonusCustomers)

	mux.HandleFunc("GET /api/productcatalog", h.ListProducts)
	mux.HandleFunc("GET /api/productcatalog/barcode/{barcode}", h.ProductByBarcode)
	mux.HandleFunc("GET /api/productcatalog/keyword/{keyword}", h.ProductsByKeyword)
	mux.HandleFunc("GET /api/productcatalog/name/{name}", h.ProductByName)

	mux.HandleFunc("GET /api/customer/card/{number}/{year}/{month}", h.CustomerByCard)

	mux.Handle("POST /api/product/{barcode}/price", admin(http.HandlerFunc(h.SetPrice)))
	mux.Handle("POST /api/product/discount", admin(http.HandlerFunc(h.SetDiscount)))
}

func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if len(data) > maxBodySize {
		return nil, &wire.PayloadError{Err: errors.New("request body too large")}
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// statusOf maps domain errors to an HTTP status and client message.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, sale.ErrMalformedSaleData),
		errors.Is(err, wire.ErrInvalidPayload),
		errors.Is(err, product.ErrInvalidDiscount),
		errors.Is(err, product.ErrInvalidPrice):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, customer.ErrNotFound),
		errors.Is(err, catalog.ErrProductNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, registry.ErrUnavailable):
		return http.StatusServiceUnavailable, "customer registry unavailable"
	case errors.Is(err, analytics.ErrInternalConsistency):
		return http.StatusInternalServerError, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := statusOf(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("op", op),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	httpmiddleware.WriteError(w, status, msg)
}

func badRequest(w http.ResponseWriter, msg string) {
	httpmiddleware.WriteError(w, http.StatusBadRequest, msg)
}
