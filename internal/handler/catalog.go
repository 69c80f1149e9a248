package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/cashflow-pos/internal/catalog"
	"github.com/xenking/cashflow-pos/internal/wire"
)

// ListProducts handles GET /api/productcatalog.
func (h *Handler) ListProducts(w http.ResponseWriter, _ *http.Request) {
	products, at := h.catalog.All(), h.now()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		wire.EncodeCatalog(e, products, at)
	})
}

// ProductByBarcode handles GET /api/productcatalog/barcode/{barcode}.
func (h *Handler) ProductByBarcode(w http.ResponseWriter, r *http.Request) {
	barCode, err := strconv.Atoi(r.PathValue("barcode"))
	if err != nil {
		badRequest(w, "barcode must be an integer")
		return
	}
	p, err := h.catalog.FindByBarcode(barCode)
	if err != nil {
		h.fail(w, r, "productByBarcode", err)
		return
	}
	at := h.now()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		wire.EncodeCatalogProduct(e, p, at)
	})
}

// ProductsByKeyword handles GET /api/productcatalog/keyword/{keyword}.
func (h *Handler) ProductsByKeyword(w http.ResponseWriter, r *http.Request) {
	kw := r.PathValue("keyword")
	products := h.catalog.FindByKeyword(kw)
	if len(products) == 0 {
		h.fail(w, r, "productsByKeyword", &catalog.NotFoundError{Keyword: kw})
		return
	}
	at := h.now()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		wire.EncodeCatalog(e, products, at)
	})
}

// ProductByName handles GET /api/productcatalog/name/{name}.
func (h *Handler) ProductByName(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.FindByName(r.PathValue("name"))
	if err != nil {
		h.fail(w, r, "productByName", err)
		return
	}
	at := h.now()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		wire.EncodeCatalogProduct(e, p, at)
	})
}

// SetPrice handles POST /api/product/{barcode}/price.
func (h *Handler) SetPrice(w http.ResponseWriter, r *http.Request) {
	barCode, err := strconv.Atoi(r.PathValue("barcode"))
	if err != nil {
		badRequest(w, "barcode must be an integer")
		return
	}
	data, err := readBody(r)
	if err != nil {
		h.fail(w, r, "setPrice", err)
		return
	}
	price, err := wire.DecodePriceRequest(data)
	if err != nil {
		h.fail(w, r, "setPrice", err)
		return
	}
	if err := h.catalog.SetPrice(r.Context(), barCode, price); err != nil {
		h.fail(w, r, "setPrice", err)
		return
	}

	zctx.From(r.Context()).Info("Price changed",
		zap.Int("barcode", barCode),
		zap.Stringer("price", price),
		zap.String("key", apiKeyID(r.Context())),
	)
	w.WriteHeader(http.StatusNoContent)
}

// SetDiscount handles POST /api/product/discount.
func (h *Handler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		h.fail(w, r, "setDiscount", err)
		return
	}
	req, err := wire.DecodeDiscountRequest(data)
	if err != nil {
		h.fail(w, r, "setDiscount", err)
		return
	}

	lg := zctx.From(r.Context()).With(
		zap.Stringer("rate", req.Discount.Rate),
		zap.Int64("from", req.Discount.From),
		zap.Int64("until", req.Discount.Until),
		zap.Bool("bonus_only", req.Discount.BonusOnly),
		zap.String("key", apiKeyID(r.Context())),
	)
	if req.ByKeyword() {
		n, err := h.catalog.SetDiscountByKeyword(r.Context(), req.Keyword, req.Discount)
		if err != nil {
			h.fail(w, r, "setDiscount", err)
			return
		}
		lg.Info("Discount changed", zap.String("keyword", req.Keyword), zap.Int("products", n))
	} else {
		if err := h.catalog.SetDiscount(r.Context(), req.Products, req.Discount); err != nil {
			h.fail(w, r, "setDiscount", err)
			return
		}
		lg.Info("Discount changed", zap.Ints("barcodes", req.Products))
	}
	w.WriteHeader(http.StatusNoContent)
}
