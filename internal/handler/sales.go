package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/cashflow-pos/internal/wire"
)

// RecordSale handles POST /api/sale.
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		h.fail(w, r, "recordSale", err)
		return
	}
	req, err := wire.DecodeSaleRequest(data)
	if err != nil {
		h.fail(w, r, "recordSale", err)
		return
	}

	if _, err := h.sales.RecordSale(r.Context(), req.Items, req.CustomerNo); err != nil {
		h.fail(w, r, "recordSale", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AllSales handles GET /api/sales.
func (h *Handler) AllSales(w http.ResponseWriter, r *http.Request) {
	txs := h.sales.AllSales(r.Context())
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		wire.EncodeSales(e, txs)
	})
}

// SalesByDate handles GET /api/sales/bydate.
func (h *Handler) SalesByDate(w http.ResponseWriter, r *http.Request) {
	days := h.sales.SalesByDate(r.Context())
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		wire.EncodeSalesByDate(e, days)
	})
}

// SalesByCustomer handles GET /api/sales/{customer}.
func (h *Handler) SalesByCustomer(w http.ResponseWriter, r *http.Request) {
	no, err := strconv.Atoi(r.PathValue("customer"))
	if err != nil {
		badRequest(w, "customer number must be an integer")
		return
	}

	c, txs, err := h.sales.SalesByCustomer(r.Context(), no)
	if err != nil {
		h.fail(w, r, "salesByCustomer", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		wire.EncodeCustomerSales(e, c, txs)
	})
}

// PopularInRange handles GET /api/popular/{start}-{end}.
func (h *Handler) PopularInRange(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRange(r.PathValue("range"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	counts := h.sales.PopularInRange(r.Context(), start, end)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		wire.EncodeCounter(e, counts)
	})
}

// PopularAmongBonusCustomers handles GET /api/popular/{start}-{end}/bonus.
func (h *Handler) PopularAmongBonusCustomers(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRange(r.PathValue("range"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	groups, err := h.sales.PopularAmongBonusCustomers(r.Context(), start, end)
	if err != nil {
		h.fail(w, r, "popularAmongBonusCustomers", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		wire.EncodeBonusPopularity(e, groups)
	})
}

// parseRange parses "start-end" epoch-second bounds.
func parseRange(s string) (start, end int64, err error) {
	from, until, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, errors.Errorf("range %q must be start-end", s)
	}
	if start, err = strconv.ParseInt(from, 10, 64); err != nil {
		return 0, 0, errors.Errorf("range start %q is not an integer", from)
	}
	if end, err = strconv.ParseInt(until, 10, 64); err != nil {
		return 0, 0, errors.Errorf("range end %q is not an integer", until)
	}
	return start, end, nil
}
