package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/xenking/cashflow-pos/internal/wire"
)

// CustomerByCard handles GET /api/customer/card/{number}/{year}/{month}.
func (h *Handler) CustomerByCard(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.ParseInt(r.PathValue("number"), 10, 64)
	if err != nil {
		badRequest(w, "card number must be an integer")
		return
	}
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil {
		badRequest(w, "year must be an integer")
		return
	}
	month, err := strconv.Atoi(r.PathValue("month"))
	if err != nil || month < 1 || month > 12 {
		badRequest(w, "month must be between 1 and 12")
		return
	}

	c, err := h.customers.CustomerByCard(r.Context(), number, year, month)
	if err != nil {
		h.fail(w, r, "customerByCard", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		wire.EncodeCustomer(e, c)
	})
}
