//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"
)

const (
	milk  = `{"productId":1,"barCode":1001,"name":"Whole Milk 1l","vat":14,"keyword":"Dairy","price":1.19}`
	bread = `{"productId":4,"barCode":2001,"name":"Rye Bread","vat":14,"keyword":"Bakery","price":2.10}`
	juice = `{"productId":7,"barCode":3002,"name":"Orange Juice 1l","vat":14,"keyword":"Drinks","price":2.49}`
)

// TestSales runs the sales flow in order: the ledger is shared by every
// step.
func TestSales(t *testing.T) {
	t.Run("reject malformed", func(t *testing.T) {
		for _, body := range []string{
			`{`,
			`{"customer":1}`,
			`{"sales":[]}`,
			`{"sales":[{"barCode":1001}]}`,
		} {
			resp := doPost(t, "/api/sale", body)
			resp.Body.Close()
			expectStatus(t, resp, http.StatusBadRequest)
		}
	})

	t.Run("reject unknown customer", func(t *testing.T) {
		resp := doPost(t, "/api/sale", `{"sales":[`+milk+`],"customer":99}`)
		defer resp.Body.Close()
		expectStatus(t, resp, http.StatusNotFound)
	})

	t.Run("record", func(t *testing.T) {
		for _, body := range []string{
			`{"sales":[` + milk + `,` + milk + `,` + bread + `],"customer":1}`,
			`{"sales":[` + juice + `],"customer":2}`,
			`{"sales":[` + bread + `]}`,
		} {
			resp := doPost(t, "/api/sale", body)
			resp.Body.Close()
			expectStatus(t, resp, http.StatusNoContent)
		}
	})

	t.Run("all sales", func(t *testing.T) {
		resp := doGet(t, "/api/sales")
		defer resp.Body.Close()

		expectStatus(t, resp, http.StatusOK)
		body := decodeJSON[salesResponse](t, resp)
		if len(body.Sales) != 3 {
			t.Fatalf("expected 3 sales, got %d", len(body.Sales))
		}
		first := body.Sales[0]
		if first.ID == "" || first.Timestamp == 0 {
			t.Errorf("expected id and timestamp, got %+v", first)
		}
		if len(first.Items) != 3 {
			t.Errorf("expected 3 items, got %d", len(first.Items))
		}
		if first.Total != 4.48 {
			t.Errorf("total: got %v, want 4.48", first.Total)
		}
		if first.CustomerNo == nil || *first.CustomerNo != 1 {
			t.Errorf("customer: got %v, want 1", first.CustomerNo)
		}
		if body.Sales[2].CustomerNo != nil {
			t.Errorf("anonymous sale has customer %d", *body.Sales[2].CustomerNo)
		}
	})

	t.Run("by date", func(t *testing.T) {
		resp := doGet(t, "/api/sales/bydate")
		defer resp.Body.Close()

		expectStatus(t, resp, http.StatusOK)
		days := decodeJSON[map[string]map[string]int](t, resp)
		total := map[string]int{}
		for _, counts := range days {
			for barCode, n := range counts {
				total[barCode] += n
			}
		}
		want := map[string]int{"1001": 2, "2001": 2, "3002": 1}
		for barCode, n := range want {
			if total[barCode] != n {
				t.Errorf("barcode %s: got %d, want %d", barCode, total[barCode], n)
			}
		}
	})

	t.Run("by customer", func(t *testing.T) {
		resp := doGet(t, "/api/sales/1")
		defer resp.Body.Close()

		expectStatus(t, resp, http.StatusOK)
		body := decodeJSON[struct {
			Customer customerResponse      `json:"customer"`
			Sales    []transactionResponse `json:"sales"`
		}](t, resp)
		if body.Customer.FirstName != "Ann" {
			t.Errorf("customer: got %q, want Ann", body.Customer.FirstName)
		}
		if len(body.Sales) != 1 {
			t.Errorf("expected 1 sale, got %d", len(body.Sales))
		}
	})

	t.Run("by unknown customer", func(t *testing.T) {
		resp := doGet(t, "/api/sales/99")
		defer resp.Body.Close()
		expectStatus(t, resp, http.StatusNotFound)
	})

	t.Run("popular", func(t *testing.T) {
		resp := doGet(t, fmt.Sprintf("/api/popular/%d-%d", 0, 4102444800))
		defer resp.Body.Close()

		expectStatus(t, resp, http.StatusOK)
		counts := decodeJSON[map[string]int](t, resp)
		if counts["1001"] != 2 || counts["2001"] != 2 || counts["3002"] != 1 {
			t.Errorf("unexpected counts %v", counts)
		}
	})

	t.Run("popular empty range", func(t *testing.T) {
		resp := doGet(t, "/api/popular/0-1")
		defer resp.Body.Close()

		expectStatus(t, resp, http.StatusOK)
		if counts := decodeJSON[map[string]int](t, resp); len(counts) != 0 {
			t.Errorf("expected no counts, got %v", counts)
		}
	})

	t.Run("popular bad range", func(t *testing.T) {
		resp := doGet(t, "/api/popular/yesterday")
		defer resp.Body.Close()
		expectStatus(t, resp, http.StatusBadRequest)
	})

	t.Run("popular among bonus customers", func(t *testing.T) {
		resp := doGet(t, fmt.Sprintf("/api/popular/%d-%d/bonus", 0, 4102444800))
		defer resp.Body.Close()

		expectStatus(t, resp, http.StatusOK)
		groups := decodeJSON[[]struct {
			Customer customerResponse `json:"customer"`
			Sales    map[string]int   `json:"sales"`
		}](t, resp)
		if len(groups) != 2 {
			t.Fatalf("expected 2 customers, got %d", len(groups))
		}
		if groups[0].Customer.CustomerNo != 1 || groups[1].Customer.CustomerNo != 2 {
			t.Errorf("customers out of order: %d, %d", groups[0].Customer.CustomerNo, groups[1].Customer.CustomerNo)
		}
		if groups[0].Sales["1001"] != 2 || groups[0].Sales["2001"] != 1 {
			t.Errorf("customer 1 counts: %v", groups[0].Sales)
		}
	})
}

func TestSaleJournalPersisted(t *testing.T) {
	var n int
	if err := pool.QueryRow(t.Context(), "SELECT count(*) FROM sales").Scan(&n); err != nil {
		t.Fatalf("count sales: %v", err)
	}
	if n < 1 {
		t.Errorf("expected journaled sales, got %d", n)
	}
}

func TestCustomerByCard(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "found", path: fmt.Sprintf("/api/customer/card/%d/%d/%d", bonusCardNumber, bonusCardYear, bonusCardMonth), status: http.StatusOK},
		{name: "unknown card", path: "/api/customer/card/1/2030/12", status: http.StatusNotFound},
		{name: "bad month", path: "/api/customer/card/5000/2030/13", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doGet(t, tt.path)
			defer resp.Body.Close()

			expectStatus(t, resp, tt.status)
			if tt.status == http.StatusOK {
				c := decodeJSON[customerResponse](t, resp)
				if c.CustomerNo != 1 {
					t.Errorf("customer: got %d, want 1", c.CustomerNo)
				}
			}
		})
	}
}
