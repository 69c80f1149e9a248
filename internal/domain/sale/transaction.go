package sale

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/cashflow-pos/internal/domain/customer"
	"github.com/xenking/cashflow-pos/internal/domain/product"
)

// ErrMalformedSaleData is matched by every MalformedDataError.
var ErrMalformedSaleData = errors.New("malformed sale data")

// MalformedDataError describes which item of a sale payload was rejected.
// Index is -1 when the problem concerns the sale as a whole.
type MalformedDataError struct {
	Index  int
	Field  string
	Reason string
}

func (e *MalformedDataError) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("malformed sale data: %s", e.Reason)
	case e.Field == "":
		return fmt.Sprintf("malformed sale data: item %d: %s", e.Index, e.Reason)
	default:
		return fmt.Sprintf("malformed sale data: item %d: %s: %s", e.Index, e.Field, e.Reason)
	}
}

// Is reports whether target is ErrMalformedSaleData.
func (e *MalformedDataError) Is(target error) bool {
	return target == ErrMalformedSaleData
}

// Transaction is a recorded sale. Items are value snapshots taken at
// construction, so later catalog edits never alter a transaction. The
// customer is attached right after construction; afterwards the transaction
// is treated as immutable.
type Transaction struct {
	id        string
	items     []product.Product
	timestamp int64
	total     decimal.Decimal
	discount  decimal.Decimal
	customer  *customer.Customer
}

// New builds a transaction from the sold items, priced without a customer
// (standalone prices) at the given instant, truncated to whole seconds.
func New(items []product.Product, now time.Time) (*Transaction, error) {
	if err := validate(items); err != nil {
		return nil, err
	}
	t := &Transaction{
		id:        uuid.New().String(),
		items:     append([]product.Product(nil), items...),
		timestamp: now.Unix(),
	}
	t.total, t.discount = t.price(func(p product.Product, at time.Time) decimal.Decimal {
		return p.StandalonePrice(at)
	})
	return t, nil
}

// Restore rebuilds a previously recorded transaction, for example from the
// sales journal. The total is recomputed from the items and customer.
func Restore(id string, items []product.Product, timestamp int64, c *customer.Customer) (*Transaction, error) {
	if err := validate(items); err != nil {
		return nil, err
	}
	t := &Transaction{
		id:        id,
		items:     append([]product.Product(nil), items...),
		timestamp: timestamp,
	}
	if c != nil {
		t.AttachCustomer(c)
	} else {
		t.total, t.discount = t.price(func(p product.Product, at time.Time) decimal.Decimal {
			return p.StandalonePrice(at)
		})
	}
	return t, nil
}

// AttachCustomer stores the customer and recomputes the total from scratch
// with customer-aware prices evaluated at the transaction timestamp. A nil
// customer prices every item as a walk-up sale.
func (t *Transaction) AttachCustomer(c *customer.Customer) *Transaction {
	t.customer = c
	t.total, t.discount = t.price(func(p product.Product, at time.Time) decimal.Decimal {
		return p.PriceFor(c, at)
	})
	return t
}

// price sums the item prices and the amount saved against base prices.
func (t *Transaction) price(priceOf func(product.Product, time.Time) decimal.Decimal) (total, saved decimal.Decimal) {
	at := time.Unix(t.timestamp, 0)
	base := decimal.Zero
	for _, item := range t.items {
		total = total.Add(priceOf(item, at))
		base = base.Add(product.Round2(item.Price))
	}
	total = product.Round2(total)
	return total, product.Round2(base.Sub(total))
}

// ID returns the transaction identifier.
func (t *Transaction) ID() string { return t.id }

// Timestamp returns the sale time in UNIX seconds.
func (t *Transaction) Timestamp() int64 { return t.timestamp }

// Time returns the sale time.
func (t *Transaction) Time() time.Time { return time.Unix(t.timestamp, 0).UTC() }

// Total returns the amount charged.
func (t *Transaction) Total() decimal.Decimal { return t.total }

// Discount returns the amount saved compared to undiscounted base prices.
func (t *Transaction) Discount() decimal.Decimal { return t.discount }

// Customer returns the attached customer or nil for walk-up sales.
func (t *Transaction) Customer() *customer.Customer { return t.customer }

// CustomerNo returns the attached customer's number.
func (t *Transaction) CustomerNo() (int, bool) {
	if t.customer == nil {
		return 0, false
	}
	return t.customer.No, true
}

// Items returns a copy of the sold items.
func (t *Transaction) Items() []product.Product {
	return append([]product.Product(nil), t.items...)
}

// ItemCount returns the number of sold item instances.
func (t *Transaction) ItemCount() int { return len(t.items) }

// EachItem calls fn for every sold item in order without copying the slice.
func (t *Transaction) EachItem(fn func(product.Product)) {
	for _, item := range t.items {
		fn(item)
	}
}

func validate(items []product.Product) error {
	if len(items) == 0 {
		return &MalformedDataError{Index: -1, Reason: "sale has no items"}
	}
	for i, item := range items {
		if item.Name == "" {
			return &MalformedDataError{Index: i, Field: "name", Reason: "required"}
		}
		if item.BarCode <= 0 {
			return &MalformedDataError{Index: i, Field: "barCode", Reason: "must be positive"}
		}
		if err := item.Validate(); err != nil {
			return &MalformedDataError{Index: i, Reason: err.Error()}
		}
	}
	return nil
}
