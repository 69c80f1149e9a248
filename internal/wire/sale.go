package wire

import (
	"maps"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/cashflow-pos/internal/analytics"
	"github.com/xenking/cashflow-pos/internal/domain/customer"
	"github.com/xenking/cashflow-pos/internal/domain/product"
	"github.com/xenking/cashflow-pos/internal/domain/sale"
)

// SaleRequest is the decoded body of a sale submission.
type SaleRequest struct {
	Items      []product.Product
	CustomerNo *int
}

// DecodeSaleRequest reads {"sales":[product...],"customer":int?}. Every
// failure is reported as a *sale.MalformedDataError.
func DecodeSaleRequest(data []byte) (SaleRequest, error) {
	var (
		req      SaleRequest
		hasSales bool
	)
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "sales":
			hasSales = true
			return d.Arr(func(d *jx.Decoder) error {
				p, err := DecodeProduct(d)
				if err != nil {
					var fErr *FieldError
					if errors.As(err, &fErr) {
						return &sale.MalformedDataError{Index: len(req.Items), Field: fErr.Field, Reason: fErr.Reason}
					}
					return &sale.MalformedDataError{Index: len(req.Items), Reason: err.Error()}
				}
				req.Items = append(req.Items, p)
				return nil
			})
		case "customer":
			if null, err := skipNull(d); err != nil || null {
				return err
			}
			no, err := d.Int()
			if err != nil {
				return &sale.MalformedDataError{Index: -1, Field: "customer", Reason: err.Error()}
			}
			req.CustomerNo = &no
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		var mErr *sale.MalformedDataError
		if errors.As(err, &mErr) {
			return SaleRequest{}, mErr
		}
		return SaleRequest{}, &sale.MalformedDataError{Index: -1, Reason: err.Error()}
	}
	if !hasSales {
		return SaleRequest{}, &sale.MalformedDataError{Index: -1, Field: "sales", Reason: "required"}
	}
	return req, nil
}

// MarshalSaleRequest encodes a sale submission, as sent by cash registers.
func MarshalSaleRequest(req SaleRequest) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("sales")
	e.ArrStart()
	for _, p := range req.Items {
		EncodeProduct(&e, p)
	}
	e.ArrEnd()
	if req.CustomerNo != nil {
		e.FieldStart("customer")
		e.Int(*req.CustomerNo)
	}
	e.ObjEnd()
	return e.Bytes()
}

// EncodeTransaction writes a recorded sale.
func EncodeTransaction(e *jx.Encoder, tx *sale.Transaction) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(tx.ID())
	e.FieldStart("timestamp")
	e.Int64(tx.Timestamp())
	e.FieldStart("total")
	Money(e, tx.Total())
	e.FieldStart("discount")
	Money(e, tx.Discount())
	e.FieldStart("items")
	e.ArrStart()
	tx.EachItem(func(p product.Product) {
		EncodeProduct(e, p)
	})
	e.ArrEnd()
	if no, ok := tx.CustomerNo(); ok {
		e.FieldStart("customerNo")
		e.Int(no)
	}
	e.ObjEnd()
}

// EncodeSales writes {"sales":[transaction...]}.
func EncodeSales(e *jx.Encoder, txs []*sale.Transaction) {
	e.ObjStart()
	e.FieldStart("sales")
	e.ArrStart()
	for _, tx := range txs {
		EncodeTransaction(e, tx)
	}
	e.ArrEnd()
	e.ObjEnd()
}

// EncodeCounter writes a counter as an object keyed by the decimal form of
// each key, in ascending key order.
func EncodeCounter[K ~int | ~int64](e *jx.Encoder, c *analytics.Counter[K]) {
	e.ObjStart()
	for _, k := range c.Keys() {
		e.FieldStart(intKey(k))
		e.Int(c.Get(k))
	}
	e.ObjEnd()
}

// EncodeSalesByDate writes {"<day>":{"<barcode>":count}}.
func EncodeSalesByDate(e *jx.Encoder, days map[int64]*analytics.Counter[int]) {
	e.ObjStart()
	for _, day := range slices.Sorted(maps.Keys(days)) {
		e.FieldStart(intKey(day))
		EncodeCounter(e, days[day])
	}
	e.ObjEnd()
}

// EncodeCustomerSales writes {"customer":{...},"sales":[transaction...]}.
func EncodeCustomerSales(e *jx.Encoder, c *customer.Customer, sales []*sale.Transaction) {
	e.ObjStart()
	e.FieldStart("customer")
	EncodeCustomer(e, c)
	e.FieldStart("sales")
	e.ArrStart()
	for _, tx := range sales {
		EncodeTransaction(e, tx)
	}
	e.ArrEnd()
	e.ObjEnd()
}

// EncodeBonusPopularity writes [{"customer":{...},"sales":{"<barcode>":n}}].
func EncodeBonusPopularity(e *jx.Encoder, groups []analytics.CustomerSales) {
	e.ArrStart()
	for _, g := range groups {
		e.ObjStart()
		e.FieldStart("customer")
		EncodeCustomer(e, g.Customer)
		e.FieldStart("sales")
		EncodeCounter(e, g.Sales)
		e.ObjEnd()
	}
	e.ArrEnd()
}
