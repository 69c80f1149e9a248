package wire

import (
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/cashflow-pos/internal/domain/product"
)

// DiscountRequest is the decoded body of an admin discount edit. Exactly one
// of Products and Keyword selects the affected products.
type DiscountRequest struct {
	Discount product.Discount
	Products []int
	Keyword  string
}

// ByKeyword reports whether the edit targets a keyword group.
func (r DiscountRequest) ByKeyword() bool {
	return r.Products == nil
}

func invalid(err error) error {
	return &PayloadError{Err: err}
}

// DecodePriceRequest reads {"price":n}.
func DecodePriceRequest(data []byte) (decimal.Decimal, error) {
	var (
		price decimal.Decimal
		seen  bool
	)
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "price" {
			return d.Skip()
		}
		v, err := DecodeDecimal(d)
		if err != nil {
			return &FieldError{Field: key, Reason: err.Error()}
		}
		price, seen = v, true
		return nil
	}); err != nil {
		return decimal.Decimal{}, invalid(err)
	}
	if !seen {
		return decimal.Decimal{}, invalid(missing("price"))
	}
	return price, nil
}

// DecodeDiscountRequest reads
// {"discount":r,"from":ts,"until":ts,"bonusOnly":b,"products":[barcode...]}
// or the same with "keyword" in place of "products". discount, from and
// until are required.
func DecodeDiscountRequest(data []byte) (DiscountRequest, error) {
	var (
		req  DiscountRequest
		seen = make(map[string]bool, 5)
	)
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if null, err := skipNull(d); err != nil || null {
			return err
		}
		var err error
		switch key {
		case "discount":
			req.Discount.Rate, err = DecodeDecimal(d)
			seen[key] = true
		case "from":
			req.Discount.From, err = d.Int64()
			seen[key] = true
		case "until":
			req.Discount.Until, err = d.Int64()
			seen[key] = true
		case "bonusOnly":
			req.Discount.BonusOnly, err = d.Bool()
		case "keyword":
			req.Keyword, err = d.Str()
			seen[key] = true
		case "products":
			seen[key] = true
			req.Products = make([]int, 0)
			err = d.Arr(func(d *jx.Decoder) error {
				barCode, err := d.Int()
				if err != nil {
					return err
				}
				req.Products = append(req.Products, barCode)
				return nil
			})
		default:
			return d.Skip()
		}
		if err != nil {
			return &FieldError{Field: key, Reason: err.Error()}
		}
		return nil
	}); err != nil {
		return DiscountRequest{}, invalid(err)
	}

	for _, field := range []string{"discount", "from", "until"} {
		if !seen[field] {
			return DiscountRequest{}, invalid(missing(field))
		}
	}
	switch {
	case seen["products"] && seen["keyword"]:
		return DiscountRequest{}, invalid(&FieldError{Field: "keyword", Reason: "products and keyword are mutually exclusive"})
	case seen["products"] && len(req.Products) == 0:
		return DiscountRequest{}, invalid(&FieldError{Field: "products", Reason: "must not be empty"})
	case req.Products == nil && req.Keyword == "":
		return DiscountRequest{}, invalid(&FieldError{Field: "products", Reason: "either products or keyword is required"})
	}
	return req, nil
}
