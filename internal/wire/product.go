package wire

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/cashflow-pos/internal/domain/product"
)

// EncodeProduct writes the interchange form of a product.
func EncodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	encodeProductFields(e, p)
	e.ObjEnd()
}

// EncodeCatalogProduct writes a product together with its walk-up price at
// the given instant, for catalog listings.
func EncodeCatalogProduct(e *jx.Encoder, p product.Product, at time.Time) {
	e.ObjStart()
	encodeProductFields(e, p)
	e.FieldStart("standalonePrice")
	Money(e, p.StandalonePrice(at))
	e.ObjEnd()
}

// EncodeCatalog writes products as a JSON array of catalog entries.
func EncodeCatalog(e *jx.Encoder, products []product.Product, at time.Time) {
	e.ArrStart()
	for _, p := range products {
		EncodeCatalogProduct(e, p, at)
	}
	e.ArrEnd()
}

func encodeProductFields(e *jx.Encoder, p product.Product) {
	e.FieldStart("productId")
	e.Int(p.ID)
	e.FieldStart("barCode")
	e.Int(p.BarCode)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("vat")
	Decimal(e, p.VAT)
	e.FieldStart("keyword")
	e.Str(p.Keyword)
	e.FieldStart("price")
	Decimal(e, p.Price)
	e.FieldStart("discount")
	Decimal(e, p.Discount.Rate)
	e.FieldStart("discountFrom")
	e.Int64(p.Discount.From)
	e.FieldStart("discountUntil")
	e.Int64(p.Discount.Until)
	e.FieldStart("bonusOnlyDiscount")
	e.Bool(p.Discount.BonusOnly)
}

// DecodeProduct reads a product. The identifier is accepted as either
// "productId" or "id"; barCode, name, vat and keyword are required, every
// other field defaults to zero.
func DecodeProduct(d *jx.Decoder) (product.Product, error) {
	var (
		p    product.Product
		seen = make(map[string]bool, 5)
	)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if null, err := skipNull(d); err != nil || null {
			return err
		}
		var err error
		switch key {
		case "productId", "id":
			p.ID, err = d.Int()
			seen["productId"] = true
		case "barCode":
			p.BarCode, err = d.Int()
			seen[key] = true
		case "name":
			p.Name, err = d.Str()
			seen[key] = true
		case "vat":
			p.VAT, err = DecodeDecimal(d)
			seen[key] = true
		case "keyword":
			p.Keyword, err = d.Str()
			seen[key] = true
		case "price":
			p.Price, err = DecodeDecimal(d)
		case "discount":
			p.Discount.Rate, err = DecodeDecimal(d)
		case "discountFrom":
			p.Discount.From, err = d.Int64()
		case "discountUntil":
			p.Discount.Until, err = d.Int64()
		case "bonusOnlyDiscount":
			p.Discount.BonusOnly, err = d.Bool()
		default:
			return d.Skip()
		}
		if err != nil {
			return &FieldError{Field: key, Reason: err.Error()}
		}
		return nil
	}); err != nil {
		return product.Product{}, errors.Wrap(err, "decode product")
	}

	for _, field := range []string{"productId", "barCode", "name", "vat", "keyword"} {
		if !seen[field] {
			return product.Product{}, missing(field)
		}
	}
	return p, nil
}

// DecodeProducts reads a JSON array of products.
func DecodeProducts(data []byte) ([]product.Product, error) {
	var out []product.Product
	d := jx.DecodeBytes(data)
	if err := d.Arr(func(d *jx.Decoder) error {
		p, err := DecodeProduct(d)
		if err != nil {
			return errors.Wrapf(err, "item %d", len(out))
		}
		out = append(out, p)
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// MarshalProducts encodes products as a JSON array.
func MarshalProducts(products []product.Product) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, p := range products {
		EncodeProduct(&e, p)
	}
	e.ArrEnd()
	return e.Bytes()
}
