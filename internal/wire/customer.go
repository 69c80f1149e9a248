package wire

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/cashflow-pos/internal/domain/customer"
)

// EncodeCustomer writes a customer with its address and bonus cards.
func EncodeCustomer(e *jx.Encoder, c *customer.Customer) {
	if c == nil {
		e.Null()
		return
	}
	e.ObjStart()
	e.FieldStart("customerNo")
	e.Int(c.No)
	e.FieldStart("firstName")
	e.Str(c.FirstName)
	e.FieldStart("lastName")
	e.Str(c.LastName)
	e.FieldStart("sex")
	e.Str(c.Sex)
	e.FieldStart("birthDate")
	e.Str(c.BirthDate)

	e.FieldStart("address")
	e.ObjStart()
	e.FieldStart("country")
	e.Str(c.Address.Country)
	e.FieldStart("streetAddress")
	e.Str(c.Address.StreetAddress)
	e.FieldStart("postOffice")
	e.Str(c.Address.PostOffice)
	e.FieldStart("postalCode")
	e.Int(c.Address.PostalCode)
	e.ObjEnd()

	e.FieldStart("bonusCards")
	e.ArrStart()
	for _, card := range c.BonusCards() {
		e.ObjStart()
		e.FieldStart("number")
		e.Int64(card.Number)
		e.FieldStart("goodThruYear")
		e.Int(card.GoodThruYear)
		e.FieldStart("goodThruMonth")
		e.Int(card.GoodThruMonth)
		e.FieldStart("holderName")
		e.Str(card.HolderName)
		e.FieldStart("expired")
		e.Bool(card.Expired)
		e.FieldStart("blocked")
		e.Bool(card.Blocked)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

// MarshalCustomer encodes a single customer.
func MarshalCustomer(c *customer.Customer) []byte {
	var e jx.Encoder
	EncodeCustomer(&e, c)
	return e.Bytes()
}

// UnmarshalCustomer decodes a customer produced by MarshalCustomer.
func UnmarshalCustomer(data []byte) (*customer.Customer, error) {
	return DecodeCustomer(jx.DecodeBytes(data))
}

// DecodeCustomer reads a customer. Bonus cards are accepted under
// "bonusCards" (array) or "bonusCard" (single object or array).
func DecodeCustomer(d *jx.Decoder) (*customer.Customer, error) {
	var (
		c         customer.Customer
		cards     []customer.BonusCard
		hasNumber bool
	)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if null, err := skipNull(d); err != nil || null {
			return err
		}
		var err error
		switch key {
		case "customerNo":
			c.No, err = d.Int()
			hasNumber = true
		case "firstName":
			c.FirstName, err = d.Str()
		case "lastName":
			c.LastName, err = d.Str()
		case "sex":
			c.Sex, err = d.Str()
		case "birthDate":
			c.BirthDate, err = d.Str()
		case "address":
			c.Address, err = decodeAddress(d)
		case "bonusCards", "bonusCard":
			cards, err = decodeCards(d, cards)
		default:
			return d.Skip()
		}
		if err != nil {
			return &FieldError{Field: key, Reason: err.Error()}
		}
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode customer")
	}
	if !hasNumber {
		return nil, missing("customerNo")
	}

	out := customer.New(c.No, cards...)
	out.FirstName = c.FirstName
	out.LastName = c.LastName
	out.Sex = c.Sex
	out.BirthDate = c.BirthDate
	out.Address = c.Address
	return out, nil
}

func decodeAddress(d *jx.Decoder) (customer.Address, error) {
	var a customer.Address
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if null, err := skipNull(d); err != nil || null {
			return err
		}
		var err error
		switch key {
		case "country":
			a.Country, err = d.Str()
		case "streetAddress":
			a.StreetAddress, err = d.Str()
		case "postOffice":
			a.PostOffice, err = d.Str()
		case "postalCode":
			a.PostalCode, err = d.Int()
		default:
			return d.Skip()
		}
		return err
	})
	return a, err
}

func decodeCards(d *jx.Decoder, cards []customer.BonusCard) ([]customer.BonusCard, error) {
	if d.Next() == jx.Object {
		card, err := decodeCard(d)
		if err != nil {
			return nil, err
		}
		return append(cards, card), nil
	}
	err := d.Arr(func(d *jx.Decoder) error {
		card, err := decodeCard(d)
		if err != nil {
			return err
		}
		cards = append(cards, card)
		return nil
	})
	return cards, err
}

func decodeCard(d *jx.Decoder) (customer.BonusCard, error) {
	var card customer.BonusCard
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if null, err := skipNull(d); err != nil || null {
			return err
		}
		var err error
		switch key {
		case "number":
			card.Number, err = d.Int64()
		case "goodThruYear":
			card.GoodThruYear, err = d.Int()
		case "goodThruMonth":
			card.GoodThruMonth, err = d.Int()
		case "holderName":
			card.HolderName, err = d.Str()
		case "expired":
			card.Expired, err = d.Bool()
		case "blocked":
			card.Blocked, err = d.Bool()
		default:
			return d.Skip()
		}
		return err
	})
	return card, err
}
