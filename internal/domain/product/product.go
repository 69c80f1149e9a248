package product

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidDiscount is returned when a discount rate lies outside [0, 1].
	ErrInvalidDiscount = errors.New("discount value must be between 0 and 1")
	// ErrInvalidPrice is returned when a price is negative.
	ErrInvalidPrice = errors.New("price must not be negative")
)

var one = decimal.NewFromInt(1)

// Product is a catalog entry. It is a plain value: copying a Product yields an
// independent snapshot, which is what sale records keep.
type Product struct {
	ID       int
	BarCode  int
	Name     string
	VAT      decimal.Decimal
	Keyword  string
	Price    decimal.Decimal
	Discount Discount
}

// Discount is a time-windowed price reduction. From and Until are UNIX
// seconds. A zero Rate means no discount regardless of the window.
type Discount struct {
	Rate      decimal.Decimal
	From      int64
	Until     int64
	BonusOnly bool
}

// BonusHolder is the view of a buyer needed to price bonus-only discounts.
type BonusHolder interface {
	ActiveBonus() bool
}

// NewDiscount builds a discount rule, rejecting rates outside [0, 1].
func NewDiscount(rate decimal.Decimal, from, until int64, bonusOnly bool) (Discount, error) {
	d := Discount{Rate: rate, From: from, Until: until, BonusOnly: bonusOnly}
	if err := d.Validate(); err != nil {
		return Discount{}, err
	}
	return d, nil
}

// Validate checks the discount rate bounds.
func (d Discount) Validate() error {
	if d.Rate.IsNegative() || d.Rate.GreaterThan(one) {
		return ErrInvalidDiscount
	}
	return nil
}

// Validate checks the price and discount of the product.
func (p Product) Validate() error {
	if p.Price.IsNegative() {
		return ErrInvalidPrice
	}
	return p.Discount.Validate()
}

// PriceFor returns the price charged to the given buyer at the given instant.
// The discount window is inclusive on both ends. A nil buyer never qualifies
// for a bonus-only discount.
func (p Product) PriceFor(buyer BonusHolder, at time.Time) decimal.Decimal {
	d := p.Discount
	now := at.Unix()
	if d.Rate.IsZero() || now < d.From || now > d.Until {
		return Round2(p.Price)
	}
	if d.BonusOnly && !hasActiveBonus(buyer) {
		return Round2(p.Price)
	}
	return d.apply(p.Price)
}

// StandalonePrice returns the price shown without a buyer, e.g. on catalog
// listings. Bonus-only discounts are never applied and the window is
// exclusive on both ends.
func (p Product) StandalonePrice(at time.Time) decimal.Decimal {
	d := p.Discount
	now := at.Unix()
	if d.Rate.IsZero() || d.BonusOnly || now <= d.From || now >= d.Until {
		return Round2(p.Price)
	}
	return d.apply(p.Price)
}

func (d Discount) apply(price decimal.Decimal) decimal.Decimal {
	return Round2(one.Sub(d.Rate).Mul(price))
}

func hasActiveBonus(buyer BonusHolder) bool {
	return buyer != nil && buyer.ActiveBonus()
}

// Round2 rounds a monetary amount to two decimal places, half away from zero
// (half-up for the non-negative amounts used here).
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}
