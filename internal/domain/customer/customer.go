package customer

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a customer number or bonus card does not
// resolve in the customer registry.
var ErrNotFound = errors.New("customer not found")

// NotFoundError carries the identifier that failed to resolve. It matches
// ErrNotFound with errors.Is.
type NotFoundError struct {
	CustomerNo int
	Card       int64
}

func (e *NotFoundError) Error() string {
	if e.Card != 0 {
		return fmt.Sprintf("no customer found for bonus card %d", e.Card)
	}
	return fmt.Sprintf("no customer by number %d", e.CustomerNo)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Customer is a registry entry. Customers are fetched on demand and never
// mutated locally; identity is the customer number.
type Customer struct {
	No        int
	FirstName string
	LastName  string
	Sex       string
	BirthDate string
	Address   Address
	cards     map[int64]BonusCard
}

// Address is the postal address of a customer.
type Address struct {
	Country       string
	StreetAddress string
	PostOffice    string
	PostalCode    int
}

func (a Address) String() string {
	return fmt.Sprintf("%s, %d %s, %s", a.StreetAddress, a.PostalCode, a.PostOffice, a.Country)
}

// BonusCard is a loyalty card held by a customer.
type BonusCard struct {
	Number        int64
	GoodThruYear  int
	GoodThruMonth int
	HolderName    string
	Blocked       bool
	Expired       bool
}

// Active reports whether the card can be used for bonus discounts.
func (c BonusCard) Active() bool {
	return !c.Blocked && !c.Expired
}

// New creates a customer with the given bonus cards. Cards are keyed by
// number; a later card with the same number replaces an earlier one.
func New(no int, cards ...BonusCard) *Customer {
	c := &Customer{No: no, cards: make(map[int64]BonusCard, len(cards))}
	for _, card := range cards {
		c.cards[card.Number] = card
	}
	return c
}

// Name returns the full display name.
func (c *Customer) Name() string {
	return c.FirstName + " " + c.LastName
}

// ActiveBonus reports whether at least one bonus card is neither blocked nor
// expired. A nil customer has no active bonus.
func (c *Customer) ActiveBonus() bool {
	if c == nil {
		return false
	}
	for _, card := range c.cards {
		if card.Active() {
			return true
		}
	}
	return false
}

// BonusCards returns the customer's cards ordered by card number.
func (c *Customer) BonusCards() []BonusCard {
	out := make([]BonusCard, 0, len(c.cards))
	for _, card := range c.cards {
		out = append(out, card)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Card looks up a bonus card by number.
func (c *Customer) Card(number int64) (BonusCard, bool) {
	card, ok := c.cards[number]
	return card, ok
}

// Registry resolves customers from the external customer registry.
// Implementations return an error matching ErrNotFound for unknown
// customers and a distinct error for transport failures.
type Registry interface {
	Customer(ctx context.Context, no int) (*Customer, error)
	CustomerByCard(ctx context.Context, number int64, year, month int) (*Customer, error)
}
