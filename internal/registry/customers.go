package registry

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/cashflow-pos/internal/domain/customer"
)

var _ customer.Registry = (*CustomerClient)(nil)

type xmlCustomer struct {
	CustomerNo int            `xml:"customerNo"`
	FirstName  string         `xml:"firstName"`
	LastName   string         `xml:"lastName"`
	Sex        string         `xml:"sex"`
	BirthDate  string         `xml:"birthDate"`
	Address    xmlAddress     `xml:"address"`
	BonusCards []xmlBonusCard `xml:"bonusCard"`
}

type xmlAddress struct {
	Country       string `xml:"country"`
	StreetAddress string `xml:"streetAddress"`
	PostOffice    string `xml:"postOffice"`
	PostalCode    int    `xml:"postalCode"`
}

type xmlBonusCard struct {
	Number        int64  `xml:"number"`
	GoodThruYear  int    `xml:"goodThruYear"`
	GoodThruMonth int    `xml:"goodThruMonth"`
	HolderName    string `xml:"holderName"`
	Blocked       bool   `xml:"blocked"`
	Expired       bool   `xml:"expired"`
}

func (x xmlCustomer) toDomain() *customer.Customer {
	cards := make([]customer.BonusCard, len(x.BonusCards))
	for i, card := range x.BonusCards {
		cards[i] = customer.BonusCard(card)
	}
	c := customer.New(x.CustomerNo, cards...)
	c.FirstName = x.FirstName
	c.LastName = x.LastName
	c.Sex = x.Sex
	c.BirthDate = x.BirthDate
	c.Address = customer.Address(x.Address)
	return c
}

// CustomerClient resolves customers through the customer registry service.
type CustomerClient struct {
	c *client
}

// NewCustomerClient creates a client for the registry at baseURL, for
// example http://localhost:9004/rest.
func NewCustomerClient(baseURL string, opts Options) (*CustomerClient, error) {
	c, err := newClient("customer registry", baseURL, opts)
	if err != nil {
		return nil, err
	}
	return &CustomerClient{c: c}, nil
}

// Customer fetches a customer by number.
func (r *CustomerClient) Customer(ctx context.Context, no int) (*customer.Customer, error) {
	var x xmlCustomer
	if err := r.c.getXML(ctx, fmt.Sprintf("/findByCustomerNo/%d", no), &x); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, &customer.NotFoundError{CustomerNo: no}
		}
		return nil, err
	}
	return x.toDomain(), nil
}

// CustomerByCard fetches the holder of a bonus card.
func (r *CustomerClient) CustomerByCard(ctx context.Context, number int64, year, month int) (*customer.Customer, error) {
	var x xmlCustomer
	if err := r.c.getXML(ctx, fmt.Sprintf("/findByBonusCard/%d/%d/%d", number, year, month), &x); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, &customer.NotFoundError{Card: number}
		}
		return nil, err
	}
	return x.toDomain(), nil
}

// Ping checks that the registry is reachable.
func (r *CustomerClient) Ping(ctx context.Context) error {
	return r.c.ping(ctx)
}
