package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/cashflow-pos/internal/analytics"
	"github.com/xenking/cashflow-pos/internal/domain/customer"
	"github.com/xenking/cashflow-pos/internal/domain/sale"
	"github.com/xenking/cashflow-pos/internal/wire"
)

const (
	appendSaleSQL = `INSERT INTO sales (id, ts, customer_no, customer, items, total, discount)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)`

	listSalesSQL = `SELECT id::text, ts, customer, items FROM sales ORDER BY seq`
)

var _ analytics.Journal = (*SaleJournal)(nil)

// SaleJournal persists accepted sales. Each row keeps the item snapshots and
// the customer as resolved at sale time, so replay needs no registry calls.
type SaleJournal struct {
	pool *pgxpool.Pool
}

// NewSaleJournal returns a SaleJournal that uses the given pool.
func NewSaleJournal(pool *pgxpool.Pool) *SaleJournal {
	return &SaleJournal{pool: pool}
}

// Append writes a transaction to the journal.
func (j *SaleJournal) Append(ctx context.Context, tx *sale.Transaction) error {
	var (
		customerNo  *int
		customerDoc []byte
	)
	if no, ok := tx.CustomerNo(); ok {
		customerNo = &no
		customerDoc = wire.MarshalCustomer(tx.Customer())
	}

	if _, err := j.pool.Exec(ctx, appendSaleSQL,
		tx.ID(), tx.Timestamp(), customerNo, customerDoc,
		wire.MarshalProducts(tx.Items()), tx.Total(), tx.Discount(),
	); err != nil {
		return errors.Wrapf(err, "append sale %s", tx.ID())
	}
	return nil
}

// List returns every journaled transaction in the order it was appended.
func (j *SaleJournal) List(ctx context.Context) ([]*sale.Transaction, error) {
	rows, err := j.pool.Query(ctx, listSalesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list sales")
	}
	txs, err := pgx.CollectRows(rows, scanSale)
	if err != nil {
		return nil, errors.Wrap(err, "scan sales")
	}
	return txs, nil
}

func scanSale(row pgx.CollectableRow) (*sale.Transaction, error) {
	var (
		id          string
		ts          int64
		customerDoc []byte
		itemsDoc    []byte
	)
	if err := row.Scan(&id, &ts, &customerDoc, &itemsDoc); err != nil {
		return nil, err
	}

	items, err := wire.DecodeProducts(itemsDoc)
	if err != nil {
		return nil, errors.Wrapf(err, "decode items of sale %s", id)
	}
	var c *customer.Customer
	if customerDoc != nil {
		if c, err = wire.UnmarshalCustomer(customerDoc); err != nil {
			return nil, errors.Wrapf(err, "decode customer of sale %s", id)
		}
	}
	return sale.Restore(id, items, ts, c)
}
