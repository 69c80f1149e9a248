package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/cashflow-pos/internal/catalog"
	"github.com/xenking/cashflow-pos/internal/domain/product"
)

const (
	listProductsSQL = `SELECT product_id, bar_code, name, vat, keyword, price,
		discount, discount_from, discount_until, bonus_only
		FROM products ORDER BY bar_code`

	upsertProductSQL = `INSERT INTO products (product_id, bar_code, name, vat, keyword, price,
		discount, discount_from, discount_until, bonus_only)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (bar_code) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			name = EXCLUDED.name,
			vat = EXCLUDED.vat,
			keyword = EXCLUDED.keyword,
			price = EXCLUDED.price,
			discount = EXCLUDED.discount,
			discount_from = EXCLUDED.discount_from,
			discount_until = EXCLUDED.discount_until,
			bonus_only = EXCLUDED.bonus_only,
			updated_at = now()`
)

var (
	_ catalog.Source = (*ProductRepository)(nil)
	_ catalog.Store  = (*ProductRepository)(nil)
)

// ProductRepository stores the product catalog.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products ordered by barcode.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "scan products")
	}
	return products, nil
}

// Upsert inserts or replaces products by barcode in a single transaction.
func (r *ProductRepository) Upsert(ctx context.Context, products ...product.Product) error {
	if len(products) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(upsertProductSQL,
			p.ID, p.BarCode, p.Name, p.VAT, p.Keyword, p.Price,
			p.Discount.Rate, p.Discount.From, p.Discount.Until, p.Discount.BonusOnly,
		)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrapf(err, "upsert %d products", len(products))
		}
		return nil
	})
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.BarCode, &p.Name, &p.VAT, &p.Keyword, &p.Price,
		&p.Discount.Rate, &p.Discount.From, &p.Discount.Until, &p.Discount.BonusOnly,
	)
	return p, err
}
