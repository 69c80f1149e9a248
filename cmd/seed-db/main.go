package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/cashflow-pos/internal/domain/auth"
	"github.com/xenking/cashflow-pos/internal/storage/postgres"
	"github.com/xenking/cashflow-pos/internal/wire"
)

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or POS_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or POS_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("POS_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("POS_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if apiKey == "" {
		slog.Info("no API key given, skipping admin key")
		return nil
	}
	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	products, err := wire.DecodeProducts(data)
	if err != nil {
		return errors.Wrap(err, "parse products JSON")
	}
	for _, p := range products {
		if err := p.Validate(); err != nil {
			return errors.Wrapf(err, "product %d", p.BarCode)
		}
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	if err := repo.Upsert(ctx, products...); err != nil {
		return errors.Wrap(err, "upsert products")
	}
	for _, p := range products {
		slog.Info("upserted product", slog.Int("barcode", p.BarCode), slog.String("name", p.Name))
	}

	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	id, err := repo.Save(ctx, auth.APIKeyInfo{
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Seeded admin key",
		Scopes:  []string{auth.ScopeAdmin},
	})
	if err != nil {
		return errors.Wrap(err, "save admin API key")
	}

	slog.Info("upserted API key", slog.String("id", id), slog.String("name", "Seeded admin key"))

	return nil
}
