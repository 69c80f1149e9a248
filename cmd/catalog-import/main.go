// Command catalog-import loads product dumps into the products table.
//
// A dump is a gzip-compressed file of JSON lines, one product per line, in
// the API's product encoding. Files are read in parallel; when a barcode
// appears in several files the product from the file that sorts last wins.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/cashflow-pos/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		batchSize   int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing product dumps")
	flag.StringVar(&pattern, "pattern", "*.jsonl.gz", "glob selecting dump files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch-size", 1000, "products per upsert transaction")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, pattern, databaseURL, batchSize); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir, pattern, databaseURL string, batchSize int) error {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "list dump files")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %s in %s", pattern, dataDir)
	}
	slices.Sort(files)

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	imp := &importer{
		store:     postgres.NewProductRepository(pool),
		batchSize: batchSize,
	}
	stats, err := imp.Import(ctx, files)
	if err != nil {
		return err
	}

	slog.Info("import summary",
		slog.Int("files", len(files)),
		slog.Int("read", stats.Read),
		slog.Int("written", stats.Written),
		slog.Int("superseded", stats.Superseded),
		slog.Int("invalid", stats.Invalid),
	)
	return nil
}
