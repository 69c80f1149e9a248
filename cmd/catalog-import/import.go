package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/cashflow-pos/internal/domain/product"
	"github.com/xenking/cashflow-pos/internal/wire"
)

const (
	bloomCapacity = 2_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
	maxLineSize   = 1 << 20
)

type productStore interface {
	Upsert(ctx context.Context, products ...product.Product) error
}

// Stats summarizes an import.
type Stats struct {
	Read       int
	Written    int
	Superseded int
	Invalid    int
}

// importer de-duplicates barcodes across files in two passes. Pass 1 builds
// a bloom filter of the barcodes of every file. Pass 2 writes products
// whose barcode cannot occur in a later file straight away and holds back
// the rest; a held product is dropped when a later file provably has the
// same barcode.
type importer struct {
	store     productStore
	batchSize int

	mu    sync.Mutex
	stats Stats
}

func (im *importer) count(fn func(s *Stats)) {
	im.mu.Lock()
	fn(&im.stats)
	im.mu.Unlock()
}

// Import reads every file and upserts the surviving products.
func (im *importer) Import(ctx context.Context, files []string) (Stats, error) {
	if im.batchSize <= 0 {
		im.batchSize = 1000
	}

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))
	filters, err := im.buildFilters(ctx, files)
	if err != nil {
		return Stats{}, errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: writing products")
	held := make([]map[int]product.Product, len(files))
	seenBefore := make([]map[int]struct{}, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			h, s, err := im.scan(gctx, i, path, filters)
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			held[i], seenBefore[i] = h, s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	slog.Info("resolving barcodes found in several files")
	w := im.newWriter()
	for i := range files {
		for _, barCode := range slices.Sorted(maps.Keys(held[i])) {
			if supersededAfter(i, barCode, seenBefore) {
				im.count(func(s *Stats) { s.Superseded++ })
				continue
			}
			if err := w.add(ctx, held[i][barCode]); err != nil {
				return Stats{}, err
			}
		}
	}
	if err := w.flush(ctx); err != nil {
		return Stats{}, err
	}

	im.mu.Lock()
	defer im.mu.Unlock()
	return im.stats, nil
}

func supersededAfter(idx, barCode int, seenBefore []map[int]struct{}) bool {
	for j := idx + 1; j < len(seenBefore); j++ {
		if _, ok := seenBefore[j][barCode]; ok {
			return true
		}
	}
	return false
}

func barcodeKey(barCode int) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], uint64(barCode))
	return key[:]
}

func (im *importer) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			n := 0
			if err := streamProducts(ctx, path, func(p product.Product) error {
				filter.Add(barcodeKey(p.BarCode))
				n++
				return nil
			}, nil); err != nil {
				return errors.Wrapf(err, "index %s", path)
			}
			slog.Info("pass 1 complete", slog.String("file", path), slog.Int("products", n))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// scan is pass 2 for file idx. It returns the products held back for
// resolution and the exact set of barcodes that may also occur in an
// earlier file.
func (im *importer) scan(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
) (map[int]product.Product, map[int]struct{}, error) {
	var (
		held       = make(map[int]product.Product)
		seenBefore = make(map[int]struct{})
		w          = im.newWriter()
		n          int
	)
	err := streamProducts(ctx, path, func(p product.Product) error {
		n++
		if n%progressEvery == 0 {
			slog.Info("pass 2 progress", slog.String("file", path), slog.Int("products", n))
		}
		im.count(func(s *Stats) { s.Read++ })

		key := barcodeKey(p.BarCode)
		later := false
		for j, f := range filters {
			if j == idx || !f.Test(key) {
				continue
			}
			if j < idx {
				seenBefore[p.BarCode] = struct{}{}
			} else {
				later = true
			}
		}
		if later {
			held[p.BarCode] = p
			return nil
		}
		return w.add(ctx, p)
	}, func(line int, err error) {
		im.count(func(s *Stats) { s.Invalid++ })
		slog.Warn("skipping invalid product",
			slog.String("file", path),
			slog.Int("line", line),
			slog.String("error", err.Error()),
		)
	})
	if err != nil {
		return nil, nil, err
	}
	if err := w.flush(ctx); err != nil {
		return nil, nil, err
	}

	slog.Info("pass 2 complete",
		slog.String("file", path),
		slog.Int("products", n),
		slog.Int("held", len(held)),
	)
	return held, seenBefore, nil
}

type batchWriter struct {
	im    *importer
	batch []product.Product
}

func (im *importer) newWriter() *batchWriter {
	return &batchWriter{im: im, batch: make([]product.Product, 0, im.batchSize)}
}

func (w *batchWriter) add(ctx context.Context, p product.Product) error {
	w.batch = append(w.batch, p)
	if len(w.batch) < w.im.batchSize {
		return nil
	}
	return w.flush(ctx)
}

func (w *batchWriter) flush(ctx context.Context) error {
	if len(w.batch) == 0 {
		return nil
	}
	if err := w.im.store.Upsert(ctx, w.batch...); err != nil {
		return errors.Wrap(err, "upsert products")
	}
	w.im.count(func(s *Stats) { s.Written += len(w.batch) })
	w.batch = w.batch[:0]
	return nil
}

// streamProducts decodes a gzip JSON-lines file, calling fn for every valid
// product and invalid, when not nil, for lines that fail to decode or
// validate. Blank lines are ignored.
func streamProducts(
	ctx context.Context,
	path string,
	fn func(p product.Product) error,
	invalid func(line int, err error),
) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64<<10), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		p, err := wire.DecodeProduct(jx.DecodeBytes(data))
		if err == nil {
			err = p.Validate()
		}
		if err != nil {
			if invalid != nil {
				invalid(line, err)
			}
			continue
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
