// Package analytics keeps the append-only sales ledger and answers the
// reporting queries over it.
//
// The ledger is guarded by a read/write mutex. Writers perform all I/O
// (customer resolution, journaling) before taking the lock, so the critical
// section is a single append. Readers take the lock only long enough to
// capture the current prefix of the ledger and scan it afterwards;
// transactions are never modified once appended, so the scan needs no lock.
package analytics

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/cashflow-pos/internal/domain/customer"
	"github.com/xenking/cashflow-pos/internal/domain/product"
	"github.com/xenking/cashflow-pos/internal/domain/sale"
)

const (
	instrumentationName = "github.com/xenking/cashflow-pos/internal/analytics"

	// secondsPerDay converts UNIX seconds to days since epoch.
	secondsPerDay = 60 * 60 * 24

	// resolveConcurrency bounds parallel registry calls in cohort queries.
	resolveConcurrency = 8
)

// ErrInternalConsistency is matched by InconsistencyError.
var ErrInternalConsistency = errors.New("internal consistency error")

// InconsistencyError reports a ledger entry whose customer can no longer be
// resolved. Customers are attached only after successful resolution, so this
// indicates the registry lost a customer the ledger still references.
type InconsistencyError struct {
	CustomerNo int
	Cause      error
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("ledger references customer %d which no longer resolves: %v", e.CustomerNo, e.Cause)
}

// Is reports whether target is ErrInternalConsistency.
func (e *InconsistencyError) Is(target error) bool {
	return target == ErrInternalConsistency
}

// Journal durably records accepted sales. Append is called before the sale
// becomes visible in the ledger; a failed append rejects the sale.
type Journal interface {
	Append(ctx context.Context, tx *sale.Transaction) error
}

// Options configures optional collaborators of Analytics.
type Options struct {
	// Journal, when set, receives every accepted sale.
	Journal        Journal
	Logger         *zap.Logger
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// CustomerSales holds per-customer item counts of the bonus cohort query.
type CustomerSales struct {
	Customer *customer.Customer
	Sales    *Counter[int]
}

// Analytics is the process-wide sales ledger.
type Analytics struct {
	customers customer.Registry
	journal   Journal
	lg        *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time

	recorded metric.Int64Counter
	rejected metric.Int64Counter
	queryDur metric.Float64Histogram

	// writeMu orders journal writes with ledger appends so a replay
	// restores the live order. Readers only take mu.
	writeMu sync.Mutex
	mu      sync.RWMutex
	ledger  []*sale.Transaction
}

// New creates an empty ledger that resolves customers through the registry.
func New(customers customer.Registry, opts Options) (*Analytics, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = otel.GetMeterProvider()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	meter := opts.MeterProvider.Meter(instrumentationName)
	recorded, err := meter.Int64Counter("pos.sales.recorded",
		metric.WithDescription("Sales appended to the ledger"),
		metric.WithUnit("{sale}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create recorded counter")
	}
	rejected, err := meter.Int64Counter("pos.sales.rejected",
		metric.WithDescription("Sales rejected before reaching the ledger"),
		metric.WithUnit("{sale}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create rejected counter")
	}
	queryDur, err := meter.Float64Histogram("pos.analytics.query.duration",
		metric.WithDescription("Duration of analytics queries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create query histogram")
	}

	return &Analytics{
		customers: customers,
		journal:   opts.Journal,
		lg:        opts.Logger,
		tracer:    opts.TracerProvider.Tracer(instrumentationName),
		now:       time.Now,
		recorded:  recorded,
		rejected:  rejected,
		queryDur:  queryDur,
	}, nil
}

// Load appends previously recorded transactions, in order, without
// journaling them again. It is meant for startup replay.
func (a *Analytics) Load(txs []*sale.Transaction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ledger = append(a.ledger, txs...)
}

// RecordSale resolves the optional customer, builds the transaction and
// appends it to the ledger. Nothing is appended when any step fails.
func (a *Analytics) RecordSale(ctx context.Context, items []product.Product, customerNo *int) (_ *sale.Transaction, rerr error) {
	ctx, span := a.tracer.Start(ctx, "analytics.RecordSale",
		trace.WithAttributes(attribute.Int("pos.sale.items", len(items))),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	var c *customer.Customer
	if customerNo != nil {
		resolved, err := a.customers.Customer(ctx, *customerNo)
		if err != nil {
			a.reject(ctx, "customer")
			return nil, errors.Wrap(err, "resolve customer")
		}
		c = resolved
	}

	tx, err := sale.New(items, a.now())
	if err != nil {
		a.reject(ctx, "malformed")
		return nil, err
	}
	if c != nil {
		tx.AttachCustomer(c)
	}

	if err := a.commit(ctx, tx); err != nil {
		a.reject(ctx, "journal")
		return nil, errors.Wrap(err, "journal sale")
	}

	a.recorded.Add(ctx, 1, metric.WithAttributes(attribute.Bool("pos.sale.customer", c != nil)))
	a.lg.Debug("Sale recorded",
		zap.String("id", tx.ID()),
		zap.Int("items", tx.ItemCount()),
		zap.Stringer("total", tx.Total()),
		zap.Bool("customer", c != nil),
	)
	return tx, nil
}

// commit journals tx and appends it to the ledger as one step with respect
// to other writers.
func (a *Analytics) commit(ctx context.Context, tx *sale.Transaction) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	if a.journal != nil {
		if err := a.journal.Append(ctx, tx); err != nil {
			return err
		}
	}

	a.mu.Lock()
	a.ledger = append(a.ledger, tx)
	a.mu.Unlock()
	return nil
}

func (a *Analytics) reject(ctx context.Context, reason string) {
	a.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("pos.sale.reject_reason", reason)))
}

// snapshot returns the ledger prefix visible at call time.
func (a *Analytics) snapshot() []*sale.Transaction {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ledger[:len(a.ledger):len(a.ledger)]
}

func (a *Analytics) observe(ctx context.Context, query string, start time.Time) {
	a.queryDur.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("pos.analytics.query", query)),
	)
}

// AllSales returns every recorded transaction in insertion order.
func (a *Analytics) AllSales(ctx context.Context) []*sale.Transaction {
	defer a.observe(ctx, "all_sales", time.Now())
	return slices.Clone(a.snapshot())
}

// SalesByDate counts sold item instances per day since epoch and barcode.
// Multiply a day index by 86400 to get the UNIX timestamp of its midnight.
func (a *Analytics) SalesByDate(ctx context.Context) map[int64]*Counter[int] {
	defer a.observe(ctx, "sales_by_date", time.Now())

	days := make(map[int64]*Counter[int])
	for _, tx := range a.snapshot() {
		day := DayIndex(tx.Timestamp())
		counter, ok := days[day]
		if !ok {
			counter = NewCounter[int]()
			days[day] = counter
		}
		tx.EachItem(func(p product.Product) {
			counter.Inc(p.BarCode)
		})
	}
	return days
}

// DayIndex converts UNIX seconds to whole days since epoch, flooring
// timestamps before the epoch.
func DayIndex(ts int64) int64 {
	day := ts / secondsPerDay
	if ts%secondsPerDay < 0 {
		day--
	}
	return day
}

// SalesByCustomer resolves the customer and returns its transactions in
// insertion order. It fails when the customer does not resolve, even if the
// ledger holds no sales for it.
func (a *Analytics) SalesByCustomer(ctx context.Context, customerNo int) (*customer.Customer, []*sale.Transaction, error) {
	ctx, span := a.tracer.Start(ctx, "analytics.SalesByCustomer",
		trace.WithAttributes(attribute.Int("pos.customer.no", customerNo)),
	)
	defer span.End()
	defer a.observe(ctx, "sales_by_customer", time.Now())

	c, err := a.customers.Customer(ctx, customerNo)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, errors.Wrap(err, "resolve customer")
	}

	sales := make([]*sale.Transaction, 0)
	for _, tx := range a.snapshot() {
		if no, ok := tx.CustomerNo(); ok && no == customerNo {
			sales = append(sales, tx)
		}
	}
	return c, sales, nil
}

// PopularInRange counts item instances per barcode across transactions with
// rangeStart < timestamp < rangeEnd. Both boundaries are excluded.
func (a *Analytics) PopularInRange(ctx context.Context, rangeStart, rangeEnd int64) *Counter[int] {
	defer a.observe(ctx, "popular", time.Now())

	counter := NewCounter[int]()
	for _, tx := range a.snapshot() {
		ts := tx.Timestamp()
		if ts <= rangeStart || ts >= rangeEnd {
			continue
		}
		tx.EachItem(func(p product.Product) {
			counter.Inc(p.BarCode)
		})
	}
	return counter
}

// PopularAmongBonusCustomers counts item instances per barcode for every
// customer that has sales in the ledger, ordered by customer number.
//
// A transaction is skipped only when rangeEnd < timestamp < rangeStart. For
// an ordinary range (rangeStart < rangeEnd) no transaction is excluded. This
// mirrors the established behaviour of the bonus report and is kept until
// the product owner decides otherwise; PopularInRange applies the strict
// range filter.
//
// Customer objects are resolved after the scan. A customer that no longer
// resolves fails the whole query with an InconsistencyError.
func (a *Analytics) PopularAmongBonusCustomers(ctx context.Context, rangeStart, rangeEnd int64) (_ []CustomerSales, rerr error) {
	ctx, span := a.tracer.Start(ctx, "analytics.PopularAmongBonusCustomers")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()
	defer a.observe(ctx, "popular_bonus", time.Now())

	groups := make(map[int]*Counter[int])
	for _, tx := range a.snapshot() {
		ts := tx.Timestamp()
		if ts < rangeStart && ts > rangeEnd {
			continue
		}
		no, ok := tx.CustomerNo()
		if !ok {
			continue
		}
		counter, ok := groups[no]
		if !ok {
			counter = NewCounter[int]()
			groups[no] = counter
		}
		tx.EachItem(func(p product.Product) {
			counter.Inc(p.BarCode)
		})
	}

	nos := make([]int, 0, len(groups))
	for no := range groups {
		nos = append(nos, no)
	}
	slices.Sort(nos)

	out := make([]CustomerSales, len(nos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, no := range nos {
		g.Go(func() error {
			c, err := a.customers.Customer(gctx, no)
			if err != nil {
				if errors.Is(err, customer.ErrNotFound) {
					a.lg.Error("Ledger customer no longer resolves",
						zap.Int("customer_no", no),
						zap.Error(err),
					)
					return &InconsistencyError{CustomerNo: no, Cause: err}
				}
				return errors.Wrapf(err, "resolve customer %d", no)
			}
			out[i] = CustomerSales{Customer: c, Sales: groups[no]}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
