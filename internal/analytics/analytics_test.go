package analytics

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/cashflow-pos/internal/domain/customer"
	"github.com/xenking/cashflow-pos/internal/domain/product"
	"github.com/xenking/cashflow-pos/internal/domain/sale"
)

type mockRegistry struct {
	mu        sync.Mutex
	customers map[int]*customer.Customer
	err       error
	calls     int
}

func newMockRegistry(cs ...*customer.Customer) *mockRegistry {
	m := &mockRegistry{customers: make(map[int]*customer.Customer)}
	for _, c := range cs {
		m.customers[c.No] = c
	}
	return m
}

func (m *mockRegistry) Customer(_ context.Context, no int) (*customer.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.customers[no]
	if !ok {
		return nil, &customer.NotFoundError{CustomerNo: no}
	}
	return c, nil
}

func (m *mockRegistry) CustomerByCard(context.Context, int64, int, int) (*customer.Customer, error) {
	return nil, &customer.NotFoundError{}
}

func (m *mockRegistry) forget(no int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.customers, no)
}

type mockJournal struct {
	appended []*sale.Transaction
	err      error
}

func (m *mockJournal) Append(_ context.Context, tx *sale.Transaction) error {
	if m.err != nil {
		return m.err
	}
	m.appended = append(m.appended, tx)
	return nil
}

// blockingJournal holds the first Append open after recording it until
// release is closed.
type blockingJournal struct {
	mu       sync.Mutex
	appended []string
	entered  chan struct{}
	release  chan struct{}
}

func newBlockingJournal() *blockingJournal {
	return &blockingJournal{entered: make(chan struct{}), release: make(chan struct{})}
}

func (j *blockingJournal) Append(_ context.Context, tx *sale.Transaction) error {
	j.mu.Lock()
	j.appended = append(j.appended, tx.ID())
	first := len(j.appended) == 1
	j.mu.Unlock()

	if first {
		close(j.entered)
		<-j.release
	}
	return nil
}

func (j *blockingJournal) ids() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.appended)
}

func item(barCode int, price string) product.Product {
	return product.Product{
		ID:      barCode,
		BarCode: barCode,
		Name:    "item",
		Keyword: "misc",
		Price:   decimal.RequireFromString(price),
	}
}

func newTestAnalytics(t *testing.T, reg customer.Registry, opts Options) (*Analytics, *time.Time) {
	t.Helper()
	a, err := New(reg, opts)
	require.NoError(t, err)

	now := time.Unix(100, 0)
	a.now = func() time.Time { return now }
	return a, &now
}

func intPtr(v int) *int { return &v }

func TestRecordSale(t *testing.T) {
	bonus := customer.New(1, customer.BonusCard{Number: 9, GoodThruYear: 2030, GoodThruMonth: 12})
	reg := newMockRegistry(bonus)
	journal := &mockJournal{}
	a, _ := newTestAnalytics(t, reg, Options{Journal: journal})

	tx, err := a.RecordSale(context.Background(), []product.Product{item(10, "1.50")}, intPtr(1))
	require.NoError(t, err)

	assert.Same(t, bonus, tx.Customer())
	assert.Equal(t, int64(100), tx.Timestamp())
	assert.Equal(t, []*sale.Transaction{tx}, a.AllSales(context.Background()))
	assert.Equal(t, []*sale.Transaction{tx}, journal.appended)
}

func TestRecordSale_Rejected(t *testing.T) {
	unavailable := errors.New("registry down")

	tests := []struct {
		name       string
		items      []product.Product
		customerNo *int
		regErr     error
		journalErr error
		wantErr    error
	}{
		{
			name:       "unknown customer",
			items:      []product.Product{item(10, "1")},
			customerNo: intPtr(999),
			wantErr:    customer.ErrNotFound,
		},
		{
			name:    "malformed items",
			items:   []product.Product{{BarCode: 10}},
			wantErr: sale.ErrMalformedSaleData,
		},
		{
			name:    "empty sale",
			items:   nil,
			wantErr: sale.ErrMalformedSaleData,
		},
		{
			name:       "registry failure",
			items:      []product.Product{item(10, "1")},
			customerNo: intPtr(1),
			regErr:     unavailable,
			wantErr:    unavailable,
		},
		{
			name:       "journal failure",
			items:      []product.Product{item(10, "1")},
			journalErr: unavailable,
			wantErr:    unavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newMockRegistry(customer.New(1))
			reg.err = tt.regErr
			a, _ := newTestAnalytics(t, reg, Options{Journal: &mockJournal{err: tt.journalErr}})

			tx, err := a.RecordSale(context.Background(), tt.items, tt.customerNo)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, tx)
			assert.Empty(t, a.AllSales(context.Background()))
		})
	}
}

func TestPopularInRange(t *testing.T) {
	a, now := newTestAnalytics(t, newMockRegistry(), Options{})
	ctx := context.Background()

	*now = time.Unix(100, 0)
	_, err := a.RecordSale(ctx, []product.Product{item(1, "1"), item(2, "1")}, nil)
	require.NoError(t, err)

	*now = time.Unix(150, 0)
	_, err = a.RecordSale(ctx, []product.Product{item(1, "1"), item(1, "1")}, nil)
	require.NoError(t, err)

	*now = time.Unix(200, 0)
	_, err = a.RecordSale(ctx, []product.Product{item(3, "1")}, nil)
	require.NoError(t, err)

	got := a.PopularInRange(ctx, 100, 200)
	assert.Equal(t, map[int]int{1: 2}, got.Map())

	assert.Equal(t, 0, a.PopularInRange(ctx, 200, 100).Len())
	assert.Equal(t, 5, a.PopularInRange(ctx, 0, 1000).Total())
}

func TestSalesByDate(t *testing.T) {
	a, now := newTestAnalytics(t, newMockRegistry(), Options{})
	ctx := context.Background()

	day := int64(secondsPerDay)
	stamps := []int64{day*3 + 10, day*3 + day - 1, day * 4, day*10 + 5}
	for _, ts := range stamps {
		*now = time.Unix(ts, 0)
		_, err := a.RecordSale(ctx, []product.Product{item(7, "2"), item(8, "3")}, nil)
		require.NoError(t, err)
	}

	got := a.SalesByDate(ctx)
	require.Len(t, got, 3)
	assert.Equal(t, map[int]int{7: 2, 8: 2}, got[3].Map())
	assert.Equal(t, map[int]int{7: 1, 8: 1}, got[4].Map())
	assert.Equal(t, map[int]int{7: 1, 8: 1}, got[10].Map())

	total := 0
	for _, c := range got {
		total += c.Total()
	}
	items := 0
	for _, tx := range a.AllSales(ctx) {
		items += tx.ItemCount()
	}
	assert.Equal(t, items, total)
}

func TestDayIndex(t *testing.T) {
	assert.Equal(t, int64(0), DayIndex(0))
	assert.Equal(t, int64(0), DayIndex(secondsPerDay-1))
	assert.Equal(t, int64(1), DayIndex(secondsPerDay))
	assert.Equal(t, int64(-1), DayIndex(-1))
}

func TestSalesByCustomer(t *testing.T) {
	alice := customer.New(1)
	bob := customer.New(2)
	carol := customer.New(3)
	a, _ := newTestAnalytics(t, newMockRegistry(alice, bob, carol), Options{})
	ctx := context.Background()

	first, err := a.RecordSale(ctx, []product.Product{item(1, "1")}, intPtr(1))
	require.NoError(t, err)
	_, err = a.RecordSale(ctx, []product.Product{item(2, "1")}, intPtr(2))
	require.NoError(t, err)
	_, err = a.RecordSale(ctx, []product.Product{item(3, "1")}, nil)
	require.NoError(t, err)
	second, err := a.RecordSale(ctx, []product.Product{item(4, "1")}, intPtr(1))
	require.NoError(t, err)

	c, sales, err := a.SalesByCustomer(ctx, 1)
	require.NoError(t, err)
	assert.Same(t, alice, c)
	assert.Equal(t, []*sale.Transaction{first, second}, sales)

	c, sales, err = a.SalesByCustomer(ctx, 3)
	require.NoError(t, err)
	assert.Same(t, carol, c)
	assert.NotNil(t, sales)
	assert.Empty(t, sales)

	_, _, err = a.SalesByCustomer(ctx, 42)
	require.ErrorIs(t, err, customer.ErrNotFound)
}

func TestPopularAmongBonusCustomers(t *testing.T) {
	reg := newMockRegistry(customer.New(5), customer.New(2))
	a, now := newTestAnalytics(t, reg, Options{})
	ctx := context.Background()

	*now = time.Unix(1000, 0)
	_, err := a.RecordSale(ctx, []product.Product{item(1, "1"), item(1, "1")}, intPtr(5))
	require.NoError(t, err)
	_, err = a.RecordSale(ctx, []product.Product{item(9, "1")}, nil)
	require.NoError(t, err)

	*now = time.Unix(5000, 0)
	_, err = a.RecordSale(ctx, []product.Product{item(2, "1")}, intPtr(2))
	require.NoError(t, err)
	_, err = a.RecordSale(ctx, []product.Product{item(3, "1")}, intPtr(5))
	require.NoError(t, err)

	t.Run("ordinary range keeps every sale", func(t *testing.T) {
		got, err := a.PopularAmongBonusCustomers(ctx, 2000, 3000)
		require.NoError(t, err)
		require.Len(t, got, 2)

		assert.Equal(t, 2, got[0].Customer.No)
		assert.Equal(t, map[int]int{2: 1}, got[0].Sales.Map())
		assert.Equal(t, 5, got[1].Customer.No)
		assert.Equal(t, map[int]int{1: 2, 3: 1}, got[1].Sales.Map())
	})

	t.Run("inverted range excludes interior sales", func(t *testing.T) {
		got, err := a.PopularAmongBonusCustomers(ctx, 6000, 500)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("lost customer is inconsistency", func(t *testing.T) {
		reg.forget(2)
		_, err := a.PopularAmongBonusCustomers(ctx, 0, 10000)
		require.ErrorIs(t, err, ErrInternalConsistency)

		var iErr *InconsistencyError
		require.ErrorAs(t, err, &iErr)
		assert.Equal(t, 2, iErr.CustomerNo)
	})
}

func TestPopularAmongBonusCustomers_RegistryFailure(t *testing.T) {
	reg := newMockRegistry(customer.New(1))
	a, _ := newTestAnalytics(t, reg, Options{})
	ctx := context.Background()

	_, err := a.RecordSale(ctx, []product.Product{item(1, "1")}, intPtr(1))
	require.NoError(t, err)

	down := errors.New("down")
	reg.err = down
	_, err = a.PopularAmongBonusCustomers(ctx, 0, 1000)
	require.ErrorIs(t, err, down)
	assert.NotErrorIs(t, err, ErrInternalConsistency)
}

func TestLoad(t *testing.T) {
	a, _ := newTestAnalytics(t, newMockRegistry(), Options{})

	tx, err := sale.Restore("restored", []product.Product{item(1, "1")}, 50, nil)
	require.NoError(t, err)
	a.Load([]*sale.Transaction{tx})

	got := a.AllSales(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, "restored", got[0].ID())
}

func TestRecordSale_JournalOrderMatchesLedger(t *testing.T) {
	journal := newBlockingJournal()
	a, _ := newTestAnalytics(t, newMockRegistry(), Options{Journal: journal})
	ctx := context.Background()

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, err := a.RecordSale(ctx, []product.Product{item(1, "1")}, nil)
		assert.NoError(t, err)
	}()
	<-journal.entered

	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		_, err := a.RecordSale(ctx, []product.Product{item(2, "1")}, nil)
		assert.NoError(t, err)
	}()

	select {
	case <-secondDone:
		t.Fatal("second sale committed while the first was still being journaled")
	case <-time.After(50 * time.Millisecond):
	}
	// Readers are not blocked by a pending write.
	assert.Empty(t, a.AllSales(ctx))

	close(journal.release)
	<-firstDone
	<-secondDone

	var ledger []string
	for _, tx := range a.AllSales(ctx) {
		ledger = append(ledger, tx.ID())
	}
	require.Len(t, ledger, 2)
	assert.Equal(t, journal.ids(), ledger)
}

func TestConcurrentRecordAndQuery(t *testing.T) {
	a, err := New(newMockRegistry(customer.New(1)), Options{})
	require.NoError(t, err)
	ctx := context.Background()

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWriter {
				_, err := a.RecordSale(ctx, []product.Product{item(1, "1"), item(2, "1")}, intPtr(1))
				assert.NoError(t, err)
			}
		}()
	}
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWriter {
				got := a.PopularInRange(ctx, 0, 1<<62)
				// Every visible transaction is complete.
				assert.Equal(t, got.Get(1), got.Get(2))
				_, err := a.PopularAmongBonusCustomers(ctx, 0, 1<<62)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, a.AllSales(ctx), writers*perWriter)
}
