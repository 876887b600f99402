package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundwatch/internal/model"
	"fundwatch/internal/storage"
	"fundwatch/internal/watchlist"
)

// fakeClient counts concurrent FetchOne calls and can fail chosen symbols or
// block until released.
type fakeClient struct {
	mu      sync.Mutex
	cur     int
	max     int
	fetched []string
	fail    map[string]bool
	delay   time.Duration
	release chan struct{} // when non-nil, FetchOne blocks until closed
	started chan struct{} // signalled once on first FetchOne
	once    sync.Once
	indices []model.MarketIndex
}

func (f *fakeClient) FetchOne(_ context.Context, symbol string) *model.ValuationData {
	f.mu.Lock()
	f.cur++
	if f.cur > f.max {
		f.max = f.cur
	}
	f.fetched = append(f.fetched, symbol)
	f.mu.Unlock()

	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if f.release != nil {
		<-f.release
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.cur--
	f.mu.Unlock()

	if f.fail[symbol] {
		return nil
	}
	return &model.ValuationData{
		Symbol:       symbol,
		Name:         "fund " + symbol,
		CurrentPrice: 1.23,
	}
}

func (f *fakeClient) FetchIndices(context.Context) []model.MarketIndex {
	return f.indices
}

func newTestStore(t *testing.T, symbols ...string) *watchlist.Store {
	t.Helper()
	store := watchlist.NewStore(storage.NewMemory(), zerolog.Nop())
	for _, sym := range symbols {
		_, err := store.Add(sym)
		require.NoError(t, err)
	}
	return store
}

func TestUpdateMany_ConcurrencyCapAndCounter(t *testing.T) {
	symbols := []string{
		"100001", "100002", "100003", "100004", "100005", "100006",
		"100007", "100008", "100009", "100010", "100011", "100012",
	}
	store := newTestStore(t, symbols...)
	fc := &fakeClient{
		delay: 10 * time.Millisecond,
		fail:  map[string]bool{"100003": true, "100007": true},
	}
	s := New(context.Background(), fc, store, time.Minute, time.Minute, zerolog.Nop())

	s.UpdateMany(context.Background(), store.Tickers())

	assert.LessOrEqual(t, fc.max, 5, "no more than 5 fetches in flight")
	assert.Equal(t, 0, s.InFlight(), "counter returns to zero despite failures")
	assert.Len(t, fc.fetched, 12, "every ticker pulled exactly once")

	// Successful fetches landed in the valuation mapping, failed ones did not.
	vals := store.Valuations()
	assert.Len(t, vals, 10)
	_, ok := vals["100003"]
	assert.False(t, ok)
}

func TestUpdateMany_EmptyInputIsNoop(t *testing.T) {
	store := newTestStore(t)
	fc := &fakeClient{}
	s := New(context.Background(), fc, store, time.Minute, time.Minute, zerolog.Nop())

	s.UpdateMany(context.Background(), nil)
	assert.Equal(t, 0, s.InFlight())
	assert.Empty(t, fc.fetched)
}

func TestUpdateMany_BackfillsName(t *testing.T) {
	store := newTestStore(t, "100001")
	fc := &fakeClient{}
	s := New(context.Background(), fc, store, time.Minute, time.Minute, zerolog.Nop())

	s.UpdateMany(context.Background(), store.Tickers())

	tickers := store.Tickers()
	require.Len(t, tickers, 1)
	assert.Equal(t, "fund 100001", tickers[0].Name)
}

func TestRefreshAll_SuppressesConcurrentTrigger(t *testing.T) {
	store := newTestStore(t, "100001")
	fc := &fakeClient{
		release: make(chan struct{}),
		started: make(chan struct{}),
		indices: []model.MarketIndex{{Name: "上证指数", Value: 3091.2}},
	}
	s := New(context.Background(), fc, store, time.Minute, time.Minute, zerolog.Nop())

	done := make(chan bool, 1)
	go func() {
		done <- s.RefreshAll(context.Background())
	}()

	<-fc.started
	assert.True(t, s.Refreshing())
	assert.False(t, s.RefreshAll(context.Background()), "duplicate trigger suppressed")

	close(fc.release)
	assert.True(t, <-done)
	assert.False(t, s.Refreshing(), "flag cleared after completion")
	assert.Equal(t, fc.indices, s.Indices(), "index branch ran too")
}

func TestRefreshIndices_ReplacesWholesale(t *testing.T) {
	store := newTestStore(t)
	fc := &fakeClient{indices: []model.MarketIndex{{Name: "上证指数"}, {Name: "创业板指"}}}
	s := New(context.Background(), fc, store, time.Minute, time.Minute, zerolog.Nop())

	s.RefreshIndices(context.Background())
	assert.Len(t, s.Indices(), 2)

	fc.indices = nil
	s.RefreshIndices(context.Background())
	assert.Empty(t, s.Indices())
}

func TestStartRearmStop(t *testing.T) {
	store := newTestStore(t)
	fc := &fakeClient{}
	s := New(context.Background(), fc, store, time.Minute, time.Minute, zerolog.Nop())

	s.Start()
	s.Rearm(3)
	s.Rearm(0)
	s.Stop()
}
