// Package scheduler drives periodic and on-demand refreshes: a bounded worker
// pool updates tracked tickers, and cron timers re-trigger full and index-only
// refresh cycles.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"fundwatch/internal/model"
	"fundwatch/internal/watchlist"
)

// workerCap bounds how many fetch chains run at once, purely to avoid
// hammering public relay services.
const workerCap = 5

// Fetcher is the data client surface the scheduler needs.
type Fetcher interface {
	FetchOne(ctx context.Context, symbol string) *model.ValuationData
	FetchIndices(ctx context.Context) []model.MarketIndex
}

// Scheduler owns the refresh lifecycle. Timers start with Start, are re-armed
// via Rearm whenever the watchlist size changes, and are cleared by Stop.
type Scheduler struct {
	cron   *cron.Cron
	client Fetcher
	store  *watchlist.Store
	log    zerolog.Logger
	ctx    context.Context

	refreshEvery time.Duration
	indexEvery   time.Duration

	inFlight   atomic.Int64
	refreshing atomic.Bool

	mu      sync.Mutex
	indices []model.MarketIndex
	entries []cron.EntryID
}

// New creates a Scheduler. refreshEvery re-triggers full refreshes,
// indexEvery re-triggers the faster index-only refresh.
func New(ctx context.Context, client Fetcher, store *watchlist.Store, refreshEvery, indexEvery time.Duration, log zerolog.Logger) *Scheduler {
	if refreshEvery <= 0 {
		refreshEvery = 2 * time.Minute
	}
	if indexEvery <= 0 {
		indexEvery = 30 * time.Second
	}
	return &Scheduler{
		cron:         cron.New(),
		client:       client,
		store:        store,
		log:          log.With().Str("component", "scheduler").Logger(),
		ctx:          ctx,
		refreshEvery: refreshEvery,
		indexEvery:   indexEvery,
	}
}

// UpdateMany refreshes the given tickers through a fixed-size worker pool.
// The in-flight counter is bumped by the batch size up front so the UI can
// show progress, and decremented once per completed item whether or not the
// fetch succeeded.
func (s *Scheduler) UpdateMany(ctx context.Context, tickers []model.Ticker) {
	if len(tickers) == 0 {
		return
	}
	s.inFlight.Add(int64(len(tickers)))

	workers := workerCap
	if len(tickers) < workers {
		workers = len(tickers)
	}

	var (
		queueMu sync.Mutex
		next    int
		wg      sync.WaitGroup
	)
	pull := func() (model.Ticker, bool) {
		queueMu.Lock()
		defer queueMu.Unlock()
		if next >= len(tickers) {
			return model.Ticker{}, false
		}
		t := tickers[next]
		next++
		return t, true
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				t, ok := pull()
				if !ok {
					return
				}
				s.updateOne(ctx, t)
				s.decrement()
			}
		}()
	}
	wg.Wait()
}

func (s *Scheduler) updateOne(ctx context.Context, t model.Ticker) {
	v := s.client.FetchOne(ctx, t.Symbol)
	if v == nil {
		return
	}
	s.store.SetValuation(*v)
	if t.Name == "" && v.Name != "" {
		s.store.SetName(t.Symbol, v.Name)
	}
}

// decrement lowers the in-flight counter by one, floored at zero.
func (s *Scheduler) decrement() {
	for {
		cur := s.inFlight.Load()
		if cur <= 0 {
			return
		}
		if s.inFlight.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// InFlight reports how many batch items are still pending.
func (s *Scheduler) InFlight() int {
	return int(s.inFlight.Load())
}

// Refreshing reports whether a full refresh cycle is in progress.
func (s *Scheduler) Refreshing() bool {
	return s.refreshing.Load()
}

// RefreshAll runs a full watchlist update and an index refresh concurrently.
// A refresh already in progress suppresses the duplicate trigger; the flag is
// cleared when both branches finish, regardless of partial failures inside.
func (s *Scheduler) RefreshAll(ctx context.Context) bool {
	if !s.refreshing.CompareAndSwap(false, true) {
		s.log.Debug().Msg("refresh already in progress, trigger suppressed")
		return false
	}
	defer s.refreshing.Store(false)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.UpdateMany(ctx, s.store.Tickers())
	}()
	go func() {
		defer wg.Done()
		s.RefreshIndices(ctx)
	}()
	wg.Wait()
	return true
}

// RefreshIndices polls the index snapshots, replacing the previous set wholesale.
func (s *Scheduler) RefreshIndices(ctx context.Context) {
	indices := s.client.FetchIndices(ctx)
	s.mu.Lock()
	s.indices = indices
	s.mu.Unlock()
}

// Indices returns the snapshot from the most recent index poll.
func (s *Scheduler) Indices() []model.MarketIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.MarketIndex, len(s.indices))
	copy(out, s.indices)
	return out
}

// Start arms the periodic timers and starts the cron loop.
func (s *Scheduler) Start() {
	s.arm()
	s.cron.Start()
	s.log.Info().
		Dur("refresh_every", s.refreshEvery).
		Dur("index_every", s.indexEvery).
		Msg("scheduler started")
}

// Rearm resets both timers. Called whenever the watchlist size changes so the
// next cycle reflects the new list promptly.
func (s *Scheduler) Rearm(size int) {
	s.mu.Lock()
	for _, id := range s.entries {
		s.cron.Remove(id)
	}
	s.entries = s.entries[:0]
	s.mu.Unlock()

	s.arm()
	s.log.Debug().Int("watchlist_size", size).Msg("timers re-armed")
}

func (s *Scheduler) arm() {
	refresh := s.cron.Schedule(cron.Every(s.refreshEvery), cron.FuncJob(func() {
		s.RefreshAll(s.ctx)
	}))
	index := s.cron.Schedule(cron.Every(s.indexEvery), cron.FuncJob(func() {
		s.RefreshIndices(s.ctx)
	}))

	s.mu.Lock()
	s.entries = append(s.entries, refresh, index)
	s.mu.Unlock()
}

// Stop clears the timers. In-flight fetches are not cancelled; a stale cycle
// completes and is superseded by state.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.log.Info().Msg("scheduler stopped")
}
