// Package watchlist holds the ordered ticker list and the per-symbol
// valuation mapping, persisted through the local key-value store.
package watchlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fundwatch/internal/model"
	"fundwatch/internal/storage"
)

var (
	// ErrInvalidSymbol is returned when a symbol fails the 5-6 digit check.
	ErrInvalidSymbol = errors.New("watchlist: invalid symbol")
	// ErrDuplicate is returned when the symbol is already tracked.
	ErrDuplicate = errors.New("watchlist: symbol already tracked")
)

// Store manages the watchlist and valuation mapping with concurrency safety.
// The ticker slice is ordered (order is display-relevant); the valuation map
// is keyed by symbol. Every committed mutation is saved back to the KV store.
type Store struct {
	mu         sync.Mutex
	kv         storage.KV
	log        zerolog.Logger
	tickers    []model.Ticker
	valuations map[string]model.ValuationData
	sortOrder  model.SortOrder

	// OnSizeChange, when set, is called (outside the lock) after the number
	// of tracked tickers changes. The scheduler uses it to re-arm its timers.
	OnSizeChange func(size int)
}

// NewStore loads persisted state from kv. Corrupt or missing values fall back
// to empty/default rather than failing startup.
func NewStore(kv storage.KV, log zerolog.Logger) *Store {
	s := &Store{
		kv:         kv,
		log:        log.With().Str("component", "watchlist").Logger(),
		valuations: make(map[string]model.ValuationData),
		sortOrder:  model.SortDefault,
	}

	if data, err := kv.Get(storage.KeyWatchlist); err != nil {
		s.log.Warn().Err(err).Msg("load watchlist failed, starting empty")
	} else if len(data) > 0 {
		var tickers []model.Ticker
		if err := json.Unmarshal(data, &tickers); err != nil {
			s.log.Warn().Err(err).Msg("corrupt watchlist value, starting empty")
		} else {
			s.tickers = tickers
		}
	}

	if data, err := kv.Get(storage.KeyValuations); err != nil {
		s.log.Warn().Err(err).Msg("load valuations failed, starting empty")
	} else if len(data) > 0 {
		var vals map[string]model.ValuationData
		if err := json.Unmarshal(data, &vals); err != nil {
			s.log.Warn().Err(err).Msg("corrupt valuations value, starting empty")
		} else {
			s.valuations = vals
		}
	}

	if data, err := kv.Get(storage.KeySortOrder); err == nil && len(data) > 0 {
		s.sortOrder = model.ParseSortOrder(string(data))
	}

	return s
}

// Add validates and appends a new ticker. The display name stays empty until
// the first successful fetch back-fills it.
func (s *Store) Add(symbol string) (model.Ticker, error) {
	if !model.ValidSymbol(symbol) {
		return model.Ticker{}, ErrInvalidSymbol
	}

	s.mu.Lock()
	if s.has(symbol) {
		s.mu.Unlock()
		return model.Ticker{}, ErrDuplicate
	}
	t := model.NewTicker(symbol)
	s.tickers = append(s.tickers, t)
	s.saveTickers()
	size := len(s.tickers)
	s.mu.Unlock()

	s.notifySize(size)
	return t, nil
}

// Remove deletes one ticker and its valuation. Returns false if absent.
func (s *Store) Remove(symbol string) bool {
	return s.RemoveBulk([]string{symbol}) == 1
}

// RemoveBulk deletes the given symbols and their valuations, returning how
// many tickers were actually removed.
func (s *Store) RemoveBulk(symbols []string) int {
	drop := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		drop[sym] = true
	}

	s.mu.Lock()
	kept := s.tickers[:0]
	removed := 0
	for _, t := range s.tickers {
		if drop[t.Symbol] {
			removed++
			delete(s.valuations, t.Symbol)
			continue
		}
		kept = append(kept, t)
	}
	s.tickers = kept
	if removed > 0 {
		s.saveTickers()
		s.saveValuations()
	}
	size := len(s.tickers)
	s.mu.Unlock()

	if removed > 0 {
		s.notifySize(size)
	}
	return removed
}

// SetName back-fills a ticker's display name once a fetch resolved it.
func (s *Store) SetName(symbol, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tickers {
		if s.tickers[i].Symbol == symbol && s.tickers[i].Name == "" {
			s.tickers[i].Name = name
			s.saveTickers()
			return
		}
	}
}

// SetValuation overwrites the valuation record for its symbol wholesale.
func (s *Store) SetValuation(v model.ValuationData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valuations[v.Symbol] = v
	s.saveValuations()
}

// Valuation returns one symbol's record, if a fetch has ever succeeded.
func (s *Store) Valuation(symbol string) (model.ValuationData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.valuations[symbol]
	return v, ok
}

// Valuations returns a copy of the valuation mapping.
func (s *Store) Valuations() map[string]model.ValuationData {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.ValuationData, len(s.valuations))
	for k, v := range s.valuations {
		out[k] = v
	}
	return out
}

// Tickers returns a copy of the ordered watchlist.
func (s *Store) Tickers() []model.Ticker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Ticker, len(s.tickers))
	copy(out, s.tickers)
	return out
}

// Size returns the number of tracked tickers.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickers)
}

// SetSortOrder persists the display sort order.
func (s *Store) SetSortOrder(order model.SortOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sortOrder = order
	if err := s.kv.Put(storage.KeySortOrder, []byte(order)); err != nil {
		s.log.Error().Err(err).Msg("save sort order")
	}
}

// SortOrder returns the persisted display sort order.
func (s *Store) SortOrder() model.SortOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortOrder
}

// Export produces a downloadable JSON document of the watchlist, with a
// filename carrying the current date.
func (s *Store) Export() ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(s.tickers, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("marshal watchlist: %w", err)
	}
	name := "watchlist-" + time.Now().Format("2006-01-02") + ".json"
	return data, name, nil
}

// Import merges a previously exported document. Malformed input leaves state
// untouched; only entries with a valid symbol that are not already tracked
// are added, so importing the same document twice adds nothing the second time.
func (s *Store) Import(data []byte) (int, error) {
	var incoming []model.Ticker
	if err := json.Unmarshal(data, &incoming); err != nil {
		return 0, fmt.Errorf("parse import document: %w", err)
	}

	s.mu.Lock()
	added := 0
	for _, t := range incoming {
		if !model.ValidSymbol(t.Symbol) || s.has(t.Symbol) {
			continue
		}
		if t.ID == "" {
			nt := model.NewTicker(t.Symbol)
			nt.Name = t.Name
			t = nt
		}
		if t.Kind == "" {
			t.Kind = model.MarketFund
		}
		s.tickers = append(s.tickers, t)
		added++
	}
	if added > 0 {
		s.saveTickers()
	}
	size := len(s.tickers)
	s.mu.Unlock()

	if added > 0 {
		s.notifySize(size)
	}
	return added, nil
}

// has reports whether symbol is tracked. Caller must hold the lock.
func (s *Store) has(symbol string) bool {
	for _, t := range s.tickers {
		if t.Symbol == symbol {
			return true
		}
	}
	return false
}

// saveTickers persists the list. Caller must hold the lock.
func (s *Store) saveTickers() {
	data, err := json.Marshal(s.tickers)
	if err == nil {
		err = s.kv.Put(storage.KeyWatchlist, data)
	}
	if err != nil {
		s.log.Error().Err(err).Msg("save watchlist")
	}
}

// saveValuations persists the mapping. Caller must hold the lock.
func (s *Store) saveValuations() {
	data, err := json.Marshal(s.valuations)
	if err == nil {
		err = s.kv.Put(storage.KeyValuations, data)
	}
	if err != nil {
		s.log.Error().Err(err).Msg("save valuations")
	}
}

func (s *Store) notifySize(size int) {
	if s.OnSizeChange != nil {
		s.OnSizeChange(size)
	}
}
