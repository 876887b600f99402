// Package storage provides the local key-value store the watchlist persists
// through. The daemon keeps exactly three keys: the watchlist array, the
// valuation mapping and the sort order.
package storage

import "sync"

// Well-known keys.
const (
	KeyWatchlist  = "watchlist"
	KeyValuations = "valuations"
	KeySortOrder  = "sort_order"
)

// KV is a minimal persistent key-value store. Get returns (nil, nil) for a
// missing key; corrupt or missing values are the caller's problem to default.
type KV interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Close() error
}

// Memory is an in-memory KV for tests and for running without a data dir.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *Memory) Close() error { return nil }
