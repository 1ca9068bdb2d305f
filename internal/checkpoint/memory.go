package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/marketpipe/marketpipe/internal/bar"
)

type memoryRecord struct {
	lastTsNs  int64
	updatedAt time.Time
}

// MemoryStore is an in-process Store for tests and single-run CLI usage
// without a durable checkpoint file.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]memoryRecord
	now    func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock constructs an empty MemoryStore whose Save calls
// stamp updatedAt using now, for deterministic retention tests.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{values: make(map[string]memoryRecord), now: now}
}

// Save advances the checkpoint for (symbol, day), rejecting a regression.
func (s *MemoryStore) Save(_ context.Context, symbol bar.Symbol, day bar.TradingDate, lastTsNs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(symbol, day)
	if existing, ok := s.values[k]; ok && existing.lastTsNs > lastTsNs {
		return ErrRegression
	}
	s.values[k] = memoryRecord{lastTsNs: lastTsNs, updatedAt: s.now()}
	return nil
}

// Get returns the stored checkpoint for (symbol, day), if any.
func (s *MemoryStore) Get(_ context.Context, symbol bar.Symbol, day bar.TradingDate) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.values[key(symbol, day)]
	return rec.lastTsNs, ok, nil
}

// PruneOlderThan removes checkpoint rows whose last Save predates cutoff.
func (s *MemoryStore) PruneOlderThan(_ context.Context, cutoff time.Time, dryRun bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for k, rec := range s.values {
		if rec.updatedAt.Before(cutoff) {
			removed = append(removed, k)
		}
	}
	if !dryRun {
		for _, k := range removed {
			delete(s.values, k)
		}
	}
	return removed, nil
}

// Close is a no-op; MemoryStore holds no external resources.
func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
var _ Pruner = (*MemoryStore)(nil)
