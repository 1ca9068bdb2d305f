// Package checkpoint tracks, per (symbol, trading day), the last ingested
// bar timestamp. Checkpoints outlive jobs and are the sole source of truth
// for resume: a unit whose checkpoint already covers its range is skipped.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/marketpipe/marketpipe/internal/bar"
)

// ErrRegression is returned by Save when lastTsNs would move a checkpoint
// backwards.
var ErrRegression = errors.New("checkpoint: refusing to regress stored timestamp")

// Store persists and retrieves per-(symbol, day) checkpoints. Implementations
// must tolerate concurrent Save calls for different symbols; the
// JobCoordinator never issues concurrent Save calls for the same
// (symbol, day) pair.
type Store interface {
	// Save advances the checkpoint for (symbol, day) to lastTsNs. Save is
	// rejected with ErrRegression if lastTsNs is less than the currently
	// stored value, preserving checkpoint monotonicity.
	Save(ctx context.Context, symbol bar.Symbol, day bar.TradingDate, lastTsNs int64) error

	// Get returns the last checkpointed timestamp for (symbol, day). ok is
	// false if no checkpoint exists yet.
	Get(ctx context.Context, symbol bar.Symbol, day bar.TradingDate) (lastTsNs int64, ok bool, err error)

	// Close releases any underlying resources (file handles, etc).
	Close() error
}

// Pruner is implemented by Store backends that support prune_database: the
// periodic removal of checkpoint rows whose last Save is older than a
// cutoff. Both BoltStore and MemoryStore implement it.
type Pruner interface {
	// PruneOlderThan removes every checkpoint row last saved before cutoff.
	// In dryRun mode it reports the keys that would be removed (as
	// "symbol|date" strings) without deleting anything.
	PruneOlderThan(ctx context.Context, cutoff time.Time, dryRun bool) ([]string, error)
}

// key renders the (symbol, day) pair into the store's persistence key.
func key(symbol bar.Symbol, day bar.TradingDate) string {
	return symbol.String() + "|" + day.String()
}
