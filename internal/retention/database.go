package retention

import (
	"context"
	"time"

	"github.com/marketpipe/marketpipe/internal/checkpoint"
)

// PruneDatabase removes checkpoint rows whose last Save predates cutoff,
// delegating to the store's own Pruner implementation. In dryRun mode it
// reports the rows that would be removed without deleting anything.
func PruneDatabase(ctx context.Context, store checkpoint.Pruner, cutoff time.Time, dryRun bool) ([]string, error) {
	return store.PruneOlderThan(ctx, cutoff, dryRun)
}
