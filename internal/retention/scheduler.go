package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/marketpipe/marketpipe/internal/checkpoint"
	"github.com/marketpipe/marketpipe/internal/logging"
)

// compactor is implemented by checkpoint stores that can reclaim freed
// bbolt pages after a prune. MemoryStore does not implement it; that's fine,
// Sweep.Run only compacts when the assertion succeeds.
type compactor interface {
	Compact(ctx context.Context) error
}

// Sweep is one retention pass: prune stale Parquet partitions under
// FilesRoot and stale checkpoint rows in Store, then compact the
// checkpoint store if it supports it.
type Sweep struct {
	FilesRoot string
	OlderThan time.Duration
	Store     checkpoint.Pruner
	DryRun    bool
	Now       func() time.Time
	Logger    *slog.Logger
}

// Run executes one sweep and logs what it did (or would do, in dry-run mode).
func (s Sweep) Run(ctx context.Context) error {
	logger := logging.Default(s.Logger).With("component", "retention")
	now := s.Now
	if now == nil {
		now = time.Now
	}
	cutoff := now().Add(-s.OlderThan)

	removedFiles, err := PruneFiles(s.FilesRoot, cutoff, s.DryRun)
	if err != nil {
		return fmt.Errorf("retention: prune files: %w", err)
	}
	removedRows, err := PruneDatabase(ctx, s.Store, cutoff, s.DryRun)
	if err != nil {
		return fmt.Errorf("retention: prune database: %w", err)
	}

	verb := "pruned"
	if s.DryRun {
		verb = "would prune"
	}
	logger.Info(verb+" stale partitions and checkpoints",
		"partitions", len(removedFiles), "checkpoints", len(removedRows))

	if s.DryRun {
		return nil
	}
	if c, ok := s.Store.(compactor); ok {
		if err := c.Compact(ctx); err != nil {
			return fmt.Errorf("retention: compact checkpoint store: %w", err)
		}
	}
	return nil
}

// Scheduler runs a Sweep on a cron schedule via gocron, the same scheduling
// library the teacher uses for its own periodic rotation jobs.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// NewScheduler starts a gocron scheduler and registers sweep to run on
// cronExpr (e.g. "0 3 * * *" for a daily 3am sweep). A failing sweep is
// logged, never fatal to the scheduler.
func NewScheduler(cronExpr string, sweep Sweep) (*Scheduler, error) {
	logger := logging.Default(sweep.Logger).With("component", "retention")

	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("retention: create scheduler: %w", err)
	}

	_, err = gs.NewJob(
		gocron.CronJob(cronExpr, true),
		gocron.NewTask(func() {
			if err := sweep.Run(context.Background()); err != nil {
				logger.Error("sweep failed", "error", err)
			}
		}),
		gocron.WithName("retention-sweep"),
	)
	if err != nil {
		_ = gs.Shutdown()
		return nil, fmt.Errorf("retention: register sweep job: %w", err)
	}

	gs.Start()
	return &Scheduler{scheduler: gs, logger: logger}, nil
}

// Stop shuts the scheduler down, waiting for any in-flight sweep to finish.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}
