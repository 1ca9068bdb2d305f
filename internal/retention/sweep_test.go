package retention_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marketpipe/marketpipe/internal/bar"
	"github.com/marketpipe/marketpipe/internal/checkpoint"
	"github.com/marketpipe/marketpipe/internal/retention"
)

func TestSweep_RunPrunesFilesAndCheckpointsTogether(t *testing.T) {
	root := t.TempDir()
	oldDay := bar.NewTradingDate(2026, 1, 1)
	writeSamplePartition(t, root, oldDay, "job-old")

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := checkpoint.NewMemoryStoreWithClock(func() time.Time { return clock })
	if err := store.Save(context.Background(), bar.MustSymbol("AAPL"), oldDay, 1000); err != nil {
		t.Fatalf("Save: %v", err)
	}

	sweep := retention.Sweep{
		FilesRoot: root,
		OlderThan: 30 * 24 * time.Hour,
		Store:     store,
		Now:       func() time.Time { return clock.Add(90 * 24 * time.Hour) },
	}
	if err := sweep.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	oldPath := filepath.Join(root, "frame=1m", "symbol=AAPL", "date=2026-01-01")
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected stale partition to be pruned, stat err=%v", err)
	}
	if _, ok, _ := store.Get(context.Background(), bar.MustSymbol("AAPL"), oldDay); ok {
		t.Fatal("expected stale checkpoint row to be pruned")
	}
}

func TestSweep_DryRunLeavesEverythingInPlace(t *testing.T) {
	root := t.TempDir()
	oldDay := bar.NewTradingDate(2026, 1, 1)
	writeSamplePartition(t, root, oldDay, "job-old")

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := checkpoint.NewMemoryStoreWithClock(func() time.Time { return clock })
	if err := store.Save(context.Background(), bar.MustSymbol("AAPL"), oldDay, 1000); err != nil {
		t.Fatalf("Save: %v", err)
	}

	sweep := retention.Sweep{
		FilesRoot: root,
		OlderThan: 30 * 24 * time.Hour,
		Store:     store,
		DryRun:    true,
		Now:       func() time.Time { return clock.Add(90 * 24 * time.Hour) },
	}
	if err := sweep.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	oldPath := filepath.Join(root, "frame=1m", "symbol=AAPL", "date=2026-01-01")
	if _, err := os.Stat(oldPath); err != nil {
		t.Fatalf("dry run must not remove the partition: %v", err)
	}
	if _, ok, _ := store.Get(context.Background(), bar.MustSymbol("AAPL"), oldDay); !ok {
		t.Fatal("dry run must not remove the checkpoint row")
	}
}

func TestNewScheduler_RegistersAndStopsCleanly(t *testing.T) {
	root := t.TempDir()
	store := checkpoint.NewMemoryStore()

	sweep := retention.Sweep{
		FilesRoot: root,
		OlderThan: 30 * 24 * time.Hour,
		Store:     store,
	}

	sched, err := retention.NewScheduler("0 3 * * *", sweep)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if err := sched.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
