package retention_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marketpipe/marketpipe/internal/bar"
	"github.com/marketpipe/marketpipe/internal/columnar"
	"github.com/marketpipe/marketpipe/internal/retention"
)

func writeSamplePartition(t *testing.T, root string, day bar.TradingDate, jobID string) {
	t.Helper()
	sym := bar.MustSymbol("AAPL")
	b, err := bar.NewOHLCVBar(bar.NewBarParams{
		Symbol:    sym,
		Timestamp: day.StartOfDay(),
		Open:      bar.MustPrice(100),
		High:      bar.MustPrice(101),
		Low:       bar.MustPrice(99),
		Close:     bar.MustPrice(100.5),
		Volume:    bar.MustVolume(10),
	})
	if err != nil {
		t.Fatalf("NewOHLCVBar: %v", err)
	}
	w := columnar.New(root, columnar.CodecSnappy)
	if _, err := w.Write([]bar.OHLCVBar{b}, "1m", sym, day, jobID, columnar.WriteOptions{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestPruneFiles_DryRunReportsWithoutDeleting(t *testing.T) {
	root := t.TempDir()
	oldDay := bar.NewTradingDate(2026, 1, 1)
	freshDay := bar.NewTradingDate(2026, 3, 30)
	writeSamplePartition(t, root, oldDay, "job-old")
	writeSamplePartition(t, root, freshDay, "job-fresh")

	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	removed, err := retention.PruneFiles(root, cutoff, true)
	if err != nil {
		t.Fatalf("PruneFiles: %v", err)
	}
	if len(removed) != 1 {
		t.Fatalf("expected 1 stale partition reported, got %d: %v", len(removed), removed)
	}

	oldPath := filepath.Join(root, "frame=1m", "symbol=AAPL", "date=2026-01-01")
	if _, err := os.Stat(oldPath); err != nil {
		t.Fatalf("dry run must not delete the stale partition: %v", err)
	}
}

func TestPruneFiles_RemovesOnlyStalePartitions(t *testing.T) {
	root := t.TempDir()
	oldDay := bar.NewTradingDate(2026, 1, 1)
	freshDay := bar.NewTradingDate(2026, 3, 30)
	writeSamplePartition(t, root, oldDay, "job-old")
	writeSamplePartition(t, root, freshDay, "job-fresh")

	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	removed, err := retention.PruneFiles(root, cutoff, false)
	if err != nil {
		t.Fatalf("PruneFiles: %v", err)
	}
	if len(removed) != 1 {
		t.Fatalf("expected 1 partition removed, got %d: %v", len(removed), removed)
	}

	oldPath := filepath.Join(root, "frame=1m", "symbol=AAPL", "date=2026-01-01")
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected stale partition to be removed, stat err=%v", err)
	}

	freshPath := filepath.Join(root, "frame=1m", "symbol=AAPL", "date=2026-03-30")
	if _, err := os.Stat(freshPath); err != nil {
		t.Fatalf("expected fresh partition to survive, stat err=%v", err)
	}
}

func TestPruneFiles_MissingRootIsNotAnError(t *testing.T) {
	root := filepath.Join(t.TempDir(), "does-not-exist")
	removed, err := retention.PruneFiles(root, time.Now(), false)
	if err != nil {
		t.Fatalf("expected a missing root to be a no-op, got %v", err)
	}
	if len(removed) != 0 {
		t.Fatalf("expected nothing removed, got %v", removed)
	}
}

func TestPruneFiles_IgnoresUnrecognizedDirectoryNames(t *testing.T) {
	root := t.TempDir()
	// A stray directory that doesn't match the date= partition convention.
	if err := os.MkdirAll(filepath.Join(root, "frame=1m", "symbol=AAPL", "scratch"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	removed, err := retention.PruneFiles(root, time.Now().Add(100*365*24*time.Hour), false)
	if err != nil {
		t.Fatalf("PruneFiles: %v", err)
	}
	if len(removed) != 0 {
		t.Fatalf("expected unrecognized directories to be left alone, got %v", removed)
	}
	if _, err := os.Stat(filepath.Join(root, "frame=1m", "symbol=AAPL", "scratch")); err != nil {
		t.Fatalf("expected scratch directory to survive: %v", err)
	}
}
