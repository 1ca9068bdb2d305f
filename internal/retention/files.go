// Package retention implements the prune_files and prune_database
// operations over a job's Hive-partitioned dataset and its checkpoint
// store, plus a gocron-scheduled periodic sweep that runs both.
package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marketpipe/marketpipe/internal/bar"
)

const (
	framePrefix  = "frame="
	symbolPrefix = "symbol="
	datePrefix   = "date="
)

// PruneFiles walks root's Hive-partitioned dataset
// (frame=<F>/symbol=<S>/date=<YYYY-MM-DD>) and removes every date partition
// whose trading date falls before cutoff. In dryRun mode it reports the
// partition directories that would be removed without deleting anything.
// Only paths discovered by walking root itself are ever removed, so
// deletion never crosses outside root.
func PruneFiles(root string, cutoff time.Time, dryRun bool) ([]string, error) {
	root = filepath.Clean(root)

	frameEntries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("retention: read %s: %w", root, err)
	}

	var stale []string
	for _, frameEntry := range frameEntries {
		if !frameEntry.IsDir() || !strings.HasPrefix(frameEntry.Name(), framePrefix) {
			continue
		}
		framePath := filepath.Join(root, frameEntry.Name())

		symbolEntries, err := os.ReadDir(framePath)
		if err != nil {
			return stale, fmt.Errorf("retention: read %s: %w", framePath, err)
		}
		for _, symEntry := range symbolEntries {
			if !symEntry.IsDir() || !strings.HasPrefix(symEntry.Name(), symbolPrefix) {
				continue
			}
			symbolPath := filepath.Join(framePath, symEntry.Name())

			dateEntries, err := os.ReadDir(symbolPath)
			if err != nil {
				return stale, fmt.Errorf("retention: read %s: %w", symbolPath, err)
			}
			for _, dateEntry := range dateEntries {
				if !dateEntry.IsDir() || !strings.HasPrefix(dateEntry.Name(), datePrefix) {
					continue
				}
				day, err := bar.ParseTradingDate(strings.TrimPrefix(dateEntry.Name(), datePrefix))
				if err != nil {
					continue // not a recognized partition name; leave it alone
				}
				if day.StartOfDay().Time().Before(cutoff) {
					stale = append(stale, filepath.Join(symbolPath, dateEntry.Name()))
				}
			}
		}
	}

	if dryRun {
		return stale, nil
	}
	for _, path := range stale {
		if err := os.RemoveAll(path); err != nil {
			return stale, fmt.Errorf("retention: remove %s: %w", path, err)
		}
	}
	return stale, nil
}
