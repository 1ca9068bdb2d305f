package validation

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// WriteReport persists result as a CSV audit file at
// <reportsRoot>/<jobID>/<jobID>_<symbol>.csv, with columns
// {symbol, ts_ns, reason}. A clean result still produces a file containing
// only the header row.
func WriteReport(reportsRoot, jobID string, result Result) (string, error) {
	dir := filepath.Join(reportsRoot, jobID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("validation: mkdir %s: %w", dir, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", jobID, result.Symbol.String()))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("validation: create report %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"symbol", "ts_ns", "reason"}); err != nil {
		return "", fmt.Errorf("validation: write header: %w", err)
	}
	for _, e := range result.Errors {
		row := []string{result.Symbol.String(), fmt.Sprintf("%d", e.TimestampNs), e.Reason}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("validation: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("validation: flush: %w", err)
	}

	return path, nil
}
