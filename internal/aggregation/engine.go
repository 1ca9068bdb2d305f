package aggregation

import (
	"fmt"

	"github.com/marketpipe/marketpipe/internal/bar"
	"github.com/marketpipe/marketpipe/internal/columnar"
)

// Engine derives every output Frame from a job's 1-minute bars and writes
// each frame's bars through a ColumnarWriter, one file per (frame, trading
// date) partition.
type Engine struct {
	Writer    *columnar.Writer
	Overwrite bool
}

// New constructs an Engine writing through w.
func New(w *columnar.Writer) *Engine {
	return &Engine{Writer: w}
}

// Run derives and writes every Frame's bars for one symbol's completed job.
// It returns the set of file paths written, in frame-then-date order.
func (e *Engine) Run(jobID string, symbol bar.Symbol, oneMinuteBars []bar.OHLCVBar) ([]string, error) {
	var paths []string

	for _, frame := range Frames {
		bucketed, err := Bucket(oneMinuteBars, frame)
		if err != nil {
			return paths, fmt.Errorf("aggregation: bucket frame %s: %w", frame, err)
		}
		if len(bucketed) == 0 {
			continue
		}

		byDay := groupByTradingDate(bucketed)
		for _, day := range sortedDays(byDay) {
			path, err := e.Writer.Write(byDay[day], string(frame), symbol, day, jobID, columnar.WriteOptions{Overwrite: e.Overwrite})
			if err != nil {
				return paths, fmt.Errorf("aggregation: write frame %s day %s: %w", frame, day, err)
			}
			paths = append(paths, path)
		}
	}

	return paths, nil
}

func groupByTradingDate(bars []bar.OHLCVBar) map[bar.TradingDate][]bar.OHLCVBar {
	out := make(map[bar.TradingDate][]bar.OHLCVBar)
	for _, b := range bars {
		day := b.TradingDate()
		out[day] = append(out[day], b)
	}
	return out
}

func sortedDays(byDay map[bar.TradingDate][]bar.OHLCVBar) []bar.TradingDate {
	days := make([]bar.TradingDate, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	for i := 1; i < len(days); i++ {
		for j := i; j > 0 && days[j].Before(days[j-1]); j-- {
			days[j], days[j-1] = days[j-1], days[j]
		}
	}
	return days
}
