package validation

import (
	"github.com/marketpipe/marketpipe/internal/bar"
	"github.com/marketpipe/marketpipe/internal/metrics"
)

// Engine runs Validate against a symbol's bars, writes its CSV report, and
// records the validation_bars_processed_total/validation_errors_found_total/
// validation_outcome_total metrics.
type Engine struct {
	ReportsRoot string
	Metrics     *metrics.Metrics
	Provider    string
	Feed        string
}

// New constructs an Engine writing reports under reportsRoot.
func New(reportsRoot string, m *metrics.Metrics, provider, feed string) *Engine {
	return &Engine{ReportsRoot: reportsRoot, Metrics: m, Provider: provider, Feed: feed}
}

// Run validates one symbol's bars, writes its report, and emits metrics.
// It never returns an error for data-quality violations — those are
// captured in the returned Result and the report file; an error return
// means the report itself could not be written.
func (e *Engine) Run(jobID string, symbol bar.Symbol, bars []bar.OHLCVBar) (Result, string, error) {
	result := Validate(symbol, bars)

	path, err := WriteReport(e.ReportsRoot, jobID, result)
	if err != nil {
		return result, "", err
	}

	if e.Metrics != nil {
		e.Metrics.RecordValidation(e.Provider, e.Feed, result.TotalBarsExamined, len(result.Errors), result.IsValid())
	}

	return result, path, nil
}
