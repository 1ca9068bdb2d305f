package validation_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/marketpipe/marketpipe/internal/bar"
	"github.com/marketpipe/marketpipe/internal/metrics"
	"github.com/marketpipe/marketpipe/internal/validation"
)

func TestEngine_RunWritesReportAndRecordsMetrics(t *testing.T) {
	sym := bar.MustSymbol("AAPL")
	bars := []bar.OHLCVBar{cleanBar(t, sym, 0), cleanBar(t, sym, 1)}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	eng := validation.New(t.TempDir(), m, "alpaca", "1m")

	result, path, err := eng.Run("job-1", sym, bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.IsValid() {
		t.Fatalf("expected clean result, got %+v", result.Errors)
	}
	if path == "" {
		t.Fatal("expected a non-empty report path")
	}

	var processed dto.Metric
	if err := m.ValidationBarsProcessed.WithLabelValues("alpaca", "1m").Write(&processed); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if processed.GetCounter().GetValue() != 2 {
		t.Fatalf("expected validation_bars_processed == 2, got %v", processed.GetCounter().GetValue())
	}

	var outcome dto.Metric
	if err := m.ValidationOutcomeTotal.WithLabelValues("alpaca", "1m", "success").Write(&outcome); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if outcome.GetCounter().GetValue() != 1 {
		t.Fatalf("expected validation_outcome_total{outcome=success} == 1, got %v", outcome.GetCounter().GetValue())
	}
}
