package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMetrics_RecordRequestIncrementsCounterAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordRequest("alpaca", "alpaca", "1m", 50*time.Millisecond)

	got := counterValue(t, m.RequestsTotal.WithLabelValues("alpaca", "alpaca", "1m"))
	if got != 1 {
		t.Fatalf("expected requests_total == 1, got %v", got)
	}
}

func TestMetrics_RecordErrorIncrementsByStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordError("alpaca", "alpaca", "1m", "429")
	m.RecordError("alpaca", "alpaca", "1m", "429")
	m.RecordError("alpaca", "alpaca", "1m", "500")

	got429 := counterValue(t, m.ErrorsTotal.WithLabelValues("alpaca", "alpaca", "1m", "429"))
	if got429 != 2 {
		t.Fatalf("expected errors_total{status=429} == 2, got %v", got429)
	}
	got500 := counterValue(t, m.ErrorsTotal.WithLabelValues("alpaca", "alpaca", "1m", "500"))
	if got500 != 1 {
		t.Fatalf("expected errors_total{status=500} == 1, got %v", got500)
	}
}

func TestMetrics_RecordDataQualityIssue(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordDataQualityIssue("AAPL", "ohlc_inconsistency")

	got := counterValue(t, m.DataQualityTotal.WithLabelValues("AAPL", "ohlc_inconsistency"))
	if got != 1 {
		t.Fatalf("expected data_quality_total == 1, got %v", got)
	}
}

func TestMetrics_SetBacklog(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetBacklog("AAPL", 7)

	var out dto.Metric
	if err := m.IngestionBacklog.WithLabelValues("AAPL").Write(&out); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if out.GetGauge().GetValue() != 7 {
		t.Fatalf("expected backlog gauge == 7, got %v", out.GetGauge().GetValue())
	}
}
