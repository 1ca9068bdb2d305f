package config_test

import (
	"testing"

	"github.com/marketpipe/marketpipe/internal/config"
)

func validFields() config.Fields {
	return config.Fields{
		ConfigVersion: 1,
		Provider:      "alpaca",
		Symbols:       []string{"aapl", "msft"},
		Start:         "2026-03-01",
		End:           "2026-03-05",
		BatchSize:     500,
		Workers:       4,
		OutputPath:    "/data/marketpipe",
		Compression:   config.CompressionSnappy,
		FeedType:      "1m",
	}
}

func TestNew_ValidFieldsProducesNormalizedSymbols(t *testing.T) {
	cfg, err := config.New(validFields())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.Symbols[0].String() != "AAPL" || cfg.Symbols[1].String() != "MSFT" {
		t.Fatalf("expected uppercased symbols, got %v", cfg.Symbols)
	}
}

func TestNew_RejectsEmptySymbols(t *testing.T) {
	f := validFields()
	f.Symbols = nil
	if _, err := config.New(f); err == nil {
		t.Fatal("expected an error for empty symbols")
	}
}

func TestNew_RejectsEndBeforeStart(t *testing.T) {
	f := validFields()
	f.Start, f.End = "2026-03-05", "2026-03-01"
	if _, err := config.New(f); err == nil {
		t.Fatal("expected an error when end precedes start")
	}
}

func TestNew_RejectsOutOfRangeBatchSize(t *testing.T) {
	f := validFields()
	f.BatchSize = 0
	if _, err := config.New(f); err == nil {
		t.Fatal("expected an error for batch_size below minimum")
	}
	f.BatchSize = 10_001
	if _, err := config.New(f); err == nil {
		t.Fatal("expected an error for batch_size above maximum")
	}
}

func TestNew_RejectsOutOfRangeWorkers(t *testing.T) {
	f := validFields()
	f.Workers = 0
	if _, err := config.New(f); err == nil {
		t.Fatal("expected an error for workers below minimum")
	}
	f.Workers = 33
	if _, err := config.New(f); err == nil {
		t.Fatal("expected an error for workers above maximum")
	}
}

func TestNew_RejectsUnsupportedCompression(t *testing.T) {
	f := validFields()
	f.Compression = "brotli"
	if _, err := config.New(f); err == nil {
		t.Fatal("expected an error for an unsupported compression codec")
	}
}

func TestIngestionConfiguration_MarshalRoundTrips(t *testing.T) {
	cfg, err := config.New(validFields())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data, err := cfg.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	var got config.IngestionConfiguration
	if err := got.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if !cfg.Equal(got) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, cfg)
	}
}

func TestIngestionConfiguration_Dates(t *testing.T) {
	cfg, err := config.New(validFields())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	days := cfg.Dates()
	if len(days) != 5 {
		t.Fatalf("expected 5 days in [2026-03-01, 2026-03-05], got %d: %v", len(days), days)
	}
	if days[0].String() != "2026-03-01" || days[len(days)-1].String() != "2026-03-05" {
		t.Fatalf("unexpected date range bounds: %v", days)
	}
}

func TestIngestionConfiguration_Equal(t *testing.T) {
	a, err := config.New(validFields())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := config.New(validFields())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !a.Equal(b) {
		t.Fatal("expected two configs built from identical fields to be equal")
	}
	f := validFields()
	f.Workers = 8
	c, err := config.New(f)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Equal(c) {
		t.Fatal("expected configs with different worker counts to differ")
	}
}

func TestJobID(t *testing.T) {
	cfg, err := config.New(validFields())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id := config.JobID(cfg.Symbols[0], cfg.Start)
	if id != "AAPL_2026-03-01" {
		t.Fatalf("JobID = %q, want AAPL_2026-03-01", id)
	}
}
