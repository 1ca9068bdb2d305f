// Package config defines IngestionConfiguration, the value object carrying
// provider, symbol universe, date range, worker/batch sizing, output
// location and codec, plus the versioned JSON store that persists it.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/marketpipe/marketpipe/internal/bar"
	"github.com/marketpipe/marketpipe/internal/columnar"
	"github.com/marketpipe/marketpipe/internal/pipelineerr"
)

// CurrentVersion is the only config_version this build understands fully.
const CurrentVersion = 1

// Known compression codecs, mirroring internal/columnar's supported set.
const (
	CompressionSnappy = columnar.CodecSnappy
	CompressionZstd   = columnar.CodecZstd
	CompressionLZ4    = columnar.CodecLZ4
	CompressionGzip   = columnar.CodecGzip
)

const (
	minBatchSize = 1
	maxBatchSize = 10_000
	minWorkers   = 1
	maxWorkers   = 32
)

// DefaultMaxRejectedRowFraction is applied when a config record omits
// max_rejected_row_fraction (including every pre-existing config file
// written before this field existed): up to 5% of a unit's vendor rows may
// be rejected at construction before the unit itself fails.
const DefaultMaxRejectedRowFraction = 0.05

// IngestionConfiguration is the quantised, validated configuration for an
// ingestion run: provider, symbol universe, date range, concurrency and
// output parameters. Construct via New, never by zero-value literal, so
// every field is guaranteed in-range.
type IngestionConfiguration struct {
	ConfigVersion int
	Provider      string
	Symbols       []bar.Symbol
	Start         bar.TradingDate
	End           bar.TradingDate
	BatchSize     int
	Workers       int
	OutputPath    string
	Compression   string
	FeedType      string

	// MaxRejectedRowFraction is the share (0..1, inclusive) of a unit's
	// vendor rows that may fail OHLCVBar construction before the unit
	// itself is failed with DomainViolation rather than just dropping
	// the offending rows.
	MaxRejectedRowFraction float64
}

// Fields is the on-disk JSON shape of IngestionConfiguration: every field is a
// plain marshalable type, converted to/from the domain types by New and
// rawFrom.
type Fields struct {
	ConfigVersion          int      `json:"config_version"`
	Provider               string   `json:"provider"`
	Symbols                []string `json:"symbols"`
	Start                  string   `json:"start"`
	End                    string   `json:"end"`
	BatchSize              int      `json:"batch_size"`
	Workers                int      `json:"workers"`
	OutputPath             string   `json:"output_path"`
	Compression            string   `json:"compression"`
	FeedType               string   `json:"feed_type"`
	MaxRejectedRowFraction float64  `json:"max_rejected_row_fraction"`
}

// New validates r and quantises it into an IngestionConfiguration. Config
// versions outside {1}: unknown (lower than any version this build has
// heard of doesn't exist yet, so in practice zero or unset) warn-tolerant
// values are rejected just like unsupported ones by the caller's version
// check (see Store.Load); New itself only checks the numeric/enum ranges
// for the version it's given.
func New(r Fields) (IngestionConfiguration, error) {
	if r.Provider == "" {
		return IngestionConfiguration{}, pipelineerr.New(pipelineerr.KindConfiguration, "provider is required")
	}
	if len(r.Symbols) == 0 {
		return IngestionConfiguration{}, pipelineerr.New(pipelineerr.KindConfiguration, "symbols must be non-empty")
	}
	symbols := make([]bar.Symbol, 0, len(r.Symbols))
	for _, rawSym := range r.Symbols {
		sym, err := bar.NewSymbol(rawSym)
		if err != nil {
			return IngestionConfiguration{}, pipelineerr.Wrap(pipelineerr.KindConfiguration, fmt.Sprintf("invalid symbol %q", rawSym), err)
		}
		symbols = append(symbols, sym)
	}
	start, err := bar.ParseTradingDate(r.Start)
	if err != nil {
		return IngestionConfiguration{}, pipelineerr.Wrap(pipelineerr.KindConfiguration, "invalid start date", err)
	}
	end, err := bar.ParseTradingDate(r.End)
	if err != nil {
		return IngestionConfiguration{}, pipelineerr.Wrap(pipelineerr.KindConfiguration, "invalid end date", err)
	}
	if end.Before(start) {
		return IngestionConfiguration{}, pipelineerr.New(pipelineerr.KindConfiguration, "end date precedes start date")
	}
	if r.BatchSize < minBatchSize || r.BatchSize > maxBatchSize {
		return IngestionConfiguration{}, pipelineerr.New(pipelineerr.KindConfiguration, fmt.Sprintf("batch_size %d out of range [%d,%d]", r.BatchSize, minBatchSize, maxBatchSize))
	}
	if r.Workers < minWorkers || r.Workers > maxWorkers {
		return IngestionConfiguration{}, pipelineerr.New(pipelineerr.KindConfiguration, fmt.Sprintf("workers %d out of range [%d,%d]", r.Workers, minWorkers, maxWorkers))
	}
	if r.OutputPath == "" {
		return IngestionConfiguration{}, pipelineerr.New(pipelineerr.KindConfiguration, "output_path is required")
	}
	switch r.Compression {
	case CompressionSnappy, CompressionZstd, CompressionLZ4, CompressionGzip:
	default:
		return IngestionConfiguration{}, pipelineerr.New(pipelineerr.KindConfiguration, fmt.Sprintf("unsupported compression %q", r.Compression))
	}
	if r.FeedType == "" {
		return IngestionConfiguration{}, pipelineerr.New(pipelineerr.KindConfiguration, "feed_type is required")
	}
	maxRejectedRowFraction := r.MaxRejectedRowFraction
	if maxRejectedRowFraction == 0 {
		maxRejectedRowFraction = DefaultMaxRejectedRowFraction
	}
	if maxRejectedRowFraction < 0 || maxRejectedRowFraction > 1 {
		return IngestionConfiguration{}, pipelineerr.New(pipelineerr.KindConfiguration, fmt.Sprintf("max_rejected_row_fraction %v out of range [0,1]", r.MaxRejectedRowFraction))
	}

	return IngestionConfiguration{
		ConfigVersion:          r.ConfigVersion,
		Provider:               r.Provider,
		Symbols:                symbols,
		Start:                  start,
		End:                    end,
		BatchSize:              r.BatchSize,
		Workers:                r.Workers,
		OutputPath:             r.OutputPath,
		Compression:            r.Compression,
		FeedType:               r.FeedType,
		MaxRejectedRowFraction: maxRejectedRowFraction,
	}, nil
}

func rawFrom(c IngestionConfiguration) Fields {
	symbols := make([]string, len(c.Symbols))
	for i, s := range c.Symbols {
		symbols[i] = s.String()
	}
	return Fields{
		ConfigVersion:          c.ConfigVersion,
		Provider:               c.Provider,
		Symbols:                symbols,
		Start:                  c.Start.String(),
		End:                    c.End.String(),
		BatchSize:              c.BatchSize,
		Workers:                c.Workers,
		OutputPath:             c.OutputPath,
		Compression:            c.Compression,
		FeedType:               c.FeedType,
		MaxRejectedRowFraction: c.MaxRejectedRowFraction,
	}
}

// MarshalJSON renders the bare config record (no envelope) using the wire
// field names from spec: config_version, provider, symbols, start, end,
// batch_size, workers, output_path, compression, feed_type.
func (c IngestionConfiguration) MarshalJSON() ([]byte, error) {
	return json.Marshal(rawFrom(c))
}

// UnmarshalJSON parses and validates a bare config record.
func (c *IngestionConfiguration) UnmarshalJSON(data []byte) error {
	var r Fields
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	parsed, err := New(r)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// JobID derives a human-readable job identifier for a single-symbol,
// single-day unit, matching the `<symbol>_<yyyy-mm-dd>` convention named
// in spec §4.8.
func JobID(symbol bar.Symbol, day bar.TradingDate) string {
	return fmt.Sprintf("%s_%s", symbol.String(), day.String())
}

// Dates returns every trading date in [Start, End], inclusive.
func (c IngestionConfiguration) Dates() []bar.TradingDate {
	var days []bar.TradingDate
	for d := c.Start; d.Before(c.End) || d.Equal(c.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// Equal reports field-by-field equality, used by the hot-reload watcher to
// decide whether a reloaded file actually changed the effective config.
func (c IngestionConfiguration) Equal(other IngestionConfiguration) bool {
	ra, rb := rawFrom(c), rawFrom(other)
	ba, _ := json.Marshal(ra)
	bb, _ := json.Marshal(rb)
	return string(ba) == string(bb)
}
