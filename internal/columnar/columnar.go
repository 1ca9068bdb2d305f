// Package columnar writes validated bar rows to a Hive-partitioned Parquet
// dataset, serialising concurrent writers to the same target path with a
// sidecar lock file.
package columnar

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/parquet-go/parquet-go"

	"github.com/marketpipe/marketpipe/internal/bar"
)

// Codec names accepted in configuration.
const (
	CodecSnappy = "snappy"
	CodecZstd   = "zstd"
	CodecLZ4    = "lz4"
	CodecGzip   = "gzip"
)

// RowGroupSize is the maximum number of rows per Parquet row group.
const RowGroupSize = 10_000

const lockSuffix = ".lock"

// ErrFileExists is returned by Write when overwrite is false and a file
// already exists at the target partition path.
var ErrFileExists = errors.New("columnar: target file already exists")

// ErrEmptyRows is returned by Write when called with no rows.
var ErrEmptyRows = errors.New("columnar: row set must not be empty")

// ErrMixedTradingDate is returned when a row's trading date does not match
// the partition's trading day.
var ErrMixedTradingDate = errors.New("columnar: row trading date does not match partition day")

// Row is the schema written to each Parquet file.
type Row struct {
	Symbol      string   `parquet:"symbol,dict"`
	TimestampNs int64    `parquet:"ts_ns"`
	Open        float64  `parquet:"open"`
	High        float64  `parquet:"high"`
	Low         float64  `parquet:"low"`
	Close       float64  `parquet:"close"`
	Volume      int64    `parquet:"volume"`
	TradeCount  *int32   `parquet:"trade_count,optional"`
	VWAP        *float64 `parquet:"vwap,optional"`
}

// Writer writes partitioned Parquet files under Root, one file per
// (frame, symbol, trading day, job_id).
type Writer struct {
	Root  string
	Codec string
}

// New constructs a Writer rooted at root, using codec for every write.
// WriteOptions carries no codec; it cannot be changed per call.
func New(root, codec string) *Writer {
	return &Writer{Root: root, Codec: codec}
}

// WriteOptions controls a single Write call.
type WriteOptions struct {
	Overwrite bool
}

// Write serialises bars (sorted ascending by timestamp) to the partition
// addressed by (frame, symbol, day, jobID), returning the file path written.
func (w *Writer) Write(bars []bar.OHLCVBar, frame string, symbol bar.Symbol, day bar.TradingDate, jobID string, opts WriteOptions) (string, error) {
	if len(bars) == 0 {
		return "", ErrEmptyRows
	}

	sorted := make([]bar.OHLCVBar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.UnixNano() < sorted[j].Timestamp.UnixNano() })

	for _, b := range sorted {
		if !b.TradingDate().Equal(day) {
			return "", ErrMixedTradingDate
		}
	}

	dir := filepath.Join(w.Root, "frame="+frame, "symbol="+symbol.String(), "date="+day.String())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("columnar: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, jobID+".parquet")

	unlock, err := acquireLock(path)
	if err != nil {
		return "", err
	}
	defer unlock()

	if _, err := os.Stat(path); err == nil {
		if !opts.Overwrite {
			return "", ErrFileExists
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("columnar: stat %s: %w", path, err)
	}

	if err := writeAtomic(path, sorted, w.Codec); err != nil {
		return "", err
	}
	return path, nil
}

// Read loads back the bars written to the partition addressed by (frame,
// symbol, day, jobID), the inverse of Write. Used by the validate and
// aggregate operations, which re-run against an already-ingested job's
// 1-minute partitions rather than freshly fetched vendor rows.
func (w *Writer) Read(frame string, symbol bar.Symbol, day bar.TradingDate, jobID string) ([]bar.OHLCVBar, error) {
	path := filepath.Join(w.Root, "frame="+frame, "symbol="+symbol.String(), "date="+day.String(), jobID+".parquet")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("columnar: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("columnar: stat %s: %w", path, err)
	}

	rows, err := parquet.Read[Row](f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("columnar: read %s: %w", path, err)
	}

	bars := make([]bar.OHLCVBar, 0, len(rows))
	for _, row := range rows {
		b, err := fromParquetRow(row)
		if err != nil {
			return nil, fmt.Errorf("columnar: decode row in %s: %w", path, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// acquireLock takes an exclusive, blocking lock on path+".lock", creating it
// if necessary. The returned func releases the lock and closes the file.
func acquireLock(path string) (func(), error) {
	lockPath := path + lockSuffix
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("columnar: open lock %s: %w", lockPath, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("columnar: lock %s: %w", lockPath, err)
	}
	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
	}, nil
}

// writeAtomic writes bars as Parquet to a temp file in dir(path), then
// renames it over path. A failure at any point leaves path untouched.
func writeAtomic(path string, bars []bar.OHLCVBar, codec string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".columnar-*.parquet")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	compression, err := codecFor(codec)
	if err != nil {
		cleanup()
		return err
	}

	writer := parquet.NewGenericWriter[Row](tmp,
		parquet.Compression(compression),
		parquet.MaxRowsPerRowGroup(RowGroupSize),
	)

	out := make([]Row, len(bars))
	for i, b := range bars {
		out[i] = toParquetRow(b)
	}

	if _, err := writer.Write(out); err != nil {
		cleanup()
		return fmt.Errorf("columnar: write rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		cleanup()
		return fmt.Errorf("columnar: close writer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("columnar: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("columnar: rename into place: %w", err)
	}
	return nil
}

func codecFor(name string) (parquet.Compression, error) {
	switch name {
	case CodecSnappy, "":
		return parquet.Snappy, nil
	case CodecZstd:
		return parquet.Zstd, nil
	case CodecLZ4:
		return parquet.Lz4Raw, nil
	case CodecGzip:
		return parquet.Gzip, nil
	default:
		return nil, fmt.Errorf("columnar: unsupported codec %q", name)
	}
}

func fromParquetRow(r Row) (bar.OHLCVBar, error) {
	symbol, err := bar.NewSymbol(r.Symbol)
	if err != nil {
		return bar.OHLCVBar{}, err
	}
	open, err := bar.NewPrice(r.Open)
	if err != nil {
		return bar.OHLCVBar{}, err
	}
	high, err := bar.NewPrice(r.High)
	if err != nil {
		return bar.OHLCVBar{}, err
	}
	low, err := bar.NewPrice(r.Low)
	if err != nil {
		return bar.OHLCVBar{}, err
	}
	closeP, err := bar.NewPrice(r.Close)
	if err != nil {
		return bar.OHLCVBar{}, err
	}
	volume, err := bar.NewVolume(r.Volume)
	if err != nil {
		return bar.OHLCVBar{}, err
	}

	params := bar.NewBarParams{
		Symbol:    symbol,
		Timestamp: bar.TimestampFromNanos(r.TimestampNs),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
		Volume:    volume,
	}
	if r.TradeCount != nil {
		tc := int64(*r.TradeCount)
		params.TradeCount = &tc
	}
	if r.VWAP != nil {
		vwap, err := bar.NewPrice(*r.VWAP)
		if err != nil {
			return bar.OHLCVBar{}, err
		}
		params.VWAP = &vwap
	}
	return bar.NewOHLCVBar(params)
}

func toParquetRow(b bar.OHLCVBar) Row {
	pr := Row{
		Symbol:      b.Symbol.String(),
		TimestampNs: b.Timestamp.UnixNano(),
		Open:        b.Open.Float64(),
		High:        b.High.Float64(),
		Low:         b.Low.Float64(),
		Close:       b.Close.Float64(),
		Volume:      b.Volume.Int64(),
	}
	if b.TradeCount != nil {
		tc := int32(*b.TradeCount)
		pr.TradeCount = &tc
	}
	if b.VWAP != nil {
		v := b.VWAP.Float64()
		pr.VWAP = &v
	}
	return pr
}
