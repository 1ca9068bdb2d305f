package columnar_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/marketpipe/marketpipe/internal/bar"
	"github.com/marketpipe/marketpipe/internal/columnar"
)

func sampleBars(t *testing.T, symbol string, day bar.TradingDate, n int) []bar.OHLCVBar {
	t.Helper()
	sym := bar.MustSymbol(symbol)
	base := day.StartOfDay()
	bars := make([]bar.OHLCVBar, 0, n)
	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		b, err := bar.NewOHLCVBar(bar.NewBarParams{
			Symbol:    sym,
			Timestamp: ts,
			Open:      bar.MustPrice(100 + float64(i)*0.01),
			High:      bar.MustPrice(101 + float64(i)*0.01),
			Low:       bar.MustPrice(99 + float64(i)*0.01),
			Close:     bar.MustPrice(100.5 + float64(i)*0.01),
			Volume:    bar.MustVolume(1000),
		})
		if err != nil {
			t.Fatalf("NewOHLCVBar: %v", err)
		}
		bars = append(bars, b)
	}
	return bars
}

func TestWrite_HivePartitionLayout(t *testing.T) {
	root := t.TempDir()
	day := bar.NewTradingDate(2026, 3, 2)
	w := columnar.New(root, columnar.CodecSnappy)

	path, err := w.Write(sampleBars(t, "AAPL", day, 5), "1m", bar.MustSymbol("AAPL"), day, "job-1", columnar.WriteOptions{})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := filepath.Join(root, "frame=1m", "symbol=AAPL", "date=2026-03-02", "job-1.parquet")
	if path != want {
		t.Fatalf("expected path %s, got %s", want, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
}

func TestWrite_RoundTripsRows(t *testing.T) {
	root := t.TempDir()
	day := bar.NewTradingDate(2026, 3, 2)
	w := columnar.New(root, columnar.CodecZstd)

	bars := sampleBars(t, "AAPL", day, 3)
	path, err := w.Write(bars, "1m", bar.MustSymbol("AAPL"), day, "job-1", columnar.WriteOptions{})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	rows, err := parquet.Read[columnar.Row](f, info.Size())
	if err != nil {
		t.Fatalf("parquet.Read: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Symbol != "AAPL" {
		t.Fatalf("expected symbol AAPL, got %s", rows[0].Symbol)
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].TimestampNs <= rows[i-1].TimestampNs {
			t.Fatalf("rows not sorted ascending by timestamp at index %d", i)
		}
	}
}

func TestRead_RoundTripsWhatWriteWrote(t *testing.T) {
	root := t.TempDir()
	day := bar.NewTradingDate(2026, 3, 2)
	w := columnar.New(root, columnar.CodecGzip)

	bars := sampleBars(t, "AAPL", day, 4)
	if _, err := w.Write(bars, "1m", bar.MustSymbol("AAPL"), day, "job-1", columnar.WriteOptions{}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := w.Read("1m", bar.MustSymbol("AAPL"), day, "job-1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != len(bars) {
		t.Fatalf("expected %d bars, got %d", len(bars), len(got))
	}
	for i := range bars {
		if !got[i].Timestamp.Equal(bars[i].Timestamp) || got[i].Close != bars[i].Close {
			t.Fatalf("row %d mismatch: got %+v, want %+v", i, got[i], bars[i])
		}
	}
}

func TestRead_MissingPartitionReturnsError(t *testing.T) {
	root := t.TempDir()
	day := bar.NewTradingDate(2026, 3, 2)
	w := columnar.New(root, columnar.CodecSnappy)

	if _, err := w.Read("1m", bar.MustSymbol("AAPL"), day, "no-such-job"); err == nil {
		t.Fatal("expected an error reading a partition that was never written")
	}
}

func TestWrite_WithoutOverwriteFailsOnExisting(t *testing.T) {
	root := t.TempDir()
	day := bar.NewTradingDate(2026, 3, 2)
	w := columnar.New(root, columnar.CodecSnappy)

	bars := sampleBars(t, "AAPL", day, 2)
	path, err := w.Write(bars, "1m", bar.MustSymbol("AAPL"), day, "job-1", columnar.WriteOptions{})
	if err != nil {
		t.Fatalf("first Write: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	_, err = w.Write(bars, "1m", bar.MustSymbol("AAPL"), day, "job-1", columnar.WriteOptions{Overwrite: false})
	if err != columnar.ErrFileExists {
		t.Fatalf("expected ErrFileExists, got %v", err)
	}

	info2, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat after rejected write: %v", err)
	}
	if info.ModTime() != info2.ModTime() {
		t.Fatal("expected existing file to be untouched by a rejected overwrite")
	}
}

func TestWrite_WithOverwriteReplacesAtomically(t *testing.T) {
	root := t.TempDir()
	day := bar.NewTradingDate(2026, 3, 2)
	w := columnar.New(root, columnar.CodecSnappy)

	path, err := w.Write(sampleBars(t, "AAPL", day, 2), "1m", bar.MustSymbol("AAPL"), day, "job-1", columnar.WriteOptions{})
	if err != nil {
		t.Fatalf("first Write: %v", err)
	}

	path2, err := w.Write(sampleBars(t, "AAPL", day, 5), "1m", bar.MustSymbol("AAPL"), day, "job-1", columnar.WriteOptions{Overwrite: true})
	if err != nil {
		t.Fatalf("overwrite Write: %v", err)
	}
	if path != path2 {
		t.Fatalf("expected same path, got %s and %s", path, path2)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".parquet" && filepath.Ext(e.Name()) != ".lock" {
			t.Fatalf("unexpected leftover file after overwrite: %s", e.Name())
		}
	}
}

func TestWrite_RejectsEmptyRows(t *testing.T) {
	root := t.TempDir()
	day := bar.NewTradingDate(2026, 3, 2)
	w := columnar.New(root, columnar.CodecSnappy)

	_, err := w.Write(nil, "1m", bar.MustSymbol("AAPL"), day, "job-1", columnar.WriteOptions{})
	if err != columnar.ErrEmptyRows {
		t.Fatalf("expected ErrEmptyRows, got %v", err)
	}
}

func TestWrite_RejectsRowOutsideTradingDay(t *testing.T) {
	root := t.TempDir()
	day := bar.NewTradingDate(2026, 3, 2)
	otherDay := bar.NewTradingDate(2026, 3, 3)
	w := columnar.New(root, columnar.CodecSnappy)

	bars := sampleBars(t, "AAPL", otherDay, 1)
	_, err := w.Write(bars, "1m", bar.MustSymbol("AAPL"), day, "job-1", columnar.WriteOptions{})
	if err != columnar.ErrMixedTradingDate {
		t.Fatalf("expected ErrMixedTradingDate, got %v", err)
	}
}

func TestWrite_RejectsUnsupportedCodec(t *testing.T) {
	root := t.TempDir()
	day := bar.NewTradingDate(2026, 3, 2)
	w := columnar.New(root, "brotli")

	_, err := w.Write(sampleBars(t, "AAPL", day, 1), "1m", bar.MustSymbol("AAPL"), day, "job-1", columnar.WriteOptions{})
	if err == nil {
		t.Fatal("expected an error for an unsupported codec")
	}
}
