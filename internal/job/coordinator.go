package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/marketpipe/marketpipe/internal/bar"
	"github.com/marketpipe/marketpipe/internal/checkpoint"
	"github.com/marketpipe/marketpipe/internal/columnar"
	"github.com/marketpipe/marketpipe/internal/eventbus"
	"github.com/marketpipe/marketpipe/internal/logging"
	"github.com/marketpipe/marketpipe/internal/metrics"
	"github.com/marketpipe/marketpipe/internal/pipelineerr"
	"github.com/marketpipe/marketpipe/internal/vendor"
)

// Unit is one (symbol, trading day) work item.
type Unit struct {
	Symbol bar.Symbol
	Day    bar.TradingDate
}

// Result is a job's aggregate outcome, reported once every unit has run.
type Result struct {
	SuccessCount int
	FailedCount  int
	RowsWritten  int
	Errors       []string
}

// Coordinator plans, dispatches, and supervises a job's work units: it
// rate-limits and fetches each unit via VendorClient, appends fetched bars
// to a per-(symbol,day) SymbolBarsAggregate, writes them through
// ColumnarWriter, advances the CheckpointStore, and publishes lifecycle
// events — all before deciding the job's terminal state.
type Coordinator struct {
	Vendor                 *vendor.Client
	Checkpoint             checkpoint.Store
	Writer                 *columnar.Writer
	Bus                    *eventbus.Bus
	Metrics                *metrics.Metrics
	Workers                int
	Overwrite              bool
	MaxRejectedRowFraction float64
	Logger                 *slog.Logger
}

// DefaultMaxRejectedRowFraction mirrors config.DefaultMaxRejectedRowFraction:
// a Coordinator constructed without an explicit fraction (e.g. directly in a
// test) still applies the same 5% tolerance the CLI-wired path defaults to.
const DefaultMaxRejectedRowFraction = 0.05

// New constructs a Coordinator. Workers is clamped to [1, 32] per the
// configured worker-count range; zero defaults to 3. MaxRejectedRowFraction
// defaults to DefaultMaxRejectedRowFraction when zero.
func New(c Coordinator) *Coordinator {
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.Workers > 32 {
		c.Workers = 32
	}
	if c.MaxRejectedRowFraction == 0 {
		c.MaxRejectedRowFraction = DefaultMaxRejectedRowFraction
	}
	c.Logger = logging.Default(c.Logger).With("component", "jobcoordinator")
	return &c
}

// Plan enumerates (symbol, day) work units for symbols over r, in
// deterministic symbol-then-day order. Weekend days are not filtered here;
// the vendor's empty response for a non-trading day is a valid zero-row
// outcome handled by the unit pipeline.
func Plan(symbols []bar.Symbol, r bar.TimeRange) []Unit {
	days := r.Days()
	units := make([]Unit, 0, len(symbols)*len(days))
	for _, s := range symbols {
		for _, d := range days {
			units = append(units, Unit{Symbol: s, Day: d})
		}
	}
	return units
}

// Run executes j's plan to completion: it dispatches up to c.Workers units
// concurrently, skipping any unit a checkpoint already covers, then
// transitions j to Completed or Failed per the partial-failure policy
// (Completed if at least one unit succeeded, Failed if none did). If ctx is
// cancelled before every dispatched unit has returned, j transitions to
// Cancelled instead and Run returns ctx.Err() alongside whatever partial
// Result the units that did finish produced.
func (c *Coordinator) Run(ctx context.Context, j *IngestionJob) (Result, error) {
	if err := j.Start(); err != nil {
		return Result{}, err
	}
	c.Bus.PublishAll(j.PendingEvents())

	units := Plan(j.Symbols, j.Range)

	pending := make(map[string]int)
	for _, u := range units {
		pending[u.Symbol.String()]++
	}
	for sym, n := range pending {
		c.Metrics.SetBacklog(sym, n)
	}

	type unitOutcome struct {
		unit      Unit
		skipped   bool
		rows      int
		partition string
		err       error
	}
	outcomes := make([]unitOutcome, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Workers)

	for i, u := range units {
		i, u := i, u
		g.Go(func() error {
			rows, partition, skipped, err := c.runUnit(gctx, j.ID, u)
			outcomes[i] = unitOutcome{unit: u, skipped: skipped, rows: rows, partition: partition, err: err}
			pending[u.Symbol.String()]--
			if pending[u.Symbol.String()] < 0 {
				pending[u.Symbol.String()] = 0
			}
			c.Metrics.SetBacklog(u.Symbol.String(), pending[u.Symbol.String()])
			return nil // per-unit errors are recorded, not propagated to errgroup
		})
	}
	_ = g.Wait()

	result := Result{}
	for _, o := range outcomes {
		if o.err != nil {
			result.FailedCount++
			result.Errors = append(result.Errors, fmt.Sprintf("Failed %s %s: %s", o.unit.Symbol, o.unit.Day, o.err))
			continue
		}
		if o.skipped {
			continue
		}
		result.SuccessCount++
		result.RowsWritten += o.rows
		if err := j.MarkSymbolProcessed(o.unit.Symbol, o.rows, o.partition); err != nil {
			c.Logger.Error("mark_symbol_processed rejected", "symbol", o.unit.Symbol, "error", err)
		}
	}
	c.Bus.PublishAll(j.PendingEvents())

	if ctx.Err() != nil {
		_ = j.Cancel()
		c.Bus.PublishAll(j.PendingEvents())
		return result, ctx.Err()
	}

	if result.SuccessCount == 0 && len(units) > 0 {
		reason := "all units failed"
		if len(result.Errors) > 0 {
			reason = result.Errors[0]
		}
		_ = j.Fail(reason)
		c.Bus.PublishAll(j.PendingEvents())
		return result, nil
	}

	// A symbol whose units all failed or were skipped gets a zero-bar
	// progress entry, so Complete's every-symbol check accepts a job in
	// which at least one unit succeeded.
	progress := j.Progress()
	for _, s := range j.Symbols {
		if _, ok := progress[s.String()]; !ok {
			_ = j.MarkSymbolProcessed(s, 0, "")
		}
	}
	if err := j.Complete(); err != nil {
		return result, err
	}
	c.Bus.PublishAll(j.PendingEvents())
	return result, nil
}

// runUnit executes the 8-step per-unit pipeline for one (symbol, day).
// A ConcurrencyConflict classified error is retried exactly once before
// being surfaced as a unit-level failure.
func (c *Coordinator) runUnit(ctx context.Context, jobID string, u Unit) (rows int, partition string, skipped bool, err error) {
	r := bar.SingleDay(u.Day)

	// A checkpoint is saved only after the unit's whole day has been written,
	// so any stored checkpoint for (symbol, day) means the unit is covered.
	if _, ok, checkErr := c.Checkpoint.Get(ctx, u.Symbol, u.Day); checkErr == nil && ok {
		return 0, "", true, nil
	}

	rows, partition, err = c.attemptUnit(ctx, jobID, u, r)
	if err != nil {
		if kind, ok := pipelineerr.KindOf(err); ok && kind == pipelineerr.KindConcurrencyConflict {
			rows, partition, err = c.attemptUnit(ctx, jobID, u, r)
		}
	}
	return rows, partition, false, err
}

func (c *Coordinator) attemptUnit(ctx context.Context, jobID string, u Unit, r bar.TimeRange) (int, string, error) {
	vendorRows, err := c.Vendor.FetchBatch(ctx, u.Symbol.String(), r.Start.UnixNano(), r.End.UnixNano())
	if err != nil {
		return 0, "", err
	}

	agg := bar.NewSymbolBarsAggregate()
	if err := agg.StartCollection(u.Symbol, u.Day); err != nil {
		return 0, "", pipelineerr.Wrap(pipelineerr.KindDomainViolation, "start_collection", err)
	}

	var rejected int
	bars := make([]bar.OHLCVBar, 0, len(vendorRows))
	for _, row := range vendorRows {
		b, buildErr := toOHLCVBar(row)
		if buildErr != nil {
			rejected++
			c.Metrics.RecordDataQualityIssue(u.Symbol.String(), dataQualityIssueType(buildErr))
			c.Logger.Warn("rejected malformed vendor row", "symbol", u.Symbol, "error", buildErr)
			continue
		}
		if addErr := agg.AddBar(b); addErr != nil {
			return 0, "", pipelineerr.Wrap(pipelineerr.KindDomainViolation, "add_bar", addErr)
		}
		bars = append(bars, b)
	}
	if len(vendorRows) > 0 && float64(rejected)/float64(len(vendorRows)) > c.MaxRejectedRowFraction {
		return 0, "", pipelineerr.New(pipelineerr.KindDomainViolation,
			fmt.Sprintf("%d of %d rows rejected, exceeding max_rejected_row_fraction %.4f", rejected, len(vendorRows), c.MaxRejectedRowFraction))
	}
	if err := agg.CompleteCollection(); err != nil {
		return 0, "", pipelineerr.Wrap(pipelineerr.KindDomainViolation, "complete_collection", err)
	}

	var partition string
	if len(bars) > 0 {
		sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.UnixNano() < bars[j].Timestamp.UnixNano() })
		partition, err = c.Writer.Write(bars, "1m", u.Symbol, u.Day, jobID, columnar.WriteOptions{Overwrite: c.Overwrite})
		if err != nil {
			return 0, "", pipelineerr.Wrap(pipelineerr.KindStorage, "columnar write", err)
		}

		lastTs := bars[len(bars)-1].Timestamp.UnixNano()
		if err := c.Checkpoint.Save(ctx, u.Symbol, u.Day, lastTs); err != nil {
			return 0, "", pipelineerr.Wrap(pipelineerr.KindConcurrencyConflict, "checkpoint save", err)
		}
	}

	c.Bus.PublishAll(agg.PendingEvents())
	agg.ClearPendingEvents()

	return len(bars), partition, nil
}

// dataQualityIssueType classifies a rejected row's error for the
// data_quality_total metric's issue_type label.
func dataQualityIssueType(err error) string {
	if errors.Is(err, bar.ErrBarInvariant) {
		return "ohlc_inconsistency"
	}
	return "malformed_row"
}

func toOHLCVBar(row vendor.Row) (bar.OHLCVBar, error) {
	symbol, err := bar.NewSymbol(row.Symbol)
	if err != nil {
		return bar.OHLCVBar{}, err
	}
	open, err := bar.NewPrice(row.Open)
	if err != nil {
		return bar.OHLCVBar{}, err
	}
	high, err := bar.NewPrice(row.High)
	if err != nil {
		return bar.OHLCVBar{}, err
	}
	low, err := bar.NewPrice(row.Low)
	if err != nil {
		return bar.OHLCVBar{}, err
	}
	closeP, err := bar.NewPrice(row.Close)
	if err != nil {
		return bar.OHLCVBar{}, err
	}
	volume, err := bar.NewVolume(row.Volume)
	if err != nil {
		return bar.OHLCVBar{}, err
	}

	return bar.NewOHLCVBar(bar.NewBarParams{
		Symbol:    symbol,
		Timestamp: bar.TimestampFromNanos(row.TimestampNs),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
		Volume:    volume,
	})
}
