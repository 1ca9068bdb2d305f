package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/marketpipe/marketpipe/internal/bar"
	"github.com/marketpipe/marketpipe/internal/columnar"
	"github.com/marketpipe/marketpipe/internal/config"
	"github.com/marketpipe/marketpipe/internal/eventbus"
	"github.com/marketpipe/marketpipe/internal/job"
)

func newIngestCmd(logger *slog.Logger) *cobra.Command {
	var overwrite bool
	var skipPostProcess bool
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run an ingestion job against the configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, checkpointPath, reportsRoot, err := resolveIngestFlags(cmd)
			if err != nil {
				return exitCode(2, err)
			}
			_, state, failReason, result, err := executeIngest(cmd.Context(), logger, cfg, checkpointPath, reportsRoot, overwrite, skipPostProcess, metricsAddr)
			if err != nil {
				return exitCode(2, err)
			}
			return ingestExitError(state, failReason, result)
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite existing partitions for this job id")
	cmd.Flags().BoolVar(&skipPostProcess, "skip-post-process", false, "skip the validate/aggregate pass run automatically after a completed job")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve this job's live Prometheus metrics at /metrics on this address while it runs")
	return cmd
}

// resolveIngestFlags loads the configuration and the persistent
// --checkpoint-db/--reports-root flags shared by ingest and schedule.
func resolveIngestFlags(cmd *cobra.Command) (config.IngestionConfiguration, string, string, error) {
	cfg, err := loadConfiguration(cmd)
	if err != nil {
		return config.IngestionConfiguration{}, "", "", err
	}
	checkpointPath, err := cmd.Flags().GetString("checkpoint-db")
	if err != nil {
		return config.IngestionConfiguration{}, "", "", err
	}
	reportsRoot, err := cmd.Flags().GetString("reports-root")
	if err != nil {
		return config.IngestionConfiguration{}, "", "", err
	}
	return cfg, checkpointPath, reportsRoot, nil
}

// ingestExitError translates a finished job's terminal state into the exit
// code convention: 0 success, 1 partial failure, 2 total failure. A
// cancelled run (ctx cancelled before every unit finished) is reported as a
// total failure, same as StateFailed: whatever partial result it produced is
// still visible on result, but the run itself did not complete.
func ingestExitError(state job.State, failReason string, result job.Result) error {
	switch {
	case state == job.StateFailed:
		return exitCode(2, fmt.Errorf("job failed: %s", failReason))
	case state == job.StateCancelled:
		return exitCode(2, fmt.Errorf("job cancelled: %d of %d units finished", result.SuccessCount, result.SuccessCount+result.FailedCount))
	case result.FailedCount > 0:
		return exitCode(1, fmt.Errorf("%d of %d units failed", result.FailedCount, result.SuccessCount+result.FailedCount))
	default:
		return nil
	}
}

// rangeFor spans a configuration's whole trading-date window, from the start
// of its first day to the start of the day after its last.
func rangeFor(cfg config.IngestionConfiguration) bar.TimeRange {
	return bar.NewTimeRange(cfg.Start.StartOfDay(), cfg.End.AddDays(1).StartOfDay())
}

// executeIngest runs one ingestion job end to end: plan, dispatch, and
// supervise every (symbol, day) unit, then (unless skipped) validate and
// aggregate every symbol the job completed. It has no cobra dependency so
// schedule's periodic task can call it directly on every tick with the
// configuration its watcher currently holds.
func executeIngest(ctx context.Context, logger *slog.Logger, cfg config.IngestionConfiguration, checkpointPath, reportsRoot string, overwrite, skipPostProcess bool, metricsAddr string) (jobID string, state job.State, failReason string, result job.Result, err error) {
	adapter, err := buildAdapter(cfg)
	if err != nil {
		return "", "", "", job.Result{}, err
	}

	cp, err := openCheckpointAt(checkpointPath)
	if err != nil {
		return "", "", "", job.Result{}, fmt.Errorf("open checkpoint store: %w", err)
	}
	defer cp.Close()

	m, registry := buildMetrics()
	if metricsAddr != "" {
		shutdown := serveMetricsInBackground(logger, metricsAddr, registry)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	vendorClient := buildVendorClient(cfg, adapter, m, logger)
	bus := eventbus.New(logger)
	writer := columnar.New(cfg.OutputPath, cfg.Compression)

	coord := job.New(job.Coordinator{
		Vendor:                 vendorClient,
		Checkpoint:             cp,
		Writer:                 writer,
		Bus:                    bus,
		Metrics:                m,
		Workers:                cfg.Workers,
		Overwrite:              overwrite,
		MaxRejectedRowFraction: cfg.MaxRejectedRowFraction,
		Logger:                 logger,
	})

	jobID = uuid.New().String()
	ingestionJob := job.NewIngestionJob(jobID, cfg.Symbols, rangeFor(cfg))

	// Validation/aggregation are driven off bar.EventBarCollectionCompleted,
	// which CompleteCollection publishes synchronously for every (symbol,
	// day) unit as it finishes inside coord.Run. The subscription must be in
	// place before Run is called, not after it returns.
	if !skipPostProcess {
		wireValidationAndAggregation(bus, writer, reportsRoot, cfg, jobID, overwrite, m, logger)
	}

	result, err = coord.Run(ctx, ingestionJob)
	state = ingestionJob.State()
	failReason = ingestionJob.FailReason()
	if err != nil && state != job.StateCancelled {
		return jobID, "", "", job.Result{}, fmt.Errorf("run job: %w", err)
	}

	logger.Info("ingestion job finished",
		"job_id", jobID, "state", state,
		"success", result.SuccessCount, "failed", result.FailedCount, "rows_written", result.RowsWritten)
	for _, e := range result.Errors {
		logger.Warn("unit failed", "job_id", jobID, "error", e)
	}

	return jobID, state, failReason, result, nil
}
