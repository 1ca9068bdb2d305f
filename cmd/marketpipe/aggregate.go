package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/marketpipe/marketpipe/internal/aggregation"
	"github.com/marketpipe/marketpipe/internal/columnar"
)

func newAggregateCmd(logger *slog.Logger) *cobra.Command {
	var jobID string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Re-run 5m/15m/1h/1d aggregation against an already-ingested job's 1-minute bars",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAggregate(cmd, logger, jobID, overwrite)
		},
	}
	cmd.Flags().StringVar(&jobID, "job-id", "", "job id the partitions were written under (required)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", true, "overwrite existing aggregated partitions for this job id, so a re-run is idempotent")
	_ = cmd.MarkFlagRequired("job-id")
	return cmd
}

func runAggregate(cmd *cobra.Command, logger *slog.Logger, jobID string, overwrite bool) error {
	cfg, err := loadConfiguration(cmd)
	if err != nil {
		return exitCode(2, err)
	}

	writer := columnar.New(cfg.OutputPath, cfg.Compression)
	engine := aggregation.New(writer)
	engine.Overwrite = overwrite

	var anyRead bool
	var written int
	for _, symbol := range cfg.Symbols {
		for _, day := range cfg.Dates() {
			bars, err := writer.Read("1m", symbol, day, jobID)
			if err != nil {
				continue
			}
			anyRead = true

			paths, err := engine.Run(jobID, symbol, bars)
			if err != nil {
				return exitCode(2, fmt.Errorf("aggregate %s %s: %w", symbol, day, err))
			}
			written += len(paths)
			logger.Info("aggregation frames written", "job_id", jobID, "symbol", symbol, "day", day, "files", len(paths))
		}
	}

	if !anyRead {
		return exitCode(2, fmt.Errorf("no 1-minute partitions found for job id %q", jobID))
	}
	logger.Info("aggregation finished", "job_id", jobID, "files_written", written)
	return nil
}
