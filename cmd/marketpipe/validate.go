package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/marketpipe/marketpipe/internal/columnar"
	"github.com/marketpipe/marketpipe/internal/validation"
)

func newValidateCmd(logger *slog.Logger) *cobra.Command {
	var jobID string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Re-run validation against an already-ingested job's 1-minute bars",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, logger, jobID)
		},
	}
	cmd.Flags().StringVar(&jobID, "job-id", "", "job id the partitions were written under (required)")
	_ = cmd.MarkFlagRequired("job-id")
	return cmd
}

func runValidate(cmd *cobra.Command, logger *slog.Logger, jobID string) error {
	cfg, err := loadConfiguration(cmd)
	if err != nil {
		return exitCode(2, err)
	}

	reportsRoot, err := cmd.Flags().GetString("reports-root")
	if err != nil {
		return exitCode(2, err)
	}

	m, _ := buildMetrics()
	writer := columnar.New(cfg.OutputPath, cfg.Compression)
	engine := validation.New(reportsRoot, m, cfg.Provider, cfg.FeedType)

	var anyInvalid bool
	var anyRead bool
	for _, symbol := range cfg.Symbols {
		for _, day := range cfg.Dates() {
			bars, err := writer.Read("1m", symbol, day, jobID)
			if err != nil {
				continue
			}
			anyRead = true

			result, path, err := engine.Run(jobID, symbol, bars)
			if err != nil {
				return exitCode(2, fmt.Errorf("validate %s %s: %w", symbol, day, err))
			}
			if !result.IsValid() {
				anyInvalid = true
			}
			logger.Info("validation report written", "job_id", jobID, "symbol", symbol, "day", day, "path", path, "errors", len(result.Errors))
		}
	}

	if !anyRead {
		return exitCode(2, fmt.Errorf("no 1-minute partitions found for job id %q", jobID))
	}
	if anyInvalid {
		return exitCode(1, fmt.Errorf("validation found rule violations for job id %q", jobID))
	}
	return nil
}
