package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/marketpipe/marketpipe/internal/retention"
)

func newPruneCmd(logger *slog.Logger) *cobra.Command {
	var olderThan string
	var dryRun bool
	var cron string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove stale partitions and checkpoint rows older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(cmd, logger, olderThan, dryRun, cron)
		},
	}
	cmd.Flags().StringVar(&olderThan, "older-than", "30d", "age cutoff, e.g. 30d for 30 days")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be removed without deleting anything")
	cmd.Flags().StringVar(&cron, "cron", "", "if set, run the sweep on this cron schedule instead of once (e.g. \"0 3 * * *\")")
	return cmd
}

func runPrune(cmd *cobra.Command, logger *slog.Logger, olderThan string, dryRun bool, cron string) error {
	cfg, err := loadConfiguration(cmd)
	if err != nil {
		return exitCode(2, err)
	}

	age, err := retention.ParseOlderThan(olderThan)
	if err != nil {
		return exitCode(2, fmt.Errorf("parse --older-than: %w", err))
	}

	cp, err := openCheckpoint(cmd)
	if err != nil {
		return exitCode(2, fmt.Errorf("open checkpoint store: %w", err))
	}
	defer cp.Close()

	sweep := retention.Sweep{
		FilesRoot: cfg.OutputPath,
		OlderThan: age,
		Store:     cp,
		DryRun:    dryRun,
		Logger:    logger,
	}

	if cron == "" {
		return exitCode(2, sweep.Run(cmd.Context()))
	}

	scheduler, err := retention.NewScheduler(cron, sweep)
	if err != nil {
		return exitCode(2, fmt.Errorf("start retention scheduler: %w", err))
	}
	defer scheduler.Stop()

	logger.Info("retention scheduler running", "cron", cron)
	<-cmd.Context().Done()
	return nil
}
