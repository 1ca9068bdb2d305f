package main

import (
	"fmt"
	"log/slog"

	"github.com/go-co-op/gocron/v2"
	"github.com/spf13/cobra"

	"github.com/marketpipe/marketpipe/internal/job"
)

func newScheduleCmd(logger *slog.Logger) *cobra.Command {
	var cron string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Re-run the configured ingestion job on a cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd, logger, cron, overwrite)
		},
	}
	cmd.Flags().StringVar(&cron, "cron", "", "cron expression to re-run the ingestion job on, e.g. \"*/15 * * * *\" (required)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite existing partitions on each scheduled run")
	_ = cmd.MarkFlagRequired("cron")
	return cmd
}

func runSchedule(cmd *cobra.Command, logger *slog.Logger, cron string, overwrite bool) error {
	checkpointPath, err := cmd.Flags().GetString("checkpoint-db")
	if err != nil {
		return exitCode(2, err)
	}
	reportsRoot, err := cmd.Flags().GetString("reports-root")
	if err != nil {
		return exitCode(2, err)
	}

	watcher, err := openConfigWatcher(cmd, logger)
	if err != nil {
		return exitCode(2, fmt.Errorf("open config watcher: %w", err))
	}
	defer watcher.Stop()

	gs, err := gocron.NewScheduler()
	if err != nil {
		return exitCode(2, fmt.Errorf("create scheduler: %w", err))
	}

	ctx := cmd.Context()
	_, err = gs.NewJob(
		gocron.CronJob(cron, true),
		gocron.NewTask(func() {
			// watcher.Current() reflects the latest configuration its
			// fsnotify watch picked up, so a hot-reloaded symbol list or
			// date range takes effect on the next scheduled run without a
			// process restart and without a per-tick reload from disk.
			cfg := watcher.Current()
			jobID, state, failReason, result, runErr := executeIngest(ctx, logger, cfg, checkpointPath, reportsRoot, overwrite, false, "")
			if runErr != nil {
				logger.Error("scheduled run failed", "error", runErr)
				return
			}
			if state == job.StateFailed {
				logger.Error("scheduled run: job failed", "job_id", jobID, "reason", failReason)
				return
			}
			logger.Info("scheduled run finished", "job_id", jobID, "success", result.SuccessCount, "failed", result.FailedCount)
		}),
		gocron.WithName("ingest-schedule"),
	)
	if err != nil {
		_ = gs.Shutdown()
		return exitCode(2, fmt.Errorf("register scheduled job: %w", err))
	}

	gs.Start()
	logger.Info("ingestion scheduler running", "cron", cron)

	<-ctx.Done()
	if err := gs.Shutdown(); err != nil {
		return exitCode(2, fmt.Errorf("shutdown scheduler: %w", err))
	}
	return nil
}
