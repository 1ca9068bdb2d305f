// Command marketpipe ingests, validates, aggregates, prunes, and serves
// metrics for minute-resolution equity bar data.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to every component via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marketpipe/marketpipe/internal/logging"
)

var version = "dev"

// exitError carries a specific process exit code through cobra's error
// return path. A command that wants a code other than 2 on failure returns
// one of these instead of a bare error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	rootCmd := &cobra.Command{
		Use:   "marketpipe",
		Short: "Minute-resolution equity bar ingestion pipeline",
	}
	rootCmd.PersistentFlags().String("config", "./marketpipe.json", "path to the ingestion configuration file")
	rootCmd.PersistentFlags().String("checkpoint-db", "./marketpipe-checkpoint.db", "path to the bbolt checkpoint database")
	rootCmd.PersistentFlags().String("reports-root", "./reports", "directory validation reports are written under")
	var logLevelComponent string
	rootCmd.PersistentFlags().StringVar(&logLevelComponent, "log-level-component", "",
		`per-component log level overrides, e.g. "jobcoordinator=debug,eventbus=warn"`)
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return applyComponentLogLevels(filterHandler, logLevelComponent)
	}

	rootCmd.AddCommand(
		newIngestCmd(logger),
		newValidateCmd(logger),
		newAggregateCmd(logger),
		newPruneCmd(logger),
		newServeMetricsCmd(logger),
		newScheduleCmd(logger),
		newVersionCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, ee.err)
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

// applyComponentLogLevels parses a "component=level,component2=level2" spec
// and applies each pair to filter via SetLevel. An empty spec is a no-op.
func applyComponentLogLevels(filter *logging.ComponentFilterHandler, spec string) error {
	if spec == "" {
		return nil
	}
	for _, pair := range strings.Split(spec, ",") {
		component, levelStr, ok := strings.Cut(pair, "=")
		if !ok || component == "" || levelStr == "" {
			return fmt.Errorf("invalid --log-level-component pair %q, want component=level", pair)
		}
		var level slog.Level
		if err := level.UnmarshalText([]byte(levelStr)); err != nil {
			return fmt.Errorf("invalid --log-level-component level in %q: %w", pair, err)
		}
		filter.SetLevel(component, level)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}
