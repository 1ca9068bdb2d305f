package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/marketpipe/marketpipe/internal/aggregation"
	"github.com/marketpipe/marketpipe/internal/bar"
	"github.com/marketpipe/marketpipe/internal/checkpoint"
	"github.com/marketpipe/marketpipe/internal/columnar"
	"github.com/marketpipe/marketpipe/internal/config"
	"github.com/marketpipe/marketpipe/internal/eventbus"
	"github.com/marketpipe/marketpipe/internal/metrics"
	"github.com/marketpipe/marketpipe/internal/pipelineerr"
	"github.com/marketpipe/marketpipe/internal/ratelimit"
	"github.com/marketpipe/marketpipe/internal/validation"
	"github.com/marketpipe/marketpipe/internal/vendor"
	"github.com/marketpipe/marketpipe/internal/vendor/alpaca"
)

// loadConfiguration reads the --config flag's file through a config.Store,
// the same versioned-envelope load every other entrypoint into the
// configuration uses.
func loadConfiguration(cmd *cobra.Command) (config.IngestionConfiguration, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.IngestionConfiguration{}, err
	}
	store := config.NewStore(path)
	return store.Load()
}

// openCheckpoint opens the --checkpoint-db flag's bbolt store.
func openCheckpoint(cmd *cobra.Command) (*checkpoint.BoltStore, error) {
	path, err := cmd.Flags().GetString("checkpoint-db")
	if err != nil {
		return nil, err
	}
	return openCheckpointAt(path)
}

// openCheckpointAt opens a bbolt checkpoint store at an already-resolved
// path, for callers (schedule's periodic task) that don't carry a
// *cobra.Command to read flags from.
func openCheckpointAt(path string) (*checkpoint.BoltStore, error) {
	return checkpoint.OpenBoltStore(path)
}

// buildAdapter constructs a vendor.Adapter for cfg.Provider. Credentials are
// delivered out-of-band via the process environment, never via the config
// file or a CLI flag.
func buildAdapter(cfg config.IngestionConfiguration) (vendor.Adapter, error) {
	switch cfg.Provider {
	case "alpaca":
		keyID := os.Getenv("ALPACA_KEY_ID")
		secret := os.Getenv("ALPACA_SECRET_KEY")
		if keyID == "" || secret == "" {
			return nil, pipelineerr.New(pipelineerr.KindAuthentication,
				"ALPACA_KEY_ID and ALPACA_SECRET_KEY must be set in the environment")
		}
		return &alpaca.Adapter{KeyID: keyID, SecretKey: secret, Feed: cfg.FeedType}, nil
	default:
		return nil, pipelineerr.New(pipelineerr.KindConfiguration, fmt.Sprintf("unsupported provider %q", cfg.Provider))
	}
}

// buildVendorClient wires a vendor.Client for cfg against the given adapter,
// rate limiter, metrics, and logger. Retry, breaker, and timeout defaults are
// left to vendor.New; only the values the CLI has an opinion on are set here.
func buildVendorClient(cfg config.IngestionConfiguration, adapter vendor.Adapter, m *metrics.Metrics, logger *slog.Logger) *vendor.Client {
	baseURL := os.Getenv("MARKETPIPE_VENDOR_BASE_URL")
	if baseURL == "" {
		baseURL = "https://data.alpaca.markets"
	}
	return vendor.New(vendor.Config{
		BaseURL:            baseURL,
		Adapter:            adapter,
		HTTPClient:         &http.Client{Timeout: 30 * time.Second},
		RateLimiter:        ratelimit.New(200, time.Minute),
		Metrics:            m,
		Logger:             logger,
		Provider:           cfg.Provider,
		Feed:               cfg.FeedType,
		MaxRetries:         3,
		BaseDelay:          250 * time.Millisecond,
		MaxDelay:           10 * time.Second,
		BreakerMaxFailures: 5,
		BreakerTimeout:     30 * time.Second,
	})
}

// buildMetrics constructs a Metrics registered against a freshly created
// registry, rather than the implicit global DefaultRegisterer: the same
// registry instance is handed to serve-metrics' promhttp handler, so the two
// always agree on what has been collected.
func buildMetrics() (*metrics.Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return metrics.New(reg), reg
}

// wireValidationAndAggregation subscribes validation and aggregation to
// bar.EventBarCollectionCompleted, the event CompleteCollection raises for
// every (symbol, day) unit a job finishes — successful or empty. This is the
// DomainEventBus coupling the pipeline stages: validate/aggregate commands
// still run these engines directly against an already-written job id, but a
// live ingestion run drives them off the same event its own aggregate
// publishes, not a procedural loop run after Coordinator.Run returns.
//
// jobID is captured by the returned handler at registration time, so this
// must be called once per job, before coord.Run dispatches any unit (events
// are published synchronously from inside attemptUnit).
func wireValidationAndAggregation(bus *eventbus.Bus, writer *columnar.Writer, reportsRoot string, cfg config.IngestionConfiguration, jobID string, overwrite bool, m *metrics.Metrics, logger *slog.Logger) {
	valEngine := validation.New(reportsRoot, m, cfg.Provider, cfg.FeedType)
	aggEngine := aggregation.New(writer)
	aggEngine.Overwrite = overwrite

	bus.Subscribe(bar.EventBarCollectionCompleted, func(e bar.DomainEvent) error {
		if e.BarCount == 0 {
			return nil
		}
		bars, err := writer.Read("1m", e.Symbol, e.Date, jobID)
		if err != nil {
			return fmt.Errorf("read back 1m bars for %s %s: %w", e.Symbol, e.Date, err)
		}
		if _, _, err := valEngine.Run(jobID, e.Symbol, bars); err != nil {
			logger.Error("post-process validation failed", "job_id", jobID, "symbol", e.Symbol, "error", err)
		}
		if _, err := aggEngine.Run(jobID, e.Symbol, bars); err != nil {
			logger.Error("post-process aggregation failed", "job_id", jobID, "symbol", e.Symbol, "error", err)
		}
		return nil
	})
}

// openConfigWatcher opens a config.Watcher against the --config flag's file,
// for long-running commands (schedule) that want hot-reload instead of a
// fresh load per tick.
func openConfigWatcher(cmd *cobra.Command, logger *slog.Logger) (*config.Watcher, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.NewWatcher(config.NewStore(path), logger)
}
