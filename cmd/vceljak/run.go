package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Hakopstar/VcelJAK/pkg/config"
	"github.com/Hakopstar/VcelJAK/pkg/dispatcher"
	"github.com/Hakopstar/VcelJAK/pkg/engine"
	"github.com/Hakopstar/VcelJAK/pkg/ingest"
	"github.com/Hakopstar/VcelJAK/pkg/live"
	"github.com/Hakopstar/VcelJAK/pkg/rulecache"
	"github.com/Hakopstar/VcelJAK/pkg/schedule"
	"github.com/Hakopstar/VcelJAK/pkg/store"
	"github.com/Hakopstar/VcelJAK/pkg/telemetry/logging"
	"github.com/Hakopstar/VcelJAK/pkg/telemetry/metrics"
	"github.com/Hakopstar/VcelJAK/pkg/timeseries"
)

var runFlags struct {
	addr     string
	logLevel string
	dryRun   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the automation engine",
	Long: `Start the automation engine: the reading intake endpoint, the
periodic dispatcher, the websocket hub and the metrics endpoint.

Examples:
  # Start with defaults
  vceljak run

  # Start with a config file
  vceljak run --config /etc/vceljak/config.yaml

  # Validate config without starting
  vceljak run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.addr, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if runFlags.addr != "" {
		cfg.Server.Addr = runFlags.addr
	}
	if runFlags.logLevel != "" {
		cfg.Logging.Level = runFlags.logLevel
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}

	if runFlags.dryRun {
		fmt.Println("configuration valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewSQLiteWithConfig(store.SQLiteConfig{
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	var cacheBackend rulecache.Backend
	switch cfg.Cache.Backend {
	case "redis":
		cacheBackend, err = rulecache.NewRedisBackend(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
		if err != nil {
			return fmt.Errorf("failed to connect cache backend: %w", err)
		}
	default:
		cacheBackend = rulecache.NewMemoryBackend()
	}
	defer cacheBackend.Close()

	var series timeseries.Backend
	switch cfg.TimeSeries.Backend {
	case "influx":
		series, err = timeseries.NewInflux(timeseries.InfluxConfig{
			URL:          cfg.TimeSeries.URL,
			Token:        cfg.TimeSeries.Token,
			Org:          cfg.TimeSeries.Org,
			Bucket:       cfg.TimeSeries.Bucket,
			QueryTimeout: cfg.TimeSeries.QueryTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to connect time-series backend: %w", err)
		}
	default:
		series = timeseries.NewMemory()
	}
	defer series.Close()

	collector := metrics.NewCollector(nil)

	cache := rulecache.New(db, cacheBackend, logger, rulecache.CacheConfig{
		RulesTTL:    cfg.Cache.RulesTTL,
		NotFoundTTL: cfg.Cache.NotFoundTTL,
		Recorder:    collector,
	})

	hub := live.NewHub(logger)
	defer hub.Close()

	actions := engine.NewDispatcher(db, hub, logger, collector)
	orchestrator := engine.NewOrchestrator(cache, db, engine.NewEvaluator(cfg.Engine.ScheduleWindow), actions, logger, collector)
	tracker := schedule.NewTracker(db, series, hub, logger, collector)
	intake := ingest.NewService(db, orchestrator, series, logger, collector)

	periodic := dispatcher.New(dispatcher.Config{
		RuleCheckSchedule: cfg.Dispatcher.RuleCheckSchedule,
		ProgressSchedule:  cfg.Dispatcher.ProgressSchedule,
	}, db, orchestrator, tracker, logger)
	if err := periodic.Start(ctx); err != nil {
		return err
	}
	defer periodic.Stop()

	mux := http.NewServeMux()
	mux.Handle("/api/v1/readings", intake.Handler())
	mux.Handle("/ws", hub)
	mux.Handle(cfg.Server.MetricsPath, collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
