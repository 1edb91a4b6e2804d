// Package main is the entry point for the remediation simulation service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"remsim/internal/api"
	"remsim/internal/archive"
	"remsim/internal/audit"
	"remsim/internal/baseline"
	"remsim/internal/config"
	remerrors "remsim/internal/errors"
	"remsim/internal/simulation"
	"remsim/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := setupLogging(cfg.Logging)
	remerrors.SetProductionMode(cfg.Logging.Production)

	slog.Info("configuration loaded",
		"http_port", cfg.Server.HTTPPort,
		"store_path", cfg.Store.Path,
		"metrics_enabled", cfg.Metrics.Enabled,
		"audit_enabled", cfg.Audit.Enabled,
		"archive_enabled", cfg.Archive.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Control-plane store: playbooks and the run ledger.
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		slog.Error("failed to open store", "error", err, "path", cfg.Store.Path)
		os.Exit(1)
	}
	defer db.Close()

	// Baseline source: the monitoring store, or a stub that fails every
	// collection when no ClickHouse is configured.
	var (
		source   baseline.Source = baseline.Unavailable{}
		chClient *baseline.ClickHouseClient
	)
	if cfg.Metrics.Enabled {
		chClient, err = baseline.NewClickHouseClient(cfg.Metrics.ClickHouse)
		if err != nil {
			slog.Error("failed to connect to ClickHouse", "error", err)
			os.Exit(1)
		}
		defer chClient.Close()
		source = baseline.NewClickHouseSource(chClient)
		slog.Info("monitoring store connected", "hosts", cfg.Metrics.ClickHouse.Hosts)
	} else {
		slog.Warn("metrics disabled, every simulation will fail with baseline data unavailable")
	}

	var cache *baseline.SnapshotCache
	if cfg.Metrics.Cache.Enabled {
		cache, err = baseline.NewSnapshotCache(cfg.Metrics.Cache, logger)
		if err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer cache.Close()
	}

	collector := baseline.NewCollector(source, cache, logger)

	// Audit stream, optional.
	var publisher simulation.Publisher
	if cfg.Audit.Enabled {
		auditPub, err := audit.NewPublisher(cfg.Audit, logger)
		if err != nil {
			slog.Error("failed to create audit publisher", "error", err)
			os.Exit(1)
		}
		defer auditPub.Close()
		publisher = auditPub
	}

	runner := simulation.NewRunner(db, db, collector, publisher, simulation.RunnerConfig{
		DefaultWindowDays: cfg.Simulation.DefaultWindowDays,
		MaxWindowDays:     cfg.Simulation.MaxWindowDays,
		BaselineTimeout:   cfg.Simulation.BaselineTimeout,
		FinalizeTimeout:   cfg.Simulation.FinalizeTimeout,
	}, logger)

	sweeper := simulation.NewSweeper(db, simulation.SweeperConfig{
		Ceiling:  cfg.Simulation.SweeperCeiling,
		Interval: cfg.Simulation.SweeperInterval,
	}, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// Run archival, optional.
	if cfg.Archive.Enabled {
		s3Client, err := archive.NewS3Client(ctx, cfg.Archive.S3, logger)
		if err != nil {
			slog.Error("failed to create archive client", "error", err)
			os.Exit(1)
		}
		archiver := archive.NewArchiver(db, s3Client, cfg.Archive, logger)
		archiver.Start(ctx)
		defer archiver.Stop()
	}

	var metricsPinger api.Pinger
	if chClient != nil {
		metricsPinger = chClient
	}
	server := api.NewServer(db, db, runner, db, metricsPinger, logger)
	defer server.Close()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      server.Routes(cfg.RateLimit),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting simulation server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}

func setupLogging(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
