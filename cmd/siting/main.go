package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/tank-siting/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/tank-siting/internal/adapter/kafka"
	"github.com/couchcryptid/tank-siting/internal/config"
	"github.com/couchcryptid/tank-siting/internal/geo"
	"github.com/couchcryptid/tank-siting/internal/observability"
	"github.com/couchcryptid/tank-siting/internal/pipeline"
	"github.com/couchcryptid/tank-siting/internal/session"
)

func main() {
	// Local development convenience; deployments set real env vars.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	projector, err := geo.NewUTMProjector(cfg.UTMZone, cfg.UTMNorthern)
	if err != nil {
		logger.Error("failed to build projector", "error", err)
		os.Exit(1)
	}
	calc := geo.NewCachedCalculator(geo.NewBoundaryCalculator(projector), cfg.GeoCacheSize)
	logger.Info("projection configured", "utm_zone", cfg.UTMZone, "northern", cfg.UTMNorthern)

	manager := session.NewManager(session.StoreParams{
		Backend: cfg.StoreBackend,
		Path:    cfg.StorePath,
	}, calc, logger, metrics)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)

	p := pipeline.New(reader, manager, writer, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, manager, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start stage-event pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if err := manager.Close(); err != nil {
		logger.Error("session manager close error", "error", err)
	}
}
