package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/viu-hydromet/wx-ingest/internal/adapter/http"
	kafkaadapter "github.com/viu-hydromet/wx-ingest/internal/adapter/kafka"
	"github.com/viu-hydromet/wx-ingest/internal/adapter/postgres"
	"github.com/viu-hydromet/wx-ingest/internal/adapter/swarm"
	"github.com/viu-hydromet/wx-ingest/internal/config"
	"github.com/viu-hydromet/wx-ingest/internal/observability"
	"github.com/viu-hydromet/wx-ingest/internal/pipeline"
	"github.com/viu-hydromet/wx-ingest/internal/scheduler"
	"github.com/viu-hydromet/wx-ingest/internal/station"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	stations, err := station.Load(cfg.StationsFile)
	if err != nil {
		logger.Error("failed to load station registry", "error", err)
		os.Exit(1)
	}
	logger.Info("station registry loaded", "stations", len(stations))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		logger.Error("store unreachable", "error", err)
		os.Exit(1)
	}

	relay := swarm.NewClient(cfg.SwarmBaseURL, cfg.SwarmUsername, cfg.SwarmPassword, cfg.SwarmTimeout, logger)
	if err := relay.Login(ctx); err != nil {
		// Bad credentials will not fix themselves; fail fast rather than
		// hammer the relay every cycle.
		logger.Error("swarm login failed", "error", err)
		os.Exit(1)
	}

	// Kafka publishing of clean rows (feature-flagged via KAFKA_ENABLED).
	var publisher pipeline.RowPublisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		publisher = writer
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	p := pipeline.New(relay, store, publisher, stations, logger, metrics,
		cfg.FetchCount, cfg.TailLimit)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, stations, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	sched := scheduler.New(p, cfg.PollInterval, logger)
	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	metrics.IngestRunning.Set(1)

	<-ctx.Done()
	logger.Info("shutting down")

	sched.Stop()
	metrics.IngestRunning.Set(0)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
