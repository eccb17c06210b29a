package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"casacore/internal/amqp"
	"casacore/internal/config"
	applog "casacore/internal/log"
	"casacore/internal/mirror"
	"casacore/internal/mirror/memory"
	"casacore/internal/mirror/postgrest"
	"casacore/internal/services"
	"casacore/internal/storage"
	"casacore/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: applog.ComponentWorker,
	})
	applog.SetDefault(logger)

	logger.Info("Starting casacore-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	sqliteRepo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer sqliteRepo.Close()

	// Pick the mirror target. Without a configured remote the worker still
	// drains the queue into an in-memory sink, which keeps local
	// development and tests honest about the sync path.
	var mirrorWriter mirror.Writer
	if cfg.MirrorBaseURL != "" {
		mirrorWriter = postgrest.NewClient(cfg.MirrorBaseURL, cfg.MirrorAPIKey)
		logger.Info("Mirror client initialized", "base_url", cfg.MirrorBaseURL)
	} else {
		mirrorWriter = memory.NewStore()
		logger.Info("Mirror disabled - no MIRROR_BASE_URL provided, using in-memory sink")
	}

	// AMQP nudges are optional; the poll loop alone keeps the queue moving.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, relying on poll loop only", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
		}
	}

	processorCfg := services.DefaultSyncProcessorConfig()
	processorCfg.PollInterval = cfg.SyncInterval
	processorCfg.BatchSize = cfg.SyncBatchSize
	processorCfg.MaxRetries = cfg.SyncMaxRetries
	processor := services.NewSyncProcessor(sqliteRepo, mirrorWriter, processorCfg)

	syncWorker := worker.NewSyncWorker(sqliteRepo, amqpClient, processor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return syncWorker.Run(ctx)
	})
	g.Go(func() error {
		return reportQueueDepth(ctx, sqliteRepo)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

// reportQueueDepth logs queue state periodically so a stuck mirror shows
// up in the worker logs, not only behind the operator endpoint.
func reportQueueDepth(ctx context.Context, repo *storage.SQLiteRepository) error {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stats, err := repo.SyncQueueStats(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to read sync queue stats", "error", err)
				continue
			}
			if stats.Pending > 0 || stats.Failed > 0 {
				slog.InfoContext(ctx, "Sync queue depth",
					"pending", stats.Pending,
					"processing", stats.Processing,
					"failed", stats.Failed)
			}
		}
	}
}
