/**
 * Notes Worker - Main Entry Point
 *
 * Go worker that turns PDFs into note-taking PDFs: every page is placed
 * next to a lined, grid, dotted or blank notes panel.
 *
 * Architecture:
 * - Redis LIST consumer (TypeScript producer compatible) or Asynq consumer
 * - Geometry normalization (crop box and rotation baked into content)
 * - Page composition with verbatim source pages
 * - Redis result cache and PostgreSQL job records
 * - Optional artifact upload for permanent downloads
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/pdfnotes-worker/internal/config"
	"github.com/adverant/nexus/pdfnotes-worker/internal/logging"
	"github.com/adverant/nexus/pdfnotes-worker/internal/processor"
	"github.com/adverant/nexus/pdfnotes-worker/internal/queue"
	"github.com/adverant/nexus/pdfnotes-worker/internal/storage"
)

// worker is the part of both queue consumers main needs.
type worker interface {
	Start() error
	Stop() error
}

func main() {
	envErr := godotenv.Load(".env.notes")

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.NewLogger("main").Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Configure(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger := logging.NewLogger("main")
	if envErr != nil {
		logger.Warn(".env.notes not found, using system environment variables")
	}

	logger.Info("Notes worker starting",
		"backend", cfg.QueueBackend,
		"queue", cfg.QueueName,
		"workers", cfg.WorkerConcurrency,
		"persistence", cfg.DatabaseURL != "",
		"policy", cfg.NormalizePolicy.String())

	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		logger.Error("Failed to create temp directory", "dir", cfg.TempDir, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	redisClient, err := queue.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		cancel()
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Initialize storage manager (Redis result cache + optional PostgreSQL)
	storageManager, err := storage.NewStorageManager(ctx, storage.Config{
		DatabaseURL: cfg.DatabaseURL,
		Redis:       redisClient,
		KeyPrefix:   cfg.QueueName,
		ResultTTL:   cfg.ResultTTL,
	})
	cancel()
	if err != nil {
		logger.Error("Failed to initialize storage manager", "error", err)
		os.Exit(1)
	}
	defer storageManager.Close()
	logger.Info("Storage manager initialized", "persistent", storageManager.Persistent())

	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		TempDir:         cfg.TempDir,
		MaxFileSize:     cfg.MaxFileSize,
		DefaultLayout:   cfg.DefaultLayout,
		Policy:          cfg.NormalizePolicy,
		StorageManager:  storageManager,
		ArtifactAPIURL:  cfg.ArtifactAPIURL,
		ArtifactTTLDays: cfg.ArtifactTTLDays,
	})
	if err != nil {
		logger.Error("Failed to initialize document processor", "error", err)
		os.Exit(1)
	}

	consumer, err := newWorker(cfg, proc, redisClient)
	if err != nil {
		logger.Error("Failed to initialize queue consumer", "error", err)
		os.Exit(1)
	}

	if err := consumer.Start(); err != nil {
		logger.Error("Failed to start queue consumer", "error", err)
		os.Exit(1)
	}
	logger.Info("Notes worker is ready, waiting for jobs",
		"layout", cfg.DefaultLayout.Style,
		"placement", cfg.DefaultLayout.Placement)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal, initiating graceful shutdown", "signal", sig.String())

	if err := consumer.Stop(); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}

	logger.Info("Shutdown complete")
}

func newWorker(cfg *config.Config, proc processor.DocumentProcessorInterface, client *redis.Client) (worker, error) {
	switch cfg.QueueBackend {
	case config.BackendAsynq:
		return queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
			Events:            queue.NewEventPublisher(client, cfg.QueueName),
		})
	default:
		return queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			Client:            client,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
			PublishEvents:     true,
		})
	}
}
