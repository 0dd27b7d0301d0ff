/**
 * Asynq Queue Consumer for the Notes Worker
 *
 * Consumes "notes:compose" tasks and runs them through the processor.
 * Input errors (bad layout, broken geometry) are not retried.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/pdfnotes-worker/internal/errors"
	"github.com/adverant/nexus/pdfnotes-worker/internal/logging"
	"github.com/adverant/nexus/pdfnotes-worker/internal/processor"
)

// Consumer handles job consumption from an asynq queue
type Consumer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner *jobRunner
	config *ConsumerConfig
	logger *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout int64 // Processing timeout in milliseconds (default: 300000 = 5 minutes)
	// Events is optional; progress is only logged without it.
	Events *EventPublisher
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("asynq")
	consumer := &Consumer{
		mux:    asynq.NewServeMux(),
		runner: newJobRunner(cfg.Processor, cfg.Events, cfg.ProcessingTimeout, logger),
		config: cfg,
		logger: logger,
	}

	consumer.server = asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10, // Priority 10 for main queue
				"default":     1,  // Priority 1 for fallback
			},
			// Exponential backoff: 5s, 10s, 20s ... capped at 60s
			RetryDelayFunc: retryDelay,
			IsFailure: func(err error) bool {
				return !errors.HasCode(err, errors.ErrorProcessingCancelled)
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				taskID, _ := asynq.GetTaskID(ctx)
				logger.Error("Task processing error",
					"type", task.Type(),
					"taskId", taskID,
					"code", errors.CodeOf(err),
					"error", err)
			}),
			Logger:   logger.Entry(),
			LogLevel: asynq.InfoLevel,
		},
	)

	consumer.mux.HandleFunc(TaskType, consumer.handleCompose)

	return consumer, nil
}

func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	delay := time.Duration(5*(1<<uint(n))) * time.Second
	if delay > 60*time.Second || delay <= 0 {
		delay = 60 * time.Second
	}
	return delay
}

// Start starts the queue consumer
func (c *Consumer) Start() error {
	c.logger.Info("Starting queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)
	// Start returns once the server is running
	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop() error {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
	return nil
}

// handleCompose processes a notes:compose task
func (c *Consumer) handleCompose(ctx context.Context, task *asynq.Task) error {
	var payload JobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// A malformed payload stays malformed
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		if id, ok := asynq.GetTaskID(ctx); ok {
			payload.JobID = id
		}
	}

	_, err := c.runner.run(ctx, &payload)
	if err == nil {
		return nil
	}

	// Shutdown: leave the task for asynq to requeue
	if ctx.Err() != nil {
		c.logger.Warn("Task interrupted", "jobId", payload.JobID, "error", err)
		return fmt.Errorf("task interrupted: %w", ctx.Err())
	}

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	final := !errors.IsRetryable(err) || retried >= maxRetry

	if final {
		c.runner.fail(ctx, payload.JobID, err, retried+1)
	} else {
		c.runner.retry(ctx, payload.JobID, err, retried+1)
	}

	if !errors.IsRetryable(err) {
		return fmt.Errorf("document processing failed: %w: %w", err, asynq.SkipRetry)
	}
	return fmt.Errorf("document processing failed: %w", err)
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
		"backend":     "asynq",
	}
}
