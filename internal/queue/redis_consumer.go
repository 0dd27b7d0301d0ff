/**
 * Direct Redis Queue Consumer for the Notes Worker
 *
 * Compatible with the TypeScript RedisQueue producer.
 * Uses simple Redis LIST operations for perfect compatibility.
 */

package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/pdfnotes-worker/internal/errors"
	"github.com/adverant/nexus/pdfnotes-worker/internal/logging"
	"github.com/adverant/nexus/pdfnotes-worker/internal/processor"
)

var errNoJobs = stderrors.New("no jobs available")

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client *redis.Client
	runner *jobRunner
	config *RedisConsumerConfig
	logger *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	// Client is used when set; otherwise one is created from RedisURL.
	Client            *redis.Client
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout int64 // Processing timeout in milliseconds (default: 300000 = 5 minutes)
	// PublishEvents enables job events on "<queue>:events".
	PublishEvents bool
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.Client == nil && cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		cfg.QueueName = "notes:jobs"
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	client := cfg.Client
	if client == nil {
		var err error
		if client, err = NewRedisClient(context.Background(), cfg.RedisURL); err != nil {
			return nil, err
		}
	}

	var events *EventPublisher
	if cfg.PublishEvents {
		events = NewEventPublisher(client, cfg.QueueName)
	}

	logger := logging.NewLogger("redis-queue")
	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client: client,
		runner: newJobRunner(cfg.Processor, events, cfg.ProcessingTimeout, logger),
		config: cfg,
		logger: logger,
		ctx:    consumerCtx,
		cancel: cancel,
	}, nil
}

// NewRedisClient parses url and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting Redis queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	return nil
}

// Stop gracefully stops the consumer. Jobs in flight see a cancelled
// context and stop between pages. The Redis client is closed only if the
// consumer created it.
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping queue consumer")
	c.cancel()
	c.wg.Wait()
	if c.config.Client == nil {
		return c.client.Close()
	}
	return nil
}

// worker is a goroutine that processes jobs
func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	c.logger.Debug("Worker started", "worker", id)

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("Worker stopping", "worker", id)
			return
		default:
			if err := c.processNextJob(); err != nil {
				if err == errNoJobs || c.ctx.Err() != nil {
					continue
				}
				c.logger.Error("Worker error", "worker", id, "error", err)
				// Small delay before trying again
				select {
				case <-time.After(time.Second):
				case <-c.ctx.Done():
				}
			}
		}
	}
}

// processNextJob fetches and processes the next job from the queue
func (c *RedisConsumer) processNextJob() error {
	// Block for up to 5 seconds waiting for a job
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.config.QueueName).Result()
	if err != nil {
		if err == redis.Nil {
			return errNoJobs
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	id := result[1]

	jobData, err := c.client.HGet(c.ctx, dataKey(c.config.QueueName), id).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data for %s: %w", id, err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		// Unreadable jobs would fail forever; park them as failed
		c.markFailed(id, map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	if job.ID == "" {
		job.ID = id
	}
	if job.Payload.JobID == "" {
		job.Payload.JobID = job.ID
	}
	if job.MaxRetries <= 0 {
		job.MaxRetries = DefaultMaxRetries
	}

	c.client.SAdd(c.ctx, processingKey(c.config.QueueName), job.ID)

	processResult, err := c.runner.run(c.ctx, &job.Payload)
	if err != nil {
		c.handleFailure(&job, err)
		return nil
	}

	c.markCompleted(job.ID, processResult)
	return nil
}

// handleFailure re-queues retryable failures until MaxRetries attempts
// have been made, and marks everything else failed.
func (c *RedisConsumer) handleFailure(job *RedisJobData, err error) {
	jobID := job.Payload.JobID

	// Shutdown: put the job back untouched for the next worker
	if c.ctx.Err() != nil {
		c.logger.Warn("Job interrupted by shutdown, re-queueing", "jobId", jobID)
		c.requeue(job)
		return
	}

	job.Attempts++
	if errors.IsRetryable(err) && job.Attempts < job.MaxRetries {
		c.runner.retry(c.ctx, jobID, err, job.Attempts)
		c.requeue(job)
		return
	}

	c.logger.Error("Job failed", "jobId", jobID, "attempts", job.Attempts, "code", errors.CodeOf(err), "error", err)
	metadata := c.runner.fail(c.ctx, jobID, err, job.Attempts)
	c.markFailed(job.ID, metadata)
}

func (c *RedisConsumer) requeue(job *RedisJobData) {
	// The consumer context may be cancelled; these writes must still land
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	updatedData, err := json.Marshal(job)
	if err != nil {
		c.logger.Error("Failed to encode job for retry", "jobId", job.Payload.JobID, "error", err)
		return
	}
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, dataKey(c.config.QueueName), job.ID, updatedData)
	pipe.SRem(ctx, processingKey(c.config.QueueName), job.ID)
	pipe.LPush(ctx, c.config.QueueName, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("Failed to re-queue job", "jobId", job.Payload.JobID, "error", err)
		return
	}
	c.logger.Info("Job re-queued", "jobId", job.Payload.JobID, "attempt", job.Attempts, "maxRetries", job.MaxRetries)
}

func (c *RedisConsumer) markCompleted(id string, result *processor.ProcessResult) {
	pipe := c.client.TxPipeline()
	pipe.SRem(c.ctx, processingKey(c.config.QueueName), id)
	pipe.SAdd(c.ctx, completedKey(c.config.QueueName), id)
	if resultData, err := json.Marshal(result); err == nil {
		pipe.HSet(c.ctx, resultsKey(c.config.QueueName), id, resultData)
	}
	if _, err := pipe.Exec(c.ctx); err != nil {
		c.logger.Warn("Failed to record completed job", "jobId", id, "error", err)
	}
}

func (c *RedisConsumer) markFailed(id string, metadata map[string]interface{}) {
	pipe := c.client.TxPipeline()
	pipe.SRem(c.ctx, processingKey(c.config.QueueName), id)
	pipe.SAdd(c.ctx, failedKey(c.config.QueueName), id)
	if errorData, err := json.Marshal(metadata); err == nil {
		pipe.HSet(c.ctx, errorsKey(c.config.QueueName), id, errorData)
	}
	if _, err := pipe.Exec(c.ctx); err != nil {
		c.logger.Warn("Failed to record failed job", "jobId", id, "error", err)
	}
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	return QueueStats(ctx, c.client, c.config.QueueName)
}

// QueueStats counts jobs per state for a LIST queue.
func QueueStats(ctx context.Context, client *redis.Client, queue string) (map[string]int64, error) {
	pipe := client.Pipeline()
	waiting := pipe.LLen(ctx, queue)
	processing := pipe.SCard(ctx, processingKey(queue))
	completed := pipe.SCard(ctx, completedKey(queue))
	failed := pipe.SCard(ctx, failedKey(queue))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return map[string]int64{
		"waiting":    waiting.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}
