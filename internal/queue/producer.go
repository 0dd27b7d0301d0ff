package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Producer submits composition jobs.
type Producer interface {
	// Enqueue submits payload and returns its job ID. A payload without a
	// job ID is given a new UUID.
	Enqueue(ctx context.Context, payload *JobPayload) (string, error)
	Close() error
}

func assignJobID(payload *JobPayload) error {
	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}
	return payload.Validate()
}

// ListProducer writes jobs in the layout RedisConsumer reads: the job
// body in the "<queue>:data" hash and its ID pushed on the list.
type ListProducer struct {
	client     *redis.Client
	queue      string
	maxRetries int
}

// NewListProducer creates a producer for queue. The client stays owned by
// the caller.
func NewListProducer(client *redis.Client, queue string, maxRetries int) *ListProducer {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &ListProducer{client: client, queue: queue, maxRetries: maxRetries}
}

// Enqueue implements Producer.
func (p *ListProducer) Enqueue(ctx context.Context, payload *JobPayload) (string, error) {
	if err := assignJobID(payload); err != nil {
		return "", err
	}

	job := RedisJobData{
		ID:         payload.JobID,
		Type:       TaskType,
		Payload:    *payload,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: p.maxRetries,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to encode job: %w", err)
	}

	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, dataKey(p.queue), job.ID, data)
	pipe.LPush(ctx, p.queue, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return job.ID, nil
}

// Close implements Producer.
func (p *ListProducer) Close() error { return nil }

// AsynqProducer submits notes:compose tasks.
type AsynqProducer struct {
	client     *asynq.Client
	queue      string
	maxRetries int
	timeout    time.Duration
}

// NewAsynqProducer connects to the Redis at redisURL.
func NewAsynqProducer(redisURL, queue string, maxRetries int, timeout time.Duration) (*AsynqProducer, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &AsynqProducer{
		client:     asynq.NewClient(redisOpt),
		queue:      queue,
		maxRetries: maxRetries,
		timeout:    timeout,
	}, nil
}

// NewComposeTask builds the task for payload.
func NewComposeTask(payload *JobPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}
	return asynq.NewTask(TaskType, data), nil
}

// Enqueue implements Producer. The job ID doubles as the asynq task ID so
// a job cannot be queued twice.
func (p *AsynqProducer) Enqueue(ctx context.Context, payload *JobPayload) (string, error) {
	if err := assignJobID(payload); err != nil {
		return "", err
	}
	task, err := NewComposeTask(payload)
	if err != nil {
		return "", err
	}

	opts := []asynq.Option{
		asynq.Queue(p.queue),
		asynq.MaxRetry(p.maxRetries),
		asynq.TaskID(payload.JobID),
	}
	if p.timeout > 0 {
		// Leave asynq a margin over the worker's own deadline
		opts = append(opts, asynq.Timeout(p.timeout+time.Minute))
	}

	info, err := p.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", payload.JobID, err)
	}
	return info.ID, nil
}

// Close implements Producer.
func (p *AsynqProducer) Close() error {
	return p.client.Close()
}
