package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/pdfnotes-worker/internal/logging"
	"github.com/adverant/nexus/pdfnotes-worker/internal/processor"
)

// Event kinds published for WebSocket streaming.
const (
	EventProcessing = "job:processing"
	EventProgress   = "job:progress"
	EventCompleted  = "job:completed"
	EventFailed     = "job:failed"
	EventRetry      = "job:retry"
)

// Event is one message on the events channel.
type Event struct {
	Event     string                   `json:"event"`
	JobID     string                   `json:"jobId"`
	Timestamp string                   `json:"timestamp"`
	Progress  *processor.ProgressEvent `json:"progress,omitempty"`
	Result    *processor.ProcessResult `json:"result,omitempty"`
	Error     map[string]interface{}   `json:"error,omitempty"`
	Attempt   int                      `json:"attempt,omitempty"`
}

func newEvent(kind, jobID string) Event {
	return Event{Event: kind, JobID: jobID, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

// EventPublisher publishes job events on "<queue>:events". Publishing is
// best effort; failures are logged and never fail a job.
type EventPublisher struct {
	client  *redis.Client
	channel string
	logger  *logging.Logger
}

// NewEventPublisher creates a publisher for queue.
func NewEventPublisher(client *redis.Client, queue string) *EventPublisher {
	return &EventPublisher{
		client:  client,
		channel: EventsChannel(queue),
		logger:  logging.NewLogger("events"),
	}
}

// Publish sends e.
func (p *EventPublisher) Publish(ctx context.Context, e Event) {
	if p == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		p.logger.Warn("Failed to encode event", "event", e.Event, "jobId", e.JobID, "error", err)
		return
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Warn("Failed to publish event", "event", e.Event, "jobId", e.JobID, "error", err)
	}
}

// Observer returns a progress observer publishing job:progress events.
// A nil publisher yields a nil observer.
func (p *EventPublisher) Observer(ctx context.Context) processor.ProgressObserver {
	if p == nil {
		return nil
	}
	return processor.ProgressFunc(func(pe processor.ProgressEvent) {
		e := newEvent(EventProgress, pe.JobID)
		e.Progress = &pe
		p.Publish(ctx, e)
	})
}
