package queue

import (
	"context"
	"time"

	"github.com/adverant/nexus/pdfnotes-worker/internal/errors"
	"github.com/adverant/nexus/pdfnotes-worker/internal/logging"
	"github.com/adverant/nexus/pdfnotes-worker/internal/processor"
	"github.com/adverant/nexus/pdfnotes-worker/internal/storage"
)

const defaultProcessingTimeout = 5 * time.Minute

// jobRunner runs one payload with a timeout and records the job
// lifecycle. Both queue backends share it.
type jobRunner struct {
	processor processor.DocumentProcessorInterface
	events    *EventPublisher
	timeout   time.Duration
	logger    *logging.Logger
}

func newJobRunner(proc processor.DocumentProcessorInterface, events *EventPublisher, timeoutMs int64, logger *logging.Logger) *jobRunner {
	timeout := defaultProcessingTimeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	return &jobRunner{processor: proc, events: events, timeout: timeout, logger: logger}
}

// run processes payload. Errors are returned with the timeout mapped to
// PROCESSING_TIMEOUT; recording the failure is left to the caller, which
// knows whether the job will be retried.
func (r *jobRunner) run(ctx context.Context, payload *JobPayload) (*processor.ProcessResult, error) {
	logger := r.logger.With("jobId", payload.JobID)

	// Create/update the job record; idempotent if the producer created it
	if err := r.processor.UpdateJobStatus(ctx, payload.JobID, storage.StatusProcessing, 0, map[string]interface{}{
		"filename": payload.Filename,
		"userId":   payload.UserID,
	}); err != nil {
		logger.Warn("Failed to update status to processing", "error", err)
	}
	r.events.Publish(ctx, newEvent(EventProcessing, payload.JobID))

	if err := payload.Validate(); err != nil {
		return nil, errors.NewConfigurationError("payload", payload.JobID, err.Error()).WithJobID(payload.JobID)
	}

	logger.Info("Processing job", "filename", payload.Filename, "timeout", r.timeout.String())

	processCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	result, err := r.processor.ProcessDocument(processCtx, payload.Request(r.events.Observer(ctx)))
	if err != nil {
		// The parent context is still alive, so the deadline was ours.
		if processCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			logger.Error("Processing timed out", "elapsed", time.Since(start).String())
			return nil, errors.NewProcessingTimeoutError(payload.JobID, r.timeout, err)
		}
		return nil, err
	}

	if err := r.processor.UpdateJobStatus(ctx, payload.JobID, storage.StatusCompleted, 100, processor.ResultMetadata(result)); err != nil {
		logger.Warn("Failed to update status to completed", "error", err)
	}
	e := newEvent(EventCompleted, payload.JobID)
	e.Result = result
	r.events.Publish(ctx, e)

	logger.Info("Job completed",
		"pages", result.PageCount,
		"repaired", len(result.RepairedPages),
		"durationMs", result.ProcessingTimeMs)
	return result, nil
}

// fail records a job that will not be retried.
func (r *jobRunner) fail(ctx context.Context, jobID string, err error, attempts int) map[string]interface{} {
	metadata := processor.FailureMetadata(err)
	metadata["attempts"] = attempts
	if updateErr := r.processor.UpdateJobStatus(ctx, jobID, storage.StatusFailed, 0, metadata); updateErr != nil {
		r.logger.Warn("Failed to update status to failed", "jobId", jobID, "error", updateErr)
	}
	e := newEvent(EventFailed, jobID)
	e.Error = metadata
	e.Attempt = attempts
	r.events.Publish(ctx, e)
	return metadata
}

// retry announces a job that will run again.
func (r *jobRunner) retry(ctx context.Context, jobID string, err error, attempt int) {
	r.logger.Warn("Job failed, will retry", "jobId", jobID, "attempt", attempt, "error", err)
	e := newEvent(EventRetry, jobID)
	e.Error = processor.FailureMetadata(err)
	e.Attempt = attempt
	r.events.Publish(ctx, e)
}
