package processor

import (
	"context"

	"github.com/adverant/nexus/pdfnotes-worker/internal/errors"
	"github.com/adverant/nexus/pdfnotes-worker/internal/notes"
)

// DocumentOutcome is the result of one document in a batch. Exactly one
// of Result and Err is set.
type DocumentOutcome struct {
	Index    int            `json:"index"`
	JobID    string         `json:"jobId"`
	Filename string         `json:"filename"`
	Result   *ProcessResult `json:"result,omitempty"`
	Err      error          `json:"-"`
}

// Succeeded reports whether the document was composed.
func (o DocumentOutcome) Succeeded() bool {
	return o.Err == nil
}

// BatchResult collects the outcomes of a batch in input order.
type BatchResult struct {
	Documents []DocumentOutcome `json:"documents"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// ProcessBatch runs documents one after another with a shared progress
// scale. Every layout is resolved before the first document is loaded, so
// a bad layout fails the batch without output. After that a failing
// document is recorded and the batch moves on. Cancellation marks the
// current and remaining documents as cancelled.
func (p *DocumentProcessor) ProcessBatch(ctx context.Context, reqs []*ProcessRequest, observer ProgressObserver) (*BatchResult, error) {
	layouts := make([]notes.Layout, len(reqs))
	for i, req := range reqs {
		l, err := p.ResolveLayout(req.Layout)
		if err != nil {
			return nil, tagJob(err, req.JobID)
		}
		layouts[i] = l
	}

	batch := &BatchResult{Documents: make([]DocumentOutcome, len(reqs))}
	for i, req := range reqs {
		outcome := DocumentOutcome{Index: i, JobID: req.JobID, Filename: req.Filename}

		if err := ctx.Err(); err != nil {
			outcome.Err = errors.NewCancelledError(0, 0, err).WithJobID(req.JobID)
		} else {
			obs := req.Observer
			if obs == nil {
				obs = observer
			}
			outcome.Result, outcome.Err = p.process(ctx, req, layouts[i], tracker{
				observer: obs,
				jobID:    req.JobID,
				filename: req.Filename,
				index:    i,
				count:    len(reqs),
			})
		}

		if outcome.Err != nil {
			batch.Failed++
			p.logger.Warn("Document failed, continuing batch",
				"jobId", req.JobID,
				"filename", req.Filename,
				"code", errors.CodeOf(outcome.Err),
				"error", outcome.Err)
		} else {
			batch.Succeeded++
		}
		batch.Documents[i] = outcome
	}

	p.logger.Info("Batch complete", "documents", len(reqs), "succeeded", batch.Succeeded, "failed", batch.Failed)
	return batch, nil
}
