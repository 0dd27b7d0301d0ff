/**
 * Document Processor for the Notes Worker
 *
 * Runs one document through the notes pipeline:
 * - Load the PDF from a buffer or URL
 * - Normalize page geometry (crop box and rotation baked into content)
 * - Compose every page next to a lined, grid, dotted or blank notes panel
 * - Cache the result and record the job
 * - Upload "<name>_withNotes.pdf" as a permanent artifact
 */

package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/adverant/nexus/pdfnotes-worker/internal/clients"
	"github.com/adverant/nexus/pdfnotes-worker/internal/errors"
	"github.com/adverant/nexus/pdfnotes-worker/internal/logging"
	"github.com/adverant/nexus/pdfnotes-worker/internal/normalize"
	"github.com/adverant/nexus/pdfnotes-worker/internal/notes"
	"github.com/adverant/nexus/pdfnotes-worker/internal/storage"
)

const defaultMaxFileSize = 100 * 1024 * 1024

// DocumentProcessorInterface defines the interface for document processing
type DocumentProcessorInterface interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error
}

// ResultStore keeps composed documents and job records.
// *storage.StorageManager implements it.
type ResultStore interface {
	StoreResult(ctx context.Context, input *storage.ResultInput) (*storage.StoredResult, error)
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	TempDir     string
	MaxFileSize int64
	// DefaultLayout fills fields a request leaves unset.
	DefaultLayout notes.Layout
	Policy        normalize.Policy
	// StorageManager is optional; without it results are only returned.
	StorageManager ResultStore
	// ArtifactAPIURL is optional; without it nothing is uploaded.
	ArtifactAPIURL  string
	ArtifactTTLDays int
	Logger          *logging.Logger
}

// ProcessRequest represents a document processing request
type ProcessRequest struct {
	JobID      string
	UserID     string
	Filename   string
	FileURL    string
	FileBuffer []byte
	// Layout overrides the default layout field by field.
	Layout   *notes.RawLayout
	Metadata map[string]interface{}
	Observer ProgressObserver
}

// ProcessResult represents the processing result
type ProcessResult struct {
	JobID            string           `json:"jobId"`
	Filename         string           `json:"filename"`
	OutputFilename   string           `json:"outputFilename"`
	Output           []byte           `json:"-"`
	PageCount        int              `json:"pageCount"`
	RepairedPages    []int            `json:"repairedPages,omitempty"`
	OutputSize       int64            `json:"outputSize"`
	Layout           notes.RawLayout  `json:"layout"`
	Normalization    normalize.Report `json:"normalization"`
	ResultKey        string           `json:"resultKey,omitempty"`
	ArtifactID       string           `json:"artifactId,omitempty"`
	ArtifactURL      string           `json:"artifactUrl,omitempty"`
	ProcessingTimeMs int64            `json:"processingTimeMs"`
}

// DocumentProcessor handles document processing
type DocumentProcessor struct {
	config         *ProcessorConfig
	storage        ResultStore
	normalizer     *normalize.Normalizer
	artifactClient *clients.ArtifactClient
	logger         *logging.Logger
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if err := cfg.DefaultLayout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid default layout: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("processor")
	}

	p := &DocumentProcessor{
		config:  cfg,
		storage: cfg.StorageManager,
		normalizer: normalize.New(normalize.Options{
			TempDir: cfg.TempDir,
			Policy:  cfg.Policy,
			Logger:  logger.With("stage", "normalize"),
		}),
		logger: logger,
	}

	if cfg.ArtifactAPIURL != "" {
		p.artifactClient = clients.NewArtifactClient(cfg.ArtifactAPIURL)
		// Non-fatal: results stay in the cache if uploads fail
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.artifactClient.HealthCheck(ctx); err != nil {
			logger.Warn("Artifact storage health check failed, composed files will only be cached", "error", err)
		} else {
			logger.Info("Artifact storage connection verified", "url", cfg.ArtifactAPIURL)
		}
	} else {
		logger.Warn("Artifact API URL not configured, composed files will only be cached")
	}

	return p, nil
}

// ResolveLayout merges raw over the default layout. A nil raw returns the
// default unchanged.
func (p *DocumentProcessor) ResolveLayout(raw *notes.RawLayout) (notes.Layout, error) {
	if raw == nil {
		return p.config.DefaultLayout, nil
	}
	return notes.ParseLayout(raw.Merge(p.config.DefaultLayout.ToRaw()))
}

// ProcessDocument processes a document through the complete pipeline
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	layout, err := p.ResolveLayout(req.Layout)
	if err != nil {
		return nil, tagJob(err, req.JobID)
	}
	return p.process(ctx, req, layout, tracker{
		observer: req.Observer,
		jobID:    req.JobID,
		filename: req.Filename,
		index:    0,
		count:    1,
	})
}

func (p *DocumentProcessor) process(ctx context.Context, req *ProcessRequest, layout notes.Layout, progress tracker) (*ProcessResult, error) {
	start := time.Now()
	logger := p.logger.With("jobId", req.JobID, "filename", req.Filename)
	logger.Info("Starting notes pipeline",
		"style", layout.Style,
		"placement", layout.Placement,
		"font", layout.Font)

	// Step 1: Load
	progress.stage(StageLoading, 0)
	data, err := p.loadFile(ctx, req)
	if err != nil {
		return nil, tagJob(err, req.JobID)
	}

	// Step 2: Normalize page geometry
	progress.stage(StageNormalizing, 0)
	normalized, err := p.normalizer.Normalize(ctx, data)
	if err != nil {
		return nil, tagJob(err, req.JobID)
	}
	repaired := make([]int, 0, len(normalized.Report.Corrections))
	for _, c := range normalized.Report.Corrections {
		repaired = append(repaired, c.Page)
	}
	if len(repaired) > 0 {
		logger.Info("Repaired page geometry", "pages", repaired)
	}

	// Step 3: Compose
	progress.stage(StageComposing, 0)
	composer, err := notes.NewComposer(layout, logger.With("stage", "compose"))
	if err != nil {
		return nil, tagJob(err, req.JobID)
	}
	sizes := make([]notes.Size, len(normalized.Pages))
	for i, g := range normalized.Pages {
		sizes[i] = notes.Size{Width: g.Width(), Height: g.Height()}
	}
	output, err := composer.Compose(ctx, normalized.Data, sizes, progress.page)
	if err != nil {
		return nil, tagJob(err, req.JobID)
	}

	result := &ProcessResult{
		JobID:          req.JobID,
		Filename:       req.Filename,
		OutputFilename: OutputFilename(req.Filename),
		Output:         output,
		PageCount:      len(sizes),
		RepairedPages:  repaired,
		OutputSize:     int64(len(output)),
		Layout:         layout.ToRaw(),
		Normalization:  normalized.Report,
	}

	// Step 4: Store
	if p.storage != nil {
		progress.stage(StageStoring, 1)
		stored, err := p.storage.StoreResult(ctx, &storage.ResultInput{
			JobID: req.JobID,
			Data:  output,
			Update: storage.JobUpdate{
				Status:        storage.StatusProcessing,
				UserID:        req.UserID,
				Filename:      req.Filename,
				PageCount:     result.PageCount,
				RepairedPages: toInt64s(repaired),
				Metadata: map[string]interface{}{
					"outputFilename": result.OutputFilename,
					"layout":         result.Layout,
				},
			},
		})
		if err != nil {
			return nil, errors.NewStorageFailedError(req.JobID, err)
		}
		result.ResultKey = stored.CacheKey
	}

	// Step 5: Upload the composed document
	if p.artifactClient != nil {
		artifact, err := p.artifactClient.Upload(ctx, &clients.ComposedUpload{
			JobID:         req.JobID,
			Filename:      result.OutputFilename,
			PDF:           output,
			PageCount:     result.PageCount,
			RepairedPages: repaired,
			Style:         string(layout.Style),
			Placement:     string(layout.Placement),
			TTLDays:       p.config.ArtifactTTLDays,
		})
		if err != nil {
			// Non-fatal: the cached result is still downloadable
			logger.Warn("Failed to store artifact", "error", err)
		} else {
			result.ArtifactID = artifact.ID
			result.ArtifactURL = artifact.DownloadURL
		}
	}

	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	progress.stage(StageCompleted, 1)

	logger.Info("Notes pipeline complete",
		"pages", result.PageCount,
		"repaired", len(repaired),
		"outputSize", result.OutputSize,
		"durationMs", result.ProcessingTimeMs)

	return result, nil
}

// UpdateJobStatus updates job status in database
func (p *DocumentProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error {
	if p.storage == nil {
		return nil
	}
	return p.storage.UpdateJobStatus(ctx, jobUpdate(jobID, status, progress, metadata))
}

// jobUpdate lifts well-known metadata keys into their columns.
func jobUpdate(jobID, status string, progress int, metadata map[string]interface{}) *storage.JobUpdate {
	update := &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Progress: progress,
		Metadata: metadata,
	}

	// Extract specific fields from metadata if present
	if metadata != nil {
		if filename, ok := metadata["filename"].(string); ok {
			update.Filename = filename
		}
		if userID, ok := metadata["userId"].(string); ok {
			update.UserID = userID
		}
		if pageCount, ok := metadata["pageCount"].(int); ok {
			update.PageCount = pageCount
		}
		if repaired, ok := metadata["repairedPages"].([]int); ok {
			update.RepairedPages = toInt64s(repaired)
		}
		if processingTime, ok := metadata["processingTime"].(int64); ok {
			update.ProcessingTimeMs = processingTime
		}
		if outputSize, ok := metadata["outputSize"].(int64); ok {
			update.OutputSize = outputSize
		}
		if artifactID, ok := metadata["artifactId"].(string); ok {
			update.ArtifactID = artifactID
		}
		if code, ok := metadata["error_code"].(string); ok {
			update.ErrorCode = code
		}
		if msg, ok := metadata["message"].(string); ok && update.ErrorCode != "" {
			update.ErrorMessage = msg
		}
		if errorMsg, ok := metadata["error"].(string); ok {
			if update.ErrorCode == "" {
				update.ErrorCode = "PROCESSING_ERROR"
			}
			update.ErrorMessage = errorMsg
		}
	}

	return update
}

// ResultMetadata is the job metadata recorded for a successful result.
func ResultMetadata(result *ProcessResult) map[string]interface{} {
	return map[string]interface{}{
		"filename":       result.Filename,
		"outputFilename": result.OutputFilename,
		"pageCount":      result.PageCount,
		"repairedPages":  result.RepairedPages,
		"processingTime": result.ProcessingTimeMs,
		"outputSize":     result.OutputSize,
		"artifactId":     result.ArtifactID,
		"resultKey":      result.ResultKey,
	}
}

// FailureMetadata is the job metadata recorded for a failed run.
func FailureMetadata(err error) map[string]interface{} {
	if pe, ok := errors.As(err); ok {
		return pe.ToMap()
	}
	return map[string]interface{}{"error": err.Error()}
}

func tagJob(err error, jobID string) error {
	if pe, ok := errors.As(err); ok && pe.JobID == "" && jobID != "" {
		return pe.WithJobID(jobID)
	}
	return err
}

func toInt64s(in []int) []int64 {
	if in == nil {
		return nil
	}
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}
