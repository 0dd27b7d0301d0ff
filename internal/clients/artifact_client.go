/**
 * Artifact Client for the Notes Worker
 *
 * Uploads composed PDFs to permanent storage via the file API so users can
 * download "<name>_withNotes.pdf" after the Redis result cache expires.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/adverant/nexus/pdfnotes-worker/internal/logging"
)

const (
	uploadPath    = "/fileprocess/api/files/upload"
	healthPath    = "/health"
	sourceService = "pdfnotes-worker"
	pdfMimeType   = "application/pdf"

	// permanentTTLDays is sent when no TTL is configured.
	permanentTTLDays = 36500

	// maxResponseBytes bounds how much of a reply is read.
	maxResponseBytes = 1 << 20
)

// ArtifactClient stores composed documents through the file API.
type ArtifactClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// ComposedUpload is one composed document to store.
type ComposedUpload struct {
	JobID         string
	Filename      string // e.g. lecture_withNotes.pdf
	PDF           []byte
	PageCount     int
	RepairedPages []int
	Style         string
	Placement     string
	TTLDays       int // <= 0 keeps the artifact permanently
}

func (u *ComposedUpload) validate() error {
	switch {
	case len(u.PDF) == 0:
		return fmt.Errorf("composed document for job %q is empty", u.JobID)
	case u.Filename == "":
		return fmt.Errorf("composed document for job %q has no filename", u.JobID)
	case u.JobID == "":
		return fmt.Errorf("composed document %q has no job ID", u.Filename)
	}
	return nil
}

// Artifact is the stored copy of a composed document.
type Artifact struct {
	ID             string `json:"id"`
	Filename       string `json:"filename"`
	FileSize       int64  `json:"file_size"`
	StorageBackend string `json:"storage_backend"`
	DownloadURL    string `json:"download_url"`
	ExpiresAt      string `json:"expires_at,omitempty"`
}

type uploadReply struct {
	Success  bool     `json:"success"`
	Artifact Artifact `json:"artifact"`
	Error    string   `json:"error,omitempty"`
}

// NewArtifactClient creates a client for the file API at baseURL.
func NewArtifactClient(baseURL string) *ArtifactClient {
	return &ArtifactClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     logging.NewLogger("artifacts"),
	}
}

// HealthCheck verifies the file API is reachable.
func (c *ArtifactClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	status, body, err := c.do(req)
	if err != nil {
		return fmt.Errorf("artifact service unreachable: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("artifact service unhealthy: HTTP %d: %s", status, body)
	}
	return nil
}

// Upload stores u and returns the artifact the file API created.
func (c *ArtifactClient) Upload(ctx context.Context, u *ComposedUpload) (*Artifact, error) {
	if err := u.validate(); err != nil {
		return nil, err
	}

	body, contentType, err := encodeUpload(u)
	if err != nil {
		return nil, fmt.Errorf("encode upload for job %s: %w", u.JobID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, body)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	status, reply, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", u.Filename, err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("upload %s: HTTP %d: %s", u.Filename, status, reply)
	}

	var parsed uploadReply
	if err := json.Unmarshal(reply, &parsed); err != nil {
		return nil, fmt.Errorf("upload %s: malformed reply %q: %w", u.Filename, reply, err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("upload %s rejected: %s", u.Filename, parsed.Error)
	}
	if parsed.Artifact.ID == "" {
		return nil, fmt.Errorf("upload %s: reply carries no artifact ID", u.Filename)
	}

	c.logger.Info("Artifact uploaded",
		"jobId", u.JobID,
		"artifactId", parsed.Artifact.ID,
		"storage", parsed.Artifact.StorageBackend,
		"bytes", len(u.PDF),
		"durationMs", time.Since(start).Milliseconds())

	return &parsed.Artifact, nil
}

func (c *ArtifactClient) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read reply: %w", err)
	}
	return resp.StatusCode, body, nil
}

// encodeUpload builds the multipart form the file API expects.
func encodeUpload(u *ComposedUpload) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", u.Filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(u.PDF); err != nil {
		return nil, "", err
	}

	ttl := u.TTLDays
	if ttl <= 0 {
		ttl = permanentTTLDays
	}
	meta, err := json.Marshal(map[string]interface{}{
		"pageCount":     u.PageCount,
		"repairedPages": u.RepairedPages,
		"style":         u.Style,
		"placement":     u.Placement,
	})
	if err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"mime_type", pdfMimeType},
		{"source_service", sourceService},
		{"source_id", u.JobID},
		{"ttl_days", strconv.Itoa(ttl)},
		{"metadata", string(meta)},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("field %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
