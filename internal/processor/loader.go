package processor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/adverant/nexus/pdfnotes-worker/internal/errors"
)

const (
	maxDownloadRetries = 5
	maxBackoff         = 32 * time.Second
	downloadTimeout    = 10 * time.Minute
	// A PDF header may be preceded by junk; readers look this far for it.
	headerWindow = 1024
)

// initialBackoff is the first retry delay; tests shorten it.
var initialBackoff = time.Second

// loadFile returns the document bytes from the request buffer or URL and
// checks that they look like a PDF.
func (p *DocumentProcessor) loadFile(ctx context.Context, req *ProcessRequest) ([]byte, error) {
	var data []byte
	switch {
	case len(req.FileBuffer) > 0:
		p.logger.Debug("Using file buffer", "jobId", req.JobID, "bytes", len(req.FileBuffer))
		data = req.FileBuffer
	case req.FileURL != "":
		p.logger.Info("Downloading file", "jobId", req.JobID, "url", req.FileURL)
		downloaded, err := p.downloadFileFromURL(ctx, req.JobID, req.FileURL)
		if err != nil {
			return nil, err
		}
		data = downloaded
	default:
		return nil, errors.NewIOError("load document", fmt.Errorf("no file source provided (buffer or URL)"))
	}

	if p.config.MaxFileSize > 0 && int64(len(data)) > p.config.MaxFileSize {
		return nil, errors.NewIOError("load document",
			fmt.Errorf("file size exceeds maximum: %d > %d bytes", len(data), p.config.MaxFileSize))
	}
	if !looksLikePDF(data) {
		return nil, errors.NewIOError("load document", fmt.Errorf("%s is not a PDF", displayName(req.Filename)))
	}
	return data, nil
}

func looksLikePDF(data []byte) bool {
	head := data
	if len(head) > headerWindow {
		head = head[:headerWindow]
	}
	return bytes.Contains(head, []byte("%PDF-"))
}

// downloadFileFromURL fetches a document with exponential backoff between
// attempts. Responses larger than MaxFileSize are rejected without retry.
func (p *DocumentProcessor) downloadFileFromURL(ctx context.Context, jobID, fileURL string) ([]byte, error) {
	client := &http.Client{Timeout: downloadTimeout}

	var lastErr error
	for attempt := 1; attempt <= maxDownloadRetries; attempt++ {
		if attempt > 1 {
			delay := backoff(attempt - 1)
			p.logger.Warn("Retrying download", "jobId", jobID, "attempt", attempt, "delay", delay.String(), "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, errors.NewIOError("download document", fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err()))
			}
		}

		data, retry, err := p.fetch(ctx, client, fileURL)
		if err == nil {
			p.logger.Info("File downloaded", "jobId", jobID, "bytes", len(data), "attempts", attempt)
			return data, nil
		}
		if !retry {
			return nil, errors.NewIOError("download document", err)
		}
		lastErr = err
	}

	return nil, errors.NewIOError("download document",
		fmt.Errorf("failed after %d attempts: %w", maxDownloadRetries, lastErr))
}

// fetch performs one download attempt. retry reports whether another
// attempt could succeed.
func (p *DocumentProcessor) fetch(ctx context.Context, client *http.Client, fileURL string) (data []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid URL: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Client errors other than throttling will not change on retry.
		retry = resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retry, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	limit := p.config.MaxFileSize
	if limit > 0 && resp.ContentLength > limit {
		return nil, false, fmt.Errorf("file size exceeds maximum: %d > %d bytes", resp.ContentLength, limit)
	}
	if limit <= 0 {
		limit = defaultMaxFileSize
	}

	// Read one byte past the limit to detect oversized bodies without a
	// Content-Length.
	data, err = io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, false, fmt.Errorf("file size exceeds maximum of %d bytes", limit)
	}
	return data, false, nil
}

// backoff returns the delay before retry n (1-based): 1s, 2s, 4s ... capped.
func backoff(n int) time.Duration {
	d := initialBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// OutputFilename names the composed document after its source:
// "lecture.pdf" becomes "lecture_withNotes.pdf".
func OutputFilename(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".pdf") {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." || base == "/" {
		base = "document"
	}
	return base + "_withNotes.pdf"
}

func displayName(filename string) string {
	if filename == "" {
		return "document"
	}
	return filename
}
