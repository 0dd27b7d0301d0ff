package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adverant/nexus/pdfnotes-worker/internal/notes"
	"github.com/adverant/nexus/pdfnotes-worker/internal/processor"
)

// TaskType is the asynq task type and the LIST job type.
const TaskType = "notes:compose"

// DefaultMaxRetries applies when a producer does not set one.
const DefaultMaxRetries = 3

// RedisJobData represents a job from the Redis queue
type RedisJobData struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    JobPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// JobPayload contains the actual job data
type JobPayload struct {
	JobID    string `json:"jobId"`
	UserID   string `json:"userId,omitempty"`
	Filename string `json:"filename"`
	FileURL  string `json:"fileUrl,omitempty"`
	// FileBuffer is base64 on the wire; UnmarshalJSON also accepts a
	// serialized Node.js Buffer.
	FileBuffer []byte                 `json:"fileBuffer,omitempty"`
	Layout     *notes.RawLayout       `json:"layout,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// UnmarshalJSON implements custom JSON unmarshaling for JobPayload to handle Buffer serialization
// Supports both base64 string format (new) and Node.js Buffer object format (legacy)
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	// Create alias type to avoid recursion
	type Alias JobPayload
	aux := &struct {
		FileBuffer interface{} `json:"fileBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	// Handle fileBuffer field with multiple format support
	if aux.FileBuffer != nil {
		switch v := aux.FileBuffer.(type) {
		case string:
			decoded, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return fmt.Errorf("failed to decode base64 fileBuffer: %w", err)
			}
			p.FileBuffer = decoded

		case map[string]interface{}:
			if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
				return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
			}
			dataArray, ok := v["data"].([]interface{})
			if !ok {
				return fmt.Errorf("Buffer object missing 'data' array")
			}
			p.FileBuffer = make([]byte, len(dataArray))
			for i, val := range dataArray {
				byteVal, ok := val.(float64)
				if !ok || byteVal < 0 || byteVal > 255 {
					return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
				}
				p.FileBuffer[i] = byte(byteVal)
			}

		default:
			return fmt.Errorf("fileBuffer must be either base64 string or Buffer object, got %T", v)
		}
	}

	return nil
}

// Validate checks the payload has an ID and a document source.
func (p *JobPayload) Validate() error {
	if p.JobID == "" {
		return fmt.Errorf("jobId is required")
	}
	if len(p.FileBuffer) == 0 && p.FileURL == "" {
		return fmt.Errorf("job %s has neither fileBuffer nor fileUrl", p.JobID)
	}
	return nil
}

// Request converts the payload into a processor request.
func (p *JobPayload) Request(observer processor.ProgressObserver) *processor.ProcessRequest {
	return &processor.ProcessRequest{
		JobID:      p.JobID,
		UserID:     p.UserID,
		Filename:   p.Filename,
		FileURL:    p.FileURL,
		FileBuffer: p.FileBuffer,
		Layout:     p.Layout,
		Metadata:   p.Metadata,
		Observer:   observer,
	}
}

// Redis key layout shared by the LIST consumer and producer.
func dataKey(queue string) string       { return queue + ":data" }
func processingKey(queue string) string { return queue + ":processing" }
func completedKey(queue string) string  { return queue + ":completed" }
func failedKey(queue string) string     { return queue + ":failed" }
func resultsKey(queue string) string    { return queue + ":results" }
func errorsKey(queue string) string     { return queue + ":errors" }

// EventsChannel is the pub/sub channel job events are published on.
func EventsChannel(queue string) string { return queue + ":events" }
