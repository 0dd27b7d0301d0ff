package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/pdfnotes-worker/internal/errors"
	"github.com/adverant/nexus/pdfnotes-worker/internal/logging"
	"github.com/adverant/nexus/pdfnotes-worker/internal/notes"
	"github.com/adverant/nexus/pdfnotes-worker/internal/processor"
	"github.com/adverant/nexus/pdfnotes-worker/internal/storage"
)

type statusCall struct {
	JobID    string
	Status   string
	Progress int
	Code     string
}

// fakeProcessor records status updates and returns canned results.
type fakeProcessor struct {
	mu      sync.Mutex
	calls   []statusCall
	process func(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error)
}

func (f *fakeProcessor) ProcessDocument(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
	return f.process(ctx, req)
}

func (f *fakeProcessor) UpdateJobStatus(_ context.Context, jobID, status string, progress int, metadata map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	code, _ := metadata["error_code"].(string)
	f.calls = append(f.calls, statusCall{JobID: jobID, Status: status, Progress: progress, Code: code})
	return nil
}

func (f *fakeProcessor) statuses() []statusCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]statusCall(nil), f.calls...)
}

func succeed(_ context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
	return &processor.ProcessResult{JobID: req.JobID, Filename: req.Filename, PageCount: 2}, nil
}

func testRunner(p processor.DocumentProcessorInterface, timeoutMs int64) *jobRunner {
	return newJobRunner(p, nil, timeoutMs, logging.NewLogger("queue-test"))
}

func TestJobPayloadFileBufferFormats(t *testing.T) {
	cases := map[string]string{
		"base64":      `{"jobId":"j","filename":"a.pdf","fileBuffer":"JVBERi0="}`,
		"node buffer": `{"jobId":"j","filename":"a.pdf","fileBuffer":{"type":"Buffer","data":[37,80,68,70,45]}}`,
	}
	for name, in := range cases {
		var p JobPayload
		if err := json.Unmarshal([]byte(in), &p); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if string(p.FileBuffer) != "%PDF-" || p.JobID != "j" || p.Filename != "a.pdf" {
			t.Errorf("%s: payload = %+v", name, p)
		}
	}
}

func TestJobPayloadRejectsBadBuffers(t *testing.T) {
	cases := []string{
		`{"jobId":"j","fileBuffer":"not base64!"}`,
		`{"jobId":"j","fileBuffer":{"type":"Blob","data":[1]}}`,
		`{"jobId":"j","fileBuffer":{"type":"Buffer"}}`,
		`{"jobId":"j","fileBuffer":{"type":"Buffer","data":[300]}}`,
		`{"jobId":"j","fileBuffer":12}`,
	}
	for _, in := range cases {
		var p JobPayload
		if err := json.Unmarshal([]byte(in), &p); err == nil {
			t.Errorf("accepted %s", in)
		}
	}
}

func TestJobPayloadRoundTripsThroughRedisJob(t *testing.T) {
	title := "Notes"
	in := RedisJobData{
		ID:   "j-1",
		Type: TaskType,
		Payload: JobPayload{
			JobID:      "j-1",
			Filename:   "a.pdf",
			FileBuffer: []byte("%PDF-1.7"),
			Layout:     &notes.RawLayout{Style: "Lined", Title: &title},
		},
		MaxRetries: 3,
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out RedisJobData
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip (-in +out):\n%s", diff)
	}
}

func TestEventJSON(t *testing.T) {
	e := newEvent(EventProgress, "j-2")
	e.Timestamp = "2024-01-01T00:00:00Z"
	e.Progress = &processor.ProgressEvent{JobID: "j-2", Stage: processor.StageComposing, Document: 1, DocumentCount: 1, Page: 3, PageCount: 4, Fraction: 0.75}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{
		"event":     "job:progress",
		"jobId":     "j-2",
		"timestamp": "2024-01-01T00:00:00Z",
		"progress": map[string]interface{}{
			"jobId": "j-2", "filename": "", "stage": "composing",
			"document": 1.0, "documentCount": 1.0, "page": 3.0, "pageCount": 4.0, "fraction": 0.75,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("event JSON (-want +got):\n%s", diff)
	}
}

func TestRunnerRecordsLifecycle(t *testing.T) {
	fp := &fakeProcessor{process: succeed}
	r := testRunner(fp, 0)

	res, err := r.run(context.Background(), &JobPayload{JobID: "j-3", Filename: "a.pdf", FileURL: "http://x/a.pdf"})
	if err != nil {
		t.Fatal(err)
	}
	if res.PageCount != 2 {
		t.Errorf("result = %+v", res)
	}
	want := []statusCall{
		{JobID: "j-3", Status: storage.StatusProcessing},
		{JobID: "j-3", Status: storage.StatusCompleted, Progress: 100},
	}
	if diff := cmp.Diff(want, fp.statuses()); diff != "" {
		t.Errorf("status calls (-want +got):\n%s", diff)
	}
}

func TestRunnerMapsTimeout(t *testing.T) {
	fp := &fakeProcessor{process: func(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
		<-ctx.Done()
		return nil, errors.NewCancelledError(0, 3, ctx.Err())
	}}
	r := testRunner(fp, 20)

	_, err := r.run(context.Background(), &JobPayload{JobID: "j-4", FileBuffer: []byte("%PDF-")})
	if !errors.HasCode(err, errors.ErrorProcessingTimeout) {
		t.Errorf("error = %v, want timeout", err)
	}
	if !errors.IsRetryable(err) {
		t.Error("timeouts should be retryable")
	}
}

func TestRunnerRejectsEmptyPayload(t *testing.T) {
	fp := &fakeProcessor{process: func(context.Context, *processor.ProcessRequest) (*processor.ProcessResult, error) {
		t.Error("processor called for an empty payload")
		return nil, nil
	}}
	_, err := testRunner(fp, 0).run(context.Background(), &JobPayload{JobID: "j-5"})
	if !errors.HasCode(err, errors.ErrorConfigurationInvalid) {
		t.Errorf("error = %v, want configuration error", err)
	}
}

func TestHandleComposeSkipsRetryForInputErrors(t *testing.T) {
	cases := []struct {
		err       error
		skipRetry bool
	}{
		{errors.NewConfigurationError("style", "wavy", "unknown"), true},
		{errors.NewGeometryError(2, "zero-area page box"), true},
		{errors.NewIOError("download document", fmt.Errorf("HTTP 503")), false},
	}
	for _, tc := range cases {
		fp := &fakeProcessor{process: func(context.Context, *processor.ProcessRequest) (*processor.ProcessResult, error) {
			return nil, tc.err
		}}
		c := &Consumer{runner: testRunner(fp, 0), logger: logging.NewLogger("queue-test")}
		payload, _ := json.Marshal(JobPayload{JobID: "j-6", FileURL: "http://x/a.pdf"})

		err := c.handleCompose(context.Background(), asynq.NewTask(TaskType, payload))
		if got := stderrors.Is(err, asynq.SkipRetry); got != tc.skipRetry {
			t.Errorf("%v: SkipRetry = %v, want %v", tc.err, got, tc.skipRetry)
		}
		if errors.CodeOf(err) != errors.CodeOf(tc.err) {
			t.Errorf("%v: code lost, got %v", tc.err, err)
		}
		calls := fp.statuses()
		if last := calls[len(calls)-1]; last.Status != storage.StatusFailed || last.Code != string(errors.CodeOf(tc.err)) {
			t.Errorf("%v: last status = %+v", tc.err, last)
		}
	}
}

func TestHandleComposeRejectsMalformedPayload(t *testing.T) {
	c := &Consumer{runner: testRunner(&fakeProcessor{process: succeed}, 0), logger: logging.NewLogger("queue-test")}
	err := c.handleCompose(context.Background(), asynq.NewTask(TaskType, []byte("{")))
	if !stderrors.Is(err, asynq.SkipRetry) {
		t.Errorf("error = %v, want SkipRetry", err)
	}
}

func TestRetryDelay(t *testing.T) {
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 60 * time.Second, 60 * time.Second}
	for n, w := range want {
		if got := retryDelay(n, nil, nil); got != w {
			t.Errorf("retryDelay(%d) = %v, want %v", n, got, w)
		}
	}
}

// TestListQueueEndToEnd needs a Redis server: set NOTES_TEST_REDIS_URL.
func TestListQueueEndToEnd(t *testing.T) {
	url := os.Getenv("NOTES_TEST_REDIS_URL")
	if url == "" {
		t.Skip("NOTES_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	queue := fmt.Sprintf("notes-test:%d", time.Now().UnixNano())
	t.Cleanup(func() {
		client.Del(context.Background(), queue, dataKey(queue), processingKey(queue), completedKey(queue),
			failedKey(queue), resultsKey(queue), errorsKey(queue))
	})

	fp := &fakeProcessor{process: succeed}
	consumer, err := NewRedisConsumer(&RedisConsumerConfig{
		Client:      client,
		QueueName:   queue,
		Concurrency: 1,
		Processor:   fp,
	})
	if err != nil {
		t.Fatal(err)
	}

	id, err := NewListProducer(client, queue, 0).Enqueue(ctx, &JobPayload{Filename: "a.pdf", FileBuffer: []byte("%PDF-1.7")})
	if err != nil {
		t.Fatal(err)
	}

	consumer.Start()
	defer consumer.Stop()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if ok, _ := client.SIsMember(ctx, completedKey(queue), id).Result(); ok {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("job %s not completed; stats: %v", id, fp.statuses())
}
