package processor

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/adverant/nexus/pdfnotes-worker/internal/errors"
	"github.com/adverant/nexus/pdfnotes-worker/internal/normalize"
	"github.com/adverant/nexus/pdfnotes-worker/internal/notes"
	"github.com/adverant/nexus/pdfnotes-worker/internal/storage"
	"github.com/adverant/nexus/pdfnotes-worker/internal/testpdf"
)

type fakeStore struct {
	mu       sync.Mutex
	results  []*storage.ResultInput
	updates  []*storage.JobUpdate
	storeErr error
}

func (s *fakeStore) StoreResult(_ context.Context, in *storage.ResultInput) (*storage.StoredResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storeErr != nil {
		return nil, s.storeErr
	}
	s.results = append(s.results, in)
	return &storage.StoredResult{
		ID:       "result-" + in.JobID,
		JobID:    in.JobID,
		CacheKey: storage.ResultKey("notes", in.JobID),
		Size:     int64(len(in.Data)),
	}, nil
}

func (s *fakeStore) UpdateJobStatus(_ context.Context, u *storage.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (l *eventLog) OnProgress(e ProgressEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func newTestProcessor(t *testing.T, store ResultStore, mutate func(*ProcessorConfig)) *DocumentProcessor {
	t.Helper()
	cfg := &ProcessorConfig{
		TempDir:       t.TempDir(),
		MaxFileSize:   defaultMaxFileSize,
		DefaultLayout: notes.DefaultLayout(),
		Policy:        normalize.RotatedOnly,
	}
	if store != nil {
		cfg.StorageManager = store
	}
	if mutate != nil {
		mutate(cfg)
	}
	p, err := NewDocumentProcessor(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 0.01
}

func TestProcessDocumentComposesAndStores(t *testing.T) {
	store := &fakeStore{}
	p := newTestProcessor(t, store, nil)
	data := testpdf.MustMutate(t, testpdf.MustBuild(t, testpdf.Letter, testpdf.Letter), map[int]testpdf.Edit{
		2: {Rotate: testpdf.Rotate(90)},
	})
	events := &eventLog{}

	res, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		JobID:      "job-1",
		UserID:     "user-1",
		Filename:   "lecture.pdf",
		FileBuffer: data,
		Layout:     &notes.RawLayout{Placement: "right", Style: "grid"},
		Observer:   events,
	})
	if err != nil {
		t.Fatal(err)
	}

	if res.OutputFilename != "lecture_withNotes.pdf" || res.PageCount != 2 {
		t.Errorf("result = %+v", res)
	}
	if diff := cmp.Diff([]int{2}, res.RepairedPages); diff != "" {
		t.Errorf("repaired pages (-want +got):\n%s", diff)
	}
	if res.ResultKey != "notes:result:job-1" {
		t.Errorf("result key = %q", res.ResultKey)
	}
	if res.Layout.Style != "Grid" || res.Layout.Placement != "Right" {
		t.Errorf("layout = %+v, want request overrides applied", res.Layout)
	}

	// Side-by-side doubles the width of every normalized page.
	want := [][2]float64{{1224, 792}, {1584, 612}}
	pages := testpdf.MustPages(t, res.Output)
	if len(pages) != len(want) {
		t.Fatalf("got %d pages, want %d", len(pages), len(want))
	}
	for i, pg := range pages {
		w, h := pg.MediaBox[2]-pg.MediaBox[0], pg.MediaBox[3]-pg.MediaBox[1]
		if !near(w, want[i][0]) || !near(h, want[i][1]) {
			t.Errorf("page %d is %gx%g, want %gx%g", i+1, w, h, want[i][0], want[i][1])
		}
	}

	if len(store.results) != 1 {
		t.Fatalf("stored %d results, want 1", len(store.results))
	}
	stored := store.results[0]
	if stored.JobID != "job-1" || stored.Update.PageCount != 2 || stored.Update.UserID != "user-1" {
		t.Errorf("stored input = %+v", stored.Update)
	}
	if diff := cmp.Diff([]int64{2}, stored.Update.RepairedPages); diff != "" {
		t.Errorf("stored repaired pages (-want +got):\n%s", diff)
	}

	var composed int
	last := 0.0
	for _, e := range events.events {
		if e.Fraction < last {
			t.Errorf("progress went backwards: %+v", e)
		}
		last = e.Fraction
		if e.Stage == StageComposing && e.Page > 0 {
			composed++
		}
	}
	if composed != 2 {
		t.Errorf("got %d page events, want 2", composed)
	}
	final := events.events[len(events.events)-1]
	if final.Stage != StageCompleted || final.Fraction != 1 {
		t.Errorf("final event = %+v", final)
	}
}

func TestProcessDocumentWithoutStorage(t *testing.T) {
	p := newTestProcessor(t, nil, nil)
	res, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		JobID:      "job-2",
		Filename:   "notes",
		FileBuffer: testpdf.MustBuild(t, testpdf.A4),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.ResultKey != "" || len(res.Output) == 0 || res.OutputFilename != "notes_withNotes.pdf" {
		t.Errorf("result = %+v", res)
	}
}

func TestProcessDocumentRejectsLayoutBeforeLoading(t *testing.T) {
	store := &fakeStore{}
	p := newTestProcessor(t, store, nil)
	_, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		JobID:   "job-3",
		FileURL: "http://127.0.0.1:0/never-fetched.pdf",
		Layout:  &notes.RawLayout{Style: "wavy"},
	})
	if !errors.HasCode(err, errors.ErrorConfigurationInvalid) {
		t.Fatalf("error = %v, want configuration error", err)
	}
	if pe, _ := errors.As(err); pe.JobID != "job-3" {
		t.Errorf("job ID = %q, want job-3", pe.JobID)
	}
	if len(store.results) != 0 {
		t.Error("result stored for an invalid layout")
	}
}

func TestProcessDocumentStorageFailure(t *testing.T) {
	p := newTestProcessor(t, &fakeStore{storeErr: fmt.Errorf("redis down")}, nil)
	_, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		JobID:      "job-4",
		Filename:   "a.pdf",
		FileBuffer: testpdf.MustBuild(t, testpdf.Letter),
	})
	if !errors.HasCode(err, errors.ErrorStorageFailed) {
		t.Errorf("error = %v, want storage error", err)
	}
}

func TestProcessDocumentUploadsArtifact(t *testing.T) {
	var uploaded string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/fileprocess/api/files/upload":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			_, hdr, err := r.FormFile("file")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			uploaded = hdr.Filename
			fmt.Fprint(w, `{"success":true,"artifact":{"id":"art-1","download_url":"https://files/art-1"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := newTestProcessor(t, nil, func(cfg *ProcessorConfig) { cfg.ArtifactAPIURL = srv.URL })
	res, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		JobID:      "job-5",
		Filename:   "slides.PDF",
		FileBuffer: testpdf.MustBuild(t, testpdf.Letter),
	})
	if err != nil {
		t.Fatal(err)
	}
	if uploaded != "slides_withNotes.pdf" {
		t.Errorf("uploaded filename = %q", uploaded)
	}
	if res.ArtifactID != "art-1" || res.ArtifactURL != "https://files/art-1" {
		t.Errorf("artifact = %q %q", res.ArtifactID, res.ArtifactURL)
	}
}

func TestProcessDocumentArtifactFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := newTestProcessor(t, &fakeStore{}, func(cfg *ProcessorConfig) { cfg.ArtifactAPIURL = srv.URL })
	res, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		JobID:      "job-6",
		Filename:   "a.pdf",
		FileBuffer: testpdf.MustBuild(t, testpdf.Letter),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.ArtifactID != "" || res.ResultKey == "" {
		t.Errorf("result = %+v", res)
	}
}

func TestProcessDocumentDownloadsFromURL(t *testing.T) {
	initialBackoff = time.Millisecond
	t.Cleanup(func() { initialBackoff = time.Second })

	data := testpdf.MustBuild(t, testpdf.Letter)
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write(data)
	}))
	defer srv.Close()

	p := newTestProcessor(t, nil, nil)
	res, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		JobID:    "job-7",
		Filename: "remote.pdf",
		FileURL:  srv.URL + "/remote.pdf",
	})
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 3 || res.PageCount != 1 {
		t.Errorf("attempts = %d, pages = %d", attempts, res.PageCount)
	}
}

func TestJobUpdateLiftsMetadata(t *testing.T) {
	res := &ProcessResult{
		Filename:         "a.pdf",
		OutputFilename:   "a_withNotes.pdf",
		PageCount:        3,
		RepairedPages:    []int{1, 3},
		ProcessingTimeMs: 120,
		OutputSize:       4096,
		ArtifactID:       "art-9",
	}
	got := jobUpdate("job-8", storage.StatusCompleted, 100, ResultMetadata(res))
	got.Metadata = nil
	want := &storage.JobUpdate{
		JobID:            "job-8",
		Status:           storage.StatusCompleted,
		Progress:         100,
		Filename:         "a.pdf",
		PageCount:        3,
		RepairedPages:    []int64{1, 3},
		ProcessingTimeMs: 120,
		OutputSize:       4096,
		ArtifactID:       "art-9",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("jobUpdate mismatch (-want +got):\n%s", diff)
	}
}

func TestJobUpdateRecordsFailures(t *testing.T) {
	got := jobUpdate("job-9", storage.StatusFailed, 0, FailureMetadata(errors.NewGeometryError(2, "zero-area page box")))
	if got.ErrorCode != string(errors.ErrorGeometryInvalid) || got.ErrorMessage != "page 2: zero-area page box" {
		t.Errorf("update = %+v", got)
	}

	got = jobUpdate("job-9", storage.StatusFailed, 0, FailureMetadata(fmt.Errorf("boom")))
	if got.ErrorCode != "PROCESSING_ERROR" || got.ErrorMessage != "boom" {
		t.Errorf("update = %+v", got)
	}
}
