package storage

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestSanitizeProgress(t *testing.T) {
	cases := map[int]int{-5: 0, 0: 0, 42: 42, 100: 100, 250: 100}
	for in, want := range cases {
		if got := sanitizeProgress(in); got != want {
			t.Errorf("sanitizeProgress(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestSanitizeJSONForPostgres(t *testing.T) {
	in := []byte(`{"title":"Notes\u0000 for\u0007 class"}`)
	want := `{"title":"Notes for  class"}`
	if got := string(sanitizeJSONForPostgres(in)); got != want {
		t.Errorf("sanitizeJSONForPostgres = %s, want %s", got, want)
	}
}

func TestResultKey(t *testing.T) {
	if got := ResultKey("notes:jobs", "abc"); got != "notes:jobs:result:abc" {
		t.Errorf("ResultKey = %q", got)
	}
}

func TestMergeMetadata(t *testing.T) {
	base := map[string]interface{}{"a": 1, "b": 2}
	got := mergeMetadata(base, map[string]interface{}{"b": 3, "c": 4})
	want := map[string]interface{}{"a": 1, "b": 3, "c": 4}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mergeMetadata mismatch (-want +got):\n%s", diff)
	}
	if base["b"] != 2 {
		t.Error("mergeMetadata modified its input")
	}
}

// The tests below talk to real services and run only when pointed at them.

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("NOTES_TEST_REDIS_URL")
	if url == "" {
		t.Skip("NOTES_TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatal(err)
	}
	client := redis.NewClient(opt)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestResultCacheRoundTrip(t *testing.T) {
	client := testRedis(t)
	ctx := context.Background()
	cache := NewResultCache(client, "notes-test", time.Minute)
	jobID := uuid.New().String()

	data := []byte("%PDF-1.4 composed")
	expires, err := cache.Put(ctx, jobID, data)
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(expires) <= 0 {
		t.Errorf("expiry %v is in the past", expires)
	}

	got, err := cache.Get(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get = %q, want %q", got, data)
	}

	if err := cache.Delete(ctx, jobID); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Get(ctx, jobID); err == nil {
		t.Error("Get after Delete succeeded")
	}
}

func TestStorageManagerLifecycle(t *testing.T) {
	dsn := os.Getenv("NOTES_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("NOTES_TEST_DATABASE_URL not set")
	}
	client := testRedis(t)
	ctx := context.Background()

	sm, err := NewStorageManager(ctx, Config{DatabaseURL: dsn, Redis: client, KeyPrefix: "notes-test", ResultTTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	defer sm.Close()

	jobID := uuid.New().String()
	if err := sm.UpdateJobStatus(ctx, &JobUpdate{JobID: jobID, Status: StatusProcessing, Filename: "lecture.pdf"}); err != nil {
		t.Fatal(err)
	}

	stored, err := sm.StoreResult(ctx, &ResultInput{
		JobID: jobID,
		Data:  []byte("%PDF-1.4 composed"),
		Update: JobUpdate{
			PageCount:     3,
			RepairedPages: []int64{2},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := sm.UpdateJobStatus(ctx, &JobUpdate{JobID: jobID, Status: StatusCompleted, Progress: 100, ProcessingTimeMs: 12}); err != nil {
		t.Fatal(err)
	}

	rec, err := sm.GetJobByID(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusCompleted || rec.Filename != "lecture.pdf" || rec.PageCount != 3 || rec.OutputSize != stored.Size {
		t.Errorf("record = %+v", rec)
	}
	if diff := cmp.Diff([]int64{2}, rec.RepairedPages); diff != "" {
		t.Errorf("repaired pages mismatch (-want +got):\n%s", diff)
	}
	if rec.Metadata["resultKey"] != stored.CacheKey {
		t.Errorf("metadata resultKey = %v, want %s", rec.Metadata["resultKey"], stored.CacheKey)
	}
}
