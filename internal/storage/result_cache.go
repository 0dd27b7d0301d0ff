package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResultCache keeps composed PDFs in Redis for a limited time so the API
// can serve downloads without a round trip through artifact storage.
type ResultCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewResultCache stores entries under "<prefix>:result:<jobId>".
func NewResultCache(client *redis.Client, prefix string, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ResultCache{client: client, prefix: prefix, ttl: ttl}
}

// Key returns the cache key of a job's result.
func (c *ResultCache) Key(jobID string) string {
	return ResultKey(c.prefix, jobID)
}

// ResultKey builds the cache key without a client, for producers that
// poll for results.
func ResultKey(prefix, jobID string) string {
	return fmt.Sprintf("%s:result:%s", prefix, jobID)
}

// Put stores data and returns the time it expires.
func (c *ResultCache) Put(ctx context.Context, jobID string, data []byte) (time.Time, error) {
	if jobID == "" {
		return time.Time{}, fmt.Errorf("job ID is required")
	}
	if err := c.client.Set(ctx, c.Key(jobID), data, c.ttl).Err(); err != nil {
		return time.Time{}, fmt.Errorf("failed to cache result: %w", err)
	}
	return time.Now().Add(c.ttl), nil
}

// Get returns a cached result, or redis.Nil wrapped when it has expired.
func (c *ResultCache) Get(ctx context.Context, jobID string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.Key(jobID)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to get cached result for job %s: %w", jobID, err)
	}
	return data, nil
}

// Delete removes a cached result.
func (c *ResultCache) Delete(ctx context.Context, jobID string) error {
	return c.client.Del(ctx, c.Key(jobID)).Err()
}

// Ping checks Redis connectivity.
func (c *ResultCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
