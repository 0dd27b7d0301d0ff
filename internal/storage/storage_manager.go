/**
 * Storage Manager for the Notes Worker
 *
 * Coordinates the Redis result cache (composed PDFs) and PostgreSQL (job
 * records). A result is only reported stored when both writes succeed;
 * a failed database write removes the cached bytes again.
 */

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Config configures a StorageManager.
type Config struct {
	// DatabaseURL is optional; empty disables job persistence.
	DatabaseURL string
	Redis       *redis.Client
	KeyPrefix   string
	ResultTTL   time.Duration
}

// StorageManager coordinates job records and cached results.
type StorageManager struct {
	postgres *PostgresClient
	cache    *ResultCache
}

// ResultInput is a composed document to store.
type ResultInput struct {
	JobID  string
	Data   []byte
	Update JobUpdate
}

// StoredResult describes where a composed document was stored.
type StoredResult struct {
	ID        string
	JobID     string
	CacheKey  string
	Size      int64
	ExpiresAt time.Time
}

// NewStorageManager creates a new storage manager
func NewStorageManager(ctx context.Context, cfg Config) (*StorageManager, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	sm := &StorageManager{cache: NewResultCache(cfg.Redis, cfg.KeyPrefix, cfg.ResultTTL)}

	if cfg.DatabaseURL != "" {
		postgres, err := NewPostgresClient(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
		}
		if err := postgres.EnsureSchema(ctx); err != nil {
			postgres.Close()
			return nil, err
		}
		sm.postgres = postgres
	}

	return sm, nil
}

// Persistent reports whether job records are written to PostgreSQL.
func (sm *StorageManager) Persistent() bool {
	return sm.postgres != nil
}

// StoreResult caches the composed PDF and records it on the job.
func (sm *StorageManager) StoreResult(ctx context.Context, input *ResultInput) (*StoredResult, error) {
	if input == nil {
		return nil, fmt.Errorf("input is required")
	}

	if input.JobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	if len(input.Data) == 0 {
		return nil, fmt.Errorf("result is empty")
	}

	expiresAt, err := sm.cache.Put(ctx, input.JobID, input.Data)
	if err != nil {
		return nil, err
	}

	resultID := uuid.New().String()
	if sm.postgres != nil {
		update := input.Update
		update.JobID = input.JobID
		if update.Status == "" {
			update.Status = StatusProcessing
		}
		update.OutputSize = int64(len(input.Data))
		update.Metadata = mergeMetadata(update.Metadata, map[string]interface{}{
			"resultId":        resultID,
			"resultKey":       sm.cache.Key(input.JobID),
			"resultExpiresAt": expiresAt.UTC().Format(time.RFC3339),
		})

		if err := sm.postgres.UpdateJobStatus(ctx, &update); err != nil {
			// Rollback: drop the cached result
			sm.cache.Delete(ctx, input.JobID)
			return nil, fmt.Errorf("failed to record result in PostgreSQL: %w", err)
		}
	}

	return &StoredResult{
		ID:        resultID,
		JobID:     input.JobID,
		CacheKey:  sm.cache.Key(input.JobID),
		Size:      int64(len(input.Data)),
		ExpiresAt: expiresAt,
	}, nil
}

// GetResult returns a cached composed PDF.
func (sm *StorageManager) GetResult(ctx context.Context, jobID string) ([]byte, error) {
	return sm.cache.Get(ctx, jobID)
}

// UpdateJobStatus updates job status in PostgreSQL. Without a database it
// does nothing.
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if sm.postgres == nil {
		return nil
	}
	return sm.postgres.UpdateJobStatus(ctx, update)
}

// GetJobByID retrieves job by ID
func (sm *StorageManager) GetJobByID(ctx context.Context, jobID string) (*JobRecord, error) {
	if sm.postgres == nil {
		return nil, fmt.Errorf("job persistence is disabled")
	}
	return sm.postgres.GetJobByID(ctx, jobID)
}

// GetStats returns statistics from both systems
func (sm *StorageManager) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{}

	if err := sm.cache.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to reach result cache: %w", err)
	}
	stats["cache"] = map[string]interface{}{
		"prefix": sm.cache.prefix,
		"ttl":    sm.cache.ttl.String(),
	}

	if sm.postgres != nil {
		pgStats := sm.postgres.GetStats()
		stats["postgres"] = map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		}
	}

	return stats, nil
}

// Close closes the database connection. The Redis client belongs to the
// caller.
func (sm *StorageManager) Close() error {
	if sm.postgres != nil {
		if err := sm.postgres.Close(); err != nil {
			return fmt.Errorf("failed to close PostgreSQL: %w", err)
		}
	}
	return nil
}

func mergeMetadata(base, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
