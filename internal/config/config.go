/**
 * Configuration for the Notes Worker
 *
 * Loads configuration from environment variables matching .env.notes
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adverant/nexus/pdfnotes-worker/internal/normalize"
	"github.com/adverant/nexus/pdfnotes-worker/internal/notes"
)

// Queue backends.
const (
	BackendList  = "list"
	BackendAsynq = "asynq"
)

const (
	minFileSize = 1024
	maxFileSize = 1 << 30
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL string

	// PostgreSQL configuration; empty disables job persistence
	DatabaseURL string

	// Queue configuration
	QueueBackend string
	QueueName    string

	// Service URLs
	ArtifactAPIURL  string // File API for permanent storage of composed PDFs
	ArtifactTTLDays int

	// Worker configuration
	WorkerConcurrency int
	MaxFileSize       int64
	ProcessingTimeout int // milliseconds
	ResultTTL         time.Duration

	// Temporary directory for intermediate documents
	TempDir string

	// Logging
	LogLevel  string
	LogFormat string

	// Processing defaults
	NormalizePolicy normalize.Policy
	DefaultLayout   notes.Layout
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://nexus-redis:6379"),
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", ""),
		QueueBackend:      strings.ToLower(getEnvOrDefault("QUEUE_BACKEND", BackendList)),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "notes:jobs"),
		ArtifactAPIURL:    getEnvOrDefault("ARTIFACT_API_URL", ""),
		ArtifactTTLDays:   getEnvAsIntOrDefault("ARTIFACT_TTL_DAYS", 0),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		MaxFileSize:       getEnvAsInt64OrDefault("MAX_FILE_SIZE", 104857600), // 100MB
		ProcessingTimeout: getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 300000), // 5 minutes
		ResultTTL:         getEnvAsDurationOrDefault("RESULT_TTL", 24*time.Hour),
		TempDir:           getEnvOrDefault("TEMP_DIR", "/tmp/pdfnotes"),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         getEnvOrDefault("LOG_FORMAT", "text"),
	}

	policy, err := normalize.ParsePolicy(os.Getenv("NORMALIZE_POLICY"))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: NORMALIZE_POLICY: %w", err)
	}
	cfg.NormalizePolicy = policy

	raw, err := layoutFromEnv()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	// The default layout goes through the same parser as job payloads.
	if cfg.DefaultLayout, err = notes.ParseLayout(raw); err != nil {
		return nil, fmt.Errorf("configuration validation failed: default layout: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// layoutFromEnv reads the NOTES_* variables. Unset variables fall back to
// notes.DefaultLayout when the layout is parsed.
func layoutFromEnv() (notes.RawLayout, error) {
	raw := notes.RawLayout{
		Style:           os.Getenv("NOTES_STYLE"),
		Placement:       os.Getenv("NOTES_PLACEMENT"),
		Font:            os.Getenv("NOTES_FONT"),
		LineColor:       os.Getenv("NOTES_LINE_COLOR"),
		BackgroundColor: os.Getenv("NOTES_BACKGROUND_COLOR"),
		TextColor:       os.Getenv("NOTES_TEXT_COLOR"),
	}

	if v := os.Getenv("NOTES_SPACING"); v != "" {
		spacing, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return raw, fmt.Errorf("NOTES_SPACING must be a number, got %q", v)
		}
		raw.Spacing = spacing
	}

	// An explicitly empty title disables the title.
	if v, ok := os.LookupEnv("NOTES_TITLE"); ok {
		raw.Title = &v
	}

	if v := os.Getenv("NOTES_INCLUDE_DATE"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			return raw, fmt.Errorf("NOTES_INCLUDE_DATE must be a boolean, got %q", v)
		}
		raw.IncludeDate = &include
	}

	return raw, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.QueueBackend != BackendList && c.QueueBackend != BackendAsynq {
		return fmt.Errorf("QUEUE_BACKEND must be %q or %q, got %q", BackendList, BackendAsynq, c.QueueBackend)
	}

	if c.QueueName == "" {
		return fmt.Errorf("QUEUE_NAME is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxFileSize < minFileSize || c.MaxFileSize > maxFileSize { // 1KB to 1GB
		return fmt.Errorf("MAX_FILE_SIZE must be between 1KB and 1GB, got %d", c.MaxFileSize)
	}

	if c.ProcessingTimeout < 1000 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be at least 1000ms, got %d", c.ProcessingTimeout)
	}

	if c.ResultTTL < time.Minute {
		return fmt.Errorf("RESULT_TTL must be at least 1m, got %s", c.ResultTTL)
	}

	if c.ArtifactTTLDays < 0 {
		return fmt.Errorf("ARTIFACT_TTL_DAYS must not be negative, got %d", c.ArtifactTTLDays)
	}

	if err := c.DefaultLayout.Validate(); err != nil {
		return fmt.Errorf("default layout: %w", err)
	}

	return nil
}

// Timeout returns ProcessingTimeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.ProcessingTimeout) * time.Millisecond
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsDurationOrDefault accepts Go durations ("90m") or bare seconds.
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
