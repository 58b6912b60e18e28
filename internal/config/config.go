// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrServerAPIKeyRequired is returned when SERVER_API_KEY is not set.
	ErrServerAPIKeyRequired = errors.New("config: SERVER_API_KEY is required")
	// ErrTempDirNotAbsolute is returned when TEMP_DIR is not an absolute path.
	ErrTempDirNotAbsolute = errors.New("config: TEMP_DIR must be an absolute path")
)

// Config holds all configuration for the application.
type Config struct {
	// Asset API settings.
	ServerAPIKey string `env:"SERVER_API_KEY, required" json:"-"` // Masked in JSON
	APIBaseURL   string `env:"API_BASE_URL, default=http://localhost:3000" json:"api_base_url"`

	// Scheduling / retry policy.
	StuckJobThresholdSeconds int `env:"STUCK_JOB_THRESHOLD_SECONDS, default=30" json:"stuck_job_threshold_seconds"`
	MaxJobAttempts           int `env:"MAX_JOB_ATTEMPTS, default=3" json:"max_job_attempts"`
	MaxNumWorkers            int `env:"MAX_NUM_WORKERS, default=2" json:"max_num_workers"`
	HeartbeatIntervalSeconds int `env:"HEARTBEAT_INTERVAL_SECONDS, default=10" json:"heartbeat_interval_seconds"`

	// Media processing.
	MaxChunkSizeBytes    int64  `env:"MAX_CHUNK_SIZE_BYTES, default=26214400" json:"max_chunk_size_bytes"`
	TempDir              string `env:"TEMP_DIR" json:"temp_dir"`
	FfmpegPath           string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FfmpegTimeoutSeconds int    `env:"FFMPEG_TIMEOUT_SECONDS, default=300" json:"ffmpeg_timeout_seconds"`

	// Optional S3 settings, enabling s3:// blob URLs.
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Observability.
	MetricsPort int    `env:"METRICS_PORT, default=9090" json:"metrics_port"`
	LogFormat   string `env:"LOG_FORMAT, default=text" json:"log_format"`
	LogLevel    string `env:"LOG_LEVEL, default=info" json:"log_level"`
}

// S3Enabled returns true if S3 configuration is provided, enabling
// s3:// blob downloads in the API client.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
// TempDir defaults to the OS temp directory joined with "asset-processing"
// when unset, since the default must be resolved at runtime rather than
// hardcoded as a literal path.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		if strings.Contains(err.Error(), "SERVER_API_KEY") {
			return nil, ErrServerAPIKeyRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "asset-processing")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and that
// TempDir is an absolute path, refusing startup otherwise.
func (c *Config) Validate() error {
	if c.ServerAPIKey == "" {
		return ErrServerAPIKeyRequired
	}
	if !filepath.IsAbs(c.TempDir) {
		return fmt.Errorf("%w: got %q", ErrTempDirNotAbsolute, c.TempDir)
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive
// values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{APIBaseURL: %s, StuckJobThresholdSeconds: %d, MaxJobAttempts: %d, "+
			"MaxNumWorkers: %d, HeartbeatIntervalSeconds: %d, MaxChunkSizeBytes: %d, "+
			"TempDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.APIBaseURL,
		c.StuckJobThresholdSeconds,
		c.MaxJobAttempts,
		c.MaxNumWorkers,
		c.HeartbeatIntervalSeconds,
		c.MaxChunkSizeBytes,
		c.TempDir,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
