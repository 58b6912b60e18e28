// Package main provides the entry point for the asset-processing worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/asset-processing/worker/internal/bootstrap"
	"github.com/asset-processing/worker/internal/config"
	"github.com/asset-processing/worker/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting asset-processing worker",
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.Int("max_num_workers", cfg.MaxNumWorkers),
		slog.Int("max_job_attempts", cfg.MaxJobAttempts),
		slog.Int("stuck_job_threshold_seconds", cfg.StuckJobThresholdSeconds),
		slog.Int("heartbeat_interval_seconds", cfg.HeartbeatIntervalSeconds),
		slog.Int("metrics_port", cfg.MetricsPort),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	deps, err := bootstrap.New(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	sup := supervisor.New(deps, logger, cfg.MetricsPort, cfg.HeartbeatIntervalSeconds)
	return sup.Run()
}
