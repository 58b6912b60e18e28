// Package bootstrap wires together the dependencies every other package
// in this service depends on: the API client, blob store, media
// segmenter, workspace manager, heartbeat companion, job processor,
// scheduler, and worker pool.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/asset-processing/worker/internal/apiclient"
	"github.com/asset-processing/worker/internal/blobstore"
	"github.com/asset-processing/worker/internal/config"
	"github.com/asset-processing/worker/internal/heartbeat"
	"github.com/asset-processing/worker/internal/job"
	"github.com/asset-processing/worker/internal/media"
	"github.com/asset-processing/worker/internal/processor"
	"github.com/asset-processing/worker/internal/scheduler"
	"github.com/asset-processing/worker/internal/worker"
	"github.com/asset-processing/worker/internal/workspace"
)

// Dependencies holds every initialized component the supervisor needs to
// start the service.
type Dependencies struct {
	Client    *apiclient.HTTPClient
	Fetcher   *scheduler.Fetcher
	Pool      *worker.Pool
	Queue     chan job.Job
	Metrics   *worker.Metrics
	Workspace *workspace.Manager
}

// New builds and wires all dependencies from cfg. It does not start any
// background goroutines; the caller's supervisor is responsible for
// calling Run on the Fetcher and Pool.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	blobCfg := blobstore.Config{
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	}

	var blobClient *blobstore.Client
	if cfg.S3Enabled() {
		var err error
		blobClient, err = blobstore.NewClient(ctx, blobCfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 blob store: %w", err)
		}
		logger.Info("blob store configured", slog.String("backend", "s3"), slog.String("region", cfg.S3Region))
	} else {
		logger.Info("blob store configured", slog.String("backend", "http"))
	}

	client, err := apiclient.NewClient(cfg.APIBaseURL, cfg.ServerAPIKey,
		apiclient.WithLogger(logger),
		apiclient.WithBlobStore(blobClient),
	)
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}

	wsManager, err := workspace.NewManager(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create workspace manager: %w", err)
	}
	logger.Info("workspace manager configured", slog.String("temp_dir", cfg.TempDir))

	ffmpegPath := cfg.FfmpegPath
	if resolved, lookErr := exec.LookPath(ffmpegPath); lookErr != nil {
		logger.Warn("ffmpeg not found in PATH; media segmentation will fail", slog.String("ffmpeg_path", ffmpegPath))
	} else {
		ffmpegPath = resolved
		logger.Info("media segmenter initialized", slog.String("ffmpeg_path", ffmpegPath))
	}
	segmenter := media.NewFFmpegSegmenter(ffmpegPath)

	heartbeats := heartbeat.New(client, time.Duration(cfg.HeartbeatIntervalSeconds)*time.Second, logger)

	proc := processor.New(client, heartbeats, wsManager, segmenter, processor.Config{
		MaxChunkSizeBytes: cfg.MaxChunkSizeBytes,
		FFmpegTimeout:     time.Duration(cfg.FfmpegTimeoutSeconds) * time.Second,
		Logger:            logger,
	})

	queue := make(chan job.Job, cfg.MaxNumWorkers*2)

	fetcher := scheduler.New(client, queue, scheduler.Config{
		StuckJobThresholdSeconds: cfg.StuckJobThresholdSeconds,
		MaxJobAttempts:           cfg.MaxJobAttempts,
		Logger:                   logger,
	})

	metrics := worker.InitMetrics()
	pool := worker.New(queue, proc, fetcher, cfg.MaxNumWorkers, logger, metrics)

	logger.Info("dependencies initialized",
		slog.Int("max_num_workers", cfg.MaxNumWorkers),
		slog.Int("max_job_attempts", cfg.MaxJobAttempts),
		slog.Int("stuck_job_threshold_seconds", cfg.StuckJobThresholdSeconds),
	)

	return &Dependencies{
		Client:    client,
		Fetcher:   fetcher,
		Pool:      pool,
		Queue:     queue,
		Metrics:   metrics,
		Workspace: wsManager,
	}, nil
}
