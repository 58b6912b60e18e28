// Package processor implements the per-job pipeline: fetch the asset,
// download its blob, dispatch by file type, and report a terminal
// status back to the server.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/asset-processing/worker/internal/heartbeat"
	"github.com/asset-processing/worker/internal/job"
	"github.com/asset-processing/worker/internal/media"
	"github.com/asset-processing/worker/internal/workspace"
)

// ErrUnsupportedType is returned (wrapped) when an asset's file type is
// not one this service knows how to dispatch.
var ErrUnsupportedType = errors.New("processor: unsupported content type")

// APIClient is the subset of apiclient.Client the processor depends on.
type APIClient interface {
	PatchJob(ctx context.Context, id string, update job.JobUpdate) bool
	FetchAsset(ctx context.Context, assetID string) (job.Asset, bool)
	FetchBlob(ctx context.Context, url string) ([]byte, error)
	PatchAssetContent(ctx context.Context, assetID, content string) bool
}

// HeartbeatStarter starts a heartbeat loop for a job and returns a stop
// function, matching heartbeat.Companion.Start.
type HeartbeatStarter interface {
	Start(ctx context.Context, jobID string) (stop func())
}

// Workspace is the subset of workspace.Manager the processor depends on.
type Workspace interface {
	Open(jobID string) (*workspace.Job, error)
}

// Processor runs a single job to a terminal, server-visible outcome.
type Processor struct {
	client            APIClient
	heartbeats        HeartbeatStarter
	workspace         Workspace
	segmenter         media.Segmenter
	maxChunkSizeBytes int64
	ffmpegTimeout     time.Duration
	logger            *slog.Logger
}

// Config configures a Processor.
type Config struct {
	MaxChunkSizeBytes int64
	FFmpegTimeout     time.Duration
	Logger            *slog.Logger
}

// New builds a Processor from its collaborators.
func New(client APIClient, heartbeats HeartbeatStarter, ws Workspace, segmenter media.Segmenter, cfg Config) *Processor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		client:            client,
		heartbeats:        heartbeats,
		workspace:         ws,
		segmenter:         segmenter,
		maxChunkSizeBytes: cfg.MaxChunkSizeBytes,
		ffmpegTimeout:     cfg.FFmpegTimeout,
		logger:            logger,
	}
}

// Process runs j to completion. It returns nil on success; on any
// failure it has already recorded the job as failed via PatchJob and
// returns the error purely for the caller's own logging.
//
// The heartbeat is always stopped — and its goroutine's exit awaited —
// before the terminal PatchJob call, so that patch is guaranteed to be
// the last write this run makes for the job. The deferred stop() is a
// safety net for paths that return before reaching a fail()/success
// call; the stop function returned by Companion.Start is idempotent, so
// calling it twice is harmless.
func (p *Processor) Process(ctx context.Context, j job.Job) error {
	stop := p.heartbeats.Start(ctx, j.ID)
	defer stop()

	ws, err := p.workspace.Open(j.ID)
	if err != nil {
		return p.fail(ctx, j, stop, fmt.Errorf("open workspace: %w", err))
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			p.logger.Warn("processor: workspace cleanup failed", "job_id", j.ID, "error", cerr)
		}
	}()

	if ok := p.client.PatchJob(ctx, j.ID, job.JobUpdate{Status: job.StatusInProgress}); !ok {
		p.logger.Warn("processor: failed to patch in_progress, continuing", "job_id", j.ID)
	}

	asset, ok := p.client.FetchAsset(ctx, j.AssetID)
	if !ok {
		return p.fail(ctx, j, stop, fmt.Errorf("asset %s not found", j.AssetID))
	}

	blob, err := p.client.FetchBlob(ctx, asset.FileURL)
	if err != nil {
		return p.fail(ctx, j, stop, fmt.Errorf("fetch blob: %w", err))
	}

	var content string
	switch asset.FileType {
	case job.FileTypeText, job.FileTypeMarkdown:
		content = string(blob)
	case job.FileTypeAudio:
		content, err = p.processAudio(ctx, ws, asset, blob)
	case job.FileTypeVideo:
		content, err = p.processVideo(ctx, ws, asset, blob)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedType, asset.FileType)
	}
	if err != nil {
		return p.fail(ctx, j, stop, err)
	}

	stop()

	if ok := p.client.PatchAssetContent(ctx, asset.ID, content); !ok {
		p.logger.Warn("processor: failed to patch asset content, continuing", "job_id", j.ID)
	}

	if ok := p.client.PatchJob(ctx, j.ID, job.JobUpdate{Status: job.StatusCompleted}); !ok {
		p.logger.Warn("processor: failed to patch completed status", "job_id", j.ID)
	}

	return nil
}

func (p *Processor) processAudio(ctx context.Context, ws *workspace.Job, asset job.Asset, blob []byte) (string, error) {
	srcPath, err := ws.WriteFile(filepath.Base(asset.FileName), strings.NewReader(string(blob)))
	if err != nil {
		return "", fmt.Errorf("materialize asset: %w", err)
	}

	chunks, err := p.segmenter.SegmentAudio(ctx, srcPath, media.Options{
		MaxChunkSizeBytes: p.maxChunkSizeBytes,
		WorkDir:           ws.Dir(),
		BaseName:          filepath.Base(asset.FileName),
		Timeout:           p.ffmpegTimeout,
	})
	if err != nil {
		return "", fmt.Errorf("segment audio: %w", err)
	}

	tags, _ := media.ProbeTags(srcPath)
	return summarize("audio", chunks, tags), nil
}

func (p *Processor) processVideo(ctx context.Context, ws *workspace.Job, asset job.Asset, blob []byte) (string, error) {
	srcPath, err := ws.WriteFile(filepath.Base(asset.FileName), strings.NewReader(string(blob)))
	if err != nil {
		return "", fmt.Errorf("materialize asset: %w", err)
	}

	chunks, err := p.segmenter.SegmentVideo(ctx, srcPath, media.Options{
		MaxChunkSizeBytes: p.maxChunkSizeBytes,
		WorkDir:           ws.Dir(),
		BaseName:          filepath.Base(asset.FileName),
		Timeout:           p.ffmpegTimeout,
	})
	if err != nil {
		return "", fmt.Errorf("segment video: %w", err)
	}

	tags, _ := media.ProbeTags(srcPath)
	return summarize("video", chunks, tags), nil
}

// summarize builds the Stage 1 content record: a summary of the chunks
// produced by segmentation (since this service does not transcribe them)
// plus any title/artist tag information the source file carried.
func summarize(stage string, chunks []job.AudioChunk, tags media.Metadata) string {
	var b strings.Builder
	var total int64

	fmt.Fprintf(&b, "stage=%s chunks=%d\n", stage, len(chunks))
	if tags.Title != "" {
		fmt.Fprintf(&b, "title=%s\n", tags.Title)
	}
	if tags.Artist != "" {
		fmt.Fprintf(&b, "artist=%s\n", tags.Artist)
	}
	for _, c := range chunks {
		fmt.Fprintf(&b, "- %s (%d bytes)\n", c.FileName, c.Size)
		total += c.Size
	}
	fmt.Fprintf(&b, "total_size=%d\n", total)

	return b.String()
}

// fail stops the heartbeat, records the job as failed, and returns the
// wrapped error for the caller's own logging; it never returns nil.
// stop is called first so the heartbeat goroutine has fully exited
// before the terminal PatchJob is sent, guaranteeing that patch is the
// last write this run makes for the job.
func (p *Processor) fail(ctx context.Context, j job.Job, stop func(), cause error) error {
	stop()

	errMsg := cause.Error()
	attempts := j.Attempts + 1
	if ok := p.client.PatchJob(ctx, j.ID, job.JobUpdate{
		Status:       job.StatusFailed,
		ErrorMessage: &errMsg,
		Attempts:     &attempts,
	}); !ok {
		p.logger.Warn("processor: failed to patch failed status", "job_id", j.ID, "cause", cause)
	}
	return cause
}
