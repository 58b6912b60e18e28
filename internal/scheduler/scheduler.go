// Package scheduler polls the Asset API for jobs, classifies each by
// status and heartbeat staleness, and enqueues eligible jobs for the
// worker pool. It owns the in-flight set that keeps a job from being
// enqueued twice while a worker still holds it.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/asset-processing/worker/internal/job"
)

// Lister is the subset of apiclient.Client the scheduler depends on for
// observing job state.
type Lister interface {
	ListJobs(ctx context.Context) []job.Job
	PatchJob(ctx context.Context, id string, update job.JobUpdate) bool
}

const (
	defaultPollInterval     = 1 * time.Second
	defaultClassifyYield    = 3 * time.Second
	defaultOuterLoopBackoff = 3 * time.Second
)

// Fetcher runs the classify-and-dispatch loop described by the worker's
// scheduling policy.
type Fetcher struct {
	client                   Lister
	queue                    chan job.Job
	stuckJobThresholdSeconds int
	maxJobAttempts           int
	logger                   *slog.Logger

	pollInterval     time.Duration
	classifyYield    time.Duration
	outerLoopBackoff time.Duration

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// Config configures a Fetcher.
type Config struct {
	StuckJobThresholdSeconds int
	MaxJobAttempts           int
	Logger                   *slog.Logger
}

// New builds a Fetcher that pushes eligible jobs onto queue.
func New(client Lister, queue chan job.Job, cfg Config) *Fetcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:                   client,
		queue:                    queue,
		stuckJobThresholdSeconds: cfg.StuckJobThresholdSeconds,
		maxJobAttempts:           cfg.MaxJobAttempts,
		logger:                   logger,
		pollInterval:             defaultPollInterval,
		classifyYield:            defaultClassifyYield,
		outerLoopBackoff:         defaultOuterLoopBackoff,
		inFlight:                 make(map[string]struct{}),
	}
}

// Release removes jobID from the in-flight set. The worker pool calls
// this unconditionally after a job finishes processing, win or lose, so
// the scheduler is free to re-dispatch it if the server still shows it
// eligible.
func (f *Fetcher) Release(jobID string) {
	f.mu.Lock()
	delete(f.inFlight, jobID)
	f.mu.Unlock()
}

// Run executes the outer poll loop until ctx is cancelled.
func (f *Fetcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(f.pollInterval):
		}

		if err := f.pollOnce(ctx); err != nil {
			f.logger.Error("scheduler: poll failed, backing off", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(f.outerLoopBackoff):
			}
		}
	}
}

// pollOnce lists and classifies jobs once. A panic during the cycle is
// recovered and returned as an error so Run logs it and backs off.
func (f *Fetcher) pollOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: recovered from panic: %v", r)
		}
	}()

	jobs := f.client.ListJobs(ctx)

	for _, j := range jobs {
		f.classify(ctx, j)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.classifyYield):
		}
	}

	return nil
}

func (f *Fetcher) classify(ctx context.Context, j job.Job) {
	stale := time.Since(j.LastHeartBeat).Abs() > time.Duration(f.stuckJobThresholdSeconds)*time.Second

	switch j.Status {
	case job.StatusInProgress:
		f.classifyInProgress(ctx, j, stale)
	case job.StatusCreated, job.StatusFailed, job.StatusStuck:
		f.classifyEligible(ctx, j)
	case job.StatusMaxAttemptsExceeded:
		f.Release(j.ID)
	default:
		f.logger.Warn("scheduler: ignoring job with unknown status", "job_id", j.ID, "status", j.Status)
	}
}

func (f *Fetcher) classifyInProgress(ctx context.Context, j job.Job, stale bool) {
	if j.Attempts >= f.maxJobAttempts {
		f.exceedMaxAttempts(ctx, j)
		return
	}

	if stale {
		f.Release(j.ID)
		errMsg := "Job is stuck"
		attempts := j.Attempts + 1
		now := time.Now()
		f.client.PatchJob(ctx, j.ID, job.JobUpdate{
			Status:        job.StatusStuck,
			ErrorMessage:  &errMsg,
			Attempts:      &attempts,
			LastHeartBeat: &now,
		})
	}
}

// classifyEligible handles created/failed/stuck jobs: stuck is folded in
// here because a job the scheduler previously marked stuck re-enters
// this branch once the server reports it back as created or failed.
func (f *Fetcher) classifyEligible(ctx context.Context, j job.Job) {
	if j.Attempts >= f.maxJobAttempts {
		f.exceedMaxAttempts(ctx, j)
		return
	}

	f.mu.Lock()
	_, inFlight := f.inFlight[j.ID]
	if !inFlight {
		f.inFlight[j.ID] = struct{}{}
	}
	f.mu.Unlock()

	if inFlight {
		return
	}

	select {
	case f.queue <- j:
	case <-ctx.Done():
		f.Release(j.ID)
	}
}

func (f *Fetcher) exceedMaxAttempts(ctx context.Context, j job.Job) {
	errMsg := "Max attempts exceeded"
	f.client.PatchJob(ctx, j.ID, job.JobUpdate{
		Status:       job.StatusMaxAttemptsExceeded,
		ErrorMessage: &errMsg,
		Attempts:     &j.Attempts,
	})
}
