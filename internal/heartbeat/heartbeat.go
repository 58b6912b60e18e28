// Package heartbeat runs the per-job liveness ping that lets the
// scheduler distinguish a slow job from a dead one.
package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/asset-processing/worker/internal/job"
)

// Patcher is the subset of the API client the companion needs.
type Patcher interface {
	PatchJob(ctx context.Context, id string, update job.JobUpdate) bool
}

// Companion pings the server with the current time on a fixed interval
// for the duration of one job's processing. Cancellation is observed
// between requests and during the sleep interval; patch failures are
// logged and the loop continues, since liveness is best-effort and the
// server makes the authoritative staleness judgment independently.
type Companion struct {
	client   Patcher
	interval time.Duration
	logger   *slog.Logger
}

// New builds a Companion that patches a job's heartbeat every interval;
// the job is chosen per call to Start.
func New(client Patcher, interval time.Duration, logger *slog.Logger) *Companion {
	if logger == nil {
		logger = slog.Default()
	}
	return &Companion{client: client, interval: interval, logger: logger}
}

// Start launches the heartbeat loop for jobID in a new goroutine and
// returns a function that cancels it and blocks until the goroutine has
// fully exited. Callers must call the returned stop function exactly
// once, before writing a job's terminal status, so no heartbeat can race
// the final PatchJob call.
func (c *Companion) Start(ctx context.Context, jobID string) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	var once sync.Once

	go func() {
		defer close(done)
		c.run(ctx, jobID)
	}()

	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (c *Companion) run(ctx context.Context, jobID string) {
	for {
		now := time.Now()
		ok := c.client.PatchJob(ctx, jobID, job.JobUpdate{
			Status:        job.StatusInProgress,
			LastHeartBeat: &now,
		})
		if !ok {
			c.logger.Warn("heartbeat: patch failed, continuing", "job_id", jobID)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.interval):
		}
	}
}
