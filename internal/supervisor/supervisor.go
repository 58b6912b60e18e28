// Package supervisor starts the scheduler and worker pool, serves
// Prometheus metrics, and coordinates a graceful shutdown on SIGINT/SIGTERM.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asset-processing/worker/internal/bootstrap"
)

// Supervisor owns the lifetime of the fetcher, worker pool, and metrics
// server, and brings them all down together on shutdown.
type Supervisor struct {
	deps                     *bootstrap.Dependencies
	logger                   *slog.Logger
	metricsPort              int
	heartbeatIntervalSeconds int
}

// New builds a Supervisor from already-wired dependencies.
func New(deps *bootstrap.Dependencies, logger *slog.Logger, metricsPort, heartbeatIntervalSeconds int) *Supervisor {
	return &Supervisor{
		deps:                     deps,
		logger:                   logger,
		metricsPort:              metricsPort,
		heartbeatIntervalSeconds: heartbeatIntervalSeconds,
	}
}

// Run starts the fetcher, worker pool, and metrics server, and blocks
// until SIGINT/SIGTERM is received or the metrics server reports a fatal
// error. On a signal, shutdown cancels the shared context and waits up to
// one heartbeat interval for the fetcher and worker pool to exit; if they
// have not exited by then, it logs a warning and proceeds to stop the
// metrics server anyway.
func (s *Supervisor) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.metricsPort),
		Handler: promhttp.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("metrics server listening", slog.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server failed: %w", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.deps.Fetcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.deps.Pool.Run(ctx)
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-shutdownCh:
		s.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		cancel()
		return err
	}

	cancel()

	drainDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(drainDone)
	}()

	grace := time.Duration(s.heartbeatIntervalSeconds) * time.Second
	select {
	case <-drainDone:
		s.logger.Info("fetcher and worker pool stopped gracefully")
	case <-time.After(grace):
		s.logger.Warn("shutdown grace period elapsed before workers drained", slog.Duration("grace", grace))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}

	s.logger.Info("supervisor stopped gracefully")
	return nil
}
