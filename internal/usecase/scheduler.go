package usecase

import (
	"context"
	"log/slog"
	"time"

	"DealsIngestor/internal/ports"
)

const (
	purgeTimeout = 5 * time.Minute
	staleReason  = "abandoned mid-pipeline: no progress within the message timeout"
)

// Retention removes terminal processing records older than a window and
// fails records that stopped making progress. Listings are never touched.
type Retention struct {
	store  ports.ProcessingStore
	window time.Duration
	logger *slog.Logger
	// StaleAfter is how long a non-terminal record may go without an update
	// before Sweep fails it. Zero disables the sweep.
	StaleAfter time.Duration
	// OnPurge, if set, receives the number of removed records.
	OnPurge func(n int64)
	// OnStale, if set, receives the number of records failed by Sweep.
	OnStale func(n int64)
}

func NewRetention(store ports.ProcessingStore, window time.Duration, logger *slog.Logger) *Retention {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Retention{store: store, window: window, logger: logger.With("component", "retention")}
}

// Purge deletes records whose last update is older than now minus the window.
func (r *Retention) Purge(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-r.window)
	n, err := r.store.PurgeTerminalBefore(ctx, cutoff)
	if err != nil {
		r.logger.Error("retention purge failed", "cutoff", cutoff, "error", err)
		return 0, err
	}
	r.logger.Info("retention purge done", "cutoff", cutoff, "removed", n)
	if r.OnPurge != nil {
		r.OnPurge(n)
	}
	return n, nil
}

// Sweep fails non-terminal records not updated for StaleAfter, so a crash
// mid-pipeline leaves a retryable FAILED record instead of a stuck one.
func (r *Retention) Sweep(ctx context.Context, now time.Time) (int64, error) {
	if r.StaleAfter <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-r.StaleAfter)
	n, err := r.store.FailStale(ctx, cutoff, staleReason)
	if err != nil {
		r.logger.Error("stale sweep failed", "cutoff", cutoff, "error", err)
		return 0, err
	}
	if n > 0 {
		r.logger.Warn("failed stale records", "cutoff", cutoff, "count", n)
	}
	if r.OnStale != nil {
		r.OnStale(n)
	}
	return n, nil
}

// Scheduler wires the cron driver with the retention use case.
type Scheduler struct {
	driver    ports.Scheduler
	retention *Retention
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(driver ports.Scheduler, retention *Retention) *Scheduler {
	return &Scheduler{driver: driver, retention: retention}
}

// Start registers the stale sweep and the retention purge with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.retention == nil {
		return nil
	}

	job := func(trigger time.Time) {
		jobCtx, cancel := context.WithTimeout(ctx, purgeTimeout)
		defer cancel()
		_, _ = s.retention.Sweep(jobCtx, trigger)
		_, _ = s.retention.Purge(jobCtx, trigger)
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
