package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"DealsIngestor/internal/ports"
	"DealsIngestor/pkg/logger"
)

// CronScheduler runs a job on a standard five-field cron expression.
// Overlapping runs are skipped and panics are recovered.
type CronScheduler struct {
	spec string
	loc  *time.Location
	log  *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
	quit chan struct{}
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler validates spec and binds it to loc.
func NewCronScheduler(spec string, loc *time.Location, log *slog.Logger) (*CronScheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &CronScheduler{spec: spec, loc: loc, log: log}, nil
}

// Start registers job and starts the cron loop. The loop stops when ctx is
// cancelled or Stop is called.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return errors.New("scheduler: nil job")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	cl := logger.NewCron(c.log)
	cr := cron.New(
		cron.WithLocation(c.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := cr.AddFunc(c.spec, func() { job(time.Now().In(c.loc)) }); err != nil {
		return fmt.Errorf("schedule job: %w", err)
	}
	cr.Start()
	c.cron = cr
	c.quit = make(chan struct{})
	c.log.Info("scheduler started", "cron", c.spec, "timezone", c.loc.String())

	go func(quit chan struct{}) {
		select {
		case <-ctx.Done():
			_ = c.Stop(context.Background())
		case <-quit:
		}
	}(c.quit)
	return nil
}

// Stop halts the loop and waits for a running job until ctx expires.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	cr, quit := c.cron, c.quit
	c.cron, c.quit = nil, nil
	c.mu.Unlock()
	if cr == nil {
		return nil
	}
	close(quit)

	done := cr.Stop()
	select {
	case <-done.Done():
		c.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports the next activation after t.
func (c *CronScheduler) Next(t time.Time) time.Time {
	sched, err := cron.ParseStandard(c.spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(t.In(c.loc))
}
