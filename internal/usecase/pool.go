package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var ErrPoolClosed = errors.New("worker pool is draining")

const (
	MinWorkers = 4
	MaxWorkers = 16
)

// Job is one unit of pool work.
type Job func(ctx context.Context) error

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Size      int   `json:"size"`
	Active    int64 `json:"active"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Pool runs jobs on a bounded number of goroutines. Each job gets its own
// deadline detached from the submitter's cancellation, so shutdown lets
// in-flight messages finish instead of failing them.
type Pool struct {
	size    int
	timeout time.Duration
	sem     chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool

	active    atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
}

// NewPool clamps size to [MinWorkers, MaxWorkers].
func NewPool(size int, timeout time.Duration, logger *slog.Logger) *Pool {
	size = min(max(size, MinWorkers), MaxWorkers)
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pool{
		size:    size,
		timeout: timeout,
		sem:     make(chan struct{}, size),
		logger:  logger.With("component", "pool"),
	}
}

// Submit blocks until a worker slot frees up or ctx is done, then runs job
// in the background.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrPoolClosed
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		<-p.sem
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		p.execute(ctx, job)
	}()
	return nil
}

func (p *Pool) execute(parent context.Context, job Job) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), p.timeout)
	defer cancel()

	p.active.Add(1)
	defer p.active.Add(-1)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		return job(ctx)
	}()

	p.processed.Add(1)
	if err != nil {
		p.failed.Add(1)
		p.logger.Debug("job finished with error", "error", err)
	}
}

// Drain stops accepting jobs and waits for running ones or ctx.
func (p *Pool) Drain(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool drained", "processed", p.processed.Load())
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool drain timed out", "active", p.active.Load())
		return ctx.Err()
	}
}

func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Size:      p.size,
		Active:    p.active.Load(),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}
