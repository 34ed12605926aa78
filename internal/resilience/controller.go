package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config groups the per-host policies.
type Config struct {
	Retry          RetryConfig
	Breaker        BreakerConfig
	RatePerSecond  float64
	Burst          int
	AttemptTimeout time.Duration
}

// StateObserver receives breaker transitions per host.
type StateObserver func(host string, from, to State)

type hostGuard struct {
	limiter *rate.Limiter
	breaker *Breaker
}

// Controller owns one limiter and one breaker per host.
type Controller struct {
	cfg      Config
	observer StateObserver
	logger   *slog.Logger

	mu    sync.Mutex
	hosts map[string]*hostGuard
}

// NewController builds a controller. observer may be nil.
func NewController(cfg Config, observer StateObserver, logger *slog.Logger) *Controller {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{cfg: cfg, observer: observer, logger: logger, hosts: map[string]*hostGuard{}}
}

func (c *Controller) guard(host string) *hostGuard {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.hosts[host]; ok {
		return g
	}
	g := &hostGuard{
		limiter: rate.NewLimiter(rate.Limit(c.cfg.RatePerSecond), c.cfg.Burst),
		breaker: NewBreaker(host, c.cfg.Breaker, func(from, to State) {
			c.logger.Warn("circuit breaker state change", "host", host, "from", from.String(), "to", to.String())
			if c.observer != nil {
				c.observer(host, from, to)
			}
		}),
	}
	c.hosts[host] = g
	return g
}

// BreakerState reports the breaker state of host.
func (c *Controller) BreakerState(host string) State {
	return c.guard(host).breaker.State()
}

// Do runs fn for host under the rate limit, the breaker and the retry policy.
// Each attempt gets its own timeout derived from ctx.
func (c *Controller) Do(ctx context.Context, host string, fn func(ctx context.Context) error) error {
	g := c.guard(host)
	attempt := 0
	return Retry(ctx, c.cfg.Retry, func(ctx context.Context) error {
		attempt++
		if g.breaker.State() == StateOpen {
			return fmt.Errorf("%w: %s", ErrCircuitOpen, host)
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return Permanent(err)
		}
		done, err := g.breaker.Allow()
		if err != nil {
			return err
		}
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		defer cancel()

		err = call(attemptCtx, fn)
		if ctx.Err() != nil {
			// Abandoned by the caller; says nothing about the host.
			done(nil)
		} else {
			done(err)
		}
		if err != nil {
			c.logger.Debug("outbound call failed", "host", host, "attempt", attempt, "error", err)
		}
		return err
	})
}

// tripsBreaker reports failures that say the host is unhealthy or blocking
// us. A 404 is an answer from a healthy host.
func tripsBreaker(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBlocked) {
		return true
	}
	var status *StatusError
	if errors.As(err, &status) && status.Code == http.StatusForbidden {
		return true
	}
	return IsRetryable(err)
}

func call(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("panic in outbound call: %v", r))
		}
	}()
	return fn(ctx)
}
