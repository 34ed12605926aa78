// Package resilience wraps outbound calls with per-host rate limiting,
// circuit breaking and bounded retries.
package resilience

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

var (
	// ErrCircuitOpen is returned without calling out while a host's breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrBlocked marks a response recognised as a bot wall or captcha.
	ErrBlocked = errors.New("blocked by remote host")
)

// State represents the state of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

func stateOf(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int
	// SuccessThreshold is the number of successful half-open calls needed to close again.
	SuccessThreshold int
	// Cooldown is how long the breaker stays open before admitting a trial call.
	Cooldown time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	return c
}

// Breaker is a consecutive-failure circuit breaker. Half-open admits
// SuccessThreshold calls at a time.
type Breaker struct {
	cb *gobreaker.TwoStepCircuitBreaker[struct{}]
}

// NewBreaker creates a breaker named after the guarded host. onChange may be nil.
func NewBreaker(name string, cfg BreakerConfig, onChange func(from, to State)) *Breaker {
	cfg = cfg.withDefaults()
	threshold := uint32(cfg.FailureThreshold)
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(cfg.SuccessThreshold),
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	if onChange != nil {
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			onChange(stateOf(from), stateOf(to))
		}
	}
	return &Breaker{cb: gobreaker.NewTwoStepCircuitBreaker[struct{}](settings)}
}

// State returns the current state.
func (b *Breaker) State() State {
	return stateOf(b.cb.State())
}

// Allow reports whether a call may proceed. On success the caller must invoke
// done exactly once with the call's outcome. Only errors that say the host is
// unhealthy count as failures.
func (b *Breaker) Allow() (done func(err error), err error) {
	report, err := b.cb.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
		}
		return nil, err
	}
	return func(err error) { report(!tripsBreaker(err)) }, nil
}
