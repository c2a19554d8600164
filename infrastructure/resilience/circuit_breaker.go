// Package resilience provides the fetcher's fault-tolerance primitives:
// a circuit breaker (the fetcher keeps one per source id) and a bounded
// retry helper.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the circuit breaker's state.
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

// ErrCircuitOpen is returned by Execute when the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config controls breaker thresholds. Defaults match spec.md §4.3: open
// after 5 failures (300s failure-counter TTL), stay open for 120s.
type Config struct {
	MaxFailures int
	FailureTTL  time.Duration
	OpenTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{MaxFailures: 5, FailureTTL: 300 * time.Second, OpenTimeout: 120 * time.Second}
}

// CircuitBreaker is a minimal closed/open/half-open breaker keyed externally
// (one instance per source id, held in the fetcher's in-process breakers
// map).
type CircuitBreaker struct {
	mu          sync.Mutex
	config      Config
	state       State
	failures    int
	lastFailure time.Time
	openedAt    time.Time
}

func New(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.FailureTTL <= 0 {
		cfg.FailureTTL = 300 * time.Second
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 120 * time.Second
	}
	return &CircuitBreaker{config: cfg, state: StateClosed}
}

// Allow reports whether a new request may proceed, transitioning Open ->
// HalfOpen once the open timeout elapses.
func (cb *CircuitBreaker) Allow(now time.Time) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if now.Sub(cb.openedAt) >= cb.config.OpenTimeout {
			cb.state = StateHalfOpen
			return true
		}
		return false
	}
	return true
}

// RecordSuccess resets the failure counter and closes the breaker.
func (cb *CircuitBreaker) RecordSuccess(now time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = StateClosed
}

// RecordFailure increments the failure counter (expiring it after FailureTTL
// of inactivity) and opens the breaker once MaxFailures is reached.
func (cb *CircuitBreaker) RecordFailure(now time.Time) (opened bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.lastFailure.IsZero() && now.Sub(cb.lastFailure) > cb.config.FailureTTL {
		cb.failures = 0
	}
	cb.lastFailure = now
	cb.failures++

	if cb.state == StateHalfOpen || cb.failures >= cb.config.MaxFailures {
		if cb.state != StateOpen {
			opened = true
		}
		cb.state = StateOpen
		cb.openedAt = now
	}
	return opened
}

// State returns the current state (for tests/metrics).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute runs fn under breaker protection, translating blocked calls into
// ErrCircuitOpen.
func (cb *CircuitBreaker) Execute(ctx context.Context, now time.Time, fn func() error) error {
	if !cb.Allow(now) {
		return ErrCircuitOpen
	}
	err := fn()
	if err != nil {
		cb.RecordFailure(now)
		return err
	}
	cb.RecordSuccess(now)
	return nil
}
