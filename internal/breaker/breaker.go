// Package breaker implements a three-state circuit breaker gating attempts
// against a failure-prone remote. Grounded on
// internal/reliability/circuit_breaker.go of the teacher repo: the same
// state enum, the same lock-around-everything shape, the same transition
// logging — generalized to the exact Closed/Open/HalfOpen transition
// table and error-kind failure filtering the client core requires.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/commiterr/ratewise/internal/logger"
)

// State is one of the three breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrorKind classifies the cause of a recorded failure, used to filter
// which failures count toward the breaker per Config.ExpectedKinds /
// ExcludedKinds. An empty Kind ("") means "no specific cause" and is
// always counted.
type ErrorKind string

const (
	KindTimeout           ErrorKind = "timeout"
	KindConnectionFailure ErrorKind = "connection_failure"
	KindServerError       ErrorKind = "server_error"
	KindRateLimit         ErrorKind = "rate_limit"
	KindOther             ErrorKind = "other"
)

// Config configures a Breaker. Zero value is invalid; use New to validate.
type Config struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	RecoveryTimeout  time.Duration
	ExpectedKinds    []ErrorKind // if non-empty, only these kinds count
	ExcludedKinds    []ErrorKind // these kinds never count, even if expected
	Events           *logger.EventLogger // optional; nil falls back to a plain log line
}

// ErrInvalidConfig is returned by New when Config fails validation.
var ErrInvalidConfig = errors.New("breaker: invalid config")

func (c Config) validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("%w: failure_threshold must be >= 1, got %d", ErrInvalidConfig, c.FailureThreshold)
	}
	if c.SuccessThreshold < 1 {
		return fmt.Errorf("%w: success_threshold must be >= 1, got %d", ErrInvalidConfig, c.SuccessThreshold)
	}
	if c.RecoveryTimeout <= 0 {
		return fmt.Errorf("%w: recovery_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// StateSnapshot is an immutable view of breaker state.
type StateSnapshot struct {
	State           State
	FailureCount    int
	SuccessCount    int
	LastFailureTime time.Time
	RecoveryTimeout time.Duration
}

// Metrics counts lifetime breaker activity.
type Metrics struct {
	TotalCalls       int64
	SuccessfulCalls  int64
	FailedCalls      int64
	RejectedCalls    int64
	StateTransitions int64
}

// OpenError is returned by Allow when the breaker denies a call.
type OpenError struct {
	Name            string
	FailureCount    int
	RecoveryTimeout time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("breaker %q is open (failure_count=%d, recovery_timeout=%s)", e.Name, e.FailureCount, e.RecoveryTimeout)
}

// Breaker is a three-state circuit breaker. All mutating and reading
// operations serialize on a single mutex. Listeners are invoked after the
// mutex is released, carrying an already-captured before/after pair, so a
// listener calling back into State()/Stats()/Allow never deadlocks on a
// non-reentrant mutex.
type Breaker struct {
	cfg Config

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	metrics         Metrics
	listeners       []func(from, to State)
}

// New validates cfg and constructs a Breaker starting in StateClosed.
func New(cfg Config) (*Breaker, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Breaker{cfg: cfg, state: StateClosed}, nil
}

// Allow reports whether a call may proceed. A denial increments
// RejectedCalls and returns an *OpenError; it does not count as a new
// failure.
func (b *Breaker) Allow() error {
	b.mu.Lock()

	b.metrics.TotalCalls++

	if b.state == StateOpen {
		if time.Since(b.lastFailureTime) >= b.cfg.RecoveryTimeout {
			from, to := b.state, StateHalfOpen
			b.applyTransitionLocked(to)
			b.mu.Unlock()
			b.notifyListeners(from, to)
			return nil
		}
		b.metrics.RejectedCalls++
		err := &OpenError{Name: b.cfg.Name, FailureCount: b.failureCount, RecoveryTimeout: b.cfg.RecoveryTimeout}
		b.mu.Unlock()
		return err
	}

	b.mu.Unlock()
	return nil
}

// RecordSuccess records a successful attempt.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()

	b.metrics.SuccessfulCalls++
	b.successCount++

	var from, to State
	transitioned := false

	switch b.state {
	case StateHalfOpen:
		if b.successCount >= b.cfg.SuccessThreshold {
			from, to = b.state, StateClosed
			b.applyTransitionLocked(to)
			transitioned = true
		}
	case StateClosed:
		b.failureCount = 0
	}

	b.mu.Unlock()
	if transitioned {
		b.notifyListeners(from, to)
	}
}

// RecordFailure records a failed attempt, subject to kind filtering. An
// empty kind always counts (status-based failures have no underlying
// cause to filter on).
func (b *Breaker) RecordFailure(kind ErrorKind) {
	if !b.kindAllowed(kind) {
		return
	}

	b.mu.Lock()

	b.metrics.FailedCalls++
	b.failureCount++
	b.lastFailureTime = time.Now()

	var from, to State
	transitioned := false

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			from, to = b.state, StateOpen
			b.applyTransitionLocked(to)
			transitioned = true
		}
	case StateHalfOpen:
		from, to = b.state, StateOpen
		b.applyTransitionLocked(to)
		transitioned = true
	}

	b.mu.Unlock()
	if transitioned {
		b.notifyListeners(from, to)
	}
}

func (b *Breaker) kindAllowed(kind ErrorKind) bool {
	if kind == "" {
		return true
	}
	for _, excluded := range b.cfg.ExcludedKinds {
		if kind == excluded {
			return false
		}
	}
	if len(b.cfg.ExpectedKinds) == 0 {
		return true
	}
	for _, expected := range b.cfg.ExpectedKinds {
		if kind == expected {
			return true
		}
	}
	return false
}

// Reset forces the breaker back to StateClosed with all counters zeroed.
func (b *Breaker) Reset() {
	b.mu.Lock()

	from, to := b.state, StateClosed
	transitioned := from != to
	b.applyTransitionLocked(to)
	b.failureCount = 0
	b.successCount = 0
	b.lastFailureTime = time.Time{}

	b.mu.Unlock()
	if transitioned {
		b.notifyListeners(from, to)
	}
}

// State returns a point-in-time snapshot of the breaker's state.
func (b *Breaker) State() StateSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Breaker) snapshotLocked() StateSnapshot {
	return StateSnapshot{
		State:           b.state,
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		LastFailureTime: b.lastFailureTime,
		RecoveryTimeout: b.cfg.RecoveryTimeout,
	}
}

// Stats returns a copy of the breaker's lifetime metrics.
func (b *Breaker) Stats() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics
}

// OnStateChange registers a listener invoked after every transition, in
// registration order. A panicking listener is recovered and logged; it
// does not affect the transition or subsequent listeners.
func (b *Breaker) OnStateChange(fn func(from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// applyTransitionLocked must be called with b.mu held. Closed resets both
// counters; HalfOpen resets successCount only, per spec.
func (b *Breaker) applyTransitionLocked(to State) {
	if b.state == to {
		return
	}
	b.state = to
	b.metrics.StateTransitions++

	switch to {
	case StateClosed:
		b.failureCount = 0
		b.successCount = 0
	case StateHalfOpen:
		b.successCount = 0
	}
}

// notifyListeners must be called without b.mu held.
func (b *Breaker) notifyListeners(from, to State) {
	b.mu.Lock()
	listeners := make([]func(from, to State), len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	if b.cfg.Events != nil {
		b.cfg.Events.BreakerTransition(context.Background(), b.cfg.Name, from.String(), to.String(), b.failureSnapshot())
	} else {
		ctx := logger.WithComponent(context.Background(), logger.Components.Breaker)
		ctx = logger.WithStage(ctx, logger.Stages.BreakerTrip)
		logger.Info(ctx, "circuit breaker transition", "breaker", b.cfg.Name, "from", from.String(), "to", to.String())
	}

	for _, fn := range listeners {
		b.invokeListener(fn, from, to)
	}
}

func (b *Breaker) failureSnapshot() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

func (b *Breaker) invokeListener(fn func(from, to State), from, to State) {
	defer func() {
		if r := recover(); r != nil {
			ctx := logger.WithComponent(context.Background(), logger.Components.Breaker)
			logger.Warn(ctx, "breaker listener panicked", "recovered", fmt.Sprintf("%v", r))
		}
	}()
	fn(from, to)
}
