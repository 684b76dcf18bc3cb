// Package retry decides, for a sequence of attempts against a
// rate-limited or failure-prone remote, whether to retry, how long to
// wait, and whether the terminating outcome should count as a circuit
// breaker failure. Grounded on internal/reliability/retry.go of the
// teacher repo: the same exponential-backoff-with-jitter shape and
// per-config executor struct, generalized from a single RetryableErrors
// string list into the full per-outcome-kind retryability table and
// Retry-After precedence the client core requires.
package retry

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/commiterr/ratewise/internal/httputil"
)

// OutcomeKind tags the shape of a single attempt's result.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetryableStatus
	OutcomeNonRetryableStatus
	OutcomeTimeout
	OutcomeConnectionFailure
	OutcomeOtherTransportError
	// OutcomeCanceled means the caller's own context was canceled mid
	// attempt, not a deadline or a remote failure. Always terminal and
	// never counts as a breaker failure: the remote did nothing wrong.
	OutcomeCanceled
)

// AttemptOutcome is a flat, kind-tagged result of one physical attempt.
// A flat struct with a kind tag is used instead of a sealed interface
// hierarchy so the engine can switch exhaustively while still carrying
// the fields shared across kinds (status, headers, body, elapsed).
type AttemptOutcome struct {
	Kind       OutcomeKind
	Status     int
	Headers    http.Header
	Body       []byte
	Elapsed    time.Duration
	RetryAfter string // raw Retry-After header value, if present
	Cause      error  // underlying transport error, for Timeout/ConnectionFailure/OtherTransportError
}

// BackoffDescriptor is the pure delay-shape value from which Delay
// computes a wait time. Invariant: 0 <= delay <= MaxDelay for every
// attempt, even after jitter (negative jitter clamps to zero).
type BackoffDescriptor struct {
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	JitterEnabled bool
	JitterRatio   float64 // e.g. 0.25 for +/-25%
}

// Policy is the full retry configuration for one Engine.
type Policy struct {
	MaxAttempts            int
	RetryOnStatus          map[int]struct{}
	Backoff                BackoffDescriptor
	RespectRetryAfter      bool
	MaxRetryAfter          time.Duration
	RetryOnTimeout         bool
	RetryOnConnectionError bool
	IdempotentMethods      map[string]struct{}
}

// ErrInvalidPolicy is returned by NewEngine when Policy fails validation.
var ErrInvalidPolicy = errors.New("retry: invalid policy")

func (p Policy) validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max_attempts must be >= 1, got %d", ErrInvalidPolicy, p.MaxAttempts)
	}
	if p.Backoff.MaxDelay < p.Backoff.InitialDelay {
		return fmt.Errorf("%w: max_delay must be >= initial_delay", ErrInvalidPolicy)
	}
	if p.Backoff.Multiplier < 1 {
		return fmt.Errorf("%w: multiplier must be >= 1", ErrInvalidPolicy)
	}
	return nil
}

// Decision is the engine's verdict for one completed attempt.
type Decision struct {
	Retry                  bool
	CountsAsBreakerFailure bool
	TerminalErr            error
}

// AggregateStats accumulates retry activity across every call made
// through an Engine, until ResetStats is called.
type AggregateStats struct {
	TotalAttempts   int
	Successes       int
	Failures        int
	CumulativeDelay time.Duration
	StatusHistogram map[int]int
}

// CallStats is the per-call record of delays actually slept, returned to
// the caller alongside the aggregate snapshot.
type CallStats struct {
	Delays []time.Duration
}

// Engine applies a Policy to a sequence of attempt outcomes.
type Engine struct {
	policy Policy

	mu    sync.Mutex
	stats AggregateStats
}

// NewEngine validates policy and constructs an Engine.
func NewEngine(policy Policy) (*Engine, error) {
	if err := policy.validate(); err != nil {
		return nil, err
	}
	if policy.RetryOnStatus == nil {
		policy.RetryOnStatus = map[int]struct{}{}
	}
	if policy.IdempotentMethods == nil {
		policy.IdempotentMethods = map[string]struct{}{}
	}
	return &Engine{
		policy: policy,
		stats:  AggregateStats{StatusHistogram: map[int]int{}},
	}, nil
}

// Decide classifies outcome for the given 1-indexed attempt and method,
// per the retryability table in the component design, and records
// aggregate stats.
func (e *Engine) Decide(attempt int, outcome AttemptOutcome, method string) Decision {
	e.mu.Lock()
	e.stats.TotalAttempts++
	defer e.mu.Unlock()

	attemptsRemain := attempt < e.policy.MaxAttempts

	switch outcome.Kind {
	case OutcomeSuccess:
		e.stats.Successes++
		e.stats.StatusHistogram[outcome.Status]++
		return Decision{Retry: false, CountsAsBreakerFailure: false}

	case OutcomeRetryableStatus:
		_, inSet := e.policy.RetryOnStatus[outcome.Status]
		idempotent := e.isIdempotent(method)
		retryable := inSet && (idempotent || outcome.Status == http.StatusTooManyRequests)

		if !retryable {
			e.stats.Failures++
			e.stats.StatusHistogram[outcome.Status]++
			return Decision{Retry: false, CountsAsBreakerFailure: true, TerminalErr: e.nonRetryableStatusErr(outcome)}
		}
		if !attemptsRemain {
			e.stats.Failures++
			e.stats.StatusHistogram[outcome.Status]++
			return Decision{Retry: false, CountsAsBreakerFailure: true, TerminalErr: e.exhaustedErr(attempt, outcome)}
		}
		return Decision{Retry: true}

	case OutcomeNonRetryableStatus:
		e.stats.Failures++
		e.stats.StatusHistogram[outcome.Status]++
		return Decision{Retry: false, CountsAsBreakerFailure: true, TerminalErr: e.nonRetryableStatusErr(outcome)}

	case OutcomeTimeout:
		if e.policy.RetryOnTimeout && attemptsRemain {
			return Decision{Retry: true, CountsAsBreakerFailure: true}
		}
		e.stats.Failures++
		return Decision{Retry: false, CountsAsBreakerFailure: true, TerminalErr: e.timeoutErr(attempt, outcome)}

	case OutcomeConnectionFailure:
		if e.policy.RetryOnConnectionError && attemptsRemain {
			return Decision{Retry: true, CountsAsBreakerFailure: true}
		}
		e.stats.Failures++
		return Decision{Retry: false, CountsAsBreakerFailure: true, TerminalErr: e.connectionErr(attempt, outcome)}

	case OutcomeCanceled:
		e.stats.Failures++
		return Decision{Retry: false, CountsAsBreakerFailure: false, TerminalErr: e.canceledErr(outcome)}

	default: // OutcomeOtherTransportError
		e.stats.Failures++
		return Decision{Retry: false, CountsAsBreakerFailure: true, TerminalErr: e.otherErr(outcome)}
	}
}

func (e *Engine) isIdempotent(method string) bool {
	_, ok := e.policy.IdempotentMethods[method]
	return ok
}

// Delay computes the wait before the next attempt. Retry-After takes
// precedence over backoff when the outcome is a 429 and
// RespectRetryAfter is set; otherwise pure exponential backoff with
// jitter is used. attempt is the 1-indexed attempt that just completed
// and the result is the wait before attempt+1, so Delay(1, ...) is based
// on InitialDelay; nothing ever waits before the first attempt.
func (e *Engine) Delay(attempt int, outcome AttemptOutcome) time.Duration {
	if e.policy.RespectRetryAfter && outcome.Kind == OutcomeRetryableStatus && outcome.Status == http.StatusTooManyRequests {
		if d, ok := httputil.ParseRetryAfter(outcome.RetryAfter, time.Now()); ok {
			if d > e.policy.MaxRetryAfter {
				d = e.policy.MaxRetryAfter
			}
			return d
		}
	}
	return e.backoffDelay(attempt)
}

func (e *Engine) backoffDelay(attempt int) time.Duration {
	b := e.policy.Backoff
	base := float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(attempt-1))
	if base > float64(b.MaxDelay) {
		base = float64(b.MaxDelay)
	}

	if !b.JitterEnabled || b.JitterRatio <= 0 {
		return clampDuration(base, b.MaxDelay)
	}

	spread := base * b.JitterRatio
	offset := uniformFloat(-spread, spread)
	return clampDuration(base+offset, b.MaxDelay)
}

func clampDuration(v float64, max time.Duration) time.Duration {
	if v < 0 {
		v = 0
	}
	d := time.Duration(v)
	if d > max {
		d = max
	}
	return d
}

// uniformFloat draws a value uniformly from [lo, hi) using crypto/rand,
// matching the teacher's preference for crypto/rand over math/rand for
// jitter generation.
func uniformFloat(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	span := hi - lo
	const precision = 1 << 30
	n, err := rand.Int(rand.Reader, big.NewInt(precision))
	if err != nil {
		return lo + span/2
	}
	fraction := float64(n.Int64()) / float64(precision)
	return lo + fraction*span
}

// RecordSleep appends an actually-slept delay to call-local stats and the
// engine's cumulative aggregate.
func (e *Engine) RecordSleep(call *CallStats, d time.Duration) {
	call.Delays = append(call.Delays, d)
	e.mu.Lock()
	e.stats.CumulativeDelay += d
	e.mu.Unlock()
}

// Stats returns a snapshot of aggregate retry activity.
func (e *Engine) Stats() AggregateStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	histogram := make(map[int]int, len(e.stats.StatusHistogram))
	for k, v := range e.stats.StatusHistogram {
		histogram[k] = v
	}
	snapshot := e.stats
	snapshot.StatusHistogram = histogram
	return snapshot
}

// ResetStats zeroes the engine's aggregate stats. Never performed
// implicitly.
func (e *Engine) ResetStats() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats = AggregateStats{StatusHistogram: map[int]int{}}
}

func (e *Engine) nonRetryableStatusErr(outcome AttemptOutcome) error {
	return &NonRetryableStatusError{Status: outcome.Status, Body: outcome.Body, Headers: outcome.Headers}
}

func (e *Engine) exhaustedErr(attempt int, outcome AttemptOutcome) error {
	if outcome.Status == http.StatusTooManyRequests {
		var retryAfter *time.Duration
		if d, ok := httputil.ParseRetryAfter(outcome.RetryAfter, time.Now()); ok {
			retryAfter = &d
		}
		return &RateLimitExceededError{Attempts: attempt, RetryAfter: retryAfter, Status: outcome.Status, Body: outcome.Body, Headers: outcome.Headers}
	}
	return &ServerErrorStatus{Attempts: attempt, Status: outcome.Status, Body: outcome.Body}
}

func (e *Engine) timeoutErr(attempt int, outcome AttemptOutcome) error {
	return &TimeoutExceededError{Attempts: attempt, Cause: outcome.Cause}
}

func (e *Engine) connectionErr(attempt int, outcome AttemptOutcome) error {
	return &ConnectionExhaustedError{Attempts: attempt, Cause: outcome.Cause}
}

func (e *Engine) otherErr(outcome AttemptOutcome) error {
	return &OtherTransportErr{Cause: outcome.Cause}
}

func (e *Engine) canceledErr(outcome AttemptOutcome) error {
	return &CanceledError{Cause: outcome.Cause}
}

// The error types below carry the diagnostic fields the component design
// names; the root package's errors.go wraps them into its public
// taxonomy (RateLimitExceededError, ServerError, TimeoutError,
// ConnectionError, RequestError) rather than duplicating field layouts.

type RateLimitExceededError struct {
	Attempts   int
	RetryAfter *time.Duration
	Status     int
	Body       []byte
	Headers    http.Header
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("retry: rate limit exceeded after %d attempts (status=%d)", e.Attempts, e.Status)
}

type NonRetryableStatusError struct {
	Status  int
	Body    []byte
	Headers http.Header
}

func (e *NonRetryableStatusError) Error() string {
	return fmt.Sprintf("retry: non-retryable status %d", e.Status)
}

type ServerErrorStatus struct {
	Attempts int
	Status   int
	Body     []byte
}

func (e *ServerErrorStatus) Error() string {
	return fmt.Sprintf("retry: server error %d after %d attempts", e.Status, e.Attempts)
}

type TimeoutExceededError struct {
	Attempts int
	Cause    error
}

func (e *TimeoutExceededError) Error() string {
	return fmt.Sprintf("retry: timed out after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *TimeoutExceededError) Unwrap() error { return e.Cause }

type ConnectionExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *ConnectionExhaustedError) Error() string {
	return fmt.Sprintf("retry: connection failed after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ConnectionExhaustedError) Unwrap() error { return e.Cause }

type OtherTransportErr struct {
	Cause error
}

func (e *OtherTransportErr) Error() string {
	return fmt.Sprintf("retry: transport error: %v", e.Cause)
}

func (e *OtherTransportErr) Unwrap() error { return e.Cause }

type CanceledError struct {
	Cause error
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("retry: canceled: %v", e.Cause)
}

func (e *CanceledError) Unwrap() error { return e.Cause }
