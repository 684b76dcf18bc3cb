package ratewise

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/commiterr/ratewise/internal/breaker"
	"github.com/commiterr/ratewise/internal/retry"
)

// ErrClientClosed is the cause wrapped by RequestError when Execute is
// called after Close.
var ErrClientClosed = errors.New("ratewise: client is closed")

// RateLimitExceededError is terminal after max attempts of 429.
type RateLimitExceededError struct {
	Attempts   int
	RetryAfter *time.Duration
	Status     int
	Body       []byte
	Headers    http.Header
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("ratewise: rate limit exceeded after %d attempts (status %d)", e.Attempts, e.Status)
}

// CircuitBreakerOpenError is terminal on breaker denial, raised before
// any transport attempt is made.
type CircuitBreakerOpenError struct {
	FailureCount    int
	RecoveryTimeout time.Duration
}

func (e *CircuitBreakerOpenError) Error() string {
	return fmt.Sprintf("ratewise: circuit breaker open (failure_count=%d, recovery_timeout=%s)", e.FailureCount, e.RecoveryTimeout)
}

// ServerError is terminal 5xx, or a retryable status exhausted on a
// non-idempotent method.
type ServerError struct {
	Status   int
	Body     []byte
	Attempts int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("ratewise: server error %d after %d attempt(s)", e.Status, e.Attempts)
}

// TimeoutError is terminal after retry_on_timeout attempts are
// exhausted.
type TimeoutError struct {
	Attempts int
	Method   string
	URL      string
	Cause    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ratewise: %s %s timed out after %d attempt(s): %v", e.Method, e.URL, e.Attempts, e.Cause)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// ConnectionError is terminal after retry_on_connection_error attempts
// are exhausted.
type ConnectionError struct {
	Attempts int
	Method   string
	URL      string
	Cause    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ratewise: %s %s connection failed after %d attempt(s): %v", e.Method, e.URL, e.Attempts, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// AuthenticationError is raised on a 401 response; never retried.
type AuthenticationError struct {
	Status int
	Method string
	URL    string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("ratewise: %s %s authentication failed (status %d)", e.Method, e.URL, e.Status)
}

// AuthorizationError is raised on a 403 response; never retried.
type AuthorizationError struct {
	Status int
	Method string
	URL    string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("ratewise: %s %s not authorized (status %d)", e.Method, e.URL, e.Status)
}

// NotFoundError is raised on a 404 response; never retried.
type NotFoundError struct {
	Status int
	Method string
	URL    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ratewise: %s %s not found (status %d)", e.Method, e.URL, e.Status)
}

// RequestError is the catch-all wrapper for unclassified failures:
// URL resolution, middleware pre/post errors, a closed client, or any
// transport error not otherwise categorized.
type RequestError struct {
	Method string
	URL    string
	Cause  error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("ratewise: %s %s failed: %v", e.Method, e.URL, e.Cause)
}

func (e *RequestError) Unwrap() error { return e.Cause }

// wrapTerminalErr converts an internal/retry or internal/breaker error
// into the public taxonomy above, attaching method/url diagnostic
// context per spec (every terminal error carries url, method, attempts,
// status, elapsed where applicable).
func wrapTerminalErr(err error, method, rawURL string) error {
	switch e := err.(type) {
	case *retry.RateLimitExceededError:
		return &RateLimitExceededError{Attempts: e.Attempts, RetryAfter: e.RetryAfter, Status: e.Status, Body: e.Body, Headers: e.Headers}
	case *retry.ServerErrorStatus:
		return &ServerError{Status: e.Status, Body: e.Body, Attempts: e.Attempts}
	case *retry.NonRetryableStatusError:
		return wrapNonRetryableStatus(e, method, rawURL)
	case *retry.TimeoutExceededError:
		return &TimeoutError{Attempts: e.Attempts, Method: method, URL: rawURL, Cause: e.Cause}
	case *retry.ConnectionExhaustedError:
		return &ConnectionError{Attempts: e.Attempts, Method: method, URL: rawURL, Cause: e.Cause}
	case *retry.OtherTransportErr:
		return &RequestError{Method: method, URL: rawURL, Cause: e.Cause}
	case *retry.CanceledError:
		return &RequestError{Method: method, URL: rawURL, Cause: e.Cause}
	case *breaker.OpenError:
		return &CircuitBreakerOpenError{FailureCount: e.FailureCount, RecoveryTimeout: e.RecoveryTimeout}
	default:
		return &RequestError{Method: method, URL: rawURL, Cause: err}
	}
}

func wrapNonRetryableStatus(e *retry.NonRetryableStatusError, method, rawURL string) error {
	switch e.Status {
	case http.StatusUnauthorized:
		return &AuthenticationError{Status: e.Status, Method: method, URL: rawURL}
	case http.StatusForbidden:
		return &AuthorizationError{Status: e.Status, Method: method, URL: rawURL}
	case http.StatusNotFound:
		return &NotFoundError{Status: e.Status, Method: method, URL: rawURL}
	default:
		return &ServerError{Status: e.Status, Body: e.Body, Attempts: 1}
	}
}

// breakerKindFor maps a classified attempt outcome to the breaker's
// error-kind taxonomy, used to filter which failures count per
// Config.Breaker.ExpectedKinds/ExcludedKinds.
func breakerKindFor(outcome retry.AttemptOutcome) breaker.ErrorKind {
	switch outcome.Kind {
	case retry.OutcomeTimeout:
		return breaker.KindTimeout
	case retry.OutcomeConnectionFailure:
		return breaker.KindConnectionFailure
	case retry.OutcomeRetryableStatus:
		if outcome.Status == http.StatusTooManyRequests {
			return breaker.KindRateLimit
		}
		return breaker.KindServerError
	case retry.OutcomeNonRetryableStatus:
		return breaker.KindServerError
	default:
		return breaker.KindOther
	}
}
