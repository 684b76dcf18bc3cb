package ratewise

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/commiterr/ratewise/internal/breaker"
	"github.com/commiterr/ratewise/internal/retry"
)

func TestWrapTerminalErr_RateLimitExceeded(t *testing.T) {
	d := 2 * time.Second
	src := &retry.RateLimitExceededError{Attempts: 4, RetryAfter: &d, Status: http.StatusTooManyRequests}

	err := wrapTerminalErr(src, http.MethodGet, "https://api.example.com/x")

	var rle *RateLimitExceededError
	assert.ErrorAs(t, err, &rle)
	assert.Equal(t, 4, rle.Attempts)
	assert.Equal(t, &d, rle.RetryAfter)
}

func TestWrapTerminalErr_ServerErrorStatus(t *testing.T) {
	src := &retry.ServerErrorStatus{Attempts: 3, Status: 503}

	err := wrapTerminalErr(src, http.MethodGet, "https://api.example.com/x")

	var se *ServerError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, 503, se.Status)
}

func TestWrapTerminalErr_NonRetryableStatusMapsToAuthentication(t *testing.T) {
	src := &retry.NonRetryableStatusError{Status: http.StatusUnauthorized}

	err := wrapTerminalErr(src, http.MethodGet, "https://api.example.com/x")

	var ae *AuthenticationError
	assert.ErrorAs(t, err, &ae)
}

func TestWrapTerminalErr_NonRetryableStatusMapsToAuthorization(t *testing.T) {
	src := &retry.NonRetryableStatusError{Status: http.StatusForbidden}
	err := wrapTerminalErr(src, http.MethodGet, "https://api.example.com/x")

	var ae *AuthorizationError
	assert.ErrorAs(t, err, &ae)
}

func TestWrapTerminalErr_NonRetryableStatusMapsToNotFound(t *testing.T) {
	src := &retry.NonRetryableStatusError{Status: http.StatusNotFound}
	err := wrapTerminalErr(src, http.MethodGet, "https://api.example.com/x")

	var ne *NotFoundError
	assert.ErrorAs(t, err, &ne)
}

func TestWrapTerminalErr_NonRetryableStatusFallsBackToServerError(t *testing.T) {
	src := &retry.NonRetryableStatusError{Status: http.StatusConflict}
	err := wrapTerminalErr(src, http.MethodPost, "https://api.example.com/x")

	var se *ServerError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.Status)
}

func TestWrapTerminalErr_Timeout(t *testing.T) {
	src := &retry.TimeoutExceededError{Attempts: 2}
	err := wrapTerminalErr(src, http.MethodGet, "https://api.example.com/x")

	var te *TimeoutError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, 2, te.Attempts)
}

func TestWrapTerminalErr_ConnectionExhausted(t *testing.T) {
	src := &retry.ConnectionExhaustedError{Attempts: 2}
	err := wrapTerminalErr(src, http.MethodGet, "https://api.example.com/x")

	var ce *ConnectionError
	assert.ErrorAs(t, err, &ce)
}

func TestWrapTerminalErr_OtherTransportErr(t *testing.T) {
	src := &retry.OtherTransportErr{}
	err := wrapTerminalErr(src, http.MethodGet, "https://api.example.com/x")

	var re *RequestError
	assert.ErrorAs(t, err, &re)
}

func TestWrapTerminalErr_Canceled(t *testing.T) {
	src := &retry.CanceledError{Cause: context.Canceled}
	err := wrapTerminalErr(src, http.MethodGet, "https://api.example.com/x")

	var re *RequestError
	assert.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWrapTerminalErr_BreakerOpen(t *testing.T) {
	src := &breaker.OpenError{Name: "b", FailureCount: 5, RecoveryTimeout: time.Second}
	err := wrapTerminalErr(src, http.MethodGet, "https://api.example.com/x")

	var cbe *CircuitBreakerOpenError
	assert.ErrorAs(t, err, &cbe)
	assert.Equal(t, 5, cbe.FailureCount)
}

func TestBreakerKindFor_MapsRateLimitSeparatelyFromServerError(t *testing.T) {
	assert.Equal(t, breaker.KindRateLimit, breakerKindFor(retry.AttemptOutcome{Kind: retry.OutcomeRetryableStatus, Status: http.StatusTooManyRequests}))
	assert.Equal(t, breaker.KindServerError, breakerKindFor(retry.AttemptOutcome{Kind: retry.OutcomeRetryableStatus, Status: 503}))
	assert.Equal(t, breaker.KindTimeout, breakerKindFor(retry.AttemptOutcome{Kind: retry.OutcomeTimeout}))
	assert.Equal(t, breaker.KindConnectionFailure, breakerKindFor(retry.AttemptOutcome{Kind: retry.OutcomeConnectionFailure}))
	assert.Equal(t, breaker.KindOther, breakerKindFor(retry.AttemptOutcome{Kind: retry.OutcomeOtherTransportError}))
}
