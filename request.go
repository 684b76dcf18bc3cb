package ratewise

import (
	"net/http"
	"net/url"
	"time"

	"github.com/commiterr/ratewise/internal/retry"
)

// LogicalRequest is the caller-facing request shape: constructed per
// call, immutable from the caller's perspective once the pre-phase
// completes, and discarded after the call returns.
type LogicalRequest struct {
	Method   string
	Endpoint string
	Headers  http.Header
	Query    url.Values
	Body     []byte
	Timeout  time.Duration
	UseCache bool
	Metadata map[string]interface{}
}

// AttemptOutcome and OutcomeKind are re-exported from internal/retry,
// the package that owns outcome classification — pipeline.go builds
// these per physical attempt and hands them straight to the retry
// engine without copying field layouts into a second type.
type AttemptOutcome = retry.AttemptOutcome
type OutcomeKind = retry.OutcomeKind

const (
	OutcomeSuccess             = retry.OutcomeSuccess
	OutcomeRetryableStatus     = retry.OutcomeRetryableStatus
	OutcomeNonRetryableStatus  = retry.OutcomeNonRetryableStatus
	OutcomeTimeout             = retry.OutcomeTimeout
	OutcomeConnectionFailure   = retry.OutcomeConnectionFailure
	OutcomeOtherTransportError = retry.OutcomeOtherTransportError
	OutcomeCanceled            = retry.OutcomeCanceled
)

// Response is the result of a successful Execute call.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Elapsed    time.Duration
}
