package logger

import (
	"context"
	"log/slog"

	"github.com/commiterr/ratewise/internal/redact"
)

// EventLogger bundles the structured logger with a redact.Masker so
// every attempt-loop event — request start, response, retry, error,
// breaker transition — is emitted already redacted. Grounded on
// ConditionalLogger's "masker bundled with the base logger" shape, but
// narrowed to the five event kinds spec.md §4.5 names instead of the
// teacher's proxy-specific log call sites.
type EventLogger struct {
	masker *redact.Masker
}

// NewEventLogger builds an EventLogger using masker for all surfaces.
// A nil masker disables redaction (only safe in tests).
func NewEventLogger(masker *redact.Masker) *EventLogger {
	return &EventLogger{masker: masker}
}

// RequestStart logs the beginning of a logical request's first attempt.
func (l *EventLogger) RequestStart(ctx context.Context, requestID, method, rawURL string, headers map[string][]string) {
	ctx = WithComponent(ctx, Components.Pipeline)
	ctx = WithStage(ctx, Stages.Attempt)
	Info(ctx, "request started",
		"request_id", requestID,
		"method", method,
		"url", l.maskedURL(rawURL),
		"headers", l.maskedHeaderSummary(headers))
}

// Response logs a completed attempt's outcome.
func (l *EventLogger) Response(ctx context.Context, requestID string, attempt, statusCode int, elapsedMs int64) {
	ctx = WithComponent(ctx, Components.Pipeline)
	ctx = WithStage(ctx, Stages.Success)
	Info(ctx, "attempt completed",
		"request_id", requestID,
		"attempt", attempt,
		"status_code", statusCode,
		"elapsed_ms", elapsedMs)
}

// Retry logs a decision to retry after a failed attempt.
func (l *EventLogger) Retry(ctx context.Context, requestID string, attempt, maxAttempts int, delayMs int64, reason string) {
	ctx = WithComponent(ctx, Components.Retry)
	ctx = WithStage(ctx, Stages.Retry)
	Warn(ctx, "retrying attempt",
		"request_id", requestID,
		"attempt", attempt,
		"max_attempts", maxAttempts,
		"planned_delay_ms", delayMs,
		"reason", reason)
}

// AttemptError logs a terminal error ending the call.
func (l *EventLogger) AttemptError(ctx context.Context, requestID string, err error) {
	ctx = WithComponent(ctx, Components.Pipeline)
	ctx = WithStage(ctx, Stages.Exhausted)
	Error(ctx, "request failed", err, "request_id", requestID)
}

// BreakerTransition logs a circuit breaker state change.
func (l *EventLogger) BreakerTransition(ctx context.Context, name, from, to string, failureCount int) {
	ctx = WithComponent(ctx, Components.Breaker)
	ctx = WithStage(ctx, Stages.BreakerTrip)
	level := slog.LevelWarn
	if to == "CLOSED" {
		level = slog.LevelInfo
	}
	Log(ctx, level, "circuit breaker transition",
		"breaker", name,
		"from", from,
		"to", to,
		"failure_count", failureCount)
}

func (l *EventLogger) maskedURL(rawURL string) string {
	if l.masker == nil {
		return rawURL
	}
	return l.masker.MaskURL(rawURL)
}

func (l *EventLogger) maskedHeaderSummary(headers map[string][]string) map[string][]string {
	if l.masker == nil {
		return headers
	}
	return l.masker.MaskHeaders(headers)
}
