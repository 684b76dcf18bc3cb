package logger

import "time"

// LogLevel represents standardized log levels.
type LogLevel string

const (
	LevelDEBUG LogLevel = "DEBUG"
	LevelINFO  LogLevel = "INFO"
	LevelWARN  LogLevel = "WARN"
	LevelERROR LogLevel = "ERROR"
)

// LogEntry is the standardized structured log record written by the
// client's logger, one JSON object per line.
type LogEntry struct {
	Timestamp   string                 `json:"timestamp"`
	Level       LogLevel               `json:"level"`
	Message     string                 `json:"message"`
	Service     string                 `json:"service"`
	Environment string                 `json:"environment"`
	Version     string                 `json:"version"`
	Component   string                 `json:"component,omitempty"`
	Stage       string                 `json:"stage,omitempty"`
	Request     *RequestContext        `json:"request,omitempty"`
	Response    *ResponseContext       `json:"response,omitempty"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
	Error       *ErrorContext          `json:"error,omitempty"`
}

// RequestContext carries the attempt's request-side details.
type RequestContext struct {
	RequestID string            `json:"request_id,omitempty"`
	Method    string            `json:"method,omitempty"`
	URL       string            `json:"url,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      interface{}       `json:"body,omitempty"`
	Attempt   int               `json:"attempt,omitempty"`
}

// ResponseContext carries the attempt's response-side details.
type ResponseContext struct {
	RequestID  string            `json:"request_id,omitempty"`
	StatusCode int               `json:"status_code,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       interface{}       `json:"body,omitempty"`
	DurationMs int64             `json:"duration_ms,omitempty"`
}

// ErrorContext carries standardized error information.
type ErrorContext struct {
	Message string                 `json:"message"`
	Type    string                 `json:"type"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SerializeValue normalizes Go-specific value types into JSON-friendly forms.
func SerializeValue(val interface{}) interface{} {
	switch v := val.(type) {
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case time.Duration:
		return v.Milliseconds()
	default:
		return val
	}
}
