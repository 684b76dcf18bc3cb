// Package logger provides the structured JSON logger the pipeline emits
// events through. Grounded on internal/logger/logger.go +
// internal/logger/conditional.go of the teacher repo: a custom
// slog.Handler writing one JSON object per line, plus an
// environment-aware default level. Redaction (internal/redact) is
// applied by EventLogger (conditional.go) before attributes reach the
// slog handler — the handler itself performs no masking, keeping the
// two concerns separate the way
// spec.md §3 describes logger state as "effectively read-only."
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ContextKey namespaces context values this package reads/writes.
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	ComponentKey ContextKey = "component"
	StageKey     ContextKey = "stage"
)

var (
	globalLogger *slog.Logger
	once         sync.Once
	version      = "unknown"
	serviceName  = "ratewise"
	environment  = "development"
)

// Init configures the global logger. Safe to call multiple times; only
// the first call takes effect, matching the teacher's sync.Once guard.
func Init(writer io.Writer, level slog.Level, appVersion, appServiceName, appEnvironment string) {
	once.Do(func() {
		if appVersion != "" {
			version = appVersion
		}
		if appServiceName != "" {
			serviceName = appServiceName
		}
		if appEnvironment != "" {
			environment = appEnvironment
		}
		handler := newStructuredJSONHandler(writer, &slog.HandlerOptions{Level: level})
		globalLogger = slog.New(handler)
	})
}

// InitFromEnv initializes the logger using LOG_LEVEL/LOG_OUTPUT/VERSION/
// SERVICE_NAME/ENVIRONMENT environment variables, falling back to stdout
// at info level.
func InitFromEnv() {
	level := slog.LevelInfo
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}

	output := io.Writer(os.Stdout)
	if path := os.Getenv("LOG_OUTPUT"); path != "" && path != "stdout" {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600); err == nil {
			output = f
		}
	}

	Init(output, level, os.Getenv("VERSION"), os.Getenv("SERVICE_NAME"), os.Getenv("ENVIRONMENT"))
}

// Log emits a structured event, lazily initializing the global logger
// from the environment the first time it is called.
func Log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if globalLogger == nil {
		InitFromEnv()
	}
	globalLogger.Log(ctx, level, msg, attrs...)
}

func Debug(ctx context.Context, msg string, attrs ...any) { Log(ctx, slog.LevelDebug, msg, attrs...) }
func Info(ctx context.Context, msg string, attrs ...any)  { Log(ctx, slog.LevelInfo, msg, attrs...) }
func Warn(ctx context.Context, msg string, attrs ...any)  { Log(ctx, slog.LevelWarn, msg, attrs...) }

func Error(ctx context.Context, msg string, err error, attrs ...any) {
	args := append(attrs, "error", err)
	Log(ctx, slog.LevelError, msg, args...)
}

// WithComponent returns a context annotated with a component name, shown
// on every subsequent log line derived from it.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, ComponentKey, component)
}

// WithStage returns a context annotated with a pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, StageKey, stage)
}

// WithRequestID returns a context carrying the attempt's request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// structuredJSONHandler is a slog.Handler writing LogEntry-shaped JSON.
type structuredJSONHandler struct {
	handler slog.Handler
	writer  io.Writer
}

func newStructuredJSONHandler(w io.Writer, opts *slog.HandlerOptions) *structuredJSONHandler {
	return &structuredJSONHandler{handler: slog.NewJSONHandler(w, opts), writer: w}
}

func (h *structuredJSONHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *structuredJSONHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &structuredJSONHandler{handler: h.handler.WithAttrs(attrs), writer: h.writer}
}

func (h *structuredJSONHandler) WithGroup(name string) slog.Handler {
	return &structuredJSONHandler{handler: h.handler.WithGroup(name), writer: h.writer}
}

func (h *structuredJSONHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := &LogEntry{
		Timestamp:   r.Time.UTC().Format(time.RFC3339Nano),
		Level:       LogLevel(strings.ToUpper(r.Level.String())),
		Message:     r.Message,
		Service:     serviceName,
		Environment: environment,
		Version:     version,
	}

	if component := ctx.Value(ComponentKey); component != nil {
		if s, ok := component.(string); ok {
			entry.Component = s
		}
	}
	if stage := ctx.Value(StageKey); stage != nil {
		if s, ok := stage.(string); ok {
			entry.Stage = s
		}
	}
	if reqID := ctx.Value(RequestIDKey); reqID != nil {
		if s, ok := reqID.(string); ok {
			entry.Request = &RequestContext{RequestID: s}
		}
	}

	attributes := make(map[string]interface{})
	var errorData error

	r.Attrs(func(a slog.Attr) bool {
		val := a.Value.Any()
		switch a.Key {
		case "error":
			if err, ok := val.(error); ok {
				errorData = err
			}
		case "request":
			if req, ok := val.(map[string]interface{}); ok {
				if entry.Request == nil {
					entry.Request = &RequestContext{}
				}
				mergeRequestData(entry.Request, req)
			}
		case "response":
			if resp, ok := val.(map[string]interface{}); ok {
				entry.Response = &ResponseContext{}
				mergeResponseData(entry.Response, resp)
				if entry.Request != nil {
					entry.Response.RequestID = entry.Request.RequestID
				}
			}
		default:
			attributes[a.Key] = SerializeValue(val)
		}
		return true
	})

	if errorData != nil {
		entry.Error = &ErrorContext{Message: errorData.Error(), Type: fmt.Sprintf("%T", errorData)}
	}
	if len(attributes) > 0 {
		entry.Attributes = attributes
	}

	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	_, err = h.writer.Write(append(b, '\n'))
	return err
}

func mergeRequestData(target *RequestContext, source map[string]interface{}) {
	if v, ok := source["method"].(string); ok {
		target.Method = v
	}
	if v, ok := source["url"].(string); ok {
		target.URL = v
	}
	if v, ok := source["request_id"].(string); ok && target.RequestID == "" {
		target.RequestID = v
	}
	if v, ok := source["attempt"].(int); ok {
		target.Attempt = v
	}
	if v, ok := source["headers"].(map[string]string); ok {
		target.Headers = v
	}
	if v, ok := source["body"]; ok {
		target.Body = v
	}
}

func mergeResponseData(target *ResponseContext, source map[string]interface{}) {
	if v, ok := source["status_code"].(int); ok {
		target.StatusCode = v
	}
	if v, ok := source["headers"].(map[string]string); ok {
		target.Headers = v
	}
	if v, ok := source["body"]; ok {
		target.Body = v
	}
	if v, ok := source["duration_ms"].(int64); ok {
		target.DurationMs = v
	}
}
