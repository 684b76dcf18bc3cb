package middleware

import (
	"context"
	"time"

	"github.com/commiterr/ratewise/internal/logger"
	"github.com/commiterr/ratewise/internal/redact"
)

const metadataStartedAt = "_timing_started_at"

// TimingMiddleware records the request's start time in Request.StartedAt
// during pre-phase and fills Response.Elapsed during post-phase.
type TimingMiddleware struct{}

func (TimingMiddleware) Pre(ctx context.Context, req *Request) (*Request, error) {
	req.StartedAt = time.Now()
	return req, nil
}

func (TimingMiddleware) Post(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	if !req.StartedAt.IsZero() {
		resp.Elapsed = time.Since(req.StartedAt)
	}
	return resp, nil
}

func (TimingMiddleware) OnError(ctx context.Context, req *Request, err error) {}

// UserAgentMiddleware sets a default User-Agent header when the caller
// did not supply one.
type UserAgentMiddleware struct {
	Default string
}

// NewUserAgentMiddleware builds a UserAgentMiddleware falling back to a
// library-identifying default when def is empty.
func NewUserAgentMiddleware(def string) UserAgentMiddleware {
	if def == "" {
		def = "ratewise-client/1.0"
	}
	return UserAgentMiddleware{Default: def}
}

func (m UserAgentMiddleware) Pre(ctx context.Context, req *Request) (*Request, error) {
	if req.Headers.Get("User-Agent") == "" {
		req.Headers.Set("User-Agent", m.Default)
	}
	return req, nil
}

func (UserAgentMiddleware) Post(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	return resp, nil
}

func (UserAgentMiddleware) OnError(ctx context.Context, req *Request, err error) {}

// ContentTypeMiddleware sets a default Content-Type when the request has
// a body and none was supplied, and annotates the response with whether
// its Content-Type header is application/json or ends in +json.
type ContentTypeMiddleware struct {
	Default string
}

// NewContentTypeMiddleware builds a ContentTypeMiddleware defaulting to
// application/json when def is empty.
func NewContentTypeMiddleware(def string) ContentTypeMiddleware {
	if def == "" {
		def = "application/json"
	}
	return ContentTypeMiddleware{Default: def}
}

func (m ContentTypeMiddleware) Pre(ctx context.Context, req *Request) (*Request, error) {
	if len(req.Body) > 0 && req.Headers.Get("Content-Type") == "" {
		req.Headers.Set("Content-Type", m.Default)
	}
	return req, nil
}

func (ContentTypeMiddleware) Post(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	if resp.Metadata == nil {
		resp.Metadata = map[string]interface{}{}
	}
	contentType := resp.Headers.Get("Content-Type")
	resp.Metadata["is_json"] = contentType == "application/json" ||
		len(contentType) > len("+json") && contentType[len(contentType)-len("+json"):] == "+json"
	return resp, nil
}

func (ContentTypeMiddleware) OnError(ctx context.Context, req *Request, err error) {}

// LoggingMiddleware emits pre and post log events through the shared
// event logger, delegating redaction to internal/redact.
type LoggingMiddleware struct {
	events *logger.EventLogger
}

// NewLoggingMiddleware builds a LoggingMiddleware using masker for
// redaction.
func NewLoggingMiddleware(masker *redact.Masker) LoggingMiddleware {
	return LoggingMiddleware{events: logger.NewEventLogger(masker)}
}

func (m LoggingMiddleware) Pre(ctx context.Context, req *Request) (*Request, error) {
	m.events.RequestStart(ctx, req.RequestID, req.Method, req.URL.String(), req.Headers)
	return req, nil
}

func (m LoggingMiddleware) Post(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	m.events.Response(ctx, req.RequestID, attemptFromMetadata(req), resp.StatusCode, resp.Elapsed.Milliseconds())
	return resp, nil
}

func (m LoggingMiddleware) OnError(ctx context.Context, req *Request, err error) {
	m.events.AttemptError(ctx, req.RequestID, err)
}

func attemptFromMetadata(req *Request) int {
	if req.Metadata == nil {
		return 0
	}
	if v, ok := req.Metadata["attempt"].(int); ok {
		return v
	}
	return 0
}

// DefaultChain builds the standard four-middleware chain in spec order:
// Timing, UserAgent, ContentType, Logging.
func DefaultChain(userAgent, contentType string, masker *redact.Masker) *Chain {
	return NewChain(
		TimingMiddleware{},
		NewUserAgentMiddleware(userAgent),
		NewContentTypeMiddleware(contentType),
		NewLoggingMiddleware(masker),
	)
}
