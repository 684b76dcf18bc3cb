// Package middleware implements the client's ordered request/response
// transformer chain. Grounded on the *shape* of the teacher's
// internal/middleware/correlation.go and user_agent.go — "read
// something, stash it in context/metadata, call the next stage, observe
// the result" — retargeted from server-inbound http.Handler wrapping to
// client-outbound Pre/Post/OnError hooks, since the teacher is a proxy
// server and never had an outbound chain of its own.
package middleware

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Request is the mutable request context middlewares observe and
// transform in pre-phase; the transport issues the request this becomes
// after the chain runs.
type Request struct {
	Method    string
	URL       *url.URL
	Headers   http.Header
	Body      []byte
	Metadata  map[string]interface{}
	RequestID string
	StartedAt time.Time
}

// Response is the mutable response context middlewares observe and
// transform in post-phase.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Elapsed    time.Duration
	Metadata   map[string]interface{}
}

// Middleware exposes three polymorphic operations over request/response
// pairs: pre, post, on_error.
type Middleware interface {
	Pre(ctx context.Context, req *Request) (*Request, error)
	Post(ctx context.Context, req *Request, resp *Response) (*Response, error)
	OnError(ctx context.Context, req *Request, err error)
}

// Chain holds an ordered sequence of middlewares. Pre-phase runs in
// insertion order; post-phase and error-phase run in reverse, matching
// onion-layer semantics. Mutation of headers or body in pre-phase is
// visible to every later stage and to the transport, since req/resp are
// passed by pointer rather than copied between stages.
type Chain struct {
	middlewares []Middleware
}

// NewChain builds a Chain from middlewares, in the given order.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// RunPre executes every middleware's Pre in insertion order. An error
// from any stage aborts the chain immediately; no attempt is made.
func (c *Chain) RunPre(ctx context.Context, req *Request) (*Request, error) {
	current := req
	for _, mw := range c.middlewares {
		next, err := mw.Pre(ctx, current)
		if err != nil {
			return current, err
		}
		current = next
	}
	return current, nil
}

// RunPost executes every middleware's Post in reverse insertion order.
func (c *Chain) RunPost(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	current := resp
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		next, err := c.middlewares[i].Post(ctx, req, current)
		if err != nil {
			return current, err
		}
		current = next
	}
	return current, nil
}

// RunError invokes every middleware's OnError in reverse insertion
// order. Each call is best-effort; no middleware's OnError can abort the
// others.
func (c *Chain) RunError(ctx context.Context, req *Request, err error) {
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		c.middlewares[i].OnError(ctx, req, err)
	}
}
