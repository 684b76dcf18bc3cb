package ratewise

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/commiterr/ratewise/internal/breaker"
	"github.com/commiterr/ratewise/internal/cache"
	"github.com/commiterr/ratewise/internal/logger"
	"github.com/commiterr/ratewise/internal/middleware"
	"github.com/commiterr/ratewise/internal/redact"
	"github.com/commiterr/ratewise/internal/retry"
	"github.com/commiterr/ratewise/internal/transport"
)

// realSleeper sleeps against a real timer, honoring ctx cancellation.
type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cachedResponse is the wire format pipeline.go stores through the
// generic cache.Cache interface; internal/cache never learns about HTTP
// response shape, per its "abstract backend" design.
type cachedResponse struct {
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
}

// Client is a fully orchestrated resilient HTTP client: every Execute
// call runs through cache lookup, the middleware chain, the circuit
// breaker, the retry engine, and the transport layer in that order.
type Client struct {
	cfg     Config
	baseURL *url.URL

	transport transport.Transport
	retryEng  *retry.Engine
	brk       *breaker.Breaker
	cacheImpl cache.Cache
	masker    *redact.Masker
	chain     *middleware.Chain
	sleeper   Sleeper

	cacheableForOp map[string]struct{}
	events         *logger.EventLogger

	counters statsCounters
	closed   int32

	lastCallMu     sync.Mutex
	lastCallDelays []time.Duration
}

// New validates cfg and wires up a Client ready to Execute requests.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: base_url: %v", ErrInvalidConfig, err)
	}

	retryOnStatus := make(map[int]struct{}, len(cfg.Retry.RetryOnStatus))
	for _, s := range cfg.Retry.RetryOnStatus {
		retryOnStatus[s] = struct{}{}
	}
	idempotent := make(map[string]struct{}, len(cfg.Retry.IdempotentMethods))
	for _, m := range cfg.Retry.IdempotentMethods {
		idempotent[m] = struct{}{}
	}

	retryEng, err := retry.NewEngine(retry.Policy{
		MaxAttempts:   cfg.Retry.MaxAttempts,
		RetryOnStatus: retryOnStatus,
		Backoff: retry.BackoffDescriptor{
			InitialDelay:  cfg.Retry.InitialDelay,
			MaxDelay:      cfg.Retry.MaxDelay,
			Multiplier:    cfg.Retry.Multiplier,
			JitterEnabled: cfg.Retry.JitterEnabled,
			JitterRatio:   cfg.Retry.JitterRatio,
		},
		RespectRetryAfter:      cfg.Retry.RespectRetryAfter,
		MaxRetryAfter:          cfg.Retry.MaxRetryAfter,
		RetryOnTimeout:         cfg.Retry.RetryOnTimeout,
		RetryOnConnectionError: cfg.Retry.RetryOnConnectionError,
		IdempotentMethods:      idempotent,
	})
	if err != nil {
		return nil, err
	}

	masker := redact.New(cfg.Redaction)
	events := logger.NewEventLogger(masker)

	brk, err := breaker.New(breaker.Config{
		Name:             cfg.Breaker.Name,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
		ExpectedKinds:    cfg.Breaker.ExpectedKinds,
		ExcludedKinds:    cfg.Breaker.ExcludedKinds,
		Events:           events,
	})
	if err != nil {
		return nil, err
	}

	var cacheImpl cache.Cache
	if cfg.Cache.Enabled {
		if cfg.Cache.Remote != nil {
			cacheImpl = cache.NewRemote(*cfg.Cache.Remote)
		} else {
			cacheImpl, err = cache.NewLRU(cfg.Cache.Namespace, cfg.Cache.MaxSize, cfg.Cache.DefaultTTL)
			if err != nil {
				return nil, err
			}
		}
	}

	cacheableForOp := make(map[string]struct{}, len(cfg.Cache.CacheableMethods))
	for _, m := range cfg.Cache.CacheableMethods {
		cacheableForOp[m] = struct{}{}
	}

	c := &Client{
		cfg:            cfg,
		baseURL:        base,
		transport:      transport.New(cfg.Transport),
		retryEng:       retryEng,
		brk:            brk,
		cacheImpl:      cacheImpl,
		masker:         masker,
		chain:          middleware.DefaultChain(cfg.UserAgent, cfg.DefaultContentType, masker),
		sleeper:        realSleeper{},
		cacheableForOp: cacheableForOp,
		events:         events,
	}
	return c, nil
}

// Execute resolves endpoint against BaseURL and runs it through the full
// pipeline: cache lookup, middleware pre-phase, the breaker/retry/
// transport attempt loop, middleware post-phase, and cache population.
func (c *Client) Execute(ctx context.Context, method, endpoint string, opts ...RequestOption) (*Response, error) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return nil, &RequestError{Method: method, URL: endpoint, Cause: ErrClientClosed}
	}

	lr := LogicalRequest{
		Method:   method,
		Endpoint: endpoint,
		Headers:  cloneHeader(c.cfg.DefaultHeaders),
		Timeout:  c.cfg.DefaultTimeout,
		UseCache: c.isCacheableMethod(method),
	}
	for _, opt := range opts {
		opt(&lr)
	}

	resolved, err := c.resolveURL(endpoint, lr.Query)
	if err != nil {
		return nil, &RequestError{Method: method, URL: endpoint, Cause: err}
	}

	// Read-through caching is confined to the configured cacheable
	// methods even when a caller's WithCache(true) asks for it; a
	// per-call opt-in never widens the set of methods cached.
	useCache := lr.UseCache && c.cacheImpl != nil && c.isCacheableMethod(method)
	var fingerprint string
	if useCache {
		fingerprint = cache.Fingerprint(method, resolved.String(), lr.Query, lr.Headers, c.cfg.Cache.IncludeHeaders)
		if resp, hit := c.lookupCache(ctx, fingerprint); hit {
			atomic.AddInt64(&c.counters.cacheHits, 1)
			return resp, nil
		}
		atomic.AddInt64(&c.counters.cacheMisses, 1)
	}

	mwReq := &middleware.Request{
		Method:    method,
		URL:       resolved,
		Headers:   lr.Headers,
		Body:      lr.Body,
		Metadata:  lr.Metadata,
		RequestID: uuid.New().String()[:8],
	}

	mwReq, err = c.chain.RunPre(ctx, mwReq)
	if err != nil {
		wrapped := &RequestError{Method: method, URL: resolved.String(), Cause: err}
		c.chain.RunError(ctx, mwReq, wrapped)
		atomic.AddInt64(&c.counters.failedRequests, 1)
		return nil, wrapped
	}

	resp, callErr := c.runAttemptLoop(ctx, mwReq, lr.Timeout)
	if callErr != nil {
		c.chain.RunError(ctx, mwReq, callErr)
		atomic.AddInt64(&c.counters.failedRequests, 1)
		return nil, callErr
	}

	mwResp, err := c.chain.RunPost(ctx, mwReq, responseToMiddleware(resp))
	if err != nil {
		wrapped := &RequestError{Method: method, URL: resolved.String(), Cause: err}
		c.chain.RunError(ctx, mwReq, wrapped)
		atomic.AddInt64(&c.counters.failedRequests, 1)
		return nil, wrapped
	}
	resp = middlewareToResponse(mwResp)

	atomic.AddInt64(&c.counters.successfulRequests, 1)

	if useCache && c.isCacheableStatus(resp.StatusCode) {
		c.storeCache(ctx, fingerprint, resp)
	}

	return resp, nil
}

// runAttemptLoop gates every attempt through the breaker, issues it
// through the transport, classifies the outcome, and consults the retry
// engine to decide whether to sleep and try again or stop.
func (c *Client) runAttemptLoop(ctx context.Context, req *middleware.Request, timeout time.Duration) (*Response, error) {
	method := req.Method
	call := &retry.CallStats{}
	defer c.recordLastCall(call)

	for attempt := 1; ; attempt++ {
		atomic.AddInt64(&c.counters.totalRequests, 1)
		req.Metadata = withAttempt(req.Metadata, attempt)

		if err := c.brk.Allow(); err != nil {
			atomic.AddInt64(&c.counters.circuitBreakerTrips, 1)
			return nil, wrapTerminalErr(err, method, req.URL.String())
		}

		outcome := c.issueAttempt(ctx, req, timeout)
		decision := c.retryEng.Decide(attempt, outcome, method)

		if outcome.Kind == retry.OutcomeSuccess {
			c.brk.RecordSuccess()
		} else if decision.CountsAsBreakerFailure {
			c.brk.RecordFailure(breakerKindFor(outcome))
		}

		if decision.Retry {
			atomic.AddInt64(&c.counters.totalRetries, 1)
			delay := c.retryEng.Delay(attempt, outcome)
			c.events.Retry(ctx, req.RequestID, attempt, c.cfg.Retry.MaxAttempts, delay.Milliseconds(), retryReason(outcome))
			if err := c.sleeper.Sleep(ctx, delay); err != nil {
				return nil, &RequestError{Method: method, URL: req.URL.String(), Cause: err}
			}
			c.retryEng.RecordSleep(call, delay)
			continue
		}

		if decision.TerminalErr != nil {
			return nil, wrapTerminalErr(decision.TerminalErr, method, req.URL.String())
		}

		return &Response{StatusCode: outcome.Status, Headers: outcome.Headers, Body: outcome.Body, Elapsed: outcome.Elapsed}, nil
	}
}

// issueAttempt performs one physical HTTP call and classifies it into an
// AttemptOutcome the retry engine can reason about.
func (c *Client) issueAttempt(ctx context.Context, req *middleware.Request, timeout time.Duration) retry.AttemptOutcome {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, req.URL.String(), bodyReader)
	if err != nil {
		return retry.AttemptOutcome{Kind: retry.OutcomeOtherTransportError, Cause: err}
	}
	httpReq.Header = cloneHeader(req.Headers)

	started := time.Now()
	httpResp, err := c.transport.Do(httpReq)
	elapsed := time.Since(started)

	if err != nil {
		return outcomeFromTransportError(c.transport.Classify(err), err, elapsed)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return retry.AttemptOutcome{Kind: retry.OutcomeOtherTransportError, Cause: err, Elapsed: elapsed}
	}

	outcome := retry.AttemptOutcome{
		Status:     httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
		Elapsed:    elapsed,
		RetryAfter: httpResp.Header.Get("Retry-After"),
	}
	if httpResp.StatusCode >= 400 {
		outcome.Kind = retry.OutcomeRetryableStatus
	} else {
		outcome.Kind = retry.OutcomeSuccess
	}
	return outcome
}

func outcomeFromTransportError(kind transport.ErrorKind, err error, elapsed time.Duration) retry.AttemptOutcome {
	switch kind {
	case transport.ErrorKindTimeout:
		return retry.AttemptOutcome{Kind: retry.OutcomeTimeout, Cause: err, Elapsed: elapsed}
	case transport.ErrorKindConnectionFailure:
		return retry.AttemptOutcome{Kind: retry.OutcomeConnectionFailure, Cause: err, Elapsed: elapsed}
	case transport.ErrorKindCanceled:
		return retry.AttemptOutcome{Kind: retry.OutcomeCanceled, Cause: err, Elapsed: elapsed}
	default:
		return retry.AttemptOutcome{Kind: retry.OutcomeOtherTransportError, Cause: err, Elapsed: elapsed}
	}
}

func (c *Client) lookupCache(ctx context.Context, fingerprint string) (*Response, bool) {
	entry, ok, err := c.cacheImpl.Get(ctx, fingerprint)
	if err != nil || !ok {
		return nil, false
	}
	var cached cachedResponse
	if err := json.Unmarshal(entry.Value, &cached); err != nil {
		return nil, false
	}
	return &Response{StatusCode: cached.StatusCode, Headers: cached.Headers, Body: cached.Body}, true
}

func (c *Client) storeCache(ctx context.Context, fingerprint string, resp *Response) {
	payload, err := json.Marshal(cachedResponse{StatusCode: resp.StatusCode, Headers: resp.Headers, Body: resp.Body})
	if err != nil {
		return
	}
	etag := resp.Headers.Get("ETag")
	_ = c.cacheImpl.Set(ctx, fingerprint, payload, c.cfg.Cache.DefaultTTL, etag)
}

func (c *Client) isCacheableMethod(method string) bool {
	if !c.cfg.Cache.Enabled {
		return false
	}
	_, ok := c.cacheableForOp[method]
	return ok
}

func (c *Client) isCacheableStatus(status int) bool {
	return status >= 200 && status < 300
}

// resolveURL joins endpoint against BaseURL and merges query.
func (c *Client) resolveURL(endpoint string, query url.Values) (*url.URL, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	resolved := c.baseURL.ResolveReference(ref)
	if len(query) > 0 {
		q := resolved.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		resolved.RawQuery = q.Encode()
	}
	return resolved, nil
}

// Stats returns a snapshot of client-wide counters.
func (c *Client) Stats() ClientStats {
	return c.counters.snapshot()
}

// RetryStats returns the retry engine's lifetime aggregate alongside the
// delay sequence actually slept during the most recent Execute call.
func (c *Client) RetryStats() RetryStatsSnapshot {
	c.lastCallMu.Lock()
	delays := append([]time.Duration(nil), c.lastCallDelays...)
	c.lastCallMu.Unlock()
	return RetryStatsSnapshot{LastCallDelays: delays, Aggregate: c.retryEng.Stats()}
}

func (c *Client) recordLastCall(call *retry.CallStats) {
	c.lastCallMu.Lock()
	c.lastCallDelays = call.Delays
	c.lastCallMu.Unlock()
}

// Breaker exposes the underlying circuit breaker for state inspection
// and listener registration.
func (c *Client) Breaker() *breaker.Breaker { return c.brk }

// Cache exposes the underlying cache backend for manual invalidation.
func (c *Client) Cache() cache.Cache { return c.cacheImpl }

// Close releases pooled transport connections. Idempotent; subsequent
// Execute calls return an error wrapping ErrClientClosed.
func (c *Client) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	c.transport.CloseIdleConnections()
	ctx := logger.WithComponent(context.Background(), logger.Components.Pipeline)
	logger.Info(ctx, "client closed")
	return nil
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// retryReason builds the human-readable reason string attached to a
// retry log event.
func retryReason(outcome retry.AttemptOutcome) string {
	switch outcome.Kind {
	case retry.OutcomeRetryableStatus:
		if outcome.Status == http.StatusTooManyRequests {
			return fmt.Sprintf("rate limit (429), retry-after: %s", outcome.RetryAfter)
		}
		return fmt.Sprintf("server error (%d)", outcome.Status)
	case retry.OutcomeTimeout:
		return "timeout"
	case retry.OutcomeConnectionFailure:
		return "connection error"
	default:
		return "transport error"
	}
}

func withAttempt(metadata map[string]interface{}, attempt int) map[string]interface{} {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata["attempt"] = attempt
	return metadata
}

func responseToMiddleware(r *Response) *middleware.Response {
	return &middleware.Response{StatusCode: r.StatusCode, Headers: r.Headers, Body: r.Body, Elapsed: r.Elapsed}
}

func middlewareToResponse(r *middleware.Response) *Response {
	return &Response{StatusCode: r.StatusCode, Headers: r.Headers, Body: r.Body, Elapsed: r.Elapsed}
}
