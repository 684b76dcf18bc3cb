// Package ratewise implements a resilient HTTP client core: exponential
// backoff with jitter, a three-state circuit breaker, a TTL+LRU response
// cache, an ordered request/response middleware chain, and a redacting
// structured logger, orchestrated by Client.Execute into a single
// request pipeline.
package ratewise

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// RequestOption customizes a single Execute call without widening
// Client's own configuration surface.
type RequestOption func(*LogicalRequest)

// WithHeaders merges headers into the request, overriding
// Config.DefaultHeaders entries of the same name.
func WithHeaders(headers http.Header) RequestOption {
	return func(r *LogicalRequest) {
		if r.Headers == nil {
			r.Headers = http.Header{}
		}
		for k, vs := range headers {
			r.Headers.Del(k)
			for _, v := range vs {
				r.Headers.Add(k, v)
			}
		}
	}
}

// WithQuery merges query parameters into the request's URL.
func WithQuery(query url.Values) RequestOption {
	return func(r *LogicalRequest) {
		if r.Query == nil {
			r.Query = url.Values{}
		}
		for k, vs := range query {
			for _, v := range vs {
				r.Query.Add(k, v)
			}
		}
	}
}

// WithBody sets the request body.
func WithBody(body []byte) RequestOption {
	return func(r *LogicalRequest) { r.Body = body }
}

// WithTimeout overrides Config.DefaultTimeout for this call only.
func WithTimeout(d time.Duration) RequestOption {
	return func(r *LogicalRequest) { r.Timeout = d }
}

// WithCache overrides whether this call consults/populates the cache.
// It has no effect when Config.Cache.Enabled is false, since no cache
// backend is built in that case. It cannot widen caching onto a
// method outside Config.Cache.CacheableMethods: read-through caching
// stays confined to the configured methods even when set true.
func WithCache(use bool) RequestOption {
	return func(r *LogicalRequest) { r.UseCache = use }
}

// WithMetadata attaches an opaque key/value pair, readable by
// middlewares via Request.Metadata.
func WithMetadata(key string, value interface{}) RequestOption {
	return func(r *LogicalRequest) {
		if r.Metadata == nil {
			r.Metadata = map[string]interface{}{}
		}
		r.Metadata[key] = value
	}
}

// Sleeper abstracts time.Sleep so tests can inject a fake clock instead
// of waiting out real backoff delays.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}
