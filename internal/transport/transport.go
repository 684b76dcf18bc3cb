// Package transport issues HTTP attempts and classifies the low-level
// errors a dial/write/read can fail with. Grounded on the teacher's
// internal/httpclient/client.go (http.Transport tuning defaults) and
// internal/proxy/client.go (the httpClient.Do/duration-measuring call
// site), with error classification shaped after
// other_examples/084dd347_voocel-litellm__resilience.go.go's
// isRetryableError (net.Error/Timeout, context deadline, syscall errno
// checks) — retargeted from a boolean retry verdict to a four-way
// ErrorKind the retry engine and breaker can reason about independently.
package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"
)

// ErrorKind classifies a failed attempt at the transport level, before
// any retry policy is applied.
type ErrorKind int

const (
	// ErrorKindTimeout means the attempt's context deadline elapsed or
	// the underlying connection reported a timeout.
	ErrorKindTimeout ErrorKind = iota
	// ErrorKindConnectionFailure means the attempt never reached a
	// server: refused, reset, or DNS/dial failure.
	ErrorKindConnectionFailure
	// ErrorKindCanceled means the caller's context was canceled, not a
	// deadline.
	ErrorKindCanceled
	// ErrorKindOther covers transport errors not covered above
	// (malformed response, TLS failure, etc).
	ErrorKindOther
)

// Transport issues a single HTTP attempt and classifies its failures.
// The default adapter wraps *http.Client; tests substitute a fake for
// deterministic outcomes without a real socket.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
	Classify(err error) ErrorKind
	CloseIdleConnections()
}

// Config tunes the default net/http-based Transport.
type Config struct {
	DialTimeout         time.Duration
	IdleConnTimeout     time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	DisableCompression  bool
}

// DefaultConfig mirrors the teacher's httpclient.Factory connection
// pool tuning.
func DefaultConfig() Config {
	return Config{
		DialTimeout:         30 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		DisableCompression:  false,
	}
}

// HTTPTransport is the default Transport, backed by *http.Client.
type HTTPTransport struct {
	client *http.Client
}

// New builds an HTTPTransport from cfg.
func New(cfg Config) *HTTPTransport {
	rt := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableCompression:  cfg.DisableCompression,
		DialContext: (&net.Dialer{
			Timeout: cfg.DialTimeout,
		}).DialContext,
	}
	return &HTTPTransport{client: &http.Client{Transport: rt}}
}

// Do issues req and returns the raw response or error. The caller is
// responsible for per-attempt timeouts via req's context; Do itself
// applies no additional deadline.
func (t *HTTPTransport) Do(req *http.Request) (*http.Response, error) {
	return t.client.Do(req)
}

// CloseIdleConnections releases pooled connections, called from
// Client.Close.
func (t *HTTPTransport) CloseIdleConnections() {
	t.client.CloseIdleConnections()
}

// Classify inspects err, returned from Do, and sorts it into the
// coarse categories the retry engine and breaker need.
func (t *HTTPTransport) Classify(err error) ErrorKind {
	return Classify(err)
}

// Classify is the free-function form, usable by fakes that don't want
// to embed an HTTPTransport.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorKindOther
	}

	if errors.Is(err, context.Canceled) {
		return ErrorKindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		var errno syscall.Errno
		if errors.As(opErr.Err, &errno) {
			switch errno {
			case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE, syscall.EHOSTUNREACH, syscall.ENETUNREACH:
				return ErrorKindConnectionFailure
			case syscall.ETIMEDOUT:
				return ErrorKindTimeout
			}
		}
		if opErr.Timeout() {
			return ErrorKindTimeout
		}
		return ErrorKindConnectionFailure
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return ErrorKindTimeout
		}
		return ErrorKindConnectionFailure
	}

	return ErrorKindOther
}
