package ratewise

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/commiterr/ratewise/internal/breaker"
	"github.com/commiterr/ratewise/internal/cache"
	"github.com/commiterr/ratewise/internal/redact"
	"github.com/commiterr/ratewise/internal/transport"
)

// RetryConfig mirrors spec's Retry Policy, expressed as explicit,
// validated fields in place of a keyword-argument bag — unrecognized
// options are structurally impossible in Go, satisfying "unrecognized
// options must be rejected at construction" by construction.
type RetryConfig struct {
	MaxAttempts            int `validate:"min=1"`
	RetryOnStatus          []int
	InitialDelay           time.Duration `validate:"required"`
	MaxDelay               time.Duration `validate:"required"`
	Multiplier             float64       `validate:"min=1"`
	JitterEnabled          bool
	JitterRatio            float64
	RespectRetryAfter      bool
	MaxRetryAfter          time.Duration
	RetryOnTimeout         bool
	RetryOnConnectionError bool
	IdempotentMethods      []string
}

// BreakerConfig mirrors spec's Breaker Config.
type BreakerConfig struct {
	Name             string
	FailureThreshold int `validate:"min=1"`
	SuccessThreshold int `validate:"min=1"`
	RecoveryTimeout  time.Duration `validate:"required"`
	ExpectedKinds    []breaker.ErrorKind
	ExcludedKinds    []breaker.ErrorKind
}

// CacheConfig mirrors spec's cache configuration, including the
// remote-backend variant's connection settings.
type CacheConfig struct {
	Enabled          bool
	MaxSize          int
	DefaultTTL       time.Duration
	Namespace        string
	CacheableMethods []string
	IncludeHeaders   []string
	Remote           *cache.RemoteConfig
}

// Config is the complete, validated construction-time configuration
// for a Client. Every tunable named in spec's data model and component
// design sections is an explicit field here.
type Config struct {
	BaseURL            string `validate:"required,url"`
	DefaultTimeout     time.Duration
	UserAgent          string
	DefaultContentType string
	DefaultHeaders     http.Header

	Retry     RetryConfig
	Breaker   BreakerConfig
	Cache     CacheConfig
	Redaction redact.Config
	Transport transport.Config
}

// ErrInvalidConfig is returned by New when Config fails validation.
var ErrInvalidConfig = errors.New("ratewise: invalid config")

var configValidator = validator.New()

// DefaultConfig returns sane defaults: a conservative retry policy, a
// breaker tuned for a handful of consecutive failures, a 1000-entry
// in-process cache, and the built-in redaction targets.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:            baseURL,
		DefaultTimeout:     30 * time.Second,
		UserAgent:          "ratewise-client/1.0",
		DefaultContentType: "application/json",
		Retry: RetryConfig{
			MaxAttempts:            3,
			RetryOnStatus:          []int{429, 500, 502, 503, 504},
			InitialDelay:           500 * time.Millisecond,
			MaxDelay:               30 * time.Second,
			Multiplier:             2.0,
			JitterEnabled:          true,
			JitterRatio:            0.25,
			RespectRetryAfter:      true,
			MaxRetryAfter:          5 * time.Minute,
			RetryOnTimeout:         true,
			RetryOnConnectionError: true,
			IdempotentMethods:      []string{http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete},
		},
		Breaker: BreakerConfig{
			Name:             "default",
			FailureThreshold: 5,
			SuccessThreshold: 2,
			RecoveryTimeout:  30 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:          true,
			MaxSize:          1000,
			DefaultTTL:       5 * time.Minute,
			Namespace:        "ratewise",
			CacheableMethods: []string{http.MethodGet},
		},
		Redaction: redact.DefaultConfig(),
		Transport: transport.DefaultConfig(),
	}
}

// validate runs struct-tag validation plus the cross-field checks
// spec's configuration surface requires rejecting at construction
// (max_delay < initial_delay, threshold fields < 1, max_attempts < 1).
func (c Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry.max_attempts must be >= 1", ErrInvalidConfig)
	}
	if c.Retry.MaxDelay < c.Retry.InitialDelay {
		return fmt.Errorf("%w: retry.max_delay must be >= retry.initial_delay", ErrInvalidConfig)
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("%w: retry.multiplier must be >= 1", ErrInvalidConfig)
	}
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("%w: breaker.failure_threshold must be >= 1", ErrInvalidConfig)
	}
	if c.Breaker.SuccessThreshold < 1 {
		return fmt.Errorf("%w: breaker.success_threshold must be >= 1", ErrInvalidConfig)
	}
	if c.Cache.Enabled && c.Cache.Remote == nil && c.Cache.MaxSize <= 0 {
		return fmt.Errorf("%w: cache.max_size must be > 0 for the in-process adapter", ErrInvalidConfig)
	}
	return nil
}
