package ratewise

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commiterr/ratewise/internal/cache"
)

func validRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
	}
}

func validBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "t",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		RecoveryTimeout:  time.Second,
	}
}

func TestConfig_DefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig("https://api.example.com")
	require.NoError(t, cfg.validate())
}

func TestConfig_RejectsMissingBaseURL(t *testing.T) {
	cfg := DefaultConfig("")
	err := cfg.validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_RejectsMalformedBaseURL(t *testing.T) {
	cfg := DefaultConfig("not a url")
	assert.Error(t, cfg.validate())
}

func TestConfig_RejectsMaxDelayBelowInitialDelay(t *testing.T) {
	cfg := DefaultConfig("https://api.example.com")
	cfg.Retry = validRetryConfig()
	cfg.Breaker = validBreakerConfig()
	cfg.Retry.InitialDelay = time.Second
	cfg.Retry.MaxDelay = 100 * time.Millisecond

	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_delay")
}

func TestConfig_RejectsMaxAttemptsBelowOne(t *testing.T) {
	cfg := DefaultConfig("https://api.example.com")
	cfg.Retry = validRetryConfig()
	cfg.Retry.MaxAttempts = 0
	cfg.Breaker = validBreakerConfig()

	assert.Error(t, cfg.validate())
}

func TestConfig_RejectsFailureThresholdBelowOne(t *testing.T) {
	cfg := DefaultConfig("https://api.example.com")
	cfg.Retry = validRetryConfig()
	cfg.Breaker = validBreakerConfig()
	cfg.Breaker.FailureThreshold = 0

	assert.Error(t, cfg.validate())
}

func TestConfig_RejectsSuccessThresholdBelowOne(t *testing.T) {
	cfg := DefaultConfig("https://api.example.com")
	cfg.Retry = validRetryConfig()
	cfg.Breaker = validBreakerConfig()
	cfg.Breaker.SuccessThreshold = 0

	assert.Error(t, cfg.validate())
}

func TestConfig_RejectsMultiplierBelowOne(t *testing.T) {
	cfg := DefaultConfig("https://api.example.com")
	cfg.Retry = validRetryConfig()
	cfg.Retry.Multiplier = 0.5
	cfg.Breaker = validBreakerConfig()

	assert.Error(t, cfg.validate())
}

func TestConfig_RejectsZeroMaxSizeForInProcessCache(t *testing.T) {
	cfg := DefaultConfig("https://api.example.com")
	cfg.Retry = validRetryConfig()
	cfg.Breaker = validBreakerConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.Remote = nil
	cfg.Cache.MaxSize = 0

	assert.Error(t, cfg.validate())
}

func TestConfig_RemoteCacheDoesNotRequireMaxSize(t *testing.T) {
	cfg := DefaultConfig("https://api.example.com")
	cfg.Retry = validRetryConfig()
	cfg.Breaker = validBreakerConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.MaxSize = 0
	cfg.Cache.Remote = &cache.RemoteConfig{Host: "localhost", Port: 6379, Namespace: "t"}

	require.NoError(t, cfg.validate())
}
