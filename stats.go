package ratewise

import (
	"sync/atomic"
	"time"

	"github.com/commiterr/ratewise/internal/retry"
)

// ClientStats is a point-in-time snapshot of client-wide counters,
// mutated only by the pipeline.
type ClientStats struct {
	TotalRequests       int64
	SuccessfulRequests  int64
	FailedRequests      int64
	TotalRetries        int64
	CacheHits           int64
	CacheMisses         int64
	CircuitBreakerTrips int64
}

// SuccessRate is SuccessfulRequests / TotalRequests, or 0 when no
// requests have been made.
func (s ClientStats) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.SuccessfulRequests) / float64(s.TotalRequests)
}

// CacheHitRate is CacheHits / (CacheHits + CacheMisses), or 0 when the
// cache has never been consulted.
func (s ClientStats) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// RetryStatsSnapshot pairs the most recent call's delay sequence with
// the engine's lifetime aggregate.
type RetryStatsSnapshot struct {
	LastCallDelays []time.Duration
	Aggregate      retry.AggregateStats
}

// statsCounters holds the atomic counters backing ClientStats; each
// field is updated independently via atomic.AddInt64, matching spec's
// "counters are monotonic; no compound invariant spans sleeps."
type statsCounters struct {
	totalRequests       int64
	successfulRequests  int64
	failedRequests      int64
	totalRetries        int64
	cacheHits           int64
	cacheMisses         int64
	circuitBreakerTrips int64
}

func (c *statsCounters) snapshot() ClientStats {
	return ClientStats{
		TotalRequests:       atomic.LoadInt64(&c.totalRequests),
		SuccessfulRequests:  atomic.LoadInt64(&c.successfulRequests),
		FailedRequests:      atomic.LoadInt64(&c.failedRequests),
		TotalRetries:        atomic.LoadInt64(&c.totalRetries),
		CacheHits:           atomic.LoadInt64(&c.cacheHits),
		CacheMisses:         atomic.LoadInt64(&c.cacheMisses),
		CircuitBreakerTrips: atomic.LoadInt64(&c.circuitBreakerTrips),
	}
}
