package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commiterr/ratewise/internal/logger"
)

func newTestBreaker(t *testing.T, failureThreshold, successThreshold int, recovery time.Duration) *Breaker {
	t.Helper()
	b, err := New(Config{
		Name:             "test",
		FailureThreshold: failureThreshold,
		SuccessThreshold: successThreshold,
		RecoveryTimeout:  recovery,
	})
	require.NoError(t, err)
	return b
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{FailureThreshold: 0, SuccessThreshold: 1, RecoveryTimeout: time.Second})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{FailureThreshold: 1, SuccessThreshold: 0, RecoveryTimeout: time.Second})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := newTestBreaker(t, 2, 1, time.Minute)

	require.NoError(t, b.Allow())
	b.RecordFailure("")
	assert.Equal(t, StateClosed, b.State().State)

	b.RecordFailure("")
	assert.Equal(t, StateOpen, b.State().State)

	err := b.Allow()
	require.Error(t, err)
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, 2, openErr.FailureCount)

	assert.EqualValues(t, 1, b.Stats().RejectedCalls)
}

func TestBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	b := newTestBreaker(t, 1, 1, 10*time.Millisecond)

	b.RecordFailure("")
	require.Equal(t, StateOpen, b.State().State)

	time.Sleep(15 * time.Millisecond)

	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State().State)
}

func TestBreaker_HalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	b := newTestBreaker(t, 1, 2, 5*time.Millisecond)

	b.RecordFailure("")
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Allow())
	require.Equal(t, StateHalfOpen, b.State().State)

	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.State().State)

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State().State)
}

func TestBreaker_HalfOpenReopensOnFailure(t *testing.T) {
	b := newTestBreaker(t, 1, 2, 5*time.Millisecond)

	b.RecordFailure("")
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Allow())
	require.Equal(t, StateHalfOpen, b.State().State)

	b.RecordFailure("")
	assert.Equal(t, StateOpen, b.State().State)
}

func TestBreaker_Reset(t *testing.T) {
	b := newTestBreaker(t, 1, 1, time.Minute)
	b.RecordFailure("")
	require.Equal(t, StateOpen, b.State().State)

	b.Reset()
	snap := b.State()
	assert.Equal(t, StateClosed, snap.State)
	assert.Zero(t, snap.FailureCount)
	assert.Zero(t, snap.SuccessCount)
}

func TestBreaker_FailureKindFiltering(t *testing.T) {
	b, err := New(Config{
		Name:             "filtered",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		RecoveryTimeout:  time.Minute,
		ExpectedKinds:    []ErrorKind{KindTimeout},
	})
	require.NoError(t, err)

	b.RecordFailure(KindConnectionFailure)
	assert.Equal(t, StateClosed, b.State().State, "non-expected kind must not count")

	b.RecordFailure(KindTimeout)
	assert.Equal(t, StateOpen, b.State().State)
}

func TestBreaker_ExcludedKindNeverCounts(t *testing.T) {
	b, err := New(Config{
		Name:             "excluded",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		RecoveryTimeout:  time.Minute,
		ExcludedKinds:    []ErrorKind{KindRateLimit},
	})
	require.NoError(t, err)

	b.RecordFailure(KindRateLimit)
	assert.Equal(t, StateClosed, b.State().State)
}

func TestBreaker_EmptyKindAlwaysCounts(t *testing.T) {
	b, err := New(Config{
		Name:             "unconditional",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		RecoveryTimeout:  time.Minute,
		ExpectedKinds:    []ErrorKind{KindTimeout},
	})
	require.NoError(t, err)

	b.RecordFailure("")
	assert.Equal(t, StateOpen, b.State().State)
}

func TestBreaker_ListenerInvokedOnTransition(t *testing.T) {
	b := newTestBreaker(t, 1, 1, time.Minute)

	var mu sync.Mutex
	var seen []string
	b.OnStateChange(func(from, to State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, from.String()+"->"+to.String())
	})

	b.RecordFailure("")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"CLOSED->OPEN"}, seen)
}

func TestBreaker_PanickingListenerDoesNotAffectTransition(t *testing.T) {
	b := newTestBreaker(t, 1, 1, time.Minute)

	called := false
	b.OnStateChange(func(from, to State) { panic("boom") })
	b.OnStateChange(func(from, to State) { called = true })

	assert.NotPanics(t, func() { b.RecordFailure("") })
	assert.True(t, called)
	assert.Equal(t, StateOpen, b.State().State)
}

func TestBreaker_TransitionRoutesThroughEventLoggerWhenConfigured(t *testing.T) {
	b, err := New(Config{
		Name:             "routed",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		RecoveryTimeout:  time.Minute,
		Events:           logger.NewEventLogger(nil),
	})
	require.NoError(t, err)

	assert.NotPanics(t, func() { b.RecordFailure("") })
	assert.Equal(t, StateOpen, b.State().State)
}

func TestBreaker_ConcurrentFailuresSingleTransition(t *testing.T) {
	b := newTestBreaker(t, 5, 1, time.Minute)

	var transitions int
	var mu sync.Mutex
	b.OnStateChange(func(from, to State) {
		mu.Lock()
		defer mu.Unlock()
		transitions++
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.RecordFailure("")
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, transitions)
}
