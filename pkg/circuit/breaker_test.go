package circuit_test

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/pkg/circuit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clock := newClock()
	b := circuit.NewBreaker("openrouter", circuit.Config{}, clock.Now)

	b.RecordFailure()
	b.RecordFailure()
	assert.True(t, b.Allow())
	assert.Equal(t, circuit.StateClosed, b.State())

	b.RecordFailure()
	assert.Equal(t, circuit.StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := circuit.NewBreaker("volc", circuit.Config{}, newClock().Now)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, circuit.StateClosed, b.State())
}

func TestBreaker_HalfOpenAllowsSingleProbe(t *testing.T) {
	clock := newClock()
	b := circuit.NewBreaker("aliyun", circuit.Config{}, clock.Now)
	for range 3 {
		b.RecordFailure()
	}

	clock.Advance(59 * time.Second)
	assert.False(t, b.Allow())

	clock.Advance(time.Second)
	assert.Equal(t, circuit.StateHalfOpen, b.State())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow(), "only one probe may pass")

	b.RecordSuccess()
	assert.Equal(t, circuit.StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	clock := newClock()
	b := circuit.NewBreaker("tikhub", circuit.Config{}, clock.Now)
	for range 3 {
		b.RecordFailure()
	}
	clock.Advance(60 * time.Second)
	require.True(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, circuit.StateOpen, b.State())
	assert.False(t, b.Allow())

	// the open timestamp was refreshed by the failed probe
	clock.Advance(30 * time.Second)
	assert.False(t, b.Allow())
	clock.Advance(30 * time.Second)
	assert.True(t, b.Allow())
}

func TestBreaker_CheckReturnsOpenError(t *testing.T) {
	b := circuit.NewBreaker("uniapi", circuit.Config{FailureThreshold: 1}, newClock().Now)
	require.NoError(t, b.Check())

	b.RecordFailure()
	err := b.Check()
	require.Error(t, err)
	assert.True(t, errors.Is(err, circuit.ErrOpen))

	var openErr *circuit.OpenError
	require.True(t, errors.As(err, &openErr))
	assert.Equal(t, "uniapi", openErr.Name)
}

func TestBreaker_CheckRetryAtDuringProbe(t *testing.T) {
	clock := newClock()
	b := circuit.NewBreaker("openrouter", circuit.Config{FailureThreshold: 1}, clock.Now)
	b.RecordFailure()

	var openErr *circuit.OpenError
	require.ErrorAs(t, b.Check(), &openErr)
	assert.Equal(t, clock.Now().Add(60*time.Second), openErr.RetryAt)

	clock.Advance(90 * time.Second)
	require.NoError(t, b.Check())
	require.ErrorAs(t, b.Check(), &openErr)
	assert.False(t, openErr.RetryAt.Before(clock.Now()))
}

func TestRegistry_SharesBreakerPerName(t *testing.T) {
	r := circuit.NewRegistry(circuit.Config{}, testLogger())
	assert.Same(t, r.Get("openrouter"), r.Get("openrouter"))
	assert.NotSame(t, r.Get("openrouter"), r.Get("volc"))
}

func TestRegistry_StateChangeCallbackAndSnapshot(t *testing.T) {
	clock := newClock()
	var transitions []string
	r := circuit.NewRegistry(circuit.Config{FailureThreshold: 2}, testLogger(),
		circuit.WithClock(clock.Now),
		circuit.WithStateChange(func(name string, from, to circuit.State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		}),
	)

	b := r.Get("wxrank")
	b.RecordFailure()
	b.RecordFailure()
	clock.Advance(time.Minute)
	require.True(t, b.Allow())
	b.RecordSuccess()

	assert.Equal(t, []string{
		"wxrank:closed->open",
		"wxrank:open->half-open",
		"wxrank:half-open->closed",
	}, transitions)

	r.Get("aliyun")
	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "aliyun", snap[0].Name)
	assert.Equal(t, "closed", snap[1].State)
}
