// Package circuit guards outbound provider calls with per-provider circuit breakers.
package circuit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Default breaker settings.
const (
	DefaultFailureThreshold = 3
	DefaultOpenTimeout      = 60 * time.Second
)

// ErrOpen is matched by every OpenError.
var ErrOpen = errors.New("circuit open")

// OpenError is returned when a breaker rejects a call without touching the network.
type OpenError struct {
	Name    string
	RetryAt time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit open for %s, retry after %s", e.Name, e.RetryAt.Format(time.RFC3339))
}

func (e *OpenError) Is(target error) bool { return target == ErrOpen }

// Config configures a breaker.
type Config struct {
	FailureThreshold int
	OpenTimeout      time.Duration
}

// Breaker is a consecutive-failure circuit breaker. Open transitions to
// half-open lazily, on the first state query after the open timeout.
type Breaker struct {
	mu sync.Mutex

	name   string
	config Config
	now    func() time.Time

	state         State
	failures      int
	openedAt      time.Time
	lastFailure   time.Time
	probeInFlight bool
	onStateChange func(name string, from, to State)
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, config Config, now func() time.Time) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultFailureThreshold
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = DefaultOpenTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &Breaker{name: name, config: config, now: now}
}

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, moving open to half-open once the timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

// Allow reports whether a call may proceed. In half-open exactly one probe is let through.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refreshLocked()
	switch b.state {
	case StateOpen:
		return false
	case StateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return true
	}
}

// Check returns an OpenError when the call is rejected.
func (b *Breaker) Check() error {
	if b.Allow() {
		return nil
	}
	b.mu.Lock()
	retryAt := b.openedAt.Add(b.config.OpenTimeout)
	// A half-open breaker waiting on its probe may admit the next call at any moment.
	if now := b.now(); now.After(retryAt) {
		retryAt = now
	}
	b.mu.Unlock()
	return &OpenError{Name: b.name, RetryAt: retryAt}
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probeInFlight = false
	b.transitionLocked(StateClosed)
}

// RecordFailure counts a transport failure. A failed probe re-opens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.failures++
	b.lastFailure = now

	switch b.state {
	case StateHalfOpen:
		b.probeInFlight = false
		b.openedAt = now
		b.transitionLocked(StateOpen)
	case StateClosed:
		if b.failures >= b.config.FailureThreshold {
			b.openedAt = now
			b.transitionLocked(StateOpen)
		}
	case StateOpen:
		b.openedAt = now
	}
}

// Status is a point-in-time view of a breaker.
type Status struct {
	Name        string    `json:"name" yaml:"name"`
	State       string    `json:"state" yaml:"state"`
	Failures    int       `json:"failures" yaml:"failures"`
	OpenedAt    time.Time `json:"opened_at,omitempty" yaml:"opened_at,omitempty"`
	LastFailure time.Time `json:"last_failure,omitempty" yaml:"last_failure,omitempty"`
}

// Status returns the breaker status.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return Status{
		Name:        b.name,
		State:       b.state.String(),
		Failures:    b.failures,
		OpenedAt:    b.openedAt,
		LastFailure: b.lastFailure,
	}
}

func (b *Breaker) refreshLocked() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.config.OpenTimeout {
		b.probeInFlight = false
		b.transitionLocked(StateHalfOpen)
	}
}

func (b *Breaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}
