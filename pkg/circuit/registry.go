package circuit

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Registry hands out one shared breaker per provider name.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	config   Config
	now      func() time.Time
	logger   *slog.Logger
	onChange func(name string, from, to State)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithStateChange registers a callback invoked on every transition.
// It runs while the breaker lock is held and must not call back into the breaker.
func WithStateChange(fn func(name string, from, to State)) RegistryOption {
	return func(r *Registry) { r.onChange = fn }
}

// NewRegistry creates an empty registry.
func NewRegistry(config Config, logger *slog.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		breakers: make(map[string]*Breaker),
		config:   config,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewBreaker(name, r.config, r.now)
	b.onStateChange = r.stateChanged
	r.breakers[name] = b
	return b
}

// Snapshot returns the status of every known breaker, sorted by name.
func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) stateChanged(name string, from, to State) {
	switch to {
	case StateOpen:
		r.logger.Warn("circuit breaker opened", "provider", name, "from", from.String())
	case StateHalfOpen:
		r.logger.Info("circuit breaker half-open, allowing probe", "provider", name)
	case StateClosed:
		r.logger.Info("circuit breaker closed", "provider", name, "from", from.String())
	}
	if r.onChange != nil {
		r.onChange(name, from, to)
	}
}
