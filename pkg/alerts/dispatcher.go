package alerts

import (
	"context"
	"log/slog"
	"time"
)

// Retry defaults.
const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 2 * time.Second
	DefaultBackoffMax  = 10 * time.Second
)

// DeliveryObserver receives the outcome ("success" or "failed") and latency of each Send.
type DeliveryObserver func(platform, status string, elapsed time.Duration)

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRetry overrides the attempt count and backoff bounds.
func WithRetry(attempts int, base, maxWait time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if attempts > 0 {
			d.attempts = attempts
		}
		if base > 0 {
			d.base = base
		}
		if maxWait > 0 {
			d.max = maxWait
		}
	}
}

// WithObserver reports every delivery outcome.
func WithObserver(fn DeliveryObserver) DispatcherOption {
	return func(d *Dispatcher) { d.observe = fn }
}

// Dispatcher delivers alerts through a notifier with bounded retries.
// Transport errors and 5xx responses are retried; 4xx is terminal.
type Dispatcher struct {
	notifier Notifier
	attempts int
	base     time.Duration
	max      time.Duration
	logger   *slog.Logger
	observe  DeliveryObserver
}

// NewDispatcher wraps n. A nil n yields a dispatcher whose Send always fails.
func NewDispatcher(n Notifier, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		notifier: n,
		attempts: DefaultMaxAttempts,
		base:     DefaultBackoffBase,
		max:      DefaultBackoffMax,
		logger:   logger.With("component", "alerts"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enabled reports whether a notifier is configured.
func (d *Dispatcher) Enabled() bool { return d != nil && d.notifier != nil }

// Send delivers a and reports whether a 2xx was received.
func (d *Dispatcher) Send(ctx context.Context, a Alert) bool {
	if !d.Enabled() {
		return false
	}
	platform := d.notifier.Name()
	start := time.Now()

	for attempt := 1; ; attempt++ {
		err := d.notifier.Send(ctx, a)
		if err == nil {
			d.logger.Info("alert sent", "platform", platform, "subject", a.Subject(), "attempt", attempt)
			d.report(platform, "success", time.Since(start))
			return true
		}

		if !IsRetryable(err) || attempt >= d.attempts {
			d.logger.Error("send alert failed",
				"platform", platform, "subject", a.Subject(), "attempt", attempt, "error", err)
			d.report(platform, "failed", time.Since(start))
			return false
		}

		wait := d.backoff(attempt)
		d.logger.Warn("alert delivery failed, retrying",
			"platform", platform, "attempt", attempt, "retry_in", wait, "error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.logger.Error("send alert cancelled", "platform", platform, "error", ctx.Err())
			d.report(platform, "failed", time.Since(start))
			return false
		case <-timer.C:
		}
	}
}

// backoff returns the wait after the given failed attempt: base, 2*base, ... capped at max.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	wait := d.base << (attempt - 1)
	if wait > d.max || wait <= 0 {
		return d.max
	}
	return wait
}

func (d *Dispatcher) report(platform, status string, elapsed time.Duration) {
	if d.observe != nil {
		d.observe(platform, status, elapsed)
	}
}
