package providers

import (
	"context"
	"time"
)

// Balance is a provider-reported amount.
type Balance struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency,omitempty"`
}

// Provider fetches the current balance of one billing account.
type Provider interface {
	// Name returns the provider identifier (e.g., "openrouter", "volc").
	Name() string

	// FetchBalance queries the vendor API. Errors are *Error or *circuit.OpenError.
	FetchBalance(ctx context.Context) (Balance, error)
}

// Constructor builds a provider bound to one credential.
type Constructor func(credential string, client *Client) (Provider, error)

// Option customises an adapter after construction.
type Option func(*endpoint)

type endpoint struct {
	baseURL string
	now     func() time.Time
}

// WithBaseURL points an adapter at a different host, for tests and proxies.
func WithBaseURL(u string) Option {
	return func(e *endpoint) { e.baseURL = u }
}

// WithClock overrides the clock used for request signing timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *endpoint) { e.now = now }
}

func applyOptions(defaultURL string, opts []Option) endpoint {
	e := endpoint{baseURL: defaultURL, now: time.Now}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}
