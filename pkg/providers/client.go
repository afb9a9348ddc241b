package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/pkg/circuit"
	"github.com/rs/dnscache"
)

// Client defaults.
const (
	DefaultTimeout             = 15 * time.Second
	DefaultMaxRetries          = 3
	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 10

	maxBodySize   = 4 << 20
	excerptLength = 200
	userAgent     = "Credit-Guardian/1.0"
)

// CallObserver receives one callback per provider call: status is
// "success", "timeout", "error" or "circuit_open".
type CallObserver func(provider, status string, elapsed time.Duration)

// ClientOptions configures the shared provider HTTP client.
type ClientOptions struct {
	Timeout             time.Duration
	MaxRetries          int
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	Breakers            *circuit.Registry
	Logger              *slog.Logger
	Observer            CallObserver
}

// Client is the pooled HTTP client shared by every adapter. Each call is
// gated by the provider's circuit breaker.
type Client struct {
	http     *http.Client
	resolver *dnscache.Resolver
	breakers *circuit.Registry
	logger   *slog.Logger
	observe  CallObserver
}

// NewClient creates a pooled client with DNS caching and connection retries.
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = DefaultMaxIdleConns
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Breakers == nil {
		opts.Breakers = circuit.NewRegistry(circuit.Config{}, opts.Logger)
	}

	resolver := &dnscache.Resolver{}
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         cachedDialer(resolver, dialer),
		MaxIdleConns:        opts.MaxIdleConns,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: &retryTransport{base: transport, retries: opts.MaxRetries},
		},
		resolver: resolver,
		breakers: opts.Breakers,
		logger:   opts.Logger,
		observe:  opts.Observer,
	}
}

// Breakers exposes the breaker registry used by this client.
func (c *Client) Breakers() *circuit.Registry { return c.breakers }

// RefreshDNS re-resolves cached hosts and drops unused ones.
func (c *Client) RefreshDNS() { c.resolver.Refresh(true) }

// doJSON sends req through the provider's breaker and decodes a JSON object body.
// Non-2xx responses complete the breaker call successfully and return a classified error.
func (c *Client) doJSON(provider string, req *http.Request) (map[string]any, error) {
	breaker := c.breakers.Get(provider)
	if err := breaker.Check(); err != nil {
		c.report(provider, "circuit_open", 0)
		return nil, err
	}

	req.Header.Set("User-Agent", userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		breaker.RecordFailure()
		perr := classifyTransport(provider, err)
		status := "error"
		if perr.Kind == ErrTimeout {
			status = "timeout"
		}
		c.report(provider, status, time.Since(start))
		c.logger.Warn("provider request failed", "provider", provider, "kind", perr.Kind, "error", perr.Err)
		return nil, perr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		breaker.RecordFailure()
		c.report(provider, "error", time.Since(start))
		return nil, classifyTransport(provider, err)
	}
	breaker.RecordSuccess()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.report(provider, "error", time.Since(start))
		perr := classifyStatus(provider, resp.StatusCode)
		c.logger.Warn("provider returned error status",
			"provider", provider, "status", resp.StatusCode, "body", excerpt(body))
		return nil, perr
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		c.report(provider, "error", time.Since(start))
		c.logger.Error("provider returned invalid JSON", "provider", provider, "body", excerpt(body), "error", err)
		return nil, &Error{Kind: ErrParse, Provider: provider, Message: "invalid JSON response: " + excerpt(body), Err: err}
	}
	c.report(provider, "success", time.Since(start))
	return data, nil
}

// getJSON issues a GET with the given headers.
func (c *Client) getJSON(ctx context.Context, provider, url string, headers map[string]string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", provider, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.doJSON(provider, req)
}

func (c *Client) report(provider, status string, elapsed time.Duration) {
	if c.observe != nil {
		c.observe(provider, status, elapsed)
	}
}

func excerpt(body []byte) string {
	if len(body) > excerptLength {
		return string(body[:excerptLength]) + "..."
	}
	return string(body)
}

func cachedDialer(resolver *dnscache.Resolver, dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		if net.ParseIP(host) != nil {
			return dialer.DialContext(ctx, network, addr)
		}
		ips, err := resolver.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}
		var lastErr error
		for _, ip := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
}

// retryTransport re-sends requests that failed to connect. It never retries
// once a response was received.
type retryTransport struct {
	base    http.RoundTripper
	retries int
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := t.base.RoundTrip(req)
		if err == nil || attempt >= t.retries || !isConnectError(err) || req.Context().Err() != nil {
			return resp, err
		}
		if req.Body != nil && req.Body != http.NoBody {
			if req.GetBody == nil {
				return resp, err
			}
			body, berr := req.GetBody()
			if berr != nil {
				return resp, err
			}
			req = req.Clone(req.Context())
			req.Body = body
		}
	}
}

func isConnectError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
