// Package monitor runs balance checks across projects and exposes the latest
// results to readers.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/credit-guardian/pkg/cache"
	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
	"github.com/ogulcanaydogan/credit-guardian/pkg/providers"
	"github.com/ogulcanaydogan/credit-guardian/pkg/storage"
	"golang.org/x/sync/errgroup"
)

// Worker pool bounds.
const (
	DefaultMaxConcurrent = 20
	MaxConcurrentLimit   = 50
)

// Cache type labels reported to Metrics.
const (
	CacheResponse = "response"
	CacheInstance = "instance"
)

// Metrics is the optional sink for check results. *metrics.Collector satisfies it.
type Metrics interface {
	RecordBalance(r model.ProjectCheckResult)
	RecordSubscription(r model.SubscriptionCheckResult)
	RecordRun(checkType string, elapsed time.Duration)
	CacheHit(cacheType string)
	CacheMiss(cacheType string)
}

type noopMetrics struct{}

func (noopMetrics) RecordBalance(model.ProjectCheckResult)           {}
func (noopMetrics) RecordSubscription(model.SubscriptionCheckResult) {}
func (noopMetrics) RecordRun(string, time.Duration)                  {}
func (noopMetrics) CacheHit(string)                                  {}
func (noopMetrics) CacheMiss(string)                                 {}

// Sender delivers an alert and reports success. *alerts.Dispatcher satisfies it.
type Sender interface {
	Send(ctx context.Context, a alerts.Alert) bool
}

// Options configures a Checker. Zero values fall back to defaults except
// ResponseTTL, where zero disables the response cache.
type Options struct {
	MaxConcurrent int
	ResponseTTL   time.Duration
	InstanceTTL   time.Duration
	Storage       storage.Storage
	Metrics       Metrics
	Logger        *slog.Logger
	Now           func() time.Time
}

// Checker fans balance checks out over a bounded worker pool.
type Checker struct {
	factory   *providers.Factory
	client    *providers.Client
	sender    Sender
	instances *cache.TTL[string, providers.Provider]
	responses *cache.TTL[string, providers.Balance]
	storage   storage.Storage
	metrics   Metrics
	limit     int
	now       func() time.Time
	logger    *slog.Logger
}

// NewChecker creates a checker. sender may be nil, in which case alarms are
// evaluated but never sent.
func NewChecker(factory *providers.Factory, client *providers.Client, sender Sender, opts Options) *Checker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.InstanceTTL <= 0 {
		opts.InstanceTTL = cache.InstanceTTL
	}
	if opts.ResponseTTL < 0 {
		opts.ResponseTTL = 0
	}
	if opts.Storage == nil {
		opts.Storage = storage.Noop{}
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Checker{
		factory:   factory,
		client:    client,
		sender:    sender,
		instances: cache.New[string, providers.Provider](opts.InstanceTTL, opts.Now),
		responses: cache.New[string, providers.Balance](opts.ResponseTTL, opts.Now),
		storage:   opts.Storage,
		metrics:   opts.Metrics,
		limit:     clampConcurrency(opts.MaxConcurrent),
		now:       opts.Now,
		logger:    opts.Logger.With("component", "monitor"),
	}
}

func clampConcurrency(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxConcurrent
	case n > MaxConcurrentLimit:
		return MaxConcurrentLimit
	}
	return n
}

// Client returns the shared provider client.
func (c *Checker) Client() *providers.Client { return c.client }

// PurgeCaches drops expired instance and response cache entries.
func (c *Checker) PurgeCaches() (instances, responses int) {
	return c.instances.Purge(), c.responses.Purge()
}

// Run checks every enabled project. The result slice has one entry per enabled
// project, in input order; failures become unsuccessful results.
func (c *Checker) Run(ctx context.Context, projects []model.ProjectConfig, dryRun bool) []model.ProjectCheckResult {
	start := time.Now()
	enabled := make([]model.ProjectConfig, 0, len(projects))
	for _, p := range projects {
		if p.IsEnabled() {
			enabled = append(enabled, p)
		}
	}
	results := make([]model.ProjectCheckResult, len(enabled))
	if len(enabled) == 0 {
		c.metrics.RecordRun("balance", time.Since(start))
		return results
	}

	var g errgroup.Group
	g.SetLimit(min(c.limit, len(enabled)))
	for i, p := range enabled {
		g.Go(func() error {
			results[i] = c.Check(ctx, p, dryRun)
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	c.metrics.RecordRun("balance", elapsed)

	var failed, alarms int
	for _, r := range results {
		if !r.Success {
			failed++
		}
		if r.NeedAlarm {
			alarms++
		}
	}
	c.logger.Info("balance check complete",
		"projects", len(results), "failed", failed, "need_alarm", alarms,
		"dry_run", dryRun, "duration", elapsed.Round(time.Millisecond))
	return results
}

// Check evaluates a single project regardless of its enabled flag. It never
// panics and never returns an error; failures are reported in the result.
func (c *Checker) Check(ctx context.Context, p model.ProjectConfig, dryRun bool) (res model.ProjectCheckResult) {
	res = model.ProjectCheckResult{
		Project:   p.Name,
		Provider:  p.Provider,
		Kind:      p.Kind,
		Threshold: p.Threshold,
		CheckedAt: c.now().UTC(),
	}
	if res.Kind == "" {
		res.Kind = model.KindBalance
	}
	logger := c.logger.With("project", p.Name, "provider", p.Provider)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("project check panicked", "panic", r)
			res = failed(res, fmt.Errorf("internal error: %v", r))
		}
		c.metrics.RecordBalance(res)
	}()

	balance, cached, err := c.fetch(ctx, p)
	if err != nil {
		logger.Warn("project check failed", "error", err)
		return failed(res, err)
	}

	res.Success = true
	res.Cached = cached
	res.Balance = balance.Value
	res.Currency = balance.Currency
	res.NeedAlarm = res.Balance < res.Threshold
	c.saveBalance(ctx, res)

	if res.NeedAlarm {
		res.AlarmSent = c.alarm(ctx, res, dryRun, logger)
	}
	logger.Debug("project checked", "balance", res.Balance, "threshold", res.Threshold,
		"need_alarm", res.NeedAlarm, "cached", cached)
	return res
}

// fetch consults the response cache, then the adapter. Only the balance is
// cached; the caller re-evaluates the threshold.
func (c *Checker) fetch(ctx context.Context, p model.ProjectConfig) (providers.Balance, bool, error) {
	key := cache.Key(p.Provider, p.Credential)
	if b, ok := c.responses.Get(key); ok {
		c.metrics.CacheHit(CacheResponse)
		return b, true, nil
	}
	c.metrics.CacheMiss(CacheResponse)

	prov, hit, err := c.instances.GetOrCreate(key, func() (providers.Provider, error) {
		return c.factory.New(p.Provider, p.Credential, c.client)
	})
	if err != nil {
		return providers.Balance{}, false, err
	}
	if hit {
		c.metrics.CacheHit(CacheInstance)
	} else {
		c.metrics.CacheMiss(CacheInstance)
	}

	b, err := prov.FetchBalance(ctx)
	if err != nil {
		return providers.Balance{}, false, err
	}
	c.responses.Put(key, b)
	return b, false, nil
}

func (c *Checker) alarm(ctx context.Context, res model.ProjectCheckResult, dryRun bool, logger *slog.Logger) bool {
	a := alerts.BalanceAlert{
		ProjectName: res.Project,
		Provider:    res.Provider,
		Kind:        res.Kind,
		Value:       res.Balance,
		Threshold:   res.Threshold,
		Currency:    res.Currency,
	}

	status := model.AlertSkipped
	sent := false
	switch {
	case dryRun:
		logger.Info("alarm suppressed by dry run", "balance", res.Balance, "threshold", res.Threshold)
	case c.sender == nil:
		logger.Warn("balance below threshold but no webhook configured")
	default:
		sent = c.sender.Send(ctx, a)
		status = model.AlertFailed
		if sent {
			status = model.AlertSent
		}
	}

	if err := c.storage.SaveAlert(ctx, &model.AlertRecord{
		ProjectID:      model.ProjectID(res.Provider, res.Project),
		ProjectName:    res.Project,
		AlertType:      "balance_low",
		Status:         status,
		Message:        a.Subject(),
		BalanceValue:   res.Balance,
		ThresholdValue: res.Threshold,
	}); err != nil {
		logger.Warn("save alert record failed", "error", err)
	}
	return sent
}

func (c *Checker) saveBalance(ctx context.Context, res model.ProjectCheckResult) {
	err := c.storage.SaveBalance(ctx, &model.BalanceRecord{
		ProjectID:   model.ProjectID(res.Provider, res.Project),
		ProjectName: res.Project,
		Provider:    res.Provider,
		Balance:     res.Balance,
		Threshold:   res.Threshold,
		Currency:    res.Currency,
		Kind:        res.Kind,
		NeedAlarm:   res.NeedAlarm,
	})
	if err != nil {
		c.logger.Warn("save balance record failed", "project", res.Project, "error", err)
	}
}

func failed(res model.ProjectCheckResult, err error) model.ProjectCheckResult {
	res.Success = false
	res.Error = err.Error()
	res.Balance = 0
	res.Currency = ""
	res.Cached = false
	res.NeedAlarm = false
	res.AlarmSent = false
	return res
}
