// Package metrics exports check results and runtime counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/pkg/circuit"
	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "credit_guardian"

// Balance status gauge values.
const (
	StatusFailed = -1
	StatusAlarm  = 0
	StatusOK     = 1
)

// Subscription status gauge values.
const (
	SubscriptionRenewed    = -1
	SubscriptionNeedsRenew = 0
	SubscriptionNormal     = 1
)

// Collector owns a private registry so tests and multiple instances never collide.
type Collector struct {
	registry *prometheus.Registry

	balance            *prometheus.GaugeVec
	threshold          *prometheus.GaugeVec
	balanceRatio       *prometheus.GaugeVec
	balanceStatus      *prometheus.GaugeVec
	subscriptionDays   *prometheus.GaugeVec
	subscriptionStatus *prometheus.GaugeVec
	lastCheck          *prometheus.GaugeVec
	circuitState       *prometheus.GaugeVec

	apiCalls           *prometheus.CounterVec
	failedChecks       *prometheus.CounterVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	emailScanned       *prometheus.CounterVec
	emailAlerts        *prometheus.CounterVec
	webhookDeliveries  *prometheus.CounterVec
	configReloads      prometheus.Counter
	apiLatency         *prometheus.HistogramVec
	webhookLatency     *prometheus.HistogramVec
	checkDuration      *prometheus.HistogramVec
	emailScanDuration  *prometheus.HistogramVec
}

// New creates a collector with its own registry, including Go and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	project := []string{"project", "provider", "type"}
	return &Collector{
		registry: reg,

		balance: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "balance",
			Help: "Latest balance or credit count per project.",
		}, project),
		threshold: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "threshold",
			Help: "Alarm threshold per project.",
		}, project),
		balanceRatio: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "balance_ratio",
			Help: "Balance divided by threshold.",
		}, project),
		balanceStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "balance_status",
			Help: "1 ok, 0 below threshold, -1 check failed.",
		}, project),
		subscriptionDays: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "subscription_days",
			Help: "Days until the next renewal.",
		}, []string{"subscription", "cycle_type"}),
		subscriptionStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "subscription_status",
			Help: "1 normal, 0 needs renewal, -1 already renewed.",
		}, []string{"subscription", "cycle_type"}),
		lastCheck: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_check_timestamp_seconds",
			Help: "Unix time of the last completed check run.",
		}, []string{"check_type"}),
		circuitState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "circuit_breaker_state",
			Help: "0 closed, 1 open, 2 half-open.",
		}, []string{"provider"}),

		apiCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "provider_api_calls_total",
			Help: "Provider API calls by outcome.",
		}, []string{"provider", "status"}),
		failedChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "failed_checks_total",
			Help: "Project checks that did not produce a balance.",
		}, []string{"project", "provider"}),
		cacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_hits_total",
			Help: "Cache hits by cache type.",
		}, []string{"cache_type"}),
		cacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_misses_total",
			Help: "Cache misses by cache type.",
		}, []string{"cache_type"}),
		emailScanned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "email_scanned_total",
			Help: "Messages examined by the mailbox scanner.",
		}, []string{"mailbox"}),
		emailAlerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "email_alerts_total",
			Help: "Messages that matched alert keywords.",
		}, []string{"mailbox"}),
		webhookDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "webhook_deliveries_total",
			Help: "Webhook deliveries by platform and outcome.",
		}, []string{"platform", "status"}),
		configReloads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "config_reloads_total",
			Help: "Successful configuration reloads.",
		}),

		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "provider_api_latency_seconds",
			Help: "Provider API call latency.", Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		webhookLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "webhook_delivery_seconds",
			Help: "Webhook delivery latency including retries.", Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"platform"}),
		checkDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "check_run_duration_seconds",
			Help: "Duration of a full check run.", Buckets: prometheus.DefBuckets,
		}, []string{"check_type"}),
		emailScanDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "email_scan_duration_seconds",
			Help: "Duration of a mailbox scan.", Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"mailbox"}),
	}
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordBalance updates the project gauges from one check result.
func (c *Collector) RecordBalance(r model.ProjectCheckResult) {
	labels := prometheus.Labels{"project": r.Project, "provider": r.Provider, "type": string(r.Kind)}
	if !r.Success {
		c.balanceStatus.With(labels).Set(StatusFailed)
		c.failedChecks.WithLabelValues(r.Project, r.Provider).Inc()
		return
	}

	c.balance.With(labels).Set(r.Balance)
	c.threshold.With(labels).Set(r.Threshold)
	if r.Threshold > 0 {
		c.balanceRatio.With(labels).Set(r.Balance / r.Threshold)
	}
	status := StatusOK
	if r.NeedAlarm {
		status = StatusAlarm
	}
	c.balanceStatus.With(labels).Set(float64(status))
}

// RecordSubscription updates the subscription gauges.
func (c *Collector) RecordSubscription(r model.SubscriptionCheckResult) {
	c.subscriptionDays.WithLabelValues(r.Name, string(r.CycleType)).Set(float64(r.DaysUntilRenewal))
	status := SubscriptionNormal
	switch {
	case r.AlreadyRenewed:
		status = SubscriptionRenewed
	case r.NeedAlert:
		status = SubscriptionNeedsRenew
	}
	c.subscriptionStatus.WithLabelValues(r.Name, string(r.CycleType)).Set(float64(status))
}

// RecordRun marks a completed run of checkType ("balance", "subscription", "email").
func (c *Collector) RecordRun(checkType string, elapsed time.Duration) {
	c.lastCheck.WithLabelValues(checkType).SetToCurrentTime()
	c.checkDuration.WithLabelValues(checkType).Observe(elapsed.Seconds())
}

// CacheHit counts a hit in the named cache.
func (c *Collector) CacheHit(cacheType string) { c.cacheHits.WithLabelValues(cacheType).Inc() }

// CacheMiss counts a miss in the named cache.
func (c *Collector) CacheMiss(cacheType string) { c.cacheMisses.WithLabelValues(cacheType).Inc() }

// ObserveProviderCall matches providers.CallObserver.
func (c *Collector) ObserveProviderCall(provider, status string, elapsed time.Duration) {
	c.apiCalls.WithLabelValues(provider, status).Inc()
	if status != "circuit_open" {
		c.apiLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
	}
}

// ObserveWebhook matches alerts.DeliveryObserver.
func (c *Collector) ObserveWebhook(platform, status string, elapsed time.Duration) {
	c.webhookDeliveries.WithLabelValues(platform, status).Inc()
	c.webhookLatency.WithLabelValues(platform).Observe(elapsed.Seconds())
}

// SetCircuitState matches the circuit registry state-change callback.
func (c *Collector) SetCircuitState(provider string, _, to circuit.State) {
	c.circuitState.WithLabelValues(provider).Set(float64(to))
}

// RecordEmailScan records one mailbox scan.
func (c *Collector) RecordEmailScan(mailbox string, scanned, alerts int, elapsed time.Duration) {
	c.emailScanned.WithLabelValues(mailbox).Add(float64(scanned))
	c.emailAlerts.WithLabelValues(mailbox).Add(float64(alerts))
	c.emailScanDuration.WithLabelValues(mailbox).Observe(elapsed.Seconds())
}

// ConfigReloaded counts a successful configuration reload.
func (c *Collector) ConfigReloaded() { c.configReloads.Inc() }
