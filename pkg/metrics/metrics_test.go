package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/pkg/circuit"
	"github.com/ogulcanaydogan/credit-guardian/pkg/metrics"
	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordBalance(t *testing.T) {
	c := metrics.New()

	c.RecordBalance(model.ProjectCheckResult{
		Project: "main", Provider: "openrouter", Kind: model.KindBalance,
		Balance: 50, Threshold: 100, Success: true, NeedAlarm: true,
	})
	c.RecordBalance(model.ProjectCheckResult{
		Project: "side", Provider: "tikhub", Kind: model.KindBalance, Success: false,
	})

	expected := `
# HELP credit_guardian_balance_status 1 ok, 0 below threshold, -1 check failed.
# TYPE credit_guardian_balance_status gauge
credit_guardian_balance_status{project="main",provider="openrouter",type="balance"} 0
credit_guardian_balance_status{project="side",provider="tikhub",type="balance"} -1
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "credit_guardian_balance_status"))

	expectedRatio := `
# HELP credit_guardian_balance_ratio Balance divided by threshold.
# TYPE credit_guardian_balance_ratio gauge
credit_guardian_balance_ratio{project="main",provider="openrouter",type="balance"} 0.5
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expectedRatio), "credit_guardian_balance_ratio"))

	n, err := testutil.GatherAndCount(c.Registry(), "credit_guardian_failed_checks_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecordSubscription(t *testing.T) {
	c := metrics.New()
	c.RecordSubscription(model.SubscriptionCheckResult{Name: "a", CycleType: model.CycleMonthly, DaysUntilRenewal: 10})
	c.RecordSubscription(model.SubscriptionCheckResult{Name: "b", CycleType: model.CycleWeekly, DaysUntilRenewal: 1, NeedAlert: true})
	c.RecordSubscription(model.SubscriptionCheckResult{Name: "c", CycleType: model.CycleYearly, DaysUntilRenewal: 2, AlreadyRenewed: true})

	expected := `
# HELP credit_guardian_subscription_status 1 normal, 0 needs renewal, -1 already renewed.
# TYPE credit_guardian_subscription_status gauge
credit_guardian_subscription_status{cycle_type="monthly",subscription="a"} 1
credit_guardian_subscription_status{cycle_type="weekly",subscription="b"} 0
credit_guardian_subscription_status{cycle_type="yearly",subscription="c"} -1
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "credit_guardian_subscription_status"))
}

func TestObservers(t *testing.T) {
	c := metrics.New()

	c.ObserveProviderCall("volc", "success", 20*time.Millisecond)
	c.ObserveProviderCall("volc", "success", 30*time.Millisecond)
	c.ObserveProviderCall("volc", "circuit_open", 0)
	c.ObserveWebhook("slack", "success", time.Second)
	c.SetCircuitState("volc", circuit.StateClosed, circuit.StateOpen)
	c.CacheHit("response")
	c.CacheMiss("response")
	c.CacheMiss("response")
	c.ConfigReloaded()

	expected := `
# HELP credit_guardian_provider_api_calls_total Provider API calls by outcome.
# TYPE credit_guardian_provider_api_calls_total counter
credit_guardian_provider_api_calls_total{provider="volc",status="circuit_open"} 1
credit_guardian_provider_api_calls_total{provider="volc",status="success"} 2
# HELP credit_guardian_circuit_breaker_state 0 closed, 1 open, 2 half-open.
# TYPE credit_guardian_circuit_breaker_state gauge
credit_guardian_circuit_breaker_state{provider="volc"} 1
# HELP credit_guardian_cache_misses_total Cache misses by cache type.
# TYPE credit_guardian_cache_misses_total counter
credit_guardian_cache_misses_total{cache_type="response"} 2
# HELP credit_guardian_config_reloads_total Successful configuration reloads.
# TYPE credit_guardian_config_reloads_total counter
credit_guardian_config_reloads_total 1
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected),
		"credit_guardian_provider_api_calls_total",
		"credit_guardian_circuit_breaker_state",
		"credit_guardian_cache_misses_total",
		"credit_guardian_config_reloads_total",
	))

	// circuit_open calls carry no latency sample
	n, err := testutil.GatherAndCount(c.Registry(), "credit_guardian_provider_api_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecordEmailScanAndRun(t *testing.T) {
	c := metrics.New()
	c.RecordEmailScan("ops", 12, 2, 3*time.Second)
	c.RecordEmailScan("ops", 3, 0, time.Second)
	c.RecordRun("balance", 2*time.Second)

	expected := `
# HELP credit_guardian_email_scanned_total Messages examined by the mailbox scanner.
# TYPE credit_guardian_email_scanned_total counter
credit_guardian_email_scanned_total{mailbox="ops"} 15
# HELP credit_guardian_email_alerts_total Messages that matched alert keywords.
# TYPE credit_guardian_email_alerts_total counter
credit_guardian_email_alerts_total{mailbox="ops"} 2
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected),
		"credit_guardian_email_scanned_total", "credit_guardian_email_alerts_total"))

	n, err := testutil.GatherAndCount(c.Registry(), "credit_guardian_last_check_timestamp_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHandler(t *testing.T) {
	c := metrics.New()
	c.ConfigReloaded()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "credit_guardian_config_reloads_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
