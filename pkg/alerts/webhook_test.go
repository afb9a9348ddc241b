package alerts_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ogulcanaydogan/credit-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

var (
	lowBalance = alerts.BalanceAlert{
		ProjectName: "prod-llm",
		Provider:    "openrouter",
		Kind:        model.KindBalance,
		Value:       1234.5,
		Threshold:   2000,
		Currency:    "USD",
	}
	renewal = alerts.SubscriptionAlert{
		Name:             "Cursor Pro",
		CycleType:        model.CycleMonthly,
		RenewalDay:       15,
		DaysUntilRenewal: 2,
		Amount:           20,
		Currency:         "USD",
	}
	custom = alerts.CustomAlert{Title: "Mail alert: overdue", Content: "**Service**: aliyun"}
)

// payloadFor sends a through a notifier of the given type and returns the decoded body.
func payloadFor(t *testing.T, platform string, a alerts.Alert) map[string]any {
	t.Helper()
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := alerts.NewWebhookNotifier(alerts.Config{URL: server.URL, Type: platform}, quietLogger())
	require.NoError(t, n.Send(context.Background(), a))
	return received
}

func TestWebhookNotifier_Name(t *testing.T) {
	assert.Equal(t, "feishu", alerts.NewWebhookNotifier(alerts.Config{Type: "Feishu"}, quietLogger()).Name())
	assert.Equal(t, "custom", alerts.NewWebhookNotifier(alerts.Config{}, quietLogger()).Name())
	assert.Equal(t, "custom", alerts.NewWebhookNotifier(alerts.Config{Type: "teams"}, quietLogger()).Name())
}

func TestCustom_BalancePayload(t *testing.T) {
	got := payloadFor(t, "custom", lowBalance)
	assert.Equal(t, "AlarmNotification", got["Type"])
	assert.Equal(t, "critical", got["Level"])

	res := got["Resources"].([]any)[0].(map[string]any)
	assert.Equal(t, "prod-llm", res["ProjectName"])
	assert.Equal(t, "openrouter", res["Provider"])
	assert.Equal(t, 1234.5, res["CurrentValue"])
	assert.Equal(t, 2000.0, res["Threshold"])
	assert.Equal(t, "$", res["Unit"])
	assert.Contains(t, res["Message"], "$1,234.50")
}

func TestCustom_CreditsHaveNoUnit(t *testing.T) {
	a := lowBalance
	a.Kind = model.KindCredits
	got := payloadFor(t, "custom", a)
	res := got["Resources"].([]any)[0].(map[string]any)
	assert.Equal(t, "", res["Unit"])
	assert.Equal(t, "credits", res["BalanceType"])
}

func TestCustom_SubscriptionLevel(t *testing.T) {
	got := payloadFor(t, "custom", renewal)
	assert.Equal(t, "SubscriptionReminder", got["Type"])
	assert.Equal(t, "warning", got["Level"])

	due := renewal
	due.DaysUntilRenewal = 0
	got = payloadFor(t, "custom", due)
	assert.Equal(t, "critical", got["Level"])
	res := got["Resources"].([]any)[0].(map[string]any)
	assert.Contains(t, res["Message"], "today")
}

func TestCustom_CustomAlert(t *testing.T) {
	got := payloadFor(t, "custom", custom)
	assert.Equal(t, "Mail alert: overdue", got["title"])
	assert.Equal(t, "credit-guardian", got["source"])
	assert.NotEmpty(t, got["timestamp"])
}

func TestFeishu_Payloads(t *testing.T) {
	got := payloadFor(t, "feishu", lowBalance)
	assert.Equal(t, "text", got["msg_type"])
	text := got["content"].(map[string]any)["text"].(string)
	assert.Contains(t, text, "prod-llm")
	assert.Contains(t, text, "Source: credit-guardian")

	got = payloadFor(t, "feishu", custom)
	assert.Equal(t, "interactive", got["msg_type"])
	card := got["card"].(map[string]any)
	assert.Equal(t, "orange", card["header"].(map[string]any)["template"])
	el := card["elements"].([]any)[0].(map[string]any)
	assert.Equal(t, "markdown", el["tag"])
	assert.Equal(t, "**Service**: aliyun", el["content"])
}

func TestDingTalk_Payload(t *testing.T) {
	got := payloadFor(t, "dingtalk", renewal)
	assert.Equal(t, "markdown", got["msgtype"])
	md := got["markdown"].(map[string]any)
	assert.Equal(t, "Subscription renewal reminder", md["title"])
	assert.Contains(t, md["text"], "monthly on day 15")
	assert.Contains(t, md["text"], "in 2 days")
}

func TestWeCom_Payloads(t *testing.T) {
	got := payloadFor(t, "wecom", lowBalance)
	assert.Equal(t, "text", got["msgtype"])
	assert.Contains(t, got["text"].(map[string]any)["content"], "prod-llm")

	got = payloadFor(t, "wecom", custom)
	assert.Equal(t, "markdown", got["msgtype"])
	assert.Contains(t, got["markdown"].(map[string]any)["content"], "### Mail alert: overdue")
}

func TestWebhookNotifier_Send_WithHMAC(t *testing.T) {
	var signature string
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get("X-Signature-256")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := alerts.NewWebhookNotifier(alerts.Config{URL: server.URL, Secret: "test-secret"}, quietLogger())
	require.NoError(t, n.Send(context.Background(), lowBalance))

	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write(body)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), signature)
}

func TestWebhookNotifier_Send_NoHMAC(t *testing.T) {
	var hasSignature bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasSignature = r.Header.Get("X-Signature-256") != ""
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := alerts.NewWebhookNotifier(alerts.Config{URL: server.URL}, quietLogger())
	require.NoError(t, n.Send(context.Background(), lowBalance))
	assert.False(t, hasSignature)
}

func TestWebhookNotifier_Send_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	n := alerts.NewWebhookNotifier(alerts.Config{URL: server.URL}, quietLogger())
	err := n.Send(context.Background(), lowBalance)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.True(t, alerts.IsRetryable(err))
}

func TestWebhookNotifier_Send_ClientErrorNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	n := alerts.NewWebhookNotifier(alerts.Config{URL: server.URL}, quietLogger())
	err := n.Send(context.Background(), lowBalance)
	require.Error(t, err)
	assert.False(t, alerts.IsRetryable(err))
}
