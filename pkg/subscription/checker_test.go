package subscription_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/ogulcanaydogan/credit-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
	"github.com/ogulcanaydogan/credit-guardian/pkg/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []alerts.Alert
	ok   bool
}

func (s *recordingSender) Send(_ context.Context, a alerts.Alert) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, a)
	return s.ok
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestChecker_Check(t *testing.T) {
	off := false
	subs := []model.SubscriptionConfig{
		{Name: "due-soon", CycleType: model.CycleMonthly, RenewalDay: 12, AlertDaysBefore: 3, Amount: 20, Currency: "USD"},
		{Name: "far", CycleType: model.CycleMonthly, RenewalDay: 28, AlertDaysBefore: 3},
		{Name: "renewed", CycleType: model.CycleMonthly, RenewalDay: 12, AlertDaysBefore: 3, LastRenewedDate: "2025-01-01"},
		{Name: "disabled", CycleType: model.CycleMonthly, RenewalDay: 12, AlertDaysBefore: 3, Enabled: &off},
	}
	sender := &recordingSender{ok: true}
	c := subscription.NewChecker(sender, quietLogger())

	results := c.Check(context.Background(), subs, day("2025-01-10"), false)
	require.Len(t, results, 3)

	assert.True(t, results[0].NeedAlert)
	assert.True(t, results[0].AlertSent)
	assert.Equal(t, 2, results[0].DaysUntilRenewal)
	assert.Equal(t, "2025-01-12", results[0].NextRenewalDate)

	assert.False(t, results[1].NeedAlert)
	assert.False(t, results[1].AlertSent)

	assert.True(t, results[2].AlreadyRenewed)
	assert.False(t, results[2].NeedAlert)

	require.Len(t, sender.sent, 1)
	sa := sender.sent[0].(alerts.SubscriptionAlert)
	assert.Equal(t, "due-soon", sa.Name)
	assert.Equal(t, 2, sa.DaysUntilRenewal)
}

func TestChecker_DryRunSendsNothing(t *testing.T) {
	subs := []model.SubscriptionConfig{
		{Name: "due", CycleType: model.CycleWeekly, RenewalDay: 3, AlertDaysBefore: 1},
	}
	sender := &recordingSender{ok: true}
	c := subscription.NewChecker(sender, quietLogger())

	results := c.Check(context.Background(), subs, day("2025-01-15"), true)
	require.Len(t, results, 1)
	assert.True(t, results[0].NeedAlert)
	assert.False(t, results[0].AlertSent)
	assert.Empty(t, sender.sent)
}

func TestChecker_MalformedDateTreatedAsAbsent(t *testing.T) {
	c := subscription.NewChecker(nil, quietLogger())
	r := c.Evaluate(model.SubscriptionConfig{
		Name: "bad-date", CycleType: model.CycleMonthly, RenewalDay: 12, AlertDaysBefore: 5, LastRenewedDate: "12/01/2025",
	}, day("2025-01-10"))

	assert.False(t, r.AlreadyRenewed)
	assert.True(t, r.NeedAlert)
	assert.Equal(t, "12/01/2025", r.LastRenewedDate)
}

func TestChecker_DefaultsToMonthly(t *testing.T) {
	c := subscription.NewChecker(nil, quietLogger())
	r := c.Evaluate(model.SubscriptionConfig{Name: "x", RenewalDay: 20}, day("2025-01-10"))
	assert.Equal(t, model.CycleMonthly, r.CycleType)
	assert.Equal(t, 10, r.DaysUntilRenewal)
}

func TestMarkAndClearRenewed(t *testing.T) {
	subs := []model.SubscriptionConfig{{Name: "a"}, {Name: "b"}}
	i, err := subscription.Find(subs, "b")
	require.NoError(t, err)

	subscription.MarkRenewed(&subs[i], day("2025-02-03"))
	assert.Equal(t, "2025-02-03", subs[1].LastRenewedDate)

	subscription.ClearRenewed(&subs[i])
	assert.Empty(t, subs[1].LastRenewedDate)

	_, err = subscription.Find(subs, "missing")
	assert.Error(t, err)
}
