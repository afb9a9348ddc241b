package monitor_test

import (
	"context"
	"testing"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
	"github.com/ogulcanaydogan/credit-guardian/pkg/monitor"
	"github.com/ogulcanaydogan/credit-guardian/pkg/state"
	"github.com/ogulcanaydogan/credit-guardian/pkg/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, b *fakeBackend, sources monitor.Sources) *monitor.Service {
	t.Helper()
	c := monitor.NewChecker(b.factory(), nil, nil, monitor.Options{Logger: quietLogger()})
	today := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return monitor.NewService(sources, c, subscription.NewChecker(nil, quietLogger()), state.NewStore(quietLogger()), quietLogger(),
		monitor.WithServiceClock(func() time.Time { return today }))
}

func TestTriggerRefresh(t *testing.T) {
	b := newBackend()
	b.set("k1", 50)
	b.set("k2", 5)
	off := false
	disabled := project("paused", "k2", 10)
	disabled.Enabled = &off

	svc := newService(t, b, monitor.Sources{Projects: []model.ProjectConfig{project("main", "k1", 100), disabled}})
	ctx := context.Background()

	all, err := svc.TriggerRefresh(ctx, "", true)
	require.NoError(t, err)
	require.Len(t, all, 1)

	snap := svc.GetLatestBalanceSnapshot()
	assert.Equal(t, 1, snap.Summary.Total)
	assert.Equal(t, 1, snap.Summary.NeedAlarm)
	firstUpdate := snap.LastUpdate

	one, err := svc.TriggerRefresh(ctx, "paused", true)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "paused", one[0].Project)
	assert.True(t, one[0].NeedAlarm)

	snap = svc.GetLatestBalanceSnapshot()
	assert.Equal(t, firstUpdate, snap.LastUpdate, "single-project refresh leaves the snapshot alone")
	require.Len(t, snap.Projects, 1)
	assert.Equal(t, "main", snap.Projects[0].Project)

	_, err = svc.TriggerRefresh(ctx, "missing", true)
	assert.ErrorIs(t, err, monitor.ErrUnknownProject)
}

func TestRefreshSubscriptionsAndReload(t *testing.T) {
	svc := newService(t, newBackend(), monitor.Sources{Subscriptions: []model.SubscriptionConfig{
		{Name: "gpt", CycleType: model.CycleMonthly, RenewalDay: 12, AlertDaysBefore: 3, Amount: 20, Currency: "USD"},
	}})

	results := svc.RefreshSubscriptions(context.Background(), true)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].DaysUntilRenewal)
	assert.True(t, results[0].NeedAlert)

	snap := svc.GetLatestSubscriptionSnapshot()
	assert.Equal(t, 1, snap.Summary.NeedAlert)

	svc.Reload(monitor.Sources{})
	assert.Empty(t, svc.Sources().Subscriptions)
	assert.Empty(t, svc.RefreshSubscriptions(context.Background(), true))
}

func TestScanMailboxesWithoutScanner(t *testing.T) {
	svc := newService(t, newBackend(), monitor.Sources{})
	summary := svc.ScanMailboxes(context.Background(), 1, true)
	assert.Zero(t, summary.Mailboxes)
	assert.Empty(t, svc.Circuits())
}
