package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
	"github.com/ogulcanaydogan/credit-guardian/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *storage.SQLite {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLite_SaveBalance(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	record := &model.BalanceRecord{
		ProjectID:   model.ProjectID("openrouter", "main"),
		ProjectName: "main",
		Provider:    "openrouter",
		Balance:     42.5,
		Threshold:   50,
		Currency:    "USD",
		Kind:        model.KindBalance,
		NeedAlarm:   true,
	}
	require.NoError(t, db.SaveBalance(ctx, record))
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.Timestamp.IsZero())

	got, err := db.BalanceHistory(ctx, model.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "main", got[0].ProjectName)
	assert.Equal(t, 42.5, got[0].Balance)
	assert.True(t, got[0].NeedAlarm)
	assert.Equal(t, model.KindBalance, got[0].Kind)
}

func TestSQLite_BalanceHistoryFilters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	records := []*model.BalanceRecord{
		{ProjectID: "p1", ProjectName: "a", Provider: "volc", Balance: 10, Timestamp: now.Add(-10 * 24 * time.Hour)},
		{ProjectID: "p1", ProjectName: "a", Provider: "volc", Balance: 20, Timestamp: now.Add(-2 * time.Hour)},
		{ProjectID: "p1", ProjectName: "a", Provider: "volc", Balance: 30, Timestamp: now.Add(-time.Hour)},
		{ProjectID: "p2", ProjectName: "b", Provider: "aliyun", Balance: 99, Timestamp: now},
	}
	for _, r := range records {
		require.NoError(t, db.SaveBalance(ctx, r))
	}

	all, err := db.BalanceHistory(ctx, model.HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, 99.0, all[0].Balance, "newest first")

	byProject, err := db.BalanceHistory(ctx, model.HistoryFilter{ProjectID: "p1"})
	require.NoError(t, err)
	assert.Len(t, byProject, 3)

	byProvider, err := db.BalanceHistory(ctx, model.HistoryFilter{Provider: "aliyun"})
	require.NoError(t, err)
	assert.Len(t, byProvider, 1)

	recent, err := db.BalanceHistory(ctx, model.HistoryFilter{ProjectID: "p1", Since: now.Add(-7 * 24 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	limited, err := db.BalanceHistory(ctx, model.HistoryFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLite_BalanceTrend(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, v := range []float64{100, 80, 60} {
		require.NoError(t, db.SaveBalance(ctx, &model.BalanceRecord{
			ProjectID: "p1", ProjectName: "main", Provider: "volc", Balance: v,
			Timestamp: now.Add(time.Duration(i-3) * time.Hour),
		}))
	}

	trend, err := db.BalanceTrend(ctx, "p1", 30)
	require.NoError(t, err)
	assert.Equal(t, 3, trend.DataPoints)
	assert.Equal(t, 60.0, trend.Current)
	assert.Equal(t, 60.0, trend.Min)
	assert.Equal(t, 100.0, trend.Max)
	assert.InDelta(t, 80.0, trend.Avg, 1e-9)
	assert.Equal(t, -40.0, trend.Change)
	assert.InDelta(t, -40.0, trend.ChangePercent, 1e-9)
	assert.Len(t, trend.History, 3)
	assert.Equal(t, 100.0, trend.History[0].Balance)

	empty, err := db.BalanceTrend(ctx, "unknown", 30)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.DataPoints)
}

func TestSQLite_AlertHistory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveAlert(ctx, &model.AlertRecord{
		ProjectID: "p1", ProjectName: "main", AlertType: "balance", Status: model.AlertSent, BalanceValue: 5, ThresholdValue: 10,
	}))
	require.NoError(t, db.SaveAlert(ctx, &model.AlertRecord{
		ProjectID: "s1", ProjectName: "cursor", AlertType: "subscription", Status: model.AlertFailed,
	}))

	all, err := db.AlertHistory(ctx, model.HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	balanceOnly, err := db.AlertHistory(ctx, model.HistoryFilter{AlertType: "balance"})
	require.NoError(t, err)
	require.Len(t, balanceOnly, 1)
	assert.Equal(t, model.AlertSent, balanceOnly[0].Status)
}

func TestSQLite_SaveSubscription(t *testing.T) {
	db := newTestDB(t)
	r := &model.SubscriptionRecord{SubscriptionID: "s1", Name: "cursor", CycleType: model.CycleMonthly, DaysUntilRenewal: 2, NeedRenewal: true}
	require.NoError(t, db.SaveSubscription(context.Background(), r))
	assert.NotEmpty(t, r.ID)
}

func TestSQLite_MarkMessageSeen(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seen, err := db.IsMessageSeen(ctx, "<abc@mail>")
	require.NoError(t, err)
	assert.False(t, seen)

	first, err := db.MarkMessageSeen(ctx, "<abc@mail>")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := db.MarkMessageSeen(ctx, "<abc@mail>")
	require.NoError(t, err)
	assert.False(t, second)

	seen, err = db.IsMessageSeen(ctx, "<abc@mail>")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestSQLite_Cleanup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, db.SaveBalance(ctx, &model.BalanceRecord{ProjectID: "p", ProjectName: "p", Provider: "x", Timestamp: now.Add(-100 * 24 * time.Hour)}))
	require.NoError(t, db.SaveBalance(ctx, &model.BalanceRecord{ProjectID: "p", ProjectName: "p", Provider: "x", Timestamp: now}))

	removed, err := db.Cleanup(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	left, err := db.BalanceHistory(ctx, model.HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	db, err := storage.NewSQLite(path)
	require.NoError(t, err)
	_, err = db.MarkMessageSeen(context.Background(), "k")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = storage.NewSQLite(path)
	require.NoError(t, err)
	defer db.Close()
	fresh, err := db.MarkMessageSeen(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestNoop(t *testing.T) {
	var s storage.Storage = storage.Noop{}
	ctx := context.Background()
	require.NoError(t, s.SaveBalance(ctx, &model.BalanceRecord{}))
	fresh, err := s.MarkMessageSeen(ctx, "k")
	require.NoError(t, err)
	assert.True(t, fresh)
	seen, err := s.IsMessageSeen(ctx, "k")
	require.NoError(t, err)
	assert.False(t, seen)
	trend, err := s.BalanceTrend(ctx, "p", 7)
	require.NoError(t, err)
	assert.Equal(t, "p", trend.ProjectID)
}
