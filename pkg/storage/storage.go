package storage

import (
	"context"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
)

// Storage persists check history and mail dedup keys.
type Storage interface {
	// SaveBalance persists one balance observation.
	SaveBalance(ctx context.Context, record *model.BalanceRecord) error

	// SaveAlert persists one alert dispatch outcome.
	SaveAlert(ctx context.Context, record *model.AlertRecord) error

	// SaveSubscription persists one subscription evaluation.
	SaveSubscription(ctx context.Context, record *model.SubscriptionRecord) error

	// BalanceHistory returns balance records matching filter, newest first.
	BalanceHistory(ctx context.Context, filter model.HistoryFilter) ([]model.BalanceRecord, error)

	// AlertHistory returns alert records matching filter, newest first.
	AlertHistory(ctx context.Context, filter model.HistoryFilter) ([]model.AlertRecord, error)

	// BalanceTrend summarises a project's balance over the last days.
	BalanceTrend(ctx context.Context, projectID string, days int) (*model.BalanceTrend, error)

	// IsMessageSeen reports whether a mail dedup key was recorded.
	IsMessageSeen(ctx context.Context, key string) (bool, error)

	// MarkMessageSeen records a mail dedup key. It returns true if the key was new.
	MarkMessageSeen(ctx context.Context, key string) (bool, error)

	// Cleanup deletes history older than cutoff and returns the number of rows removed.
	Cleanup(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases resources.
	Close() error
}

// Noop discards writes and returns empty history.
type Noop struct{}

func (Noop) SaveBalance(context.Context, *model.BalanceRecord) error           { return nil }
func (Noop) SaveAlert(context.Context, *model.AlertRecord) error               { return nil }
func (Noop) SaveSubscription(context.Context, *model.SubscriptionRecord) error { return nil }

func (Noop) BalanceHistory(context.Context, model.HistoryFilter) ([]model.BalanceRecord, error) {
	return nil, nil
}

func (Noop) AlertHistory(context.Context, model.HistoryFilter) ([]model.AlertRecord, error) {
	return nil, nil
}

func (Noop) BalanceTrend(_ context.Context, projectID string, days int) (*model.BalanceTrend, error) {
	return &model.BalanceTrend{ProjectID: projectID, Days: days}, nil
}

// MarkMessageSeen always reports the key as new; Noop keeps no dedup state.
func (Noop) IsMessageSeen(context.Context, string) (bool, error)   { return false, nil }
func (Noop) MarkMessageSeen(context.Context, string) (bool, error) { return true, nil }

func (Noop) Cleanup(context.Context, time.Time) (int64, error) { return 0, nil }

func (Noop) Close() error { return nil }

// Trend folds ascending balance records into a BalanceTrend.
func Trend(projectID string, days int, records []model.BalanceRecord) *model.BalanceTrend {
	t := &model.BalanceTrend{ProjectID: projectID, Days: days, History: []model.TrendPoint{}}
	if len(records) == 0 {
		return t
	}

	first, last := records[0], records[len(records)-1]
	t.ProjectName = last.ProjectName
	t.DataPoints = len(records)
	t.Current = last.Balance
	t.Min, t.Max = first.Balance, first.Balance
	t.First, t.Last = first.Timestamp, last.Timestamp

	var total float64
	for _, r := range records {
		t.Min = min(t.Min, r.Balance)
		t.Max = max(t.Max, r.Balance)
		total += r.Balance
		t.History = append(t.History, model.TrendPoint{Timestamp: r.Timestamp, Balance: r.Balance, NeedAlarm: r.NeedAlarm})
	}
	t.Avg = total / float64(len(records))
	t.Change = last.Balance - first.Balance
	if first.Balance != 0 {
		t.ChangePercent = t.Change / first.Balance * 100
	}
	return t
}
