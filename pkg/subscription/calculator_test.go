package subscription_test

import (
	"testing"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
	"github.com/ogulcanaydogan/credit-guardian/pkg/subscription"
	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, err := subscription.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func TestNextRenewal(t *testing.T) {
	tests := []struct {
		name     string
		cycle    model.CycleType
		day      int
		today    string
		last     string
		wantDays int
		wantNext string
	}{
		{"weekly same day is due today", model.CycleWeekly, 3, "2025-01-15", "", 0, "2025-01-15"},
		{"weekly later this week", model.CycleWeekly, 5, "2025-01-15", "", 2, "2025-01-17"},
		{"weekly wraps to next week", model.CycleWeekly, 1, "2025-01-15", "", 5, "2025-01-20"},
		{"weekly sunday", model.CycleWeekly, 7, "2025-01-13", "", 6, "2025-01-19"},
		{"monthly later this month", model.CycleMonthly, 15, "2025-01-10", "", 5, "2025-01-15"},
		{"monthly end of january clamps into february", model.CycleMonthly, 31, "2025-01-31", "", 28, "2025-02-28"},
		{"monthly on renewal day rolls to next month", model.CycleMonthly, 15, "2025-01-15", "", 31, "2025-02-15"},
		{"monthly short month clamps this month", model.CycleMonthly, 30, "2025-02-10", "", 18, "2025-02-28"},
		{"monthly leap february", model.CycleMonthly, 31, "2024-02-10", "", 19, "2024-02-29"},
		{"monthly past day rolls over year", model.CycleMonthly, 5, "2025-12-20", "", 16, "2026-01-05"},
		{"yearly leap day maps to feb 28", model.CycleYearly, 0, "2024-06-01", "2024-02-29", 272, "2025-02-28"},
		{"yearly advances past today", model.CycleYearly, 0, "2025-01-10", "2022-03-01", 50, "2025-03-01"},
		{"yearly anniversary today moves a year", model.CycleYearly, 0, "2025-01-10", "2024-01-10", 365, "2026-01-10"},
		{"yearly without last renewal", model.CycleYearly, 0, "2025-01-10", "", 365, "2026-01-10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var last *time.Time
			if tt.last != "" {
				last = ptr(day(tt.last))
			}
			days, next := subscription.NextRenewal(tt.cycle, tt.day, day(tt.today), last)
			assert.Equal(t, tt.wantDays, days)
			assert.Equal(t, tt.wantNext, next.Format(subscription.DateLayout))
		})
	}
}

func TestNextRenewal_IgnoresTimeOfDay(t *testing.T) {
	today := time.Date(2025, 1, 10, 23, 59, 0, 0, time.UTC)
	days, _ := subscription.NextRenewal(model.CycleMonthly, 15, today, nil)
	assert.Equal(t, 5, days)
}

func TestCycleStart(t *testing.T) {
	assert.Equal(t, day("2025-01-31"), subscription.CycleStart(model.CycleMonthly, 31, day("2025-02-28")))
	assert.Equal(t, day("2024-12-05"), subscription.CycleStart(model.CycleMonthly, 5, day("2025-01-05")))
	assert.Equal(t, day("2025-01-08"), subscription.CycleStart(model.CycleWeekly, 3, day("2025-01-15")))
	assert.Equal(t, day("2024-02-28"), subscription.CycleStart(model.CycleYearly, 0, day("2025-02-28")))
}

func TestAlreadyRenewed(t *testing.T) {
	next := day("2025-03-15")
	assert.True(t, subscription.AlreadyRenewed(model.CycleMonthly, 15, next, ptr(day("2025-02-20"))))
	assert.True(t, subscription.AlreadyRenewed(model.CycleMonthly, 15, next, ptr(day("2025-02-15"))))
	assert.False(t, subscription.AlreadyRenewed(model.CycleMonthly, 15, next, ptr(day("2025-02-10"))))
	assert.False(t, subscription.AlreadyRenewed(model.CycleMonthly, 15, next, nil))
}

func TestNeedAlert(t *testing.T) {
	assert.True(t, subscription.NeedAlert(0, 3, false))
	assert.True(t, subscription.NeedAlert(3, 3, false))
	assert.False(t, subscription.NeedAlert(4, 3, false))
	assert.False(t, subscription.NeedAlert(-1, 3, false))
	assert.False(t, subscription.NeedAlert(1, 3, true))
}
