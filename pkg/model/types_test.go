package model_test

import (
	"testing"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
	"github.com/stretchr/testify/assert"
)

func TestProjectID_Deterministic(t *testing.T) {
	a := model.ProjectID("openrouter", "main")
	b := model.ProjectID("openrouter", "main")
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, model.ProjectID("volc", "main"))
}

func TestEnabledDefaults(t *testing.T) {
	off := false
	assert.True(t, model.ProjectConfig{}.IsEnabled())
	assert.False(t, model.ProjectConfig{Enabled: &off}.IsEnabled())
	assert.True(t, model.SubscriptionConfig{}.IsEnabled())
	assert.True(t, model.MailboxConfig{}.TLS())
	assert.False(t, model.MailboxConfig{UseTLS: &off}.TLS())
}

func TestMailboxDisplayName(t *testing.T) {
	assert.Equal(t, "ops", model.MailboxConfig{Name: "ops", Username: "a@b.c"}.DisplayName())
	assert.Equal(t, "a@b.c", model.MailboxConfig{Username: "a@b.c"}.DisplayName())
}

func TestCycleType_Valid(t *testing.T) {
	assert.True(t, model.CycleWeekly.Valid())
	assert.True(t, model.CycleYearly.Valid())
	assert.False(t, model.CycleType("daily").Valid())
}

func TestDaysAgo(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC), model.DaysAgo(now, 7))
	assert.True(t, model.DaysAgo(now, 0).IsZero())
}

func TestCycleType_Describe(t *testing.T) {
	assert.Equal(t, "every Monday", model.CycleWeekly.Describe(1))
	assert.Equal(t, "every Sunday", model.CycleWeekly.Describe(7))
	assert.Equal(t, "monthly on day 15", model.CycleMonthly.Describe(15))
	assert.Equal(t, "yearly", model.CycleYearly.Describe(3))
}

func TestCycleType_ValidDay(t *testing.T) {
	assert.True(t, model.CycleWeekly.ValidDay(7))
	assert.False(t, model.CycleWeekly.ValidDay(8))
	assert.True(t, model.CycleMonthly.ValidDay(31))
	assert.False(t, model.CycleMonthly.ValidDay(0))
}
