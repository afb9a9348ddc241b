package config_test

import (
	"os"
	"testing"

	"github.com/ogulcanaydogan/credit-guardian/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const renewalConfig = `# monitored renewals
subscriptions:
  - name: Domain
    cycle_type: yearly
    renewal_day: 15 # day of year
    alert_days_before: 30
  - name: VPS
    cycle_type: monthly
    renewal_day: 3
    last_renewed_date: "2025-01-03"
`

func TestSetLastRenewed_AddsKeyAndKeepsComments(t *testing.T) {
	path := writeConfig(t, renewalConfig)

	require.NoError(t, config.SetLastRenewed(path, "Domain", "2025-03-10"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# monitored renewals")
	assert.Contains(t, string(data), "# day of year")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Subscriptions, 2)
	assert.Equal(t, "2025-03-10", cfg.Subscriptions[0].LastRenewedDate)
	assert.Equal(t, "2025-01-03", cfg.Subscriptions[1].LastRenewedDate)
}

func TestSetLastRenewed_ReplacesAndRemoves(t *testing.T) {
	path := writeConfig(t, renewalConfig)

	require.NoError(t, config.SetLastRenewed(path, "VPS", "2025-02-03"))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "2025-02-03", cfg.Subscriptions[1].LastRenewedDate)

	require.NoError(t, config.SetLastRenewed(path, "VPS", ""))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "last_renewed_date")
}

func TestSetLastRenewed_Errors(t *testing.T) {
	path := writeConfig(t, renewalConfig)
	err := config.SetLastRenewed(path, "Missing", "2025-01-01")
	assert.ErrorContains(t, err, `subscription "Missing" not found`)

	noSubs := writeConfig(t, "projects: []\n")
	assert.Error(t, config.SetLastRenewed(noSubs, "VPS", "2025-01-01"))

	assert.Error(t, config.SetLastRenewed(path+".missing", "VPS", "2025-01-01"))
}
