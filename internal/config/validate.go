package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ogulcanaydogan/credit-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
)

// ErrUnknownProvider marks a project whose provider has no adapter.
var ErrUnknownProvider = errors.New("unknown provider")

// Validate normalises entries in place. A project naming an unknown provider
// fails the load; any other malformed entry is dropped with a warning.
func (c *Config) Validate(knownProvider func(string) bool) error {
	var unknown []string

	projects := c.Projects[:0:0]
	seen := make(map[string]bool)
	for i, p := range c.Projects {
		p.Name = strings.TrimSpace(p.Name)
		p.Provider = strings.ToLower(strings.TrimSpace(p.Provider))
		label := entryLabel("project", i, p.Name)

		if p.Provider == "" || (knownProvider != nil && !knownProvider(p.Provider)) {
			unknown = append(unknown, fmt.Sprintf("%s: %q", label, p.Provider))
			continue
		}
		if p.Kind == "" {
			p.Kind = model.KindBalance
		}
		switch {
		case p.Name == "":
			c.warnf("%s: name is required", label)
		case seen[p.Name]:
			c.warnf("%s: duplicate name", label)
		case p.Credential == "":
			c.warnf("%s: api_key is required (or set %s)", label, EnvKey("API_KEY", p.Name))
		case p.Threshold < 0:
			c.warnf("%s: threshold must not be negative", label)
		case p.Kind != model.KindBalance && p.Kind != model.KindCredits:
			c.warnf("%s: type must be %q or %q", label, model.KindBalance, model.KindCredits)
		default:
			seen[p.Name] = true
			projects = append(projects, p)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, strings.Join(unknown, "; "))
	}
	c.Projects = projects

	subs := c.Subscriptions[:0:0]
	for i, s := range c.Subscriptions {
		s.Name = strings.TrimSpace(s.Name)
		label := entryLabel("subscription", i, s.Name)
		if s.CycleType == "" {
			s.CycleType = model.CycleMonthly
		}
		switch {
		case s.Name == "":
			c.warnf("%s: name is required", label)
		case !s.CycleType.Valid():
			c.warnf("%s: cycle_type must be weekly, monthly or yearly", label)
		case !s.CycleType.ValidDay(s.RenewalDay):
			c.warnf("%s: renewal_day %d is out of range for %s", label, s.RenewalDay, s.CycleType)
		case s.AlertDaysBefore < 0:
			c.warnf("%s: alert_days_before must not be negative", label)
		case s.Amount < 0:
			c.warnf("%s: amount must not be negative", label)
		default:
			if s.CycleType == model.CycleMonthly && s.AlertDaysBefore == 0 {
				c.warnf("%s: alert_days_before 0 never fires for a monthly cycle; the next renewal is a month out on renewal day", label)
			}
			subs = append(subs, s)
		}
	}
	c.Subscriptions = subs

	mailboxes := c.Email[:0:0]
	for i, m := range c.Email {
		label := entryLabel("email", i, m.DisplayName())
		switch {
		case m.Host == "":
			c.warnf("%s: host is required", label)
		case m.Username == "":
			c.warnf("%s: username is required", label)
		case m.Password == "":
			c.warnf("%s: password is required (or set %s)", label, EnvKey("EMAIL_PASSWORD", m.DisplayName()))
		case m.Port < 0 || m.Port > 65535:
			c.warnf("%s: port %d is invalid", label, m.Port)
		default:
			mailboxes = append(mailboxes, m)
		}
	}
	c.Email = mailboxes

	switch c.Webhook.Type {
	case "", alerts.PlatformFeishu, alerts.PlatformDingTalk, alerts.PlatformWeCom, alerts.PlatformSlack, alerts.PlatformCustom:
	default:
		c.warnf("webhook: unknown type %q, using custom", c.Webhook.Type)
		c.Webhook.Type = alerts.PlatformCustom
	}

	s := &c.Settings
	if s.MinRefreshIntervalSeconds <= 0 {
		s.MinRefreshIntervalSeconds = 60
	}
	if s.RefreshIntervalSeconds < s.MinRefreshIntervalSeconds {
		c.warnf("settings: balance_refresh_interval_seconds %d raised to minimum %d",
			s.RefreshIntervalSeconds, s.MinRefreshIntervalSeconds)
		s.RefreshIntervalSeconds = s.MinRefreshIntervalSeconds
	}
	if s.MaxConcurrentChecks < 1 || s.MaxConcurrentChecks > 50 {
		c.warnf("settings: max_concurrent_checks %d clamped to 1..50", s.MaxConcurrentChecks)
		s.MaxConcurrentChecks = min(max(s.MaxConcurrentChecks, 1), 50)
	}
	if s.ResponseCacheTTLSeconds < 0 {
		s.ResponseCacheTTLSeconds = 0
	}
	return nil
}

func (c *Config) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func entryLabel(kind string, index int, name string) string {
	if name == "" {
		return fmt.Sprintf("%s[%d]", kind, index)
	}
	return fmt.Sprintf("%s[%d] %q", kind, index, name)
}
