package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// BalanceKind tells whether a monitored value is spendable money or an abstract allowance.
type BalanceKind string

const (
	KindBalance BalanceKind = "balance"
	KindCredits BalanceKind = "credits"
)

// CycleType is the recurrence period of a subscription renewal.
type CycleType string

const (
	CycleWeekly  CycleType = "weekly"
	CycleMonthly CycleType = "monthly"
	CycleYearly  CycleType = "yearly"
)

// Valid reports whether c is one of the known cycle types.
func (c CycleType) Valid() bool {
	switch c {
	case CycleWeekly, CycleMonthly, CycleYearly:
		return true
	}
	return false
}

// ValidDay reports whether day is a legal renewal day for the cycle:
// 1..7 (Monday first) for weekly, 1..31 otherwise.
func (c CycleType) ValidDay(day int) bool {
	if c == CycleWeekly {
		return day >= 1 && day <= 7
	}
	return day >= 1 && day <= 31
}

// Describe renders the cycle for humans, e.g. "every Monday" or "monthly on day 15".
func (c CycleType) Describe(day int) string {
	switch c {
	case CycleWeekly:
		if day < 1 || day > 7 {
			return "weekly"
		}
		return "every " + time.Weekday(day%7).String()
	case CycleMonthly:
		return fmt.Sprintf("monthly on day %d", day)
	case CycleYearly:
		return "yearly"
	}
	return string(c)
}

// ProjectConfig describes one monitored billing account.
type ProjectConfig struct {
	Name       string      `json:"name" yaml:"name" mapstructure:"name"`
	Provider   string      `json:"provider" yaml:"provider" mapstructure:"provider"`
	Credential string      `json:"-" yaml:"-" mapstructure:"api_key"`
	Threshold  float64     `json:"threshold" yaml:"threshold" mapstructure:"threshold"`
	Kind       BalanceKind `json:"type" yaml:"type" mapstructure:"type"`
	Enabled    *bool       `json:"enabled,omitempty" yaml:"enabled,omitempty" mapstructure:"enabled"`
}

// IsEnabled defaults to true when the flag is absent.
func (p ProjectConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// SubscriptionConfig describes a recurring payment to be reminded about.
type SubscriptionConfig struct {
	Name            string    `json:"name" yaml:"name" mapstructure:"name"`
	CycleType       CycleType `json:"cycle_type" yaml:"cycle_type" mapstructure:"cycle_type"`
	RenewalDay      int       `json:"renewal_day" yaml:"renewal_day" mapstructure:"renewal_day"`
	AlertDaysBefore int       `json:"alert_days_before" yaml:"alert_days_before" mapstructure:"alert_days_before"`
	Amount          float64   `json:"amount" yaml:"amount" mapstructure:"amount"`
	Currency        string    `json:"currency" yaml:"currency" mapstructure:"currency"`
	Enabled         *bool     `json:"enabled,omitempty" yaml:"enabled,omitempty" mapstructure:"enabled"`
	LastRenewedDate string    `json:"last_renewed_date,omitempty" yaml:"last_renewed_date,omitempty" mapstructure:"last_renewed_date"`
}

// IsEnabled defaults to true when the flag is absent.
func (s SubscriptionConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// MailboxConfig describes an IMAP account to scan.
type MailboxConfig struct {
	Name     string `json:"name" yaml:"name" mapstructure:"name"`
	Host     string `json:"host" yaml:"host" mapstructure:"host"`
	Port     int    `json:"port" yaml:"port" mapstructure:"port"`
	Username string `json:"username" yaml:"username" mapstructure:"username"`
	Password string `json:"-" yaml:"-" mapstructure:"password"`
	UseTLS   *bool  `json:"use_tls,omitempty" yaml:"use_tls,omitempty" mapstructure:"use_tls"`
	Enabled  *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty" mapstructure:"enabled"`
}

// IsEnabled defaults to true when the flag is absent.
func (m MailboxConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// TLS defaults to true when the flag is absent.
func (m MailboxConfig) TLS() bool {
	return m.UseTLS == nil || *m.UseTLS
}

// DisplayName falls back to the username.
func (m MailboxConfig) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.Username
}

// ProjectCheckResult is one evaluation of one monitored project.
type ProjectCheckResult struct {
	Project   string      `json:"project" yaml:"project"`
	Provider  string      `json:"provider" yaml:"provider"`
	Kind      BalanceKind `json:"type" yaml:"type"`
	Balance   float64     `json:"credits" yaml:"credits"`
	Currency  string      `json:"currency,omitempty" yaml:"currency,omitempty"`
	Threshold float64     `json:"threshold" yaml:"threshold"`
	Success   bool        `json:"success" yaml:"success"`
	Error     string      `json:"error,omitempty" yaml:"error,omitempty"`
	NeedAlarm bool        `json:"need_alarm" yaml:"need_alarm"`
	AlarmSent bool        `json:"alarm_sent" yaml:"alarm_sent"`
	Cached    bool        `json:"cached,omitempty" yaml:"cached,omitempty"`
	CheckedAt time.Time   `json:"checked_at" yaml:"checked_at"`
}

// SubscriptionCheckResult is one evaluation of a recurring-payment reminder.
type SubscriptionCheckResult struct {
	Name             string    `json:"name" yaml:"name"`
	CycleType        CycleType `json:"cycle_type" yaml:"cycle_type"`
	RenewalDay       int       `json:"renewal_day" yaml:"renewal_day"`
	DaysUntilRenewal int       `json:"days_until_renewal" yaml:"days_until_renewal"`
	NextRenewalDate  string    `json:"next_renewal_date" yaml:"next_renewal_date"`
	NeedAlert        bool      `json:"need_alert" yaml:"need_alert"`
	AlertSent        bool      `json:"alert_sent" yaml:"alert_sent"`
	AlreadyRenewed   bool      `json:"already_renewed" yaml:"already_renewed"`
	Amount           float64   `json:"amount" yaml:"amount"`
	Currency         string    `json:"currency" yaml:"currency"`
	LastRenewedDate  string    `json:"last_renewed_date,omitempty" yaml:"last_renewed_date,omitempty"`
}

// ProjectID derives the stable identifier used for history records.
func ProjectID(provider, name string) string {
	sum := sha256.Sum256([]byte(provider + ":" + name))
	return hex.EncodeToString(sum[:])[:16]
}

// AlertStatus records the outcome of an alert dispatch.
type AlertStatus string

const (
	AlertSent    AlertStatus = "sent"
	AlertFailed  AlertStatus = "failed"
	AlertSkipped AlertStatus = "skipped"
)

// BalanceRecord is one persisted balance observation.
type BalanceRecord struct {
	ID          string      `json:"id" db:"id"`
	ProjectID   string      `json:"project_id" db:"project_id"`
	ProjectName string      `json:"project_name" db:"project_name"`
	Provider    string      `json:"provider" db:"provider"`
	Balance     float64     `json:"balance" db:"balance"`
	Threshold   float64     `json:"threshold" db:"threshold"`
	Currency    string      `json:"currency" db:"currency"`
	Kind        BalanceKind `json:"balance_type" db:"balance_type"`
	NeedAlarm   bool        `json:"need_alarm" db:"need_alarm"`
	Timestamp   time.Time   `json:"timestamp" db:"timestamp"`
}

// AlertRecord is one persisted alert dispatch.
type AlertRecord struct {
	ID             string      `json:"id" db:"id"`
	ProjectID      string      `json:"project_id" db:"project_id"`
	ProjectName    string      `json:"project_name" db:"project_name"`
	AlertType      string      `json:"alert_type" db:"alert_type"`
	Status         AlertStatus `json:"status" db:"status"`
	Message        string      `json:"message" db:"message"`
	BalanceValue   float64     `json:"balance_value" db:"balance_value"`
	ThresholdValue float64     `json:"threshold_value" db:"threshold_value"`
	Timestamp      time.Time   `json:"timestamp" db:"timestamp"`
}

// SubscriptionRecord is one persisted subscription evaluation.
type SubscriptionRecord struct {
	ID               string    `json:"id" db:"id"`
	SubscriptionID   string    `json:"subscription_id" db:"subscription_id"`
	Name             string    `json:"subscription_name" db:"subscription_name"`
	CycleType        CycleType `json:"cycle_type" db:"cycle_type"`
	DaysUntilRenewal int       `json:"days_until_renewal" db:"days_until_renewal"`
	Amount           float64   `json:"amount" db:"amount"`
	Currency         string    `json:"currency" db:"currency"`
	NeedRenewal      bool      `json:"need_renewal" db:"need_renewal"`
	Timestamp        time.Time `json:"timestamp" db:"timestamp"`
}

// HistoryFilter controls which history records are returned.
type HistoryFilter struct {
	ProjectID string    `json:"project_id,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	AlertType string    `json:"alert_type,omitempty"`
	Since     time.Time `json:"since,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

// TrendPoint is one sample in a balance trend.
type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Balance   float64   `json:"balance"`
	NeedAlarm bool      `json:"need_alarm"`
}

// BalanceTrend summarises balance history for one project.
type BalanceTrend struct {
	ProjectID     string       `json:"project_id"`
	ProjectName   string       `json:"project_name"`
	Days          int          `json:"days"`
	DataPoints    int          `json:"data_points"`
	Current       float64      `json:"current_balance"`
	Min           float64      `json:"min_balance"`
	Max           float64      `json:"max_balance"`
	Avg           float64      `json:"avg_balance"`
	Change        float64      `json:"change"`
	ChangePercent float64      `json:"change_percent"`
	First         time.Time    `json:"first_timestamp"`
	Last          time.Time    `json:"last_timestamp"`
	History       []TrendPoint `json:"history"`
}

// DaysAgo returns the UTC instant the given number of days before now.
func DaysAgo(now time.Time, days int) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	return now.UTC().AddDate(0, 0, -days)
}
