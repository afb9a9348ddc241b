package alerts

import (
	"context"

	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
)

// Level indicates the severity of an alert.
type Level string

const (
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Alert is one of BalanceAlert, SubscriptionAlert or CustomAlert.
type Alert interface {
	// Subject is a one-line summary used for logs and card titles.
	Subject() string
	alert()
}

// BalanceAlert reports a balance or credit count below its threshold.
type BalanceAlert struct {
	ProjectName string
	Provider    string
	Kind        model.BalanceKind
	Value       float64
	Threshold   float64
	Currency    string
}

func (a BalanceAlert) Subject() string { return "Low " + a.KindLabel() + ": " + a.ProjectName }

func (BalanceAlert) alert() {}

// KindLabel returns "balance" or "credits".
func (a BalanceAlert) KindLabel() string {
	if a.Kind == model.KindCredits {
		return "credits"
	}
	return "balance"
}

// Unit is the currency symbol prefixed to amounts. Credits have none.
func (a BalanceAlert) Unit() string {
	if a.Kind == model.KindCredits {
		return ""
	}
	switch a.Currency {
	case "CNY":
		return "¥"
	case "USD", "":
		return "$"
	default:
		return a.Currency + " "
	}
}

// SubscriptionAlert reminds of an upcoming renewal.
type SubscriptionAlert struct {
	Name             string
	CycleType        model.CycleType
	RenewalDay       int
	DaysUntilRenewal int
	Amount           float64
	Currency         string
}

func (a SubscriptionAlert) Subject() string { return "Renewal reminder: " + a.Name }

func (SubscriptionAlert) alert() {}

// Level is critical on the renewal day, warning before it.
func (a SubscriptionAlert) Level() Level {
	if a.DaysUntilRenewal > 0 {
		return LevelWarning
	}
	return LevelCritical
}

// CustomAlert carries free-form title and markdown content.
type CustomAlert struct {
	Title   string
	Content string
}

func (a CustomAlert) Subject() string { return a.Title }

func (CustomAlert) alert() {}

// Notifier delivers alerts to one external system.
type Notifier interface {
	// Name returns the notifier identifier.
	Name() string

	// Send delivers an alert once. Implementations must be safe for concurrent use.
	Send(ctx context.Context, alert Alert) error
}
