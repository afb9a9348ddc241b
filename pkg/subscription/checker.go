package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
)

// Sender delivers a reminder. *alerts.Dispatcher satisfies it.
type Sender interface {
	Send(ctx context.Context, a alerts.Alert) bool
}

// Checker evaluates subscriptions and sends reminders for those due.
type Checker struct {
	sender Sender
	logger *slog.Logger
}

// NewChecker creates a checker. sender may be nil, in which case nothing is sent.
func NewChecker(sender Sender, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{sender: sender, logger: logger.With("component", "subscription")}
}

// Check evaluates every enabled subscription as of today. Reminders are sent
// for results that need one unless dryRun is set.
func (c *Checker) Check(ctx context.Context, subs []model.SubscriptionConfig, today time.Time, dryRun bool) []model.SubscriptionCheckResult {
	results := make([]model.SubscriptionCheckResult, 0, len(subs))
	for _, sub := range subs {
		if !sub.IsEnabled() {
			continue
		}
		r := c.Evaluate(sub, today)
		if r.NeedAlert && !dryRun && c.sender != nil {
			r.AlertSent = c.sender.Send(ctx, alerts.SubscriptionAlert{
				Name:             r.Name,
				CycleType:        r.CycleType,
				RenewalDay:       r.RenewalDay,
				DaysUntilRenewal: r.DaysUntilRenewal,
				Amount:           r.Amount,
				Currency:         r.Currency,
			})
		}
		c.logger.Debug("subscription checked",
			"subscription", r.Name, "days", r.DaysUntilRenewal, "need_alert", r.NeedAlert, "already_renewed", r.AlreadyRenewed)
		results = append(results, r)
	}
	return results
}

// Evaluate computes the renewal state of one subscription without sending anything.
func (c *Checker) Evaluate(sub model.SubscriptionConfig, today time.Time) model.SubscriptionCheckResult {
	cycle := sub.CycleType
	if cycle == "" {
		cycle = model.CycleMonthly
	}

	var last *time.Time
	if sub.LastRenewedDate != "" {
		t, err := ParseDate(sub.LastRenewedDate)
		if err != nil {
			c.logger.Warn("ignoring malformed last_renewed_date",
				"subscription", sub.Name, "value", sub.LastRenewedDate, "error", err)
		} else {
			last = &t
		}
	}

	days, next := NextRenewal(cycle, sub.RenewalDay, today, last)
	renewed := AlreadyRenewed(cycle, sub.RenewalDay, next, last)

	return model.SubscriptionCheckResult{
		Name:             sub.Name,
		CycleType:        cycle,
		RenewalDay:       sub.RenewalDay,
		DaysUntilRenewal: days,
		NextRenewalDate:  next.Format(DateLayout),
		NeedAlert:        NeedAlert(days, sub.AlertDaysBefore, renewed),
		AlreadyRenewed:   renewed,
		Amount:           sub.Amount,
		Currency:         sub.Currency,
		LastRenewedDate:  sub.LastRenewedDate,
	}
}

// MarkRenewed records a renewal on the given date.
func MarkRenewed(sub *model.SubscriptionConfig, on time.Time) {
	sub.LastRenewedDate = Date(on).Format(DateLayout)
}

// ClearRenewed forgets the last renewal.
func ClearRenewed(sub *model.SubscriptionConfig) {
	sub.LastRenewedDate = ""
}

// Find returns the index of the subscription called name.
func Find(subs []model.SubscriptionConfig, name string) (int, error) {
	for i := range subs {
		if subs[i].Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("subscription %q not found", name)
}
