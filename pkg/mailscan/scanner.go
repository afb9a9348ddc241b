// Package mailscan scans IMAP mailboxes for billing and renewal warnings.
package mailscan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
	"golang.org/x/sync/errgroup"
)

// Scanner defaults.
const (
	DefaultConcurrency = 5
	DefaultMaxMessages = 1000
)

// Sender delivers an alert and reports success.
type Sender interface {
	Send(ctx context.Context, a alerts.Alert) bool
}

// ScanObserver receives per-mailbox scan statistics.
type ScanObserver func(mailbox string, scanned, alerts int, elapsed time.Duration)

// Options tunes a Scanner.
type Options struct {
	Concurrency     int
	MaxMessages     int
	Keywords        []string
	ReplaceDefaults bool
	Observer        ScanObserver
	Now             func() time.Time
}

// Alert is one message that matched the keyword set.
type Alert struct {
	Mailbox   string   `json:"mailbox" yaml:"mailbox"`
	Subject   string   `json:"subject" yaml:"subject"`
	From      string   `json:"sender" yaml:"sender"`
	Date      string   `json:"date" yaml:"date"`
	Keywords  []string `json:"keywords" yaml:"keywords"`
	Service   string   `json:"service_name" yaml:"service_name"`
	Amount    *float64 `json:"amount,omitempty" yaml:"amount,omitempty"`
	AlertSent bool     `json:"alert_sent" yaml:"alert_sent"`
}

// Summary aggregates one scan across mailboxes.
type Summary struct {
	Mailboxes    int               `json:"mailboxes" yaml:"mailboxes"`
	TotalScanned int               `json:"total_scanned" yaml:"total_scanned"`
	TotalAlerts  int               `json:"total_alerts" yaml:"total_alerts"`
	AlertsSent   int               `json:"alerts_sent" yaml:"alerts_sent"`
	Alerts       []Alert           `json:"alerts" yaml:"alerts"`
	Errors       map[string]string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Scanner checks mailboxes concurrently. A failure in one mailbox is
// recorded in the summary and does not affect the others.
type Scanner struct {
	dial    Dialer
	sender  Sender
	seen    SeenStore
	matcher *Matcher
	opts    Options
	logger  *slog.Logger
}

// NewScanner creates a scanner. seen may be nil, in which case dedup is in-memory.
func NewScanner(dial Dialer, sender Sender, seen SeenStore, logger *slog.Logger, opts Options) *Scanner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = DefaultMaxMessages
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if seen == nil {
		seen = NewMemorySeen()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		dial:    dial,
		sender:  sender,
		seen:    seen,
		matcher: NewMatcher(opts.Keywords, opts.ReplaceDefaults),
		opts:    opts,
		logger:  logger.With("component", "mailscan"),
	}
}

// Matcher exposes the effective keyword matcher.
func (s *Scanner) Matcher() *Matcher { return s.matcher }

type mailboxResult struct {
	name    string
	scanned int
	alerts  []Alert
	err     error
}

// Scan checks every enabled mailbox for messages from the last sinceDays days.
// In dry-run mode nothing is sent and the dedup store is left untouched.
func (s *Scanner) Scan(ctx context.Context, mailboxes []model.MailboxConfig, sinceDays int, dryRun bool) Summary {
	if sinceDays <= 0 {
		sinceDays = 1
	}
	var enabled []model.MailboxConfig
	for _, mb := range mailboxes {
		if mb.IsEnabled() {
			enabled = append(enabled, mb)
		}
	}

	summary := Summary{Mailboxes: len(enabled), Alerts: []Alert{}}
	if len(enabled) == 0 {
		return summary
	}

	since := s.opts.Now().AddDate(0, 0, -sinceDays)
	results := make([]mailboxResult, len(enabled))

	var g errgroup.Group
	g.SetLimit(min(s.opts.Concurrency, len(enabled)))
	for i, mb := range enabled {
		g.Go(func() error {
			results[i] = s.scanOne(ctx, mb, since, dryRun)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		summary.TotalScanned += r.scanned
		summary.TotalAlerts += len(r.alerts)
		for _, a := range r.alerts {
			if a.AlertSent {
				summary.AlertsSent++
			}
		}
		summary.Alerts = append(summary.Alerts, r.alerts...)
		if r.err != nil {
			if summary.Errors == nil {
				summary.Errors = make(map[string]string)
			}
			summary.Errors[r.name] = r.err.Error()
		}
	}

	s.logger.Info("mail scan complete",
		"mailboxes", summary.Mailboxes,
		"scanned", summary.TotalScanned,
		"alerts", summary.TotalAlerts,
		"sent", summary.AlertsSent,
		"failed", len(summary.Errors))
	return summary
}

func (s *Scanner) scanOne(ctx context.Context, mb model.MailboxConfig, since time.Time, dryRun bool) (res mailboxResult) {
	res.name = mb.DisplayName()
	start := time.Now()
	logger := s.logger.With("mailbox", res.name)

	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("panic: %v", r)
			logger.Error("mailbox scan panicked", "panic", r)
		}
		if s.opts.Observer != nil {
			s.opts.Observer(res.name, res.scanned, len(res.alerts), time.Since(start))
		}
	}()

	client, err := s.dial(ctx, mb)
	if err != nil {
		logger.Error("mailbox connection failed", "error", err)
		res.err = err
		return res
	}
	defer func() {
		if err := client.Logout(); err != nil {
			logger.Debug("logout failed", "error", err)
		}
	}()

	ids, err := client.Search(ctx, since)
	if err != nil {
		logger.Error("mailbox search failed", "error", err)
		res.err = err
		return res
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > s.opts.MaxMessages {
		logger.Warn("too many messages, keeping the most recent",
			"found", len(ids), "limit", s.opts.MaxMessages)
		ids = ids[len(ids)-s.opts.MaxMessages:]
	}
	logger.Debug("messages found", "count", len(ids))

	var (
		mu      sync.Mutex
		matched []match
	)
	err = client.Fetch(ctx, ids, func(seq uint32, body io.Reader) error {
		msg, perr := ParseMessage(body)
		if perr != nil {
			logger.Warn("skipping unparseable message", "seq", seq, "error", perr)
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		res.scanned++
		if m, ok := s.match(res.name, msg); ok {
			matched = append(matched, m)
		}
		return ctx.Err()
	})
	if err != nil {
		logger.Error("mailbox fetch failed", "error", err)
		res.err = err
	}

	// Delivery waits until the FETCH stream is drained so slow webhooks
	// cannot stall the IMAP connection.
	res.alerts = s.deliver(ctx, matched, dryRun, logger)
	return res
}

// match is a keyword hit waiting for dedup and delivery.
type match struct {
	alert Alert
	key   string
}

// match reports whether msg hits the keyword set and builds its alert.
func (s *Scanner) match(mailbox string, msg Message) (match, bool) {
	keywords := s.matcher.Match(msg.Subject, msg.Body)
	if len(keywords) == 0 {
		return match{}, false
	}
	a := Alert{
		Mailbox:  mailbox,
		Subject:  msg.Subject,
		From:     msg.From,
		Date:     msg.DateHeader,
		Keywords: keywords,
		Service:  ServiceName(msg.Subject),
	}
	if amount, ok := Amount(msg.Subject + "\n" + msg.Body); ok {
		a.Amount = &amount
	}
	return match{alert: a, key: msg.DedupKey()}, true
}

// deliver drops matches already delivered in an earlier scan and sends the
// rest. A message is recorded as seen only once its alert went out, so a
// failed delivery is retried by the next scan.
func (s *Scanner) deliver(ctx context.Context, matches []match, dryRun bool, logger *slog.Logger) []Alert {
	out := make([]Alert, 0, len(matches))
	for _, m := range matches {
		a := m.alert
		if !dryRun {
			seen, err := s.seen.IsMessageSeen(ctx, m.key)
			if err != nil {
				logger.Warn("dedup store unavailable, treating message as new", "error", err)
			} else if seen {
				logger.Debug("message already alerted", "subject", a.Subject)
				continue
			}
		}
		logger.Info("alert message found", "subject", a.Subject, "from", a.From,
			"service", a.Service, "keywords", strings.Join(a.Keywords, ","))

		if !dryRun && s.sender != nil {
			a.AlertSent = s.sender.Send(ctx, customAlert(a))
			if a.AlertSent {
				if _, err := s.seen.MarkMessageSeen(ctx, m.key); err != nil {
					logger.Warn("record delivered message failed", "subject", a.Subject, "error", err)
				}
			}
		}
		out = append(out, a)
	}
	return out
}

func customAlert(a Alert) alerts.CustomAlert {
	lines := []string{
		"**Mailbox**: " + a.Mailbox,
		"**From**: " + a.From,
		"**Date**: " + a.Date,
		"**Service**: " + a.Service,
	}
	if a.Amount != nil {
		lines = append(lines, fmt.Sprintf("**Amount**: ¥%.2f", *a.Amount))
	}
	lines = append(lines, "**Keywords**: "+strings.Join(a.Keywords, ", "))
	return alerts.CustomAlert{
		Title:   "Mail alert: " + a.Subject,
		Content: strings.Join(lines, "\n"),
	}
}
