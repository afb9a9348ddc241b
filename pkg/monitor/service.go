package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/pkg/circuit"
	"github.com/ogulcanaydogan/credit-guardian/pkg/mailscan"
	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
	"github.com/ogulcanaydogan/credit-guardian/pkg/state"
	"github.com/ogulcanaydogan/credit-guardian/pkg/storage"
	"github.com/ogulcanaydogan/credit-guardian/pkg/subscription"
)

// ErrUnknownProject is returned by TriggerRefresh for names not in the configuration.
var ErrUnknownProject = errors.New("unknown project")

// Sources is the configured set of things to watch.
type Sources struct {
	Projects      []model.ProjectConfig
	Subscriptions []model.SubscriptionConfig
	Mailboxes     []model.MailboxConfig
}

func (s Sources) clone() Sources {
	return Sources{
		Projects:      slices.Clone(s.Projects),
		Subscriptions: slices.Clone(s.Subscriptions),
		Mailboxes:     slices.Clone(s.Mailboxes),
	}
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithScanner enables mailbox scanning.
func WithScanner(s *mailscan.Scanner) ServiceOption {
	return func(svc *Service) { svc.scanner = s }
}

// WithServiceStorage persists subscription evaluations.
func WithServiceStorage(st storage.Storage) ServiceOption {
	return func(svc *Service) { svc.storage = st }
}

// WithServiceMetrics reports subscription results and run timings.
func WithServiceMetrics(m Metrics) ServiceOption {
	return func(svc *Service) { svc.metrics = m }
}

// WithServiceClock overrides the clock used to pick "today".
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(svc *Service) { svc.now = now }
}

// Service is the query and refresh facade used by the HTTP layer, the CLI
// and the scheduler.
type Service struct {
	mu      sync.RWMutex
	sources Sources

	checker *Checker
	subs    *subscription.Checker
	scanner *mailscan.Scanner
	state   *state.Store
	storage storage.Storage
	metrics Metrics
	now     func() time.Time
	logger  *slog.Logger
}

// NewService wires the facade.
func NewService(sources Sources, checker *Checker, subs *subscription.Checker, store *state.Store, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{
		sources: sources.clone(),
		checker: checker,
		subs:    subs,
		state:   store,
		storage: storage.Noop{},
		metrics: noopMetrics{},
		now:     time.Now,
		logger:  logger.With("component", "service"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// State exposes the underlying snapshot store.
func (s *Service) State() *state.Store { return s.state }

// Sources returns a copy of the current configuration.
func (s *Service) Sources() Sources {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sources.clone()
}

// Reload swaps the watched sources. Running checks keep the set they started with.
func (s *Service) Reload(src Sources) {
	s.mu.Lock()
	s.sources = src.clone()
	s.mu.Unlock()
	s.logger.Info("sources reloaded",
		"projects", len(src.Projects), "subscriptions", len(src.Subscriptions), "mailboxes", len(src.Mailboxes))
}

// GetLatestBalanceSnapshot returns the last completed balance run.
func (s *Service) GetLatestBalanceSnapshot() state.BalanceSnapshot { return s.state.Balance() }

// GetLatestSubscriptionSnapshot returns the last completed subscription run.
func (s *Service) GetLatestSubscriptionSnapshot() state.SubscriptionSnapshot {
	return s.state.Subscriptions()
}

// Circuits reports the state of every provider breaker.
func (s *Service) Circuits() []circuit.Status {
	if s.checker == nil || s.checker.Client() == nil {
		return nil
	}
	return s.checker.Client().Breakers().Snapshot()
}

// TriggerRefresh runs a balance check synchronously. With an empty name every
// enabled project is checked and the shared snapshot replaced. A name selects
// that one project, even if disabled, and leaves the snapshot alone.
func (s *Service) TriggerRefresh(ctx context.Context, projectName string, dryRun bool) ([]model.ProjectCheckResult, error) {
	projects := s.Sources().Projects

	if projectName == "" {
		results := s.checker.Run(ctx, projects, dryRun)
		s.state.UpdateBalance(results)
		return results, nil
	}

	for _, p := range projects {
		if p.Name == projectName {
			return []model.ProjectCheckResult{s.checker.Check(ctx, p, dryRun)}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProject, projectName)
}

// RefreshSubscriptions evaluates every enabled subscription as of today and
// replaces the subscription snapshot.
func (s *Service) RefreshSubscriptions(ctx context.Context, dryRun bool) []model.SubscriptionCheckResult {
	start := time.Now()
	subs := s.Sources().Subscriptions
	results := s.subs.Check(ctx, subs, subscription.Date(s.now()), dryRun)

	for _, r := range results {
		s.metrics.RecordSubscription(r)
		err := s.storage.SaveSubscription(ctx, &model.SubscriptionRecord{
			SubscriptionID:   model.ProjectID("subscription", r.Name),
			Name:             r.Name,
			CycleType:        r.CycleType,
			DaysUntilRenewal: r.DaysUntilRenewal,
			Amount:           r.Amount,
			Currency:         r.Currency,
			NeedRenewal:      r.NeedAlert,
		})
		if err != nil {
			s.logger.Warn("save subscription record failed", "subscription", r.Name, "error", err)
		}
	}
	s.state.UpdateSubscriptions(results)
	s.metrics.RecordRun("subscription", time.Since(start))
	return results
}

// RefreshAll runs the balance and subscription checks back to back.
func (s *Service) RefreshAll(ctx context.Context, dryRun bool) {
	if _, err := s.TriggerRefresh(ctx, "", dryRun); err != nil {
		s.logger.Error("balance refresh failed", "error", err)
	}
	s.RefreshSubscriptions(ctx, dryRun)
}

// ScanMailboxes scans every enabled mailbox synchronously.
func (s *Service) ScanMailboxes(ctx context.Context, sinceDays int, dryRun bool) mailscan.Summary {
	if s.scanner == nil {
		return mailscan.Summary{Alerts: []mailscan.Alert{}}
	}
	start := time.Now()
	summary := s.scanner.Scan(ctx, s.Sources().Mailboxes, sinceDays, dryRun)
	s.metrics.RecordRun("email", time.Since(start))
	return summary
}

// PurgeCaches drops expired cache entries.
func (s *Service) PurgeCaches() {
	instances, responses := s.checker.PurgeCaches()
	if instances+responses > 0 {
		s.logger.Debug("expired cache entries purged", "instances", instances, "responses", responses)
	}
}
