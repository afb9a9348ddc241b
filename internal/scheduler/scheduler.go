// Package scheduler drives periodic balance refreshes, mailbox scans and housekeeping.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/pkg/mailscan"
	"github.com/ogulcanaydogan/credit-guardian/pkg/state"
	"github.com/robfig/cron/v3"
)

// Service is what the scheduler drives. *monitor.Service satisfies it.
type Service interface {
	RefreshAll(ctx context.Context, dryRun bool)
	ScanMailboxes(ctx context.Context, sinceDays int, dryRun bool) mailscan.Summary
	PurgeCaches()
	State() *state.Store
}

// Options configures the job set.
type Options struct {
	RefreshInterval time.Duration
	// MailSchedule is a six-field cron spec (with seconds); empty disables scanning.
	MailSchedule  string
	MailSinceDays int
	// StateFile, when set, receives the snapshot after every refresh.
	StateFile string
	// Cleanup prunes old history once a day when non-nil.
	Cleanup    func(ctx context.Context) error
	RunOnStart bool
}

// Scheduler wraps a cron instance. Overlapping runs of the same job are
// skipped and panics are recovered.
type Scheduler struct {
	cron   *cron.Cron
	svc    Service
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	refreshID cron.EntryID
}

// New creates a scheduler and registers its jobs.
func New(svc Service, logger *slog.Logger, opts Options) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	if opts.RefreshInterval < time.Second {
		return nil, fmt.Errorf("refresh interval %s is below one second", opts.RefreshInterval)
	}
	if opts.MailSinceDays <= 0 {
		opts.MailSinceDays = 1
	}

	cl := cronLogger{logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
		),
		svc:    svc,
		opts:   opts,
		logger: logger,
		ctx:    context.Background(),
	}

	s.refreshID = s.cron.Schedule(cron.Every(opts.RefreshInterval), cron.FuncJob(s.refresh))
	if opts.MailSchedule != "" {
		if _, err := s.cron.AddFunc(opts.MailSchedule, s.scanMail); err != nil {
			return nil, fmt.Errorf("register mail scan %q: %w", opts.MailSchedule, err)
		}
	}
	if opts.Cleanup != nil {
		if _, err := s.cron.AddFunc("@daily", s.cleanup); err != nil {
			return nil, fmt.Errorf("register cleanup: %w", err)
		}
	}
	return s, nil
}

// Start runs the scheduler until Stop. Jobs receive a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started",
		"refresh_interval", s.opts.RefreshInterval, "mail_schedule", s.opts.MailSchedule)
	if s.opts.RunOnStart {
		go s.RunNow()
	}
}

// Stop cancels running jobs and waits for them to return, up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with jobs still running")
	}
}

// RunNow triggers the refresh job through the cron chain, so it is skipped
// if a refresh is already running.
func (s *Scheduler) RunNow() {
	s.mu.Lock()
	entry := s.cron.Entry(s.refreshID)
	s.mu.Unlock()
	if entry.WrappedJob != nil {
		entry.WrappedJob.Run()
	}
}

// SetRefreshInterval reschedules the refresh job, e.g. after a config reload.
func (s *Scheduler) SetRefreshInterval(d time.Duration) {
	if d < time.Second {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d == s.opts.RefreshInterval {
		return
	}
	s.cron.Remove(s.refreshID)
	s.refreshID = s.cron.Schedule(cron.Every(d), cron.FuncJob(s.refresh))
	s.opts.RefreshInterval = d
	s.logger.Info("refresh interval changed", "interval", d)
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) refresh() {
	ctx := s.jobContext()
	start := time.Now()
	s.svc.RefreshAll(ctx, false)
	s.svc.PurgeCaches()

	if s.opts.StateFile != "" {
		if err := s.svc.State().SaveFile(s.opts.StateFile); err != nil {
			s.logger.Warn("save state file failed", "path", s.opts.StateFile, "error", err)
		}
	}
	s.logger.Debug("refresh job finished", "duration", time.Since(start).Round(time.Millisecond))
}

func (s *Scheduler) scanMail() {
	summary := s.svc.ScanMailboxes(s.jobContext(), s.opts.MailSinceDays, false)
	if len(summary.Errors) > 0 {
		s.logger.Warn("mail scan finished with errors", "errors", summary.Errors)
	}
}

func (s *Scheduler) cleanup() {
	if err := s.opts.Cleanup(s.jobContext()); err != nil {
		s.logger.Error("history cleanup failed", "error", err)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
