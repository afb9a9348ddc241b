package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/internal/config"
	"github.com/ogulcanaydogan/credit-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/credit-guardian/pkg/circuit"
	"github.com/ogulcanaydogan/credit-guardian/pkg/mailscan"
	"github.com/ogulcanaydogan/credit-guardian/pkg/metrics"
	"github.com/ogulcanaydogan/credit-guardian/pkg/monitor"
	"github.com/ogulcanaydogan/credit-guardian/pkg/providers"
	"github.com/ogulcanaydogan/credit-guardian/pkg/state"
	"github.com/ogulcanaydogan/credit-guardian/pkg/storage"
	"github.com/ogulcanaydogan/credit-guardian/pkg/subscription"
)

// app is the object graph shared by every command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Collector
	client  *providers.Client
	service *monitor.Service

	// store is always usable; history is nil when storage is disabled.
	store   storage.Storage
	history storage.Storage
}

// newApp wires providers, alerts, storage and the monitor service from cfg.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New(), store: storage.Noop{}}

	var seen mailscan.SeenStore
	if cfg.Storage.Enabled {
		db, err := storage.NewSQLite(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		a.store, a.history, seen = db, db, db
	}

	breakers := circuit.NewRegistry(circuit.Config{
		FailureThreshold: cfg.Settings.CircuitFailureThreshold,
		OpenTimeout:      time.Duration(cfg.Settings.CircuitOpenSeconds) * time.Second,
	}, logger, circuit.WithStateChange(a.metrics.SetCircuitState))

	a.client = providers.NewClient(providers.ClientOptions{
		Timeout:    cfg.Settings.ProviderTimeout,
		MaxRetries: cfg.Settings.ProviderMaxRetries,
		Breakers:   breakers,
		Logger:     logger,
		Observer:   a.metrics.ObserveProviderCall,
	})

	// A nil interface, not a nil *Dispatcher, tells the checkers no webhook is configured.
	var sender monitor.Sender
	if cfg.Webhook.URL != "" {
		notifier := alerts.NewWebhookNotifier(cfg.Alerts(), logger)
		sender = alerts.NewDispatcher(notifier, logger, alerts.WithObserver(a.metrics.ObserveWebhook))
	}

	checker := monitor.NewChecker(providers.DefaultFactory(), a.client, sender, monitor.Options{
		MaxConcurrent: cfg.Settings.MaxConcurrentChecks,
		ResponseTTL:   cfg.ResponseTTL(),
		Storage:       a.store,
		Metrics:       a.metrics,
		Logger:        logger,
	})

	scanner := mailscan.NewScanner(mailscan.IMAPDialer(cfg.Mail.Timeout), sender, seen, logger, mailscan.Options{
		Concurrency:     cfg.Mail.Concurrency,
		MaxMessages:     cfg.Mail.MaxMessages,
		Keywords:        cfg.Mail.Keywords,
		ReplaceDefaults: cfg.Mail.ReplaceDefaults,
		Observer:        a.metrics.RecordEmailScan,
	})

	a.service = monitor.NewService(sourcesOf(cfg), checker,
		subscription.NewChecker(sender, logger), state.NewStore(logger), logger,
		monitor.WithScanner(scanner),
		monitor.WithServiceStorage(a.store),
		monitor.WithServiceMetrics(a.metrics),
	)
	return a, nil
}

func sourcesOf(cfg *config.Config) monitor.Sources {
	return monitor.Sources{
		Projects:      cfg.Projects,
		Subscriptions: cfg.Subscriptions,
		Mailboxes:     cfg.Email,
	}
}

// cleanup prunes history older than the retention window.
func (a *app) cleanup(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Storage.RetentionDays)
	n, err := a.store.Cleanup(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup history: %w", err)
	}
	a.logger.Info("history pruned", "deleted", n, "cutoff", cutoff.Format(time.DateOnly))
	return nil
}

func (a *app) Close() error {
	return a.store.Close()
}
