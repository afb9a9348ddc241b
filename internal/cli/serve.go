package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/internal/config"
	"github.com/ogulcanaydogan/credit-guardian/internal/scheduler"
	"github.com/ogulcanaydogan/credit-guardian/internal/server"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout    = 10 * time.Second
	dnsRefreshInterval = 5 * time.Minute
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP API",
		Long: `Run periodic balance, subscription and mailbox checks in the background and
serve the latest results over HTTP, WebSocket and Prometheus metrics. The
config file is watched and re-applied when it changes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, flags)
		},
	}
	cmd.Flags().String("listen", "", "Listen address (overrides server.listen)")
	return cmd
}

func runServe(cmd *cobra.Command, flags *rootFlags) error {
	cfg, logger, err := flags.loadConfig()
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stateFile := cfg.Server.StateFile
	if stateFile != "" {
		if err := a.service.State().LoadFile(stateFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("state file not restored", "path", stateFile, "error", err)
		}
	}

	schedOpts := scheduler.Options{
		RefreshInterval: cfg.RefreshInterval(),
		MailSchedule:    cfg.Mail.Schedule,
		MailSinceDays:   cfg.Mail.SinceDays,
		StateFile:       stateFile,
		RunOnStart:      true,
	}
	if cfg.Storage.Enabled && cfg.Storage.RetentionDays > 0 {
		schedOpts.Cleanup = a.cleanup
	}
	sched, err := scheduler.New(a.service, logger, schedOpts)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	api := server.NewServer(a.service, logger, server.Options{
		APIKey:          cfg.Server.APIKey,
		RefreshCooldown: cfg.Server.RefreshCooldown,
		RefreshInterval: cfg.RefreshInterval(),
		Storage:         a.history,
		Metrics:         a.metrics.Handler(),
	})
	defer api.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	if cfg.File() != "" {
		if err := config.Watch(ctx, cfg.File(), config.Load, a.reloader(sched)); err != nil {
			logger.Warn("config hot reload disabled", "error", err)
		}
	}
	go a.refreshDNS(ctx, dnsRefreshInterval)

	sched.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("guardian started", "listen", cfg.Server.Listen,
			"projects", len(cfg.Projects), "subscriptions", len(cfg.Subscriptions), "mailboxes", len(cfg.Email))
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	sched.Stop(shutdownCtx)

	if stateFile != "" && a.service.State().HasData() {
		if err := a.service.State().SaveFile(stateFile); err != nil {
			logger.Warn("save state file", "path", stateFile, "error", err)
		}
	}
	return serveErr
}

// reloader applies a re-read config file to the running service. A file that
// fails to load leaves the previous configuration in place.
func (a *app) reloader(sched *scheduler.Scheduler) config.ReloadFunc {
	return func(cfg *config.Config, err error) {
		if err != nil {
			a.logger.Error("config reload failed, keeping previous config", "error", err)
			return
		}
		for _, w := range cfg.Warnings {
			a.logger.Warn("config entry adjusted", "warning", w)
		}
		a.service.Reload(sourcesOf(cfg))
		sched.SetRefreshInterval(cfg.RefreshInterval())
		a.metrics.ConfigReloaded()
		a.logger.Info("config reloaded", "path", cfg.File(),
			"projects", len(cfg.Projects), "subscriptions", len(cfg.Subscriptions), "mailboxes", len(cfg.Email))
	}
}

func (a *app) refreshDNS(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.client.RefreshDNS()
		}
	}
}
