// Package app builds the sitewatch object graph and runs it until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitewatch/internal/api"
	"github.com/JakeFAU/sitewatch/internal/browser/headless"
	"github.com/JakeFAU/sitewatch/internal/browser/static"
	"github.com/JakeFAU/sitewatch/internal/clock/system"
	"github.com/JakeFAU/sitewatch/internal/config"
	"github.com/JakeFAU/sitewatch/internal/dispatcher"
	"github.com/JakeFAU/sitewatch/internal/logging"
	"github.com/JakeFAU/sitewatch/internal/metrics"
	"github.com/JakeFAU/sitewatch/internal/monitor"
	"github.com/JakeFAU/sitewatch/internal/notify"
	pubsubnotify "github.com/JakeFAU/sitewatch/internal/notify/pubsub"
	"github.com/JakeFAU/sitewatch/internal/probe"
	queuememory "github.com/JakeFAU/sitewatch/internal/queue/memory"
	"github.com/JakeFAU/sitewatch/internal/registry/memory"
	"github.com/JakeFAU/sitewatch/internal/registry/postgres"
	"github.com/JakeFAU/sitewatch/internal/registry/sqlite"
	"github.com/JakeFAU/sitewatch/internal/retention"
	"github.com/JakeFAU/sitewatch/internal/scheduler"
	"github.com/JakeFAU/sitewatch/internal/screenshot"
	"github.com/JakeFAU/sitewatch/internal/service"
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store       monitor.Store
	screenshots *screenshot.Store
	queue       *queuememory.Queue
	dispatch    *dispatcher.Dispatcher
	executor    *probe.Executor
	sched       *scheduler.Scheduler
	sweeper     *retention.Sweeper
	sites       *service.Service
	apiServer   *api.Server

	pubsubClient *pubsub.Client
	alerts       *pubsubnotify.Notifier

	cancelRun    context.CancelFunc
	dispatchDone chan struct{}
}

// Build creates the logger and every component described by cfg.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		File:        cfg.Logging.File,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()
	a := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("probe_mode", cfg.Probe.Mode),
	)

	var err error
	if a.store, err = openStore(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if a.screenshots, err = screenshot.New(screenshot.Config{Dir: cfg.Storage.ScreenshotDir}); err != nil {
		a.closeInfrastructure()
		return nil, fmt.Errorf("screenshot store init failed: %w", err)
	}
	browser, err := newBrowser(cfg, logger)
	if err != nil {
		a.closeInfrastructure()
		return nil, err
	}
	notifier, err := a.setupNotifier(ctx)
	if err != nil {
		a.closeInfrastructure()
		return nil, err
	}

	clock := system.New()
	a.executor, err = probe.New(probe.Deps{
		Store:       a.store,
		Browser:     browser,
		Screenshots: a.screenshots,
		Notifier:    notifier,
		Clock:       clock,
	}, probe.Config{NotifyTimeout: cfg.Probe.NotifyTimeout}, logger)
	if err != nil {
		a.closeInfrastructure()
		return nil, fmt.Errorf("probe executor init failed: %w", err)
	}

	a.queue = queuememory.NewQueue(cfg.Dispatcher.QueueDepth)
	a.dispatch = dispatcher.NewPool(a.queue, a.executor, cfg.Dispatcher.Concurrency, logger)
	a.sched = scheduler.New(a.executor, a.dispatch, logger)

	a.sweeper = retention.New(a.store, a.screenshots, clock, cfg.RetentionHorizon(), logger)
	if err := a.sched.RunDaily(cfg.Retention.DailyAt, "retention", a.sweeper.Task); err != nil {
		a.closeInfrastructure()
		return nil, fmt.Errorf("schedule retention sweep: %w", err)
	}

	a.sites = service.New(a.store, a.sched, logger)
	a.apiServer = api.NewServer(a.sites, api.Config{
		Username:       cfg.Auth.Username,
		Password:       cfg.Auth.Password,
		ScreenshotDir:  a.screenshots.Dir(),
		RequestTimeout: cfg.Server.RequestTimeout,
		Ready:          a.ready,
	}, logger)
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (monitor.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		store, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.Database.DSN,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		logger.Info("using postgres registry")
		return store, nil
	case config.DriverSQLite:
		store, err := sqlite.New(ctx, sqlite.Config{Path: cfg.Database.DSN})
		if err != nil {
			return nil, fmt.Errorf("sqlite store init failed: %w", err)
		}
		logger.Info("using sqlite registry", zap.String("path", cfg.Database.DSN))
		return store, nil
	case config.DriverMemory:
		logger.Warn("using in-memory registry, sites are lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func newBrowser(cfg config.Config, logger *zap.Logger) (monitor.Browser, error) {
	if cfg.Probe.Mode == config.ModeStatic {
		logger.Info("using static probe sessions, screenshots disabled")
		return static.New(static.Config{Timeout: cfg.Probe.NavigationTimeout}), nil
	}
	b, err := headless.New(headless.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		ExecPath:          cfg.Headless.ExecPath,
		NavigationTimeout: cfg.Probe.NavigationTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("headless browser init failed: %w", err)
	}
	logger.Info("using headless probe sessions", zap.Int("max_parallel", cfg.Headless.MaxParallel))
	return b, nil
}

func (a *App) setupNotifier(ctx context.Context) (monitor.Notifier, error) {
	var transports []monitor.Notifier
	if a.cfg.Notify.WebhookURL != "" {
		transports = append(transports, notify.NewWebhook(a.cfg.Notify.WebhookURL, a.cfg.Notify.Timeout))
		a.logger.Info("webhook alerts enabled")
	}
	if a.cfg.Notify.PubSub.Enabled() {
		client, err := pubsub.NewClient(ctx, a.cfg.Notify.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.alerts = pubsubnotify.New(client.Topic(a.cfg.Notify.PubSub.Topic))
		transports = append(transports, a.alerts)
		a.logger.Info("Pub/Sub alerts enabled",
			zap.String("project", a.cfg.Notify.PubSub.ProjectID),
			zap.String("topic", a.cfg.Notify.PubSub.Topic),
		)
	}
	if len(transports) == 0 {
		a.logger.Warn("no alert transport configured, alerts are dropped")
	}
	return notify.Combine(transports...), nil
}

// Handler exposes the admin API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Start restores recurring entries and launches the worker pool and the
// scheduler in the background.
func (a *App) Start(ctx context.Context) error {
	if _, err := a.sites.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap schedules: %w", err)
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancelRun = cancel
	a.dispatchDone = make(chan struct{})
	go func() {
		defer close(a.dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("concurrency", a.cfg.Dispatcher.Concurrency))
		a.dispatch.Run(runCtx)
	}()
	a.sched.Start()
	a.logger.Info("scheduler started", zap.Int("entries", a.sched.Len()))
	return nil
}

// Run starts the application and blocks until ctx is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return a.Close(shutdownCtx)
}

// Close stops scheduling, drains the workers, and releases infrastructure.
// Queued and running probes get until ctx expires to finish; whatever is
// still running then is canceled.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.sched.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	a.dispatch.Close()
	if a.cancelRun != nil {
		select {
		case <-a.dispatchDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("wait for workers: %w", ctx.Err()))
		}
		a.cancelRun()
	}
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure() {
	if a.alerts != nil {
		a.alerts.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("store close failed", zap.Error(err))
		}
	}
}

func (a *App) ready(ctx context.Context) error {
	if _, err := a.store.RecentLogs(ctx, 1); err != nil {
		return fmt.Errorf("registry unavailable: %w", err)
	}
	return nil
}
