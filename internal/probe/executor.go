// Package probe runs one end-to-end check of a site: browser session,
// classification, screenshot, atomic commit and alerting.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitewatch/internal/metrics"
	"github.com/JakeFAU/sitewatch/internal/monitor"
)

const defaultNotifyTimeout = 5 * time.Second

// Config tunes the executor.
type Config struct {
	// NotifyTimeout bounds each alert delivery.
	NotifyTimeout time.Duration
}

// Deps are the collaborators an Executor needs.
type Deps struct {
	Store       monitor.Store
	Browser     monitor.Browser
	Screenshots monitor.ScreenshotStore
	Notifier    monitor.Notifier
	Clock       monitor.Clock
}

// Executor performs probes. It is safe for concurrent use; runs for the same
// site are serialized by the guard and rejected rather than queued.
type Executor struct {
	deps   Deps
	cfg    Config
	guard  *Guard
	logger *zap.Logger
}

// New wires an Executor.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Executor, error) {
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Browser == nil {
		return nil, errors.New("browser is required")
	}
	if deps.Screenshots == nil {
		return nil, errors.New("screenshot store is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{deps: deps, cfg: cfg, guard: NewGuard(), logger: logger.Named("probe")}, nil
}

// Run probes siteID once. It returns monitor.ErrProbeInFlight when another
// run for the site is active and monitor.ErrNotFound when the site does not
// exist; neither writes anything. Any failure after the site is loaded is
// recorded as an Error log row and returned wrapped.
func (e *Executor) Run(ctx context.Context, siteID int64) (monitor.CheckLog, error) {
	if !e.guard.Acquire(siteID) {
		return monitor.CheckLog{}, monitor.ErrProbeInFlight
	}
	defer e.guard.Release(siteID)

	site, err := e.deps.Store.GetSite(ctx, siteID)
	if err != nil {
		if errors.Is(err, monitor.ErrNotFound) {
			return monitor.CheckLog{}, err
		}
		return monitor.CheckLog{}, fmt.Errorf("load site %d: %w", siteID, err)
	}

	logger := e.logger.With(zap.Int64("site_id", site.ID), zap.String("url", site.URL))
	start := e.deps.Clock.Now()

	result, err := e.probe(ctx, site)
	if err != nil {
		return e.recordFailure(ctx, logger, site, start, err)
	}

	entry, err := e.deps.Store.RecordProbe(ctx, site.ID, result)
	if err != nil {
		if errors.Is(err, monitor.ErrNotFound) {
			logger.Debug("site deleted during probe; result discarded")
			return monitor.CheckLog{}, err
		}
		return e.recordFailure(ctx, logger, site, start, fmt.Errorf("record probe: %w", err))
	}

	metrics.ObserveProbe(string(site.DeviceType), monitor.Outcome(result.Status), e.deps.Clock.Now().Sub(start))
	logger.Info("probe completed", zap.String("status", result.Status))

	if !monitor.IsHealthy(result.Status) {
		e.notify(ctx, logger, site, result.Status)
	}
	return entry, nil
}

// InFlight reports how many sites are being probed right now.
func (e *Executor) InFlight() int {
	return e.guard.InFlight()
}

func (e *Executor) probe(ctx context.Context, site monitor.Site) (monitor.ProbeResult, error) {
	session, err := e.deps.Browser.Launch(ctx, monitor.ProfileFor(site.DeviceType))
	if err != nil {
		return monitor.ProbeResult{}, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			e.logger.Debug("close session", zap.Int64("site_id", site.ID), zap.Error(cerr))
		}
	}()

	resp, err := session.Navigate(ctx, site.URL)
	if err != nil {
		var navErr *monitor.NavigationError
		if errors.As(err, &navErr) {
			return monitor.ProbeResult{
				Status:    monitor.DownStatus(navErr.Reason),
				CheckedAt: e.deps.Clock.Now(),
			}, nil
		}
		return monitor.ProbeResult{}, err
	}

	content, err := session.Content(ctx)
	if err != nil {
		return monitor.ProbeResult{}, err
	}
	status := monitor.Classify(resp.StatusCode, content, site.SearchString)

	var path string
	shot, err := session.Screenshot(ctx)
	switch {
	case errors.Is(err, monitor.ErrScreenshotUnsupported):
	case err != nil:
		return monitor.ProbeResult{}, err
	default:
		path, err = e.deps.Screenshots.Save(ctx, site.ID, e.deps.Clock.Now(), shot)
		if err != nil {
			return monitor.ProbeResult{}, fmt.Errorf("save screenshot: %w", err)
		}
	}

	return monitor.ProbeResult{
		Status:         status,
		CheckedAt:      e.deps.Clock.Now(),
		ScreenshotPath: path,
	}, nil
}

func (e *Executor) recordFailure(
	ctx context.Context,
	logger *zap.Logger,
	site monitor.Site,
	start time.Time,
	probeErr error,
) (monitor.CheckLog, error) {
	status := monitor.ErrorStatus(probeErr)
	metrics.ObserveProbe(string(site.DeviceType), monitor.Outcome(status), e.deps.Clock.Now().Sub(start))
	logger.Warn("probe failed", zap.Error(probeErr))

	entry, err := e.deps.Store.AppendLog(ctx, monitor.CheckLog{
		SiteID:    site.ID,
		Timestamp: e.deps.Clock.Now(),
		Status:    status,
	})
	if err != nil {
		logger.Error("append error log", zap.Error(err))
		return monitor.CheckLog{}, errors.Join(fmt.Errorf("probe site %d: %w", site.ID, probeErr), err)
	}
	return entry, fmt.Errorf("probe site %d: %w", site.ID, probeErr)
}

func (e *Executor) notify(ctx context.Context, logger *zap.Logger, site monitor.Site, status string) {
	notifyCtx, cancel := context.WithTimeout(ctx, e.cfg.NotifyTimeout)
	defer cancel()

	message := fmt.Sprintf("%s (%s): %s", site.URL, site.DeviceType, status)
	if err := e.deps.Notifier.Notify(notifyCtx, message); err != nil {
		metrics.ObserveNotification("failed")
		logger.Warn("notification failed", zap.Error(err))
		return
	}
	metrics.ObserveNotification("sent")
}

// LogResult logs the outcome of a run by its kind. Missing sites are
// expected after deletes and in-flight skips after slow probes, so they are
// kept below warn.
func LogResult(logger *zap.Logger, siteID int64, trigger string, err error) {
	fields := []zap.Field{zap.Int64("site_id", siteID), zap.String("trigger", trigger)}
	switch {
	case err == nil:
	case errors.Is(err, monitor.ErrNotFound):
		logger.Debug("site no longer exists; probe skipped", fields...)
	case errors.Is(err, monitor.ErrProbeInFlight):
		logger.Info("probe still in flight; firing skipped", fields...)
	default:
		logger.Warn("probe run failed", append(fields, zap.Error(err))...)
	}
}
