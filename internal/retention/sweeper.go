// Package retention prunes check history and screenshots past a fixed age.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitewatch/internal/metrics"
	"github.com/JakeFAU/sitewatch/internal/monitor"
)

// DefaultHorizon is the age past which logs and screenshots are removed.
const DefaultHorizon = 7 * 24 * time.Hour

// LogPruner deletes log rows older than a cutoff.
type LogPruner interface {
	DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// FilePruner deletes files older than a cutoff.
type FilePruner interface {
	RemoveOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Report summarizes one sweep.
type Report struct {
	Cutoff             time.Time
	LogsDeleted        int64
	ScreenshotsDeleted int
}

// Sweeper removes aged logs and screenshots.
type Sweeper struct {
	logs    LogPruner
	files   FilePruner
	clock   monitor.Clock
	horizon time.Duration
	logger  *zap.Logger
}

// New builds a Sweeper. A non-positive horizon uses DefaultHorizon.
func New(logs LogPruner, files FilePruner, clock monitor.Clock, horizon time.Duration, logger *zap.Logger) *Sweeper {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{logs: logs, files: files, clock: clock, horizon: horizon, logger: logger.Named("retention")}
}

// Sweep runs both phases. They are independent: a failure in one does not
// skip the other, and both errors are joined.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	report := Report{Cutoff: s.clock.Now().Add(-s.horizon)}
	var errs []error

	n, err := s.logs.DeleteLogsBefore(ctx, report.Cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete logs: %w", err))
	}
	report.LogsDeleted = n
	metrics.ObserveSweep("logs", n)

	removed, err := s.files.RemoveOlderThan(ctx, report.Cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("remove screenshots: %w", err))
	}
	report.ScreenshotsDeleted = removed
	metrics.ObserveSweep("screenshots", int64(removed))

	return report, errors.Join(errs...)
}

// Task adapts Sweep to a scheduled job. Failures are logged, never raised.
func (s *Sweeper) Task(ctx context.Context) {
	report, err := s.Sweep(ctx)
	fields := []zap.Field{
		zap.Time("cutoff", report.Cutoff),
		zap.Int64("logs_deleted", report.LogsDeleted),
		zap.Int("screenshots_deleted", report.ScreenshotsDeleted),
	}
	if err != nil {
		s.logger.Error("retention sweep failed", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Info("retention sweep complete", fields...)
}
