// Package worker executes ad-hoc probe requests pulled from the queue.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitewatch/internal/monitor"
	"github.com/JakeFAU/sitewatch/internal/probe"
	"github.com/JakeFAU/sitewatch/internal/queue"
)

// Runner performs one probe of a site.
type Runner interface {
	Run(ctx context.Context, siteID int64) (monitor.CheckLog, error)
}

// Worker consumes queue items and hands them to the runner.
type Worker struct {
	id     int
	queue  queue.Queue
	runner Runner
	logger *zap.Logger
}

// New constructs a Worker.
func New(id int, q queue.Queue, runner Runner, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:     id,
		queue:  q,
		runner: runner,
		logger: logger.Named("worker").With(zap.Int("worker_id", id)),
	}
}

// Run dequeues until the context ends or the queue is closed and drained.
func (w *Worker) Run(ctx context.Context) {
	for {
		req, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued probe request",
			zap.Int64("site_id", req.SiteID),
			zap.String("reason", req.Reason),
		)
		w.process(ctx, req)
	}
}

func (w *Worker) process(ctx context.Context, req queue.ProbeRequest) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("probe panicked",
				zap.Int64("site_id", req.SiteID),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	_, err := w.runner.Run(ctx, req.SiteID)
	probe.LogResult(w.logger, req.SiteID, req.Reason, err)
}
