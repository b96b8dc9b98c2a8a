// Package dispatcher manages worker fan-out over the ad-hoc probe queue.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitewatch/internal/metrics"
	"github.com/JakeFAU/sitewatch/internal/queue"
	"github.com/JakeFAU/sitewatch/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   queue.Queue
	workers []*worker.Worker
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a Dispatcher.
func New(q queue.Queue, workers []*worker.Worker, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   q,
		workers: workers,
		logger:  logger.Named("dispatcher"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NewPool builds concurrency workers around runner.
func NewPool(q queue.Queue, runner worker.Runner, concurrency int, logger *zap.Logger) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	workers := make([]*worker.Worker, 0, concurrency)
	for i := 0; i < concurrency; i++ {
		workers = append(workers, worker.New(i+1, q, runner, logger))
	}
	return New(q, workers, logger)
}

// Run starts all workers and blocks until every worker has returned. Workers
// exit when ctx ends or when the queue is closed and drained.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Submit queues an ad-hoc probe without blocking. When the queue is full or
// closed the request is dropped and logged.
func (d *Dispatcher) Submit(siteID int64, reason string) bool {
	err := d.queue.TryEnqueue(queue.ProbeRequest{SiteID: siteID, Reason: reason, EnqueuedAt: d.now()})
	if err != nil {
		metrics.ObserveTriggerDropped()
		d.logger.Warn("probe request dropped",
			zap.Int64("site_id", siteID),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Close stops accepting requests.
func (d *Dispatcher) Close() {
	d.queue.Close()
}
