// Package scheduler keeps one recurring probe entry per site and the daily
// maintenance tasks, on top of robfig/cron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitewatch/internal/metrics"
	"github.com/JakeFAU/sitewatch/internal/monitor"
	"github.com/JakeFAU/sitewatch/internal/probe"
)

// ErrInvalidFrequency is returned for recurrence intervals under a minute.
var ErrInvalidFrequency = errors.New("frequency must be at least 1 minute")

// Runner performs one probe of a site.
type Runner interface {
	Run(ctx context.Context, siteID int64) (monitor.CheckLog, error)
}

// Submitter accepts ad-hoc probe requests without blocking.
type Submitter interface {
	Submit(siteID int64, reason string) bool
}

type siteEntry struct {
	id       cron.EntryID
	gen      uint64
	interval time.Duration
}

// Scheduler owns the cron instance. All methods are safe for concurrent use.
type Scheduler struct {
	cron      *cron.Cron
	runner    Runner
	submitter Submitter
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	gen   uint64
	sites map[int64]siteEntry
	daily map[string]cron.EntryID
}

// Option customises a Scheduler.
type Option func(*options)

type options struct {
	location *time.Location
}

// WithLocation sets the time zone daily tasks are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.location = loc }
}

// New builds a stopped Scheduler.
func New(runner Runner, submitter Submitter, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{location: time.Local}
	for _, opt := range opts {
		opt(&o)
	}
	logger = logger.Named("scheduler")
	cl := cronLogger{logger: logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(o.location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		runner:    runner,
		submitter: submitter,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		sites:     make(map[int64]siteEntry),
		daily:     make(map[string]cron.EntryID),
	}
}

// Schedule registers or replaces the recurring entry for siteID. The first
// firing is one interval from now.
func (s *Scheduler) Schedule(siteID int64, frequencyMinutes int) error {
	if frequencyMinutes < 1 {
		return fmt.Errorf("schedule site %d: %w", siteID, ErrInvalidFrequency)
	}
	s.scheduleEvery(siteID, time.Duration(frequencyMinutes)*time.Minute)
	return nil
}

func (s *Scheduler) scheduleEvery(siteID int64, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.sites[siteID]; ok {
		s.cron.Remove(prev.id)
	}
	s.gen++
	gen := s.gen
	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() { s.fire(siteID, gen) }))
	s.sites[siteID] = siteEntry{id: id, gen: gen, interval: interval}
	metrics.SetScheduledSites(len(s.sites))
	s.logger.Debug("site scheduled", zap.Int64("site_id", siteID), zap.Duration("interval", interval))
}

// Unschedule removes the entry for siteID. Absent entries are ignored. A
// probe already running is left to finish.
func (s *Scheduler) Unschedule(siteID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.sites[siteID]
	if !ok {
		return
	}
	s.removeLocked(siteID, prev)
}

func (s *Scheduler) removeLocked(siteID int64, prev siteEntry) {
	s.cron.Remove(prev.id)
	delete(s.sites, siteID)
	metrics.SetScheduledSites(len(s.sites))
	s.logger.Debug("site unscheduled", zap.Int64("site_id", siteID))
}

// TriggerNow submits an ad-hoc probe. The recurring entry keeps its phase.
func (s *Scheduler) TriggerNow(siteID int64, reason string) bool {
	if s.submitter == nil {
		return false
	}
	return s.submitter.Submit(siteID, reason)
}

// Interval reports the recurring interval registered for siteID.
func (s *Scheduler) Interval(siteID int64) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sites[siteID]
	return e.interval, ok
}

// Len returns the number of sites with a recurring entry.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sites)
}

// RunDaily registers task to run every day at timeOfDay ("HH:MM"). A task
// registered again under the same name replaces the previous one.
func (s *Scheduler) RunDaily(timeOfDay, name string, task func(context.Context)) error {
	at, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return fmt.Errorf("parse daily time %q: %w", timeOfDay, err)
	}
	spec := fmt.Sprintf("%d %d * * *", at.Minute(), at.Hour())

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.daily[name]; ok {
		s.cron.Remove(prev)
	}
	id, err := s.cron.AddFunc(spec, func() { task(s.ctx) })
	if err != nil {
		return fmt.Errorf("register daily task %s: %w", name, err)
	}
	s.daily[name] = id
	s.logger.Info("daily task registered", zap.String("task", name), zap.String("at", timeOfDay))
	return nil
}

// Next returns the next activation time of the site's entry.
func (s *Scheduler) Next(siteID int64) (time.Time, bool) {
	s.mu.Lock()
	e, ok := s.sites[siteID]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(e.id).Next, true
}

// Start begins firing entries in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts new firings and waits for running jobs until ctx ends. Running
// probes are canceled when ctx expires first.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("wait for running probes: %w", ctx.Err())
	}
}

// fire runs one recurring probe. An entry whose site has disappeared from the
// registry removes itself, unless it was replaced while the probe ran.
func (s *Scheduler) fire(siteID int64, gen uint64) {
	_, err := s.runner.Run(s.ctx, siteID)
	probe.LogResult(s.logger, siteID, "recurring", err)
	if !errors.Is(err, monitor.ErrNotFound) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sites[siteID]; ok && cur.gen == gen {
		s.removeLocked(siteID, cur)
	}
}

// cronLogger routes cron's own logging into zap. Its info output is
// per-wakeup chatter, so it goes to debug.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
