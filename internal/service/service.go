// Package service is the API the presentation layer calls: it keeps the
// registry and the scheduler in step for every site mutation.
package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

// Dashboard defaults.
const (
	DefaultLogLimit   = 15
	DefaultTrailLimit = 5
	DefaultHistory    = 50
)

// Scheduler is the subset of the job scheduler the service drives.
type Scheduler interface {
	Schedule(siteID int64, frequencyMinutes int) error
	Unschedule(siteID int64)
	TriggerNow(siteID int64, reason string) bool
	Next(siteID int64) (time.Time, bool)
}

// AddSiteInput is a request to start monitoring a site.
type AddSiteInput struct {
	URL          string             `json:"url" validate:"required"`
	SearchString string             `json:"search_string" validate:"required"`
	Frequency    int                `json:"frequency" validate:"gte=1"`
	DeviceType   monitor.DeviceType `json:"device_type" validate:"omitempty,oneof=desktop mobile"`
}

// SiteStatus pairs a site with its recent status trail, oldest first, and
// the next recurring run when one is scheduled.
type SiteStatus struct {
	monitor.Site
	Trail     []monitor.CheckLog `json:"trail"`
	NextCheck *time.Time         `json:"next_check,omitempty"`
}

// Dashboard is the aggregate view of every site.
type Dashboard struct {
	Sites      []SiteStatus       `json:"sites"`
	RecentLogs []monitor.CheckLog `json:"recent_logs"`
	SiteURLs   map[int64]string   `json:"site_urls"`
}

// Service coordinates site mutations.
type Service struct {
	store    monitor.Store
	sched    Scheduler
	validate *validator.Validate
	logger   *zap.Logger
}

// New builds a Service.
func New(store monitor.Store, sched Scheduler, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Service{
		store:    store,
		sched:    sched,
		validate: v,
		logger:   logger.Named("service"),
	}
}

// AddSite validates and stores the site, registers its recurring entry, and
// submits one immediate probe.
func (s *Service) AddSite(ctx context.Context, in AddSiteInput) (monitor.Site, error) {
	in.URL = strings.TrimSpace(in.URL)
	if err := s.validate.Struct(in); err != nil {
		return monitor.Site{}, fmt.Errorf("%w: %s", monitor.ErrInvalidSite, describe(err))
	}
	normalized, err := monitor.NormalizeURL(in.URL)
	if err != nil {
		return monitor.Site{}, err
	}
	device := in.DeviceType
	if device == "" {
		device = monitor.DeviceDesktop
	}
	site, err := s.store.CreateSite(ctx, monitor.Site{
		URL:          normalized,
		SearchString: in.SearchString,
		Frequency:    in.Frequency,
		DeviceType:   device,
		LastStatus:   monitor.StatusPending,
	})
	if err != nil {
		return monitor.Site{}, fmt.Errorf("create site: %w", err)
	}
	if err := s.sched.Schedule(site.ID, site.Frequency); err != nil {
		return site, fmt.Errorf("schedule site: %w", err)
	}
	s.sched.TriggerNow(site.ID, "add")
	s.logger.Info("site added",
		zap.Int64("site_id", site.ID),
		zap.String("url", site.URL),
		zap.Int("frequency", site.Frequency),
		zap.String("device", string(site.DeviceType)),
	)
	return site, nil
}

// DeleteSite removes the site with its history and cancels the recurring
// entry. Deleting a missing site succeeds.
//
// The row goes first so that a concurrent UpdateFrequency either fails in the
// store or sees the site missing after it reschedules.
func (s *Service) DeleteSite(ctx context.Context, id int64) error {
	err := s.store.DeleteSite(ctx, id)
	if err != nil && !errors.Is(err, monitor.ErrNotFound) {
		return fmt.Errorf("delete site: %w", err)
	}
	s.sched.Unschedule(id)
	if err == nil {
		s.logger.Info("site deleted", zap.Int64("site_id", id))
	}
	return nil
}

// CheckNow submits an ad-hoc probe. It reports false when the trigger was
// dropped because the worker queue is full.
func (s *Service) CheckNow(_ context.Context, id int64) bool {
	return s.sched.TriggerNow(id, "check_now")
}

// UpdateFrequency persists the new interval and replaces the recurring entry.
func (s *Service) UpdateFrequency(ctx context.Context, id int64, minutes int) (monitor.Site, error) {
	if minutes < 1 {
		return monitor.Site{}, fmt.Errorf("%w: frequency must be at least 1 minute", monitor.ErrInvalidSite)
	}
	site, err := s.store.UpdateFrequency(ctx, id, minutes)
	if err != nil {
		return monitor.Site{}, fmt.Errorf("update frequency: %w", err)
	}
	if err := s.sched.Schedule(site.ID, site.Frequency); err != nil {
		return site, fmt.Errorf("reschedule site: %w", err)
	}
	// A delete may have landed between the update and the reschedule.
	if _, err := s.store.GetSite(ctx, id); errors.Is(err, monitor.ErrNotFound) {
		s.sched.Unschedule(id)
		return monitor.Site{}, fmt.Errorf("update frequency: %w", err)
	}
	return site, nil
}

// ListSites returns every registered site.
func (s *Service) ListSites(ctx context.Context) ([]monitor.Site, error) {
	sites, err := s.store.ListSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	return sites, nil
}

// GetSite returns one site.
func (s *Service) GetSite(ctx context.Context, id int64) (monitor.Site, error) {
	site, err := s.store.GetSite(ctx, id)
	if err != nil {
		return monitor.Site{}, fmt.Errorf("get site: %w", err)
	}
	return site, nil
}

// Dashboard returns all sites with their trails, the newest logLimit rows
// overall, and an id to url lookup for rendering those rows. Non-positive
// limits fall back to the defaults.
func (s *Service) Dashboard(ctx context.Context, logLimit, trail int) (Dashboard, error) {
	if logLimit <= 0 {
		logLimit = DefaultLogLimit
	}
	if trail <= 0 {
		trail = DefaultTrailLimit
	}
	sites, err := s.store.ListSites(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("list sites: %w", err)
	}
	logs, err := s.store.RecentLogs(ctx, logLimit)
	if err != nil {
		return Dashboard{}, fmt.Errorf("recent logs: %w", err)
	}
	out := Dashboard{
		Sites:      make([]SiteStatus, 0, len(sites)),
		RecentLogs: logs,
		SiteURLs:   make(map[int64]string, len(sites)),
	}
	for _, site := range sites {
		history, err := s.store.SiteHistory(ctx, site.ID, trail)
		if err != nil {
			return Dashboard{}, fmt.Errorf("site %d history: %w", site.ID, err)
		}
		status := SiteStatus{Site: site, Trail: history}
		if next, ok := s.sched.Next(site.ID); ok && !next.IsZero() {
			status.NextCheck = &next
		}
		out.Sites = append(out.Sites, status)
		out.SiteURLs[site.ID] = site.URL
	}
	return out, nil
}

// SiteHistory returns up to limit rows for one site, oldest first.
func (s *Service) SiteHistory(ctx context.Context, id int64, limit int) ([]monitor.CheckLog, error) {
	if limit <= 0 {
		limit = DefaultHistory
	}
	if _, err := s.store.GetSite(ctx, id); err != nil {
		return nil, fmt.Errorf("get site: %w", err)
	}
	logs, err := s.store.SiteHistory(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("site history: %w", err)
	}
	return logs, nil
}

// Bootstrap registers a recurring entry for every stored site. Sites with an
// unusable frequency are logged and skipped.
func (s *Service) Bootstrap(ctx context.Context) (int, error) {
	sites, err := s.store.ListSites(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sites: %w", err)
	}
	scheduled := 0
	for _, site := range sites {
		if err := s.sched.Schedule(site.ID, site.Frequency); err != nil {
			s.logger.Warn("skip site on bootstrap",
				zap.Int64("site_id", site.ID),
				zap.Int("frequency", site.Frequency),
				zap.Error(err),
			)
			continue
		}
		scheduled++
	}
	s.logger.Info("recurring entries restored", zap.Int("sites", scheduled))
	return scheduled, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "gte":
			parts = append(parts, field+" must be at least "+fe.Param())
		case "oneof":
			parts = append(parts, field+" must be one of "+fe.Param())
		default:
			parts = append(parts, field+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}
