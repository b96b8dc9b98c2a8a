// Package memory provides an in-memory monitor.Store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

// Store keeps sites and logs in maps guarded by a single mutex.
type Store struct {
	mu        sync.RWMutex
	sites     map[int64]monitor.Site
	logs      []monitor.CheckLog
	nextSite  int64
	nextLog   int64
	now       func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		sites: make(map[int64]monitor.Site),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateSite assigns an ID and stores the site.
func (s *Store) CreateSite(_ context.Context, site monitor.Site) (monitor.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSite++
	site.ID = s.nextSite
	if site.LastStatus == "" {
		site.LastStatus = monitor.StatusPending
	}
	if site.CreatedAt.IsZero() {
		site.CreatedAt = s.now()
	}
	s.sites[site.ID] = cloneSite(site)
	return cloneSite(site), nil
}

// GetSite returns the site or monitor.ErrNotFound.
func (s *Store) GetSite(_ context.Context, id int64) (monitor.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[id]
	if !ok {
		return monitor.Site{}, monitor.ErrNotFound
	}
	return cloneSite(site), nil
}

// ListSites returns all sites ordered by ID.
func (s *Store) ListSites(_ context.Context) ([]monitor.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.Site, 0, len(s.sites))
	for _, site := range s.sites {
		out = append(out, cloneSite(site))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateFrequency changes the recurrence of a site.
func (s *Store) UpdateFrequency(_ context.Context, id int64, minutes int) (monitor.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[id]
	if !ok {
		return monitor.Site{}, monitor.ErrNotFound
	}
	site.Frequency = minutes
	s.sites[id] = site
	return cloneSite(site), nil
}

// DeleteSite removes the site and its logs.
func (s *Store) DeleteSite(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[id]; !ok {
		return monitor.ErrNotFound
	}
	kept := s.logs[:0]
	for _, entry := range s.logs {
		if entry.SiteID != id {
			kept = append(kept, entry)
		}
	}
	s.logs = kept
	delete(s.sites, id)
	return nil
}

// RecordProbe updates the site and appends a log row under one lock.
func (s *Store) RecordProbe(_ context.Context, siteID int64, result monitor.ProbeResult) (monitor.CheckLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[siteID]
	if !ok {
		return monitor.CheckLog{}, monitor.ErrNotFound
	}
	checked := result.CheckedAt
	site.LastStatus = result.Status
	site.LastCheck = &checked
	site.ScreenshotPath = result.ScreenshotPath
	s.sites[siteID] = site
	return s.appendLocked(monitor.CheckLog{
		SiteID:         siteID,
		Timestamp:      result.CheckedAt,
		Status:         result.Status,
		ScreenshotPath: result.ScreenshotPath,
	}), nil
}

// AppendLog inserts a row for an existing site.
func (s *Store) AppendLog(_ context.Context, entry monitor.CheckLog) (monitor.CheckLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[entry.SiteID]; !ok {
		return monitor.CheckLog{}, monitor.ErrNotFound
	}
	return s.appendLocked(entry), nil
}

func (s *Store) appendLocked(entry monitor.CheckLog) monitor.CheckLog {
	s.nextLog++
	entry.ID = s.nextLog
	s.logs = append(s.logs, entry)
	return entry
}

// RecentLogs returns the newest rows across all sites.
func (s *Store) RecentLogs(_ context.Context, limit int) ([]monitor.CheckLog, error) {
	s.mu.RLock()
	out := append([]monitor.CheckLog(nil), s.logs...)
	s.mu.RUnlock()
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SiteHistory returns the newest limit rows of one site, oldest first.
func (s *Store) SiteHistory(_ context.Context, siteID int64, limit int) ([]monitor.CheckLog, error) {
	s.mu.RLock()
	var out []monitor.CheckLog
	for _, entry := range s.logs {
		if entry.SiteID == siteID {
			out = append(out, entry)
		}
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// DeleteLogsBefore drops rows with a timestamp before cutoff.
func (s *Store) DeleteLogsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	kept := s.logs[:0]
	for _, entry := range s.logs {
		if entry.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	s.logs = kept
	return removed, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func sortNewestFirst(logs []monitor.CheckLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].Timestamp.Equal(logs[j].Timestamp) {
			return logs[i].ID > logs[j].ID
		}
		return logs[i].Timestamp.After(logs[j].Timestamp)
	})
}

func cloneSite(site monitor.Site) monitor.Site {
	if site.LastCheck != nil {
		checked := *site.LastCheck
		site.LastCheck = &checked
	}
	return site
}
