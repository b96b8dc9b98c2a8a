package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitewatch/internal/monitor"
	"github.com/JakeFAU/sitewatch/internal/registry/memory"
)

type fakeScheduler struct {
	mu          sync.Mutex
	entries     map[int64]int
	triggers    []int64
	reasons     []string
	scheduleErr error
	dropAll     bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{entries: make(map[int64]int)}
}

func (f *fakeScheduler) Schedule(siteID int64, minutes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scheduleErr != nil {
		return f.scheduleErr
	}
	if minutes < 1 {
		return errors.New("invalid frequency")
	}
	f.entries[siteID] = minutes
	return nil
}

func (f *fakeScheduler) Unschedule(siteID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, siteID)
}

func (f *fakeScheduler) Next(siteID int64) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	minutes, ok := f.entries[siteID]
	if !ok {
		return time.Time{}, false
	}
	return nextBase.Add(time.Duration(minutes) * time.Minute), true
}

func (f *fakeScheduler) TriggerNow(siteID int64, reason string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dropAll {
		return false
	}
	f.triggers = append(f.triggers, siteID)
	f.reasons = append(f.reasons, reason)
	return true
}

var nextBase = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *memory.Store, *fakeScheduler) {
	t.Helper()
	store := memory.New()
	sched := newFakeScheduler()
	return New(store, sched, nil), store, sched
}

func TestAddSiteNormalizesSchedulesAndTriggers(t *testing.T) {
	t.Parallel()

	svc, store, sched := newService(t)
	site, err := svc.AddSite(context.Background(), AddSiteInput{
		URL:          "  example.com ",
		SearchString: "Welcome",
		Frequency:    5,
	})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", site.URL)
	assert.Equal(t, monitor.DeviceDesktop, site.DeviceType)
	assert.Equal(t, monitor.StatusPending, site.LastStatus)
	assert.Equal(t, 5, sched.entries[site.ID])
	assert.Equal(t, []int64{site.ID}, sched.triggers)
	assert.Equal(t, []string{"add"}, sched.reasons)

	stored, err := store.GetSite(context.Background(), site.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", stored.URL)
}

func TestAddSiteValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   AddSiteInput
		msg  string
	}{
		{"missing url", AddSiteInput{SearchString: "x", Frequency: 1}, "url is required"},
		{"blank url", AddSiteInput{URL: "   ", SearchString: "x", Frequency: 1}, "url is required"},
		{"missing search", AddSiteInput{URL: "example.com", Frequency: 1}, "search_string is required"},
		{"zero frequency", AddSiteInput{URL: "example.com", SearchString: "x"}, "frequency must be at least 1"},
		{"bad device", AddSiteInput{URL: "example.com", SearchString: "x", Frequency: 1, DeviceType: "tablet"}, "device_type must be one of"},
		{"no host", AddSiteInput{URL: "https://", SearchString: "x", Frequency: 1}, "no host"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc, store, sched := newService(t)
			_, err := svc.AddSite(context.Background(), tc.in)
			require.ErrorIs(t, err, monitor.ErrInvalidSite)
			require.ErrorContains(t, err, tc.msg)

			sites, err := store.ListSites(context.Background())
			require.NoError(t, err)
			assert.Empty(t, sites)
			assert.Empty(t, sched.triggers)
		})
	}
}

func TestAddSiteKeepsMobileDevice(t *testing.T) {
	t.Parallel()

	svc, _, _ := newService(t)
	site, err := svc.AddSite(context.Background(), AddSiteInput{
		URL: "http://m.example.com", SearchString: "x", Frequency: 2, DeviceType: monitor.DeviceMobile,
	})
	require.NoError(t, err)
	assert.Equal(t, "http://m.example.com", site.URL)
	assert.Equal(t, monitor.DeviceMobile, site.DeviceType)
}

func TestAddSiteScheduleFailure(t *testing.T) {
	t.Parallel()

	svc, _, sched := newService(t)
	sched.scheduleErr = errors.New("cron closed")

	_, err := svc.AddSite(context.Background(), AddSiteInput{URL: "example.com", SearchString: "x", Frequency: 1})
	require.ErrorContains(t, err, "schedule site")
	assert.Empty(t, sched.triggers)
}

func TestDeleteSiteCascadesAndIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store, sched := newService(t)
	site, err := svc.AddSite(ctx, AddSiteInput{URL: "example.com", SearchString: "x", Frequency: 1})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := store.AppendLog(ctx, monitor.CheckLog{SiteID: site.ID, Timestamp: time.Now(), Status: monitor.StatusHealthy})
		require.NoError(t, err)
	}

	require.NoError(t, svc.DeleteSite(ctx, site.ID))
	_, scheduled := sched.entries[site.ID]
	assert.False(t, scheduled)
	_, err = store.GetSite(ctx, site.ID)
	require.ErrorIs(t, err, monitor.ErrNotFound)
	logs, err := store.RecentLogs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)

	require.NoError(t, svc.DeleteSite(ctx, site.ID))
}

func TestCheckNowReportsDrop(t *testing.T) {
	t.Parallel()

	svc, _, sched := newService(t)
	assert.True(t, svc.CheckNow(context.Background(), 9))
	assert.Equal(t, []string{"check_now"}, sched.reasons)

	sched.dropAll = true
	assert.False(t, svc.CheckNow(context.Background(), 9))
}

func TestUpdateFrequencyReschedules(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _, sched := newService(t)
	site, err := svc.AddSite(ctx, AddSiteInput{URL: "example.com", SearchString: "x", Frequency: 1})
	require.NoError(t, err)

	updated, err := svc.UpdateFrequency(ctx, site.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, updated.Frequency)
	assert.Equal(t, 10, sched.entries[site.ID])
	assert.Len(t, sched.entries, 1)

	_, err = svc.UpdateFrequency(ctx, site.ID, 0)
	require.ErrorIs(t, err, monitor.ErrInvalidSite)

	_, err = svc.UpdateFrequency(ctx, 404, 3)
	require.ErrorIs(t, err, monitor.ErrNotFound)
}

// racingStore runs afterUpdate once the frequency change has committed.
type racingStore struct {
	*memory.Store
	afterUpdate func()
}

func (r *racingStore) UpdateFrequency(ctx context.Context, id int64, minutes int) (monitor.Site, error) {
	site, err := r.Store.UpdateFrequency(ctx, id, minutes)
	if err == nil && r.afterUpdate != nil {
		r.afterUpdate()
	}
	return site, err
}

func TestUpdateFrequencyRacingDeleteLeavesNoEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &racingStore{Store: memory.New()}
	sched := newFakeScheduler()
	svc := New(store, sched, nil)
	site, err := svc.AddSite(ctx, AddSiteInput{URL: "example.com", SearchString: "x", Frequency: 1})
	require.NoError(t, err)

	store.afterUpdate = func() { require.NoError(t, svc.DeleteSite(ctx, site.ID)) }
	_, err = svc.UpdateFrequency(ctx, site.ID, 10)
	require.ErrorIs(t, err, monitor.ErrNotFound)

	_, err = store.GetSite(ctx, site.ID)
	require.ErrorIs(t, err, monitor.ErrNotFound)
	assert.Empty(t, sched.entries)
}

func TestDashboardAggregates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store, sched := newService(t)
	a, err := svc.AddSite(ctx, AddSiteInput{URL: "a.example.com", SearchString: "x", Frequency: 1})
	require.NoError(t, err)
	b, err := svc.AddSite(ctx, AddSiteInput{URL: "b.example.com", SearchString: "x", Frequency: 1})
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		_, err := store.RecordProbe(ctx, a.ID, monitor.ProbeResult{
			Status: monitor.StatusHealthy, CheckedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	for i := 0; i < 10; i++ {
		_, err := store.RecordProbe(ctx, b.ID, monitor.ProbeResult{
			Status: monitor.StatusStringMissing, CheckedAt: base.Add(time.Duration(100+i) * time.Minute),
		})
		require.NoError(t, err)
	}

	sched.Unschedule(b.ID)

	dash, err := svc.Dashboard(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, dash.Sites, 2)
	require.NotNil(t, dash.Sites[0].NextCheck)
	assert.Equal(t, nextBase.Add(time.Minute), *dash.Sites[0].NextCheck)
	assert.Nil(t, dash.Sites[1].NextCheck)
	assert.Len(t, dash.RecentLogs, DefaultLogLimit)
	assert.Equal(t, b.ID, dash.RecentLogs[0].SiteID)
	assert.Equal(t, map[int64]string{a.ID: "https://a.example.com", b.ID: "https://b.example.com"}, dash.SiteURLs)

	trail := dash.Sites[0].Trail
	require.Len(t, trail, DefaultTrailLimit)
	assert.True(t, trail[0].Timestamp.Before(trail[len(trail)-1].Timestamp))
	assert.Equal(t, base.Add(7*time.Minute), trail[len(trail)-1].Timestamp)
}

func TestSiteHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store, _ := newService(t)
	_, err := svc.SiteHistory(ctx, 1, 5)
	require.ErrorIs(t, err, monitor.ErrNotFound)

	site, err := svc.AddSite(ctx, AddSiteInput{URL: "example.com", SearchString: "x", Frequency: 1})
	require.NoError(t, err)
	_, err = store.RecordProbe(ctx, site.ID, monitor.ProbeResult{Status: monitor.StatusHealthy, CheckedAt: time.Now()})
	require.NoError(t, err)

	logs, err := svc.SiteHistory(ctx, site.ID, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestBootstrapSchedulesStoredSites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	for _, freq := range []int{1, 5, 0} {
		_, err := store.CreateSite(ctx, monitor.Site{URL: "https://example.com", SearchString: "x", Frequency: freq, DeviceType: monitor.DeviceDesktop})
		require.NoError(t, err)
	}
	sched := newFakeScheduler()
	svc := New(store, sched, nil)

	n, err := svc.Bootstrap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, sched.entries, 2)
	assert.Empty(t, sched.triggers)
}
