// Package registrytest holds behavior tests shared by every monitor.Store
// backend.
package registrytest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

// Run exercises a fresh store returned by newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) monitor.Store) {
	t.Helper()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	create := func(t *testing.T, store monitor.Store, url string) monitor.Site {
		t.Helper()
		site, err := store.CreateSite(ctx, monitor.Site{
			URL:          url,
			SearchString: "Welcome",
			Frequency:    5,
			DeviceType:   monitor.DeviceDesktop,
			CreatedAt:    base,
		})
		require.NoError(t, err)
		return site
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		store := newStore(t)
		site := create(t, store, "https://example.com")
		require.NotZero(t, site.ID)
		require.Equal(t, monitor.StatusPending, site.LastStatus)
		require.Nil(t, site.LastCheck)

		got, err := store.GetSite(ctx, site.ID)
		require.NoError(t, err)
		require.Equal(t, "https://example.com", got.URL)
		require.Equal(t, "Welcome", got.SearchString)
		require.Equal(t, 5, got.Frequency)
		require.Equal(t, monitor.DeviceDesktop, got.DeviceType)
		require.True(t, base.Equal(got.CreatedAt))

		_, err = store.GetSite(ctx, site.ID+100)
		require.True(t, errors.Is(err, monitor.ErrNotFound))
	})

	t.Run("ListOrderedByID", func(t *testing.T) {
		store := newStore(t)
		a := create(t, store, "https://a.example")
		b := create(t, store, "https://b.example")
		sites, err := store.ListSites(ctx)
		require.NoError(t, err)
		require.Len(t, sites, 2)
		require.Equal(t, a.ID, sites[0].ID)
		require.Equal(t, b.ID, sites[1].ID)
	})

	t.Run("UpdateFrequency", func(t *testing.T) {
		store := newStore(t)
		site := create(t, store, "https://example.com")
		updated, err := store.UpdateFrequency(ctx, site.ID, 15)
		require.NoError(t, err)
		require.Equal(t, 15, updated.Frequency)

		_, err = store.UpdateFrequency(ctx, site.ID+100, 15)
		require.True(t, errors.Is(err, monitor.ErrNotFound))
	})

	t.Run("RecordProbeUpdatesSiteAndAppendsLog", func(t *testing.T) {
		store := newStore(t)
		site := create(t, store, "https://example.com")
		checked := base.Add(time.Minute)

		entry, err := store.RecordProbe(ctx, site.ID, monitor.ProbeResult{
			Status:         monitor.StatusHealthy,
			CheckedAt:      checked,
			ScreenshotPath: "site_1.png",
		})
		require.NoError(t, err)
		require.NotZero(t, entry.ID)
		require.Equal(t, site.ID, entry.SiteID)
		require.Equal(t, monitor.StatusHealthy, entry.Status)

		got, err := store.GetSite(ctx, site.ID)
		require.NoError(t, err)
		require.Equal(t, monitor.StatusHealthy, got.LastStatus)
		require.NotNil(t, got.LastCheck)
		require.True(t, checked.Equal(*got.LastCheck))
		require.Equal(t, "site_1.png", got.ScreenshotPath)

		history, err := store.SiteHistory(ctx, site.ID, 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
	})

	t.Run("RecordProbeMissingSite", func(t *testing.T) {
		store := newStore(t)
		_, err := store.RecordProbe(ctx, 4242, monitor.ProbeResult{Status: monitor.StatusHealthy, CheckedAt: base})
		require.True(t, errors.Is(err, monitor.ErrNotFound))
		logs, err := store.RecentLogs(ctx, 10)
		require.NoError(t, err)
		require.Empty(t, logs)
	})

	t.Run("AppendLogLeavesSiteUntouched", func(t *testing.T) {
		store := newStore(t)
		site := create(t, store, "https://example.com")
		_, err := store.AppendLog(ctx, monitor.CheckLog{SiteID: site.ID, Timestamp: base, Status: "Error: boom"})
		require.NoError(t, err)

		got, err := store.GetSite(ctx, site.ID)
		require.NoError(t, err)
		require.Equal(t, monitor.StatusPending, got.LastStatus)
		require.Nil(t, got.LastCheck)

		logs, err := store.RecentLogs(ctx, 10)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		require.Equal(t, "Error: boom", logs[0].Status)
		require.Empty(t, logs[0].ScreenshotPath)
	})

	t.Run("RecentLogsAndHistoryOrdering", func(t *testing.T) {
		store := newStore(t)
		a := create(t, store, "https://a.example")
		b := create(t, store, "https://b.example")
		for i := 0; i < 7; i++ {
			_, err := store.RecordProbe(ctx, a.ID, monitor.ProbeResult{
				Status:    monitor.DownStatus(string(rune('0' + i))),
				CheckedAt: base.Add(time.Duration(i) * time.Minute),
			})
			require.NoError(t, err)
		}
		_, err := store.RecordProbe(ctx, b.ID, monitor.ProbeResult{Status: monitor.StatusHealthy, CheckedAt: base.Add(time.Hour)})
		require.NoError(t, err)

		recent, err := store.RecentLogs(ctx, 3)
		require.NoError(t, err)
		require.Len(t, recent, 3)
		require.Equal(t, b.ID, recent[0].SiteID)
		require.Equal(t, "Down (6)", recent[1].Status)
		require.Equal(t, "Down (5)", recent[2].Status)

		trail, err := store.SiteHistory(ctx, a.ID, 5)
		require.NoError(t, err)
		require.Len(t, trail, 5)
		require.Equal(t, "Down (2)", trail[0].Status, "trail must start at the oldest of the newest five")
		require.Equal(t, "Down (6)", trail[4].Status)
	})

	t.Run("DeleteSiteCascades", func(t *testing.T) {
		store := newStore(t)
		site := create(t, store, "https://example.com")
		other := create(t, store, "https://other.example")
		for i := 0; i < 3; i++ {
			_, err := store.RecordProbe(ctx, site.ID, monitor.ProbeResult{Status: monitor.StatusHealthy, CheckedAt: base})
			require.NoError(t, err)
		}
		_, err := store.RecordProbe(ctx, other.ID, monitor.ProbeResult{Status: monitor.StatusHealthy, CheckedAt: base})
		require.NoError(t, err)

		require.NoError(t, store.DeleteSite(ctx, site.ID))
		_, err = store.GetSite(ctx, site.ID)
		require.True(t, errors.Is(err, monitor.ErrNotFound))

		history, err := store.SiteHistory(ctx, site.ID, 10)
		require.NoError(t, err)
		require.Empty(t, history)
		recent, err := store.RecentLogs(ctx, 10)
		require.NoError(t, err)
		require.Len(t, recent, 1)

		require.True(t, errors.Is(store.DeleteSite(ctx, site.ID), monitor.ErrNotFound))
	})

	t.Run("DeleteLogsBefore", func(t *testing.T) {
		store := newStore(t)
		site := create(t, store, "https://example.com")
		now := base.Add(30 * 24 * time.Hour)
		for _, age := range []time.Duration{10 * 24 * time.Hour, 8 * 24 * time.Hour, time.Hour} {
			_, err := store.RecordProbe(ctx, site.ID, monitor.ProbeResult{Status: monitor.StatusHealthy, CheckedAt: now.Add(-age)})
			require.NoError(t, err)
		}
		cutoff := now.Add(-7 * 24 * time.Hour)

		removed, err := store.DeleteLogsBefore(ctx, cutoff)
		require.NoError(t, err)
		require.Equal(t, int64(2), removed)

		removed, err = store.DeleteLogsBefore(ctx, cutoff)
		require.NoError(t, err)
		require.Zero(t, removed)

		left, err := store.SiteHistory(ctx, site.ID, 10)
		require.NoError(t, err)
		require.Len(t, left, 1)
		require.False(t, left[0].Timestamp.Before(cutoff))
	})
}
