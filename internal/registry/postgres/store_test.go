package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

var siteColumnNames = []string{
	"id", "url", "search_string", "frequency", "device_type",
	"last_status", "last_check", "screenshot_path", "created_at",
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.ErrorContains(t, err, "database.dsn is required")
	_, err = NewWithPool(nil)
	require.Error(t, err)
}

func TestCreateSiteInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	created := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("INSERT INTO sites").
		WithArgs("https://example.com", "Welcome", 5, "desktop", monitor.StatusPending, created).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))

	site, err := store.CreateSite(context.Background(), monitor.Site{
		URL:          "https://example.com",
		SearchString: "Welcome",
		Frequency:    5,
		DeviceType:   monitor.DeviceDesktop,
		CreatedAt:    created,
	})
	require.NoError(t, err)
	require.Equal(t, int64(11), site.ID)
	require.Equal(t, monitor.StatusPending, site.LastStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSiteScansRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	created := time.Unix(1700000000, 0).UTC()
	checked := created.Add(time.Hour)

	mock.ExpectQuery("SELECT .+ FROM sites WHERE id").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows(siteColumnNames).
			AddRow(int64(3), "https://m.example.com", "Shop", 10, "mobile", "Healthy", &checked, "shot.png", created))

	site, err := store.GetSite(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, monitor.DeviceMobile, site.DeviceType)
	require.Equal(t, monitor.StatusHealthy, site.LastStatus)
	require.NotNil(t, site.LastCheck)
	require.Equal(t, checked, *site.LastCheck)
	require.Equal(t, "shot.png", site.ScreenshotPath)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSiteNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .+ FROM sites WHERE id").
		WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetSite(context.Background(), 9)
	require.ErrorIs(t, err, monitor.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListSites(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	created := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT .+ FROM sites ORDER BY id").
		WillReturnRows(pgxmock.NewRows(siteColumnNames).
			AddRow(int64(1), "https://a.example", "A", 1, "desktop", "Pending", (*time.Time)(nil), "", created).
			AddRow(int64(2), "https://b.example", "B", 2, "mobile", "Pending", (*time.Time)(nil), "", created))

	sites, err := store.ListSites(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 2)
	require.Nil(t, sites[0].LastCheck)
	require.Equal(t, monitor.DeviceMobile, sites[1].DeviceType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateFrequencyNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("UPDATE sites SET frequency").
		WithArgs(15, int64(4)).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.UpdateFrequency(context.Background(), 4, 15)
	require.ErrorIs(t, err, monitor.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordProbeCommitsUpdateAndInsert(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	checked := time.Unix(1700000500, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE sites").
		WithArgs("Down (500)", checked, "site_1.png", int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("INSERT INTO check_logs").
		WithArgs(int64(1), checked, "Down (500)", "site_1.png").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectCommit()

	entry, err := store.RecordProbe(context.Background(), 1, monitor.ProbeResult{
		Status:         "Down (500)",
		CheckedAt:      checked,
		ScreenshotPath: "site_1.png",
	})
	require.NoError(t, err)
	require.Equal(t, int64(42), entry.ID)
	require.Equal(t, "Down (500)", entry.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordProbeMissingSiteRollsBack(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	checked := time.Unix(1700000500, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE sites").
		WithArgs(monitor.StatusHealthy, checked, "", int64(8)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err := store.RecordProbe(context.Background(), 8, monitor.ProbeResult{Status: monitor.StatusHealthy, CheckedAt: checked})
	require.ErrorIs(t, err, monitor.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordProbeInsertFailureRollsBack(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	checked := time.Unix(1700000500, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE sites").
		WithArgs(monitor.StatusHealthy, checked, "", int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("INSERT INTO check_logs").
		WithArgs(int64(1), checked, monitor.StatusHealthy, "").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := store.RecordProbe(context.Background(), 1, monitor.ProbeResult{Status: monitor.StatusHealthy, CheckedAt: checked})
	require.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendLogForeignKeyViolation(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Unix(1700000600, 0).UTC()
	mock.ExpectQuery("INSERT INTO check_logs").
		WithArgs(int64(5), at, "Error: boom", "").
		WillReturnError(&pgconn.PgError{Code: "23503"})

	_, err := store.AppendLog(context.Background(), monitor.CheckLog{SiteID: 5, Timestamp: at, Status: "Error: boom"})
	require.ErrorIs(t, err, monitor.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSiteCascades(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM check_logs WHERE site_id").
		WithArgs(int64(2)).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("DELETE FROM sites WHERE id").
		WithArgs(int64(2)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	require.NoError(t, store.DeleteSite(context.Background(), 2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSiteMissingRollsBack(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM check_logs WHERE site_id").
		WithArgs(int64(2)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM sites WHERE id").
		WithArgs(int64(2)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	require.ErrorIs(t, store.DeleteSite(context.Background(), 2), monitor.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteHistoryReturnsOldestFirst(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	base := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT .+ FROM check_logs\\s+WHERE site_id").
		WithArgs(int64(1), 5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "site_id", "checked_at", "status", "screenshot_path"}).
			AddRow(int64(3), int64(1), base.Add(2*time.Minute), "Healthy", "c.png").
			AddRow(int64(2), int64(1), base.Add(time.Minute), "String Missing", "b.png").
			AddRow(int64(1), int64(1), base, "Down (503)", "a.png"))

	logs, err := store.SiteHistory(context.Background(), 1, 5)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	require.Equal(t, int64(1), logs[0].ID)
	require.Equal(t, int64(3), logs[2].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteLogsBefore(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	cutoff := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("DELETE FROM check_logs WHERE checked_at").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := store.DeleteLogsBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
