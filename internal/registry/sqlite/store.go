// Package sqlite provides a single-file monitor.Store on modernc's pure-Go
// SQLite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const (
	siteColumns = `id, url, search_string, frequency, device_type, last_status, last_check, screenshot_path, created_at`
	logColumns  = `id, site_id, checked_at, status, screenshot_path`
)

const schema = `
CREATE TABLE IF NOT EXISTS sites (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	url             TEXT    NOT NULL,
	search_string   TEXT    NOT NULL,
	frequency       INTEGER NOT NULL,
	device_type     TEXT    NOT NULL DEFAULT 'desktop',
	last_status     TEXT    NOT NULL DEFAULT 'Pending',
	last_check      TEXT,
	screenshot_path TEXT    NOT NULL DEFAULT '',
	created_at      TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS check_logs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	site_id         INTEGER NOT NULL,
	checked_at      TEXT    NOT NULL,
	status          TEXT    NOT NULL,
	screenshot_path TEXT    NOT NULL DEFAULT '',
	FOREIGN KEY(site_id) REFERENCES sites(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_check_logs_site_checked_at ON check_logs (site_id, checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_check_logs_checked_at ON check_logs (checked_at);
`

// Config locates the database file.
type Config struct {
	Path string
}

// Store implements monitor.Store for SQLite.
type Store struct {
	db *sqlx.DB
}

// New opens (creating if needed) the database file and bootstraps the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	dsn := cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// NewWithDB wraps an existing handle without migrating (primarily for testing).
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

type siteRow struct {
	ID             int64          `db:"id"`
	URL            string         `db:"url"`
	SearchString   string         `db:"search_string"`
	Frequency      int            `db:"frequency"`
	DeviceType     string         `db:"device_type"`
	LastStatus     string         `db:"last_status"`
	LastCheck      sql.NullString `db:"last_check"`
	ScreenshotPath string         `db:"screenshot_path"`
	CreatedAt      string         `db:"created_at"`
}

func (r siteRow) site() (monitor.Site, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return monitor.Site{}, err
	}
	site := monitor.Site{
		ID:             r.ID,
		URL:            r.URL,
		SearchString:   r.SearchString,
		Frequency:      r.Frequency,
		DeviceType:     monitor.DeviceType(r.DeviceType),
		LastStatus:     r.LastStatus,
		ScreenshotPath: r.ScreenshotPath,
		CreatedAt:      created,
	}
	if r.LastCheck.Valid {
		checked, err := parseTime(r.LastCheck.String)
		if err != nil {
			return monitor.Site{}, err
		}
		site.LastCheck = &checked
	}
	return site, nil
}

type logRow struct {
	ID             int64  `db:"id"`
	SiteID         int64  `db:"site_id"`
	CheckedAt      string `db:"checked_at"`
	Status         string `db:"status"`
	ScreenshotPath string `db:"screenshot_path"`
}

// CreateSite inserts a site and returns it with its assigned ID.
func (s *Store) CreateSite(ctx context.Context, site monitor.Site) (monitor.Site, error) {
	if site.LastStatus == "" {
		site.LastStatus = monitor.StatusPending
	}
	if site.CreatedAt.IsZero() {
		site.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO sites (url, search_string, frequency, device_type, last_status, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		site.URL, site.SearchString, site.Frequency, string(site.DeviceType), site.LastStatus, formatTime(site.CreatedAt))
	if err != nil {
		return monitor.Site{}, fmt.Errorf("insert site: %w", err)
	}
	site.ID, err = res.LastInsertId()
	if err != nil {
		return monitor.Site{}, fmt.Errorf("read site id: %w", err)
	}
	return site, nil
}

// GetSite loads one site.
func (s *Store) GetSite(ctx context.Context, id int64) (monitor.Site, error) {
	var row siteRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+siteColumns+` FROM sites WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return monitor.Site{}, monitor.ErrNotFound
		}
		return monitor.Site{}, fmt.Errorf("get site: %w", err)
	}
	return row.site()
}

// ListSites returns every site ordered by ID.
func (s *Store) ListSites(ctx context.Context) ([]monitor.Site, error) {
	var rows []siteRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+siteColumns+` FROM sites ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	sites := make([]monitor.Site, 0, len(rows))
	for _, row := range rows {
		site, err := row.site()
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, nil
}

// UpdateFrequency changes the recurrence of a site.
func (s *Store) UpdateFrequency(ctx context.Context, id int64, minutes int) (monitor.Site, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE sites SET frequency = ? WHERE id = ?`, minutes, id)
	if err != nil {
		return monitor.Site{}, fmt.Errorf("update frequency: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return monitor.Site{}, monitor.ErrNotFound
	}
	return s.GetSite(ctx, id)
}

// DeleteSite removes the site's logs and then the site in one transaction.
func (s *Store) DeleteSite(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM check_logs WHERE site_id = ?`, id); err != nil {
			return fmt.Errorf("delete site logs: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sites WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete site: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return monitor.ErrNotFound
		}
		return nil
	})
}

// RecordProbe updates the site's latest-status fields and appends the log
// row in one transaction.
func (s *Store) RecordProbe(ctx context.Context, siteID int64, result monitor.ProbeResult) (monitor.CheckLog, error) {
	entry := monitor.CheckLog{
		SiteID:         siteID,
		Timestamp:      result.CheckedAt,
		Status:         result.Status,
		ScreenshotPath: result.ScreenshotPath,
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE sites SET last_status = ?, last_check = ?, screenshot_path = ?
WHERE id = ?`, result.Status, formatTime(result.CheckedAt), result.ScreenshotPath, siteID)
		if err != nil {
			return fmt.Errorf("update site status: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return monitor.ErrNotFound
		}
		return insertLog(ctx, tx, &entry)
	})
	if err != nil {
		return monitor.CheckLog{}, err
	}
	return entry, nil
}

// AppendLog inserts a log row without touching the site.
func (s *Store) AppendLog(ctx context.Context, entry monitor.CheckLog) (monitor.CheckLog, error) {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var exists int
		if err := tx.GetContext(ctx, &exists, `SELECT 1 FROM sites WHERE id = ?`, entry.SiteID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return monitor.ErrNotFound
			}
			return fmt.Errorf("check site: %w", err)
		}
		return insertLog(ctx, tx, &entry)
	})
	if err != nil {
		return monitor.CheckLog{}, err
	}
	return entry, nil
}

func insertLog(ctx context.Context, tx *sqlx.Tx, entry *monitor.CheckLog) error {
	res, err := tx.ExecContext(ctx, `
INSERT INTO check_logs (site_id, checked_at, status, screenshot_path)
VALUES (?, ?, ?, ?)`, entry.SiteID, formatTime(entry.Timestamp), entry.Status, entry.ScreenshotPath)
	if err != nil {
		return fmt.Errorf("insert check log: %w", err)
	}
	entry.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read check log id: %w", err)
	}
	return nil
}

// RecentLogs returns the newest rows across all sites.
func (s *Store) RecentLogs(ctx context.Context, limit int) ([]monitor.CheckLog, error) {
	return s.selectLogs(ctx, `SELECT `+logColumns+` FROM check_logs ORDER BY checked_at DESC, id DESC LIMIT ?`, limit)
}

// SiteHistory returns the newest limit rows of one site, oldest first.
func (s *Store) SiteHistory(ctx context.Context, siteID int64, limit int) ([]monitor.CheckLog, error) {
	logs, err := s.selectLogs(ctx, `
SELECT `+logColumns+` FROM check_logs
WHERE site_id = ?
ORDER BY checked_at DESC, id DESC
LIMIT ?`, siteID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	return logs, nil
}

// DeleteLogsBefore removes rows older than cutoff.
func (s *Store) DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM check_logs WHERE checked_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete old logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted logs: %w", err)
	}
	return n, nil
}

func (s *Store) selectLogs(ctx context.Context, query string, args ...any) ([]monitor.CheckLog, error) {
	var rows []logRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	logs := make([]monitor.CheckLog, 0, len(rows))
	for _, row := range rows {
		at, err := parseTime(row.CheckedAt)
		if err != nil {
			return nil, err
		}
		logs = append(logs, monitor.CheckLog{
			ID:             row.ID,
			SiteID:         row.SiteID,
			Timestamp:      at,
			Status:         row.Status,
			ScreenshotPath: row.ScreenshotPath,
		})
	}
	return logs, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}
