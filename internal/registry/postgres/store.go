// Package postgres provides a Postgres-backed monitor.Store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

const (
	siteColumns = `id, url, search_string, frequency, device_type, last_status, last_check, screenshot_path, created_at`
	logColumns  = `id, site_id, checked_at, status, screenshot_path`

	foreignKeyViolation = "23503"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the store uses; pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store persists sites and check logs in Postgres.
type Store struct {
	pool pool
}

// New creates a Store connected with the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// CreateSite inserts a site and returns it with its assigned ID.
func (s *Store) CreateSite(ctx context.Context, site monitor.Site) (monitor.Site, error) {
	if site.LastStatus == "" {
		site.LastStatus = monitor.StatusPending
	}
	if site.CreatedAt.IsZero() {
		site.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO sites (url, search_string, frequency, device_type, last_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id;
	`
	err := s.pool.QueryRow(ctx, query,
		site.URL, site.SearchString, site.Frequency, string(site.DeviceType), site.LastStatus, site.CreatedAt,
	).Scan(&site.ID)
	if err != nil {
		return monitor.Site{}, fmt.Errorf("insert site: %w", err)
	}
	return site, nil
}

// GetSite loads one site.
func (s *Store) GetSite(ctx context.Context, id int64) (monitor.Site, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1;`, id)
	site, err := scanSite(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return monitor.Site{}, monitor.ErrNotFound
		}
		return monitor.Site{}, fmt.Errorf("get site: %w", err)
	}
	return site, nil
}

// ListSites returns every site ordered by ID.
func (s *Store) ListSites(ctx context.Context) ([]monitor.Site, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var sites []monitor.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return sites, nil
}

// UpdateFrequency changes the recurrence of a site.
func (s *Store) UpdateFrequency(ctx context.Context, id int64, minutes int) (monitor.Site, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE sites SET frequency = $1 WHERE id = $2 RETURNING `+siteColumns+`;`, minutes, id)
	site, err := scanSite(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return monitor.Site{}, monitor.ErrNotFound
		}
		return monitor.Site{}, fmt.Errorf("update frequency: %w", err)
	}
	return site, nil
}

// DeleteSite removes the site's logs and then the site in one transaction.
func (s *Store) DeleteSite(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM check_logs WHERE site_id = $1;`, id); err != nil {
			return fmt.Errorf("delete site logs: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM sites WHERE id = $1;`, id)
		if err != nil {
			return fmt.Errorf("delete site: %w", err)
		}
		if tag.RowsAffected() == 0 {
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
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE sites
			SET last_status = $1, last_check = $2, screenshot_path = $3
			WHERE id = $4;
		`, result.Status, result.CheckedAt, result.ScreenshotPath, siteID)
		if err != nil {
			return fmt.Errorf("update site status: %w", err)
		}
		if tag.RowsAffected() == 0 {
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
	if err := insertLog(ctx, s.pool, &entry); err != nil {
		return monitor.CheckLog{}, err
	}
	return entry, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertLog(ctx context.Context, q rowQuerier, entry *monitor.CheckLog) error {
	err := q.QueryRow(ctx, `
		INSERT INTO check_logs (site_id, checked_at, status, screenshot_path)
		VALUES ($1, $2, $3, $4)
		RETURNING id;
	`, entry.SiteID, entry.Timestamp, entry.Status, entry.ScreenshotPath).Scan(&entry.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return monitor.ErrNotFound
		}
		return fmt.Errorf("insert check log: %w", err)
	}
	return nil
}

// RecentLogs returns the newest rows across all sites.
func (s *Store) RecentLogs(ctx context.Context, limit int) ([]monitor.CheckLog, error) {
	return s.queryLogs(ctx, `
		SELECT `+logColumns+` FROM check_logs
		ORDER BY checked_at DESC, id DESC
		LIMIT $1;
	`, limit)
}

// SiteHistory returns the newest limit rows of one site, oldest first.
func (s *Store) SiteHistory(ctx context.Context, siteID int64, limit int) ([]monitor.CheckLog, error) {
	logs, err := s.queryLogs(ctx, `
		SELECT `+logColumns+` FROM check_logs
		WHERE site_id = $1
		ORDER BY checked_at DESC, id DESC
		LIMIT $2;
	`, siteID, limit)
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
	tag, err := s.pool.Exec(ctx, `DELETE FROM check_logs WHERE checked_at < $1;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) queryLogs(ctx context.Context, query string, args ...any) ([]monitor.CheckLog, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var logs []monitor.CheckLog
	for rows.Next() {
		var entry monitor.CheckLog
		if err := rows.Scan(&entry.ID, &entry.SiteID, &entry.Timestamp, &entry.Status, &entry.ScreenshotPath); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}
	return logs, nil
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanSite(row pgx.Row) (monitor.Site, error) {
	var (
		site   monitor.Site
		device string
	)
	err := row.Scan(
		&site.ID,
		&site.URL,
		&site.SearchString,
		&site.Frequency,
		&device,
		&site.LastStatus,
		&site.LastCheck,
		&site.ScreenshotPath,
		&site.CreatedAt,
	)
	if err != nil {
		return monitor.Site{}, err
	}
	site.DeviceType = monitor.DeviceType(device)
	return site, nil
}
