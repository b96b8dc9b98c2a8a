package monitor

import (
	"context"
	"time"
)

// Store persists sites and their check history. Every method runs in its own
// connection or transaction scope; implementations must be safe for
// concurrent use.
type Store interface {
	CreateSite(ctx context.Context, site Site) (Site, error)
	GetSite(ctx context.Context, id int64) (Site, error)
	ListSites(ctx context.Context) ([]Site, error)
	UpdateFrequency(ctx context.Context, id int64, minutes int) (Site, error)
	// DeleteSite removes the site and all of its log rows, or returns ErrNotFound.
	DeleteSite(ctx context.Context, id int64) error
	// RecordProbe updates the site's latest-status fields and appends a log
	// row in one commit. Returns ErrNotFound if the site vanished.
	RecordProbe(ctx context.Context, siteID int64, result ProbeResult) (CheckLog, error)
	// AppendLog inserts a log row without touching the site.
	AppendLog(ctx context.Context, entry CheckLog) (CheckLog, error)
	// RecentLogs returns the newest rows across all sites, newest first.
	RecentLogs(ctx context.Context, limit int) ([]CheckLog, error)
	// SiteHistory returns the newest rows for one site, oldest first.
	SiteHistory(ctx context.Context, siteID int64, limit int) ([]CheckLog, error)
	DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// Browser launches isolated sessions configured for a device profile.
type Browser interface {
	Launch(ctx context.Context, profile DeviceProfile) (Session, error)
}

// Session is one isolated browser context. Close must be safe to call on
// every exit path.
type Session interface {
	// Navigate loads url and waits for network activity to settle. A
	// *NavigationError means the browser declared the navigation failed.
	Navigate(ctx context.Context, url string) (Response, error)
	Content(ctx context.Context) (string, error)
	// Screenshot returns a full-page PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// ScreenshotStore persists screenshot bytes and returns the stored filename.
type ScreenshotStore interface {
	Save(ctx context.Context, siteID int64, takenAt time.Time, data []byte) (string, error)
}

// Notifier delivers a plain-text alert. Callers log and drop the error.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
