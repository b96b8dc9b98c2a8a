package monitor

import "time"

// DeviceType selects the viewport and user-agent profile a probe runs with.
type DeviceType string

// Supported device types.
const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
)

// Valid reports whether d is a known device type.
func (d DeviceType) Valid() bool {
	switch d {
	case DeviceDesktop, DeviceMobile:
		return true
	default:
		return false
	}
}

// Site is a monitored target.
type Site struct {
	ID             int64      `json:"id" db:"id"`
	URL            string     `json:"url" db:"url"`
	SearchString   string     `json:"search_string" db:"search_string"`
	Frequency      int        `json:"frequency" db:"frequency"`
	DeviceType     DeviceType `json:"device_type" db:"device_type"`
	LastStatus     string     `json:"last_status" db:"last_status"`
	LastCheck      *time.Time `json:"last_check,omitempty" db:"last_check"`
	ScreenshotPath string     `json:"screenshot_path,omitempty" db:"screenshot_path"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// Interval returns the recurrence interval of the site.
func (s Site) Interval() time.Duration {
	return time.Duration(s.Frequency) * time.Minute
}

// CheckLog is one append-only record per completed probe attempt.
type CheckLog struct {
	ID             int64     `json:"id" db:"id"`
	SiteID         int64     `json:"site_id" db:"site_id"`
	Timestamp      time.Time `json:"timestamp" db:"checked_at"`
	Status         string    `json:"status" db:"status"`
	ScreenshotPath string    `json:"screenshot_path,omitempty" db:"screenshot_path"`
}

// ProbeResult is the classified outcome committed together with a site update.
type ProbeResult struct {
	Status         string
	CheckedAt      time.Time
	ScreenshotPath string
}

// Response is what a browser session observed for the main document.
type Response struct {
	URL        string
	StatusCode int
}
