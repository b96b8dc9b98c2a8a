package monitor

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a site does not exist (or no longer exists).
	ErrNotFound = errors.New("site not found")
	// ErrProbeInFlight is returned when a probe for the same site is still running.
	ErrProbeInFlight = errors.New("probe already in flight")
	// ErrScreenshotUnsupported is returned by sessions that cannot render pixels.
	ErrScreenshotUnsupported = errors.New("screenshot not supported by session")
	// ErrInvalidSite is returned when a site definition fails validation.
	ErrInvalidSite = errors.New("invalid site")
)

// NavigationError reports a navigation the browser itself declared failed,
// e.g. a DNS failure or a refused connection. No document response exists.
type NavigationError struct {
	URL    string
	Reason string
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s: %s", e.URL, e.Reason)
}
