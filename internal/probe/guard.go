package probe

import "sync"

// Guard ensures that only one probe per site is running at any given time.
type Guard struct {
	mu    sync.Mutex
	sites map[int64]struct{}
}

// NewGuard creates a new Guard.
func NewGuard() *Guard {
	return &Guard{sites: make(map[int64]struct{})}
}

// Acquire reports whether the caller now owns the slot for siteID.
func (g *Guard) Acquire(siteID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.sites[siteID]; busy {
		return false
	}
	g.sites[siteID] = struct{}{}
	return true
}

// Release frees the slot for siteID.
func (g *Guard) Release(siteID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sites, siteID)
}

// InFlight returns the number of sites currently being probed.
func (g *Guard) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sites)
}
