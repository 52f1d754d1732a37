package puller

import (
	"sync"
	"time"
)

// LagTracker remembers how far behind the master the last applied record was.
type LagTracker struct {
	mu         sync.RWMutex
	lag        time.Duration
	lastUpdate time.Time
}

// Update records lag = now - recordTime and stamps the update at now.
func (t *LagTracker) Update(recordTime, now time.Time) time.Duration {
	lag := now.Sub(recordTime)

	t.mu.Lock()
	t.lag = lag
	t.lastUpdate = now
	t.mu.Unlock()

	return lag
}

// Snapshot returns the last lag and when it was recorded.
func (t *LagTracker) Snapshot() (time.Duration, time.Time) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lag, t.lastUpdate
}
