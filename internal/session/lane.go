package session

import (
	"sync"
	"time"
)

// LaneLock serializes work per principal: turns for the same principal run
// one at a time while different principals proceed in parallel.
//
// A global mutex protects the lane map; each lane has its own mutex. The
// global mutex is held only to look up or create a lane.
type LaneLock struct {
	mu    sync.Mutex
	lanes map[string]*lane
	now   func() time.Time
}

// lane stores per-principal synchronization metadata.
// refs counts goroutines holding or waiting on the lane.
type lane struct {
	mu       sync.Mutex
	refs     int
	lastUsed time.Time
}

// NewLaneLock creates a ready-to-use LaneLock.
func NewLaneLock() *LaneLock {
	return &LaneLock{
		lanes: make(map[string]*lane),
		now:   time.Now,
	}
}

// Acquire locks the lane for principal, creating it if needed.
// The caller must call Release with the same principal when done.
func (l *LaneLock) Acquire(principal string) {
	l.mu.Lock()
	ln, ok := l.lanes[principal]
	if !ok {
		ln = &lane{}
		l.lanes[principal] = ln
	}
	ln.refs++
	l.mu.Unlock()

	// Lock outside the global mutex so other principals are not blocked.
	ln.mu.Lock()
}

// TryAcquire locks the lane only if nobody holds or waits on it.
func (l *LaneLock) TryAcquire(principal string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ln, ok := l.lanes[principal]
	if !ok {
		ln = &lane{}
		l.lanes[principal] = ln
	}
	if ln.refs > 0 {
		return false
	}
	ln.refs++
	ln.mu.Lock()
	return true
}

// Release unlocks the lane for principal.
func (l *LaneLock) Release(principal string) {
	l.mu.Lock()
	ln, ok := l.lanes[principal]
	if !ok {
		l.mu.Unlock()
		return
	}
	ln.refs--
	ln.lastUsed = l.now()
	l.mu.Unlock()

	ln.mu.Unlock()
}

// Busy reports whether a turn is running or queued for principal.
func (l *LaneLock) Busy(principal string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	ln, ok := l.lanes[principal]
	return ok && ln.refs > 0
}

// Cleanup drops lanes that are unused and idle for longer than maxIdle.
// It returns the number of lanes removed.
func (l *LaneLock) Cleanup(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxIdle)
	removed := 0
	for principal, ln := range l.lanes {
		if ln.refs == 0 && !ln.lastUsed.After(cutoff) {
			delete(l.lanes, principal)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked lanes.
func (l *LaneLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}
