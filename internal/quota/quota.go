// Package quota tracks per-principal request and token usage against hourly
// and daily ceilings. Counters live in memory and reset on restart.
package quota

import (
	"fmt"
	"sync"
	"time"
)

// Limits are the configured ceilings. A zero limit means unlimited.
type Limits struct {
	RequestsPerHour int `yaml:"max_requests_per_hour"`
	TokensPerDay    int `yaml:"max_tokens_per_day"`
	WarningPercent  int `yaml:"warning_threshold"`
}

// DefaultLimits returns the stock ceilings.
func DefaultLimits() Limits {
	return Limits{
		RequestsPerHour: 100,
		TokensPerDay:    1_000_000,
		WarningPercent:  80,
	}
}

// Usage is a principal's counters. Windowed counters are reset when their
// window elapses, never decremented.
type Usage struct {
	Requests       int
	Tokens         int
	HourlyRequests int
	DailyTokens    int
	HourStart      time.Time
	DayStart       time.Time
	LastSeen       time.Time
}

// Admission is the verdict of CheckAdmission.
type Admission struct {
	Allowed bool
	Warning bool
	Reason  string
}

// Status is a snapshot used by /status.
type Status struct {
	Usage
	Limits         Limits
	RequestPercent float64
	TokenPercent   float64
	NextHourly     time.Time
	NextDaily      time.Time
	Now            time.Time
}

// Tracker holds usage for every principal. It is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	limits Limits
	usage  map[string]*Usage
	now    func() time.Time
}

// NewTracker creates a tracker. Negative limits are treated as unlimited and
// a warning threshold outside 1..100 falls back to the default.
func NewTracker(limits Limits) *Tracker {
	if limits.RequestsPerHour < 0 {
		limits.RequestsPerHour = 0
	}
	if limits.TokensPerDay < 0 {
		limits.TokensPerDay = 0
	}
	if limits.WarningPercent <= 0 || limits.WarningPercent > 100 {
		limits.WarningPercent = DefaultLimits().WarningPercent
	}
	return &Tracker{
		limits: limits,
		usage:  make(map[string]*Usage),
		now:    time.Now,
	}
}

// SetNow overrides the clock. Intended for tests.
func (t *Tracker) SetNow(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Limits returns the configured limits.
func (t *Tracker) Limits() Limits { return t.limits }

// CheckAdmission decides whether principal may start a new turn.
func (t *Tracker) CheckAdmission(principal string) Admission {
	t.mu.Lock()
	defer t.mu.Unlock()

	u := t.touch(principal)
	l := t.limits

	if l.RequestsPerHour > 0 && u.HourlyRequests >= l.RequestsPerHour {
		return Admission{Reason: fmt.Sprintf("quota exceeded: hourly request limit (%d requests/hour)", l.RequestsPerHour)}
	}
	if l.TokensPerDay > 0 && u.DailyTokens >= l.TokensPerDay {
		return Admission{Reason: fmt.Sprintf("quota exceeded: daily token limit (%d tokens/day)", l.TokensPerDay)}
	}

	warn := float64(l.WarningPercent)
	return Admission{
		Allowed: true,
		Warning: percent(u.HourlyRequests, l.RequestsPerHour) >= warn || percent(u.DailyTokens, l.TokensPerDay) >= warn,
	}
}

// RecordRequest counts one admitted turn.
func (t *Tracker) RecordRequest(principal string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	u := t.touch(principal)
	u.Requests++
	u.HourlyRequests++
}

// RecordTokens adds n tokens. Non-positive n is ignored.
func (t *Tracker) RecordTokens(principal string, n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	u := t.touch(principal)
	u.Tokens += n
	u.DailyTokens += n
}

// Status returns a snapshot of principal's usage.
func (t *Tracker) Status(principal string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	u := t.touch(principal)
	return Status{
		Usage:          *u,
		Limits:         t.limits,
		RequestPercent: percent(u.HourlyRequests, t.limits.RequestsPerHour),
		TokenPercent:   percent(u.DailyTokens, t.limits.TokensPerDay),
		NextHourly:     u.HourStart.Add(time.Hour),
		NextDaily:      u.DayStart.Add(24 * time.Hour),
		Now:            u.LastSeen,
	}
}

// Reset forgets principal's usage.
func (t *Tracker) Reset(principal string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.usage, principal)
}

// Prune drops principals not seen for maxIdle and returns how many went.
func (t *Tracker) Prune(maxIdle time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-maxIdle)
	removed := 0
	for p, u := range t.usage {
		if u.LastSeen.Before(cutoff) {
			delete(t.usage, p)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked principals.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.usage)
}

// touch returns principal's usage after rolling any elapsed window.
// The caller must hold t.mu.
func (t *Tracker) touch(principal string) *Usage {
	now := t.now()
	u, ok := t.usage[principal]
	if !ok {
		u = &Usage{HourStart: now, DayStart: now}
		t.usage[principal] = u
	}
	if now.Sub(u.HourStart) >= time.Hour {
		u.HourlyRequests = 0
		u.HourStart = now
	}
	if now.Sub(u.DayStart) >= 24*time.Hour {
		u.DailyTokens = 0
		u.DayStart = now
	}
	u.LastSeen = now
	return u
}

func percent(n, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(n) / float64(limit) * 100
}
