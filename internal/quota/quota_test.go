package quota

import (
	"strings"
	"sync"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)}
}

func newTracker(l Limits, c *clock) *Tracker {
	tr := NewTracker(l)
	tr.SetNow(c.now)
	return tr
}

func TestTracker_HourlyCeilingAndRollover(t *testing.T) {
	t.Parallel()

	c := newClock()
	tr := newTracker(Limits{RequestsPerHour: 2, TokensPerDay: 0}, c)

	for i := range 2 {
		if a := tr.CheckAdmission("1"); !a.Allowed {
			t.Fatalf("request %d denied: %s", i+1, a.Reason)
		}
		tr.RecordRequest("1")
	}

	a := tr.CheckAdmission("1")
	if a.Allowed {
		t.Fatal("third request admitted")
	}
	if a.Reason != "quota exceeded: hourly request limit (2 requests/hour)" {
		t.Errorf("reason = %q", a.Reason)
	}

	c.advance(time.Hour)
	if a := tr.CheckAdmission("1"); !a.Allowed {
		t.Errorf("after rollover: denied: %s", a.Reason)
	}
}

func TestTracker_HourlyWindowKeepsRollingAfterFirstHour(t *testing.T) {
	t.Parallel()

	c := newClock()
	tr := newTracker(Limits{RequestsPerHour: 1, TokensPerDay: 0}, c)

	c.advance(90 * time.Minute)
	tr.RecordRequest("1")
	c.advance(10 * time.Minute)
	if a := tr.CheckAdmission("1"); a.Allowed {
		t.Error("second request within the same hour admitted")
	}
}

func TestTracker_DailyTokens(t *testing.T) {
	t.Parallel()

	c := newClock()
	tr := newTracker(Limits{RequestsPerHour: 0, TokensPerDay: 1000}, c)

	tr.RecordTokens("1", 999)
	if a := tr.CheckAdmission("1"); !a.Allowed || !a.Warning {
		t.Errorf("at 99.9%%: %+v, want allowed with warning", a)
	}
	tr.RecordTokens("1", 1)
	if a := tr.CheckAdmission("1"); a.Allowed || a.Reason != "quota exceeded: daily token limit (1000 tokens/day)" {
		t.Errorf("at limit: %+v", a)
	}

	c.advance(23 * time.Hour)
	if a := tr.CheckAdmission("1"); a.Allowed {
		t.Error("admitted before daily rollover")
	}
	c.advance(time.Hour)
	if a := tr.CheckAdmission("1"); !a.Allowed || a.Warning {
		t.Errorf("after rollover: %+v", a)
	}

	s := tr.Status("1")
	if s.Tokens != 1000 || s.DailyTokens != 0 {
		t.Errorf("lifetime/daily = %d/%d", s.Tokens, s.DailyTokens)
	}
}

func TestTracker_WarningThreshold(t *testing.T) {
	t.Parallel()

	c := newClock()
	tr := newTracker(Limits{RequestsPerHour: 10, TokensPerDay: 0, WarningPercent: 80}, c)

	for range 7 {
		tr.RecordRequest("1")
	}
	if a := tr.CheckAdmission("1"); a.Warning {
		t.Error("warning at 70%")
	}
	tr.RecordRequest("1")
	if a := tr.CheckAdmission("1"); !a.Allowed || !a.Warning {
		t.Errorf("at 80%%: %+v", a)
	}
}

func TestTracker_ZeroMeansUnlimited(t *testing.T) {
	t.Parallel()

	tr := newTracker(Limits{}, newClock())
	for range 1000 {
		tr.RecordRequest("1")
	}
	tr.RecordTokens("1", 1<<30)
	if a := tr.CheckAdmission("1"); !a.Allowed || a.Warning {
		t.Errorf("unlimited: %+v", a)
	}
}

func TestTracker_PrincipalsAreIndependent(t *testing.T) {
	t.Parallel()

	tr := newTracker(Limits{RequestsPerHour: 1}, newClock())
	tr.RecordRequest("a")
	if !tr.CheckAdmission("b").Allowed {
		t.Error("b denied by a's usage")
	}
}

func TestTracker_RecordTokensIgnoresNonPositive(t *testing.T) {
	t.Parallel()

	tr := newTracker(DefaultLimits(), newClock())
	tr.RecordTokens("1", -5)
	tr.RecordTokens("1", 0)
	if s := tr.Status("1"); s.Tokens != 0 {
		t.Errorf("Tokens = %d", s.Tokens)
	}
}

func TestTracker_Prune(t *testing.T) {
	t.Parallel()

	c := newClock()
	tr := newTracker(DefaultLimits(), c)
	tr.RecordRequest("old")
	c.advance(49 * time.Hour)
	tr.RecordRequest("fresh")

	if n := tr.Prune(48 * time.Hour); n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	if tr.Len() != 1 {
		t.Errorf("Len() = %d", tr.Len())
	}
}

func TestTracker_Concurrent(t *testing.T) {
	t.Parallel()

	tr := NewTracker(Limits{RequestsPerHour: 1000, TokensPerDay: 0})
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.CheckAdmission("1")
			tr.RecordRequest("1")
			tr.RecordTokens("1", 2)
		}()
	}
	wg.Wait()

	s := tr.Status("1")
	if s.Requests != 50 || s.Tokens != 100 {
		t.Errorf("requests/tokens = %d/%d", s.Requests, s.Tokens)
	}
}

func TestNewTracker_NormalizesLimits(t *testing.T) {
	t.Parallel()

	tr := NewTracker(Limits{RequestsPerHour: -1, TokensPerDay: -1, WarningPercent: 150})
	l := tr.Limits()
	if l.RequestsPerHour != 0 || l.TokensPerDay != 0 || l.WarningPercent != 80 {
		t.Errorf("limits = %+v", l)
	}
}

func TestFormatStatus(t *testing.T) {
	t.Parallel()

	c := newClock()
	tr := newTracker(Limits{RequestsPerHour: 10, TokensPerDay: 1000, WarningPercent: 80}, c)
	for range 5 {
		tr.RecordRequest("1")
	}
	tr.RecordTokens("1", 950)
	c.advance(15 * time.Minute)

	out := FormatStatus(tr.Status("1"))
	for _, want := range []string{
		"🟢 █████░░░░░ 5/10 (50.0%)",
		"🔴 ██████████ 950/1000 (95.0%)",
		"Total requests: 5",
		"Warning threshold: 80%",
		"Next hourly reset: 0h 45m",
		"Next daily reset: 23h 45m",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatStatus missing %q in:\n%s", want, out)
		}
	}
}

func TestProgressBar(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pct  float64
		want string
	}{
		{0, "🟢 ░░░░░░░░░░"},
		{74, "🟡 ███████░░░"},
		{100, "🔴 ██████████"},
		{250, "🔴 ██████████"},
	}
	for _, tt := range tests {
		if got := ProgressBar(tt.pct); got != tt.want {
			t.Errorf("ProgressBar(%v) = %q, want %q", tt.pct, got, tt.want)
		}
	}
}
