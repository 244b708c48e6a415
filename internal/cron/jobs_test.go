package cron

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/flemzord/deskclaw/internal/quota"
	"github.com/flemzord/deskclaw/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJobSchedules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		job  Job
		name string
		want string
	}{
		{&QuotaPruneJob{}, "quota_prune", DefaultQuotaPruneSchedule},
		{&LaneCleanupJob{}, "lane_cleanup", DefaultLaneCleanupSchedule},
		{&SQLiteOptimizeJob{}, "sqlite_optimize", DefaultSQLiteOptimizeSchedule},
		{&QuotaPruneJob{ScheduleExpr: "*/5 * * * *"}, "quota_prune", "*/5 * * * *"},
	}
	for _, tt := range tests {
		if tt.job.Name() != tt.name {
			t.Errorf("Name() = %q, want %q", tt.job.Name(), tt.name)
		}
		if tt.job.Schedule() != tt.want {
			t.Errorf("%s Schedule() = %q, want %q", tt.name, tt.job.Schedule(), tt.want)
		}
		if err := ParseSchedule(tt.job.Schedule()); err != nil {
			t.Errorf("%s: %v", tt.name, err)
		}
	}
}

func TestQuotaPruneJob(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := quota.NewTracker(quota.DefaultLimits())
	tracker.SetNow(func() time.Time { return now })
	tracker.RecordRequest("old")

	now = now.Add(49 * time.Hour)
	tracker.RecordRequest("fresh")

	job := &QuotaPruneJob{Prune: tracker.Prune, MaxIdle: 48 * time.Hour, Logger: discardLogger()}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := tracker.Len(); got != 1 {
		t.Errorf("tracked principals = %d, want 1", got)
	}
}

func TestLaneCleanupJob(t *testing.T) {
	t.Parallel()

	lanes := session.NewLaneLock()
	lanes.Acquire("a")
	lanes.Release("a")

	job := &LaneCleanupJob{Cleanup: lanes.Cleanup, MaxIdle: 0, Logger: discardLogger()}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := lanes.Len(); got != 0 {
		t.Errorf("lanes = %d, want 0", got)
	}
}

type fakeOptimizer struct {
	calls int
	err   error
}

func (f *fakeOptimizer) Optimize(context.Context) error {
	f.calls++
	return f.err
}

func TestSQLiteOptimizeJob(t *testing.T) {
	t.Parallel()

	ok := &fakeOptimizer{}
	if err := (&SQLiteOptimizeJob{Store: ok, Logger: discardLogger()}).Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if ok.calls != 1 {
		t.Errorf("calls = %d, want 1", ok.calls)
	}

	failing := &fakeOptimizer{err: errors.New("locked")}
	if err := (&SQLiteOptimizeJob{Store: failing, Logger: discardLogger()}).Run(context.Background()); err == nil {
		t.Error("expected error")
	}
}
