package cron

import (
	"context"
	"log/slog"
	"time"
)

// Default schedules for the maintenance jobs.
const (
	DefaultQuotaPruneSchedule     = "0 * * * *"
	DefaultLaneCleanupSchedule    = "*/15 * * * *"
	DefaultSQLiteOptimizeSchedule = "30 3 * * *"
)

// Pruner drops entries idle longer than maxIdle and reports how many went.
// quota.Tracker.Prune and session.LaneLock.Cleanup both fit.
type Pruner func(maxIdle time.Duration) int

// QuotaPruneJob drops usage counters for principals idle longer than MaxIdle.
type QuotaPruneJob struct {
	Prune        Pruner
	MaxIdle      time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = DefaultQuotaPruneSchedule
}

// Compile-time interface check.
var _ Job = (*QuotaPruneJob)(nil)

// Name implements Job.
func (j *QuotaPruneJob) Name() string { return "quota_prune" }

// Schedule implements Job.
func (j *QuotaPruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultQuotaPruneSchedule
}

// Run implements Job.
func (j *QuotaPruneJob) Run(_ context.Context) error {
	if pruned := j.Prune(j.MaxIdle); pruned > 0 {
		j.Logger.Info("cron: pruned idle usage counters", "count", pruned)
	}
	return nil
}

// LaneCleanupJob drops per-principal lane locks idle longer than MaxIdle.
type LaneCleanupJob struct {
	Cleanup      Pruner
	MaxIdle      time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = DefaultLaneCleanupSchedule
}

// Compile-time interface check.
var _ Job = (*LaneCleanupJob)(nil)

// Name implements Job.
func (j *LaneCleanupJob) Name() string { return "lane_cleanup" }

// Schedule implements Job.
func (j *LaneCleanupJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultLaneCleanupSchedule
}

// Run implements Job.
func (j *LaneCleanupJob) Run(_ context.Context) error {
	if removed := j.Cleanup(j.MaxIdle); removed > 0 {
		j.Logger.Debug("cron: removed idle lane locks", "count", removed)
	}
	return nil
}

// Optimizer is implemented by stores with periodic maintenance.
type Optimizer interface {
	Optimize(ctx context.Context) error
}

// SQLiteOptimizeJob runs PRAGMA optimize and a WAL checkpoint.
type SQLiteOptimizeJob struct {
	Store        Optimizer
	Logger       *slog.Logger
	ScheduleExpr string // empty = DefaultSQLiteOptimizeSchedule
}

// Compile-time interface check.
var _ Job = (*SQLiteOptimizeJob)(nil)

// Name implements Job.
func (j *SQLiteOptimizeJob) Name() string { return "sqlite_optimize" }

// Schedule implements Job.
func (j *SQLiteOptimizeJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultSQLiteOptimizeSchedule
}

// Run implements Job.
func (j *SQLiteOptimizeJob) Run(ctx context.Context) error {
	start := time.Now()
	if err := j.Store.Optimize(ctx); err != nil {
		return err
	}
	j.Logger.Info("cron: sqlite optimized", "duration", time.Since(start))
	return nil
}
