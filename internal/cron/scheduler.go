package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// ErrJobRunning is returned by RunNow when the job's previous run has not
// finished.
var ErrJobRunning = errors.New("cron: job still running")

// Scheduler manages periodic job execution using cron expressions.
// Each job is protected by a per-job mutex to prevent parallel execution
// of the same job (uses TryLock, so check and acquire are one step).
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   []Job
	byName map[string]Job
	locks  map[string]*sync.Mutex
	logger *slog.Logger
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs must be registered before Start().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		byName: make(map[string]Job),
		locks:  make(map[string]*sync.Mutex),
		logger: logger,
	}
}

// RegisterJob adds a job to the scheduler. Must be called before Start().
// Returns an error if a job with the same name is already registered.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.byName[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}

	s.byName[name] = j
	s.locks[name] = &sync.Mutex{}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start begins executing registered jobs. Jobs receive a context derived
// from ctx that is cancelled by Stop. Returns an error if any job has an
// invalid schedule expression.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.cron = cron.New(cron.WithParser(parser))

	for _, job := range s.jobs {
		if _, err := s.cron.AddFunc(job.Schedule(), func() {
			if err := s.run(jobCtx, job); errors.Is(err, ErrJobRunning) {
				s.logger.Warn("cron: job still running, skipping tick", "job", job.Name())
			}
		}); err != nil {
			cancel()
			s.cron = nil
			return fmt.Errorf("cron: invalid schedule for job %q: %w", job.Name(), err)
		}
	}

	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.jobs))
	return nil
}

// RunNow executes a registered job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("cron: unknown job %q", name)
	}
	return s.run(ctx, job)
}

// run executes job unless its previous run is still in flight.
func (s *Scheduler) run(ctx context.Context, job Job) error {
	lock := s.locks[job.Name()]
	if !lock.TryLock() {
		return ErrJobRunning
	}
	defer lock.Unlock()

	s.logger.Debug("cron: job started", "job", job.Name())
	if err := job.Run(ctx); err != nil {
		s.logger.Error("cron: job failed",
			"job", job.Name(),
			"error", err,
		)
		return err
	}
	s.logger.Debug("cron: job completed", "job", job.Name())
	return nil
}

// Stop gracefully shuts down the scheduler, waiting for in-flight jobs.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron == nil {
		return nil
	}

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("cron: scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
