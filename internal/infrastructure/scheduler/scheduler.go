// Package scheduler runs the engine's periodic sweeps: background analysis of
// loaded actors and flushing of dirty ledgers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job.
	// The context is cancelled when the scheduler is stopping.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// Schedule defines when a job should run.
type Schedule interface {
	// Next returns the next time the job should run after the given time.
	Next(t time.Time) time.Time

	// String returns a human-readable representation of the schedule.
	String() string
}

// JobObserver receives the outcome of every run.
type JobObserver interface {
	ObserveJob(job string, d time.Duration, err error)
}

// JobResult contains the result of a job execution.
type JobResult struct {
	RunID       string
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Manual      bool
	Error       error
}

// Success reports whether the run returned no error.
func (r JobResult) Success() bool { return r.Error == nil }

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNilJob is returned when trying to register a nil job.
	ErrNilJob = errors.New("job cannot be nil")

	// ErrNilSchedule is returned when trying to register a job with nil schedule.
	ErrNilSchedule = errors.New("schedule cannot be nil")

	// ErrJobAlreadyExists is returned when a job with the same name already exists.
	ErrJobAlreadyExists = errors.New("job already exists")

	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobRunning is returned by RunNow while the job is already running.
	ErrJobRunning = errors.New("job is already running")

	// ErrSchedulerAlreadyRunning is returned when Start is called on a running scheduler.
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")

	// ErrSchedulerNotRunning is returned when Stop is called on a stopped scheduler.
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler runs registered jobs on their schedules. A job never overlaps
// with itself: a due job whose previous run is still going is skipped.
type Scheduler struct {
	mu sync.RWMutex

	logger   *slog.Logger
	tick     time.Duration
	observer JobObserver

	jobs      map[string]*scheduledJob
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time
}

type scheduledJob struct {
	job        Job
	schedule   Schedule
	enabled    bool
	inFlight   bool
	lastRun    time.Time
	nextRun    time.Time
	runCount   int64
	failCount  int64
	skipCount  int64
	lastResult *JobResult
}

// SchedulerConfig contains configuration for the Scheduler.
type SchedulerConfig struct {
	Logger *slog.Logger

	// TickInterval is how often due jobs are checked. Default: 1s.
	TickInterval time.Duration

	// Observer is optional.
	Observer JobObserver
}

// NewScheduler creates a new Scheduler with the given configuration.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}

	return &Scheduler{
		logger:   config.Logger,
		tick:     config.TickInterval,
		observer: config.Observer,
		jobs:     make(map[string]*scheduledJob),
	}
}

// Register adds a job to the scheduler with the given schedule.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{
		job:      job,
		schedule: schedule,
		enabled:  true,
		nextRun:  schedule.Next(time.Now()),
	}
	s.jobs[name] = sj

	s.logger.Info("job registered",
		"job", name,
		"schedule", schedule.String(),
		"next_run", sj.nextRun.Format(time.RFC3339),
	)
	return nil
}

// SetEnabled enables or disables a job by name.
func (s *Scheduler) SetEnabled(jobName string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, exists := s.jobs[jobName]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	sj.enabled = enabled
	if enabled {
		sj.nextRun = sj.schedule.Next(time.Now())
	}
	s.logger.Info("job toggled", "job", jobName, "enabled", enabled)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.startedAt = time.Now()
	jobs := len(s.jobs)
	s.mu.Unlock()

	s.logger.Info("scheduler started", "jobs_count", jobs, "tick", s.tick.String())

	s.wg.Add(1)
	go s.runLoop()
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped", "uptime", time.Since(s.startedAt).String())
	return nil
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.dispatchDue(now)
		}
	}
}

// dispatchDue claims due jobs under the lock so a slow job is never started twice.
func (s *Scheduler) dispatchDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, sj := range s.jobs {
		if !sj.enabled || now.Before(sj.nextRun) {
			continue
		}
		sj.nextRun = sj.schedule.Next(now)
		if sj.inFlight {
			sj.skipCount++
			s.logger.Warn("job still running, tick skipped", "job", name)
			continue
		}
		sj.inFlight = true
		s.wg.Add(1)
		go func(sj *scheduledJob) {
			defer s.wg.Done()
			s.execute(s.ctx, sj, false)
		}(sj)
	}
}

func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob, manual bool) JobResult {
	name := sj.job.Name()
	result := JobResult{
		RunID:     uuid.NewString(),
		JobName:   name,
		StartedAt: time.Now(),
		Manual:    manual,
	}
	s.logger.Debug("job started", "job", name, "run_id", result.RunID, "manual", manual)

	result.Error = sj.job.Run(ctx)
	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	s.mu.Lock()
	sj.inFlight = false
	sj.lastRun = result.StartedAt
	sj.runCount++
	if result.Error != nil {
		sj.failCount++
	}
	sj.lastResult = &result
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.ObserveJob(name, result.Duration, result.Error)
	}

	if result.Error != nil {
		s.logger.Error("job failed",
			"job", name,
			"run_id", result.RunID,
			"duration", result.Duration.String(),
			"error", result.Error,
		)
	} else {
		s.logger.Info("job completed",
			"job", name,
			"run_id", result.RunID,
			"duration", result.Duration.String(),
		)
	}
	return result
}

// RunNow executes a job immediately, outside its schedule. It refuses to
// overlap a scheduled run of the same job.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (JobResult, error) {
	s.mu.Lock()
	sj, exists := s.jobs[jobName]
	if !exists {
		s.mu.Unlock()
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	if sj.inFlight {
		s.mu.Unlock()
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobRunning, jobName)
	}
	sj.inFlight = true
	s.mu.Unlock()

	result := s.execute(ctx, sj, true)
	return result, result.Error
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo contains information about a registered job.
type JobInfo struct {
	Name        string
	Description string
	Enabled     bool
	Running     bool
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	SkipCount   int64
	LastResult  *JobResult
}

// ListJobs returns all registered jobs sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		infos = append(infos, sj.info(name))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// GetJobInfo returns information about a specific job.
func (s *Scheduler) GetJobInfo(jobName string) (JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sj, exists := s.jobs[jobName]
	if !exists {
		return JobInfo{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	return sj.info(jobName), nil
}

func (sj *scheduledJob) info(name string) JobInfo {
	info := JobInfo{
		Name:        name,
		Description: sj.job.Description(),
		Enabled:     sj.enabled,
		Running:     sj.inFlight,
		Schedule:    sj.schedule.String(),
		LastRun:     sj.lastRun,
		NextRun:     sj.nextRun,
		RunCount:    sj.runCount,
		FailCount:   sj.failCount,
		SkipCount:   sj.skipCount,
	}
	if sj.lastResult != nil {
		r := *sj.lastResult
		info.LastResult = &r
	}
	return info
}
