// Package scheduler runs background maintenance jobs of the rewards service
// at fixed intervals, such as the periodic ledger audit.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/qaidahub/rewards-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Description returns a human-readable description of the job.
	Description() string

	// Run executes the job.
	// The context is cancelled when the scheduler is stopping.
	Run(ctx context.Context) error
}

// Schedule defines when a job should run.
type Schedule interface {
	// Next returns the next time the job should run after the given time.
	Next(t time.Time) time.Time

	// String returns a human-readable representation of the schedule.
	String() string
}

// Every runs a job at a fixed interval.
type Every time.Duration

// Next returns t plus the interval.
func (e Every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

func (e Every) String() string {
	return fmt.Sprintf("@every %s", time.Duration(e))
}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Manual      bool
	Err         error
}

// Success reports whether the run returned no error.
func (r JobResult) Success() bool { return r.Err == nil }

// Scheduler errors.
var (
	ErrNilJob                  = errors.New("scheduler: job is nil")
	ErrInvalidSchedule         = errors.New("scheduler: schedule must move forward in time")
	ErrJobAlreadyExists        = errors.New("scheduler: job already registered")
	ErrJobNotFound             = errors.New("scheduler: job not found")
	ErrJobRunning              = errors.New("scheduler: job is already running")
	ErrSchedulerAlreadyRunning = errors.New("scheduler: already running")
	ErrSchedulerNotRunning     = errors.New("scheduler: not running")
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the Scheduler.
type Config struct {
	// Logger for structured logging.
	Logger *logger.Logger

	// TickInterval is how often due jobs are checked. Default: 1s
	TickInterval time.Duration

	// MaxHistorySize is the maximum number of job results kept. Default: 100
	MaxHistorySize int

	now func() time.Time
}

// Scheduler manages and executes scheduled jobs. A job never overlaps with
// its own previous run: a due job that is still running is skipped until its
// next slot.
type Scheduler struct {
	mu sync.Mutex

	log    *logger.Logger
	config Config

	jobs    map[string]*scheduledJob
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	history []JobResult
}

// scheduledJob wraps a Job with scheduling state.
type scheduledJob struct {
	job      Job
	schedule Schedule
	nextRun  time.Time
	lastRun  time.Time
	inFlight bool

	runCount  int64
	failCount int64
}

// New creates a new Scheduler with the given configuration.
func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.MaxHistorySize <= 0 {
		cfg.MaxHistorySize = 100
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	return &Scheduler{
		log:    cfg.Logger.With(logger.Component("scheduler")),
		config: cfg,
		jobs:   make(map[string]*scheduledJob),
	}
}

// Register adds a job with its schedule. The first run is one schedule step
// after registration.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	now := s.config.now()
	if schedule == nil || !schedule.Next(now).After(now) {
		return ErrInvalidSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{job: job, schedule: schedule, nextRun: schedule.Next(now)}
	s.jobs[name] = sj

	s.log.Info("job registered",
		logger.String("job", name),
		logger.String("schedule", schedule.String()),
		logger.Time("next_run", sj.nextRun),
	)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.log.Info("scheduler started", logger.Int("jobs_count", len(s.jobs)))

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
	s.log.Info("scheduler stopped")
	return nil
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runDue()
		}
	}
}

// runDue starts every job whose next run has passed.
func (s *Scheduler) runDue() {
	now := s.config.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sj := range s.jobs {
		if now.Before(sj.nextRun) {
			continue
		}
		sj.nextRun = sj.schedule.Next(now)
		if sj.inFlight {
			s.log.Warn("job skipped, previous run still in progress",
				logger.String("job", sj.job.Name()),
			)
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

// RunNow executes a job immediately, ignoring its schedule. It fails with
// ErrJobRunning when the job is already in flight.
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobResult, error) {
	s.mu.Lock()
	sj, exists := s.jobs[name]
	if !exists {
		s.mu.Unlock()
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if sj.inFlight {
		s.mu.Unlock()
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	sj.inFlight = true
	s.mu.Unlock()

	result := s.execute(ctx, sj, true)
	return result, result.Err
}

// execute runs the job and records the result. The caller has set inFlight.
func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob, manual bool) JobResult {
	name := sj.job.Name()
	startedAt := s.config.now()

	err := s.safeRun(ctx, sj.job)

	completedAt := s.config.now()
	result := JobResult{
		JobName:     name,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Manual:      manual,
		Err:         err,
	}

	s.mu.Lock()
	sj.inFlight = false
	sj.lastRun = startedAt
	sj.runCount++
	if err != nil {
		sj.failCount++
	}
	s.history = append(s.history, result)
	if over := len(s.history) - s.config.MaxHistorySize; over > 0 {
		s.history = s.history[over:]
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("job failed",
			logger.String("job", name),
			logger.Bool("manual", manual),
			logger.Duration("duration", result.Duration),
			logger.Err(err),
		)
	} else {
		s.log.Info("job completed",
			logger.String("job", name),
			logger.Bool("manual", manual),
			logger.Duration("duration", result.Duration),
		)
	}
	return result
}

// safeRun turns a job panic into an error so one job cannot stop the loop.
func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & INFO
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo contains information about a registered job.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	NextRun     time.Time
	LastRun     time.Time
	Running     bool
	RunCount    int64
	FailCount   int64
}

// ListJobs returns all registered jobs sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		out = append(out, JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Schedule:    sj.schedule.String(),
			NextRun:     sj.nextRun,
			LastRun:     sj.lastRun,
			Running:     sj.inFlight,
			RunCount:    sj.runCount,
			FailCount:   sj.failCount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// History returns up to limit most recent results, newest first.
// A non-positive limit returns all kept results.
func (s *Scheduler) History(limit int) []JobResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]JobResult, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.history[i])
	}
	return out
}
