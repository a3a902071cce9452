package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/realty/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// JobStatus represents the outcome of the last run of a job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Job is a unit of periodic background work
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a function to Job
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

// Name returns the job name
func (j JobFunc) Name() string { return j.JobName }

// Run calls Fn
func (j JobFunc) Run(ctx context.Context) error { return j.Fn(ctx) }

// JobState is a snapshot of a registered job
type JobState struct {
	Name          string
	Interval      time.Duration
	Status        JobStatus
	Runs          int
	Failures      int
	LastError     string
	LastStartedAt *time.Time
	LastDuration  time.Duration
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	JobTimeout    time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		JobTimeout:    10 * time.Minute,
		RetryAttempts: 2,
		RetryDelay:    30 * time.Second,
	}
}

type entry struct {
	job       Job
	interval  time.Duration
	immediate bool

	mu    sync.Mutex
	state JobState
}

// Scheduler runs each registered job on its own ticker. Runs of the same job
// never overlap; a tick that arrives while the job is running is dropped.
type Scheduler struct {
	config  SchedulerConfig
	logger  *zap.Logger
	metrics *telemetry.EngineMetrics

	mu        sync.Mutex
	entries   map[string]*entry
	order     []string
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config SchedulerConfig, logger *zap.Logger) *Scheduler {
	if config.JobTimeout <= 0 {
		config.JobTimeout = DefaultSchedulerConfig().JobTimeout
	}
	return &Scheduler{
		config:  config,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// SetEngineMetrics sets the metrics collector for job durations
func (s *Scheduler) SetEngineMetrics(m *telemetry.EngineMetrics) {
	s.metrics = m
}

// Register adds job to run every interval. With immediate set the first run
// happens on Start instead of after the first interval.
func (s *Scheduler) Register(job Job, interval time.Duration, immediate bool) error {
	if interval <= 0 {
		return fmt.Errorf("%w: job %s needs a positive interval", ErrInvalidConfig, job.Name())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return ErrSchedulerRunning
	}
	if _, ok := s.entries[job.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name())
	}
	s.entries[job.Name()] = &entry{
		job:       job,
		interval:  interval,
		immediate: immediate,
		state:     JobState{Name: job.Name(), Interval: interval, Status: JobStatusPending},
	}
	s.order = append(s.order, job.Name())
	return nil
}

// Start starts one loop per registered job
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	for _, name := range s.order {
		e := s.entries[name]
		s.wg.Add(1)
		go s.loop(ctx, e)
	}

	s.logger.Info("Job scheduler started",
		zap.Strings("jobs", s.order),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for their loops to exit
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Job scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Job scheduler stop timed out")
		return ctx.Err()
	}
}

// RunNow runs the named job synchronously, outside its schedule
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.execute(ctx, e)
}

// State returns a snapshot of the named job
func (s *Scheduler) State(name string) (JobState, bool) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return JobState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()

	if e.immediate {
		_ = s.execute(ctx, e)
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.execute(ctx, e)
		}
	}
}

// execute runs e with the job timeout, retrying failed attempts
func (s *Scheduler) execute(ctx context.Context, e *entry) error {
	e.mu.Lock()
	if e.state.Status == JobStatusRunning {
		e.mu.Unlock()
		s.logger.Debug("Job still running, tick skipped", zap.String("job", e.job.Name()))
		return ErrJobRunning
	}
	started := time.Now()
	e.state.Status = JobStatusRunning
	e.state.LastStartedAt = &started
	e.mu.Unlock()

	err := s.attempt(ctx, e)
	elapsed := time.Since(started)
	s.metrics.RecordJob(ctx, e.job.Name(), elapsed, err)

	e.mu.Lock()
	e.state.Runs++
	e.state.LastDuration = elapsed
	if err != nil {
		e.state.Status = JobStatusFailed
		e.state.Failures++
		e.state.LastError = err.Error()
	} else {
		e.state.Status = JobStatusSuccess
		e.state.LastError = ""
	}
	e.mu.Unlock()

	if err != nil {
		s.logger.Error("Job failed",
			zap.String("job", e.job.Name()),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return err
	}
	s.logger.Debug("Job completed", zap.String("job", e.job.Name()), zap.Duration("duration", elapsed))
	return nil
}

func (s *Scheduler) attempt(ctx context.Context, e *entry) error {
	var err error
	for try := 0; try <= s.config.RetryAttempts; try++ {
		if try > 0 {
			s.logger.Warn("Retrying job",
				zap.String("job", e.job.Name()),
				zap.Int("attempt", try+1),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.config.RetryDelay):
			}
		}
		jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
		err = e.job.Run(jobCtx)
		cancel()
		if err == nil || ctx.Err() != nil {
			return err
		}
	}
	return err
}
