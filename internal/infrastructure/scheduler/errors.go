package scheduler

import "errors"

var (
	// ErrJobNotFound is returned when no job is registered under a name
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateJob is returned when a job name is registered twice
	ErrDuplicateJob = errors.New("job already registered")

	// ErrJobRunning is returned when a run is requested while the job is running
	ErrJobRunning = errors.New("job is already running")

	// ErrSchedulerRunning is returned when registering on a started scheduler
	ErrSchedulerRunning = errors.New("scheduler is already running")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)
