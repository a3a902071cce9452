package telemetry

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// ProfilerConfig holds Pyroscope continuous profiling configuration.
type ProfilerConfig struct {
	Enabled           bool
	ServerAddress     string // e.g. http://pyroscope:4040
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string

	ProfileCPU        bool
	ProfileAllocSpace bool
	ProfileInuseSpace bool
	ProfileGoroutines bool
	ProfileMutex      bool
	ProfileBlock      bool

	MutexProfileFraction int // default 5
	BlockProfileRate     int // default 5
}

// DefaultProfilerConfig enables CPU, heap and goroutine profiles
func DefaultProfilerConfig(applicationName, serverAddress string) ProfilerConfig {
	return ProfilerConfig{
		ServerAddress:     serverAddress,
		ApplicationName:   applicationName,
		ProfileCPU:        true,
		ProfileAllocSpace: true,
		ProfileInuseSpace: true,
		ProfileGoroutines: true,
	}
}

// Profiler owns a running Pyroscope session
type Profiler struct {
	profiler *pyroscope.Profiler
	logger   *zap.Logger
	config   ProfilerConfig
	mu       sync.Mutex
	stopped  bool
}

// NewProfiler starts profiling when cfg.Enabled is set
func NewProfiler(cfg ProfilerConfig, logger *zap.Logger) (*Profiler, error) {
	p := &Profiler{logger: logger, config: cfg}
	if !cfg.Enabled {
		logger.Info("Continuous profiling disabled")
		return p, nil
	}
	if cfg.ServerAddress == "" {
		return nil, errors.New("profiler server address is required when profiling is enabled")
	}
	if cfg.ApplicationName == "" {
		return nil, errors.New("profiler application name is required when profiling is enabled")
	}

	if cfg.ProfileMutex {
		runtime.SetMutexProfileFraction(positiveOr(cfg.MutexProfileFraction, 5))
	}
	if cfg.ProfileBlock {
		runtime.SetBlockProfileRate(positiveOr(cfg.BlockProfileRate, 5))
	}

	tags := map[string]string{}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		tags["hostname"] = hostname
	}

	profileTypes := cfg.profileTypes()
	if len(profileTypes) == 0 {
		logger.Warn("No profile types enabled")
	}

	session, err := pyroscope.Start(pyroscope.Config{
		ApplicationName:   cfg.ApplicationName,
		ServerAddress:     cfg.ServerAddress,
		BasicAuthUser:     cfg.BasicAuthUser,
		BasicAuthPassword: cfg.BasicAuthPassword,
		Logger:            pyroscopeLogger{logger.Named("pyroscope").Sugar()},
		Tags:              tags,
		ProfileTypes:      profileTypes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}
	p.profiler = session

	logger.Info("Pyroscope profiler started",
		zap.String("server_address", cfg.ServerAddress),
		zap.String("application_name", cfg.ApplicationName),
		zap.Int("profile_types", len(profileTypes)),
	)
	return p, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func (c ProfilerConfig) profileTypes() []pyroscope.ProfileType {
	var types []pyroscope.ProfileType
	add := func(enabled bool, t ...pyroscope.ProfileType) {
		if enabled {
			types = append(types, t...)
		}
	}
	add(c.ProfileCPU, pyroscope.ProfileCPU)
	add(c.ProfileAllocSpace, pyroscope.ProfileAllocObjects, pyroscope.ProfileAllocSpace)
	add(c.ProfileInuseSpace, pyroscope.ProfileInuseObjects, pyroscope.ProfileInuseSpace)
	add(c.ProfileGoroutines, pyroscope.ProfileGoroutines)
	add(c.ProfileMutex, pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration)
	add(c.ProfileBlock, pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration)
	return types
}

// Stop flushes and stops the session. Safe to call more than once.
// The Pyroscope SDK takes no context, so Stop may block on a slow server.
func (p *Profiler) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.profiler == nil {
		p.stopped = true
		return nil
	}
	p.stopped = true
	if err := p.profiler.Stop(); err != nil {
		return fmt.Errorf("failed to stop profiler: %w", err)
	}
	p.logger.Info("Pyroscope profiler stopped")
	return nil
}

// IsEnabled returns whether a session is running
func (p *Profiler) IsEnabled() bool {
	return p.config.Enabled && p.profiler != nil
}

// pyroscopeLogger adapts zap to pyroscope.Logger
type pyroscopeLogger struct {
	*zap.SugaredLogger
}
