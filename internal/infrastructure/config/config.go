package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Event     EventConfig
	Engine    EngineConfig
	Scheduler SchedulerConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int    // in minutes
	ConnMaxIdleTime int    // in minutes
	LogLevel        string // silent, error, warn, info
	SlowThresholdMs int
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// EventConfig holds outbox and commission delivery settings
type EventConfig struct {
	ProcessorEnabled bool
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
	CleanupEnabled   bool
	CleanupRetention time.Duration
	IdempotencyTTL   time.Duration
	// RequireRedis fails startup instead of falling back to the in-memory store
	RequireRedis bool
}

// EngineConfig holds the reconciliation rules
type EngineConfig struct {
	// CommissionMinRatio is the share of the receivable a payment must cover
	// to affect commissions, as a decimal string
	CommissionMinRatio string
	GraceDays          int
	ClassifyOnPayment  bool
	BulkLimit          int

	// MethodAccounts maps payment methods (CASH, TRANSFER, ...) to cash/bank account codes
	MethodAccounts     map[string]string
	DefaultCashAccount string
	ReceivableAccount  string
	RevenueAccount     string
	SuspenseAccountID  string
}

// SchedulerConfig holds background job settings
type SchedulerConfig struct {
	AgingEnabled   bool
	AgingInterval  time.Duration
	AgingBatchSize int
	JobTimeout     time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string
	Insecure          bool // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
	LogsEnabled       bool // Export zap logs through the OTLP log pipeline
	DBTraceEnabled    bool // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool // Log full SQL statements (dev only)
	DBMetricsEnabled  bool // Record pool and statement metrics
	ProfilingEnabled  bool // Push continuous profiles to Pyroscope
	ProfilerAddress   string
	ProfilerUser      string
	ProfilerPassword  string
	SpanProfiles      bool // Link profiles to trace spans
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with ERP_ prefix (e.g., ERP_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/realty")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Keys whose zero value is meaningful get their defaults here
	v.SetDefault("engine.grace_days", 5)
	v.SetDefault("engine.classify_on_payment", true)
	v.SetDefault("event.processor_enabled", true)
	v.SetDefault("scheduler.aging_enabled", true)

	v.SetEnvPrefix("ERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			LogLevel:        v.GetString("database.log_level"),
			SlowThresholdMs: v.GetInt("database.slow_threshold_ms"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Event: EventConfig{
			ProcessorEnabled: v.GetBool("event.processor_enabled"),
			BatchSize:        v.GetInt("event.batch_size"),
			PollInterval:     v.GetDuration("event.poll_interval"),
			MaxRetries:       v.GetInt("event.max_retries"),
			CleanupEnabled:   v.GetBool("event.cleanup_enabled"),
			CleanupRetention: v.GetDuration("event.cleanup_retention"),
			IdempotencyTTL:   v.GetDuration("event.idempotency_ttl"),
			RequireRedis:     v.GetBool("event.require_redis"),
		},
		Engine: EngineConfig{
			CommissionMinRatio: v.GetString("engine.commission_min_ratio"),
			GraceDays:          v.GetInt("engine.grace_days"),
			ClassifyOnPayment:  v.GetBool("engine.classify_on_payment"),
			BulkLimit:          v.GetInt("engine.bulk_limit"),
			MethodAccounts:     v.GetStringMapString("engine.method_accounts"),
			DefaultCashAccount: v.GetString("engine.default_cash_account"),
			ReceivableAccount:  v.GetString("engine.receivable_account"),
			RevenueAccount:     v.GetString("engine.revenue_account"),
			SuspenseAccountID:  v.GetString("engine.suspense_account_id"),
		},
		Scheduler: SchedulerConfig{
			AgingEnabled:   v.GetBool("scheduler.aging_enabled"),
			AgingInterval:  v.GetDuration("scheduler.aging_interval"),
			AgingBatchSize: v.GetInt("scheduler.aging_batch_size"),
			JobTimeout:     v.GetDuration("scheduler.job_timeout"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBMetricsEnabled:  v.GetBool("telemetry.db_metrics_enabled"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			ProfilerAddress:   v.GetString("telemetry.profiler_address"),
			ProfilerUser:      v.GetString("telemetry.profiler_user"),
			ProfilerPassword:  v.GetString("telemetry.profiler_password"),
			SpanProfiles:      v.GetBool("telemetry.span_profiles"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "realty-engine"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "realty"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Database.SlowThresholdMs == 0 {
		cfg.Database.SlowThresholdMs = 200
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Event.BatchSize == 0 {
		cfg.Event.BatchSize = 100
	}
	if cfg.Event.PollInterval == 0 {
		cfg.Event.PollInterval = 5 * time.Second
	}
	if cfg.Event.MaxRetries == 0 {
		cfg.Event.MaxRetries = 5
	}
	if cfg.Event.CleanupRetention == 0 {
		cfg.Event.CleanupRetention = 168 * time.Hour
	}
	if cfg.Event.IdempotencyTTL == 0 {
		cfg.Event.IdempotencyTTL = 30 * 24 * time.Hour
	}
	if cfg.Engine.CommissionMinRatio == "" {
		cfg.Engine.CommissionMinRatio = "0.90"
	}
	if cfg.Engine.DefaultCashAccount == "" {
		cfg.Engine.DefaultCashAccount = "1011"
	}
	if cfg.Engine.ReceivableAccount == "" {
		cfg.Engine.ReceivableAccount = "1213"
	}
	if cfg.Engine.RevenueAccount == "" {
		cfg.Engine.RevenueAccount = "7012"
	}
	if cfg.Engine.SuspenseAccountID == "" {
		cfg.Engine.SuspenseAccountID = "00000000-0000-0000-0000-000000000999"
	}
	if cfg.Scheduler.AgingInterval == 0 {
		cfg.Scheduler.AgingInterval = time.Hour
	}
	if cfg.Scheduler.AgingBatchSize == 0 {
		cfg.Scheduler.AgingBatchSize = 500
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 10 * time.Minute
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 30 * time.Second
	}
	if cfg.Telemetry.ProfilerAddress == "" {
		cfg.Telemetry.ProfilerAddress = "http://localhost:4040"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	ratio, err := c.Engine.MinRatio()
	if err != nil {
		return fmt.Errorf("engine.commission_min_ratio: %w", err)
	}
	if !ratio.IsPositive() || ratio.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("engine.commission_min_ratio must be in (0, 1], got %s", ratio)
	}
	if c.Engine.GraceDays < 0 {
		return fmt.Errorf("engine.grace_days cannot be negative")
	}
	if _, err := c.Engine.SuspenseID(); err != nil {
		return fmt.Errorf("engine.suspense_account_id: %w", err)
	}
	if c.Scheduler.AgingBatchSize <= 0 {
		return fmt.Errorf("scheduler.aging_batch_size must be positive")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// MinRatio parses the commission ratio
func (e *EngineConfig) MinRatio() (decimal.Decimal, error) {
	return decimal.NewFromString(e.CommissionMinRatio)
}

// SuspenseID parses the suspense account id
func (e *EngineConfig) SuspenseID() (uuid.UUID, error) {
	return uuid.Parse(e.SuspenseAccountID)
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the host:port of the Redis server
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
