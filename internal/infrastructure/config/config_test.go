package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var managedEnv = []string{
	"ERP_APP_NAME",
	"ERP_APP_ENV",
	"ERP_DATABASE_HOST",
	"ERP_DATABASE_PORT",
	"ERP_DATABASE_USER",
	"ERP_DATABASE_PASSWORD",
	"ERP_DATABASE_DBNAME",
	"ERP_DATABASE_SSLMODE",
	"ERP_DATABASE_MAX_OPEN_CONNS",
	"ERP_DATABASE_MAX_IDLE_CONNS",
	"ERP_ENGINE_COMMISSION_MIN_RATIO",
	"ERP_ENGINE_GRACE_DAYS",
	"ERP_ENGINE_SUSPENSE_ACCOUNT_ID",
	"ERP_ENGINE_CLASSIFY_ON_PAYMENT",
	"ERP_SCHEDULER_AGING_INTERVAL",
	"ERP_TELEMETRY_SAMPLING_RATIO",
	"ERP_TELEMETRY_DB_LOG_FULL_SQL",
	"ERP_TELEMETRY_PROFILING_ENABLED",
	"ERP_TELEMETRY_PROFILER_ADDRESS",
	"ERP_TELEMETRY_SPAN_PROFILES",
}

// clearEnv unsets every managed variable for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range managedEnv {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "realty-engine", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "realty", cfg.Database.DBName)
		assert.Equal(t, "disable", cfg.Database.SSLMode)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, "warn", cfg.Database.LogLevel)
		assert.Equal(t, 200, cfg.Database.SlowThresholdMs)

		assert.Equal(t, "0.90", cfg.Engine.CommissionMinRatio)
		assert.Equal(t, 5, cfg.Engine.GraceDays)
		assert.True(t, cfg.Engine.ClassifyOnPayment)
		assert.Equal(t, "1011", cfg.Engine.DefaultCashAccount)
		assert.Equal(t, "1213", cfg.Engine.ReceivableAccount)
		assert.Equal(t, "7012", cfg.Engine.RevenueAccount)

		assert.True(t, cfg.Event.ProcessorEnabled)
		assert.Equal(t, 100, cfg.Event.BatchSize)
		assert.Equal(t, 5*time.Second, cfg.Event.PollInterval)
		assert.True(t, cfg.Scheduler.AgingEnabled)
		assert.Equal(t, time.Hour, cfg.Scheduler.AgingInterval)
		assert.Equal(t, 500, cfg.Scheduler.AgingBatchSize)
		assert.Equal(t, "realty-engine", cfg.Telemetry.ServiceName)
		assert.False(t, cfg.Telemetry.ProfilingEnabled)
		assert.Equal(t, "http://localhost:4040", cfg.Telemetry.ProfilerAddress)
	})

	t.Run("loads values from environment variables with ERP prefix", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ERP_APP_NAME", "test-app")
		t.Setenv("ERP_APP_ENV", "testing")
		t.Setenv("ERP_DATABASE_HOST", "testdb.local")
		t.Setenv("ERP_DATABASE_PORT", "5433")
		t.Setenv("ERP_DATABASE_PASSWORD", "testpass")
		t.Setenv("ERP_DATABASE_MAX_OPEN_CONNS", "50")
		t.Setenv("ERP_DATABASE_MAX_IDLE_CONNS", "10")
		t.Setenv("ERP_ENGINE_COMMISSION_MIN_RATIO", "0.85")
		t.Setenv("ERP_ENGINE_GRACE_DAYS", "0")
		t.Setenv("ERP_ENGINE_CLASSIFY_ON_PAYMENT", "false")
		t.Setenv("ERP_SCHEDULER_AGING_INTERVAL", "15m")
		t.Setenv("ERP_TELEMETRY_PROFILING_ENABLED", "true")
		t.Setenv("ERP_TELEMETRY_PROFILER_ADDRESS", "http://pyroscope:4040")
		t.Setenv("ERP_TELEMETRY_SPAN_PROFILES", "true")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "testing", cfg.App.Env)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "testpass", cfg.Database.Password)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.Equal(t, "0.85", cfg.Engine.CommissionMinRatio)
		assert.Equal(t, 0, cfg.Engine.GraceDays)
		assert.False(t, cfg.Engine.ClassifyOnPayment)
		assert.Equal(t, 15*time.Minute, cfg.Scheduler.AgingInterval)
		assert.Equal(t, "test-app", cfg.Telemetry.ServiceName)
		assert.True(t, cfg.Telemetry.ProfilingEnabled)
		assert.Equal(t, "http://pyroscope:4040", cfg.Telemetry.ProfilerAddress)
		assert.True(t, cfg.Telemetry.SpanProfiles)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ERP_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("ERP_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns")
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("validates MaxIdleConns cannot be negative", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ERP_DATABASE_MAX_IDLE_CONNS", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns cannot be negative")
	})

	t.Run("rejects commission ratio outside (0, 1]", func(t *testing.T) {
		for _, ratio := range []string{"1.5", "-0.1", "abc"} {
			clearEnv(t)
			t.Setenv("ERP_ENGINE_COMMISSION_MIN_RATIO", ratio)

			_, err := Load()
			require.Error(t, err, ratio)
			assert.Contains(t, err.Error(), "engine.commission_min_ratio")
		}
	})

	t.Run("rejects negative grace days", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ERP_ENGINE_GRACE_DAYS", "-2")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "engine.grace_days")
	})

	t.Run("rejects malformed suspense account id", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ERP_ENGINE_SUSPENSE_ACCOUNT_ID", "not-a-uuid")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "engine.suspense_account_id")
	})

	t.Run("validates telemetry sampling ratio", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ERP_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry.sampling_ratio")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ERP_APP_ENV", "production")
		t.Setenv("ERP_DATABASE_PASSWORD", "secure-password")
		t.Setenv("ERP_DATABASE_SSLMODE", "require")
	}

	t.Run("requires database.password in production", func(t *testing.T) {
		setValidProductionBase(t)
		os.Unsetenv("ERP_DATABASE_PASSWORD")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("ERP_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("forbids full SQL in traces in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("ERP_TELEMETRY_DB_LOG_FULL_SQL", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry.db_log_full_sql")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestEngineConfig_Parsers(t *testing.T) {
	e := EngineConfig{CommissionMinRatio: "0.90", SuspenseAccountID: "00000000-0000-0000-0000-000000000999"}

	ratio, err := e.MinRatio()
	require.NoError(t, err)
	assert.Equal(t, "0.9", ratio.String())

	id, err := e.SuspenseID()
	require.NoError(t, err)
	assert.Equal(t, uuid.MustParse("00000000-0000-0000-0000-000000000999"), id)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost")
		assert.Contains(t, dsn, "5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "cache.internal", Port: 6380}
	assert.Equal(t, "cache.internal:6380", cfg.Addr())
}
