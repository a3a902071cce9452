package telemetry

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetricsConfig configures database metrics collection
type DBMetricsConfig struct {
	Enabled            bool
	SlowQueryThreshold time.Duration // default 200ms
	PoolStatsInterval  time.Duration // default 15s
}

// DefaultDBMetricsConfig returns the default configuration
func DefaultDBMetricsConfig() DBMetricsConfig {
	return DBMetricsConfig{
		Enabled:            true,
		SlowQueryThreshold: 200 * time.Millisecond,
		PoolStatsInterval:  15 * time.Second,
	}
}

// DBMetrics records connection pool state and per-statement latency
type DBMetrics struct {
	poolConnections    *Gauge
	poolConnectionsMax *Gauge
	queryTotal         *Counter
	queryDuration      *Histogram
	slowQueryTotal     *Counter

	config   DBMetricsConfig
	logger   *zap.Logger
	sqlDB    *sql.DB
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDBMetrics registers the database instruments on meter
func NewDBMetrics(meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.PoolStatsInterval <= 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}

	m := &DBMetrics{config: cfg, logger: logger, stopCh: make(chan struct{})}
	var err error
	if m.poolConnections, err = NewGauge(meter, "db_pool_connections", "Connections in the pool by state", "{connection}"); err != nil {
		return nil, err
	}
	if m.poolConnectionsMax, err = NewGauge(meter, "db_pool_connections_max", "Maximum open connections", "{connection}"); err != nil {
		return nil, err
	}
	if m.queryTotal, err = NewCounter(meter, "db_query_total", "Statements executed by operation", "{query}"); err != nil {
		return nil, err
	}
	if m.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Statement latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.slowQueryTotal, err = NewCounter(meter, "db_slow_query_total", "Statements slower than the threshold, by table", "{query}"); err != nil {
		return nil, err
	}
	return m, nil
}

// StartPoolStatsCollection samples sqlDB.Stats every PoolStatsInterval until Stop
func (m *DBMetrics) StartPoolStatsCollection(ctx context.Context, sqlDB *sql.DB) {
	if sqlDB == nil {
		m.logger.Warn("Cannot start pool stats collection without a sql.DB")
		return
	}
	m.sqlDB = sqlDB

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.config.PoolStatsInterval)
		defer ticker.Stop()

		m.collectPoolStats(ctx)
		for {
			select {
			case <-ticker.C:
				m.collectPoolStats(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *DBMetrics) collectPoolStats(ctx context.Context) {
	stats := m.sqlDB.Stats()
	m.poolConnectionsMax.Record(ctx, int64(stats.MaxOpenConnections))
	m.poolConnections.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	m.poolConnections.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	m.poolConnections.Record(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))
}

// Stop ends pool stats collection. Safe to call more than once.
func (m *DBMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

// RecordQuery records one statement
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, duration time.Duration) {
	operation = strings.ToUpper(operation)
	if operation == "" {
		operation = "UNKNOWN"
	}
	m.queryTotal.Inc(ctx, AttrDBOperation.String(operation))
	m.queryDuration.RecordDuration(ctx, duration, AttrDBOperation.String(operation))

	if duration > m.config.SlowQueryThreshold {
		if table == "" {
			table = "unknown"
		}
		m.slowQueryTotal.Inc(ctx, AttrDBTable.String(table))
	}
}

// DBMetricsPlugin is a GORM plugin feeding DBMetrics
type DBMetricsPlugin struct {
	metrics *DBMetrics
}

// NewDBMetricsPlugin creates a DBMetricsPlugin
func NewDBMetricsPlugin(metrics *DBMetrics) *DBMetricsPlugin {
	return &DBMetricsPlugin{metrics: metrics}
}

// Name implements gorm.Plugin
func (p *DBMetricsPlugin) Name() string {
	return "realty:db_metrics"
}

type dbMetricsStartKey struct{}

// operationFor maps a GORM callback chain to the SQL verb it executes
var operationFor = map[string]string{
	"create": "INSERT",
	"query":  "SELECT",
	"update": "UPDATE",
	"delete": "DELETE",
}

// Initialize implements gorm.Plugin
func (p *DBMetricsPlugin) Initialize(db *gorm.DB) error {
	for name, hooks := range statementHooks(db) {
		op := operationFor[name]
		if err := hooks[0]("realty_metrics:before_"+name, startTimer); err != nil {
			return err
		}
		if err := hooks[1]("realty_metrics:after_"+name, func(tx *gorm.DB) { p.record(tx, op) }); err != nil {
			return err
		}
	}
	return nil
}

func startTimer(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	db.Statement.Context = context.WithValue(ctx, dbMetricsStartKey{}, time.Now())
}

func (p *DBMetricsPlugin) record(db *gorm.DB, op string) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if op == "" {
		op = detectOperationType(db.Statement.SQL.String())
	}
	var elapsed time.Duration
	if start, ok := ctx.Value(dbMetricsStartKey{}).(time.Time); ok {
		elapsed = time.Since(start)
	}
	p.metrics.RecordQuery(ctx, op, db.Statement.Table, elapsed)
}

// detectOperationType reads the verb of a raw statement
func detectOperationType(stmt string) string {
	stmt = strings.ToUpper(strings.TrimSpace(stmt))
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(stmt, verb) {
			return verb
		}
	}
	return "OTHER"
}

// RegisterDBMetrics installs query metrics and starts pool sampling on db.
// It returns nil when disabled or when the meter provider is not exporting.
func RegisterDBMetrics(ctx context.Context, db *gorm.DB, mp *MeterProvider, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if !cfg.Enabled || mp == nil || !mp.IsEnabled() {
		logger.Debug("Database metrics disabled")
		return nil, nil
	}

	metrics, err := NewDBMetrics(mp.Meter("db.client"), cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Use(NewDBMetricsPlugin(metrics)); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	metrics.StartPoolStatsCollection(ctx, sqlDB)

	logger.Info("Database metrics registered",
		zap.Duration("slow_query_threshold", metrics.config.SlowQueryThreshold),
		zap.Duration("pool_stats_interval", metrics.config.PoolStatsInterval),
	)
	return metrics, nil
}
