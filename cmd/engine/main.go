// Command engine runs the installment reconciliation engine: it generates
// schedules on demand, ages receivables on a schedule and delivers commission
// events from the outbox until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	appevent "github.com/erp/realty/internal/application/event"
	appfinance "github.com/erp/realty/internal/application/finance"
	"github.com/erp/realty/internal/domain/finance"
	"github.com/erp/realty/internal/domain/shared"
	"github.com/erp/realty/internal/infrastructure/cache"
	"github.com/erp/realty/internal/infrastructure/config"
	"github.com/erp/realty/internal/infrastructure/event"
	"github.com/erp/realty/internal/infrastructure/logger"
	"github.com/erp/realty/internal/infrastructure/persistence"
	"github.com/erp/realty/internal/infrastructure/scheduler"
	"github.com/erp/realty/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// systemActor is recorded as the creator of rows generated from the command line
var systemActor = uuid.MustParse("00000000-0000-0000-0000-000000000001")

func main() {
	generate := flag.Bool("generate", false, "generate schedules for every active contract without one, then exit")
	contract := flag.String("contract", "", "generate the schedule of a single contract, then exit")
	requeue := flag.String("requeue", "", "requeue a dead outbox event by event id, or \"all\", then exit")
	outboxStats := flag.Bool("outbox-stats", false, "print outbox entry counts per status, then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx := context.Background()

	// Bootstrap logger for telemetry setup; replaced once the OTLP core exists
	bootLog, err := newLogger(cfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize log export", zap.Error(err))
	}

	log, err := newLogger(cfg, logger.WithCore(telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		LoggerProvider: lp,
		Level:          parseLevel(cfg.Log.Level),
	})))
	if err != nil {
		bootLog.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting reconciliation engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
	)

	profilerCfg := telemetry.DefaultProfilerConfig(cfg.Telemetry.ServiceName, cfg.Telemetry.ProfilerAddress)
	profilerCfg.Enabled = cfg.Telemetry.ProfilingEnabled
	profilerCfg.BasicAuthUser = cfg.Telemetry.ProfilerUser
	profilerCfg.BasicAuthPassword = cfg.Telemetry.ProfilerPassword
	profiler, err := telemetry.NewProfiler(profilerCfg, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() && cfg.Telemetry.SpanProfiles {
		tp.EnableSpanProfiles()
	}

	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connected successfully")

	tracingCfg := telemetry.DefaultDBTracingConfig()
	tracingCfg.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	tracingCfg.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	if err := telemetry.NewDBTracingPlugin(tracingCfg, log).RegisterOtelGorm(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	dbMetricsCfg := telemetry.DefaultDBMetricsConfig()
	dbMetricsCfg.Enabled = cfg.Telemetry.DBMetricsEnabled
	dbMetrics, err := telemetry.RegisterDBMetrics(ctx, db.DB, mp, dbMetricsCfg, log)
	if err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}

	metrics, err := telemetry.NewEngineMetrics(telemetry.EngineMetricsConfig{
		Meter:    mp.Meter("realty.engine"),
		Logger:   log,
		Provider: telemetry.NewGormReceivableMetricsProvider(db.DB),
	})
	if err != nil {
		log.Fatal("Failed to create engine metrics", zap.Error(err))
	}
	if mp.IsEnabled() {
		metrics.StartPeriodicCollection(ctx, 0)
	}

	// Event plumbing
	serializer := event.NewEventSerializer()
	scope := persistence.NewGormTransactionScope(db.DB, serializer).WithOutboxMaxRetries(cfg.Event.MaxRetries)

	services, err := newServices(cfg, db, scope, log)
	if err != nil {
		log.Fatal("Invalid engine configuration", zap.Error(err))
	}
	services.setEngineMetrics(metrics)

	shutdown := func() {
		metrics.Stop()
		if dbMetrics != nil {
			dbMetrics.Stop()
		}
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
		for name, fn := range map[string]func(context.Context) error{
			"tracer": tp.Shutdown,
			"meter":  mp.Shutdown,
			"logger": lp.Shutdown,
		} {
			if err := fn(context.Background()); err != nil {
				log.Error("Error shutting down telemetry", zap.String("provider", name), zap.Error(err))
			}
		}
	}

	// One-shot generation modes
	if *contract != "" || *generate {
		code := runGeneration(ctx, services.schedules, *contract, cfg.Engine.BulkLimit, log)
		shutdown()
		_ = logger.Sync(log)
		os.Exit(code)
	}
	if *requeue != "" || *outboxStats {
		outbox := appevent.NewOutboxService(event.NewGormOutboxRepository(db.DB), log)
		code := runOutboxAdmin(ctx, outbox, *requeue, log)
		shutdown()
		_ = logger.Sync(log)
		os.Exit(code)
	}
	defer shutdown()

	// Commission delivery: outbox -> bus -> idempotent commission handler
	eventBus := event.NewInMemoryEventBus(log)
	idempotencyStore, err := cache.OpenIdempotencyStore(ctx, cfg.Redis, cfg.Event, log)
	if err != nil {
		log.Fatal("Failed to open idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Warn("Failed to close idempotency store", zap.Error(err))
		}
	}()
	commissionHandler := event.NewIdempotentHandler(
		appfinance.NewCommissionEventHandler(appfinance.NewLoggingCommissionSink(log), log),
		idempotencyStore,
		log,
		event.WithIdempotencyConfig(shared.IdempotencyConfig{TTL: cfg.Event.IdempotencyTTL, Enabled: true}),
		event.WithRedeliveryRecorder(metrics),
	)
	eventBus.Subscribe(commissionHandler)

	// Cleanup is scheduled below as a job; the processor only delivers
	outboxCfg := event.OutboxProcessorConfig{
		BatchSize:        cfg.Event.BatchSize,
		PollInterval:     cfg.Event.PollInterval,
		CleanupEnabled:   false,
		CleanupRetention: cfg.Event.CleanupRetention,
		CleanupInterval:  time.Hour,
	}
	outboxProcessor := event.NewOutboxProcessor(event.NewGormOutboxRepository(db.DB), eventBus, serializer, outboxCfg, log)
	if cfg.Event.ProcessorEnabled {
		if err := outboxProcessor.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		defer func() {
			if err := outboxProcessor.Stop(context.Background()); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
		log.Info("Outbox processor started",
			zap.Int("batch_size", outboxCfg.BatchSize),
			zap.Duration("poll_interval", outboxCfg.PollInterval),
		)
	}

	jobs := scheduler.NewScheduler(scheduler.SchedulerConfig{
		JobTimeout:    cfg.Scheduler.JobTimeout,
		RetryAttempts: scheduler.DefaultSchedulerConfig().RetryAttempts,
		RetryDelay:    scheduler.DefaultSchedulerConfig().RetryDelay,
	}, log)
	jobs.SetEngineMetrics(metrics)
	if cfg.Scheduler.AgingEnabled {
		if err := jobs.Register(scheduler.NewAgingJob(services.aging, shared.SystemClock{}, log), cfg.Scheduler.AgingInterval, true); err != nil {
			log.Fatal("Failed to register aging job", zap.Error(err))
		}
	}
	if cfg.Event.CleanupEnabled {
		if err := jobs.Register(scheduler.NewOutboxCleanupJob(outboxProcessor), outboxCfg.CleanupInterval, false); err != nil {
			log.Fatal("Failed to register outbox cleanup job", zap.Error(err))
		}
	}
	if err := jobs.Start(ctx); err != nil {
		log.Fatal("Failed to start job scheduler", zap.Error(err))
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down engine...")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := jobs.Stop(stopCtx); err != nil {
		log.Error("Job scheduler forced to stop", zap.Error(err))
	}

	log.Info("Engine exited gracefully")
}

type engineServices struct {
	schedules      *appfinance.ScheduleService
	payments       *appfinance.PaymentService
	classification *appfinance.ClassificationService
	aging          *appfinance.AgingService
}

func newServices(cfg *config.Config, db *persistence.Database, scope appfinance.TransactionScope, log *zap.Logger) (*engineServices, error) {
	ratio, err := cfg.Engine.MinRatio()
	if err != nil {
		return nil, fmt.Errorf("engine.commission_min_ratio: %w", err)
	}
	suspense, err := cfg.Engine.SuspenseID()
	if err != nil {
		return nil, fmt.Errorf("engine.suspense_account_id: %w", err)
	}

	ledger := appfinance.NewLedgerService(log,
		appfinance.WithAccountCodes(accountCodes(cfg.Engine)),
		appfinance.WithSuspenseAccount(suspense),
	)
	classification := appfinance.NewClassificationService(scope, log,
		appfinance.WithClassifier(finance.NewInstallmentClassifier(ratio, cfg.Engine.GraceDays)),
	)
	var paymentOpts []appfinance.PaymentOption
	if cfg.Engine.ClassifyOnPayment {
		paymentOpts = append(paymentOpts, appfinance.WithClassification(classification))
	}

	return &engineServices{
		schedules: appfinance.NewScheduleService(
			persistence.NewGormContractRepository(db.DB),
			persistence.NewGormLotRepository(db.DB),
			persistence.NewGormPricingRepository(db.DB),
			scope, ledger, log,
		),
		payments:       appfinance.NewPaymentService(scope, ledger, log, paymentOpts...),
		classification: classification,
		aging:          appfinance.NewAgingService(scope, cfg.Scheduler.AgingBatchSize, log),
	}, nil
}

func (s *engineServices) setEngineMetrics(m *telemetry.EngineMetrics) {
	s.schedules.SetEngineMetrics(m)
	s.payments.SetEngineMetrics(m)
	s.classification.SetEngineMetrics(m)
	s.aging.SetEngineMetrics(m)
}

// accountCodes overlays configured codes on the PCGE defaults
func accountCodes(cfg config.EngineConfig) finance.AccountCodes {
	codes := finance.DefaultAccountCodes()
	for method, code := range cfg.MethodAccounts {
		m := finance.PaymentMethod(strings.ToUpper(method))
		if m.IsValid() && code != "" {
			codes.Methods[m] = code
		}
	}
	if cfg.DefaultCashAccount != "" {
		codes.DefaultCash = cfg.DefaultCashAccount
	}
	if cfg.ReceivableAccount != "" {
		codes.ReceivableControl = cfg.ReceivableAccount
	}
	if cfg.RevenueAccount != "" {
		codes.SalesRevenue = cfg.RevenueAccount
	}
	return codes
}

// runGeneration returns the process exit code
func runGeneration(ctx context.Context, schedules *appfinance.ScheduleService, contract string, limit int, log *zap.Logger) int {
	if contract != "" {
		id, err := uuid.Parse(contract)
		if err != nil {
			log.Error("Invalid contract id", zap.String("contract", contract), zap.Error(err))
			return 2
		}
		result, err := schedules.GenerateForContract(ctx, id, systemActor)
		if err != nil {
			log.Error("Schedule generation failed", zap.String("contract_id", contract), zap.Error(err))
			return 1
		}
		log.Info("Schedule generated",
			zap.String("contract_id", contract),
			zap.Int("schedules_created", result.SchedulesCreated),
			zap.Int("receivables_created", result.ReceivablesCreated),
			zap.Int("receivables_skipped", result.ReceivablesSkipped),
			zap.Int("row_errors", len(result.RowErrors)),
		)
		if len(result.RowErrors) > 0 {
			return 1
		}
		return 0
	}

	result, err := schedules.GenerateBulk(ctx, appfinance.BulkOptions{Limit: limit, ActorID: systemActor})
	if err != nil {
		log.Error("Bulk generation failed", zap.Error(err))
		return 1
	}
	for _, f := range result.Failures {
		log.Warn("Contract failed", zap.String("contract_id", f.ContractID.String()), zap.String("error", f.Error))
	}
	log.Info("Bulk generation finished",
		zap.Bool("success", result.Success),
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
	)
	if !result.Success {
		return 1
	}
	return 0
}

// runOutboxAdmin requeues dead entries when requeue is set and always reports stats
func runOutboxAdmin(ctx context.Context, outbox *appevent.OutboxService, requeue string, log *zap.Logger) int {
	switch requeue {
	case "":
	case "all":
		if _, err := outbox.RequeueAll(ctx); err != nil {
			log.Error("Requeue failed", zap.Error(err))
			return 1
		}
	default:
		eventID, err := uuid.Parse(requeue)
		if err != nil {
			log.Error("Invalid event id", zap.String("event_id", requeue), zap.Error(err))
			return 2
		}
		if _, err := outbox.Requeue(ctx, eventID); err != nil {
			log.Error("Requeue failed", zap.String("event_id", requeue), zap.Error(err))
			return 1
		}
	}

	stats, err := outbox.Stats(ctx)
	if err != nil {
		log.Error("Failed to read outbox stats", zap.Error(err))
		return 1
	}
	log.Info("Outbox status",
		zap.Int64("pending", stats.Pending),
		zap.Int64("processing", stats.Processing),
		zap.Int64("sent", stats.Sent),
		zap.Int64("failed", stats.Failed),
		zap.Int64("dead", stats.Dead),
	)
	if stats.Dead > 0 {
		dead, err := outbox.ListDead(ctx, 20)
		if err == nil {
			for _, e := range dead {
				log.Warn("Dead outbox entry",
					zap.String("event_id", e.EventID.String()),
					zap.String("event_type", e.EventType),
					zap.String("last_error", e.LastError),
				)
			}
		}
	}
	return 0
}

func newLogger(cfg *config.Config, opts ...logger.Option) (*zap.Logger, error) {
	return logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	}, opts...)
}

func parseLevel(level string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
