// Package bootstrap assembles the subscription engine from configuration.
// The API server and the one-shot job command share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	appsub "github.com/ams/backend/internal/application/subscription"
	"github.com/ams/backend/internal/domain/billing"
	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/infrastructure/cache"
	"github.com/ams/backend/internal/infrastructure/collaborator"
	"github.com/ams/backend/internal/infrastructure/config"
	"github.com/ams/backend/internal/infrastructure/event"
	"github.com/ams/backend/internal/infrastructure/lock"
	"github.com/ams/backend/internal/infrastructure/logger"
	"github.com/ams/backend/internal/infrastructure/persistence"
	"github.com/ams/backend/internal/infrastructure/scheduler"
	"github.com/ams/backend/internal/infrastructure/storage"
	"github.com/ams/backend/internal/infrastructure/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Version is the build version, set with -ldflags "-X ...bootstrap.Version=..."
var Version = "dev"

// Container holds the wired services and the resources they own
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Clock     shared.Clock
	Telemetry *telemetry.Providers
	Profiler  *telemetry.Profiler
	Database  *persistence.Database
	Redis     *redis.Client

	Repositories appsub.Repositories
	Catalog      *cache.CatalogCache
	EventBus     *event.InMemoryEventBus

	Subscriptions *appsub.SubscriptionService
	CatalogAdmin  *appsub.CatalogService
	Lifecycle     *appsub.LifecycleService
	Renewals      *appsub.RenewalService
	Recognition   *appsub.RecognitionService
	Failures      *appsub.FailureService
	Jobs          *appsub.JobRunService

	// Scheduler and CronTrigger are nil unless the scheduler is enabled
	Scheduler   *scheduler.Scheduler
	CronTrigger *scheduler.CronTrigger

	closers []func(context.Context) error
}

// Options selects the optional parts of the container
type Options struct {
	// Scheduler starts the cron trigger and its worker pool
	Scheduler bool
	// Clock overrides the system clock
	Clock shared.Clock
}

// New builds the container. On error every resource opened so far is
// released.
func New(ctx context.Context, cfg *config.Config, opts Options) (c *Container, err error) {
	c = &Container{Config: cfg, Clock: opts.Clock}
	if c.Clock == nil {
		c.Clock = shared.SystemClock{}
	}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
			c = nil
		}
	}()

	if err = c.initObservability(ctx); err != nil {
		return c, err
	}
	if err = c.initStorage(); err != nil {
		return c, err
	}
	if err = c.initServices(ctx); err != nil {
		return c, err
	}
	if opts.Scheduler && cfg.Scheduler.Enabled {
		if err = c.initScheduler(); err != nil {
			return c, err
		}
	}
	return c, nil
}

func (c *Container) onClose(fn func(context.Context) error) {
	c.closers = append(c.closers, fn)
}

// Close releases resources in reverse order of acquisition
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) initObservability(ctx context.Context) error {
	cfg := c.Config

	// A plain logger first; the OTLP bridge needs the providers built with it
	base, err := logger.New(c.loggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	providers, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    Version,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsEnabled:    cfg.Telemetry.MetricsEnabled,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}, base)
	if err != nil {
		_ = base.Sync()
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	c.Telemetry = providers
	c.onClose(providers.Shutdown)

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zap.InfoLevel
	}
	log, err := logger.New(c.loggerConfig(), logger.WithCore(providers.LogCore(level)))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	c.Logger = log
	c.onClose(func(context.Context) error {
		_ = log.Sync()
		return nil
	})

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.PyroscopeURL,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		return err
	}
	c.Profiler = profiler
	c.onClose(func(context.Context) error { return profiler.Stop() })
	if profiler.IsEnabled() && providers.TracingEnabled() {
		providers.EnableSpanProfiles()
	}
	return nil
}

func (c *Container) loggerConfig() *logger.Config {
	return &logger.Config{
		Level:      c.Config.Log.Level,
		Format:     c.Config.Log.Format,
		Output:     c.Config.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    c.Config.App.Name,
	}
}

func (c *Container) initStorage() error {
	cfg := c.Config
	log := c.Logger

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithLogger(gormLog),
		persistence.WithPlugin(telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		}, log)),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	c.Database = db
	c.onClose(func(context.Context) error { return db.Close() })
	log.Info("Database connected successfully")

	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(cfg.Redis)
		if err != nil {
			return err
		}
		c.Redis = client
		c.onClose(func(context.Context) error { return client.Close() })
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}
	return nil
}

func (c *Container) initServices(ctx context.Context) error {
	cfg := c.Config
	log := c.Logger

	engineCfg, err := EngineConfig(cfg.Jobs)
	if err != nil {
		return err
	}

	c.Repositories = persistence.NewRepositories(c.Database.DB)
	txScope := persistence.NewGormTransactionScope(c.Database.DB)
	c.Catalog = cache.NewCatalogCache(billing.RepositoryCatalog{
		Plans:          c.Repositories.Plans,
		BillingPeriods: c.Repositories.BillingPeriods,
	}, cfg.Cache.PlanCacheSize, cfg.Cache.PlanCacheTTL)

	collaborators, err := collaborator.NewCollaborators(cfg.Collaborators, log)
	if err != nil {
		return fmt.Errorf("failed to configure collaborators: %w", err)
	}

	// Go through an interface so a nil *redis.Client stays a nil interface
	var redisClient redis.UniversalClient
	if c.Redis != nil {
		redisClient = c.Redis
	}
	locker := lock.NewLocker(cfg, redisClient, log)
	idempotency, err := cache.NewIdempotencyStore(cfg, redisClient, log)
	if err != nil {
		return err
	}
	c.onClose(func(context.Context) error { return idempotency.Close() })

	c.EventBus = event.NewInMemoryEventBus(log)
	notifications := event.NewIdempotentHandler(
		appsub.NewStatusNotificationHandler(collaborators.Notifier, log),
		idempotency, log,
		event.WithKeyPrefix("status-notification"),
	)
	c.EventBus.Subscribe(notifications)
	log.Info("Event handlers registered", zap.Strings("status_notification_events", notifications.EventTypes()))

	c.Recognition = appsub.NewRecognitionService(
		c.Repositories.Schedules, c.Repositories.Subscriptions, c.Repositories.Failures,
		c.Catalog, collaborators.Ledger, c.Clock, engineCfg, log,
	)
	c.Recognition.SetEventPublisher(c.EventBus)

	c.Subscriptions = appsub.NewSubscriptionService(txScope, c.Repositories, c.Catalog, collaborators, c.Recognition, c.Clock, engineCfg, log)
	c.Subscriptions.SetLocker(locker)
	c.Subscriptions.SetEventPublisher(c.EventBus)

	c.Lifecycle = appsub.NewLifecycleService(c.Repositories.Subscriptions, c.Repositories.Failures, c.Catalog, c.Clock, engineCfg, log)
	c.Lifecycle.SetLocker(locker)
	c.Lifecycle.SetEventPublisher(c.EventBus)

	c.Renewals = appsub.NewRenewalService(txScope, c.Repositories, c.Catalog, collaborators, c.Recognition, c.Clock, engineCfg, log)
	c.Renewals.SetLocker(locker)
	c.Renewals.SetEventPublisher(c.EventBus)
	c.Renewals.SetReminderStore(idempotency)

	c.CatalogAdmin = appsub.NewCatalogService(c.Repositories.BillingPeriods, c.Repositories.Plans, c.Repositories.Subscriptions, txScope, log)
	c.CatalogAdmin.SetInvalidator(c.Catalog)
	c.CatalogAdmin.SetEventPublisher(c.EventBus)

	c.Failures = appsub.NewFailureService(c.Repositories.Failures, log)

	c.Jobs = appsub.NewJobRunService(c.Repositories.JobRuns, c.Lifecycle, c.Renewals, c.Recognition, c.Clock, log)
	metrics, err := telemetry.NewJobMetrics(c.Telemetry.Meter(telemetry.TracerName))
	if err != nil {
		return err
	}
	c.Jobs.SetMetrics(metrics)
	archiver, err := c.newArchiver(ctx)
	if err != nil {
		return err
	}
	c.Jobs.SetArchiver(archiver)

	if err := c.EventBus.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}
	c.onClose(c.EventBus.Stop)
	return nil
}

func (c *Container) newArchiver(ctx context.Context) (appsub.ReportArchiver, error) {
	if !c.Config.Storage.Enabled {
		c.Logger.Info("Run report archive disabled, keeping reports in memory")
		return storage.NewMemoryArchiver(), nil
	}
	archiver, err := storage.NewS3ReportArchiver(ctx, &c.Config.Storage, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure report archive: %w", err)
	}
	if err := archiver.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return archiver, nil
}

func (c *Container) initScheduler() error {
	cfg := c.Config.Scheduler
	log := c.Logger

	c.Scheduler = scheduler.NewScheduler(scheduler.Config{
		Enabled:           true,
		MaxConcurrentJobs: 1,
		JobTimeout:        cfg.JobTimeout,
		RetryAttempts:     cfg.RetryAttempts,
		RetryDelay:        cfg.RetryDelay,
	}, scheduler.NewBatchJobExecutor(c.Jobs, log), log)

	triggerCfg := scheduler.DefaultCronTriggerConfig()
	triggerCfg.Location = cfg.Location()
	triggerCfg.MaxRetries = cfg.RetryAttempts
	for jobType, spec := range map[processing.JobType]string{
		processing.JobLifecycle:   cfg.LifecycleCron,
		processing.JobRenewal:     cfg.RenewalCron,
		processing.JobRecognition: cfg.RecognitionCron,
	} {
		if spec != "" {
			triggerCfg.Specs[jobType] = spec
		}
	}

	trigger, err := scheduler.NewCronTrigger(triggerCfg, c.Scheduler, c.Clock, log)
	if err != nil {
		return err
	}
	c.CronTrigger = trigger
	return nil
}

// StartScheduler starts the worker pool and the cron trigger. It is a no-op
// when the scheduler is disabled.
func (c *Container) StartScheduler(ctx context.Context) error {
	if c.Scheduler == nil {
		return nil
	}
	if err := c.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	c.onClose(c.Scheduler.Stop)
	if err := c.CronTrigger.Start(ctx); err != nil {
		return fmt.Errorf("failed to start cron trigger: %w", err)
	}
	// Registered after the scheduler so it stops first
	c.onClose(c.CronTrigger.Stop)

	entries := c.CronTrigger.Status()
	for _, e := range entries {
		c.Logger.Info("Job scheduled",
			zap.String("job_type", e.JobType.String()),
			zap.String("spec", e.Spec),
			zap.Time("next_run", e.NextRun),
		)
	}
	return nil
}

// EngineConfig maps the jobs configuration onto the engine settings
func EngineConfig(cfg config.JobsConfig) (appsub.EngineConfig, error) {
	out := appsub.EngineConfig{
		Parallelism:          cfg.Parallelism,
		LockTTL:              cfg.LockTTL,
		LockWait:             cfg.LockWait,
		MaxFailureAttempts:   cfg.MaxFailureAttempts,
		BatchSize:            cfg.BatchSize,
		RenewalLookaheadDays: cfg.RenewalLookaheadDays,
		ReminderTTL:          cfg.ReminderTTL,
	}
	if cfg.ApprovalThreshold != "" {
		threshold, err := decimal.NewFromString(cfg.ApprovalThreshold)
		if err != nil {
			return out, fmt.Errorf("invalid jobs.approval_threshold %q: %w", cfg.ApprovalThreshold, err)
		}
		out.ApprovalThreshold = threshold
	}
	return out, nil
}
