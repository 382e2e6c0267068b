// Package main - точка входа для фоновых процессов (Worker) Saga Progress Hub.
//
// Worker отвечает за периодические задачи:
// - Сверка сумм XP учеников с их завершёнными главами
//
// Суммы XP обновляются транзакционно вместе с прогрессом, но инкрементальный
// путь начисления может отказать после записи прогресса. Сверка поднимает
// отставшие суммы до пола, выведенного из завершённых глав, и никогда их
// не опускает, поэтому её можно запускать сколько угодно раз.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/saga-hub/saga-progress-hub/config"
	"github.com/saga-hub/saga-progress-hub/internal/application/eventhandler"
	"github.com/saga-hub/saga-progress-hub/internal/infrastructure/messaging"
	"github.com/saga-hub/saga-progress-hub/internal/infrastructure/persistence/postgres"
	"github.com/saga-hub/saga-progress-hub/internal/infrastructure/persistence/redis"
	"github.com/saga-hub/saga-progress-hub/internal/infrastructure/scheduler"
	"github.com/saga-hub/saga-progress-hub/internal/infrastructure/scheduler/jobs"
	"github.com/saga-hub/saga-progress-hub/pkg/logger"
)

func main() {
	// Создаём корневой контекст с возможностью отмены
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запускаем приложение
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting Saga Progress Hub Worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)

	if !cfg.Scheduler.Enabled || !cfg.Features.IsEnabled(config.FeatureXPSweep, nil) {
		log.Warn("scheduler disabled, worker has nothing to do")
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	// Проверяем соединение
	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК МИГРАЦИЙ (Worker также должен иметь актуальную схему)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.MigrateOnStart {
		log.Info("checking database migrations...")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (замок, чтобы сверку вёл один воркер)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache

	lockEnabled := !cfg.Redis.Disabled &&
		cfg.Features.IsEnabled(config.FeatureXPSweepLock, nil)

	if lockEnabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			// Без замка сверка остаётся корректной: она только поднимает
			// суммы до пола, двойной запуск не вредит
			log.Warn("failed to connect to Redis, sweep lock disabled", logger.Err(err))
			redisCache = nil
		} else {
			defer redisCache.Close()
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	busCfg := messaging.DefaultEventBusConfig()
	busCfg.Logger = log
	eventBus := messaging.NewEventBus(busCfg)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	integrityMonitor := eventhandler.NewOnIntegritySignalHandler(log)
	if err := eventBus.Subscribe(integrityMonitor); err != nil {
		return fmt.Errorf("failed to subscribe integrity monitor: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. РЕПОЗИТОРИИ И ЗАДАЧА СВЕРКИ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	progressRepo := postgres.NewProgressRepository(dbConn)
	ledgerRepo := postgres.NewLedgerRepository(dbConn)

	sweepCfg := jobs.DefaultSweepConfig()
	sweepCfg.Timeout = cfg.Scheduler.SweepTimeout
	sweepCfg.PerLearnerRetries = cfg.Scheduler.SweepPerLearnerRetries

	sweepJob := jobs.NewReconcileXPTotalsJob(progressRepo, ledgerRepo, eventBus, log, sweepCfg)

	var job scheduler.Job = sweepJob
	if redisCache != nil {
		job = &lockedJob{inner: sweepJob, cache: redisCache, log: log}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(scheduler.Config{Logger: log})

	schedule := scheduler.NewJitteredSchedule(cfg.Scheduler.SweepInterval, cfg.Scheduler.SweepJitter)
	if err := sched.Register(job, schedule); err != nil {
		return fmt.Errorf("failed to register sweep job: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() {
		log.Info("stopping scheduler...")
		_ = sched.Stop()
	}()

	log.Info("Saga Progress Hub Worker is running",
		logger.Duration("sweep_interval", cfg.Scheduler.SweepInterval),
		logger.Duration("sweep_jitter", cfg.Scheduler.SweepJitter),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", logger.String("signal", sig.String()))

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SWEEP LOCK
// ══════════════════════════════════════════════════════════════════════════════

// lockedJob пропускает запуск, если другой воркер уже держит Redis-замок.
type lockedJob struct {
	inner scheduler.Job
	cache *redis.Cache
	log   *logger.Logger
}

func (j *lockedJob) Name() string        { return j.inner.Name() }
func (j *lockedJob) Description() string { return j.inner.Description() }

func (j *lockedJob) Run(ctx context.Context) error {
	lockKey := redis.LockKey(j.inner.Name())

	acquired, err := j.cache.SetNX(ctx, lockKey, "locked", redis.TTLSweepLock)
	if err != nil {
		// Недоступный Redis не должен останавливать сверку
		j.log.Warn("sweep lock check failed, running without lock", logger.Err(err))
		return j.inner.Run(ctx)
	}
	if !acquired {
		j.log.Info("sweep lock held by another worker, skipping run")
		return nil
	}

	defer func() {
		if err := j.cache.Delete(context.Background(), lockKey); err != nil {
			j.log.Warn("failed to release sweep lock", logger.Err(err))
		}
	}()

	return j.inner.Run(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	return logger.New(opts)
}
