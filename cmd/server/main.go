// Package main - точка входа для API-сервера Saga Progress Hub.
//
// Сервер обслуживает карту саги, приём учебной активности и суммы XP:
// - GET  /api/v1/learners/{id}/saga        - карта глав с выведенными статусами
// - GET  /api/v1/learners/{id}/saga/active - текущая активная глава
// - POST /api/v1/learners/{id}/activities  - учёт урока или квиза
// - GET  /api/v1/learners/{id}/xp          - накопленная сумма XP
//
// Статусы глав не хранятся как истина, а выводятся из записей прогресса
// при каждом чтении, поэтому сервер не требует фоновой синхронизации.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/saga-hub/saga-progress-hub/config"
	"github.com/saga-hub/saga-progress-hub/internal/application/command"
	"github.com/saga-hub/saga-progress-hub/internal/application/eventhandler"
	"github.com/saga-hub/saga-progress-hub/internal/application/query"
	"github.com/saga-hub/saga-progress-hub/internal/domain/catalog"
	"github.com/saga-hub/saga-progress-hub/internal/infrastructure/messaging"
	"github.com/saga-hub/saga-progress-hub/internal/infrastructure/persistence/postgres"
	"github.com/saga-hub/saga-progress-hub/internal/infrastructure/persistence/redis"
	httpapi "github.com/saga-hub/saga-progress-hub/internal/interface/http"
	"github.com/saga-hub/saga-progress-hub/internal/interface/http/handlers"
	"github.com/saga-hub/saga-progress-hub/pkg/circuitbreaker"
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
	log.Info("starting Saga Progress Hub API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.Bool("debug", cfg.App.Debug),
	)

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
	// 4. ЗАПУСК МИГРАЦИЙ
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
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	var sagaCache query.SagaViewCache

	cacheEnabled := !cfg.Redis.Disabled &&
		cfg.Features.IsEnabled(config.FeatureSagaViewCache, nil)

	if cacheEnabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			// Кеш не критичен: карта саги собирается из Postgres
			log.Warn("failed to connect to Redis, view caching disabled", logger.Err(err))
			redisCache = nil
		} else {
			defer redisCache.Close()
			sagaCache = redis.NewSagaViewCache(redisCache)
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

	// ─────────────────────────────────────────────────────────────────────────
	// 7. РЕПОЗИТОРИИ И ДОМЕННЫЕ СЕРВИСЫ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	catalogRepo := postgres.NewCatalogRepository(dbConn)
	progressRepo := postgres.NewProgressRepository(dbConn)
	ledgerRepo := postgres.NewLedgerRepository(dbConn)

	var chapterSource catalog.Repository = catalogRepo
	if !cfg.Features.IsEnabled(config.FeatureSagaPersonalized, nil) {
		// Персональные каталоги выключены: все ученики идут по общему списку
		chapterSource = defaultOnlyCatalog{catalogRepo}
	}
	resolver := catalog.NewResolver(chapterSource)

	// Автомат защищает запись активности от деградации хранилища сумм XP
	ledgerBreaker := circuitbreaker.New("xp_ledger",
		circuitbreaker.WithFailureThreshold(5),
	)
	reconciler := command.NewXPReconciler(ledgerRepo, ledgerBreaker, eventBus, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ОБРАБОТЧИКИ КОМАНД И ЗАПРОСОВ
	// ─────────────────────────────────────────────────────────────────────────
	applyHandler := command.NewApplyActivityHandler(resolver, progressRepo, reconciler, eventBus, log)

	// Без флага endpoint инициализации отвечает 501, статусы всё равно
	// выводятся и без материализованной записи
	var initHandler *command.InitializeProgressHandler
	if cfg.Features.IsEnabled(config.FeatureSagaEagerInit, nil) {
		initHandler = command.NewInitializeProgressHandler(resolver, progressRepo, eventBus, log)
	}
	sagaViewHandler := query.NewGetSagaViewHandler(resolver, progressRepo, sagaCache, eventBus, log)
	activeHandler := query.NewGetActiveChapterHandler(resolver, progressRepo)
	xpTotalHandler := query.NewGetXPTotalHandler(ledgerRepo)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ПОДПИСКА ОБРАБОТЧИКОВ СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	integrityMonitor := eventhandler.NewOnIntegritySignalHandler(log)
	if err := eventBus.Subscribe(integrityMonitor); err != nil {
		return fmt.Errorf("failed to subscribe integrity monitor: %w", err)
	}

	if sagaCache != nil {
		invalidator := eventhandler.NewOnProgressChangedHandler(sagaCache, log)
		if err := eventBus.Subscribe(invalidator); err != nil {
			return fmt.Errorf("failed to subscribe cache invalidator: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	healthChecker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	healthChecker.AddCheck("database", handlers.NewDatabaseCheck(dbConn))
	if redisCache != nil {
		healthChecker.AddCheck("cache", handlers.NewCacheCheck(redisCache))
	}

	serverCfg := httpapi.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.RequestTimeout = cfg.HTTP.RequestTimeout
	serverCfg.EnableCORS = cfg.HTTP.EnableCORS
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute

	server := httpapi.NewServer(serverCfg, httpapi.Dependencies{
		GetSagaViewHandler:        sagaViewHandler,
		GetActiveChapterHandler:   activeHandler,
		GetXPTotalHandler:         xpTotalHandler,
		ApplyActivityHandler:      applyHandler,
		InitializeProgressHandler: initHandler,
		IntegrityMonitor:          integrityMonitor,
		Logger:                    log,
		HealthChecker:             healthChecker,
	})

	errCh := server.StartAsync()
	log.Info("Saga Progress Hub API is running", logger.String("address", server.Address()))

	// ─────────────────────────────────────────────────────────────────────────
	// 11. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", logger.Err(err))
	}

	log.Info("shutdown completed successfully")
	return nil
}

// defaultOnlyCatalog прячет персональные списки, оставляя общий каталог.
type defaultOnlyCatalog struct {
	catalog.Repository
}

func (defaultOnlyCatalog) ListPersonalized(ctx context.Context, learnerID catalog.LearnerID) ([]*catalog.Chapter, error) {
	return nil, nil
}

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	return logger.New(opts)
}
