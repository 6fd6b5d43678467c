// Package main is the entry point of the rewards service.
//
// It wires the ledger, achievement engine, streak tracker and progress
// aggregator onto PostgreSQL (or an in-memory store when DATABASE_URL is
// empty), an optional Redis summary cache with Pub/Sub invalidation, the
// periodic ledger audit, optional OpenTelemetry tracing and the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qaidahub/rewards-core/config"
	"github.com/qaidahub/rewards-core/internal/application/command"
	"github.com/qaidahub/rewards-core/internal/application/eventhandler"
	"github.com/qaidahub/rewards-core/internal/application/query"
	"github.com/qaidahub/rewards-core/internal/application/saga"
	"github.com/qaidahub/rewards-core/internal/domain/achievement"
	"github.com/qaidahub/rewards-core/internal/domain/coins"
	"github.com/qaidahub/rewards-core/internal/domain/progress"
	"github.com/qaidahub/rewards-core/internal/domain/shared"
	"github.com/qaidahub/rewards-core/internal/domain/user"
	"github.com/qaidahub/rewards-core/internal/infrastructure/catalog"
	"github.com/qaidahub/rewards-core/internal/infrastructure/messaging"
	"github.com/qaidahub/rewards-core/internal/infrastructure/persistence/memory"
	"github.com/qaidahub/rewards-core/internal/infrastructure/persistence/postgres"
	"github.com/qaidahub/rewards-core/internal/infrastructure/persistence/redis"
	"github.com/qaidahub/rewards-core/internal/infrastructure/scheduler"
	"github.com/qaidahub/rewards-core/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/qaidahub/rewards-core/internal/interface/http"
	"github.com/qaidahub/rewards-core/internal/interface/http/handlers"
	"github.com/qaidahub/rewards-core/pkg/circuitbreaker"
	"github.com/qaidahub/rewards-core/pkg/logger"
	"github.com/qaidahub/rewards-core/pkg/tracing"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// repositories is the storage the handlers run on.
type repositories struct {
	users        user.Repository
	userIDs      jobs.UserLister
	ledger       coins.Ledger
	auditor      query.LedgerAuditor
	achievements achievement.Repository
	progress     progress.Repository
	quizzes      progress.QuizRepository
	mistakes     progress.MistakeRepository
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
		Format: cfg.Observability.LogFormat,
	})
	defer func() { _ = log.Sync() }()

	log.Info("starting rewards service",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Location.String()),
	)

	if cfg.Observability.TracingEnabled {
		shutdownTracing, err := tracing.Init(ctx, log, tracing.Config{
			ServiceName: cfg.App.Name,
			Environment: string(cfg.App.Environment),
			Version:     cfg.App.Version,
			SampleRatio: cfg.Observability.SampleRatio,
			Endpoint:    cfg.Observability.OTLPEndpoint,
			Insecure:    cfg.Observability.OTLPInsecure,
			Headers:     cfg.Observability.OTLPHeaders,
		})
		if err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(flushCtx); err != nil {
				log.Warn("failed to flush traces", logger.Err(err))
			}
		}()
	}

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	var repos repositories
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL is empty, using the in-memory store")
		store := memory.NewStore()
		repos = repositories{
			users:        store.Users(),
			userIDs:      store.Users(),
			ledger:       store.Ledger(),
			auditor:      store.Ledger(),
			achievements: store.Achievements(),
			progress:     store.Progress(),
			quizzes:      store.Quizzes(),
			mistakes:     store.Mistakes(),
		}
	} else {
		conn, err := postgres.NewConnection(ctx, postgres.Config{
			URL:             cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection")
			conn.Close()
		}()

		if cfg.Database.AutoMigrate {
			if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("database schema is up to date")
		}

		ledger := postgres.NewLedgerRepository(conn, cfg.Database.MaxRetries)
		users := postgres.NewUserRepository(conn)
		repos = repositories{
			users:        users,
			userIDs:      users,
			ledger:       ledger,
			auditor:      ledger,
			achievements: postgres.NewAchievementRepository(conn),
			progress:     postgres.NewProgressRepository(conn),
			quizzes:      postgres.NewQuizRepository(conn),
			mistakes:     postgres.NewMistakeRepository(conn),
		}
		health.AddCheck("postgres", handlers.NewPingCheck(conn))
	}

	lessons, err := catalog.Load(cfg.App.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load lesson catalog: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EVENTS AND SUMMARY CACHE
	// ─────────────────────────────────────────────────────────────────────────
	var (
		bus          messagingBus
		summaryCache query.SummaryCache
	)
	if cfg.Redis.Disabled {
		bus = messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
			AsyncMode:      true,
			WorkerPoolSize: 4,
			Logger:         log,
		})
	} else {
		cache, err := redis.NewCache(redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			KeyPrefix:    cfg.Redis.KeyPrefix,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   1,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer func() { _ = cache.Close() }()

		breaker := circuitbreaker.New("redis-summary",
			circuitbreaker.WithFailureThreshold(3),
			circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			}),
		)
		summaryCache = redis.NewSummaryCache(cache, cfg.Redis.SummaryTTL, breaker)

		redisBus, err := messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
			Client:      cache.Client(),
			ChannelName: cfg.Redis.EventChannel,
			Logger:      log,
			LocalBusConfig: messaging.InMemoryEventBusConfig{
				AsyncMode:      true,
				WorkerPoolSize: 4,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to start redis event bus: %w", err)
		}
		bus = redisBus
		health.AddCheck("redis", handlers.NewPingCheck(cache))
	}
	defer func() {
		if err := bus.Close(); err != nil {
			log.Warn("failed to close event bus", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	cmdCfg := command.Config{
		Rewards:    cfg.Rewards.Table(),
		Location:   cfg.App.Location,
		MaxRetries: cfg.Database.MaxRetries,
	}

	ledger := command.NewCoinLedgerHandler(repos.ledger, bus, log)
	flow := saga.NewAchievementFlowSaga(repos.achievements, ledger, bus, cfg.Features, log, saga.DefaultAchievementFlowConfig())
	rewarder := command.NewRewarder(ledger, flow, log)

	summary := query.NewProgressSummaryHandler(repos.users, repos.progress, summaryCache, cfg.Features, log,
		query.ProgressSummaryConfig{Location: cfg.App.Location})

	if summaryCache != nil {
		if err := eventhandler.NewOnProgressChangedHandler(summary, log).Register(bus); err != nil {
			return fmt.Errorf("failed to register event handlers: %w", err)
		}
	}

	history := query.NewCoinHistoryHandler(repos.users, repos.ledger, repos.auditor)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. BACKGROUND JOBS
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{Logger: log})
	if cfg.Scheduler.LedgerAuditInterval > 0 {
		audit := jobs.NewLedgerAuditJob(repos.userIDs, history, log, jobs.LedgerAuditConfig{
			BatchSize: cfg.Scheduler.LedgerAuditBatchSize,
		})
		if err := sched.Register(audit, scheduler.Every(cfg.Scheduler.LedgerAuditInterval)); err != nil {
			return fmt.Errorf("failed to register ledger audit: %w", err)
		}
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Warn("failed to stop scheduler", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpapi.DefaultConfig()
	httpCfg.Addr = cfg.HTTP.Addr
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.AdminAPIKeys = cfg.HTTP.AdminAPIKeys
	httpCfg.AdminTokenSecret = cfg.HTTP.AdminTokenSecret
	httpCfg.Debug = cfg.Observability.LogLevel == "debug"
	if cfg.Observability.TracingEnabled {
		httpCfg.TracingService = cfg.App.Name
	}

	server := httpapi.NewServer(httpCfg, httpapi.Dependencies{
		Users: handlers.NewUserHandler(
			command.NewUserHandler(repos.users, log, cmdCfg),
			command.NewLoginHandler(repos.users, rewarder, bus, cfg.Features, log, cmdCfg),
			summary,
			repos.users,
			repos.achievements,
			log,
		),
		Learning: handlers.NewLearningHandler(
			command.NewLessonHandler(repos.users, repos.progress, lessons, rewarder, bus, log, cmdCfg),
			command.NewQuizHandler(repos.users, repos.quizzes, rewarder, bus, log, cmdCfg),
			command.NewMistakeHandler(repos.mistakes, rewarder, bus, log, cmdCfg),
			log,
		),
		Coins:         handlers.NewCoinHandler(ledger, history, log),
		HealthChecker: health,
		Logger:        log,
	})
	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err, ok := <-errCh:
		if ok && err != nil {
			return err
		}
		return errors.New("http server stopped unexpectedly")
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		return err
	}
	log.Info("shutdown completed")
	return nil
}

// messagingBus is satisfied by both event bus implementations.
type messagingBus interface {
	shared.EventBus
	Close() error
}
