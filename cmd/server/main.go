// Package main is the entry point for the rankings engine worker.
//
// The worker owns the rankings cache: it applies incremental rank updates,
// rebuilds cold cache keys at startup, serves ladder queries to the API
// layer, and runs the recurring season finalization sweep.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ShieldBattery/ShieldBattery-sub013/config"
	"github.com/ShieldBattery/ShieldBattery-sub013/internal/application/query"
	"github.com/ShieldBattery/ShieldBattery-sub013/internal/application/rankings"
	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/ladder"
	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/shared"
	"github.com/ShieldBattery/ShieldBattery-sub013/internal/infrastructure/messaging"
	"github.com/ShieldBattery/ShieldBattery-sub013/internal/infrastructure/persistence/postgres"
	"github.com/ShieldBattery/ShieldBattery-sub013/internal/infrastructure/persistence/redis"
	"github.com/ShieldBattery/ShieldBattery-sub013/internal/infrastructure/scheduler"
	"github.com/ShieldBattery/ShieldBattery-sub013/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/ShieldBattery/ShieldBattery-sub013/internal/interface/http"
	"github.com/ShieldBattery/ShieldBattery-sub013/pkg/retry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	log.Info("starting rankings engine", "app", cfg.App.Name)

	// ─────────────────────────────────────────────────────────────────────────
	// BACKING STORES
	// ─────────────────────────────────────────────────────────────────────────
	dbConn, err := connectDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database connection")
		dbConn.Close()
	}()

	log.Info("checking database migrations")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	cache, err := connectCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing cache connection")
		_ = cache.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// REPOSITORIES, EVENT BUS, COORDINATOR
	// ─────────────────────────────────────────────────────────────────────────
	ratingRepo := postgres.NewRatingRepository(dbConn)
	seasonRepo := postgres.NewSeasonRepository(dbConn)
	userRepo := postgres.NewUserRepository(dbConn)
	rankingsCache := redis.NewRankingsCache(cache)

	eventBus := messaging.NewInMemoryEventBus(log)
	defer func() { _ = eventBus.Close() }()
	subscribeEventLogging(eventBus, log)

	coordinator := rankings.NewCoordinator(rankingsCache, ratingRepo, eventBus, log)

	// ─────────────────────────────────────────────────────────────────────────
	// STARTUP REBUILD SWEEP
	// ─────────────────────────────────────────────────────────────────────────
	if err := rebuildColdKeys(ctx, seasonRepo, coordinator, log); err != nil {
		// A failed sweep leaves the affected keys cold; the finalization job
		// and later sweeps repair them on demand.
		log.Warn("startup rebuild sweep incomplete", "error", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(log)
	finalizeJob := jobs.NewFinalizeSeasonsJob(seasonRepo, ratingRepo, coordinator, eventBus, log)
	schedule := scheduler.NewJitteredIntervalSchedule(cfg.Scheduler.FinalizeInterval, cfg.Scheduler.FinalizeJitter)
	if err := sched.Register(finalizeJob, schedule); err != nil {
		return fmt.Errorf("failed to register finalization job: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// HTTP SURFACE
	// ─────────────────────────────────────────────────────────────────────────
	var apiSrv *httpapi.Server
	if cfg.API.Addr != "" {
		httpCfg := httpapi.DefaultConfig()
		httpCfg.Addr = cfg.API.Addr
		httpCfg.ReadTimeout = cfg.API.ReadTimeout
		httpCfg.WriteTimeout = cfg.API.WriteTimeout

		apiSrv = httpapi.NewServer(httpCfg, httpapi.Dependencies{
			CurrentLadder:   query.NewGetCurrentLadderHandler(seasonRepo, coordinator, ratingRepo, userRepo, cfg.Ladder.PlacementGames),
			FinalizedLadder: query.NewGetFinalizedLadderHandler(seasonRepo, ratingRepo, userRepo),
			UserRanks:       query.NewGetUserRanksHandler(seasonRepo, coordinator),
			Database:        dbConn,
			Cache:           cache,
			Logger:          log,
		})
		go func() {
			if err := apiSrv.Start(); err != nil {
				log.Error("http server failed", "error", err)
			}
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("rankings engine is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := sched.Stop(); err != nil {
		log.Warn("scheduler stop failed", "error", err)
	}
	if apiSrv != nil {
		if err := apiSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http server shutdown failed", "error", err)
		}
	}

	log.Info("shutdown completed")
	return nil
}

// connectDatabase connects to PostgreSQL, retrying while it comes up.
func connectDatabase(ctx context.Context, cfg *config.Config, log *slog.Logger) (*postgres.Connection, error) {
	pgCfg := postgres.DefaultConfig()
	pgCfg.Host = cfg.Database.Host
	pgCfg.Port = cfg.Database.Port
	pgCfg.User = cfg.Database.User
	pgCfg.Password = cfg.Database.Password
	pgCfg.Database = cfg.Database.Database
	pgCfg.SSLMode = cfg.Database.SSLMode
	pgCfg.MaxConns = cfg.Database.MaxConns

	var conn *postgres.Connection
	err := retry.StartupRetrier().Do(ctx, func(ctx context.Context) error {
		var err error
		conn, err = postgres.NewConnection(ctx, pgCfg)
		if err != nil {
			log.Warn("database not ready, retrying", "error", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("database connection established", "host", cfg.Database.Host)
	return conn, nil
}

// connectCache connects to Redis, retrying while it comes up.
func connectCache(ctx context.Context, cfg *config.Config, log *slog.Logger) (*redis.Cache, error) {
	redisCfg := redis.DefaultConfig()
	redisCfg.Host = cfg.Redis.Host
	redisCfg.Port = cfg.Redis.Port
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	redisCfg.PoolSize = cfg.Redis.PoolSize

	var cache *redis.Cache
	err := retry.StartupRetrier().Do(ctx, func(ctx context.Context) error {
		var err error
		cache, err = redis.NewCache(ctx, redisCfg)
		if err != nil {
			log.Warn("cache not ready, retrying", "error", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cache: %w", err)
	}

	log.Info("cache connection established", "host", cfg.Redis.Host)
	return cache, nil
}

// subscribeEventLogging attaches an audit log consumer to every ranking
// event.
func subscribeEventLogging(bus *messaging.InMemoryEventBus, log *slog.Logger) {
	_ = bus.SubscribeAll(func(event shared.Event) error {
		log.Debug("domain event",
			"event", event.EventType(),
			"aggregate", event.AggregateID(),
			"occurred_at", event.OccurredAt(),
		)
		return nil
	})
}

// rebuildColdKeys materializes any current-season cache key that does not
// exist yet, such as after a cache flush or a fresh deployment.
func rebuildColdKeys(
	ctx context.Context,
	seasons ladder.SeasonRepository,
	coordinator *rankings.Coordinator,
	log *slog.Logger,
) error {
	season, err := seasons.CurrentSeason(ctx, time.Now().UTC())
	if errors.Is(err, ladder.ErrNoCurrentSeason) {
		log.Info("no current season, skipping rebuild sweep")
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve current season: %w", err)
	}

	for _, mt := range ladder.AllMatchmakingTypes() {
		needed, err := coordinator.NeedsFullRebuild(ctx, mt, season.ID)
		if err != nil {
			return fmt.Errorf("check %s: %w", mt, err)
		}
		if !needed {
			continue
		}

		log.Info("rebuilding cold cache key", "matchmaking_type", mt, "season", season.ID)
		if err := coordinator.DoFullRebuild(ctx, mt, season.ID); err != nil {
			return fmt.Errorf("rebuild %s: %w", mt, err)
		}
	}

	return nil
}

// setupLogger configures structured logging for the process.
func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
	return log
}
