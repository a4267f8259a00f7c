package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/classbook/internal/config"
	"github.com/stemsi/classbook/internal/database"
	"github.com/stemsi/classbook/internal/handler"
	"github.com/stemsi/classbook/internal/lock"
	"github.com/stemsi/classbook/internal/logger"
	"github.com/stemsi/classbook/internal/repository"
	"github.com/stemsi/classbook/internal/repository/memory"
	"github.com/stemsi/classbook/internal/router"
	"github.com/stemsi/classbook/internal/service"
	"github.com/stemsi/classbook/internal/validator"
	ws "github.com/stemsi/classbook/internal/websocket"
	"github.com/stemsi/classbook/internal/worker"
)

// stores bundles the persistence backends selected by STORAGE_DRIVER.
type stores struct {
	classes     service.ClassStore
	enrollments interface {
		service.EnrollmentStore
		worker.OccurrenceCounter
	}
	catalog service.CatalogStore
}

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("storage", cfg.StorageDriver).
		Str("lock", cfg.LockDriver).
		Msg("Starting Classbook")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]handler.Pinger{}

	// ─── Storage ───────────────────────────────────────────────────────
	var st stores
	switch cfg.StorageDriver {
	case config.StorageMemory:
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
		mem := memory.New()
		st = stores{classes: mem, enrollments: mem, catalog: mem}
	case config.StoragePostgres:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		checks["postgres"] = pingPostgres(pool)
		st = stores{
			classes:     repository.NewClassRepository(pool),
			enrollments: repository.NewEnrollmentRepository(pool, cfg.TxTimeout),
			catalog:     repository.NewCatalogRepository(pool),
		}
	default:
		log.Fatal().Str("driver", cfg.StorageDriver).Msg("Unknown STORAGE_DRIVER")
	}

	// ─── Connect to Redis (optional) ───────────────────────────────────
	var rdb *redis.Client
	if cfg.RedisEnabled() {
		var err error
		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// ─── Occurrence Locks & Count Cache ────────────────────────────────
	var locker lock.Locker = lock.NewKeyedMutex()
	var counts service.CountCache = service.NoopCountCache{}
	var broker ws.Broker = ws.NewMemoryBroker()
	switch {
	case cfg.LockDriver == config.LockRedis && rdb == nil:
		log.Fatal().Msg("LOCK_DRIVER=redis requires REDIS_URL")
	case cfg.LockDriver == config.LockRedis:
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL, log)
	}
	if rdb != nil {
		counts = service.NewRedisCountCache(rdb, cfg.AvailabilityTTL)
		broker = ws.NewRedisBroker(rdb, log)
	}

	// ─── Initialize Services ──────────────────────────────────────────
	if cfg.AdminPasswordHash == "" {
		log.Warn().Msg("ADMIN_PASSWORD_HASH is empty, admin login is disabled")
	}
	authService := service.NewAuthService(cfg, log)
	classService := service.NewClassService(st.classes, cfg.MaxImageBytes, log)
	enrollmentService := service.NewEnrollmentService(st.classes, st.enrollments, locker, counts, cfg.TxTimeout, log)
	enrollmentService.SetPublisher(broker)
	catalogService := service.NewCatalogService(st.catalog, st.classes, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:       handler.NewAuthHandler(authService),
		Class:      handler.NewClassHandler(classService, catalogService, cfg.MaxImageBytes, cfg.MaxOccurrenceWindow, log),
		Enrollment: handler.NewEnrollmentHandler(enrollmentService, classService, log),
		Catalog:    handler.NewCatalogHandler(catalogService, log),
		System:     handler.NewSystemHandler(checks, log),
		WS:         handler.NewWSHandler(classService, enrollmentService, broker, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})

	if rdb != nil && cfg.PrewarmSchedule != config.PrewarmOff {
		warmer := worker.NewAvailabilityWarmer(catalogService, st.enrollments, counts, cfg.PrewarmSchedule, cfg.PrewarmDays, log)
		// Fill the cache once before accepting traffic.
		warmer.RunOnce(ctx)
		go func() {
			defer close(workerDone)
			if err := warmer.Start(workerCtx); err != nil {
				log.Error().Err(err).Msg("Availability warmer not started")
			}
		}()
	} else {
		close(workerDone)
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the scheduler and wait for a running job to finish.
	workerCancel()
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("Worker did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

func pingPostgres(pool *pgxpool.Pool) handler.Pinger {
	return func(ctx context.Context) error { return pool.Ping(ctx) }
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
