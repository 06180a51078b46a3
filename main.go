package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-seating/internal/config"
	"ms-seating/internal/database/migrations"
	"ms-seating/internal/idempotency"
	"ms-seating/internal/kafka"
	"ms-seating/internal/layout"
	"ms-seating/internal/logger"
	"ms-seating/internal/monitoring"
	"ms-seating/internal/pricing"
	"ms-seating/internal/reaper"
	"ms-seating/internal/reservation"
	"ms-seating/internal/reservation/reservation_api"
	"ms-seating/internal/seats"
	seatdb "ms-seating/internal/seats/db"
	"ms-seating/internal/seats/memory"
	seatredis "ms-seating/internal/seats/redis"
	"ms-seating/internal/sse"
)

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	if cfg.Database.DSN == "" {
		logger.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.PingContext(ctx)
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	logger.Info("DATABASE", "PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	logger.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, redisClient.Options().DB))

	return bunDB, redisClient
}

func seatStore(cfg *config.Config, bunDB *bun.DB, redisClient *redis.Client, logger *logger.Logger) seats.Store {
	switch cfg.Reservation.SeatStore {
	case "postgres", "":
		return seatdb.New(bunDB)
	case "redis":
		return seatredis.NewStore(redisClient)
	case "memory":
		logger.Warn("CONFIG", "Using in-memory seat store, holds and sales are lost on restart")
		return memory.New()
	}
	logger.Fatal("CONFIG", fmt.Sprintf("Unknown SEAT_STORE %q (want postgres, redis or memory)", cfg.Reservation.SeatStore))
	return nil
}

func main() {
	logger := logger.NewLogger("seating-service")
	defer logger.Close()

	logger.Info("APP", "Starting Seating Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	defer redisClient.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{MigrationsDir: cfg.Database.MigrationsDir}, logger)
		if err := runner.RunMigrations(); err != nil {
			logger.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
		_ = runner.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.New(registry)

	store := seatStore(cfg, bunDB, redisClient, logger)
	logger.Info("APP", fmt.Sprintf("Seat store: %s", cfg.Reservation.SeatStore))

	repository := layout.NewRepository(bunDB)
	var catalog layout.Catalog = repository
	if cfg.Layout.ServiceURL != "" {
		catalog = layout.NewHTTPCatalog(cfg.Layout.ServiceURL, &http.Client{Timeout: 10 * time.Second}, logger)
		logger.Info("LAYOUT", fmt.Sprintf("Reading layouts from %s", cfg.Layout.ServiceURL))
	}
	layouts := layout.NewService(catalog, repository, store, logger)

	strategy, err := pricing.ParseStrategy(cfg.Reservation.PricingStrategy)
	if err != nil {
		logger.Fatal("CONFIG", err.Error())
	}
	pricer := pricing.NewService(store, catalog, strategy)
	logger.Info("PRICING", fmt.Sprintf("Pricing strategy: %s", pricer.StrategyName()))

	emitter := sse.NewSeatEventEmitter()

	engineOpts := []reservation.Option{
		reservation.WithHoldTTL(cfg.Reservation.HoldTTL),
		reservation.WithMaxHeldSeatsPerSession(cfg.Reservation.MaxHeldSeatsPerSession),
		reservation.WithLayoutGuard(layouts),
		reservation.WithPublisher(emitter),
		reservation.WithLogger(logger),
		reservation.WithMetrics(metrics),
	}
	reaperOpts := []reaper.Option{
		reaper.WithInterval(cfg.Reaper.Interval),
		reaper.WithBatchSize(cfg.Reaper.BatchSize),
		reaper.WithPublisher(emitter),
		reaper.WithLogger(logger),
		reaper.WithMetrics(metrics),
	}

	if cfg.Kafka.Enabled {
		logger.Info("KAFKA", fmt.Sprintf("Using Kafka brokers: %v", cfg.Kafka.Brokers))
		requiredTopics := []string{cfg.Kafka.Topics.SeatStatus, cfg.Kafka.Topics.LayoutPublished}
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, requiredTopics, logger); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}

		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.SeatStatus, logger)
		defer producer.Close()
		engineOpts = append(engineOpts, reservation.WithPublisher(producer))
		reaperOpts = append(reaperOpts, reaper.WithPublisher(producer))

		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.LayoutPublished, cfg.Kafka.GroupID, logger)
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx, layouts.Publish); err != nil {
				logger.Error("KAFKA", fmt.Sprintf("Layout consumer stopped: %v", err))
			}
		}()
	} else {
		logger.Warn("KAFKA", "Kafka disabled, seat events stay in-process")
	}

	var guard idempotency.Guard = idempotency.NewRedisGuard(redisClient, cfg.Reservation.IdempotencyTTL)
	if cfg.Reservation.SeatStore == "memory" {
		memGuard := idempotency.NewMemoryGuard(cfg.Reservation.IdempotencyTTL, nil)
		go memGuard.Run(ctx, time.Minute)
		guard = memGuard
	}
	engine := reservation.NewEngine(store, pricer, guard, engineOpts...)
	logger.Info("APP", fmt.Sprintf("Hold TTL %s, max %d held seats per session",
		engine.HoldTTL(), engine.MaxHeldSeatsPerSession()))

	go reaper.New(store, reaperOpts...).Run(ctx)

	handler := reservation_api.NewHandler(engine, catalog, emitter, logger)

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(reservation_api.RequestLogger(logger))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, "seat store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	handler.RegisterRoutes(r)
	logger.Info("ROUTER", "Seating routes registered under /api")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("Seating Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "Seating Service shutdown complete")
	}
}
