package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"surveytrack-data/internal/config"
	"surveytrack-data/internal/database"
	httpapi "surveytrack-data/internal/http"
	"surveytrack-data/internal/logger"
	"surveytrack-data/internal/repository"
	"surveytrack-data/internal/service"
	"surveytrack-data/internal/store"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "surveytrack-data")
	if err != nil {
		log, _ = zap.NewProduction()
	}
	defer log.Sync()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Assignment ledger: Postgres when enabled and reachable, else the
	// in-memory fallback so the service still starts for local dev.
	var db *sql.DB
	var repo repository.AssignmentsRepository
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			repo = repository.NewPostgresAssignmentsRepo(db)
			log.Info("DB enabled for surveytrack-data")
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory ledger", zap.Error(err))
		}
	}
	if repo == nil {
		repo = repository.NewMemoryAssignmentsRepo()
	}

	var events service.EventPublisher
	if cfg.Events.Enabled {
		events = store.NewStreamPublisher(redisClient, cfg.Events.Stream)
		log.Info("assignment event stream enabled", zap.String("stream", cfg.Events.Stream))
	}

	var registry *service.RegistryClient
	if cfg.Registry.BaseURL != "" {
		registry = service.NewRegistryClient(cfg.Registry.BaseURL, store.NewRedisKV(redisClient), cfg.Registry.CacheTTL, log)
		log.Info("asset registry client enabled", zap.String("base_url", cfg.Registry.BaseURL))
	}

	assignments := service.NewAssignmentService(repo, events, log)
	queries := service.NewQueryService(repo, log)

	handler := httpapi.NewAssignmentHandler(assignments, queries, registry, log)
	router := httpapi.NewRouter(log)
	router.RegisterAssignmentRoutes(handler)

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case <-errCh:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	_ = redisClient.Close()
	if db != nil {
		_ = db.Close()
	}
}
