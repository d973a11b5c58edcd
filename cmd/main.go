package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"task-tracker/internal/cache"
	"task-tracker/internal/config"
	"task-tracker/internal/controller"
	"task-tracker/internal/database"
	"task-tracker/internal/queue"
	"task-tracker/internal/repository"
	"task-tracker/internal/routes"
	"task-tracker/internal/service"
	"task-tracker/internal/worker"
	"task-tracker/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Get()
	logger.SetLevel(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DBDriver, cfg.DatabaseURL, cfg.DBPoolSize)
	if err != nil {
		logger.Error(ctx, "Database not available; exiting", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := database.MigrateOrCreateSchema(ctx, db); err != nil {
		logger.Error(ctx, "Schema migration failed", "error", err)
		os.Exit(1)
	}

	repo := repository.NewTaskRepository(db)
	loc := cfg.Location()
	opts := []service.Option{service.WithClock(func() time.Time { return time.Now().In(loc) })}
	var cachePinger controller.Pinger

	// Redis is optional; without it every read goes to the DB
	var taskCache *cache.TaskCache
	if cfg.RedisURL != "" {
		client, err := cache.NewClient(ctx, cfg.RedisURL, cfg.RedisPoolSize)
		if err != nil {
			logger.Warn(ctx, "Redis unavailable; cache disabled", "error", err)
		} else {
			defer client.Close()
			taskCache = cache.New(client, cfg.CacheTTLDuration())
			opts = append(opts, service.WithCache(taskCache))
			cachePinger = taskCache
		}
	}

	// Kafka is optional; events are published and consumed only when brokers are configured
	if len(cfg.KafkaBrokers) > 0 {
		queue.EnsureTopic(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaPartitions)
		producer := queue.NewProducer(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		opts = append(opts, service.WithEvents(producer))
		if taskCache != nil {
			go worker.New(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, taskCache).Run(ctx)
		}
	}

	svc := service.New(repo, opts...)
	router := routes.Router(controller.NewTaskController(svc), controller.NewHealthController(repo, cachePinger))

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.InfofWithContext(ctx, "HTTP server listening on :%s (driver=%s, tz=%s)", cfg.HTTPPort, cfg.DBDriver, loc)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "Server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info(context.Background(), "Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "Server shutdown error", "error", err)
	}
	logger.Info(shutdownCtx, "Server stopped")
}
