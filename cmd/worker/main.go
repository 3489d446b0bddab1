package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"healthtrends-server/internal/config"
	"healthtrends-server/internal/models"
	"healthtrends-server/internal/queue"
	"healthtrends-server/internal/worker"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer logger.Sync()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.Addr,
		Password: cfg.Queue.Password,
		DB:       cfg.Queue.DB,
	})
	q, err := queue.NewRedisQueue(redisClient, cfg.Queue, cfg.Worker, "worker-"+uuid.NewString(), logger)
	if err != nil {
		log.Fatalf("Error initializing queue: %v", err)
	}

	// connect verifies the schema on every (re)connect; creation is
	// idempotent so concurrent workers are safe.
	connect := func() (*gorm.DB, error) {
		return models.InitDB(models.DatabaseConfig{DSN: cfg.Database.DSN})
	}

	w, err := worker.New(q, connect, cfg.Worker, logger)
	if err != nil {
		// Startup failures are fatal; everything after this point retries.
		log.Fatalf("Error starting worker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutdown signal received")
		cancel()
	}()

	w.Run(ctx)
}
