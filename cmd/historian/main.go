// cmd/historian/main.go is an asynchronous historian service that pops action records from a
// Redis queue and persists them to PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/partydeck/internal/config"
	"github.com/jason-s-yu/partydeck/internal/database"
	"github.com/jason-s-yu/partydeck/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	logger := cfg.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		logger.Fatalf("failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
	}

	pool, err := database.Connect(ctx, cfg.PostgresURL(), logger)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatalf("database migrations: %v", err)
	}

	hs := historian.NewService(rdb, historian.NewPGSink(pool), historian.Options{
		Queue:      cfg.HistorianQueue,
		BatchSize:  cfg.HistorianBatchSize,
		FlushDelay: cfg.HistorianFlush,
		Inactivity: cfg.InactivityTimeout,
		Logger:     logger,
	})
	hs.Run(ctx)
	logger.Info("Historian shutdown complete.")
}
