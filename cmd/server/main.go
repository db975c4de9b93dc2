// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/partydeck/internal/auth"
	"github.com/jason-s-yu/partydeck/internal/config"
	"github.com/jason-s-yu/partydeck/internal/database"
	"github.com/jason-s-yu/partydeck/internal/handlers"
	"github.com/jason-s-yu/partydeck/internal/historian"
	"github.com/jason-s-yu/partydeck/internal/middleware"
	"github.com/jason-s-yu/partydeck/internal/store"
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

	if cfg.JWTPrivateKeyPath != "" {
		err = auth.InitFromPath(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath)
	} else {
		logger.Warn("JWT_PRIVATE_KEY_PATH not set; generating an ephemeral signing key")
		err = auth.Init()
	}
	if err != nil {
		logger.Fatalf("auth init: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.StoreBackend == config.BackendRedis || cfg.HistorianEnabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatalf("failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
		}
	}

	var backing store.Store
	switch cfg.StoreBackend {
	case config.BackendMemory:
		backing = store.NewMemory()
	case config.BackendRedis:
		backing = store.NewRedis(rdb, logger)
	case config.BackendPostgres:
		pool, err := database.Connect(ctx, cfg.PostgresURL(), logger)
		if err != nil {
			logger.Fatalf("database: %v", err)
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatalf("database migrations: %v", err)
		}
		backing = store.NewPostgres(pool, logger)
	}

	rs := handlers.NewRoomServer(backing, logger)
	if cfg.HistorianEnabled {
		rs.OnCommit = historian.NewPublisher(rdb, cfg.HistorianQueue, logger).OnCommit
	}

	mux := http.NewServeMux()
	mux.Handle("/room/ws/", rs.RoomWSHandler())
	mux.Handle("/auth/guest", handlers.GuestHandler(logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: middleware.LogMiddleware(logger)(mux),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Server shutdown")
		}
	}()

	logger.WithFields(logrus.Fields{"addr": srv.Addr, "store": cfg.StoreBackend}).Info("Running relay")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server exited: %v", err)
	}
}
