// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds every environment-driven setting shared by the binaries.
type Config struct {
	Port         string
	StoreBackend string
	LogLevel     logrus.Level

	RedisAddr string
	RedisDB   int

	PGUser     string
	PGPassword string
	PGHost     string
	PGPort     string
	PGDatabase string

	HistorianEnabled   bool
	HistorianQueue     string
	HistorianBatchSize int
	HistorianFlush     time.Duration
	InactivityTimeout  time.Duration

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
}

// Load reads the configuration from the environment, applying defaults for anything unset.
func Load() (Config, error) {
	cfg := Config{
		Port:         getEnv("PORT", "8080"),
		StoreBackend: getEnv("STORE_BACKEND", BackendMemory),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:   getEnvInt("REDIS_DB", 0),

		PGUser:     getEnv("POSTGRES_USER", "postgres"),
		PGPassword: os.Getenv("POSTGRES_PASSWORD"),
		PGHost:     getEnv("PG_HOST", "localhost"),
		PGPort:     getEnv("PG_PORT", "5432"),
		PGDatabase: getEnv("PG_DATABASE", "partydeck"),

		HistorianEnabled:   getEnvBool("HISTORIAN_ENABLED", false),
		HistorianQueue:     getEnv("HISTORIAN_QUEUE_NAME", "partydeck_actions"),
		HistorianBatchSize: getEnvInt("HISTORIAN_BATCH_SIZE", 20),
		HistorianFlush:     time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
		InactivityTimeout:  time.Duration(getEnvInt("GAME_INACTIVITY_TIMEOUT_SEC", 600)) * time.Second,

		JWTPrivateKeyPath: os.Getenv("JWT_PRIVATE_KEY_PATH"),
		JWTPublicKeyPath:  os.Getenv("JWT_PUBLIC_KEY_PATH"),
	}

	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	switch cfg.StoreBackend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q (memory, redis or postgres)", cfg.StoreBackend)
	}
	if cfg.HistorianBatchSize <= 0 {
		return Config{}, fmt.Errorf("HISTORIAN_BATCH_SIZE must be positive, got %d", cfg.HistorianBatchSize)
	}
	return cfg, nil
}

// PostgresURL builds the connection string from the PG_* variables.
// DATABASE_URL, when set, wins.
func (c Config) PostgresURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// Logger returns a text logger at the configured level.
func (c Config) Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(c.LogLevel)
	return logger
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// getEnvBool parses an environment variable as a boolean, else a default value.
func getEnvBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}
