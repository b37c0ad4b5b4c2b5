package config

import (
	"os"
	"strconv"
	"time"

	"surveytrack-data/internal/database"
)

// Config surveytrack-data（HTTP API）配置
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled bool
	Database  database.Config
	Redis     struct {
		Addr     string
		Password string
		DB       int
	}
	Log struct {
		Level  string
		Format string
	}
	Registry RegistryConfig
	Events   EventsConfig
}

// RegistryConfig 外部资产注册中心配置（设备主数据归属方）
type RegistryConfig struct {
	BaseURL  string        // empty disables the registry client
	CacheTTL time.Duration // device universe cache TTL
}

// EventsConfig 分配生命周期事件流配置
type EventsConfig struct {
	Enabled bool
	Stream  string
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// Default to true for local dev: if DB is unavailable, surveytrack-data
	// falls back to the in-memory ledger instead of refusing to start.
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "surveytrack")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Registry.BaseURL = getEnv("REGISTRY_BASE_URL", "")
	cfg.Registry.CacheTTL = time.Duration(parseInt(getEnv("REGISTRY_CACHE_TTL", "60"), 60)) * time.Second

	cfg.Events.Enabled = getEnv("EVENTS_ENABLED", "false") == "true"
	cfg.Events.Stream = getEnv("EVENTS_STREAM", "assignment-events")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
