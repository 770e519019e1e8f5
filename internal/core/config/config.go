package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type ClientCacheCfg struct {
	Size int
	TTL  time.Duration
}

type Config struct {
	Addr                string
	LogLevel            string
	LogConsole          bool
	DatabaseURL         string
	DatabaseURLUnpooled string
	CacheEnabled        bool
	StatsWindow         time.Duration
	Invalidation        InvalidationCfg
	ClientCache         ClientCacheCfg
}

func FromEnv() Config {
	return Config{
		Addr:                getenv("ADDR", ":8090"),
		LogLevel:            getenv("LOG_LEVEL", "info"),
		LogConsole:          getbool("LOG_CONSOLE", false),
		DatabaseURL:         getenv("DATABASE_URL", "postgres://localhost:5432/forecast?sslmode=disable"),
		DatabaseURLUnpooled: getenv("DATABASE_URL_UNPOOLED", ""),
		CacheEnabled:        getbool("CACHE_ENABLED", true),
		StatsWindow:         getduration("STATS_WINDOW", 24*time.Hour),
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "forecast-refresh"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "forecast-cache-invalidator"),
		},
		ClientCache: ClientCacheCfg{
			Size: getint("CLIENT_CACHE_SIZE", 10),
			TTL:  getduration("CLIENT_CACHE_TTL", 5*time.Minute),
		},
	}
}

// MigrateURL is the connection string handed to the migration runner.
// Pooled proxies tend to break advisory locks, so an unpooled URL wins
// when one is set.
func (c Config) MigrateURL() string {
	if c.DatabaseURLUnpooled != "" {
		return c.DatabaseURLUnpooled
	}
	return c.DatabaseURL
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
