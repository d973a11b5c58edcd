package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration from environment.
type Config struct {
	HTTPPort        string
	DBDriver        string // postgres or sqlite
	DatabaseURL     string
	DBPoolSize      int
	RedisURL        string // empty disables the read cache
	RedisPoolSize   int
	CacheTTL        int // seconds
	KafkaBrokers    []string
	KafkaTopic      string
	KafkaPartitions int
	KafkaGroupID    string
	LogLevel        string
	TimeZone        string
}

var (
	cfg     *Config
	cfgOnce sync.Once
)

// Get returns the application config (loads once from env).
func Get() *Config {
	cfgOnce.Do(func() {
		cfg = Load()
	})
	return cfg
}

// Load reads the config from the environment. Values from a .env file in the
// working directory fill in variables that are not already set.
func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		DBDriver:        strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		DBPoolSize:      getIntEnv("DB_POOL_SIZE", 20),
		RedisURL:        os.Getenv("REDIS_URL"),
		RedisPoolSize:   getIntEnv("REDIS_POOL_SIZE", 50),
		CacheTTL:        getIntEnv("CACHE_TTL_SEC", 300),
		KafkaBrokers:    getSliceEnv("KAFKA_BROKERS"),
		KafkaTopic:      getEnv("KAFKA_TASK_TOPIC", "task-events"),
		KafkaPartitions: getIntEnv("KAFKA_PARTITIONS", 4),
		KafkaGroupID:    getEnv("KAFKA_GROUP_ID", "task-cache-invalidators"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		TimeZone:        getEnv("TZ_NAME", "Local"),
	}
}

// Location resolves TimeZone, falling back to the process local zone.
func (c *Config) Location() *time.Location {
	if c.TimeZone == "" || c.TimeZone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

// CacheTTLDuration returns CacheTTL as a time.Duration.
func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}

// getSliceEnv splits a comma separated variable; an unset variable yields nil.
func getSliceEnv(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
