// Package config loads process configuration from the environment, an
// optional local .env file, and an optional static tuning file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything a steamSentry process needs to start.
type Config struct {
	PostgresDSN string
	RedisAddr   string
	NatsURL     string

	NodeID string

	SchedulerLeaderTTL   time.Duration
	SchedulerConcurrency int

	ProxyLeaseTTL    time.Duration
	ProxyCoolOffBase time.Duration

	AdminAddr     string
	AdminJWTKey   string
	AdminJWTIssuer string

	Tuning Tuning
}

// Tuning holds knobs that don't belong in env vars: pool sizes, cool-off
// multipliers, batch limits. Loaded from an optional YAML file.
type Tuning struct {
	PostgresMaxConns      int32         `yaml:"postgres_max_conns"`
	PostgresMinConns      int32         `yaml:"postgres_min_conns"`
	ProxyCoolOffFactor    float64       `yaml:"proxy_cooloff_factor"`
	ProxyCoolOffCap       time.Duration `yaml:"proxy_cooloff_cap"`
	RetentionMaxAge       time.Duration `yaml:"retention_max_age"`
	RetentionEnabled      bool          `yaml:"retention_enabled"`
	FetchRateLimitPerSecond float64     `yaml:"fetch_rate_limit_per_second"`
}

func defaultTuning() Tuning {
	return Tuning{
		PostgresMaxConns:   20,
		PostgresMinConns:   2,
		ProxyCoolOffFactor: 2.0,
		ProxyCoolOffCap:    10 * time.Minute,
		RetentionMaxAge:    30 * 24 * time.Hour,
		RetentionEnabled:   false,
		FetchRateLimitPerSecond: 5,
	}
}

// Load reads .env (if present), then environment variables, then the
// optional YAML tuning file named by CONFIG_FILE. A missing .env or
// tuning file is not an error; a missing required env var is.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		PostgresDSN:          getenv("DATABASE_URL", ""),
		RedisAddr:            getenv("REDIS_ADDR", "localhost:6379"),
		NatsURL:              getenv("NATS_URL", "nats://localhost:4222"),
		NodeID:               getenv("NODE_ID", ""),
		SchedulerLeaderTTL:   getDuration("SCHEDULER_LEADER_TTL", 15*time.Second),
		SchedulerConcurrency: getInt("SCHEDULER_CONCURRENCY", 50),
		ProxyLeaseTTL:        getDuration("PROXY_LEASE_TTL", 30*time.Second),
		ProxyCoolOffBase:     getDuration("PROXY_COOLOFF_BASE", 60*time.Second),
		AdminAddr:            getenv("ADMIN_ADDR", ":8090"),
		AdminJWTKey:          getenv("ADMIN_JWT_KEY", ""),
		AdminJWTIssuer:       getenv("ADMIN_JWT_ISSUER", "steamsentry-admin"),
		Tuning:               defaultTuning(),
	}

	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadTuningFile(path, &cfg.Tuning); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	if cfg.NodeID == "" {
		host, _ := os.Hostname()
		cfg.NodeID = host
	}

	return cfg, nil
}

func loadTuningFile(path string, t *Tuning) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, t)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
