package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config captures everything the process consumes from its environment. The
// core owns none of it; main reads it once and threads values down.
type Config struct {
	Addr   string
	NodeID string

	PostgresURL  string
	RedisURL     string
	KafkaBrokers string

	// CacheTier selects the local in-process cache ("local") or a shared
	// Redis-backed tier ("redis").
	CacheTier       string
	CacheMaxEntries int
	CacheTTL        time.Duration
	DegradedTTL     time.Duration

	SweepInterval time.Duration

	JoinPolicy  string
	JoinTimeout time.Duration

	JWTSigningKey string
}

// FromEnv builds the config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:          envOr("NETBAN_ADDR", ":8080"),
		NodeID:        envOr("NETBAN_NODE_ID", hostnameOr("node-unknown")),
		PostgresURL:   os.Getenv("NETBAN_POSTGRES_URL"),
		RedisURL:      os.Getenv("NETBAN_REDIS_URL"),
		KafkaBrokers:  os.Getenv("NETBAN_KAFKA_BROKERS"),
		CacheTier:     envOr("NETBAN_CACHE_TIER", "local"),
		JoinPolicy:    envOr("NETBAN_JOIN_POLICY", "fail-closed"),
		JWTSigningKey: os.Getenv("NETBAN_JWT_SIGNING_KEY"),
	}

	var err error
	if cfg.CacheMaxEntries, err = envInt("NETBAN_CACHE_MAX_ENTRIES", 4096); err != nil {
		return Config{}, err
	}
	if cfg.CacheTTL, err = envDuration("NETBAN_CACHE_TTL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.DegradedTTL, err = envDuration("NETBAN_CACHE_DEGRADED_TTL", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = envDuration("NETBAN_SWEEP_INTERVAL", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.JoinTimeout, err = envDuration("NETBAN_JOIN_TIMEOUT", 2*time.Second); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func hostnameOr(fallback string) string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return fallback
	}
	return h
}
