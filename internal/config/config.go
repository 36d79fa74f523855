package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
// A .env file in the working directory is loaded first when present.
type Config struct {
	DatabaseURL string

	SwarmBaseURL  string
	SwarmUsername string
	SwarmPassword string
	SwarmTimeout  time.Duration

	// FetchCount caps undelivered messages pulled per cycle; TailLimit
	// caps tail rows read per table when locating the reconciliation
	// point.
	FetchCount int
	TailLimit  int

	PollInterval    time.Duration
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// StationsFile optionally replaces the built-in station registry.
	StationsFile string

	// Kafka publishing of clean rows for downstream consumers.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from the environment, applying defaults where
// unset and validating required settings.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parseDuration("POLL_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}
	swarmTimeout, err := parseDuration("SWARM_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	fetchCount, err := parsePositiveInt("FETCH_COUNT", 1000)
	if err != nil {
		return nil, err
	}
	tailLimit, err := parsePositiveInt("TAIL_LIMIT", 1000)
	if err != nil {
		return nil, err
	}

	kafkaEnabled := false
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SwarmBaseURL:    envOrDefault("SWARM_BASE_URL", "https://bumblebee.hive.swarm.space/hive"),
		SwarmUsername:   os.Getenv("SWARM_USERNAME"),
		SwarmPassword:   os.Getenv("SWARM_PASSWORD"),
		SwarmTimeout:    swarmTimeout,
		FetchCount:      fetchCount,
		TailLimit:       tailLimit,
		PollInterval:    pollInterval,
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		StationsFile:    os.Getenv("STATIONS_FILE"),
		KafkaEnabled:    kafkaEnabled,
		KafkaBrokers:    parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:      envOrDefault("KAFKA_TOPIC", "clean-station-rows"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.SwarmUsername == "" || cfg.SwarmPassword == "" {
		return nil, errors.New("SWARM_USERNAME and SWARM_PASSWORD are required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

func parseBrokers(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
