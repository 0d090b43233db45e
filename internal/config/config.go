package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/tank-siting/internal/store"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize int

	// Store configuration.
	StoreBackend string // "document" or "sqlite"
	StorePath    string // blob directory (document) or database file (sqlite)

	// Projection configuration for the deployment region.
	UTMZone     int
	UTMNorthern bool

	// Boundary result cache.
	GeoCacheSize int
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	batchSize, err := parseInt("BATCH_SIZE", 50)
	if err != nil {
		return nil, err
	}

	utmZone, err := parseInt("UTM_ZONE", 19) // Puerto Rico deployment default
	if err != nil {
		return nil, err
	}

	cacheSize, err := parseInt("GEO_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:     parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic: envOrDefault("KAFKA_SOURCE_TOPIC", "tank-stage-events"),
		KafkaSinkTopic:   envOrDefault("KAFKA_SINK_TOPIC", "tank-session-snapshots"),
		KafkaGroupID:     envOrDefault("KAFKA_GROUP_ID", "tank-siting"),
		HTTPAddr:         envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
		BatchSize:        batchSize,

		StoreBackend: envOrDefault("STORE_BACKEND", store.BackendDocument),
		StorePath:    envOrDefault("STORE_PATH", "data"),

		UTMZone:     utmZone,
		UTMNorthern: envOrDefault("UTM_HEMISPHERE", "north") != "south",

		GeoCacheSize: cacheSize,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.StoreBackend != store.BackendDocument && cfg.StoreBackend != store.BackendSQLite {
		return nil, fmt.Errorf("STORE_BACKEND must be %q or %q", store.BackendDocument, store.BackendSQLite)
	}
	if cfg.UTMZone < 1 || cfg.UTMZone > 60 {
		return nil, errors.New("UTM_ZONE must be between 1 and 60")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parseInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}
