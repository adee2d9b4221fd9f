package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/arborhq/arbor/pkg/model"
	"github.com/arborhq/arbor/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Graph         GraphConfig
	Queue         QueueConfig
	Worker        WorkerConfig
	Auth          AuthConfig
	Projector     ProjectorConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// GraphConfig holds graph store connection settings.
type GraphConfig struct {
	PostgresURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// QueueConfig holds permission-sync queue settings.
type QueueConfig struct {
	RedisURL  string
	QueueName string
}

// WorkerConfig holds propagation worker settings.
type WorkerConfig struct {
	Concurrency int
	// ReconcileSchedule is a cron expression for the periodic sweep that
	// re-enqueues every node. Empty disables the sweep.
	ReconcileSchedule string
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	// TokenSecret signs and verifies API bearer tokens.
	TokenSecret string
	TokenTTL    time.Duration
}

// ProjectorConfig holds capability projection settings.
type ProjectorConfig struct {
	// SubmittableTemplateIDs lists the template nodes whose instances
	// may be submitted.
	SubmittableTemplateIDs []model.NodeID
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("ARBOR_HOST", "0.0.0.0"),
			Port:            getEnv("ARBOR_PORT", "8080"),
			ReadTimeout:     getEnvDuration("ARBOR_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("ARBOR_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("ARBOR_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("ARBOR_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("ARBOR_HEALTH_PORT", "9090"),
		},
		Graph: GraphConfig{
			PostgresURL:     getEnv("ARBOR_POSTGRES_URL", "postgres://localhost:5432/arbor?sslmode=disable"),
			MaxOpenConns:    getEnvInt("ARBOR_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns:    getEnvInt("ARBOR_POSTGRES_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("ARBOR_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Queue: QueueConfig{
			RedisURL:  getEnv("ARBOR_REDIS_URL", "redis://localhost:6379/0"),
			QueueName: getEnv("ARBOR_QUEUE_NAME", ""),
		},
		Worker: WorkerConfig{
			Concurrency:       getEnvInt("ARBOR_WORKER_CONCURRENCY", 4),
			ReconcileSchedule: getEnv("ARBOR_RECONCILE_SCHEDULE", "@every 1h"),
		},
		Auth: AuthConfig{
			TokenSecret: getEnv("ARBOR_TOKEN_SECRET", ""),
			TokenTTL:    getEnvDuration("ARBOR_TOKEN_TTL", 24*time.Hour),
		},
		Projector: ProjectorConfig{
			SubmittableTemplateIDs: getEnvNodeIDs("ARBOR_SUBMITTABLE_TEMPLATE_IDS"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(getEnv("ARBOR_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("ARBOR_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Graph.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Queue.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be at least 1")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvNodeIDs parses a comma-separated list of node IDs
func getEnvNodeIDs(key string) []model.NodeID {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var ids []model.NodeID
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, model.NodeID(part))
		}
	}
	return ids
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
