package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hearthshare/larder/pkg/observability"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Cleanup       CleanupConfig       `yaml:"cleanup"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	ReplicaURLs []string      `yaml:"replica_urls"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
}

// CacheConfig holds the access-context cache configuration.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	L1Size        int           `yaml:"l1_size"`
	TTL           time.Duration `yaml:"ttl"`
}

// CleanupConfig holds the periodic orphan sweep configuration.
type CleanupConfig struct {
	SweepEnabled  bool   `yaml:"sweep_enabled"`
	SweepSchedule string `yaml:"sweep_schedule"`
}

// ObservabilityConfig holds logging, metrics, and tracing settings.
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// LoadConfig resolves configuration from defaults, an optional YAML file,
// and LARDER_* environment variables.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("LARDER_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns: 25,
			MinConns: 5,
			Timeout:  5 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: false,
			RedisDB: 0,
			L1Size:  1024,
			TTL:     5 * time.Minute,
		},
		Cleanup: CleanupConfig{
			SweepEnabled:  false,
			SweepSchedule: "@hourly",
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEnabled:        false,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "larder",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.Server.Host = getEnv("LARDER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("LARDER_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvDuration("LARDER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("LARDER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getEnvDuration("LARDER_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("LARDER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Database.URL = getEnv("LARDER_POSTGRES_URL", cfg.Database.URL)
	if replicaURLs := os.Getenv("LARDER_POSTGRES_REPLICA_URLS"); replicaURLs != "" {
		cfg.Database.ReplicaURLs = strings.Split(replicaURLs, ",")
	}
	cfg.Database.MaxConns = getEnvInt("LARDER_POSTGRES_MAX_CONNS", cfg.Database.MaxConns)
	cfg.Database.MinConns = getEnvInt("LARDER_POSTGRES_MIN_CONNS", cfg.Database.MinConns)
	cfg.Database.Timeout = getEnvDuration("LARDER_POSTGRES_TIMEOUT", cfg.Database.Timeout)

	cfg.Cache.Enabled = getEnvBool("LARDER_CACHE_ENABLED", cfg.Cache.Enabled)
	cfg.Cache.RedisAddr = getEnv("LARDER_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("LARDER_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = getEnvInt("LARDER_REDIS_DB", cfg.Cache.RedisDB)
	cfg.Cache.L1Size = getEnvInt("LARDER_CACHE_L1_SIZE", cfg.Cache.L1Size)
	cfg.Cache.TTL = getEnvDuration("LARDER_CACHE_TTL", cfg.Cache.TTL)

	cfg.Cleanup.SweepEnabled = getEnvBool("LARDER_CLEANUP_SWEEP_ENABLED", cfg.Cleanup.SweepEnabled)
	cfg.Cleanup.SweepSchedule = getEnv("LARDER_CLEANUP_SWEEP_SCHEDULE", cfg.Cleanup.SweepSchedule)

	cfg.Observability.LogLevel = getEnv("LARDER_LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.MetricsEnabled = getEnvBool("LARDER_METRICS_ENABLED", cfg.Observability.MetricsEnabled)
	cfg.Observability.OTelEnabled = getEnvBool("LARDER_OTEL_ENABLED", cfg.Observability.OTelEnabled)
	cfg.Observability.OTelEndpoint = getEnv("LARDER_OTEL_ENDPOINT", cfg.Observability.OTelEndpoint)
	cfg.Observability.OTelServiceName = getEnv("LARDER_OTEL_SERVICE_NAME", cfg.Observability.OTelServiceName)
	cfg.Observability.OTelServiceVersion = getEnv("LARDER_OTEL_SERVICE_VERSION", cfg.Observability.OTelServiceVersion)
	cfg.Observability.OTelInsecure = getEnvBool("LARDER_OTEL_INSECURE", cfg.Observability.OTelInsecure)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Cache.Enabled && c.Cache.RedisAddr == "" {
		return fmt.Errorf("redis address is required when cache is enabled")
	}
	if c.Cleanup.SweepEnabled && c.Cleanup.SweepSchedule == "" {
		return fmt.Errorf("sweep schedule is required when the orphan sweep is enabled")
	}
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	return nil
}

// LogLevel parses the configured log level.
func (c *Config) LogLevel() observability.LogLevel {
	switch strings.ToLower(c.Observability.LogLevel) {
	case "debug":
		return observability.DebugLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
