package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/upb/agency-llm-client/utils"
)

// Usage store drivers.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite3"
	DriverRedis    = "redis"
)

// StoreDrivers lists the accepted USAGE_STORE_DRIVER values.
var StoreDrivers = []string{DriverFile, DriverPostgres, DriverMySQL, DriverSQLite, DriverRedis}

// Config represents the process runtime configuration
type Config struct {
	Environment   string
	AgencyPath    string
	MaxAttempts   int
	Store         StoreConfig
	Providers     ProvidersConfig
	Observability ObservabilityConfig
}

// StoreConfig selects and configures the usage log backend.
// The file driver writes to usage_control.track_file of the agency document.
type StoreConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Redis           RedisConfig
}

// RedisConfig holds Redis connection settings for the redis driver
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// ProvidersConfig holds transport overrides per provider kind
type ProvidersConfig struct {
	Claude  EndpointConfig
	ChatGPT EndpointConfig
	Grok    EndpointConfig
}

// EndpointConfig overrides a provider's base URL and request timeout
type EndpointConfig struct {
	BaseURL string
	Timeout time.Duration
}

// ObservabilityConfig holds logging and metrics configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
	MetricsAddr    string
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// .env is optional
	_ = godotenv.Load(".env")

	timeout := getEnvAsDuration("PROVIDER_TIMEOUT", 60*time.Second)

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		AgencyPath:  getEnv("AGENCY_CONFIG", "config/agency.yaml"),
		MaxAttempts: getEnvAsInt("MAX_ATTEMPTS", 3),
		Store: StoreConfig{
			Driver:          strings.ToLower(getEnv("USAGE_STORE_DRIVER", DriverFile)),
			DSN:             getEnv("USAGE_STORE_DSN", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			Redis: RedisConfig{
				Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvAsInt("REDIS_DB", 0),
				Key:      getEnv("REDIS_KEY", "agency:usage"),
			},
		},
		Providers: ProvidersConfig{
			Claude: EndpointConfig{
				BaseURL: getEnv("CLAUDE_BASE_URL", ""),
				Timeout: getEnvAsDuration("CLAUDE_TIMEOUT", timeout),
			},
			ChatGPT: EndpointConfig{
				BaseURL: getEnv("CHATGPT_BASE_URL", ""),
				Timeout: getEnvAsDuration("CHATGPT_TIMEOUT", timeout),
			},
			Grok: EndpointConfig{
				BaseURL: getEnv("GROK_BASE_URL", ""),
				Timeout: getEnvAsDuration("GROK_TIMEOUT", timeout),
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "console"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", false),
			MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.AgencyPath == "" {
		return fmt.Errorf("agency config path is required")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}

	if err := utils.ValidateOneOf(c.Store.Driver, "usage store driver", StoreDrivers); err != nil {
		return err
	}
	if c.Store.IsSQL() && c.Store.DSN == "" {
		return fmt.Errorf("usage store DSN is required for driver %s", c.Store.Driver)
	}
	if c.Store.Driver == DriverRedis && c.Store.Redis.Addr == "" {
		return fmt.Errorf("redis address is required for driver redis")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// IsSQL reports whether the driver is backed by database/sql
func (s *StoreConfig) IsSQL() bool {
	return s.Driver == DriverPostgres || s.Driver == DriverMySQL || s.Driver == DriverSQLite
}

// LogString returns a safe string for logging (no password)
func (s *StoreConfig) LogString() string {
	switch {
	case s.Driver == DriverRedis:
		return fmt.Sprintf("redis addr=%s db=%d key=%s", s.Redis.Addr, s.Redis.DB, s.Redis.Key)
	case s.Driver == DriverSQLite:
		return fmt.Sprintf("sqlite3 path=%s", s.DSN)
	case s.IsSQL():
		if u, err := url.Parse(s.DSN); err == nil && u.Host != "" {
			return fmt.Sprintf("%s host=%s database=%s", s.Driver, u.Host, strings.TrimPrefix(u.Path, "/"))
		}
		return fmt.Sprintf("%s <dsn>", s.Driver)
	default:
		return s.Driver
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
