package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Engine    EngineConfig
	LLM       LLMConfig
	RateLimit RateLimitConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	MetricsPort int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings. Redis carries the job
// stream, the event pub/sub channels and the per-run sequence counters.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// EngineConfig holds execution-engine settings
type EngineConfig struct {
	// Job stream and consumer group for node-execution jobs
	JobStream     string
	ConsumerGroup string

	// Number of concurrent consumer goroutines per worker process
	Concurrency int

	// Wall-clock budget for a single node execution
	NodeTimeout time.Duration

	// Maximum LLM<->tool round trips per agent node
	MaxToolIterations int

	// Un-acked jobs idle longer than this are reclaimed and retried
	ReclaimAfter time.Duration
}

// RateLimitConfig throttles run executions per user and service-wide
type RateLimitConfig struct {
	Enabled       bool
	GlobalLimit   int64
	UserLimit     int64
	WindowSeconds int
}

// LLMConfig holds settings for the chat-completion provider
type LLMConfig struct {
	BaseURL        string
	APIKey         string
	DefaultModel   string
	RequestTimeout time.Duration
	MaxRetries     int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			MetricsPort: getEnvInt("METRICS_PORT", 9090),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "agentflow"),
			User:        getEnv("POSTGRES_USER", "agentflow"),
			Password:    getEnv("POSTGRES_PASSWORD", "agentflow"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Engine: EngineConfig{
			JobStream:         getEnv("ENGINE_JOB_STREAM", "wf.jobs"),
			ConsumerGroup:     getEnv("ENGINE_CONSUMER_GROUP", "engine_workers"),
			Concurrency:       getEnvInt("ENGINE_CONCURRENCY", 4),
			NodeTimeout:       getEnvDuration("ENGINE_NODE_TIMEOUT", 5*time.Minute),
			MaxToolIterations: getEnvInt("ENGINE_MAX_TOOL_ITERATIONS", 8),
			ReclaimAfter:      getEnvDuration("ENGINE_RECLAIM_AFTER", 1*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvBool("RATE_LIMIT_ENABLED", true),
			GlobalLimit:   int64(getEnvInt("RATE_LIMIT_GLOBAL", 300)),
			UserLimit:     int64(getEnvInt("RATE_LIMIT_USER", 60)),
			WindowSeconds: getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		LLM: LLMConfig{
			BaseURL:        getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:         getEnv("LLM_API_KEY", ""),
			DefaultModel:   getEnv("LLM_DEFAULT_MODEL", "gpt-4o"),
			RequestTimeout: getEnvDuration("LLM_REQUEST_TIMEOUT", 30*time.Second),
			MaxRetries:     getEnvInt("LLM_MAX_RETRIES", 3),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Engine.Concurrency < 1 {
		return fmt.Errorf("engine concurrency must be >= 1")
	}

	if c.Engine.MaxToolIterations < 1 {
		return fmt.Errorf("max tool iterations must be >= 1")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the host:port address of the Redis broker
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
