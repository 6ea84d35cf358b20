package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Common
	Environment string
	LogLevel    string

	// Upstream market data
	FMP FMPConfig

	// Screener pipeline
	Screener ScreenerConfig

	// Storage
	Cache     CacheConfig
	Redis     RedisConfig
	RuleStore RuleStoreConfig
	Database  DatabaseConfig

	// Services
	API       APIConfig
	Scheduler SchedulerConfig
	Export    ExportConfig
}

// FMPConfig holds Financial Modeling Prep client configuration
type FMPConfig struct {
	APIKey       string
	BaseURL      string
	RateLimitRPS float64
	Timeout      time.Duration
}

// ScreenerConfig holds executor and enrichment configuration
type ScreenerConfig struct {
	MaxConcurrency int
	DefaultLimit   int
	RSITTL         time.Duration
	PERTTL         time.Duration
	RSISource      string // "api" or "computed"
}

// CacheConfig selects the enrichment cache backend
type CacheConfig struct {
	Backend   string // "memory" or "redis"
	KeyPrefix string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// RuleStoreConfig selects the saved-rule backend
type RuleStoreConfig struct {
	Type       string // "memory", "postgres" or "sqlite"
	SQLitePath string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// APIConfig holds REST API configuration
type APIConfig struct {
	Port           int
	JWTSecret      string
	AuthEnabled    bool
	RateLimitRPS   int
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// SchedulerConfig holds scheduled rule run configuration
type SchedulerConfig struct {
	Enabled        bool
	ReloadInterval time.Duration
	RunTimeout     time.Duration
}

// ExportConfig holds result sink configuration. Empty values disable a sink.
type ExportConfig struct {
	ParquetDir   string
	KafkaBrokers []string
	KafkaTopic   string
	RedisChannel string // publishes on Redis pub/sub when set
}

// Load loads configuration from environment variables
// It automatically loads .env file if it exists in the current directory
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		FMP: FMPConfig{
			APIKey:       getEnv("FMP_API_KEY", ""),
			BaseURL:      getEnv("FMP_BASE_URL", "https://financialmodelingprep.com/api/v3"),
			RateLimitRPS: getEnvAsFloat("FMP_RATE_LIMIT_RPS", 10),
			Timeout:      getEnvAsDuration("FMP_TIMEOUT", 30*time.Second),
		},
		Screener: ScreenerConfig{
			MaxConcurrency: getEnvAsInt("MAX_CONCURRENCY", 6),
			DefaultLimit:   getEnvAsInt("DEFAULT_LIMIT", 50),
			RSITTL:         time.Duration(getEnvAsInt("RSI_CACHE_SECONDS", 90)) * time.Second,
			PERTTL:         time.Duration(getEnvAsInt("FMP_PER_TTL_SECONDS", 300)) * time.Second,
			RSISource:      strings.ToLower(getEnv("RSI_SOURCE", "api")),
		},
		Cache: CacheConfig{
			Backend:   strings.ToLower(getEnv("CACHE_BACKEND", "memory")),
			KeyPrefix: getEnv("CACHE_KEY_PREFIX", "screener:"),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
		},
		RuleStore: RuleStoreConfig{
			Type:       strings.ToLower(getEnv("RULE_STORE", "memory")),
			SQLitePath: getEnv("SQLITE_PATH", "screener.db"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DATABASE_HOST", "localhost"),
			Port:            getEnvAsInt("DATABASE_PORT", 5432),
			User:            getEnv("DATABASE_USER", "postgres"),
			Password:        getEnv("DATABASE_PASSWORD", "postgres"),
			Database:        getEnv("DATABASE_NAME", "stock_screener"),
			SSLMode:         getEnv("DATABASE_SSL_MODE", "disable"),
			MaxConnections:  getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConns:    getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		API: APIConfig{
			Port:           getEnvAsInt("API_PORT", 8090),
			JWTSecret:      getEnv("JWT_SECRET", ""),
			AuthEnabled:    getEnvAsBool("AUTH_ENABLED", false),
			RateLimitRPS:   getEnvAsInt("RATE_LIMIT_RPS", 20),
			AllowedOrigins: getEnvAsStringSlice("ALLOWED_ORIGINS", []string{"*"}),
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 60*time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:        getEnvAsBool("SCHEDULER_ENABLED", false),
			ReloadInterval: getEnvAsDuration("SCHEDULER_RELOAD_INTERVAL", time.Minute),
			RunTimeout:     getEnvAsDuration("SCHEDULER_RUN_TIMEOUT", 2*time.Minute),
		},
		Export: ExportConfig{
			ParquetDir:   getEnv("EXPORT_PARQUET_DIR", ""),
			KafkaBrokers: getEnvAsStringSlice("KAFKA_BROKERS", []string{}),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "screener.results"),
			RedisChannel: getEnv("EXPORT_REDIS_CHANNEL", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration. A missing FMP_API_KEY is not an
// error here; runs report it when they start.
func (c *Config) Validate() error {
	if c.Screener.MaxConcurrency < 1 {
		return fmt.Errorf("MAX_CONCURRENCY must be at least 1")
	}
	if c.Screener.DefaultLimit < 1 {
		return fmt.Errorf("DEFAULT_LIMIT must be at least 1")
	}
	switch c.Screener.RSISource {
	case "api", "computed":
	default:
		return fmt.Errorf("RSI_SOURCE must be api or computed, got %q", c.Screener.RSISource)
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Redis.Host == "" {
			return fmt.Errorf("REDIS_HOST is required when CACHE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be memory or redis, got %q", c.Cache.Backend)
	}
	switch c.RuleStore.Type {
	case "memory":
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("DATABASE_HOST is required when RULE_STORE=postgres")
		}
	case "sqlite":
		if c.RuleStore.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when RULE_STORE=sqlite")
		}
	default:
		return fmt.Errorf("RULE_STORE must be memory, postgres or sqlite, got %q", c.RuleStore.Type)
	}
	if c.API.AuthEnabled && c.API.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_ENABLED=true")
	}
	if len(c.Export.KafkaBrokers) > 0 && c.Export.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// PostgresDSN returns the lib/pq connection string
func (d DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Split by comma and trim spaces
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
