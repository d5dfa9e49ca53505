package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the order execution engine.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Observability ObservabilityConfig
	Engine        EngineConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	URL                 string
	MaxOpenConns        int
	MaxIdleConns        int
	ConnMaxLifetime     time.Duration
	ConnMaxIdleTime     time.Duration
	QueryTimeout        time.Duration
	EnableQueryCache    bool
	CacheSize           int
	CacheTTL            time.Duration
	HealthCheckInterval time.Duration
}

type RedisConfig struct {
	URL              string
	Password         string
	DB               int
	PoolSize         int
	MinIdleConns     int
	MaxIdleConns     int
	PoolTimeout      time.Duration
	MaxRetries       int
	MinRetryBackoff  time.Duration
	MaxRetryBackoff  time.Duration
	EnableMetrics    bool
	ActiveOrderTTL   time.Duration
}

type ObservabilityConfig struct {
	JaegerEndpoint string
	ServiceName    string
	LogLevel       string
	LogFormat      string
	MetricsPort    int
}

// RateLimit describes a token-bucket style cap: at most Max jobs per Duration.
type RateLimit struct {
	Max      int
	Duration time.Duration
}

// RetryPolicy describes the attempts/backoff contract for a job class.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// ValidationThresholds configures the warn-level thresholds the routing hub
// attaches to quotes during validation, without rejecting them outright.
type ValidationThresholds struct {
	SlippageWarn  float64 // fraction, e.g. 0.01 for 1%
	LiquidityWarn float64 // absolute liquidity floor below which a quote is flagged
}

// EngineConfig holds the order execution engine's domain-level tunables.
type EngineConfig struct {
	QuoteDeadline        time.Duration
	WorkerConcurrency    int
	WorkerRateLimit      RateLimit
	QuoteRetry           RetryPolicy
	SwapRetry            RetryPolicy
	VenueSpeedRank       map[string]int
	ValidationThresholds ValidationThresholds
	Venues               []string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "0.0.0.0"),
			ReadTimeout:  getDurationEnv("READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			URL:                 getEnv("DATABASE_URL", ""),
			MaxOpenConns:        getIntEnv("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:        getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime:     getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime:     getDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			QueryTimeout:        getDurationEnv("DB_QUERY_TIMEOUT", 30*time.Second),
			EnableQueryCache:    getBoolEnv("DB_ENABLE_QUERY_CACHE", true),
			CacheSize:           getIntEnv("DB_CACHE_SIZE", 1000),
			CacheTTL:            getDurationEnv("DB_CACHE_TTL", 5*time.Minute),
			HealthCheckInterval: getDurationEnv("DB_HEALTH_CHECK_INTERVAL", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:             getEnv("REDIS_URL", "redis://localhost:6379"),
			Password:        getEnv("REDIS_PASSWORD", ""),
			DB:              getIntEnv("REDIS_DB", 0),
			PoolSize:        getIntEnv("REDIS_POOL_SIZE", 20),
			MinIdleConns:    getIntEnv("REDIS_MIN_IDLE_CONNS", 5),
			MaxIdleConns:    getIntEnv("REDIS_MAX_IDLE_CONNS", 10),
			PoolTimeout:     getDurationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
			MaxRetries:      getIntEnv("REDIS_MAX_RETRIES", 3),
			MinRetryBackoff: getDurationEnv("REDIS_MIN_RETRY_BACKOFF", 8*time.Millisecond),
			MaxRetryBackoff: getDurationEnv("REDIS_MAX_RETRY_BACKOFF", 512*time.Millisecond),
			EnableMetrics:   getBoolEnv("REDIS_ENABLE_METRICS", true),
			ActiveOrderTTL:  getDurationEnv("REDIS_ACTIVE_ORDER_TTL", 24*time.Hour),
		},
		Observability: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "dex-execution-engine"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsPort:    getIntEnv("METRICS_PORT", 9090),
		},
		Engine: EngineConfig{
			QuoteDeadline:     getDurationEnv("QUOTE_DEADLINE_MS", 10_000*time.Millisecond),
			WorkerConcurrency: getIntEnv("WORKER_CONCURRENCY", 5),
			WorkerRateLimit: RateLimit{
				Max:      getIntEnv("WORKER_RATE_LIMIT_MAX", 10),
				Duration: getDurationEnv("WORKER_RATE_LIMIT_DURATION_MS", 1000*time.Millisecond),
			},
			QuoteRetry: RetryPolicy{
				MaxAttempts: getIntEnv("QUOTE_RETRY_MAX_ATTEMPTS", 3),
				BackoffBase: getDurationEnv("QUOTE_RETRY_BACKOFF_BASE_MS", 5000*time.Millisecond),
			},
			SwapRetry: RetryPolicy{
				MaxAttempts: getIntEnv("SWAP_RETRY_MAX_ATTEMPTS", 2),
				BackoffBase: getDurationEnv("SWAP_RETRY_BACKOFF_BASE_MS", 10_000*time.Millisecond),
			},
			VenueSpeedRank: getVenueSpeedRankEnv("VENUE_SPEED_RANK", map[string]int{
				"uniswap":   1,
				"sushiswap": 2,
				"curve":     2,
				"balancer":  3,
			}),
			ValidationThresholds: ValidationThresholds{
				SlippageWarn:  getFloatEnv("VALIDATION_SLIPPAGE_WARN", 0.01),
				LiquidityWarn: getFloatEnv("VALIDATION_LIQUIDITY_WARN", 10_000),
			},
			Venues: getSliceEnv("ENGINE_VENUES", []string{"uniswap", "sushiswap", "curve", "balancer"}),
		},
	}

	if path := os.Getenv("ENGINE_VENUE_CONFIG_FILE"); path != "" {
		if err := applyVenueConfigFile(&cfg.Engine, path); err != nil {
			return nil, fmt.Errorf("loading venue config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// venueConfigFile is the YAML shape accepted by ENGINE_VENUE_CONFIG_FILE, for
// deployments that prefer a checked-in venue roster and speed-rank table
// over long comma-separated environment variables.
type venueConfigFile struct {
	Venues         []string       `yaml:"venues"`
	VenueSpeedRank map[string]int `yaml:"venueSpeedRank"`
}

// applyVenueConfigFile overrides cfg's venue roster and speed-rank table
// from a YAML file, when present. Fields omitted from the file leave the
// environment-derived defaults untouched.
func applyVenueConfigFile(cfg *EngineConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read venue config file: %w", err)
	}

	var file venueConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse venue config file: %w", err)
	}

	if len(file.Venues) > 0 {
		cfg.Venues = file.Venues
	}
	if len(file.VenueSpeedRank) > 0 {
		cfg.VenueSpeedRank = file.VenueSpeedRank
	}
	return nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Engine.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	if len(c.Engine.Venues) == 0 {
		return fmt.Errorf("ENGINE_VENUES must list at least one venue")
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Accept bare millisecond integers for the *_MS-suffixed keys.
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, item := range parts {
			item = strings.TrimSpace(item)
			if item != "" {
				result = append(result, item)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// getVenueSpeedRankEnv parses "venue:rank,venue:rank" pairs into a speed-rank
// table, falling back to defaultValue when unset or malformed.
func getVenueSpeedRankEnv(key string, defaultValue map[string]int) map[string]int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	result := make(map[string]int)
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		rank, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		result[strings.TrimSpace(parts[0])] = rank
	}

	if len(result) == 0 {
		return defaultValue
	}
	return result
}
