package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all process-level configuration for signalhub
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
// 튜닝 테이블(자산 밴드, 점수 가중치 등)은 internal/signalconfig YAML 에서 관리
type Config struct {
	// Server (ops endpoints: /healthz, /metrics)
	Port string
	Env  string // development, staging, production

	// Database (optional, persistence disabled when URL is empty)
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Kafka
	Kafka KafkaConfig

	// Price feed providers
	Feed FeedConfig

	// Pipeline
	PipelineConfigPath string
	IngestWorkers      int

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Enabled reports whether persistence to PostgreSQL is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// KafkaConfig holds message bus configuration
type KafkaConfig struct {
	Brokers     []string
	RawTopic    string // RawMessage 입력 토픽
	EventsTopic string // signal/transition/group/reputation 출력 토픽
	GroupID     string
	Enabled     bool
}

// FeedConfig holds price feed provider configuration
type FeedConfig struct {
	Providers        []string // 우선순위 순서 (앞쪽이 우선)
	Timeout          time.Duration
	PollInterval     time.Duration
	BinanceBaseURL   string
	BinanceWSURL     string
	CoinGeckoBaseURL string
	RequestsPerSec   int
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		// Kafka
		Kafka: KafkaConfig{
			Brokers:     getEnvAsList("KAFKA_BROKERS", "localhost:9092"),
			RawTopic:    getEnv("KAFKA_RAW_TOPIC", "signals.raw"),
			EventsTopic: getEnv("KAFKA_EVENTS_TOPIC", "signals.events"),
			GroupID:     getEnv("KAFKA_GROUP_ID", "signalhub"),
			Enabled:     getEnvAsBool("KAFKA_ENABLED", true),
		},

		// Price feed
		Feed: FeedConfig{
			Providers:        getEnvAsList("FEED_PROVIDERS", "binance-ws,binance,coingecko"),
			Timeout:          getEnvAsDuration("FEED_TIMEOUT", "5s"),
			PollInterval:     getEnvAsDuration("FEED_POLL_INTERVAL", "10s"),
			BinanceBaseURL:   getEnv("BINANCE_BASE_URL", "https://api.binance.com"),
			BinanceWSURL:     getEnv("BINANCE_WS_URL", "wss://stream.binance.com:9443/stream"),
			CoinGeckoBaseURL: getEnv("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3"),
			RequestsPerSec:   getEnvAsInt("FEED_REQUESTS_PER_SEC", 10),
		},

		// Pipeline
		PipelineConfigPath: getEnv("PIPELINE_CONFIG", ""),
		IngestWorkers:      getEnvAsInt("INGEST_WORKERS", 4),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if len(c.Feed.Providers) == 0 {
		return fmt.Errorf("FEED_PROVIDERS must name at least one provider")
	}

	if c.Feed.Timeout <= 0 || c.Feed.PollInterval <= 0 {
		return fmt.Errorf("FEED_TIMEOUT and FEED_POLL_INTERVAL must be positive")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED=true")
	}

	if c.IngestWorkers < 1 {
		return fmt.Errorf("INGEST_WORKERS must be >= 1")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
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

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)

	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
