// Package config provides configuration management for the nutrition bot.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Analytics AnalyticsConfig
	AI        AIConfig
	Limits    LimitsConfig
	Bots      BotRegistry
	Admin     AdminConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	RequestTimeout  time.Duration // upper bound for one webhook invocation
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	SSLMode        string
	MaxConnections int
}

// URL returns the postgres:// URL used by the migration tool.
func (c PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// AnalyticsConfig holds the analytics sink configuration. The ClickHouse
// sink is used when Host is set; otherwise events are only logged.
type AnalyticsConfig struct {
	ClickHouse    ClickHouseConfig
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// Enabled reports whether a ClickHouse host is configured.
func (c ClickHouseConfig) Enabled() bool {
	return c.Host != ""
}

// AIConfig holds the food analyzer endpoint configuration
type AIConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// LimitsConfig holds entitlement defaults
type LimitsConfig struct {
	DailyTextLimit   int
	DefaultPromoCode string
	AnalysisLockTTL  time.Duration
	DeliveryDedupTTL time.Duration
}

// BotConfig holds configuration for one Telegram bot instance
type BotConfig struct {
	ID               string
	Token            string
	WebhookSecret    string
	DefaultPromoCode string
}

// BotRegistry is the explicit set of bots served by this process
type BotRegistry struct {
	Bots map[string]BotConfig
}

// Lookup returns the bot with the given id.
func (r BotRegistry) Lookup(id string) (BotConfig, bool) {
	b, ok := r.Bots[id]
	return b, ok
}

// IDs returns the configured bot ids in sorted order.
func (r BotRegistry) IDs() []string {
	ids := make([]string, 0, len(r.Bots))
	for id := range r.Bots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AdminConfig holds the admin API configuration
type AdminConfig struct {
	Token string
}

// RateLimitConfig holds per-chat webhook throttling
type RateLimitConfig struct {
	PerChatRPS float64
	Burst      int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	limits := LimitsConfig{
		DailyTextLimit:   getEnvAsInt("DAILY_TEXT_LIMIT", 5),
		DefaultPromoCode: strings.ToUpper(getEnv("DEFAULT_PROMO_CODE", "TRIAL")),
		AnalysisLockTTL:  getEnvAsDuration("ANALYSIS_LOCK_TTL", 5*time.Minute),
		DeliveryDedupTTL: getEnvAsDuration("DELIVERY_DEDUP_TTL", 24*time.Hour),
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 4*time.Minute),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "nutrition_bot"),
				User:           getEnv("POSTGRES_USER", "nutrition"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				SSLMode:        getEnv("POSTGRES_SSLMODE", "disable"),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Analytics: AnalyticsConfig{
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", ""),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "nutrition_bot"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			BatchSize:     getEnvAsInt("ANALYTICS_BATCH_SIZE", 100),
			FlushInterval: getEnvAsDuration("ANALYTICS_FLUSH_INTERVAL", 5*time.Second),
			BufferSize:    getEnvAsInt("ANALYTICS_BUFFER_SIZE", 1000),
		},
		AI: AIConfig{
			Endpoint: getEnv("AI_ENDPOINT", ""),
			APIKey:   getEnv("AI_API_KEY", ""),
			Timeout:  getEnvAsDuration("AI_TIMEOUT", 4*time.Minute),
		},
		Limits: limits,
		Admin: AdminConfig{
			Token: getEnv("ADMIN_TOKEN", ""),
		},
		RateLimit: RateLimitConfig{
			PerChatRPS: getEnvAsFloat("RATE_LIMIT_PER_CHAT_RPS", 1),
			Burst:      getEnvAsInt("RATE_LIMIT_BURST", 5),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	config.Bots = loadBotConfigs(limits.DefaultPromoCode)

	return config, nil
}

// loadBotConfigs loads the bot registry from BOTS and BOT_<ID>_* variables.
// Bots without a token are skipped.
func loadBotConfigs(defaultPromo string) BotRegistry {
	ids := strings.Split(getEnv("BOTS", "main"), ",")

	bots := make(map[string]BotConfig)
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}

		prefix := "BOT_" + strings.ToUpper(id)
		token := getEnv(prefix+"_TOKEN", "")
		if token == "" {
			continue
		}

		bots[id] = BotConfig{
			ID:               id,
			Token:            token,
			WebhookSecret:    getEnv(prefix+"_SECRET", ""),
			DefaultPromoCode: strings.ToUpper(getEnv(prefix+"_DEFAULT_PROMO", defaultPromo)),
		}
	}

	return BotRegistry{Bots: bots}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
