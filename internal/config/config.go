// Package config loads the sync core's configuration from the environment,
// following the same getEnv/getEnvBool/getEnvDuration helper style used
// throughout this codebase's ambient stack.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// AccountConfig holds the credentials and base URL for one of the two
// eMAG seller accounts (MAIN or FBE).
type AccountConfig struct {
	Name    string // "main" or "fbe"
	BaseURL string
	APIUser string
	APIKey  string
}

// RateLimitConfig holds the caps for one resource class. Config.RateLimits
// is keyed by resource class only: both accounts share the same caps and
// there is no per-account override.
type RateLimitConfig struct {
	PerSecond int
	PerMinute int
}

// CircuitBreakerConfig configures C2's per-account breaker (spec §4.2).
type CircuitBreakerConfig struct {
	FailureThreshold int
	OpenDuration     time.Duration
}

// HTTPConfig bounds the API client's per-call behavior (spec §4.2).
type HTTPConfig struct {
	ConnectTimeout time.Duration
	TotalTimeout   time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration
	RetryBudget    time.Duration
}

// ReorderConfig carries the multipliers and default exchange rates used by
// C6 (spec §4.6).
type ReorderConfig struct {
	CNYExchangeRate decimal.Decimal
}

type Config struct {
	Debug bool

	DatabaseDSN string

	Accounts map[string]AccountConfig // keyed by "main"/"fbe"

	RateLimits map[string]RateLimitConfig // keyed by resource class: "orders"/"other"

	CircuitBreaker CircuitBreakerConfig
	HTTP           HTTPConfig
	Reorder        ReorderConfig

	DefaultConflictStrategy string // emag_priority|local_priority|newest_wins|manual
	DefaultPageSize         int
	MaxPagesDefault         int
	SyncWallClockCap        time.Duration
	OrphanSweepTTL          time.Duration
	MinSimilarity           float64

	TelegramToken  string
	TelegramChatID int64

	RedisAddr string // optional, enables the Redis-backed RunnerLock when set
}

func Load() (*Config, error) {
	cfg := &Config{
		Debug:       getEnvBool("DEBUG", false),
		DatabaseDSN: getEnv("DATABASE_DSN", "data/emagsync.db"),

		Accounts: map[string]AccountConfig{
			"main": {
				Name:    "main",
				BaseURL: getEnv("EMAG_MAIN_BASE_URL", "https://marketplace-api.emag.ro/api-3"),
				APIUser: os.Getenv("EMAG_MAIN_API_USER"),
				APIKey:  os.Getenv("EMAG_MAIN_API_KEY"),
			},
			"fbe": {
				Name:    "fbe",
				BaseURL: getEnv("EMAG_FBE_BASE_URL", "https://marketplace-api.emag.ro/api-3"),
				APIUser: os.Getenv("EMAG_FBE_API_USER"),
				APIKey:  os.Getenv("EMAG_FBE_API_KEY"),
			},
		},

		RateLimits: map[string]RateLimitConfig{
			"orders": {
				PerSecond: getEnvInt("RATE_LIMIT_ORDERS_PER_SECOND", 12),
				PerMinute: getEnvInt("RATE_LIMIT_ORDERS_PER_MINUTE", 720),
			},
			"other": {
				PerSecond: getEnvInt("RATE_LIMIT_OTHER_PER_SECOND", 3),
				PerMinute: getEnvInt("RATE_LIMIT_OTHER_PER_MINUTE", 180),
			},
		},

		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: getEnvInt("CIRCUIT_BREAKER_FAILURE_THRESHOLD", 5),
			OpenDuration:     getEnvDuration("CIRCUIT_BREAKER_OPEN_DURATION", 60*time.Second),
		},

		HTTP: HTTPConfig{
			ConnectTimeout: getEnvDuration("HTTP_CONNECT_TIMEOUT", 10*time.Second),
			TotalTimeout:   getEnvDuration("HTTP_TOTAL_TIMEOUT", 30*time.Second),
			MaxAttempts:    getEnvInt("HTTP_MAX_ATTEMPTS", 3),
			BackoffBase:    getEnvDuration("HTTP_BACKOFF_BASE", 1*time.Second),
			RetryBudget:    getEnvDuration("HTTP_RETRY_BUDGET", 30*time.Second),
		},

		Reorder: ReorderConfig{
			CNYExchangeRate: getEnvDecimal("REORDER_CNY_EXCHANGE_RATE", decimal.NewFromFloat(0.65)),
		},

		DefaultConflictStrategy: getEnv("DEFAULT_CONFLICT_STRATEGY", "emag_priority"),
		DefaultPageSize:         getEnvInt("DEFAULT_PAGE_SIZE", 100),
		MaxPagesDefault:         getEnvInt("MAX_PAGES_DEFAULT", 100),
		SyncWallClockCap:        getEnvDuration("SYNC_WALL_CLOCK_CAP", 10*time.Minute),
		OrphanSweepTTL:          getEnvDuration("ORPHAN_SWEEP_TTL", 15*time.Minute),
		MinSimilarity:           getEnvFloat("MATCHING_MIN_SIMILARITY", 0.75),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		RedisAddr: os.Getenv("REDIS_ADDR"),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
