package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Quota backend: "postgres" keeps the counter next to the rest of the
	// data; "redis" moves the hot counter path to Redis.
	QuotaBackend string
	RedisURL     string

	// Offset from UTC anchoring the daily reset window.
	QuotaResetOffset time.Duration

	// Identity provider token verification
	IdentityJWTSecret string

	// Payment gateway configuration
	PaymentProvider        string // "hmac" or "mock"
	PaymentKeyID           string
	PaymentKeySecret       string
	BillingCancelImmediate bool

	// Transport-level rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// AI Provider Configuration
	AIProvider       string // "anthropic" or "mock"
	AnthropicAPIKey  string
	AnthropicModel   string
	AIMaxRetries     int
	AIRetryBaseDelay time.Duration
	AIRequestTimeout time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		QuotaBackend:     getEnv("QUOTA_BACKEND", "postgres"),
		RedisURL:         getEnv("REDIS_URL", ""),
		QuotaResetOffset: getEnvDuration("QUOTA_RESET_OFFSET", 5*time.Hour+30*time.Minute),

		IdentityJWTSecret: getEnv("IDENTITY_JWT_SECRET", ""),

		PaymentProvider:        getEnv("PAYMENT_PROVIDER", "mock"),
		PaymentKeyID:           getEnv("PAYMENT_KEY_ID", ""),
		PaymentKeySecret:       getEnv("PAYMENT_KEY_SECRET", ""),
		BillingCancelImmediate: getEnvBool("BILLING_CANCEL_IMMEDIATE", false),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		// AI provider defaults
		AIProvider:       getEnv("AI_PROVIDER", "mock"),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:   getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		AIMaxRetries:     getEnvInt("AI_MAX_RETRIES", 3),
		AIRetryBaseDelay: getEnvDuration("AI_RETRY_BASE_DELAY", 1*time.Second),
		AIRequestTimeout: getEnvDuration("AI_REQUEST_TIMEOUT", 60*time.Second),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.IdentityJWTSecret == "" {
		return nil, fmt.Errorf("IDENTITY_JWT_SECRET is required")
	}

	// Validate quota backend configuration
	if cfg.QuotaBackend == "redis" {
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when QUOTA_BACKEND is 'redis'")
		}
	} else if cfg.QuotaBackend != "postgres" {
		return nil, fmt.Errorf("QUOTA_BACKEND must be either 'postgres' or 'redis', got: %s", cfg.QuotaBackend)
	}

	// Validate payment provider configuration
	if cfg.PaymentProvider == "hmac" {
		if cfg.PaymentKeyID == "" || cfg.PaymentKeySecret == "" {
			return nil, fmt.Errorf("PAYMENT_KEY_ID and PAYMENT_KEY_SECRET are required when PAYMENT_PROVIDER is 'hmac'")
		}
	} else if cfg.PaymentProvider != "mock" {
		return nil, fmt.Errorf("PAYMENT_PROVIDER must be either 'hmac' or 'mock', got: %s", cfg.PaymentProvider)
	}

	// Validate AI provider configuration
	if cfg.AIProvider == "anthropic" {
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is 'anthropic'")
		}
	} else if cfg.AIProvider != "mock" {
		return nil, fmt.Errorf("AI_PROVIDER must be either 'anthropic' or 'mock', got: %s", cfg.AIProvider)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
