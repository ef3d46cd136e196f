// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full service configuration
type Config struct {
	Environment string
	Port        string
	LogLevel    string

	DatabaseURL string
	JWTSecret   string

	BaasProvider string // MOCK or SYNCTERA

	// MockWebhookSecret signs deliveries to the mock provider endpoint in
	// development and tests.
	MockWebhookSecret string

	Redis    RedisConfig
	Synctera SyncteraConfig
	Tracing  TracingConfig

	// HoldTTLHours is how long an authorization hold stays PENDING before
	// the sweep expires it.
	HoldTTLHours int
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// SyncteraConfig holds Synctera adapter settings
type SyncteraConfig struct {
	APIKey            string
	BaseURL           string
	WebhookSecret     string
	AccountTemplateID string
	CardProductID     string
	AccountCurrency   string
}

// TracingConfig holds OTLP tracing settings
type TracingConfig struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRate   float64
}

// Load reads configuration from .env (when present) and the environment.
// Missing required values fail startup.
func Load() (*Config, error) {
	// .env is a development convenience; absence is not an error
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("BAAS_PROVIDER", "MOCK")
	v.SetDefault("MOCK_WEBHOOK_SECRET", "mock-webhook-secret")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SYNCTERA_BASE_URL", "https://api.synctera.com/v0")
	v.SetDefault("SYNCTERA_ACCOUNT_CURRENCY", "USD")
	v.SetDefault("HOLD_TTL_HOURS", 168)
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_SAMPLE_RATE", 0.1)

	cfg := &Config{
		Environment:  v.GetString("ENVIRONMENT"),
		Port:         v.GetString("PORT"),
		LogLevel:     v.GetString("LOG_LEVEL"),
		DatabaseURL:  v.GetString("DATABASE_URL"),
		JWTSecret:    v.GetString("JWT_SECRET"),
		BaasProvider:      strings.ToUpper(v.GetString("BAAS_PROVIDER")),
		MockWebhookSecret: v.GetString("MOCK_WEBHOOK_SECRET"),
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Synctera: SyncteraConfig{
			APIKey:            v.GetString("SYNCTERA_API_KEY"),
			BaseURL:           v.GetString("SYNCTERA_BASE_URL"),
			WebhookSecret:     v.GetString("SYNCTERA_WEBHOOK_SECRET"),
			AccountTemplateID: v.GetString("SYNCTERA_ACCOUNT_TEMPLATE_ID"),
			CardProductID:     v.GetString("SYNCTERA_CARD_PRODUCT_ID"),
			AccountCurrency:   v.GetString("SYNCTERA_ACCOUNT_CURRENCY"),
		},
		Tracing: TracingConfig{
			Enabled:      v.GetBool("TRACING_ENABLED"),
			OTLPEndpoint: v.GetString("OTLP_ENDPOINT"),
			SampleRate:   v.GetFloat64("TRACING_SAMPLE_RATE"),
		},
		HoldTTLHours: v.GetInt("HOLD_TTL_HOURS"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string

	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	switch c.BaasProvider {
	case "MOCK":
	case "SYNCTERA":
		if c.Synctera.APIKey == "" {
			missing = append(missing, "SYNCTERA_API_KEY")
		}
		if c.Synctera.WebhookSecret == "" {
			missing = append(missing, "SYNCTERA_WEBHOOK_SECRET")
		}
	default:
		return fmt.Errorf("unsupported BAAS_PROVIDER: %s", c.BaasProvider)
	}

	if c.HoldTTLHours <= 0 {
		return fmt.Errorf("HOLD_TTL_HOURS must be positive")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return nil
}

// IsProduction returns true in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
