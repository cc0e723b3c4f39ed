package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	FrontendURL        string
	PublicBaseURL      string
	CORSAllowedOrigins []string

	GatewaySecretKey string
	GatewayBaseURL   string
	GatewayTimeout   time.Duration

	AdminEmail        string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	SMTPFrom          string
	NotifyMaxAttempts int
	NotifyBackoff     time.Duration

	WebhookReplayTTL time.Duration
	IdempotencyTTL   time.Duration
	VerifyRateLimit  string

	ExchangeRate float64

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		FrontendURL:        valueOrDefault(k.String("FRONTEND_URL"), "http://localhost:3000"),
		PublicBaseURL:      strings.TrimRight(k.String("PUBLIC_BASE_URL"), "/"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		GatewaySecretKey: strings.TrimSpace(k.String("GATEWAY_SECRET_KEY")),
		GatewayBaseURL:   valueOrDefault(k.String("GATEWAY_BASE_URL"), "https://api.paystack.co"),
		GatewayTimeout:   parseDuration(k.String("GATEWAY_TIMEOUT"), "10s"),

		AdminEmail:        k.String("ADMIN_EMAIL"),
		SMTPHost:          k.String("SMTP_HOST"),
		SMTPPort:          parseInt(k.String("SMTP_PORT"), 587),
		SMTPUsername:      k.String("SMTP_USERNAME"),
		SMTPPassword:      k.String("SMTP_PASSWORD"),
		SMTPFrom:          k.String("SMTP_FROM"),
		NotifyMaxAttempts: parseInt(k.String("NOTIFY_MAX_ATTEMPTS"), 3),
		NotifyBackoff:     parseDuration(k.String("NOTIFY_BACKOFF"), "2s"),

		WebhookReplayTTL: parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "15m"),
		VerifyRateLimit:  valueOrDefault(k.String("VERIFY_RATE_LIMIT"), "60-M"),

		ExchangeRate: parseFloat(k.String("EXCHANGE_RATE"), 0),

		MinioEndpoint:  k.String("MINIO_ENDPOINT"),
		MinioAccessKey: k.String("MINIO_ACCESS_KEY"),
		MinioSecretKey: k.String("MINIO_SECRET_KEY"),
		MinioUseSSL:    parseBool(k.String("MINIO_USE_SSL")),
		MinioBucket:    valueOrDefault(k.String("MINIO_BUCKET"), "booking-attachments"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.GatewaySecretKey == "" {
		return nil, errors.New("GATEWAY_SECRET_KEY is required")
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "http://localhost:" + cfg.Port
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// CallbackURL is the absolute URL the gateway redirects customers back to.
func (c *Config) CallbackURL() string {
	return c.PublicBaseURL + "/api/payment/callback"
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
