package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration, read once at startup from the
// environment (optionally seeded by a .env file).
type Config struct {
	Port          string
	AllowedOrigin string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthSecret     string
	AccessTokenTTL time.Duration

	AuditEncryptionKey string
	AuditEncryptionIV  string

	ExchangeRateAPIURL string
	ExchangeRateTTL    time.Duration

	LowStockThreshold int
}

func Load() (Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		AllowedOrigin:      os.Getenv("ALLOWED_ORIGIN"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		AuthSecret:         os.Getenv("AUTH_SECRET"),
		AuditEncryptionKey: os.Getenv("AUDIT_ENCRYPTION_KEY"),
		AuditEncryptionIV:  os.Getenv("AUDIT_ENCRYPTION_IV"),
		ExchangeRateAPIURL: os.Getenv("EXCHANGE_RATE_API_URL"),
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.RedisDB = redisDB

	ttlMinutes, err := getEnvInt("ACCESS_TOKEN_TTL_MINUTES", 60)
	if err != nil {
		return Config{}, err
	}
	if ttlMinutes < 1 {
		return Config{}, fmt.Errorf("ACCESS_TOKEN_TTL_MINUTES must be positive, got %d", ttlMinutes)
	}
	cfg.AccessTokenTTL = time.Duration(ttlMinutes) * time.Minute

	rateTTLSeconds, err := getEnvInt("EXCHANGE_RATE_TTL_SECONDS", 3600)
	if err != nil {
		return Config{}, err
	}
	if rateTTLSeconds < 1 {
		return Config{}, fmt.Errorf("EXCHANGE_RATE_TTL_SECONDS must be positive, got %d", rateTTLSeconds)
	}
	cfg.ExchangeRateTTL = time.Duration(rateTTLSeconds) * time.Second

	lowStock, err := getEnvInt("LOW_STOCK_THRESHOLD", 50)
	if err != nil {
		return Config{}, err
	}
	if lowStock < 1 {
		return Config{}, fmt.Errorf("LOW_STOCK_THRESHOLD must be positive, got %d", lowStock)
	}
	cfg.LowStockThreshold = lowStock

	return cfg, nil
}

// Validate checks the settings a server cannot safely run without.
func (c Config) Validate() error {
	if len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 characters, got %d", len(c.AuthSecret))
	}
	if (c.AuditEncryptionKey == "") != (c.AuditEncryptionIV == "") {
		return fmt.Errorf("AUDIT_ENCRYPTION_KEY and AUDIT_ENCRYPTION_IV must be set together")
	}
	return nil
}

func getEnv(name string, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, raw)
	}
	return n, nil
}
