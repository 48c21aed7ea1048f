package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, name := range []string{
		"PORT", "ALLOWED_ORIGIN", "DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"AUTH_SECRET", "ACCESS_TOKEN_TTL_MINUTES", "AUDIT_ENCRYPTION_KEY", "AUDIT_ENCRYPTION_IV",
		"EXCHANGE_RATE_API_URL", "EXCHANGE_RATE_TTL_SECONDS", "LOW_STOCK_THRESHOLD",
	} {
		t.Setenv(name, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("port = %q, want 8080", cfg.Port)
	}
	if cfg.AccessTokenTTL != time.Hour {
		t.Errorf("token ttl = %v, want 1h", cfg.AccessTokenTTL)
	}
	if cfg.ExchangeRateTTL != time.Hour {
		t.Errorf("rate ttl = %v, want 1h", cfg.ExchangeRateTTL)
	}
	if cfg.LowStockThreshold != 50 {
		t.Errorf("low stock threshold = %d, want 50", cfg.LowStockThreshold)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "15")
	t.Setenv("EXCHANGE_RATE_TTL_SECONDS", "120")
	t.Setenv("LOW_STOCK_THRESHOLD", "25")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("port = %q, want 9090", cfg.Port)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Errorf("token ttl = %v, want 15m", cfg.AccessTokenTTL)
	}
	if cfg.ExchangeRateTTL != 2*time.Minute {
		t.Errorf("rate ttl = %v, want 2m", cfg.ExchangeRateTTL)
	}
	if cfg.LowStockThreshold != 25 {
		t.Errorf("low stock threshold = %d, want 25", cfg.LowStockThreshold)
	}
	if cfg.RedisDB != 3 {
		t.Errorf("redis db = %d, want 3", cfg.RedisDB)
	}
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "soon")
	if _, err := Load(); err == nil {
		t.Errorf("malformed ACCESS_TOKEN_TTL_MINUTES accepted")
	}

	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "0")
	if _, err := Load(); err == nil {
		t.Errorf("zero ACCESS_TOKEN_TTL_MINUTES accepted")
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{AuthSecret: strings.Repeat("s", 32)}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	cfg.AuthSecret = "short"
	if err := cfg.Validate(); err == nil {
		t.Errorf("short AUTH_SECRET accepted")
	}

	cfg.AuthSecret = strings.Repeat("s", 32)
	cfg.AuditEncryptionKey = "deadbeef"
	if err := cfg.Validate(); err == nil {
		t.Errorf("encryption key without iv accepted")
	}
	cfg.AuditEncryptionIV = "deadbeef"
	if err := cfg.Validate(); err != nil {
		t.Errorf("key and iv together rejected: %v", err)
	}
}
