package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"DB_DRIVER", "DB_DSN", "APP_ENV", "JWT_SECRET", "CHAT_CONTEXT_WINDOW_SIZE", "JWT_EXPIRES_IN", "AI_PROVIDER", "TRUSTED_PROXIES", "CORS_ORIGIN", "RATE_LIMIT_BACKEND"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	if cfg.DBDriver != "mysql" {
		t.Fatalf("expected mysql driver, got %q", cfg.DBDriver)
	}
	if cfg.ChatContextWindowSize != 10 {
		t.Fatalf("expected window 10, got %d", cfg.ChatContextWindowSize)
	}
	if cfg.JWTSecret != "" {
		t.Fatalf("expected no secret fallback, got %q", cfg.JWTSecret)
	}
	if len(cfg.TrustedProxies) != 0 {
		t.Fatalf("expected no trusted proxies, got %v", cfg.TrustedProxies)
	}
	if cfg.JWTExpiresIn != 7*24*time.Hour {
		t.Fatalf("expected 7d expiry, got %s", cfg.JWTExpiresIn)
	}
	if cfg.AIProvider != "openrouter" {
		t.Fatalf("unexpected provider %q", cfg.AIProvider)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for missing secret")
	}

	t.Setenv("JWT_SECRET", "s3cret")
	if err := Load().Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	cfg := Load()
	if cfg.IsDevelopment() {
		t.Fatalf("expected production")
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for missing secret")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("DB_DSN", "")
	t.Setenv("CHAT_CONTEXT_WINDOW_SIZE", "4")
	t.Setenv("JWT_EXPIRES_IN", "90m")
	t.Setenv("RATE_LIMIT_CHAT", "5")
	t.Setenv("AI_TEMPERATURE", "0.2")

	cfg := Load()
	if cfg.DBDriver != "sqlite" || cfg.DBDSN != "gopherchat.db" {
		t.Fatalf("unexpected db config: %q %q", cfg.DBDriver, cfg.DBDSN)
	}
	if cfg.ChatContextWindowSize != 4 {
		t.Fatalf("expected window 4, got %d", cfg.ChatContextWindowSize)
	}
	if cfg.JWTExpiresIn != 90*time.Minute {
		t.Fatalf("unexpected expiry %s", cfg.JWTExpiresIn)
	}
	if cfg.RateLimitChat != 5 {
		t.Fatalf("unexpected chat limit %d", cfg.RateLimitChat)
	}
	if cfg.AITemperature < 0.19 || cfg.AITemperature > 0.21 {
		t.Fatalf("unexpected temperature %v", cfg.AITemperature)
	}
}

func TestLoad_ListsAndValidation(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("TRUSTED_PROXIES", " 10.0.0.1, 172.16.0.0/12 ,")
	t.Setenv("CORS_ORIGIN", "https://app.example, http://localhost:5173")

	cfg := Load()
	if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[1] != "172.16.0.0/12" {
		t.Fatalf("unexpected proxies %v", cfg.TrustedProxies)
	}
	if got := cfg.CORSOrigins(); len(got) != 2 || got[1] != "http://localhost:5173" {
		t.Fatalf("unexpected origins %v", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	t.Setenv("TRUSTED_PROXIES", "not-an-ip")
	if err := Load().Validate(); err == nil {
		t.Fatalf("expected invalid proxy error")
	}
	t.Setenv("TRUSTED_PROXIES", "")
	t.Setenv("CORS_ORIGIN", "app.example")
	if err := Load().Validate(); err == nil {
		t.Fatalf("expected invalid origin error")
	}
}

func TestGetDuration_Days(t *testing.T) {
	t.Setenv("X_DUR", "2d")
	if got := getDuration("X_DUR", time.Second); got != 48*time.Hour {
		t.Fatalf("expected 48h, got %s", got)
	}
	t.Setenv("X_DUR", "garbage")
	if got := getDuration("X_DUR", time.Second); got != time.Second {
		t.Fatalf("expected default, got %s", got)
	}
}
