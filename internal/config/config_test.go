package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("USER_SYNC_INTERVAL_MINUTES", "")
	t.Setenv("MINIO_USE_SSL", "")

	cfg := Load()
	if cfg.Addr != ":8888" {
		t.Fatalf("expected default addr :8888, got %q", cfg.Addr)
	}
	if cfg.UserSyncInterval != 0 {
		t.Fatalf("expected sync worker disabled by default, got %s", cfg.UserSyncInterval)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("expected 24h token ttl, got %s", cfg.TokenTTL)
	}
	if cfg.MinioUseSSL {
		t.Fatalf("expected MinioUseSSL false by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_ADDR", ":9999")
	t.Setenv("USER_SYNC_INTERVAL_MINUTES", "15")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("FRONTEND_URL", "https://crm.example.org/")
	t.Setenv("APP_ENV", "production")

	cfg := Load()
	if cfg.Addr != ":9999" {
		t.Fatalf("expected addr :9999, got %q", cfg.Addr)
	}
	if cfg.UserSyncInterval != 15*time.Minute {
		t.Fatalf("expected 15m interval, got %s", cfg.UserSyncInterval)
	}
	if !cfg.MinioUseSSL {
		t.Fatalf("expected MinioUseSSL true")
	}
	if cfg.FrontendURL != "https://crm.example.org" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.FrontendURL)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production env")
	}
}

func TestGetenvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "lots")
	if got := getenvInt("DB_MAX_OPEN_CONNS", 20); got != 20 {
		t.Fatalf("expected fallback 20, got %d", got)
	}
}
