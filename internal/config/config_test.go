package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnv() {
	os.Clearenv()
	os.Setenv("DATABASE_URL", "postgres://localhost:5432/authd")
	os.Setenv("JWT_ACCESS_SECRET", "access-secret")
	os.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.Env != "development" || cfg.Production() {
		t.Errorf("Env = %q, want development", cfg.Env)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Errorf("AccessTTL = %v, want 15m", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 720*time.Hour {
		t.Errorf("RefreshTTL = %v, want 720h", cfg.RefreshTTL)
	}
	if cfg.MFAChallengeTTL != time.Minute {
		t.Errorf("MFAChallengeTTL = %v, want 60s", cfg.MFAChallengeTTL)
	}
	if cfg.JWTIssuer != "authd" {
		t.Errorf("JWTIssuer = %q, want authd", cfg.JWTIssuer)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	setRequiredEnv()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("APP_ENV", "production")
	os.Setenv("ACCESS_TTL", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
	}
	if !cfg.Production() {
		t.Error("Production() should be true for APP_ENV=production")
	}
	if cfg.AccessTTL != 5*time.Minute {
		t.Errorf("AccessTTL = %v, want 5m", cfg.AccessTTL)
	}
}

func TestLoadValidation(t *testing.T) {
	setRequiredEnv()
	os.Setenv("JWT_REFRESH_SECRET", "access-secret")
	if _, err := Load(); err == nil {
		t.Fatal("identical secrets must be rejected")
	}

	setRequiredEnv()
	os.Unsetenv("DATABASE_URL")
	if _, err := Load(); err == nil {
		t.Fatal("missing DATABASE_URL must be rejected")
	}

	setRequiredEnv()
	os.Setenv("ACCESS_TTL", "48h")
	os.Setenv("REFRESH_TTL", "24h")
	if _, err := Load(); err == nil {
		t.Fatal("access TTL longer than refresh TTL must be rejected")
	}
}
