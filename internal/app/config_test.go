package app

import (
	"testing"
	"time"

	_ "github.com/unifiedbase/unifiedbase/internal/testing/guard"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.AppAddr != ":8080" {
		t.Fatalf("unexpected addr: %q", cfg.AppAddr)
	}
	if cfg.PermCacheTTL != time.Hour {
		t.Fatalf("unexpected cache ttl: %s", cfg.PermCacheTTL)
	}
	if cfg.IsProduction() {
		t.Fatalf("development config must not read as production")
	}
}

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected an error without a jwt secret")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("APP_ENV", "production")
	t.Setenv("PERM_CACHE_TTL", "30m")
	t.Setenv("S3_ENDPOINT", "http://127.0.0.1:9000")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production")
	}
	if cfg.PermCacheTTL != 30*time.Minute {
		t.Fatalf("unexpected ttl: %s", cfg.PermCacheTTL)
	}
	if cfg.S3Endpoint != "http://127.0.0.1:9000" {
		t.Fatalf("unexpected endpoint: %q", cfg.S3Endpoint)
	}
}

func TestTestModeFlagTracksEnvironment(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	if !InTestMode() {
		t.Fatalf("expected test mode on")
	}

	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	if InTestMode() {
		t.Fatalf("expected test mode off")
	}
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
}
