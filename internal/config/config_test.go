package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"PORT", "DB_PATH", "STALE_SESSION_MINUTES", "DEFAULT_FOCUS_MINUTES", "MAX_SESSION_MINUTES", "CORS_ORIGINS", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.StaleSessionAfter != 4*time.Hour || cfg.DefaultFocusMinutes != 25 || cfg.MaxSessionMinutes != 180 {
		t.Fatalf("unexpected lifecycle defaults: %+v", cfg)
	}

	policy := cfg.SessionPolicy()
	if policy.StaleAfter != 4*time.Hour || policy.DefaultDurationSeconds != 1500 || policy.MaxDurationMinutes != 180 {
		t.Fatalf("unexpected policy: %+v", policy)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STALE_SESSION_MINUTES", "90")
	t.Setenv("DEFAULT_FOCUS_MINUTES", "50")
	t.Setenv("MAX_SESSION_MINUTES", "not-a-number")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()
	if cfg.StaleSessionAfter != 90*time.Minute || cfg.DefaultFocusMinutes != 50 {
		t.Fatalf("unexpected lifecycle settings: %+v", cfg)
	}
	if cfg.MaxSessionMinutes != 180 {
		t.Fatalf("invalid integer must fall back, got %d", cfg.MaxSessionMinutes)
	}
	if want := []string{"https://a.example", "https://b.example"}; !reflect.DeepEqual(cfg.CORSOrigins, want) {
		t.Fatalf("CORSOrigins = %v, want %v", cfg.CORSOrigins, want)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	if _, ok := os.LookupEnv("DEFAULT_FOCUS_MINUTES"); ok {
		t.Skip("DEFAULT_FOCUS_MINUTES is set in the environment")
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DEFAULT_FOCUS_MINUTES=45\nLOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(dir)
	t.Setenv("LOG_LEVEL", "warn")
	t.Cleanup(func() { _ = os.Unsetenv("DEFAULT_FOCUS_MINUTES") })

	cfg := Load()
	if cfg.DefaultFocusMinutes != 45 {
		t.Fatalf("expected value from .env, got %d", cfg.DefaultFocusMinutes)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("environment must win over .env, got %q", cfg.LogLevel)
	}
}
