package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "DATABASE_URL", "REDIS_URL", "API_KEYS", "TARGET_LATENCY_MS", "MAX_EVENTS_PER_SEC", "REQUEST_TIMEOUT_SEC"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("port = %s, want 8080", cfg.Port)
	}
	if !cfg.IsDevelopment() {
		t.Error("default env should be development")
	}
	if cfg.RedisURL != "redis://localhost:6379" {
		t.Errorf("redis url = %s", cfg.RedisURL)
	}
	if cfg.TargetLatency != 100*time.Millisecond {
		t.Errorf("target latency = %v, want 100ms", cfg.TargetLatency)
	}
	if cfg.MaxEventsPerSec != 100 {
		t.Errorf("max events/sec = %d, want 100", cfg.MaxEventsPerSec)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("request timeout = %v, want 30s", cfg.RequestTimeout)
	}
	if len(cfg.APIKeys) != 0 {
		t.Errorf("api keys = %v, want none", cfg.APIKeys)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "staging")
	t.Setenv("API_KEYS", "key-1, key-2 ,,key-3")
	t.Setenv("TARGET_LATENCY_MS", "250")
	t.Setenv("REQUEST_TIMEOUT_SEC", "not-a-number")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Errorf("port = %s, want 9000", cfg.Port)
	}
	if cfg.IsDevelopment() {
		t.Error("staging reported as development")
	}
	if len(cfg.APIKeys) != 3 || cfg.APIKeys[0] != "key-1" || cfg.APIKeys[2] != "key-3" {
		t.Errorf("api keys = %v, want trimmed [key-1 key-2 key-3]", cfg.APIKeys)
	}
	if cfg.TargetLatency != 250*time.Millisecond {
		t.Errorf("target latency = %v, want 250ms", cfg.TargetLatency)
	}
	// Unparseable numbers fall back to the default.
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("request timeout = %v, want 30s fallback", cfg.RequestTimeout)
	}
}

func TestLoadProductionRequiresDatabase(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "")

	defer func() {
		if recover() == nil {
			t.Error("production without DATABASE_URL did not panic")
		}
	}()
	Load()
}
