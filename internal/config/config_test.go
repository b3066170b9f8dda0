package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8080" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Redis.Channel != "slotcal.sync" {
		t.Errorf("Redis.Channel = %q", cfg.Redis.Channel)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config perm = %o, want 0600", perm)
	}
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "listen: \"0.0.0.0:9000\"\nredis:\n  addr: \"redis.internal:6379\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Redis.Addr != "redis.internal:6379" {
		t.Errorf("Redis.Addr = %q", cfg.Redis.Addr)
	}
	// Omitted fields are filled by Normalize.
	if cfg.Timezone != "Asia/Seoul" {
		t.Errorf("Timezone = %q", cfg.Timezone)
	}
	if cfg.Cache.GroupTTLMinutes != 30 || cfg.Cache.MyTTLMinutes != 30 {
		t.Errorf("cache TTLs = %d/%d", cfg.Cache.GroupTTLMinutes, cfg.Cache.MyTTLMinutes)
	}
}

func TestNormalizeFillsZeroValues(t *testing.T) {
	var cfg Config
	cfg.Normalize()

	if cfg.Listen == "" || cfg.Timezone == "" || cfg.StorePath == "" {
		t.Errorf("normalize left blanks: %+v", cfg)
	}
	if cfg.Cache.GroupTTLMinutes <= 0 || cfg.Cache.MyTTLMinutes <= 0 {
		t.Errorf("cache TTLs not defaulted: %+v", cfg.Cache)
	}
	if cfg.Auth.TokenTTLHours <= 0 {
		t.Errorf("token TTL not defaulted: %+v", cfg.Auth)
	}
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	cfg := Config{Listen: "10.0.0.1:80", Timezone: "UTC"}
	cfg.Cache.GroupTTLMinutes = 5
	cfg.Normalize()

	if cfg.Listen != "10.0.0.1:80" || cfg.Timezone != "UTC" || cfg.Cache.GroupTTLMinutes != 5 {
		t.Errorf("normalize clobbered explicit values: %+v", cfg)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Auth.Secret = "round-trip-secret"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Auth.Secret != "round-trip-secret" {
		t.Errorf("secret = %q after round trip", got.Auth.Secret)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "warm_cron") {
		t.Error("saved yaml missing warm_cron key")
	}
}
