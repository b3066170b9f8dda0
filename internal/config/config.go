package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RedisConfig locates the shared key/value service used for both the view
// cache and the sync broadcast channel.
type RedisConfig struct {
	// Addr is the host:port of the Redis server shared by all processes.
	Addr string `yaml:"addr" json:"addr"`
	// Password is optional; empty means no AUTH.
	Password string `yaml:"password" json:"password"`
	// DB is the logical database index.
	DB int `yaml:"db" json:"db"`
	// Channel is the pub/sub channel carrying sync messages. Every process
	// must agree on it or notifications silently stop fanning out.
	Channel string `yaml:"channel" json:"channel"`
}

// CacheConfig holds the view-cache TTLs. Group and personal views expire
// independently; both are deployment-tunable, no single default suits all.
type CacheConfig struct {
	// GroupTTLMinutes is the TTL for GROUP and MY_GROUP month views.
	GroupTTLMinutes int `yaml:"group_ttl_minutes" json:"group_ttl_minutes"`
	// MyTTLMinutes is the TTL for personal (MY) month views.
	MyTTLMinutes int `yaml:"my_ttl_minutes" json:"my_ttl_minutes"`
}

// AuthConfig configures bearer-token verification for HTTP and socket
// handshakes.
type AuthConfig struct {
	// Secret signs and verifies bearer tokens. All peer processes must share it.
	Secret string `yaml:"secret" json:"secret"`
	// TokenTTLHours bounds the lifetime of minted tokens.
	TokenTTLHours int `yaml:"token_ttl_hours" json:"token_ttl_hours"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API and socket endpoint.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as the canonical calendar zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// StorePath is the sqlite database file holding groups, members and slots.
	StorePath string `yaml:"store_path" json:"store_path"`

	// WarmCron is a cron-style schedule for refreshing live-month caches
	// (e.g. "*/10 * * * *"). Empty disables the warmer.
	WarmCron string `yaml:"warm_cron" json:"warm_cron"`

	Redis RedisConfig `yaml:"redis" json:"redis"`
	Cache CacheConfig `yaml:"cache" json:"cache"`
	Auth  AuthConfig  `yaml:"auth" json:"auth"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:    "127.0.0.1:8080",
		Timezone:  "Asia/Seoul",
		StorePath: "/var/lib/slotcal/slotcal.db",
		WarmCron:  "*/10 * * * *",
		Redis: RedisConfig{
			Addr:    "127.0.0.1:6379",
			Channel: "slotcal.sync",
		},
		Cache: CacheConfig{
			GroupTTLMinutes: 30,
			MyTTLMinutes:    30,
		},
		Auth: AuthConfig{
			TokenTTLHours: 72,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Seoul"
	}
	if c.StorePath == "" {
		c.StorePath = "/var/lib/slotcal/slotcal.db"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "slotcal.sync"
	}
	if c.Cache.GroupTTLMinutes <= 0 {
		c.Cache.GroupTTLMinutes = 30
	}
	if c.Cache.MyTTLMinutes <= 0 {
		c.Cache.MyTTLMinutes = 30
	}
	if c.Auth.TokenTTLHours <= 0 {
		c.Auth.TokenTTLHours = 72
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600 (the auth secret lives here).
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".slotcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
