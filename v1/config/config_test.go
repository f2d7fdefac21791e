package config

import (
	stdErrors "errors"
	"testing"
	"time"

	"github.com/spf13/viper"

	coorderrors "github.com/mirkobrombin/go-coord/v1/errors"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"no endpoints":       func(c *Config) { c.Endpoints = nil },
		"bad endpoint":       func(c *Config) { c.Endpoints = []string{"no-port"} },
		"negative db":        func(c *Config) { c.DB = -1 },
		"empty separator":    func(c *Config) { c.KeySeparator = "" },
		"unknown serializer": func(c *Config) { c.Serializer = "xml" },
		"unknown compressor": func(c *Config) { c.Compression = "lz4" },
		"zero sync timeout":  func(c *Config) { c.SyncTimeout = 0 },
		"lock above max":     func(c *Config) { c.DefaultLockExpiry = 2 * c.MaxExpiry },
		"negative jitter":    func(c *Config) { c.MaxRandomExpiry = -time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := cfg.Validate(); !stdErrors.Is(err, coorderrors.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestHighDBIndexIsValid(t *testing.T) {
	cfg := Default()
	cfg.DB = 32
	if err := cfg.Validate(); err != nil {
		t.Fatalf("db 32 should validate: %v", err)
	}
}

func TestCapExpiry(t *testing.T) {
	cfg := Default()
	if got := cfg.CapExpiry(time.Minute); got != time.Minute {
		t.Fatalf("expected 1m, got %v", got)
	}
	if got := cfg.CapExpiry(48 * time.Hour); got != cfg.MaxExpiry {
		t.Fatalf("expected cap %v, got %v", cfg.MaxExpiry, got)
	}
	if got := cfg.CapExpiry(0); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestLoad(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("endpoints", "redis-a:6379, redis-b:6380")
	v.Set("serializer", "GOB")
	v.Set("lock-retry-delay", "250ms")

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Endpoints) != 2 || cfg.Endpoints[1] != "redis-b:6380" {
		t.Fatalf("unexpected endpoints %v", cfg.Endpoints)
	}
	if cfg.Serializer != "gob" {
		t.Fatalf("serializer = %q", cfg.Serializer)
	}
	if cfg.LockRetryDelay != 250*time.Millisecond {
		t.Fatalf("lock retry delay = %v", cfg.LockRetryDelay)
	}
	if cfg.MaxExpiry != Default().MaxExpiry {
		t.Fatalf("default not applied: %v", cfg.MaxExpiry)
	}
}

func TestLoadInvalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("compression", "brotli")
	if _, err := Load(v); !stdErrors.Is(err, coorderrors.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
