// Package config holds the settings read once at process start and shared,
// read-only, by every coordination primitive.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	coorderrors "github.com/mirkobrombin/go-coord/v1/errors"
)

// Config is the immutable configuration consumed by client.New.
type Config struct {
	// Endpoints lists the Redis addresses. More than one endpoint selects a
	// cluster client.
	Endpoints []string `mapstructure:"endpoints" validate:"required,min=1,dive,hostname_port"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	DB        int      `mapstructure:"db" validate:"gte=0"`

	DialTimeout time.Duration `mapstructure:"dial-timeout" validate:"gt=0"`
	// SyncTimeout bounds socket reads/writes and every single store operation.
	SyncTimeout time.Duration `mapstructure:"sync-timeout" validate:"gt=0"`
	MaxRetries  int           `mapstructure:"max-retries" validate:"gte=-1"`

	KeySeparator string `mapstructure:"key-separator" validate:"required"`
	Serializer   string `mapstructure:"serializer" validate:"oneof=json gob"`
	Compression  string `mapstructure:"compression" validate:"oneof=none gzip zstd snappy"`

	// MaxExpiry caps every TTL handed to the store, locks included.
	MaxExpiry         time.Duration `mapstructure:"max-expiry" validate:"gt=0"`
	LockRetryDelay    time.Duration `mapstructure:"lock-retry-delay" validate:"gt=0"`
	DefaultLockExpiry time.Duration `mapstructure:"lock-expiry" validate:"gt=0,ltefield=MaxExpiry"`
	// MaxRandomExpiry is the upper bound of the jitter added by value.Var.Set.
	MaxRandomExpiry time.Duration `mapstructure:"max-random-expiry" validate:"gte=0"`
}

// Default returns a Config with sensible defaults for a local Redis.
func Default() Config {
	return Config{
		Endpoints:         []string{"localhost:6379"},
		DialTimeout:       5 * time.Second,
		SyncTimeout:       3 * time.Second,
		MaxRetries:        3,
		KeySeparator:      ":",
		Serializer:        "json",
		Compression:       "none",
		MaxExpiry:         24 * time.Hour,
		LockRetryDelay:    100 * time.Millisecond,
		DefaultLockExpiry: 30 * time.Second,
	}
}

var validate = validator.New()

// Validate checks that the config is usable.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", coorderrors.ErrInvalidConfig, err)
	}
	return nil
}

// CapExpiry clamps d to MaxExpiry. Non-positive values are returned as is.
func (c Config) CapExpiry(d time.Duration) time.Duration {
	if c.MaxExpiry > 0 && d > c.MaxExpiry {
		return c.MaxExpiry
	}
	return d
}

// SetDefaults registers the defaults of Default on v so that Load falls back
// to them for keys missing from files, env and flags.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("endpoints", strings.Join(d.Endpoints, ","))
	v.SetDefault("username", d.Username)
	v.SetDefault("password", d.Password)
	v.SetDefault("db", d.DB)
	v.SetDefault("dial-timeout", d.DialTimeout)
	v.SetDefault("sync-timeout", d.SyncTimeout)
	v.SetDefault("max-retries", d.MaxRetries)
	v.SetDefault("key-separator", d.KeySeparator)
	v.SetDefault("serializer", d.Serializer)
	v.SetDefault("compression", d.Compression)
	v.SetDefault("max-expiry", d.MaxExpiry)
	v.SetDefault("lock-retry-delay", d.LockRetryDelay)
	v.SetDefault("lock-expiry", d.DefaultLockExpiry)
	v.SetDefault("max-random-expiry", d.MaxRandomExpiry)
}

// Load builds a Config from v and validates it. Endpoints may be given as a
// comma-separated string.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Endpoints:         splitEndpoints(v.GetStringSlice("endpoints")),
		Username:          v.GetString("username"),
		Password:          v.GetString("password"),
		DB:                v.GetInt("db"),
		DialTimeout:       v.GetDuration("dial-timeout"),
		SyncTimeout:       v.GetDuration("sync-timeout"),
		MaxRetries:        v.GetInt("max-retries"),
		KeySeparator:      v.GetString("key-separator"),
		Serializer:        strings.ToLower(v.GetString("serializer")),
		Compression:       strings.ToLower(v.GetString("compression")),
		MaxExpiry:         v.GetDuration("max-expiry"),
		LockRetryDelay:    v.GetDuration("lock-retry-delay"),
		DefaultLockExpiry: v.GetDuration("lock-expiry"),
		MaxRandomExpiry:   v.GetDuration("max-random-expiry"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func splitEndpoints(raw []string) []string {
	var out []string
	for _, r := range raw {
		for _, e := range strings.Split(r, ",") {
			if e = strings.TrimSpace(e); e != "" {
				out = append(out, e)
			}
		}
	}
	return out
}
