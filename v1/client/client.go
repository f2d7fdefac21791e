// Package client wires configuration, the Redis connection, the key namespace
// and the value codec into one Client shared by every coordination primitive.
//
// A Client is built once at process start and is read-only afterwards:
//
//	c, err := client.New(ctx, config.Default())
//	if err != nil { ... }
//	defer c.Close()
//	l, _ := lock.New(c, "jobs")
package client

import (
	"context"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"github.com/mirkobrombin/go-coord/v1/codec"
	"github.com/mirkobrombin/go-coord/v1/config"
	"github.com/mirkobrombin/go-coord/v1/keyspace"
	"github.com/mirkobrombin/go-coord/v1/store"
)

// Client owns the store connection and the settings derived from Config.
type Client struct {
	cfg        config.Config
	store      *store.Store
	ns         keyspace.Namespace
	codec      codec.Codec
	compressor codec.Compressor
	logger     *slog.Logger
	owned      bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used by the primitives. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCodec overrides the structured serializer selected by Config.Serializer.
func WithCodec(cd codec.Codec) Option {
	return func(c *Client) {
		if cd != nil {
			c.codec = cd
		}
	}
}

// WithCompressor overrides the compressor selected by Config.Compression.
func WithCompressor(comp codec.Compressor) Option {
	return func(c *Client) { c.compressor = comp }
}

// New validates cfg, connects to Redis and pings it before returning.
// More than one endpoint yields a cluster client.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Endpoints,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.SyncTimeout,
		WriteTimeout: cfg.SyncTimeout,
		MaxRetries:   cfg.MaxRetries,
	})
	c, err := build(rdb, cfg, opts)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	c.owned = true

	pctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := c.store.Ping(pctx); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	c.logger.Debug("coord: connected", "endpoints", cfg.Endpoints, "db", cfg.DB)
	return c, nil
}

// NewWithRedis builds a Client around an existing Redis client. Close does
// not close rdb; the caller keeps ownership.
func NewWithRedis(rdb redis.UniversalClient, cfg config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return build(rdb, cfg, opts)
}

func build(rdb redis.UniversalClient, cfg config.Config, opts []Option) (*Client, error) {
	cd, err := codec.NewCodec(cfg.Serializer)
	if err != nil {
		return nil, err
	}
	comp, err := codec.NewCompressor(cfg.Compression)
	if err != nil {
		return nil, err
	}
	c := &Client{
		cfg:        cfg,
		store:      store.New(rdb, store.WithTimeout(cfg.SyncTimeout)),
		ns:         keyspace.New(cfg.KeySeparator),
		codec:      cd,
		compressor: comp,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the configuration the client was built with.
func (c *Client) Config() config.Config { return c.cfg }

// Store returns the store adapter.
func (c *Client) Store() *store.Store { return c.store }

// Namespace returns the key namespace.
func (c *Client) Namespace() keyspace.Namespace { return c.ns }

// Codec returns the structured serializer.
func (c *Client) Codec() codec.Codec { return c.codec }

// Compressor returns the configured compressor, nil when disabled.
func (c *Client) Compressor() codec.Compressor { return c.compressor }

// Logger returns the client logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// RealKey is a shortcut for Namespace().RealKey.
func (c *Client) RealKey(kind keyspace.Kind, key string) (string, error) {
	return c.ns.RealKey(kind, key)
}

// Close releases the Redis connection when the client created it.
func (c *Client) Close() error {
	if !c.owned {
		return nil
	}
	return c.store.Close()
}
