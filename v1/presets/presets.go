package presets

import (
	"context"

	"github.com/alicebob/miniredis/v2"

	"github.com/mirkobrombin/go-coord/v1/client"
	"github.com/mirkobrombin/go-coord/v1/config"
)

// RedisOptions configures the connection to Redis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis creates a client for a single Redis server, every other setting
// taken from config.Default.
func NewRedis(ctx context.Context, opts RedisOptions, copts ...client.Option) (*client.Client, error) {
	cfg := config.Default()
	if opts.Addr != "" {
		cfg.Endpoints = []string{opts.Addr}
	}
	cfg.Password = opts.Password
	cfg.DB = opts.DB
	return client.New(ctx, cfg, copts...)
}

// NewInMemoryStandalone starts an embedded miniredis and returns a client
// bound to it. Useful for local development, demos and benchmarks without
// external dependencies. The returned func closes the client and stops the
// server.
func NewInMemoryStandalone(ctx context.Context, copts ...client.Option) (*client.Client, func(), error) {
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	c, err := NewRedis(ctx, RedisOptions{Addr: mr.Addr()}, copts...)
	if err != nil {
		mr.Close()
		return nil, nil, err
	}
	return c, func() {
		_ = c.Close()
		mr.Close()
	}, nil
}
