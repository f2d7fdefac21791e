// Package counter provides named integer and float counters shared through
// Redis. Every mutation is a single atomic INCRBY/INCRBYFLOAT; when an expiry
// is configured the base value is written with SET NX first so that a fresh
// counter starts at its base and carries its TTL from the first mutation.
package counter

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mirkobrombin/go-coord/v1/client"
	coorderrors "github.com/mirkobrombin/go-coord/v1/errors"
	"github.com/mirkobrombin/go-coord/v1/keyspace"
	"github.com/mirkobrombin/go-coord/v1/store"
)

// Option configures a Counter.
type Option func(*options)

type options struct {
	base   int64
	expiry time.Duration
}

// WithBase sets the value the counter starts from and returns to on Reset.
func WithBase(base int64) Option {
	return func(o *options) { o.base = base }
}

// WithExpiry gives the counter a TTL, armed when the key is created and on Reset.
func WithExpiry(d time.Duration) Option {
	return func(o *options) { o.expiry = d }
}

// Counter is a named int64 counter.
type Counter struct {
	store  *store.Store
	key    string
	base   int64
	expiry time.Duration
}

// New returns the counter called name.
func New(c *client.Client, name string, opts ...Option) (*Counter, error) {
	key, err := c.RealKey(keyspace.Counter, name)
	if err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	return &Counter{
		store:  c.Store(),
		key:    key,
		base:   o.base,
		expiry: c.Config().CapExpiry(o.expiry),
	}, nil
}

// Key returns the fully-qualified store key.
func (c *Counter) Key() string { return c.key }

// Base returns the configured base value.
func (c *Counter) Base() int64 { return c.base }

// Increase adds step and returns the new value.
func (c *Counter) Increase(ctx context.Context, step int64) (int64, error) {
	if c.expiry > 0 {
		if _, err := c.store.SetNX(ctx, c.key, c.base, c.expiry); err != nil {
			return 0, err
		}
	}
	return c.store.IncrByTTL(ctx, c.key, step, c.expiry)
}

// Decrease subtracts step and returns the new value. math.MinInt64 has no
// positive counterpart and is rejected with ErrInvalidArgument.
func (c *Counter) Decrease(ctx context.Context, step int64) (int64, error) {
	if step == math.MinInt64 {
		return 0, fmt.Errorf("%w: cannot decrease by %d", coorderrors.ErrInvalidArgument, step)
	}
	return c.Increase(ctx, -step)
}

// Reset writes the base value back and re-arms the expiry, if any.
func (c *Counter) Reset(ctx context.Context) error {
	return c.store.Set(ctx, c.key, c.base, c.expiry)
}

// Count returns the current value. An absent counter reads as 0, not Base.
func (c *Counter) Count(ctx context.Context) (int64, error) {
	return c.store.GetInt64(ctx, c.key)
}

// TTL returns the remaining lifetime; zero when the counter has no expiry or
// does not exist.
func (c *Counter) TTL(ctx context.Context) (time.Duration, error) {
	ttl, _, err := c.store.TTL(ctx, c.key)
	return ttl, err
}

// Delete removes the counter.
func (c *Counter) Delete(ctx context.Context) (bool, error) {
	return c.store.Del(ctx, c.key)
}
