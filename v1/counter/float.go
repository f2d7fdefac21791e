package counter

import (
	"context"
	"time"

	"github.com/mirkobrombin/go-coord/v1/client"
	"github.com/mirkobrombin/go-coord/v1/keyspace"
	"github.com/mirkobrombin/go-coord/v1/store"
)

// FloatOption configures a FloatCounter.
type FloatOption func(*floatOptions)

type floatOptions struct {
	base   float64
	expiry time.Duration
}

// WithFloatBase sets the base of a FloatCounter.
func WithFloatBase(base float64) FloatOption {
	return func(o *floatOptions) { o.base = base }
}

// WithFloatExpiry gives a FloatCounter a TTL.
func WithFloatExpiry(d time.Duration) FloatOption {
	return func(o *floatOptions) { o.expiry = d }
}

// FloatCounter is a named float64 counter backed by INCRBYFLOAT.
type FloatCounter struct {
	store  *store.Store
	key    string
	base   float64
	expiry time.Duration
}

// NewFloat returns the float counter called name.
func NewFloat(c *client.Client, name string, opts ...FloatOption) (*FloatCounter, error) {
	key, err := c.RealKey(keyspace.FloatCounter, name)
	if err != nil {
		return nil, err
	}
	o := floatOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	return &FloatCounter{
		store:  c.Store(),
		key:    key,
		base:   o.base,
		expiry: c.Config().CapExpiry(o.expiry),
	}, nil
}

func (c *FloatCounter) Key() string { return c.key }

func (c *FloatCounter) Base() float64 { return c.base }

// Increase adds step and returns the new value.
func (c *FloatCounter) Increase(ctx context.Context, step float64) (float64, error) {
	if c.expiry > 0 {
		if _, err := c.store.SetNX(ctx, c.key, c.base, c.expiry); err != nil {
			return 0, err
		}
	}
	return c.store.IncrByFloatTTL(ctx, c.key, step, c.expiry)
}

// Decrease subtracts step and returns the new value.
func (c *FloatCounter) Decrease(ctx context.Context, step float64) (float64, error) {
	return c.Increase(ctx, -step)
}

func (c *FloatCounter) Reset(ctx context.Context) error {
	return c.store.Set(ctx, c.key, c.base, c.expiry)
}

func (c *FloatCounter) Count(ctx context.Context) (float64, error) {
	return c.store.GetFloat64(ctx, c.key)
}

func (c *FloatCounter) Delete(ctx context.Context) (bool, error) {
	return c.store.Del(ctx, c.key)
}
