// Package value stores typed values under the String:Value and Hash:Value
// namespaces, with compare-and-swap helpers evaluated server side.
package value

import (
	"context"
	"math/rand"
	"time"

	"github.com/mirkobrombin/go-coord/v1/client"
	"github.com/mirkobrombin/go-coord/v1/codec"
	"github.com/mirkobrombin/go-coord/v1/config"
	"github.com/mirkobrombin/go-coord/v1/keyspace"
	"github.com/mirkobrombin/go-coord/v1/store"
)

// Var is a single typed value.
type Var[T any] struct {
	cfg   config.Config
	store *store.Store
	key   string
	val   codec.Value[T]
}

// New returns the value called name. Scalars are stored as plain text, any
// other T through the client's codec and compressor.
func New[T any](c *client.Client, name string) (*Var[T], error) {
	key, err := c.RealKey(keyspace.Value, name)
	if err != nil {
		return nil, err
	}
	return &Var[T]{
		cfg:   c.Config(),
		store: c.Store(),
		key:   key,
		val:   codec.For[T](c.Codec(), c.Compressor()),
	}, nil
}

// Key returns the fully-qualified store key.
func (v *Var[T]) Key() string { return v.key }

// Get returns the stored value. When the key is absent it returns the zero
// value and false without decoding anything.
func (v *Var[T]) Get(ctx context.Context) (T, bool, error) {
	var zero T
	data, found, err := v.store.Get(ctx, v.key)
	if err != nil || !found {
		return zero, false, err
	}
	out, err := v.val.Decode(data)
	if err != nil {
		return zero, false, err
	}
	return out, true, nil
}

// Set writes x. A positive ttl gets a random jitter of up to MaxRandomExpiry
// and is then capped at MaxExpiry; zero stores without expiry.
func (v *Var[T]) Set(ctx context.Context, x T, ttl time.Duration) error {
	data, err := v.val.Encode(x)
	if err != nil {
		return err
	}
	return v.store.Set(ctx, v.key, data, v.expiry(ttl))
}

// SetIfAbsent writes x only when no value is stored.
func (v *Var[T]) SetIfAbsent(ctx context.Context, x T, ttl time.Duration) (bool, error) {
	data, err := v.val.Encode(x)
	if err != nil {
		return false, err
	}
	return v.store.CompareAndSwap(ctx, v.key, nil, nonNil(data), v.expiry(ttl))
}

// CompareAndSwap writes x only when the stored value encodes to the same
// bytes as old.
func (v *Var[T]) CompareAndSwap(ctx context.Context, old, x T, ttl time.Duration) (bool, error) {
	oldData, err := v.val.Encode(old)
	if err != nil {
		return false, err
	}
	data, err := v.val.Encode(x)
	if err != nil {
		return false, err
	}
	return v.store.CompareAndSwap(ctx, v.key, nonNil(oldData), nonNil(data), v.expiry(ttl))
}

// Delete removes the value.
func (v *Var[T]) Delete(ctx context.Context) (bool, error) {
	return v.store.Del(ctx, v.key)
}

// Exists reports whether a value is stored.
func (v *Var[T]) Exists(ctx context.Context) (bool, error) {
	return v.store.Exists(ctx, v.key)
}

// Expire sets a new TTL, capped at MaxExpiry.
func (v *Var[T]) Expire(ctx context.Context, ttl time.Duration) (bool, error) {
	return v.store.Expire(ctx, v.key, v.cfg.CapExpiry(ttl))
}

// Persist removes the TTL.
func (v *Var[T]) Persist(ctx context.Context) (bool, error) {
	return v.store.Persist(ctx, v.key)
}

// TTL returns the remaining lifetime, zero when absent or without expiry.
func (v *Var[T]) TTL(ctx context.Context) (time.Duration, error) {
	ttl, _, err := v.store.TTL(ctx, v.key)
	return ttl, err
}

func (v *Var[T]) expiry(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	if j := v.cfg.MaxRandomExpiry; j > 0 {
		ttl += time.Duration(rand.Int63n(int64(j)))
	}
	return v.cfg.CapExpiry(ttl)
}

// nil is reserved by the store for "expect absent".
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
