package value

import (
	"context"

	"github.com/mirkobrombin/go-coord/v1/client"
	"github.com/mirkobrombin/go-coord/v1/codec"
	"github.com/mirkobrombin/go-coord/v1/keyspace"
	"github.com/mirkobrombin/go-coord/v1/store"
)

// HashField is one typed field of a hash.
type HashField[T any] struct {
	store *store.Store
	key   string
	field string
	val   codec.Value[T]
}

// NewHashField returns field of the hash called name.
func NewHashField[T any](c *client.Client, name, field string) (*HashField[T], error) {
	key, err := c.RealKey(keyspace.Hash, name)
	if err != nil {
		return nil, err
	}
	return &HashField[T]{
		store: c.Store(),
		key:   key,
		field: field,
		val:   codec.For[T](c.Codec(), c.Compressor()),
	}, nil
}

// Key returns the fully-qualified key of the hash.
func (h *HashField[T]) Key() string { return h.key }

// Field returns the field name.
func (h *HashField[T]) Field() string { return h.field }

// Get returns the field value, or the zero value and false when unset.
func (h *HashField[T]) Get(ctx context.Context) (T, bool, error) {
	var zero T
	data, found, err := h.store.HGet(ctx, h.key, h.field)
	if err != nil || !found {
		return zero, false, err
	}
	out, err := h.val.Decode(data)
	if err != nil {
		return zero, false, err
	}
	return out, true, nil
}

// Set writes x.
func (h *HashField[T]) Set(ctx context.Context, x T) error {
	data, err := h.val.Encode(x)
	if err != nil {
		return err
	}
	return h.store.HSet(ctx, h.key, h.field, data)
}

// SetIfAbsent writes x only when the field is unset.
func (h *HashField[T]) SetIfAbsent(ctx context.Context, x T) (bool, error) {
	data, err := h.val.Encode(x)
	if err != nil {
		return false, err
	}
	return h.store.HashCompareAndSwap(ctx, h.key, h.field, nil, nonNil(data))
}

// CompareAndSwap writes x only when the field currently encodes to old.
func (h *HashField[T]) CompareAndSwap(ctx context.Context, old, x T) (bool, error) {
	oldData, err := h.val.Encode(old)
	if err != nil {
		return false, err
	}
	data, err := h.val.Encode(x)
	if err != nil {
		return false, err
	}
	return h.store.HashCompareAndSwap(ctx, h.key, h.field, nonNil(oldData), nonNil(data))
}

// Delete removes the field.
func (h *HashField[T]) Delete(ctx context.Context) (bool, error) {
	return h.store.HDel(ctx, h.key, h.field)
}
