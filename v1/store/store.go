// Package store wraps a go-redis client with the handful of atomic commands
// the coordination primitives are built from. Every call gets a per-operation
// timeout, a tracing span and latency metrics, and store failures are mapped
// to the sentinel errors of package errors.
package store

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	coorderrors "github.com/mirkobrombin/go-coord/v1/errors"
	"github.com/mirkobrombin/go-coord/v1/metrics"
)

const defaultOpTimeout = 5 * time.Second

var tracer = otel.Tracer("github.com/mirkobrombin/go-coord/v1/store")

// Store issues single atomic commands against Redis.
type Store struct {
	client  redis.UniversalClient
	timeout time.Duration
}

// Option configures a Store.
type Option func(*options)

type options struct {
	timeout time.Duration
}

// WithTimeout sets the operation timeout for Redis calls.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// New returns a Store using the provided Redis client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	o := options{timeout: defaultOpTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store{client: client, timeout: o.timeout}
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.UniversalClient { return s.client }

func (s *Store) do(ctx context.Context, op, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return mapErr(op, key, err)
	}
	ctx, span := tracer.Start(ctx, "Store."+op, trace.WithAttributes(attribute.String("coord.key", key)))
	defer span.End()

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	err := fn(cctx)
	metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreErrors.WithLabelValues(op).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return mapErr(op, key, err)
	}
	return nil
}

func mapErr(op, key string, err error) error {
	switch {
	case stdErrors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("store: %s %s: %w: %w", op, key, coorderrors.ErrTimeout, err)
	case stdErrors.Is(err, redis.ErrClosed):
		return fmt.Errorf("store: %s %s: %w: %w", op, key, coorderrors.ErrConnectionClosed, err)
	default:
		return fmt.Errorf("store: %s %s: %w", op, key, err)
	}
}

// Get returns the raw value of key. found is false when the key is absent.
func (s *Store) Get(ctx context.Context, key string) (data []byte, found bool, err error) {
	err = s.do(ctx, "get", key, func(ctx context.Context) error {
		b, err := s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		data, found = b, true
		return nil
	})
	return data, found, err
}

// GetInt64 reads key as an integer. Absent keys read as 0.
func (s *Store) GetInt64(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.do(ctx, "get", key, func(ctx context.Context) error {
		v, err := s.client.Get(ctx, key).Int64()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		n = v
		return nil
	})
	return n, err
}

// GetFloat64 reads key as a float. Absent keys read as 0.
func (s *Store) GetFloat64(ctx context.Context, key string) (float64, error) {
	var f float64
	err := s.do(ctx, "get", key, func(ctx context.Context) error {
		v, err := s.client.Get(ctx, key).Float64()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		f = v
		return nil
	})
	return f, err
}

// Set unconditionally writes value. A ttl of zero stores the key without
// expiry and clears any previous TTL.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return s.do(ctx, "set", key, func(ctx context.Context) error {
		return s.client.Set(ctx, key, value, ttl).Err()
	})
}

// SetNX writes value only if key is absent and reports whether it did.
func (s *Store) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	var ok bool
	err := s.do(ctx, "setnx", key, func(ctx context.Context) error {
		var err error
		ok, err = s.client.SetNX(ctx, key, value, ttl).Result()
		return err
	})
	return ok, err
}

// Del removes key and reports whether it existed.
func (s *Store) Del(ctx context.Context, key string) (bool, error) {
	var n int64
	err := s.do(ctx, "del", key, func(ctx context.Context) error {
		var err error
		n, err = s.client.Del(ctx, key).Result()
		return err
	})
	return n > 0, err
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := s.do(ctx, "exists", key, func(ctx context.Context) error {
		var err error
		n, err = s.client.Exists(ctx, key).Result()
		return err
	})
	return n > 0, err
}

// Expire sets the TTL of an existing key.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var ok bool
	err := s.do(ctx, "expire", key, func(ctx context.Context) error {
		var err error
		ok, err = s.client.PExpire(ctx, key, ttl).Result()
		return err
	})
	return ok, err
}

// Persist removes the TTL of key.
func (s *Store) Persist(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.do(ctx, "persist", key, func(ctx context.Context) error {
		var err error
		ok, err = s.client.Persist(ctx, key).Result()
		return err
	})
	return ok, err
}

// TTL returns the remaining time to live of key. found is false when the key
// does not exist; a found key without expiry reports a zero ttl.
func (s *Store) TTL(ctx context.Context, key string) (ttl time.Duration, found bool, err error) {
	err = s.do(ctx, "pttl", key, func(ctx context.Context) error {
		d, err := s.client.PTTL(ctx, key).Result()
		if err != nil {
			return err
		}
		switch {
		case d == -2:
			return nil
		case d < 0:
			found = true
		default:
			ttl, found = d, true
		}
		return nil
	})
	return ttl, found, err
}

// IncrBy atomically adds delta to key, creating it at 0 first if absent.
func (s *Store) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	var n int64
	err := s.do(ctx, "incrby", key, func(ctx context.Context) error {
		var err error
		n, err = s.client.IncrBy(ctx, key, delta).Result()
		return err
	})
	return n, err
}

// IncrByFloat atomically adds delta to the float stored at key.
func (s *Store) IncrByFloat(ctx context.Context, key string, delta float64) (float64, error) {
	var f float64
	err := s.do(ctx, "incrbyfloat", key, func(ctx context.Context) error {
		var err error
		f, err = s.client.IncrByFloat(ctx, key, delta).Result()
		return err
	})
	return f, err
}

// HGet returns one field of the hash at key.
func (s *Store) HGet(ctx context.Context, key, field string) (data []byte, found bool, err error) {
	err = s.do(ctx, "hget", key, func(ctx context.Context) error {
		b, err := s.client.HGet(ctx, key, field).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		data, found = b, true
		return nil
	})
	return data, found, err
}

// HSet writes one field of the hash at key.
func (s *Store) HSet(ctx context.Context, key, field string, value any) error {
	return s.do(ctx, "hset", key, func(ctx context.Context) error {
		return s.client.HSet(ctx, key, field, value).Err()
	})
}

// HDel removes one field of the hash at key.
func (s *Store) HDel(ctx context.Context, key, field string) (bool, error) {
	var n int64
	err := s.do(ctx, "hdel", key, func(ctx context.Context) error {
		var err error
		n, err = s.client.HDel(ctx, key, field).Result()
		return err
	})
	return n > 0, err
}

// EvalInt runs script and returns its integer reply.
func (s *Store) EvalInt(ctx context.Context, op string, script *redis.Script, keys []string, args ...any) (int64, error) {
	var n int64
	key := ""
	if len(keys) > 0 {
		key = keys[0]
	}
	err := s.do(ctx, op, key, func(ctx context.Context) error {
		var err error
		n, err = script.Run(ctx, s.client, keys, args...).Int64()
		if err == redis.Nil {
			return fmt.Errorf("%w: nil reply", coorderrors.ErrUnexpectedReply)
		}
		return err
	})
	return n, err
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.do(ctx, "ping", "", func(ctx context.Context) error {
		return s.client.Ping(ctx).Err()
	})
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
