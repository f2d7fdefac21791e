// Package ratelimit bounds the number of concurrently held admissions for a
// named resource across processes.
//
// Acquire increments the shared count optimistically and rolls the increment
// back when it overshoots the limit. Between the two commands the stored
// count may exceed the limit by one; nothing else can observe a larger value.
package ratelimit

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/mirkobrombin/go-coord/v1/client"
	coorderrors "github.com/mirkobrombin/go-coord/v1/errors"
	"github.com/mirkobrombin/go-coord/v1/keyspace"
	"github.com/mirkobrombin/go-coord/v1/metrics"
	"github.com/mirkobrombin/go-coord/v1/store"
)

// ErrLimitExceeded is returned by Do when no slot was available.
var ErrLimitExceeded = stdErrors.New("coord: rate limit exceeded")

// Option configures a Limiter.
type Option func(*Limiter)

// WithExpiry makes the slot counter expire, so that slots leaked by crashed
// holders are eventually reclaimed.
func WithExpiry(d time.Duration) Option {
	return func(l *Limiter) { l.expiry = d }
}

// Limiter admits at most limit concurrent holders.
type Limiter struct {
	c      *client.Client
	store  *store.Store
	key    string
	limit  int64
	expiry time.Duration
}

// New returns the limiter called name allowing limit concurrent slots.
func New(c *client.Client, name string, limit int64, opts ...Option) (*Limiter, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", coorderrors.ErrInvalidConfig, limit)
	}
	key, err := c.RealKey(keyspace.RateLimiter, name)
	if err != nil {
		return nil, err
	}
	l := &Limiter{c: c, store: c.Store(), key: key, limit: limit}
	for _, opt := range opts {
		opt(l)
	}
	l.expiry = c.Config().CapExpiry(l.expiry)
	return l, nil
}

// Key returns the fully-qualified store key.
func (l *Limiter) Key() string { return l.key }

// Limit returns the number of slots.
func (l *Limiter) Limit() int64 { return l.limit }

// Acquire takes a slot. It returns false, without error, when all slots are
// taken.
func (l *Limiter) Acquire(ctx context.Context) (bool, error) {
	if l.expiry > 0 {
		if _, err := l.store.SetNX(ctx, l.key, 0, l.expiry); err != nil {
			return false, err
		}
	}
	n, err := l.store.IncrByTTL(ctx, l.key, 1, l.expiry)
	if err != nil {
		return false, err
	}
	if n > l.limit {
		if _, err := l.store.IncrByTTL(ctx, l.key, -1, l.expiry); err != nil {
			l.c.Logger().Error("coord: rate limiter rollback failed", "key", l.key, "error", err)
			return false, err
		}
		metrics.Rollbacks.Inc()
		metrics.Decisions.WithLabelValues("ratelimit", metrics.OutcomeDenied).Inc()
		l.c.Logger().Debug("coord: rate limit reached", "key", l.key, "limit", l.limit)
		return false, nil
	}
	metrics.Decisions.WithLabelValues("ratelimit", metrics.OutcomeAllowed).Inc()
	return true, nil
}

// Release gives a slot back. It returns false when there was nothing to
// release, which includes a double release and an expired counter.
func (l *Limiter) Release(ctx context.Context) (bool, error) {
	exists, err := l.store.Exists(ctx, l.key)
	if err != nil {
		return false, err
	}
	if !exists {
		if _, err := l.store.SetNX(ctx, l.key, 0, l.expiry); err != nil {
			return false, err
		}
		metrics.Decisions.WithLabelValues("ratelimit", metrics.OutcomeRejected).Inc()
		return false, nil
	}
	n, err := l.store.IncrByTTL(ctx, l.key, -1, l.expiry)
	if err != nil {
		return false, err
	}
	if n < 0 {
		if _, err := l.store.IncrByTTL(ctx, l.key, 1, l.expiry); err != nil {
			l.c.Logger().Error("coord: rate limiter rollback failed", "key", l.key, "error", err)
			return false, err
		}
		metrics.Rollbacks.Inc()
		metrics.Decisions.WithLabelValues("ratelimit", metrics.OutcomeRejected).Inc()
		return false, nil
	}
	metrics.Decisions.WithLabelValues("ratelimit", metrics.OutcomeReleased).Inc()
	return true, nil
}

// Count returns the number of slots currently held.
func (l *Limiter) Count(ctx context.Context) (int64, error) {
	return l.store.GetInt64(ctx, l.key)
}

// Available returns the number of free slots.
func (l *Limiter) Available(ctx context.Context) (int64, error) {
	n, err := l.Count(ctx)
	if err != nil {
		return 0, err
	}
	return max(0, l.limit-n), nil
}

// Delete removes the slot counter, freeing every slot.
func (l *Limiter) Delete(ctx context.Context) (bool, error) {
	return l.store.Del(ctx, l.key)
}

// Do takes a slot, runs fn and gives the slot back on every exit path.
func Do(ctx context.Context, l *Limiter, fn func(ctx context.Context) error) (err error) {
	ok, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLimitExceeded
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.c.Config().SyncTimeout)
		defer cancel()
		if _, rerr := l.Release(rctx); rerr != nil {
			l.c.Logger().Warn("coord: rate limiter release failed", "key", l.key, "error", rerr)
			if err == nil {
				err = rerr
			}
		}
	}()
	return fn(ctx)
}
