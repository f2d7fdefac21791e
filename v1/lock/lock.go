package lock

import (
	"context"
	stdErrors "errors"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/mirkobrombin/go-coord/v1/client"
	"github.com/mirkobrombin/go-coord/v1/config"
	"github.com/mirkobrombin/go-coord/v1/keyspace"
	"github.com/mirkobrombin/go-coord/v1/metrics"
	"github.com/mirkobrombin/go-coord/v1/store"
)

// ErrNotAcquired is returned by Do when the lock could not be taken.
var ErrNotAcquired = stdErrors.New("coord: lock not acquired")

var errHeld = stdErrors.New("lock held by another owner")

// Lock is a handle on a named distributed lock.
type Lock struct {
	store   *store.Store
	cfg     config.Config
	c       *client.Client
	name    string
	key     string
	token   string
	retries uint64
	delay   time.Duration
	// held is set between a successful acquire and the next Release on this
	// handle, whatever the store says at release time.
	held *atomic.Bool
}

// Option configures a Lock.
type Option func(*Lock)

// WithRetry makes TryLock retry up to count times, waiting delay between
// attempts. A zero delay uses Config.LockRetryDelay.
func WithRetry(count int, delay time.Duration) Option {
	return func(l *Lock) {
		if count > 0 {
			l.retries = uint64(count)
		}
		if delay > 0 {
			l.delay = delay
		}
	}
}

// WithToken rebuilds a handle for an owner token obtained earlier, for
// example by another process invocation.
func WithToken(token string) Option {
	return func(l *Lock) {
		if token != "" {
			l.token = token
		}
	}
}

// New returns a handle on the lock called name.
func New(c *client.Client, name string, opts ...Option) (*Lock, error) {
	key, err := c.RealKey(keyspace.Lock, name)
	if err != nil {
		return nil, err
	}
	cfg := c.Config()
	l := &Lock{
		store: c.Store(),
		cfg:   cfg,
		c:     c,
		name:  name,
		key:   key,
		token: newToken(),
		delay: cfg.LockRetryDelay,
		held:  new(atomic.Bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func newToken() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d:%s", host, os.Getpid(), uuid.NewString())
}

// Name returns the logical lock name.
func (l *Lock) Name() string { return l.name }

// Key returns the fully-qualified store key.
func (l *Lock) Key() string { return l.key }

// Token returns the owner token of this handle.
func (l *Lock) Token() string { return l.token }

func (l *Lock) expiry(d time.Duration) time.Duration {
	if d <= 0 {
		d = l.cfg.DefaultLockExpiry
	}
	return l.cfg.CapExpiry(d)
}

func (l *Lock) set(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.store.SetNX(ctx, l.key, l.token, ttl)
	if err != nil {
		return false, err
	}
	if ok {
		metrics.Decisions.WithLabelValues("lock", metrics.OutcomeAllowed).Inc()
		if !l.held.Swap(true) {
			metrics.LocksHeld.Inc()
		}
	} else {
		metrics.Decisions.WithLabelValues("lock", metrics.OutcomeDenied).Inc()
	}
	return ok, nil
}

// TryLock attempts to obtain the lock for expiry (Config.DefaultLockExpiry
// when zero, capped at Config.MaxExpiry). When the lock is held elsewhere it
// retries according to WithRetry. It returns false once the retry budget is
// spent, and ctx.Err() if ctx ends while waiting.
func (l *Lock) TryLock(ctx context.Context, expiry time.Duration) (bool, error) {
	var policy backoff.BackOff = backoff.NewConstantBackOff(l.delay)
	policy = backoff.WithMaxRetries(policy, l.retries)
	return l.acquire(ctx, expiry, policy)
}

// Acquire blocks until the lock is obtained or the context is cancelled,
// polling every Config.LockRetryDelay (or the WithRetry delay).
func (l *Lock) Acquire(ctx context.Context, expiry time.Duration) error {
	ok, err := l.acquire(ctx, expiry, backoff.NewConstantBackOff(l.delay))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAcquired
	}
	return nil
}

func (l *Lock) acquire(ctx context.Context, expiry time.Duration, policy backoff.BackOff) (bool, error) {
	ttl := l.expiry(expiry)
	err := backoff.Retry(func() error {
		ok, err := l.set(ctx, ttl)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errHeld
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	switch {
	case err == nil:
		return true, nil
	case stdErrors.Is(err, errHeld):
		if cerr := ctx.Err(); cerr != nil {
			return false, cerr
		}
		return false, nil
	default:
		return false, err
	}
}

// Release deletes the lock record only if it still holds this handle's
// token. It returns false when the lock was not held by this handle.
func (l *Lock) Release(ctx context.Context) (bool, error) {
	ok, err := l.store.CompareAndDelete(ctx, l.key, l.token)
	if err != nil {
		return false, err
	}
	// An expired hold is over too, even though nothing was deleted.
	if l.held.Swap(false) {
		metrics.LocksHeld.Dec()
	}
	if ok {
		metrics.Decisions.WithLabelValues("lock", metrics.OutcomeReleased).Inc()
	} else {
		metrics.Decisions.WithLabelValues("lock", metrics.OutcomeRejected).Inc()
	}
	return ok, nil
}

// Refresh extends the TTL of a lock still owned by this handle.
func (l *Lock) Refresh(ctx context.Context, expiry time.Duration) (bool, error) {
	return l.store.CompareAndExpire(ctx, l.key, l.token, l.expiry(expiry))
}

// Held reports whether the store currently records this handle as owner.
func (l *Lock) Held(ctx context.Context) (bool, error) {
	data, found, err := l.store.Get(ctx, l.key)
	if err != nil {
		return false, err
	}
	return found && string(data) == l.token, nil
}

// Cleanup registers a best-effort release that runs after l becomes
// unreachable. It depends on the garbage collector, may run late or never,
// and must not be relied upon; release explicitly or use Do.
func (l *Lock) Cleanup() {
	runtime.AddCleanup(l, releaseUnreachable, cleanupArg{
		store: l.store,
		key:   l.key,
		token: l.token,
		c:     l.c,
		held:  l.held,
	})
}

type cleanupArg struct {
	store *store.Store
	key   string
	token string
	c     *client.Client
	held  *atomic.Bool
}

func releaseUnreachable(a cleanupArg) {
	if a.held.Swap(false) {
		metrics.LocksHeld.Dec()
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.c.Config().SyncTimeout)
	defer cancel()
	ok, err := a.store.CompareAndDelete(ctx, a.key, a.token)
	if err != nil {
		a.c.Logger().Warn("coord: lock cleanup release failed", "key", a.key, "error", err)
		return
	}
	if ok {
		a.c.Logger().Warn("coord: lock released by cleanup, release it explicitly", "key", a.key)
	}
}
