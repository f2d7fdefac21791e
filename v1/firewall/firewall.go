// Package firewall implements a fixed-window hit counter: at most limit hits
// per window, the window starting with the first hit and ending when the
// counter key expires.
//
// By default a hit on an existing window reads the count and then increments
// it with a second command. Two concurrent hits may both observe a free slot
// and both pass. WithAtomicHits moves the check and the increment into one
// server-side script.
package firewall

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/mirkobrombin/go-coord/v1/client"
	coorderrors "github.com/mirkobrombin/go-coord/v1/errors"
	"github.com/mirkobrombin/go-coord/v1/keyspace"
	"github.com/mirkobrombin/go-coord/v1/metrics"
	"github.com/mirkobrombin/go-coord/v1/store"
)

// DefaultWindow is used when neither WithExpiry nor HitFor provide one.
const DefaultWindow = time.Minute

// ARGV: limit, window in ms (0 for none).
var hitScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current then
    if tonumber(current) >= tonumber(ARGV[1]) then
        return 0
    end
    redis.call("INCR", KEYS[1])
    return 1
end
if tonumber(ARGV[2]) > 0 then
    redis.call("SET", KEYS[1], 1, "PX", ARGV[2])
else
    redis.call("SET", KEYS[1], 1)
end
return 1
`)

// Option configures a Firewall.
type Option func(*Firewall)

// WithExpiry sets the default window length.
func WithExpiry(d time.Duration) Option {
	return func(f *Firewall) {
		if d > 0 {
			f.window = d
		}
	}
}

// WithAtomicHits evaluates every hit with a single server-side script.
func WithAtomicHits() Option {
	return func(f *Firewall) { f.atomic = true }
}

// WithDenyCache remembers denials locally until the window ends, so that
// repeated denied hits skip the store. A window deleted by another process
// stays denied here until the cached entry expires.
func WithDenyCache(d *DenyCache) Option {
	return func(f *Firewall) { f.deny = d }
}

// Firewall counts hits for one name.
type Firewall struct {
	c      *client.Client
	store  *store.Store
	key    string
	limit  int64
	window time.Duration
	atomic bool
	deny   *DenyCache
}

// New returns the firewall called name accepting limit hits per window.
func New(c *client.Client, name string, limit int64, opts ...Option) (*Firewall, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", coorderrors.ErrInvalidConfig, limit)
	}
	key, err := c.RealKey(keyspace.Firewall, name)
	if err != nil {
		return nil, err
	}
	f := &Firewall{c: c, store: c.Store(), key: key, limit: limit, window: DefaultWindow}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Key returns the fully-qualified store key.
func (f *Firewall) Key() string { return f.key }

// Limit returns the number of hits accepted per window.
func (f *Firewall) Limit() int64 { return f.limit }

// Hit records a hit in the current window, opening a new window of the
// default length when none is active. It returns false when the window is
// already full; a rejected hit does not change the count.
func (f *Firewall) Hit(ctx context.Context) (bool, error) {
	return f.HitFor(ctx, 0)
}

// HitFor is Hit with an explicit window length for a newly opened window.
func (f *Firewall) HitFor(ctx context.Context, expiry time.Duration) (bool, error) {
	if expiry <= 0 {
		expiry = f.window
	}
	expiry = f.c.Config().CapExpiry(expiry)

	if f.deny.denied(f.key) {
		metrics.Decisions.WithLabelValues("firewall", metrics.OutcomeDenied).Inc()
		return false, nil
	}

	var (
		ok  bool
		err error
	)
	if f.atomic {
		ok, err = f.hitAtomic(ctx, expiry)
	} else {
		ok, err = f.hit(ctx, expiry)
	}
	if err != nil {
		return false, err
	}
	if !ok {
		metrics.Decisions.WithLabelValues("firewall", metrics.OutcomeDenied).Inc()
		f.c.Logger().Debug("coord: firewall limit reached", "key", f.key, "limit", f.limit)
		f.rememberDenial(ctx)
		return false, nil
	}
	metrics.Decisions.WithLabelValues("firewall", metrics.OutcomeAllowed).Inc()
	return true, nil
}

func (f *Firewall) hit(ctx context.Context, expiry time.Duration) (bool, error) {
	exists, err := f.store.Exists(ctx, f.key)
	if err != nil {
		return false, err
	}
	if !exists {
		if err := f.store.Set(ctx, f.key, 1, expiry); err != nil {
			return false, err
		}
		return true, nil
	}
	n, err := f.store.GetInt64(ctx, f.key)
	if err != nil {
		return false, err
	}
	if n >= f.limit {
		return false, nil
	}
	// The window may have expired since Exists; the increment then recreates
	// the key and must open a new window rather than a permanent one.
	if _, err := f.store.IncrByTTL(ctx, f.key, 1, expiry); err != nil {
		return false, err
	}
	return true, nil
}

func (f *Firewall) hitAtomic(ctx context.Context, expiry time.Duration) (bool, error) {
	n, err := f.store.EvalInt(ctx, "firewall_hit", hitScript, []string{f.key}, f.limit, expiry.Milliseconds())
	return n == 1, err
}

func (f *Firewall) rememberDenial(ctx context.Context) {
	if f.deny == nil {
		return
	}
	ttl, found, err := f.store.TTL(ctx, f.key)
	if err != nil {
		f.c.Logger().Warn("coord: firewall ttl lookup failed", "key", f.key, "error", err)
		return
	}
	if found && ttl > 0 {
		f.deny.remember(f.key, ttl)
	}
}

// Count returns the number of hits in the current window.
func (f *Firewall) Count(ctx context.Context) (int64, error) {
	return f.store.GetInt64(ctx, f.key)
}

// Remaining returns the lifetime of the current window, zero when no window
// is open or it never expires.
func (f *Firewall) Remaining(ctx context.Context) (time.Duration, error) {
	ttl, _, err := f.store.TTL(ctx, f.key)
	return ttl, err
}

// Delete closes the current window.
func (f *Firewall) Delete(ctx context.Context) (bool, error) {
	f.deny.forget(f.key)
	return f.store.Del(ctx, f.key)
}
