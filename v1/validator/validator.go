// Package validator audits rate limiters for counts outside [0, limit].
//
// Such counts outlive the limiter's own rollback only when a process died
// between the increment and the compensating decrement, or a holder never
// released its slot on a limiter without expiry. A transient overshoot is
// normal, so a count is healed only when the same out-of-range value is seen
// on two consecutive scans.
package validator

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mirkobrombin/go-coord/v1/client"
	"github.com/mirkobrombin/go-coord/v1/ratelimit"
)

// Mode defines validator behaviour.
type Mode int

const (
	ModeNoop Mode = iota
	ModeAlert
	ModeAutoHeal
)

// Validator periodically checks the counts of a set of limiters.
type Validator struct {
	c        *client.Client
	mode     Mode
	interval time.Duration

	mu       sync.Mutex
	limiters []*ratelimit.Limiter
	suspect  map[string]int64

	mismatches atomic.Uint64
	healed     atomic.Uint64
}

// New creates a new Validator watching limiters.
func New(c *client.Client, mode Mode, interval time.Duration, limiters ...*ratelimit.Limiter) *Validator {
	return &Validator{
		c:        c,
		mode:     mode,
		interval: interval,
		limiters: limiters,
		suspect:  make(map[string]int64),
	}
}

// Watch adds l to the audited set.
func (v *Validator) Watch(l *ratelimit.Limiter) {
	v.mu.Lock()
	v.limiters = append(v.limiters, l)
	v.mu.Unlock()
}

// Run scans every interval until ctx is done.
func (v *Validator) Run(ctx context.Context) {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := v.Scan(ctx); err != nil && ctx.Err() == nil {
				v.c.Logger().Warn("coord: limiter scan failed", "error", err)
			}
		}
	}
}

// Scan checks every watched limiter once. The first store error aborts the
// scan.
func (v *Validator) Scan(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, l := range v.limiters {
		n, err := l.Count(ctx)
		if err != nil {
			return err
		}
		key := l.Key()
		if n >= 0 && n <= l.Limit() {
			delete(v.suspect, key)
			continue
		}
		v.mismatches.Add(1)
		prev, seen := v.suspect[key]
		v.suspect[key] = n
		if v.mode == ModeNoop {
			continue
		}
		v.c.Logger().Warn("coord: limiter count out of range", "key", key, "count", n, "limit", l.Limit())
		if v.mode == ModeAutoHeal && seen && prev == n {
			if err := v.heal(ctx, l, n); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *Validator) heal(ctx context.Context, l *ratelimit.Limiter, n int64) error {
	target := min(max(n, 0), l.Limit())
	st := v.c.Store()
	ttl, _, err := st.TTL(ctx, l.Key())
	if err != nil {
		return err
	}
	old := []byte(strconv.FormatInt(n, 10))
	ok, err := st.CompareAndSwap(ctx, l.Key(), old, []byte(strconv.FormatInt(target, 10)), ttl)
	if err != nil {
		return err
	}
	delete(v.suspect, l.Key())
	if ok {
		v.healed.Add(1)
		v.c.Logger().Info("coord: limiter count healed", "key", l.Key(), "from", n, "to", target)
	}
	return nil
}

// Metrics returns the number of out-of-range counts detected.
func (v *Validator) Metrics() uint64 {
	return v.mismatches.Load()
}

// Healed returns the number of counts rewritten.
func (v *Validator) Healed() uint64 {
	return v.healed.Load()
}
