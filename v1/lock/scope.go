package lock

import (
	"context"
	"time"
)

// Do acquires l with TryLock, runs fn and releases l on every exit path,
// panics included. It returns ErrNotAcquired when the lock was not obtained
// and fn was not run. A release failure is returned only if fn succeeded.
func Do(ctx context.Context, l *Lock, expiry time.Duration, fn func(ctx context.Context) error) (err error) {
	ok, err := l.TryLock(ctx, expiry)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAcquired
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.SyncTimeout)
		defer cancel()
		if _, rerr := l.Release(rctx); rerr != nil {
			l.c.Logger().Warn("coord: lock release failed", "key", l.key, "error", rerr)
			if err == nil {
				err = rerr
			}
		}
	}()
	return fn(ctx)
}
