package lock

import (
	"context"
	stdErrors "errors"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	redis "github.com/redis/go-redis/v9"

	"github.com/mirkobrombin/go-coord/v1/client"
	"github.com/mirkobrombin/go-coord/v1/config"
	"github.com/mirkobrombin/go-coord/v1/metrics"
)

func newTestClient(t *testing.T) (*client.Client, *miniredis.Miniredis, context.Context) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := config.Default()
	cfg.Endpoints = []string{mr.Addr()}
	cfg.LockRetryDelay = 5 * time.Millisecond
	c, err := client.NewWithRedis(rdb, cfg)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return c, mr, context.Background()
}

func newLock(t *testing.T, c *client.Client, name string, opts ...Option) *Lock {
	t.Helper()
	l, err := New(c, name, opts...)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	return l
}

func TestTryLockAcquireRelease(t *testing.T) {
	c, mr, ctx := newTestClient(t)
	l := newLock(t, c, "k")

	ok, err := l.TryLock(ctx, 0)
	if err != nil || !ok {
		t.Fatalf("trylock: %v ok %v", err, ok)
	}
	if got, _ := mr.Get("String:Lock:k"); got != l.Token() {
		t.Fatalf("stored token %q, want %q", got, l.Token())
	}
	if ttl := mr.TTL("String:Lock:k"); ttl != c.Config().DefaultLockExpiry {
		t.Fatalf("expected default expiry, got %v", ttl)
	}
	if ok, err := l.Release(ctx); err != nil || !ok {
		t.Fatalf("release: %v ok %v", err, ok)
	}
	if mr.Exists("String:Lock:k") {
		t.Fatal("lock record not removed on release")
	}
	if ok, err := l.Release(ctx); err != nil || ok {
		t.Fatalf("second release must report false, got %v err %v", ok, err)
	}
}

func TestTokensAreUnique(t *testing.T) {
	c, _, _ := newTestClient(t)
	a, b := newLock(t, c, "k"), newLock(t, c, "k")
	if a.Token() == b.Token() {
		t.Fatal("handles share a token")
	}
	if strings.Count(a.Token(), ":") < 2 {
		t.Fatalf("token should carry host and pid, got %q", a.Token())
	}
}

func TestMutualExclusion(t *testing.T) {
	c, _, ctx := newTestClient(t)
	l1, l2 := newLock(t, c, "k"), newLock(t, c, "k")

	if ok, _ := l1.TryLock(ctx, time.Second); !ok {
		t.Fatal("l1 should acquire")
	}
	if ok, err := l2.TryLock(ctx, time.Second); err != nil || ok {
		t.Fatalf("l2 must fail while l1 holds, ok %v err %v", ok, err)
	}
	if ok, err := l2.Release(ctx); err != nil || ok {
		t.Fatalf("l2 must not release l1's lock, ok %v err %v", ok, err)
	}
	if held, _ := l1.Held(ctx); !held {
		t.Fatal("l1 lost its lock to a foreign release")
	}
	if ok, _ := l1.Release(ctx); !ok {
		t.Fatal("l1 release failed")
	}
	if ok, _ := l2.TryLock(ctx, time.Second); !ok {
		t.Fatal("l2 should acquire after l1 released")
	}
}

func TestSelfRelockIsNotReentrant(t *testing.T) {
	c, mr, ctx := newTestClient(t)
	l := newLock(t, c, "k")

	if ok, _ := l.TryLock(ctx, time.Second); !ok {
		t.Fatal("first trylock failed")
	}
	if ok, err := l.TryLock(ctx, time.Second); err != nil || ok {
		t.Fatalf("relock on a held handle must fail, ok %v err %v", ok, err)
	}
	mr.FastForward(2 * time.Second)
	if ok, _ := l.TryLock(ctx, time.Second); !ok {
		t.Fatal("relock after expiry should succeed")
	}
}

func TestExpiryCapped(t *testing.T) {
	c, mr, ctx := newTestClient(t)
	l := newLock(t, c, "k")
	if ok, _ := l.TryLock(ctx, 100*time.Hour); !ok {
		t.Fatal("trylock failed")
	}
	if ttl := mr.TTL("String:Lock:k"); ttl != c.Config().MaxExpiry {
		t.Fatalf("expected ttl capped at %v, got %v", c.Config().MaxExpiry, ttl)
	}
}

func TestTryLockRetriesUntilReleased(t *testing.T) {
	c, _, ctx := newTestClient(t)
	l1 := newLock(t, c, "k")
	l2 := newLock(t, c, "k", WithRetry(50, 5*time.Millisecond))

	if ok, _ := l1.TryLock(ctx, time.Minute); !ok {
		t.Fatal("l1 should acquire")
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = l1.Release(context.Background())
	}()
	if ok, err := l2.TryLock(ctx, time.Minute); err != nil || !ok {
		t.Fatalf("l2 should acquire after retries, ok %v err %v", ok, err)
	}
}

func TestTryLockRetryBudgetExhausted(t *testing.T) {
	c, _, ctx := newTestClient(t)
	l1 := newLock(t, c, "k")
	l2 := newLock(t, c, "k", WithRetry(3, 5*time.Millisecond))
	_, _ = l1.TryLock(ctx, time.Minute)

	start := time.Now()
	ok, err := l2.TryLock(ctx, time.Minute)
	if err != nil || ok {
		t.Fatalf("expected denial after retries, ok %v err %v", ok, err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("expected three waits, returned after %v", elapsed)
	}
}

func TestTryLockRespectsContext(t *testing.T) {
	c, _, ctx := newTestClient(t)
	l1 := newLock(t, c, "k")
	l2 := newLock(t, c, "k", WithRetry(1000, 10*time.Millisecond))
	_, _ = l1.TryLock(ctx, time.Minute)

	cctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	ok, err := l2.TryLock(cctx, time.Minute)
	if ok || !stdErrors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, ok %v err %v", ok, err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("trylock did not respect context timeout")
	}
}

func TestAcquireTimeout(t *testing.T) {
	c, _, ctx := newTestClient(t)
	l1, l2 := newLock(t, c, "k"), newLock(t, c, "k")
	if ok, err := l1.TryLock(ctx, 0); err != nil || !ok {
		t.Fatalf("initial trylock: %v ok %v", err, ok)
	}

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := l2.Acquire(cctx, 0); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Fatal("acquire did not respect context timeout")
	}
}

func TestAcquireWaitsForRelease(t *testing.T) {
	c, _, ctx := newTestClient(t)
	l1, l2 := newLock(t, c, "leader"), newLock(t, c, "leader")
	_, _ = l1.TryLock(ctx, time.Minute)
	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = l1.Release(context.Background())
	}()

	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := l2.Acquire(cctx, time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}
}

func TestRefresh(t *testing.T) {
	c, mr, ctx := newTestClient(t)
	l1, l2 := newLock(t, c, "k"), newLock(t, c, "k")
	_, _ = l1.TryLock(ctx, time.Second)

	if ok, _ := l2.Refresh(ctx, time.Minute); ok {
		t.Fatal("foreign handle must not refresh")
	}
	if ok, err := l1.Refresh(ctx, time.Minute); err != nil || !ok {
		t.Fatalf("refresh: %v ok %v", err, ok)
	}
	if ttl := mr.TTL("String:Lock:k"); ttl != time.Minute {
		t.Fatalf("expected refreshed ttl, got %v", ttl)
	}
}

func TestWithTokenRebuildsOwner(t *testing.T) {
	c, _, ctx := newTestClient(t)
	l1 := newLock(t, c, "k")
	_, _ = l1.TryLock(ctx, time.Minute)

	again := newLock(t, c, "k", WithToken(l1.Token()))
	if ok, err := again.Release(ctx); err != nil || !ok {
		t.Fatalf("release through rebuilt handle: %v ok %v", err, ok)
	}
}

func TestDoReleasesOnAllPaths(t *testing.T) {
	c, mr, ctx := newTestClient(t)
	l := newLock(t, c, "k")

	var ran atomic.Bool
	err := Do(ctx, l, time.Minute, func(ctx context.Context) error {
		ran.Store(true)
		if !mr.Exists("String:Lock:k") {
			t.Error("lock not held inside Do")
		}
		return nil
	})
	if err != nil || !ran.Load() {
		t.Fatalf("do: %v ran %v", err, ran.Load())
	}
	if mr.Exists("String:Lock:k") {
		t.Fatal("lock not released after Do")
	}

	boom := stdErrors.New("boom")
	if err := Do(ctx, l, time.Minute, func(context.Context) error { return boom }); !stdErrors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if mr.Exists("String:Lock:k") {
		t.Fatal("lock not released after failing fn")
	}

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = Do(ctx, l, time.Minute, func(context.Context) error { panic("boom") })
	}()
	if mr.Exists("String:Lock:k") {
		t.Fatal("lock not released after panic")
	}
}

func TestDoNotAcquired(t *testing.T) {
	c, _, ctx := newTestClient(t)
	holder, other := newLock(t, c, "k"), newLock(t, c, "k")
	_, _ = holder.TryLock(ctx, time.Minute)

	called := false
	err := Do(ctx, other, time.Minute, func(context.Context) error {
		called = true
		return nil
	})
	if !stdErrors.Is(err, ErrNotAcquired) || called {
		t.Fatalf("expected ErrNotAcquired without running fn, got %v called %v", err, called)
	}
	if held, _ := holder.Held(ctx); !held {
		t.Fatal("Do released a lock it did not own")
	}
}

func TestLocksHeldSettlesAfterExpiredRelease(t *testing.T) {
	c, mr, ctx := newTestClient(t)
	before := testutil.ToFloat64(metrics.LocksHeld)

	l := newLock(t, c, "gauge")
	if ok, _ := l.TryLock(ctx, time.Second); !ok {
		t.Fatal("trylock failed")
	}
	if got := testutil.ToFloat64(metrics.LocksHeld) - before; got != 1 {
		t.Fatalf("locks held after acquire = %v, want 1", got)
	}

	mr.FastForward(2 * time.Second)
	if ok, err := l.Release(ctx); err != nil || ok {
		t.Fatalf("release of expired lock = %v %v, want false", ok, err)
	}
	if got := testutil.ToFloat64(metrics.LocksHeld) - before; got != 0 {
		t.Fatalf("locks held after expired release = %v, want 0", got)
	}

	if _, err := l.Release(ctx); err != nil {
		t.Fatalf("second release: %v", err)
	}
	other := newLock(t, c, "gauge", WithToken(l.Token()))
	if _, err := other.Release(ctx); err != nil {
		t.Fatalf("foreign release: %v", err)
	}
	if got := testutil.ToFloat64(metrics.LocksHeld) - before; got != 0 {
		t.Fatalf("locks held after repeated releases = %v, want 0", got)
	}
}

func TestCleanupReleasesUnreachableHandle(t *testing.T) {
	c, mr, ctx := newTestClient(t)
	func() {
		l := newLock(t, c, "orphan")
		if ok, _ := l.TryLock(ctx, time.Minute); !ok {
			t.Fatal("trylock failed")
		}
		l.Cleanup()
	}()

	deadline := time.Now().Add(5 * time.Second)
	for mr.Exists("String:Lock:orphan") {
		if time.Now().After(deadline) {
			t.Skip("cleanup did not run; it is best effort and depends on the garbage collector")
		}
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
}
