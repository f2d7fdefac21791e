package presets

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/mirkobrombin/go-coord/v1/counter"
)

func TestNewInMemoryStandalone(t *testing.T) {
	ctx := context.Background()
	c, closeFn, err := NewInMemoryStandalone(ctx)
	if err != nil {
		t.Fatalf("standalone: %v", err)
	}
	defer closeFn()

	ctr, err := counter.New(c, "foo")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	if n, err := ctr.Increase(ctx, 2); err != nil || n != 2 {
		t.Fatalf("increase: %d %v", n, err)
	}
}

func TestNewRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	c, err := NewRedis(ctx, RedisOptions{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer c.Close()

	ctr, err := counter.New(c, "foo")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	if _, err := ctr.Increase(ctx, 1); err != nil {
		t.Fatalf("increase: %v", err)
	}
	if got, _ := mr.Get("String:Counter:foo"); got != "1" {
		t.Fatalf("expected 1, got %q", got)
	}
}

func TestNewRedisUnreachable(t *testing.T) {
	if _, err := NewRedis(context.Background(), RedisOptions{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatal("expected connection error")
	}
}
