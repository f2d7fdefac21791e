package validator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	"github.com/mirkobrombin/go-coord/v1/client"
	"github.com/mirkobrombin/go-coord/v1/config"
	"github.com/mirkobrombin/go-coord/v1/ratelimit"
)

func setup(t *testing.T, limit int64) (*client.Client, *miniredis.Miniredis, *ratelimit.Limiter) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := config.Default()
	cfg.Endpoints = []string{mr.Addr()}
	c, err := client.NewWithRedis(rdb, cfg)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	l, err := ratelimit.New(c, "jobs", limit)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	return c, mr, l
}

func scan(t *testing.T, v *Validator) {
	t.Helper()
	if err := v.Scan(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}
}

func TestValidatorAutoHeal(t *testing.T) {
	c, mr, l := setup(t, 2)
	_ = mr.Set(l.Key(), "5")
	mr.SetTTL(l.Key(), time.Minute)

	v := New(c, ModeAutoHeal, time.Second, l)
	scan(t, v)
	if got, _ := mr.Get(l.Key()); got != "5" {
		t.Fatalf("first sighting must not heal, got %s", got)
	}
	scan(t, v)
	if got, _ := mr.Get(l.Key()); got != "2" {
		t.Fatalf("expected count healed to 2, got %s", got)
	}
	if ttl := mr.TTL(l.Key()); ttl != time.Minute {
		t.Fatalf("heal should keep the TTL, got %v", ttl)
	}
	if v.Metrics() != 2 || v.Healed() != 1 {
		t.Fatalf("metrics: mismatches=%d healed=%d", v.Metrics(), v.Healed())
	}
}

func TestValidatorHealsNegative(t *testing.T) {
	c, mr, l := setup(t, 2)
	_ = mr.Set(l.Key(), "-3")
	v := New(c, ModeAutoHeal, time.Second)
	v.Watch(l)
	scan(t, v)
	scan(t, v)
	if got, _ := mr.Get(l.Key()); got != "0" {
		t.Fatalf("expected 0, got %s", got)
	}
}

func TestValidatorIgnoresTransient(t *testing.T) {
	c, mr, l := setup(t, 2)
	v := New(c, ModeAutoHeal, time.Second, l)

	_ = mr.Set(l.Key(), "3")
	scan(t, v)
	_ = mr.Set(l.Key(), "2")
	scan(t, v)
	_ = mr.Set(l.Key(), "3")
	scan(t, v)
	if got, _ := mr.Get(l.Key()); got != "3" {
		t.Fatalf("non-consecutive anomaly should not heal, got %s", got)
	}
	if v.Healed() != 0 {
		t.Fatalf("unexpected heal")
	}
}

func TestValidatorAlertOnly(t *testing.T) {
	c, mr, l := setup(t, 1)
	_ = mr.Set(l.Key(), "4")
	v := New(c, ModeAlert, time.Second, l)
	scan(t, v)
	scan(t, v)
	if got, _ := mr.Get(l.Key()); got != "4" {
		t.Fatalf("alert mode must not write, got %s", got)
	}
	if v.Metrics() != 2 {
		t.Fatalf("expected 2 mismatches, got %d", v.Metrics())
	}
}

func TestValidatorRun(t *testing.T) {
	c, mr, l := setup(t, 1)
	_ = mr.Set(l.Key(), "7")
	v := New(c, ModeAutoHeal, time.Millisecond, l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go v.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v.Healed() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if got, _ := mr.Get(l.Key()); got != "1" {
		t.Fatalf("expected count healed to 1, got %s", got)
	}
}
