package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	coorderrors "github.com/mirkobrombin/go-coord/v1/errors"
)

var delScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

var expireScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
    return 0
end
`)

// ARGV: expectAbsent flag, old value, new value, ttl in ms (0 keeps no expiry).
var swapScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if ARGV[1] == "1" then
    if cur then
        return 0
    end
elseif cur ~= ARGV[2] then
    return 0
end
if tonumber(ARGV[4]) > 0 then
    redis.call("SET", KEYS[1], ARGV[3], "PX", ARGV[4])
else
    redis.call("SET", KEYS[1], ARGV[3])
end
return 1
`)

// ARGV: field, expectAbsent flag, old value, new value.
var hashSwapScript = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], ARGV[1])
if ARGV[2] == "1" then
    if cur then
        return 0
    end
elseif cur ~= ARGV[3] then
    return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[4])
return 1
`)

// ARGV: delta, ttl in ms. Arms the TTL when the key has none, which is the
// case when the increment just recreated an expired key.
var incrScript = redis.NewScript(`
local n = redis.call("INCRBY", KEYS[1], ARGV[1])
if tonumber(ARGV[2]) > 0 and redis.call("PTTL", KEYS[1]) == -1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return n
`)

var incrFloatScript = redis.NewScript(`
local n = redis.call("INCRBYFLOAT", KEYS[1], ARGV[1])
if tonumber(ARGV[2]) > 0 and redis.call("PTTL", KEYS[1]) == -1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return n
`)

// IncrByTTL is IncrBy that also gives key a TTL of ttl when it has none.
// A zero ttl makes it a plain IncrBy.
func (s *Store) IncrByTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return s.IncrBy(ctx, key, delta)
	}
	return s.EvalInt(ctx, "incrby_ttl", incrScript, []string{key}, delta, ttl.Milliseconds())
}

// IncrByFloatTTL is the IncrByFloat counterpart of IncrByTTL.
func (s *Store) IncrByFloatTTL(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error) {
	if ttl <= 0 {
		return s.IncrByFloat(ctx, key, delta)
	}
	var f float64
	err := s.do(ctx, "incrbyfloat_ttl", key, func(ctx context.Context) error {
		txt, err := incrFloatScript.Run(ctx, s.client, []string{key}, strconv.FormatFloat(delta, 'f', -1, 64), ttl.Milliseconds()).Text()
		if err != nil {
			return err
		}
		f, err = strconv.ParseFloat(txt, 64)
		if err != nil {
			return fmt.Errorf("%w: %q", coorderrors.ErrUnexpectedReply, txt)
		}
		return nil
	})
	return f, err
}

// CompareAndDelete deletes key only if it holds expected. The check and the
// delete run server side as one step.
func (s *Store) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	n, err := s.EvalInt(ctx, "compare_and_delete", delScript, []string{key}, expected)
	return n > 0, err
}

// CompareAndExpire resets the TTL of key only if it holds expected.
func (s *Store) CompareAndExpire(ctx context.Context, key, expected string, ttl time.Duration) (bool, error) {
	n, err := s.EvalInt(ctx, "compare_and_expire", expireScript, []string{key}, expected, ttl.Milliseconds())
	return n > 0, err
}

// CompareAndSwap replaces the value of key with value when the stored value
// equals old. A nil old requires the key to be absent.
func (s *Store) CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error) {
	flag, cur := absentFlag(old)
	n, err := s.EvalInt(ctx, "compare_and_swap", swapScript, []string{key}, flag, cur, value, ttl.Milliseconds())
	return n > 0, err
}

// HashCompareAndSwap is CompareAndSwap for a single hash field.
func (s *Store) HashCompareAndSwap(ctx context.Context, key, field string, old, value []byte) (bool, error) {
	flag, cur := absentFlag(old)
	n, err := s.EvalInt(ctx, "hash_compare_and_swap", hashSwapScript, []string{key}, field, flag, cur, value)
	return n > 0, err
}

func absentFlag(old []byte) (string, []byte) {
	if old == nil {
		return "1", []byte{}
	}
	return "0", old
}
