package kv

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisBackend implements Backend on a Redis instance or cluster client.
//
// Redis has no native per-key CAS token, so each value key carries a companion
// counter key that is bumped on every successful write; the counter value is
// the token. Value and token always move together inside a Lua script, so a
// reader can never observe a token that does not belong to the bytes it got.
// The token counter survives unconditioned deletes, which keeps tokens issued
// before a delete/recreate cycle from ever matching again.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBackend wraps the given client. Prefix may be empty; it namespaces
// every key this backend touches.
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) vkey(key string) string { return b.prefix + "v:" + key }
func (b *RedisBackend) tkey(key string) string { return b.prefix + "t:" + key }

// Script results use negative sentinels so the happy path can return the new
// token directly (tokens are INCR results and therefore always positive).
const (
	scriptKeyExists   = -1
	scriptKeyMissing  = -2
	scriptCASMismatch = -3
)

var getScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return false end
local t = redis.call('GET', KEYS[2])
return {v, t or '0'}
`)

var writeScript = redis.NewScript(`
local exists = redis.call('EXISTS', KEYS[1])
if ARGV[2] == 'add' and exists == 1 then return -1 end
if ARGV[2] == 'replace' and exists == 0 then return -2 end
redis.call('SET', KEYS[1], ARGV[1])
return redis.call('INCR', KEYS[2])
`)

var writeCASScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -3 end
local t = redis.call('GET', KEYS[2])
if (t or '0') ~= ARGV[2] then return -3 end
redis.call('SET', KEYS[1], ARGV[1])
return redis.call('INCR', KEYS[2])
`)

var deleteCASScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 1 end
local t = redis.call('GET', KEYS[2])
if (t or '0') ~= ARGV[1] then return -3 end
redis.call('DEL', KEYS[1])
return 1
`)

var counterScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return redis.call('INCRBY', KEYS[1], ARGV[1])
end
redis.call('SET', KEYS[1], ARGV[2])
return tonumber(ARGV[2])
`)

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	res, err := getScript.Run(ctx, b.client, []string{b.vkey(key), b.tkey(key)}).Result()
	if err == redis.Nil {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	pair, ok := res.([]interface{})
	if !ok || len(pair) != 2 {
		return nil, 0, fmt.Errorf("kv: unexpected get reply %T", res)
	}
	value, ok := pair[0].(string)
	if !ok {
		return nil, 0, fmt.Errorf("kv: unexpected value reply %T", pair[0])
	}
	token, ok := pair[1].(string)
	if !ok {
		return nil, 0, fmt.Errorf("kv: unexpected token reply %T", pair[1])
	}
	cas, err := strconv.ParseUint(token, 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("kv: bad token %q: %w", token, err)
	}
	return []byte(value), cas, nil
}

func (b *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, b.vkey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *RedisBackend) Write(ctx context.Context, mode WriteMode, key string, value []byte) (uint64, error) {
	res, err := writeScript.Run(ctx, b.client, []string{b.vkey(key), b.tkey(key)}, value, mode.String()).Int64()
	if err != nil {
		return 0, err
	}
	return b.token(res)
}

func (b *RedisBackend) WriteCAS(ctx context.Context, key string, value []byte, cas uint64) (uint64, error) {
	res, err := writeCASScript.Run(ctx, b.client, []string{b.vkey(key), b.tkey(key)}, value, strconv.FormatUint(cas, 10)).Int64()
	if err != nil {
		return 0, err
	}
	return b.token(res)
}

func (b *RedisBackend) token(res int64) (uint64, error) {
	switch res {
	case scriptKeyExists:
		return 0, ErrKeyExists
	case scriptKeyMissing:
		return 0, ErrNotFound
	case scriptCASMismatch:
		return 0, ErrCASMismatch
	}
	return uint64(res), nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	// the token counter is left in place on purpose, see type comment
	return b.client.Del(ctx, b.vkey(key)).Err()
}

func (b *RedisBackend) DeleteCAS(ctx context.Context, key string, cas uint64) error {
	res, err := deleteCASScript.Run(ctx, b.client, []string{b.vkey(key), b.tkey(key)}, strconv.FormatUint(cas, 10)).Int64()
	if err != nil {
		return err
	}
	if res == scriptCASMismatch {
		return ErrCASMismatch
	}
	return nil
}

func (b *RedisBackend) Increment(ctx context.Context, key string, delta, def int64) (int64, error) {
	return b.counter(ctx, key, delta, def)
}

func (b *RedisBackend) Decrement(ctx context.Context, key string, delta, def int64) (int64, error) {
	return b.counter(ctx, key, -delta, def)
}

func (b *RedisBackend) counter(ctx context.Context, key string, delta, def int64) (int64, error) {
	return counterScript.Run(ctx, b.client, []string{b.vkey(key)},
		strconv.FormatInt(delta, 10), strconv.FormatInt(def, 10)).Int64()
}

func (b *RedisBackend) MultiGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vkeys := make([]string, len(keys))
	for i, k := range keys {
		vkeys[i] = b.vkey(k)
	}
	vals, err := b.client.MGet(ctx, vkeys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = []byte(s)
		}
	}
	return out, nil
}
