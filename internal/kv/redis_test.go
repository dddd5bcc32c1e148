package kv

import (
	"context"
	"testing"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisBackend(t *testing.T) *RedisBackend {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisBackend(client, "test:")
}

func TestRedisWriteModes(t *testing.T) {
	b := newRedisBackend(t)
	ctx := context.Background()

	_, err := b.Write(ctx, Replace, "k1", []byte("v"))
	require.ErrorIs(t, err, ErrNotFound)

	cas1, err := b.Write(ctx, Add, "k1", []byte("v1"))
	require.NoError(t, err)
	require.NotZero(t, cas1)

	_, err = b.Write(ctx, Add, "k1", []byte("v2"))
	require.ErrorIs(t, err, ErrKeyExists)

	cas2, err := b.Write(ctx, Replace, "k1", []byte("v2"))
	require.NoError(t, err)
	require.Greater(t, cas2, cas1)

	v, cas, err := b.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), v)
	require.Equal(t, cas2, cas)

	_, _, err = b.Get(ctx, "absent")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisCAS(t *testing.T) {
	b := newRedisBackend(t)
	ctx := context.Background()

	cas, err := b.Write(ctx, Add, "k", []byte("a"))
	require.NoError(t, err)

	cas2, err := b.WriteCAS(ctx, "k", []byte("b"), cas)
	require.NoError(t, err)
	require.Greater(t, cas2, cas)

	_, err = b.WriteCAS(ctx, "k", []byte("c"), cas)
	require.ErrorIs(t, err, ErrCASMismatch)

	err = b.DeleteCAS(ctx, "k", cas)
	require.ErrorIs(t, err, ErrCASMismatch)

	require.NoError(t, b.DeleteCAS(ctx, "k", cas2))
	exists, err := b.Exists(ctx, "k")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestRedisTokensSurviveDeleteRecreate(t *testing.T) {
	b := newRedisBackend(t)
	ctx := context.Background()

	cas1, err := b.Write(ctx, Add, "k", []byte("a"))
	require.NoError(t, err)
	require.NoError(t, b.Delete(ctx, "k"))

	cas2, err := b.Write(ctx, Add, "k", []byte("b"))
	require.NoError(t, err)
	require.NotEqual(t, cas1, cas2, "a token from before the delete must never match again")

	_, err = b.WriteCAS(ctx, "k", []byte("c"), cas1)
	require.ErrorIs(t, err, ErrCASMismatch)
}

func TestRedisCounters(t *testing.T) {
	b := newRedisBackend(t)
	ctx := context.Background()

	v, err := b.Increment(ctx, "c", 1, 0)
	require.NoError(t, err)
	require.EqualValues(t, 0, v)

	v, err = b.Increment(ctx, "c", 1, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	v, err = b.Decrement(ctx, "c", 1, 0)
	require.NoError(t, err)
	require.EqualValues(t, 0, v)
}

func TestRedisMultiGet(t *testing.T) {
	b := newRedisBackend(t)
	ctx := context.Background()

	_, err := b.Write(ctx, Upsert, "a", []byte("1"))
	require.NoError(t, err)
	_, err = b.Write(ctx, Upsert, "b", []byte("2"))
	require.NoError(t, err)

	m, err := b.MultiGet(ctx, []string{"a", "missing", "b"})
	require.NoError(t, err)
	require.Len(t, m, 2)
	require.Equal(t, []byte("1"), m["a"])
	require.Equal(t, []byte("2"), m["b"])
}
