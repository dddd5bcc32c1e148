package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryWriteModes(t *testing.T) {
	b := NewMemoryBackend()
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
	require.NotEqual(t, cas1, cas2)

	cas3, err := b.Write(ctx, Upsert, "k2", []byte("v3"))
	require.NoError(t, err)
	require.NotZero(t, cas3)

	v, cas, err := b.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), v)
	require.Equal(t, cas2, cas)
}

func TestMemoryCAS(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	cas, err := b.Write(ctx, Add, "k", []byte("a"))
	require.NoError(t, err)

	cas2, err := b.WriteCAS(ctx, "k", []byte("b"), cas)
	require.NoError(t, err)
	require.NotEqual(t, cas, cas2)

	_, err = b.WriteCAS(ctx, "k", []byte("c"), cas)
	require.ErrorIs(t, err, ErrCASMismatch)

	err = b.DeleteCAS(ctx, "k", cas)
	require.ErrorIs(t, err, ErrCASMismatch)

	require.NoError(t, b.DeleteCAS(ctx, "k", cas2))
	exists, err := b.Exists(ctx, "k")
	require.NoError(t, err)
	require.False(t, exists)

	// deleting an absent key, conditioned or not, is not an error
	require.NoError(t, b.DeleteCAS(ctx, "k", cas2))
	require.NoError(t, b.Delete(ctx, "k"))
}

func TestMemoryCounters(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	v, err := b.Increment(ctx, "c", 2, 5)
	require.NoError(t, err)
	require.EqualValues(t, 5, v)

	v, err = b.Increment(ctx, "c", 2, 5)
	require.NoError(t, err)
	require.EqualValues(t, 7, v)

	v, err = b.Decrement(ctx, "c", 3, 0)
	require.NoError(t, err)
	require.EqualValues(t, 4, v)
}

func TestMemoryMultiGet(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	_, err := b.Write(ctx, Upsert, "a", []byte("1"))
	require.NoError(t, err)
	_, err = b.Write(ctx, Upsert, "b", []byte("2"))
	require.NoError(t, err)

	m, err := b.MultiGet(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	require.Len(t, m, 2)
	require.Equal(t, []byte("1"), m["a"])

	m, err = b.MultiGet(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Empty(t, m)
}

func TestMemoryValueIsolation(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	buf := []byte("original")
	_, err := b.Write(ctx, Upsert, "k", buf)
	require.NoError(t, err)
	buf[0] = 'X'

	v, _, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("original"), v)
}
