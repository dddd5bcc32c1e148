package docstore

import (
	"context"
	"testing"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dockv/dockv/internal/kv"
)

// The full repository stack against a real redis backend.

func newRedisRepo(t *testing.T) *Repository[account, *account] {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { client.Close() })
	return New[account](kv.NewRedisBackend(client, "test:"))
}

func TestRedisRepositoryRoundTrip(t *testing.T) {
	repo := newRedisRepo(t)
	ctx := context.Background()

	doc, err := repo.Create(ctx, newAccount("acc::r1", "ada", 100))
	require.NoError(t, err)
	require.NotZero(t, doc.CAS)

	got, found, err := repo.Get(ctx, "acc::r1")
	require.NoError(t, err)
	require.True(t, found)
	require.EqualValues(t, 100, got.Balance)
	require.Equal(t, doc.CAS, got.CAS)

	got.Balance = 150
	got, err = repo.Update(ctx, got)
	require.NoError(t, err)

	ok, err := repo.Remove(ctx, "acc::r1", got.CAS)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisRepositoryConflict(t *testing.T) {
	repo := newRedisRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, newAccount("acc::r2", "bob", 1))
	require.NoError(t, err)

	calls := 0
	doc, err := repo.UpdateWithRetry(ctx, newAccount("acc::r2", "bob", 0), func(cur *account) {
		calls++
		if calls == 1 {
			rival, _, gerr := repo.Get(ctx, "acc::r2")
			require.NoError(t, gerr)
			rival.Balance = 3
			_, serr := repo.Save(ctx, rival)
			require.NoError(t, serr)
		}
		cur.Balance++
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.EqualValues(t, 4, doc.Balance)
}

func TestRedisRepositoryCounters(t *testing.T) {
	repo := newRedisRepo(t)
	ctx := context.Background()

	v, err := repo.Increment(ctx, "cnt::r", 1, 0)
	require.NoError(t, err)
	require.EqualValues(t, 0, v)

	v, err = repo.Increment(ctx, "cnt::r", 1, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, v)
}
