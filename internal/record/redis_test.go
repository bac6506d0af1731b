package record

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redrec/internal/kv/redis"
	"github.com/roach88/redrec/internal/testutil"
)

// newRedisCollection builds a users collection (lookup on email) on an
// in-process Redis server.
func newRedisCollection(t *testing.T, mode WriteMode) (*Collection, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := redis.New(redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { store.Close() })

	c, err := New(Config{
		Name:         "users",
		Store:        store,
		LookupKeys:   []string{"email"},
		WriteMode:    mode,
		Clock:        testutil.NewDeterministicClock(1_000_000, 1000),
		IDs:          testutil.NewSequenceIDs("u1", "u2", "u3"),
		Logger:       discardLogger(),
		OnWriteError: func(string, error) {},
	})
	require.NoError(t, err)
	return c, mr
}

func TestCollection_RedisBackend(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCollection(t, WriteAwait)

	for _, email := range []string{"a@x.com", "b@x.com", "a@x.com"} {
		_, err := c.Create(ctx, map[string]string{"email": email, "name": "n-" + email})
		require.NoError(t, err)
	}

	assert.Equal(t, "a@x.com", mr.HGet(c.RecordKey("u1"), "email"))
	assert.Equal(t, "1002.000", mr.HGet(c.RecordKey("u3"), FieldTimestamp))
	members, err := mr.ZMembers(c.LookupIndexKey())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"email:a@x.com:1000.000:u1",
		"email:a@x.com:1002.000:u3",
		"email:b@x.com:1001.000:u2",
	}, members)

	rec, ok, err := c.FindOneByLookupKey(ctx, "email", "a@x.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u3", rec.ID())
	assert.Equal(t, "1002.000", rec[FieldTimestamp])

	_, ok, err = c.FindOneByLookupKey(ctx, "email", "c@x.com")
	require.NoError(t, err)
	assert.False(t, ok)

	recs, err := c.FindByLookupKey(ctx, "email", "a@x.com", LookupOptions{Reverse: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"u3", "u1"}, ids(recs))

	rec, ok, err = c.FindByID(ctx, "u2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b@x.com", rec["email"])

	all, err := c.FindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, ids(all))

	n, err := c.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, mr.Keys())
}

func TestCollection_RedisStopped(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCollection(t, WriteAwait)
	mr.Close()

	_, err := c.Create(ctx, map[string]string{"email": "a@x.com"})
	require.Error(t, err)
	assert.True(t, IsStoreUnavailable(err))
	assert.False(t, IsBatchError(err))

	_, _, err = c.FindByID(ctx, "u1")
	assert.True(t, IsStoreUnavailable(err))
	_, _, err = c.FindOneByLookupKey(ctx, "email", "a@x.com")
	assert.True(t, IsStoreUnavailable(err))
	_, err = c.FindAll(ctx)
	assert.True(t, IsStoreUnavailable(err))
	_, err = c.DeleteAll(ctx)
	assert.True(t, IsStoreUnavailable(err))
}

func TestCollection_RedisStoppedAsync(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCollection(t, WriteAsync)
	mr.Close()

	created, err := c.Create(ctx, map[string]string{"email": "a@x.com"})
	require.NoError(t, err)
	require.NoError(t, c.Flush(ctx))
	assert.True(t, IsStoreUnavailable(created.Wait(ctx)))
}
