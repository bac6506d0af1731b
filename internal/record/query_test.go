package record

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redrec/internal/kv"
	"github.com/roach88/redrec/internal/testutil"
)

func ids(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID()
	}
	return out
}

func TestFindByID_NotFound(t *testing.T) {
	c, _ := newTestCollection(t, Config{Name: "users"})
	rec, ok, err := c.FindByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, rec)
}

func TestFindOneByLookupKey_MostRecent(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCollection(t, Config{
		Name:       "users",
		LookupKeys: []string{"email"},
		IDs:        testutil.NewSequenceIDs("first", "second", "other"),
	})

	for _, email := range []string{"a@x.com", "a@x.com", "b@x.com"} {
		_, err := c.Create(ctx, map[string]string{"email": email})
		require.NoError(t, err)
	}

	rec, ok, err := c.FindOneByLookupKey(ctx, "email", "a@x.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", rec.ID())

	rec, ok, err = c.FindOneByLookupKey(ctx, "email", "b@x.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "other", rec.ID())
}

func TestFindOneByLookupKey_NoMatch(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCollection(t, Config{Name: "users", LookupKeys: []string{"email"}})
	_, err := c.Create(ctx, map[string]string{"email": "ab@x.com", "name": "ann"})
	require.NoError(t, err)

	tests := []struct {
		name, field, value string
	}{
		{"unknown value", "email", "zz@x.com"},
		{"value prefix only", "email", "a"},
		{"undeclared field", "name", "ann"},
		{"empty value", "email", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok, err := c.FindOneByLookupKey(ctx, tt.field, tt.value)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, rec)
		})
	}
}

// Stripping the delimiter is lossy: values differing only in ':' collide.
func TestFindOneByLookupKey_SanitizeCollision(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCollection(t, Config{
		Name:       "hosts",
		LookupKeys: []string{"addr"},
		IDs:        testutil.NewSequenceIDs("with-colon", "without"),
	})

	_, err := c.Create(ctx, map[string]string{"addr": "10.0.0.1:80"})
	require.NoError(t, err)
	_, err = c.Create(ctx, map[string]string{"addr": "10.0.0.180"})
	require.NoError(t, err)

	rec, ok, err := c.FindOneByLookupKey(ctx, "addr", "10.0.0.1:80")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "without", rec.ID())

	recs, err := c.FindByLookupKey(ctx, "addr", "10.0.0.1:80", LookupOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"with-colon", "without"}, ids(recs))
}

func TestFindOneByLookupKey_RecordGone(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCollection(t, Config{Name: "users", LookupKeys: []string{"email"}})
	created, err := c.Create(ctx, map[string]string{"email": "a@x.com"})
	require.NoError(t, err)
	require.NoError(t, store.Del(ctx, c.RecordKey(created.ID)))

	_, ok, err := c.FindOneByLookupKey(ctx, "email", "a@x.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindOneByLookupKey_MalformedMember(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCollection(t, Config{Name: "users", LookupKeys: []string{"email"}})
	require.NoError(t, store.ZAdd(ctx, c.LookupIndexKey(), 0, "email:a@x.com:"))

	_, _, err := c.FindOneByLookupKey(ctx, "email", "a@x.com")
	assert.ErrorContains(t, err, "malformed lookup member")
}

func TestFindByLookupKey_Options(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCollection(t, Config{
		Name:       "events",
		LookupKeys: []string{"kind"},
		IDs:        testutil.NewSequenceIDs("e1", "e2", "e3", "e4"),
	})
	for _, kind := range []string{"click", "view", "click", "click"} {
		_, err := c.Create(ctx, map[string]string{"kind": kind})
		require.NoError(t, err)
	}

	tests := []struct {
		name string
		opts LookupOptions
		want []string
	}{
		{"all ascending", LookupOptions{}, []string{"e1", "e3", "e4"}},
		{"reverse", LookupOptions{Reverse: true}, []string{"e4", "e3", "e1"}},
		{"limit", LookupOptions{Limit: 2}, []string{"e1", "e3"}},
		{"newest two", LookupOptions{Limit: 2, Reverse: true}, []string{"e4", "e3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := c.FindByLookupKey(ctx, "kind", "click", tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(recs))
		})
	}

	recs, err := c.FindByLookupKey(ctx, "kind", "scroll", LookupOptions{})
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestFindAll(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCollection(t, Config{
		Name: "users",
		IDs:  testutil.NewSequenceIDs("u3", "u1", "u2"),
	})

	recs, err := c.FindAll(ctx)
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)

	for i := 0; i < 3; i++ {
		_, err := c.Create(ctx, map[string]string{"n": "x"})
		require.NoError(t, err)
	}

	recs, err = c.FindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u3", "u1", "u2"}, ids(recs), "creation order, not id order")

	var last float64
	for _, r := range recs {
		ts, err := r.Timestamp()
		require.NoError(t, err)
		assert.Greater(t, ts, last)
		last = ts
	}

	require.NoError(t, store.Del(ctx, c.RecordKey("u1")))
	recs, err = c.FindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u3", "u2"}, ids(recs))
}

func TestFindAll_WrongTypeEntry(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCollection(t, Config{Name: "users"})
	require.NoError(t, store.ZAdd(ctx, c.PrimaryIndexKey(), 1, c.PrimaryIndexKey()))

	_, err := c.FindAll(ctx)
	assert.True(t, IsBatchError(err))
	assert.ErrorIs(t, err, kv.ErrWrongType)
}
