package redis

import (
	"context"
	"math"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redrec/internal/kv"
)

// newTestStore starts an in-process server and returns a store connected to
// it together with a second raw client for out-of-band writes.
func newTestStore(t *testing.T) (*Store, *goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := New(Options{Addr: mr.Addr()})
	t.Cleanup(func() { s.Close() })
	other := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { other.Close() })
	return s, other, mr
}

func TestPing(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
}

func TestHashes(t *testing.T) {
	ctx := context.Background()
	s, _, mr := newTestStore(t)

	got, err := s.HGetAll(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.HSet(ctx, "h", map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, s.HSet(ctx, "h", map[string]string{"b": "3"}))
	got, err = s.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "3"}, got)
	assert.Equal(t, "3", mr.HGet("h", "b"))
}

func TestWrongType(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	require.NoError(t, s.ZAdd(ctx, "z", 1, "m"))

	assert.ErrorIs(t, s.HSet(ctx, "z", map[string]string{"a": "1"}), kv.ErrWrongType)
	_, err := s.HGetAll(ctx, "z")
	assert.ErrorIs(t, err, kv.ErrWrongType)
}

func TestZRanges(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	require.NoError(t, s.ZAdd(ctx, "z", 3, "c"))
	require.NoError(t, s.ZAdd(ctx, "z", 1, "a"))
	require.NoError(t, s.ZAdd(ctx, "z", 2.5, "b"))

	got, err := s.ZRangeByScore(ctx, "z", math.Inf(-1), math.Inf(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)

	got, err = s.ZRangeByScore(ctx, "z", 2.5, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, got)

	for _, m := range []string{"email:a:1:x", "email:a:2:y", "email:ab:3:z"} {
		require.NoError(t, s.ZAdd(ctx, "lk", 0, m))
	}
	got, err = s.ZRangeByLex(ctx, "lk", kv.LexRange{Min: "email:a:", Max: "email:a:\xff", Limit: 1, Reverse: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"email:a:2:y"}, got)

	got, err = s.ZRangeByLex(ctx, "lk", kv.LexRange{Min: "email:a:", Max: "email:a:\xff"})
	require.NoError(t, err)
	assert.Equal(t, []string{"email:a:1:x", "email:a:2:y"}, got)
}

func TestPipeline(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	require.NoError(t, s.ZAdd(ctx, "taken", 0, "m"))

	results, err := s.Pipeline(ctx, []kv.Cmd{
		kv.HSet("h", map[string]string{"a": "1"}),
		kv.HSet("taken", map[string]string{"a": "1"}),
		kv.ZAdd("idx", 7, "h"),
		kv.Del(),
		kv.HGetAll("h"),
	})
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, kv.ErrWrongType)
	assert.NoError(t, results[2].Err)
	assert.NoError(t, results[3].Err)
	assert.Equal(t, map[string]string{"a": "1"}, results[4].Fields)

	errs := kv.CmdErrs([]kv.Cmd{{}, {}, {}, {}, {}}, results)
	assert.Len(t, errs, 1)
}

func TestWatch(t *testing.T) {
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		s, _, _ := newTestStore(t)
		require.NoError(t, s.ZAdd(ctx, "idx", 1, "rec:1"))
		require.NoError(t, s.HSet(ctx, "rec:1", map[string]string{"id": "1"}))

		err := s.Watch(ctx, []string{"idx"}, func(ctx context.Context, tx kv.Tx) error {
			members, err := tx.ZRangeByScore(ctx, "idx", math.Inf(-1), math.Inf(1))
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx, []kv.Cmd{kv.Del(members...), kv.Del("idx")})
			return err
		})
		require.NoError(t, err)

		got, err := s.HGetAll(ctx, "rec:1")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("abort on concurrent write", func(t *testing.T) {
		s, other, _ := newTestStore(t)
		require.NoError(t, s.ZAdd(ctx, "idx", 1, "rec:1"))

		err := s.Watch(ctx, []string{"idx"}, func(ctx context.Context, tx kv.Tx) error {
			require.NoError(t, other.ZAdd(ctx, "idx", goredis.Z{Score: 2, Member: "rec:2"}).Err())
			_, err := tx.Exec(ctx, []kv.Cmd{kv.Del("idx")})
			return err
		})
		assert.ErrorIs(t, err, kv.ErrTxAborted)

		got, err := s.ZRangeByScore(ctx, "idx", math.Inf(-1), math.Inf(1))
		require.NoError(t, err)
		assert.Equal(t, []string{"rec:1", "rec:2"}, got)
	})
}

func TestUnavailable(t *testing.T) {
	ctx := context.Background()
	s, _, mr := newTestStore(t)
	mr.Close()

	_, err := s.HGetAll(ctx, "h")
	assert.ErrorIs(t, err, kv.ErrUnavailable)
	_, err = s.Pipeline(ctx, []kv.Cmd{kv.HSet("h", map[string]string{"a": "1"})})
	assert.ErrorIs(t, err, kv.ErrUnavailable)

	results, err := s.Pipeline(ctx, []kv.Cmd{
		kv.HSet("rec:1", map[string]string{"a": "1"}),
		kv.ZAdd("idx", 1, "rec:1"),
		kv.HGetAll("rec:1"),
	})
	assert.ErrorIs(t, err, kv.ErrUnavailable)
	assert.Nil(t, results)

	err = s.Watch(ctx, []string{"idx"}, func(ctx context.Context, tx kv.Tx) error {
		_, err := tx.Exec(ctx, []kv.Cmd{kv.Del("idx")})
		return err
	})
	assert.ErrorIs(t, err, kv.ErrUnavailable)
}

func TestWatch_ExecUnavailable(t *testing.T) {
	ctx := context.Background()
	s, _, mr := newTestStore(t)
	require.NoError(t, s.ZAdd(ctx, "idx", 1, "rec:1"))

	err := s.Watch(ctx, []string{"idx"}, func(ctx context.Context, tx kv.Tx) error {
		_, err := tx.ZRangeByScore(ctx, "idx", math.Inf(-1), math.Inf(1))
		require.NoError(t, err)
		mr.Close()
		_, err = tx.Exec(ctx, []kv.Cmd{kv.Del("idx")})
		return err
	})
	assert.ErrorIs(t, err, kv.ErrUnavailable)
}
