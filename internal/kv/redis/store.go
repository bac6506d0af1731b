// Package redis implements kv.Store on a Redis server through go-redis.
//
// Pipelines map to go-redis pipelines and Watch maps to WATCH + MULTI/EXEC,
// so the guarantees are exactly the server's: ordered execution, per-command
// results, no rollback. Replies the server sends back as errors stay
// per-command; anything else (dial failures, timeouts, a closed client) is
// reported as kv.ErrUnavailable.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/roach88/redrec/internal/kv"
)

// Options configures the connection.
type Options struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// Store is a kv.Store backed by a Redis client.
type Store struct {
	client goredis.UniversalClient
}

var _ kv.Store = (*Store)(nil)

// New connects to a single Redis server. The connection is lazy; use Ping
// to fail fast on a bad address.
func New(opts Options) *Store {
	return NewFromClient(goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
	}))
}

// NewFromClient wraps an existing client. Close closes the client.
func NewFromClient(client goredis.UniversalClient) *Store {
	return &Store{client: client}
}

// Ping checks that the server answers.
func (s *Store) Ping(ctx context.Context) error {
	return classify(s.client.Ping(ctx).Err())
}

// Close implements kv.Store.
func (s *Store) Close() error {
	return s.client.Close()
}

// classify maps go-redis errors onto the kv error set.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, goredis.TxFailedErr) {
		return kv.ErrTxAborted
	}
	var rerr goredis.Error
	if errors.As(err, &rerr) {
		if strings.HasPrefix(rerr.Error(), "WRONGTYPE") {
			return fmt.Errorf("%w: %s", kv.ErrWrongType, rerr.Error())
		}
		return err
	}
	return kv.Unavailable(err)
}

// fieldArgs flattens fields into HSET arguments in sorted field order.
func fieldArgs(fields map[string]string) []any {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	args := make([]any, 0, 2*len(fields))
	for _, name := range names {
		args = append(args, name, fields[name])
	}
	return args
}

func scoreRange(min, max float64) *goredis.ZRangeBy {
	return &goredis.ZRangeBy{Min: kv.FormatScore(min), Max: kv.FormatScore(max)}
}

func lexRange(r kv.LexRange) *goredis.ZRangeBy {
	by := &goredis.ZRangeBy{Min: "[" + r.Min, Max: "[" + r.Max}
	if r.Limit > 0 {
		by.Count = r.Limit
	}
	return by
}

// HSet implements kv.Store.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	return classify(s.client.HSet(ctx, key, fieldArgs(fields)...).Err())
}

// HGetAll implements kv.Store.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return hgetall(ctx, s.client, key)
}

func hgetall(ctx context.Context, c goredis.Cmdable, key string) (map[string]string, error) {
	fields, err := c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, classify(err)
	}
	return fields, nil
}

// ZAdd implements kv.Store.
func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return classify(s.client.ZAdd(ctx, key, goredis.Z{Score: score, Member: member}).Err())
}

// ZRangeByScore implements kv.Store.
func (s *Store) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	return zrangeByScore(ctx, s.client, key, min, max)
}

func zrangeByScore(ctx context.Context, c goredis.Cmdable, key string, min, max float64) ([]string, error) {
	members, err := c.ZRangeByScore(ctx, key, scoreRange(min, max)).Result()
	if err != nil {
		return nil, classify(err)
	}
	return members, nil
}

// ZRangeByLex implements kv.Store.
func (s *Store) ZRangeByLex(ctx context.Context, key string, r kv.LexRange) ([]string, error) {
	var cmd *goredis.StringSliceCmd
	if r.Reverse {
		cmd = s.client.ZRevRangeByLex(ctx, key, lexRange(r))
	} else {
		cmd = s.client.ZRangeByLex(ctx, key, lexRange(r))
	}
	members, err := cmd.Result()
	if err != nil {
		return nil, classify(err)
	}
	return members, nil
}

// Del implements kv.Store.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return classify(s.client.Del(ctx, keys...).Err())
}

// queue adds cmd to p. It returns nil for commands that need no round trip.
func queue(ctx context.Context, p goredis.Pipeliner, cmd kv.Cmd) (goredis.Cmder, error) {
	switch cmd.Op {
	case kv.OpHSet:
		return p.HSet(ctx, cmd.Key, fieldArgs(cmd.Fields)...), nil
	case kv.OpHGetAll:
		return p.HGetAll(ctx, cmd.Key), nil
	case kv.OpZAdd:
		return p.ZAdd(ctx, cmd.Key, goredis.Z{Score: cmd.Score, Member: cmd.Member}), nil
	case kv.OpDel:
		if len(cmd.Keys) == 0 {
			return nil, nil
		}
		return p.Del(ctx, cmd.Keys...), nil
	default:
		return nil, fmt.Errorf("unknown command %q", cmd.Op)
	}
}

// collect turns queued go-redis commands into kv results. A transport
// failure on any command fails the whole batch.
func collect(queued []goredis.Cmder, queueErrs []error) ([]kv.Result, error) {
	results := make([]kv.Result, len(queued))
	for i, c := range queued {
		if queueErrs[i] != nil {
			results[i] = kv.Result{Err: queueErrs[i]}
			continue
		}
		if c == nil {
			continue
		}
		err := classify(c.Err())
		if errors.Is(err, kv.ErrUnavailable) || errors.Is(err, kv.ErrTxAborted) {
			return nil, err
		}
		res := kv.Result{Err: err}
		if hc, ok := c.(*goredis.MapStringStringCmd); ok && err == nil {
			res.Fields = hc.Val()
			if res.Fields == nil {
				res.Fields = map[string]string{}
			}
		}
		results[i] = res
	}
	return results, nil
}

func run(ctx context.Context, p goredis.Pipeliner, cmds []kv.Cmd) ([]goredis.Cmder, []error) {
	queued := make([]goredis.Cmder, len(cmds))
	queueErrs := make([]error, len(cmds))
	for i, cmd := range cmds {
		queued[i], queueErrs[i] = queue(ctx, p, cmd)
	}
	return queued, queueErrs
}

// Pipeline implements kv.Store.
func (s *Store) Pipeline(ctx context.Context, cmds []kv.Cmd) ([]kv.Result, error) {
	p := s.client.Pipeline()
	queued, queueErrs := run(ctx, p, cmds)
	if p.Len() > 0 {
		if _, err := p.Exec(ctx); err != nil {
			if err := batchErr(err); err != nil {
				return nil, err
			}
		}
	}
	return collect(queued, queueErrs)
}

// batchErr picks out the Exec errors that fail a whole batch. Server replies
// only describe the first failed command and are left to collect; transport
// failures never reach the queued commands, so they are returned here.
func batchErr(err error) error {
	if errors.Is(err, goredis.TxFailedErr) {
		return kv.ErrTxAborted
	}
	var rerr goredis.Error
	if errors.As(err, &rerr) {
		return nil
	}
	return kv.Unavailable(err)
}

// Watch implements kv.Store with WATCH / MULTI / EXEC.
func (s *Store) Watch(ctx context.Context, keys []string, fn func(ctx context.Context, tx kv.Tx) error) error {
	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		return fn(ctx, &watchTx{tx: tx})
	}, keys...)
	if err == nil || errors.Is(err, kv.ErrTxAborted) || errors.Is(err, kv.ErrUnavailable) {
		return err
	}
	return classify(err)
}

type watchTx struct {
	tx   *goredis.Tx
	done bool
}

func (t *watchTx) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return hgetall(ctx, t.tx, key)
}

func (t *watchTx) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	return zrangeByScore(ctx, t.tx, key, min, max)
}

func (t *watchTx) Exec(ctx context.Context, cmds []kv.Cmd) ([]kv.Result, error) {
	if t.done {
		return nil, errors.New("redis: transaction already executed")
	}
	t.done = true

	var queued []goredis.Cmder
	var queueErrs []error
	_, err := t.tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		queued, queueErrs = run(ctx, p, cmds)
		return nil
	})
	if err != nil {
		if err := batchErr(err); err != nil {
			return nil, err
		}
	}
	return collect(queued, queueErrs)
}
