// Package memory implements kv.Store in process memory.
//
// Sorted sets are kept in a google/btree ordered by (score, member), so
// range reads walk the tree instead of sorting. All state sits behind one
// RWMutex: pipelines and transaction commits hold the write lock for the
// whole batch, which gives them the ordering the kv contract asks for.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/google/btree"

	"github.com/roach88/redrec/internal/kv"
)

// degree of the per-set btree. Sets are small; a low degree keeps
// allocation per node down.
const degree = 16

type zitem struct {
	score  float64
	member string
}

func zless(a, b zitem) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.member < b.member
}

type zset struct {
	scores map[string]float64
	tree   *btree.BTreeG[zitem]
}

func newZSet() *zset {
	return &zset{
		scores: make(map[string]float64),
		tree:   btree.NewG(degree, zless),
	}
}

func (z *zset) add(score float64, member string) {
	if old, ok := z.scores[member]; ok {
		z.tree.Delete(zitem{score: old, member: member})
	}
	z.scores[member] = score
	z.tree.ReplaceOrInsert(zitem{score: score, member: member})
}

// Store is an in-memory kv.Store.
type Store struct {
	mu       sync.RWMutex
	hashes   map[string]map[string]string
	zsets    map[string]*zset
	versions map[string]uint64 // bumped on every write, kept after delete
	seq      uint64
	closed   bool
}

var _ kv.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		hashes:   make(map[string]map[string]string),
		zsets:    make(map[string]*zset),
		versions: make(map[string]uint64),
	}
}

// Close marks the store closed. Data is dropped.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.hashes = nil
	s.zsets = nil
	return nil
}

// Keys returns the number of live keys of either kind.
func (s *Store) Keys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hashes) + len(s.zsets)
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return kv.Unavailable(err)
	}
	if s.closed {
		return kv.Unavailable(errors.New("memory store closed"))
	}
	return nil
}

func (s *Store) touch(key string) {
	s.seq++
	s.versions[key] = s.seq
}

// HSet implements kv.Store.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.hset(key, fields)
}

func (s *Store) hset(key string, fields map[string]string) error {
	if len(fields) == 0 {
		return fmt.Errorf("hset %s: no fields", key)
	}
	if _, ok := s.zsets[key]; ok {
		return kv.ErrWrongType
	}
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		s.hashes[key] = h
	}
	maps.Copy(h, fields)
	s.touch(key)
	return nil
}

// HGetAll implements kv.Store.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.hgetall(key)
}

func (s *Store) hgetall(key string) (map[string]string, error) {
	if _, ok := s.zsets[key]; ok {
		return nil, kv.ErrWrongType
	}
	// Return a copy to prevent external modification
	h := s.hashes[key]
	out := make(map[string]string, len(h))
	maps.Copy(out, h)
	return out, nil
}

// ZAdd implements kv.Store.
func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.zadd(key, score, member)
}

func (s *Store) zadd(key string, score float64, member string) error {
	if _, ok := s.hashes[key]; ok {
		return kv.ErrWrongType
	}
	z, ok := s.zsets[key]
	if !ok {
		z = newZSet()
		s.zsets[key] = z
	}
	z.add(score, member)
	s.touch(key)
	return nil
}

// ZRangeByScore implements kv.Store.
func (s *Store) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.zrangeByScore(key, min, max)
}

func (s *Store) zrangeByScore(key string, min, max float64) ([]string, error) {
	if _, ok := s.hashes[key]; ok {
		return nil, kv.ErrWrongType
	}
	out := []string{}
	z, ok := s.zsets[key]
	if !ok {
		return out, nil
	}
	z.tree.AscendGreaterOrEqual(zitem{score: min}, func(it zitem) bool {
		if it.score > max {
			return false
		}
		out = append(out, it.member)
		return true
	})
	return out, nil
}

// ZRangeByLex implements kv.Store. Members are visited in tree order, which
// equals byte order when all scores match.
func (s *Store) ZRangeByLex(ctx context.Context, key string, r kv.LexRange) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if _, ok := s.hashes[key]; ok {
		return nil, kv.ErrWrongType
	}
	out := []string{}
	z, ok := s.zsets[key]
	if !ok {
		return out, nil
	}
	visit := func(it zitem) bool {
		if !r.Contains(it.member) {
			return true
		}
		out = append(out, it.member)
		return r.Limit <= 0 || int64(len(out)) < r.Limit
	}
	if r.Reverse {
		z.tree.Descend(visit)
	} else {
		z.tree.Ascend(visit)
	}
	return out, nil
}

// Del implements kv.Store.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.del(keys)
	return nil
}

func (s *Store) del(keys []string) {
	for _, key := range keys {
		_, isHash := s.hashes[key]
		_, isZSet := s.zsets[key]
		if !isHash && !isZSet {
			continue
		}
		delete(s.hashes, key)
		delete(s.zsets, key)
		s.touch(key)
	}
}

// apply runs one queued command. Caller holds the write lock.
func (s *Store) apply(cmd kv.Cmd) kv.Result {
	switch cmd.Op {
	case kv.OpHSet:
		return kv.Result{Err: s.hset(cmd.Key, cmd.Fields)}
	case kv.OpHGetAll:
		fields, err := s.hgetall(cmd.Key)
		return kv.Result{Fields: fields, Err: err}
	case kv.OpZAdd:
		return kv.Result{Err: s.zadd(cmd.Key, cmd.Score, cmd.Member)}
	case kv.OpDel:
		s.del(cmd.Keys)
		return kv.Result{}
	default:
		return kv.Result{Err: fmt.Errorf("unknown command %q", cmd.Op)}
	}
}

// Pipeline implements kv.Store. The whole batch runs under one lock.
func (s *Store) Pipeline(ctx context.Context, cmds []kv.Cmd) ([]kv.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	results := make([]kv.Result, len(cmds))
	for i, cmd := range cmds {
		results[i] = s.apply(cmd)
	}
	return results, nil
}

// Watch implements kv.Store.
func (s *Store) Watch(ctx context.Context, keys []string, fn func(ctx context.Context, tx kv.Tx) error) error {
	s.mu.RLock()
	if err := s.check(ctx); err != nil {
		s.mu.RUnlock()
		return err
	}
	watched := make(map[string]uint64, len(keys))
	for _, key := range keys {
		watched[key] = s.versions[key]
	}
	s.mu.RUnlock()

	return fn(ctx, &tx{s: s, watched: watched})
}

type tx struct {
	s       *Store
	watched map[string]uint64
	done    bool
}

func (t *tx) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return t.s.HGetAll(ctx, key)
}

func (t *tx) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	return t.s.ZRangeByScore(ctx, key, min, max)
}

func (t *tx) Exec(ctx context.Context, cmds []kv.Cmd) ([]kv.Result, error) {
	if t.done {
		return nil, errors.New("memory: transaction already executed")
	}
	t.done = true

	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	for key, v := range t.watched {
		if s.versions[key] != v {
			return nil, kv.ErrTxAborted
		}
	}
	results := make([]kv.Result, len(cmds))
	for i, cmd := range cmds {
		results[i] = s.apply(cmd)
	}
	return results, nil
}
