package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/redrec/internal/kv"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// HSet implements kv.Store. All fields are written in one transaction.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, func(q querier) error {
		return hset(ctx, q, key, fields)
	})
}

// ZAdd implements kv.Store.
func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, func(q querier) error {
		return zadd(ctx, q, key, score, member)
	})
}

// Del implements kv.Store.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, func(q querier) error {
		return del(ctx, q, keys)
	})
}

// Pipeline implements kv.Store. Each command commits on its own, in order;
// a failed command leaves earlier ones applied.
func (s *Store) Pipeline(ctx context.Context, cmds []kv.Cmd) ([]kv.Result, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	results := make([]kv.Result, len(cmds))
	for i, cmd := range cmds {
		var res kv.Result
		err := s.inTx(ctx, func(q querier) error {
			res = apply(ctx, q, cmd)
			return res.Err
		})
		if errors.Is(err, kv.ErrUnavailable) {
			return nil, err
		}
		if err != nil && res.Err == nil {
			// commit failed, not the command itself
			res.Err = err
		}
		results[i] = res
	}
	return results, nil
}

// inTx runs fn in a transaction, rolling back when fn fails.
func (s *Store) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// apply runs one queued command against q.
func apply(ctx context.Context, q querier, cmd kv.Cmd) kv.Result {
	switch cmd.Op {
	case kv.OpHSet:
		return kv.Result{Err: hset(ctx, q, cmd.Key, cmd.Fields)}
	case kv.OpHGetAll:
		fields, err := hgetall(ctx, q, cmd.Key)
		return kv.Result{Fields: fields, Err: err}
	case kv.OpZAdd:
		return kv.Result{Err: zadd(ctx, q, cmd.Key, cmd.Score, cmd.Member)}
	case kv.OpDel:
		return kv.Result{Err: del(ctx, q, cmd.Keys)}
	default:
		return kv.Result{Err: fmt.Errorf("unknown command %q", cmd.Op)}
	}
}

func hset(ctx context.Context, q querier, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return fmt.Errorf("hset %s: no fields", key)
	}
	if err := expectKind(ctx, q, key, "zsets"); err != nil {
		return err
	}
	for field, value := range fields {
		_, err := q.ExecContext(ctx, `
			INSERT INTO hashes (key, field, value)
			VALUES (?, ?, ?)
			ON CONFLICT(key, field) DO UPDATE SET value = excluded.value
		`, key, field, value)
		if err != nil {
			return classify(fmt.Errorf("hset %s: %w", key, err))
		}
	}
	return nil
}

func zadd(ctx context.Context, q querier, key string, score float64, member string) error {
	if err := expectKind(ctx, q, key, "hashes"); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO zsets (key, member, score)
		VALUES (?, ?, ?)
		ON CONFLICT(key, member) DO UPDATE SET score = excluded.score
	`, key, member, score)
	if err != nil {
		return classify(fmt.Errorf("zadd %s: %w", key, err))
	}
	return nil
}

func del(ctx context.Context, q querier, keys []string) error {
	for _, key := range keys {
		if _, err := q.ExecContext(ctx, `DELETE FROM hashes WHERE key = ?`, key); err != nil {
			return classify(fmt.Errorf("del %s: %w", key, err))
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM zsets WHERE key = ?`, key); err != nil {
			return classify(fmt.Errorf("del %s: %w", key, err))
		}
	}
	return nil
}

// expectKind returns kv.ErrWrongType when key already exists in the other
// table. table names the table the key must NOT be in.
func expectKind(ctx context.Context, q querier, key, table string) error {
	var exists bool
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE key = ?)", table)
	if err := q.QueryRowContext(ctx, query, key).Scan(&exists); err != nil {
		return classify(fmt.Errorf("type check %s: %w", key, err))
	}
	if exists {
		return kv.ErrWrongType
	}
	return nil
}

// Watch implements kv.Store. Versions of the watched keys are read up front;
// Tx.Exec re-reads them inside an IMMEDIATE transaction before applying.
func (s *Store) Watch(ctx context.Context, keys []string, fn func(ctx context.Context, tx kv.Tx) error) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	watched, err := versions(ctx, s.db, keys)
	if err != nil {
		return err
	}
	return fn(ctx, &watchTx{s: s, keys: keys, watched: watched})
}

type watchTx struct {
	s       *Store
	keys    []string
	watched map[string]int64
	done    bool
}

func (t *watchTx) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return t.s.HGetAll(ctx, key)
}

func (t *watchTx) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	return t.s.ZRangeByScore(ctx, key, min, max)
}

func (t *watchTx) Exec(ctx context.Context, cmds []kv.Cmd) ([]kv.Result, error) {
	if t.done {
		return nil, fmt.Errorf("sqlite: transaction already executed")
	}
	t.done = true
	if err := t.s.check(ctx); err != nil {
		return nil, err
	}

	var results []kv.Result
	err := t.s.inTx(ctx, func(q querier) error {
		current, err := versions(ctx, q, t.keys)
		if err != nil {
			return err
		}
		for key, v := range t.watched {
			if current[key] != v {
				return kv.ErrTxAborted
			}
		}
		// Like MULTI/EXEC: a failing command does not undo the others.
		results = make([]kv.Result, len(cmds))
		for i, cmd := range cmds {
			results[i] = apply(ctx, q, cmd)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// versions reads the write counters for keys; unseen keys map to 0.
func versions(ctx context.Context, q querier, keys []string) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	for _, key := range keys {
		var v int64
		err := q.QueryRowContext(ctx, `SELECT version FROM key_versions WHERE key = ?`, key).Scan(&v)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, classify(fmt.Errorf("read version %s: %w", key, err))
		}
		out[key] = v
	}
	return out, nil
}
