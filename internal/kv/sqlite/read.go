package sqlite

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/redrec/internal/kv"
)

// HGetAll implements kv.Store.
// Returns an empty map (not nil) if the hash does not exist.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return hgetall(ctx, s.db, key)
}

func hgetall(ctx context.Context, q querier, key string) (map[string]string, error) {
	if err := expectKind(ctx, q, key, "zsets"); err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `SELECT field, value FROM hashes WHERE key = ?`, key)
	if err != nil {
		return nil, classify(fmt.Errorf("hgetall %s: %w", key, err))
	}
	defer rows.Close()

	fields := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("hgetall %s: scan: %w", key, err)
		}
		fields[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("hgetall %s: iterate: %w", key, err))
	}
	return fields, nil
}

// ZRangeByScore implements kv.Store. Infinite bounds are left out of the
// query rather than bound as REAL values.
func (s *Store) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if err := expectKind(ctx, s.db, key, "hashes"); err != nil {
		return nil, err
	}

	var where strings.Builder
	args := []any{key}
	where.WriteString("key = ?")
	if !math.IsInf(min, -1) {
		where.WriteString(" AND score >= ?")
		args = append(args, min)
	}
	if !math.IsInf(max, 1) {
		where.WriteString(" AND score <= ?")
		args = append(args, max)
	}

	query := "SELECT member FROM zsets WHERE " + where.String() + " ORDER BY score ASC, member ASC"
	return s.members(ctx, key, query, args...)
}

// ZRangeByLex implements kv.Store.
func (s *Store) ZRangeByLex(ctx context.Context, key string, r kv.LexRange) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if err := expectKind(ctx, s.db, key, "hashes"); err != nil {
		return nil, err
	}

	order := "score ASC, member ASC"
	if r.Reverse {
		order = "score DESC, member DESC"
	}
	limit := r.Limit
	if limit <= 0 {
		limit = -1 // no limit
	}
	query := `
		SELECT member FROM zsets
		WHERE key = ? AND member >= ? AND member <= ?
		ORDER BY ` + order + `
		LIMIT ?`
	return s.members(ctx, key, query, key, r.Min, r.Max, limit)
}

func (s *Store) members(ctx context.Context, key, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("range %s: %w", key, err))
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("range %s: scan: %w", key, err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("range %s: iterate: %w", key, err))
	}
	return members, nil
}
