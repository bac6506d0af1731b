package record

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/roach88/redrec/internal/kv"
)

// FindByID returns the record stored under id. A missing record is reported
// with ok == false and no error.
func (c *Collection) FindByID(ctx context.Context, id string) (Record, bool, error) {
	start := time.Now()
	rec, ok, err := c.findByID(ctx, id)
	c.metrics.observe(c.name, "find_by_id", start, err)
	return rec, ok, err
}

func (c *Collection) findByID(ctx context.Context, id string) (Record, bool, error) {
	fields, err := c.store.HGetAll(ctx, c.RecordKey(id))
	if err != nil {
		return nil, false, fmt.Errorf("find %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	return Record(fields), true, nil
}

// FindOneByLookupKey returns the most recently created record whose field
// was created with value. Values are compared after Sanitize. An undeclared
// field has no index entries and so finds nothing.
func (c *Collection) FindOneByLookupKey(ctx context.Context, field, value string) (Record, bool, error) {
	start := time.Now()
	rec, ok, err := c.findOneByLookupKey(ctx, field, value)
	c.metrics.observe(c.name, "find_one_by_lookup", start, err)
	return rec, ok, err
}

func (c *Collection) findOneByLookupKey(ctx context.Context, field, value string) (Record, bool, error) {
	members, err := c.store.ZRangeByLex(ctx, c.lkIndex, prefixRange(lookupPrefix(field, value), 1, true))
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", field, err)
	}
	if len(members) == 0 {
		return nil, false, nil
	}
	m, err := ParseLookupMember(members[0])
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", field, err)
	}
	return c.findByID(ctx, m.ID)
}

// LookupOptions bounds FindByLookupKey.
type LookupOptions struct {
	// Limit caps the number of index entries read; 0 reads all.
	Limit int64

	// Reverse returns newest first.
	Reverse bool
}

// FindByLookupKey returns every record whose field was created with value,
// oldest first unless opts.Reverse is set. Index entries whose record hash
// is gone are skipped.
func (c *Collection) FindByLookupKey(ctx context.Context, field, value string, opts LookupOptions) ([]Record, error) {
	start := time.Now()
	recs, err := c.findByLookupKey(ctx, field, value, opts)
	c.metrics.observe(c.name, "find_by_lookup", start, err)
	return recs, err
}

func (c *Collection) findByLookupKey(ctx context.Context, field, value string, opts LookupOptions) ([]Record, error) {
	members, err := c.store.ZRangeByLex(ctx, c.lkIndex, prefixRange(lookupPrefix(field, value), opts.Limit, opts.Reverse))
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", field, err)
	}
	keys := make([]string, 0, len(members))
	for _, raw := range members {
		m, err := ParseLookupMember(raw)
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", field, err)
		}
		keys = append(keys, c.RecordKey(m.ID))
	}
	return c.fetch(ctx, "lookup "+field, keys)
}

// FindAll returns every record in ascending creation order. An empty
// collection yields an empty slice.
func (c *Collection) FindAll(ctx context.Context) ([]Record, error) {
	start := time.Now()
	recs, err := c.findAll(ctx)
	c.metrics.observe(c.name, "find_all", start, err)
	return recs, err
}

func (c *Collection) findAll(ctx context.Context) ([]Record, error) {
	keys, err := c.store.ZRangeByScore(ctx, c.pkIndex, math.Inf(-1), math.Inf(1))
	if err != nil {
		return nil, fmt.Errorf("find all: %w", err)
	}
	return c.fetch(ctx, "find all", keys)
}

// fetch reads the hashes at keys in one pipeline, keeping key order and
// skipping hashes that no longer exist.
func (c *Collection) fetch(ctx context.Context, op string, keys []string) ([]Record, error) {
	recs := make([]Record, 0, len(keys))
	if len(keys) == 0 {
		return recs, nil
	}
	cmds := make([]kv.Cmd, len(keys))
	for i, key := range keys {
		cmds[i] = kv.HGetAll(key)
	}
	results, err := c.store.Pipeline(ctx, cmds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := newBatchError(c.name, op, cmds, results); err != nil {
		return nil, err
	}
	for i, res := range results {
		if len(res.Fields) == 0 {
			c.logger.Warn("index entry without record", "key", keys[i], "op", op)
			continue
		}
		recs = append(recs, Record(res.Fields))
	}
	return recs, nil
}
