package record

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roach88/redrec/internal/kv"
)

// Created is the handle returned by Create.
type Created struct {
	// ID is the id of the new record.
	ID string

	// Timestamp is the creation time as stored, e.g. "1712345678901.123".
	Timestamp string

	done chan struct{}
	err  error
}

// Wait blocks until the record's batch has been applied and returns its
// error. In await mode the batch is already finished when Create returns.
func (c *Created) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Created) finish(err error) {
	c.err = err
	close(c.done)
}

// Create validates input, assigns an id and timestamp, and writes the hash,
// the primary index entry and one lookup entry per lookup key in a single
// pipeline.
//
// Undeclared fields are stored unchanged. Declared key fields must be
// present and non-blank and are stored trimmed. The reserved id and
// timestamp fields are the one exception to passing extra fields through:
// supplying either is a ValidationError rather than an overwrite.
//
// In await mode a *BatchError is returned together with the handle when some
// commands failed; the record may then be readable by id without being
// indexed.
func (c *Collection) Create(ctx context.Context, input map[string]string) (*Created, error) {
	start := time.Now()
	fields, err := c.validate(input)
	if err != nil {
		c.metrics.observe(c.name, "create", start, err)
		return nil, err
	}

	var id string
	if c.autoID {
		id = c.ids.Generate()
	} else {
		vals := make([]string, len(c.primaryKeys))
		for i, f := range c.primaryKeys {
			vals[i] = fields[f]
		}
		id = strings.Join(vals, Delimiter)
	}

	micros := c.clock.Next()
	ts := FormatTimestamp(micros)
	fields[FieldID] = id
	fields[FieldTimestamp] = ts

	key := c.RecordKey(id)
	cmds := make([]kv.Cmd, 0, 2+len(c.lookupKeys))
	cmds = append(cmds,
		kv.HSet(key, fields),
		kv.ZAdd(c.pkIndex, timestampScore(micros), key),
	)
	for _, f := range c.lookupKeys {
		raw := input[f]
		if raw == "" {
			continue
		}
		m := LookupMember{Field: f, Value: Sanitize(raw), Timestamp: ts, ID: id}
		cmds = append(cmds, kv.ZAdd(c.lkIndex, 0, m.String()))
	}

	created := &Created{ID: id, Timestamp: ts, done: make(chan struct{})}
	if c.mode == WriteAsync {
		c.flushMu.RLock()
		c.inflight.Add(1)
		c.flushMu.RUnlock()
		go func() {
			defer c.inflight.Done()
			err := c.write(context.WithoutCancel(ctx), id, cmds)
			c.metrics.observe(c.name, "create", start, err)
			if err != nil {
				c.onWriteError(id, err)
			}
			created.finish(err)
		}()
		return created, nil
	}

	err = c.write(ctx, id, cmds)
	c.metrics.observe(c.name, "create", start, err)
	created.finish(err)
	return created, err
}

// validate checks input and returns the fields to store.
func (c *Collection) validate(input map[string]string) (map[string]string, error) {
	var missing, reserved []string
	for _, f := range []string{FieldID, FieldTimestamp} {
		if _, ok := input[f]; ok {
			reserved = append(reserved, f)
		}
	}

	fields := make(map[string]string, len(input)+2)
	for k, v := range input {
		fields[k] = v
	}
	seen := make(map[string]bool)
	for _, f := range append(append([]string(nil), c.primaryKeys...), c.lookupKeys...) {
		if seen[f] {
			continue
		}
		seen[f] = true
		v := strings.TrimSpace(input[f])
		if v == "" {
			missing = append(missing, f)
			continue
		}
		fields[f] = v
	}

	if len(missing) > 0 || len(reserved) > 0 {
		sort.Strings(missing)
		return nil, &ValidationError{Collection: c.name, Missing: missing, Reserved: reserved}
	}
	return fields, nil
}

// write sends one create batch and folds command failures into a BatchError.
func (c *Collection) write(ctx context.Context, id string, cmds []kv.Cmd) error {
	results, err := c.store.Pipeline(ctx, cmds)
	if err != nil {
		return fmt.Errorf("create %s: %w", id, err)
	}
	if err := newBatchError(c.name, "create "+id, cmds, results); err != nil {
		return err
	}
	c.logger.Debug("record created", "id", id, "commands", len(cmds))
	return nil
}

// Flush waits for every async write started so far. Creates issued while
// a flush is draining block until it finishes, even when ctx gives up first.
func (c *Collection) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.flushMu.Lock()
		defer c.flushMu.Unlock()
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
