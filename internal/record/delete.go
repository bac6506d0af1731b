package record

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/roach88/redrec/internal/kv"
)

// DeleteAll removes every record of the collection and both index keys and
// returns the number of record keys deleted.
//
// The primary index is read under a watch on both index keys and everything
// is deleted in one transaction. If another client changes either index in
// between, nothing is deleted and the error satisfies IsWriteConflict. There
// is no retry.
func (c *Collection) DeleteAll(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := c.deleteAll(ctx)
	c.metrics.observe(c.name, "delete_all", start, err)
	return n, err
}

func (c *Collection) deleteAll(ctx context.Context) (int, error) {
	var n int
	err := c.store.Watch(ctx, []string{c.pkIndex, c.lkIndex}, func(ctx context.Context, tx kv.Tx) error {
		keys, err := tx.ZRangeByScore(ctx, c.pkIndex, math.Inf(-1), math.Inf(1))
		if err != nil {
			return err
		}
		var cmds []kv.Cmd
		if len(keys) > 0 {
			cmds = append(cmds, kv.Del(keys...))
		}
		cmds = append(cmds, kv.Del(c.pkIndex, c.lkIndex))

		results, err := tx.Exec(ctx, cmds)
		if err != nil {
			return err
		}
		if err := newBatchError(c.name, "delete all", cmds, results); err != nil {
			return err
		}
		n = len(keys)
		return nil
	})
	switch {
	case err == nil:
		c.logger.Debug("collection cleared", "records", n)
		return n, nil
	case errors.Is(err, kv.ErrTxAborted):
		return 0, fmt.Errorf("delete all: %w: %w", ErrWriteConflict, err)
	case IsBatchError(err):
		return 0, err
	default:
		return 0, fmt.Errorf("delete all: %w", err)
	}
}
