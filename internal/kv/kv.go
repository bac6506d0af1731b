package kv

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrUnavailable marks transport-level failures: the store is closed,
	// unreachable, or the request context ended before a reply arrived.
	ErrUnavailable = errors.New("kv: store unavailable")

	// ErrTxAborted is returned by Tx.Exec when a watched key changed after
	// Watch began. None of the queued commands were applied.
	ErrTxAborted = errors.New("kv: transaction aborted, watched key modified")

	// ErrWrongType is the command error for a hash operation against a
	// sorted set key or the other way round.
	ErrWrongType = errors.New("kv: WRONGTYPE operation against a key holding the wrong kind of value")
)

// Op names a command that can be queued in a pipeline or transaction.
type Op string

const (
	OpHSet    Op = "hset"
	OpHGetAll Op = "hgetall"
	OpZAdd    Op = "zadd"
	OpDel     Op = "del"
)

// Cmd is one queued command. Only the fields relevant to Op are read.
type Cmd struct {
	Op     Op
	Key    string
	Keys   []string          // OpDel
	Fields map[string]string // OpHSet
	Score  float64           // OpZAdd
	Member string            // OpZAdd
}

// HSet queues a write of the given hash fields.
func HSet(key string, fields map[string]string) Cmd {
	return Cmd{Op: OpHSet, Key: key, Fields: fields}
}

// HGetAll queues a read of every field of a hash.
func HGetAll(key string) Cmd {
	return Cmd{Op: OpHGetAll, Key: key}
}

// ZAdd queues adding (or re-scoring) member in a sorted set.
func ZAdd(key string, score float64, member string) Cmd {
	return Cmd{Op: OpZAdd, Key: key, Score: score, Member: member}
}

// Del queues deletion of keys of any kind.
func Del(keys ...string) Cmd {
	return Cmd{Op: OpDel, Keys: keys}
}

func (c Cmd) String() string {
	switch c.Op {
	case OpDel:
		return fmt.Sprintf("del %s", strings.Join(c.Keys, " "))
	case OpZAdd:
		return fmt.Sprintf("zadd %s %s %s", c.Key, FormatScore(c.Score), c.Member)
	default:
		return fmt.Sprintf("%s %s", c.Op, c.Key)
	}
}

// Result is the outcome of one queued command. Fields is set for
// OpHGetAll only and is empty, never nil, when the hash does not exist.
type Result struct {
	Fields map[string]string
	Err    error
}

// LexRange selects sorted set members by byte-wise comparison. Both bounds
// are inclusive. The range is only meaningful when every member in the set
// has the same score.
type LexRange struct {
	Min     string
	Max     string
	Limit   int64 // 0 means no limit
	Reverse bool  // iterate from Max down to Min
}

// Contains reports whether member falls inside the range bounds.
func (r LexRange) Contains(member string) bool {
	return member >= r.Min && member <= r.Max
}

// Store is the contract the record engine needs from a key/value store
// offering hashes, sorted sets, pipelines and optimistic transactions.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// HSet writes fields into the hash at key, creating it if needed.
	HSet(ctx context.Context, key string, fields map[string]string) error

	// HGetAll returns every field of the hash at key. A missing key yields
	// an empty map and no error.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// ZAdd adds member with score, or updates the score of an existing member.
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZRangeByScore returns members with min <= score <= max ordered by
	// score, ties broken by member bytes. Use math.Inf for open bounds.
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)

	// ZRangeByLex returns members inside r in byte order (or reverse).
	ZRangeByLex(ctx context.Context, key string, r LexRange) ([]string, error)

	// Del removes keys. Missing keys are ignored.
	Del(ctx context.Context, keys ...string) error

	// Pipeline sends cmds in order and returns one Result per command.
	// Commands succeed or fail independently; nothing is rolled back.
	// The returned error is set only when the batch could not be sent.
	Pipeline(ctx context.Context, cmds []Cmd) ([]Result, error)

	// Watch runs fn with an optimistic transaction guarding keys. Reads made
	// through tx observe the store after the watch was established; Exec
	// applies its commands only if none of the keys changed meanwhile.
	Watch(ctx context.Context, keys []string, fn func(ctx context.Context, tx Tx) error) error

	// Close releases the store. Later calls fail with ErrUnavailable.
	Close() error
}

// Tx is the handle passed to a Watch callback.
type Tx interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)

	// Exec applies cmds atomically if no watched key changed, else returns
	// ErrTxAborted. Exec may be called at most once.
	Exec(ctx context.Context, cmds []Cmd) ([]Result, error)
}

// CmdError ties a command failure to its position in a batch.
type CmdError struct {
	Index int
	Cmd   Cmd
	Err   error
}

func (e *CmdError) Error() string {
	if e.Cmd.Op != "" {
		return fmt.Sprintf("command %d (%s): %v", e.Index, e.Cmd, e.Err)
	}
	return fmt.Sprintf("command %d: %v", e.Index, e.Err)
}

func (e *CmdError) Unwrap() error {
	return e.Err
}

// CmdErrs collects the failed commands of a batch in order, each annotated
// with its position and the command that produced it.
func CmdErrs(cmds []Cmd, results []Result) []error {
	var errs []error
	for i, r := range results {
		if r.Err == nil {
			continue
		}
		ce := &CmdError{Index: i, Err: r.Err}
		if i < len(cmds) {
			ce.Cmd = cmds[i]
		}
		errs = append(errs, ce)
	}
	return errs
}

// FormatScore renders a score the way Redis accepts it on the wire.
func FormatScore(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}

// Unavailable wraps a transport failure so that errors.Is(err, ErrUnavailable)
// holds while the cause stays reachable.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
