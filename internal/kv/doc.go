// Package kv defines the contract between the record engine and the
// key/value store underneath it, and hosts the backends that satisfy it.
//
// The contract is the subset of a Redis-style data model the engine needs:
//
//   - Hashes: HSet / HGetAll, one flat string map per key.
//   - Sorted sets: ZAdd, ZRangeByScore, ZRangeByLex. Members are unique per
//     set and ordered by (score, member bytes).
//   - Del for keys of either kind.
//   - Pipeline: an ordered batch whose commands succeed or fail one by one.
//   - Watch: an optimistic transaction. Exec fails with ErrTxAborted if any
//     watched key was written after the watch began.
//
// # Backends
//
//	memory   in-process, google/btree ordered sets, used by tests and the harness
//	sqlite   embedded file store on mattn/go-sqlite3, key versions kept by triggers
//	redis    remote store through redis/go-redis
//
// # Errors
//
// Transport problems are reported as ErrUnavailable (check with errors.Is).
// Per-command problems such as ErrWrongType live in Result.Err and never
// abort the rest of a pipeline.
package kv
