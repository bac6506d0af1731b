// Package record stores flat string records in a kv.Store and indexes them
// using nothing but sorted sets.
//
// A collection named N keeps:
//
//	N:<id>      hash holding the record fields plus id and timestamp
//	N:pk:idx    sorted set of record keys scored by creation time
//	N:lk:idx    sorted set of lookup members, all scored 0
//
// A lookup member is field:sanitizedValue:timestamp:id. Because every
// member has the same score the set is ordered by bytes, so all entries for
// one (field, value) pair are contiguous and ordered by timestamp. The most
// recent record for a value is the last member in the range
// [field:value: .. field:value:\xff].
//
// Creates are sent as a single pipeline: ordered, but with no rollback, so
// a partial failure is reported as a *BatchError listing the failed
// commands. DeleteAll runs under an optimistic transaction on both index
// keys.
//
// Records are immutable once created. There is no update and no
// per-record delete.
package record
