package record

import (
	"fmt"
	"strconv"
)

// System fields added to every stored record.
const (
	FieldID        = "id"
	FieldTimestamp = "timestamp"
)

// Record is one stored entity: the caller's fields plus id and timestamp.
type Record map[string]string

// ID returns the record id.
func (r Record) ID() string {
	return r[FieldID]
}

// Timestamp parses the creation time in milliseconds since the epoch.
func (r Record) Timestamp() (float64, error) {
	raw, ok := r[FieldTimestamp]
	if !ok {
		return 0, fmt.Errorf("record %q has no timestamp", r.ID())
	}
	ts, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("record %q: bad timestamp %q: %w", r.ID(), raw, err)
	}
	return ts, nil
}

// Clone returns a copy safe to modify.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Canonical returns the fields as a plain map for deterministic encoding.
func (r Record) Canonical() any {
	return map[string]string(r)
}
