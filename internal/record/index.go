package record

import (
	"fmt"
	"strings"

	"github.com/roach88/redrec/internal/kv"
)

// Delimiter separates the parts of every key and lookup member.
const Delimiter = ":"

// lexUpper sorts after any byte that can appear in UTF-8 text.
const lexUpper = "\xff"

func recordKey(name, id string) string {
	return name + Delimiter + id
}

func primaryIndexKey(name string) string {
	return name + Delimiter + "pk" + Delimiter + "idx"
}

func lookupIndexKey(name string) string {
	return name + Delimiter + "lk" + Delimiter + "idx"
}

// Sanitize strips every delimiter from a lookup value so it cannot shift the
// member's field boundaries. It is lossy: "a:b" and "ab" index identically.
func Sanitize(value string) string {
	return strings.ReplaceAll(value, Delimiter, "")
}

// LookupMember is one entry of a lookup index.
//
// Encoded as field:sanitizedValue:timestamp:id with every member scored 0,
// so byte order over the whole string groups entries by (field, value) and
// orders each group by timestamp.
type LookupMember struct {
	Field     string
	Value     string // already sanitized
	Timestamp string
	ID        string
}

// String encodes the member.
func (m LookupMember) String() string {
	return m.Field + Delimiter + m.Value + Delimiter + m.Timestamp + Delimiter + m.ID
}

// ParseLookupMember splits an encoded member into its four parts. Only the
// first three delimiters are structural, so an id built from several primary
// key values keeps its own delimiters.
func ParseLookupMember(s string) (LookupMember, error) {
	parts := strings.SplitN(s, Delimiter, 4)
	if len(parts) != 4 {
		return LookupMember{}, fmt.Errorf("malformed lookup member %q: want 4 parts, got %d", s, len(parts))
	}
	return LookupMember{Field: parts[0], Value: parts[1], Timestamp: parts[2], ID: parts[3]}, nil
}

func lookupPrefix(field, value string) string {
	return field + Delimiter + Sanitize(value) + Delimiter
}

// prefixRange selects every member starting with prefix.
func prefixRange(prefix string, limit int64, reverse bool) kv.LexRange {
	return kv.LexRange{Min: prefix, Max: prefix + lexUpper, Limit: limit, Reverse: reverse}
}
