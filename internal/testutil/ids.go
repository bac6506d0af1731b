package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs is a record.IDGenerator returning predetermined ids.
//
// The given ids are returned in order. Once they run out it counts on with
// "id-0001", "id-0002", ... so a scenario only lists the ids it asserts on.
//
// Thread-safety: SequenceIDs is safe for concurrent use via internal mutex.
type SequenceIDs struct {
	mu  sync.Mutex
	ids []string
	idx int
	n   int
}

// NewSequenceIDs creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewSequenceIDs("u1", "u2")
//	gen.Generate() // "u1"
//	gen.Generate() // "u2"
//	gen.Generate() // "id-0001"
func NewSequenceIDs(ids ...string) *SequenceIDs {
	return &SequenceIDs{ids: ids}
}

// Generate returns the next id.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx < len(g.ids) {
		id := g.ids[g.idx]
		g.idx++
		return id
	}
	g.n++
	return fmt.Sprintf("id-%04d", g.n)
}
