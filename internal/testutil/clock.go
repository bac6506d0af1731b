package testutil

import "sync"

// DeterministicClock is a record.Clock for tests and scenarios.
//
// It returns start, start+step, start+2*step, ... in microseconds, so record
// timestamps and lookup ordering are identical on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start int64
	step  int64
	next  int64
}

// NewDeterministicClock creates a clock whose first reading is start.
// A step below 1 is treated as 1.
func NewDeterministicClock(start, step int64) *DeterministicClock {
	if step < 1 {
		step = 1
	}
	return &DeterministicClock{start: start, step: step, next: start}
}

// Next returns the current reading and advances the clock by one step.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.next
	c.next += c.step
	return v
}

// Peek returns the reading the next call to Next will produce.
func (c *DeterministicClock) Peek() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Reset rewinds the clock to its start.
//
// Used for test reuse. After Reset(), the next call to Next() returns start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = c.start
}
