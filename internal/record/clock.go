package record

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Clock stamps creates. Next returns microseconds since the epoch and must
// return a strictly larger value on every call.
type Clock interface {
	Next() int64
}

// WallClock reads the system clock, nudging readings forward by one
// microsecond when the clock stalls or steps back, so two creates through the
// same collection never share a timestamp.
//
// Thread-safety: WallClock is safe for concurrent use (atomic operations).
type WallClock struct {
	last atomic.Int64
	now  func() time.Time
}

// NewWallClock creates a clock reading time.Now.
func NewWallClock() *WallClock {
	return &WallClock{now: time.Now}
}

// Next returns the next timestamp in microseconds.
func (c *WallClock) Next() int64 {
	for {
		last := c.last.Load()
		next := c.now().UnixMicro()
		if next <= last {
			next = last + 1
		}
		if c.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// FormatTimestamp renders microseconds as milliseconds with exactly three
// decimals, e.g. 1712345678901.123. Readings of the same width sort the same
// way as bytes and as numbers.
func FormatTimestamp(micros int64) string {
	return fmt.Sprintf("%d.%03d", micros/1000, micros%1000)
}

// timestampScore is the primary index score for a reading.
func timestampScore(micros int64) float64 {
	return float64(micros) / 1000
}
