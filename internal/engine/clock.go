package engine

import "sync/atomic"

// SeqClock issues logical timestamps. Event seq numbers and modifier
// appliedAt values both come from it.
type SeqClock interface {
	Next() int64
	Current() int64
}

// Clock is a monotonic logical clock.
//
// Every emitted event and every applied modifier is stamped with a strictly
// increasing seq from this clock. Ordering never depends on wall time, so a
// scenario run twice produces the same trace, and "most recently applied"
// for set modifiers is unambiguous.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

var _ SeqClock = (*Clock)(nil)

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
// Used to resume after importing snapshots so new modifiers sort after
// restored ones.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
