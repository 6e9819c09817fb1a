package session

import "sync/atomic"

// Clock is a logical clock ordering solutions and searches.
//
// Seq values are assigned at commit time, so among solutions of one search
// they follow proposer order regardless of which fit finished first. Ties in
// internal score are broken by seq, first committed first.
//
// Thread-safe: multiple goroutines can call Next() concurrently.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0. The first Next() returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
