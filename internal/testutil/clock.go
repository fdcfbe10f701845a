package testutil

import (
	"sync"
	"time"
)

// FixedClock returns a clock function pinned to ts.
//
// Pinning the merge timestamp keeps snapshots byte-comparable across test
// runs; UpdatedAt is outside the canonical form but tests still compare
// whole snapshot values.
func FixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

// SteppingClock returns a clock that advances by step on every call,
// starting at start. Thread-safe.
func SteppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		ts := next
		next = next.Add(step)
		return ts
	}
}
