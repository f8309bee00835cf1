// Package pool recycles timers for the retry and settle waits of the
// reconnection engine, which burn through short-lived timers during a long
// outage.
package pool

import (
	"sync"
	"time"
)

var timers = sync.Pool{
	New: func() any {
		t := time.NewTimer(time.Hour)
		t.Stop()

		return t
	},
}

// AcquireTimer returns a timer armed for d. Release it with ReleaseTimer once
// it has fired or is no longer needed.
func AcquireTimer(d time.Duration) *time.Timer {
	t, _ := timers.Get().(*time.Timer)
	if t.Reset(d) {
		// the recycled timer was still armed; drain a pending fire so the
		// caller only observes the new expiry
		select {
		case <-t.C:
		default:
		}
	}

	return t
}

// ReleaseTimer stops t and returns it to the pool. The caller must not touch
// t afterwards.
func ReleaseTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}

	timers.Put(t)
}
