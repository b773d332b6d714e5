// Package timer provides the one-shot, cancellable commit-window timer
// the leader state machine starts on ANNOUNCE and never restarts.
package timer

import (
	"sync"
	"time"
)

// OneShot fires a callback once after a fixed delay, unless stopped
// first. Safe for concurrent Stop calls from other goroutines; the
// callback itself runs on its own goroutine, off whatever mutex the
// caller holds.
type OneShot struct {
	mu      sync.Mutex
	t       *time.Timer
	stopped bool
}

// New arms a timer that invokes fn after d, unless Stop is called
// first. The timer starts immediately.
func New(d time.Duration, fn func()) *OneShot {
	o := &OneShot{}
	o.t = time.AfterFunc(d, fn)
	return o
}

// Stop cancels the timer. Safe to call more than once; safe to call
// after the timer has already fired (the callback has already run, or
// is running, and Stop has no further effect on it).
func (o *OneShot) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}
	o.stopped = true
	o.t.Stop()
}
