package websocket

import (
	"sync"
	"time"
)

// Timer is a cancellable scheduled task. Every Schedule or Every call bumps a
// generation counter; a firing callback only runs if its generation is still
// current and the timer is armed, so a Cancel that happens before the fire is
// observed always wins.
type Timer struct {
	mu    sync.Mutex
	t     *time.Timer
	gen   uint64
	armed bool
}

// Schedule arms a one-shot callback, replacing any pending one.
func (tm *Timer) Schedule(d time.Duration, fn func()) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.stopLocked()
	tm.gen++
	gen := tm.gen
	tm.armed = true
	tm.t = time.AfterFunc(d, func() {
		if !tm.claim(gen, true) {
			return
		}
		fn()
	})
}

// Every arms a periodic callback, replacing any pending one. The callback may
// call Cancel on the same timer to stop further ticks.
func (tm *Timer) Every(d time.Duration, fn func()) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.stopLocked()
	tm.gen++
	gen := tm.gen
	tm.armed = true

	var tick func()
	tick = func() {
		if !tm.claim(gen, false) {
			return
		}
		fn()

		tm.mu.Lock()
		defer tm.mu.Unlock()
		if tm.armed && tm.gen == gen {
			tm.t = time.AfterFunc(d, tick)
		}
	}
	tm.t = time.AfterFunc(d, tick)
}

// Cancel disarms the timer. It is idempotent and reports whether a pending
// callback was cancelled.
func (tm *Timer) Cancel() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	was := tm.armed
	tm.stopLocked()
	tm.gen++
	return was
}

func (tm *Timer) Armed() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.armed
}

func (tm *Timer) claim(gen uint64, oneShot bool) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if !tm.armed || tm.gen != gen {
		return false
	}
	if oneShot {
		tm.armed = false
		tm.t = nil
	}
	return true
}

func (tm *Timer) stopLocked() {
	if tm.t != nil {
		tm.t.Stop()
		tm.t = nil
	}
	tm.armed = false
}
