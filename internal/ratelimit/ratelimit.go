// Package ratelimit implements the per-connection sliding-window admission
// control applied to inbound websocket frames.
package ratelimit

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

// Result describes a single admission decision.
type Result struct {
	Allowed bool
	// Remaining is the quota left in the current window after this call.
	Remaining int
	// ResetIn is how long until the oldest admission leaves the window.
	// Only meaningful when Allowed is false.
	ResetIn time.Duration
}

// SlidingWindow admits at most maxRequests events in any trailing interval of
// length window. It is safe for concurrent use, though each connection owns
// its own instance.
type SlidingWindow struct {
	mu          sync.Mutex
	window      time.Duration
	maxRequests int
	stamps      *queue.Queue
	now         func() time.Time
}

func New(window time.Duration, maxRequests int) *SlidingWindow {
	return NewWithClock(window, maxRequests, time.Now)
}

func NewWithClock(window time.Duration, maxRequests int, now func() time.Time) *SlidingWindow {
	if now == nil {
		now = time.Now
	}
	if maxRequests < 1 {
		maxRequests = 1
	}
	return &SlidingWindow{
		window:      window,
		maxRequests: maxRequests,
		stamps:      queue.New(),
		now:         now,
	}
}

// CheckAndRecord evicts expired admissions and then either records a new one
// or rejects the call.
func (l *SlidingWindow) CheckAndRecord() Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)

	if l.stamps.Length() >= l.maxRequests {
		oldest := l.stamps.Peek().(time.Time)
		resetIn := oldest.Add(l.window).Sub(now)
		if resetIn < 0 {
			resetIn = 0
		}
		return Result{Allowed: false, Remaining: 0, ResetIn: resetIn}
	}

	l.stamps.Add(now)
	return Result{Allowed: true, Remaining: l.maxRequests - l.stamps.Length()}
}

// UsageLevel returns the fraction of the quota consumed in the current window.
func (l *SlidingWindow) UsageLevel() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict(l.now())
	return float64(l.stamps.Length()) / float64(l.maxRequests)
}

func (l *SlidingWindow) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	for l.stamps.Length() > 0 {
		if !l.stamps.Peek().(time.Time).Before(cutoff) {
			return
		}
		l.stamps.Remove()
	}
}
