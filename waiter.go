package fiberrt

import (
	"time"

	"github.com/zoobzio/clockz"
)

// Waiter is a one-shot, reusable wake primitive: the Go analogue of
// abel's internal::Waiter, which abstracts over futex/semaphore/condvar
// backends (original_source abel/synchronization/internal/waiter.cc). A
// buffered channel of capacity 1 already compiles to the
// platform-optimal blocking primitive inside the Go runtime, so fiberrt
// needs no backend selection (see DESIGN.md Open Question 1): Post
// performs a non-blocking send, Wait performs a receive bounded by an
// optional deadline, and repeated Post calls before a matching Wait
// coalesce into a single pending wake, matching a futex word's
// saturating-post semantics.
type Waiter struct {
	ch    chan struct{}
	clock clockz.Clock
}

// NewWaiter constructs a Waiter. A nil clock defaults to clockz.RealClock.
func NewWaiter(clock clockz.Clock) *Waiter {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &Waiter{ch: make(chan struct{}, 1), clock: clock}
}

// Post wakes one pending (or future) Wait call. Safe to call from any
// goroutine, any number of times; excess posts before a Wait are
// coalesced rather than queued, matching a semaphore capped at 1.
func (w *Waiter) Post() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// Poke is an alias for Post used at call sites that are nudging a worker
// out of an idle park rather than delivering a specific wakeup reason
// (e.g. "new work may be available, go look"), matching the two call
// sites abel's Waiter::Wake documents for its futex backend.
func (w *Waiter) Poke() {
	w.Post()
}

// Wait blocks until Post is called, the deadline elapses, or done is
// closed, whichever comes first. A zero deadline means wait forever. It
// reports true if woken by Post, false on timeout or cancellation.
func (w *Waiter) Wait(deadline time.Time, done <-chan struct{}) bool {
	if deadline.IsZero() {
		select {
		case <-w.ch:
			return true
		case <-done:
			return false
		}
	}

	d := deadline.Sub(w.clock.Now())
	if d <= 0 {
		select {
		case <-w.ch:
			return true
		default:
			return false
		}
	}

	select {
	case <-w.ch:
		return true
	case <-w.clock.After(d):
		return false
	case <-done:
		return false
	}
}
