package fiberrt

import (
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestWaiter(t *testing.T) {
	t.Run("Wait Forever Returns True On Post", func(t *testing.T) {
		w := NewWaiter(nil)
		done := make(chan bool, 1)
		go func() {
			done <- w.Wait(time.Time{}, nil)
		}()
		w.Post()
		select {
		case woke := <-done:
			if !woke {
				t.Error("expected Wait to report true after Post")
			}
		case <-time.After(time.Second):
			t.Fatal("Wait never returned")
		}
	})

	t.Run("Wait Forever Returns False On Done", func(t *testing.T) {
		w := NewWaiter(nil)
		cancel := make(chan struct{})
		done := make(chan bool, 1)
		go func() {
			done <- w.Wait(time.Time{}, cancel)
		}()
		close(cancel)
		select {
		case woke := <-done:
			if woke {
				t.Error("expected Wait to report false after cancellation")
			}
		case <-time.After(time.Second):
			t.Fatal("Wait never returned")
		}
	})

	t.Run("Post Before Wait Coalesces", func(t *testing.T) {
		w := NewWaiter(nil)
		w.Post()
		w.Post()
		if !w.Wait(time.Time{}, nil) {
			t.Error("expected pending post to satisfy Wait")
		}
		// A second immediate Wait with a past deadline must not also see a
		// wake: two Posts coalesce into one pending slot, not two.
		if w.Wait(time.Now().Add(-time.Millisecond), nil) {
			t.Error("expected coalesced posts to be consumed by exactly one Wait")
		}
	})

	t.Run("Poke Is An Alias For Post", func(t *testing.T) {
		w := NewWaiter(nil)
		w.Poke()
		if !w.Wait(time.Time{}, nil) {
			t.Error("expected Poke to satisfy a subsequent Wait")
		}
	})

	t.Run("Past Deadline With No Pending Post Returns False Immediately", func(t *testing.T) {
		w := NewWaiter(nil)
		if w.Wait(time.Now().Add(-time.Second), nil) {
			t.Error("expected Wait with an already-elapsed deadline to report false")
		}
	})

	t.Run("Deadline Elapses Using Fake Clock", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		w := NewWaiter(clock)

		done := make(chan bool, 1)
		go func() {
			done <- w.Wait(clock.Now().Add(50*time.Millisecond), nil)
		}()

		time.Sleep(10 * time.Millisecond) // let the goroutine reach its select
		clock.Advance(50 * time.Millisecond)
		clock.BlockUntilReady()

		select {
		case woke := <-done:
			if woke {
				t.Error("expected Wait to time out, not be woken")
			}
		case <-time.After(time.Second):
			t.Fatal("Wait never returned after clock advance")
		}
	})
}
