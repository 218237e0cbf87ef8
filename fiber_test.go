package fiberrt

import (
	"context"
	"testing"
	"time"
)

func TestFiberDispatch(t *testing.T) {
	t.Run("Runs To Completion Without Suspending", func(t *testing.T) {
		ran := false
		f := NewFiber(nil, func(fc *FiberContext) { ran = true })

		f.Dispatch(context.Background())

		if !ran {
			t.Fatal("expected fiber body to run")
		}
		if !f.Finished() {
			t.Error("expected fiber to be finished")
		}
		if f.State() != FiberFinished {
			t.Errorf("expected state finished, got %s", f.State())
		}
	})

	t.Run("Yield Suspends And Resumes On The Next Dispatch", func(t *testing.T) {
		var stage int
		f := NewFiber(nil, func(fc *FiberContext) {
			stage = 1
			fc.Yield()
			stage = 2
		})

		f.Dispatch(context.Background())
		if stage != 1 {
			t.Fatalf("expected stage 1 after first dispatch, got %d", stage)
		}
		if f.Finished() {
			t.Fatal("expected fiber not finished after yielding")
		}
		if f.State() != FiberSuspended {
			t.Errorf("expected state suspended, got %s", f.State())
		}

		f.Dispatch(context.Background())
		if stage != 2 {
			t.Fatalf("expected stage 2 after second dispatch, got %d", stage)
		}
		if !f.Finished() {
			t.Error("expected fiber finished after second dispatch")
		}
	})

	t.Run("Context Is Available Inside The Fiber Body", func(t *testing.T) {
		type key struct{}
		ctx := context.WithValue(context.Background(), key{}, "value")
		var seen any
		f := NewFiber(nil, func(fc *FiberContext) {
			seen = fc.Context().Value(key{})
		})
		f.Dispatch(ctx)
		if seen != "value" {
			t.Errorf("expected fiber to see context value, got %v", seen)
		}
	})

	t.Run("Each Fiber Gets A Unique Id", func(t *testing.T) {
		a := NewFiber(nil, func(fc *FiberContext) {})
		b := NewFiber(nil, func(fc *FiberContext) {})
		if a.ID() == b.ID() {
			t.Error("expected distinct fiber ids")
		}
	})

	t.Run("Park Times Out When Never Posted", func(t *testing.T) {
		w := NewWaiter(nil)
		var woke bool
		f := NewFiber(newTestGroup(t), func(fc *FiberContext) {
			woke = fc.Park(w, 10*time.Millisecond)
		})
		f.Dispatch(context.Background())
		redispatchAfterPark(t, f)
		if woke {
			t.Error("expected Park to report timeout (false) when never posted")
		}
	})

	t.Run("Park Reports Woken When Posted Before Timeout", func(t *testing.T) {
		w := NewWaiter(nil)
		var woke bool
		f := NewFiber(newTestGroup(t), func(fc *FiberContext) {
			woke = fc.Park(w, time.Second)
		})

		go func() {
			time.Sleep(5 * time.Millisecond)
			w.Post()
		}()

		f.Dispatch(context.Background())
		redispatchAfterPark(t, f)
		if !woke {
			t.Error("expected Park to report woken (true) when posted before the deadline")
		}
	})
}

// newTestGroup builds a minimal SchedulingGroup usable as a Fiber's owner
// in tests that exercise Sleep/Park without bootstrapping a full Runtime.
func newTestGroup(t *testing.T) *SchedulingGroup {
	t.Helper()
	g := newSchedulingGroup(0, 0, nil, nil, 0)
	return g
}

// redispatchAfterPark waits for Park's watcher to re-enqueue f on its
// group's run queue, then dispatches f again so Park can return its result.
// The first Dispatch only runs f up to the Park suspension point.
func redispatchAfterPark(t *testing.T, f *Fiber) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if got, ok := f.group.popLocal(); ok {
			if got != f {
				t.Fatalf("expected the parked fiber back on its group's run queue, got fiber %d", got.ID())
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Park never re-enqueued the fiber")
		}
		time.Sleep(time.Millisecond)
	}
	f.Dispatch(context.Background())
}
