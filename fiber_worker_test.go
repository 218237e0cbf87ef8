package fiberrt

import (
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestFiberWorkerLifecycle(t *testing.T) {
	t.Run("Worker Runs Scheduled Fibers And Exits On Stop", func(t *testing.T) {
		g := newSchedulingGroup(0, 0, []int{0}, clockz.NewFakeClock(), 0)
		w := NewFiberWorker(0, g, false, 0, nil)
		g.addWorker(w)
		g.Start()

		const n = 50
		done := make(chan struct{}, n)
		for i := 0; i < n; i++ {
			g.Schedule(func(fc *FiberContext) { done <- struct{}{} })
		}

		for i := 0; i < n; i++ {
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatalf("only %d/%d fibers completed before timeout", i, n)
			}
		}

		g.Stop()
		joined := make(chan struct{})
		go func() {
			g.Join()
			close(joined)
		}()
		select {
		case <-joined:
		case <-time.After(2 * time.Second):
			t.Fatal("group failed to join after Stop")
		}

		if w.State() != workerExit {
			t.Errorf("expected worker to end in exit state, got %v", w.State())
		}
	})

	t.Run("Idle Worker Steals From A Busy Victim", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		busy := newSchedulingGroup(0, 0, []int{0}, clock, 0)
		idle := newSchedulingGroup(1, 0, []int{1}, clock, 0)
		idle.setVictims([]victim{{group: busy, ratio: 1}})

		idleWorker := NewFiberWorker(0, idle, false, 0, nil)
		idle.addWorker(idleWorker)
		idle.Start()
		defer func() {
			idle.Stop()
			idle.Join()
		}()

		ran := make(chan struct{})
		busy.Schedule(func(fc *FiberContext) { close(ran) })

		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatal("expected the idle group's worker to steal and run the busy group's fiber")
		}
	})
}
