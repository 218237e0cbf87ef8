package fiberrt

import (
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestTimerWorker(t *testing.T) {
	t.Run("Arm Fires Once After The Clock Advances", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		tw := NewTimerWorker(0, clock, 0)
		go tw.Run()
		defer tw.Stop()

		fired := make(chan struct{}, 1)
		tw.arm(10*time.Millisecond, func() { fired <- struct{}{} })

		clock.BlockUntilReady()
		clock.Advance(10 * time.Millisecond)

		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("timer never fired")
		}
	})

	t.Run("ArmPeriodic Fires Repeatedly", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		tw := NewTimerWorker(0, clock, 0)
		go tw.Run()
		defer tw.Stop()

		fired := make(chan struct{}, 8)
		tw.armPeriodic(10*time.Millisecond, func() { fired <- struct{}{} })

		for i := 0; i < 3; i++ {
			clock.BlockUntilReady()
			clock.Advance(10 * time.Millisecond)
			select {
			case <-fired:
			case <-time.After(time.Second):
				t.Fatalf("periodic timer did not fire occurrence %d", i+1)
			}
		}
	})

	t.Run("Cancel Before Fire Prevents The Callback", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		tw := NewTimerWorker(0, clock, 0)
		go tw.Run()
		defer tw.Stop()

		fired := make(chan struct{}, 1)
		h := tw.arm(10*time.Millisecond, func() { fired <- struct{}{} })

		if !tw.cancel(h) {
			t.Fatal("expected cancel to report true for a live handle")
		}
		clock.Advance(time.Second)

		select {
		case <-fired:
			t.Fatal("cancelled timer must not fire")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("Cancel Is Idempotent", func(t *testing.T) {
		tw := NewTimerWorker(0, clockz.NewFakeClock(), 0)
		h := tw.arm(time.Second, func() {})
		if !tw.cancel(h) {
			t.Fatal("expected first cancel to succeed")
		}
		if tw.cancel(h) {
			t.Error("expected second cancel of the same handle to report false")
		}
	})

	t.Run("Cancel Of An Unknown Handle Reports False", func(t *testing.T) {
		tw := NewTimerWorker(0, clockz.NewFakeClock(), 0)
		if tw.cancel(TimerHandle(999)) {
			t.Error("expected cancel of an unarmed handle to report false")
		}
	})

	t.Run("Compact Drops Cancelled Entries From The Heap", func(t *testing.T) {
		tw := NewTimerWorker(0, clockz.NewFakeClock(), 0)
		h1 := tw.arm(time.Second, func() {})
		tw.arm(2*time.Second, func() {})
		tw.cancel(h1)

		if tw.Len() != 2 {
			t.Fatalf("expected lazy removal to leave the cancelled entry in place, Len=%d", tw.Len())
		}
		tw.compact()
		if tw.Len() != 1 {
			t.Errorf("expected compact to drop the cancelled entry, Len=%d", tw.Len())
		}
	})

	t.Run("Cancel Triggers Automatic Compaction Above Threshold", func(t *testing.T) {
		tw := NewTimerWorker(0, clockz.NewFakeClock(), 0.5)
		h1 := tw.arm(time.Second, func() {})
		tw.arm(2*time.Second, func() {})

		tw.cancel(h1) // 1 cancelled / 2 total = 0.5 >= threshold

		if tw.Len() != 1 {
			t.Errorf("expected automatic compaction to have already dropped the cancelled entry, Len=%d", tw.Len())
		}
	})

	t.Run("Stop Is Idempotent And Halts The Loop", func(t *testing.T) {
		tw := NewTimerWorker(0, clockz.NewFakeClock(), 0)
		go tw.Run()
		tw.Stop()
		tw.Stop()
	})
}
