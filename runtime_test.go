package fiberrt

import (
	"context"
	"sort"
	"sync/atomic"
	"testing"
	"time"
)

func TestStartTerminate(t *testing.T) {
	t.Run("Start Rejects Invalid Configuration", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SchedulingGroups = 0
		if _, err := Start(cfg); err == nil {
			t.Fatal("expected Start to reject an invalid configuration")
		}
	})

	t.Run("Migration Disallowed Without Enough CPUs Fails Config-Invalid", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.FiberWorkerDisallowCPUMigration = true
		cfg.FiberWorkerAccessibleCPUs = []int{0, 1}
		cfg.SchedulingGroups = 2
		cfg.WorkersPerGroup = 2 // needs 4 CPUs, only 2 given

		_, err := Start(cfg)
		if err == nil {
			t.Fatal("expected config-invalid when pinned workers exceed accessible CPUs")
		}
		var sched *SchedError
		if se, ok := err.(*SchedError); ok {
			sched = se
		}
		if sched == nil || sched.Kind != KindConfigInvalid {
			t.Errorf("expected KindConfigInvalid, got %v", err)
		}
	})

	t.Run("Disjoint CPU Slices Across Groups, UMA Scenario From The Spec", func(t *testing.T) {
		// Config {numa=false, groups=2, workers=2, migration=false},
		// accessible CPUs = [0,1,2,3] -> 2 groups each pinned to a
		// disjoint pair.
		cfg := DefaultConfig()
		cfg.FiberWorkerAccessibleCPUs = []int{0, 1, 2, 3}
		cfg.SchedulingGroups = 2
		cfg.WorkersPerGroup = 2
		cfg.FiberWorkerDisallowCPUMigration = true

		rt, err := Start(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer rt.Terminate()

		if rt.GetSchedulingGroupCount() != 2 {
			t.Fatalf("expected 2 scheduling groups, got %d", rt.GetSchedulingGroupCount())
		}

		groups := rt.Groups()
		seen := map[int]bool{}
		for _, g := range groups {
			cpus := append([]int(nil), g.CPUs()...)
			sort.Ints(cpus)
			if len(cpus) != 2 {
				t.Fatalf("expected each group to own 2 CPUs, group %d got %v", g.ID(), cpus)
			}
			for _, c := range cpus {
				if seen[c] {
					t.Errorf("CPU %d assigned to more than one group", c)
				}
				seen[c] = true
			}
		}
		if len(seen) != 4 {
			t.Errorf("expected all 4 CPUs partitioned across groups, got %d distinct", len(seen))
		}
	})

	t.Run("Terminate Is Idempotent", func(t *testing.T) {
		rt, err := Start(DefaultConfig())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		rt.Terminate()
		rt.Terminate()
	})

	t.Run("Schedule After Start Runs A Fiber", func(t *testing.T) {
		rt, err := Start(DefaultConfig())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer rt.Terminate()

		done := make(chan struct{})
		rt.Schedule(context.Background(), func(fc *FiberContext) { close(done) })

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("scheduled fiber never ran")
		}
	})

	t.Run("Runtime-wide ArmTimer And CancelTimer", func(t *testing.T) {
		rt, err := Start(DefaultConfig())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer rt.Terminate()

		g := rt.Groups()[0]
		fired := make(chan struct{}, 1)
		h, err := rt.ArmTimer(g, time.Now().Add(time.Hour), func() { fired <- struct{}{} })
		if err != nil {
			t.Fatalf("unexpected error arming timer: %v", err)
		}
		if !rt.CancelTimer(h) {
			t.Fatal("expected CancelTimer to report true for a live handle")
		}
		if rt.CancelTimer(h) {
			t.Error("expected a second cancel of the same handle to report false")
		}
	})

	t.Run("CancelTimer Routes To The Arming Group Even With Matching Per-Group Sequence Numbers", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SchedulingGroups = 2
		cfg.WorkersPerGroup = 1
		rt, err := Start(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer rt.Terminate()

		g0, g1 := rt.Groups()[0], rt.Groups()[1]
		fired0 := make(chan struct{}, 1)
		fired1 := make(chan struct{}, 1)

		// Both groups issue their first handle here, so without group
		// tagging the two would collide.
		h0, err := rt.ArmTimer(g0, time.Now().Add(time.Hour), func() { fired0 <- struct{}{} })
		if err != nil {
			t.Fatalf("unexpected error arming timer on group 0: %v", err)
		}
		h1, err := rt.ArmTimer(g1, time.Now().Add(time.Hour), func() { fired1 <- struct{}{} })
		if err != nil {
			t.Fatalf("unexpected error arming timer on group 1: %v", err)
		}
		if h0 == h1 {
			t.Fatalf("expected distinct handles across groups, both were %v", h0)
		}

		if !rt.CancelTimer(h0) {
			t.Fatal("expected cancelling group 0's handle to succeed")
		}
		if g1.CancelTimer(h0) {
			t.Error("expected group 0's handle to be unknown to group 1's timer worker")
		}
		if !rt.CancelTimer(h1) {
			t.Fatal("expected cancelling group 1's handle to succeed")
		}
	})

	t.Run("Terminate Drains Without Dropping Fibers", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SchedulingGroups = 2
		cfg.WorkersPerGroup = 2
		rt, err := Start(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		const n = 200
		var completed atomic.Int32
		for i := 0; i < n; i++ {
			rt.Schedule(context.Background(), func(fc *FiberContext) {
				completed.Add(1)
			})
		}

		rt.Terminate()

		if got := completed.Load(); got != n {
			t.Errorf("expected all %d submitted fibers to complete before termination drained the queues, got %d", n, got)
		}
	})
}
