package fiberrt

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
)

// GroupEvent is emitted through a SchedulingGroup's Hooks for external
// lifecycle observers (tests, admin tooling), the same pattern the
// teacher wires per-connector hooks with (handle.go's hookz usage).
type GroupEvent struct {
	GroupID int
	Kind    string // "started", "stopped"
}

// hookz event keys for GroupEvent, one per SchedulingGroup lifecycle
// transition, matching the teacher's one-hookz.Key-per-event convention
// (handle.go's HandleEventError/HandleEventHandled/HandleEventHandlerError).
const (
	GroupEventStarted = hookz.Key("group.started")
	GroupEventStopped = hookz.Key("group.stopped")
)

// victim is one entry in a SchedulingGroup's steal target list: another
// group this one may steal from, at a configured frequency.
type victim struct {
	group *SchedulingGroup
	ratio int // attempt a steal once every `ratio` idle cycles against this victim
}

// SchedulingGroup is the unit of NUMA locality: a run queue, a timer
// worker, and a pool of fiber workers, all confined (when
// Config.EnableNUMAAware is set) to the CPUs of one NumaNode (spec.md §3
// SchedulingGroup, §4.D).
type SchedulingGroup struct {
	id      int
	nodeID  int
	cpus    []int
	runq    *RunQueue
	timer   *TimerWorker
	workers []*FiberWorker
	victims []victim

	stopping atomic.Bool
	wg       sync.WaitGroup

	hooks *hookz.Hooks[GroupEvent]
}

// newSchedulingGroup builds an empty group; addWorker attaches its
// FiberWorkers afterward, once all groups in the runtime exist and can
// reference each other as steal victims.
func newSchedulingGroup(id, nodeID int, cpus []int, clock clockz.Clock, compactionThreshold float64) *SchedulingGroup {
	return &SchedulingGroup{
		id:     id,
		nodeID: nodeID,
		cpus:   append([]int(nil), cpus...),
		runq:   NewRunQueue(64),
		timer:  NewTimerWorker(id, clock, compactionThreshold),
		hooks:  hookz.New[GroupEvent](),
	}
}

// ID returns the group's process-unique index.
func (g *SchedulingGroup) ID() int { return g.id }

// NodeID returns the NUMA node this group is confined to.
func (g *SchedulingGroup) NodeID() int { return g.nodeID }

// CPUs returns the logical CPUs workers in this group may run on.
func (g *SchedulingGroup) CPUs() []int { return append([]int(nil), g.cpus...) }

// setVictims installs this group's steal-target list, built once by the
// runtime bootstrap from Config's intra/cross-node ratios.
func (g *SchedulingGroup) setVictims(vs []victim) { g.victims = vs }

// addWorker attaches a FiberWorker to this group's pool; called during
// bootstrap before Start.
func (g *SchedulingGroup) addWorker(w *FiberWorker) {
	g.workers = append(g.workers, w)
}

// Start launches the group's timer loop and every attached FiberWorker on
// its own goroutine.
func (g *SchedulingGroup) Start() {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.timer.Run()
	}()

	for _, w := range g.workers {
		g.wg.Add(1)
		worker := w
		go func() {
			defer g.wg.Done()
			worker.run()
		}()
	}

	capitan.Info(context.Background(), SignalGroupStarted,
		FieldGroupID.Field(g.id),
		FieldNodeID.Field(g.nodeID),
	)
	_ = g.hooks.Emit(context.Background(), GroupEventStarted, GroupEvent{GroupID: g.id, Kind: "started"})
}

// Schedule enqueues a fresh fiber for this group to run and pokes every
// worker in the group so a parked one notices it.
func (g *SchedulingGroup) Schedule(fn FiberFunc) *Fiber {
	f := NewFiber(g, fn)
	g.runq.PushTail(f)
	for _, w := range g.workers {
		w.poke()
	}
	return f
}

// requeue re-enqueues a fiber that just yielded, slept, or was woken from
// a park, and nudges a worker to look for it.
func (g *SchedulingGroup) requeue(f *Fiber) {
	g.runq.PushTail(f)
	for _, w := range g.workers {
		w.poke()
	}
}

// popLocal is the fast path a worker uses to pick its own group's next
// ready fiber (FIFO: oldest submission first, per-producer order
// preserved per spec.md §5).
func (g *SchedulingGroup) popLocal() (*Fiber, bool) {
	return g.runq.PopHead()
}

// steal attempts to take up to max fibers from one victim group's queue,
// chosen by the caller (a FiberWorker in STEAL state) according to its
// per-victim idle-cycle counters. Returns the stolen fibers, possibly
// empty.
func (g *SchedulingGroup) steal(from *SchedulingGroup, max int) []*Fiber {
	stolen := from.runq.StealMany(max)
	if len(stolen) > 0 {
		capitan.Info(context.Background(), SignalWorkerStole,
			FieldGroupID.Field(g.id),
			FieldVictimGroupID.Field(from.id),
			FieldStolenCount.Field(len(stolen)),
		)
	}
	return stolen
}

// ArmTimer arms a one-shot timer on this group's TimerWorker, firing fn
// (posted onto this group's run queue as a fresh fiber, per spec.md §4.C
// "it does not run the callback on the timer thread") at deadline.
// Arming after the group has stopped fails with ErrRuntimeStopped.
func (g *SchedulingGroup) ArmTimer(deadline time.Time, fn func()) (TimerHandle, error) {
	return g.timer.armAt(deadline, 0, func() {
		g.Schedule(func(fc *FiberContext) { fn() })
	})
}

// ArmPeriodicTimer arms a recurring timer that re-arms itself every
// period, measured from its scheduled (not actual) deadline so drift
// does not accumulate (spec.md §4.C arm_periodic).
func (g *SchedulingGroup) ArmPeriodicTimer(period time.Duration, fn func()) (TimerHandle, error) {
	return g.timer.armAt(g.timer.clock.Now().Add(period), period, func() {
		g.Schedule(func(fc *FiberContext) { fn() })
	})
}

// CancelTimer marks a previously armed timer as cancelled, returning
// whether the cancellation observed the callback as not-yet-fired
// (spec.md §4.C cancel).
func (g *SchedulingGroup) CancelTimer(h TimerHandle) bool {
	return g.timer.cancel(h)
}

// victimList returns this group's configured steal-target list.
func (g *SchedulingGroup) victimList() []victim { return g.victims }

// Len reports the current local run-queue depth, for tests and metrics.
func (g *SchedulingGroup) Len() int { return g.runq.Len() }

// Stopping reports whether Stop has been called.
func (g *SchedulingGroup) Stopping() bool { return g.stopping.Load() }

// Stop signals every worker in the group to exit once it finds no local
// or stealable work left, and stops the timer loop. It does not block;
// call Join to wait for completion.
func (g *SchedulingGroup) Stop() {
	if !g.stopping.CompareAndSwap(false, true) {
		return
	}
	for _, w := range g.workers {
		w.requestStop()
	}
	g.timer.Stop()

	capitan.Info(context.Background(), SignalGroupStopped,
		FieldGroupID.Field(g.id),
	)
	_ = g.hooks.Emit(context.Background(), GroupEventStopped, GroupEvent{GroupID: g.id, Kind: "stopped"})
}

// Join blocks until every worker goroutine and the timer loop have
// returned.
func (g *SchedulingGroup) Join() {
	g.wg.Wait()
}

// Hooks exposes the group's lifecycle event stream for external
// listeners (capitan.Hook-style usage, but scoped per-group via hookz
// rather than global per-signal, matching the teacher's per-connector
// hookz field convention in handle.go/workerpool.go).
func (g *SchedulingGroup) Hooks() *hookz.Hooks[GroupEvent] {
	return g.hooks
}
