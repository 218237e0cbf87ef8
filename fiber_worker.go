package fiberrt

import (
	"context"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/tracez"
)

// workerState mirrors the PICK/RUN/STEAL/PARK/EXIT state machine spec.md
// §4.E describes, and the G/P/M park-and-handoff shape in
// other_examples/9a65c97f_..._toysched5.go.go (grounded fix applied: this
// implementation never releases a lock it did not itself acquire, the bug
// that reference file calls out explicitly).
type workerState int32

const (
	workerPick workerState = iota
	workerRun
	workerSteal
	workerPark
	workerExit
)

// FiberWorker drives one OS thread (or, absent CPU pinning, one goroutine
// the Go scheduler is free to move) that dispatches fibers from its
// SchedulingGroup's run queue, stealing from configured victims when
// idle, and parking when there is nothing to do anywhere (spec.md §4.E).
type FiberWorker struct {
	index int
	group *SchedulingGroup

	pinCPU       int
	pinRequested bool

	state atomic.Int32
	stop  atomic.Bool

	waiter *Waiter

	// stealCounters tracks, per victim index, how many idle cycles have
	// elapsed since the last steal attempt against that victim; a steal
	// is attempted once the counter reaches the victim's configured
	// ratio (DESIGN.md Open Question 4 resolution for steal_every_n).
	stealCounters []int

	tracer *tracez.Tracer
}

// NewFiberWorker builds a worker for the given group and index. If pin is
// true, the worker pins its OS thread to pinCPU via runtime.LockOSThread
// + SetCurrentThreadAffinity once its goroutine starts.
func NewFiberWorker(index int, group *SchedulingGroup, pin bool, pinCPU int, tracer *tracez.Tracer) *FiberWorker {
	return &FiberWorker{
		index:        index,
		group:        group,
		pinCPU:       pinCPU,
		pinRequested: pin,
		waiter:       NewWaiter(nil),
		tracer:       tracer,
	}
}

// poke wakes the worker if it is currently parked with nothing to do.
func (w *FiberWorker) poke() {
	w.waiter.Poke()
}

// requestStop asks the worker to exit at the first PICK that finds no
// local or stealable work, and wakes it if parked so it notices promptly.
func (w *FiberWorker) requestStop() {
	w.stop.Store(true)
	w.waiter.Post()
}

// State reports the worker's current state, for tests and metrics.
func (w *FiberWorker) State() workerState {
	return workerState(w.state.Load())
}

// run is the worker's main loop; Start launches it on its own goroutine.
func (w *FiberWorker) run() {
	if w.pinRequested {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		_ = SetCurrentThreadAffinity([]int{w.pinCPU})
	}

	w.stealCounters = make([]int, len(w.group.victimList()))

	for {
		w.state.Store(int32(workerPick))

		if f, ok := w.group.popLocal(); ok {
			w.dispatch(f)
			continue
		}

		if f, ok := w.trySteal(); ok {
			w.dispatch(f)
			continue
		}

		// Only exit once stopping and both the local queue and every
		// victim have yielded nothing, so a fiber racing Stop() is
		// always drained rather than dropped (spec.md §3, §4.E, §4.F).
		if w.stop.Load() {
			w.state.Store(int32(workerExit))
			capitan.Info(context.Background(), SignalWorkerExiting,
				FieldGroupID.Field(w.group.id),
				FieldWorkerIdx.Field(w.index),
			)
			return
		}

		w.park()
	}
}

// dispatch runs one fiber to its next suspension point, re-enqueuing it
// if it isn't finished, within a tracez span the way the teacher
// instruments connector dispatch (retry.go/concurrent.go's
// tracer.StartSpan usage).
func (w *FiberWorker) dispatch(f *Fiber) {
	w.state.Store(int32(workerRun))

	var span *tracez.Span
	ctx := context.Background()
	if w.group != nil {
		ctx = context.WithValue(ctx, schedulingGroupCtxKey{}, w.group)
	}
	if w.tracer != nil {
		ctx, span = w.tracer.StartSpan(ctx, DispatchSpan)
		span.SetTag(TagGroupID, strconv.Itoa(w.group.id))
		span.SetTag(TagWorkerIndex, strconv.Itoa(w.index))
	}

	f.Dispatch(ctx)

	if span != nil {
		span.Finish()
	}

	if !f.Finished() {
		w.group.requeue(f)
	}
}

// trySteal consults the per-victim idle-cycle counters and, once one
// reaches its configured ratio, attempts to steal one fiber from that
// victim. It cycles through all victims once per call, trying every victim
// whose counter matures in turn and returning the first fiber stolen,
// matching spec.md §9's "frequency = steal attempts per idle cycle"
// resolution.
func (w *FiberWorker) trySteal() (*Fiber, bool) {
	victims := w.group.victimList()
	if len(victims) == 0 {
		return nil, false
	}

	w.state.Store(int32(workerSteal))

	for i, v := range victims {
		if v.ratio <= 0 {
			continue
		}
		w.stealCounters[i]++
		if w.stealCounters[i] < v.ratio {
			continue
		}
		w.stealCounters[i] = 0

		stolen := w.group.steal(v.group, 1)
		if len(stolen) > 0 {
			for _, extra := range stolen[1:] {
				w.group.requeue(extra)
			}
			return stolen[0], true
		}
	}
	return nil, false
}

// park blocks the worker until poked (new local work, a steal wakeup
// hint, or shutdown) or a short timeout elapses, bounding how long a
// worker can sit idle before re-checking for work that arrived without a
// poke (belt-and-suspenders against a missed wakeup).
func (w *FiberWorker) park() {
	w.state.Store(int32(workerPark))
	capitan.Info(context.Background(), SignalWorkerParked,
		FieldGroupID.Field(w.group.id),
		FieldWorkerIdx.Field(w.index),
	)

	w.waiter.Wait(time.Now().Add(10*time.Millisecond), nil)

	capitan.Info(context.Background(), SignalWorkerWoke,
		FieldGroupID.Field(w.group.id),
		FieldWorkerIdx.Field(w.index),
	)
}

// schedulingGroupCtxKey is the context.Context key a dispatched fiber's
// context carries its owning SchedulingGroup under (DESIGN.md Open
// Question 3, the TLS-caching substitute for nearest_scheduling_group).
type schedulingGroupCtxKey struct{}
