package fiberrt

import (
	"context"
	"sync/atomic"
	"time"
)

// deadlineFrom converts a relative duration into an absolute time.Time
// for Waiter.Wait, treating a non-positive duration as "wait forever"
// (the zero time.Time). Unlike Sleep, which arms its wakeup through the
// scheduling group's TimerWorker (and so honors Config.Clock, including a
// fake clock in tests), Park's own deadline is measured against real wall
// time; tests exercising Park's timeout path should use short real
// durations rather than a fake clock.
func deadlineFrom(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}

// FiberState is the lifecycle state of a Fiber: Ready until its first
// Dispatch, then cycling Running<->Suspended every time it yields and is
// later redispatched, and finally Finished (spec.md §3 Fiber, §4.E).
type FiberState int32

const (
	FiberReady FiberState = iota
	FiberRunning
	FiberSuspended
	FiberFinished
)

func (s FiberState) String() string {
	switch s {
	case FiberReady:
		return "ready"
	case FiberRunning:
		return "running"
	case FiberSuspended:
		return "suspended"
	case FiberFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// FiberFunc is the body of a fiber. It receives a *FiberContext, the
// fiber's only means of voluntarily suspending itself.
type FiberFunc func(fc *FiberContext)

// Fiber is a cooperatively scheduled unit of work. Unlike abel's
// fiber_entity, which context-switches a real machine stack via
// assembly, a Go Fiber IS a goroutine: "switching in" a fiber means
// sending on its resume channel and waiting on its pause channel, and
// "switching out" means the fiber goroutine blocking on its own resume
// channel inside FiberContext.Yield/Sleep/Park. The net effect — one
// logical thread of control, handed back and forth between the fiber and
// its dispatching worker, with the worker free to run other fibers while
// this one is suspended — is the same externally observable contract as
// a real stack switch, built from the idiomatic Go primitive instead of
// hand-rolled assembly (DESIGN.md #8).
type Fiber struct {
	id    uint64
	group *SchedulingGroup

	state atomic.Int32

	// resume wakes the fiber goroutine to run (or re-run) up to its next
	// suspension point. paused signals back to the dispatcher that the
	// fiber has suspended (or finished) and control has returned.
	resume chan struct{}
	paused chan struct{}

	fn   FiberFunc
	done atomic.Bool

	ctx context.Context
}

var fiberIDs atomic.Uint64

// NewFiber allocates a Fiber bound to the given body and scheduling
// group, but does not start its goroutine; Dispatch does that on first
// run.
func NewFiber(group *SchedulingGroup, fn FiberFunc) *Fiber {
	f := &Fiber{
		id:     fiberIDs.Add(1),
		group:  group,
		resume: make(chan struct{}),
		paused: make(chan struct{}),
		fn:     fn,
	}
	f.state.Store(int32(FiberReady))
	return f
}

// ID returns the fiber's process-unique identifier.
func (f *Fiber) ID() uint64 { return f.id }

// State returns the fiber's current lifecycle state.
func (f *Fiber) State() FiberState { return FiberState(f.state.Load()) }

// Finished reports whether the fiber's body has returned.
func (f *Fiber) Finished() bool { return f.done.Load() }

// Dispatch runs the fiber until its next suspension point or completion,
// blocking the calling goroutine (a FiberWorker) until one of those
// happens. On the very first Dispatch it starts the fiber's goroutine; on
// subsequent calls it resumes a goroutine already parked inside Yield,
// Sleep, or Park.
func (f *Fiber) Dispatch(ctx context.Context) {
	f.state.Store(int32(FiberRunning))

	if f.ctx == nil {
		f.ctx = ctx
		go f.run()
	} else {
		f.ctx = ctx
		f.resume <- struct{}{}
	}

	<-f.paused

	if !f.done.Load() && f.State() == FiberRunning {
		f.state.Store(int32(FiberSuspended))
	}
}

func (f *Fiber) run() {
	fc := &FiberContext{fiber: f}
	f.fn(fc)
	f.done.Store(true)
	f.state.Store(int32(FiberFinished))
	f.paused <- struct{}{}
}

// suspend is called by FiberContext from inside the fiber's own
// goroutine: it reports completion of the current dispatch to the
// worker and blocks until the worker calls Dispatch again.
func (f *Fiber) suspend() {
	f.paused <- struct{}{}
	<-f.resume
}

// FiberContext is the handle a running fiber uses to voluntarily give up
// the processor. It is the Go substitute for abel's
// fiber::this_fiber_context() thread-local accessor (spec.md §4.E):
// rather than a global lookup, it is threaded explicitly to the fiber's
// body as an argument, which is both idiomatic Go and race-free by
// construction.
type FiberContext struct {
	fiber *Fiber
}

// Context returns the context.Context most recently supplied to Dispatch,
// carrying the owning SchedulingGroup as a value (DESIGN.md Open Question
// 3, the context-propagation substitute for thread-local caching).
func (fc *FiberContext) Context() context.Context {
	return fc.fiber.ctx
}

// Yield voluntarily suspends the fiber, allowing its worker to run other
// ready fibers, and returns once the fiber is redispatched. The caller is
// responsible for having already re-enqueued this fiber (typically the
// worker does so immediately after Dispatch returns with a non-finished
// state); Yield itself only performs the suspend/resume handshake.
func (fc *FiberContext) Yield() {
	fc.fiber.suspend()
}

// Sleep suspends the fiber and asks its scheduling group's TimerWorker to
// wake it (by re-enqueuing it onto a run queue) after d elapses.
func (fc *FiberContext) Sleep(d time.Duration) {
	group := fc.fiber.group
	if group == nil || group.timer == nil {
		fc.Yield()
		return
	}
	fiber := fc.fiber
	group.timer.arm(d, func() {
		group.requeue(fiber)
	})
	fc.fiber.suspend()
}

// Park suspends the fiber until w.Post() is called or, if deadline is
// non-zero, until the deadline elapses, then reports true if woken, false
// on timeout. Unlike Yield and Sleep, the actual blocking wait happens on
// a background watcher goroutine rather than the fiber's own goroutine,
// because the fiber goroutine itself must be parked on f.resume (via
// suspend) so a worker can redispatch other fibers in the meantime; the
// watcher only re-enqueues this fiber once the wait resolves, handing the
// outcome back through wokeResult, which is safe to read once this
// function resumes because the enqueue/dequeue round trip through
// RunQueue's mutex establishes happens-before.
func (fc *FiberContext) Park(w *Waiter, deadline time.Duration) bool {
	fiber := fc.fiber
	var woke bool
	go func() {
		woke = w.Wait(deadlineFrom(deadline), nil)
		fiber.group.requeue(fiber)
	}()
	fc.fiber.suspend()
	return woke
}
