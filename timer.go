package fiberrt

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// TimerHandle identifies an armed timer for later cancellation. The top
// 32 bits carry the owning TimerWorker's group id and the bottom 32 bits
// its per-group sequence number, so a handle is unique across every
// group in a Runtime, not just within the group that issued it — this
// lets Runtime.CancelTimer route straight to the right group instead of
// guessing from a collision-prone per-group counter.
type TimerHandle uint64

func newTimerHandle(groupID int, seq uint64) TimerHandle {
	return TimerHandle(uint64(uint32(groupID))<<32 | (seq & 0xffffffff))
}

// groupID extracts the owning group's id from a handle previously
// returned by armAt.
func (h TimerHandle) groupID() int {
	return int(uint32(uint64(h) >> 32))
}

// timerEntry is one slot in a TimerWorker's min-heap, keyed by absolute
// deadline. cancelled entries are left in place and skipped at pop
// (lazy removal, spec.md §4.C default) rather than removed eagerly,
// since container/heap has no O(log n) arbitrary-element delete without
// tracking each entry's live heap index. heapIndex is kept up to date by
// the heap methods, but nothing removes entries by it: compaction drops
// cancelled entries by rebuilding the whole heap.
type timerEntry struct {
	handle    TimerHandle
	deadline  time.Time
	period    time.Duration // zero for one-shot
	fn        func()
	cancelled bool
	heapIndex int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}

// TimerWorker owns one scheduling group's deadline heap: spec.md §4.C.
// Ground truth for the lazy-removal-by-default / optional-compaction
// design is spec.md §9's open question, resolved in DESIGN.md #2.
type TimerWorker struct {
	groupID int
	clock   clockz.Clock

	mu                  sync.Mutex
	heap                timerHeap
	byHandle            map[TimerHandle]*timerEntry
	nextHandle          TimerHandle
	cancelled           int
	compactionThreshold float64

	stopped bool

	wake chan struct{}
	stop chan struct{}
	once sync.Once
}

// NewTimerWorker builds a TimerWorker for the given scheduling group id.
// A zero compactionThreshold disables proactive compaction (spec.md §9
// default: lazy removal only).
func NewTimerWorker(groupID int, clock clockz.Clock, compactionThreshold float64) *TimerWorker {
	if clock == nil {
		clock = clockz.RealClock
	}
	tw := &TimerWorker{
		groupID:             groupID,
		clock:               clock,
		byHandle:            make(map[TimerHandle]*timerEntry),
		compactionThreshold: compactionThreshold,
		wake:                make(chan struct{}, 1),
		stop:                make(chan struct{}),
	}
	heap.Init(&tw.heap)
	return tw
}

// arm schedules fn to run once, after d elapses. Called internally
// (Fiber.Sleep) where an already-stopping group degrades to a no-op
// rather than a reported error; see ArmTimer for the checked public form.
func (tw *TimerWorker) arm(d time.Duration, fn func()) TimerHandle {
	h, _ := tw.armAt(tw.clock.Now().Add(d), 0, fn)
	return h
}

// armPeriodic schedules fn to run repeatedly every d, starting after the
// first d elapses, until cancelled.
func (tw *TimerWorker) armPeriodic(d time.Duration, fn func()) TimerHandle {
	h, _ := tw.armAt(tw.clock.Now().Add(d), d, fn)
	return h
}

// armAt is the checked primitive backing arm/armPeriodic/ArmTimer. Per
// spec.md §4.C failure semantics, arming after Stop fails with
// runtime-stopped rather than silently queuing an entry nothing will
// ever pop.
func (tw *TimerWorker) armAt(deadline time.Time, period time.Duration, fn func()) (TimerHandle, error) {
	tw.mu.Lock()
	if tw.stopped {
		tw.mu.Unlock()
		return 0, ErrRuntimeStopped
	}
	tw.nextHandle++
	h := newTimerHandle(tw.groupID, uint64(tw.nextHandle))
	e := &timerEntry{handle: h, deadline: deadline, period: period, fn: fn}
	heap.Push(&tw.heap, e)
	tw.byHandle[h] = e
	heapSize := tw.heap.Len()
	tw.mu.Unlock()

	capitan.Info(context.Background(), SignalTimerArmed,
		FieldGroupID.Field(tw.groupID),
		FieldTimerHandle.Field(int(h)),
		FieldHeapSize.Field(heapSize),
	)
	tw.poke()
	return h, nil
}

// cancel marks a timer as cancelled. It is safe to call after the timer
// has already fired. Cancellation is lazy: the entry is removed from the
// heap the next time it is popped (or during a compaction pass), not
// immediately.
func (tw *TimerWorker) cancel(h TimerHandle) bool {
	tw.mu.Lock()
	e, ok := tw.byHandle[h]
	if !ok || e.cancelled {
		tw.mu.Unlock()
		return false
	}
	e.cancelled = true
	delete(tw.byHandle, h)
	tw.cancelled++
	shouldCompact := tw.compactionThreshold > 0 && tw.heap.Len() > 0 &&
		float64(tw.cancelled)/float64(tw.heap.Len()) >= tw.compactionThreshold
	tw.mu.Unlock()

	capitan.Info(context.Background(), SignalTimerCancelled,
		FieldGroupID.Field(tw.groupID),
		FieldTimerHandle.Field(int(h)),
	)

	if shouldCompact {
		tw.compact()
	}
	return true
}

// compact rebuilds the heap, dropping every cancelled entry. Triggered
// automatically by cancel once the cancelled fraction crosses
// compactionThreshold, or callable directly.
func (tw *TimerWorker) compact() {
	tw.mu.Lock()
	live := make(timerHeap, 0, len(tw.heap))
	for _, e := range tw.heap {
		if !e.cancelled {
			live = append(live, e)
		}
	}
	dropped := len(tw.heap) - len(live)
	tw.heap = live
	heap.Init(&tw.heap)
	tw.cancelled = 0
	heapSize := tw.heap.Len()
	tw.mu.Unlock()

	if dropped > 0 {
		capitan.Info(context.Background(), SignalTimerCompacted,
			FieldGroupID.Field(tw.groupID),
			FieldCompactedCount.Field(dropped),
			FieldHeapSize.Field(heapSize),
		)
	}
}

// Run drives the timer loop until Stop is called; intended to run on its
// own goroutine, one per scheduling group.
func (tw *TimerWorker) Run() {
	for {
		d, ready := tw.next()
		if d < 0 {
			select {
			case <-tw.wake:
				continue
			case <-tw.stop:
				return
			}
		}
		if !ready {
			select {
			case <-tw.clock.After(d):
			case <-tw.wake:
			case <-tw.stop:
				return
			}
			continue
		}
		tw.fireReady()
	}
}

// next reports how long until the earliest live entry fires. A negative
// duration with ready=false means the heap is empty; ready=true means
// there is at least one entry whose deadline has already passed.
func (tw *TimerWorker) next() (d time.Duration, ready bool) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	for tw.heap.Len() > 0 && tw.heap[0].cancelled {
		heap.Pop(&tw.heap)
	}
	if tw.heap.Len() == 0 {
		return -1, false
	}
	delta := tw.heap[0].deadline.Sub(tw.clock.Now())
	if delta <= 0 {
		return 0, true
	}
	return delta, false
}

// fireReady pops and runs every entry whose deadline has passed,
// re-arming periodic entries for their next occurrence.
func (tw *TimerWorker) fireReady() {
	now := tw.clock.Now()
	var fired []*timerEntry

	tw.mu.Lock()
	for tw.heap.Len() > 0 {
		top := tw.heap[0]
		if top.cancelled {
			heap.Pop(&tw.heap)
			continue
		}
		if top.deadline.After(now) {
			break
		}
		heap.Pop(&tw.heap)
		if top.period == 0 {
			delete(tw.byHandle, top.handle)
		}
		fired = append(fired, top)
	}
	tw.mu.Unlock()

	for _, e := range fired {
		capitan.Info(context.Background(), SignalTimerFired,
			FieldGroupID.Field(tw.groupID),
			FieldTimerHandle.Field(int(e.handle)),
		)
		e.fn()
		if e.period > 0 {
			next := e.deadline.Add(e.period)
			if next.Before(now) {
				next = now.Add(e.period)
			}
			// Re-arm the same entry so the original handle keeps
			// cancelling it.
			tw.mu.Lock()
			if !tw.stopped && !e.cancelled {
				e.deadline = next
				heap.Push(&tw.heap, e)
			}
			tw.mu.Unlock()
			tw.poke()
		}
	}
}

func (tw *TimerWorker) poke() {
	select {
	case tw.wake <- struct{}{}:
	default:
	}
}

// Stop halts the timer loop and rejects any further arm attempts with
// runtime-stopped. Idempotent. Entries still in the heap when Stop is
// called are never fired — spec.md §4.C: "handles not observed before
// stop() are fired as cancelled (callback not invoked)".
func (tw *TimerWorker) Stop() {
	tw.once.Do(func() {
		tw.mu.Lock()
		tw.stopped = true
		tw.mu.Unlock()
		close(tw.stop)
	})
}

// Len reports the current heap size, including not-yet-lazily-removed
// cancelled entries; for tests and metrics.
func (tw *TimerWorker) Len() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.heap.Len()
}
