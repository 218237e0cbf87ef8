package fiberrt

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/tracez"
)

// Runtime is the top-level fiber scheduling runtime: a set of
// SchedulingGroups, started and torn down together (spec.md §4.F,
// original_source abel/fiber/runtime.cc's start_runtime/terminate_runtime
// pair).
type Runtime struct {
	cfg    Config
	groups []*SchedulingGroup
	bufs   *bufferPools
	tracer *tracez.Tracer

	stopped atomic.Bool
}

// Start validates cfg, builds the scheduling-group topology (one flat set
// when EnableNUMAAware is false, one set per discovered NUMA node
// otherwise — mirroring StartWorkersUma/StartWorkersNuma in
// original_source abel/fiber/runtime.cc), wires each group's steal-victim
// list from the intra/cross-node ratios, and launches every worker and
// timer goroutine. The returned Runtime's Terminate is idempotent; Start
// itself produces a fresh Runtime on every call, mirroring
// start_runtime's one-shot bootstrap contract.
func Start(cfg Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rt := &Runtime{cfg: cfg, tracer: tracez.New()}

	groups, err := buildGroups(cfg)
	if err != nil {
		return nil, err
	}
	rt.groups = groups
	wireVictims(groups, cfg)
	attachWorkers(groups, cfg, rt.tracer)

	rt.bufs = newBufferPools(cfg)

	for _, g := range rt.groups {
		g.Start()
	}

	capitan.Info(context.Background(), SignalRuntimeStarted,
		FieldGroupCount.Field(len(rt.groups)),
		FieldWorkersPerGrp.Field(cfg.WorkersPerGroup),
		FieldNumaAware.Field(boolToInt(cfg.EnableNUMAAware)),
	)

	return rt, nil
}

// buildGroups constructs cfg.SchedulingGroups SchedulingGroups on every
// discovered node (NUMA-aware) or cfg.SchedulingGroups groups in total as
// a single flat node-0 set (UMA).
// Per spec.md §4.F step 3, each group is given a disjoint slice of its
// node's accessible CPUs ("compute the slice of CPUs the group owns"),
// not the full node CPU list shared across every group in it — see the
// §8 scenario 1 concrete example (2 groups over CPUs [0,1,2,3] split into
// disjoint pairs [0,1] and [2,3]).
func buildGroups(cfg Config) ([]*SchedulingGroup, error) {
	clock := cfg.clock()

	if !cfg.EnableNUMAAware {
		cpus, err := AccessibleCPUs(cfg)
		if err != nil {
			return nil, err
		}
		if err := checkMigrationPrecondition(cfg, len(cpus)); err != nil {
			return nil, err
		}
		groups := make([]*SchedulingGroup, cfg.SchedulingGroups)
		for i := range groups {
			groups[i] = newSchedulingGroup(i, 0, cpuSlice(cpus, i, cfg.SchedulingGroups), clock, cfg.TimerCompactionThreshold)
		}
		return groups, nil
	}

	nodes, err := AccessibleNodes(cfg)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, wrapf(KindConfigInvalid, nil, "numa-aware start requested but no accessible NUMA nodes were discovered")
	}

	var groups []*SchedulingGroup
	id := 0
	for _, node := range nodes {
		if err := checkMigrationPrecondition(cfg, len(node.LogicalCPUs)); err != nil {
			return nil, err
		}
		for i := 0; i < cfg.SchedulingGroups; i++ {
			groups = append(groups, newSchedulingGroup(id, node.NodeID, cpuSlice(node.LogicalCPUs, i, cfg.SchedulingGroups), clock, cfg.TimerCompactionThreshold))
			id++
		}
	}
	return groups, nil
}

// checkMigrationPrecondition enforces spec.md §4.F step 2: when CPU
// migration is disallowed, the pool of CPUs a group's slot is drawn from
// must have at least scheduling_groups × workers_per_group CPUs, or
// bootstrap fails with config-invalid rather than silently doubling up
// pins.
func checkMigrationPrecondition(cfg Config, available int) error {
	if !cfg.FiberWorkerDisallowCPUMigration {
		return nil
	}
	need := cfg.SchedulingGroups * cfg.WorkersPerGroup
	if available < need {
		return wrapf(KindConfigInvalid, nil,
			"fiber_worker_disallow_cpu_migration requires at least %d accessible CPUs (scheduling_groups × workers_per_group), got %d",
			need, available)
	}
	return nil
}

// cpuSlice returns the slot-th disjoint, contiguous, near-equal-sized
// partition of cpus across total slots (the "slice of CPUs the group
// owns" from spec.md §4.F step 3). Any remainder is distributed to the
// earliest slots one CPU at a time.
func cpuSlice(cpus []int, slot, total int) []int {
	if total <= 0 || len(cpus) == 0 {
		return nil
	}
	base := len(cpus) / total
	rem := len(cpus) % total
	start := slot*base + minInt(slot, rem)
	size := base
	if slot < rem {
		size++
	}
	end := start + size
	if start >= len(cpus) {
		return nil
	}
	if end > len(cpus) {
		end = len(cpus)
	}
	out := make([]int, end-start)
	copy(out, cpus[start:end])
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// wireVictims builds each group's steal-target list: every other group on
// the same node at cfg.WorkStealingRatio, every group on a different node
// at cfg.CrossNUMAWorkStealingRatio, self excluded. A zero ratio disables
// that tier entirely.
func wireVictims(groups []*SchedulingGroup, cfg Config) {
	for _, g := range groups {
		var victims []victim
		for _, other := range groups {
			if other.id == g.id {
				continue
			}
			ratio := cfg.CrossNUMAWorkStealingRatio
			if other.nodeID == g.nodeID {
				ratio = cfg.WorkStealingRatio
			}
			if ratio <= 0 {
				continue
			}
			victims = append(victims, victim{group: other, ratio: ratio})
		}
		g.setVictims(victims)
	}
}

// attachWorkers creates cfg.WorkersPerGroup FiberWorkers per group,
// assigning each a deterministic CPU from its group's affinity set when
// FiberWorkerDisallowCPUMigration is set (round-robin over the group's
// CPU list, so worker count need not match CPU count exactly).
func attachWorkers(groups []*SchedulingGroup, cfg Config, tracer *tracez.Tracer) {
	for _, g := range groups {
		cpus := g.CPUs()
		for i := 0; i < cfg.WorkersPerGroup; i++ {
			pin := cfg.FiberWorkerDisallowCPUMigration && len(cpus) > 0
			pinCPU := 0
			if pin {
				pinCPU = cpus[i%len(cpus)]
			}
			g.addWorker(NewFiberWorker(i, g, pin, pinCPU, tracer))
		}
	}
}

// Groups returns the runtime's scheduling groups, in id order.
func (rt *Runtime) Groups() []*SchedulingGroup {
	out := make([]*SchedulingGroup, len(rt.groups))
	copy(out, rt.groups)
	return out
}

// Schedule enqueues fn as a new fiber onto the scheduling group nearest
// the caller (see NearestSchedulingGroup), starting it the next time a
// worker in that group picks it up.
func (rt *Runtime) Schedule(ctx context.Context, fn FiberFunc) *Fiber {
	g := rt.NearestSchedulingGroup(ctx)
	return g.Schedule(fn)
}

// BufferPool returns the runtime's buffer-block allocator.
func (rt *Runtime) BufferPool() *bufferPools {
	return rt.bufs
}

// ArmTimer arms a one-shot timer on group's TimerWorker, matching the
// public scheduling API of spec.md §6 ("arm_timer(group, deadline,
// callback) -> handle").
func (rt *Runtime) ArmTimer(group *SchedulingGroup, deadline time.Time, fn func()) (TimerHandle, error) {
	return group.ArmTimer(deadline, fn)
}

// CancelTimer cancels a timer handle previously returned by ArmTimer,
// regardless of which group armed it (spec.md §6 "cancel_timer(handle) ->
// bool"). TimerHandle carries its owning group's id, so this routes
// straight to that group's TimerWorker rather than guessing from a
// per-group counter that could otherwise collide across groups.
func (rt *Runtime) CancelTimer(h TimerHandle) bool {
	id := h.groupID()
	if id < 0 || id >= len(rt.groups) {
		return false
	}
	return rt.groups[id].CancelTimer(h)
}

// Terminate stops every scheduling group and blocks until all of their
// worker and timer goroutines have exited. Idempotent.
func (rt *Runtime) Terminate() {
	if !rt.stopped.CompareAndSwap(false, true) {
		return
	}

	capitan.Info(context.Background(), SignalRuntimeTerminating,
		FieldGroupCount.Field(len(rt.groups)),
	)

	for _, g := range rt.groups {
		g.Stop()
	}
	for _, g := range rt.groups {
		g.Join()
	}

	capitan.Info(context.Background(), SignalRuntimeTerminated,
		FieldGroupCount.Field(len(rt.groups)),
	)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
