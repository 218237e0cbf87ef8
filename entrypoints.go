package fiberrt

import (
	"context"
	"math/rand"
)

// NearestSchedulingGroup resolves the SchedulingGroup a caller should
// schedule onto (spec.md §4.G). When called from inside a dispatched
// fiber, ctx carries the group that dispatched it (set by FiberWorker via
// context.WithValue — DESIGN.md Open Question 3, the TLS-cache
// substitute) and that exact group is returned, giving a fiber's own
// follow-up scheduling calls the same cache-hit locality
// nearest_scheduling_group's thread_local gave the original. Called from
// a plain OS thread with no such value (e.g. the program's main
// goroutine bootstrapping the first fibers), it falls back to picking a
// uniformly random group (spec.md §4.G step 2): when NUMA awareness is
// enabled, restricted to groups on the caller's current NUMA node;
// otherwise from every group in the runtime.
func (rt *Runtime) NearestSchedulingGroup(ctx context.Context) *SchedulingGroup {
	if g, ok := ctx.Value(schedulingGroupCtxKey{}).(*SchedulingGroup); ok && g != nil {
		return g
	}
	if len(rt.groups) == 0 {
		return nil
	}

	candidates := rt.groups
	if rt.cfg.EnableNUMAAware {
		if local := rt.groupsOnCallerNode(); len(local) > 0 {
			candidates = local
		}
	}
	return candidates[rand.Intn(len(candidates))]
}

// groupsOnCallerNode returns the subset of rt.groups confined to the
// calling OS thread's current NUMA node, or nil if the affinity query
// fails or no group matches.
func (rt *Runtime) groupsOnCallerNode() []*SchedulingGroup {
	cpus, err := GetCurrentThreadAffinity()
	if err != nil || len(cpus) == 0 {
		return nil
	}
	node := GetNodeOfProcessor(cpus[0])

	var local []*SchedulingGroup
	for _, g := range rt.groups {
		if g.NodeID() == node {
			local = append(local, g)
		}
	}
	return local
}

// GetSchedulingGroupCount returns the total number of scheduling groups
// the runtime started.
func (rt *Runtime) GetSchedulingGroupCount() int {
	return len(rt.groups)
}

// GetSchedulingGroupSize returns the number of fiber workers attached to
// scheduling group i.
func (rt *Runtime) GetSchedulingGroupSize(i int) (int, error) {
	if i < 0 || i >= len(rt.groups) {
		return 0, ErrIndexOutOfBounds
	}
	return len(rt.groups[i].workers), nil
}

// GetSchedulingGroupAssignedNode returns the NUMA node id scheduling
// group i is confined to.
func (rt *Runtime) GetSchedulingGroupAssignedNode(i int) (int, error) {
	if i < 0 || i >= len(rt.groups) {
		return 0, ErrIndexOutOfBounds
	}
	return rt.groups[i].NodeID(), nil
}
