package fiberrt

import (
	"sort"
)

// NumaNode is a set of logical CPUs sharing a memory controller
// (spec.md §3 numa_node).
type NumaNode struct {
	NodeID      int
	LogicalCPUs []int
}

// platformAffinity is implemented per-GOOS in topology_linux.go and
// topology_other.go.
type platformAffinity interface {
	currentThreadAffinity() ([]int, error)
	setCurrentThreadAffinity(cpus []int) error
	nodeOfProcessor(cpu int) int
}

var platform platformAffinity = newPlatformAffinity()

// AccessibleCPUs returns the set of logical CPUs the process may bind to.
// Resolution order (spec.md §4.A): an explicit allow-list from cfg, else an
// explicit deny-list subtracted from the current thread's affinity, else
// the current thread's affinity alone. Returns a *SchedError of Kind
// KindConfigInvalid if both an allow-list and a deny-list are non-empty.
//
// The underlying OS affinity query is pure and memoized at first use
// (spec.md §4.A); callers that change the process affinity mask
// out-of-band after bootstrap should not rely on a fresh read.
func AccessibleCPUs(cfg Config) ([]int, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.FiberWorkerAccessibleCPUs) > 0 {
		return sortedCopy(cfg.FiberWorkerAccessibleCPUs), nil
	}

	current, err := platform.currentThreadAffinity()
	if err != nil {
		return nil, wrapf(KindAllocationFailed, err, "reading current thread affinity")
	}
	if len(current) == 0 {
		current = []int{0}
	}

	if len(cfg.FiberWorkerInaccessibleCPUs) > 0 {
		deny := make(map[int]struct{}, len(cfg.FiberWorkerInaccessibleCPUs))
		for _, c := range cfg.FiberWorkerInaccessibleCPUs {
			deny[c] = struct{}{}
		}
		allowed := current[:0:0]
		for _, c := range current {
			if _, excluded := deny[c]; !excluded {
				allowed = append(allowed, c)
			}
		}
		return sortedCopy(allowed), nil
	}

	return sortedCopy(current), nil
}

// AccessibleNodes groups AccessibleCPUs by the NUMA node each belongs to.
// On platforms lacking NUMA support (or when the node-mapping syscall is
// unavailable), it returns a single synthetic node 0 containing all
// accessible CPUs, matching spec.md §4.A's UMA fallback.
func AccessibleNodes(cfg Config) ([]NumaNode, error) {
	cpus, err := AccessibleCPUs(cfg)
	if err != nil {
		return nil, err
	}

	byNode := make(map[int][]int)
	for _, cpu := range cpus {
		node := platform.nodeOfProcessor(cpu)
		byNode[node] = append(byNode[node], cpu)
	}

	nodes := make([]NumaNode, 0, len(byNode))
	for id, nodeCPUs := range byNode {
		nodes = append(nodes, NumaNode{NodeID: id, LogicalCPUs: sortedCopy(nodeCPUs)})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeID < nodes[j].NodeID })
	return nodes, nil
}

// SetCurrentThreadAffinity pins the calling OS thread to the given logical
// CPUs. Callers that need this to take effect must first call
// runtime.LockOSThread, since Go's goroutine scheduler may otherwise move
// the calling goroutine to a different OS thread. On platforms where
// affinity is unsupported, this is a no-op returning nil.
func SetCurrentThreadAffinity(cpus []int) error {
	return platform.setCurrentThreadAffinity(cpus)
}

// GetCurrentThreadAffinity returns the CPU affinity mask. On Linux the
// mask is read once, on the first call from any thread, and every later
// call returns that memoized set rather than re-reading the calling
// thread's current mask; elsewhere it returns every CPU runtime.NumCPU
// reports.
func GetCurrentThreadAffinity() ([]int, error) {
	return platform.currentThreadAffinity()
}

// GetNodeOfProcessor returns the NUMA node id owning the given logical
// CPU, or 0 on platforms without NUMA support.
func GetNodeOfProcessor(cpu int) int {
	return platform.nodeOfProcessor(cpu)
}

func sortedCopy(in []int) []int {
	out := make([]int, len(in))
	copy(out, in)
	sort.Ints(out)
	return out
}
