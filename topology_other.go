//go:build !linux

package fiberrt

import "runtime"

// genericAffinity is the no-NUMA, no-affinity fallback used on platforms
// without a wired sched_getaffinity/sched_setaffinity equivalent, per
// spec.md §4.A ("when unsupported, a no-op returning success") and §6
// ("On platforms without NUMA these return trivial values").
type genericAffinity struct{}

func newPlatformAffinity() platformAffinity {
	return genericAffinity{}
}

func (genericAffinity) currentThreadAffinity() ([]int, error) {
	cpus := make([]int, runtime.NumCPU())
	for i := range cpus {
		cpus[i] = i
	}
	return cpus, nil
}

func (genericAffinity) setCurrentThreadAffinity([]int) error {
	return nil
}

func (genericAffinity) nodeOfProcessor(int) int {
	return 0
}
