//go:build linux

package fiberrt

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// maxProbedCPU bounds the bit scan over a CPUSet (golang.org/x/sys/unix
// supports up to 1024 CPUs per set); far beyond any real deployment.
const maxProbedCPU = 1024

// linuxAffinity implements platformAffinity using sched_getaffinity /
// sched_setaffinity, wired in from golang.org/x/sys/unix (the one
// non-SIMD, concretely wireable dependency contributed by
// janpfeifer-go-highway's go.mod; see DESIGN.md).
type linuxAffinity struct {
	once      sync.Once
	baseline  []int
	baselineE error
}

func newPlatformAffinity() platformAffinity {
	return &linuxAffinity{}
}

func (l *linuxAffinity) currentThreadAffinity() ([]int, error) {
	l.once.Do(func() {
		var set unix.CPUSet
		if err := unix.SchedGetaffinity(0, &set); err != nil {
			l.baselineE = err
			return
		}
		cpus := make([]int, 0, set.Count())
		for cpu := 0; cpu < maxProbedCPU; cpu++ {
			if set.IsSet(cpu) {
				cpus = append(cpus, cpu)
			}
		}
		l.baseline = cpus
	})
	if l.baselineE != nil {
		return nil, l.baselineE
	}
	out := make([]int, len(l.baseline))
	copy(out, l.baseline)
	return out, nil
}

func (l *linuxAffinity) setCurrentThreadAffinity(cpus []int) error {
	if len(cpus) == 0 {
		return nil
	}
	var set unix.CPUSet
	set.Zero()
	for _, cpu := range cpus {
		set.Set(cpu)
	}
	return unix.SchedSetaffinity(0, &set)
}

func (l *linuxAffinity) nodeOfProcessor(cpu int) int {
	node, err := readSysfsNodeOfCPU(cpu)
	if err != nil {
		return 0
	}
	return node
}

// readSysfsNodeOfCPU reads /sys/devices/system/cpu/cpuN/node file names of
// the form "nodeK" to determine which NUMA node owns logical CPU n. This
// mirrors abel::thread::numa::get_node_of_processor's sysfs-based lookup
// (original_source abel/thread/numa, referenced from runtime.cc). Returns
// an error (causing callers to fall back to node 0) on any non-NUMA or
// restricted-visibility host.
func readSysfsNodeOfCPU(cpu int) (int, error) {
	dir := fmt.Sprintf("/sys/devices/system/cpu/cpu%d", cpu)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "node") {
			if n, err := strconv.Atoi(strings.TrimPrefix(name, "node")); err == nil {
				return n, nil
			}
		}
	}
	return 0, fmt.Errorf("fiberrt: no node entry under %s", dir)
}
