package fiberrt

import (
	"time"

	"github.com/zoobzio/clockz"
)

// Config is the process-wide bootstrap configuration, read once by Start.
// Encoding is opaque to the core (spec.md §6); callers populate the struct
// directly.
type Config struct {
	// Clock is the monotonic clock used by every timer worker and by
	// buffer-pool idle tracking. Defaults to clockz.RealClock.
	Clock clockz.Clock

	// EnableNUMAAware builds one set of scheduling groups per NUMA node
	// when true; otherwise one flat set with NodeID 0.
	EnableNUMAAware bool

	// SchedulingGroups is the total group count (UMA) or the number of
	// groups built on each discovered node (NUMA).
	SchedulingGroups int

	// WorkersPerGroup is the number of fiber workers started per group.
	WorkersPerGroup int

	// FiberWorkerDisallowCPUMigration pins each worker to a single CPU
	// from its group's affinity set, deterministically assigned by worker
	// index, when true.
	FiberWorkerDisallowCPUMigration bool

	// FiberWorkerAccessibleCPUs is an explicit CPU allow-list. Mutually
	// exclusive with FiberWorkerInaccessibleCPUs.
	FiberWorkerAccessibleCPUs []int

	// FiberWorkerInaccessibleCPUs is an explicit CPU deny-list, subtracted
	// from the current thread's affinity. Mutually exclusive with
	// FiberWorkerAccessibleCPUs.
	FiberWorkerInaccessibleCPUs []int

	// WorkStealingRatio is the intra-node steal frequency: a worker
	// attempts a steal against a given intra-node victim once every
	// WorkStealingRatio idle cycles. Zero disables intra-node stealing
	// (rare; defaults to 1).
	WorkStealingRatio int

	// CrossNUMAWorkStealingRatio is the inter-node steal frequency. Zero
	// disables cross-node stealing entirely.
	CrossNUMAWorkStealingRatio int

	// TimerCompactionThreshold, when non-zero, triggers a compaction pass
	// over a group's timer heap once the number of timers cancelled since
	// the last compaction, divided by the current heap size, reaches this
	// value (0 < threshold <= 1). Cancelled entries already dropped by a
	// lazy pop still count toward that number. Zero (the default)
	// disables proactive compaction; cancelled entries are always removed
	// lazily at pop regardless.
	TimerCompactionThreshold float64

	// BufferPoolOverrides optionally replaces the default PoolTraits for
	// one or more of the three pre-registered buffer-block sizes, keyed by
	// capacity in bytes (4096, 65536, 1048576).
	BufferPoolOverrides map[int]PoolTraits
}

// DefaultConfig returns a Config suitable for a single-node UMA
// deployment: one scheduling group of four workers (callers typically
// override this to match GOMAXPROCS), CPU migration allowed (workers are
// not pinned), and modest stealing.
func DefaultConfig() Config {
	return Config{
		Clock:                      clockz.RealClock,
		EnableNUMAAware:            false,
		SchedulingGroups:           1,
		WorkersPerGroup:            4,
		WorkStealingRatio:          1,
		CrossNUMAWorkStealingRatio: 0,
	}
}

// Validate checks the configuration for the mutually-exclusive and
// impossible combinations spec.md §4.A/§4.F name, returning a
// *SchedError with Kind KindConfigInvalid on failure.
func (c Config) Validate() error {
	if c.SchedulingGroups <= 0 {
		return wrapf(KindConfigInvalid, nil, "scheduling_groups must be positive, got %d", c.SchedulingGroups)
	}
	if c.WorkersPerGroup <= 0 {
		return wrapf(KindConfigInvalid, nil, "workers_per_group must be positive, got %d", c.WorkersPerGroup)
	}
	if len(c.FiberWorkerAccessibleCPUs) > 0 && len(c.FiberWorkerInaccessibleCPUs) > 0 {
		return wrapf(KindConfigInvalid, nil, "at most one of fiber_worker_accessible_cpus or fiber_worker_inaccessible_cpus may be specified")
	}
	if c.WorkStealingRatio < 0 || c.CrossNUMAWorkStealingRatio < 0 {
		return wrapf(KindConfigInvalid, nil, "steal ratios must be non-negative")
	}
	if c.TimerCompactionThreshold < 0 || c.TimerCompactionThreshold > 1 {
		return wrapf(KindConfigInvalid, nil, "timer_compaction_threshold must be within [0, 1], got %f", c.TimerCompactionThreshold)
	}
	return nil
}

func (c Config) clock() clockz.Clock {
	if c.Clock == nil {
		return clockz.RealClock
	}
	return c.Clock
}

// poolTraitsFor resolves the effective PoolTraits for a buffer-block size,
// applying any configured override.
func (c Config) poolTraitsFor(size int) PoolTraits {
	if c.BufferPoolOverrides != nil {
		if t, ok := c.BufferPoolOverrides[size]; ok {
			return t
		}
	}
	return defaultPoolTraits(size)
}

const (
	defaultMaxIdle = 10 * time.Second
)
