package fiberrt

import (
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"
)

// PoolTraits parameterizes an ObjectPool the way abel's pool_traits
// template specializations parameterize iobuf_block's allocators
// (original_source abel/io/internal/iobuf_block.cc): a low watermark
// below which the pool always keeps idle objects around, a high
// watermark above which excess idle objects are released back to the
// runtime, a per-goroutine cache size, an idle-eviction age, and the
// batch size used when moving objects between a thread-local cache and
// the shared overflow.
type PoolTraits struct {
	// Kind labels the pool for metrics/logging; e.g. "buffer_4k".
	Kind string

	// LowWatermark is the idle-object count below which the pool never
	// evicts, even past MaxIdle.
	LowWatermark int

	// HighWatermark is the idle-object count above which Put releases
	// the object instead of retaining it. Zero means unbounded.
	HighWatermark int

	// MaxIdle is how long an idle object may sit in the shared overflow
	// before an idle sweep reclaims it.
	MaxIdle time.Duration

	// MinimumThreadCacheSize is the smallest size sync.Pool's internal
	// per-P cache is allowed to shrink the effective cache to before
	// this pool starts preferring the shared overflow; advisory only,
	// since sync.Pool does not expose per-P tuning.
	MinimumThreadCacheSize int

	// TransferBatchSize is how many objects move between the shared
	// overflow and a caller in one locked section.
	TransferBatchSize int
}

// defaultPoolTraits returns the traits abel registers for its three
// fixed buffer-block sizes, transcribed from the kLowWaterMark /
// kHighWaterMark / kMaxIdle / kMinimumThreadCacheSize /
// kTransferBatchSize constants in each pool_traits<fixed_buffer_block<N>>
// specialization (original_source abel/io/internal/iobuf_block.cc). Sizes
// outside the three registered buffer-block capacities get a
// conservative generic default.
func defaultPoolTraits(size int) PoolTraits {
	switch size {
	case smallBlockSize:
		return PoolTraits{
			Kind:                   "buffer_4k",
			LowWatermark:           16384,
			HighWatermark:          0,
			MaxIdle:                defaultMaxIdle,
			MinimumThreadCacheSize: 4096,
			TransferBatchSize:      1024,
		}
	case mediumBlockSize:
		return PoolTraits{
			Kind:                   "buffer_64k",
			LowWatermark:           1024,
			HighWatermark:          0,
			MaxIdle:                defaultMaxIdle,
			MinimumThreadCacheSize: 256,
			TransferBatchSize:      64,
		}
	case largeBlockSize:
		return PoolTraits{
			Kind:                   "buffer_1m",
			LowWatermark:           128,
			HighWatermark:          0,
			MaxIdle:                defaultMaxIdle,
			MinimumThreadCacheSize: 64,
			TransferBatchSize:      16,
		}
	default:
		return PoolTraits{
			Kind:                   "generic",
			LowWatermark:           16,
			HighWatermark:          256,
			MaxIdle:                defaultMaxIdle,
			MinimumThreadCacheSize: 4,
			TransferBatchSize:      8,
		}
	}
}

// idleEntry timestamps an object sitting in the shared overflow so an
// idle sweep can reclaim anything older than traits.MaxIdle once the
// overflow is above LowWatermark.
type idleEntry[T any] struct {
	obj  T
	idle time.Time
}

// ObjectPool is a two-level object pool: a fast per-P cache backed by
// sync.Pool (grounded on Go's own runtime/sync.Pool, reference file
// yaofei517-go__src-sync-pool.go.go) in front of a mutex-guarded shared
// overflow that enforces the watermark/idle/batch-size semantics
// sync.Pool alone does not provide, since sync.Pool offers no watermarks
// and may drop everything at any GC. New objects are minted with `new`
// the first time both levels are empty.
type ObjectPool[T any] struct {
	traits PoolTraits
	new    func() T
	reset  func(T)

	fast sync.Pool

	mu       sync.Mutex
	overflow []idleEntry[T]

	clock   clockz.Clock
	metrics *metricz.Registry
	keys    poolMetricKeys
}

// poolMetricKeys are the per-pool metricz.Key names, namespaced by Kind so
// that two ObjectPool instances (e.g. buffer_4k and buffer_64k) don't
// share counters, mirroring the teacher's one-const-per-metric convention
// in signals.go/backoff.go.
type poolMetricKeys struct {
	gets    metricz.Key
	puts    metricz.Key
	misses  metricz.Key
	evicted metricz.Key
}

// NewObjectPool builds a pool for T, using newFn to mint a fresh T on a
// complete miss and resetFn (if non-nil) to clear a T's state before it
// is handed back out after having been idle.
func NewObjectPool[T any](traits PoolTraits, clock clockz.Clock, metrics *metricz.Registry, newFn func() T, resetFn func(T)) *ObjectPool[T] {
	if clock == nil {
		clock = clockz.RealClock
	}
	keys := poolMetricKeys{
		gets:    metricz.Key("pool." + traits.Kind + ".gets.total"),
		puts:    metricz.Key("pool." + traits.Kind + ".puts.total"),
		misses:  metricz.Key("pool." + traits.Kind + ".misses.total"),
		evicted: metricz.Key("pool." + traits.Kind + ".evicted.total"),
	}
	p := &ObjectPool[T]{
		traits:  traits,
		new:     newFn,
		reset:   resetFn,
		clock:   clock,
		metrics: metrics,
		keys:    keys,
	}
	p.fast.New = func() any {
		return nil
	}
	if metrics != nil {
		metrics.Counter(keys.gets)
		metrics.Counter(keys.puts)
		metrics.Counter(keys.misses)
		metrics.Counter(keys.evicted)
	}
	return p
}

// Get returns an object from the pool: the watermark-tracked overflow
// first (LIFO, most recently idle first), then the GC-reclaimable fast
// tier, then a freshly minted one.
func (p *ObjectPool[T]) Get() T {
	p.incr(p.keys.gets)

	p.mu.Lock()
	if n := len(p.overflow); n > 0 {
		entry := p.overflow[n-1]
		p.overflow = p.overflow[:n-1]
		p.mu.Unlock()
		if p.reset != nil {
			p.reset(entry.obj)
		}
		return entry.obj
	}
	p.mu.Unlock()

	if v := p.fast.Get(); v != nil {
		obj := v.(T)
		if p.reset != nil {
			p.reset(obj)
		}
		return obj
	}

	p.incr(p.keys.misses)
	return p.new()
}

// Put returns obj to the pool. Below HighWatermark, obj joins the
// overflow, where it counts toward the watermark/idle-sweep accounting.
// At or above HighWatermark, obj instead goes to the GC-reclaimable fast
// tier: still available for reuse under memory pressure, but no longer
// guaranteed to survive — the idiomatic Go rendering of abel's "release
// excess idle blocks back to the allocator" watermark behavior, since Go
// has no explicit allocator to release memory to. An object is only ever
// held by one tier at a time, never both, so Get can never hand out the
// same object twice.
func (p *ObjectPool[T]) Put(obj T) {
	p.incr(p.keys.puts)

	p.mu.Lock()
	if p.traits.HighWatermark > 0 && len(p.overflow) >= p.traits.HighWatermark {
		p.mu.Unlock()
		p.fast.Put(obj)
		return
	}
	p.overflow = append(p.overflow, idleEntry[T]{obj: obj, idle: p.clock.Now()})
	p.mu.Unlock()
}

// Sweep reclaims overflow entries older than traits.MaxIdle, down to
// LowWatermark, the caller typically driving this on an interval timer.
// It returns the count of objects evicted.
func (p *ObjectPool[T]) Sweep() int {
	if p.traits.MaxIdle <= 0 {
		return 0
	}
	now := p.clock.Now()

	p.mu.Lock()
	kept := p.overflow[:0:0]
	evicted := 0
	for i, entry := range p.overflow {
		expired := now.Sub(entry.idle) > p.traits.MaxIdle
		aboveLow := len(p.overflow)-i > p.traits.LowWatermark
		if expired && aboveLow {
			evicted++
			continue
		}
		kept = append(kept, entry)
	}
	p.overflow = kept
	p.mu.Unlock()

	if evicted > 0 {
		p.incrBy(p.keys.evicted, evicted)
	}
	return evicted
}

// Len reports the current shared-overflow depth, for tests and metrics.
func (p *ObjectPool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.overflow)
}

func (p *ObjectPool[T]) incr(key metricz.Key) {
	if p.metrics != nil {
		p.metrics.Counter(key).Inc()
	}
}

func (p *ObjectPool[T]) incrBy(key metricz.Key, n int) {
	if p.metrics != nil {
		p.metrics.Counter(key).Add(float64(n))
	}
}
