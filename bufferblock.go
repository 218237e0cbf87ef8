package fiberrt

import (
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"
)

// Fixed buffer-block capacities, transcribed from abel's
// fixed_buffer_block<4096>/<65536>/<1048576> specializations
// (original_source abel/io/internal/iobuf_block.cc).
const (
	smallBlockSize  = 4096
	mediumBlockSize = 65536
	largeBlockSize  = 1048576
)

// BufferBlock is a reference-counted, pool-returnable byte buffer. It
// plays the role of abel's iobuf_block: Fibers doing I/O acquire one from
// MakeNativeBufferBlock (or a size-specific constructor) and write or read
// through Bytes. The embedded refCount tracks shared holders, but Deref
// reaching zero does not return the block anywhere by itself: a block goes
// back to its owning pool only when bufferPools.release is called on it,
// and release does not consult the counter.
type BufferBlock struct {
	refCount
	data []byte
	// cap0 is the capacity this block was minted at, independent of
	// len(data); Cap reports it.
	cap0 int
	pool *ObjectPool[*BufferBlock]
}

// Bytes returns the block's backing slice, length equal to the block's
// capacity. Callers reslice it (data[:n]) to represent partial fill.
func (b *BufferBlock) Bytes() []byte {
	return b.data
}

// Cap reports the block's fixed capacity.
func (b *BufferBlock) Cap() int {
	return b.cap0
}

// reset prepares a block before it's handed back out of a pool by
// restoring its slice length to the full capacity, undoing any reslice a
// previous holder made. It does not zero the contents: they are about to
// be overwritten by whoever calls Bytes() next, and zeroing a 1MiB block
// on every reuse would be wasted work.
func (b *BufferBlock) reset() {
	b.data = b.data[:cap(b.data)]
}

// bufferPools holds the three pre-registered fixed-size ObjectPools plus
// any caller-registered non-default sizes, keyed by capacity. It is the
// Go analogue of abel's pool_traits-driven static registration: instead
// of template specialization, fiberrt builds one ObjectPool[*BufferBlock]
// per size at runtime Start.
type bufferPools struct {
	clock   clockz.Clock
	metrics *metricz.Registry
	byCap   map[int]*ObjectPool[*BufferBlock]
}

// newBufferPools builds the three standard pools (and any
// Config.BufferPoolOverrides-registered sizes) up front.
func newBufferPools(cfg Config) *bufferPools {
	bp := &bufferPools{
		clock:   cfg.clock(),
		metrics: metricz.New(),
		byCap:   make(map[int]*ObjectPool[*BufferBlock]),
	}
	sizes := map[int]struct{}{smallBlockSize: {}, mediumBlockSize: {}, largeBlockSize: {}}
	for size := range cfg.BufferPoolOverrides {
		sizes[size] = struct{}{}
	}
	for size := range sizes {
		bp.register(size, cfg.poolTraitsFor(size))
	}
	return bp
}

func (bp *bufferPools) register(size int, traits PoolTraits) {
	pool := bp.byCap[size]
	if pool != nil {
		return
	}
	bp.byCap[size] = NewObjectPool(traits, bp.clock, bp.metrics,
		func() *BufferBlock {
			blk := &BufferBlock{data: make([]byte, size), cap0: size}
			blk.Reset()
			return blk
		},
		func(blk *BufferBlock) {
			blk.reset()
			blk.Reset()
		},
	)
}

// acquire returns a block of at least the given size, rounding up to the
// next registered capacity (small -> medium -> large), or minting an
// unpooled "external" block for anything larger than the largest
// registered size, matching abel's fallback to a plain heap allocation
// for oversized I/O buffers.
func (bp *bufferPools) acquire(minSize int) *BufferBlock {
	size := smallBlockSize
	switch {
	case minSize <= smallBlockSize:
		size = smallBlockSize
	case minSize <= mediumBlockSize:
		size = mediumBlockSize
	case minSize <= largeBlockSize:
		size = largeBlockSize
	default:
		blk := &BufferBlock{data: make([]byte, minSize), cap0: minSize}
		blk.Reset()
		return blk
	}

	pool, ok := bp.byCap[size]
	if !ok {
		blk := &BufferBlock{data: make([]byte, size), cap0: size}
		blk.Reset()
		return blk
	}
	blk := pool.Get()
	blk.pool = pool
	return blk
}

// release returns blk to its owning pool, or drops it (letting the GC
// collect it) if it was allocated outside the standard sizes.
func (bp *bufferPools) release(blk *BufferBlock) {
	if blk.pool != nil {
		blk.pool.Put(blk)
	}
}

// sweepAll runs an idle sweep across every registered pool, returning the
// total number of blocks evicted. Intended to be driven periodically
// (e.g. by a background goroutine started alongside the runtime).
func (bp *bufferPools) sweepAll() int {
	total := 0
	for _, pool := range bp.byCap {
		total += pool.Sweep()
	}
	return total
}

// MakeNativeBufferBlock acquires a BufferBlock from the default
// (small/4096-byte) pool, the common case for control-plane I/O.
func (bp *bufferPools) MakeNativeBufferBlock() *BufferBlock {
	return bp.acquire(smallBlockSize)
}
