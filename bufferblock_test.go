package fiberrt

import "testing"

func TestBufferPools(t *testing.T) {
	t.Run("Acquire Rounds Up To The Nearest Registered Size", func(t *testing.T) {
		bp := newBufferPools(DefaultConfig())

		cases := []struct {
			request int
			want    int
		}{
			{request: 1, want: smallBlockSize},
			{request: smallBlockSize, want: smallBlockSize},
			{request: smallBlockSize + 1, want: mediumBlockSize},
			{request: mediumBlockSize + 1, want: largeBlockSize},
		}
		for _, c := range cases {
			blk := bp.acquire(c.request)
			if blk.Cap() != c.want {
				t.Errorf("acquire(%d): expected cap %d, got %d", c.request, c.want, blk.Cap())
			}
		}
	})

	t.Run("Acquire Above Largest Size Mints An Unpooled External Block", func(t *testing.T) {
		bp := newBufferPools(DefaultConfig())
		blk := bp.acquire(largeBlockSize + 1)
		if blk.Cap() != largeBlockSize+1 {
			t.Errorf("expected external block sized exactly to request, got %d", blk.Cap())
		}
		if blk.pool != nil {
			t.Error("expected an external block to have no owning pool")
		}
	})

	t.Run("Release Returns A Pooled Block To Its Pool", func(t *testing.T) {
		bp := newBufferPools(DefaultConfig())
		blk := bp.acquire(smallBlockSize)
		pool := blk.pool
		bp.release(blk)
		if pool.Len() != 1 {
			t.Errorf("expected block to land back in its pool, Len=%d", pool.Len())
		}
	})

	t.Run("Release Of An External Block Is A No-op", func(t *testing.T) {
		bp := newBufferPools(DefaultConfig())
		blk := bp.acquire(largeBlockSize + 1)
		bp.release(blk) // must not panic despite blk.pool == nil
	})

	t.Run("MakeNativeBufferBlock Returns A Small Block", func(t *testing.T) {
		bp := newBufferPools(DefaultConfig())
		blk := bp.MakeNativeBufferBlock()
		if blk.Cap() != smallBlockSize {
			t.Errorf("expected native block cap %d, got %d", smallBlockSize, blk.Cap())
		}
		if len(blk.Bytes()) != smallBlockSize {
			t.Errorf("expected Bytes() length %d, got %d", smallBlockSize, len(blk.Bytes()))
		}
	})

	t.Run("SweepAll Aggregates Across Every Registered Pool", func(t *testing.T) {
		bp := newBufferPools(DefaultConfig())
		blk := bp.acquire(smallBlockSize)
		bp.release(blk)
		if n := bp.sweepAll(); n != 0 {
			// MaxIdle is defaultMaxIdle (10s) and no time has passed with a
			// real clock, so nothing should be evicted yet.
			t.Errorf("expected no eviction immediately after release, got %d", n)
		}
	})
}
