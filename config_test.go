package fiberrt

import "testing"

func TestConfigValidate(t *testing.T) {
	t.Run("Default Config Validates", func(t *testing.T) {
		if err := DefaultConfig().Validate(); err != nil {
			t.Fatalf("expected DefaultConfig to validate, got %v", err)
		}
	})

	t.Run("Non-positive Scheduling Groups Is Invalid", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SchedulingGroups = 0
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for zero scheduling groups")
		}
	})

	t.Run("Non-positive Workers Per Group Is Invalid", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.WorkersPerGroup = 0
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for zero workers per group")
		}
	})

	t.Run("Allow-list And Deny-list Together Is Invalid", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.FiberWorkerAccessibleCPUs = []int{0, 1}
		cfg.FiberWorkerInaccessibleCPUs = []int{2}
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error when both allow-list and deny-list are set")
		}
	})

	t.Run("Negative Steal Ratios Are Invalid", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.WorkStealingRatio = -1
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for negative work stealing ratio")
		}
	})

	t.Run("Timer Compaction Threshold Out Of Range Is Invalid", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.TimerCompactionThreshold = 1.5
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for out-of-range compaction threshold")
		}
	})

	t.Run("PoolTraitsFor Falls Back To Default Sizes", func(t *testing.T) {
		cfg := DefaultConfig()
		traits := cfg.poolTraitsFor(smallBlockSize)
		if traits.Kind != "buffer_4k" {
			t.Errorf("expected default small-block traits, got %+v", traits)
		}
	})

	t.Run("PoolTraitsFor Honors Overrides", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.BufferPoolOverrides = map[int]PoolTraits{
			smallBlockSize: {Kind: "custom", LowWatermark: 1, HighWatermark: 2, TransferBatchSize: 1},
		}
		traits := cfg.poolTraitsFor(smallBlockSize)
		if traits.Kind != "custom" {
			t.Errorf("expected overridden traits, got %+v", traits)
		}
	})
}
