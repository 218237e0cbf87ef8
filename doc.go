// Package fiberrt implements a NUMA-aware M:N fiber scheduling runtime:
// user-mode cooperative tasks ("fibers") multiplexed onto a bounded set of
// OS worker threads, grouped into scheduling groups that each own a run
// queue and a timer worker, with inter-group work stealing and a
// thread-local pooled reference-counted buffer allocator for fiber-to-fiber
// byte streams.
//
// # Core concepts
//
// A SchedulingGroup is the unit of concurrency: a set of FiberWorker threads
// sharing one RunQueue and one TimerWorker. Fibers are scheduled onto a
// group with Schedule, run to their next suspension point by whichever
// worker dequeues them, and may be stolen by an idle worker in another
// group. Timers are armed against a group's TimerWorker and, on expiry,
// post their continuation back onto that group's run queue.
//
// # Bootstrapping
//
//	cfg := fiberrt.DefaultConfig()
//	rt, err := fiberrt.Start(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Terminate()
//
//	rt.Schedule(context.Background(), func(fc *fiberrt.FiberContext) {
//	    // cooperative work; fc.Yield() / fc.Sleep(d) / fc.Park(w, d) are
//	    // suspension points.
//	})
//
// # Observability
//
// Scheduler events (runtime started/terminated, group started/stopped,
// worker parked/woke/stole/exiting, timer armed/fired/cancelled/compacted)
// are emitted as capitan structured signals. Each fiber dispatch runs
// inside a tracez span. Object pools count gets, puts, misses and
// evictions in a metricz registry. Scheduling-group lifecycle is
// additionally reported through per-group hookz event hooks for external
// subscribers. The buffer-pool watermark signals declared in signals.go
// are not emitted, and fiber completion is not reported through a hook. The
// monotonic clock used throughout (timer deadlines, watermark idle
// tracking) is a clockz.Clock, defaulting to clockz.RealClock and
// swappable for clockz.NewFakeClock() in tests.
package fiberrt
