package fiberrt

import (
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/tracez"
)

// tracez span and tag keys for fiber dispatch, following the teacher's
// one-const-per-span/tag convention (retry.go's RetryProcessSpan/RetryTag*).
const (
	DispatchSpan = tracez.Key("fiber.dispatch")

	TagGroupID     = tracez.Tag("group_id")
	TagWorkerIndex = tracez.Tag("worker_index")
)

// Signal constants for fiberrt scheduler events.
// Signals follow the pattern: <component>.<event>.
const (
	// Runtime bootstrap/teardown signals.
	SignalRuntimeStarted     capitan.Signal = "runtime.started"
	SignalRuntimeTerminating capitan.Signal = "runtime.terminating"
	SignalRuntimeTerminated  capitan.Signal = "runtime.terminated"

	// Scheduling group signals.
	SignalGroupStarted capitan.Signal = "group.started"
	SignalGroupStopped capitan.Signal = "group.stopped"

	// Fiber worker signals.
	SignalWorkerParked  capitan.Signal = "worker.parked"
	SignalWorkerWoke    capitan.Signal = "worker.woke"
	SignalWorkerStole   capitan.Signal = "worker.stole"
	SignalWorkerExiting capitan.Signal = "worker.exiting"

	// Timer worker signals.
	SignalTimerArmed     capitan.Signal = "timer.armed"
	SignalTimerFired     capitan.Signal = "timer.fired"
	SignalTimerCancelled capitan.Signal = "timer.cancelled"
	SignalTimerCompacted capitan.Signal = "timer.compacted"

	// Buffer pool signals.
	SignalPoolWatermarkHigh capitan.Signal = "pool.watermark.high"
	SignalPoolWatermarkLow  capitan.Signal = "pool.watermark.low"
)

// Common field keys using capitan's primitive key types, following the
// teacher's convention of one typed key per observable attribute.
var (
	// Common fields.
	FieldGroupID   = capitan.NewIntKey("group_id")
	FieldNodeID    = capitan.NewIntKey("node_id")
	FieldWorkerIdx = capitan.NewIntKey("worker_index")
	FieldTimestamp = capitan.NewFloat64Key("timestamp")
	FieldError     = capitan.NewStringKey("error")

	// Runtime fields.
	FieldGroupCount    = capitan.NewIntKey("group_count")
	FieldWorkersPerGrp = capitan.NewIntKey("workers_per_group")
	FieldNumaAware     = capitan.NewIntKey("numa_aware")

	// Worker/steal fields.
	FieldVictimGroupID = capitan.NewIntKey("victim_group_id")
	FieldStolenCount   = capitan.NewIntKey("stolen_count")

	// Timer fields.
	FieldTimerHandle    = capitan.NewIntKey("timer_handle")
	FieldDeadlineNanos  = capitan.NewFloat64Key("deadline_nanos")
	FieldHeapSize       = capitan.NewIntKey("heap_size")
	FieldCompactedCount = capitan.NewIntKey("compacted_count")

	// Buffer pool fields.
	FieldPoolBlockSize  = capitan.NewIntKey("block_size")
	FieldPoolLocalCount = capitan.NewIntKey("local_count")
	FieldPoolGlobalCnt  = capitan.NewIntKey("global_count")
	FieldPoolWatermark  = capitan.NewIntKey("watermark")
)
