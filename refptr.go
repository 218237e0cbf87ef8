package fiberrt

import (
	"sync"
	"sync/atomic"
)

// RefCounted is implemented by any type that can be shared through a
// RefPtr. Ref performs a relaxed atomic increment (precondition: count >
// 0). Deref performs an acquire-release atomic decrement and reports
// whether the count reached zero on this call, in which case the caller
// that observed true is responsible for reclaiming the object exactly
// once (spec.md §3 RefPtr<T> / §4.B RefPtr contract).
type RefCounted interface {
	Ref()
	Deref() bool
}

// refCount is an embeddable atomic reference counter implementing
// RefCounted. Pooled objects that embed refCount get counter-reset-to-one
// semantics for free via Reset, called when the object is handed back out
// of a pool (spec.md §3: "a pooled object returned from the pool has
// counter 1").
type refCount struct {
	n atomic.Int32
}

// Reset initializes (or reinitializes) the counter to 1.
func (r *refCount) Reset() {
	r.n.Store(1)
}

// Ref increments the counter with relaxed ordering (Go's sync/atomic has
// no ordering parameter; the hardware memory model on every Go-supported
// architecture treats atomic RMW operations as sequentially consistent,
// which is a valid (if stronger-than-required) implementation of the
// relaxed-increment contract in spec.md §4.B).
func (r *refCount) Ref() {
	invariant(r.n.Load() > 0, "Ref called on a refCount with count <= 0")
	r.n.Add(1)
}

// Deref decrements the counter and reports whether it reached zero.
func (r *refCount) Deref() bool {
	return r.n.Add(-1) == 0
}

// Load returns the current count, for diagnostics and tests only; never
// use it to decide ownership transfer.
func (r *refCount) Load() int32 {
	return r.n.Load()
}

// deleter reclaims a *T once its reference count reaches zero: either the
// default deleter (drop the reference, let the GC collect it) or a pool
// deleter (return it to an ObjectPool after resetting its counter).
type deleter[T RefCounted] func(obj T)

// RefPtr is a shared-ownership handle over a T whose counter is managed
// externally via RefCounted. Construction modes match spec.md §3:
// Adopt takes an already-incremented pointer without touching the
// counter; Refcounted takes a raw pointer and increments it. Copying (via
// Clone) increments; letting a RefPtr go out of scope without calling
// Release leaks the reference (Go has no destructors) — callers must call
// Release explicitly, typically via defer.
type RefPtr[T RefCounted] struct {
	obj     T
	release deleter[T]
	valid   bool
}

// AdoptRefPtr builds a RefPtr from a pointer whose counter has already
// been incremented (or initialized to 1) by the caller, taking ownership
// of that increment without touching the counter again.
func AdoptRefPtr[T RefCounted](obj T, release deleter[T]) RefPtr[T] {
	return RefPtr[T]{obj: obj, release: release, valid: true}
}

// RefcountedRefPtr builds a RefPtr from a raw pointer, incrementing its
// counter to account for this new handle.
func RefcountedRefPtr[T RefCounted](obj T, release deleter[T]) RefPtr[T] {
	obj.Ref()
	return RefPtr[T]{obj: obj, release: release, valid: true}
}

// Get returns the underlying object. The zero value of T is returned if
// the RefPtr is empty (moved-from or released).
func (p RefPtr[T]) Get() T {
	return p.obj
}

// Valid reports whether this handle still owns a reference.
func (p RefPtr[T]) Valid() bool {
	return p.valid
}

// Clone increments the reference count and returns a new independent
// handle to the same object (spec.md §4.B: "Copying a RefPtr increments").
func (p RefPtr[T]) Clone() RefPtr[T] {
	if !p.valid {
		return RefPtr[T]{}
	}
	p.obj.Ref()
	return RefPtr[T]{obj: p.obj, release: p.release, valid: true}
}

// Move transfers ownership to a new handle without touching the counter
// and invalidates the receiver's copy of the handle (the caller must
// discard p after calling Move; Go cannot enforce this statically, unlike
// C++ move semantics, so this is documentation, not compiler-checked).
func (p *RefPtr[T]) Move() RefPtr[T] {
	out := RefPtr[T]{obj: p.obj, release: p.release, valid: p.valid}
	p.valid = false
	var zero T
	p.obj = zero
	p.release = nil
	return out
}

// Release decrements the reference count, invoking the deleter exactly
// once if it reaches zero, and invalidates this handle. Release is
// idempotent: calling it on an already-released or zero-value RefPtr is a
// no-op.
func (p *RefPtr[T]) Release() {
	if !p.valid {
		return
	}
	obj := p.obj
	release := p.release
	p.valid = false
	var zero T
	p.obj = zero
	p.release = nil

	if obj.Deref() && release != nil {
		release(obj)
	}
}

// comparableRefCounted is the constraint AtomicRefPtr needs beyond
// RefCounted: CompareAndSwap must be able to tell whether the currently
// held object is the same one the caller expected, which requires
// comparing the underlying T directly. Every real RefCounted in this
// package (BufferBlock, test fixtures) is a pointer type, so this
// constraint costs callers nothing in practice.
type comparableRefCounted interface {
	RefCounted
	comparable
}

// AtomicRefPtr is the fused atomic handle of spec.md §3/§4.B: a RefPtr
// slot whose Load/Store/Exchange/CompareAndSwap are indivisible with
// respect to each other, so a reader never observes a handle whose
// referenced object has already been released. Go has no atomic type
// wide enough to CAS an (object pointer, deleter) pair together, so this
// wraps a mutex rather than sync/atomic.Pointer directly — the contract
// (replacement derefs the previous pointer exactly once) is what
// matters, not the specific instruction used to provide it.
type AtomicRefPtr[T comparableRefCounted] struct {
	mu  sync.Mutex
	cur RefPtr[T]
}

// NewAtomicRefPtr builds an AtomicRefPtr taking ownership of init (no
// extra Ref is performed; init is consumed the way Adopt consumes a
// pointer).
func NewAtomicRefPtr[T comparableRefCounted](init RefPtr[T]) *AtomicRefPtr[T] {
	return &AtomicRefPtr[T]{cur: init}
}

// Load returns a new independent handle to the currently held object,
// incrementing its reference count (spec.md: "Copying a RefPtr
// increments").
func (a *AtomicRefPtr[T]) Load() RefPtr[T] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cur.Clone()
}

// Store replaces the held handle with next, releasing the previous
// handle exactly once.
func (a *AtomicRefPtr[T]) Store(next RefPtr[T]) {
	a.mu.Lock()
	prev := a.cur
	a.cur = next
	a.mu.Unlock()
	prev.Release()
}

// Exchange replaces the held handle with next and returns the previous
// handle, transferring ownership of it to the caller (the caller must
// Release it, exactly like Move).
func (a *AtomicRefPtr[T]) Exchange(next RefPtr[T]) RefPtr[T] {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.cur
	a.cur = next
	return prev
}

// CompareAndSwap replaces the held handle with next only if the
// currently held object is identical to old's, releasing the previous
// handle exactly once on success. This covers both the strong and weak
// forms of spec.md's compare_exchange: a spurious failure is never
// introduced, so callers needing the weak form's retry-loop behavior get
// it for free by calling CompareAndSwap in a loop.
func (a *AtomicRefPtr[T]) CompareAndSwap(old, next RefPtr[T]) bool {
	a.mu.Lock()
	if a.cur.obj != old.obj {
		a.mu.Unlock()
		return false
	}
	prev := a.cur
	a.cur = next
	a.mu.Unlock()
	prev.Release()
	return true
}
