// Package idalloc implements §4.B of the command-submission core: a bounded,
// first-free identifier allocator for surface, context, MOB and fence-handle
// ID spaces. It follows the same free-list-over-fixed-capacity shape the
// teacher uses for FUSE file handles (rawBridge.registerFile /
// nodefs/bridge.go), generalised from a slice-backed index list to a bitset
// since these ID spaces are large and sparse rather than append-mostly.
package idalloc

import (
	"sync"

	"github.com/virtualbox-guest/vmsvga-kmd/internal/bitset"
	"github.com/virtualbox-guest/vmsvga-kmd/status"
)

// Allocator hands out identifiers in [0, limit) with first-free reuse. ID 0
// is reserved to mean "none" and is pre-marked in-use, matching spec.md §3.
// Allocation and release take the allocator's own lock; callers must not
// hold any other lock of this package while calling in, per the lock
// hierarchy in spec.md §5 (identifier lock is acquired last of the software
// locks, just above the hardware spinlock).
type Allocator struct {
	mu   sync.Mutex
	bits *bitset.Set
}

// New returns an Allocator over the ID space [0, limit).
func New(limit uint32) *Allocator {
	a := &Allocator{bits: bitset.New(limit)}
	a.bits.Set(0) // 0 means "none"; never handed out.
	return a
}

// Alloc returns the lowest free id, or InsufficientResources if the space
// is exhausted. It never blocks.
func (a *Allocator) Alloc() (uint32, status.Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.bits.AllocFirstFree()
	if !ok {
		return 0, status.InsufficientResources
	}
	return id, status.OK
}

// Free releases id back to the pool. Freeing id 0 or an already-free id is
// a no-op, not an error: callers performing rollback after a partial
// failure may call Free on an id that was never successfully allocated.
func (a *Allocator) Free(id uint32) {
	if id == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bits.Clear(id)
}

// InUse reports whether id is currently allocated. Used by table-growth
// logic to compute the highest in-use id without taking a second lock
// ordering hazard.
func (a *Allocator) InUse(id uint32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bits.Test(id)
}

// Limit returns the allocator's current ID-space ceiling.
func (a *Allocator) Limit() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bits.Limit()
}

// GrowFunc is invoked by a TableBacked allocator after a new id is chosen
// but before it is handed to the caller, so the relevant host-visible
// object table can be grown to cover it. Returning a non-OK status causes
// the id to be rolled back (freed) and the failure status returned to the
// original caller, matching spec.md §4.B / §7's rollback discipline.
type GrowFunc func(id uint32) status.Status

// TableBacked composes an Allocator with a GrowFunc, implementing
// otable_alloc/otable_free from spec.md §4.B: allocation additionally
// ensures the backing Object Table (or Context Object Table) covers the new
// id, rolling the id back on failure.
type TableBacked struct {
	ids  *Allocator
	grow GrowFunc
}

// NewTableBacked returns a TableBacked allocator over [0, limit) that calls
// grow(id) after every successful allocation.
func NewTableBacked(limit uint32, grow GrowFunc) *TableBacked {
	return &TableBacked{ids: New(limit), grow: grow}
}

// Alloc allocates an id and grows the backing table to cover it. On grow
// failure the id is freed before returning.
func (t *TableBacked) Alloc() (uint32, status.Status) {
	id, st := t.ids.Alloc()
	if !st.Ok() {
		return 0, st
	}
	if st := t.grow(id); !st.Ok() {
		t.ids.Free(id)
		return 0, st
	}
	return id, status.OK
}

// Free releases id. It does not shrink the backing table: tables only grow,
// per spec.md §4.C's invariant that entry count is monotone non-decreasing.
func (t *TableBacked) Free(id uint32) {
	t.ids.Free(id)
}
