// Package hostobj implements §4.F of the command-submission core: a
// reference-counted, key-indexed registry of host-resident resources
// (surfaces today; the registry itself is generic). Every live object is
// reachable by exactly one of two linkages at a time — indexed in the
// live tree, or threaded onto the deferred-destruction list — mirroring
// original_source's ho_query/ho_release/ho_process_pending shape, where
// the object's list node is reused for both purposes.
package hostobj

import (
	"sync"
	"sync/atomic"

	"github.com/virtualbox-guest/vmsvga-kmd/status"
)

// Destroyer frees an object's resources once its reference count reaches
// zero. It runs either inline (ho_release, when the caller's context can
// block) or later from ProcessPending (passive-IRQL context in the
// original; here, just "not holding the registry's lock").
type Destroyer interface {
	Destroy()
}

// object is the registry's internal wrapper: the public Destroyer plus
// the bookkeeping ho_release/ho_process_pending need.
type object struct {
	key   uint32
	refs  int32
	value Destroyer
}

// Registry is a generic, reference-counted, key-indexed table of host
// objects with a deferred-destruction list for contexts that cannot run a
// destructor inline (interrupt/DPC context, per spec.md §5's IRQL rule —
// modeled here as "the caller is inside a lock it must not block in").
type Registry struct {
	mu       sync.Mutex
	live     map[uint32]*object
	deferred []*object
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{live: map[uint32]*object{}}
}

// Insert adds value under key with an initial reference count of 1,
// representing the caller's own reference. It is an error to insert over
// an existing live key.
func (r *Registry) Insert(key uint32, value Destroyer) status.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.live[key]; exists {
		return status.InvalidParameter
	}
	r.live[key] = &object{key: key, refs: 1, value: value}
	return status.OK
}

// Query looks up key, atomically incrementing its reference count on a
// hit, mirroring ho_query's "find then ref before releasing the lock"
// contract.
func (r *Registry) Query(key uint32) (Destroyer, bool) {
	r.mu.Lock()
	obj, ok := r.live[key]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	atomic.AddInt32(&obj.refs, 1)
	r.mu.Unlock()
	return obj.value, true
}

// Release drops one reference on the object found under key. When the
// count reaches zero, the object is removed from the live tree; if
// inline is true, its destructor runs immediately, otherwise it is
// appended to the deferred-destruction list for a later
// ProcessPending call.
func (r *Registry) Release(key uint32, inline bool) {
	r.mu.Lock()
	obj, ok := r.live[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	remaining := atomic.AddInt32(&obj.refs, -1)
	if remaining > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.live, key)
	if !inline {
		r.deferred = append(r.deferred, obj)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	obj.value.Destroy()
}

// Unref is the ho_unref convenience wrapper: query key (taking a
// reference), then release it twice — once to undo the query's own
// reference, once to drop the caller's original reference and actually
// tear the object down.
func (r *Registry) Unref(key uint32, inline bool) {
	if _, ok := r.Query(key); !ok {
		return
	}
	r.Release(key, inline)
	r.Release(key, inline)
}

// ProcessPending splices the deferred-destruction list into a local list
// under the lock, then walks it outside the lock running each
// destructor — mirroring ho_process_pending and the identical
// gbo.Manager.ReapCompleted / SvgaRegionsDestroy sweep pattern used
// elsewhere in this module.
func (r *Registry) ProcessPending() int {
	r.mu.Lock()
	local := r.deferred
	r.deferred = nil
	r.mu.Unlock()

	for _, obj := range local {
		obj.value.Destroy()
	}
	return len(local)
}

// PendingCount reports how many objects are awaiting a ProcessPending
// sweep, for tests.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deferred)
}

// RefCount reports the current reference count for key, or 0 if key is
// not live. For tests only; real callers never need to inspect this.
func (r *Registry) RefCount(key uint32) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.live[key]
	if !ok {
		return 0
	}
	return atomic.LoadInt32(&obj.refs)
}
