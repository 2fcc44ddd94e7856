package gbo

import (
	"sync"

	"github.com/virtualbox-guest/vmsvga-kmd/encode"
	"github.com/virtualbox-guest/vmsvga-kmd/fence"
	"github.com/virtualbox-guest/vmsvga-kmd/hw"
	"github.com/virtualbox-guest/vmsvga-kmd/idalloc"
	"github.com/virtualbox-guest/vmsvga-kmd/status"
)

// Mob is a guest-backed Memory Object: a GBO plus the id the host knows it
// by, grounded on VMSVGAMOB in original_source/.../gallium/Svga.h.
type Mob struct {
	id  uint32
	gbo *GBO

	// fenceValue is this MOB's deferred-destruction fence slot
	// (VMSVGAMOB.u64MobFence): the fence id at/after which the host has
	// finished with this MOB's storage and it is safe to free.
	fenceValue uint64
}

// ID returns the MOB's host-visible identifier.
func (m *Mob) ID() uint32 { return m.id }

// GBO returns the MOB's backing guest-backed object.
func (m *Mob) GBO() *GBO { return m.gbo }

// Manager owns the MOB id space, the live MOB set, and the list of MOBs
// awaiting deferred destruction, mirroring VBOXWDDM_EXT_VMSVGA's MobTree +
// listMobDeferredDestruction pair in original_source/.../gallium/Svga.h:
// a MOB is linked into exactly one of the two structures at a time, never
// both, matching spec.md §4.F's "dual linkage, never both" invariant for
// host objects in general.
type Manager struct {
	mu sync.Mutex

	ids  *idalloc.Allocator
	live map[uint32]*Mob

	// deferred holds MOBs that SvgaMobFree would normally free
	// immediately, but whose storage the host may still be reading;
	// they are reaped by ReapCompleted once the host's last-processed
	// MOB fence value has caught up to fenceValue.
	deferred []*Mob

	mem *hw.PhysMem
}

// NewManager creates a MOB manager over limit ids (id 0 stays reserved,
// matching the command-buffer/object id convention used throughout this
// module).
func NewManager(mem *hw.PhysMem, limit uint32) *Manager {
	return &Manager{
		ids:  idalloc.New(limit),
		live: make(map[uint32]*Mob),
		mem:  mem,
	}
}

// Create allocates a MOB id, builds its GBO and backing storage, and
// returns the not-yet-announced Mob; the caller (gbo's client, typically
// component C's surface-binding path) is responsible for submitting the
// DefineGBMob command bytes DefineCommand returns through whichever
// transport sink is active.
func (m *Manager) Create(pageCount uint32) (*Mob, status.Status) {
	m.mu.Lock()
	id, st := m.ids.Alloc()
	m.mu.Unlock()
	if !st.Ok() {
		return nil, st
	}

	g, st := Init(m.mem, pageCount)
	if !st.Ok() {
		m.mu.Lock()
		m.ids.Free(id)
		m.mu.Unlock()
		return nil, st
	}

	dataBase, data, err := m.mem.Alloc(pageCount)
	if err != nil {
		g.Free()
		m.mu.Lock()
		m.ids.Free(id)
		m.mu.Unlock()
		return nil, status.InsufficientResources
	}
	if st := g.Fill(dataBase, data); !st.Ok() {
		g.Free()
		m.mem.Free(dataBase)
		m.mu.Lock()
		m.ids.Free(id)
		m.mu.Unlock()
		return nil, st
	}

	mob := &Mob{id: id, gbo: g}
	m.mu.Lock()
	m.live[id] = mob
	m.mu.Unlock()
	return mob, status.OK
}

// DefineCommand returns the DefineGBMob command bytes sink expects,
// wiring the MOB's chosen format and base address in.
func (m *Mob) DefineCommand(buf []byte) (int, status.Status) {
	return encode.DefineGBMob(buf, m.id, m.gbo.Format(), m.gbo.Base(), uint32(m.gbo.SizeBytes()/hw.PageSize))
}

// Query looks up a live MOB by id, mirroring SvgaMobQuery.
func (m *Manager) Query(id uint32) (*Mob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mob, ok := m.live[id]
	return mob, ok
}

// Destroy removes a MOB from the live set. If currentFence is 0 the MOB
// has no outstanding host references and its storage is freed
// immediately; otherwise it is moved onto the deferred-destruction list
// tagged with currentFence, and must be reaped later via ReapCompleted
// once that fence value retires.
func (m *Manager) Destroy(id uint32, currentFence uint64) status.Status {
	m.mu.Lock()
	mob, ok := m.live[id]
	if !ok {
		m.mu.Unlock()
		return status.InvalidParameter
	}
	delete(m.live, id)
	m.ids.Free(id)

	if currentFence == 0 {
		m.mu.Unlock()
		m.free(mob)
		return status.OK
	}

	mob.fenceValue = currentFence
	m.deferred = append(m.deferred, mob)
	m.mu.Unlock()
	return status.OK
}

// ReapCompleted splices every deferred MOB whose fence value has retired
// (per fence.Reached against completedFence) off the deferred list and
// frees its storage, mirroring dxDeferredMobDestruction's
// lock-splice-then-free-outside-the-lock pattern in
// original_source/.../gallium/VBoxMPGaWddm.cpp: the storage-freeing mmap
// calls must not run while m.mu is held, since nothing downstream of them
// is safe to call under a lock ordered below the caller's own locks.
func (m *Manager) ReapCompleted(completedFence uint64) int {
	m.mu.Lock()
	var keep, ready []*Mob
	for _, mob := range m.deferred {
		if fence.Reached(mob.fenceValue, completedFence) {
			ready = append(ready, mob)
		} else {
			keep = append(keep, mob)
		}
	}
	m.deferred = keep
	m.mu.Unlock()

	for _, mob := range ready {
		m.free(mob)
	}
	return len(ready)
}

// PendingDeferred reports whether any MOB is currently awaiting reaping,
// used by the DPC to decide whether to queue a deferred-destruction work
// item at all (mirroring the fMobs check in GaDxgkDdiDpcRoutine).
func (m *Manager) PendingDeferred() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deferred) > 0
}

func (m *Manager) free(mob *Mob) {
	mob.gbo.Free()
	if mob.gbo.dataBase != 0 {
		m.mem.Free(mob.gbo.dataBase)
	}
}
