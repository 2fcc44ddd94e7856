package gbo

import (
	"sync"

	"github.com/virtualbox-guest/vmsvga-kmd/encode"
	"github.com/virtualbox-guest/vmsvga-kmd/status"
)

// Region is a Guest Memory Region: a MOB whose id doubles as the GMR id
// the host sees in DEFINE_GMR2/REMAP_GMR2, grounded on GAWDDMREGION in
// original_source/.../gallium/Svga.h — "the region id and VGPU10+ mobid
// are the same. So a mob is always allocated for the gmr."
type Region struct {
	mob   *Mob
	owner interface{}
}

// ID returns the GMR id (equal to the backing MOB's id).
func (r *Region) ID() uint32 { return r.mob.ID() }

// Mob returns the Region's backing MOB.
func (r *Region) Mob() *Mob { return r.mob }

// RegionManager tracks live GMRs and supports bulk teardown by owner,
// mirroring SvgaRegionsDestroy's "destroy all regions of a particular
// owner" sweep.
type RegionManager struct {
	mu      sync.Mutex
	mobs    *Manager
	regions map[uint32]*Region
	maxIDs  uint32
}

// NewRegionManager creates a region manager whose GMR ids are bounded by
// maxIDs and whose storage comes from mobs.
func NewRegionManager(mobs *Manager, maxIDs uint32) *RegionManager {
	return &RegionManager{mobs: mobs, regions: make(map[uint32]*Region), maxIDs: maxIDs}
}

// Create allocates a GMR of numPages pages for owner and registers it.
// It emits no commands; the caller reports the region to the device by
// submitting the DefineGMR2 + RemapGMR2 pair ReportCommands encodes.
func (rm *RegionManager) Create(owner interface{}, numPages uint32) (*Region, status.Status) {
	if numPages == 0 {
		return nil, status.InvalidParameter
	}

	mob, st := rm.mobs.Create(numPages)
	if !st.Ok() {
		return nil, st
	}
	if mob.ID() >= rm.maxIDs {
		rm.mobs.Destroy(mob.ID(), 0)
		return nil, status.InsufficientResources
	}

	r := &Region{mob: mob, owner: owner}
	rm.mu.Lock()
	rm.regions[r.ID()] = r
	rm.mu.Unlock()
	return r, status.OK
}

// ReportCommands encodes the DefineGMR2 + RemapGMR2 pair needed to publish
// r to the host, given the destination buffers for each (two-call
// contract per buffer, same as every encode package function).
func (r *Region) ReportCommands(defineBuf, remapBuf []byte) (defineLen int, remapLen int, st status.Status) {
	defineLen, st = encode.DefineGMR2(defineBuf, r.ID(), uint32(r.mob.gbo.SizeBytes()/4096))
	if !st.Ok() {
		return defineLen, 0, st
	}
	ppns := make([]uint64, r.mob.gbo.pageCount)
	for i := range ppns {
		ppns[i] = ppnForPage(r.mob.gbo, i)
	}
	remapLen, st = encode.RemapGMR2(remapBuf, r.ID(), ppns)
	return defineLen, remapLen, st
}

func ppnForPage(g *GBO, i int) uint64 {
	return (g.dataBase >> 12) + uint64(i)
}

// Get looks up a live GMR by id.
func (rm *RegionManager) Get(id uint32) (*Region, bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	r, ok := rm.regions[id]
	return r, ok
}

// Destroy releases a single GMR immediately; GMRs have no deferred-
// destruction requirement of their own (only MOBs bound to surfaces do),
// so currentFence is always 0 here.
func (rm *RegionManager) Destroy(id uint32) status.Status {
	rm.mu.Lock()
	_, ok := rm.regions[id]
	if !ok {
		rm.mu.Unlock()
		return status.InvalidParameter
	}
	delete(rm.regions, id)
	rm.mu.Unlock()
	return rm.mobs.Destroy(id, 0)
}

// DestroyOwned tears down every GMR belonging to owner, mirroring
// SvgaRegionsDestroy's two-phase collect-then-free sweep (collect ids
// under the lock, free each outside it).
func (rm *RegionManager) DestroyOwned(owner interface{}) int {
	rm.mu.Lock()
	var ids []uint32
	for id, r := range rm.regions {
		if r.owner == owner {
			ids = append(ids, id)
		}
	}
	rm.mu.Unlock()

	for _, id := range ids {
		rm.Destroy(id)
	}
	return len(ids)
}
