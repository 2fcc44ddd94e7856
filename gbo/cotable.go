package gbo

import (
	"github.com/virtualbox-guest/vmsvga-kmd/encode"
	"github.com/virtualbox-guest/vmsvga-kmd/hw"
	"github.com/virtualbox-guest/vmsvga-kmd/status"
)

// CotType identifies one of the twelve per-context object table kinds,
// grounded on SVGACOTableType / the s_acbEntry table in
// original_source/.../gallium/Svga.cpp's SvgaCOTNotifyId.
type CotType uint32

const (
	CotRTView CotType = iota
	CotDSView
	CotSRView
	CotElementLayout
	CotBlendState
	CotDepthStencil
	CotRasterizerState
	CotSampler
	CotStreamOutput
	CotQuery
	CotShader
	CotUAView
	cotTypeCount
)

// cotEntrySize gives each COTable entry's byte size. The original values
// come from sizeof(SVGACOTableDX*Entry); this module does not model the
// DX pipeline state structs themselves, so it uses representative entry
// sizes that preserve the doubling/growth arithmetic SvgaCOTNotifyId
// performs, which is the behavior this package actually exercises.
var cotEntrySize = [cotTypeCount]uint32{
	64, // RTView
	64, // DSView
	64, // SRView
	32, // ElementLayout
	32, // BlendState
	32, // DepthStencil
	32, // RasterizerState
	16, // Sampler
	32, // StreamOutput
	16, // Query
	96, // Shader
	64, // UAView
}

// COTable is one context's object table of a given type: the number of
// valid entries and the MOB currently backing them.
type COTable struct {
	cotType CotType
	entries uint32
	mob     *Mob
}

// Entries returns the number of valid entries the table currently
// guarantees room for.
func (c *COTable) Entries() uint32 { return c.entries }

// GrowPlan carries the commands SvgaCOTNotifyId's growth path emits, in
// the order they must be submitted: define the new backing MOB, bind
// (first allocation) or grow (subsequent allocations) the COTable to it,
// then — only on a grow — destroy the old MOB. DestroyOld holds only the
// DESTROY_GB_MOB command; no fence-64 command is paired with it.
type GrowPlan struct {
	DefineMob  []byte
	Bind       []byte
	DestroyOld []byte // nil on first allocation
	OldMobID   uint32 // valid iff DestroyOld != nil; caller must register its deferred destruction after submission
}

// CotSet holds the twelve COTables belonging to one DX context.
type CotSet struct {
	cid    uint32
	tables [cotTypeCount]COTable
	mobs   *Manager
}

// NewCotSet creates an empty COTable set for context cid.
func NewCotSet(cid uint32, mobs *Manager) *CotSet {
	s := &CotSet{cid: cid, mobs: mobs}
	for t := range s.tables {
		s.tables[t].cotType = CotType(t)
	}
	return s
}

// Table returns the COTable of the given type.
func (s *CotSet) Table(t CotType) *COTable { return &s.tables[t] }

// EnsureCapacity grows the COTable for t so that entry id is addressable,
// mirroring SvgaCOTNotifyId: if id already fits, it is a no-op; otherwise
// a new, larger MOB is allocated (doubling the current byte size, or
// starting at one page) and a GrowPlan describing the commands to publish
// it is returned for the caller to submit.
func (s *CotSet) EnsureCapacity(t CotType, id uint32) (*GrowPlan, status.Status) {
	if t >= cotTypeCount {
		return nil, status.InvalidParameter
	}
	tbl := &s.tables[t]
	if id < tbl.entries {
		return nil, status.OK
	}

	entrySize := cotEntrySize[t]
	required := (id + 1) * entrySize
	required = alignUp(required, hw.PageSize)

	size := tbl.entries * entrySize
	if size == 0 {
		size = hw.PageSize
	}
	for required > size {
		size *= 2
	}

	pageCount := alignUp(size, hw.PageSize) / hw.PageSize
	newMob, st := s.mobs.Create(pageCount)
	if !st.Ok() {
		return nil, st
	}

	defineLen, st := newMob.DefineCommand(nil)
	if !st.Ok() {
		s.mobs.Destroy(newMob.ID(), 0)
		return nil, st
	}
	defineBuf := make([]byte, defineLen)
	if _, st := newMob.DefineCommand(defineBuf); !st.Ok() {
		s.mobs.Destroy(newMob.ID(), 0)
		return nil, st
	}

	plan := &GrowPlan{DefineMob: defineBuf}

	if tbl.entries == 0 {
		bindLen, _ := encode.DXSetCOTable(nil, s.cid, uint32(t), newMob.ID(), 0)
		bindBuf := make([]byte, bindLen)
		encode.DXSetCOTable(bindBuf, s.cid, uint32(t), newMob.ID(), 0)
		plan.Bind = bindBuf
	} else {
		validSize := tbl.entries * entrySize
		growLen, _ := encode.DXGrowCOTable(nil, s.cid, uint32(t), newMob.ID(), size/entrySize, validSize)
		growBuf := make([]byte, growLen)
		encode.DXGrowCOTable(growBuf, s.cid, uint32(t), newMob.ID(), size/entrySize, validSize)
		plan.Bind = growBuf

		destroyLen, _ := encode.DestroyGBMob(nil, tbl.mob.ID())
		destroyBuf := make([]byte, destroyLen)
		encode.DestroyGBMob(destroyBuf, tbl.mob.ID())
		plan.DestroyOld = destroyBuf
		plan.OldMobID = tbl.mob.ID()
	}

	tbl.mob = newMob
	tbl.entries = size / entrySize
	return plan, status.OK
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}
