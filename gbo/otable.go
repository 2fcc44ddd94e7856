package gbo

import (
	"github.com/virtualbox-guest/vmsvga-kmd/encode"
	"github.com/virtualbox-guest/vmsvga-kmd/hw"
	"github.com/virtualbox-guest/vmsvga-kmd/status"
)

// OTableType identifies one of the global (not per-context) object
// tables, grounded on SVGAOTableType / s_aOTInfo in
// original_source/.../gallium/Svga.cpp's svgaObjectTablesNotify.
type OTableType uint32

const (
	OTableMob OTableType = iota
	OTableSurface
	OTableContext
	OTableShader
	OTableScreenTarget
	OTableDXContext
	otableTypeCount
)

var otableEntrySize = [otableTypeCount]uint32{
	8,  // Mob
	8,  // Surface
	8,  // Context
	8,  // Shader (not used on this device generation)
	64, // ScreenTarget
	8,  // DXContext
}

// otableMaxEntries bounds how large each global table may grow,
// mirroring s_aOTInfo's cMaxEntries.
var otableMaxEntries = [otableTypeCount]uint32{
	1 << 20, // Mob
	1 << 20, // Surface
	1 << 16, // Context
	0,       // Shader
	64,      // ScreenTarget
	1 << 16, // DXContext
}

// OTable is one global object table: unlike a CotSet's per-context
// COTables, these are backed directly by a GBO (SvgaGboInit/Fill), not a
// full Mob — the global tables are set up once, before any context
// exists, and have no host-visible MOB id of their own.
type OTable struct {
	otype   OTableType
	entries uint32
	gbo     *GBO
	dataPPN uint64
}

// Entries returns the number of valid entries the table currently
// guarantees room for.
func (t *OTable) Entries() uint32 { return t.entries }

// OTableSet holds the six global object tables.
type OTableSet struct {
	mem    *hw.PhysMem
	tables [otableTypeCount]OTable
}

// NewOTableSet creates an empty set of global object tables.
func NewOTableSet(mem *hw.PhysMem) *OTableSet {
	s := &OTableSet{mem: mem}
	for t := range s.tables {
		s.tables[t].otype = OTableType(t)
	}
	return s
}

// Table returns the OTable of the given type.
func (s *OTableSet) Table(t OTableType) *OTable { return &s.tables[t] }

// OTableGrowPlan is the single command svgaObjectTablesNotify emits for a
// global table: SetOTableBase64 the first time, GrowOTable afterward. On a
// grow the old backing pages stay allocated until the caller passes the
// plan to ReleaseOld, once Bind has been submitted and the host has
// processed it (the counterpart of original_source's command buffer
// completion callback).
type OTableGrowPlan struct {
	Bind    []byte
	OldGBO  *GBO // non-nil when this was a grow, for the caller to release after flush
	OldData uint64
}

// EnsureCapacity grows the OTable for t so that entry id is addressable.
func (s *OTableSet) EnsureCapacity(t OTableType, id uint32) (*OTableGrowPlan, status.Status) {
	if t >= otableTypeCount {
		return nil, status.InvalidParameter
	}
	tbl := &s.tables[t]
	if id < tbl.entries {
		return nil, status.OK
	}
	if id >= otableMaxEntries[t] {
		return nil, status.InvalidParameter
	}

	entrySize := otableEntrySize[t]
	required := alignUp((id+1)*entrySize, hw.PageSize)

	size := tbl.entries * entrySize
	if size == 0 {
		size = hw.PageSize
	}
	for required > size {
		size *= 2
	}
	pageCount := size / hw.PageSize

	g, st := Init(s.mem, pageCount)
	if !st.Ok() {
		return nil, st
	}
	dataBase, data, err := s.mem.Alloc(pageCount)
	if err != nil {
		g.Free()
		return nil, status.InsufficientResources
	}
	if st := g.Fill(dataBase, data); !st.Ok() {
		g.Free()
		s.mem.Free(dataBase)
		return nil, st
	}

	plan := &OTableGrowPlan{}
	if tbl.entries == 0 {
		n, _ := encode.SetOTableBase64(nil, uint32(t), g.Base(), uint32(size), g.Format())
		buf := make([]byte, n)
		encode.SetOTableBase64(buf, uint32(t), g.Base(), uint32(size), g.Format())
		plan.Bind = buf
	} else {
		validSize := tbl.entries * entrySize
		n, _ := encode.GrowOTable(nil, uint32(t), g.Base(), uint32(size), g.Format(), validSize)
		buf := make([]byte, n)
		encode.GrowOTable(buf, uint32(t), g.Base(), uint32(size), g.Format(), validSize)
		plan.Bind = buf
		plan.OldGBO = tbl.gbo
		plan.OldData = tbl.dataPPN
	}

	tbl.gbo = g
	tbl.dataPPN = dataBase
	tbl.entries = size / entrySize
	return plan, status.OK
}

// ReleaseOld frees the previous generation's backing pages after the
// caller has confirmed the host processed the grow command, mirroring
// svgaOTFreeCb's deferred free of the old gbo/hMemObj pair.
func (s *OTableSet) ReleaseOld(plan *OTableGrowPlan) {
	if plan.OldGBO == nil {
		return
	}
	plan.OldGBO.Free()
	s.mem.Free(plan.OldData)
}
