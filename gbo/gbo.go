// Package gbo implements §4.C of the command-submission core: Guest
// Backed Object page tables (GBOs), the Memory Object (MOB) layer built on
// top of them, GMRs, and the growable object/context-object tables.
//
// The page-table construction in Init/Fill is grounded directly on
// SvgaGboInit/SvgaGboFillPageTableForMemObj in
// original_source/.../gallium/Svga.cpp: depth is chosen from the page
// count (a single page needs no indirection, 1 page of PPN64 entries covers up to
// 512 pages, 2 levels cover up to 512*512), and for depth 2 the level-2
// page holds the level-1 pages' own PPNs at PT page offset 0.
package gbo

import (
	"github.com/virtualbox-guest/vmsvga-kmd/encode"
	"github.com/virtualbox-guest/vmsvga-kmd/hw"
	"github.com/virtualbox-guest/vmsvga-kmd/status"
)

// ppnsPerPage is how many 64-bit PPN entries fit in one guest page.
const ppnsPerPage = hw.PageSize / 8

// GBO is a guest-backed object: a set of guest pages described to the host
// either directly (depth 0, a single page) or through one or two levels of
// PPN64 page-table pages.
type GBO struct {
	mem *hw.PhysMem

	format    encode.MobFormat
	pageCount uint32
	sizeBytes uint64

	ptBase  uint64 // PPN of the first (and base) page-table page
	ptPages [][]byte

	base uint64 // PPN handed to the host: the data base (depth 0) or the PT base (depth 1/2)

	dataBase uint64 // PPN of the first data page, filled by Fill
	data     [][]byte
}

// FormatFor picks the MOB page-table depth for pageCount pages, mirroring
// SvgaGboInit's three-way split.
func FormatFor(pageCount uint32) (encode.MobFormat, uint32, status.Status) {
	switch {
	case pageCount == 1:
		return encode.MobFormatPTDepth0, 0, status.OK
	case pageCount <= ppnsPerPage:
		return encode.MobFormatPTDepth1, 1, status.OK
	case pageCount <= ppnsPerPage*ppnsPerPage:
		level1Pages := (pageCount + ppnsPerPage - 1) / ppnsPerPage
		return encode.MobFormatPTDepth2, 1 + level1Pages, status.OK
	default:
		return 0, 0, status.InvalidParameter
	}
}

// Init allocates the page-table pages (if any) for a GBO covering
// pageCount guest pages, without yet binding it to backing data pages;
// Fill does that once the caller has the data allocation in hand.
func Init(mem *hw.PhysMem, pageCount uint32) (*GBO, status.Status) {
	format, ptPageCount, st := FormatFor(pageCount)
	if !st.Ok() {
		return nil, st
	}

	g := &GBO{
		mem:       mem,
		format:    format,
		pageCount: pageCount,
		sizeBytes: uint64(pageCount) * hw.PageSize,
	}

	if ptPageCount == 0 {
		return g, status.OK
	}

	ptBase, ptData, err := mem.Alloc(ptPageCount)
	if err != nil {
		return nil, status.InsufficientResources
	}
	g.ptBase = ptBase
	g.ptPages = splitPages(ptData)

	if format == encode.MobFormatPTDepth2 {
		// Level 2 page (ptPages[0]) stores the PPNs of the level 1 pages
		// that follow it, skipping itself, per SvgaGboInit.
		level2 := g.ptPages[0]
		for i := 1; i < len(g.ptPages); i++ {
			putPPN(level2, (i-1)*8, hw.PPN(ptBase)+uint64(i))
		}
	}

	return g, status.OK
}

// Free releases the GBO's page-table pages. It does not touch the data
// pages Fill bound in; the caller owns those independently.
func (g *GBO) Free() {
	if g.ptBase != 0 {
		g.mem.Free(g.ptBase)
		g.ptBase = 0
		g.ptPages = nil
	}
}

// Fill binds dataBase/data (pageCount pages from hw.PhysMem.Alloc) as the
// GBO's backing storage, writing their PPNs into the page-table pages for
// depth 1/2, mirroring SvgaGboFillPageTableForMemObj.
func (g *GBO) Fill(dataBase uint64, data []byte) status.Status {
	pages := splitPages(data)
	if uint32(len(pages)) != g.pageCount {
		return status.InvalidParameter
	}
	g.dataBase = dataBase
	g.data = pages

	switch g.format {
	case encode.MobFormatPTDepth0:
		g.base = hw.PPN(dataBase)
	case encode.MobFormatPTDepth1:
		g.base = hw.PPN(g.ptBase)
		for i := range pages {
			putPPN(g.ptPages[0], i*8, hw.PPN(dataBase)+uint64(i))
		}
	case encode.MobFormatPTDepth2:
		g.base = hw.PPN(g.ptBase)
		for i := range pages {
			level1 := i / ppnsPerPage
			within := i % ppnsPerPage
			putPPN(g.ptPages[1+level1], within*8, hw.PPN(dataBase)+uint64(i))
		}
	}
	return status.OK
}

// Format returns the MOB page-table format chosen for this GBO.
func (g *GBO) Format() encode.MobFormat { return g.format }

// Base returns the PPN the host should be told about (SetOTableBase64's
// baseAddr, DefineGBMob's ptBase): the page-table root, or the single data
// page for depth 0.
func (g *GBO) Base() uint64 { return g.base }

// SizeBytes returns the GBO's total backing size in bytes.
func (g *GBO) SizeBytes() uint64 { return g.sizeBytes }

// DataPage returns data page i, for software-simulated paging/DMA paths
// that need to read or write through the GBO without going through the
// (absent) real host GPU.
func (g *GBO) DataPage(i int) []byte {
	if i < 0 || i >= len(g.data) {
		return nil
	}
	return g.data[i]
}

func splitPages(buf []byte) [][]byte {
	n := len(buf) / hw.PageSize
	pages := make([][]byte, n)
	for i := range pages {
		pages[i] = buf[i*hw.PageSize : (i+1)*hw.PageSize]
	}
	return pages
}

func putPPN(page []byte, off int, ppn uint64) {
	page[off+0] = byte(ppn)
	page[off+1] = byte(ppn >> 8)
	page[off+2] = byte(ppn >> 16)
	page[off+3] = byte(ppn >> 24)
	page[off+4] = byte(ppn >> 32)
	page[off+5] = byte(ppn >> 40)
	page[off+6] = byte(ppn >> 48)
	page[off+7] = byte(ppn >> 56)
}
