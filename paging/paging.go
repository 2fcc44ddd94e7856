// Package paging implements §4.I of the command-submission core: building
// the guest/host pixel-transfer command sequences the present and paging
// paths use (DEFINE_GMRFB + BLIT_GMRFB_TO_SCREEN / BLIT_SCREEN_TO_GMRFB,
// SURFACE_DMA, and BLIT_SURFACE_TO_SCREEN), grounded on gaGMRFBToVRAMSurface
// and gaPresentBlt in original_source/.../gallium/VBoxMPGaWddm.cpp.
//
// Build never touches guest physical memory directly: every command it
// writes that carries a guest pointer names the framebuffer GMR
// (encode.GMRFramebuffer) as a placeholder, and the byte offset of that
// pointer's offset field within the output buffer is reported back as a
// PatchEntry so the framework can relocate it to the allocation's real
// physical address before the buffer is submitted.
package paging

import (
	"github.com/virtualbox-guest/vmsvga-kmd/encode"
	"github.com/virtualbox-guest/vmsvga-kmd/status"
)

// fifoHeaderLen and cmd3DHeaderLen mirror encode's unexported constants of
// the same name: the legacy FIFO {id} header and the 3D {id, size} header.
const (
	fifoHeaderLen = 4
	cmd3DHeaderLen = 8
)

// Op selects which of the four present/paging code paths Build follows.
type Op uint8

const (
	// OpGMRFBToScreen copies a GMR-backed virtual framebuffer to the screen,
	// used to present a shadow or staging surface (gaGMRFBToVRAMSurface's
	// SVGA_CMD_BLIT_GMRFB_TO_SCREEN path).
	OpGMRFBToScreen Op = iota
	// OpScreenToGMRFB copies the screen into a GMR-backed virtual
	// framebuffer, the inverse direction (SVGA_CMD_BLIT_SCREEN_TO_GMRFB).
	OpScreenToGMRFB
	// OpSurfaceDMA transfers a GPU surface to or from a GMR-backed guest
	// image directly, with no DEFINE_GMRFB prefix: the guest pointer is
	// embedded in every SURFACE_DMA command.
	OpSurfaceDMA
	// OpSurfaceToScreen presents a GPU surface straight to the screen with
	// a single BLIT_SURFACE_TO_SCREEN command carrying every destination
	// subrectangle as a clip rect — no guest pointer, so no patch entries.
	OpSurfaceToScreen
)

// PatchEntry names one guest-pointer field the framework must relocate
// before submission: the allocation the pointer names, the command's start
// offset within the output buffer, and the field's byte offset within the
// command.
type PatchEntry struct {
	AllocationIndex uint32
	CommandOffset   int
	FieldOffset     int
}

// AbsoluteOffset is the field's offset from the start of the output buffer,
// the value a relocation pass actually patches.
func (p PatchEntry) AbsoluteOffset() int { return p.CommandOffset + p.FieldOffset }

// Request describes one paging/present operation. Which fields apply
// depends on Op: the GMR fields for OpGMRFBToScreen/OpScreenToGMRFB/
// OpSurfaceDMA, the surface fields for OpSurfaceDMA/OpSurfaceToScreen.
type Request struct {
	Op Op

	// GMRAllocationIndex identifies the GMR-backed allocation the guest
	// pointer in every emitted command names; carried through untouched
	// into each PatchEntry.
	GMRAllocationIndex uint32
	GMROffset          uint32
	Pitch              uint32

	Screen    uint32
	SurfaceID uint32
	Face      uint32
	Mipmap    uint32
	Direction encode.TransferDirection

	// SrcRect and DstRect are the overall bounding boxes of the source and
	// destination images; SubRects are given in destination coordinate
	// space, mirroring pDstSubRects in the original present path. The
	// constant offset between source and destination is derived once from
	// SrcRect/DstRect and applied to every subrectangle.
	SrcRect  encode.Rect
	DstRect  encode.Rect
	SubRects []encode.Rect
}

// Result reports what Build produced: the bytes written, the patch entries
// for every guest pointer among them, and the subrectangle index a follow-up
// call should resume from when the buffer ran out mid-operation.
type Result struct {
	N           int
	Patches     []PatchEntry
	NextSubrect int
}

// Build writes the command sequence for req into buf, starting from
// subrectangle startSubrect (0 on the first call). A zero-length buf is a
// sizing-only call, as elsewhere in this module: it reports the bytes
// needed for every subrectangle from startSubrect onward without writing
// anything.
//
// On InsufficientDmaBuffer for the per-subrect paths (GMRFB<->screen,
// surface DMA), Result.NextSubrect names the first subrectangle that did
// not fit; the caller resubmits starting there once the buffer has drained
// or grown. OpSurfaceToScreen's single composite command instead trims its
// own clip-rect list to whatever fits, reporting the same contract through
// NextSubrect.
func Build(buf []byte, req Request, startSubrect int) (Result, status.Status) {
	switch req.Op {
	case OpGMRFBToScreen:
		return buildGMRFBBlit(buf, req, startSubrect, true)
	case OpScreenToGMRFB:
		return buildGMRFBBlit(buf, req, startSubrect, false)
	case OpSurfaceDMA:
		return buildSurfaceDMA(buf, req, startSubrect)
	case OpSurfaceToScreen:
		return buildSurfaceToScreen(buf, req, startSubrect)
	default:
		return Result{}, status.InvalidParameter
	}
}

// buildGMRFBBlit implements OpGMRFBToScreen (toScreen == true) and
// OpScreenToGMRFB (toScreen == false): one DEFINE_GMRFB, patched and emitted
// only on the first call, followed by one BLIT_GMRFB_TO_SCREEN or
// BLIT_SCREEN_TO_GMRFB per destination subrectangle.
func buildGMRFBBlit(buf []byte, req Request, startSubrect int, toScreen bool) (Result, status.Status) {
	sizing := len(buf) == 0
	var result Result
	off := 0

	if startSubrect == 0 {
		n, st := encode.DefineGMRFB(window(buf, off, sizing), req.GMROffset, req.Pitch)
		if !st.Ok() {
			return Result{NextSubrect: 0}, st
		}
		result.Patches = append(result.Patches, PatchEntry{
			AllocationIndex: req.GMRAllocationIndex,
			CommandOffset:   off,
			FieldOffset:     fifoHeaderLen + 4,
		})
		off += n
	}

	dx := req.SrcRect.X - req.DstRect.X
	dy := req.SrcRect.Y - req.DstRect.Y

	i := startSubrect
	for ; i < len(req.SubRects); i++ {
		r := req.SubRects[i]
		left, top := r.X, r.Y
		right, bottom := r.X+r.W, r.Y+r.H
		srcX, srcY := r.X+dx, r.Y+dy

		var n int
		var st status.Status
		if !sizing && off >= len(buf) {
			st = status.InsufficientDmaBuffer
		} else if toScreen {
			n, st = encode.BlitGMRFBToScreen(window(buf, off, sizing), req.Screen, srcX, srcY, left, top, right, bottom)
		} else {
			n, st = encode.BlitScreenToGMRFB(window(buf, off, sizing), req.Screen, srcX, srcY, left, top, right, bottom)
		}
		if !st.Ok() {
			result.N = off
			result.NextSubrect = i
			return result, st
		}
		off += n
	}

	result.N = off
	result.NextSubrect = len(req.SubRects)
	return result, status.OK
}

// buildSurfaceDMA implements OpSurfaceDMA: one SURFACE_DMA command per
// subrectangle, each carrying its own guest-image pointer (no shared
// DEFINE_GMRFB prefix, since SURFACE_DMA embeds the pointer directly).
func buildSurfaceDMA(buf []byte, req Request, startSubrect int) (Result, status.Status) {
	sizing := len(buf) == 0
	var result Result
	off := 0

	dx := req.SrcRect.X - req.DstRect.X
	dy := req.SrcRect.Y - req.DstRect.Y
	guest := encode.GuestImage{GMRID: encode.GMRFramebuffer, Offset: req.GMROffset, Pitch: req.Pitch}

	i := startSubrect
	for ; i < len(req.SubRects); i++ {
		r := req.SubRects[i]
		dstX, dstY := r.X, r.Y
		srcX, srcY := r.X+dx, r.Y+dy

		if !sizing && off >= len(buf) {
			result.N = off
			result.NextSubrect = i
			return result, status.InsufficientDmaBuffer
		}
		n, st := encode.SurfaceDMA(window(buf, off, sizing), guest, req.SurfaceID, req.Face, req.Mipmap, req.Direction,
			srcX, srcY, dstX, dstY, uint32(r.W), uint32(r.H))
		if !st.Ok() {
			result.N = off
			result.NextSubrect = i
			return result, st
		}
		result.Patches = append(result.Patches, PatchEntry{
			AllocationIndex: req.GMRAllocationIndex,
			CommandOffset:   off,
			FieldOffset:     cmd3DHeaderLen + 4,
		})
		off += n
	}

	result.N = off
	result.NextSubrect = len(req.SubRects)
	return result, status.OK
}

// buildSurfaceToScreen implements OpSurfaceToScreen: a single
// BLIT_SURFACE_TO_SCREEN command carrying every remaining subrectangle as a
// clip rect, the improvement the original source's present path only left a
// TODO for. No guest pointer is involved, so no patch entries are produced.
// If the full clip list does not fit the buffer, the clip count is trimmed
// to whatever does, and the caller resumes the remainder with NextSubrect.
func buildSurfaceToScreen(buf []byte, req Request, startSubrect int) (Result, status.Status) {
	sizing := len(buf) == 0
	remaining := req.SubRects[startSubrect:]

	count := len(remaining)
	for {
		n, st := encode.BlitSurfaceToScreen(window(buf, 0, sizing), req.SurfaceID, req.SrcRect, req.Screen, req.DstRect, remaining[:count])
		if st.Ok() {
			return Result{N: n, NextSubrect: startSubrect + count}, status.OK
		}
		if st != status.InsufficientDmaBuffer || count == 0 {
			return Result{}, st
		}
		count--
	}
}

// window returns buf[off:] for a real build, and nil when sizing is true
// (the top-level call had a zero-length buf). This distinction matters at
// the exact point a real buffer runs out: buf[off:] can itself be a
// zero-length slice there, which encode's sizing convention would otherwise
// misread as "caller only wants the size" instead of "buffer exhausted" —
// callers check the off >= len(buf) case explicitly before reaching here.
func window(buf []byte, off int, sizing bool) []byte {
	if sizing {
		return nil
	}
	return buf[off:]
}
