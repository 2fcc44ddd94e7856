// Package rewrite implements §4.G of the command-submission core: the
// command-stream rewriter that walks a user-supplied 3D command buffer,
// validates each command against a per-opcode dispatch table, notifies
// component C of any new context-object-table entry the command
// declares, patches context-id placeholders, and rewrites every
// surface-ID field that names a redirected (shared) surface — taking a
// reference on the object named, for the caller to release once the
// buffer has been submitted and retired.
package rewrite

import "github.com/virtualbox-guest/vmsvga-kmd/gbo"

// dispatchEntry describes one 3D opcode's shape: where its context-id
// field sits (if any), which COT entry it declares (if any), and how to
// enumerate the surface-id fields needing redirect rewriting.
type dispatchEntry struct {
	// cidOffset is the byte offset, within the command body (i.e. after
	// the 8-byte {id, size} header), of a context-id field to patch with
	// the active DX context. -1 if this opcode carries no context id.
	cidOffset int

	// cotType/cotIDOffset: when >= 0, this opcode declares a new entry in
	// the named per-context object table, at the uint32 field found at
	// cotIDOffset; EnsureCapacity is called with that id before the
	// command is accepted.
	cotType     gbo.CotType
	cotIDOffset int

	// surfaceFields returns the byte offsets (relative to the command
	// body) of every uint32 surface-id field this command's instance
	// carries, given the body bytes (needed for commands whose surface
	// count depends on an embedded count field).
	surfaceFields func(body []byte) []int
}

const noOffset = -1

func fixedOffsets(offsets ...int) func(body []byte) []int {
	return func(body []byte) []int { return offsets }
}

// dispatch is the opcode table, grounded on spec.md §4.G's table of
// rewritten fields and on this module's own encode package's wire
// layouts (encode/cmd3d.go, encode/cmd3d_dx.go) for the byte offsets.
var dispatch = map[uint32]dispatchEntry{
	cmdPresent:         {cidOffset: noOffset, cotIDOffset: noOffset, surfaceFields: fixedOffsets(0)},
	cmdPresentReadback: {cidOffset: noOffset, cotIDOffset: noOffset, surfaceFields: fixedOffsets(0)},
	cmdSetRenderTarget: {cidOffset: 0, cotIDOffset: noOffset, surfaceFields: fixedOffsets(8)},
	cmdSurfaceCopy:     {cidOffset: 0, cotIDOffset: noOffset, surfaceFields: fixedOffsets(4, 16)},
	cmdSurfaceStretchBlt: {cidOffset: 0, cotIDOffset: noOffset, surfaceFields: fixedOffsets(4, 16)},
	cmdBlitSurfaceToScreen: {cidOffset: noOffset, cotIDOffset: noOffset, surfaceFields: fixedOffsets(0)},
	cmdGenerateMipmaps:     {cidOffset: noOffset, cotIDOffset: noOffset, surfaceFields: fixedOffsets(0)},
	cmdActivateSurface:     {cidOffset: noOffset, cotIDOffset: noOffset, surfaceFields: fixedOffsets(0)},
	cmdDeactivateSurface:   {cidOffset: noOffset, cotIDOffset: noOffset, surfaceFields: fixedOffsets(0)},
	cmdSurfaceDMA:          {cidOffset: noOffset, cotIDOffset: noOffset, surfaceFields: fixedOffsets(12)},
	cmdSetTextureState: {
		cidOffset:   0,
		cotIDOffset: noOffset,
		surfaceFields: func(body []byte) []int {
			var offs []int
			for off := 4; off+12 <= len(body); off += 12 {
				name := getU32(body, off+4)
				if name == bindTextureName {
					offs = append(offs, off+8)
				}
			}
			return offs
		},
	},
	cmdDrawPrimitives: {
		cidOffset:   0,
		cotIDOffset: noOffset,
		surfaceFields: func(body []byte) []int {
			if len(body) < 12 {
				return nil
			}
			declCount := int(getU32(body, 4))
			rangeCount := int(getU32(body, 8))
			var offs []int
			base := 12
			for i := 0; i < declCount; i++ {
				offs = append(offs, base+i*16)
			}
			base += declCount * 16
			for i := 0; i < rangeCount; i++ {
				offs = append(offs, base+i*16)
			}
			return offs
		},
	},
	cmdDXSetSingleConstantBuffer: {cidOffset: 0, cotIDOffset: noOffset, surfaceFields: fixedOffsets(12)},
	cmdDXPredCopyRegion:          {cidOffset: 0, cotIDOffset: noOffset, surfaceFields: fixedOffsets(4, 8)},
	cmdDXDefineRTView:            {cidOffset: 0, cotType: gbo.CotRTView, cotIDOffset: 4, surfaceFields: fixedOffsets(8)},
	cmdDXDefineSRView:            {cidOffset: 0, cotType: gbo.CotSRView, cotIDOffset: 4, surfaceFields: fixedOffsets(8)},
}

// Opcode ids, mirrored from encode's constants (kept local so this
// package does not need to import encode just for its opcode space —
// both packages agree with spec.md §6's numbering).
const (
	cmdPresent                   uint32 = 1006
	cmdPresentReadback           uint32 = 1007
	cmdSetRenderTarget           uint32 = 1008
	cmdSurfaceCopy               uint32 = 1009
	cmdSurfaceStretchBlt         uint32 = 1010
	cmdBlitSurfaceToScreen       uint32 = 1011
	cmdGenerateMipmaps           uint32 = 1012
	cmdActivateSurface           uint32 = 1013
	cmdDeactivateSurface         uint32 = 1014
	cmdSetTextureState           uint32 = 1015
	cmdDrawPrimitives            uint32 = 1016
	cmdDXSetSingleConstantBuffer uint32 = 1017
	cmdDXPredCopyRegion          uint32 = 1018
	cmdDXDefineRTView            uint32 = 1019
	cmdDXDefineSRView            uint32 = 1020
	cmdSurfaceDMA                uint32 = 1005

	bindTextureName uint32 = 1 // matches encode.TextureBindTexture
)
