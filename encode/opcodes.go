// Package encode implements §4.E of the command-submission core: pure
// command encoders. Each function writes exactly one well-formed command
// record into a caller-supplied buffer; none of them lock, allocate, or
// touch the device, mirroring the teacher's SvgaCmd* functions (see
// original_source/.../gallium/SvgaCmd.cpp) and the teacher repo's own habit
// of keeping wire-encoding free of side effects (raw/types.go in
// github.com/hanwen/go-fuse/v2 defines request/reply structs the same way —
// plain memory layouts, no behaviour attached).
//
// Command IDs follow spec.md §6's own numbering convention literally: FIFO
// (legacy) commands occupy the "1xx" space, 3D commands the "10xx" space.
package encode

// FIFO command ids ("1xx" space, spec.md §6).
const (
	CmdUpdate            uint32 = 100
	CmdDefineCursor      uint32 = 101
	CmdDefineAlphaCursor uint32 = 102
	CmdFence             uint32 = 103
	CmdDefineGMRFB       uint32 = 104
	CmdBlitGMRFBToScreen uint32 = 105
	CmdBlitScreenToGMRFB uint32 = 106
	CmdDefineScreen      uint32 = 107
	CmdDestroyScreen     uint32 = 108
	CmdDefineGMR2        uint32 = 109
	CmdRemapGMR2         uint32 = 110
)

// 3D command ids ("10xx" space, spec.md §6).
const (
	Cmd3DDefineContext          uint32 = 1000
	Cmd3DDestroyContext         uint32 = 1001
	Cmd3DDefineSurface          uint32 = 1002
	Cmd3DDestroySurface         uint32 = 1003
	Cmd3DSurfaceDMAToScreen     uint32 = 1004
	Cmd3DSurfaceDMA             uint32 = 1005
	Cmd3DPresent                uint32 = 1006
	Cmd3DPresentReadback        uint32 = 1007
	Cmd3DSetRenderTarget        uint32 = 1008
	Cmd3DSurfaceCopy            uint32 = 1009
	Cmd3DSurfaceStretchBlt      uint32 = 1010
	Cmd3DBlitSurfaceToScreen    uint32 = 1011
	Cmd3DGenerateMipmaps        uint32 = 1012
	Cmd3DActivateSurface        uint32 = 1013
	Cmd3DDeactivateSurface      uint32 = 1014
	Cmd3DSetTextureState        uint32 = 1015
	Cmd3DDrawPrimitives         uint32 = 1016
	Cmd3DDXSetSingleConstantBuf uint32 = 1017
	Cmd3DDXPredCopyRegion       uint32 = 1018
	Cmd3DDXDefineRTView         uint32 = 1019
	Cmd3DDXDefineSRView         uint32 = 1020
	Cmd3DSetOTableBase64        uint32 = 1021
	Cmd3DGrowOTable             uint32 = 1022
	Cmd3DDXSetCOTable           uint32 = 1023
	Cmd3DDXGrowCOTable          uint32 = 1024
	Cmd3DDefineGBMob            uint32 = 1025
	Cmd3DDestroyGBMob           uint32 = 1026
	Cmd3DDefineGBSurfaceV4      uint32 = 1027
	Cmd3DBindGBSurface          uint32 = 1028
	Cmd3DDXDefineContext        uint32 = 1029
	Cmd3DDXDestroyContext       uint32 = 1030
	Cmd3DWriteFence64           uint32 = 1031
	Cmd3DDefineGMR2Next         uint32 = 1032 // reserved
)

// SVGA_GMR_FRAMEBUFFER, the reserved GMR id meaning "screen backing store".
const GMRFramebuffer uint32 = 0xFFFFFFFE

// InvalidID is the sentinel "none" value for surface/context/MOB ids.
const InvalidID uint32 = 0
