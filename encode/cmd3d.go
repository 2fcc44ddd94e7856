package encode

import "github.com/virtualbox-guest/vmsvga-kmd/status"

// DefineContext writes SVGA_3D_CMD_CONTEXT_DEFINE.
func DefineContext(buf []byte, cid uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 4
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DDefineContext, 4)
	putU32(buf, cmd3DHeaderLen, cid)
	return n, status.OK
}

// DestroyContext writes SVGA_3D_CMD_CONTEXT_DESTROY.
func DestroyContext(buf []byte, cid uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 4
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DDestroyContext, 4)
	putU32(buf, cmd3DHeaderLen, cid)
	return n, status.OK
}

// Present writes SVGA_3D_CMD_PRESENT for a whole-surface present.
func Present(buf []byte, sid, width, height uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 12
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DPresent, 12)
	off := cmd3DHeaderLen
	putU32(buf, off, sid)
	putU32(buf, off+4, width)
	putU32(buf, off+8, height)
	return n, status.OK
}

// PresentReadback writes SVGA_3D_CMD_PRESENT_READBACK, which differs from
// Present only in requesting the host read the presented image back into
// guest memory afterward; it names the same single surface.
func PresentReadback(buf []byte, sid uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 4
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DPresentReadback, 4)
	putU32(buf, cmd3DHeaderLen, sid)
	return n, status.OK
}

// SurfaceFace mirrors GASURFCREATE's per-face mip level count.
type SurfaceFace struct {
	NumMipLevels uint32
}

// SurfaceCreateParms mirrors GASURFCREATE: the fixed fields of a
// DEFINE_SURFACE command, independent of the variable-length size array.
type SurfaceCreateParms struct {
	Flags  uint32
	Format uint32
	Faces  [6]SurfaceFace
}

// SurfaceSize mirrors GASURFSIZE / SVGA3dSize.
type SurfaceSize struct {
	Width, Height, Depth uint32
}

// DefineSurface writes SVGA_3D_CMD_SURFACE_DEFINE, a composite command: a
// fixed SurfaceCreateParms header followed by one SurfaceSize per mip level
// summed across faces. Two-call contract applies.
func DefineSurface(buf []byte, sid uint32, parms SurfaceCreateParms, sizes []SurfaceSize) (int, status.Status) {
	const fixed = 4 + 4 + 4 + 6*4 // sid + surfaceFlags + format + 6 face mip counts
	n := cmd3DHeaderLen + fixed + len(sizes)*12
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DDefineSurface, uint32(fixed+len(sizes)*12))
	off := cmd3DHeaderLen
	putU32(buf, off, sid)
	putU32(buf, off+4, parms.Flags)
	putU32(buf, off+8, parms.Format)
	for i := 0; i < 6; i++ {
		putU32(buf, off+12+i*4, parms.Faces[i].NumMipLevels)
	}
	body := off + fixed
	for i, sz := range sizes {
		putU32(buf, body+i*12, sz.Width)
		putU32(buf, body+i*12+4, sz.Height)
		putU32(buf, body+i*12+8, sz.Depth)
	}
	return n, status.OK
}

// DestroySurface writes SVGA_3D_CMD_SURFACE_DESTROY.
func DestroySurface(buf []byte, sid uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 4
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DDestroySurface, 4)
	putU32(buf, cmd3DHeaderLen, sid)
	return n, status.OK
}

// SurfaceDMAToScreen writes the legacy SURFACE_DMA_TO_SCREEN shortcut used
// to blit a whole surface to the primary framebuffer.
func SurfaceDMAToScreen(buf []byte, sid, width, height, offset uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 16
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DSurfaceDMAToScreen, 16)
	off := cmd3DHeaderLen
	putU32(buf, off, sid)
	putU32(buf, off+4, width)
	putU32(buf, off+8, height)
	putU32(buf, off+12, offset)
	return n, status.OK
}

// TransferDirection is the direction of a SURFACE_DMA transfer.
type TransferDirection uint32

const (
	TransferHostToGuest TransferDirection = 0
	TransferGuestToHost TransferDirection = 1
)

// GuestImage describes the GMR-backed guest image participating in a
// SURFACE_DMA: a GMR id, a byte offset into it, and the image pitch.
type GuestImage struct {
	GMRID  uint32
	Offset uint32
	Pitch  uint32
}

// SurfaceDMA writes SVGA_3D_CMD_SURFACE_DMA.
func SurfaceDMA(buf []byte, guest GuestImage, sid uint32, face, mipmap uint32, direction TransferDirection, srcX, srcY, dstX, dstY int32, width, height uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 44
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DSurfaceDMA, 44)
	off := cmd3DHeaderLen
	putU32(buf, off, guest.GMRID)
	putU32(buf, off+4, guest.Offset)
	putU32(buf, off+8, guest.Pitch)
	putU32(buf, off+12, sid)
	putU32(buf, off+16, face)
	putU32(buf, off+20, mipmap)
	putU32(buf, off+24, uint32(direction))
	putI32(buf, off+28, srcX)
	putI32(buf, off+32, srcY)
	putI32(buf, off+36, dstX)
	putI32(buf, off+40, dstY)
	// width and height are accepted but not encoded: this simplified
	// encoding carries no copy box, so the command has no size fields;
	// callers that need per-box granularity use box-list DMA, out of scope
	// here.
	_ = width
	_ = height
	return n, status.OK
}

// BlitSurfaceToScreen writes SVGA_3D_CMD_BLIT_SURFACE_TO_SCREEN, a
// composite command carrying a variable number of destination clip
// rectangles. Two-call contract applies.
func BlitSurfaceToScreen(buf []byte, sid uint32, srcRect Rect, dstScreen uint32, dstRect Rect, clips []Rect) (int, status.Status) {
	const fixed = 4 + 16 + 4 + 16 + 4 // sid + srcRect + dstScreen + dstRect + clipCount
	n := cmd3DHeaderLen + fixed + len(clips)*16
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DBlitSurfaceToScreen, uint32(fixed+len(clips)*16))
	off := cmd3DHeaderLen
	putU32(buf, off, sid)
	putRect(buf, off+4, srcRect)
	putU32(buf, off+20, dstScreen)
	putRect(buf, off+24, dstRect)
	putU32(buf, off+40, uint32(len(clips)))
	body := off + fixed
	for i, r := range clips {
		putRect(buf, body+i*16, r)
	}
	return n, status.OK
}

// Rect is a guest rectangle, matching the RECT fields the original encoders
// take (left/top/right/bottom in original_source; expressed as x/y/w/h
// here for symmetry with DefineScreen).
type Rect struct {
	X, Y, W, H int32
}

func putRect(buf []byte, off int, r Rect) {
	putI32(buf, off, r.X)
	putI32(buf, off+4, r.Y)
	putI32(buf, off+8, r.W)
	putI32(buf, off+12, r.H)
}
