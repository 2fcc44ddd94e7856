package encode

import "github.com/virtualbox-guest/vmsvga-kmd/status"

// MobFormat mirrors SVGA3dMobFormat: how a MOB's backing pages are laid
// out (flat page list, or one/two levels of indirection).
type MobFormat uint32

const (
	MobFormatPTDepth0 MobFormat = 0
	MobFormatPTDepth1 MobFormat = 1
	MobFormatPTDepth2 MobFormat = 2
)

// SetOTableBase64 writes SVGA_3D_CMD_SET_OTABLE_BASE64: binds the physical
// base of one of the object tables (context/surface/shader/screen target
// etc, identified by otype) and its total backing size in bytes.
func SetOTableBase64(buf []byte, otype uint32, baseAddr uint64, sizeBytes uint32, mobFormat MobFormat) (int, status.Status) {
	n := cmd3DHeaderLen + 24
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DSetOTableBase64, 24)
	off := cmd3DHeaderLen
	putU32(buf, off, otype)
	putU64(buf, off+8, baseAddr)
	putU32(buf, off+16, sizeBytes)
	putU32(buf, off+20, uint32(mobFormat))
	return n, status.OK
}

// GrowOTable writes SVGA_3D_CMD_GROW_OTABLE: reallocates an object table
// in place, preserving the validSizeBytes worth of existing entries.
func GrowOTable(buf []byte, otype uint32, baseAddr uint64, newSizeBytes uint32, mobFormat MobFormat, validSizeBytes uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 28
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DGrowOTable, 28)
	off := cmd3DHeaderLen
	putU32(buf, off, otype)
	putU64(buf, off+8, baseAddr)
	putU32(buf, off+16, newSizeBytes)
	putU32(buf, off+20, uint32(mobFormat))
	putU32(buf, off+24, validSizeBytes)
	return n, status.OK
}

// DXSetCOTable writes SVGA_3D_CMD_DX_SET_COTABLE: binds a per-context
// object table (one of the COTABLE_* types) to a MOB.
func DXSetCOTable(buf []byte, cid, cotableType, mobid, validSizeEntries uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 16
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DDXSetCOTable, 16)
	off := cmd3DHeaderLen
	putU32(buf, off, cid)
	putU32(buf, off+4, mobid)
	putU32(buf, off+8, cotableType)
	putU32(buf, off+12, validSizeEntries)
	return n, status.OK
}

// DXGrowCOTable writes SVGA_3D_CMD_DX_GROW_COTABLE.
func DXGrowCOTable(buf []byte, cid, cotableType, mobid, newSizeEntries, validSizeEntries uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 20
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DDXGrowCOTable, 20)
	off := cmd3DHeaderLen
	putU32(buf, off, cid)
	putU32(buf, off+4, mobid)
	putU32(buf, off+8, cotableType)
	putU32(buf, off+12, newSizeEntries)
	putU32(buf, off+16, validSizeEntries)
	return n, status.OK
}

// DefineGBMob writes SVGA_3D_CMD_DEFINE_GB_MOB: registers a MOB id with
// its page-table format, depth-dependent base page, and size in pages.
func DefineGBMob(buf []byte, mobid uint32, format MobFormat, ptBase uint64, sizePages uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 20
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DDefineGBMob, 20)
	off := cmd3DHeaderLen
	putU32(buf, off, mobid)
	putU32(buf, off+4, uint32(format))
	putU64(buf, off+8, ptBase)
	putU32(buf, off+16, sizePages)
	return n, status.OK
}

// DestroyGBMob writes SVGA_3D_CMD_DESTROY_GB_MOB.
func DestroyGBMob(buf []byte, mobid uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 4
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DDestroyGBMob, 4)
	putU32(buf, cmd3DHeaderLen, mobid)
	return n, status.OK
}

// DefineGBSurfaceV4 writes SVGA_3D_CMD_DEFINE_GB_SURFACE_V4: like
// DefineSurface but for a guest-backed surface, with no MOB bound yet
// (BindGBSurface does that separately).
func DefineGBSurfaceV4(buf []byte, sid uint32, parms SurfaceCreateParms, baseSize SurfaceSize, arraySize, numMipLevels, multisampleCount uint32) (int, status.Status) {
	const fixed = 4 + 4 + 4 + 6*4 + 12 + 4 + 4 + 4
	n := cmd3DHeaderLen + fixed
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DDefineGBSurfaceV4, uint32(fixed))
	off := cmd3DHeaderLen
	putU32(buf, off, sid)
	putU32(buf, off+4, parms.Flags)
	putU32(buf, off+8, parms.Format)
	for i := 0; i < 6; i++ {
		putU32(buf, off+12+i*4, parms.Faces[i].NumMipLevels)
	}
	base := off + 4 + 4 + 4 + 6*4
	putU32(buf, base, baseSize.Width)
	putU32(buf, base+4, baseSize.Height)
	putU32(buf, base+8, baseSize.Depth)
	putU32(buf, base+12, arraySize)
	putU32(buf, base+16, numMipLevels)
	putU32(buf, base+20, multisampleCount)
	return n, status.OK
}

// BindGBSurface writes SVGA_3D_CMD_BIND_GB_SURFACE: binds a previously
// defined guest-backed surface to a MOB's backing storage.
func BindGBSurface(buf []byte, sid, mobid uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 8
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DBindGBSurface, 8)
	off := cmd3DHeaderLen
	putU32(buf, off, sid)
	putU32(buf, off+4, mobid)
	return n, status.OK
}

// DXDefineContext writes SVGA_3D_CMD_DX_DEFINE_CONTEXT: the DX-pipeline
// counterpart of DefineContext, one per hardware context plus its COTable
// set.
func DXDefineContext(buf []byte, cid uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 4
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DDXDefineContext, 4)
	putU32(buf, cmd3DHeaderLen, cid)
	return n, status.OK
}

// DXDestroyContext writes SVGA_3D_CMD_DX_DESTROY_CONTEXT.
func DXDestroyContext(buf []byte, cid uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 4
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DDXDestroyContext, 4)
	putU32(buf, cmd3DHeaderLen, cid)
	return n, status.OK
}

// WriteFence64 writes SVGA_3D_CMD_WRITE_FENCE64: tells the host to write
// fence value into the guest-visible MOB at mobOffset once this command
// retires, independent of the legacy SVGA_FIFO_FENCE word.
func WriteFence64(buf []byte, fenceValue uint64, mobid, mobOffset uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 16
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DWriteFence64, 16)
	off := cmd3DHeaderLen
	putU64(buf, off, fenceValue)
	putU32(buf, off+8, mobid)
	putU32(buf, off+12, mobOffset)
	return n, status.OK
}
