package encode

import "github.com/virtualbox-guest/vmsvga-kmd/status"

// SurfaceImageId mirrors SVGA3dSurfaceImageId: a surface plus the face and
// mip level of the image within it. Used by every command that names a
// specific image of a surface rather than the surface as a whole.
type SurfaceImageId struct {
	Sid    uint32
	Face   uint32
	Mipmap uint32
}

func putSurfaceImageId(buf []byte, off int, s SurfaceImageId) {
	putU32(buf, off, s.Sid)
	putU32(buf, off+4, s.Face)
	putU32(buf, off+8, s.Mipmap)
}

// SetRenderTarget writes SVGA_3D_CMD_SETRENDERTARGET.
func SetRenderTarget(buf []byte, cid, rtType uint32, target SurfaceImageId) (int, status.Status) {
	n := cmd3DHeaderLen + 20
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DSetRenderTarget, 20)
	off := cmd3DHeaderLen
	putU32(buf, off, cid)
	putU32(buf, off+4, rtType)
	putSurfaceImageId(buf, off+8, target)
	return n, status.OK
}

// CopyBox mirrors SVGA3dCopyBox: one source/destination region for a
// SURFACE_COPY.
type CopyBox struct {
	SrcX, SrcY, SrcZ    int32
	DstX, DstY, DstZ    int32
	Width, Height, Depth int32
}

func putCopyBox(buf []byte, off int, b CopyBox) {
	putI32(buf, off, b.SrcX)
	putI32(buf, off+4, b.SrcY)
	putI32(buf, off+8, b.SrcZ)
	putI32(buf, off+12, b.DstX)
	putI32(buf, off+16, b.DstY)
	putI32(buf, off+20, b.DstZ)
	putI32(buf, off+24, b.Width)
	putI32(buf, off+28, b.Height)
	putI32(buf, off+32, b.Depth)
}

// SurfaceCopy writes SVGA_3D_CMD_SURFACE_COPY, a composite command: a
// fixed {cid, src, dest} header followed by one CopyBox per region.
// Two-call contract applies.
func SurfaceCopy(buf []byte, cid uint32, src, dest SurfaceImageId, boxes []CopyBox) (int, status.Status) {
	const fixed = 4 + 12 + 12
	n := cmd3DHeaderLen + fixed + len(boxes)*36
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DSurfaceCopy, uint32(fixed+len(boxes)*36))
	off := cmd3DHeaderLen
	putU32(buf, off, cid)
	putSurfaceImageId(buf, off+4, src)
	putSurfaceImageId(buf, off+16, dest)
	body := off + fixed
	for i, b := range boxes {
		putCopyBox(buf, body+i*36, b)
	}
	return n, status.OK
}

// StretchBltBox carries the source/destination rectangles and filter mode
// for one SVGA_3D_CMD_SURFACE_STRETCHBLT.
type StretchBltBox struct {
	Src, Dest Rect
	Mode      uint32
}

// SurfaceStretchBlt writes SVGA_3D_CMD_SURFACE_STRETCHBLT. Unlike
// SurfaceCopy this carries exactly one box (a stretch blit is always a
// single region), so it has no variable-length tail.
func SurfaceStretchBlt(buf []byte, cid uint32, src, dest SurfaceImageId, box StretchBltBox) (int, status.Status) {
	n := cmd3DHeaderLen + 4 + 12 + 12 + 36
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DSurfaceStretchBlt, uint32(4+12+12+36))
	off := cmd3DHeaderLen
	putU32(buf, off, cid)
	putSurfaceImageId(buf, off+4, src)
	putSurfaceImageId(buf, off+16, dest)
	putRect(buf, off+28, box.Src)
	putRect(buf, off+44, box.Dest)
	putU32(buf, off+60, box.Mode)
	return n, status.OK
}

// GenerateMipmaps writes SVGA_3D_CMD_GENERATE_MIPMAPS.
func GenerateMipmaps(buf []byte, sid, filter uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 8
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DGenerateMipmaps, 8)
	off := cmd3DHeaderLen
	putU32(buf, off, sid)
	putU32(buf, off+4, filter)
	return n, status.OK
}

// ActivateSurface writes SVGA_3D_CMD_ACTIVATE_SURFACE.
func ActivateSurface(buf []byte, sid uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 4
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DActivateSurface, 4)
	putU32(buf, cmd3DHeaderLen, sid)
	return n, status.OK
}

// DeactivateSurface writes SVGA_3D_CMD_DEACTIVATE_SURFACE.
func DeactivateSurface(buf []byte, sid uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 4
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DDeactivateSurface, 4)
	putU32(buf, cmd3DHeaderLen, sid)
	return n, status.OK
}

// TextureBindTexture is the state name the rewriter looks for: a texture
// state entry whose Name equals this value carries a surface id in Value.
const TextureBindTexture uint32 = 1

// TextureState mirrors one SVGA3dTextureState entry.
type TextureState struct {
	Stage uint32
	Name  uint32
	Value uint32
}

// SetTextureState writes SVGA_3D_CMD_SETTEXTURESTATE, a composite command:
// a {cid} header followed by one TextureState per call. Two-call contract
// applies.
func SetTextureState(buf []byte, cid uint32, states []TextureState) (int, status.Status) {
	n := cmd3DHeaderLen + 4 + len(states)*12
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DSetTextureState, uint32(4+len(states)*12))
	off := cmd3DHeaderLen
	putU32(buf, off, cid)
	body := off + 4
	for i, s := range states {
		putU32(buf, body+i*12, s.Stage)
		putU32(buf, body+i*12+4, s.Name)
		putU32(buf, body+i*12+8, s.Value)
	}
	return n, status.OK
}

// VertexDecl mirrors one SVGA3dVertexDecl: the surface backing a vertex
// stream plus its format/offset/stride.
type VertexDecl struct {
	Sid              uint32
	Type             uint32
	Offset           uint32
	Stride           uint32
}

// PrimitiveRange mirrors one SVGA3dPrimitiveRange: an index buffer surface
// plus the primitive topology it describes.
type PrimitiveRange struct {
	IndexSid   uint32
	PrimType   uint32
	IndexBias  int32
	IndexWidth uint32
}

// DrawPrimitives writes SVGA_3D_CMD_DRAWPRIMITIVES, a composite command: a
// {cid, declCount, rangeCount} header, then declCount VertexDecls, then
// rangeCount PrimitiveRanges. Two-call contract applies.
func DrawPrimitives(buf []byte, cid uint32, decls []VertexDecl, ranges []PrimitiveRange) (int, status.Status) {
	const fixed = 4 + 4 + 4
	n := cmd3DHeaderLen + fixed + len(decls)*16 + len(ranges)*16
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DDrawPrimitives, uint32(fixed+len(decls)*16+len(ranges)*16))
	off := cmd3DHeaderLen
	putU32(buf, off, cid)
	putU32(buf, off+4, uint32(len(decls)))
	putU32(buf, off+8, uint32(len(ranges)))
	body := off + fixed
	for i, d := range decls {
		putU32(buf, body+i*16, d.Sid)
		putU32(buf, body+i*16+4, d.Type)
		putU32(buf, body+i*16+8, d.Offset)
		putU32(buf, body+i*16+12, d.Stride)
	}
	body += len(decls) * 16
	for i, r := range ranges {
		putU32(buf, body+i*16, r.IndexSid)
		putU32(buf, body+i*16+4, r.PrimType)
		putI32(buf, body+i*16+8, r.IndexBias)
		putU32(buf, body+i*16+12, r.IndexWidth)
	}
	return n, status.OK
}

// DXSetSingleConstantBuffer writes SVGA_3D_CMD_DX_SET_SINGLE_CONSTANT_BUFFER.
func DXSetSingleConstantBuffer(buf []byte, cid, slot, shaderType, sid, offsetInBytes, sizeInBytes uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 24
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DDXSetSingleConstantBuf, 24)
	off := cmd3DHeaderLen
	putU32(buf, off, cid)
	putU32(buf, off+4, slot)
	putU32(buf, off+8, shaderType)
	putU32(buf, off+12, sid)
	putU32(buf, off+16, offsetInBytes)
	putU32(buf, off+20, sizeInBytes)
	return n, status.OK
}

// DXPredCopyRegion writes SVGA_3D_CMD_DX_PRED_COPY_REGION.
func DXPredCopyRegion(buf []byte, cid, dstSid, srcSid, dstSubResource, srcSubResource uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 20
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DDXPredCopyRegion, 20)
	off := cmd3DHeaderLen
	putU32(buf, off, cid)
	putU32(buf, off+4, dstSid)
	putU32(buf, off+8, srcSid)
	putU32(buf, off+12, dstSubResource)
	putU32(buf, off+16, srcSubResource)
	return n, status.OK
}

// DXDefineRTView writes SVGA_3D_CMD_DX_DEFINE_RENDERTARGET_VIEW. viewId is
// the new COTABLE_RTVIEW entry this command declares.
func DXDefineRTView(buf []byte, cid, viewId, sid, format, resourceDimension uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 20
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DDXDefineRTView, 20)
	off := cmd3DHeaderLen
	putU32(buf, off, cid)
	putU32(buf, off+4, viewId)
	putU32(buf, off+8, sid)
	putU32(buf, off+12, format)
	putU32(buf, off+16, resourceDimension)
	return n, status.OK
}

// DXDefineSRView writes SVGA_3D_CMD_DX_DEFINE_SHADERRESOURCE_VIEW. viewId
// is the new COTABLE_SRVIEW entry this command declares.
func DXDefineSRView(buf []byte, cid, viewId, sid, format, resourceDimension uint32) (int, status.Status) {
	n := cmd3DHeaderLen + 20
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeader3D(buf, Cmd3DDXDefineSRView, 20)
	off := cmd3DHeaderLen
	putU32(buf, off, cid)
	putU32(buf, off+4, viewId)
	putU32(buf, off+8, sid)
	putU32(buf, off+12, format)
	putU32(buf, off+16, resourceDimension)
	return n, status.OK
}
