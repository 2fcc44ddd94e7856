package encode

import (
	"testing"

	"github.com/virtualbox-guest/vmsvga-kmd/status"
)

func TestSetRenderTargetFixedLayout(t *testing.T) {
	n, _ := SetRenderTarget(nil, 1, 2, SurfaceImageId{Sid: 7, Face: 0, Mipmap: 1})
	buf := make([]byte, n)
	if _, st := SetRenderTarget(buf, 1, 2, SurfaceImageId{Sid: 7, Face: 0, Mipmap: 1}); !st.Ok() {
		t.Fatal(st)
	}
	off := cmd3DHeaderLen
	if got := getU32(buf, off); got != 1 {
		t.Fatalf("cid = %d, want 1", got)
	}
	if got := getU32(buf, off+4); got != 2 {
		t.Fatalf("rtType = %d, want 2", got)
	}
	if got := getU32(buf, off+8); got != 7 {
		t.Fatalf("target.sid = %d, want 7", got)
	}
	if got := getU32(buf, off+16); got != 1 {
		t.Fatalf("target.mipmap = %d, want 1", got)
	}
}

func TestSurfaceCopyTwoCallContract(t *testing.T) {
	boxes := []CopyBox{{Width: 8, Height: 8, Depth: 1}, {SrcX: 1, DstX: 2, Width: 4, Height: 4, Depth: 1}}
	need, st := SurfaceCopy(nil, 9, SurfaceImageId{Sid: 3}, SurfaceImageId{Sid: 4}, boxes)
	if !st.Ok() {
		t.Fatal(st)
	}
	if _, st := SurfaceCopy(make([]byte, need-1), 9, SurfaceImageId{Sid: 3}, SurfaceImageId{Sid: 4}, boxes); st != status.InsufficientDmaBuffer {
		t.Fatalf("short buffer: st = %v, want InsufficientDmaBuffer", st)
	}
	buf := make([]byte, need)
	n, st := SurfaceCopy(buf, 9, SurfaceImageId{Sid: 3}, SurfaceImageId{Sid: 4}, boxes)
	if !st.Ok() || n != need {
		t.Fatalf("n=%d st=%v", n, st)
	}
	off := cmd3DHeaderLen
	if got := getU32(buf, off); got != 9 {
		t.Fatalf("cid = %d, want 9", got)
	}
	if got := getU32(buf, off+4); got != 3 {
		t.Fatalf("src.sid = %d, want 3", got)
	}
	if got := getU32(buf, off+16); got != 4 {
		t.Fatalf("dest.sid = %d, want 4", got)
	}
	boxOff := off + 4 + 12 + 12
	if got := getI32(buf, boxOff+36+12); got != 2 {
		t.Fatalf("boxes[1].dstX = %d, want 2", got)
	}
}

func TestSurfaceStretchBltFixedLayout(t *testing.T) {
	box := StretchBltBox{Src: Rect{0, 0, 10, 10}, Dest: Rect{1, 1, 20, 20}, Mode: 5}
	n, _ := SurfaceStretchBlt(nil, 1, SurfaceImageId{Sid: 10}, SurfaceImageId{Sid: 11}, box)
	buf := make([]byte, n)
	if _, st := SurfaceStretchBlt(buf, 1, SurfaceImageId{Sid: 10}, SurfaceImageId{Sid: 11}, box); !st.Ok() {
		t.Fatal(st)
	}
	off := cmd3DHeaderLen
	if got := getU32(buf, off+4); got != 10 {
		t.Fatalf("src.sid = %d, want 10", got)
	}
	if got := getU32(buf, off+16); got != 11 {
		t.Fatalf("dest.sid = %d, want 11", got)
	}
	if got := getU32(buf, off+60); got != 5 {
		t.Fatalf("mode = %d, want 5", got)
	}
}

func TestGenerateMipmapsActivateDeactivateFixedSize(t *testing.T) {
	n, _ := GenerateMipmaps(nil, 1, 2)
	if n != cmd3DHeaderLen+8 {
		t.Fatalf("GenerateMipmaps size = %d, want %d", n, cmd3DHeaderLen+8)
	}
	buf := make([]byte, n)
	GenerateMipmaps(buf, 1, 2)
	if got := getU32(buf, cmd3DHeaderLen); got != 1 {
		t.Fatalf("sid = %d, want 1", got)
	}
	if got := getU32(buf, cmd3DHeaderLen+4); got != 2 {
		t.Fatalf("filter = %d, want 2", got)
	}

	an, _ := ActivateSurface(nil, 5)
	if an != cmd3DHeaderLen+4 {
		t.Fatalf("ActivateSurface size = %d, want %d", an, cmd3DHeaderLen+4)
	}
	ab := make([]byte, an)
	ActivateSurface(ab, 5)
	if got := getU32(ab, cmd3DHeaderLen); got != 5 {
		t.Fatalf("sid = %d, want 5", got)
	}

	dn, _ := DeactivateSurface(nil, 6)
	db := make([]byte, dn)
	DeactivateSurface(db, 6)
	if got := getU32(db, cmd3DHeaderLen); got != 6 {
		t.Fatalf("sid = %d, want 6", got)
	}
}

func TestSetTextureStateTwoCallContract(t *testing.T) {
	states := []TextureState{{Stage: 0, Name: TextureBindTexture, Value: 42}, {Stage: 1, Name: 0, Value: 1}}
	need, st := SetTextureState(nil, 3, states)
	if !st.Ok() {
		t.Fatal(st)
	}
	if _, st := SetTextureState(make([]byte, need-1), 3, states); st != status.InsufficientDmaBuffer {
		t.Fatalf("short buffer: st = %v", st)
	}
	buf := make([]byte, need)
	n, st := SetTextureState(buf, 3, states)
	if !st.Ok() || n != need {
		t.Fatalf("n=%d st=%v", n, st)
	}
	off := cmd3DHeaderLen
	if got := getU32(buf, off); got != 3 {
		t.Fatalf("cid = %d, want 3", got)
	}
	entry0 := off + 4
	if got := getU32(buf, entry0+8); got != 42 {
		t.Fatalf("states[0].value = %d, want 42", got)
	}
	entry1 := entry0 + 12
	if got := getU32(buf, entry1+4); got != 0 {
		t.Fatalf("states[1].name = %d, want 0", got)
	}
}

func TestDrawPrimitivesTwoCallContract(t *testing.T) {
	decls := []VertexDecl{{Sid: 1, Type: 0, Offset: 0, Stride: 12}}
	ranges := []PrimitiveRange{{IndexSid: 2, PrimType: 1, IndexBias: -3, IndexWidth: 2}}
	need, st := DrawPrimitives(nil, 4, decls, ranges)
	if !st.Ok() {
		t.Fatal(st)
	}
	if _, st := DrawPrimitives(make([]byte, need-1), 4, decls, ranges); st != status.InsufficientDmaBuffer {
		t.Fatalf("short buffer: st = %v", st)
	}
	buf := make([]byte, need)
	n, st := DrawPrimitives(buf, 4, decls, ranges)
	if !st.Ok() || n != need {
		t.Fatalf("n=%d st=%v", n, st)
	}
	off := cmd3DHeaderLen
	if got := getU32(buf, off); got != 4 {
		t.Fatalf("cid = %d, want 4", got)
	}
	if got := getU32(buf, off+4); got != 1 {
		t.Fatalf("declCount = %d, want 1", got)
	}
	if got := getU32(buf, off+8); got != 1 {
		t.Fatalf("rangeCount = %d, want 1", got)
	}
	declOff := off + 12
	if got := getU32(buf, declOff); got != 1 {
		t.Fatalf("decls[0].sid = %d, want 1", got)
	}
	rangeOff := declOff + 16
	if got := getU32(buf, rangeOff); got != 2 {
		t.Fatalf("ranges[0].indexSid = %d, want 2", got)
	}
	if got := getI32(buf, rangeOff+8); got != -3 {
		t.Fatalf("ranges[0].indexBias = %d, want -3", got)
	}
}

func TestDXCommandsFixedLayout(t *testing.T) {
	n, _ := DXSetSingleConstantBuffer(nil, 1, 2, 3, 9, 16, 64)
	buf := make([]byte, n)
	DXSetSingleConstantBuffer(buf, 1, 2, 3, 9, 16, 64)
	if got := getU32(buf, cmd3DHeaderLen+12); got != 9 {
		t.Fatalf("sid = %d, want 9", got)
	}

	pn, _ := DXPredCopyRegion(nil, 1, 5, 6, 0, 0)
	pbuf := make([]byte, pn)
	DXPredCopyRegion(pbuf, 1, 5, 6, 0, 0)
	if got := getU32(pbuf, cmd3DHeaderLen+4); got != 5 {
		t.Fatalf("dstSid = %d, want 5", got)
	}
	if got := getU32(pbuf, cmd3DHeaderLen+8); got != 6 {
		t.Fatalf("srcSid = %d, want 6", got)
	}

	rn, _ := DXDefineRTView(nil, 1, 11, 22, 0, 0)
	rbuf := make([]byte, rn)
	DXDefineRTView(rbuf, 1, 11, 22, 0, 0)
	if got := getU32(rbuf, cmd3DHeaderLen+4); got != 11 {
		t.Fatalf("viewId = %d, want 11", got)
	}
	if got := getU32(rbuf, cmd3DHeaderLen+8); got != 22 {
		t.Fatalf("sid = %d, want 22", got)
	}

	sn, _ := DXDefineSRView(nil, 1, 33, 44, 0, 0)
	sbuf := make([]byte, sn)
	DXDefineSRView(sbuf, 1, 33, 44, 0, 0)
	if got := getU32(sbuf, cmd3DHeaderLen+4); got != 33 {
		t.Fatalf("viewId = %d, want 33", got)
	}
	if got := getU32(sbuf, cmd3DHeaderLen+8); got != 44 {
		t.Fatalf("sid = %d, want 44", got)
	}
}

func TestPresentReadbackFixedSize(t *testing.T) {
	n, _ := PresentReadback(nil, 8)
	if n != cmd3DHeaderLen+4 {
		t.Fatalf("size = %d, want %d", n, cmd3DHeaderLen+4)
	}
	buf := make([]byte, n)
	PresentReadback(buf, 8)
	if got := getU32(buf, cmd3DHeaderLen); got != 8 {
		t.Fatalf("sid = %d, want 8", got)
	}
	if got := getU32(buf, 0); got != Cmd3DPresentReadback {
		t.Fatalf("opcode = %d, want %d", got, Cmd3DPresentReadback)
	}
}
