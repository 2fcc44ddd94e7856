package hostobj

import (
	"testing"

	"github.com/virtualbox-guest/vmsvga-kmd/encode"
	"github.com/virtualbox-guest/vmsvga-kmd/gbo"
	"github.com/virtualbox-guest/vmsvga-kmd/hw"
	"github.com/virtualbox-guest/vmsvga-kmd/status"
)

type recordingSink struct {
	submitted [][]byte
	fail      bool
}

func (s *recordingSink) Submit(cmd []byte) status.Status {
	if s.fail {
		return status.InsufficientDmaBuffer
	}
	cp := append([]byte(nil), cmd...)
	s.submitted = append(s.submitted, cp)
	return status.OK
}

func simpleParms(mipLevels uint32) encode.SurfaceCreateParms {
	var p encode.SurfaceCreateParms
	p.Format = 1
	p.Faces[0].NumMipLevels = mipLevels
	return p
}

func TestSurfaceCreateValidatesFaceCount(t *testing.T) {
	sink := &recordingSink{}
	set := NewSurfaceSet(256, nil, sink)

	sizes := []encode.SurfaceSize{{Width: 64, Height: 64, Depth: 1}}
	sid, st := set.Create(simpleParms(1), sizes)
	if !st.Ok() {
		t.Fatal(st)
	}
	if sid == 0 {
		t.Fatal("expected nonzero surface id")
	}
	if len(sink.submitted) != 1 {
		t.Fatalf("expected one DefineSurface command submitted, got %d", len(sink.submitted))
	}
}

func TestSurfaceCreateRejectsMismatchedSizeCount(t *testing.T) {
	sink := &recordingSink{}
	set := NewSurfaceSet(256, nil, sink)

	// 2 mip levels declared but only one size supplied.
	sizes := []encode.SurfaceSize{{Width: 64, Height: 64, Depth: 1}}
	if _, st := set.Create(simpleParms(2), sizes); st.Ok() {
		t.Fatal("expected validation failure on size/mip-level mismatch")
	}
}

func TestSurfaceCreateRejectsNonUniformCubemapMips(t *testing.T) {
	sink := &recordingSink{}
	set := NewSurfaceSet(256, nil, sink)

	var p encode.SurfaceCreateParms
	for i := 0; i < 6; i++ {
		p.Faces[i].NumMipLevels = uint32(i + 1) // non-uniform
	}
	if _, st := set.Create(p, nil); st.Ok() {
		t.Fatal("expected validation failure on non-uniform cubemap mip counts")
	}
}

func TestSurfaceDestroyTornDownAfterLastRelease(t *testing.T) {
	sink := &recordingSink{}
	set := NewSurfaceSet(256, nil, sink)

	sid, st := set.Create(simpleParms(1), []encode.SurfaceSize{{Width: 1, Height: 1, Depth: 1}})
	if !st.Ok() {
		t.Fatal(st)
	}

	if _, ok := set.Query(sid); !ok {
		t.Fatal("expected surface to be queryable")
	}
	set.Release(sid, true) // undo the Query above

	if st := set.Destroy(sid, true); !st.Ok() {
		t.Fatal(st)
	}
	if _, ok := set.Query(sid); ok {
		t.Fatal("surface should be gone after Destroy")
	}
}

func TestSurfaceSharedRedirectRoundTrip(t *testing.T) {
	sink := &recordingSink{}
	set := NewSurfaceSet(256, nil, sink)

	a, st := set.Create(simpleParms(1), []encode.SurfaceSize{{Width: 1, Height: 1, Depth: 1}})
	if !st.Ok() {
		t.Fatal(st)
	}
	b, st := set.Create(simpleParms(1), []encode.SurfaceSize{{Width: 1, Height: 1, Depth: 1}})
	if !st.Ok() {
		t.Fatal(st)
	}

	if st := set.InsertSharedRedirect(a, b); !st.Ok() {
		t.Fatal(st)
	}
	surf, ok := set.Query(a)
	if !ok {
		t.Fatal("expected surface a to be queryable")
	}
	if surf.Redirect() != b {
		t.Fatalf("redirect = %d, want %d", surf.Redirect(), b)
	}
	set.Release(a, true)

	if st := set.RemoveSharedRedirect(a, true); !st.Ok() {
		t.Fatal(st)
	}
	surf, _ = set.Query(a)
	if surf.Redirect() != 0 {
		t.Fatal("redirect should be cleared")
	}
	set.Release(a, true)
}

func TestSurfaceCreateGBBindsMobAndDestroysWithIt(t *testing.T) {
	sink := &recordingSink{}
	mobs := gbo.NewManager(hw.NewPhysMem(), 256)
	set := NewSurfaceSet(256, mobs, sink)

	base := encode.SurfaceSize{Width: 64, Height: 64, Depth: 1}
	sid, st := set.CreateGB(simpleParms(1), base, 1, 1, 1, 1)
	if !st.Ok() {
		t.Fatal(st)
	}
	surf, ok := set.Query(sid)
	if !ok {
		t.Fatal("expected GB surface to be queryable")
	}
	mobID := surf.BoundMob()
	if mobID == 0 {
		t.Fatal("expected a bound MOB id")
	}
	set.Release(sid, true)

	if len(sink.submitted) != 2 {
		t.Fatalf("expected DEFINE_GB_SURFACE_V4 + BIND_GB_SURFACE, got %d commands", len(sink.submitted))
	}

	if st := set.Destroy(sid, true); !st.Ok() {
		t.Fatal(st)
	}
	if _, ok := mobs.Query(mobID); ok {
		t.Fatal("destroying the surface should have freed its bound MOB")
	}
}

func TestSurfaceCreateGBWithoutMobManagerFails(t *testing.T) {
	sink := &recordingSink{}
	set := NewSurfaceSet(256, nil, sink)
	if _, st := set.CreateGB(simpleParms(1), encode.SurfaceSize{}, 1, 1, 1, 1); st != status.NotSupported {
		t.Fatalf("expected NotSupported, got %v", st)
	}
}
