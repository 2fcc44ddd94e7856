package hostobj

import (
	"github.com/virtualbox-guest/vmsvga-kmd/encode"
	"github.com/virtualbox-guest/vmsvga-kmd/gbo"
	"github.com/virtualbox-guest/vmsvga-kmd/idalloc"
	"github.com/virtualbox-guest/vmsvga-kmd/status"
	"github.com/virtualbox-guest/vmsvga-kmd/transport"
)

// MaxMipLevels bounds how many mip levels a single surface may carry. Not
// present in the retrieved headers; chosen to match the common DX texture
// limit (one more than log2 of the largest practical texture dimension).
const MaxMipLevels = 15

// Surface is a host-resident surface object: its id, an optional redirect
// to another (shared) surface's id, and — for guest-backed surfaces — the
// MOB currently bound as its storage.
type Surface struct {
	id       uint32
	redirect uint32 // 0 means "no redirect"
	mobID    uint32 // 0 means "not guest-backed, or not yet bound"
	set      *SurfaceSet
}

// ID returns the surface's own id (never the redirect target).
func (s *Surface) ID() uint32 { return s.id }

// Redirect returns the shared surface id this one redirects to, or 0.
func (s *Surface) Redirect() uint32 { return s.redirect }

// BoundMob returns the MOB id backing this surface's storage, or 0.
func (s *Surface) BoundMob() uint32 { return s.mobID }

// Destroy frees the surface's id and, if it was guest-backed, its bound
// MOB. Called by the Registry once the last reference drops — inline or
// from ProcessPending, per spec.md §4.F.
func (s *Surface) Destroy() {
	s.set.ids.Free(s.id)
	if s.mobID != 0 && s.set.mobs != nil {
		s.set.mobs.Destroy(s.mobID, 0)
	}
}

// SurfaceSet is the Host Object Registry specialised to surfaces: it owns
// the id space, the optional GB-surface MOB manager, and the transport
// sink commands are submitted through.
type SurfaceSet struct {
	reg  *Registry
	ids  *idalloc.Allocator
	mobs *gbo.Manager // nil if this adapter has no GB-object support
	sink transport.Sink
}

// NewSurfaceSet creates a surface registry over [0, maxIDs). mobs may be
// nil if guest-backed surfaces are not supported by this configuration.
func NewSurfaceSet(maxIDs uint32, mobs *gbo.Manager, sink transport.Sink) *SurfaceSet {
	return &SurfaceSet{
		reg:  New(),
		ids:  idalloc.New(maxIDs),
		mobs: mobs,
		sink: sink,
	}
}

func activeFaces(parms encode.SurfaceCreateParms) int {
	n := 0
	for _, f := range parms.Faces {
		if f.NumMipLevels > 0 {
			n++
		}
	}
	return n
}

// validateCreateParms enforces the four invariants spec.md §4.F names for
// surface_create: exactly 1 or 6 (cubemap) active faces, uniform mip
// counts across those faces, a size entry for every face/mip-level pair,
// and mip counts within MaxMipLevels.
func validateCreateParms(parms encode.SurfaceCreateParms, sizes []encode.SurfaceSize) (nFaces, mipLevels int, st status.Status) {
	nFaces = activeFaces(parms)
	if nFaces != 1 && nFaces != 6 {
		return 0, 0, status.InvalidParameter
	}
	for _, f := range parms.Faces {
		if f.NumMipLevels == 0 {
			continue
		}
		if mipLevels == 0 {
			mipLevels = int(f.NumMipLevels)
		} else if int(f.NumMipLevels) != mipLevels {
			return 0, 0, status.InvalidParameter
		}
	}
	if mipLevels == 0 || mipLevels > MaxMipLevels {
		return 0, 0, status.InvalidParameter
	}
	if len(sizes) != nFaces*mipLevels {
		return 0, 0, status.InvalidParameter
	}
	return nFaces, mipLevels, status.OK
}

// Create validates parms/sizes, allocates a surface id, emits
// SVGA_3D_CMD_SURFACE_DEFINE, and inserts the host object — spec.md
// §4.F's surface_create.
func (s *SurfaceSet) Create(parms encode.SurfaceCreateParms, sizes []encode.SurfaceSize) (uint32, status.Status) {
	if _, _, st := validateCreateParms(parms, sizes); !st.Ok() {
		return 0, st
	}

	id, st := s.ids.Alloc()
	if !st.Ok() {
		return 0, st
	}

	n, _ := encode.DefineSurface(nil, id, parms, sizes)
	buf := make([]byte, n)
	if _, st := encode.DefineSurface(buf, id, parms, sizes); !st.Ok() {
		s.ids.Free(id)
		return 0, st
	}
	if st := s.sink.Submit(buf); !st.Ok() {
		s.ids.Free(id)
		return 0, st
	}

	if st := s.reg.Insert(id, &Surface{id: id, set: s}); !st.Ok() {
		s.ids.Free(id)
		return 0, st
	}
	return id, status.OK
}

// CreateGB is gb_surface_create: like Create, but additionally allocates a
// MOB of pageCount pages, emits DEFINE_GB_SURFACE_V4 then BIND_GB_SURFACE,
// and records the bound MOB id on the surface object.
func (s *SurfaceSet) CreateGB(parms encode.SurfaceCreateParms, baseSize encode.SurfaceSize, arraySize, numMipLevels, multisampleCount, pageCount uint32) (uint32, status.Status) {
	if s.mobs == nil {
		return 0, status.NotSupported
	}
	if numMipLevels == 0 || numMipLevels > MaxMipLevels {
		return 0, status.InvalidParameter
	}

	id, st := s.ids.Alloc()
	if !st.Ok() {
		return 0, st
	}

	mob, st := s.mobs.Create(pageCount)
	if !st.Ok() {
		s.ids.Free(id)
		return 0, st
	}

	n, _ := encode.DefineGBSurfaceV4(nil, id, parms, baseSize, arraySize, numMipLevels, multisampleCount)
	buf := make([]byte, n)
	encode.DefineGBSurfaceV4(buf, id, parms, baseSize, arraySize, numMipLevels, multisampleCount)
	if st := s.sink.Submit(buf); !st.Ok() {
		s.mobs.Destroy(mob.ID(), 0)
		s.ids.Free(id)
		return 0, st
	}

	bindN, _ := encode.BindGBSurface(nil, id, mob.ID())
	bindBuf := make([]byte, bindN)
	encode.BindGBSurface(bindBuf, id, mob.ID())
	if st := s.sink.Submit(bindBuf); !st.Ok() {
		s.mobs.Destroy(mob.ID(), 0)
		s.ids.Free(id)
		return 0, st
	}

	if st := s.reg.Insert(id, &Surface{id: id, mobID: mob.ID(), set: s}); !st.Ok() {
		s.mobs.Destroy(mob.ID(), 0)
		s.ids.Free(id)
		return 0, st
	}
	return id, status.OK
}

// Query is surface_object_query: a thin specialisation of the generic
// registry lookup that returns the concrete *Surface type.
func (s *SurfaceSet) Query(sid uint32) (*Surface, bool) {
	v, ok := s.reg.Query(sid)
	if !ok {
		return nil, false
	}
	return v.(*Surface), true
}

// Release is surface_object_release: drop the reference Query took.
func (s *SurfaceSet) Release(sid uint32, inline bool) {
	s.reg.Release(sid, inline)
}

// Destroy emits SVGA_3D_CMD_SURFACE_DESTROY and drops the registry's own
// (creation-time) reference, tearing the surface down once no other
// reference remains outstanding.
func (s *SurfaceSet) Destroy(sid uint32, inline bool) status.Status {
	n, _ := encode.DestroySurface(nil, sid)
	buf := make([]byte, n)
	encode.DestroySurface(buf, sid)
	if st := s.sink.Submit(buf); !st.Ok() {
		return st
	}
	s.reg.Release(sid, inline)
	return status.OK
}

// RefCountFor reports sid's current reference count, a test/diagnostic
// helper mirroring Registry.RefCount.
func (s *SurfaceSet) RefCountFor(sid uint32) int32 {
	return s.reg.RefCount(sid)
}

// ProcessPending runs the registry's deferred-destruction sweep; see
// Registry.ProcessPending.
func (s *SurfaceSet) ProcessPending() int {
	return s.reg.ProcessPending()
}

// InsertSharedRedirect is surface_shared_sid_insert: sid now redirects to
// sharedSid, and a reference is taken on sharedSid so it outlives the
// redirect.
func (s *SurfaceSet) InsertSharedRedirect(sid, sharedSid uint32) status.Status {
	v, ok := s.reg.Query(sid)
	if !ok {
		return status.InvalidParameter
	}
	surf := v.(*Surface)
	if surf.redirect != 0 {
		s.reg.Release(sid, true)
		return status.InvalidParameter
	}
	if _, ok := s.reg.Query(sharedSid); !ok {
		s.reg.Release(sid, true)
		return status.InvalidParameter
	}
	surf.redirect = sharedSid
	s.reg.Release(sid, true) // undo this call's own lookup ref; the sharedSid ref is kept deliberately
	return status.OK
}

// RemoveSharedRedirect is surface_shared_sid_remove: clears sid's redirect
// and releases the reference InsertSharedRedirect took on the shared
// surface.
func (s *SurfaceSet) RemoveSharedRedirect(sid uint32, inline bool) status.Status {
	v, ok := s.reg.Query(sid)
	if !ok {
		return status.InvalidParameter
	}
	surf := v.(*Surface)
	if surf.redirect == 0 {
		s.reg.Release(sid, inline)
		return status.InvalidParameter
	}
	shared := surf.redirect
	surf.redirect = 0
	s.reg.Release(sid, inline)
	s.reg.Release(shared, inline)
	return status.OK
}
