package rewrite

import (
	"encoding/binary"

	"github.com/virtualbox-guest/vmsvga-kmd/gbo"
	"github.com/virtualbox-guest/vmsvga-kmd/hostobj"
	"github.com/virtualbox-guest/vmsvga-kmd/status"
	"github.com/virtualbox-guest/vmsvga-kmd/transport"
)

const cmdHeaderLen = 8 // {id uint32, size uint32}, matches encode.cmd3DHeaderLen

// Rewriter validates and rewrites a 3D command stream on behalf of one DX
// context, per spec.md §4.G: it patches context-id placeholders, grows
// context object tables as new entries are declared, and redirects any
// surface id that names a shared (redirected) surface to its target —
// taking a reference on every surface it touches for the caller to release
// once the rewritten buffer has retired.
type Rewriter struct {
	surfaces *hostobj.SurfaceSet
	cot      *gbo.CotSet // nil if this context has no DX pipeline state
	mobs     *gbo.Manager
	sink     transport.Sink
	cid      uint32
}

// NewRewriter creates a Rewriter bound to one DX context. cot and mobs may
// be nil for contexts that never issue DX_DEFINE_*_VIEW commands; sink is
// where a COTable growth plan's commands are published ahead of the
// command that triggered the growth.
func NewRewriter(surfaces *hostobj.SurfaceSet, cot *gbo.CotSet, mobs *gbo.Manager, sink transport.Sink, cid uint32) *Rewriter {
	return &Rewriter{surfaces: surfaces, cot: cot, mobs: mobs, sink: sink, cid: cid}
}

// Rewrite walks src command-by-command and writes the patched stream to
// dst, returning the number of bytes consumed from src (which, on success,
// equals len(src)) and the surfaces referenced by the commands written.
//
// On InsufficientDmaBuffer, every reference taken while processing the
// commands already consumed is released before returning, and n names the
// length of the prefix of src that was fully translated — the caller
// resubmits the remainder once dst has been grown or drained.
func (r *Rewriter) Rewrite(src, dst []byte) (n int, refs []*hostobj.Surface, st status.Status) {
	if len(src)%4 != 0 {
		return 0, nil, status.InvalidParameter
	}

	release := func() {
		for _, s := range refs {
			r.surfaces.Release(s.ID(), false)
		}
	}

	off := 0
	for off < len(src) {
		if off+cmdHeaderLen > len(src) {
			release()
			return off, nil, status.IllegalInstruction
		}
		id := binary.LittleEndian.Uint32(src[off : off+4])
		size := binary.LittleEndian.Uint32(src[off+4 : off+8])
		cmdLen := cmdHeaderLen + int(size)
		if off+cmdLen > len(src) {
			release()
			return off, nil, status.IllegalInstruction
		}
		body := src[off+cmdHeaderLen : off+cmdLen]

		entry, ok := dispatch[id]
		if !ok {
			release()
			return off, nil, status.IllegalInstruction
		}

		if off+cmdLen > len(dst) {
			release()
			return off, nil, status.InsufficientDmaBuffer
		}
		copy(dst[off:off+cmdLen], src[off:off+cmdLen])
		dstBody := dst[off+cmdHeaderLen : off+cmdLen]

		if entry.cidOffset >= 0 && entry.cidOffset+4 <= len(dstBody) {
			binary.LittleEndian.PutUint32(dstBody[entry.cidOffset:entry.cidOffset+4], r.cid)
		}

		if entry.cotIDOffset >= 0 {
			if r.cot == nil {
				release()
				return off, nil, status.IllegalInstruction
			}
			newID := getU32(body, entry.cotIDOffset)
			plan, st := r.cot.EnsureCapacity(entry.cotType, newID)
			if !st.Ok() {
				release()
				return off, nil, st
			}
			if plan != nil {
				if st := r.publishGrowPlan(plan); !st.Ok() {
					release()
					return off, nil, st
				}
			}
		}

		if entry.surfaceFields != nil {
			for _, fieldOff := range entry.surfaceFields(body) {
				if fieldOff+4 > len(body) {
					release()
					return off, nil, status.IllegalInstruction
				}
				sid := getU32(body, fieldOff)
				if sid == 0 {
					continue
				}
				surf, found := r.surfaces.Query(sid)
				if !found {
					release()
					return off, nil, status.InvalidParameter
				}
				refs = append(refs, surf)
				if target := surf.Redirect(); target != 0 {
					binary.LittleEndian.PutUint32(dstBody[fieldOff:fieldOff+4], target)
				}
			}
		}

		off += cmdLen
	}

	return off, refs, status.OK
}

// publishGrowPlan submits a COTable growth plan's commands in the order
// EnsureCapacity requires (define the new backing MOB, bind or grow onto
// it, then retire the old MOB if this wasn't the table's first
// allocation). The old MOB is freed immediately rather than deferred to a
// fence value: the rewriter does not have visibility into the current
// fence counter (owned by component H), so it relies on the grown COTable
// command having already been ordered ahead of any command that could
// still reference the old table in the same stream.
func (r *Rewriter) publishGrowPlan(plan *gbo.GrowPlan) status.Status {
	if r.sink == nil {
		return status.NotSupported
	}
	if st := r.sink.Submit(plan.DefineMob); !st.Ok() {
		return st
	}
	if st := r.sink.Submit(plan.Bind); !st.Ok() {
		return st
	}
	if plan.DestroyOld != nil {
		if st := r.sink.Submit(plan.DestroyOld); !st.Ok() {
			return st
		}
		if r.mobs != nil {
			r.mobs.Destroy(plan.OldMobID, 0)
		}
	}
	return status.OK
}

// Release drops the reference taken on each surface in refs, as returned by
// a prior call to Rewrite. Call this once the commands referencing them
// have retired (i.e. their owning fence has signaled).
func (r *Rewriter) Release(refs []*hostobj.Surface, inline bool) {
	for _, s := range refs {
		r.surfaces.Release(s.ID(), inline)
	}
}
