// Package svga implements the Adapter Context of spec.md §3: the single
// per-device singleton that wires the hardware access layer, identifier
// allocators, GBO/MOB/GMR/OT/COT managers, the FIFO and command-buffer
// transports, the host-object and surface registries, the command-stream
// rewriter, the fence/DPC engine, and the paging/present path into one
// object with a start→run→stop lifecycle, grounded on GaAdapterStart/
// GaAdapterStop and SvgaAdapterStart/SvgaAdapterStop in
// original_source/.../gallium/VBoxMPGaWddm.cpp and Svga.cpp.
//
// Construction takes a Config struct rather than a file or flags, the same
// nodefs.Options/fuse.MountOptions idiom the teacher uses for library entry
// points.
package svga

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/virtualbox-guest/vmsvga-kmd/encode"
	"github.com/virtualbox-guest/vmsvga-kmd/fence"
	"github.com/virtualbox-guest/vmsvga-kmd/gbo"
	"github.com/virtualbox-guest/vmsvga-kmd/hostobj"
	"github.com/virtualbox-guest/vmsvga-kmd/hw"
	"github.com/virtualbox-guest/vmsvga-kmd/idalloc"
	"github.com/virtualbox-guest/vmsvga-kmd/paging"
	"github.com/virtualbox-guest/vmsvga-kmd/rewrite"
	"github.com/virtualbox-guest/vmsvga-kmd/status"
	"github.com/virtualbox-guest/vmsvga-kmd/transport"
)

// Config is the adapter's construction-time configuration: the sizes of the
// FIFO page and of every identifier space and transport queue it owns. The
// capability set is not configured here; Start reads it from the device.
// Zero-valued fields fall back to DefaultConfig's values in New.
type Config struct {
	// FifoBytes is the size of the FIFO shared page, rounded up to a whole
	// number of hw.PageSize pages. The page is allocated in both transport
	// modes, since the fence engine reads its FENCE slot; with command-buffer
	// support it carries no command ring.
	FifoBytes uint32

	MaxFences    uint32
	MaxSurfaces  uint32
	MaxMobs      uint32
	MaxGMRs      uint32
	MaxCBHeaders uint32
	MaxContexts  uint32
}

// DefaultConfig returns the sizes this module uses when a Config field is
// left zero, chosen to comfortably exercise every scenario in spec.md §8
// without the allocator bookkeeping dominating a test run.
func DefaultConfig() Config {
	return Config{
		FifoBytes:    hw.PageSize,
		MaxFences:    256,
		MaxSurfaces:  1024,
		MaxMobs:      1024,
		MaxGMRs:      64,
		MaxCBHeaders: 64,
		MaxContexts:  16,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FifoBytes == 0 {
		c.FifoBytes = d.FifoBytes
	}
	if c.MaxFences == 0 {
		c.MaxFences = d.MaxFences
	}
	if c.MaxSurfaces == 0 {
		c.MaxSurfaces = d.MaxSurfaces
	}
	if c.MaxMobs == 0 {
		c.MaxMobs = d.MaxMobs
	}
	if c.MaxGMRs == 0 {
		c.MaxGMRs = d.MaxGMRs
	}
	if c.MaxCBHeaders == 0 {
		c.MaxCBHeaders = d.MaxCBHeaders
	}
	if c.MaxContexts == 0 {
		c.MaxContexts = d.MaxContexts
	}
	return c
}

// dxContext is everything the adapter keeps per DX context: the object
// table set backing its pipeline state and the rewriter bound to it.
type dxContext struct {
	cot      *gbo.CotSet
	rewriter *rewrite.Rewriter
}

// Adapter is the process-wide singleton described in spec.md §3. Every
// field below corresponds to one of the Adapter Context's data-model
// members; every lock any method below takes follows the §5 acquire order
// (adapter-wide, then FIFO/CB-context, then CB spinlock, then host-object,
// then MOB, then identifier, then hardware — innermost).
//
// mu is the adapter-wide mutex: §5 step 1, the outermost lock. It is held
// only across table growth (adding or removing a DX context) and whatever
// submission that growth requires — acquiring a lower-ordered lock (the
// sink's FIFO/CB mutex, down through the hardware spinlock) while mu is
// held follows the prescribed order; the rule that must never be broken is
// the reverse, acquiring mu while already holding any lower lock.
type Adapter struct {
	cfg Config

	mu      sync.Mutex
	ctxIDs  *idalloc.Allocator
	ctxs    map[uint32]*dxContext
	started bool

	dev         *hw.Device
	fifoPage    *hw.FifoPage
	ownsFifo    bool
	mem         *hw.PhysMem
	caps        uint32

	fifo   *transport.Fifo
	cmdbuf *transport.Cmdbuf
	sink   transport.Sink

	mobs     *gbo.Manager
	gmrs     *gbo.RegionManager
	otables  *gbo.OTableSet
	miniport *gbo.MiniportMOB

	surfaces *hostobj.SurfaceSet
	objects  *hostobj.Registry

	fences *fence.Engine

	paging sync.Mutex // serializes paging.Build + patch + submit, §5's "paging-buffer lock"
}

// New allocates an unstarted Adapter. Call Start to bring the device up.
func New(cfg Config) *Adapter {
	cfg = cfg.withDefaults()
	return &Adapter{
		cfg:    cfg,
		ctxIDs: idalloc.New(cfg.MaxContexts),
		ctxs:   map[uint32]*dxContext{},
	}
}

// Start brings the adapter up against port, mirroring GaAdapterStart's
// sequencing: probe the device, read its capability and memory registers,
// bring up the transport its capabilities select, and wire every
// component that capability set supports. Guest-backed objects (MOBs,
// GMRs, object tables, the miniport MOB, DX contexts) are wired only when
// the device advertises SVGA_CAP_GBOBJECTS; a legacy device without that
// bit gets a FIFO-only adapter with surfaces but no GB pipeline.
func (a *Adapter) Start(port hw.PortIO) status.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return status.InvalidParameter
	}

	dev := hw.New(port)
	if !dev.Probe() {
		return status.NotSupported
	}
	a.dev = dev
	a.caps = dev.RegisterRead(hw.RegCapabilities)
	a.mem = hw.NewPhysMem()

	fifoPage, err := hw.NewFifoPage(a.cfg.FifoBytes)
	if err != nil {
		return status.InsufficientResources
	}
	a.fifoPage = fifoPage
	a.ownsFifo = true

	if a.caps&hw.CapCommandBuffers != 0 {
		a.cmdbuf = transport.NewCmdbuf(a.dev, a.mem, a.cfg.MaxCBHeaders)
		a.sink = a.cmdbuf
	} else {
		a.fifo = transport.NewFifo(a.dev, a.fifoPage, a.caps)
		a.sink = a.fifo
	}

	if a.caps&(hw.CapGBObjects|hw.CapGMR2) != 0 {
		a.mobs = gbo.NewManager(a.mem, a.cfg.MaxMobs)
		a.gmrs = gbo.NewRegionManager(a.mobs, a.cfg.MaxGMRs)
	}
	if a.caps&hw.CapGBObjects != 0 {
		a.otables = gbo.NewOTableSet(a.mem)
	}
	if a.caps&hw.CapDX != 0 && a.mem != nil {
		miniport, st := gbo.NewMiniportMOB(a.mem)
		if !st.Ok() {
			return st
		}
		a.miniport = miniport
	}

	a.surfaces = hostobj.NewSurfaceSet(a.cfg.MaxSurfaces, a.mobs, a.sink)
	a.objects = hostobj.New()

	var mobReaper fence.MobReaper
	if a.mobs != nil {
		mobReaper = a.mobs
	}
	var miniportSource fence.MiniportFenceSource
	if a.miniport != nil {
		miniportSource = a.miniport
	}
	a.fences = fence.NewEngine(a.dev, a.fifoPage, a.cfg.MaxFences, a.cmdbuf, mobReaper, miniportSource)

	a.dev.RegisterWrite(hw.RegEnable, hw.EnableEnable)
	a.started = true
	return status.OK
}

// Stop tears the adapter down, mirroring GaAdapterStop's "release every
// outstanding render-data record, then stop the device" order: any fence
// still SUBMITTED is left to the caller (a real stop path runs after the
// device has drained, which this simulation does not model). Stop frees the
// miniport MOB and the FIFO page; MOBs, GMRs, surfaces and DX contexts still
// registered are not torn down.
func (a *Adapter) Stop() status.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return status.InvalidParameter
	}
	if a.miniport != nil {
		a.miniport.Free()
	}
	a.dev.RegisterWrite(hw.RegEnable, hw.EnableEnable|hw.EnableHide)
	if a.ownsFifo {
		a.fifoPage.Close()
	}
	a.started = false
	return status.OK
}

// EnsureContext creates DX context cid's object-table set and rewriter the
// first time it is named, implementing dx_define_context against the
// adapter-wide table-growth lock. Idempotent: calling it again for an
// already-known context is a no-op. Returns NotSupported if this adapter
// has no GB-object pipeline (no CotSet has anything to back it).
func (a *Adapter) EnsureContext(cid uint32) status.Status {
	if a.mobs == nil {
		return status.NotSupported
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.ctxs[cid]; ok {
		return status.OK
	}
	n, _ := encode.DXDefineContext(nil, cid)
	buf := make([]byte, n)
	encode.DXDefineContext(buf, cid)
	if st := a.sink.Submit(buf); !st.Ok() {
		return st
	}
	cot := gbo.NewCotSet(cid, a.mobs)
	a.ctxs[cid] = &dxContext{
		cot:      cot,
		rewriter: rewrite.NewRewriter(a.surfaces, cot, a.mobs, a.sink, cid),
	}
	return status.OK
}

// DestroyContext tears down DX context cid, the counterpart to
// EnsureContext.
func (a *Adapter) DestroyContext(cid uint32) status.Status {
	a.mu.Lock()
	_, ok := a.ctxs[cid]
	if !ok {
		a.mu.Unlock()
		return status.InvalidParameter
	}
	delete(a.ctxs, cid)
	a.mu.Unlock()

	n, _ := encode.DXDestroyContext(nil, cid)
	buf := make([]byte, n)
	encode.DXDestroyContext(buf, cid)
	return a.sink.Submit(buf)
}

// Surfaces exposes the surface registry (component F), for callers doing
// surface_create/surface_object_query/surface_object_release directly.
func (a *Adapter) Surfaces() *hostobj.SurfaceSet { return a.surfaces }

// Objects exposes the generic host-object registry (component F), for
// host object kinds other than surfaces.
func (a *Adapter) Objects() *hostobj.Registry { return a.objects }

// GMRs exposes the GMR region manager (component C), or nil if this
// adapter's device did not advertise GMR2/GBObjects support.
func (a *Adapter) GMRs() *gbo.RegionManager { return a.gmrs }

// Mobs exposes the MOB manager (component C).
func (a *Adapter) Mobs() *gbo.Manager { return a.mobs }

// Fences exposes the fence/DPC engine (component H) directly, for callers
// that want RegisterRenderMetadata or the raw Engine API rather than the
// thin wrappers below.
func (a *Adapter) Fences() *fence.Engine { return a.fences }

// SubmitRaw submits cmd against the device context with no rewriting,
// implementing the non-DX submission path (spec.md §4.D.3): FIFO commands,
// and CB commands outside any DX context.
func (a *Adapter) SubmitRaw(cmd []byte) status.Status {
	return a.sink.Submit(cmd)
}

// SubmitContext rewrites src on behalf of DX context cid (patching its
// context-id field, growing COTables on demand, redirecting shared surface
// ids) and submits the result, implementing spec.md §4.G+§4.D.3's DX
// submission path. The returned surface references must be released (via
// Surfaces().Release, inline or deferred to a fence) once the submission's
// owning fence has signaled.
func (a *Adapter) SubmitContext(cid uint32, src []byte) ([]*hostobj.Surface, status.Status) {
	a.mu.Lock()
	ctx, ok := a.ctxs[cid]
	a.mu.Unlock()
	if !ok {
		return nil, status.InvalidParameter
	}

	dst := make([]byte, len(src))
	n, refs, st := ctx.rewriter.Rewrite(src, dst)
	if !st.Ok() {
		return nil, st
	}
	if st := a.sink.Submit(dst[:n]); !st.Ok() {
		ctx.rewriter.Release(refs, true)
		return nil, st
	}
	return refs, status.OK
}

// CreateFence, SubmitFence, and WaitFence implement fence_create,
// fence_submit, and fence_wait by delegating to the fence engine.
func (a *Adapter) CreateFence() (uint32, status.Status) { return a.fences.Create() }

func (a *Adapter) SubmitFence(handle, submissionID uint32) status.Status {
	return a.fences.Submit(handle, submissionID)
}

func (a *Adapter) WaitFence(handle uint32, timeout time.Duration) (fence.State, status.Status) {
	return a.fences.Wait(handle, timeout)
}

// SimulateHostFenceWrite writes value into the shared FIFO page's FENCE
// slot, standing in for the one piece of the protocol a real device
// performs without any driver-visible register write: updating the shared
// memory the guest polls (or, combined with an interrupt, reacts to). Only
// useful against hw.MockDevice-backed adapters in tests and cmd/svgasim's
// demo; a real device needs no such call.
func (a *Adapter) SimulateHostFenceWrite(value uint32) {
	a.fifoPage.Write(hw.FifoFence, value)
}

// HandleIRQ and RunDPC delegate to the fence engine's interrupt handler and
// DPC pass (spec.md §4.H).
func (a *Adapter) HandleIRQ() bool { return a.fences.HandleIRQ() }

func (a *Adapter) RunDPC(cbCompletions []fence.CBCompletion) fence.DPCResult {
	result := a.fences.RunDPC(cbCompletions)
	if result.DeferredMobWork {
		a.fences.ReapDeferredMobs()
	}
	return result
}

// RequestPreempt implements the preempt-request path: if work is
// outstanding it emits a fence command carrying the new preemption
// identifier through the active transport, exactly as
// fence.Engine.RequestPreempt's emit callback expects.
func (a *Adapter) RequestPreempt(onPreempted func(lastCompleted uint32)) status.Status {
	return a.fences.RequestPreempt(func(preemptionID uint32) status.Status {
		n, _ := encode.Fence(nil, preemptionID)
		buf := make([]byte, n)
		encode.Fence(buf, preemptionID)
		return a.sink.Submit(buf)
	}, onPreempted)
}

// GMRResolver maps a caller's allocation index to the real GMR id it
// names, the relocation Present needs to patch every guest-pointer field
// paging.Build leaves as a placeholder.
type GMRResolver func(allocationIndex uint32) (gmrID uint32, ok status.Status)

// Present runs one paging/present operation end-to-end (spec.md §4.I):
// it sizes the command sequence, builds it in a single pass (failing
// InsufficientDmaBuffer back to the caller if req has too many
// subrectangles for one pass — callers with very large subrect lists
// should call paging.Build directly and loop), patches every guest-pointer
// placeholder to the real GMR id resolve reports, optionally mirrors the
// transfer with Copier when both ends are host-addressable (copy may be
// nil to skip the software copy), and submits the result through the
// device-context sink.
func (a *Adapter) Present(req paging.Request, resolve GMRResolver, copy *paging.Copier, copyArgs *PresentCopyArgs) status.Status {
	a.paging.Lock()
	defer a.paging.Unlock()

	sized, st := paging.Build(nil, req, 0)
	if !st.Ok() {
		return st
	}
	buf := make([]byte, sized.N)
	result, st := paging.Build(buf, req, 0)
	if !st.Ok() {
		return st
	}
	if result.NextSubrect != len(req.SubRects) {
		return status.InsufficientDmaBuffer
	}

	for _, p := range result.Patches {
		gmrID, st := resolve(p.AllocationIndex)
		if !st.Ok() {
			return st
		}
		binary.LittleEndian.PutUint32(buf[p.AbsoluteOffset():p.AbsoluteOffset()+4], gmrID)
	}

	if copy != nil && copyArgs != nil {
		copy.CopySubRects(copyArgs.Dst, copyArgs.DstPitch, copyArgs.Src, copyArgs.SrcPitch, req, copyArgs.BytesPerPixel)
	}

	return a.sink.Submit(buf)
}

// PresentCopyArgs carries the host-addressable backing images Present's
// optional software copy step needs; see paging.Copier.
type PresentCopyArgs struct {
	Dst, Src           []byte
	DstPitch, SrcPitch uint32
	BytesPerPixel      uint32
}
