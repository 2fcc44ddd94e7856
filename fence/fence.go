package fence

import (
	"sync"
	"time"

	"github.com/virtualbox-guest/vmsvga-kmd/hostobj"
	"github.com/virtualbox-guest/vmsvga-kmd/hw"
	"github.com/virtualbox-guest/vmsvga-kmd/idalloc"
	"github.com/virtualbox-guest/vmsvga-kmd/status"
	"github.com/virtualbox-guest/vmsvga-kmd/transport"
)

// MobReaper is the subset of gbo.Manager the DPC's deferred-MOB step
// needs. Expressed as an interface, not a direct gbo import, since gbo
// itself imports this package for Compare64-based fence reaching.
type MobReaper interface {
	PendingDeferred() bool
	ReapCompleted(completedFence uint64) int
}

// MiniportFenceSource is the subset of gbo.MiniportMOB the deferred-MOB
// reap step needs: the host-acknowledged fence value to reap against.
type MiniportFenceSource interface {
	FenceValue() uint64
}

// State is a fence object's lifecycle state, mirroring GAFENCE_STATE_*.
type State uint32

const (
	StateIdle State = iota
	StateSubmitted
	StateSignaled
)

// Fence is one fence object: a handle, its current state, the submission
// identifier it was stamped with, and an event later callers can block on.
// Reference-counted through the owning Engine's registry so a concurrent
// Wait can't race a Delete into freeing the object out from under it,
// mirroring GAFENCEOBJECT's cRefs in VBoxMPGaFence.cpp.
type Fence struct {
	handle uint32

	mu           sync.Mutex
	state        State
	submissionID uint32
	armed        bool
	event        chan struct{}
}

// destroy releases any blocked waiter, removes the fence from the engine's
// handle table, and frees the handle back to the allocator.
func (f *Fence) destroy(e *Engine) {
	f.mu.Lock()
	if f.armed {
		close(f.event)
		f.armed = false
	}
	f.mu.Unlock()

	e.mu.Lock()
	delete(e.fences, f.handle)
	e.mu.Unlock()
	e.ids.Free(f.handle)
}

// fenceDestroyer adapts destroy to hostobj.Destroyer without exposing it on
// Fence itself.
type fenceDestroyer struct {
	f *Fence
	e *Engine
}

func (d *fenceDestroyer) Destroy() { d.f.destroy(d.e) }

// Handle returns the fence's stable identifier.
func (f *Fence) Handle() uint32 { return f.handle }

// State reports the fence's current lifecycle state without blocking.
func (f *Fence) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// RenderMetadata is one entry on the per-frame hardware-render-metadata
// list: a submission identifier and the callback that releases every object
// reference a rewritten command stream took on that frame's behalf (see
// rewrite.Rewriter.Release), grounded on GAHWRENDERDATA / SvgaRenderComplete.
type RenderMetadata struct {
	SubmissionID uint32
	Release      func()
}

// CBCompletion is one command-buffer header's observed terminal status, as
// learned from whatever out-of-band channel reports host completions (the
// mock device in tests, a real ISR in production). Cmdbuf.Complete already
// implements the per-header queue-drain; RunDPC just needs to be told which
// ids finished, since CBHeader's fields are private to the transport
// package and there is no shared-memory status array to scan here.
type CBCompletion struct {
	ID          uint32
	Status      transport.CBStatus
	ErrorOffset uint32
}

// Engine is component H: the fence list, the interrupt handler, the DPC,
// and the preemption-request path, wired against the hardware register
// file, the optional command-buffer transport, and the optional GBO
// manager's deferred-MOB list.
type Engine struct {
	dev  *hw.Device
	fifo *hw.FifoPage

	ids      *idalloc.Allocator
	registry *hostobj.Registry

	mu            sync.Mutex
	fences        map[uint32]*Fence
	renderData    []RenderMetadata
	lastSubmitted uint32
	lastCompleted uint32
	preemptionID  uint32
	cbPending     bool

	cmdbuf   *transport.Cmdbuf
	mobs     MobReaper
	miniport MiniportFenceSource
}

// NewEngine brings up the fence engine. cmdbuf, mobs and miniport may be
// nil: a FIFO-only adapter has no command-buffer queues to drain and no
// GB objects to reap.
func NewEngine(dev *hw.Device, fifo *hw.FifoPage, maxFences uint32, cmdbuf *transport.Cmdbuf, mobs MobReaper, miniport MiniportFenceSource) *Engine {
	return &Engine{
		dev:      dev,
		fifo:     fifo,
		ids:      idalloc.New(maxFences),
		registry: hostobj.New(),
		fences:   map[uint32]*Fence{},
		cmdbuf:   cmdbuf,
		mobs:     mobs,
		miniport: miniport,
	}
}

// Create allocates a fence object in IDLE state and returns its handle,
// implementing fence_create. The registry's initial reference is the
// creation reference the DPC drops once the fence reaches SIGNALED.
func (e *Engine) Create() (uint32, status.Status) {
	handle, st := e.ids.Alloc()
	if !st.Ok() {
		return 0, st
	}
	f := &Fence{handle: handle, state: StateIdle}

	e.mu.Lock()
	e.fences[handle] = f
	e.mu.Unlock()

	if st := e.registry.Insert(handle, &fenceDestroyer{f: f, e: e}); !st.Ok() {
		e.mu.Lock()
		delete(e.fences, handle)
		e.mu.Unlock()
		e.ids.Free(handle)
		return 0, st
	}
	return handle, status.OK
}

func (e *Engine) lookup(handle uint32) *Fence {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fences[handle]
}

// Submit stamps handle with submissionID and moves it to SUBMITTED,
// implementing fence_submit. It also advances the engine's last-submitted
// identifier, the value a subsequent preempt request compares against.
func (e *Engine) Submit(handle, submissionID uint32) status.Status {
	f := e.lookup(handle)
	if f == nil {
		return status.InvalidParameter
	}
	f.mu.Lock()
	f.submissionID = submissionID
	f.state = StateSubmitted
	f.mu.Unlock()

	e.mu.Lock()
	if Compare32(submissionID, e.lastSubmitted) > 0 {
		e.lastSubmitted = submissionID
	}
	e.mu.Unlock()
	return status.OK
}

// Wait implements fence_wait: if already SIGNALED, returns immediately;
// otherwise arms the fence's event (idempotently) and blocks on it up to
// timeout, returning whatever state the fence holds when it wakes.
func (e *Engine) Wait(handle uint32, timeout time.Duration) (State, status.Status) {
	f := e.lookup(handle)
	if f == nil {
		return StateIdle, status.InvalidParameter
	}

	f.mu.Lock()
	if f.state == StateSignaled {
		f.mu.Unlock()
		return StateSignaled, status.OK
	}
	if !f.armed {
		f.event = make(chan struct{})
		f.armed = true
	}
	event := f.event
	f.mu.Unlock()

	if timeout <= 0 {
		return f.State(), status.OK
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-event:
	case <-timer.C:
	}
	return f.State(), status.OK
}

// RegisterRenderMetadata appends a render-completion record for a frame
// submitted under submissionID, to be released once the DPC observes that
// frame has completed.
func (e *Engine) RegisterRenderMetadata(submissionID uint32, release func()) {
	e.mu.Lock()
	e.renderData = append(e.renderData, RenderMetadata{SubmissionID: submissionID, Release: release})
	e.mu.Unlock()
}

// HandleIRQ reads the device's IRQ status register and reacts, implementing
// the interrupt handler of spec.md §4.H. It reports false if the interrupt
// did not belong to this device (status read as zero), matching the "return
// FALSE immediately" contract real miniport interrupt routines use to let
// other devices on a shared line get a turn.
func (e *Engine) HandleIRQ() bool {
	st := e.dev.RegisterRead(hw.RegIRQStatusPort)
	if st == 0 {
		return false
	}

	if st&hw.IRQAnyFence != 0 {
		e.reportFence()
	}
	if st&(hw.IRQCommandBuffer|hw.IRQError) != 0 {
		e.mu.Lock()
		e.cbPending = true
		e.mu.Unlock()
	}
	return true
}

func (e *Engine) reportFence() {
	fenceVal := e.fifo.Read(hw.FifoFence)

	e.mu.Lock()
	if fenceVal == e.preemptionID && e.preemptionID != 0 {
		e.preemptionID = 0
		e.lastCompleted = e.lastSubmitted
		e.mu.Unlock()
		return
	}
	if Compare32(e.lastCompleted, fenceVal) < 0 {
		e.lastCompleted = fenceVal
	}
	e.mu.Unlock()
}

// DPCResult reports what a RunDPC pass did, for tests and for the caller
// deciding whether to schedule the passive-level deferred-MOB work item.
type DPCResult struct {
	Promoted        int
	RenderReleased  int
	CBProcessed     bool
	DeferredMobWork bool
}

// RunDPC runs one DPC pass: promotes completed fences to SIGNALED, releases
// render metadata for completed frames, drains the command-buffer transport
// if the interrupt handler observed a CB/error event, and reports whether a
// passive-level deferred-MOB reap should be scheduled. cbCompletions carries
// whatever header completions were learned since the last pass; the mock
// device (and a real ISR) supply these out of band since CBHeader state is
// private to the transport package.
func (e *Engine) RunDPC(cbCompletions []CBCompletion) DPCResult {
	var result DPCResult

	e.mu.Lock()
	lastCompleted := e.lastCompleted
	e.mu.Unlock()

	e.mu.Lock()
	var promoted []uint32
	for handle, f := range e.fences {
		f.mu.Lock()
		if f.state == StateSubmitted && Compare32(f.submissionID, lastCompleted) <= 0 {
			f.state = StateSignaled
			if f.armed {
				close(f.event)
				f.armed = false
			}
			promoted = append(promoted, handle)
		}
		f.mu.Unlock()
	}
	e.mu.Unlock()

	for _, handle := range promoted {
		e.registry.Release(handle, true)
		result.Promoted++
	}

	e.mu.Lock()
	var kept []RenderMetadata
	var completed []RenderMetadata
	for _, rd := range e.renderData {
		if Compare32(rd.SubmissionID, lastCompleted) <= 0 {
			completed = append(completed, rd)
		} else {
			kept = append(kept, rd)
		}
	}
	e.renderData = kept
	e.mu.Unlock()
	for _, rd := range completed {
		rd.Release()
		result.RenderReleased++
	}

	e.mu.Lock()
	cbFlag := e.cbPending
	e.cbPending = false
	e.mu.Unlock()
	if cbFlag && e.cmdbuf != nil {
		for _, c := range cbCompletions {
			e.cmdbuf.Complete(c.ID, c.Status, c.ErrorOffset)
		}
		result.CBProcessed = true
	}

	if e.mobs != nil && e.mobs.PendingDeferred() {
		result.DeferredMobWork = true
	}
	return result
}

// ReapDeferredMobs performs the passive-level work item RunDPC schedules
// when DeferredMobWork is set: reads the host-acknowledged fence value from
// the shared miniport MOB page and frees every MOB whose fence has been
// reached.
func (e *Engine) ReapDeferredMobs() int {
	if e.mobs == nil || e.miniport == nil {
		return 0
	}
	return e.mobs.ReapCompleted(e.miniport.FenceValue())
}

// RequestPreempt implements the framework's preempt-request path. If no
// work is outstanding (last-completed == last-submitted) it signals
// DMA_PREEMPTED synchronously via onPreempted; otherwise it records a new
// preemption identifier one past the last submission and hands it to emit
// so the caller can push a fence command carrying that value — on the CB
// path a miniport device-context command, on the FIFO path a plain fence
// command — so the interrupt handler recognises its completion as the
// preemption rather than ordinary work.
func (e *Engine) RequestPreempt(emit func(preemptionID uint32) status.Status, onPreempted func(lastCompleted uint32)) status.Status {
	e.mu.Lock()
	if e.lastCompleted == e.lastSubmitted {
		lastCompleted := e.lastCompleted
		e.mu.Unlock()
		onPreempted(lastCompleted)
		return status.OK
	}
	preemptionID := e.lastSubmitted + 1
	e.preemptionID = preemptionID
	e.mu.Unlock()

	return emit(preemptionID)
}

// LastCompleted and LastSubmitted expose the engine's submission counters,
// for tests and for callers (e.g. fence_query) reporting fence progress.
func (e *Engine) LastCompleted() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastCompleted
}

func (e *Engine) LastSubmitted() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSubmitted
}

// PreemptionID reports the currently outstanding preemption identifier, or
// 0 if none is pending.
func (e *Engine) PreemptionID() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.preemptionID
}
