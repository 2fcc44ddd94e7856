package transport

import (
	"sync"

	"github.com/virtualbox-guest/vmsvga-kmd/hw"
	"github.com/virtualbox-guest/vmsvga-kmd/idalloc"
	"github.com/virtualbox-guest/vmsvga-kmd/status"
)

// CBStatus mirrors SVGA_CB_STATUS_*: the outcome a CBHeader carries once the
// host has finished with it. These values are not present in any retrieved
// header file — original_source only exposes their use sites in
// SvgaFifo.cpp — so the set and meaning here are reconstructed from that
// usage rather than copied from a struct definition.
type CBStatus uint32

const (
	CBStatusNone      CBStatus = iota
	CBStatusSubmitted          // host has accepted the header, not yet processed
	CBStatusPreempted          // processing paused; header stays queued
	CBStatusQueueFull          // context's queue was full at submit time; retry later
	CBStatusCompleted
	CBStatusCBHeaderError // the header itself was malformed
	CBStatusCommandError  // a command inside the buffer failed validation
)

// MaxQueuedPerContext bounds how many headers a single context may have
// outstanding at the device at once, grounded on SVGA_CB_MAX_QUEUED_PER_CONTEXT.
// svgaCBSubmit defers to the pending queue once the submitted queue reaches
// MaxQueuedPerContext-1, leaving headroom for one in-flight completion race.
const MaxQueuedPerContext = 32

// DeviceContext is the sentinel context id meaning "no DX context, run
// synchronously against the device's own command stream" (SVGA_CB_CONTEXT_DEVICE).
const DeviceContext = hw.CommandLowDeviceCtx

// CBHeader is a command-buffer header: the fixed-size record the guest
// writes once per submission, describing where the command bytes live and
// receiving the host's completion status. Its layout is inferred from the
// field names used at svgaCBSubmitHeaderLocked's call sites (status,
// errorOffset, id, flags, length, ptr.pa, offset, dxContext) since no
// SVGACBHeader struct definition was retrieved.
type CBHeader struct {
	status      CBStatus
	errorOffset uint32
	id          uint32
	length      uint32
	ptr         uint64 // physical address of the command body
	dxContext   uint32
}

func (h *CBHeader) Status() CBStatus   { return h.status }
func (h *CBHeader) ErrorOffset() uint32 { return h.errorOffset }
func (h *CBHeader) ID() uint32          { return h.id }

// headerSlot is one entry in the header pool: a header plus the phys page
// backing it (one header per page, matching SvgaCmdBufInit's header-pool
// allocation granularity — simple, at the cost of some waste, but it keeps
// header physical addresses trivially derivable for the mock device).
type headerSlot struct {
	hdr      CBHeader
	physBase uint64
	bodyBase uint64
	body     []byte
}

// CBContext is one command-buffer submission context: either the
// synchronous device context or a per-DX-context queue pair, grounded on
// SvgaCmdBufDeviceCommand / the context struct implied by svgaCBSubmit's
// "pCBCtx->queueSubmitted" / "pCBCtx->queuePending" list operations.
type CBContext struct {
	id       uint32
	mu       sync.Mutex
	submitted []*headerSlot
	pending   []*headerSlot
}

// Cmdbuf drives the command-buffer transport: a shared header pool plus one
// CBContext per active DX context, submitting headers through the device's
// COMMAND_HIGH/COMMAND_LOW register pair exactly as SvgaCmdBufSubmitMiniportCommand
// does.
type Cmdbuf struct {
	dev *hw.Device
	mem *hw.PhysMem

	mu       sync.Mutex
	headerIDs *idalloc.Allocator
	slots     map[uint32]*headerSlot

	contexts map[uint32]*CBContext
}

// NewCmdbuf creates the command-buffer transport over dev and mem, with a
// header pool of maxHeaders slots. It writes no device register.
func NewCmdbuf(dev *hw.Device, mem *hw.PhysMem, maxHeaders uint32) *Cmdbuf {
	return &Cmdbuf{
		dev:       dev,
		mem:       mem,
		headerIDs: idalloc.New(maxHeaders),
		slots:     map[uint32]*headerSlot{},
		contexts:  map[uint32]*CBContext{},
	}
}

func (c *Cmdbuf) contextFor(cid uint32) *CBContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, ok := c.contexts[cid]
	if !ok {
		ctx = &CBContext{id: cid}
		c.contexts[cid] = ctx
	}
	return ctx
}

// Alloc reserves a command body of the given length and returns the slice
// to fill plus the header id that will later be submitted, mirroring
// svgaCBAlloc's header-pool-slot-plus-body-page allocation.
func (c *Cmdbuf) Alloc(length uint32) (id uint32, body []byte, st status.Status) {
	if length == 0 || length > hw.PageSize {
		return 0, nil, status.InvalidParameter
	}

	headerID, as := c.headerIDs.Alloc()
	if !as.Ok() {
		return 0, nil, status.InsufficientResources
	}

	physBase, data, err := c.mem.Alloc(1)
	if err != nil {
		c.headerIDs.Free(headerID)
		return 0, nil, status.InsufficientResources
	}

	slot := &headerSlot{
		physBase: physBase,
		bodyBase: physBase,
		body:     data[:length],
	}
	slot.hdr.id = headerID
	slot.hdr.length = length
	slot.hdr.ptr = physBase

	c.mu.Lock()
	c.slots[headerID] = slot
	c.mu.Unlock()

	return headerID, slot.body, status.OK
}

// SubmitDeviceCommand submits a command buffer synchronously against the
// device's own command stream (SVGA_CB_CONTEXT_DEVICE), mirroring
// SvgaCmdBufDeviceCommand: no context queue involved, the header goes
// straight to the device.
func (c *Cmdbuf) SubmitDeviceCommand(id uint32) status.Status {
	return c.submit(DeviceContext, id, true)
}

// SubmitMiniportCommand submits a command buffer against a DX context's
// queue, mirroring SvgaCmdBufSubmitMiniportCommand: if the context already
// has MaxQueuedPerContext-1 headers submitted, this one is appended to the
// pending queue instead of going to the device immediately.
func (c *Cmdbuf) SubmitMiniportCommand(cid, id uint32) status.Status {
	return c.submit(cid, id, false)
}

func (c *Cmdbuf) submit(cid, id uint32, synchronous bool) status.Status {
	c.mu.Lock()
	slot, ok := c.slots[id]
	c.mu.Unlock()
	if !ok {
		return status.InvalidParameter
	}
	slot.hdr.dxContext = cid

	if synchronous {
		slot.hdr.status = CBStatusSubmitted
		c.publish(slot)
		return status.OK
	}

	ctx := c.contextFor(cid)
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if len(ctx.submitted) >= MaxQueuedPerContext-1 {
		slot.hdr.status = CBStatusQueueFull
		ctx.pending = append(ctx.pending, slot)
		return status.OK
	}
	ctx.submitted = append(ctx.submitted, slot)
	slot.hdr.status = CBStatusSubmitted
	c.publish(slot)
	return status.OK
}

// publish writes the header's physical address to the COMMAND_HIGH/LOW
// register pair, the same split the hardware register file already models
// for the device-context mask (hw.CommandLowContextMask).
func (c *Cmdbuf) publish(slot *headerSlot) {
	addr := slot.physBase
	c.dev.RegisterWrite(hw.RegCommandHigh, uint32(addr>>32))
	low := uint32(addr) &^ hw.CommandLowContextMask
	low |= slot.hdr.dxContext & hw.CommandLowContextMask
	c.dev.RegisterWrite(hw.RegCommandLow, low)
}

// Complete marks header id as finished and, if it belonged to a context's
// submitted queue, pops the next pending header (if any) into its place —
// mirroring svgaCBSubmit's "queue drain on completion" behavior, which is
// what lets a queue-full submission eventually make it to the device.
func (c *Cmdbuf) Complete(id uint32, result CBStatus, errorOffset uint32) {
	c.mu.Lock()
	slot, ok := c.slots[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	slot.hdr.status = result
	slot.hdr.errorOffset = errorOffset

	cid := slot.hdr.dxContext
	if cid == DeviceContext {
		return
	}
	ctx := c.contextFor(cid)
	ctx.mu.Lock()
	for i, s := range ctx.submitted {
		if s == slot {
			ctx.submitted = append(ctx.submitted[:i], ctx.submitted[i+1:]...)
			break
		}
	}
	var next *headerSlot
	if len(ctx.pending) > 0 {
		next = ctx.pending[0]
		ctx.pending = ctx.pending[1:]
		ctx.submitted = append(ctx.submitted, next)
		next.hdr.status = CBStatusSubmitted
	}
	ctx.mu.Unlock()
	if next != nil {
		c.publish(next)
	}
}

// Free releases a completed header's header-pool slot and body page. The
// caller must not call Free until the header has reached a terminal status
// (Completed, CBHeaderError, or CommandError).
func (c *Cmdbuf) Free(id uint32) {
	c.mu.Lock()
	slot, ok := c.slots[id]
	if ok {
		delete(c.slots, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.mem.Free(slot.physBase)
	c.headerIDs.Free(id)
}

// Header returns the current header state for id, for tests and callers
// that poll completion status directly rather than waiting on an IRQ.
func (c *Cmdbuf) Header(id uint32) (*CBHeader, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot, ok := c.slots[id]
	if !ok {
		return nil, false
	}
	return &slot.hdr, true
}

// QueueDepth reports how many headers are pending (queue-full, not yet
// submitted to the device) for a context. Used by tests driving the
// queue-full scenario.
func (c *Cmdbuf) QueueDepth(cid uint32) int {
	ctx := c.contextFor(cid)
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return len(ctx.pending)
}
