// Package transport implements §4.D of the command-submission core: the
// two ways a command reaches the device — the legacy FIFO ring and
// command-buffer (CB) contexts — plus the convenience adapter components
// like gbo and encode use to submit one command at a time without caring
// which path is active.
//
// Fifo is grounded line-by-line on SvgaFifoInit/SvgaFifoReserve/
// SvgaFifoCommit in original_source/.../gallium/SvgaFifo.cpp: the same
// offMin/offMax/offNextCmd/offStop wraparound arithmetic, the same
// fall-back to a bounce buffer when a reservation would straddle the
// ring's wrap point awkwardly, and the same "ping the host only if BUSY
// was clear" optimization.
package transport

import (
	"sync"

	"github.com/virtualbox-guest/vmsvga-kmd/hw"
	"github.com/virtualbox-guest/vmsvga-kmd/status"
)

// Fifo drives the legacy command ring.
type Fifo struct {
	dev  *hw.Device
	page *hw.FifoPage

	mu         sync.Mutex
	reserved   uint32
	bounce     []byte // non-nil while a reservation could not be satisfied in place
	fifoCaps   uint32
	hasReserve bool
}

// NewFifo brings up the FIFO ring exactly as SvgaFifoInit does: enable the
// device, compute the minimum offset (leaving room for the extended-FIFO
// register block when the device advertises it), and publish
// MIN/MAX/NEXT_CMD/STOP/BUSY before telling the device config is done.
func NewFifo(dev *hw.Device, page *hw.FifoPage, caps uint32) *Fifo {
	dev.RegisterWrite(hw.RegEnable, hw.EnableEnable|hw.EnableHide)
	dev.RegisterWrite(hw.RegTraces, 0)

	offMin := uint32(4)
	if caps&hw.CapExtendedFIFO != 0 {
		offMin = dev.RegisterRead(hw.RegMemRegs)
	}
	offMin *= 4
	if offMin < hw.PageSize {
		offMin = hw.PageSize
	}

	page.Write(hw.FifoMin, offMin)
	page.Write(hw.FifoMax, uint32(page.Len()))
	page.Write(hw.FifoNextCmd, offMin)
	page.Write(hw.FifoStop, offMin)
	page.Write(hw.FifoBusy, 0)

	dev.RegisterWrite(hw.RegConfigDone, 1)

	f := &Fifo{dev: dev, page: page}
	f.fifoCaps = page.Read(hw.FifoCapabilities)
	f.hasReserve = f.fifoCaps&hw.FifoCapReserve != 0
	page.Write(hw.FifoFence, 0)
	return f
}

// Reserve asks for cbReserve contiguous bytes in the ring. It returns a
// destination buffer the caller must fill completely and pass to Commit:
// either a window directly into the mapped ring (the common case) or a
// bounce buffer, when the reservation would otherwise straddle the ring's
// wrap point in a way that can't be expressed as one contiguous slice.
func (f *Fifo) Reserve(cbReserve uint32) ([]byte, status.Status) {
	f.mu.Lock()

	offMin := f.page.Read(hw.FifoMin)
	offMax := f.page.Read(hw.FifoMax)
	offNextCmd := f.page.Read(hw.FifoNextCmd)

	if cbReserve >= offMax-offMin {
		f.mu.Unlock()
		return nil, status.InvalidParameter
	}

	f.reserved = cbReserve

	offStop := f.page.Read(hw.FifoStop)
	var needBounce bool
	if offNextCmd >= offStop {
		if offNextCmd+cbReserve < offMax || (offNextCmd+cbReserve == offMax && offStop > offMin) {
			// enough room in place
		} else if (offMax-offNextCmd)+(offStop-offMin) <= cbReserve {
			f.reserved = 0
			f.mu.Unlock()
			return nil, status.InsufficientDmaBuffer
		} else {
			needBounce = true
		}
	} else {
		if offNextCmd+cbReserve >= offStop {
			f.reserved = 0
			f.mu.Unlock()
			return nil, status.InsufficientDmaBuffer
		}
	}

	if needBounce {
		f.bounce = make([]byte, cbReserve)
		f.mu.Unlock()
		return f.bounce, status.OK
	}

	if f.hasReserve {
		f.page.Write(hw.FifoReserved, cbReserve)
	}

	buf := f.page.Bytes()[offNextCmd : offNextCmd+cbReserve]
	f.mu.Unlock()
	return buf, status.OK
}

// Commit publishes cbActual bytes of a previously reserved buffer,
// splitting the write across the ring's wrap point for a bounce buffer,
// advancing NEXT_CMD modulo the ring, and pinging the host only if the
// BUSY flag was not already set — mirroring svgaFifoPingHost's atomic
// compare-and-swap gate.
func (f *Fifo) Commit(cbActual uint32) {
	f.mu.Lock()

	offMin := f.page.Read(hw.FifoMin)
	offMax := f.page.Read(hw.FifoMax)
	offNextCmd := f.page.Read(hw.FifoNextCmd)

	f.reserved = 0

	if f.bounce != nil {
		if f.hasReserve {
			f.page.Write(hw.FifoReserved, cbActual)
		}
		cbToWrite := offMax - offNextCmd
		if cbToWrite > cbActual {
			cbToWrite = cbActual
		}
		f.page.WriteBytes(offNextCmd, f.bounce[:cbToWrite])
		if cbActual > cbToWrite {
			f.page.WriteBytes(offMin, f.bounce[cbToWrite:cbActual])
		}
		f.bounce = nil
	}

	offNextCmd += cbActual
	if offNextCmd >= offMax {
		offNextCmd -= offMax - offMin
	}
	f.page.Write(hw.FifoNextCmd, offNextCmd)

	if f.hasReserve {
		f.page.Write(hw.FifoReserved, 0)
	}

	f.mu.Unlock()
	f.pingHost()
}

func (f *Fifo) pingHost() {
	if f.page.CompareAndSwap(hw.FifoBusy, 0, 1) {
		f.dev.RegisterWrite(hw.RegSync, 1)
	}
}
