package gbo

import (
	"encoding/binary"

	"github.com/virtualbox-guest/vmsvga-kmd/hw"
	"github.com/virtualbox-guest/vmsvga-kmd/status"
)

// MiniportMOB is the single page allocated once at adapter startup whose
// only job is to carry the host-written mob_fence acknowledgement value the
// DPC polls before reaping deferred MOB destructions, per Svga.cpp's
// pSvga->pMobFence (see SPEC_FULL.md's SUPPLEMENTED FEATURES).
type MiniportMOB struct {
	mem  *hw.PhysMem
	base uint64
	data []byte
}

// NewMiniportMOB allocates the miniport MOB's backing page.
func NewMiniportMOB(mem *hw.PhysMem) (*MiniportMOB, status.Status) {
	base, data, err := mem.Alloc(1)
	if err != nil {
		return nil, status.InsufficientResources
	}
	return &MiniportMOB{mem: mem, base: base, data: data}, status.OK
}

// Base is the physical address the device is told to acknowledge
// completions into, via DEFINE_GB_MOB_FENCE-style setup commands.
func (m *MiniportMOB) Base() uint64 { return m.base }

// FenceValue reads the host-acknowledged MOB fence value the DPC compares
// deferred destructions against.
func (m *MiniportMOB) FenceValue() uint64 {
	return binary.LittleEndian.Uint64(m.data[0:8])
}

// SetFenceValue is used by tests and the mock device to simulate the host
// writing an acknowledgement.
func (m *MiniportMOB) SetFenceValue(v uint64) {
	binary.LittleEndian.PutUint64(m.data[0:8], v)
}

// Free releases the miniport MOB's backing page.
func (m *MiniportMOB) Free() {
	m.mem.Free(m.base)
}
