package hw

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// PhysMem is an in-process stand-in for guest physical memory: a set of
// page-aligned, separately mmap'd regions, each addressable by a physical
// base address the rest of this module treats as if it came from the guest
// MMU. This plays the same translation role the teacher's
// vhostuser.Device.regions / deviceRegion.FromDriverAddr play for virtqueue
// guest addresses (vhostuser/device.go, vhostuser/deviceregion.go): every
// GBO, MOB, GMR, command-buffer header, and command-buffer body in this
// module is backed by an allocation from a PhysMem, and every "physical
// address" that crosses into a command encoded for the device is resolved
// back to host bytes through Translate.
type PhysMem struct {
	mu      sync.Mutex
	regions []*physRegion
	nextPPN uint64
}

type physRegion struct {
	base uint64 // physical address of region start
	data []byte
}

// NewPhysMem returns an empty physical address space. Allocations start at
// PPN 1 so that PPN 0 can be treated as "no mapping" by callers that want a
// sentinel, matching the identifier space's reserved-zero convention.
func NewPhysMem() *PhysMem {
	return &PhysMem{nextPPN: 1}
}

// Alloc reserves pageCount pages of zeroed, page-aligned guest memory and
// returns its physical base address and a byte-slice view over it.
func (m *PhysMem) Alloc(pageCount uint32) (base uint64, data []byte, err error) {
	if pageCount == 0 {
		return 0, nil, fmt.Errorf("hw: Alloc(0)")
	}
	size := int(pageCount) * PageSize
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return 0, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	base = m.nextPPN << 12
	m.nextPPN += uint64(pageCount)
	m.regions = append(m.regions, &physRegion{base: base, data: mem})
	return base, mem, nil
}

// Free releases the region starting at base, which must be exactly a base
// address previously returned by Alloc.
func (m *PhysMem) Free(base uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.regions {
		if r.base == base {
			m.regions = append(m.regions[:i], m.regions[i+1:]...)
			return unix.Munmap(r.data)
		}
	}
	return fmt.Errorf("hw: Free: no region at base %#x", base)
}

// Translate resolves a physical address + length to a host byte slice
// window, analogous to deviceRegion.FromDriverAddr. It returns nil if the
// range does not lie entirely within one previously-allocated region.
func (m *PhysMem) Translate(addr uint64, length uint32) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.regions {
		end := r.base + uint64(len(r.data))
		if addr >= r.base && addr+uint64(length) <= end {
			off := addr - r.base
			return r.data[off : off+uint64(length)]
		}
	}
	return nil
}

// PPN returns the guest page number for a physical address.
func PPN(addr uint64) uint64 { return addr >> 12 }

// AddrFromPPN returns the physical address of a page number.
func AddrFromPPN(ppn uint64) uint64 { return ppn << 12 }
