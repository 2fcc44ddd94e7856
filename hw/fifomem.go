package hw

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// FIFO shared-page word offsets, per spec.md §6. The reserved prefix
// occupies the first few dwords of [0, MIN); the ring itself lives in
// [MIN, MAX).
const (
	FifoMin          uint32 = 0
	FifoMax          uint32 = 1
	FifoNextCmd      uint32 = 2
	FifoStop         uint32 = 3
	FifoBusy         uint32 = 4
	FifoCapabilities uint32 = 5
	FifoFence        uint32 = 6
	FifoReserved     uint32 = 7
	fifoNumRegs      uint32 = 8 // first data dword index if MIN falls on the default
)

// FifoCapReserve is the feature bit indicating FIFO_RESERVED is honoured.
const FifoCapReserve uint32 = 1 << 0

// PageSize is the guest page size assumed throughout this module. VMSVGA
// guests are always 4K-paged.
const PageSize = 4096

// FifoPage is the mapped FIFO shared page: a slice of 32-bit words, shared
// between the guest (producer cursor, command bytes) and the device
// (consumer cursor). Accesses use atomic load/store so that, even without
// an explicit lock, the compiler and CPU cannot reorder a command-byte
// write past the NEXT_CMD publish that makes it visible to the device —
// this is the acquire/release pairing spec.md §4.A and §5 require.
type FifoPage struct {
	mem []byte // mmap'd, length is a multiple of PageSize
}

// NewFifoPage allocates (via an anonymous mmap, in the same spirit as the
// teacher's vhostuser.deviceRegion mmap'd shared-memory regions) a FIFO
// shared page of the given size in bytes, rounded up to a whole number of
// pages.
func NewFifoPage(size uint32) (*FifoPage, error) {
	if size < PageSize {
		size = PageSize
	}
	if size%PageSize != 0 {
		size += PageSize - size%PageSize
	}
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	return &FifoPage{mem: mem}, nil
}

// NewFifoPageFromBytes wraps an already-mapped page (used by tests that
// want two FifoPage handles over the same bytes). buf's length must be a
// multiple of PageSize.
func NewFifoPageFromBytes(buf []byte) *FifoPage {
	return &FifoPage{mem: buf}
}

// Close releases the mapping created by NewFifoPage.
func (f *FifoPage) Close() error {
	return unix.Munmap(f.mem)
}

// Bytes exposes the raw backing store, e.g. for a mock device to decode
// command records directly.
func (f *FifoPage) Bytes() []byte { return f.mem }

// Len returns the page size in bytes.
func (f *FifoPage) Len() uint32 { return uint32(len(f.mem)) }

func (f *FifoPage) word(index uint32) *uint32 {
	off := index * 4
	return (*uint32)(unsafe.Pointer(&f.mem[off]))
}

// Read performs an atomic load of the dword at word index.
func (f *FifoPage) Read(index uint32) uint32 {
	return atomic.LoadUint32(f.word(index))
}

// Write performs an atomic store of value at word index.
func (f *FifoPage) Write(index uint32, value uint32) {
	atomic.StoreUint32(f.word(index), value)
}

// ReadBytes copies length bytes starting at the given byte offset. The
// offset and length must stay within the page; wrap is the caller's
// responsibility (the ring wrap logic lives in the transport package).
func (f *FifoPage) ReadBytes(byteOffset, length uint32) []byte {
	out := make([]byte, length)
	copy(out, f.mem[byteOffset:byteOffset+length])
	return out
}

// WriteBytes copies data into the page starting at the given byte offset.
func (f *FifoPage) WriteBytes(byteOffset uint32, data []byte) {
	copy(f.mem[byteOffset:], data)
}

// CompareAndSwap atomically sets the dword at word index to new if it
// currently holds old, returning whether the swap happened. Used by the
// BUSY flag's "only ping the host on a 0->1 transition" gate.
func (f *FifoPage) CompareAndSwap(index, old, new uint32) bool {
	return atomic.CompareAndSwapUint32(f.word(index), old, new)
}
