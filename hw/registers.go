// Package hw implements §4.A of the command-submission core: the hardware
// access layer. Register accesses pair an index-port write with a
// value-port read/write under a non-reentrant spinlock (mirroring the real
// device's single index/value port pair); FIFO shared-page accesses are
// plain atomic loads/stores against a mapped page, with no lock, matching
// spec.md §4.A and §5's note that the hardware spinlock sits at the bottom
// of the lock hierarchy.
//
// There is no real VMSVGA device to talk to from a Go test process, so this
// package also provides MockDevice: an in-process stand-in for the
// paravirtual device, playing the same role the teacher's real mmap'd
// shared-memory regions (vhostuser/deviceregion.go) and its real-filesystem
// loopback mounts (fuse/test/loopback_test.go) play for go-fuse — a fully
// addressable, real implementation of the external half of the protocol
// that the rest of this module can be driven against in tests.
package hw

import (
	"sync"
)

// Register offsets (word-indexed), per spec.md §6.
const (
	RegID            uint32 = 0
	RegEnable        uint32 = 1
	RegConfigDone    uint32 = 4
	RegIRQMask       uint32 = 5 // not a real VMSVGA offset; kept local to this mock
	RegIRQStatusPort uint32 = 6
	RegTraces        uint32 = 7
	RegSync          uint32 = 8
	RegVRAMSize      uint32 = 9
	RegMemSize       uint32 = 10
	RegMemRegs       uint32 = 11
	RegCapabilities  uint32 = 12
	RegCommandHigh   uint32 = 13
	RegCommandLow    uint32 = 14
	RegGMRMaxIDs     uint32 = 15
	RegGMRsMaxPages  uint32 = 16
	RegMemorySize    uint32 = 17
	RegDevCap        uint32 = 18
)

// RegEnable bits.
const (
	EnableEnable uint32 = 1 << 0
	EnableHide   uint32 = 1 << 1
)

// IRQ status/mask bits.
const (
	IRQAnyFence      uint32 = 1 << 0
	IRQCommandBuffer uint32 = 1 << 1
	IRQError         uint32 = 1 << 2
)

// Device capability bits (RegCapabilities), per spec.md §6.
const (
	CapExtendedFIFO   uint32 = 1 << 0
	CapGMR2           uint32 = 1 << 1
	CapCommandBuffers uint32 = 1 << 2
	CapDX             uint32 = 1 << 3
	CapGBObjects      uint32 = 1 << 4
)

// CommandLow encodes the CB context in its low 6 bits; 0x3F means "device".
const (
	CommandLowContextMask uint32 = 0x3F
	CommandLowDeviceCtx   uint32 = 0x3F
)

// PortIO is the minimal index/value port pair a real VMSVGA device exposes.
// A single spinlock-held sequence is: write the register index, then
// read or write the value — this mirrors the real hardware protocol where
// the index and value ports are two separate I/O addresses that must not be
// interleaved by another CPU.
type PortIO interface {
	WriteIndex(index uint32)
	WriteValue(value uint32)
	ReadValue() uint32
}

// Device is the hardware access layer: it serialises index/value port
// pairs under its own spinlock and exposes the four primitives named in
// spec.md §4.A.
type Device struct {
	mu   sync.Mutex // the hardware spinlock, §5 step 7 (innermost)
	port PortIO
}

// New wraps port as a Device.
func New(port PortIO) *Device {
	return &Device{port: port}
}

// RegisterRead reads register offset under the hardware spinlock.
func (d *Device) RegisterRead(offset uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.port.WriteIndex(offset)
	return d.port.ReadValue()
}

// RegisterWrite writes value to register offset under the hardware
// spinlock.
func (d *Device) RegisterWrite(offset uint32, value uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.port.WriteIndex(offset)
	d.port.WriteValue(value)
}

// DevCapRead reads capability slot index: the index port selects RegDevCap
// once, the value port is then written with the capability slot and
// immediately read back for its value, all under one spinlock acquisition.
func (d *Device) DevCapRead(index uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.port.WriteIndex(RegDevCap)
	d.port.WriteValue(index)
	return d.port.ReadValue()
}

// Probe verifies the device responds to the ID handshake: write 2, then
// read back 2.
func (d *Device) Probe() bool {
	d.RegisterWrite(RegID, 2)
	return d.RegisterRead(RegID) == 2
}
