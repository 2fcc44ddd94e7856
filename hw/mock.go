package hw

import "sync"

// MockDevice is an in-process stand-in for the paravirtual device's
// register file. It implements PortIO and lets tests script the host-side
// reactions (raising IRQ bits, completing command buffers) that a real
// device would perform asynchronously. It does not interpret 3D command
// semantics — that is the host graphics framework's job, out of scope per
// spec.md §1 — but it models enough of the register protocol and the
// CB submission register pair to drive every scenario in spec.md §8.
type MockDevice struct {
	mu sync.Mutex

	regs         map[uint32]uint32
	pendingIndex uint32

	devCaps            map[uint32]uint32
	pendingDevCapIndex uint32

	irqStatus uint32
	syncPokes int

	pendingCommandHigh uint32

	// onSubmit is invoked when the guest writes RegCommandLow, completing
	// the {HIGH, LOW} register pair that publishes a command-buffer
	// header's physical address (spec.md §4.D.2 step 2). headerAddr is
	// the reconstructed 64-bit physical address; deviceCtx reports
	// whether the low 6 bits named the synchronous device context.
	onSubmit func(headerAddr uint64, deviceCtx bool)
}

// NewMockDevice returns a device with the ID probe and a zeroed register
// file.
func NewMockDevice() *MockDevice {
	return &MockDevice{
		regs:    map[uint32]uint32{},
		devCaps: map[uint32]uint32{},
	}
}

// SetCapabilities sets the value returned for RegCapabilities.
func (m *MockDevice) SetCapabilities(caps uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[RegCapabilities] = caps
}

// SetDevCap sets the value DevCapRead(index) will return.
func (m *MockDevice) SetDevCap(index, value uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devCaps[index] = value
}

// SetOnSubmit installs the callback invoked on each CB submission register
// write.
func (m *MockDevice) SetOnSubmit(f func(headerAddr uint64, deviceCtx bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSubmit = f
}

// RaiseIRQ ORs bits into the IRQ status register, as a real device would
// when it completes a fence or a command buffer.
func (m *MockDevice) RaiseIRQ(bits uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.irqStatus |= bits
}

// SyncPokes reports how many times RegSync was written, so tests can assert
// the "BUSY transitioned 0->1" poke happened.
func (m *MockDevice) SyncPokes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncPokes
}

// WriteIndex implements PortIO.
func (m *MockDevice) WriteIndex(index uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingIndex = index
}

// WriteValue implements PortIO.
func (m *MockDevice) WriteValue(value uint32) {
	m.mu.Lock()
	switch m.pendingIndex {
	case RegID:
		m.regs[RegID] = value
	case RegDevCap:
		m.pendingDevCapIndex = value
	case RegSync:
		m.syncPokes++
		m.regs[RegSync] = value
	case RegCommandHigh:
		m.pendingCommandHigh = value
	case RegCommandLow:
		high := m.pendingCommandHigh
		ctx := value & CommandLowContextMask
		addr := (uint64(high) << 32) | uint64(value&^CommandLowContextMask)
		cb := m.onSubmit
		m.mu.Unlock()
		if cb != nil {
			cb(addr, ctx == CommandLowDeviceCtx)
		}
		return
	default:
		m.regs[m.pendingIndex] = value
	}
	m.mu.Unlock()
}

// ReadValue implements PortIO.
func (m *MockDevice) ReadValue() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.pendingIndex {
	case RegID:
		if m.regs[RegID] == 2 {
			return 2
		}
		return 0
	case RegDevCap:
		return m.devCaps[m.pendingDevCapIndex]
	case RegIRQStatusPort:
		v := m.irqStatus
		m.irqStatus = 0 // read-to-ack
		return v
	default:
		return m.regs[m.pendingIndex]
	}
}
