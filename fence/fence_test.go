package fence

import (
	"testing"
	"time"

	"github.com/virtualbox-guest/vmsvga-kmd/hw"
	"github.com/virtualbox-guest/vmsvga-kmd/status"
)

func TestCompare32WrapsAroundHalfSpace(t *testing.T) {
	newVal := ^uint32(0) - 3
	oldVal := uint32(3)
	if Compare32(newVal, oldVal) >= 0 {
		t.Fatalf("Compare32(MAX-3, 3) = %d, want < 0 (MAX-3 precedes 3 across the wrap)", Compare32(newVal, oldVal))
	}
	if !Reached32(newVal, oldVal) {
		t.Fatal("Reached32(MAX-3, 3) = false, want true")
	}
}

func TestCompare32Ordinary(t *testing.T) {
	if Compare32(5, 3) <= 0 {
		t.Fatal("5 should be newer than 3")
	}
	if Compare32(3, 5) >= 0 {
		t.Fatal("3 should be older than 5")
	}
	if Compare32(5, 5) != 0 {
		t.Fatal("equal values should compare equal")
	}
}

func newTestEngine(t *testing.T) (*Engine, *hw.MockDevice) {
	t.Helper()
	mock := hw.NewMockDevice()
	dev := hw.New(mock)
	fifoBuf := make([]byte, hw.PageSize)
	fifo := hw.NewFifoPageFromBytes(fifoBuf)
	return NewEngine(dev, fifo, 64, nil, nil, nil), mock
}

// Scenario 1: basic fence round-trip.
func TestBasicFenceRoundTrip(t *testing.T) {
	e, mock := newTestEngine(t)

	handle, st := e.Create()
	if !st.Ok() {
		t.Fatal(st)
	}
	if state, st := e.Wait(handle, 0); !st.Ok() || state != StateIdle {
		t.Fatalf("state = %v st = %v, want IDLE", state, st)
	}

	if st := e.Submit(handle, 7); !st.Ok() {
		t.Fatal(st)
	}
	if state, _ := e.Wait(handle, 0); state != StateSubmitted {
		t.Fatalf("state = %v, want SUBMITTED", state)
	}

	e.fifo.Write(hw.FifoFence, 7)
	mock.RaiseIRQ(hw.IRQAnyFence)
	if handled := e.HandleIRQ(); !handled {
		t.Fatal("HandleIRQ reported not-ours for a real IRQ")
	}
	if got := e.LastCompleted(); got != 7 {
		t.Fatalf("lastCompleted = %d, want 7", got)
	}

	e.RunDPC(nil)
	state, st := e.Wait(handle, 0)
	if !st.Ok() || state != StateSignaled {
		t.Fatalf("state = %v st = %v, want SIGNALED", state, st)
	}
}

func TestWaitBlocksUntilDPCSignals(t *testing.T) {
	e, mock := newTestEngine(t)
	handle, _ := e.Create()
	e.Submit(handle, 1)

	done := make(chan State, 1)
	go func() {
		state, _ := e.Wait(handle, time.Second)
		done <- state
	}()

	time.Sleep(10 * time.Millisecond)
	e.fifo.Write(hw.FifoFence, 1)
	mock.RaiseIRQ(hw.IRQAnyFence)
	e.HandleIRQ()
	e.RunDPC(nil)

	select {
	case state := <-done:
		if state != StateSignaled {
			t.Fatalf("state = %v, want SIGNALED", state)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait never woke up")
	}
}

// Scenario 5: preemption of in-flight work.
func TestPreemptionOfInFlightWork(t *testing.T) {
	e, mock := newTestEngine(t)

	for i := uint32(1); i <= 5; i++ {
		handle, _ := e.Create()
		e.Submit(handle, i)
	}
	if got := e.LastSubmitted(); got != 5 {
		t.Fatalf("lastSubmitted = %d, want 5", got)
	}
	if got := e.LastCompleted(); got != 0 {
		t.Fatalf("lastCompleted = %d, want 0", got)
	}

	var emitted uint32
	var preempted bool
	var preemptedLastCompleted uint32
	st := e.RequestPreempt(
		func(preemptionID uint32) status.Status { emitted = preemptionID; return status.OK },
		func(lastCompleted uint32) { preempted = true; preemptedLastCompleted = lastCompleted },
	)
	_ = st
	if preempted {
		t.Fatal("should not have signalled synchronously: work is still outstanding")
	}
	if emitted != 6 {
		t.Fatalf("emitted preemption id = %d, want 6", emitted)
	}
	if got := e.PreemptionID(); got != 6 {
		t.Fatalf("PreemptionID() = %d, want 6", got)
	}

	for i := uint32(1); i <= 5; i++ {
		e.fifo.Write(hw.FifoFence, i)
		mock.RaiseIRQ(hw.IRQAnyFence)
		e.HandleIRQ()
	}
	if got := e.LastCompleted(); got != 5 {
		t.Fatalf("lastCompleted after frames 1..5 = %d, want 5", got)
	}

	e.fifo.Write(hw.FifoFence, 6)
	mock.RaiseIRQ(hw.IRQAnyFence)
	e.HandleIRQ()

	if got := e.PreemptionID(); got != 0 {
		t.Fatalf("PreemptionID() after match = %d, want 0 (cleared)", got)
	}
	if got := e.LastCompleted(); got != 5 {
		t.Fatalf("lastCompleted after preemption fence = %d, want 5 (last-submitted, not the preemption id itself)", got)
	}
	_ = preemptedLastCompleted
}

func TestRequestPreemptSynchronousWhenIdle(t *testing.T) {
	e, _ := newTestEngine(t)
	var preempted bool
	var lastCompleted uint32
	e.RequestPreempt(
		func(uint32) status.Status { t.Fatal("emit should not be called when idle"); return status.OK },
		func(lc uint32) { preempted = true; lastCompleted = lc },
	)
	if !preempted {
		t.Fatal("expected synchronous DMA_PREEMPTED signal")
	}
	if lastCompleted != 0 {
		t.Fatalf("lastCompleted = %d, want 0", lastCompleted)
	}
}

func TestRenderMetadataReleasedOnceFenceCompletes(t *testing.T) {
	e, mock := newTestEngine(t)
	released := 0
	e.RegisterRenderMetadata(3, func() { released++ })
	e.RegisterRenderMetadata(9, func() { released++ })

	e.fifo.Write(hw.FifoFence, 3)
	mock.RaiseIRQ(hw.IRQAnyFence)
	e.HandleIRQ()
	result := e.RunDPC(nil)
	if result.RenderReleased != 1 || released != 1 {
		t.Fatalf("RenderReleased = %d released = %d, want 1/1", result.RenderReleased, released)
	}

	e.fifo.Write(hw.FifoFence, 9)
	mock.RaiseIRQ(hw.IRQAnyFence)
	e.HandleIRQ()
	e.RunDPC(nil)
	if released != 2 {
		t.Fatalf("released = %d, want 2", released)
	}
}

func TestHandleIRQNotOursReturnsFalse(t *testing.T) {
	e, _ := newTestEngine(t)
	if e.HandleIRQ() {
		t.Fatal("HandleIRQ should report false when the status register reads zero")
	}
}
