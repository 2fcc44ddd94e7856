// Command svgasim wires svga.Adapter to an in-process mock device and
// drives spec.md §8 scenario 1 (the basic fence round-trip) end-to-end,
// the same role the teacher's example/loopback binary plays for go-fuse: a
// minimal, runnable demonstration of the library wired together rather
// than a production entry point.
package main

import (
	"log"
	"time"

	"github.com/virtualbox-guest/vmsvga-kmd/encode"
	"github.com/virtualbox-guest/vmsvga-kmd/fence"
	"github.com/virtualbox-guest/vmsvga-kmd/hw"
	"github.com/virtualbox-guest/vmsvga-kmd/svga"
)

func main() {
	mock := hw.NewMockDevice()

	adapter := svga.New(svga.DefaultConfig())
	if st := adapter.Start(mock); !st.Ok() {
		log.Fatalf("adapter start failed: %v", st)
	}
	defer adapter.Stop()

	handle, st := adapter.CreateFence()
	if !st.Ok() {
		log.Fatalf("fence create failed: %v", st)
	}
	log.Printf("created fence handle %d", handle)

	n, _ := encode.Fence(nil, 0)
	cmd := make([]byte, n)
	encode.Fence(cmd, 0)
	if st := adapter.SubmitRaw(cmd); !st.Ok() {
		log.Fatalf("command submission failed: %v", st)
	}

	const submissionID = 7
	if st := adapter.SubmitFence(handle, submissionID); !st.Ok() {
		log.Fatalf("fence submit failed: %v", st)
	}
	log.Printf("stamped fence %d with submission id %d", handle, submissionID)

	if state, _ := adapter.WaitFence(handle, 0); state != fence.StateSubmitted {
		log.Fatalf("expected SUBMITTED before device completion, got %v", state)
	}

	// Simulate the device finishing the command and raising its IRQ line.
	adapter.SimulateHostFenceWrite(submissionID)
	mock.RaiseIRQ(hw.IRQAnyFence)

	if !adapter.HandleIRQ() {
		log.Fatal("interrupt handler reported the IRQ as not ours")
	}
	adapter.RunDPC(nil)

	state, st := adapter.WaitFence(handle, time.Millisecond)
	if !st.Ok() {
		log.Fatalf("fence wait failed: %v", st)
	}
	if state != fence.StateSignaled {
		log.Fatalf("fence %d did not reach SIGNALED, state = %v", handle, state)
	}
	log.Printf("fence %d reached SIGNALED — scenario 1 complete", handle)
}
