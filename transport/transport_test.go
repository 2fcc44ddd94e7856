package transport

import (
	"bytes"
	"testing"

	"github.com/virtualbox-guest/vmsvga-kmd/hw"
	"github.com/virtualbox-guest/vmsvga-kmd/status"
)

func newTestFifo(t *testing.T, pages uint32) (*Fifo, *hw.MockDevice, *hw.FifoPage) {
	t.Helper()
	dev := hw.NewMockDevice()
	page, err := hw.NewFifoPage(pages * hw.PageSize)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { page.Close() })
	f := NewFifo(hw.New(dev), page, 0)
	return f, dev, page
}

func TestFifoReserveCommitRoundTrip(t *testing.T) {
	f, dev, _ := newTestFifo(t, 2)

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	buf, st := f.Reserve(uint32(len(payload)))
	if !st.Ok() {
		t.Fatal(st)
	}
	copy(buf, payload)
	f.Commit(uint32(len(payload)))

	if dev.SyncPokes() != 1 {
		t.Fatalf("expected exactly one sync poke, got %d", dev.SyncPokes())
	}
}

func TestFifoPingOnlyOnBusyTransition(t *testing.T) {
	f, dev, page := newTestFifo(t, 2)

	buf, st := f.Reserve(4)
	if !st.Ok() {
		t.Fatal(st)
	}
	f.Commit(uint32(len(buf)))
	if dev.SyncPokes() != 1 {
		t.Fatalf("first commit should poke once, got %d", dev.SyncPokes())
	}

	// BUSY is still 1 (no one has acked it), so a second commit must not
	// poke again.
	if page.Read(hw.FifoBusy) != 1 {
		t.Fatal("expected BUSY to remain set after first commit")
	}
	buf2, st := f.Reserve(4)
	if !st.Ok() {
		t.Fatal(st)
	}
	f.Commit(uint32(len(buf2)))
	if dev.SyncPokes() != 1 {
		t.Fatalf("second commit while BUSY should not poke again, got %d", dev.SyncPokes())
	}

	page.Write(hw.FifoBusy, 0)
	buf3, st := f.Reserve(4)
	if !st.Ok() {
		t.Fatal(st)
	}
	f.Commit(uint32(len(buf3)))
	if dev.SyncPokes() != 2 {
		t.Fatalf("commit after BUSY cleared should poke again, got %d", dev.SyncPokes())
	}
}

func TestFifoReserveExactlyFreeSpace(t *testing.T) {
	f, _, page := newTestFifo(t, 2)
	offMin := page.Read(hw.FifoMin)
	offMax := page.Read(hw.FifoMax)
	free := offMax - offMin

	// A reservation for the entire free region minus one byte must always
	// succeed; requesting the full free region must fail, since the ring
	// can never be filled completely (that would make NEXT_CMD == STOP,
	// indistinguishable from "empty").
	if _, st := f.Reserve(free - 1); !st.Ok() {
		t.Fatalf("reserve(free-1) = %v, want OK", st)
	}
	f.Commit(0) // release without advancing, so the next check starts clean

	if _, st := f.Reserve(free); st.Ok() {
		t.Fatal("reserve(free) should fail: the ring cannot be filled completely")
	}
}

func TestFifoWrapUsesBounceBuffer(t *testing.T) {
	f, _, page := newTestFifo(t, 2)
	offMin := page.Read(hw.FifoMin)
	offMax := page.Read(hw.FifoMax)

	// Advance NEXT_CMD close to the end of the ring by committing a large
	// no-op-ish reservation, then move STOP forward past MIN to open up
	// room that straddles the wrap point.
	big := (offMax - offMin) - 16
	buf, st := f.Reserve(big)
	if !st.Ok() {
		t.Fatal(st)
	}
	f.Commit(uint32(len(buf)))
	page.Write(hw.FifoStop, page.Read(hw.FifoNextCmd))

	// Now NEXT_CMD sits 16 bytes from MAX and STOP == NEXT_CMD (ring
	// logically empty). A 32-byte reservation must wrap and use a bounce
	// buffer since it can't be expressed as one contiguous slice.
	payload := bytes.Repeat([]byte{0xAB}, 32)
	dst, st := f.Reserve(32)
	if !st.Ok() {
		t.Fatal(st)
	}
	copy(dst, payload)
	f.Commit(32)

	nextCmd := page.Read(hw.FifoNextCmd)
	if nextCmd != offMin+16 {
		t.Fatalf("NEXT_CMD after wrap = %d, want %d", nextCmd, offMin+16)
	}
}

func TestFifoSubmitConvenienceWrapper(t *testing.T) {
	f, _, _ := newTestFifo(t, 2)
	if st := f.Submit([]byte{9, 9, 9, 9}); !st.Ok() {
		t.Fatal(st)
	}
}

func newTestCmdbuf(t *testing.T) (*Cmdbuf, *hw.MockDevice) {
	t.Helper()
	dev := hw.NewMockDevice()
	return NewCmdbuf(hw.New(dev), hw.NewPhysMem(), 64), dev
}

func TestCmdbufDeviceCommandRoundTrip(t *testing.T) {
	c, dev := newTestCmdbuf(t)
	var submittedAddr uint64
	dev.SetOnSubmit(func(addr uint64, deviceCtx bool) {
		submittedAddr = addr
		if !deviceCtx {
			t.Error("expected device-context submission")
		}
	})

	id, body, st := c.Alloc(16)
	if !st.Ok() {
		t.Fatal(st)
	}
	copy(body, bytes.Repeat([]byte{1}, 16))
	if st := c.SubmitDeviceCommand(id); !st.Ok() {
		t.Fatal(st)
	}
	if submittedAddr == 0 {
		t.Fatal("expected device to observe a nonzero header address")
	}

	c.Complete(id, CBStatusCompleted, 0)
	hdr, ok := c.Header(id)
	if !ok || hdr.Status() != CBStatusCompleted {
		t.Fatalf("header status = %v, want Completed", hdr.Status())
	}
	c.Free(id)
}

func TestCmdbufQueueFullDefersAndDrains(t *testing.T) {
	c, _ := newTestCmdbuf(t)
	const cid = uint32(3)

	ids := make([]uint32, 0, MaxQueuedPerContext)
	for i := 0; i < MaxQueuedPerContext-1; i++ {
		id, _, st := c.Alloc(4)
		if !st.Ok() {
			t.Fatal(st)
		}
		if st := c.SubmitMiniportCommand(cid, id); !st.Ok() {
			t.Fatal(st)
		}
		hdr, _ := c.Header(id)
		if hdr.Status() != CBStatusSubmitted {
			t.Fatalf("header %d status = %v, want Submitted", i, hdr.Status())
		}
		ids = append(ids, id)
	}

	// The context's submitted queue is now full; one more submission must
	// be deferred to the pending queue instead of reaching the device.
	overflowID, _, st := c.Alloc(4)
	if !st.Ok() {
		t.Fatal(st)
	}
	if st := c.SubmitMiniportCommand(cid, overflowID); !st.Ok() {
		t.Fatal(st)
	}
	hdr, _ := c.Header(overflowID)
	if hdr.Status() != CBStatusQueueFull {
		t.Fatalf("overflow header status = %v, want QueueFull", hdr.Status())
	}
	if c.QueueDepth(cid) != 1 {
		t.Fatalf("queue depth = %d, want 1", c.QueueDepth(cid))
	}

	// Completing one submitted header should drain the pending one into
	// the device.
	c.Complete(ids[0], CBStatusCompleted, 0)
	if c.QueueDepth(cid) != 0 {
		t.Fatal("pending queue should have drained")
	}
	hdr, _ = c.Header(overflowID)
	if hdr.Status() != CBStatusSubmitted {
		t.Fatalf("drained header status = %v, want Submitted", hdr.Status())
	}
}

func TestCmdbufAllocRejectsOversizeBody(t *testing.T) {
	c, _ := newTestCmdbuf(t)
	if _, _, st := c.Alloc(hw.PageSize + 1); st == status.OK {
		t.Fatal("allocating a body larger than one page should fail")
	}
}

func TestCmdbufSubmitConvenienceWrapper(t *testing.T) {
	c, _ := newTestCmdbuf(t)
	if st := c.Submit([]byte{1, 2, 3}); !st.Ok() {
		t.Fatal(st)
	}
}
