package idalloc

import (
	"testing"

	"github.com/virtualbox-guest/vmsvga-kmd/status"
)

func TestZeroReserved(t *testing.T) {
	a := New(4)
	id, st := a.Alloc()
	if !st.Ok() {
		t.Fatalf("Alloc failed: %v", st)
	}
	if id == 0 {
		t.Fatal("id 0 must never be handed out")
	}
}

func TestExhaustion(t *testing.T) {
	a := New(2) // ids: 0 reserved, 1 available
	id, st := a.Alloc()
	if !st.Ok() || id != 1 {
		t.Fatalf("Alloc = %d, %v, want 1, OK", id, st)
	}
	if _, st := a.Alloc(); st != status.InsufficientResources {
		t.Fatalf("Alloc on exhausted space = %v, want InsufficientResources", st)
	}
	a.Free(id)
	if id2, st := a.Alloc(); !st.Ok() || id2 != id {
		t.Fatalf("Alloc after free = %d, %v, want %d, OK", id2, st, id)
	}
}

func TestFreeUnallocatedIsNoop(t *testing.T) {
	a := New(8)
	a.Free(0)
	a.Free(5)
	id, st := a.Alloc()
	if !st.Ok() || id != 1 {
		t.Fatalf("Alloc = %d, %v, want 1, OK", id, st)
	}
}

func TestTableBackedRollsBackOnGrowFailure(t *testing.T) {
	calls := 0
	fail := true
	tb := NewTableBacked(4, func(id uint32) status.Status {
		calls++
		if fail {
			return status.InsufficientResources
		}
		return status.OK
	})
	if _, st := tb.Alloc(); st != status.InsufficientResources {
		t.Fatalf("Alloc = %v, want InsufficientResources", st)
	}
	if calls != 1 {
		t.Fatalf("grow called %d times, want 1", calls)
	}
	// The id must have been rolled back: a grow that now succeeds should
	// reissue the very same id.
	fail = false
	id, st := tb.Alloc()
	if !st.Ok() || id != 1 {
		t.Fatalf("Alloc = %d, %v, want 1, OK", id, st)
	}
}

func TestTableBackedGrowsOnEachAlloc(t *testing.T) {
	var seen []uint32
	tb := NewTableBacked(8, func(id uint32) status.Status {
		seen = append(seen, id)
		return status.OK
	})
	for i := 0; i < 3; i++ {
		if _, st := tb.Alloc(); !st.Ok() {
			t.Fatalf("Alloc %d failed: %v", i, st)
		}
	}
	if len(seen) != 3 {
		t.Fatalf("grow called %d times, want 3", len(seen))
	}
}
