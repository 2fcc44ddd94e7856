package bitset

import "testing"

func TestAllocFirstFreeIsMonotoneUntilFreed(t *testing.T) {
	s := New(4)
	var got []uint32
	for i := 0; i < 4; i++ {
		id, ok := s.AllocFirstFree()
		if !ok {
			t.Fatalf("alloc %d: unexpectedly full", i)
		}
		got = append(got, id)
	}
	want := []uint32{0, 1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if _, ok := s.AllocFirstFree(); ok {
		t.Fatal("expected set to be full")
	}

	s.Clear(1)
	id, ok := s.AllocFirstFree()
	if !ok || id != 1 {
		t.Fatalf("expected reuse of freed bit 1, got %d, %v", id, ok)
	}
}

func TestZeroCanBePreMarkedUsed(t *testing.T) {
	s := New(8)
	s.Set(0)
	if !s.Test(0) {
		t.Fatal("bit 0 should be set")
	}
	id, ok := s.AllocFirstFree()
	if !ok || id != 1 {
		t.Fatalf("expected first free id to skip reserved 0, got %d %v", id, ok)
	}
}

func TestGrowPreservesBits(t *testing.T) {
	s := New(2)
	s.Set(1)
	s.Grow(128)
	if s.Limit() != 128 {
		t.Fatalf("limit = %d, want 128", s.Limit())
	}
	if !s.Test(1) {
		t.Fatal("bit 1 must survive growth")
	}
	if s.Test(100) {
		t.Fatal("bit 100 must be clear after growth")
	}
}
