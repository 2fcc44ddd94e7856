package hostobj

import "testing"

type fakeObj struct {
	destroyed *bool
}

func (f *fakeObj) Destroy() { *f.destroyed = true }

func TestQueryIncrementsRefAndReleaseDecrements(t *testing.T) {
	r := New()
	destroyed := false
	r.Insert(1, &fakeObj{destroyed: &destroyed})

	if r.RefCount(1) != 1 {
		t.Fatalf("ref count after insert = %d, want 1", r.RefCount(1))
	}
	if _, ok := r.Query(1); !ok {
		t.Fatal("expected object to be found")
	}
	if r.RefCount(1) != 2 {
		t.Fatalf("ref count after query = %d, want 2", r.RefCount(1))
	}

	r.Release(1, true)
	if destroyed {
		t.Fatal("object should not be destroyed yet: one reference remains")
	}
	r.Release(1, true)
	if !destroyed {
		t.Fatal("object should be destroyed once the last reference drops")
	}
}

func TestReleaseDeferredWhenNotInline(t *testing.T) {
	r := New()
	destroyed := false
	r.Insert(2, &fakeObj{destroyed: &destroyed})

	r.Release(2, false)
	if destroyed {
		t.Fatal("non-inline release should defer destruction")
	}
	if r.PendingCount() != 1 {
		t.Fatalf("pending count = %d, want 1", r.PendingCount())
	}

	n := r.ProcessPending()
	if n != 1 || !destroyed {
		t.Fatalf("ProcessPending should have run the deferred destructor: n=%d destroyed=%v", n, destroyed)
	}
	if r.PendingCount() != 0 {
		t.Fatal("pending list should be empty after sweep")
	}
}

func TestUnrefDestroysOwnerReference(t *testing.T) {
	r := New()
	destroyed := false
	r.Insert(3, &fakeObj{destroyed: &destroyed})

	r.Unref(3, true)
	if !destroyed {
		t.Fatal("Unref should query-then-release twice, destroying the object")
	}
	if _, ok := r.Query(3); ok {
		t.Fatal("object should no longer be live")
	}
}

func TestInsertOverExistingKeyFails(t *testing.T) {
	r := New()
	destroyed := false
	r.Insert(4, &fakeObj{destroyed: &destroyed})
	if st := r.Insert(4, &fakeObj{destroyed: &destroyed}); st.Ok() {
		t.Fatal("inserting over a live key should fail")
	}
}

func TestReleaseUnknownKeyIsNoop(t *testing.T) {
	r := New()
	r.Release(99, true) // must not panic
}
