package status

import "testing"

func TestOk(t *testing.T) {
	if !OK.Ok() {
		t.Fatal("OK.Ok() must be true")
	}
	for _, s := range []Status{InvalidParameter, InsufficientResources, InsufficientDmaBuffer, IllegalInstruction, NotSupported} {
		if s.Ok() {
			t.Errorf("%v.Ok() must be false", s)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !InsufficientDmaBuffer.Retryable() {
		t.Fatal("InsufficientDmaBuffer must be retryable")
	}
	for _, s := range []Status{OK, InvalidParameter, InsufficientResources, IllegalInstruction, NotSupported} {
		if s.Retryable() {
			t.Errorf("%v must not be retryable", s)
		}
	}
}

func TestString(t *testing.T) {
	if got := InvalidParameter.String(); got != "InvalidParameter" {
		t.Errorf("String() = %q, want InvalidParameter", got)
	}
	unknown := Status(999999)
	if got := unknown.String(); got == "" {
		t.Errorf("String() for unknown status must not be empty")
	}
}
