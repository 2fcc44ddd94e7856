// Package status defines the outcome codes shared by every component of
// the command-submission core. Operations that cross the guest/host device
// boundary, or that a caller must distinguish from an ordinary Go error
// (in particular the retryable InsufficientDmaBuffer backpressure signal),
// return a Status rather than an error.
package status

import "fmt"

// Status is a small integer outcome code, in the spirit of a syscall errno.
// Zero means success; negative values are reserved for future out-of-band
// signals (mirroring the teacher's convention of non-positive codes meaning
// "not a plain error").
type Status int32

const (
	// OK indicates the operation completed.
	OK Status = 0

	// InvalidParameter means the caller violated the function's contract.
	InvalidParameter Status = iota + 1_000
	// InsufficientResources means an allocation or ID space was exhausted.
	InsufficientResources
	// InsufficientDmaBuffer means the caller's output buffer was too small.
	// This is the retryable backpressure signal described in spec.md §7:
	// it must never be logged as an error, and callers either resize their
	// buffer or wait for a later submission window.
	InsufficientDmaBuffer
	// IllegalInstruction means command-stream validation failed.
	IllegalInstruction
	// NotSupported means the device capability set does not cover the
	// requested operation.
	NotSupported
)

var names = map[Status]string{
	OK:                    "OK",
	InvalidParameter:      "InvalidParameter",
	InsufficientResources: "InsufficientResources",
	InsufficientDmaBuffer: "InsufficientDmaBuffer",
	IllegalInstruction:    "IllegalInstruction",
	NotSupported:          "NotSupported",
}

// String renders the status for logging. Unlike Error, it never allocates
// a wrapped error value, so it is safe to call from a spinlock-held context.
func (s Status) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// Ok reports whether s represents success.
func (s Status) Ok() bool { return s == OK }

// Retryable reports whether the caller should resize its buffer (or wait)
// and retry, rather than treat s as a hard failure.
func (s Status) Retryable() bool { return s == InsufficientDmaBuffer }

// Error implements the error interface so Status can be returned from
// functions that also want to participate in errors.Is/As chains, without
// forcing every call site to allocate a wrapped error for the common case.
func (s Status) Error() string {
	return s.String()
}
