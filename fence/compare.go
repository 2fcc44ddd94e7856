// Package fence implements §4.H of the command-submission core: fence
// object lifecycle, the interrupt/DPC pipeline that promotes fences from
// submitted to signaled, and the preemption request path.
//
// Compare32/Compare64 are split into their own file because gbo's deferred
// MOB destruction list (see gbo.Manager) needs the same half-space
// comparison the fence engine itself uses, and both are grounded on the
// same original_source helper.
package fence

// Compare32 orders two 32-bit fence ids using half-space (modular) wraparound
// comparison, exactly mirroring gaFenceCmp in
// original_source/.../gallium/VBoxMPGaWddm.cpp: a wrapped id that is less
// than b by more than half the id space is treated as newer, not older.
// Returns -1 if a is older than b, 0 if equal, 1 if a is newer than b.
func Compare32(a, b uint32) int {
	if a == b {
		return 0
	}
	if a-b > ^uint32(0)/2 {
		return -1
	}
	return 1
}

// Compare64 is Compare32's 64-bit counterpart, used for MOB fence slots
// (VMSVGAMINIPORTMOB.u64MobFence) and any other 64-bit fence value.
func Compare64(a, b uint64) int {
	if a == b {
		return 0
	}
	if a-b > ^uint64(0)/2 {
		return -1
	}
	return 1
}

// Reached reports whether fence value target has already been retired by
// the device, given the most recently observed completed value.
func Reached(target, completed uint64) bool {
	return Compare64(target, completed) <= 0
}

// Reached32 is Reached's 32-bit counterpart, used for submission identifiers
// and the device's FIFO_FENCE register, both 32-bit per spec.md §6.
func Reached32(target, completed uint32) bool {
	return Compare32(target, completed) <= 0
}
