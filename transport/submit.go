package transport

import "github.com/virtualbox-guest/vmsvga-kmd/status"

// Sink is the narrow submission surface encode/gbo/rewrite callers need:
// one already-encoded command, reserved and committed to whichever
// transport is active. It lets those packages stay agnostic of whether the
// FIFO ring or a command-buffer context is backing them.
type Sink interface {
	Submit(cmd []byte) status.Status
}

// Submit reserves len(cmd) bytes on the FIFO ring, copies cmd into it, and
// commits — the D.3 one-shot convenience path for callers that just want
// "send this command" without managing Reserve/Commit themselves.
func (f *Fifo) Submit(cmd []byte) status.Status {
	buf, st := f.Reserve(uint32(len(cmd)))
	if !st.Ok() {
		return st
	}
	copy(buf, cmd)
	f.Commit(uint32(len(cmd)))
	return status.OK
}

// Submit allocates a one-command body, copies cmd into it, and submits it
// synchronously against the device context — the CB-path equivalent of
// Fifo.Submit for callers that don't need queueing or completion tracking
// themselves (they can still poll Header(id) via the returned id if they
// care, but most single-shot setup commands do not).
func (c *Cmdbuf) Submit(cmd []byte) status.Status {
	id, body, st := c.Alloc(uint32(len(cmd)))
	if !st.Ok() {
		return st
	}
	copy(body, cmd)
	if st := c.SubmitDeviceCommand(id); !st.Ok() {
		c.Free(id)
		return st
	}
	return status.OK
}
