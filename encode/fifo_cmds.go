package encode

import "github.com/virtualbox-guest/vmsvga-kmd/status"

// ScreenFlags mirror SVGA_SCREEN_* bits used by DefineScreen.
const (
	ScreenMustBeSet  ScreenFlag = 1 << 0
	ScreenIsPrimary  ScreenFlag = 1 << 1
	ScreenDeactivate ScreenFlag = 1 << 2
	ScreenBlanking   ScreenFlag = 1 << 3
)

type ScreenFlag uint32

// DefineScreen writes SVGA_CMD_DEFINE_SCREEN. Fixed-size: 4 (id) + 40 bytes
// of screen object fields.
func DefineScreen(buf []byte, id uint32, activate bool, xOrigin, yOrigin int32, width, height uint32, primary bool, vramOffset uint32, blank bool) (int, status.Status) {
	const payload = 40
	n := fifoHeaderLen + payload
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeaderFIFO(buf, CmdDefineScreen)
	flags := uint32(ScreenMustBeSet)
	if primary {
		flags |= uint32(ScreenIsPrimary)
	}
	if !activate {
		flags |= uint32(ScreenDeactivate)
	}
	if blank {
		flags |= uint32(ScreenBlanking)
	}
	off := fifoHeaderLen
	putU32(buf, off, 40) // structSize
	putU32(buf, off+4, id)
	putU32(buf, off+8, flags)
	putU32(buf, off+12, width)
	putU32(buf, off+16, height)
	putI32(buf, off+20, xOrigin)
	putI32(buf, off+24, yOrigin)
	putU32(buf, off+28, GMRFramebuffer)
	putU32(buf, off+32, vramOffset)
	putU32(buf, off+36, width*4) // pitch
	return n, status.OK
}

// DestroyScreen writes SVGA_CMD_DESTROY_SCREEN.
func DestroyScreen(buf []byte, id uint32) (int, status.Status) {
	n := fifoHeaderLen + 4
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeaderFIFO(buf, CmdDestroyScreen)
	putU32(buf, fifoHeaderLen, id)
	return n, status.OK
}

// Update writes SVGA_CMD_UPDATE: flush a screen rectangle to the display.
func Update(buf []byte, x, y, width, height uint32) (int, status.Status) {
	n := fifoHeaderLen + 16
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeaderFIFO(buf, CmdUpdate)
	off := fifoHeaderLen
	putU32(buf, off, x)
	putU32(buf, off+4, y)
	putU32(buf, off+8, width)
	putU32(buf, off+12, height)
	return n, status.OK
}

// DefineCursor writes SVGA_CMD_DEFINE_CURSOR, a composite command whose
// and-mask and xor-mask bitmaps follow the fixed header. Uses the two-call
// contract: a zero-length buf returns the required size only.
func DefineCursor(buf []byte, hotspotX, hotspotY, width, height, andMaskDepth, xorMaskDepth uint32, andMask, xorMask []byte) (int, status.Status) {
	const fixed = 28
	n := fifoHeaderLen + fixed + len(andMask) + len(xorMask)
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeaderFIFO(buf, CmdDefineCursor)
	off := fifoHeaderLen
	putU32(buf, off, 0) // id, always 0 per original_source
	putU32(buf, off+4, hotspotX)
	putU32(buf, off+8, hotspotY)
	putU32(buf, off+12, width)
	putU32(buf, off+16, height)
	putU32(buf, off+20, andMaskDepth)
	putU32(buf, off+24, xorMaskDepth)
	body := off + fixed
	copy(buf[body:], andMask)
	copy(buf[body+len(andMask):], xorMask)
	return n, status.OK
}

// DefineAlphaCursor writes SVGA_CMD_DEFINE_ALPHA_CURSOR.
func DefineAlphaCursor(buf []byte, hotspotX, hotspotY, width, height uint32, image []byte) (int, status.Status) {
	const fixed = 16
	n := fifoHeaderLen + fixed + len(image)
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeaderFIFO(buf, CmdDefineAlphaCursor)
	off := fifoHeaderLen
	putU32(buf, off, 0)
	putU32(buf, off+4, hotspotX)
	putU32(buf, off+8, hotspotY)
	putU32(buf, off+12, width)
	_ = height // height is implied by len(image)/width/4 at decode time, matching original_source's struct layout
	copy(buf[off+fixed:], image)
	return n, status.OK
}

// Fence writes SVGA_CMD_FENCE: ask the device to eventually write value
// into SVGA_FIFO_FENCE.
func Fence(buf []byte, value uint32) (int, status.Status) {
	n := fifoHeaderLen + 4
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeaderFIFO(buf, CmdFence)
	putU32(buf, fifoHeaderLen, value)
	return n, status.OK
}

// DefineGMRFB writes SVGA_CMD_DEFINE_GMRFB, describing the GMR-backed
// virtual framebuffer blit source/destination used by the paging path.
func DefineGMRFB(buf []byte, offset, bytesPerLine uint32) (int, status.Status) {
	n := fifoHeaderLen + 16
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeaderFIFO(buf, CmdDefineGMRFB)
	off := fifoHeaderLen
	putU32(buf, off, GMRFramebuffer)
	putU32(buf, off+4, offset)
	putU32(buf, off+8, bytesPerLine)
	putU32(buf, off+12, (24<<8)|32) // colorDepth<<8 | bitsPerPixel, reserved=0
	return n, status.OK
}

// BlitGMRFBToScreen writes SVGA_CMD_BLIT_GMRFB_TO_SCREEN.
func BlitGMRFBToScreen(buf []byte, dstScreen uint32, srcX, srcY, left, top, right, bottom int32) (int, status.Status) {
	n := fifoHeaderLen + 28
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeaderFIFO(buf, CmdBlitGMRFBToScreen)
	off := fifoHeaderLen
	putI32(buf, off, srcX)
	putI32(buf, off+4, srcY)
	putI32(buf, off+8, left)
	putI32(buf, off+12, top)
	putI32(buf, off+16, right)
	putI32(buf, off+20, bottom)
	putU32(buf, off+24, dstScreen)
	return n, status.OK
}

// BlitScreenToGMRFB writes SVGA_CMD_BLIT_SCREEN_TO_GMRFB.
func BlitScreenToGMRFB(buf []byte, srcScreen uint32, srcX, srcY, left, top, right, bottom int32) (int, status.Status) {
	n := fifoHeaderLen + 28
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeaderFIFO(buf, CmdBlitScreenToGMRFB)
	off := fifoHeaderLen
	putI32(buf, off, srcX)
	putI32(buf, off+4, srcY)
	putI32(buf, off+8, left)
	putI32(buf, off+12, top)
	putI32(buf, off+16, right)
	putI32(buf, off+20, bottom)
	putU32(buf, off+24, srcScreen)
	return n, status.OK
}

// DefineGMR2 writes SVGA_CMD_DEFINE_GMR2: registers a GMR id with a page
// count (without yet remapping its pages).
func DefineGMR2(buf []byte, gmrID, pageCount uint32) (int, status.Status) {
	n := fifoHeaderLen + 8
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeaderFIFO(buf, CmdDefineGMR2)
	off := fifoHeaderLen
	putU32(buf, off, gmrID)
	putU32(buf, off+4, pageCount)
	return n, status.OK
}

// RemapGMR2 writes SVGA_CMD_REMAP_GMR2 followed by pageCount 64-bit PPNs.
func RemapGMR2(buf []byte, gmrID uint32, ppns []uint64) (int, status.Status) {
	const flagsPPN64 = 1 << 1
	n := fifoHeaderLen + 16 + len(ppns)*8
	if st := fit(buf, n); !st.Ok() {
		return n, st
	}
	if len(buf) == 0 {
		return n, status.OK
	}
	putHeaderFIFO(buf, CmdRemapGMR2)
	off := fifoHeaderLen
	putU32(buf, off, gmrID)
	putU32(buf, off+4, flagsPPN64)
	putU32(buf, off+8, 0) // offsetPages
	putU32(buf, off+12, uint32(len(ppns)))
	body := off + 16
	for i, ppn := range ppns {
		putU64(buf, body+i*8, ppn)
	}
	return n, status.OK
}
