package paging

import "sync"

// Copier performs the in-software pixel transfer this simulation additionally
// carries out on top of the command sequence Build emits, when both ends of
// a paging operation happen to be host-addressable mock memory (see
// SPEC_FULL.md's paging software-copy semantics decision). Real hardware has
// no such step — the device itself interprets the blit commands — but the
// mock device has nothing backing SVGA_CMD_BLIT_GMRFB_TO_SCREEN unless
// something actually moves the bytes, so Copier plays that role under a
// single per-adapter lock, mirroring the one mutex guarding every register
// access in hw.Device.
type Copier struct {
	mu sync.Mutex
}

// NewCopier returns a ready Copier.
func NewCopier() *Copier { return &Copier{} }

// CopyRect copies one rectangle of w*h pixels, bytesPerPixel bytes each,
// from a pitched source image to a pitched destination image. Both src and
// dst must already be windowed (or large enough) to contain every row the
// copy touches starting at their respective (srcX,srcY)/(dstX,dstY) origin.
func (c *Copier) CopyRect(dst []byte, dstPitch uint32, dstX, dstY int32, src []byte, srcPitch uint32, srcX, srcY int32, w, h int32, bytesPerPixel uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rowBytes := int(w) * int(bytesPerPixel)
	for row := int32(0); row < h; row++ {
		so := int(srcY+row)*int(srcPitch) + int(srcX)*int(bytesPerPixel)
		do := int(dstY+row)*int(dstPitch) + int(dstX)*int(bytesPerPixel)
		copy(dst[do:do+rowBytes], src[so:so+rowBytes])
	}
}

// CopySubRects runs CopyRect once per destination subrectangle in req,
// using the same source/destination offset req.Build derives from
// SrcRect/DstRect. It is the caller's responsibility to pass the backing
// images for whichever end of req.Op is host-addressable (the GMR-backed
// virtual framebuffer on one side, the screen's VRAM window on the other).
func (c *Copier) CopySubRects(dst []byte, dstPitch uint32, src []byte, srcPitch uint32, req Request, bytesPerPixel uint32) {
	dx := req.SrcRect.X - req.DstRect.X
	dy := req.SrcRect.Y - req.DstRect.Y
	for _, r := range req.SubRects {
		c.CopyRect(dst, dstPitch, r.X, r.Y, src, srcPitch, r.X+dx, r.Y+dy, r.W, r.H, bytesPerPixel)
	}
}
