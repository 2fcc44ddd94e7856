package paging

import (
	"testing"

	"github.com/virtualbox-guest/vmsvga-kmd/encode"
)

func TestCopierCopyRectMovesPixels(t *testing.T) {
	const pitch = 8 // 2 pixels * 4 bytes
	src := []byte{
		1, 1, 1, 1, 2, 2, 2, 2,
		3, 3, 3, 3, 4, 4, 4, 4,
	}
	dst := make([]byte, len(src))

	c := NewCopier()
	c.CopyRect(dst, pitch, 0, 0, src, pitch, 0, 0, 2, 2, 4)

	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("dst[%d] = %d, want %d", i, dst[i], src[i])
		}
	}
}

func TestCopierCopySubRectsHonorsSrcDstOffset(t *testing.T) {
	const pitch = 4 // 1 pixel per row, 4 bytes
	req := Request{
		SrcRect: encode.Rect{X: 0, Y: 10, W: 4, H: 4},
		DstRect: encode.Rect{X: 0, Y: 0, W: 4, H: 4},
		SubRects: []encode.Rect{
			{X: 0, Y: 0, W: 1, H: 1},
			{X: 0, Y: 3, W: 1, H: 1},
		},
	}

	src := make([]byte, pitch*14)
	for row := 10; row < 14; row++ {
		copy(src[row*pitch:row*pitch+4], []byte{byte(row), byte(row), byte(row), byte(row)})
	}
	dst := make([]byte, pitch*4)

	c := NewCopier()
	c.CopySubRects(dst, pitch, src, pitch, req, 4)

	if dst[0] != 10 {
		t.Fatalf("dst row 0 = %d, want 10 (copied from src row 10)", dst[0])
	}
	if dst[3*pitch] != 13 {
		t.Fatalf("dst row 3 = %d, want 13 (copied from src row 13)", dst[3*pitch])
	}
}
