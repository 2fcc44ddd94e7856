package encode

import (
	"encoding/binary"

	"github.com/virtualbox-guest/vmsvga-kmd/status"
)

// fifoHeaderLen is the size of a legacy FIFO command's {id} header.
const fifoHeaderLen = 4

// cmd3DHeaderLen is the size of a 3D command's {id, size} header.
const cmd3DHeaderLen = 8

func putHeaderFIFO(buf []byte, id uint32) {
	binary.LittleEndian.PutUint32(buf[0:4], id)
}

func putHeader3D(buf []byte, id, payloadSize uint32) {
	binary.LittleEndian.PutUint32(buf[0:4], id)
	binary.LittleEndian.PutUint32(buf[4:8], payloadSize)
}

// fit checks whether buf can hold need bytes. A zero-length buf is a
// sizing-only call (spec.md §4.E's two-call contract) and always reports
// OK; the caller is expected to look at the returned length, not write
// anything. A non-empty but too-small buf reports InsufficientDmaBuffer.
func fit(buf []byte, need int) status.Status {
	if len(buf) == 0 {
		return status.OK
	}
	if len(buf) < need {
		return status.InsufficientDmaBuffer
	}
	return status.OK
}

func putU32(buf []byte, off int, v uint32) { binary.LittleEndian.PutUint32(buf[off:off+4], v) }
func putI32(buf []byte, off int, v int32)  { binary.LittleEndian.PutUint32(buf[off:off+4], uint32(v)) }
func putU64(buf []byte, off int, v uint64) { binary.LittleEndian.PutUint64(buf[off:off+8], v) }

func getU32(buf []byte, off int) uint32 { return binary.LittleEndian.Uint32(buf[off : off+4]) }
func getI32(buf []byte, off int) int32  { return int32(binary.LittleEndian.Uint32(buf[off : off+4])) }
func getU64(buf []byte, off int) uint64 { return binary.LittleEndian.Uint64(buf[off : off+8]) }
