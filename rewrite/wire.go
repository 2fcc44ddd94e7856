package rewrite

import "encoding/binary"

func getU32(buf []byte, off int) uint32 { return binary.LittleEndian.Uint32(buf[off : off+4]) }
