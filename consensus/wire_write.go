package consensus

import "encoding/binary"

func appendU16le(dst []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(dst, v)
}

func appendU32le(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}

func appendU64le(dst []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, v)
}

// appendVarBytes writes a CompactSize length prefix followed by b.
func appendVarBytes(dst []byte, b []byte) []byte {
	dst = AppendCompactSize(dst, uint64(len(b)))
	return append(dst, b...)
}

// appendStack writes a CompactSize item count followed by each item as
// var bytes.
func appendStack(dst []byte, stack [][]byte) []byte {
	dst = AppendCompactSize(dst, uint64(len(stack)))
	for _, item := range stack {
		dst = appendVarBytes(dst, item)
	}
	return dst
}
