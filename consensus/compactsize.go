package consensus

import "encoding/binary"

// readCompactSize decodes a Bitcoin-style CompactSize at *off. Non-minimal
// encodings are rejected.
func readCompactSize(b []byte, off *int) (uint64, int, error) {
	if *off >= len(b) {
		return 0, 0, txerr(TX_ERR_PARSE, "compactsize: empty")
	}
	tag := b[*off]
	var n uint64
	var used int
	switch {
	case tag < 0xfd:
		n, used = uint64(tag), 1
	case tag == 0xfd:
		if *off+3 > len(b) {
			return 0, 0, txerr(TX_ERR_PARSE, "compactsize: truncated u16")
		}
		n, used = uint64(binary.LittleEndian.Uint16(b[*off+1:])), 3
		if n < 0xfd {
			return 0, 0, txerr(TX_ERR_PARSE, "compactsize: non-minimal u16")
		}
	case tag == 0xfe:
		if *off+5 > len(b) {
			return 0, 0, txerr(TX_ERR_PARSE, "compactsize: truncated u32")
		}
		n, used = uint64(binary.LittleEndian.Uint32(b[*off+1:])), 5
		if n < 0x1_0000 {
			return 0, 0, txerr(TX_ERR_PARSE, "compactsize: non-minimal u32")
		}
	default: // 0xff
		if *off+9 > len(b) {
			return 0, 0, txerr(TX_ERR_PARSE, "compactsize: truncated u64")
		}
		n, used = binary.LittleEndian.Uint64(b[*off+1:]), 9
		if n < 0x1_0000_0000 {
			return 0, 0, txerr(TX_ERR_PARSE, "compactsize: non-minimal u64")
		}
	}
	*off += used
	return n, used, nil
}

// DecodeCompactSize decodes one CompactSize value from the front of buf.
// Returns the decoded value and the number of bytes consumed.
func DecodeCompactSize(buf []byte) (uint64, int, error) {
	off := 0
	return readCompactSize(buf, &off)
}

// AppendCompactSize encodes n in Bitcoin-style CompactSize and appends to dst.
func AppendCompactSize(dst []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(dst, byte(n))
	case n <= 0xffff:
		dst = append(dst, 0xfd)
		return appendU16le(dst, uint16(n))
	case n <= 0xffff_ffff:
		dst = append(dst, 0xfe)
		return appendU32le(dst, uint32(n))
	default:
		dst = append(dst, 0xff)
		return appendU64le(dst, n)
	}
}
