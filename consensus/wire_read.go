package consensus

import "encoding/binary"

func readU8(b []byte, off *int) (uint8, error) {
	if *off+1 > len(b) {
		return 0, txerr(TX_ERR_PARSE, "unexpected EOF (u8)")
	}
	v := b[*off]
	*off++
	return v, nil
}

func readU32le(b []byte, off *int) (uint32, error) {
	if *off+4 > len(b) {
		return 0, txerr(TX_ERR_PARSE, "unexpected EOF (u32le)")
	}
	v := binary.LittleEndian.Uint32(b[*off : *off+4])
	*off += 4
	return v, nil
}

func readU64le(b []byte, off *int) (uint64, error) {
	if *off+8 > len(b) {
		return 0, txerr(TX_ERR_PARSE, "unexpected EOF (u64le)")
	}
	v := binary.LittleEndian.Uint64(b[*off : *off+8])
	*off += 8
	return v, nil
}

func readBytes(b []byte, off *int, n int) ([]byte, error) {
	if n < 0 {
		return nil, txerr(TX_ERR_PARSE, "negative length")
	}
	if *off+n > len(b) {
		return nil, txerr(TX_ERR_PARSE, "unexpected EOF (bytes)")
	}
	v := b[*off : *off+n]
	*off += n
	return v, nil
}

// readVarBytes reads a CompactSize length, capped at max, and that many bytes.
func readVarBytes(b []byte, off *int, max uint64, name string) ([]byte, error) {
	n, _, err := readCompactSize(b, off)
	if err != nil {
		return nil, err
	}
	if n > max {
		return nil, txerr(TX_ERR_PARSE, name+" length overflow")
	}
	// #nosec G115 -- n is bounded by max, which fits int.
	v, err := readBytes(b, off, int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v...), nil
}

func readStack(b []byte, off *int, name string) ([][]byte, error) {
	n, _, err := readCompactSize(b, off)
	if err != nil {
		return nil, err
	}
	if n > MAX_STACK_ITEMS {
		return nil, txerr(TX_ERR_PARSE, name+" item count overflow")
	}
	stack := make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		item, err := readVarBytes(b, off, MAX_STACK_ITEM_BYTES, name)
		if err != nil {
			return nil, err
		}
		stack = append(stack, item)
	}
	return stack, nil
}
