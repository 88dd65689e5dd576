package store

import (
	"encoding/binary"
	"fmt"

	"globe.dev/node/consensus"
	"globe.dev/node/crypto"
)

const anonOutputSize = 33 + 33 + 32 + 4 + 4 + 1

func encodeIndexKey(idx uint64) []byte {
	// Big-endian so cursor order is index order.
	return binary.BigEndian.AppendUint64(nil, idx)
}

func decodeIndexKey(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("index key: expected 8 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

func encodeHeightKey(height int32) []byte {
	// #nosec G115 -- heights are validated non-negative before use.
	return binary.BigEndian.AppendUint32(nil, uint32(height))
}

func encodeAnonOutput(o consensus.AnonOutput) []byte {
	// Layout:
	// pubkey 33 | commitment 33 | txid 32 | vout u32le | height i32le | compromised u8
	out := make([]byte, 0, anonOutputSize)
	out = append(out, o.PubKey[:]...)
	out = append(out, o.Commitment[:]...)
	out = append(out, o.OutPoint.TxID[:]...)
	out = binary.LittleEndian.AppendUint32(out, o.OutPoint.Vout)
	out = binary.LittleEndian.AppendUint32(out, uint32(o.BlockHeight)) // #nosec G115 -- two's complement round trip.
	return append(out, o.Compromised)
}

func decodeAnonOutput(b []byte) (consensus.AnonOutput, error) {
	var o consensus.AnonOutput
	if len(b) != anonOutputSize {
		return o, fmt.Errorf("anon output: expected %d bytes, got %d", anonOutputSize, len(b))
	}
	copy(o.PubKey[:], b[0:33])
	copy(o.Commitment[:], b[33:66])
	copy(o.OutPoint.TxID[:], b[66:98])
	o.OutPoint.Vout = binary.LittleEndian.Uint32(b[98:102])
	o.BlockHeight = int32(binary.LittleEndian.Uint32(b[102:106])) // #nosec G115 -- two's complement round trip.
	o.Compromised = b[106]
	return o, nil
}

// BlockKeyImage is a key image spent by a transaction of a connected block.
type BlockKeyImage struct {
	KeyImage consensus.KeyImage
	TxID     [32]byte
}

// BlockRecord describes what a connected block added to the index.
type BlockRecord struct {
	Height     int32
	FirstIndex uint64
	Count      uint64
	KeyImages  []BlockKeyImage
}

func encodeBlockRecord(r BlockRecord) ([]byte, error) {
	if r.Count > 0xffffffff || len(r.KeyImages) > 0xffffffff {
		return nil, fmt.Errorf("block record: too many items")
	}
	// Layout:
	// first_index u64le | count u32le | ki_count u32le
	//   (key_image 33 | txid 32) * ki_count
	out := make([]byte, 0, 8+4+4+len(r.KeyImages)*(33+32))
	out = binary.LittleEndian.AppendUint64(out, r.FirstIndex)
	out = binary.LittleEndian.AppendUint32(out, uint32(r.Count))          // #nosec G115 -- checked against 0xffffffff above.
	out = binary.LittleEndian.AppendUint32(out, uint32(len(r.KeyImages))) // #nosec G115 -- checked against 0xffffffff above.
	for _, ki := range r.KeyImages {
		out = append(out, ki.KeyImage[:]...)
		out = append(out, ki.TxID[:]...)
	}
	return out, nil
}

func decodeBlockRecord(height int32, b []byte) (BlockRecord, error) {
	r := BlockRecord{Height: height}
	if len(b) < 16 {
		return r, fmt.Errorf("block record: truncated")
	}
	r.FirstIndex = binary.LittleEndian.Uint64(b[0:8])
	r.Count = uint64(binary.LittleEndian.Uint32(b[8:12]))
	n := int(binary.LittleEndian.Uint32(b[12:16]))
	if len(b) != 16+n*(33+32) {
		return r, fmt.Errorf("block record: bad key image count")
	}
	r.KeyImages = make([]BlockKeyImage, n)
	off := 16
	for i := range r.KeyImages {
		copy(r.KeyImages[i].KeyImage[:], b[off:off+33])
		copy(r.KeyImages[i].TxID[:], b[off+33:off+65])
		off += 65
	}
	return r, nil
}

func encodeTip(idx uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, idx)
}

func decodeTip(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("tip: expected 8 bytes, got %d", len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}

func encodeTipHeight(height int32) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(height)) // #nosec G115 -- heights are non-negative.
}

func decodeTipHeight(b []byte) (int32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("tip height: expected 4 bytes, got %d", len(b))
	}
	return int32(binary.LittleEndian.Uint32(b)), nil // #nosec G115 -- two's complement round trip.
}

func pubKeyKey(pk crypto.Point) []byte {
	return append([]byte(nil), pk[:]...)
}
