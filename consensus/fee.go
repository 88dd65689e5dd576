package consensus

import (
	"encoding/binary"
	"math/bits"
)

// GetCTFee reads the explicit fee from the leading data output:
// DO_FEE followed by a uvarint.
func GetCTFee(tx *Tx) (uint64, error) {
	if len(tx.Outputs) == 0 {
		return 0, txerr(TX_ERR_FEE, "no outputs")
	}
	d, ok := tx.Outputs[0].(*DataOutput)
	if !ok {
		return 0, txerr(TX_ERR_FEE, "first output is not a data output")
	}
	if len(d.Data) < 2 || d.Data[0] != DO_FEE {
		return 0, txerr(TX_ERR_FEE, "missing fee record")
	}
	fee, n := binary.Uvarint(d.Data[1:])
	if n <= 0 || 1+n != len(d.Data) {
		return 0, txerr(TX_ERR_FEE, "bad fee varint")
	}
	if fee > MAX_MONEY {
		return 0, txerr(TX_ERR_FEE, "fee out of range")
	}
	return fee, nil
}

// FeeData encodes a fee record for the leading data output.
func FeeData(fee uint64) []byte {
	return binary.AppendUvarint([]byte{DO_FEE}, fee)
}

// MinRelayFee returns ratePerKB * size / 1000, at least 1 when both are
// non-zero.
func MinRelayFee(size int, ratePerKB uint64) uint64 {
	if size <= 0 || ratePerKB == 0 {
		return 0
	}
	hi, lo := bits.Mul64(ratePerKB, uint64(size))
	if hi != 0 {
		return MAX_MONEY
	}
	fee := lo / 1000
	if fee == 0 {
		fee = 1
	}
	return fee
}

// MinAnonFee is the relay floor for anonymous transactions.
func MinAnonFee(size int, ratePerKB uint64) uint64 {
	fee := MinRelayFee(size, ratePerKB)
	if fee > MAX_MONEY/ANON_FEE_MULTIPLIER {
		return MAX_MONEY
	}
	return fee * ANON_FEE_MULTIPLIER
}
