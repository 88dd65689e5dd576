package consensus

import (
	"fmt"
	"math/bits"

	"globe.dev/node/crypto"
)

// RangeProofInfo is the public header of a range proof.
type RangeProofInfo struct {
	Exponent int
	Mantissa int
	MinValue uint64
	MaxValue uint64
}

const (
	rangeProofMinBits  = 32
	rangeProofBitsStep = 4
)

// SelectRangeProofParameters picks the parameters a prover must use for
// value. The choice is a pure function of value:
//
//	exponent = floor(trailing decimal zeros / 2)
//	bits     = max(32, bitlen(value / 10^exponent)), rounded up to a multiple of 4
//	min      = 0
func SelectRangeProofParameters(value uint64) (minValue uint64, exponent int, nBits int, err error) {
	if value > MAX_MONEY {
		return 0, 0, 0, txerr(ANON_ERR_RANGEPROOF, fmt.Sprintf("value %d above money range", value))
	}
	if value == 0 {
		return 0, 0, rangeProofMinBits, nil
	}
	zeros := 0
	for v := value; v%10 == 0 && zeros < crypto.MaxRangeProofExponent; v /= 10 {
		zeros++
	}
	exponent = zeros / 2
	mant := value
	for i := 0; i < exponent; i++ {
		mant /= 10
	}
	nBits = bits.Len64(mant)
	if nBits < rangeProofMinBits {
		nBits = rangeProofMinBits
	}
	if r := nBits % rangeProofBitsStep; r != 0 {
		nBits += rangeProofBitsStep - r
	}
	if nBits > crypto.MaxRangeProofMantissa {
		nBits = crypto.MaxRangeProofMantissa
	}
	return 0, exponent, nBits, nil
}

// GetRangeProofInfo decodes a range proof header without verifying the proof.
func GetRangeProofInfo(proof []byte) (RangeProofInfo, error) {
	h, _, err := crypto.ParseRangeProofHeader(proof)
	if err != nil {
		return RangeProofInfo{}, txerr(ANON_ERR_RANGEPROOF, err.Error())
	}
	return RangeProofInfo{
		Exponent: h.Exponent,
		Mantissa: h.Mantissa,
		MinValue: h.MinValue,
		MaxValue: h.MaxValue,
	}, nil
}

// ProveRange builds a range proof for value with the parameters chosen by
// SelectRangeProofParameters.
func ProveRange(blind crypto.Scalar, value uint64) ([]byte, error) {
	minValue, exponent, nBits, err := SelectRangeProofParameters(value)
	if err != nil {
		return nil, err
	}
	return crypto.ProveRange(blind, value, minValue, exponent, nBits)
}
