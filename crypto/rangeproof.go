package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/sha3"
)

// Range proof header limits. The header layout follows secp256k1-zkp:
//
//	byte0: bit7 reserved (0) | bit6 has range | bit5 has min | bits0-4 exponent
//	byte1: mantissa-1 (present iff has range)
//	min:   u64 big-endian (present iff has min)
const (
	MaxRangeProofExponent = 18
	MaxRangeProofMantissa = 64
	MinRangeProofSize     = 65

	rangeFlagReserved = 0x80
	rangeFlagHasRange = 0x40
	rangeFlagHasMin   = 0x20
	rangeExponentMask = 0x1f

	rangeBitProofSize = 3 * ScalarSize
	exactProofSize    = 2 * ScalarSize
)

// MaxRangeProofSize bounds any proof this package will produce or accept.
const MaxRangeProofSize = 2 + 8 + (MaxRangeProofMantissa-1)*PointSize + MaxRangeProofMantissa*rangeBitProofSize

// ErrRangeProof is returned when a well-formed proof fails to verify.
var ErrRangeProof = errors.New("crypto: range proof verification failed")

// RangeProofHeader is the decoded public part of a range proof.
type RangeProofHeader struct {
	Exponent int // -1 when the proof pins an exact value
	Mantissa int // bits of hidden value, 0 for exact proofs
	MinValue uint64
	MaxValue uint64
	Scale    uint64
}

func pow10(exp int) (uint64, bool) {
	v := uint64(1)
	for i := 0; i < exp; i++ {
		if v > math.MaxUint64/10 {
			return 0, false
		}
		v *= 10
	}
	return v, true
}

// rangeBounds returns (scale, max) for a mantissa/exponent/min triple.
func rangeBounds(exponent, mantissa int, minValue uint64) (uint64, uint64, error) {
	if mantissa == 0 {
		return 1, minValue, nil
	}
	if exponent < 0 || exponent > MaxRangeProofExponent {
		return 0, 0, fmt.Errorf("rangeproof: exponent %d out of range", exponent)
	}
	if mantissa < 0 || mantissa > MaxRangeProofMantissa {
		return 0, 0, fmt.Errorf("rangeproof: mantissa %d out of range", mantissa)
	}
	maxValue := uint64(math.MaxUint64) >> (64 - mantissa)
	scale, ok := pow10(exponent)
	if !ok {
		return 0, 0, fmt.Errorf("rangeproof: exponent %d overflows", exponent)
	}
	hi, lo := bits.Mul64(maxValue, scale)
	if hi != 0 {
		return 0, 0, fmt.Errorf("rangeproof: range overflows")
	}
	maxValue = lo
	if maxValue > math.MaxUint64-minValue {
		return 0, 0, fmt.Errorf("rangeproof: min+range overflows")
	}
	return scale, maxValue + minValue, nil
}

// ParseRangeProofHeader decodes the header and returns it with the offset of
// the proof body. No curve arithmetic is performed.
func ParseRangeProofHeader(proof []byte) (RangeProofHeader, int, error) {
	var h RangeProofHeader
	if len(proof) < MinRangeProofSize {
		return h, 0, fmt.Errorf("rangeproof: length %d below minimum", len(proof))
	}
	if len(proof) > MaxRangeProofSize {
		return h, 0, fmt.Errorf("rangeproof: length %d above maximum", len(proof))
	}
	flags := proof[0]
	if flags&rangeFlagReserved != 0 {
		return h, 0, fmt.Errorf("rangeproof: reserved flag set")
	}
	off := 1
	h.Exponent = -1
	if flags&rangeFlagHasRange != 0 {
		h.Exponent = int(flags & rangeExponentMask)
		if h.Exponent > MaxRangeProofExponent {
			return h, 0, fmt.Errorf("rangeproof: exponent %d out of range", h.Exponent)
		}
		h.Mantissa = int(proof[off]) + 1
		off++
		if h.Mantissa > MaxRangeProofMantissa {
			return h, 0, fmt.Errorf("rangeproof: mantissa %d out of range", h.Mantissa)
		}
	} else if flags&rangeExponentMask != 0 {
		return h, 0, fmt.Errorf("rangeproof: exponent without range")
	}
	if flags&rangeFlagHasMin != 0 {
		if len(proof)-off < 8 {
			return h, 0, fmt.Errorf("rangeproof: truncated min value")
		}
		h.MinValue = binary.BigEndian.Uint64(proof[off : off+8])
		off += 8
	}
	scale, maxValue, err := rangeBounds(h.Exponent, h.Mantissa, h.MinValue)
	if err != nil {
		return h, 0, err
	}
	h.Scale = scale
	h.MaxValue = maxValue
	return h, off, nil
}

func rangeBodySize(mantissa int) int {
	if mantissa == 0 {
		return exactProofSize
	}
	return (mantissa-1)*PointSize + mantissa*rangeBitProofSize
}

func rangeMessage(header []byte, commitment Commitment, bitCommits []Point) []byte {
	h := sha3.New256()
	_, _ = h.Write([]byte("globe/rangeproof"))
	_, _ = h.Write(header)
	_, _ = h.Write(commitment[:])
	for i := range bitCommits {
		_, _ = h.Write(bitCommits[i][:])
	}
	return h.Sum(nil)
}

func bitChallenge(msg []byte, bit int, r *secp256k1.JacobianPoint) (secp256k1.ModNScalar, error) {
	rb, err := serializePoint(r)
	if err != nil {
		return secp256k1.ModNScalar{}, err
	}
	return hashToScalar(msg, []byte{byte(bit)}, rb[:]), nil
}

// ProveRange proves that the commitment blind·G + value·H hides a value in
// [min, min + (2^bits-1)·10^exponent]. bits == 0 pins the exact value.
// The low decimal digits that the exponent cannot express are folded into
// the published minimum.
func ProveRange(blind Scalar, value, minValue uint64, exponent, nBits int) ([]byte, error) {
	if nBits < 0 || nBits > MaxRangeProofMantissa {
		return nil, fmt.Errorf("rangeproof: bits %d out of range", nBits)
	}
	if value < minValue {
		return nil, fmt.Errorf("rangeproof: value below minimum")
	}
	r, err := parseScalar(blind[:])
	if err != nil {
		return nil, err
	}
	commitPt := commitPoint(&r, value)
	commitment, err := serializePoint(&commitPt)
	if err != nil {
		return nil, err
	}

	if nBits == 0 {
		return proveExact(&r, commitment, value)
	}
	scale, _, err := rangeBounds(exponent, nBits, minValue)
	if err != nil {
		return nil, err
	}
	diff := value - minValue
	minValue += diff % scale
	mant := diff / scale
	if nBits < 64 && mant>>uint(nBits) != 0 {
		return nil, fmt.Errorf("rangeproof: value does not fit %d bits at exponent %d", nBits, exponent)
	}
	if _, _, err := rangeBounds(exponent, nBits, minValue); err != nil {
		return nil, err
	}

	header := []byte{rangeFlagHasRange | byte(exponent), byte(nBits - 1)}
	if minValue != 0 {
		header[0] |= rangeFlagHasMin
		header = binary.BigEndian.AppendUint64(header, minValue)
	}

	scaleScalar := scalarFromUint64(scale)
	blinds := make([]secp256k1.ModNScalar, nBits)
	var blindAcc secp256k1.ModNScalar
	for i := 0; i < nBits-1; i++ {
		if blinds[i], err = randomScalar(); err != nil {
			return nil, err
		}
		blindAcc.Add(&blinds[i])
	}
	blindAcc.Negate()
	blinds[nBits-1].Add2(&r, &blindAcc)

	digitPts := make([]secp256k1.JacobianPoint, nBits)
	bitPts := make([]secp256k1.JacobianPoint, nBits)
	bitCommits := make([]Point, nBits-1)
	for i := 0; i < nBits; i++ {
		digitPts[i] = digitPoint(i, &scaleScalar)
		bg := mulBase(&blinds[i])
		if (mant>>uint(i))&1 == 1 {
			bitPts[i] = addPoints(&bg, &digitPts[i])
		} else {
			bitPts[i] = bg
		}
		if i < nBits-1 {
			if bitCommits[i], err = serializePoint(&bitPts[i]); err != nil {
				return nil, err
			}
		}
	}

	msg := rangeMessage(header, commitment, bitCommits)
	proof := append([]byte(nil), header...)
	for i := range bitCommits {
		proof = append(proof, bitCommits[i][:]...)
	}
	for i := 0; i < nBits; i++ {
		bit := int((mant >> uint(i)) & 1)
		ring := [2]secp256k1.JacobianPoint{bitPts[i], subPoints(&bitPts[i], &digitPts[i])}
		e0, s0, s1, err := signBitRing(msg, i, ring, bit, &blinds[i])
		if err != nil {
			return nil, err
		}
		proof = append(proof, e0[:]...)
		proof = append(proof, s0[:]...)
		proof = append(proof, s1[:]...)
	}
	return proof, nil
}

// digitPoint returns 2^i·scale·H.
func digitPoint(i int, scale *secp256k1.ModNScalar) secp256k1.JacobianPoint {
	var d secp256k1.ModNScalar
	d.Set(scale)
	two := scalarFromUint64(2)
	for j := 0; j < i; j++ {
		d.Mul(&two)
	}
	return mulPoint(&d, generatorH())
}

// signBitRing is a two-member AOS ring signature over G.
func signBitRing(msg []byte, bit int, ring [2]secp256k1.JacobianPoint, real int, x *secp256k1.ModNScalar) (Scalar, Scalar, Scalar, error) {
	k, err := randomScalar()
	if err != nil {
		return Scalar{}, Scalar{}, Scalar{}, err
	}
	fake, err := randomScalar()
	if err != nil {
		return Scalar{}, Scalar{}, Scalar{}, err
	}
	kg := mulBase(&k)
	eNext, err := bitChallenge(msg, bit, &kg)
	if err != nil {
		return Scalar{}, Scalar{}, Scalar{}, err
	}
	other := 1 - real
	sg := mulBase(&fake)
	ep := mulPoint(&eNext, &ring[other])
	rOther := addPoints(&sg, &ep)
	eReal, err := bitChallenge(msg, bit, &rOther)
	if err != nil {
		return Scalar{}, Scalar{}, Scalar{}, err
	}
	var ex, sReal secp256k1.ModNScalar
	ex.Mul2(&eReal, x).Negate()
	sReal.Add2(&k, &ex)

	// e0 is the challenge fed into member 0.
	var e0 secp256k1.ModNScalar
	var s [2]secp256k1.ModNScalar
	s[real] = sReal
	s[other] = fake
	if real == 0 {
		e0 = eReal
	} else {
		e0 = eNext
	}
	return Scalar(e0.Bytes()), Scalar(s[0].Bytes()), Scalar(s[1].Bytes()), nil
}

func verifyBitRing(msg []byte, bit int, ring [2]secp256k1.JacobianPoint, e0, s0, s1 *secp256k1.ModNScalar) bool {
	sg := mulBase(s0)
	ep := mulPoint(e0, &ring[0])
	r0 := addPoints(&sg, &ep)
	e1, err := bitChallenge(msg, bit, &r0)
	if err != nil {
		return false
	}
	sg = mulBase(s1)
	ep = mulPoint(&e1, &ring[1])
	r1 := addPoints(&sg, &ep)
	e0Check, err := bitChallenge(msg, bit, &r1)
	if err != nil {
		return false
	}
	return e0Check.Equals(e0)
}

func proveExact(r *secp256k1.ModNScalar, commitment Commitment, value uint64) ([]byte, error) {
	header := []byte{0}
	if value != 0 {
		header[0] |= rangeFlagHasMin
		header = binary.BigEndian.AppendUint64(header, value)
	}
	msg := rangeMessage(header, commitment, nil)
	k, err := randomScalar()
	if err != nil {
		return nil, err
	}
	kg := mulBase(&k)
	e, err := bitChallenge(msg, 0, &kg)
	if err != nil {
		return nil, err
	}
	var er, s secp256k1.ModNScalar
	er.Mul2(&e, r).Negate()
	s.Add2(&k, &er)
	eb, sb := e.Bytes(), s.Bytes()
	proof := append(header, eb[:]...)
	return append(proof, sb[:]...), nil
}

// VerifyRange checks a proof against a commitment and returns the proven
// bounds.
func VerifyRange(commitment Commitment, proof []byte) (uint64, uint64, error) {
	h, off, err := ParseRangeProofHeader(proof)
	if err != nil {
		return 0, 0, err
	}
	if len(proof)-off != rangeBodySize(h.Mantissa) {
		return 0, 0, fmt.Errorf("rangeproof: body length %d, want %d", len(proof)-off, rangeBodySize(h.Mantissa))
	}
	c, err := parsePoint(commitment[:])
	if err != nil {
		return 0, 0, err
	}
	var minH secp256k1.JacobianPoint
	if h.MinValue != 0 {
		m := scalarFromUint64(h.MinValue)
		minH = mulPoint(&m, generatorH())
	}
	target := subPoints(&c, &minH)
	header := proof[:off]
	body := proof[off:]

	if h.Mantissa == 0 {
		msg := rangeMessage(header, commitment, nil)
		e, err := parseScalar(body[:ScalarSize])
		if err != nil {
			return 0, 0, err
		}
		s, err := parseScalar(body[ScalarSize:])
		if err != nil {
			return 0, 0, err
		}
		sg := mulBase(&s)
		ep := mulPoint(&e, &target)
		rr := addPoints(&sg, &ep)
		eCheck, err := bitChallenge(msg, 0, &rr)
		if err != nil || !eCheck.Equals(&e) {
			return 0, 0, ErrRangeProof
		}
		return h.MinValue, h.MaxValue, nil
	}

	n := h.Mantissa
	bitCommits := make([]Point, n-1)
	bitPts := make([]secp256k1.JacobianPoint, n)
	var acc secp256k1.JacobianPoint
	for i := 0; i < n-1; i++ {
		copy(bitCommits[i][:], body[i*PointSize:(i+1)*PointSize])
		if bitPts[i], err = parsePoint(bitCommits[i][:]); err != nil {
			return 0, 0, fmt.Errorf("rangeproof: bit commitment %d: %w", i, err)
		}
		acc = addPoints(&acc, &bitPts[i])
	}
	bitPts[n-1] = subPoints(&target, &acc)
	if isInfinity(&bitPts[n-1]) {
		return 0, 0, ErrRangeProof
	}

	msg := rangeMessage(header, commitment, bitCommits)
	scaleScalar := scalarFromUint64(h.Scale)
	sigs := body[(n-1)*PointSize:]
	for i := 0; i < n; i++ {
		chunk := sigs[i*rangeBitProofSize : (i+1)*rangeBitProofSize]
		e0, err := parseScalar(chunk[:ScalarSize])
		if err != nil {
			return 0, 0, err
		}
		s0, err := parseScalar(chunk[ScalarSize : 2*ScalarSize])
		if err != nil {
			return 0, 0, err
		}
		s1, err := parseScalar(chunk[2*ScalarSize:])
		if err != nil {
			return 0, 0, err
		}
		digit := digitPoint(i, &scaleScalar)
		ring := [2]secp256k1.JacobianPoint{bitPts[i], subPoints(&bitPts[i], &digit)}
		if !verifyBitRing(msg, i, ring, &e0, &s0, &s1) {
			return 0, 0, ErrRangeProof
		}
	}
	return h.MinValue, h.MaxValue, nil
}
