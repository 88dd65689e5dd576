package crypto

import (
	"fmt"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Commitment is a Pedersen commitment blind·G + value·H in compressed form.
type Commitment = Point

var (
	genHOnce sync.Once
	genH     secp256k1.JacobianPoint
)

// generatorH is the value generator. Nobody knows its discrete log with
// respect to G: it is derived by hashing the serialized base point.
func generatorH() *secp256k1.JacobianPoint {
	genHOnce.Do(func() {
		var one secp256k1.ModNScalar
		one.SetInt(1)
		g := mulBase(&one)
		gBytes, _ := serializePoint(&g)
		genH = hashToPoint("globe/pedersen/H", gBytes[:])
	})
	return &genH
}

// GeneratorH returns the compressed value generator.
func GeneratorH() Point {
	p, _ := serializePoint(generatorH())
	return p
}

func commitPoint(blind *secp256k1.ModNScalar, value uint64) secp256k1.JacobianPoint {
	var vh, bg secp256k1.JacobianPoint
	if value != 0 {
		v := scalarFromUint64(value)
		vh = mulPoint(&v, generatorH())
	}
	if !blind.IsZero() {
		bg = mulBase(blind)
	}
	return addPoints(&bg, &vh)
}

// Commit returns blind·G + value·H. A zero blind is allowed (plain amounts);
// a commitment to zero with a zero blind has no encoding and is an error.
func Commit(blind Scalar, value uint64) (Commitment, error) {
	var b secp256k1.ModNScalar
	if overflow := b.SetByteSlice(blind[:]); overflow {
		return Commitment{}, errScalarOverflow
	}
	p := commitPoint(&b, value)
	c, err := serializePoint(&p)
	if err != nil {
		return Commitment{}, fmt.Errorf("crypto: commit: %w", err)
	}
	return c, nil
}

func sumCommitments(cs []Commitment) (secp256k1.JacobianPoint, error) {
	var acc secp256k1.JacobianPoint
	for i := range cs {
		p, err := parsePoint(cs[i][:])
		if err != nil {
			return acc, fmt.Errorf("commitment %d: %w", i, err)
		}
		acc = addPoints(&acc, &p)
	}
	return acc, nil
}

// VerifyTally reports whether Σin == Σout. Any unparsable commitment is an
// error rather than a false result so that callers can tell malformed data
// from an imbalance.
func VerifyTally(in, out []Commitment) (bool, error) {
	sin, err := sumCommitments(in)
	if err != nil {
		return false, fmt.Errorf("crypto: tally inputs: %w", err)
	}
	sout, err := sumCommitments(out)
	if err != nil {
		return false, fmt.Errorf("crypto: tally outputs: %w", err)
	}
	diff := subPoints(&sin, &sout)
	return isInfinity(&diff), nil
}
