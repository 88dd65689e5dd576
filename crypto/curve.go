package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// PointSize is the length of a compressed secp256k1 point.
const PointSize = 33

// ScalarSize is the length of a serialized scalar mod the group order.
const ScalarSize = 32

var (
	errPointAtInfinity = errors.New("crypto: point at infinity")
	errScalarOverflow  = errors.New("crypto: scalar overflows group order")
)

// Point is a compressed secp256k1 point (public key, key image or commitment).
type Point [PointSize]byte

// Scalar is a big-endian scalar mod the secp256k1 group order.
type Scalar [ScalarSize]byte

func parsePoint(b []byte) (secp256k1.JacobianPoint, error) {
	var out secp256k1.JacobianPoint
	if len(b) != PointSize {
		return out, fmt.Errorf("crypto: point length %d", len(b))
	}
	pk, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return out, fmt.Errorf("crypto: parse point: %w", err)
	}
	pk.AsJacobian(&out)
	return out, nil
}

// ParsePoint reports whether b decodes to a valid curve point.
func ParsePoint(b []byte) error {
	_, err := parsePoint(b)
	return err
}

func isInfinity(p *secp256k1.JacobianPoint) bool {
	var x, y, z secp256k1.FieldVal
	x.Set(&p.X).Normalize()
	y.Set(&p.Y).Normalize()
	z.Set(&p.Z).Normalize()
	return (x.IsZero() && y.IsZero()) || z.IsZero()
}

func serializePoint(p *secp256k1.JacobianPoint) (Point, error) {
	var out Point
	if isInfinity(p) {
		return out, errPointAtInfinity
	}
	a := *p
	a.ToAffine()
	copy(out[:], secp256k1.NewPublicKey(&a.X, &a.Y).SerializeCompressed())
	return out, nil
}

func mulBase(k *secp256k1.ModNScalar) secp256k1.JacobianPoint {
	var r secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(k, &r)
	r.ToAffine()
	return r
}

func mulPoint(k *secp256k1.ModNScalar, p *secp256k1.JacobianPoint) secp256k1.JacobianPoint {
	var r secp256k1.JacobianPoint
	if isInfinity(p) {
		return r
	}
	in := *p
	in.ToAffine()
	secp256k1.ScalarMultNonConst(k, &in, &r)
	r.ToAffine()
	return r
}

func addPoints(a, b *secp256k1.JacobianPoint) secp256k1.JacobianPoint {
	var r secp256k1.JacobianPoint
	switch {
	case isInfinity(a):
		r = *b
	case isInfinity(b):
		r = *a
	default:
		secp256k1.AddNonConst(a, b, &r)
	}
	r.ToAffine()
	return r
}

func negPoint(p *secp256k1.JacobianPoint) secp256k1.JacobianPoint {
	r := *p
	if isInfinity(&r) {
		return secp256k1.JacobianPoint{}
	}
	r.ToAffine()
	r.Y.Negate(1).Normalize()
	return r
}

func subPoints(a, b *secp256k1.JacobianPoint) secp256k1.JacobianPoint {
	nb := negPoint(b)
	return addPoints(a, &nb)
}

// hashToPoint maps data onto the curve by try-and-increment over BLAKE2b-256.
func hashToPoint(domain string, data ...[]byte) secp256k1.JacobianPoint {
	var ctr [4]byte
	for i := uint32(0); ; i++ {
		h, _ := blake2b.New256(nil)
		_, _ = h.Write([]byte(domain))
		for _, d := range data {
			_, _ = h.Write(d)
		}
		binary.LittleEndian.PutUint32(ctr[:], i)
		_, _ = h.Write(ctr[:])
		sum := h.Sum(nil)

		var x, y secp256k1.FieldVal
		if overflow := x.SetByteSlice(sum); overflow {
			continue
		}
		if !secp256k1.DecompressY(&x, false, &y) {
			continue
		}
		x.Normalize()
		y.Normalize()
		var one secp256k1.FieldVal
		one.SetInt(1)
		return secp256k1.MakeJacobianPoint(&x, &y, &one)
	}
}

// hashToScalar reduces SHA3-256(parts...) mod the group order.
func hashToScalar(parts ...[]byte) secp256k1.ModNScalar {
	h := sha3.New256()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	var s secp256k1.ModNScalar
	s.SetByteSlice(h.Sum(nil))
	return s
}

func randomScalar() (secp256k1.ModNScalar, error) {
	var s secp256k1.ModNScalar
	var buf [ScalarSize]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return s, fmt.Errorf("crypto: read random: %w", err)
		}
		if overflow := s.SetByteSlice(buf[:]); overflow || s.IsZero() {
			continue
		}
		return s, nil
	}
}

// RandomScalar returns a uniformly random non-zero scalar.
func RandomScalar() (Scalar, error) {
	s, err := randomScalar()
	if err != nil {
		return Scalar{}, err
	}
	return Scalar(s.Bytes()), nil
}

func parseScalar(b []byte) (secp256k1.ModNScalar, error) {
	var s secp256k1.ModNScalar
	if len(b) != ScalarSize {
		return s, fmt.Errorf("crypto: scalar length %d", len(b))
	}
	if overflow := s.SetByteSlice(b); overflow {
		return s, errScalarOverflow
	}
	return s, nil
}

func scalarFromUint64(v uint64) secp256k1.ModNScalar {
	var b [ScalarSize]byte
	binary.BigEndian.PutUint64(b[ScalarSize-8:], v)
	var s secp256k1.ModNScalar
	s.SetBytes(&b)
	return s
}

// PublicKey returns x·G for a secret scalar.
func PublicKey(secret Scalar) (Point, error) {
	k, err := parseScalar(secret[:])
	if err != nil {
		return Point{}, err
	}
	p := mulBase(&k)
	return serializePoint(&p)
}

// AddScalars returns a+b mod n.
func AddScalars(a, b Scalar) (Scalar, error) {
	x, err := parseScalar(a[:])
	if err != nil {
		return Scalar{}, err
	}
	y, err := parseScalar(b[:])
	if err != nil {
		return Scalar{}, err
	}
	x.Add(&y)
	return Scalar(x.Bytes()), nil
}

// SubScalars returns a-b mod n.
func SubScalars(a, b Scalar) (Scalar, error) {
	x, err := parseScalar(a[:])
	if err != nil {
		return Scalar{}, err
	}
	y, err := parseScalar(b[:])
	if err != nil {
		return Scalar{}, err
	}
	y.Negate()
	x.Add(&y)
	return Scalar(x.Bytes()), nil
}
