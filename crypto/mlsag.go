package crypto

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/sha3"
)

const keyImageDomain = "globe/mlsag/Hp"

// ErrMLSAGMismatch is returned when the ring equation does not close.
var ErrMLSAGMismatch = errors.New("crypto: mlsag verification failed")

// MLSAGSignature is the challenge c0 followed by cols*rows response scalars.
// Response (col, row) is stored at S[col*rows+row].
type MLSAGSignature struct {
	C0 Scalar
	S  []Scalar
}

// MLSAGSignatureSize returns the encoded size of a signature over a matrix.
func MLSAGSignatureSize(cols, rows int) int {
	return (1 + cols*rows) * ScalarSize
}

// Bytes encodes c0 || s[0] || ... || s[n-1].
func (sig *MLSAGSignature) Bytes() []byte {
	out := make([]byte, 0, (1+len(sig.S))*ScalarSize)
	out = append(out, sig.C0[:]...)
	for i := range sig.S {
		out = append(out, sig.S[i][:]...)
	}
	return out
}

// ParseMLSAGSignature decodes a signature for a cols x rows matrix.
func ParseMLSAGSignature(b []byte, cols, rows int) (*MLSAGSignature, error) {
	if cols < 1 || rows < 2 {
		return nil, fmt.Errorf("crypto: mlsag dimensions %dx%d", cols, rows)
	}
	if len(b) != MLSAGSignatureSize(cols, rows) {
		return nil, fmt.Errorf("crypto: mlsag signature length %d", len(b))
	}
	sig := &MLSAGSignature{S: make([]Scalar, cols*rows)}
	copy(sig.C0[:], b[:ScalarSize])
	off := ScalarSize
	for i := range sig.S {
		copy(sig.S[i][:], b[off:off+ScalarSize])
		off += ScalarSize
	}
	return sig, nil
}

// KeyImage returns x·Hp(x·G), the nullifier of the output owned by x.
func KeyImage(secret Scalar) (Point, error) {
	x, err := parseScalar(secret[:])
	if err != nil {
		return Point{}, err
	}
	pub := mulBase(&x)
	pubBytes, err := serializePoint(&pub)
	if err != nil {
		return Point{}, err
	}
	hp := hashToPoint(keyImageDomain, pubBytes[:])
	ki := mulPoint(&x, &hp)
	return serializePoint(&ki)
}

// PrepareCommitmentRow builds the last matrix row: for every column the sum
// of that column's input commitments minus the sum of the output commitments.
// inCommits is laid out like the key rows, element (col, k) at col+k*cols.
func PrepareCommitmentRow(cols, inputs int, inCommits []Commitment, outCommits []Commitment) ([]Point, error) {
	if cols < 1 || inputs < 1 || len(inCommits) != cols*inputs {
		return nil, fmt.Errorf("crypto: commitment row dimensions")
	}
	sumOut, err := sumCommitments(outCommits)
	if err != nil {
		return nil, fmt.Errorf("crypto: output commitments: %w", err)
	}
	row := make([]Point, cols)
	for col := 0; col < cols; col++ {
		var acc secp256k1.JacobianPoint
		for k := 0; k < inputs; k++ {
			c := inCommits[col+k*cols]
			p, err := parsePoint(c[:])
			if err != nil {
				return nil, fmt.Errorf("crypto: input commitment (%d,%d): %w", col, k, err)
			}
			acc = addPoints(&acc, &p)
		}
		diff := subPoints(&acc, &sumOut)
		pt, err := serializePoint(&diff)
		if err != nil {
			return nil, fmt.Errorf("crypto: commitment row column %d: %w", col, err)
		}
		row[col] = pt
	}
	return row, nil
}

// BlindSum returns Σin - Σout, the secret of the real column's commitment row.
func BlindSum(in []Scalar, out []Scalar) (Scalar, error) {
	var acc secp256k1.ModNScalar
	for i := range in {
		s, err := parseScalar(in[i][:])
		if err != nil {
			return Scalar{}, err
		}
		acc.Add(&s)
	}
	for i := range out {
		s, err := parseScalar(out[i][:])
		if err != nil {
			return Scalar{}, err
		}
		s.Negate()
		acc.Add(&s)
	}
	return Scalar(acc.Bytes()), nil
}

func parseMatrix(matrix []Point) ([]secp256k1.JacobianPoint, error) {
	out := make([]secp256k1.JacobianPoint, len(matrix))
	for i := range matrix {
		p, err := parsePoint(matrix[i][:])
		if err != nil {
			return nil, fmt.Errorf("crypto: matrix element %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

func writePoint(h interface{ Write([]byte) (int, error) }, p *secp256k1.JacobianPoint) error {
	b, err := serializePoint(p)
	if err != nil {
		return err
	}
	_, _ = h.Write(b[:])
	return nil
}

// SignMLSAG signs msg with the secrets of column realCol. secrets holds one
// scalar per row; the last one is the blind sum for the commitment row.
// It returns the key images of the key rows and the signature.
func SignMLSAG(msg [32]byte, cols, rows int, matrix []Point, realCol int, secrets []Scalar) ([]Point, *MLSAGSignature, error) {
	if cols < 1 || rows < 2 || len(matrix) != cols*rows {
		return nil, nil, fmt.Errorf("crypto: mlsag dimensions %dx%d", cols, rows)
	}
	if realCol < 0 || realCol >= cols || len(secrets) != rows {
		return nil, nil, fmt.Errorf("crypto: mlsag real column or secrets")
	}
	pts, err := parseMatrix(matrix)
	if err != nil {
		return nil, nil, err
	}

	xs := make([]secp256k1.ModNScalar, rows)
	for row := 0; row < rows; row++ {
		x, err := parseScalar(secrets[row][:])
		if err != nil {
			return nil, nil, err
		}
		pub := mulBase(&x)
		pubBytes, err := serializePoint(&pub)
		if err != nil || pubBytes != matrix[realCol+row*cols] {
			return nil, nil, fmt.Errorf("crypto: secret for row %d does not match column %d", row, realCol)
		}
		xs[row] = x
	}

	dsRows := rows - 1
	hps := make([]secp256k1.JacobianPoint, cols*dsRows)
	for col := 0; col < cols; col++ {
		for row := 0; row < dsRows; row++ {
			hps[col+row*cols] = hashToPoint(keyImageDomain, matrix[col+row*cols][:])
		}
	}

	kis := make([]secp256k1.JacobianPoint, dsRows)
	kiOut := make([]Point, dsRows)
	for row := 0; row < dsRows; row++ {
		kis[row] = mulPoint(&xs[row], &hps[realCol+row*cols])
		if kiOut[row], err = serializePoint(&kis[row]); err != nil {
			return nil, nil, err
		}
	}

	alpha := make([]secp256k1.ModNScalar, rows)
	h := sha3.New256()
	_, _ = h.Write(msg[:])
	for row := 0; row < rows; row++ {
		if alpha[row], err = randomScalar(); err != nil {
			return nil, nil, err
		}
		_, _ = h.Write(matrix[realCol+row*cols][:])
		l := mulBase(&alpha[row])
		if err := writePoint(h, &l); err != nil {
			return nil, nil, err
		}
		if row < dsRows {
			r := mulPoint(&alpha[row], &hps[realCol+row*cols])
			if err := writePoint(h, &r); err != nil {
				return nil, nil, err
			}
		}
	}

	var c, c0 secp256k1.ModNScalar
	c.SetByteSlice(h.Sum(nil))
	ss := make([]secp256k1.ModNScalar, cols*rows)

	col := (realCol + 1) % cols
	if col == 0 {
		c0 = c
	}
	for col != realCol {
		h := sha3.New256()
		_, _ = h.Write(msg[:])
		for row := 0; row < rows; row++ {
			s, err := randomScalar()
			if err != nil {
				return nil, nil, err
			}
			ss[col*rows+row] = s
			p := &pts[col+row*cols]
			_, _ = h.Write(matrix[col+row*cols][:])
			sg := mulBase(&s)
			cp := mulPoint(&c, p)
			l := addPoints(&sg, &cp)
			if err := writePoint(h, &l); err != nil {
				return nil, nil, err
			}
			if row < dsRows {
				shp := mulPoint(&s, &hps[col+row*cols])
				ci := mulPoint(&c, &kis[row])
				r := addPoints(&shp, &ci)
				if err := writePoint(h, &r); err != nil {
					return nil, nil, err
				}
			}
		}
		c.SetByteSlice(h.Sum(nil))
		col = (col + 1) % cols
		if col == 0 {
			c0 = c
		}
	}

	for row := 0; row < rows; row++ {
		var cx secp256k1.ModNScalar
		cx.Mul2(&c, &xs[row]).Negate()
		ss[realCol*rows+row].Add2(&alpha[row], &cx)
	}

	sig := &MLSAGSignature{C0: Scalar(c0.Bytes()), S: make([]Scalar, len(ss))}
	for i := range ss {
		sig.S[i] = Scalar(ss[i].Bytes())
	}
	return kiOut, sig, nil
}

// VerifyMLSAG checks the ring equation over the matrix. Malformed input is
// reported with a descriptive error; a well-formed signature that does not
// verify returns ErrMLSAGMismatch.
func VerifyMLSAG(msg [32]byte, cols, rows int, matrix []Point, keyImages []Point, sig *MLSAGSignature) error {
	if cols < 1 || rows < 2 || len(matrix) != cols*rows {
		return fmt.Errorf("crypto: mlsag dimensions %dx%d", cols, rows)
	}
	dsRows := rows - 1
	if len(keyImages) != dsRows || sig == nil || len(sig.S) != cols*rows {
		return fmt.Errorf("crypto: mlsag key images or signature size")
	}
	pts, err := parseMatrix(matrix)
	if err != nil {
		return err
	}
	kis := make([]secp256k1.JacobianPoint, dsRows)
	for row := range keyImages {
		if kis[row], err = parsePoint(keyImages[row][:]); err != nil {
			return fmt.Errorf("crypto: key image %d: %w", row, err)
		}
	}
	c0, err := parseScalar(sig.C0[:])
	if err != nil {
		return err
	}
	ss := make([]secp256k1.ModNScalar, len(sig.S))
	for i := range sig.S {
		if ss[i], err = parseScalar(sig.S[i][:]); err != nil {
			return err
		}
	}

	c := c0
	for col := 0; col < cols; col++ {
		h := sha3.New256()
		_, _ = h.Write(msg[:])
		for row := 0; row < rows; row++ {
			s := &ss[col*rows+row]
			_, _ = h.Write(matrix[col+row*cols][:])
			sg := mulBase(s)
			cp := mulPoint(&c, &pts[col+row*cols])
			l := addPoints(&sg, &cp)
			if err := writePoint(h, &l); err != nil {
				return ErrMLSAGMismatch
			}
			if row < dsRows {
				hp := hashToPoint(keyImageDomain, matrix[col+row*cols][:])
				shp := mulPoint(s, &hp)
				ci := mulPoint(&c, &kis[row])
				r := addPoints(&shp, &ci)
				if err := writePoint(h, &r); err != nil {
					return ErrMLSAGMismatch
				}
			}
		}
		c.SetByteSlice(h.Sum(nil))
	}
	if !c.Equals(&c0) {
		return ErrMLSAGMismatch
	}
	return nil
}
