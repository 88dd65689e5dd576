package crypto

import "golang.org/x/crypto/sha3"

// Provider is the narrow crypto interface used by consensus code.
// Tests may substitute a provider that counts or fails calls.
type Provider interface {
	SHA3_256(input []byte) [32]byte
	VerifyMLSAG(msg [32]byte, cols, rows int, matrix []Point, keyImages []Point, sig *MLSAGSignature) error
	VerifyRange(c Commitment, proof []byte) (uint64, uint64, error)
	VerifyTally(in, out []Commitment) (bool, error)
}

// Secp256k1Provider implements Provider on secp256k1 with SHA3 transcripts.
type Secp256k1Provider struct{}

var _ Provider = Secp256k1Provider{}

func (Secp256k1Provider) SHA3_256(input []byte) [32]byte {
	return sha3.Sum256(input)
}

func (Secp256k1Provider) VerifyMLSAG(msg [32]byte, cols, rows int, matrix []Point, keyImages []Point, sig *MLSAGSignature) error {
	return VerifyMLSAG(msg, cols, rows, matrix, keyImages, sig)
}

func (Secp256k1Provider) VerifyRange(c Commitment, proof []byte) (uint64, uint64, error) {
	return VerifyRange(c, proof)
}

func (Secp256k1Provider) VerifyTally(in, out []Commitment) (bool, error) {
	return VerifyTally(in, out)
}
