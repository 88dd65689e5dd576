package consensus

import (
	"fmt"

	"globe.dev/node/crypto"
)

// AnonSpend is the owner's view of one anonymous txin: a ring of Indices
// (input-major, ring size columns per input) whose column RealCol holds the
// spent outputs, with their secrets, blinds and values.
type AnonSpend struct {
	Indices []uint64
	RealCol int
	Secrets []crypto.Scalar
	Blinds  []crypto.Scalar
	Values  []uint64
}

func (s AnonSpend) dims() (nInputs, ringSize int, err error) {
	nInputs = len(s.Secrets)
	if nInputs == 0 || len(s.Blinds) != nInputs || len(s.Values) != nInputs {
		return 0, 0, fmt.Errorf("anon spend: secrets, blinds and values must match")
	}
	if len(s.Indices)%nInputs != 0 {
		return 0, 0, fmt.Errorf("anon spend: %d indices for %d inputs", len(s.Indices), nInputs)
	}
	ringSize = len(s.Indices) / nInputs
	if s.RealCol < 0 || s.RealCol >= ringSize {
		return 0, 0, fmt.Errorf("anon spend: real column %d outside ring of %d", s.RealCol, ringSize)
	}
	return nInputs, ringSize, nil
}

// NewAnonInput builds the unsigned txin for s: ring info in the prevout,
// key images in ScriptData and ring indices in ScriptWitness[0].
func NewAnonInput(s AnonSpend) (TxIn, error) {
	var in TxIn
	nInputs, ringSize, err := s.dims()
	if err != nil {
		return in, err
	}
	in.SetAnonInfo(uint32(nInputs), uint32(ringSize)) // #nosec G115 -- bounded by the slice lengths.
	kiData := make([]byte, 0, nInputs*KEY_IMAGE_BYTES)
	for k := range s.Secrets {
		ki, err := crypto.KeyImage(s.Secrets[k])
		if err != nil {
			return in, fmt.Errorf("anon spend: key image %d: %w", k, err)
		}
		kiData = append(kiData, ki[:]...)
	}
	in.ScriptData = [][]byte{kiData}
	in.ScriptWitness = [][]byte{EncodeRingIndices(s.Indices), nil}
	return in, nil
}

// SignAnonInputs signs every input of tx with the matching spend. outBlinds
// are the blinds of the tx's CT and RingCT outputs; the pseudo-output blinds
// are chosen so that they sum to them.
func SignAnonInputs(p crypto.Provider, tx *Tx, view RingView, spends []AnonSpend, outBlinds []crypto.Scalar) error {
	if len(spends) == 0 || len(spends) != len(tx.Inputs) {
		return fmt.Errorf("sign: %d spends for %d inputs", len(spends), len(tx.Inputs))
	}
	if p == nil {
		p = crypto.Secp256k1Provider{}
	}

	pseudoBlinds := make([]crypto.Scalar, len(spends))
	for s := 0; s < len(spends)-1; s++ {
		var err error
		if pseudoBlinds[s], err = crypto.RandomScalar(); err != nil {
			return err
		}
	}
	last, err := crypto.BlindSum(outBlinds, pseudoBlinds[:len(spends)-1])
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	pseudoBlinds[len(spends)-1] = last

	txid, err := TxID(p, tx)
	if err != nil {
		return err
	}

	for s, sp := range spends {
		nInputs, ringSize, err := sp.dims()
		if err != nil {
			return fmt.Errorf("sign input %d: %w", s, err)
		}
		var value uint64
		for _, v := range sp.Values {
			if value+v < value {
				return fmt.Errorf("sign input %d: value overflow", s)
			}
			value += v
		}
		pseudo, err := crypto.Commit(pseudoBlinds[s], value)
		if err != nil {
			return fmt.Errorf("sign input %d: %w", s, err)
		}

		pubs := make([]crypto.Point, len(sp.Indices))
		commits := make([]crypto.Commitment, len(sp.Indices))
		for i, idx := range sp.Indices {
			m, ok, err := view.ResolveRingMember(idx)
			if err != nil {
				return fmt.Errorf("sign input %d: %w", s, err)
			}
			if !ok {
				return fmt.Errorf("sign input %d: ring member %d unknown", s, idx)
			}
			pubs[i], commits[i] = m.PubKey, m.Commitment
		}
		row, err := crypto.PrepareCommitmentRow(ringSize, nInputs, commits, []crypto.Commitment{pseudo})
		if err != nil {
			return fmt.Errorf("sign input %d: %w", s, err)
		}
		blindSum, err := crypto.BlindSum(sp.Blinds, []crypto.Scalar{pseudoBlinds[s]})
		if err != nil {
			return fmt.Errorf("sign input %d: %w", s, err)
		}
		secrets := make([]crypto.Scalar, 0, nInputs+1)
		secrets = append(secrets, sp.Secrets...)
		secrets = append(secrets, blindSum)

		matrix := append(pubs, row...)
		_, sig, err := crypto.SignMLSAG(txid, ringSize, nInputs+1, matrix, sp.RealCol, secrets)
		if err != nil {
			return fmt.Errorf("sign input %d: %w", s, err)
		}
		in := &tx.Inputs[s]
		if len(in.ScriptWitness) != 2 {
			return fmt.Errorf("sign input %d: witness not prepared", s)
		}
		in.ScriptWitness[1] = append(sig.Bytes(), pseudo[:]...)
	}
	return nil
}
