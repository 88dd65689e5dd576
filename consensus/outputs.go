package consensus

import (
	"fmt"

	"globe.dev/node/crypto"
)

// CheckStandardOutput rejects values outside the money range.
func CheckStandardOutput(o *StandardOutput, state *ValidationState) bool {
	if o.Value > MAX_MONEY {
		return state.Invalid(TX_ERR_OUTPUT, "standard output value out of range")
	}
	return true
}

// CheckDataOutput rejects empty and oversized data outputs.
func CheckDataOutput(o *DataOutput, state *ValidationState) bool {
	if len(o.Data) == 0 {
		return state.Invalid(TX_ERR_OUTPUT, "empty data output")
	}
	if len(o.Data) > MAX_DATA_OUTPUT_BYTES {
		return state.Invalid(TX_ERR_OUTPUT, "data output too large")
	}
	return true
}

func checkCommitmentAndProof(c crypto.Commitment, proof []byte, state *ValidationState) bool {
	if err := crypto.ParsePoint(c[:]); err != nil {
		return state.Invalid(TX_ERR_OUTPUT, "bad commitment")
	}
	if len(proof) > crypto.MaxRangeProofSize {
		return state.Invalid(TX_ERR_OUTPUT, "rangeproof too large")
	}
	if len(proof) < crypto.MinRangeProofSize {
		return state.Invalid(TX_ERR_OUTPUT, "rangeproof too small")
	}
	return true
}

// CheckBlindOutput checks the structure of a confidential output.
func CheckBlindOutput(o *ConfidentialOutput, state *ValidationState) bool {
	if len(o.Data) > MAX_DATA_OUTPUT_BYTES {
		return state.Invalid(TX_ERR_OUTPUT, "ct data too large")
	}
	return checkCommitmentAndProof(o.Commitment, o.RangeProof, state)
}

// CheckAnonOutput checks the structure of a RingCT output: a valid owner
// key, ephemeral data of 33..38 bytes and a bounded range proof.
func CheckAnonOutput(o *RingCTOutput, state *ValidationState) bool {
	if n := len(o.Data); n < MIN_ANON_EPHEMERAL_BYTES || n > MAX_ANON_EPHEMERAL_BYTES {
		return state.Invalid(TX_ERR_OUTPUT, fmt.Sprintf("bad anon ephemeral data size %d", n))
	}
	if err := crypto.ParsePoint(o.PubKey[:]); err != nil {
		return state.Invalid(TX_ERR_OUTPUT, "bad anon pubkey")
	}
	return checkCommitmentAndProof(o.Commitment, o.RangeProof, state)
}

// CheckOutputs runs the per-type structural checks over every output.
func CheckOutputs(tx *Tx, state *ValidationState) bool {
	if len(tx.Outputs) == 0 {
		return state.Invalid(TX_ERR_OUTPUT, "no outputs")
	}
	for _, o := range tx.Outputs {
		var ok bool
		switch out := o.(type) {
		case *StandardOutput:
			ok = CheckStandardOutput(out, state)
		case *DataOutput:
			ok = CheckDataOutput(out, state)
		case *ConfidentialOutput:
			ok = CheckBlindOutput(out, state)
		case *RingCTOutput:
			ok = CheckAnonOutput(out, state)
		default:
			ok = state.Invalid(TX_ERR_OUTPUT, fmt.Sprintf("unknown output type %T", o))
		}
		if !ok {
			return false
		}
	}
	return true
}
