package consensus

import "fmt"

// MarshalTx serialises a Tx into its canonical wire-format bytes.
// The output is the exact inverse of ParseTx.
func MarshalTx(tx *Tx) ([]byte, error) {
	return marshalTx(tx, true)
}

// TxNoWitnessBytes serialises tx without anon input witness stacks; this is
// the preimage of the transaction hash.
func TxNoWitnessBytes(tx *Tx) ([]byte, error) {
	return marshalTx(tx, false)
}

func marshalTx(tx *Tx, withWitness bool) ([]byte, error) {
	if tx == nil {
		return nil, fmt.Errorf("nil tx")
	}

	var b []byte
	b = appendU32le(b, tx.Version)

	b = AppendCompactSize(b, uint64(len(tx.Inputs)))
	for i := range tx.Inputs {
		in := &tx.Inputs[i]
		b = append(b, in.PrevOut.TxID[:]...)
		b = appendU32le(b, in.PrevOut.Vout)
		b = appendVarBytes(b, in.ScriptSig)
		b = appendU32le(b, in.Sequence)
		if in.IsAnon() {
			b = appendStack(b, in.ScriptData)
			if withWitness {
				b = appendStack(b, in.ScriptWitness)
			}
		}
	}

	b = AppendCompactSize(b, uint64(len(tx.Outputs)))
	for i, o := range tx.Outputs {
		var err error
		if b, err = appendTxOut(b, o); err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
	}

	b = appendU32le(b, tx.LockTime)
	return b, nil
}

func appendTxOut(b []byte, o TxOut) ([]byte, error) {
	switch out := o.(type) {
	case *StandardOutput:
		b = append(b, OUTPUT_STANDARD)
		b = appendU64le(b, out.Value)
		b = appendVarBytes(b, out.Script)
	case *DataOutput:
		b = append(b, OUTPUT_DATA)
		b = appendVarBytes(b, out.Data)
	case *ConfidentialOutput:
		b = append(b, OUTPUT_CT)
		b = append(b, out.Commitment[:]...)
		b = appendVarBytes(b, out.Data)
		b = appendVarBytes(b, out.Script)
		b = appendVarBytes(b, out.RangeProof)
	case *RingCTOutput:
		b = append(b, OUTPUT_RINGCT)
		b = append(b, out.PubKey[:]...)
		b = append(b, out.Commitment[:]...)
		b = appendVarBytes(b, out.Data)
		b = appendVarBytes(b, out.RangeProof)
	default:
		return nil, fmt.Errorf("unknown output type %T", o)
	}
	return b, nil
}
