package consensus

import "globe.dev/node/crypto"

// ParseTx decodes a wire-format transaction. The whole buffer must be
// consumed.
func ParseTx(b []byte) (*Tx, error) {
	off := 0

	version, err := readU32le(b, &off)
	if err != nil {
		return nil, err
	}

	inCount, _, err := readCompactSize(b, &off)
	if err != nil {
		return nil, err
	}
	if inCount > MAX_TX_INPUTS {
		return nil, txerr(TX_ERR_PARSE, "input_count overflow")
	}
	inputs := make([]TxIn, 0, inCount)
	for i := uint64(0); i < inCount; i++ {
		var in TxIn
		prevTxid, err := readBytes(b, &off, 32)
		if err != nil {
			return nil, err
		}
		copy(in.PrevOut.TxID[:], prevTxid)
		if in.PrevOut.Vout, err = readU32le(b, &off); err != nil {
			return nil, err
		}
		if in.ScriptSig, err = readVarBytes(b, &off, MAX_SCRIPT_BYTES, "script_sig"); err != nil {
			return nil, err
		}
		if in.Sequence, err = readU32le(b, &off); err != nil {
			return nil, err
		}
		if in.IsAnon() {
			if in.ScriptData, err = readStack(b, &off, "script_data"); err != nil {
				return nil, err
			}
			if in.ScriptWitness, err = readStack(b, &off, "script_witness"); err != nil {
				return nil, err
			}
		}
		inputs = append(inputs, in)
	}

	outCount, _, err := readCompactSize(b, &off)
	if err != nil {
		return nil, err
	}
	if outCount > MAX_TX_OUTPUTS {
		return nil, txerr(TX_ERR_PARSE, "output_count overflow")
	}
	outputs := make([]TxOut, 0, outCount)
	for i := uint64(0); i < outCount; i++ {
		o, err := readTxOut(b, &off)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, o)
	}

	lockTime, err := readU32le(b, &off)
	if err != nil {
		return nil, err
	}
	if off != len(b) {
		return nil, txerr(TX_ERR_PARSE, "trailing bytes")
	}

	return &Tx{
		Version:  version,
		Inputs:   inputs,
		Outputs:  outputs,
		LockTime: lockTime,
	}, nil
}

func readPoint(b []byte, off *int) (crypto.Point, error) {
	var p crypto.Point
	raw, err := readBytes(b, off, crypto.PointSize)
	if err != nil {
		return p, err
	}
	copy(p[:], raw)
	return p, nil
}

func readTxOut(b []byte, off *int) (TxOut, error) {
	typ, err := readU8(b, off)
	if err != nil {
		return nil, err
	}
	switch typ {
	case OUTPUT_STANDARD:
		out := &StandardOutput{}
		if out.Value, err = readU64le(b, off); err != nil {
			return nil, err
		}
		if out.Script, err = readVarBytes(b, off, MAX_SCRIPT_BYTES, "script"); err != nil {
			return nil, err
		}
		return out, nil
	case OUTPUT_DATA:
		out := &DataOutput{}
		if out.Data, err = readVarBytes(b, off, MAX_DATA_OUTPUT_BYTES, "data"); err != nil {
			return nil, err
		}
		return out, nil
	case OUTPUT_CT:
		out := &ConfidentialOutput{}
		if out.Commitment, err = readPoint(b, off); err != nil {
			return nil, err
		}
		if out.Data, err = readVarBytes(b, off, MAX_DATA_OUTPUT_BYTES, "data"); err != nil {
			return nil, err
		}
		if out.Script, err = readVarBytes(b, off, MAX_SCRIPT_BYTES, "script"); err != nil {
			return nil, err
		}
		if out.RangeProof, err = readVarBytes(b, off, MAX_STACK_ITEM_BYTES, "rangeproof"); err != nil {
			return nil, err
		}
		return out, nil
	case OUTPUT_RINGCT:
		out := &RingCTOutput{}
		if out.PubKey, err = readPoint(b, off); err != nil {
			return nil, err
		}
		if out.Commitment, err = readPoint(b, off); err != nil {
			return nil, err
		}
		if out.Data, err = readVarBytes(b, off, MAX_DATA_OUTPUT_BYTES, "data"); err != nil {
			return nil, err
		}
		if out.RangeProof, err = readVarBytes(b, off, MAX_STACK_ITEM_BYTES, "rangeproof"); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, txerr(TX_ERR_PARSE, "unknown output type")
	}
}
