package consensus

import (
	"encoding/binary"

	"globe.dev/node/crypto"
)

type Tx struct {
	Version  uint32
	Inputs   []TxIn
	Outputs  []TxOut
	LockTime uint32
}

type OutPoint struct {
	TxID [32]byte
	Vout uint32
}

// TxIn is a transaction input. Anonymous inputs (PrevOut.Vout ==
// ANON_MARKER) also carry two stacks:
//
//	ScriptData[0]:    key images, 33 bytes per spent output
//	ScriptWitness[0]: ring member indices, uvarint, input-major
//	ScriptWitness[1]: MLSAG signature || pseudo-output commitment
//
// ScriptData is covered by the transaction hash; ScriptWitness is not.
type TxIn struct {
	PrevOut       OutPoint
	ScriptSig     []byte
	Sequence      uint32
	ScriptData    [][]byte
	ScriptWitness [][]byte
}

func (in *TxIn) IsAnon() bool {
	return in.PrevOut.Vout == ANON_MARKER
}

// AnonInfo returns the number of outputs spent by the input and its ring
// size, as packed in the prevout txid.
func (in *TxIn) AnonInfo() (nInputs, ringSize uint32) {
	return binary.LittleEndian.Uint32(in.PrevOut.TxID[0:4]), binary.LittleEndian.Uint32(in.PrevOut.TxID[4:8])
}

// SetAnonInfo turns in into an anonymous input spending nInputs outputs
// with rings of ringSize members.
func (in *TxIn) SetAnonInfo(nInputs, ringSize uint32) {
	in.PrevOut = OutPoint{Vout: ANON_MARKER}
	binary.LittleEndian.PutUint32(in.PrevOut.TxID[0:4], nInputs)
	binary.LittleEndian.PutUint32(in.PrevOut.TxID[4:8], ringSize)
}

// KeyImage is the nullifier of a spent anonymous output.
type KeyImage [KEY_IMAGE_BYTES]byte

// KeyImages splits ScriptData[0] of an anonymous input.
func (in *TxIn) KeyImages() ([]KeyImage, error) {
	if !in.IsAnon() {
		return nil, nil
	}
	nInputs, _ := in.AnonInfo()
	if nInputs < 1 || nInputs > MAX_ANON_INPUTS {
		return nil, txerr(ANON_ERR_INPUT_COUNT, "anon input count out of range")
	}
	if len(in.ScriptData) != 1 {
		return nil, txerr(ANON_ERR_MALFORMED, "bad scriptdata stack size")
	}
	raw := in.ScriptData[0]
	if len(raw) != int(nInputs)*KEY_IMAGE_BYTES {
		return nil, txerr(ANON_ERR_MALFORMED, "bad keyimage data size")
	}
	kis := make([]KeyImage, nInputs)
	for k := range kis {
		copy(kis[k][:], raw[k*KEY_IMAGE_BYTES:])
	}
	return kis, nil
}

// TxOut is one of StandardOutput, DataOutput, ConfidentialOutput or
// RingCTOutput.
type TxOut interface {
	Type() uint8
	isTxOut()
}

type StandardOutput struct {
	Value  uint64
	Script []byte
}

type DataOutput struct {
	Data []byte
}

// ConfidentialOutput hides its value behind a commitment but pays to a
// visible script.
type ConfidentialOutput struct {
	Commitment crypto.Commitment
	Data       []byte
	Script     []byte
	RangeProof []byte
}

// RingCTOutput hides both value and owner; it becomes a ring member once
// its block is connected.
type RingCTOutput struct {
	PubKey     crypto.Point
	Commitment crypto.Commitment
	Data       []byte
	RangeProof []byte
}

func (*StandardOutput) Type() uint8     { return OUTPUT_STANDARD }
func (*DataOutput) Type() uint8         { return OUTPUT_DATA }
func (*ConfidentialOutput) Type() uint8 { return OUTPUT_CT }
func (*RingCTOutput) Type() uint8       { return OUTPUT_RINGCT }

func (*StandardOutput) isTxOut()     {}
func (*DataOutput) isTxOut()         {}
func (*ConfidentialOutput) isTxOut() {}
func (*RingCTOutput) isTxOut()       {}

// AnonOutput is an entry of the anonymous output index.
type AnonOutput struct {
	PubKey      crypto.Point
	Commitment  crypto.Commitment
	OutPoint    OutPoint
	BlockHeight int32
	Compromised uint8
}

// RingMember is a resolved index entry taking part in a ring.
type RingMember struct {
	Index      uint64
	PubKey     crypto.Point
	Commitment crypto.Commitment
}

// AnonOutputs lists the RingCT outputs of tx as index entries, in output
// order.
func AnonOutputs(tx *Tx, txid [32]byte, height int32) []AnonOutput {
	var outs []AnonOutput
	for i, o := range tx.Outputs {
		rct, ok := o.(*RingCTOutput)
		if !ok {
			continue
		}
		outs = append(outs, AnonOutput{
			PubKey:      rct.PubKey,
			Commitment:  rct.Commitment,
			OutPoint:    OutPoint{TxID: txid, Vout: uint32(i)}, // #nosec G115 -- output count capped by MAX_TX_OUTPUTS.
			BlockHeight: height,
		})
	}
	return outs
}

// TxKeyImages returns the key images of every anonymous input in order.
func TxKeyImages(tx *Tx) ([]KeyImage, error) {
	var all []KeyImage
	for i := range tx.Inputs {
		kis, err := tx.Inputs[i].KeyImages()
		if err != nil {
			return nil, err
		}
		all = append(all, kis...)
	}
	return all, nil
}
