package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleTx() *Tx {
	var in TxIn
	in.SetAnonInfo(1, 3)
	in.ScriptData = [][]byte{make([]byte, KEY_IMAGE_BYTES)}
	in.ScriptWitness = [][]byte{{1, 2, 3}, {0xaa}}
	return &Tx{
		Version: 2,
		Inputs: []TxIn{
			in,
			{PrevOut: OutPoint{TxID: [32]byte{9}, Vout: 1}, ScriptSig: []byte{0x51}, Sequence: 0xffffffff},
		},
		Outputs: []TxOut{
			&DataOutput{Data: FeeData(10)},
			&StandardOutput{Value: 5, Script: []byte{0x76}},
			&ConfidentialOutput{Data: []byte{1}, Script: []byte{2}, RangeProof: []byte{3, 4}},
			&RingCTOutput{Data: make([]byte, 33), RangeProof: []byte{5}},
		},
		LockTime: 77,
	}
}

func TestParseTxRoundTrip(t *testing.T) {
	tx := sampleTx()
	raw, err := MarshalTx(tx)
	require.NoError(t, err)

	parsed, err := ParseTx(raw)
	require.NoError(t, err)
	require.Len(t, parsed.Inputs, 2)
	require.True(t, parsed.Inputs[0].IsAnon())
	require.False(t, parsed.Inputs[1].IsAnon())
	nIn, ringSize := parsed.Inputs[0].AnonInfo()
	require.Equal(t, uint32(1), nIn)
	require.Equal(t, uint32(3), ringSize)
	require.Equal(t, tx.Inputs[0].ScriptWitness, parsed.Inputs[0].ScriptWitness)
	require.IsType(t, &RingCTOutput{}, parsed.Outputs[3])

	again, err := MarshalTx(parsed)
	require.NoError(t, err)
	require.Equal(t, raw, again)
}

func TestTxNoWitnessBytesExcludesSignatures(t *testing.T) {
	tx := sampleTx()
	a, err := TxNoWitnessBytes(tx)
	require.NoError(t, err)
	tx.Inputs[0].ScriptWitness[1] = []byte{0xbb, 0xcc}
	b, err := TxNoWitnessBytes(tx)
	require.NoError(t, err)
	require.Equal(t, a, b)

	tx.Inputs[0].ScriptData[0][0] = 1
	c, err := TxNoWitnessBytes(tx)
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestParseTxErrors(t *testing.T) {
	raw, err := MarshalTx(sampleTx())
	require.NoError(t, err)

	_, err = ParseTx(raw[:len(raw)-1])
	require.Error(t, err)

	_, err = ParseTx(append(append([]byte(nil), raw...), 0))
	require.Error(t, err)

	// version | 0 inputs | 1 output of unknown type
	_, err = ParseTx([]byte{1, 0, 0, 0, 0, 1, 0x7f})
	require.Error(t, err)
}
