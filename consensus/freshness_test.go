package consensus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"globe.dev/node/crypto"
)

type pubkeyIndex map[crypto.Point]uint64

func (m pubkeyIndex) FindByPubKey(pk crypto.Point) (uint64, bool, error) {
	idx, ok := m[pk]
	return idx, ok, nil
}

type failingLookup struct{}

func (failingLookup) FindByPubKey(crypto.Point) (uint64, bool, error) {
	return 0, false, errors.New("disk gone")
}

func TestAllAnonOutputsUnknown(t *testing.T) {
	view := newMemView()
	tx, _ := simpleTx(t, view)
	known := tx.Outputs[2].(*RingCTOutput).PubKey

	var state ValidationState
	require.True(t, AllAnonOutputsUnknown(tx, pubkeyIndex{}, &state))

	state = ValidationState{}
	require.False(t, AllAnonOutputsUnknown(tx, pubkeyIndex{known: 42}, &state))
	assert.Equal(t, ANON_ERR_OUTPUT_KNOWN, state.Code())
	assert.Contains(t, state.Reason(), "index 42")

	state = ValidationState{}
	require.False(t, AllAnonOutputsUnknown(tx, failingLookup{}, &state))
	assert.Equal(t, ANON_ERR_INDEX_READ, state.Code())
}

func TestAllAnonOutputsUnknownRepeatedInTx(t *testing.T) {
	pk := randomPoint(t)
	tx := &Tx{Outputs: []TxOut{
		&RingCTOutput{PubKey: pk},
		&StandardOutput{Value: 1},
		&RingCTOutput{PubKey: pk},
	}}
	var state ValidationState
	require.False(t, AllAnonOutputsUnknown(tx, pubkeyIndex{}, &state))
	assert.Equal(t, ANON_ERR_OUTPUT_KNOWN, state.Code())
}
