package node

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"globe.dev/node/consensus"
	"globe.dev/node/crypto"
	"globe.dev/node/node/store"
)

func newTestState(t *testing.T, backend string) *AnonState {
	t.Helper()
	return newTestStateWith(t, backend, nil)
}

// newTestStateWith lets edit adjust the config before the state opens.
func newTestStateWith(t *testing.T, backend string, edit func(*Config)) *AnonState {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.DBBackend = backend
	cfg.VerifyWorkers = 2
	if edit != nil {
		edit(&cfg)
	}
	s, err := NewAnonState(cfg, NewLogger("error", io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type owned struct {
	index  uint64
	secret crypto.Scalar
	blind  crypto.Scalar
	value  uint64
}

func randomPoint(t *testing.T) crypto.Point {
	t.Helper()
	s, err := crypto.RandomScalar()
	require.NoError(t, err)
	p, err := crypto.PublicKey(s)
	require.NoError(t, err)
	return p
}

// ringctOutput returns a RingCT output of value to a fresh key.
func ringctOutput(t *testing.T, value uint64) (*consensus.RingCTOutput, crypto.Scalar, crypto.Scalar) {
	t.Helper()
	secret, err := crypto.RandomScalar()
	require.NoError(t, err)
	blind, err := crypto.RandomScalar()
	require.NoError(t, err)
	pk, err := crypto.PublicKey(secret)
	require.NoError(t, err)
	c, err := crypto.Commit(blind, value)
	require.NoError(t, err)
	proof, err := consensus.ProveRange(blind, value)
	require.NoError(t, err)
	eph := randomPoint(t)
	return &consensus.RingCTOutput{PubKey: pk, Commitment: c, Data: eph[:], RangeProof: proof}, secret, blind
}

// fundingTx pays values to fresh RingCT outputs from a plain input.
func fundingTx(t *testing.T, values ...uint64) (*consensus.Tx, []owned) {
	t.Helper()
	tx := &consensus.Tx{Version: 1}
	var prev [32]byte
	seed := randomPoint(t)
	copy(prev[:], seed[1:])
	tx.Inputs = []consensus.TxIn{{PrevOut: consensus.OutPoint{TxID: prev}}}
	var outs []owned
	for _, v := range values {
		out, secret, blind := ringctOutput(t, v)
		tx.Outputs = append(tx.Outputs, out)
		outs = append(outs, owned{secret: secret, blind: blind, value: v})
	}
	return tx, outs
}

// connectFunding connects a block at height holding one funding tx and
// returns the owned outputs with their assigned indices.
func connectFunding(t *testing.T, s *AnonState, height int32, values ...uint64) []owned {
	t.Helper()
	tx, outs := fundingTx(t, values...)
	rec, err := s.ConnectBlock(context.Background(), height, []*consensus.Tx{tx})
	require.NoError(t, err)
	for i := range outs {
		outs[i].index = rec.FirstIndex + uint64(i)
	}
	return outs
}

// spendTx signs a tx spending o with a ring of decoys, paying outValues and
// fee.
func spendTx(t *testing.T, s *AnonState, o owned, decoys []uint64, fee uint64, outValues ...uint64) *consensus.Tx {
	t.Helper()
	return spendTxWith(t, s, o, decoys, fee, nil, outValues...)
}

// spendTxWith is spendTx with mutate applied to the outputs before signing.
func spendTxWith(t *testing.T, s *AnonState, o owned, decoys []uint64, fee uint64, mutate func([]consensus.TxOut), outValues ...uint64) *consensus.Tx {
	t.Helper()
	tx := &consensus.Tx{Version: 1}
	tx.Outputs = append(tx.Outputs, &consensus.DataOutput{Data: consensus.FeeData(fee)})
	var outBlinds []crypto.Scalar
	for _, v := range outValues {
		out, _, blind := ringctOutput(t, v)
		tx.Outputs = append(tx.Outputs, out)
		outBlinds = append(outBlinds, blind)
	}
	if mutate != nil {
		mutate(tx.Outputs)
	}
	sp := consensus.AnonSpend{
		Indices: append([]uint64{o.index}, decoys...),
		Secrets: []crypto.Scalar{o.secret},
		Blinds:  []crypto.Scalar{o.blind},
		Values:  []uint64{o.value},
	}
	in, err := consensus.NewAnonInput(sp)
	require.NoError(t, err)
	tx.Inputs = []consensus.TxIn{in}
	s.mu.RLock()
	err = consensus.SignAnonInputs(s.provider, tx, indexView{db: s.db}, []consensus.AnonSpend{sp}, outBlinds)
	s.mu.RUnlock()
	require.NoError(t, err)
	return tx
}

func keyImageOf(t *testing.T, o owned) consensus.KeyImage {
	t.Helper()
	ki, err := crypto.KeyImage(o.secret)
	require.NoError(t, err)
	return consensus.KeyImage(ki)
}

var testBackends = []string{store.BackendBolt, store.BackendLevelDB}
