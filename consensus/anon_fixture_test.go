package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"globe.dev/node/crypto"
)

// memView is an in-memory RingView.
type memView struct {
	members map[uint64]RingMember
	spent   map[KeyImage]bool
	next    uint64
}

func newMemView() *memView {
	return &memView{members: map[uint64]RingMember{}, spent: map[KeyImage]bool{}}
}

func (v *memView) ResolveRingMember(idx uint64) (RingMember, bool, error) {
	m, ok := v.members[idx]
	return m, ok, nil
}

func (v *memView) SpentKeyImage(ki KeyImage) (bool, error) {
	return v.spent[ki], nil
}

type ownedOutput struct {
	index  uint64
	secret crypto.Scalar
	blind  crypto.Scalar
	value  uint64
}

func (v *memView) addOutput(t *testing.T, value uint64) ownedOutput {
	t.Helper()
	secret, err := crypto.RandomScalar()
	require.NoError(t, err)
	blind, err := crypto.RandomScalar()
	require.NoError(t, err)
	pk, err := crypto.PublicKey(secret)
	require.NoError(t, err)
	c, err := crypto.Commit(blind, value)
	require.NoError(t, err)
	v.next++
	v.members[v.next] = RingMember{Index: v.next, PubKey: pk, Commitment: c}
	return ownedOutput{index: v.next, secret: secret, blind: blind, value: value}
}

type memPool map[KeyImage]bool

func (p memPool) HaveKeyImage(ki KeyImage) bool { return p[ki] }

// txBuilder assembles and signs an all-anonymous transaction spending
// spends[i] (one slice per txin) into RingCT outputs of outValues plus fee.
type txBuilder struct {
	t         *testing.T
	view      *memView
	ringSize  int
	realCol   int
	fee       uint64
	outValues []uint64
	spends    [][]ownedOutput
	// mutateOutputs runs after outputs are built and before signing.
	mutateOutputs func(outs []TxOut)
}

func randomPoint(t *testing.T) crypto.Point {
	t.Helper()
	s, err := crypto.RandomScalar()
	require.NoError(t, err)
	p, err := crypto.PublicKey(s)
	require.NoError(t, err)
	return p
}

func (b *txBuilder) build() *Tx {
	t := b.t
	t.Helper()
	tx := &Tx{Version: 1}

	tx.Outputs = append(tx.Outputs, &DataOutput{Data: FeeData(b.fee)})
	var outBlinds []crypto.Scalar
	for _, v := range b.outValues {
		blind, err := crypto.RandomScalar()
		require.NoError(t, err)
		c, err := crypto.Commit(blind, v)
		require.NoError(t, err)
		proof, err := ProveRange(blind, v)
		require.NoError(t, err)
		eph := randomPoint(t)
		tx.Outputs = append(tx.Outputs, &RingCTOutput{
			PubKey:     randomPoint(t),
			Commitment: c,
			Data:       eph[:],
			RangeProof: proof,
		})
		outBlinds = append(outBlinds, blind)
	}
	if b.mutateOutputs != nil {
		b.mutateOutputs(tx.Outputs)
	}

	anonSpends := make([]AnonSpend, len(b.spends))
	for s, spend := range b.spends {
		nIn := len(spend)
		sp := AnonSpend{Indices: make([]uint64, nIn*b.ringSize), RealCol: b.realCol}
		for k := 0; k < nIn; k++ {
			for col := 0; col < b.ringSize; col++ {
				if col == b.realCol {
					sp.Indices[col+k*b.ringSize] = spend[k].index
					continue
				}
				sp.Indices[col+k*b.ringSize] = b.view.addOutput(t, 7).index
			}
			sp.Secrets = append(sp.Secrets, spend[k].secret)
			sp.Blinds = append(sp.Blinds, spend[k].blind)
			sp.Values = append(sp.Values, spend[k].value)
		}
		in, err := NewAnonInput(sp)
		require.NoError(t, err)
		tx.Inputs = append(tx.Inputs, in)
		anonSpends[s] = sp
	}
	require.NoError(t, SignAnonInputs(crypto.Secp256k1Provider{}, tx, b.view, anonSpends, outBlinds))
	return tx
}

// simpleTx spends one output of 1000 into 600 + 395 with a fee of 5.
func simpleTx(t *testing.T, view *memView) (*Tx, ownedOutput) {
	t.Helper()
	spent := view.addOutput(t, 1000)
	b := &txBuilder{
		t:         t,
		view:      view,
		ringSize:  MIN_RINGSIZE,
		realCol:   1,
		fee:       5,
		outValues: []uint64{600, 395},
		spends:    [][]ownedOutput{{spent}},
	}
	return b.build(), spent
}

// countingProvider counts expensive verification calls.
type countingProvider struct {
	crypto.Secp256k1Provider
	verifies int
}

func (c *countingProvider) VerifyMLSAG(msg [32]byte, cols, rows int, matrix []crypto.Point, kis []crypto.Point, sig *crypto.MLSAGSignature) error {
	c.verifies++
	return c.Secp256k1Provider.VerifyMLSAG(msg, cols, rows, matrix, kis, sig)
}

func (c *countingProvider) VerifyRange(cm crypto.Commitment, proof []byte) (uint64, uint64, error) {
	c.verifies++
	return c.Secp256k1Provider.VerifyRange(cm, proof)
}

func (c *countingProvider) VerifyTally(in, out []crypto.Commitment) (bool, error) {
	c.verifies++
	return c.Secp256k1Provider.VerifyTally(in, out)
}
