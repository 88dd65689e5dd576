package node

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"globe.dev/node/consensus"
	"globe.dev/node/crypto"
)

// poolTx builds an unsigned anonymous tx presenting kis; salt makes the
// hash unique.
func poolTx(t *testing.T, salt byte, kis ...consensus.KeyImage) *consensus.Tx {
	t.Helper()
	var in consensus.TxIn
	in.SetAnonInfo(uint32(len(kis)), consensus.MIN_RINGSIZE)
	var data []byte
	indices := make([]uint64, 0, len(kis)*consensus.MIN_RINGSIZE)
	for i, ki := range kis {
		data = append(data, ki[:]...)
		for c := 0; c < consensus.MIN_RINGSIZE; c++ {
			indices = append(indices, uint64(i*consensus.MIN_RINGSIZE+c+1))
		}
	}
	in.ScriptData = [][]byte{data}
	in.ScriptWitness = [][]byte{consensus.EncodeRingIndices(indices), nil}
	return &consensus.Tx{
		Version: 1,
		Inputs:  []consensus.TxIn{in},
		Outputs: []consensus.TxOut{&consensus.DataOutput{Data: consensus.FeeData(uint64(salt))}},
	}
}

func testKI(t *testing.T) consensus.KeyImage {
	t.Helper()
	return consensus.KeyImage(randomPoint(t))
}

func txHash(t *testing.T, tx *consensus.Tx) [32]byte {
	t.Helper()
	h, err := consensus.TxID(crypto.Secp256k1Provider{}, tx)
	require.NoError(t, err)
	return h
}

func newTestPool() *TxPool {
	return NewTxPool(nil, NewLogger("error", io.Discard))
}

func TestAddKeyImagesToMempool_SecondSpendWaitsForFirst(t *testing.T) {
	pool := newTestPool()
	ki := testKI(t)
	tx1 := poolTx(t, 1, ki)
	tx2 := poolTx(t, 2, ki)

	require.True(t, pool.AddKeyImagesToMempool(tx1))
	require.False(t, pool.AddKeyImagesToMempool(tx2))
	require.True(t, pool.HaveKeyImage(ki))

	pool.RemoveKeyImagesFromMempool(txHash(t, tx1), &tx1.Inputs[0])
	require.False(t, pool.HaveKeyImage(ki))
	require.True(t, pool.AddKeyImagesToMempool(tx2))
}

func TestAddKeyImagesToMempool_AllOrNothing(t *testing.T) {
	pool := newTestPool()
	taken := testKI(t)
	fresh := testKI(t)
	require.True(t, pool.AddKeyImagesToMempool(poolTx(t, 1, taken)))

	require.False(t, pool.AddKeyImagesToMempool(poolTx(t, 2, fresh, taken)))
	require.False(t, pool.HaveKeyImage(fresh))

	dup := testKI(t)
	require.False(t, pool.AddKeyImagesToMempool(poolTx(t, 3, dup, dup)))
	require.False(t, pool.HaveKeyImage(dup))
}

func TestAddKeyImagesToMempool_ClaimedThenPooled(t *testing.T) {
	pool := newTestPool()
	ki := testKI(t)
	tx := poolTx(t, 1, ki)

	require.True(t, pool.AddKeyImagesToMempool(tx))
	require.True(t, pool.AddKeyImagesToMempool(tx))
	h, err := pool.Add(tx)
	require.NoError(t, err)
	require.True(t, pool.Have(h))

	_, err = pool.Add(poolTx(t, 2, ki))
	require.ErrorIs(t, err, ErrKeyImageInPool)
}

func TestRemoveKeyImagesFromMempool_OnlyOwner(t *testing.T) {
	pool := newTestPool()
	ki := testKI(t)
	tx1 := poolTx(t, 1, ki)
	tx2 := poolTx(t, 2, ki)
	require.True(t, pool.AddKeyImagesToMempool(tx1))

	pool.RemoveKeyImagesFromMempool(txHash(t, tx2), &tx2.Inputs[0])
	require.True(t, pool.HaveKeyImage(ki))

	plain := consensus.TxIn{}
	pool.RemoveKeyImagesFromMempool(txHash(t, tx1), &plain)
	pool.RemoveKeyImagesFromMempool(txHash(t, tx1), nil)
	require.True(t, pool.HaveKeyImage(ki))
}

func TestTxPool_AddRemove(t *testing.T) {
	pool := newTestPool()
	ki1, ki2 := testKI(t), testKI(t)
	tx1 := poolTx(t, 1, ki1)
	h1, err := pool.Add(tx1)
	require.NoError(t, err)
	_, err = pool.Add(tx1)
	require.Error(t, err)
	_, err = pool.Add(poolTx(t, 2, ki1))
	require.ErrorIs(t, err, ErrKeyImageInPool)

	h2, err := pool.Add(poolTx(t, 3, ki2))
	require.NoError(t, err)
	require.Equal(t, 2, pool.Count())

	require.True(t, pool.Remove(h1))
	require.False(t, pool.Remove(h1))
	require.False(t, pool.HaveKeyImage(ki1))
	require.True(t, pool.Have(h2))
	require.Len(t, pool.Txs(), 1)
}

func TestTxPool_RebuildKeyImages(t *testing.T) {
	pool := newTestPool()
	ki1, ki2 := testKI(t), testKI(t)
	tx1 := poolTx(t, 1, ki1)
	h1, err := pool.Add(tx1)
	require.NoError(t, err)
	_, err = pool.Add(poolTx(t, 2, ki2))
	require.NoError(t, err)

	// Drift the tracked set away from the pooled txs.
	pool.RemoveKeyImagesFromMempool(h1, &tx1.Inputs[0])
	require.False(t, pool.HaveKeyImage(ki1))

	require.Empty(t, pool.RebuildKeyImages())
	require.True(t, pool.HaveKeyImage(ki1))
	require.True(t, pool.HaveKeyImage(ki2))
	require.Equal(t, 2, pool.Count())
}

func TestTxPool_RemoveConflicts(t *testing.T) {
	pool := newTestPool()
	ki1, ki2 := testKI(t), testKI(t)
	h1, err := pool.Add(poolTx(t, 1, ki1))
	require.NoError(t, err)
	h2, err := pool.Add(poolTx(t, 2, ki2))
	require.NoError(t, err)

	dropped := pool.RemoveConflicts([]consensus.KeyImage{ki1, testKI(t)})
	require.Equal(t, [][32]byte{h1}, dropped)
	require.False(t, pool.Have(h1))
	require.True(t, pool.Have(h2))
	require.False(t, pool.HaveKeyImage(ki1))
}
