package node

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"globe.dev/node/consensus"
)

// versionVerifier accepts txs with an even version.
func versionVerifier(tx *consensus.Tx, state *consensus.ValidationState) bool {
	if tx.Version%2 != 0 {
		return state.Invalid(consensus.TX_ERR_PARSE, "odd version")
	}
	return true
}

func TestVerifyBatch_ResultsInOrder(t *testing.T) {
	txs := make([]*consensus.Tx, 20)
	for i := range txs {
		txs[i] = &consensus.Tx{Version: uint32(i)}
	}
	results, err := VerifyBatch(context.Background(), txs, 4, versionVerifier)
	require.NoError(t, err)
	require.Len(t, results, len(txs))
	for i, r := range results {
		require.NotNil(t, r)
		require.Equal(t, i%2 == 0, r.IsValid(), "tx %d", i)
	}
	i, st := FirstInvalid(results)
	require.Equal(t, 1, i)
	require.Equal(t, consensus.TX_ERR_PARSE, st.Code())
}

func TestVerifyBatch_BoundsWorkers(t *testing.T) {
	var running, peak atomic.Int32
	verify := func(tx *consensus.Tx, state *consensus.ValidationState) bool {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		return true
	}
	txs := make([]*consensus.Tx, 32)
	for i := range txs {
		txs[i] = &consensus.Tx{}
	}
	_, err := VerifyBatch(context.Background(), txs, 3, verify)
	require.NoError(t, err)
	require.LessOrEqual(t, peak.Load(), int32(3))
}

func TestVerifyBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	txs := []*consensus.Tx{{}, {}, {}}
	results, err := VerifyBatch(ctx, txs, 2, versionVerifier)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 3)

	results, err = VerifyBatch(context.Background(), nil, 2, versionVerifier)
	require.NoError(t, err)
	require.Empty(t, results)
	i, st := FirstInvalid(results)
	require.Equal(t, -1, i)
	require.Nil(t, st)
}
