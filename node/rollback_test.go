package node

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"globe.dev/node/consensus"
	"globe.dev/node/node/store"
)

func TestRollbackStateString(t *testing.T) {
	require.Equal(t, "SYNCED", RollbackSynced.String())
	require.Equal(t, "ROLLING_BACK", RollbackRollingBack.String())
	require.Equal(t, "FAILED", RollbackFailed.String())
	require.Equal(t, "UNKNOWN", RollbackState(9).String())
}

func TestRollBackRCTIndex_KeepsFirstBlock(t *testing.T) {
	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			s := newTestState(t, backend)
			b1 := connectFunding(t, s, 1, 10, 20, 30)
			connectFunding(t, s, 2, 40, 50)

			kiOut := map[consensus.KeyImage]struct{}{}
			require.NoError(t, s.Rollback().RollBackRCTIndex(b1[2].index, 2, kiOut))
			require.Equal(t, RollbackSynced, s.Rollback().State())

			tip, err := s.CurrentTip()
			require.NoError(t, err)
			require.Equal(t, b1[2].index, tip)
			for _, o := range b1 {
				_, err := s.Resolve(o.index)
				require.NoError(t, err)
			}
			_, err = s.Resolve(tip + 1)
			require.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestRollBackRCTIndex_MismatchIsTerminal(t *testing.T) {
	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			s := newTestState(t, backend)
			connectFunding(t, s, 1, 10, 20, 30)
			b2 := connectFunding(t, s, 2, 40, 50, 60)

			failed := make(chan struct{})
			m := NewRollbackManager(s.db, s.pool, &s.mu, NewLogger("error", io.Discard), func() { close(failed) })
			s.rollback = m

			err := m.RollBackRCTIndex(3, 2, map[consensus.KeyImage]struct{}{})
			require.ErrorIs(t, err, ErrIndexCorrupt)
			require.ErrorIs(t, err, store.ErrEraseCountMismatch)
			require.Equal(t, RollbackFailed, m.State())
			select {
			case <-failed:
			case <-time.After(5 * time.Second):
				t.Fatalf("onFailed not called")
			}

			// Nothing was erased.
			for _, o := range b2 {
				_, err := s.Resolve(o.index)
				require.NoError(t, err)
			}

			tx, _ := fundingTx(t, 70)
			_, err = s.ConnectBlock(context.Background(), 3, []*consensus.Tx{tx})
			require.ErrorIs(t, err, ErrIndexCorrupt)
			_, err = m.RewindToCheckpoint(1, nil)
			require.ErrorIs(t, err, ErrIndexCorrupt)
			require.ErrorIs(t, m.RollBackRCTIndex(3, 3, nil), ErrIndexCorrupt)
			require.ErrorIs(t, s.MarkCompromised(1), ErrIndexCorrupt)
		})
	}
}

func TestRollBackRCTIndex_AboveTipKeepsState(t *testing.T) {
	s := newTestState(t, store.BackendBolt)
	connectFunding(t, s, 0, 10)
	require.Error(t, s.Rollback().RollBackRCTIndex(5, 0, nil))
	require.Equal(t, RollbackSynced, s.Rollback().State())
}

func TestRollBackRCTIndex_TargetInsideBlockKeepsState(t *testing.T) {
	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			s := newTestState(t, backend)
			b1 := connectFunding(t, s, 1, 10, 20, 30)
			b2 := connectFunding(t, s, 2, 40, 50)

			err := s.Rollback().RollBackRCTIndex(b2[0].index, 1, nil)
			require.ErrorIs(t, err, store.ErrNotBlockBoundary)
			require.NotErrorIs(t, err, ErrIndexCorrupt)
			require.Equal(t, RollbackSynced, s.Rollback().State())

			tip, err := s.CurrentTip()
			require.NoError(t, err)
			require.Equal(t, b2[1].index, tip)

			n, err := s.Rollback().RewindToCheckpoint(1, nil)
			require.NoError(t, err)
			require.Equal(t, 1, n)
			require.Equal(t, RollbackSynced, s.Rollback().State())
			tip, err = s.CurrentTip()
			require.NoError(t, err)
			require.Equal(t, b1[2].index, tip)
		})
	}
}

func TestRewindToCheckpoint(t *testing.T) {
	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			s := newTestState(t, backend)
			ctx := context.Background()
			outs := connectFunding(t, s, 0, 1000, 7, 7)
			decoys := []uint64{outs[1].index, outs[2].index}
			spend := spendTx(t, s, outs[0], decoys, 5, 995)
			_, err := s.ConnectBlock(ctx, 1, []*consensus.Tx{spend})
			require.NoError(t, err)
			_, err = s.ConnectBlock(ctx, 2, nil)
			require.NoError(t, err)
			connectFunding(t, s, 3, 11)

			_, err = s.Rollback().RewindToCheckpoint(4, nil)
			require.ErrorContains(t, err, "above tip")

			released := map[consensus.KeyImage]struct{}{}
			n, err := s.Rollback().RewindToCheckpoint(0, released)
			require.NoError(t, err)
			require.Equal(t, 3, n)
			require.Equal(t, map[consensus.KeyImage]struct{}{keyImageOf(t, outs[0]): {}}, released)
			require.Equal(t, RollbackSynced, s.Rollback().State())

			tip, err := s.CurrentTip()
			require.NoError(t, err)
			require.Equal(t, uint64(3), tip)
			h, ok, err := s.TipHeight()
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, int32(0), h)

			// The key image is released, so the spend is valid again.
			var state consensus.ValidationState
			require.True(t, s.VerifyTx(spend, &state), "state=%v", state.Err())
			_, err = s.AcceptToPool(spend)
			require.NoError(t, err)

			n, err = s.Rollback().RewindToCheckpoint(0, nil)
			require.NoError(t, err)
			require.Zero(t, n)
		})
	}
}

func TestRewindToCheckpoint_DropsRingMembers(t *testing.T) {
	s := newTestState(t, store.BackendLevelDB)
	outs := connectFunding(t, s, 0, 1000)
	decoys := connectFunding(t, s, 1, 7, 7)
	tx := spendTx(t, s, outs[0], []uint64{decoys[0].index, decoys[1].index}, 5, 995)

	n, err := s.Rollback().RewindToCheckpoint(0, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var state consensus.ValidationState
	require.False(t, s.VerifyTx(tx, &state))
	require.Equal(t, consensus.ANON_ERR_MEMBER_UNKNOWN, state.Code())
}

func TestRewindToCheckpoint_ReconcilesPool(t *testing.T) {
	s := newTestState(t, store.BackendBolt)
	outs := connectFunding(t, s, 0, 1000, 7, 7)
	decoys := []uint64{outs[1].index, outs[2].index}
	tx := spendTx(t, s, outs[0], decoys, 5, 995)
	txid, err := s.AcceptToPool(tx)
	require.NoError(t, err)
	connectFunding(t, s, 1, 3)

	// Drift the tracked set, then let the rewind re-derive it.
	s.Pool().RemoveKeyImagesFromMempool(txid, &tx.Inputs[0])
	_, err = s.Rollback().RewindToCheckpoint(0, nil)
	require.NoError(t, err)
	require.True(t, s.Pool().HaveKeyImage(keyImageOf(t, outs[0])))
}
