package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"globe.dev/node/consensus"
	"globe.dev/node/crypto"
	"globe.dev/node/node/store"
)

// indexView adapts the store to the consensus lookups. Callers hold the
// index lock.
type indexView struct {
	db *store.DB
}

func (v indexView) ResolveRingMember(idx uint64) (consensus.RingMember, bool, error) {
	o, err := v.db.Resolve(idx)
	if errors.Is(err, store.ErrNotFound) {
		return consensus.RingMember{}, false, nil
	}
	if err != nil {
		return consensus.RingMember{}, false, err
	}
	return consensus.RingMember{Index: idx, PubKey: o.PubKey, Commitment: o.Commitment}, true, nil
}

func (v indexView) SpentKeyImage(ki consensus.KeyImage) (bool, error) {
	_, ok, err := v.db.HaveKeyImage(ki)
	return ok, err
}

func (v indexView) FindByPubKey(pk crypto.Point) (uint64, bool, error) {
	return v.db.FindByPubKey(pk)
}

// AnonState owns the anonymous output index, the pool key-image tracker and
// the rollback manager of one node. Reads take the index read lock;
// connects and erases take the write lock, then the pool lock.
type AnonState struct {
	mu       sync.RWMutex
	cfg      Config
	db       *store.DB
	pool     *TxPool
	rollback *RollbackManager
	provider crypto.Provider
	logger   *slog.Logger
}

func NewAnonState(cfg Config, logger *slog.Logger) (*AnonState, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := store.Open(cfg.DataDir, cfg.Network, cfg.DBBackend)
	if err != nil {
		return nil, err
	}
	s := &AnonState{
		cfg:      cfg,
		db:       db,
		provider: crypto.Secp256k1Provider{},
		logger:   logger,
	}
	s.pool = NewTxPool(s.provider, logger)
	s.rollback = NewRollbackManager(db, s.pool, &s.mu, logger, nil)
	tip, err := db.CurrentTip()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("anon index opened", "network", cfg.Network, "backend", cfg.DBBackend, "tip", tip)
	return s, nil
}

func (s *AnonState) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *AnonState) Pool() *TxPool { return s.pool }

func (s *AnonState) Rollback() *RollbackManager { return s.rollback }

func (s *AnonState) verifyOptions(withPool bool) consensus.VerifyOptions {
	opts := consensus.VerifyOptions{Provider: s.provider}
	if withPool {
		opts.Pool = s.pool
		opts.MinFeeRate = s.cfg.MinRelayFeePerKB
		return opts
	}
	// Range proofs may only be skipped for blocks.
	opts.SkipRangeProofs = s.cfg.SkipRangeProofs
	return opts
}

func (s *AnonState) verifyLocked(tx *consensus.Tx, state *consensus.ValidationState, withPool bool) bool {
	view := indexView{db: s.db}
	if !consensus.VerifyMLSAG(tx, view, s.verifyOptions(withPool), state) {
		return false
	}
	return consensus.AllAnonOutputsUnknown(tx, view, state)
}

// VerifyTx checks tx against the index and the pool without changing
// either.
func (s *AnonState) VerifyTx(tx *consensus.Tx, state *consensus.ValidationState) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verifyLocked(tx, state, true)
}

// AcceptToPool verifies tx and pools it with its key images.
func (s *AnonState) AcceptToPool(tx *consensus.Tx) ([32]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var state consensus.ValidationState
	if !s.verifyLocked(tx, &state, true) {
		return [32]byte{}, state.Err()
	}
	txid, err := s.pool.Add(tx)
	if errors.Is(err, ErrKeyImageInPool) {
		// Lost a race with another tx presenting the same key image.
		state.Invalid(consensus.ANON_ERR_KEYIMAGE_POOL, "key image claimed by another pooled tx")
		return txid, state.Err()
	}
	if err != nil {
		return txid, err
	}
	s.logger.Debug("anon tx pooled", "txid", fmt.Sprintf("%x", txid), "pool_size", s.pool.Count())
	return txid, nil
}

// VerifyBatch verifies txs in parallel against the current index.
func (s *AnonState) VerifyBatch(ctx context.Context, txs []*consensus.Tx) ([]*consensus.ValidationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return VerifyBatch(ctx, txs, s.cfg.VerifyWorkers, func(tx *consensus.Tx, state *consensus.ValidationState) bool {
		return s.verifyLocked(tx, state, false)
	})
}

// ConnectBlock verifies the anonymous transactions of a block, appends
// their RingCT outputs and key images to the index and drops conflicting
// pool entries. Nothing is written when any tx fails.
func (s *AnonState) ConnectBlock(ctx context.Context, height int32, txs []*consensus.Tx) (store.BlockRecord, error) {
	if s.rollback.State() == RollbackFailed {
		return store.BlockRecord{}, ErrIndexCorrupt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rollback.State() == RollbackFailed {
		return store.BlockRecord{}, ErrIndexCorrupt
	}

	results, err := VerifyBatch(ctx, txs, s.cfg.VerifyWorkers, func(tx *consensus.Tx, state *consensus.ValidationState) bool {
		return s.verifyLocked(tx, state, false)
	})
	if err != nil {
		return store.BlockRecord{}, err
	}
	if i, bad := FirstInvalid(results); bad != nil {
		return store.BlockRecord{}, fmt.Errorf("block %d tx %d: %w", height, i, bad.Err())
	}

	var (
		outs []consensus.AnonOutput
		kis  []store.BlockKeyImage
		all  []consensus.KeyImage
	)
	for _, tx := range txs {
		txid, err := consensus.TxID(s.provider, tx)
		if err != nil {
			return store.BlockRecord{}, err
		}
		outs = append(outs, consensus.AnonOutputs(tx, txid, height)...)
		txKIs, err := consensus.TxKeyImages(tx)
		if err != nil {
			return store.BlockRecord{}, err
		}
		for _, ki := range txKIs {
			kis = append(kis, store.BlockKeyImage{KeyImage: ki, TxID: txid})
		}
		all = append(all, txKIs...)
	}

	rec, err := s.db.ConnectBlock(height, outs, kis)
	if err != nil {
		return store.BlockRecord{}, err
	}
	dropped := s.pool.RemoveConflicts(all)
	s.logger.Info("anon block connected",
		"height", height,
		"outputs", rec.Count,
		"first_index", rec.FirstIndex,
		"key_images", len(kis),
		"pool_dropped", len(dropped),
	)
	return rec, nil
}

// Resolve returns the indexed output at idx.
func (s *AnonState) Resolve(idx uint64) (consensus.AnonOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Resolve(idx)
}

func (s *AnonState) CurrentTip() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.CurrentTip()
}

func (s *AnonState) TipHeight() (int32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.TipHeight()
}

func (s *AnonState) MarkCompromised(idx uint64) error {
	if s.rollback.State() == RollbackFailed {
		return ErrIndexCorrupt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.MarkCompromised(idx)
}
