package node

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"globe.dev/node/consensus"
	"globe.dev/node/node/store"
)

// ErrIndexCorrupt is returned by every index mutation once a rollback has
// failed. Only a resync clears it.
var ErrIndexCorrupt = errors.New("node: anon index corrupt")

// RollbackState is the state of the anonymous output index with respect to
// rollbacks.
type RollbackState int32

const (
	RollbackSynced      RollbackState = 0 // index matches the connected chain
	RollbackRollingBack RollbackState = 1 // an erase is in progress
	RollbackFailed      RollbackState = 2 // an erase did not match; terminal
)

func (s RollbackState) String() string {
	switch s {
	case RollbackSynced:
		return "SYNCED"
	case RollbackRollingBack:
		return "ROLLING_BACK"
	case RollbackFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Checkpoint describes one block-sized erase: everything above
// LastValidIndex goes, and exactly ExpectErase outputs must be found.
type Checkpoint struct {
	Height         int32
	LastValidIndex uint64
	ExpectErase    uint64
	KeyImages      map[consensus.KeyImage]struct{}
}

// RollbackManager erases index entries above a checkpoint and drives the
// Synced/RollingBack/Failed state machine. It takes the index lock first and
// the pool lock second.
type RollbackManager struct {
	db       *store.DB
	pool     *TxPool
	mu       *sync.RWMutex
	state    atomic.Int32
	onFailed func()
	logger   *slog.Logger
}

// NewRollbackManager shares mu with the index owner. onFailed, if set, runs
// once when the manager enters Failed.
func NewRollbackManager(db *store.DB, pool *TxPool, mu *sync.RWMutex, logger *slog.Logger, onFailed func()) *RollbackManager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &RollbackManager{db: db, pool: pool, mu: mu, onFailed: onFailed, logger: logger}
	m.state.Store(int32(RollbackSynced))
	return m
}

// State returns the current state (safe for concurrent reads).
func (m *RollbackManager) State() RollbackState {
	return RollbackState(m.state.Load())
}

func (m *RollbackManager) transition(to RollbackState) {
	from := RollbackState(m.state.Swap(int32(to)))
	if from == to {
		return
	}
	if to == RollbackFailed {
		m.logger.Error("anon index rollback failed, index marked corrupt", "from", from.String(), "to", to.String())
		if m.onFailed != nil {
			go m.onFailed()
		}
		return
	}
	m.logger.Debug("anon index state change", "from", from.String(), "to", to.String())
}

func (m *RollbackManager) fail(err error) error {
	m.transition(RollbackFailed)
	return fmt.Errorf("%w: %w", ErrIndexCorrupt, err)
}

// RollBackRCTIndex erases every output above lastValid. The erase count
// must equal expectErase; otherwise nothing is erased and the manager
// enters Failed. A lastValid inside a connected block is refused without
// changes. Released key images are added to kiOut.
func (m *RollbackManager) RollBackRCTIndex(lastValid, expectErase uint64, kiOut map[consensus.KeyImage]struct{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.State() == RollbackFailed {
		return ErrIndexCorrupt
	}
	tip, err := m.db.CurrentTip()
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	if lastValid > tip {
		return fmt.Errorf("rollback: last valid index %d above tip %d", lastValid, tip)
	}

	m.transition(RollbackRollingBack)
	if err := m.db.RollBackRCTIndex(lastValid, expectErase, kiOut); err != nil {
		if errors.Is(err, store.ErrNotBlockBoundary) {
			m.transition(RollbackSynced)
			return fmt.Errorf("rollback: %w", err)
		}
		return m.fail(err)
	}
	m.pool.RebuildKeyImages()
	m.logger.Info("anon index rolled back", "last_valid", lastValid, "erased", expectErase, "tip", lastValid)
	m.transition(RollbackSynced)
	return nil
}

// checkpointAt describes undoing the connected block at height.
func (m *RollbackManager) checkpointAt(height int32) (Checkpoint, error) {
	rec, ok, err := m.db.BlockRecord(height)
	if err != nil {
		return Checkpoint{}, err
	}
	if !ok || rec.FirstIndex == 0 {
		return Checkpoint{}, fmt.Errorf("block record %d missing", height)
	}
	return Checkpoint{
		Height:         height,
		LastValidIndex: rec.FirstIndex - 1,
		ExpectErase:    rec.Count,
		KeyImages:      make(map[consensus.KeyImage]struct{}, len(rec.KeyImages)),
	}, nil
}

// RewindToCheckpoint disconnects block records from the tip down to, but
// not including, targetHeight. It returns how many blocks were undone and
// adds the key images they released to kiOut, which may be nil. The pool
// key-image set is re-derived afterwards.
func (m *RollbackManager) RewindToCheckpoint(targetHeight int32, kiOut map[consensus.KeyImage]struct{}) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.State() == RollbackFailed {
		return 0, ErrIndexCorrupt
	}
	tipHeight, ok, err := m.db.TipHeight()
	if err != nil {
		return 0, fmt.Errorf("rewind: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("rewind: no connected blocks")
	}
	if targetHeight > tipHeight {
		return 0, fmt.Errorf("rewind: target height %d above tip %d", targetHeight, tipHeight)
	}

	m.transition(RollbackRollingBack)
	rewound := 0
	for {
		h, ok, err := m.db.TipHeight()
		if err != nil {
			return rewound, m.fail(err)
		}
		if !ok || h <= targetHeight {
			break
		}
		cp, err := m.checkpointAt(h)
		if err != nil {
			return rewound, m.fail(err)
		}
		if _, err := m.db.DisconnectBlock(cp.Height, cp.KeyImages); err != nil {
			return rewound, m.fail(err)
		}
		rewound++
		if kiOut != nil {
			for ki := range cp.KeyImages {
				kiOut[ki] = struct{}{}
			}
		}
		m.logger.Debug("anon block disconnected", "height", h, "last_valid", cp.LastValidIndex, "erased", cp.ExpectErase, "key_images", len(cp.KeyImages))
	}

	evicted := m.pool.RebuildKeyImages()
	m.logger.Info("anon index rewound", "target_height", targetHeight, "blocks", rewound, "pool_evicted", len(evicted))
	m.transition(RollbackSynced)
	return rewound, nil
}
