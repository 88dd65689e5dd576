package node

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"globe.dev/node/consensus"
	"globe.dev/node/crypto"
)

// ErrKeyImageInPool is returned when a tx presents a key image already held
// by another pooled tx.
var ErrKeyImageInPool = errors.New("mempool: key image already in pool")

// TxPool tracks pooled anonymous transactions and the key images they
// present. The key-image set is always the union over the pooled txs.
type TxPool struct {
	mu        sync.Mutex
	provider  crypto.Provider
	txs       map[[32]byte]*consensus.Tx
	order     [][32]byte
	keyImages map[consensus.KeyImage][32]byte
	logger    *slog.Logger
}

func NewTxPool(p crypto.Provider, logger *slog.Logger) *TxPool {
	if p == nil {
		p = crypto.Secp256k1Provider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TxPool{
		provider:  p,
		txs:       make(map[[32]byte]*consensus.Tx),
		keyImages: make(map[consensus.KeyImage][32]byte),
		logger:    logger,
	}
}

// HaveKeyImage reports whether any pooled tx presents ki.
func (p *TxPool) HaveKeyImage(ki consensus.KeyImage) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.keyImages[ki]
	return ok
}

func (p *TxPool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txs)
}

func (p *TxPool) Have(txHash [32]byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.txs[txHash]
	return ok
}

// addKeyImagesLocked inserts every key image of tx or none of them. Key
// images txHash already holds are not conflicts.
func (p *TxPool) addKeyImagesLocked(txHash [32]byte, tx *consensus.Tx) bool {
	kis, err := consensus.TxKeyImages(tx)
	if err != nil {
		return false
	}
	seen := make(map[consensus.KeyImage]struct{}, len(kis))
	for _, ki := range kis {
		if owner, ok := p.keyImages[ki]; ok && owner != txHash {
			return false
		}
		if _, dup := seen[ki]; dup {
			return false
		}
		seen[ki] = struct{}{}
	}
	for _, ki := range kis {
		p.keyImages[ki] = txHash
	}
	return true
}

// AddKeyImagesToMempool claims every key image of tx for it. It returns
// false, claiming nothing, if any of them is already claimed or repeated
// within tx.
func (p *TxPool) AddKeyImagesToMempool(tx *consensus.Tx) bool {
	txHash, err := consensus.TxID(p.provider, tx)
	if err != nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addKeyImagesLocked(txHash, tx)
}

// RemoveKeyImagesFromMempool releases the key images of one input, but only
// those claimed by txHash.
func (p *TxPool) RemoveKeyImagesFromMempool(txHash [32]byte, in *consensus.TxIn) {
	if in == nil || !in.IsAnon() {
		return
	}
	kis, err := in.KeyImages()
	if err != nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeKeyImagesLocked(txHash, kis)
}

func (p *TxPool) removeKeyImagesLocked(txHash [32]byte, kis []consensus.KeyImage) {
	for _, ki := range kis {
		if owner, ok := p.keyImages[ki]; ok && owner == txHash {
			delete(p.keyImages, ki)
		}
	}
}

// Add pools tx together with its key images.
func (p *TxPool) Add(tx *consensus.Tx) ([32]byte, error) {
	txHash, err := consensus.TxID(p.provider, tx)
	if err != nil {
		return txHash, fmt.Errorf("mempool: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.txs[txHash]; ok {
		return txHash, fmt.Errorf("mempool: tx %x already pooled", txHash[:8])
	}
	if !p.addKeyImagesLocked(txHash, tx) {
		return txHash, ErrKeyImageInPool
	}
	p.txs[txHash] = tx
	p.order = append(p.order, txHash)
	return txHash, nil
}

// Remove drops a pooled tx and releases its key images.
func (p *TxPool) Remove(txHash [32]byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(txHash)
}

func (p *TxPool) removeLocked(txHash [32]byte) bool {
	tx, ok := p.txs[txHash]
	if !ok {
		return false
	}
	for i := range tx.Inputs {
		if !tx.Inputs[i].IsAnon() {
			continue
		}
		if kis, err := tx.Inputs[i].KeyImages(); err == nil {
			p.removeKeyImagesLocked(txHash, kis)
		}
	}
	delete(p.txs, txHash)
	for i, h := range p.order {
		if h == txHash {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

// RemoveConflicts drops every pooled tx presenting one of kis, typically the
// key images of a newly connected block. It returns the dropped hashes.
func (p *TxPool) RemoveConflicts(kis []consensus.KeyImage) [][32]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	var dropped [][32]byte
	for _, ki := range kis {
		owner, ok := p.keyImages[ki]
		if !ok {
			continue
		}
		if p.removeLocked(owner) {
			dropped = append(dropped, owner)
		}
	}
	return dropped
}

// RebuildKeyImages recomputes the key-image set from the pooled txs in
// arrival order. A tx whose key images conflict with an earlier one is
// evicted; the evicted hashes are returned.
func (p *TxPool) RebuildKeyImages() [][32]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keyImages = make(map[consensus.KeyImage][32]byte, len(p.keyImages))
	var evicted [][32]byte
	kept := p.order[:0]
	for _, h := range p.order {
		if p.addKeyImagesLocked(h, p.txs[h]) {
			kept = append(kept, h)
			continue
		}
		delete(p.txs, h)
		evicted = append(evicted, h)
		p.logger.Warn("mempool tx evicted on key image rebuild", "txid", fmt.Sprintf("%x", h))
	}
	p.order = kept
	return evicted
}

// Txs returns the pooled transactions in arrival order.
func (p *TxPool) Txs() []*consensus.Tx {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*consensus.Tx, 0, len(p.order))
	for _, h := range p.order {
		out = append(out, p.txs[h])
	}
	return out
}
