package store

import (
	"errors"
	"fmt"

	"globe.dev/node/consensus"
	"globe.dev/node/crypto"
)

var (
	// ErrDuplicatePubKey is returned when an appended output reuses a public
	// key already present in the index.
	ErrDuplicatePubKey = errors.New("store: anon output public key already indexed")
	// ErrKeyImageSpent is returned when a connected block spends a key image
	// that is already recorded.
	ErrKeyImageSpent = errors.New("store: key image already spent")
)

func readTip(r kvReader) (uint64, error) {
	v, err := r.Get(bucketMeta, keyTip)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	return decodeTip(v)
}

func readTipHeight(r kvReader) (int32, bool, error) {
	v, err := r.Get(bucketMeta, keyTipHeight)
	if err != nil || v == nil {
		return 0, false, err
	}
	h, err := decodeTipHeight(v)
	if err != nil {
		return 0, false, err
	}
	return h, true, nil
}

func writeTipHeight(w kvWriter, height int32) error {
	return w.Put(bucketMeta, keyTipHeight, encodeTipHeight(height))
}

// appendOutputs assigns tip+1.. to outs and writes them with their pubkey
// links. It returns the first assigned index.
func appendOutputs(w kvWriter, outs []consensus.AnonOutput) (uint64, error) {
	tip, err := readTip(w)
	if err != nil {
		return 0, err
	}
	first := tip + 1
	seen := make(map[crypto.Point]struct{}, len(outs))
	for i, o := range outs {
		if _, dup := seen[o.PubKey]; dup {
			return 0, fmt.Errorf("%w: output %d repeats a key of the same block", ErrDuplicatePubKey, i)
		}
		seen[o.PubKey] = struct{}{}
		v, err := w.Get(bucketPubKeys, pubKeyKey(o.PubKey))
		if err != nil {
			return 0, err
		}
		if v != nil {
			return 0, fmt.Errorf("%w: output %d", ErrDuplicatePubKey, i)
		}
		idx := first + uint64(i)
		key := encodeIndexKey(idx)
		if err := w.Put(bucketOutputs, key, encodeAnonOutput(o)); err != nil {
			return 0, err
		}
		if err := w.Put(bucketPubKeys, pubKeyKey(o.PubKey), key); err != nil {
			return 0, err
		}
	}
	if len(outs) > 0 {
		if err := w.Put(bucketMeta, keyTip, encodeTip(tip+uint64(len(outs)))); err != nil {
			return 0, err
		}
	}
	return first, nil
}

// ConnectBlock appends the RingCT outputs and spent key images of the block
// at height in one transaction. Height must follow the last connected block;
// the first block may have any non-negative height.
func (d *DB) ConnectBlock(height int32, outs []consensus.AnonOutput, keyImages []BlockKeyImage) (BlockRecord, error) {
	var rec BlockRecord
	if height < 0 {
		return rec, fmt.Errorf("connect block: negative height %d", height)
	}
	err := d.kv.Update(func(w kvWriter) error {
		tipHeight, ok, err := readTipHeight(w)
		if err != nil {
			return err
		}
		if ok && height != tipHeight+1 {
			return fmt.Errorf("connect block: height %d does not follow %d", height, tipHeight)
		}
		first, err := appendOutputs(w, outs)
		if err != nil {
			return fmt.Errorf("connect block %d: %w", height, err)
		}
		seen := make(map[consensus.KeyImage]struct{}, len(keyImages))
		for _, ki := range keyImages {
			if _, dup := seen[ki.KeyImage]; dup {
				return fmt.Errorf("connect block %d: %w: repeated in block", height, ErrKeyImageSpent)
			}
			seen[ki.KeyImage] = struct{}{}
			v, err := w.Get(bucketKeyImages, ki.KeyImage[:])
			if err != nil {
				return err
			}
			if v != nil {
				return fmt.Errorf("connect block %d: %w", height, ErrKeyImageSpent)
			}
			if err := w.Put(bucketKeyImages, ki.KeyImage[:], ki.TxID[:]); err != nil {
				return err
			}
		}
		rec = BlockRecord{Height: height, FirstIndex: first, Count: uint64(len(outs)), KeyImages: keyImages}
		val, err := encodeBlockRecord(rec)
		if err != nil {
			return err
		}
		if err := w.Put(bucketBlocks, encodeHeightKey(height), val); err != nil {
			return err
		}
		return writeTipHeight(w, height)
	})
	if err != nil {
		return BlockRecord{}, err
	}
	return rec, nil
}

// Append adds a single output outside any block record and returns its
// index.
func (d *DB) Append(o consensus.AnonOutput) (uint64, error) {
	var idx uint64
	err := d.kv.Update(func(w kvWriter) error {
		first, err := appendOutputs(w, []consensus.AnonOutput{o})
		idx = first
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("append anon output: %w", err)
	}
	return idx, nil
}

// Resolve returns the output stored at idx, or ErrNotFound outside [1, tip].
func (d *DB) Resolve(idx uint64) (consensus.AnonOutput, error) {
	var out consensus.AnonOutput
	if idx == 0 {
		return out, ErrNotFound
	}
	err := d.kv.View(func(r kvReader) error {
		v, err := r.Get(bucketOutputs, encodeIndexKey(idx))
		if err != nil {
			return err
		}
		if v == nil {
			return ErrNotFound
		}
		out, err = decodeAnonOutput(v)
		return err
	})
	return out, err
}

// MarkCompromised flags the output at idx. The flag is the only mutable
// field of an indexed output.
func (d *DB) MarkCompromised(idx uint64) error {
	if idx == 0 {
		return ErrNotFound
	}
	return d.kv.Update(func(w kvWriter) error {
		key := encodeIndexKey(idx)
		v, err := w.Get(bucketOutputs, key)
		if err != nil {
			return err
		}
		if v == nil {
			return ErrNotFound
		}
		o, err := decodeAnonOutput(v)
		if err != nil {
			return err
		}
		o.Compromised = 1
		return w.Put(bucketOutputs, key, encodeAnonOutput(o))
	})
}

// CurrentTip returns the highest assigned index, 0 when empty.
func (d *DB) CurrentTip() (uint64, error) {
	var tip uint64
	err := d.kv.View(func(r kvReader) error {
		var err error
		tip, err = readTip(r)
		return err
	})
	return tip, err
}

// TipHeight returns the height of the last connected block.
func (d *DB) TipHeight() (int32, bool, error) {
	var (
		h  int32
		ok bool
	)
	err := d.kv.View(func(r kvReader) error {
		var err error
		h, ok, err = readTipHeight(r)
		return err
	})
	return h, ok, err
}

func (d *DB) FindByPubKey(pk crypto.Point) (uint64, bool, error) {
	var (
		idx uint64
		ok  bool
	)
	err := d.kv.View(func(r kvReader) error {
		v, err := r.Get(bucketPubKeys, pubKeyKey(pk))
		if err != nil || v == nil {
			return err
		}
		idx, err = decodeIndexKey(v)
		ok = err == nil
		return err
	})
	return idx, ok, err
}

// HaveKeyImage returns the confirmed transaction that spent ki.
func (d *DB) HaveKeyImage(ki consensus.KeyImage) ([32]byte, bool, error) {
	var (
		txid [32]byte
		ok   bool
	)
	err := d.kv.View(func(r kvReader) error {
		v, err := r.Get(bucketKeyImages, ki[:])
		if err != nil || v == nil {
			return err
		}
		if len(v) != 32 {
			return fmt.Errorf("key image record: expected 32 bytes, got %d", len(v))
		}
		copy(txid[:], v)
		ok = true
		return nil
	})
	return txid, ok, err
}

func (d *DB) BlockRecord(height int32) (BlockRecord, bool, error) {
	var (
		rec BlockRecord
		ok  bool
	)
	if height < 0 {
		return rec, false, nil
	}
	err := d.kv.View(func(r kvReader) error {
		v, err := r.Get(bucketBlocks, encodeHeightKey(height))
		if err != nil || v == nil {
			return err
		}
		rec, err = decodeBlockRecord(height, v)
		ok = err == nil
		return err
	})
	return rec, ok, err
}
