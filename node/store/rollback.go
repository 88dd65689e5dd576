package store

import (
	"errors"
	"fmt"

	"globe.dev/node/consensus"
)

// ErrEraseCountMismatch is returned when a rollback would erase a different
// number of outputs than the caller expected. Nothing is erased.
var ErrEraseCountMismatch = errors.New("store: rollback erase count mismatch")

// ErrNotBlockBoundary is returned when a rollback target falls inside a
// connected block. Nothing is erased.
var ErrNotBlockBoundary = errors.New("store: rollback target inside a block")

// eraseAbove deletes every output above lastValid with its pubkey link, then
// drops block records from the top while drop accepts them, moving their key
// images into kiOut. All reads happen before the first write.
func eraseAbove(w kvWriter, lastValid, expectErase uint64, drop func(BlockRecord) bool, kiOut map[consensus.KeyImage]struct{}) error {
	tip, err := readTip(w)
	if err != nil {
		return err
	}
	if lastValid > tip {
		return fmt.Errorf("rollback: last valid index %d above tip %d", lastValid, tip)
	}

	var keys, pubs [][]byte
	err = w.ForEachFrom(bucketOutputs, encodeIndexKey(lastValid+1), func(k, v []byte) (bool, error) {
		o, err := decodeAnonOutput(v)
		if err != nil {
			return false, err
		}
		keys = append(keys, k)
		pubs = append(pubs, pubKeyKey(o.PubKey))
		return true, nil
	})
	if err != nil {
		return err
	}
	if uint64(len(keys)) != expectErase {
		return fmt.Errorf("%w: expected %d, found %d above %d", ErrEraseCountMismatch, expectErase, len(keys), lastValid)
	}

	var dropped []BlockRecord
	height, haveHeight, err := readTipHeight(w)
	if err != nil {
		return err
	}
	for haveHeight {
		v, err := w.Get(bucketBlocks, encodeHeightKey(height))
		if err != nil {
			return err
		}
		if v == nil {
			haveHeight = false
			break
		}
		rec, err := decodeBlockRecord(height, v)
		if err != nil {
			return err
		}
		if !drop(rec) {
			if rec.Count > 0 && rec.FirstIndex+rec.Count-1 > lastValid {
				return fmt.Errorf("%w: block %d holds indices %d..%d, last valid %d",
					ErrNotBlockBoundary, rec.Height, rec.FirstIndex, rec.FirstIndex+rec.Count-1, lastValid)
			}
			break
		}
		dropped = append(dropped, rec)
		if height == 0 {
			haveHeight = false
		} else {
			height--
		}
	}

	for i := range keys {
		if err := w.Delete(bucketOutputs, keys[i]); err != nil {
			return err
		}
		if err := w.Delete(bucketPubKeys, pubs[i]); err != nil {
			return err
		}
	}
	for _, rec := range dropped {
		for _, ki := range rec.KeyImages {
			if err := w.Delete(bucketKeyImages, ki.KeyImage[:]); err != nil {
				return err
			}
			if kiOut != nil {
				kiOut[ki.KeyImage] = struct{}{}
			}
		}
		if err := w.Delete(bucketBlocks, encodeHeightKey(rec.Height)); err != nil {
			return err
		}
	}
	if len(dropped) > 0 {
		if haveHeight {
			if err := writeTipHeight(w, height); err != nil {
				return err
			}
		} else if err := w.Delete(bucketMeta, keyTipHeight); err != nil {
			return err
		}
	}
	return w.Put(bucketMeta, keyTip, encodeTip(lastValid))
}

// RollBackRCTIndex erases every output above lastValid in one transaction.
// The number of erased outputs must equal expectErase, otherwise nothing
// changes and the error wraps ErrEraseCountMismatch. Block records whose
// first index lies above lastValid are dropped too, including trailing
// blocks that added no outputs; their key images are released into kiOut.
// lastValid must end a connected block, or the error wraps
// ErrNotBlockBoundary and nothing changes.
func (d *DB) RollBackRCTIndex(lastValid, expectErase uint64, kiOut map[consensus.KeyImage]struct{}) error {
	err := d.kv.Update(func(w kvWriter) error {
		return eraseAbove(w, lastValid, expectErase, func(rec BlockRecord) bool {
			return rec.FirstIndex > lastValid
		}, kiOut)
	})
	if err != nil {
		return fmt.Errorf("rollback anon index to %d: %w", lastValid, err)
	}
	return nil
}

// DisconnectBlock undoes exactly the block at height, which must be the
// last connected block, and returns its dropped record.
func (d *DB) DisconnectBlock(height int32, kiOut map[consensus.KeyImage]struct{}) (BlockRecord, error) {
	var rec BlockRecord
	err := d.kv.Update(func(w kvWriter) error {
		tipHeight, ok, err := readTipHeight(w)
		if err != nil {
			return err
		}
		if !ok || tipHeight != height {
			return fmt.Errorf("height %d is not the last connected block", height)
		}
		v, err := w.Get(bucketBlocks, encodeHeightKey(height))
		if err != nil {
			return err
		}
		if v == nil {
			return fmt.Errorf("block record %d: %w", height, ErrNotFound)
		}
		if rec, err = decodeBlockRecord(height, v); err != nil {
			return err
		}
		if rec.FirstIndex == 0 {
			return fmt.Errorf("block record %d: zero first index", height)
		}
		return eraseAbove(w, rec.FirstIndex-1, rec.Count, func(r BlockRecord) bool {
			return r.Height == height
		}, kiOut)
	})
	if err != nil {
		return BlockRecord{}, fmt.Errorf("disconnect anon block %d: %w", height, err)
	}
	return rec, nil
}
