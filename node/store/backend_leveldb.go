package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// levelBackend maps buckets onto key prefixes (bucket name + 0x00) of a single
// goleveldb database. Update collects writes in a leveldb.Batch committed
// with Sync; reads inside Update see the pending writes.
type levelBackend struct {
	db *leveldb.DB
	mu sync.Mutex // one writer at a time
}

func openLevelDB(dir string, _ [][]byte) (*levelBackend, error) {
	ldb, err := leveldb.OpenFile(filepath.Join(dir, "leveldb"), &opt.Options{
		CompactionTableSize: 4 * 1024 * 1024, // 4MB
		WriteBuffer:         2 * 1024 * 1024, // 2MB
	})
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &levelBackend{db: ldb}, nil
}

func prefixedKey(bucket, key []byte) []byte {
	out := make([]byte, 0, len(bucket)+1+len(key))
	out = append(out, bucket...)
	out = append(out, 0x00)
	return append(out, key...)
}

func (b *levelBackend) View(fn func(r kvReader) error) error {
	snap, err := b.db.GetSnapshot()
	if err != nil {
		return fmt.Errorf("leveldb snapshot: %w", err)
	}
	defer snap.Release()
	return fn(&levelTx{snap: snap})
}

func (b *levelBackend) Update(fn func(w kvWriter) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap, err := b.db.GetSnapshot()
	if err != nil {
		return fmt.Errorf("leveldb snapshot: %w", err)
	}
	defer snap.Release()

	tx := &levelTx{snap: snap, batch: new(leveldb.Batch), pending: map[string][]byte{}}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.batch.Len() == 0 {
		return nil
	}
	if err := b.db.Write(tx.batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("leveldb write: %w", err)
	}
	return nil
}

func (b *levelBackend) Close() error {
	return b.db.Close()
}

type levelTx struct {
	snap    *leveldb.Snapshot
	batch   *leveldb.Batch
	pending map[string][]byte // nil value marks a pending delete
}

func (t *levelTx) Get(bucket, key []byte) ([]byte, error) {
	k := prefixedKey(bucket, key)
	if t.pending != nil {
		if v, ok := t.pending[string(k)]; ok {
			if v == nil {
				return nil, nil
			}
			return append([]byte(nil), v...), nil
		}
	}
	v, err := t.snap.Get(k, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ForEachFrom iterates the snapshot; writes pending in the same Update are
// not visible to it.
func (t *levelTx) ForEachFrom(bucket, start []byte, fn func(k, v []byte) (bool, error)) error {
	prefix := prefixedKey(bucket, nil)
	rng := util.BytesPrefix(prefix)
	rng.Start = prefixedKey(bucket, start)
	it := t.snap.NewIterator(rng, nil)
	defer it.Release()
	for it.Next() {
		k := append([]byte(nil), it.Key()[len(prefix):]...)
		v := append([]byte(nil), it.Value()...)
		more, err := fn(k, v)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return it.Error()
}

func (t *levelTx) Put(bucket, key, val []byte) error {
	if t.batch == nil {
		return fmt.Errorf("leveldb: write in read-only view")
	}
	k := prefixedKey(bucket, key)
	v := append([]byte{}, val...)
	t.batch.Put(k, v)
	t.pending[string(k)] = v
	return nil
}

func (t *levelTx) Delete(bucket, key []byte) error {
	if t.batch == nil {
		return fmt.Errorf("leveldb: write in read-only view")
	}
	k := prefixedKey(bucket, key)
	t.batch.Delete(k)
	t.pending[string(k)] = nil
	return nil
}
