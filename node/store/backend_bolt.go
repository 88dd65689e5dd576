package store

import (
	"bytes"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

type boltBackend struct {
	db *bolt.DB
}

func openBolt(dir string, buckets [][]byte) (*boltBackend, error) {
	path := filepath.Join(dir, "kv.db")
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}
	if err := bdb.Update(func(tx *bolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return &boltBackend{db: bdb}, nil
}

func (b *boltBackend) View(fn func(r kvReader) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		return fn(boltTx{tx: tx})
	})
}

func (b *boltBackend) Update(fn func(w kvWriter) error) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return fn(boltTx{tx: tx})
	})
}

func (b *boltBackend) Close() error {
	return b.db.Close()
}

type boltTx struct {
	tx *bolt.Tx
}

func (t boltTx) bucket(name []byte) (*bolt.Bucket, error) {
	bk := t.tx.Bucket(name)
	if bk == nil {
		return nil, fmt.Errorf("bucket %s missing", string(name))
	}
	return bk, nil
}

func (t boltTx) Get(bucket, key []byte) ([]byte, error) {
	bk, err := t.bucket(bucket)
	if err != nil {
		return nil, err
	}
	v := bk.Get(key)
	if v == nil {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (t boltTx) ForEachFrom(bucket, start []byte, fn func(k, v []byte) (bool, error)) error {
	bk, err := t.bucket(bucket)
	if err != nil {
		return err
	}
	c := bk.Cursor()
	for k, v := c.Seek(start); k != nil; k, v = c.Next() {
		if bytes.Compare(k, start) < 0 {
			continue
		}
		more, err := fn(append([]byte(nil), k...), append([]byte(nil), v...))
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

func (t boltTx) Put(bucket, key, val []byte) error {
	bk, err := t.bucket(bucket)
	if err != nil {
		return err
	}
	return bk.Put(key, val)
}

func (t boltTx) Delete(bucket, key []byte) error {
	bk, err := t.bucket(bucket)
	if err != nil {
		return err
	}
	return bk.Delete(key)
}
