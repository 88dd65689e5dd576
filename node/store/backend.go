package store

import "fmt"

// Backend names accepted by Open.
const (
	BackendBolt    = "bolt"
	BackendLevelDB = "leveldb"
)

// kvReader is a consistent read view over named buckets. Returned values are
// copies owned by the caller; nil means absent.
type kvReader interface {
	Get(bucket, key []byte) ([]byte, error)
	// ForEachFrom visits keys >= start in ascending order until fn returns
	// false or an error.
	ForEachFrom(bucket, start []byte, fn func(k, v []byte) (bool, error)) error
}

// kvWriter is a read-write view. Every write made through one Update call
// commits together or not at all.
type kvWriter interface {
	kvReader
	Put(bucket, key, val []byte) error
	Delete(bucket, key []byte) error
}

type kvBackend interface {
	View(fn func(r kvReader) error) error
	Update(fn func(w kvWriter) error) error
	Close() error
}

func openBackend(name string, dir string, buckets [][]byte) (kvBackend, error) {
	switch name {
	case BackendBolt, "":
		return openBolt(dir, buckets)
	case BackendLevelDB:
		return openLevelDB(dir, buckets)
	default:
		return nil, fmt.Errorf("unknown db backend %q", name)
	}
}
