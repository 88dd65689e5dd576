package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	bucketOutputs   = []byte("anon_outputs")
	bucketPubKeys   = []byte("anon_pubkeys")
	bucketKeyImages = []byte("key_images")
	bucketBlocks    = []byte("anon_blocks")
	bucketMeta      = []byte("meta")

	keyTip       = []byte("tip")
	keyTipHeight = []byte("tip_height")
)

var allBuckets = [][]byte{bucketOutputs, bucketPubKeys, bucketKeyImages, bucketBlocks, bucketMeta}

// ErrNotFound is returned for an index that was never assigned or was erased.
var ErrNotFound = errors.New("store: not found")

// DB is the persistent anonymous output index of one network.
type DB struct {
	dir      string
	kv       kvBackend
	manifest *Manifest
}

// Open opens (creating if needed) the index for network under datadir using
// the named backend. An existing directory must have been created with the
// same network and backend.
func Open(datadir string, network string, backend string) (*DB, error) {
	if datadir == "" {
		return nil, fmt.Errorf("datadir required")
	}
	if network == "" {
		return nil, fmt.Errorf("network required")
	}
	switch backend {
	case "":
		backend = BackendBolt
	case BackendBolt, BackendLevelDB:
	default:
		return nil, fmt.Errorf("unknown db backend %q", backend)
	}

	dir := NetworkDir(datadir, network)
	if err := ensureDir(filepath.Join(dir, "db")); err != nil {
		return nil, err
	}

	m, err := readManifest(dir)
	switch {
	case err == nil:
		if m.SchemaVersion > SchemaVersionV1 {
			return nil, fmt.Errorf("manifest schema_version %d > supported %d", m.SchemaVersion, SchemaVersionV1)
		}
		if m.Network != network {
			return nil, fmt.Errorf("manifest network %q, opened as %q", m.Network, network)
		}
		if m.Backend != backend {
			return nil, fmt.Errorf("manifest db_backend %q, opened as %q", m.Backend, backend)
		}
	case os.IsNotExist(err):
		m = &Manifest{SchemaVersion: SchemaVersionV1, Network: network, Backend: backend}
		if err := writeManifestAtomic(dir, m); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	kv, err := openBackend(backend, filepath.Join(dir, "db"), allBuckets)
	if err != nil {
		return nil, err
	}
	return &DB{dir: dir, kv: kv, manifest: m}, nil
}

func (d *DB) Close() error {
	if d == nil || d.kv == nil {
		return nil
	}
	return d.kv.Close()
}

func (d *DB) Dir() string { return d.dir }

func (d *DB) Manifest() *Manifest {
	if d == nil {
		return nil
	}
	return d.manifest
}
