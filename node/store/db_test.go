package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var backends = []string{BackendBolt, BackendLevelDB}

func openTestDB(t *testing.T, backend string) *DB {
	t.Helper()
	db, err := Open(t.TempDir(), "regtest", backend)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_WritesManifest(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			datadir := t.TempDir()
			db, err := Open(datadir, "regtest", backend)
			require.NoError(t, err)
			require.Equal(t, filepath.Join(datadir, "networks", "regtest"), db.Dir())
			require.Equal(t, &Manifest{SchemaVersion: SchemaVersionV1, Network: "regtest", Backend: backend}, db.Manifest())
			require.NoError(t, db.Close())

			m, err := readManifest(db.Dir())
			require.NoError(t, err)
			require.Equal(t, backend, m.Backend)

			db, err = Open(datadir, "regtest", backend)
			require.NoError(t, err)
			require.NoError(t, db.Close())
		})
	}
}

func TestOpen_RejectsBackendSwitch(t *testing.T) {
	datadir := t.TempDir()
	db, err := Open(datadir, "regtest", BackendBolt)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(datadir, "regtest", BackendLevelDB)
	require.ErrorContains(t, err, "db_backend")
}

func TestOpen_RejectsBadArgs(t *testing.T) {
	_, err := Open("", "regtest", BackendBolt)
	require.Error(t, err)
	_, err = Open(t.TempDir(), "", BackendBolt)
	require.Error(t, err)
	_, err = Open(t.TempDir(), "regtest", "rocksdb")
	require.ErrorContains(t, err, "unknown db backend")
}
