package sqlite

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "vaultkeeper.db"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func execAll(t *testing.T, db *DB, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
}

func ptr[T any](v T) *T {
	return &v
}
