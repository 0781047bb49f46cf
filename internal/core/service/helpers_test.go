package service

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/infrastructure/artifact"
	"github.com/martijn/vaultkeeper/internal/infrastructure/sqlite"
	"github.com/martijn/vaultkeeper/internal/metrics"
	"github.com/martijn/vaultkeeper/internal/migrations"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	db         *sqlite.DB
	dir        string
	artifacts  *artifact.LocalStore
	metrics    *metrics.Metrics
	operations *OperationService
	migrations *MigrationService
	backups    *BackupService
	restores   *RestoreService
	auth       *AuthService
}

func testBackupConfig() domain.BackupConfig {
	return domain.BackupConfig{
		RetentionDays:             30,
		MaxBackups:                100,
		CompressionEnabled:        true,
		CompressionAlgorithm:      domain.CompressionZstd,
		StorageBackend:            "local",
		ChangeColumn:              "updated_at",
		IncrementalFallbackWindow: 24 * time.Hour,
	}
}

func newTestLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newTestEnv wires every service against a temporary database and
// artifact directory
func newTestEnv(t *testing.T, cfg domain.BackupConfig) *testEnv {
	t.Helper()

	dir := t.TempDir()
	db, err := sqlite.Open(filepath.Join(dir, "platform.db"), sqlite.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	artifacts, err := artifact.NewLocalStore(filepath.Join(dir, "backups"))
	require.NoError(t, err)

	definitions, err := migrations.Embedded()
	require.NoError(t, err)

	log := newTestLogger()
	m := metrics.New()
	live := sqlite.NewDataStore(db, log)
	backupRepo := sqlite.NewBackupRepository(db)

	operations := NewOperationService(sqlite.NewOperationRepository(db), log)
	backups := NewBackupService(backupRepo, live, artifacts, artifact.NewCompression(), operations, m, cfg, log)

	return &testEnv{
		db:         db,
		dir:        dir,
		artifacts:  artifacts,
		metrics:    m,
		operations: operations,
		migrations: NewMigrationService(sqlite.NewMigrationRepository(db), definitions, operations, m, log),
		backups:    backups,
		restores: NewRestoreService(
			sqlite.NewRestoreRepository(db),
			backupRepo,
			backups,
			live,
			sqlite.ScratchTargets(filepath.Join(dir, "restores"), log),
			operations,
			m,
			log,
		),
		auth: NewAuthService(sqlite.NewClientRepository(db), "test-secret", "HS256"),
	}
}

// migrate applies the platform schema and seeds two brands
func (e *testEnv) migrate(t *testing.T) {
	t.Helper()
	_, err := e.migrations.RunPendingMigrations(context.Background())
	require.NoError(t, err)
	e.exec(t,
		`INSERT INTO brands (id, name, slug, updated_at) VALUES
			(1, 'Acme', 'acme', '2026-01-01 10:00:00'),
			(2, 'Globex', 'globex', '2026-01-02 10:00:00')`,
	)
}

func (e *testEnv) exec(t *testing.T, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		_, err := e.db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
}

func (e *testEnv) brandNames(t *testing.T) []string {
	t.Helper()
	var names []string
	require.NoError(t, e.db.Select(&names, `SELECT name FROM brands ORDER BY id`))
	return names
}

func (e *testEnv) count(t *testing.T, query string, args ...interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.Get(&n, query, args...))
	return n
}

func ptr[T any](v T) *T {
	return &v
}
