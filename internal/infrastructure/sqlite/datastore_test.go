package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const brandsTable = `CREATE TABLE brands (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	slug TEXT,
	updated_at DATETIME
)`

func seedPlatform(t *testing.T, db *DB) {
	t.Helper()
	execAll(t, db,
		brandsTable,
		`CREATE UNIQUE INDEX idx_brands_slug ON brands(slug)`,
		`CREATE TABLE tags (id INTEGER PRIMARY KEY, label TEXT NOT NULL)`,
		`INSERT INTO brands (id, name, slug, updated_at) VALUES
			(1, 'Acme', 'acme', '2026-01-01 10:00:00'),
			(2, 'Globex', 'globex', '2026-01-03 10:00:00')`,
		`INSERT INTO tags (id, label) VALUES (1, 'summer'), (2, 'winter')`,
	)
}

type brandRow struct {
	ID   int64   `db:"id"`
	Name string  `db:"name"`
	Slug *string `db:"slug"`
}

func listBrands(t *testing.T, db *DB) []brandRow {
	t.Helper()
	var rows []brandRow
	require.NoError(t, db.Select(&rows, `SELECT id, name, slug FROM brands ORDER BY id`))
	return rows
}

func objectExists(t *testing.T, db *DB, kind, name string) bool {
	t.Helper()
	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?`, kind, name))
	return count > 0
}

func TestSnapshotSkipsInternalTables(t *testing.T) {
	db := newTestDB(t)
	seedPlatform(t, db)
	store := NewDataStore(db, newTestLogger())

	snap, err := store.Snapshot(context.Background(), domain.SnapshotOptions{Type: domain.BackupTypeFull})
	require.NoError(t, err)

	assert.Equal(t, []string{"brands", "tags"}, snap.TableNames())
	assert.Equal(t, domain.SnapshotFormatVersion, snap.FormatVersion)

	brands := snap.Table("brands")
	require.NotNil(t, brands)
	assert.Contains(t, brands.Schema, "CREATE TABLE brands")
	assert.Equal(t, []string{"id", "name", "slug", "updated_at"}, brands.Columns)
	assert.Len(t, brands.Rows, 2)
	require.Len(t, brands.Indexes, 1)
	assert.Contains(t, brands.Indexes[0], "idx_brands_slug")
}

func TestSnapshotCapturesLedgerForSchemaBackups(t *testing.T) {
	db := newTestDB(t)
	seedPlatform(t, db)
	ledger := NewMigrationRepository(db)
	require.NoError(t, ledger.Initialize(context.Background()))
	_, err := ledger.Apply(context.Background(), domain.NewMigration("1", "noop", "SELECT 1", ""))
	require.NoError(t, err)

	store := NewDataStore(db, newTestLogger())

	tests := []struct {
		backupType domain.BackupType
		wantLedger bool
		wantRows   bool
	}{
		{domain.BackupTypeFull, true, true},
		{domain.BackupTypeSchemaOnly, true, false},
		{domain.BackupTypeDataOnly, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.backupType), func(t *testing.T) {
			snap, err := store.Snapshot(context.Background(), domain.SnapshotOptions{Type: tt.backupType})
			require.NoError(t, err)

			ledgerTable := snap.Table(LedgerTable)
			if !tt.wantLedger {
				assert.Nil(t, ledgerTable)
			} else {
				require.NotNil(t, ledgerTable)
				assert.Len(t, ledgerTable.Rows, 1)
			}

			brands := snap.Table("brands")
			require.NotNil(t, brands)
			assert.Equal(t, tt.wantRows, len(brands.Rows) > 0)
			assert.Equal(t, tt.backupType.HasSchema(), brands.Schema != "")
		})
	}
}

func TestSnapshotIncrementalFiltersOnChangeColumn(t *testing.T) {
	db := newTestDB(t)
	seedPlatform(t, db)
	store := NewDataStore(db, newTestLogger())

	since := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	snap, err := store.Snapshot(context.Background(), domain.SnapshotOptions{
		Type:         domain.BackupTypeIncremental,
		Since:        &since,
		ChangeColumn: "updated_at",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"brands"}, snap.TableNames())
	assert.Equal(t, []string{"tags"}, snap.Skipped)

	brands := snap.Table("brands")
	require.Len(t, brands.Rows, 1)
	assert.Equal(t, int64(2), brands.Rows[0][0])
}

func TestSnapshotIncrementalComparesOffsetTimes(t *testing.T) {
	db := newTestDB(t)
	seedPlatform(t, db)
	execAll(t, db,
		`INSERT INTO brands (id, name, slug, updated_at) VALUES
			(3, 'Initech', 'initech', '2026-01-02T09:00:00+02:00'),
			(4, 'Umbrella', 'umbrella', '2026-01-02T12:00:00+02:00')`,
	)
	store := NewDataStore(db, newTestLogger())

	since := time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)
	snap, err := store.Snapshot(context.Background(), domain.SnapshotOptions{
		Type:         domain.BackupTypeIncremental,
		Since:        &since,
		ChangeColumn: "updated_at",
	})
	require.NoError(t, err)

	// 09:00+02:00 is 07:00 UTC and falls before the bound
	brands := snap.Table("brands")
	require.NotNil(t, brands)
	var ids []interface{}
	for _, row := range brands.Rows {
		ids = append(ids, row[0])
	}
	assert.ElementsMatch(t, []interface{}{int64(2), int64(4)}, ids)
}

func TestSnapshotKeepsStorageClasses(t *testing.T) {
	db := newTestDB(t)
	seedPlatform(t, db)
	execAll(t, db, `INSERT INTO brands (id, name, slug, updated_at) VALUES (3, 'Initech', NULL, 1767261600)`)
	store := NewDataStore(db, newTestLogger())

	snap, err := store.Snapshot(context.Background(), domain.SnapshotOptions{Type: domain.BackupTypeFull})
	require.NoError(t, err)

	rows := snap.Table("brands").Rows
	require.Len(t, rows, 3)
	assert.Equal(t, "2026-01-01 10:00:00", rows[0][3])
	assert.Equal(t, int64(1767261600), rows[2][3])
	assert.Nil(t, rows[2][2])
}

func TestApplyFullReplacesLiveTables(t *testing.T) {
	db := newTestDB(t)
	seedPlatform(t, db)
	store := NewDataStore(db, newTestLogger())
	ctx := context.Background()

	snap, err := store.Snapshot(ctx, domain.SnapshotOptions{Type: domain.BackupTypeFull})
	require.NoError(t, err)

	execAll(t, db,
		`INSERT INTO brands (id, name, slug) VALUES (3, 'Initech', 'initech')`,
		`UPDATE brands SET name = 'Changed' WHERE id = 1`,
		`DROP INDEX idx_brands_slug`,
		`CREATE TABLE scratch (id INTEGER PRIMARY KEY)`,
	)

	result, err := store.Apply(ctx, domain.RestorePlan{
		RestoreType: domain.RestoreTypeFull,
		Chain:       []*domain.Snapshot{snap},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"scratch", "brands", "tags"}, result.Applied)

	brands := listBrands(t, db)
	require.Len(t, brands, 2)
	assert.Equal(t, "Acme", brands[0].Name)
	assert.Equal(t, "Globex", brands[1].Name)

	assert.True(t, objectExists(t, db, "index", "idx_brands_slug"))
	assert.False(t, objectExists(t, db, "table", "scratch"))
	assert.True(t, objectExists(t, db, "table", "backup"), "internal tables stay untouched")
}

func TestApplySchemaOnlyRebuildPreservesData(t *testing.T) {
	db := newTestDB(t)
	seedPlatform(t, db)
	store := NewDataStore(db, newTestLogger())
	ctx := context.Background()

	snap, err := store.Snapshot(ctx, domain.SnapshotOptions{Type: domain.BackupTypeSchemaOnly})
	require.NoError(t, err)

	// Simulate drift: brands lost its slug column and gained a new one
	execAll(t, db,
		`DROP TABLE brands`,
		`CREATE TABLE brands (id INTEGER PRIMARY KEY, name TEXT NOT NULL, legacy TEXT)`,
		`INSERT INTO brands (id, name, legacy) VALUES (7, 'Umbrella', 'x')`,
		`CREATE TABLE leftovers (id INTEGER PRIMARY KEY)`,
		`DROP TABLE tags`,
	)

	result, err := store.Apply(ctx, domain.RestorePlan{
		RestoreType: domain.RestoreTypeSchemaOnly,
		Chain:       []*domain.Snapshot{snap},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"leftovers", "brands", "tags"}, result.Applied)

	brands := listBrands(t, db)
	require.Len(t, brands, 1)
	assert.Equal(t, int64(7), brands[0].ID)
	assert.Equal(t, "Umbrella", brands[0].Name)
	assert.Nil(t, brands[0].Slug)

	columns, err := tableColumns(ctx, db, "brands")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "slug", "updated_at"}, columns)

	assert.True(t, objectExists(t, db, "index", "idx_brands_slug"))
	assert.True(t, objectExists(t, db, "table", "tags"))
	assert.False(t, objectExists(t, db, "table", "leftovers"))
	assert.False(t, objectExists(t, db, "table", rebuildPrefix+"brands"))
}

func TestApplySchemaOnlySyncsIndexes(t *testing.T) {
	db := newTestDB(t)
	seedPlatform(t, db)
	store := NewDataStore(db, newTestLogger())
	ctx := context.Background()

	snap, err := store.Snapshot(ctx, domain.SnapshotOptions{Type: domain.BackupTypeSchemaOnly})
	require.NoError(t, err)

	execAll(t, db,
		`DROP INDEX idx_brands_slug`,
		`CREATE INDEX idx_brands_name ON brands(name)`,
	)

	_, err = store.Apply(ctx, domain.RestorePlan{
		RestoreType: domain.RestoreTypeSchemaOnly,
		Chain:       []*domain.Snapshot{snap},
	})
	require.NoError(t, err)

	assert.True(t, objectExists(t, db, "index", "idx_brands_slug"))
	assert.False(t, objectExists(t, db, "index", "idx_brands_name"))
	assert.Len(t, listBrands(t, db), 2, "rows are untouched when the definition matches")
}

func TestApplyDataOnlySkipsMissingTables(t *testing.T) {
	db := newTestDB(t)
	seedPlatform(t, db)
	store := NewDataStore(db, newTestLogger())
	ctx := context.Background()

	snap, err := store.Snapshot(ctx, domain.SnapshotOptions{Type: domain.BackupTypeDataOnly})
	require.NoError(t, err)

	execAll(t, db,
		`DELETE FROM brands WHERE id = 2`,
		`INSERT INTO brands (id, name) VALUES (9, 'Extra')`,
		`DROP TABLE tags`,
	)

	result, err := store.Apply(ctx, domain.RestorePlan{
		RestoreType: domain.RestoreTypeDataOnly,
		Chain:       []*domain.Snapshot{snap},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"brands"}, result.Applied)
	assert.Equal(t, []string{"tags"}, result.Skipped)

	brands := listBrands(t, db)
	require.Len(t, brands, 2)
	assert.Equal(t, int64(2), brands[1].ID)
	assert.False(t, objectExists(t, db, "table", "tags"))
}

func TestApplySelectiveRestoresOnlySelectedTables(t *testing.T) {
	db := newTestDB(t)
	seedPlatform(t, db)
	store := NewDataStore(db, newTestLogger())
	ctx := context.Background()

	snap, err := store.Snapshot(ctx, domain.SnapshotOptions{Type: domain.BackupTypeFull})
	require.NoError(t, err)

	execAll(t, db,
		`DELETE FROM brands`,
		`DROP TABLE tags`,
	)

	result, err := store.Apply(ctx, domain.RestorePlan{
		RestoreType: domain.RestoreTypeSelective,
		Tables:      []string{"tags"},
		Chain:       []*domain.Snapshot{snap},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tags"}, result.Applied)

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM tags`))
	assert.Equal(t, 2, count)
	assert.Empty(t, listBrands(t, db), "unselected tables are left alone")
}

func TestApplyIncrementalChainUpsertsChanges(t *testing.T) {
	db := newTestDB(t)
	seedPlatform(t, db)
	store := NewDataStore(db, newTestLogger())
	ctx := context.Background()

	base, err := store.Snapshot(ctx, domain.SnapshotOptions{Type: domain.BackupTypeFull})
	require.NoError(t, err)

	execAll(t, db,
		`UPDATE brands SET name = 'Globex Corp', updated_at = '2026-02-01 09:00:00' WHERE id = 2`,
		`INSERT INTO brands (id, name, slug, updated_at) VALUES (3, 'Initech', 'initech', '2026-02-01 09:30:00')`,
	)

	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	incremental, err := store.Snapshot(ctx, domain.SnapshotOptions{
		Type:         domain.BackupTypeIncremental,
		Since:        &since,
		ChangeColumn: "updated_at",
	})
	require.NoError(t, err)
	require.Len(t, incremental.Table("brands").Rows, 2)

	execAll(t, db, `DELETE FROM brands`)

	_, err = store.Apply(ctx, domain.RestorePlan{
		RestoreType: domain.RestoreTypeFull,
		Chain:       []*domain.Snapshot{base, incremental},
	})
	require.NoError(t, err)

	brands := listBrands(t, db)
	require.Len(t, brands, 3)
	assert.Equal(t, "Acme", brands[0].Name)
	assert.Equal(t, "Globex Corp", brands[1].Name)
	assert.Equal(t, "Initech", brands[2].Name)
}

func TestApplyReportsPartialFailure(t *testing.T) {
	db := newTestDB(t)
	store := NewDataStore(db, newTestLogger())

	snap := &domain.Snapshot{
		FormatVersion: domain.SnapshotFormatVersion,
		Type:          domain.BackupTypeFull,
		Tables: []domain.TableSnapshot{
			{Name: "alpha", Schema: `CREATE TABLE alpha (id INTEGER PRIMARY KEY)`, Columns: []string{"id"}, Rows: [][]interface{}{{int64(1)}}},
			{Name: "beta", Schema: `CREATE TABLE beta (`, Columns: []string{"id"}},
		},
	}

	result, err := store.Apply(context.Background(), domain.RestorePlan{
		RestoreType: domain.RestoreTypeFull,
		Chain:       []*domain.Snapshot{snap},
	})
	require.Error(t, err)

	var derr *domain.Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, domain.KindPartialFailure, derr.Kind)
	assert.Equal(t, []string{"alpha"}, derr.AppliedTables)
	assert.Equal(t, "beta", derr.FailedTable)
	assert.Equal(t, []string{"alpha"}, result.Applied)

	assert.True(t, objectExists(t, db, "table", "alpha"))
	assert.False(t, objectExists(t, db, "table", "beta"))
}

func TestApplyFirstTableFailureIsStoreError(t *testing.T) {
	db := newTestDB(t)
	store := NewDataStore(db, newTestLogger())

	snap := &domain.Snapshot{
		Type:   domain.BackupTypeFull,
		Tables: []domain.TableSnapshot{{Name: "broken", Schema: `CREATE TABLE broken (`}},
	}

	_, err := store.Apply(context.Background(), domain.RestorePlan{
		RestoreType: domain.RestoreTypeFull,
		Chain:       []*domain.Snapshot{snap},
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindStore, domain.KindOf(err))
}

func TestApplyRestoresForeignKeyEnforcement(t *testing.T) {
	db := newTestDB(t)
	seedPlatform(t, db)
	store := NewDataStore(db, newTestLogger())
	ctx := context.Background()

	snap, err := store.Snapshot(ctx, domain.SnapshotOptions{Type: domain.BackupTypeFull})
	require.NoError(t, err)
	_, err = store.Apply(ctx, domain.RestorePlan{RestoreType: domain.RestoreTypeFull, Chain: []*domain.Snapshot{snap}})
	require.NoError(t, err)

	var enabled int
	require.NoError(t, db.Get(&enabled, `PRAGMA foreign_keys`))
	assert.Equal(t, 1, enabled)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"brands"`, quoteIdent("brands"))
	assert.Equal(t, `"we""ird"`, quoteIdent(`we"ird`))
}
