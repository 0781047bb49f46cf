package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/repository"
)

// LedgerTable is captured by schema bearing backups so a schema restore
// brings the ledger back in line with the restored tables
const LedgerTable = "schema_migrations"

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	checksum TEXT NOT NULL,
	status TEXT NOT NULL,
	applied_at DATETIME,
	rolled_back_at DATETIME,
	error TEXT,
	execution_ms INTEGER NOT NULL DEFAULT 0
)`

const ledgerColumns = `version, name, checksum, status, applied_at, rolled_back_at, error, execution_ms`

type migrationRepository struct {
	db *sqlx.DB
}

func NewMigrationRepository(db *DB) repository.MigrationRepository {
	return &migrationRepository{db: db.DB}
}

// NewMigrationRepositoryFromSQLX is used by tests that drive the ledger through sqlmock
func NewMigrationRepositoryFromSQLX(db *sqlx.DB) repository.MigrationRepository {
	return &migrationRepository{db: db}
}

func (r *migrationRepository) Initialize(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, ledgerSchema); err != nil {
		return fmt.Errorf("failed to create migration ledger: %w", err)
	}
	return nil
}

func (r *migrationRepository) List(ctx context.Context) ([]*domain.MigrationRecord, error) {
	query := `SELECT ` + ledgerColumns + ` FROM schema_migrations ORDER BY CAST(version AS INTEGER) ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	defer rows.Close()

	var records []*domain.MigrationRecord
	for rows.Next() {
		record, err := scanMigrationRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrations: %w", err)
	}

	return records, nil
}

func (r *migrationRepository) FindByVersion(ctx context.Context, version string) (*domain.MigrationRecord, error) {
	query := `SELECT ` + ledgerColumns + ` FROM schema_migrations WHERE version = ?`
	record, err := scanMigrationRecord(r.db.QueryRowContext(ctx, query, version))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("migration %s is not in the ledger", version)
	}
	return record, err
}

func (r *migrationRepository) Apply(ctx context.Context, migration *domain.Migration) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Claim the version first. A row that is already applied is left alone,
	// so a concurrent runner that got there first turns this into a no-op.
	result, err := tx.ExecContext(ctx, `
		INSERT INTO schema_migrations (version, name, checksum, status, applied_at, rolled_back_at, error, execution_ms)
		VALUES (?, ?, ?, ?, ?, NULL, NULL, 0)
		ON CONFLICT(version) DO UPDATE SET
			name = excluded.name,
			checksum = excluded.checksum,
			status = excluded.status,
			applied_at = excluded.applied_at,
			rolled_back_at = NULL,
			error = NULL
		WHERE schema_migrations.status <> ?
	`, migration.Version, migration.Name, migration.Checksum, domain.MigrationStatusApplied, time.Now().UTC(), domain.MigrationStatusApplied)
	if err != nil {
		return false, fmt.Errorf("failed to claim migration %s: %w", migration.Version, err)
	}

	claimed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if claimed == 0 {
		return false, nil
	}

	start := time.Now()
	if _, err := tx.ExecContext(ctx, migration.Up); err != nil {
		return false, fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
	}

	elapsed := time.Since(start).Milliseconds()
	if _, err := tx.ExecContext(ctx, `UPDATE schema_migrations SET execution_ms = ? WHERE version = ?`, elapsed, migration.Version); err != nil {
		return false, fmt.Errorf("failed to record execution time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit migration %s: %w", migration.Version, err)
	}

	return true, nil
}

func (r *migrationRepository) RecordFailure(ctx context.Context, migration *domain.Migration, cause error) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO schema_migrations (version, name, checksum, status, applied_at, rolled_back_at, error, execution_ms)
		VALUES (?, ?, ?, ?, NULL, NULL, ?, 0)
		ON CONFLICT(version) DO UPDATE SET
			status = excluded.status,
			checksum = excluded.checksum,
			error = excluded.error
		WHERE schema_migrations.status <> ?
	`, migration.Version, migration.Name, migration.Checksum, domain.MigrationStatusFailed, cause.Error(), domain.MigrationStatusApplied)
	if err != nil {
		return fmt.Errorf("failed to record failure of migration %s: %w", migration.Version, err)
	}
	return nil
}

func (r *migrationRepository) Rollback(ctx context.Context, migration *domain.Migration) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE schema_migrations
		SET status = ?, rolled_back_at = ?
		WHERE version = ? AND status = ?
	`, domain.MigrationStatusRolledBack, time.Now().UTC(), migration.Version, domain.MigrationStatusApplied)
	if err != nil {
		return false, fmt.Errorf("failed to mark migration %s rolled back: %w", migration.Version, err)
	}

	marked, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if marked == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, migration.Down); err != nil {
		return false, fmt.Errorf("failed to execute rollback of %s: %w", migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit rollback of %s: %w", migration.Version, err)
	}

	return true, nil
}

func scanMigrationRecord(row rowScanner) (*domain.MigrationRecord, error) {
	var record domain.MigrationRecord
	var appliedAt, rolledBackAt sql.NullTime
	var errMsg sql.NullString

	err := row.Scan(
		&record.Version,
		&record.Name,
		&record.Checksum,
		&record.Status,
		&appliedAt,
		&rolledBackAt,
		&errMsg,
		&record.ExecutionMs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan migration: %w", err)
	}

	record.AppliedAt = timePtr(appliedAt)
	record.RolledBackAt = timePtr(rolledBackAt)
	record.Error = stringPtr(errMsg)

	return &record, nil
}
