package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/repository"
)

const restoreColumns = `id, backup_id, restore_type, selected_tables, target, pre_restore_backup_id, status,
		applied_tables, error, start_time, end_time, operation_id`

type restoreRepository struct {
	db *DB
}

func NewRestoreRepository(db *DB) repository.RestoreRepository {
	return &restoreRepository{db: db}
}

func (r *restoreRepository) Create(ctx context.Context, restore *domain.Restore) error {
	selected, err := marshalStrings(restore.SelectedTables)
	if err != nil {
		return fmt.Errorf("failed to marshal selected tables: %w", err)
	}
	applied, err := marshalStrings(restore.AppliedTables)
	if err != nil {
		return fmt.Errorf("failed to marshal applied tables: %w", err)
	}

	query := `
		INSERT INTO restore (backup_id, restore_type, selected_tables, target, pre_restore_backup_id, status,
			applied_tables, error, start_time, end_time, operation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		restore.BackupID,
		restore.RestoreType,
		selected,
		restore.Target,
		NullString(restore.PreRestoreBackupID),
		restore.Status,
		applied,
		NullString(restore.Error),
		restore.StartTime,
		NullTime(restore.EndTime),
		NullInt64(restore.OperationID),
	)
	if err != nil {
		return fmt.Errorf("failed to create restore: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	restore.ID = id

	return nil
}

func (r *restoreRepository) FindByID(ctx context.Context, id int64) (*domain.Restore, error) {
	query := `SELECT ` + restoreColumns + ` FROM restore WHERE id = ?`
	restore, err := scanRestore(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("restore not found: %d", id)
	}
	return restore, err
}

func (r *restoreRepository) Update(ctx context.Context, restore *domain.Restore) error {
	applied, err := marshalStrings(restore.AppliedTables)
	if err != nil {
		return fmt.Errorf("failed to marshal applied tables: %w", err)
	}

	query := `
		UPDATE restore
		SET pre_restore_backup_id = ?, status = ?, applied_tables = ?, error = ?, end_time = ?, operation_id = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		NullString(restore.PreRestoreBackupID),
		restore.Status,
		applied,
		NullString(restore.Error),
		NullTime(restore.EndTime),
		NullInt64(restore.OperationID),
		restore.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update restore: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.NewNotFoundError("restore not found: %d", restore.ID)
	}

	return nil
}

func (r *restoreRepository) List(ctx context.Context, filter repository.RestoreFilter) ([]*domain.Restore, error) {
	query := `SELECT ` + restoreColumns + ` FROM restore WHERE 1=1`
	args := []interface{}{}

	query, args = ApplyFilters(query, args, filter.Filters)
	query = ApplyOrdering(query, filter.Order, "start_time DESC")
	query, args = ApplyPagination(query, args, filter.Page, filter.PerPage)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list restores: %w", err)
	}
	defer rows.Close()

	var restores []*domain.Restore
	for rows.Next() {
		restore, err := scanRestore(rows)
		if err != nil {
			return nil, err
		}
		restores = append(restores, restore)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating restores: %w", err)
	}

	return restores, nil
}

func (r *restoreRepository) Count(ctx context.Context, filter repository.RestoreFilter) (int, error) {
	query := `SELECT COUNT(*) FROM restore WHERE 1=1`
	args := []interface{}{}

	query, args = ApplyFilters(query, args, filter.Filters)

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count restores: %w", err)
	}

	return count, nil
}

func scanRestore(row rowScanner) (*domain.Restore, error) {
	var restore domain.Restore
	var selected, applied string
	var preRestoreBackupID, errMsg sql.NullString
	var endTime sql.NullTime
	var operationID sql.NullInt64

	err := row.Scan(
		&restore.ID,
		&restore.BackupID,
		&restore.RestoreType,
		&selected,
		&restore.Target,
		&preRestoreBackupID,
		&restore.Status,
		&applied,
		&errMsg,
		&restore.StartTime,
		&endTime,
		&operationID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan restore: %w", err)
	}

	restore.PreRestoreBackupID = stringPtr(preRestoreBackupID)
	restore.Error = stringPtr(errMsg)
	restore.EndTime = timePtr(endTime)
	restore.OperationID = int64Ptr(operationID)

	if restore.SelectedTables, err = unmarshalStrings(selected); err != nil {
		return nil, fmt.Errorf("failed to unmarshal selected tables: %w", err)
	}
	if restore.AppliedTables, err = unmarshalStrings(applied); err != nil {
		return nil, fmt.Errorf("failed to unmarshal applied tables: %w", err)
	}

	return &restore, nil
}
