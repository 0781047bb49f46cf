package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/repository"
)

const operationColumns = `id, command_id, command, status, output, error, start_time, end_time, type, args`

type operationRepository struct {
	db *DB
}

func NewOperationRepository(db *DB) repository.OperationRepository {
	return &operationRepository{db: db}
}

func (r *operationRepository) Create(ctx context.Context, operation *domain.Operation) error {
	argsJSON, err := json.Marshal(operation.Args)
	if err != nil {
		return fmt.Errorf("failed to marshal args: %w", err)
	}

	query := `
		INSERT INTO operation (command_id, command, status, output, error, start_time, end_time, type, args)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		operation.CommandID,
		operation.Command,
		operation.Status,
		NullString(operation.Output),
		NullString(operation.Error),
		operation.StartTime,
		NullTime(operation.EndTime),
		operation.Type,
		string(argsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to create operation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	operation.ID = id

	return nil
}

func (r *operationRepository) FindByID(ctx context.Context, id int64) (*domain.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operation WHERE id = ?`
	operation, err := scanOperation(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("operation not found: %d", id)
	}
	return operation, err
}

func (r *operationRepository) FindByCommandID(ctx context.Context, commandID string) (*domain.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operation WHERE command_id = ?`
	operation, err := scanOperation(r.db.QueryRowContext(ctx, query, commandID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("operation not found: %s", commandID)
	}
	return operation, err
}

func (r *operationRepository) Update(ctx context.Context, operation *domain.Operation) error {
	argsJSON, err := json.Marshal(operation.Args)
	if err != nil {
		return fmt.Errorf("failed to marshal args: %w", err)
	}

	query := `
		UPDATE operation
		SET status = ?, output = ?, error = ?, end_time = ?, args = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		operation.Status,
		NullString(operation.Output),
		NullString(operation.Error),
		NullTime(operation.EndTime),
		string(argsJSON),
		operation.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update operation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.NewNotFoundError("operation not found: %d", operation.ID)
	}

	return nil
}

func (r *operationRepository) List(ctx context.Context, filter repository.OperationFilter) ([]*domain.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operation WHERE 1=1`
	args := []interface{}{}

	query, args = ApplyFilters(query, args, filter.Filters)
	query = ApplyOrdering(query, filter.Order, "start_time DESC")
	query, args = ApplyPagination(query, args, filter.Page, filter.PerPage)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	var operations []*domain.Operation
	for rows.Next() {
		operation, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		operations = append(operations, operation)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}

	return operations, nil
}

func (r *operationRepository) Count(ctx context.Context, filter repository.OperationFilter) (int, error) {
	query := `SELECT COUNT(*) FROM operation WHERE 1=1`
	args := []interface{}{}

	query, args = ApplyFilters(query, args, filter.Filters)

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count operations: %w", err)
	}

	return count, nil
}

func scanOperation(row rowScanner) (*domain.Operation, error) {
	var operation domain.Operation
	var argsJSON string
	var output, errorOutput sql.NullString
	var endTime sql.NullTime

	err := row.Scan(
		&operation.ID,
		&operation.CommandID,
		&operation.Command,
		&operation.Status,
		&output,
		&errorOutput,
		&operation.StartTime,
		&endTime,
		&operation.Type,
		&argsJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan operation: %w", err)
	}

	operation.Output = stringPtr(output)
	operation.Error = stringPtr(errorOutput)
	operation.EndTime = timePtr(endTime)

	if err := json.Unmarshal([]byte(argsJSON), &operation.Args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal args: %w", err)
	}

	return &operation, nil
}
