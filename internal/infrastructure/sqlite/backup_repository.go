package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/repository"
)

const backupColumns = `id, type, status, description, compression_enabled, compression, from_backup_id, since,
		tables, start_time, end_time, size_bytes, checksum, artifact_key, error, operation_id`

type backupRepository struct {
	db *DB
}

func NewBackupRepository(db *DB) repository.BackupRepository {
	return &backupRepository{db: db}
}

func (r *backupRepository) Create(ctx context.Context, backup *domain.Backup) error {
	tables, err := marshalStrings(backup.Tables)
	if err != nil {
		return fmt.Errorf("failed to marshal tables: %w", err)
	}

	query := `
		INSERT INTO backup (id, type, status, description, compression_enabled, compression, from_backup_id, since,
			tables, start_time, end_time, size_bytes, checksum, artifact_key, error, operation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		backup.ID,
		backup.Type,
		backup.Status,
		NullString(backup.Description),
		backup.CompressionEnabled,
		backup.Compression,
		NullString(backup.FromBackupID),
		NullTime(backup.Since),
		tables,
		backup.StartTime,
		NullTime(backup.EndTime),
		NullInt64(backup.SizeBytes),
		NullString(backup.Checksum),
		NullString(backup.ArtifactKey),
		NullString(backup.Error),
		NullInt64(backup.OperationID),
	)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	return nil
}

func (r *backupRepository) FindByID(ctx context.Context, id string) (*domain.Backup, error) {
	query := `SELECT ` + backupColumns + ` FROM backup WHERE id = ?`
	backup, err := scanBackup(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("backup not found: %s", id)
	}
	return backup, err
}

func (r *backupRepository) Update(ctx context.Context, backup *domain.Backup) error {
	tables, err := marshalStrings(backup.Tables)
	if err != nil {
		return fmt.Errorf("failed to marshal tables: %w", err)
	}

	query := `
		UPDATE backup
		SET status = ?, compression = ?, from_backup_id = ?, since = ?, tables = ?, end_time = ?,
			size_bytes = ?, checksum = ?, artifact_key = ?, error = ?, operation_id = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		backup.Status,
		backup.Compression,
		NullString(backup.FromBackupID),
		NullTime(backup.Since),
		tables,
		NullTime(backup.EndTime),
		NullInt64(backup.SizeBytes),
		NullString(backup.Checksum),
		NullString(backup.ArtifactKey),
		NullString(backup.Error),
		NullInt64(backup.OperationID),
		backup.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update backup: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.NewNotFoundError("backup not found: %s", backup.ID)
	}

	return nil
}

func applyBackupFilter(query string, args []interface{}, filter repository.BackupFilter) (string, []interface{}) {
	if filter.Type != nil {
		query += " AND type = ?"
		args = append(args, *filter.Type)
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	return query, args
}

func (r *backupRepository) List(ctx context.Context, filter repository.BackupFilter) ([]*domain.Backup, error) {
	query := `SELECT ` + backupColumns + ` FROM backup WHERE 1=1`
	args := []interface{}{}

	query, args = applyBackupFilter(query, args, filter)

	// id breaks ties between backups started in the same instant
	query += " ORDER BY start_time DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	defer rows.Close()

	var backups []*domain.Backup
	for rows.Next() {
		backup, err := scanBackup(rows)
		if err != nil {
			return nil, err
		}
		backups = append(backups, backup)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backups: %w", err)
	}

	return backups, nil
}

func (r *backupRepository) Count(ctx context.Context, filter repository.BackupFilter) (int, error) {
	query, args := applyBackupFilter(`SELECT COUNT(*) FROM backup WHERE 1=1`, []interface{}{}, filter)

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count backups: %w", err)
	}
	return count, nil
}

func (r *backupRepository) FindLatestCompleted(ctx context.Context, backupType domain.BackupType) (*domain.Backup, error) {
	query := `SELECT ` + backupColumns + `
		FROM backup
		WHERE type = ? AND status = ?
		ORDER BY start_time DESC, id DESC
		LIMIT 1`

	backup, err := scanBackup(r.db.QueryRowContext(ctx, query, backupType, domain.BackupStatusCompleted))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No backup found is not an error
	}
	return backup, err
}

func (r *backupRepository) FindChain(ctx context.Context, backupID string) ([]*domain.Backup, error) {
	// Walk backward from the given backup to its baseline
	var chain []*domain.Backup
	seen := map[string]bool{}
	currentID := backupID

	for currentID != "" {
		if seen[currentID] {
			return nil, fmt.Errorf("backup chain of %s contains a cycle", backupID)
		}
		seen[currentID] = true

		backup, err := r.FindByID(ctx, currentID)
		if err != nil {
			return nil, err
		}
		chain = append(chain, backup)

		if backup.FromBackupID == nil {
			break
		}
		currentID = *backup.FromBackupID
	}

	// Reverse the chain so it goes from the baseline to the most recent
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	return chain, nil
}

func (r *backupRepository) Statistics(ctx context.Context) (*domain.BackupStatistics, error) {
	stats := &domain.BackupStatistics{
		ByStatus: map[domain.BackupStatus]int{},
		ByType:   map[domain.BackupType]int{},
	}

	rows, err := r.db.QueryContext(ctx, `SELECT type, status, COUNT(*) FROM backup GROUP BY type, status`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate backups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var backupType domain.BackupType
		var status domain.BackupStatus
		var count int
		if err := rows.Scan(&backupType, &status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan backup aggregate: %w", err)
		}
		stats.ByType[backupType] += count
		stats.ByStatus[status] += count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backup aggregates: %w", err)
	}

	var totalSize, avgSize sql.NullFloat64
	var lastCompleted sql.NullString
	err = r.db.QueryRowContext(ctx, `
		SELECT SUM(size_bytes), AVG(size_bytes), MAX(end_time)
		FROM backup
		WHERE status = ?
	`, domain.BackupStatusCompleted).Scan(&totalSize, &avgSize, &lastCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate backup sizes: %w", err)
	}

	stats.TotalSizeBytes = int64(totalSize.Float64)
	stats.AverageSizeBytes = int64(avgSize.Float64)
	if lastCompleted.Valid {
		if t, ok := parseStoredTime(lastCompleted.String); ok {
			stats.LastCompletedTime = &t
		}
	}

	completed := stats.ByStatus[domain.BackupStatusCompleted]
	finished := completed + stats.ByStatus[domain.BackupStatusFailed]
	if finished > 0 {
		stats.SuccessRate = float64(completed) / float64(finished)
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBackup(row rowScanner) (*domain.Backup, error) {
	var backup domain.Backup
	var description, fromBackupID, checksum, artifactKey, errMsg sql.NullString
	var since, endTime sql.NullTime
	var sizeBytes, operationID sql.NullInt64
	var tables string

	err := row.Scan(
		&backup.ID,
		&backup.Type,
		&backup.Status,
		&description,
		&backup.CompressionEnabled,
		&backup.Compression,
		&fromBackupID,
		&since,
		&tables,
		&backup.StartTime,
		&endTime,
		&sizeBytes,
		&checksum,
		&artifactKey,
		&errMsg,
		&operationID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan backup: %w", err)
	}

	backup.Description = stringPtr(description)
	backup.FromBackupID = stringPtr(fromBackupID)
	backup.Since = timePtr(since)
	backup.EndTime = timePtr(endTime)
	backup.SizeBytes = int64Ptr(sizeBytes)
	backup.Checksum = stringPtr(checksum)
	backup.ArtifactKey = stringPtr(artifactKey)
	backup.Error = stringPtr(errMsg)
	backup.OperationID = int64Ptr(operationID)

	if backup.Tables, err = unmarshalStrings(tables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tables: %w", err)
	}

	return &backup, nil
}
