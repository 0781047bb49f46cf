package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/repository"
	"github.com/martijn/vaultkeeper/internal/infrastructure/artifact"
	"github.com/martijn/vaultkeeper/internal/metrics"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBackupListLimit = 50
	MaxBackupListLimit     = 500
)

// BackupOptions describes a backup request. A nil CompressionEnabled uses
// the configured default; Since only applies to incremental backups.
type BackupOptions struct {
	Type               domain.BackupType
	Description        string
	CompressionEnabled *bool
	Since              *time.Time
}

type BackupService struct {
	backupRepo  repository.BackupRepository
	store       repository.DataStore
	artifacts   artifact.Store
	compression *artifact.Compression
	operations  *OperationService
	metrics     *metrics.Metrics
	config      domain.BackupConfig
	log         logrus.FieldLogger

	now func() time.Time
}

func NewBackupService(
	backupRepo repository.BackupRepository,
	store repository.DataStore,
	artifacts artifact.Store,
	compression *artifact.Compression,
	operations *OperationService,
	m *metrics.Metrics,
	config domain.BackupConfig,
	log logrus.FieldLogger,
) *BackupService {
	return &BackupService{
		backupRepo:  backupRepo,
		store:       store,
		artifacts:   artifacts,
		compression: compression,
		operations:  operations,
		metrics:     m,
		config:      config,
		log:         log,
		now:         time.Now,
	}
}

// ParseBackupFilter turns raw query values into a typed filter.
// Empty values mean no restriction; limit defaults to 50.
func ParseBackupFilter(backupType, status, limit string) (repository.BackupFilter, error) {
	filter := repository.BackupFilter{Limit: DefaultBackupListLimit}
	fields := map[string]string{}

	if backupType != "" {
		t, err := domain.ParseBackupType(backupType)
		if err != nil {
			fields["type"] = "type must be one of full, incremental, schema_only, data_only"
		} else {
			filter.Type = &t
		}
	}

	if status != "" {
		st, err := domain.ParseBackupStatus(status)
		if err != nil {
			fields["status"] = "status must be one of pending, running, completed, failed"
		} else {
			filter.Status = &st
		}
	}

	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > MaxBackupListLimit {
			fields["limit"] = fmt.Sprintf("limit must be a number between 1 and %d", MaxBackupListLimit)
		} else {
			filter.Limit = n
		}
	}

	if len(fields) > 0 {
		return filter, domain.NewValidationError("invalid backup filter", fields)
	}
	return filter, nil
}

// CreateFullBackup captures every application table with schema and rows
func (s *BackupService) CreateFullBackup(ctx context.Context, description string, compressionEnabled *bool) (*domain.Backup, error) {
	return s.CreateBackup(ctx, BackupOptions{
		Type:               domain.BackupTypeFull,
		Description:        description,
		CompressionEnabled: compressionEnabled,
	})
}

// CreateIncrementalBackup captures rows changed since the latest completed
// full backup, or since the given time when set
func (s *BackupService) CreateIncrementalBackup(ctx context.Context, since *time.Time, description string) (*domain.Backup, error) {
	return s.CreateBackup(ctx, BackupOptions{
		Type:        domain.BackupTypeIncremental,
		Description: description,
		Since:       since,
	})
}

func (s *BackupService) CreateSchemaBackup(ctx context.Context, description string) (*domain.Backup, error) {
	return s.CreateBackup(ctx, BackupOptions{Type: domain.BackupTypeSchemaOnly, Description: description})
}

func (s *BackupService) CreateDataBackup(ctx context.Context, description string) (*domain.Backup, error) {
	return s.CreateBackup(ctx, BackupOptions{Type: domain.BackupTypeDataOnly, Description: description})
}

// CreateBackup runs a backup synchronously and returns the completed record
func (s *BackupService) CreateBackup(ctx context.Context, opts BackupOptions) (*domain.Backup, error) {
	if _, err := domain.ParseBackupType(string(opts.Type)); err != nil {
		return nil, domain.NewValidationError("invalid backup request", map[string]string{
			"type": "type must be one of full, incremental, schema_only, data_only",
		})
	}

	compressionEnabled := s.config.CompressionEnabled
	if opts.CompressionEnabled != nil {
		compressionEnabled = *opts.CompressionEnabled
	}
	algorithm := domain.CompressionNone
	if compressionEnabled {
		algorithm = s.config.CompressionAlgorithm
	}

	backup := domain.NewBackup(opts.Type, opts.Description, compressionEnabled)

	if opts.Type == domain.BackupTypeIncremental {
		if err := s.resolveBaseline(ctx, backup, opts.Since); err != nil {
			return nil, err
		}
	}

	logger := s.log.WithFields(logrus.Fields{"backup_id": backup.ID, "type": backup.Type})

	args := map[string]interface{}{
		"id":          backup.ID,
		"type":        string(backup.Type),
		"compression": string(algorithm),
	}
	if backup.FromBackupID != nil {
		args["from_backup_id"] = *backup.FromBackupID
	}
	op, err := s.operations.Begin(ctx, fmt.Sprintf("backup %s", backup.Type), domain.OperationTypeBackup, args)
	if err != nil {
		return nil, err
	}
	backup.OperationID = &op.ID

	if err := s.backupRepo.Create(ctx, backup); err != nil {
		storeErr := domain.NewStoreError("failed to create backup record", err)
		s.operations.Finish(ctx, op, "", storeErr)
		return nil, storeErr
	}

	backup.Start()
	if err := s.backupRepo.Update(ctx, backup); err != nil {
		return nil, s.fail(ctx, backup, op, "", err)
	}

	logger.Info("Starting backup")
	start := time.Now()

	key, err := s.run(ctx, backup, algorithm)
	if err != nil {
		s.metrics.ObserveBackup(string(backup.Type), string(domain.BackupStatusFailed), time.Since(start), 0)
		return nil, s.fail(ctx, backup, op, key, err)
	}

	if err := s.backupRepo.Update(ctx, backup); err != nil {
		return nil, s.fail(ctx, backup, op, key, err)
	}

	s.metrics.ObserveBackup(string(backup.Type), string(domain.BackupStatusCompleted), time.Since(start), *backup.SizeBytes)
	logger.WithFields(logrus.Fields{
		"size_bytes":  *backup.SizeBytes,
		"compression": backup.Compression,
		"tables":      len(backup.Tables),
	}).Info("Backup completed")

	s.operations.Finish(ctx, op, fmt.Sprintf("backup %s completed", backup.ID), nil)
	return backup, nil
}

// resolveBaseline sets the incremental lower bound. Without a completed full
// backup it falls back to a fixed window only when the policy allows it.
func (s *BackupService) resolveBaseline(ctx context.Context, backup *domain.Backup, since *time.Time) error {
	baseline, err := s.backupRepo.FindLatestCompleted(ctx, domain.BackupTypeFull)
	if err != nil {
		return domain.NewStoreError("failed to find baseline backup", err)
	}

	if baseline == nil {
		if !s.config.IncrementalFallbackEnabled {
			return domain.NewPreconditionError("no completed full backup to use as a baseline")
		}
		window := s.now().UTC().Add(-s.config.IncrementalFallbackWindow)
		backup.Since = &window
		s.log.WithFields(logrus.Fields{"backup_id": backup.ID, "since": window}).
			Warn("No baseline backup, capturing the fallback window")
		return nil
	}

	backup.FromBackupID = &baseline.ID
	if since != nil {
		t := since.UTC()
		backup.Since = &t
	} else {
		t := baseline.StartTime
		backup.Since = &t
	}
	return nil
}

// run captures the snapshot and stores the artifact. It returns the
// artifact key once anything may have been written.
func (s *BackupService) run(ctx context.Context, backup *domain.Backup, algorithm domain.CompressionType) (string, error) {
	snapshot, err := s.store.Snapshot(ctx, domain.SnapshotOptions{
		Type:         backup.Type,
		Since:        backup.Since,
		ChangeColumn: s.config.ChangeColumn,
	})
	if err != nil {
		return "", fmt.Errorf("failed to capture snapshot: %w", err)
	}
	snapshot.BackupID = backup.ID
	if backup.FromBackupID != nil {
		snapshot.FromBackupID = *backup.FromBackupID
	}

	payload, err := artifact.Encode(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	payload, err = s.compression.Compress(payload, algorithm)
	if err != nil {
		return "", fmt.Errorf("failed to compress artifact: %w", err)
	}

	key := artifact.Key(backup.ID, s.compression.Extension(algorithm))
	if err := s.artifacts.Put(ctx, key, payload); err != nil {
		return key, fmt.Errorf("failed to store artifact: %w", err)
	}

	backup.Compression = algorithm
	backup.Tables = snapshot.TableNames()
	backup.Complete(time.Now().UTC(), int64(len(payload)), artifact.Checksum(payload), key)
	return key, nil
}

// fail marks the backup failed and removes whatever artifact was written.
// Cleanup runs detached from ctx so a cancelled request still records it.
func (s *BackupService) fail(ctx context.Context, backup *domain.Backup, op *domain.Operation, key string, cause error) error {
	cleanupCtx := context.WithoutCancel(ctx)
	logger := s.log.WithField("backup_id", backup.ID)

	if key != "" {
		if err := s.artifacts.Delete(cleanupCtx, key); err != nil && !errors.Is(err, artifact.ErrNotFound) {
			logger.WithError(err).Warn("Failed to delete partial artifact")
		}
	}

	backup.Fail(cause.Error())
	backup.SizeBytes = nil
	backup.Checksum = nil
	backup.ArtifactKey = nil
	if err := s.backupRepo.Update(cleanupCtx, backup); err != nil {
		logger.WithError(err).Error("Failed to mark backup failed")
	}

	logger.WithError(cause).Error("Backup failed")

	storeErr := domain.NewStoreError(fmt.Sprintf("backup %s failed", backup.ID), cause)
	s.operations.Finish(ctx, op, "", storeErr)
	return storeErr
}

// LoadSnapshot reads and decodes the artifact of a completed backup. With
// verify set the stored checksum and the embedded backup id are checked.
func (s *BackupService) LoadSnapshot(ctx context.Context, backup *domain.Backup, verify bool) (*domain.Snapshot, error) {
	if !backup.IsCompleted() || backup.ArtifactKey == nil {
		return nil, domain.NewNotFoundError("backup %s is not completed", backup.ID)
	}

	payload, err := s.artifacts.Get(ctx, *backup.ArtifactKey)
	if errors.Is(err, artifact.ErrNotFound) {
		return nil, invalidArtifact(fmt.Sprintf("artifact of backup %s is missing", backup.ID), err)
	}
	if err != nil {
		return nil, domain.NewStoreError(fmt.Sprintf("failed to read artifact of backup %s", backup.ID), err)
	}

	if verify {
		if backup.Checksum == nil || artifact.Checksum(payload) != *backup.Checksum {
			return nil, invalidArtifact(fmt.Sprintf("checksum mismatch for backup %s", backup.ID), nil)
		}
	}

	data, err := s.compression.Decompress(payload, backup.Compression)
	if err != nil {
		return nil, invalidArtifact(fmt.Sprintf("artifact of backup %s cannot be decompressed", backup.ID), err)
	}

	snapshot, err := artifact.Decode(data)
	if err != nil {
		return nil, invalidArtifact(fmt.Sprintf("artifact of backup %s is not a valid snapshot", backup.ID), err)
	}

	if verify {
		if snapshot.BackupID != backup.ID {
			return nil, invalidArtifact(fmt.Sprintf("artifact belongs to backup %s, not %s", snapshot.BackupID, backup.ID), nil)
		}
		if snapshot.Type != backup.Type {
			return nil, invalidArtifact(fmt.Sprintf("artifact of backup %s has type %s, expected %s", backup.ID, snapshot.Type, backup.Type), nil)
		}
	}

	return snapshot, nil
}

// ListBackups lists backups most recent first
func (s *BackupService) ListBackups(ctx context.Context, filter repository.BackupFilter) ([]*domain.Backup, error) {
	backups, err := s.backupRepo.List(ctx, filter)
	if err != nil {
		return nil, domain.NewStoreError("failed to list backups", err)
	}
	if backups == nil {
		backups = []*domain.Backup{}
	}
	return backups, nil
}

// CountBackups counts backups with filtering
func (s *BackupService) CountBackups(ctx context.Context, filter repository.BackupFilter) (int, error) {
	count, err := s.backupRepo.Count(ctx, filter)
	if err != nil {
		return 0, domain.NewStoreError("failed to count backups", err)
	}
	return count, nil
}

func (s *BackupService) GetBackupStatistics(ctx context.Context) (*domain.BackupStatistics, error) {
	stats, err := s.backupRepo.Statistics(ctx)
	if err != nil {
		return nil, domain.NewStoreError("failed to compute backup statistics", err)
	}
	return stats, nil
}

func (s *BackupService) GetBackupConfig() domain.BackupConfig {
	return s.config
}

// GetBackupMetadata retrieves a backup by ID
func (s *BackupService) GetBackupMetadata(ctx context.Context, id string) (*domain.Backup, error) {
	backup, err := s.backupRepo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapStore("failed to load backup", err)
	}
	return backup, nil
}

// GetBackupChain retrieves the chain for a backup, baseline first
func (s *BackupService) GetBackupChain(ctx context.Context, backupID string) ([]*domain.Backup, error) {
	chain, err := s.backupRepo.FindChain(ctx, backupID)
	if err != nil {
		return nil, wrapStore("failed to load backup chain", err)
	}
	return chain, nil
}
