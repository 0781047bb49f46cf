package service

import (
	"context"
	"fmt"

	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/repository"
	"github.com/martijn/vaultkeeper/internal/metrics"
	"github.com/sirupsen/logrus"
)

// TargetOpener opens the data store of a named scratch database. The
// returned func releases it.
type TargetOpener func(name string) (repository.DataStore, func() error, error)

type RestoreService struct {
	restoreRepo repository.RestoreRepository
	backupRepo  repository.BackupRepository
	backups     *BackupService
	live        repository.DataStore
	openTarget  TargetOpener
	operations  *OperationService
	metrics     *metrics.Metrics
	log         logrus.FieldLogger
}

func NewRestoreService(
	restoreRepo repository.RestoreRepository,
	backupRepo repository.BackupRepository,
	backups *BackupService,
	live repository.DataStore,
	openTarget TargetOpener,
	operations *OperationService,
	m *metrics.Metrics,
	log logrus.FieldLogger,
) *RestoreService {
	return &RestoreService{
		restoreRepo: restoreRepo,
		backupRepo:  backupRepo,
		backups:     backups,
		live:        live,
		openTarget:  openTarget,
		operations:  operations,
		metrics:     m,
		log:         log,
	}
}

// RestoreFromBackup applies a completed backup to the live store or to a
// scratch database. The request is validated before any store access and
// the restore record follows requested, pre_backup, validated, applying
// and then completed or failed.
func (s *RestoreService) RestoreFromBackup(ctx context.Context, req *domain.RestoreRequest) (*domain.Restore, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.TargetDatabase != "" && s.openTarget == nil {
		return nil, domain.NewValidationError("invalid restore request", map[string]string{
			"targetDatabase": "restoring into a scratch database is not available",
		})
	}

	backup, err := s.backupRepo.FindByID(ctx, req.BackupID)
	if err != nil {
		return nil, wrapStore("failed to load backup", err)
	}
	if !backup.IsCompleted() {
		return nil, domain.NewNotFoundError("backup %s is not completed (status %s)", backup.ID, backup.Status)
	}
	if !req.RestoreType.CanRestore(backup.Type) {
		return nil, domain.NewValidationError("invalid restore request", map[string]string{
			"restoreType": fmt.Sprintf("a %s backup cannot feed a %s restore", backup.Type, req.RestoreType),
		})
	}

	restore := domain.NewRestore(req)
	logger := s.log.WithFields(logrus.Fields{
		"backup_id":    backup.ID,
		"restore_type": req.RestoreType,
		"target":       restore.Target,
	})

	op, err := s.operations.Begin(ctx, fmt.Sprintf("restore %s", req.RestoreType), domain.OperationTypeRestore, map[string]interface{}{
		"backup_id":       backup.ID,
		"restore_type":    string(req.RestoreType),
		"selected_tables": req.SelectedTables,
		"target":          restore.Target,
	})
	if err != nil {
		return nil, err
	}
	restore.OperationID = &op.ID

	if err := s.restoreRepo.Create(ctx, restore); err != nil {
		storeErr := domain.NewStoreError("failed to create restore record", err)
		s.operations.Finish(ctx, op, "", storeErr)
		return nil, storeErr
	}

	logger.Info("Starting restore")

	if req.CreateBackupBeforeRestore {
		if err := s.transition(ctx, restore, domain.RestoreStatusPreBackup); err != nil {
			return nil, s.fail(ctx, restore, op, nil, err)
		}
		pre, err := s.backups.CreateFullBackup(ctx, fmt.Sprintf("pre-restore backup for %s", backup.ID), nil)
		if err != nil {
			return nil, s.fail(ctx, restore, op, nil, err)
		}
		restore.PreRestoreBackupID = &pre.ID
		logger.WithField("pre_restore_backup_id", pre.ID).Info("Created pre-restore backup")
	}

	plan, err := s.plan(ctx, backup, req)
	if err != nil {
		return nil, s.fail(ctx, restore, op, nil, err)
	}
	if err := s.transition(ctx, restore, domain.RestoreStatusValidated); err != nil {
		return nil, s.fail(ctx, restore, op, nil, err)
	}

	store, release, err := s.target(req.TargetDatabase)
	if err != nil {
		return nil, s.fail(ctx, restore, op, nil, err)
	}
	defer func() {
		if err := release(); err != nil {
			logger.WithError(err).Warn("Failed to close restore target")
		}
	}()

	if err := s.transition(ctx, restore, domain.RestoreStatusApplying); err != nil {
		return nil, s.fail(ctx, restore, op, nil, err)
	}

	result, err := store.Apply(ctx, *plan)
	if err != nil {
		var applied []string
		if result != nil {
			applied = result.Applied
		}
		return nil, s.fail(ctx, restore, op, applied, err)
	}

	restore.Complete(result.Applied)
	if err := s.restoreRepo.Update(ctx, restore); err != nil {
		return nil, s.fail(ctx, restore, op, result.Applied, err)
	}

	s.metrics.ObserveRestore(string(req.RestoreType), string(domain.RestoreStatusCompleted))
	logger.WithFields(logrus.Fields{
		"applied": len(result.Applied),
		"skipped": result.Skipped,
	}).Info("Restore completed")

	s.operations.Finish(ctx, op, fmt.Sprintf("restored %d table(s) from %s", len(result.Applied), backup.ID), nil)
	return restore, nil
}

// plan loads the artifact chain and checks the selected tables against it
func (s *RestoreService) plan(ctx context.Context, backup *domain.Backup, req *domain.RestoreRequest) (*domain.RestorePlan, error) {
	chain := []*domain.Backup{backup}
	if backup.FromBackupID != nil {
		var err error
		if chain, err = s.backups.GetBackupChain(ctx, backup.ID); err != nil {
			return nil, err
		}
	}

	plan := &domain.RestorePlan{RestoreType: req.RestoreType, Tables: req.SelectedTables}
	available := map[string]bool{}

	for _, link := range chain {
		if !link.IsCompleted() {
			return nil, invalidArtifact(fmt.Sprintf("backup %s in the chain of %s is not completed", link.ID, backup.ID), nil)
		}
		snapshot, err := s.backups.LoadSnapshot(ctx, link, req.ValidateBeforeRestore)
		if err != nil {
			return nil, err
		}
		for _, name := range snapshot.TableNames() {
			available[name] = true
		}
		plan.Chain = append(plan.Chain, snapshot)
	}

	for _, table := range req.SelectedTables {
		if !available[table] {
			return nil, domain.NewValidationError("invalid restore request", map[string]string{
				"selectedTables": fmt.Sprintf("table %s is not in backup %s", table, backup.ID),
			})
		}
	}

	return plan, nil
}

func (s *RestoreService) target(name string) (repository.DataStore, func() error, error) {
	if name == "" {
		return s.live, func() error { return nil }, nil
	}
	store, release, err := s.openTarget(name)
	if err != nil {
		return nil, nil, domain.NewStoreError(fmt.Sprintf("failed to open restore target %s", name), err)
	}
	return store, release, nil
}

func (s *RestoreService) transition(ctx context.Context, restore *domain.Restore, status domain.RestoreStatus) error {
	restore.Status = status
	if err := s.restoreRepo.Update(ctx, restore); err != nil {
		return domain.NewStoreError("failed to update restore record", err)
	}
	return nil
}

func (s *RestoreService) fail(ctx context.Context, restore *domain.Restore, op *domain.Operation, applied []string, cause error) error {
	cause = wrapStore("restore failed", cause)

	restore.Fail(applied, cause.Error())
	if err := s.restoreRepo.Update(context.WithoutCancel(ctx), restore); err != nil {
		s.log.WithError(err).WithField("restore_id", restore.ID).Error("Failed to mark restore failed")
	}

	s.metrics.ObserveRestore(string(restore.RestoreType), string(domain.RestoreStatusFailed))
	s.log.WithError(cause).WithFields(logrus.Fields{
		"backup_id": restore.BackupID,
		"applied":   applied,
	}).Error("Restore failed")

	s.operations.Finish(ctx, op, "", cause)
	return cause
}

// GetRestore retrieves a restore by ID
func (s *RestoreService) GetRestore(ctx context.Context, id int64) (*domain.Restore, error) {
	restore, err := s.restoreRepo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapStore("failed to load restore", err)
	}
	return restore, nil
}

// ListRestores lists restores with filtering
func (s *RestoreService) ListRestores(ctx context.Context, filter repository.RestoreFilter) ([]*domain.Restore, error) {
	restores, err := s.restoreRepo.List(ctx, filter)
	if err != nil {
		return nil, domain.NewStoreError("failed to list restores", err)
	}
	return restores, nil
}

// CountRestores counts restores with filtering
func (s *RestoreService) CountRestores(ctx context.Context, filter repository.RestoreFilter) (int, error) {
	count, err := s.restoreRepo.Count(ctx, filter)
	if err != nil {
		return 0, domain.NewStoreError("failed to count restores", err)
	}
	return count, nil
}
