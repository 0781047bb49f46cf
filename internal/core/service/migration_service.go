package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/repository"
	"github.com/martijn/vaultkeeper/internal/metrics"
	"github.com/sirupsen/logrus"
)

// MigrationService runs the schema migration definitions against the ledger
type MigrationService struct {
	ledger      repository.MigrationRepository
	definitions []*domain.Migration
	operations  *OperationService
	metrics     *metrics.Metrics
	log         logrus.FieldLogger
}

// NewMigrationService expects definitions sorted by numeric version,
// as returned by the migrations loader
func NewMigrationService(
	ledger repository.MigrationRepository,
	definitions []*domain.Migration,
	operations *OperationService,
	m *metrics.Metrics,
	log logrus.FieldLogger,
) *MigrationService {
	return &MigrationService{
		ledger:      ledger,
		definitions: definitions,
		operations:  operations,
		metrics:     m,
		log:         log,
	}
}

func (s *MigrationService) Initialize(ctx context.Context) error {
	if err := s.ledger.Initialize(ctx); err != nil {
		return domain.NewStoreError("failed to initialize migration ledger", err)
	}
	return nil
}

func (s *MigrationService) definition(version string) *domain.Migration {
	for _, m := range s.definitions {
		if m.Version == version {
			return m
		}
	}
	return nil
}

// ledgerIndex initializes the ledger and indexes its rows by version
func (s *MigrationService) ledgerIndex(ctx context.Context) ([]*domain.MigrationRecord, map[string]*domain.MigrationRecord, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, nil, err
	}

	records, err := s.ledger.List(ctx)
	if err != nil {
		return nil, nil, domain.NewStoreError("failed to read migration ledger", err)
	}

	byVersion := make(map[string]*domain.MigrationRecord, len(records))
	for _, r := range records {
		byVersion[r.Version] = r
	}
	return records, byVersion, nil
}

// GetMigrationStatus reports every known definition against the ledger
func (s *MigrationService) GetMigrationStatus(ctx context.Context) (*domain.MigrationStatusReport, error) {
	records, byVersion, err := s.ledgerIndex(ctx)
	if err != nil {
		return nil, err
	}

	report := &domain.MigrationStatusReport{
		Migrations: make([]domain.MigrationState, 0, len(s.definitions)),
		Missing:    []domain.MigrationRecord{},
	}

	for _, def := range s.definitions {
		state := domain.MigrationState{Version: def.Version, Name: def.Name}
		if record, ok := byVersion[def.Version]; ok {
			status := record.Status
			state.Status = &status
			state.Applied = record.IsApplied()
			state.AppliedAt = record.AppliedAt
			state.Error = record.Error
			state.Drifted = record.IsApplied() && record.Checksum != def.Checksum
		}
		report.Migrations = append(report.Migrations, state)
	}

	for _, record := range records {
		if s.definition(record.Version) == nil {
			report.Missing = append(report.Missing, *record)
		}
	}

	return report, nil
}

func (s *MigrationService) pending(ctx context.Context) ([]*domain.Migration, error) {
	_, byVersion, err := s.ledgerIndex(ctx)
	if err != nil {
		return nil, err
	}

	var pending []*domain.Migration
	for _, def := range s.definitions {
		if record, ok := byVersion[def.Version]; ok && record.IsApplied() {
			continue
		}
		pending = append(pending, def)
	}
	return pending, nil
}

// RunPendingMigrations applies every pending migration in version order and
// stops at the first failure. It returns the versions applied by this call.
func (s *MigrationService) RunPendingMigrations(ctx context.Context) ([]string, error) {
	pending, err := s.pending(ctx)
	if err != nil {
		return nil, err
	}

	applied := []string{}
	if len(pending) == 0 {
		s.log.Debug("No pending migrations")
		return applied, nil
	}

	versions := make([]string, len(pending))
	for i, m := range pending {
		versions[i] = m.Version
	}

	op, err := s.operations.Begin(ctx, "migrate up", domain.OperationTypeMigrate, map[string]interface{}{
		"versions": versions,
	})
	if err != nil {
		return nil, err
	}

	for _, m := range pending {
		logger := s.log.WithFields(logrus.Fields{"version": m.Version, "name": m.Name})
		start := time.Now()

		ok, err := s.ledger.Apply(ctx, m)
		if err != nil {
			s.metrics.ObserveMigration("up", "failed")
			if recErr := s.ledger.RecordFailure(context.WithoutCancel(ctx), m, err); recErr != nil {
				logger.WithError(recErr).Error("Failed to record migration failure")
			}
			logger.WithError(err).Error("Migration failed")

			migErr := domain.NewMigrationError(m.Version, err)
			s.operations.Finish(ctx, op, "", migErr)
			return applied, migErr
		}

		if !ok {
			logger.Info("Migration already applied by another runner")
			continue
		}

		s.metrics.ObserveMigration("up", "applied")
		logger.WithField("duration_ms", time.Since(start).Milliseconds()).Info("Applied migration")
		applied = append(applied, m.Version)
	}

	s.operations.Finish(ctx, op, fmt.Sprintf("applied %s", strings.Join(applied, ", ")), nil)
	return applied, nil
}

// RollbackMigration runs the down step of an applied migration
func (s *MigrationService) RollbackMigration(ctx context.Context, version string) error {
	_, byVersion, err := s.ledgerIndex(ctx)
	if err != nil {
		return err
	}

	record, ok := byVersion[version]
	if !ok || !record.IsApplied() {
		return domain.NewNotFoundError("migration %s is not applied", version)
	}

	def := s.definition(version)
	if def == nil {
		return domain.NewNotFoundError("migration %s has no definition", version)
	}
	if !def.HasDown() {
		return domain.NewNotFoundError("migration %s has no rollback step", version)
	}

	op, err := s.operations.Begin(ctx, "migrate rollback "+version, domain.OperationTypeRollback, map[string]interface{}{
		"version": version,
	})
	if err != nil {
		return err
	}

	logger := s.log.WithFields(logrus.Fields{"version": def.Version, "name": def.Name})

	ok, err = s.ledger.Rollback(ctx, def)
	if err != nil {
		s.metrics.ObserveMigration("down", "failed")
		logger.WithError(err).Error("Rollback failed")

		migErr := domain.NewMigrationError(version, err)
		s.operations.Finish(ctx, op, "", migErr)
		return migErr
	}
	if !ok {
		// Another runner rolled it back between the read and the update
		notFound := domain.NewNotFoundError("migration %s is not applied", version)
		s.operations.Finish(ctx, op, "", notFound)
		return notFound
	}

	s.metrics.ObserveMigration("down", "rolled_back")
	logger.Info("Rolled back migration")
	s.operations.Finish(ctx, op, "rolled back "+version, nil)
	return nil
}

func (s *MigrationService) GetStatistics(ctx context.Context) (*domain.MigrationStatistics, error) {
	report, err := s.GetMigrationStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := &domain.MigrationStatistics{
		Total:   len(report.Migrations),
		Missing: len(report.Missing),
	}

	for _, m := range report.Migrations {
		if m.Drifted {
			stats.Drifted++
		}
		if m.Applied {
			stats.Applied++
			if m.AppliedAt != nil && (stats.LastAppliedAt == nil || !m.AppliedAt.Before(*stats.LastAppliedAt)) {
				version := m.Version
				stats.LastAppliedVersion = &version
				stats.LastAppliedAt = m.AppliedAt
			}
			continue
		}

		stats.Pending++
		if m.Status != nil {
			switch *m.Status {
			case domain.MigrationStatusFailed:
				stats.Failed++
			case domain.MigrationStatusRolledBack:
				stats.RolledBack++
			}
		}
	}

	return stats, nil
}
