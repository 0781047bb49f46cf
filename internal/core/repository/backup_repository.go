package repository

import (
	"context"

	"github.com/martijn/vaultkeeper/internal/core/domain"
)

type BackupFilter struct {
	Type   *domain.BackupType
	Status *domain.BackupStatus
	Limit  int
	Offset int
}

type BackupRepository interface {
	Create(ctx context.Context, backup *domain.Backup) error
	FindByID(ctx context.Context, id string) (*domain.Backup, error)
	Update(ctx context.Context, backup *domain.Backup) error
	List(ctx context.Context, filter BackupFilter) ([]*domain.Backup, error)
	Count(ctx context.Context, filter BackupFilter) (int, error)

	// Find the most recent completed backup of a type, nil when there is none
	FindLatestCompleted(ctx context.Context, backupType domain.BackupType) (*domain.Backup, error)

	// Find all backups in the chain (baseline first)
	FindChain(ctx context.Context, backupID string) ([]*domain.Backup, error)

	Statistics(ctx context.Context) (*domain.BackupStatistics, error)
}
