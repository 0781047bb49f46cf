package repository

import (
	"context"

	"github.com/martijn/vaultkeeper/internal/core/domain"
)

// MigrationRepository is the schema_migrations ledger
type MigrationRepository interface {
	// Initialize creates the ledger table if it does not exist
	Initialize(ctx context.Context) error
	List(ctx context.Context) ([]*domain.MigrationRecord, error)
	FindByVersion(ctx context.Context, version string) (*domain.MigrationRecord, error)

	// Apply claims the version and runs the up step in one transaction.
	// It returns false when another runner already applied the version.
	Apply(ctx context.Context, migration *domain.Migration) (bool, error)

	// RecordFailure marks the version as failed outside any transaction
	RecordFailure(ctx context.Context, migration *domain.Migration, cause error) error

	// Rollback marks the version rolled back and runs the down step in one
	// transaction. It returns false when the version is no longer applied.
	Rollback(ctx context.Context, migration *domain.Migration) (bool, error)
}
