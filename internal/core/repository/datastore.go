package repository

import (
	"context"

	"github.com/martijn/vaultkeeper/internal/core/domain"
)

// DataStore captures and restores the application tables.
// Apply returns the partial result alongside any error.
type DataStore interface {
	Snapshot(ctx context.Context, opts domain.SnapshotOptions) (*domain.Snapshot, error)
	Apply(ctx context.Context, plan domain.RestorePlan) (*domain.RestoreResult, error)
}
