package repository

import (
	"context"

	"github.com/martijn/vaultkeeper/internal/api/util"
	"github.com/martijn/vaultkeeper/internal/core/domain"
)

type RestoreFilter struct {
	util.ListFilter
}

// RestoreRepository is the restore audit trail. Update persists every
// status transition, so a crashed restore keeps its last state.
type RestoreRepository interface {
	Create(ctx context.Context, restore *domain.Restore) error
	FindByID(ctx context.Context, id int64) (*domain.Restore, error)
	Update(ctx context.Context, restore *domain.Restore) error
	List(ctx context.Context, filter RestoreFilter) ([]*domain.Restore, error)
	Count(ctx context.Context, filter RestoreFilter) (int, error)
}
