package repository

import (
	"context"

	"github.com/martijn/vaultkeeper/internal/api/util"
	"github.com/martijn/vaultkeeper/internal/core/domain"
)

// OperationFilter embeds ListFilter for generic query/order/pagination
type OperationFilter struct {
	util.ListFilter
}

type OperationRepository interface {
	Create(ctx context.Context, operation *domain.Operation) error
	FindByID(ctx context.Context, id int64) (*domain.Operation, error)
	FindByCommandID(ctx context.Context, commandID string) (*domain.Operation, error)
	Update(ctx context.Context, operation *domain.Operation) error
	List(ctx context.Context, filter OperationFilter) ([]*domain.Operation, error)
	Count(ctx context.Context, filter OperationFilter) (int, error)
}
