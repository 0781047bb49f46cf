package repository

import (
	"context"

	"github.com/martijn/vaultkeeper/internal/core/domain"
)

// ClientRepository stores OAuth clients. Secrets arrive already hashed.
type ClientRepository interface {
	Create(ctx context.Context, client *domain.Client) error
	FindByID(ctx context.Context, id string) (*domain.Client, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*domain.Client, error)
}
