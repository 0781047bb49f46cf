package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/repository"
)

const clientColumns = `id, secret, label, scopes, created_at, updated_at`

type clientRepository struct {
	db *DB
}

func NewClientRepository(db *DB) repository.ClientRepository {
	return &clientRepository{db: db}
}

// clientRow keeps scopes as the stored JSON array
type clientRow struct {
	ID        string    `db:"id"`
	Secret    string    `db:"secret"`
	Label     string    `db:"label"`
	Scopes    string    `db:"scopes"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row clientRow) toDomain() (*domain.Client, error) {
	scopes, err := unmarshalStrings(row.Scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal scopes of client %s: %w", row.ID, err)
	}
	return &domain.Client{
		ID:        row.ID,
		Secret:    row.Secret,
		Label:     row.Label,
		Scopes:    scopes,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (r *clientRepository) Create(ctx context.Context, client *domain.Client) error {
	scopes, err := marshalStrings(client.Scopes)
	if err != nil {
		return fmt.Errorf("failed to marshal scopes: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO client (`+clientColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		client.ID, client.Secret, client.Label, scopes, client.CreatedAt, client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

func (r *clientRepository) FindByID(ctx context.Context, id string) (*domain.Client, error) {
	var row clientRow
	err := r.db.GetContext(ctx, &row, `SELECT `+clientColumns+` FROM client WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("client not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find client: %w", err)
	}
	return row.toDomain()
}

func (r *clientRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM client WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.NewNotFoundError("client not found: %s", id)
	}
	return nil
}

// List returns clients oldest first
func (r *clientRepository) List(ctx context.Context) ([]*domain.Client, error) {
	var rows []clientRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+clientColumns+` FROM client ORDER BY created_at, id`); err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	clients := make([]*domain.Client, 0, len(rows))
	for _, row := range rows {
		client, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, nil
}
