package domain

import (
	"time"

	"github.com/google/uuid"
)

// ScopeAdmin grants access to every admin endpoint
const ScopeAdmin = "admin"

type Client struct {
	ID        string    `db:"id"`     // UUID
	Secret    string    `db:"secret"` // bcrypt hashed
	Label     string    `db:"label"`
	Scopes    []string  `db:"scopes"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func NewClient(label string, hashedSecret string, scopes []string) *Client {
	now := time.Now().UTC()
	return &Client{
		ID:        uuid.New().String(),
		Secret:    hashedSecret,
		Label:     label,
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func HasScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}
