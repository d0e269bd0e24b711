// Package repository provides persistence for resource owner accounts
// used by the password grant. Client and token records live in the
// Redis-backed token store; only user accounts come from the platform
// database.
package repository

import (
	"context"
	"errors"

	"github.com/taskforge-app/token-service/internal/models"
)

// ErrUserNotFound is returned when no account matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// UserRepository defines resource owner account lookups.
type UserRepository interface {
	// GetByUsername retrieves an account by login name.
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// GetBySubject retrieves an account by its stable subject identity.
	GetBySubject(ctx context.Context, subject string) (*models.User, error)

	// Create inserts a new account record.
	Create(ctx context.Context, user *models.User) error
}
