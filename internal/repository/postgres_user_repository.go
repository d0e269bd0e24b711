package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskforge-app/token-service/internal/models"
)

// PoolGetter returns the current database connection pool. Indirection
// lets the repository follow pool replacement after a reconnect.
type PoolGetter func() *pgxpool.Pool

// PostgresUserRepository implements UserRepository over the TaskForge
// account database.
type PostgresUserRepository struct {
	getPool PoolGetter
}

// NewPostgresUserRepository creates a PostgreSQL user repository.
func NewPostgresUserRepository(poolGetter PoolGetter) *PostgresUserRepository {
	return &PostgresUserRepository{getPool: poolGetter}
}

// GetByUsername retrieves an account by login name.
func (r *PostgresUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT subject, username, password_hash, is_active, created_at
		FROM taskforge.users
		WHERE username = $1`

	return r.scanUser(ctx, query, username)
}

// GetBySubject retrieves an account by its stable subject identity.
func (r *PostgresUserRepository) GetBySubject(ctx context.Context, subject string) (*models.User, error) {
	query := `
		SELECT subject, username, password_hash, is_active, created_at
		FROM taskforge.users
		WHERE subject = $1`

	return r.scanUser(ctx, query, subject)
}

// Create inserts a new account record.
func (r *PostgresUserRepository) Create(ctx context.Context, user *models.User) error {
	pool := r.getPool()
	if pool == nil {
		return errors.New("database connection not available")
	}

	query := `
		INSERT INTO taskforge.users
		(subject, username, password_hash, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := pool.Exec(ctx, query,
		user.Subject,
		user.Username,
		user.PasswordHash,
		user.IsActive,
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *PostgresUserRepository) scanUser(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	pool := r.getPool()
	if pool == nil {
		return nil, errors.New("database connection not available")
	}

	var user models.User
	err := pool.QueryRow(ctx, query, args...).Scan(
		&user.Subject,
		&user.Username,
		&user.PasswordHash,
		&user.IsActive,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	return &user, nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
