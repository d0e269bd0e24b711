package auth

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/taskforge-app/token-service/internal/redis"
	"github.com/taskforge-app/token-service/internal/repository"
)

// ErrAuthenticationFailed is returned for any credential verification
// failure. Unknown username, wrong password, and inactive account are
// deliberately indistinguishable.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Authenticator verifies resource owner credentials for the password
// grant and returns the stable subject identity to bind tokens to.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (string, error)
}

// RepositoryAuthenticator verifies credentials against the user
// repository backing the TaskForge account database.
type RepositoryAuthenticator struct {
	users  repository.UserRepository
	logger *logrus.Logger
}

// NewRepositoryAuthenticator creates an authenticator over a user
// repository.
func NewRepositoryAuthenticator(users repository.UserRepository, logger *logrus.Logger) *RepositoryAuthenticator {
	return &RepositoryAuthenticator{users: users, logger: logger}
}

// Authenticate looks up the user and compares the bcrypt password hash.
func (a *RepositoryAuthenticator) Authenticate(ctx context.Context, username, password string) (string, error) {
	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			a.logger.WithError(err).Error("User lookup failed")
		}
		return "", ErrAuthenticationFailed
	}

	if !user.IsActive {
		return "", ErrAuthenticationFailed
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", ErrAuthenticationFailed
	}

	return user.Subject, nil
}

// StoreAuthenticator verifies credentials against user records kept in
// the token store. It backs local development and tests where no
// account database is configured.
type StoreAuthenticator struct {
	store  redis.Store
	logger *logrus.Logger
}

// NewStoreAuthenticator creates an authenticator over the token store.
func NewStoreAuthenticator(store redis.Store, logger *logrus.Logger) *StoreAuthenticator {
	return &StoreAuthenticator{store: store, logger: logger}
}

// Authenticate looks up the user record and compares the bcrypt
// password hash.
func (a *StoreAuthenticator) Authenticate(ctx context.Context, username, password string) (string, error) {
	user, err := a.store.GetUser(ctx, username)
	if err != nil {
		if !errors.Is(err, redis.ErrNotFound) {
			a.logger.WithError(err).Error("User lookup failed")
		}
		return "", ErrAuthenticationFailed
	}

	if !user.IsActive {
		return "", ErrAuthenticationFailed
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", ErrAuthenticationFailed
	}

	return user.Subject, nil
}

// HashPassword returns the bcrypt hash for a new user record.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// compile-time interface checks
var (
	_ Authenticator = (*RepositoryAuthenticator)(nil)
	_ Authenticator = (*StoreAuthenticator)(nil)
	_ Service       = (*OAuth2Service)(nil)
)
