package scylla

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"blackjack-auth/internal/models"
	"blackjack-auth/internal/util"
)

// AccountRepository is the persistence surface for user and admin accounts.
type AccountRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUserAttempts(ctx context.Context, email string, attempts int) error
	SetUserLocked(ctx context.Context, email string, locked bool, attempts int) error

	GetAdminByNameHash(ctx context.Context, nameHash string) (*models.Admin, error)
	SetAdminLocked(ctx context.Context, nameHash string, locked bool) error
}

type ScyllaAccountRepository struct {
	client *ScyllaClient
}

func NewAccountRepository(client *ScyllaClient) *ScyllaAccountRepository {
	return &ScyllaAccountRepository{client: client}
}

func (r *ScyllaAccountRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}

	query := r.client.Prepared.GetUser.Bind(email).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&user.Email, &user.Name, &user.Surname, &user.PhoneEncrypted, &user.PhoneKeyID,
		&user.PasswordHash, &user.SecPasswordHash, &user.Role, &user.TwoFactorMethod,
		&user.LoginAttempts, &user.Locked)

	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		util.Error("Failed to get user by email",
			zap.String("email", email),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

func (r *ScyllaAccountRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := r.client.Prepared.CreateUser.Bind(
		user.Email, user.Name, user.Surname, user.PhoneEncrypted, user.PhoneKeyID,
		user.PasswordHash, user.SecPasswordHash, user.Role, user.TwoFactorMethod,
		user.LoginAttempts, user.Locked,
	).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to create user",
			zap.String("email", user.Email),
			zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	util.Info("User created", zap.String("email", user.Email))
	return nil
}

func (r *ScyllaAccountRepository) UpdateUserAttempts(ctx context.Context, email string, attempts int) error {
	query := r.client.Prepared.UpdateUserAttempts.Bind(attempts, email).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to update login attempts",
			zap.String("email", email),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return fmt.Errorf("failed to update login attempts: %w", err)
	}

	return nil
}

func (r *ScyllaAccountRepository) SetUserLocked(ctx context.Context, email string, locked bool, attempts int) error {
	query := r.client.Prepared.SetUserLocked.Bind(locked, attempts, email).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to set user lock state",
			zap.String("email", email),
			zap.Bool("locked", locked),
			zap.Error(err))
		return fmt.Errorf("failed to set user lock state: %w", err)
	}

	util.Info("User lock state updated",
		zap.String("email", email),
		zap.Bool("locked", locked))
	return nil
}

func (r *ScyllaAccountRepository) GetAdminByNameHash(ctx context.Context, nameHash string) (*models.Admin, error) {
	admin := &models.Admin{}

	query := r.client.Prepared.GetAdmin.Bind(nameHash).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&admin.NameHash, &admin.Name, &admin.Surname, &admin.Email,
		&admin.PasswordHash, &admin.Role, &admin.Locked)

	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		util.Error("Failed to get admin",
			zap.String("name_hash", nameHash),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}

	return admin, nil
}

func (r *ScyllaAccountRepository) SetAdminLocked(ctx context.Context, nameHash string, locked bool) error {
	query := r.client.Prepared.SetAdminLocked.Bind(locked, nameHash).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to set admin lock state",
			zap.String("name_hash", nameHash),
			zap.Bool("locked", locked),
			zap.Error(err))
		return fmt.Errorf("failed to set admin lock state: %w", err)
	}

	util.Info("Admin lock state updated",
		zap.String("name_hash", nameHash),
		zap.Bool("locked", locked))
	return nil
}
