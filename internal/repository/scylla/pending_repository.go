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

// PendingRepository stages registrations awaiting email confirmation.
type PendingRepository interface {
	GetPending(ctx context.Context, email string) (*models.PendingRegistration, error)
	CreatePending(ctx context.Context, reg *models.PendingRegistration) error
	DeletePending(ctx context.Context, email string) error
}

type ScyllaPendingRepository struct {
	client *ScyllaClient
}

func NewPendingRepository(client *ScyllaClient) *ScyllaPendingRepository {
	return &ScyllaPendingRepository{client: client}
}

func (r *ScyllaPendingRepository) GetPending(ctx context.Context, email string) (*models.PendingRegistration, error) {
	user := models.User{}

	query := r.client.Prepared.GetPending.Bind(email).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&user.Email, &user.Name, &user.Surname, &user.PhoneEncrypted, &user.PhoneKeyID,
		&user.PasswordHash, &user.SecPasswordHash, &user.Role, &user.TwoFactorMethod,
		&user.LoginAttempts, &user.Locked)

	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		util.Error("Failed to get pending registration",
			zap.String("email", email),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get pending registration: %w", err)
	}

	reg := &models.PendingRegistration{User: user}

	var key string
	var raw []string
	logQuery := r.client.Prepared.GetPendingLog.Bind(email).WithContext(ctx)
	if err := r.client.ScanWithRetry(logQuery, &key, &raw); err != nil {
		if !errors.Is(err, gocql.ErrNotFound) {
			return nil, fmt.Errorf("failed to get pending log: %w", err)
		}
		reg.Log = models.LoginLog{OwnerKey: email}
		return reg, nil
	}

	log, err := decodeLog(email, raw)
	if err != nil {
		return nil, err
	}
	reg.Log = *log

	return reg, nil
}

func (r *ScyllaPendingRepository) CreatePending(ctx context.Context, reg *models.PendingRegistration) error {
	user := reg.User
	query := r.client.Prepared.CreatePending.Bind(
		user.Email, user.Name, user.Surname, user.PhoneEncrypted, user.PhoneKeyID,
		user.PasswordHash, user.SecPasswordHash, user.Role, user.TwoFactorMethod,
		user.LoginAttempts, user.Locked,
	).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to create pending registration",
			zap.String("email", user.Email),
			zap.Error(err))
		return fmt.Errorf("failed to create pending registration: %w", err)
	}

	raw, err := encodeRecords(reg.Log.Records)
	if err != nil {
		return err
	}

	logQuery := r.client.Prepared.PutPendingLog.Bind(user.Email, raw).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(logQuery, 3); err != nil {
		util.Error("Failed to create pending log",
			zap.String("email", user.Email),
			zap.Error(err))
		return fmt.Errorf("failed to create pending log: %w", err)
	}

	util.Info("Pending registration staged", zap.String("email", user.Email))
	return nil
}

// DeletePending removes both the staged account and its staged log. Missing
// rows are not an error so confirmation stays idempotent.
func (r *ScyllaPendingRepository) DeletePending(ctx context.Context, email string) error {
	query := r.client.Prepared.DeletePending.Bind(email).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to delete pending registration",
			zap.String("email", email),
			zap.Error(err))
		return fmt.Errorf("failed to delete pending registration: %w", err)
	}

	logQuery := r.client.Prepared.DeletePendingLog.Bind(email).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(logQuery, 3); err != nil {
		util.Error("Failed to delete pending log",
			zap.String("email", email),
			zap.Error(err))
		return fmt.Errorf("failed to delete pending log: %w", err)
	}

	return nil
}
