package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"blackjack-auth/internal/config"
	"blackjack-auth/internal/events"
	"blackjack-auth/internal/models"
	"blackjack-auth/internal/notifier"
	"blackjack-auth/internal/repository/scylla"
	"blackjack-auth/internal/util"
)

// LockoutService enforces the two lockout policies: users get a counter with
// a threshold, admins get locked on the first failure of any kind.
type LockoutService struct {
	accountRepo scylla.AccountRepository
	notifier    notifier.Notifier
	recorder    *events.Recorder
	maxAttempts int
}

func NewLockoutService(
	accountRepo scylla.AccountRepository,
	notif notifier.Notifier,
	recorder *events.Recorder,
	cfg *config.Config,
) *LockoutService {
	return &LockoutService{
		accountRepo: accountRepo,
		notifier:    notif,
		recorder:    recorder,
		maxAttempts: cfg.Security.MaxLoginAttempts,
	}
}

// RegisterUserFailure bumps the failure counter and locks the account when
// the threshold is reached. Returns true when this failure locked the account.
func (s *LockoutService) RegisterUserFailure(ctx context.Context, user *models.User) (bool, error) {
	attempts := user.LoginAttempts + 1

	if attempts >= s.maxAttempts {
		if err := s.accountRepo.SetUserLocked(ctx, user.Email, true, attempts); err != nil {
			return false, err
		}
		user.LoginAttempts = attempts
		user.Locked = true

		s.recorder.Record(user.Email, models.RoleUser, models.EventAccountLocked,
			fmt.Sprintf("locked after %d failed attempts", attempts))
		util.Warn("User account locked",
			zap.String("email", user.Email),
			zap.Int("attempts", attempts))

		body := fmt.Sprintf(
			"Your account has been locked after %d failed sign-in attempts.\n"+
				"Contact support to restore access.", attempts)
		if err := s.notifier.Send(ctx, user.Email, "Account locked", body); err != nil {
			util.Error("Failed to notify locked user",
				zap.String("email", user.Email),
				zap.Error(err))
		}
		return true, nil
	}

	if err := s.accountRepo.UpdateUserAttempts(ctx, user.Email, attempts); err != nil {
		return false, err
	}
	user.LoginAttempts = attempts

	s.recorder.Record(user.Email, models.RoleUser, models.EventLoginFailure,
		fmt.Sprintf("failed attempt %d of %d", attempts, s.maxAttempts))
	return false, nil
}

// ResetUserAttempts clears the failure counter after a successful login.
func (s *LockoutService) ResetUserAttempts(ctx context.Context, user *models.User) error {
	if user.LoginAttempts == 0 {
		return nil
	}
	if err := s.accountRepo.UpdateUserAttempts(ctx, user.Email, 0); err != nil {
		return err
	}
	user.LoginAttempts = 0
	return nil
}

// LockAdmin locks the account immediately and emails the admin. A failed
// notification does not unwind the lock.
func (s *LockoutService) LockAdmin(ctx context.Context, admin *models.Admin, reason string) error {
	if err := s.accountRepo.SetAdminLocked(ctx, admin.NameHash, true); err != nil {
		return err
	}
	admin.Locked = true

	s.recorder.Record(admin.NameHash, models.RoleAdmin, models.EventAccountLocked, reason)
	util.Warn("Admin account locked",
		zap.String("name_hash", admin.NameHash),
		zap.String("reason", reason))

	body := fmt.Sprintf(
		"Your administrator account has been locked after a suspicious sign-in (%s).\n"+
			"Contact the operations team to restore access.", reason)
	if err := s.notifier.Send(ctx, admin.Email, "Account locked", body); err != nil {
		util.Error("Failed to notify locked admin",
			zap.String("name_hash", admin.NameHash),
			zap.Error(err))
	}

	return nil
}
