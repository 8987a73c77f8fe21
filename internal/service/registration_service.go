package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"blackjack-auth/internal/config"
	"blackjack-auth/internal/encryption"
	"blackjack-auth/internal/events"
	"blackjack-auth/internal/hashing"
	"blackjack-auth/internal/models"
	"blackjack-auth/internal/notifier"
	"blackjack-auth/internal/repository/scylla"
	"blackjack-auth/internal/token"
	"blackjack-auth/internal/util"
)

// RegisterRequest is the sign-up payload. SecPassword is the secondary
// password used for sensitive account operations.
type RegisterRequest struct {
	Email           string `json:"email"`
	Name            string `json:"name"`
	Surname         string `json:"surname"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	SecPassword     string `json:"sec_password"`
	TwoFactorMethod string `json:"two_fa_method"`
}

// RegistrationService stages new accounts and promotes them once the email
// confirmation link is followed.
type RegistrationService struct {
	accountRepo scylla.AccountRepository
	pendingRepo scylla.PendingRepository
	logRepo     scylla.LoginLogRepository
	signer      *token.Signer
	encryption  *encryption.Manager
	notifier    notifier.Notifier
	recorder    *events.Recorder
	confirmBase string
}

func NewRegistrationService(
	accountRepo scylla.AccountRepository,
	pendingRepo scylla.PendingRepository,
	logRepo scylla.LoginLogRepository,
	signer *token.Signer,
	enc *encryption.Manager,
	notif notifier.Notifier,
	recorder *events.Recorder,
	cfg *config.Config,
) *RegistrationService {
	return &RegistrationService{
		accountRepo: accountRepo,
		pendingRepo: pendingRepo,
		logRepo:     logRepo,
		signer:      signer,
		encryption:  enc,
		notifier:    notif,
		recorder:    recorder,
		confirmBase: cfg.SMTP.ConfirmBaseURL,
	}
}

func (s *RegistrationService) validate(req *RegisterRequest) error {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	switch {
	case req.Email == "" || !strings.Contains(req.Email, "@"):
		return NewValidationError("email", "must be a valid address")
	case req.Name == "":
		return NewValidationError("name", "must not be empty")
	case len(req.Password) < 8:
		return NewValidationError("password", "must be at least 8 characters")
	}
	if req.TwoFactorMethod == "" {
		req.TwoFactorMethod = models.TwoFactorEmail
	}
	if req.TwoFactorMethod != models.TwoFactorEmail && req.TwoFactorMethod != models.TwoFactorNone {
		return NewValidationError("two_fa_method", "unknown method")
	}
	return nil
}

// Register stages the account and emails a confirmation link. The account
// cannot sign in until the link is followed.
func (s *RegistrationService) Register(ctx context.Context, req RegisterRequest) error {
	if err := s.validate(&req); err != nil {
		return err
	}

	if _, err := s.accountRepo.GetUserByEmail(ctx, req.Email); err == nil {
		return ErrAlreadyExists
	} else if !errors.Is(err, scylla.ErrNotFound) {
		return err
	}

	passwordHash, err := hashing.HashPassword(req.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	secHash := ""
	if req.SecPassword != "" {
		if secHash, err = hashing.HashPassword(req.SecPassword); err != nil {
			return fmt.Errorf("failed to hash secondary password: %w", err)
		}
	}

	user := models.User{
		Email:           req.Email,
		Name:            req.Name,
		Surname:         req.Surname,
		PasswordHash:    passwordHash,
		SecPasswordHash: secHash,
		Role:            models.RoleUser,
		TwoFactorMethod: req.TwoFactorMethod,
	}

	if req.Phone != "" {
		encrypted, err := s.encryption.EncryptField(ctx, req.Phone)
		if err != nil {
			return fmt.Errorf("failed to encrypt phone: %w", err)
		}
		envelope, err := encrypted.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal phone envelope: %w", err)
		}
		user.PhoneEncrypted = envelope
		user.PhoneKeyID = encrypted.KeyID
	}

	reg := &models.PendingRegistration{
		User: user,
		Log:  models.LoginLog{OwnerKey: user.Email},
	}
	if err := s.pendingRepo.CreatePending(ctx, reg); err != nil {
		return err
	}

	tok := s.signer.Issue(user.Email)
	link := fmt.Sprintf("%s/confirm/%s", strings.TrimRight(s.confirmBase, "/"), tok)
	body := fmt.Sprintf("Welcome! Confirm your account by visiting:\n\n%s\n\nThe link expires soon.", link)
	if err := s.notifier.Send(ctx, user.Email, "Confirm your account", body); err != nil {
		return err
	}

	util.Info("Registration staged", zap.String("email", user.Email))
	return nil
}

// IssueToken mints a fresh confirmation token for the email.
func (s *RegistrationService) IssueToken(email string) string {
	return s.signer.Issue(strings.ToLower(strings.TrimSpace(email)))
}

// Confirm promotes a staged account to a permanent one. Re-confirming an
// already promoted account succeeds without side effects.
func (s *RegistrationService) Confirm(ctx context.Context, tok string) error {
	email, err := s.signer.Resolve(tok)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpired):
			return ErrTokenExpired
		default:
			return ErrTokenInvalid
		}
	}

	reg, err := s.pendingRepo.GetPending(ctx, email)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			// Already promoted, or never registered.
			if _, lookupErr := s.accountRepo.GetUserByEmail(ctx, email); lookupErr == nil {
				return nil
			} else if errors.Is(lookupErr, scylla.ErrNotFound) {
				return ErrNoSuchAccount
			} else {
				return lookupErr
			}
		}
		return err
	}

	// A crash between CreateUser and DeletePending leaves both rows. The
	// permanent account wins; re-running the promotion would overwrite the
	// live login history with the stale staged one.
	if _, err := s.accountRepo.GetUserByEmail(ctx, email); err == nil {
		return s.pendingRepo.DeletePending(ctx, email)
	} else if !errors.Is(err, scylla.ErrNotFound) {
		return err
	}

	if err := s.accountRepo.CreateUser(ctx, &reg.User); err != nil {
		return err
	}
	if err := s.logRepo.PutLog(ctx, models.RoleUser, &reg.Log); err != nil {
		return err
	}
	if err := s.pendingRepo.DeletePending(ctx, email); err != nil {
		return err
	}

	s.recorder.Record(email, models.RoleUser, models.EventRegistrationConfirm, "")
	util.Info("Registration confirmed", zap.String("email", email))
	return nil
}
