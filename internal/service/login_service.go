package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"blackjack-auth/internal/events"
	"blackjack-auth/internal/fingerprint"
	"blackjack-auth/internal/hashing"
	"blackjack-auth/internal/models"
	"blackjack-auth/internal/repository/scylla"
	"blackjack-auth/internal/util"
)

// LoginRequest carries one sign-in attempt. Identifier is an email for users
// or a name for admins; the resolver decides which.
type LoginRequest struct {
	Identifier  string                  `json:"identifier"`
	Password    string                  `json:"password"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
}

// LoginResult is the outcome of a password-stage login. When
// TwoFactorRequired is set the session is not established yet; the caller
// must complete the challenge.
type LoginResult struct {
	Role              string `json:"role"`
	AccountKey        string `json:"account_key"`
	TwoFactorRequired bool   `json:"two_factor_required"`
	ChallengeID       string `json:"challenge_id,omitempty"`
}

// resolvedAccount is either a user or an admin, never both.
type resolvedAccount struct {
	role  string
	key   string
	user  *models.User
	admin *models.Admin
}

// LoginService runs the sign-in pipeline: resolve, lockout check, password,
// device fingerprint, optional two-factor, success bookkeeping.
type LoginService struct {
	accountRepo scylla.AccountRepository
	sessionLog  *SessionLogService
	lockout     *LockoutService
	twoFactor   *TwoFactorService
	recorder    *events.Recorder
}

func NewLoginService(
	accountRepo scylla.AccountRepository,
	sessionLog *SessionLogService,
	lockout *LockoutService,
	twoFactor *TwoFactorService,
	recorder *events.Recorder,
) *LoginService {
	return &LoginService{
		accountRepo: accountRepo,
		sessionLog:  sessionLog,
		lockout:     lockout,
		twoFactor:   twoFactor,
		recorder:    recorder,
	}
}

// resolveAccount tries the admin index first so an admin whose name collides
// with a user email still resolves as an admin.
func (s *LoginService) resolveAccount(ctx context.Context, identifier string) (*resolvedAccount, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, NewValidationError("identifier", "must not be empty")
	}

	nameHash := hashing.LookupKey(identifier)
	admin, err := s.accountRepo.GetAdminByNameHash(ctx, nameHash)
	if err == nil {
		return &resolvedAccount{role: models.RoleAdmin, key: admin.NameHash, admin: admin}, nil
	}
	if !errors.Is(err, scylla.ErrNotFound) {
		return nil, err
	}

	email := strings.ToLower(identifier)
	user, err := s.accountRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrNoSuchAccount
		}
		return nil, err
	}
	return &resolvedAccount{role: models.RoleUser, key: user.Email, user: user}, nil
}

// Login runs the password stage. It either establishes the session outright
// or parks it behind a two-factor challenge.
func (s *LoginService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	account, err := s.resolveAccount(ctx, req.Identifier)
	if err != nil {
		return nil, err
	}

	if account.locked() {
		s.recorder.Record(account.key, account.role, models.EventLoginFailure, "attempt on locked account")
		return nil, ErrAccountLocked
	}

	if err := s.verifyPassword(ctx, account, req.Password); err != nil {
		return nil, err
	}

	normalized := fingerprint.Normalize(req.Fingerprint)
	return s.evaluateFingerprint(ctx, account, normalized)
}

func (a *resolvedAccount) locked() bool {
	if a.role == models.RoleAdmin {
		return a.admin.Locked
	}
	return a.user.Locked
}

func (a *resolvedAccount) passwordHash() string {
	if a.role == models.RoleAdmin {
		return a.admin.PasswordHash
	}
	return a.user.PasswordHash
}

// verifyPassword checks the password and settles the failure counter. The
// counter resets here, not at the end of the pipeline: passing the password
// stage wipes the strikes even if a later two-factor step is never finished.
func (s *LoginService) verifyPassword(ctx context.Context, account *resolvedAccount, password string) error {
	if hashing.VerifyPassword(password, account.passwordHash()) {
		if account.role == models.RoleUser {
			return s.lockout.ResetUserAttempts(ctx, account.user)
		}
		return nil
	}

	if account.role == models.RoleAdmin {
		if err := s.lockout.LockAdmin(ctx, account.admin, "failed password attempt"); err != nil {
			return err
		}
		return ErrAccountLocked
	}

	locked, err := s.lockout.RegisterUserFailure(ctx, account.user)
	if err != nil {
		return err
	}
	if locked {
		return ErrAccountLocked
	}
	return ErrBadCredentials
}

// evaluateFingerprint compares the presented device against the most recent
// login. An account with no history trusts its first device.
func (s *LoginService) evaluateFingerprint(ctx context.Context, account *resolvedAccount, fp fingerprint.Normalized) (*LoginResult, error) {
	latest, err := s.sessionLog.Latest(ctx, account.role, account.key)
	if err != nil {
		return nil, err
	}

	known := latest == nil || latest.Fingerprint == nil || fingerprint.Equal(*latest.Fingerprint, fp)
	if known {
		return s.recordSuccess(ctx, account, &fp)
	}

	s.recorder.Record(account.key, account.role, models.EventFingerprintMismatch, "unrecognized device")

	if account.role == models.RoleAdmin {
		if err := s.lockout.LockAdmin(ctx, account.admin, "sign-in from unrecognized device"); err != nil {
			return nil, err
		}
		return nil, ErrAccountLocked
	}

	if account.user.TwoFactorMethod != models.TwoFactorEmail {
		// No second factor enrolled; the mismatch is recorded but the
		// login proceeds.
		util.Warn("Device mismatch without second factor",
			zap.String("email", account.user.Email))
		return s.recordSuccess(ctx, account, &fp)
	}

	challengeID, _, err := s.twoFactor.Issue(ctx, account.key, account.role, account.user.Email, &fp, false)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Role:              account.role,
		AccountKey:        account.key,
		TwoFactorRequired: true,
		ChallengeID:       challengeID,
	}, nil
}

// CompleteChallenge finishes a login that was parked behind a two-factor
// challenge.
func (s *LoginService) CompleteChallenge(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	ch, err := s.twoFactor.Verify(ctx, challengeID, code)
	if err != nil {
		return nil, err
	}

	account, err := s.loadByKey(ctx, ch.Role, ch.AccountKey)
	if err != nil {
		return nil, err
	}
	if account.locked() {
		return nil, ErrAccountLocked
	}

	return s.recordSuccess(ctx, account, ch.Fingerprint)
}

func (s *LoginService) loadByKey(ctx context.Context, role, key string) (*resolvedAccount, error) {
	switch role {
	case models.RoleAdmin:
		admin, err := s.accountRepo.GetAdminByNameHash(ctx, key)
		if err != nil {
			if errors.Is(err, scylla.ErrNotFound) {
				return nil, ErrNoSuchAccount
			}
			return nil, err
		}
		return &resolvedAccount{role: role, key: key, admin: admin}, nil
	default:
		user, err := s.accountRepo.GetUserByEmail(ctx, key)
		if err != nil {
			if errors.Is(err, scylla.ErrNotFound) {
				return nil, ErrNoSuchAccount
			}
			return nil, err
		}
		return &resolvedAccount{role: models.RoleUser, key: key, user: user}, nil
	}
}

func (s *LoginService) recordSuccess(ctx context.Context, account *resolvedAccount, fp *fingerprint.Normalized) (*LoginResult, error) {
	if err := s.sessionLog.Append(ctx, account.role, account.key, fp); err != nil {
		return nil, err
	}

	s.recorder.Record(account.key, account.role, models.EventLoginSuccess, "")
	util.Info("Login succeeded",
		zap.String("account_key", account.key),
		zap.String("role", account.role))

	return &LoginResult{Role: account.role, AccountKey: account.key}, nil
}
