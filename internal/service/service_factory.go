package service

import (
	"blackjack-auth/internal/config"
	"blackjack-auth/internal/encryption"
	"blackjack-auth/internal/events"
	"blackjack-auth/internal/hashing"
	"blackjack-auth/internal/notifier"
	redisrepo "blackjack-auth/internal/repository/redis"
	"blackjack-auth/internal/repository/scylla"
	"blackjack-auth/internal/token"
)

// ServiceFactory creates and caches service instances.
type ServiceFactory struct {
	cfg         *config.Config
	accountRepo scylla.AccountRepository
	pendingRepo scylla.PendingRepository
	logRepo     scylla.LoginLogRepository
	challenges  *redisrepo.ChallengeCache
	hasher      *hashing.Hasher
	encryption  *encryption.Manager
	notifier    notifier.Notifier
	recorder    *events.Recorder
	signer      *token.Signer

	sessionLog   *SessionLogService
	lockout      *LockoutService
	twoFactor    *TwoFactorService
	login        *LoginService
	registration *RegistrationService
}

func NewServiceFactory(
	cfg *config.Config,
	accountRepo scylla.AccountRepository,
	pendingRepo scylla.PendingRepository,
	logRepo scylla.LoginLogRepository,
	challenges *redisrepo.ChallengeCache,
	hasher *hashing.Hasher,
	enc *encryption.Manager,
	notif notifier.Notifier,
	recorder *events.Recorder,
) *ServiceFactory {
	return &ServiceFactory{
		cfg:         cfg,
		accountRepo: accountRepo,
		pendingRepo: pendingRepo,
		logRepo:     logRepo,
		challenges:  challenges,
		hasher:      hasher,
		encryption:  enc,
		notifier:    notif,
		recorder:    recorder,
		signer:      token.NewSigner(cfg.Security.TokenSecret, cfg.Security.TokenSalt, cfg.Security.TokenMaxAge),
	}
}

// Recorder exposes the security event pipeline for audit queries.
func (f *ServiceFactory) Recorder() *events.Recorder {
	return f.recorder
}

func (f *ServiceFactory) SessionLogService() *SessionLogService {
	if f.sessionLog == nil {
		f.sessionLog = NewSessionLogService(f.logRepo, f.cfg)
	}
	return f.sessionLog
}

func (f *ServiceFactory) LockoutService() *LockoutService {
	if f.lockout == nil {
		f.lockout = NewLockoutService(f.accountRepo, f.notifier, f.recorder, f.cfg)
	}
	return f.lockout
}

func (f *ServiceFactory) TwoFactorService() *TwoFactorService {
	if f.twoFactor == nil {
		f.twoFactor = NewTwoFactorService(f.challenges, f.hasher, f.notifier, f.recorder, f.cfg)
	}
	return f.twoFactor
}

func (f *ServiceFactory) LoginService() *LoginService {
	if f.login == nil {
		f.login = NewLoginService(
			f.accountRepo,
			f.SessionLogService(),
			f.LockoutService(),
			f.TwoFactorService(),
			f.recorder,
		)
	}
	return f.login
}

func (f *ServiceFactory) RegistrationService() *RegistrationService {
	if f.registration == nil {
		f.registration = NewRegistrationService(
			f.accountRepo,
			f.pendingRepo,
			f.logRepo,
			f.signer,
			f.encryption,
			f.notifier,
			f.recorder,
			f.cfg,
		)
	}
	return f.registration
}
