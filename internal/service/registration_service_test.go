package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blackjack-auth/internal/hashing"
	"blackjack-auth/internal/models"
	"blackjack-auth/internal/token"
)

func registerAlice(t *testing.T, env *testEnv) string {
	t.Helper()

	err := env.factory.RegistrationService().Register(context.Background(), RegisterRequest{
		Email:       "alice@example.com",
		Name:        "Alice",
		Surname:     "Smith",
		Phone:       "+4915112345678",
		Password:    "correct-horse",
		SecPassword: "battery-staple",
	})
	require.NoError(t, err)

	return env.notifier.lastToken(t)
}

func TestRegisterStagesPendingAccount(t *testing.T) {
	env := newTestEnv(t)
	registerAlice(t, env)
	ctx := context.Background()

	// Not a permanent account yet.
	_, err := env.accounts.GetUserByEmail(ctx, "alice@example.com")
	assert.Error(t, err)

	reg, err := env.pendings.GetPending(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Alice", reg.User.Name)
	assert.Equal(t, models.TwoFactorEmail, reg.User.TwoFactorMethod)
	assert.True(t, hashing.VerifyPassword("correct-horse", reg.User.PasswordHash))
	assert.NotEmpty(t, reg.User.PhoneEncrypted, "phone is stored encrypted")

	mail := env.notifier.last()
	require.NotNil(t, mail)
	assert.Equal(t, "alice@example.com", mail.To)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := env.factory.RegistrationService()
	ctx := context.Background()

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"missing email", RegisterRequest{Name: "A", Password: "long-enough-pass"}},
		{"bad email", RegisterRequest{Email: "not-an-email", Name: "A", Password: "long-enough-pass"}},
		{"missing name", RegisterRequest{Email: "a@example.com", Password: "long-enough-pass"}},
		{"short password", RegisterRequest{Email: "a@example.com", Name: "A", Password: "short"}},
		{"bad 2fa method", RegisterRequest{Email: "a@example.com", Name: "A", Password: "long-enough-pass", TwoFactorMethod: "sms"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Register(ctx, tt.req)
			var validation *ValidationError
			assert.ErrorAs(t, err, &validation)
		})
	}
}

func TestRegisterExistingAccount(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice@example.com", "correct-horse", models.TwoFactorEmail)

	err := env.factory.RegistrationService().Register(context.Background(), RegisterRequest{
		Email:    "alice@example.com",
		Name:     "Alice",
		Password: "correct-horse",
	})

	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestConfirmPromotesAccount(t *testing.T) {
	env := newTestEnv(t)
	tok := registerAlice(t, env)
	svc := env.factory.RegistrationService()
	ctx := context.Background()

	require.NoError(t, svc.Confirm(ctx, tok))

	user, err := env.accounts.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)
	assert.False(t, user.Locked)

	// Staging row is gone.
	_, err = env.pendings.GetPending(ctx, "alice@example.com")
	assert.Error(t, err)

	// The promoted account can log in.
	result, err := env.factory.LoginService().Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: "correct-horse", Fingerprint: deviceA(),
	})
	require.NoError(t, err)
	assert.False(t, result.TwoFactorRequired)
}

func TestConfirmIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	tok := registerAlice(t, env)
	svc := env.factory.RegistrationService()
	ctx := context.Background()

	require.NoError(t, svc.Confirm(ctx, tok))
	require.NoError(t, svc.Confirm(ctx, tok), "re-confirming must succeed")

	_, err := env.accounts.GetUserByEmail(ctx, "alice@example.com")
	assert.NoError(t, err)
}

func TestConfirmRecoversFromPartialPromotion(t *testing.T) {
	env := newTestEnv(t)
	tok := registerAlice(t, env)
	svc := env.factory.RegistrationService()
	ctx := context.Background()

	require.NoError(t, svc.Confirm(ctx, tok))

	// Log a login so the account has device history worth keeping.
	_, err := env.factory.LoginService().Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: "correct-horse", Fingerprint: deviceA(),
	})
	require.NoError(t, err)

	// Recreate the staged rows, as if a prior run died after CreateUser but
	// before DeletePending.
	reg, err := env.accounts.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NoError(t, env.pendings.CreatePending(ctx, &models.PendingRegistration{
		User: *reg,
		Log:  models.LoginLog{OwnerKey: reg.Email},
	}))

	require.NoError(t, svc.Confirm(ctx, tok))

	// The live history survived; the stale staged log did not replace it.
	log, err := env.logs.GetLog(ctx, models.RoleUser, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, log.Records, 1)

	// The staged rows were cleaned up.
	_, err = env.pendings.GetPending(ctx, "alice@example.com")
	assert.Error(t, err)
}

func TestConfirmUnknownEmail(t *testing.T) {
	env := newTestEnv(t)
	svc := env.factory.RegistrationService()

	tok := svc.IssueToken("ghost@example.com")
	err := svc.Confirm(context.Background(), tok)

	assert.ErrorIs(t, err, ErrNoSuchAccount)
}

func TestConfirmExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	registerAlice(t, env)

	// A token from the past, signed with the same key material.
	aged := token.NewSigner(env.cfg.Security.TokenSecret, env.cfg.Security.TokenSalt, env.cfg.Security.TokenMaxAge)
	tok := aged.Issue("alice@example.com")

	time.Sleep(10 * time.Millisecond)
	shortLived := token.NewSigner(env.cfg.Security.TokenSecret, env.cfg.Security.TokenSalt, time.Nanosecond)
	_, err := shortLived.Resolve(tok)
	require.ErrorIs(t, err, token.ErrExpired)

	// Through the service, an expired token maps to ErrTokenExpired.
	expiredSvc := NewRegistrationService(
		env.accounts, env.pendings, env.logs,
		shortLived, nil, env.notifier, env.factory.recorder, env.cfg,
	)
	err = expiredSvc.Confirm(context.Background(), tok)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestConfirmMangledToken(t *testing.T) {
	env := newTestEnv(t)
	registerAlice(t, env)
	svc := env.factory.RegistrationService()

	err := svc.Confirm(context.Background(), "definitely.not.valid")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	err = svc.Confirm(context.Background(), "")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
