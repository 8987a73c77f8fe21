package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blackjack-auth/internal/fingerprint"
	"blackjack-auth/internal/models"
)

func deviceA() fingerprint.Fingerprint {
	return fingerprint.Fingerprint{
		MACAddresses:      []string{"aa:aa:aa:aa:aa:aa"},
		Drives:            []fingerprint.Drive{{Model: "Samsung 980", Serial: "SN-A"}},
		MotherboardSerial: "MB-A",
		Latitude:          "52.5200",
		Longitude:         "13.4050",
	}
}

func deviceB() fingerprint.Fingerprint {
	return fingerprint.Fingerprint{
		MACAddresses:      []string{"bb:bb:bb:bb:bb:bb"},
		Drives:            []fingerprint.Drive{{Model: "WD Blue", Serial: "SN-B"}},
		MotherboardSerial: "MB-B",
		Latitude:          "40.7128",
		Longitude:         "-74.0060",
	}
}

func TestLoginUnknownAccount(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.factory.LoginService().Login(context.Background(), LoginRequest{
		Identifier:  "nobody@example.com",
		Password:    "whatever",
		Fingerprint: deviceA(),
	})

	assert.ErrorIs(t, err, ErrNoSuchAccount)
}

func TestLoginEmptyIdentifier(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.factory.LoginService().Login(context.Background(), LoginRequest{
		Identifier: "   ",
		Password:   "whatever",
	})

	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestLoginFirstDeviceIsTrusted(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice@example.com", "correct-horse", models.TwoFactorEmail)

	result, err := env.factory.LoginService().Login(context.Background(), LoginRequest{
		Identifier:  "alice@example.com",
		Password:    "correct-horse",
		Fingerprint: deviceA(),
	})

	require.NoError(t, err)
	assert.False(t, result.TwoFactorRequired)
	assert.Equal(t, models.RoleUser, result.Role)

	log, err := env.logs.GetLog(context.Background(), models.RoleUser, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, log.Records, 1)
	require.NotNil(t, log.Records[0].Fingerprint)
	assert.True(t, fingerprint.Equal(fingerprint.Normalize(deviceA()), *log.Records[0].Fingerprint))
}

func TestLoginSameDeviceSkipsChallenge(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice@example.com", "correct-horse", models.TwoFactorEmail)
	login := env.factory.LoginService()

	_, err := login.Login(context.Background(), LoginRequest{
		Identifier: "alice@example.com", Password: "correct-horse", Fingerprint: deviceA(),
	})
	require.NoError(t, err)

	result, err := login.Login(context.Background(), LoginRequest{
		Identifier: "alice@example.com", Password: "correct-horse", Fingerprint: deviceA(),
	})
	require.NoError(t, err)
	assert.False(t, result.TwoFactorRequired)
}

func TestLoginWrongPasswordCountsAndLocks(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice@example.com", "correct-horse", models.TwoFactorEmail)
	login := env.factory.LoginService()
	ctx := context.Background()

	req := LoginRequest{Identifier: "alice@example.com", Password: "wrong", Fingerprint: deviceA()}

	_, err := login.Login(ctx, req)
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = login.Login(ctx, req)
	assert.ErrorIs(t, err, ErrBadCredentials)

	// Third failure crosses the threshold.
	_, err = login.Login(ctx, req)
	assert.ErrorIs(t, err, ErrAccountLocked)

	// Entering the locked state emails the account holder.
	mail := env.notifier.last()
	require.NotNil(t, mail)
	assert.Equal(t, "alice@example.com", mail.To)
	assert.Contains(t, mail.Subject, "locked")

	// Correct password no longer helps; the lockout check comes first.
	_, err = login.Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: "correct-horse", Fingerprint: deviceA(),
	})
	assert.ErrorIs(t, err, ErrAccountLocked)

	// Failures against a locked account do not email again.
	assert.Equal(t, 1, env.notifier.count())
}

func TestLoginSuccessResetsCounter(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice@example.com", "correct-horse", models.TwoFactorEmail)
	login := env.factory.LoginService()
	ctx := context.Background()

	bad := LoginRequest{Identifier: "alice@example.com", Password: "wrong", Fingerprint: deviceA()}
	good := LoginRequest{Identifier: "alice@example.com", Password: "correct-horse", Fingerprint: deviceA()}

	_, _ = login.Login(ctx, bad)
	_, _ = login.Login(ctx, bad)

	_, err := login.Login(ctx, good)
	require.NoError(t, err)

	// Two more failures stay below the threshold again.
	_, err = login.Login(ctx, bad)
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = login.Login(ctx, bad)
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestPasswordSuccessResetsCounterBeforeChallenge(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice@example.com", "correct-horse", models.TwoFactorEmail)
	login := env.factory.LoginService()
	ctx := context.Background()

	_, err := login.Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: "correct-horse", Fingerprint: deviceA(),
	})
	require.NoError(t, err)

	bad := LoginRequest{Identifier: "alice@example.com", Password: "wrong", Fingerprint: deviceA()}
	_, _ = login.Login(ctx, bad)
	_, _ = login.Login(ctx, bad)

	// Right password from a new device parks the login behind a challenge.
	result, err := login.Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: "correct-horse", Fingerprint: deviceB(),
	})
	require.NoError(t, err)
	require.True(t, result.TwoFactorRequired)

	// The strikes are gone already, whether or not the challenge completes.
	stored, err := env.accounts.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.LoginAttempts)
}

func TestLoginNewDeviceRequiresChallenge(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice@example.com", "correct-horse", models.TwoFactorEmail)
	login := env.factory.LoginService()
	ctx := context.Background()

	_, err := login.Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: "correct-horse", Fingerprint: deviceA(),
	})
	require.NoError(t, err)

	result, err := login.Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: "correct-horse", Fingerprint: deviceB(),
	})
	require.NoError(t, err)
	require.True(t, result.TwoFactorRequired)
	require.NotEmpty(t, result.ChallengeID)

	code := env.notifier.lastCode(t)

	completed, err := login.CompleteChallenge(ctx, result.ChallengeID, code)
	require.NoError(t, err)
	assert.False(t, completed.TwoFactorRequired)

	// The new device is now the trusted one.
	log, err := env.logs.GetLog(ctx, models.RoleUser, "alice@example.com")
	require.NoError(t, err)
	latest := log.Latest()
	require.NotNil(t, latest)
	require.NotNil(t, latest.Fingerprint)
	assert.True(t, fingerprint.Equal(fingerprint.Normalize(deviceB()), *latest.Fingerprint))
}

func TestCompleteChallengeWrongCode(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice@example.com", "correct-horse", models.TwoFactorEmail)
	login := env.factory.LoginService()
	ctx := context.Background()

	_, err := login.Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: "correct-horse", Fingerprint: deviceA(),
	})
	require.NoError(t, err)

	result, err := login.Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: "correct-horse", Fingerprint: deviceB(),
	})
	require.NoError(t, err)
	require.True(t, result.TwoFactorRequired)

	code := env.notifier.lastCode(t)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	_, err = login.CompleteChallenge(ctx, result.ChallengeID, wrong)
	assert.ErrorIs(t, err, ErrTwoFactorFailed)

	// No session was established, so the history still holds only the
	// first device.
	log, err := env.logs.GetLog(ctx, models.RoleUser, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, log.Records, 1)
	assert.True(t, fingerprint.Equal(fingerprint.Normalize(deviceA()), *log.Records[0].Fingerprint))
}

func TestCompleteChallengeExhaustsAttempts(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice@example.com", "correct-horse", models.TwoFactorEmail)
	login := env.factory.LoginService()
	ctx := context.Background()

	_, err := login.Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: "correct-horse", Fingerprint: deviceA(),
	})
	require.NoError(t, err)

	result, err := login.Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: "correct-horse", Fingerprint: deviceB(),
	})
	require.NoError(t, err)

	code := env.notifier.lastCode(t)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < 3; i++ {
		_, err = login.CompleteChallenge(ctx, result.ChallengeID, wrong)
		assert.ErrorIs(t, err, ErrTwoFactorFailed)
	}

	// The challenge is burned; even the right code fails now.
	_, err = login.CompleteChallenge(ctx, result.ChallengeID, code)
	assert.ErrorIs(t, err, ErrTwoFactorFailed)
}

func TestCompleteChallengeExpired(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice@example.com", "correct-horse", models.TwoFactorEmail)
	login := env.factory.LoginService()
	ctx := context.Background()

	_, err := login.Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: "correct-horse", Fingerprint: deviceA(),
	})
	require.NoError(t, err)

	result, err := login.Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: "correct-horse", Fingerprint: deviceB(),
	})
	require.NoError(t, err)
	code := env.notifier.lastCode(t)

	env.redis.FastForward(11 * time.Minute)

	_, err = login.CompleteChallenge(ctx, result.ChallengeID, code)
	assert.ErrorIs(t, err, ErrTwoFactorFailed)
}

func TestLoginWithoutSecondFactorProceedsOnMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "bob@example.com", "hunter2-hunter2", models.TwoFactorNone)
	login := env.factory.LoginService()
	ctx := context.Background()

	_, err := login.Login(ctx, LoginRequest{
		Identifier: "bob@example.com", Password: "hunter2-hunter2", Fingerprint: deviceA(),
	})
	require.NoError(t, err)

	result, err := login.Login(ctx, LoginRequest{
		Identifier: "bob@example.com", Password: "hunter2-hunter2", Fingerprint: deviceB(),
	})
	require.NoError(t, err)
	assert.False(t, result.TwoFactorRequired)
}

func TestAdminWrongPasswordLocksImmediately(t *testing.T) {
	env := newTestEnv(t)
	admin := env.addAdmin(t, "Charlie", "charlie@example.com", "admin-password")
	login := env.factory.LoginService()
	ctx := context.Background()

	_, err := login.Login(ctx, LoginRequest{
		Identifier: "Charlie", Password: "wrong", Fingerprint: deviceA(),
	})
	assert.ErrorIs(t, err, ErrAccountLocked)

	stored, err := env.accounts.GetAdminByNameHash(ctx, admin.NameHash)
	require.NoError(t, err)
	assert.True(t, stored.Locked)

	mail := env.notifier.last()
	require.NotNil(t, mail)
	assert.Equal(t, "charlie@example.com", mail.To)
	assert.Contains(t, mail.Subject, "locked")
}

func TestAdminDeviceMismatchLocksImmediately(t *testing.T) {
	env := newTestEnv(t)
	admin := env.addAdmin(t, "Charlie", "charlie@example.com", "admin-password")
	login := env.factory.LoginService()
	ctx := context.Background()

	_, err := login.Login(ctx, LoginRequest{
		Identifier: "Charlie", Password: "admin-password", Fingerprint: deviceA(),
	})
	require.NoError(t, err)

	_, err = login.Login(ctx, LoginRequest{
		Identifier: "Charlie", Password: "admin-password", Fingerprint: deviceB(),
	})
	assert.ErrorIs(t, err, ErrAccountLocked)

	stored, err := env.accounts.GetAdminByNameHash(ctx, admin.NameHash)
	require.NoError(t, err)
	assert.True(t, stored.Locked)
	assert.Equal(t, 1, env.notifier.count())
}

func TestAdminResolvedByNameBeforeUserEmail(t *testing.T) {
	env := newTestEnv(t)
	env.addAdmin(t, "Dana", "dana-admin@example.com", "admin-password")
	login := env.factory.LoginService()

	result, err := login.Login(context.Background(), LoginRequest{
		Identifier: "Dana", Password: "admin-password", Fingerprint: deviceA(),
	})

	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, result.Role)
}
