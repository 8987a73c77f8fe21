package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blackjack-auth/internal/config"
	"blackjack-auth/internal/events"
	"blackjack-auth/internal/fingerprint"
	"blackjack-auth/internal/hashing"
	"blackjack-auth/internal/models"
	"blackjack-auth/internal/notifier"
	redisrepo "blackjack-auth/internal/repository/redis"
	"blackjack-auth/internal/util"
)

const (
	codeMin = 100000
	codeMax = 999999
)

// TwoFactorService issues and verifies email challenges. Codes are six
// decimal digits; only an argon2 hash of the code is retained server-side.
type TwoFactorService struct {
	cache       *redisrepo.ChallengeCache
	hasher      *hashing.Hasher
	notifier    notifier.Notifier
	recorder    *events.Recorder
	ttl         time.Duration
	maxAttempts int
}

func NewTwoFactorService(
	cache *redisrepo.ChallengeCache,
	hasher *hashing.Hasher,
	notif notifier.Notifier,
	recorder *events.Recorder,
	cfg *config.Config,
) *TwoFactorService {
	return &TwoFactorService{
		cache:       cache,
		hasher:      hasher,
		notifier:    notif,
		recorder:    recorder,
		ttl:         cfg.Security.ChallengeTTL,
		maxAttempts: cfg.Security.ChallengeMaxAttempts,
	}
}

// GenerateCode draws a uniform six-digit code from a CSPRNG.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}

// Issue creates a challenge for the account and emails the code. The
// fingerprint snapshot rides along so a passing challenge can extend the
// device history. Returns the challenge id and the plaintext code.
func (s *TwoFactorService) Issue(ctx context.Context, accountKey, role, email string, fp *fingerprint.Normalized, trustDevice bool) (string, string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", "", err
	}

	codeHash, err := s.hasher.HashChallenge(code)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash challenge code: %w", err)
	}

	ch := &redisrepo.Challenge{
		ChallengeID: uuid.New().String(),
		AccountKey:  accountKey,
		Role:        role,
		CodeHash:    codeHash,
		Fingerprint: fp,
		TrustDevice: trustDevice,
		IssuedAt:    time.Now().UTC(),
	}

	if err := s.cache.SetChallenge(ctx, ch, s.ttl); err != nil {
		return "", "", err
	}

	// Delivery is best effort: the challenge stands even when the mail
	// bounces, and simply expires unanswered.
	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		code, int(s.ttl.Minutes()))
	if err := s.notifier.Send(ctx, email, "Verification code", body); err != nil {
		util.Error("Failed to deliver challenge code",
			zap.String("account_key", accountKey),
			zap.String("challenge_id", ch.ChallengeID),
			zap.Error(err))
	}

	s.recorder.Record(accountKey, role, models.EventChallengeIssued, "email code sent")
	util.Info("Two-factor challenge issued",
		zap.String("account_key", accountKey),
		zap.String("challenge_id", ch.ChallengeID))

	return ch.ChallengeID, code, nil
}

// Verify checks the submitted code against the stored challenge. Any failure
// path returns ErrTwoFactorFailed; expiries and unknown ids are not
// distinguished from wrong codes.
func (s *TwoFactorService) Verify(ctx context.Context, challengeID, code string) (*redisrepo.Challenge, error) {
	ch, err := s.cache.GetChallenge(ctx, challengeID)
	if err != nil {
		if errors.Is(err, redisrepo.ErrChallengeNotFound) {
			return nil, ErrTwoFactorFailed
		}
		return nil, err
	}

	attempts, err := s.cache.IncrementAttempts(ctx, challengeID, s.ttl)
	if err != nil {
		return nil, err
	}
	if attempts > s.maxAttempts {
		_ = s.cache.DeleteChallenge(ctx, challengeID)
		s.recorder.Record(ch.AccountKey, ch.Role, models.EventChallengeFailed, "attempts exhausted")
		return nil, ErrTwoFactorFailed
	}

	ok, err := s.hasher.VerifyChallenge(code, ch.CodeHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify challenge code: %w", err)
	}
	if !ok {
		s.recorder.Record(ch.AccountKey, ch.Role, models.EventChallengeFailed,
			fmt.Sprintf("wrong code, attempt %d of %d", attempts, s.maxAttempts))
		return nil, ErrTwoFactorFailed
	}

	if err := s.cache.DeleteChallenge(ctx, challengeID); err != nil {
		util.Warn("Failed to delete consumed challenge",
			zap.String("challenge_id", challengeID),
			zap.Error(err))
	}

	return ch, nil
}
