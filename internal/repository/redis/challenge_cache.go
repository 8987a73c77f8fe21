package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"blackjack-auth/internal/client"
	"blackjack-auth/internal/fingerprint"
	"blackjack-auth/internal/hashing"
	"blackjack-auth/internal/util"
)

const (
	challengePrefix        = "2fa:"
	challengeAttemptPrefix = "2fa_attempts:"
)

// ErrChallengeNotFound is returned when a challenge is absent or expired.
var ErrChallengeNotFound = errors.New("challenge not found")

// Challenge is a pending two-factor step. Only the code hash is retained;
// the plaintext code leaves the server exactly once, in the delivery email.
type Challenge struct {
	ChallengeID string                  `json:"challenge_id"`
	AccountKey  string                  `json:"account_key"`
	Role        string                  `json:"role"`
	CodeHash    *hashing.HashResult     `json:"code_hash"`
	Fingerprint *fingerprint.Normalized `json:"fingerprint,omitempty"`
	TrustDevice bool                    `json:"trust_device"`
	IssuedAt    time.Time               `json:"issued_at"`
}

type ChallengeCache struct {
	client *client.RedisClient
}

func NewChallengeCache(client *client.RedisClient) *ChallengeCache {
	return &ChallengeCache{client: client}
}

func (c *ChallengeCache) SetChallenge(ctx context.Context, ch *Challenge, ttl time.Duration) error {
	doc, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("failed to encode challenge: %w", err)
	}

	key := challengePrefix + ch.ChallengeID
	if err := c.client.Set(ctx, key, doc, ttl); err != nil {
		util.Error("Failed to cache challenge",
			zap.String("challenge_id", ch.ChallengeID),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return fmt.Errorf("failed to cache challenge: %w", err)
	}

	util.Debug("Challenge cached",
		zap.String("challenge_id", ch.ChallengeID),
		zap.Duration("ttl", ttl))
	return nil
}

func (c *ChallengeCache) GetChallenge(ctx context.Context, challengeID string) (*Challenge, error) {
	key := challengePrefix + challengeID

	doc, err := c.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, ErrChallengeNotFound
		}
		util.Error("Failed to get challenge from cache",
			zap.String("challenge_id", challengeID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get challenge from cache: %w", err)
	}

	ch := &Challenge{}
	if err := json.Unmarshal([]byte(doc), ch); err != nil {
		return nil, fmt.Errorf("failed to decode challenge: %w", err)
	}

	return ch, nil
}

// DeleteChallenge removes the challenge and its attempt counter. A challenge
// is single-use, it is deleted on success and on attempt exhaustion.
func (c *ChallengeCache) DeleteChallenge(ctx context.Context, challengeID string) error {
	keys := []string{
		challengePrefix + challengeID,
		challengeAttemptPrefix + challengeID,
	}

	if err := c.client.Del(ctx, keys...); err != nil {
		util.Error("Failed to delete challenge",
			zap.String("challenge_id", challengeID),
			zap.Error(err))
		return fmt.Errorf("failed to delete challenge: %w", err)
	}

	util.Debug("Challenge deleted", zap.String("challenge_id", challengeID))
	return nil
}

func (c *ChallengeCache) IncrementAttempts(ctx context.Context, challengeID string, ttl time.Duration) (int, error) {
	key := challengeAttemptPrefix + challengeID

	count, err := c.client.IncrWithExpire(ctx, key, ttl)
	if err != nil {
		util.Error("Failed to increment challenge attempts",
			zap.String("challenge_id", challengeID),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment challenge attempts: %w", err)
	}

	return int(count), nil
}
