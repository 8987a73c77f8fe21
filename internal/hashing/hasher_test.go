package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blackjack-auth/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:   1024,
			Argon2TimeCost:     1,
			Argon2Parallelism:  1,
			PepperRotationDays: 30,
		},
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-password")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret-password", hash)

	assert.True(t, VerifyPassword("s3cret-password", hash))
	assert.False(t, VerifyPassword("wrong-password", hash))
	assert.False(t, VerifyPassword("s3cret-password", "not-a-bcrypt-hash"))
}

func TestLookupKey(t *testing.T) {
	key := LookupKey("Alice")

	assert.Len(t, key, 64)
	assert.Equal(t, key, LookupKey("alice"))
	assert.Equal(t, key, LookupKey("  Alice  "))
	assert.NotEqual(t, key, LookupKey("Bob"))
}

func TestHashChallengeRoundTrip(t *testing.T) {
	h := NewHasher(testConfig())

	result, err := h.HashChallenge("482913")
	require.NoError(t, err)
	require.NotEmpty(t, result.Hash)
	require.NotEmpty(t, result.Salt)
	assert.Equal(t, "argon2id-v1", result.Algorithm)

	ok, err := h.VerifyChallenge("482913", result)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.VerifyChallenge("482914", result)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashChallengeSaltsDiffer(t *testing.T) {
	h := NewHasher(testConfig())

	a, err := h.HashChallenge("123456")
	require.NoError(t, err)
	b, err := h.HashChallenge("123456")
	require.NoError(t, err)

	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.Hash, b.Hash)
}

func TestVerifyChallengeSurvivesPepperRotation(t *testing.T) {
	h := NewHasher(testConfig())

	result, err := h.HashChallenge("654321")
	require.NoError(t, err)

	h.rotatePepper()

	ok, err := h.VerifyChallenge("654321", result)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyChallengeUnknownPepper(t *testing.T) {
	h := NewHasher(testConfig())

	result, err := h.HashChallenge("111111")
	require.NoError(t, err)
	result.PepperVersion = 99

	_, err = h.VerifyChallenge("111111", result)
	assert.Error(t, err)
}
