package hashing

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"blackjack-auth/internal/config"
	"blackjack-auth/internal/util"
)

var ErrInvalidHash = errors.New("invalid hash format")

// HashPassword hashes account passwords with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares a candidate password against a stored bcrypt hash.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// LookupKey derives the non-secret index used to find admin accounts: the
// SHA-256 hex digest of the lower-cased, trimmed name. Deterministic so the
// same input always yields the same key.
func LookupKey(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type pepper struct {
	value     string
	createdAt time.Time
	version   int
}

// Hasher hashes short-lived 2FA challenge codes with Argon2id plus a rotating
// in-memory pepper before they are cached, so a cache dump alone never yields
// usable codes.
type Hasher struct {
	params        Argon2Params
	currentPepper *pepper
	oldPeppers    []*pepper
	config        *config.Config
	mu            sync.RWMutex
}

// HashResult carries everything needed to verify a challenge hash later.
type HashResult struct {
	Hash          string `json:"hash"`
	Salt          string `json:"salt"`
	PepperVersion int    `json:"pepper_version"`
	Algorithm     string `json:"algorithm"`
}

func NewHasher(cfg *config.Config) *Hasher {
	h := &Hasher{
		params: Argon2Params{
			Memory:      uint32(cfg.Hashing.Argon2MemoryCost),
			Iterations:  uint32(cfg.Hashing.Argon2TimeCost),
			Parallelism: uint8(cfg.Hashing.Argon2Parallelism),
			SaltLength:  16,
			KeyLength:   32,
		},
		config: cfg,
	}

	h.rotatePepper()

	return h
}

func (h *Hasher) rotatePepper() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.currentPepper != nil {
		h.oldPeppers = append(h.oldPeppers, h.currentPepper)
	}

	pepperBytes := make([]byte, 32)
	if _, err := rand.Read(pepperBytes); err != nil {
		util.Fatal("Failed to generate pepper", zap.Error(err))
	}

	h.currentPepper = &pepper{
		value:     base64.RawURLEncoding.EncodeToString(pepperBytes),
		createdAt: time.Now(),
		version:   len(h.oldPeppers) + 1,
	}
}

// StartPepperRotation rotates the pepper on the configured interval. Old
// versions are kept so in-flight challenges still verify.
func (h *Hasher) StartPepperRotation() {
	ticker := time.NewTicker(time.Duration(h.config.Hashing.PepperRotationDays) * 24 * time.Hour)

	go func() {
		for range ticker.C {
			h.rotatePepper()

			h.mu.Lock()
			if len(h.oldPeppers) > 2 {
				h.oldPeppers = h.oldPeppers[len(h.oldPeppers)-2:]
			}
			h.mu.Unlock()
		}
	}()
}

// HashChallenge hashes a 2FA code for server-side retention.
func (h *Hasher) HashChallenge(code string) (*HashResult, error) {
	h.mu.RLock()
	p := h.currentPepper
	h.mu.RUnlock()

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey(
		[]byte(code+p.value),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return &HashResult{
		Hash:          base64.RawURLEncoding.EncodeToString(hash),
		Salt:          base64.RawURLEncoding.EncodeToString(salt),
		PepperVersion: p.version,
		Algorithm:     "argon2id-v1",
	}, nil
}

// VerifyChallenge checks a submitted code against a retained hash in constant
// time.
func (h *Hasher) VerifyChallenge(code string, result *HashResult) (bool, error) {
	pepperValue, err := h.getPepper(result.PepperVersion)
	if err != nil {
		return false, err
	}

	salt, err := base64.RawURLEncoding.DecodeString(result.Salt)
	if err != nil {
		return false, ErrInvalidHash
	}
	expected, err := base64.RawURLEncoding.DecodeString(result.Hash)
	if err != nil {
		return false, ErrInvalidHash
	}

	computed := argon2.IDKey(
		[]byte(code+pepperValue),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		uint32(len(expected)),
	)

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func (h *Hasher) getPepper(version int) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.currentPepper != nil && h.currentPepper.version == version {
		return h.currentPepper.value, nil
	}
	for _, p := range h.oldPeppers {
		if p.version == version {
			return p.value, nil
		}
	}
	return "", errors.New("pepper version not found")
}
