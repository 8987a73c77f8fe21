// Package token implements the signed, time-boxed confirmation token binding
// an email address. The same mechanics back registration-confirmation links
// and 2FA confirmation links; only the caller's follow-up action differs.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"time"
)

var (
	// ErrExpired means the signature checked out but the token is older than
	// the validity window.
	ErrExpired = errors.New("token expired")
	// ErrInvalid means the token is malformed or its signature does not
	// verify. The payload is never trusted in that case.
	ErrInvalid = errors.New("token invalid")
)

// Signer issues and resolves URL-safe tokens of the form
// payload.timestamp.signature, HMAC-SHA256 signed with a key derived from the
// server secret and a purpose salt. Stateless: no server-side record exists
// beyond the signature.
type Signer struct {
	key    []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewSigner derives the signing key from secret and salt. maxAge bounds
// Resolve; the registration and 2FA flows both use 600s.
func NewSigner(secret, salt string, maxAge time.Duration) *Signer {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(salt))

	return &Signer{
		key:    mac.Sum(nil),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Issue signs the email together with the current timestamp.
func (s *Signer) Issue(email string) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(email))

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(s.now().Unix()))
	stamp := base64.RawURLEncoding.EncodeToString(ts[:])

	signed := payload + "." + stamp
	return signed + "." + s.sign(signed)
}

// Resolve verifies the signature first, then the age, and only then returns
// the embedded email. Expired and invalid tokens are distinguishable for
// diagnostics; callers reject both.
func (s *Signer) Resolve(tok string) (string, error) {
	payload, stamp, sig, ok := split(tok)
	if !ok {
		return "", ErrInvalid
	}

	expected := s.sign(payload + "." + stamp)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return "", ErrInvalid
	}

	tsBytes, err := base64.RawURLEncoding.DecodeString(stamp)
	if err != nil || len(tsBytes) != 8 {
		return "", ErrInvalid
	}
	issued := time.Unix(int64(binary.BigEndian.Uint64(tsBytes)), 0)
	if s.now().Sub(issued) > s.maxAge {
		return "", ErrExpired
	}

	email, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", ErrInvalid
	}
	return string(email), nil
}

func (s *Signer) sign(data string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func split(tok string) (payload, stamp, sig string, ok bool) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
