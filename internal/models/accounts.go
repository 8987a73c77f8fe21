package models

// Account roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Two-factor delivery methods for user accounts.
const (
	TwoFactorEmail = "email"
	TwoFactorNone  = "none"
)

// User is a regular player account, keyed by email. The phone number is
// envelope-encrypted at rest; only the ciphertext and its key id are stored.
type User struct {
	Email           string `db:"email"`
	Name            string `db:"name"`
	Surname         string `db:"surname"`
	PhoneEncrypted  []byte `db:"phone_encrypted"`
	PhoneKeyID      string `db:"phone_key_id"`
	PasswordHash    string `db:"password_hash"`
	SecPasswordHash string `db:"sec_password_hash"`
	Role            string `db:"role"`
	TwoFactorMethod string `db:"two_fa_method"`
	LoginAttempts   int    `db:"login_attempts"`
	Locked          bool   `db:"locked"`
}

// Admin is an operator account. NameHash is a SHA-256 hex digest of the
// lower-cased, trimmed name; it is the lookup index, not a secret.
type Admin struct {
	NameHash     string `db:"name_hash"`
	Name         string `db:"name"`
	Surname      string `db:"surname"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	Role         string `db:"role"`
	Locked       bool   `db:"locked"`
}
