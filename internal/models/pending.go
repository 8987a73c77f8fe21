package models

// PendingRegistration stages a user account between registration and email
// confirmation. Keyed by email; deleted once promoted or abandoned.
type PendingRegistration struct {
	User User     `db:"user"`
	Log  LoginLog `db:"log"`
}
