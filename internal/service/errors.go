package service

import (
	"errors"
	"fmt"
)

// Authentication failures the handlers translate into HTTP statuses.
var (
	ErrNoSuchAccount   = errors.New("no such account")
	ErrBadCredentials  = errors.New("bad credentials")
	ErrAccountLocked   = errors.New("account locked")
	ErrTwoFactorFailed = errors.New("two-factor verification failed")
	ErrTokenExpired    = errors.New("confirmation token expired")
	ErrTokenInvalid    = errors.New("confirmation token invalid")
	ErrAlreadyExists   = errors.New("account already exists")
)

// ValidationError reports malformed request input by field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
