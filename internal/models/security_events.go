package models

import "time"

// Security event types emitted by the login orchestrator.
const (
	EventLoginSuccess        = "login_success"
	EventLoginFailure        = "login_failure"
	EventAccountLocked       = "account_locked"
	EventFingerprintMismatch = "fingerprint_mismatch"
	EventChallengeIssued     = "challenge_issued"
	EventChallengeFailed     = "challenge_failed"
	EventRegistrationConfirm = "registration_confirmed"
)

// SecurityEvent is the record fanned out to the analytics pipeline. AccountKey
// is the user's email or the admin's name hash, never a raw credential.
type SecurityEvent struct {
	EventBucket int       `db:"event_bucket" json:"event_bucket"`
	AccountKey  string    `db:"account_key" json:"account_key"`
	Role        string    `db:"role" json:"role"`
	EventDate   string    `db:"event_date" json:"event_date"`
	EventTime   time.Time `db:"event_time" json:"event_time"`
	EventType   string    `db:"event_type" json:"event_type"`
	Details     string    `db:"details" json:"details"`
}
