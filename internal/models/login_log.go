package models

import (
	"time"

	"blackjack-auth/internal/fingerprint"
)

// LoginRecord is one entry in an account's login history. Fingerprint is nil
// when collection failed at login time; the record is still kept.
type LoginRecord struct {
	Time        time.Time               `json:"time"`
	Fingerprint *fingerprint.Normalized `json:"fingerprint,omitempty"`
}

// LoginLog holds the most recent login records for one account, newest last.
// The session log service trims it to the configured history size.
type LoginLog struct {
	OwnerKey string        `db:"owner_key"`
	Records  []LoginRecord `db:"records"`
}

// Latest returns the most recent record, or nil for an empty log.
func (l *LoginLog) Latest() *LoginRecord {
	if l == nil || len(l.Records) == 0 {
		return nil
	}
	return &l.Records[len(l.Records)-1]
}
