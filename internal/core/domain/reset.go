package domain

import "time"

// PasswordResetRecord is the one-time reset ledger entry for an account.
// Only the hash of the emailed secret is stored.
type PasswordResetRecord struct {
	AccountID string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the record can no longer be redeemed at now.
// A record is usable strictly before its expiry instant.
func (r PasswordResetRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
