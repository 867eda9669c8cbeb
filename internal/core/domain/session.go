package domain

import "time"

// SessionClaims is the verified content of a session token. It is never
// persisted and never mutated after verification.
type SessionClaims struct {
	AccountID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IssuedSession is a freshly signed session token with its lifetime.
type IssuedSession struct {
	Token     string
	ExpiresAt time.Time
	TTL       time.Duration
}
