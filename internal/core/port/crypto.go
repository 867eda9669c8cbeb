package port

import (
	"time"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
)

// PasswordPolicyValidator enforces password strength requirements.
type PasswordPolicyValidator interface {
	Validate(password string, ctx domain.PasswordContext) error
}

// Argon2Params captures tunable parameters for the Argon2id hashing algorithm.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// SessionTokenIssuer signs session tokens for an account.
type SessionTokenIssuer interface {
	Issue(accountID string, now time.Time) (domain.IssuedSession, error)
}

// SessionTokenVerifier turns a token back into claims, or fails.
type SessionTokenVerifier interface {
	Verify(token string, now time.Time) (domain.SessionClaims, error)
}
