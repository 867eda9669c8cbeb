package security

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/port"
)

// ErrInvalidSession is returned for every session token that fails verification.
// The cause is deliberately not exposed.
var ErrInvalidSession = errors.New("jwt: invalid session token")

const signingAlgorithm = "RS256"

const defaultSessionTTL = 12 * time.Hour

// SessionClaims is the JWT body of a session token.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// SessionTokenManager signs and verifies session tokens with a single RSA key pair.
type SessionTokenManager struct {
	keys   KeyProvider
	issuer string
	ttl    time.Duration
}

// NewSessionTokenManager constructs a manager. A non-positive ttl falls back to twelve hours.
func NewSessionTokenManager(keys KeyProvider, issuer string, ttl time.Duration) (*SessionTokenManager, error) {
	if keys == nil {
		return nil, fmt.Errorf("jwt: key provider not configured")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionTokenManager{
		keys:   keys,
		issuer: strings.TrimSpace(issuer),
		ttl:    ttl,
	}, nil
}

// TTL is the lifetime of issued tokens.
func (m *SessionTokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a session token for accountID valid from now for the configured TTL.
func (m *SessionTokenManager) Issue(accountID string, now time.Time) (domain.IssuedSession, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return domain.IssuedSession{}, fmt.Errorf("jwt: account id is required")
	}

	signingKey, err := m.keys.GetSigningKey()
	if err != nil {
		return domain.IssuedSession{}, fmt.Errorf("jwt: get signing key: %w", err)
	}

	now = now.UTC().Truncate(time.Second)
	expiresAt := now.Add(m.ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = m.keys.KeyID()

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return domain.IssuedSession{}, fmt.Errorf("jwt: sign token: %w", err)
	}

	return domain.IssuedSession{Token: signed, ExpiresAt: expiresAt, TTL: m.ttl}, nil
}

// Verify checks the signature against the public key, the algorithm against
// the RS256 allow-list and the expiry against now. Any failure is ErrInvalidSession.
func (m *SessionTokenManager) Verify(tokenString string, now time.Time) (domain.SessionClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return domain.SessionClaims{}, ErrInvalidSession
	}

	publicKey, err := m.keys.GetVerificationKey()
	if err != nil {
		return domain.SessionClaims{}, fmt.Errorf("jwt: get verification key: %w", err)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingAlgorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	var claims SessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return publicKey, nil
	}, opts...)
	if err != nil || !token.Valid {
		return domain.SessionClaims{}, ErrInvalidSession
	}

	if claims.Subject == "" || claims.IssuedAt == nil {
		return domain.SessionClaims{}, ErrInvalidSession
	}

	return domain.SessionClaims{
		AccountID: claims.Subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// JWKS renders the verification key as a JSON Web Key Set.
func (m *SessionTokenManager) JWKS() ([]byte, error) {
	publicKey, err := m.keys.GetVerificationKey()
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"use": "sig",
			"alg": signingAlgorithm,
			"kid": m.keys.KeyID(),
			"n":   base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(publicKey.E)).Bytes()),
		}},
	}
	return json.Marshal(payload)
}

var (
	_ port.SessionTokenIssuer   = (*SessionTokenManager)(nil)
	_ port.SessionTokenVerifier = (*SessionTokenManager)(nil)
)
