package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/port"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/security"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/repository"
)

// SessionTokens issues and verifies session tokens.
type SessionTokens interface {
	port.SessionTokenIssuer
	port.SessionTokenVerifier
}

// SessionService turns session tokens into accounts. The account is always re-read
// from the store so that deleted accounts lose access immediately.
type SessionService struct {
	tokens   SessionTokens
	accounts port.AccountRepository
	now      func() time.Time
}

// NewSessionService constructs a session service.
func NewSessionService(tokens SessionTokens, accounts port.AccountRepository) *SessionService {
	return &SessionService{tokens: tokens, accounts: accounts, now: time.Now}
}

// WithClock overrides the clock used to check token lifetimes.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	if now != nil {
		s.now = now
	}
	return s
}

// Issue signs a new session for accountID.
func (s *SessionService) Issue(accountID string) (domain.IssuedSession, error) {
	session, err := s.tokens.Issue(accountID, s.now())
	if err != nil {
		return domain.IssuedSession{}, domain.NewInternal(fmt.Errorf("issue session: %w", err))
	}
	return session, nil
}

// Authenticate resolves token to its account.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*domain.Account, domain.SessionClaims, error) {
	if token == "" {
		return nil, domain.SessionClaims{}, ErrLoginRequired
	}

	claims, err := s.tokens.Verify(token, s.now())
	if err != nil {
		if errors.Is(err, security.ErrInvalidSession) {
			return nil, domain.SessionClaims{}, ErrInvalidSession
		}
		return nil, domain.SessionClaims{}, domain.NewInternal(fmt.Errorf("verify session: %w", err))
	}

	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.SessionClaims{}, ErrInvalidSession
		}
		return nil, domain.SessionClaims{}, domain.NewInternal(fmt.Errorf("load session account: %w", err))
	}
	return account, claims, nil
}
