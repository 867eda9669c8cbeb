package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/port"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/security"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/repository"
)

// AuthService coordinates registration and login.
type AuthService struct {
	accounts port.AccountRepository
	hasher   port.PasswordHasher
	sessions *SessionService
	limiters *RateLimiters
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	accounts port.AccountRepository,
	hasher port.PasswordHasher,
	sessions *SessionService,
	limiters *RateLimiters,
	events port.EventPublisher,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		accounts: accounts,
		hasher:   hasher,
		sessions: sessions,
		limiters: limiters,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the clock used for account timestamps.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// Credentials identify a client attempting to register or log in.
type Credentials struct {
	Email    string
	Password string
	ClientIP string
}

// Register creates an account and signs the client in.
func (s *AuthService) Register(ctx context.Context, creds Credentials) (*domain.Account, domain.IssuedSession, error) {
	email := NormalizeEmail(creds.Email)

	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return nil, domain.IssuedSession{}, ErrAccountExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, domain.IssuedSession{}, domain.NewInternal(fmt.Errorf("lookup account: %w", err))
	}

	passwordHash, err := s.hasher.Hash(creds.Password)
	if err != nil {
		return nil, domain.IssuedSession{}, domain.NewInternal(fmt.Errorf("hash password: %w", err))
	}

	now := s.now().UTC()
	account := domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Form:         domain.EmptySignupForm(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		// A concurrent registration won the unique index.
		if errors.Is(err, repository.ErrConflict) {
			return nil, domain.IssuedSession{}, ErrAccountExists
		}
		return nil, domain.IssuedSession{}, domain.NewInternal(fmt.Errorf("create account: %w", err))
	}

	session, err := s.sessions.Issue(account.ID)
	if err != nil {
		return nil, domain.IssuedSession{}, err
	}

	s.publish("account.registered", func() error {
		return s.events.PublishAccountRegistered(ctx, domain.AccountRegisteredEvent{
			EventID:      uuid.NewString(),
			AccountID:    account.ID,
			Email:        account.Email,
			RegisteredAt: now,
			IPAddress:    creds.ClientIP,
		})
	})

	s.logger.Info("account registered", zap.String("account_id", account.ID))
	return &account, session, nil
}

// Login verifies credentials. Unknown emails spend the per-IP budget and wrong
// passwords spend the per-(email, IP) budget; a successful login clears the latter.
func (s *AuthService) Login(ctx context.Context, creds Credentials) (*domain.Account, domain.IssuedSession, error) {
	email := NormalizeEmail(creds.Email)
	pairKey := EmailAndIPKey(email, creds.ClientIP)

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, domain.IssuedSession{}, domain.NewInternal(fmt.Errorf("lookup account: %w", err))
		}
		s.burnVerification(creds.Password)
		if _, err := s.limiters.LoginByIP.Enforce(ctx, creds.ClientIP, ErrTooManyLoginAttempts); err != nil {
			return nil, domain.IssuedSession{}, err
		}
		return nil, domain.IssuedSession{}, ErrInvalidCredentials
	}

	// An exhausted pair is rejected before the password is checked so that a
	// correct guess inside the lockout reveals nothing.
	exhausted, err := s.limiters.LoginByEmailAndIP.Exhausted(ctx, pairKey)
	if err != nil {
		return nil, domain.IssuedSession{}, err
	}
	if exhausted {
		return nil, domain.IssuedSession{}, ErrTooManyLoginAttempts
	}

	ok, err := s.hasher.Verify(creds.Password, account.PasswordHash)
	if err != nil {
		return nil, domain.IssuedSession{}, domain.NewInternal(fmt.Errorf("verify password: %w", err))
	}
	if !ok {
		if _, err := s.limiters.LoginByEmailAndIP.Enforce(ctx, pairKey, ErrTooManyLoginAttempts); err != nil {
			return nil, domain.IssuedSession{}, err
		}
		return nil, domain.IssuedSession{}, ErrInvalidCredentials
	}

	if err := s.limiters.LoginByEmailAndIP.Reset(ctx, pairKey); err != nil {
		return nil, domain.IssuedSession{}, err
	}

	if security.IsLegacyHash(account.PasswordHash) {
		s.upgradeHash(ctx, account, creds.Password)
	}

	session, err := s.sessions.Issue(account.ID)
	if err != nil {
		return nil, domain.IssuedSession{}, err
	}
	return account, session, nil
}

// upgradeHash rewrites a legacy bcrypt hash as argon2id. Failure keeps the old hash.
func (s *AuthService) upgradeHash(ctx context.Context, account *domain.Account, password string) {
	upgraded, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn("rehash legacy password failed", zap.String("account_id", account.ID), zap.Error(err))
		return
	}
	if err := s.accounts.UpdateByID(ctx, account.ID, domain.AccountUpdate{PasswordHash: &upgraded}); err != nil {
		s.logger.Warn("store upgraded password hash failed", zap.String("account_id", account.ID), zap.Error(err))
		return
	}
	account.PasswordHash = upgraded
	s.logger.Info("legacy password hash upgraded", zap.String("account_id", account.ID))
}

// burnVerification spends roughly the cost of a real password check.
func (s *AuthService) burnVerification(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			s.logger.Warn("prepare dummy password hash failed", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(password, s.dummyHash)
	}
}

func (s *AuthService) publish(eventType string, send func() error) {
	publishEvent(s.logger, s.events, eventType, send)
}

func publishEvent(logger *zap.Logger, events port.EventPublisher, eventType string, send func() error) {
	if events == nil {
		return
	}
	if err := send(); err != nil {
		logger.Warn("publish event failed", zap.String("event_type", eventType), zap.Error(err))
	}
}
