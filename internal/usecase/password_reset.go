package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/port"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/logger"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/security"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/repository"
)

const (
	defaultResetTTL     = 10 * time.Minute
	defaultMailDeadline = 30 * time.Second
)

// ResetMailTemplate renders the reset email. ${TOKEN} and ${EMAIL} are substituted.
type ResetMailTemplate struct {
	Subject string
	HTML    string
}

// Render fills the template for one recipient.
func (t ResetMailTemplate) Render(email, token string) port.MailMessage {
	replacer := strings.NewReplacer("${TOKEN}", token, "${EMAIL}", email)
	return port.MailMessage{
		To:      email,
		Subject: replacer.Replace(t.Subject),
		HTML:    replacer.Replace(t.HTML),
	}
}

// PasswordResetService issues and redeems one-time reset secrets.
type PasswordResetService struct {
	accounts port.AccountRepository
	resets   port.PasswordResetRepository
	hasher   port.PasswordHasher
	mailer   port.Mailer
	template ResetMailTemplate
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time
	ttl      time.Duration

	dispatch func(func())
	inflight sync.WaitGroup
}

// NewPasswordResetService constructs a reset service. Emails are sent in the background.
func NewPasswordResetService(
	accounts port.AccountRepository,
	resets port.PasswordResetRepository,
	hasher port.PasswordHasher,
	mailer port.Mailer,
	template ResetMailTemplate,
	events port.EventPublisher,
	logger *zap.Logger,
) *PasswordResetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PasswordResetService{
		accounts: accounts,
		resets:   resets,
		hasher:   hasher,
		mailer:   mailer,
		template: template,
		events:   events,
		logger:   logger,
		now:      time.Now,
		ttl:      defaultResetTTL,
	}
	s.dispatch = func(fn func()) { go fn() }
	return s
}

// WithClock overrides the clock used for expiry decisions.
func (s *PasswordResetService) WithClock(now func() time.Time) *PasswordResetService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithTTL overrides how long a reset secret stays redeemable.
func (s *PasswordResetService) WithTTL(ttl time.Duration) *PasswordResetService {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// WithDispatcher overrides how mail delivery is scheduled.
func (s *PasswordResetService) WithDispatcher(dispatch func(func())) *PasswordResetService {
	if dispatch != nil {
		s.dispatch = dispatch
	}
	return s
}

// ResetRequestInput identifies who asked for a reset.
type ResetRequestInput struct {
	Email    string
	ClientIP string
}

// RequestReset stores a fresh secret for the account and mails it. Unknown emails
// succeed silently so the response does not reveal which emails are registered.
func (s *PasswordResetService) RequestReset(ctx context.Context, input ResetRequestInput) error {
	email := NormalizeEmail(input.Email)
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return domain.NewInternal(fmt.Errorf("lookup account: %w", err))
	}

	secret, err := security.GenerateSecureToken(security.ResetSecretBytes)
	if err != nil {
		return domain.NewInternal(fmt.Errorf("generate reset secret: %w", err))
	}

	now := s.now().UTC()
	record := domain.PasswordResetRecord{
		AccountID: account.ID,
		TokenHash: security.HashToken(secret),
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	// Create replaces any outstanding record, which invalidates its secret.
	if err := s.resets.Create(ctx, record); err != nil {
		return domain.NewInternal(fmt.Errorf("store reset record: %w", err))
	}

	s.sendMail(account.ID, s.template.Render(account.Email, secret))

	publishEvent(s.logger, s.events, "account.password_reset_requested", func() error {
		return s.events.PublishPasswordResetRequested(ctx, domain.PasswordResetRequestedEvent{
			EventID:           uuid.NewString(),
			AccountID:         account.ID,
			MaskedDestination: logger.MaskEmail(account.Email),
			RequestedAt:       now,
			ExpiresAt:         record.ExpiresAt,
			IPAddress:         input.ClientIP,
		})
	})
	return nil
}

func (s *PasswordResetService) sendMail(accountID string, msg port.MailMessage) {
	if s.mailer == nil {
		s.logger.Warn("no mailer configured, reset email dropped", zap.String("account_id", accountID))
		return
	}
	s.inflight.Add(1)
	s.dispatch(func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), defaultMailDeadline)
		defer cancel()
		if err := s.mailer.Send(ctx, msg); err != nil {
			s.logger.Error("send reset email failed", zap.String("account_id", accountID), zap.Error(err))
			return
		}
		s.logger.Info("reset email sent", zap.String("account_id", accountID))
	})
}

// Wait blocks until queued reset emails have been handed to the mailer.
func (s *PasswordResetService) Wait() {
	s.inflight.Wait()
}

// ConfirmResetInput redeems a reset secret.
type ConfirmResetInput struct {
	Email       string
	Token       string
	NewPassword string
}

// ConfirmReset sets a new password when the secret matches an unexpired record. The
// record is consumed atomically before the password is written, so a secret is
// redeemable once even under concurrent confirms. Every failure before that point is
// the same ErrInvalidResetToken.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, input ConfirmResetInput) error {
	account, err := s.accounts.GetByEmail(ctx, NormalizeEmail(input.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return domain.NewInternal(fmt.Errorf("lookup account: %w", err))
	}

	record, err := s.resets.GetByAccountID(ctx, account.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return domain.NewInternal(fmt.Errorf("load reset record: %w", err))
	}

	matches := security.TokenMatchesHash(input.Token, record.TokenHash)
	if !matches || record.Expired(s.now()) {
		return ErrInvalidResetToken
	}

	passwordHash, err := s.hasher.Hash(input.NewPassword)
	if err != nil {
		return domain.NewInternal(fmt.Errorf("hash password: %w", err))
	}

	if err := s.resets.Consume(ctx, account.ID, record.TokenHash, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return domain.NewInternal(fmt.Errorf("consume reset record: %w", err))
	}
	if err := s.accounts.UpdateByID(ctx, account.ID, domain.AccountUpdate{PasswordHash: &passwordHash}); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return domain.NewInternal(fmt.Errorf("update password: %w", err))
	}

	publishEvent(s.logger, s.events, "account.password_changed", func() error {
		return s.events.PublishPasswordChanged(ctx, domain.PasswordChangedEvent{
			EventID:   uuid.NewString(),
			AccountID: account.ID,
			ChangedAt: s.now().UTC(),
			ChangedBy: "password_reset",
		})
	})
	s.logger.Info("password reset confirmed", zap.String("account_id", account.ID))
	return nil
}
