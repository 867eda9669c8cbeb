package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/port"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/repository"
)

// SignupService reads and updates the signup form of an authenticated account.
type SignupService struct {
	accounts port.AccountRepository
	logger   *zap.Logger
}

func NewSignupService(accounts port.AccountRepository, logger *zap.Logger) *SignupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignupService{accounts: accounts, logger: logger}
}

// Fetch returns the account without its password hash.
func (s *SignupService) Fetch(account *domain.Account) domain.AccountView {
	return account.View()
}

// Update replaces the form and sets the confirmed flag. A confirmed form is immutable.
func (s *SignupService) Update(ctx context.Context, account *domain.Account, confirmed bool, form domain.SignupForm) error {
	if account.Confirmed {
		return ErrSignupConfirmed
	}
	update := domain.AccountUpdate{Confirmed: &confirmed, Form: form}
	if err := s.accounts.UpdateByID(ctx, account.ID, update); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidSession
		}
		return domain.NewInternal(fmt.Errorf("update signup form: %w", err))
	}
	if confirmed {
		s.logger.Info("signup form confirmed", zap.String("account_id", account.ID))
	}
	return nil
}
