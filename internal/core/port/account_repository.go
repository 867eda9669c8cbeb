package port

import (
	"context"
	"time"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
)

// AccountRepository exposes persistence behavior for accounts.
// Create returns repository.ErrConflict when the email is already taken.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	UpdateByID(ctx context.Context, id string, update domain.AccountUpdate) error
	DeleteByID(ctx context.Context, id string) error
}

// PasswordResetRepository exposes persistence behavior for the reset ledger.
// At most one record is kept per account.
//
// Consume deletes the account's record only if it still carries tokenHash and
// has not expired at now. It returns repository.ErrNotFound when nothing was
// deleted, so of two concurrent callers holding the same secret exactly one wins.
type PasswordResetRepository interface {
	Create(ctx context.Context, record domain.PasswordResetRecord) error
	GetByAccountID(ctx context.Context, accountID string) (*domain.PasswordResetRecord, error)
	Consume(ctx context.Context, accountID, tokenHash string, now time.Time) error
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
