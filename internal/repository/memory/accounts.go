package memory

import (
	"context"
	"sync"
	"time"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/port"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/repository"
)

// AccountRepository is a process-local account store used for development and tests.
type AccountRepository struct {
	mu      sync.RWMutex
	byID    map[string]domain.Account
	byEmail map[string]string
}

// NewAccountRepository constructs an empty store.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		byID:    make(map[string]domain.Account),
		byEmail: make(map[string]string),
	}
}

func (r *AccountRepository) Create(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[account.Email]; taken {
		return repository.ErrConflict
	}
	if _, taken := r.byID[account.ID]; taken {
		return repository.ErrConflict
	}

	account.Form = cloneForm(account.Form)
	r.byID[account.ID] = account
	r.byEmail[account.Email] = account.ID
	return nil
}

func (r *AccountRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	account.Form = cloneForm(account.Form)
	return &account, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	r.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *AccountRepository) UpdateByID(_ context.Context, id string, update domain.AccountUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if update.PasswordHash != nil {
		account.PasswordHash = *update.PasswordHash
	}
	if update.Confirmed != nil {
		account.Confirmed = *update.Confirmed
	}
	if update.Form != nil {
		account.Form = cloneForm(update.Form)
	}
	account.UpdatedAt = time.Now().UTC()
	r.byID[id] = account
	return nil
}

func (r *AccountRepository) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.byEmail, account.Email)
	return nil
}

// Ping always succeeds.
func (r *AccountRepository) Ping(context.Context) error { return nil }

func cloneForm(form domain.SignupForm) domain.SignupForm {
	if form == nil {
		return nil
	}
	out := make(domain.SignupForm, len(form))
	for k, v := range form {
		out[k] = v
	}
	return out
}

var _ port.AccountRepository = (*AccountRepository)(nil)
