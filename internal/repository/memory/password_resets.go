package memory

import (
	"context"
	"sync"
	"time"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/port"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/repository"
)

// PasswordResetRepository is a process-local reset ledger keyed by account.
type PasswordResetRepository struct {
	mu      sync.Mutex
	records map[string]domain.PasswordResetRecord
}

// NewPasswordResetRepository constructs an empty ledger.
func NewPasswordResetRepository() *PasswordResetRepository {
	return &PasswordResetRepository{records: make(map[string]domain.PasswordResetRecord)}
}

func (r *PasswordResetRepository) Create(_ context.Context, record domain.PasswordResetRecord) error {
	r.mu.Lock()
	r.records[record.AccountID] = record
	r.mu.Unlock()
	return nil
}

func (r *PasswordResetRepository) GetByAccountID(_ context.Context, accountID string) (*domain.PasswordResetRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[accountID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &record, nil
}

// Consume removes the record under the same lock that checks it.
func (r *PasswordResetRepository) Consume(_ context.Context, accountID, tokenHash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[accountID]
	if !ok || record.TokenHash != tokenHash || record.Expired(now) {
		return repository.ErrNotFound
	}
	delete(r.records, accountID)
	return nil
}

var _ port.PasswordResetRepository = (*PasswordResetRepository)(nil)
