package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/port"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/repository"
)

const passwordResetsTable = "hackreg.password_resets"

// PasswordResetRepository implements port.PasswordResetRepository using PostgreSQL.
type PasswordResetRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPasswordResetRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewPasswordResetRepository(exec pgExecutor) *PasswordResetRepository {
	return &PasswordResetRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create stores the record, replacing whatever record the account already had.
func (r *PasswordResetRepository) Create(ctx context.Context, record domain.PasswordResetRecord) error {
	stmt, args, err := r.builder.Insert(passwordResetsTable).
		Columns("account_id", "token_hash", "expires_at", "created_at").
		Values(record.AccountID, record.TokenHash, record.ExpiresAt, record.CreatedAt).
		Suffix("ON CONFLICT (account_id) DO UPDATE SET token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert password reset sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert password reset: %w", err)
	}

	return nil
}

// GetByAccountID fetches the reset record owned by the account.
func (r *PasswordResetRepository) GetByAccountID(ctx context.Context, accountID string) (*domain.PasswordResetRecord, error) {
	stmt, args, err := r.builder.
		Select("account_id", "token_hash", "expires_at", "created_at").
		From(passwordResetsTable).
		Where(squirrel.Eq{"account_id": accountID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select password reset sql: %w", err)
	}

	var record domain.PasswordResetRecord
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&record.AccountID,
		&record.TokenHash,
		&record.ExpiresAt,
		&record.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan password reset: %w", err)
	}

	return &record, nil
}

// Consume deletes the record in a single statement conditioned on the hash and expiry.
func (r *PasswordResetRepository) Consume(ctx context.Context, accountID, tokenHash string, now time.Time) error {
	stmt, args, err := r.builder.Delete(passwordResetsTable).
		Where(squirrel.Eq{"account_id": accountID, "token_hash": tokenHash}).
		Where(squirrel.Gt{"expires_at": now}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume password reset sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("consume password reset: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.PasswordResetRepository = (*PasswordResetRepository)(nil)
