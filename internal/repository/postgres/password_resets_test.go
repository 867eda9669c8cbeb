package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/repository"
)

func TestPasswordResetRepository_CreateUpserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewPasswordResetRepository(mock)

	now := time.Now().UTC()
	record := domain.PasswordResetRecord{
		AccountID: "acc-1",
		TokenHash: "abc123",
		ExpiresAt: now.Add(15 * time.Minute),
		CreatedAt: now,
	}

	mock.ExpectExec(`INSERT INTO hackreg\.password_resets .* ON CONFLICT \(account_id\) DO UPDATE`).
		WithArgs(record.AccountID, record.TokenHash, record.ExpiresAt, record.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), record); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPasswordResetRepository_GetByAccountID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewPasswordResetRepository(mock)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"account_id", "token_hash", "expires_at", "created_at"}).
		AddRow("acc-1", "abc123", now.Add(time.Minute), now)
	mock.ExpectQuery(`SELECT .*FROM hackreg\.password_resets`).WithArgs("acc-1").WillReturnRows(rows)
	mock.ExpectQuery(`SELECT .*FROM hackreg\.password_resets`).WithArgs("acc-2").WillReturnError(pgx.ErrNoRows)

	record, err := repo.GetByAccountID(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("GetByAccountID returned error: %v", err)
	}
	if record.TokenHash != "abc123" {
		t.Fatalf("unexpected record %+v", record)
	}

	if _, err := repo.GetByAccountID(context.Background(), "acc-2"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPasswordResetRepository_Consume(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewPasswordResetRepository(mock)
	now := time.Now().UTC()

	mock.ExpectExec(`DELETE FROM hackreg\.password_resets WHERE account_id = \$1 AND token_hash = \$2 AND expires_at > \$3`).
		WithArgs("acc-1", "abc123", now).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM hackreg\.password_resets`).
		WithArgs("acc-1", "abc123", now).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.Consume(context.Background(), "acc-1", "abc123", now); err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if err := repo.Consume(context.Background(), "acc-1", "abc123", now); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound once consumed, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
