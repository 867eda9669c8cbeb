package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

// pgExecutor is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func marshalForm(form map[string]any) ([]byte, error) {
	if form == nil {
		return []byte("{}"), nil
	}

	payload, err := json.Marshal(form)
	if err != nil {
		return nil, fmt.Errorf("marshal form: %w", err)
	}
	return payload, nil
}

func unmarshalForm(payload []byte) (map[string]any, error) {
	if len(payload) == 0 {
		return nil, nil
	}

	var form map[string]any
	if err := json.Unmarshal(payload, &form); err != nil {
		return nil, fmt.Errorf("unmarshal form: %w", err)
	}
	return form, nil
}
