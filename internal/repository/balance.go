package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ej-moran/tillpoint/internal/domain"
)

const balanceColumns = `id, till_id, status, amount, cash_float, deposit_id, end_time, created_at`

type BalanceRepository struct {
	db *sql.DB
}

func NewBalanceRepository(db *sql.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TillBalance, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM till_balances WHERE id = $1`, id,
	)
	b, err := scanBalance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return b, nil
}

func (r *BalanceRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.TillBalance, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM till_balances WHERE id = $1 FOR UPDATE`, id,
	)
	b, err := scanBalance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return b, nil
}

// GetUnclearedForUpdate returns the till's open uncleared balance, locked,
// or ErrNotFound if the till has none.
func (r *BalanceRepository) GetUnclearedForUpdate(ctx context.Context, tx *sql.Tx, tillID uuid.UUID) (*domain.TillBalance, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM till_balances
		 WHERE till_id = $1 AND status = $2 FOR UPDATE`,
		tillID, domain.BalanceStatusUncleared,
	)
	b, err := scanBalance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetUnclearedForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetUnclearedForUpdate: %w", err)
	}
	return b, nil
}

// GetOpenByTill returns the till's current non-cleared balance, if any.
func (r *BalanceRepository) GetOpenByTill(ctx context.Context, tillID uuid.UUID) (*domain.TillBalance, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM till_balances
		 WHERE till_id = $1 AND status <> $2`,
		tillID, domain.BalanceStatusCleared,
	)
	b, err := scanBalance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetOpenByTill: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetOpenByTill: %w", err)
	}
	return b, nil
}

func (r *BalanceRepository) HasInProgress(ctx context.Context, tx *sql.Tx, tillID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM till_balances WHERE till_id = $1 AND status = $2
		)`,
		tillID, domain.BalanceStatusInProgress,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("HasInProgress: %w", err)
	}
	return exists, nil
}

// Create inserts a new open balance. The partial unique index on open
// balances turns a concurrent creation into ErrUnclearedTillExists.
func (r *BalanceRepository) Create(ctx context.Context, tx *sql.Tx, b *domain.TillBalance) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO till_balances (id, till_id, status, amount, cash_float, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.TillID, b.Status, b.Amount, b.CashFloat, b.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrUnclearedTillExists)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// UpdateStatus performs a conditional status transition and reports whether
// a row actually changed, so callers can treat a lost race as a precondition
// failure instead of overwriting state.
func (r *BalanceRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, from, to domain.BalanceStatus, endTime *time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE till_balances SET status = $3, end_time = COALESCE($4, end_time)
		 WHERE id = $1 AND status = $2`,
		id, from, to, endTime,
	)
	if err != nil {
		return false, fmt.Errorf("UpdateStatus: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *BalanceRepository) UpdateAmount(ctx context.Context, tx *sql.Tx, id uuid.UUID, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE till_balances SET amount = $2 WHERE id = $1`, id, amount,
	)
	if err != nil {
		return fmt.Errorf("UpdateAmount: %w", err)
	}
	return nil
}

func (r *BalanceRepository) LinkDeposit(ctx context.Context, tx *sql.Tx, id, depositID uuid.UUID) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE till_balances SET deposit_id = $2 WHERE id = $1`, id, depositID,
	)
	if err != nil {
		return fmt.Errorf("LinkDeposit: %w", err)
	}
	return nil
}

func (r *BalanceRepository) SumByDeposit(ctx context.Context, tx *sql.Tx, depositID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM till_balances WHERE deposit_id = $1`,
		depositID,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("SumByDeposit: %w", err)
	}
	return total, nil
}

func (r *BalanceRepository) ListByDeposit(ctx context.Context, depositID uuid.UUID) ([]domain.TillBalance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+balanceColumns+` FROM till_balances
		 WHERE deposit_id = $1 ORDER BY end_time`,
		depositID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByDeposit: %w", err)
	}
	defer rows.Close()

	var balances []domain.TillBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByDeposit: scan: %w", err)
		}
		balances = append(balances, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByDeposit: rows: %w", err)
	}
	return balances, nil
}

func scanBalance(s scanner) (*domain.TillBalance, error) {
	var b domain.TillBalance
	err := s.Scan(
		&b.ID, &b.TillID, &b.Status, &b.Amount, &b.CashFloat,
		&b.DepositID, &b.EndTime, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
