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

const depositColumns = `id, account_id, status, amount, deposited_at, created_at`

type DepositRepository struct {
	db *sql.DB
}

func NewDepositRepository(db *sql.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

func (r *DepositRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.BankDeposit, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+depositColumns+` FROM bank_deposits WHERE id = $1`, id,
	)
	d, err := scanDeposit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return d, nil
}

func (r *DepositRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.BankDeposit, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+depositColumns+` FROM bank_deposits WHERE id = $1 FOR UPDATE`, id,
	)
	d, err := scanDeposit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return d, nil
}

// GetUndepositedForUpdate returns the account's open deposit, locked, or
// ErrNotFound when the account has none.
func (r *DepositRepository) GetUndepositedForUpdate(ctx context.Context, tx *sql.Tx, accountID uuid.UUID) (*domain.BankDeposit, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+depositColumns+` FROM bank_deposits
		 WHERE account_id = $1 AND status = $2 FOR UPDATE`,
		accountID, domain.DepositStatusUndeposited,
	)
	d, err := scanDeposit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetUndepositedForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetUndepositedForUpdate: %w", err)
	}
	return d, nil
}

func (r *DepositRepository) Create(ctx context.Context, tx *sql.Tx, d *domain.BankDeposit) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO bank_deposits (id, account_id, status, amount, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		d.ID, d.AccountID, d.Status, d.Amount, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *DepositRepository) UpdateAmount(ctx context.Context, tx *sql.Tx, id uuid.UUID, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE bank_deposits SET amount = $2 WHERE id = $1`, id, amount,
	)
	if err != nil {
		return fmt.Errorf("UpdateAmount: %w", err)
	}
	return nil
}

// MarkDeposited finalizes an open deposit. Reports false when the deposit
// was already banked.
func (r *DepositRepository) MarkDeposited(ctx context.Context, tx *sql.Tx, id uuid.UUID, depositedAt time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE bank_deposits SET status = $3, deposited_at = $4
		 WHERE id = $1 AND status = $2`,
		id, domain.DepositStatusUndeposited, domain.DepositStatusDeposited, depositedAt,
	)
	if err != nil {
		return false, fmt.Errorf("MarkDeposited: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("MarkDeposited: rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *DepositRepository) ListByStatus(ctx context.Context, status domain.DepositStatus) ([]domain.BankDeposit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+depositColumns+` FROM bank_deposits
		 WHERE status = $1 ORDER BY created_at DESC`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByStatus: %w", err)
	}
	defer rows.Close()

	var deposits []domain.BankDeposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByStatus: scan: %w", err)
		}
		deposits = append(deposits, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByStatus: rows: %w", err)
	}
	return deposits, nil
}

func scanDeposit(s scanner) (*domain.BankDeposit, error) {
	var d domain.BankDeposit
	err := s.Scan(
		&d.ID, &d.AccountID, &d.Status, &d.Amount, &d.DepositedAt, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
