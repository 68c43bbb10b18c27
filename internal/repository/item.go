package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ej-moran/tillpoint/internal/domain"
)

const itemColumns = `id, till_id, balance_id, kind, status, amount, credit, created_at`

type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.BalanceItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM balance_items WHERE id = $1`, id,
	)
	i, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return i, nil
}

func (r *ItemRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.BalanceItem, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM balance_items WHERE id = $1 FOR UPDATE`, id,
	)
	i, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return i, nil
}

func (r *ItemRepository) Create(ctx context.Context, tx *sql.Tx, item *domain.BalanceItem) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO balance_items (id, till_id, balance_id, kind, status, amount, credit, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		item.ID, item.TillID, item.BalanceID, item.Kind, item.Status,
		item.Amount, item.Credit, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// MarkPosted transitions a pending item to posted. Reports false when the
// item was not pending.
func (r *ItemRepository) MarkPosted(ctx context.Context, tx *sql.Tx, id uuid.UUID) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE balance_items SET status = $3 WHERE id = $1 AND status = $2`,
		id, domain.ItemStatusPending, domain.ItemStatusPosted,
	)
	if err != nil {
		return false, fmt.Errorf("MarkPosted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("MarkPosted: rows affected: %w", err)
	}
	return n == 1, nil
}

// Link counts an item against a balance. The balance_id IS NULL guard means
// an item already counted elsewhere is never linked twice; callers check the
// reported outcome.
func (r *ItemRepository) Link(ctx context.Context, tx *sql.Tx, itemID, balanceID uuid.UUID) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE balance_items SET balance_id = $2
		 WHERE id = $1 AND balance_id IS NULL`,
		itemID, balanceID,
	)
	if err != nil {
		return false, fmt.Errorf("Link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Link: rows affected: %w", err)
	}
	return n == 1, nil
}

// Unlink removes the item's link to the given balance. Reports false when no
// such link existed.
func (r *ItemRepository) Unlink(ctx context.Context, tx *sql.Tx, itemID, balanceID uuid.UUID) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE balance_items SET balance_id = NULL
		 WHERE id = $1 AND balance_id = $2`,
		itemID, balanceID,
	)
	if err != nil {
		return false, fmt.Errorf("Unlink: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Unlink: rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *ItemRepository) SetTill(ctx context.Context, tx *sql.Tx, itemID, tillID uuid.UUID) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE balance_items SET till_id = $2 WHERE id = $1`, itemID, tillID,
	)
	if err != nil {
		return fmt.Errorf("SetTill: %w", err)
	}
	return nil
}

// SumByBalance computes the signed total of a balance's items: credits add,
// debits subtract.
func (r *ItemRepository) SumByBalance(ctx context.Context, tx *sql.Tx, balanceID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN credit THEN amount ELSE -amount END), 0)
		 FROM balance_items WHERE balance_id = $1`,
		balanceID,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("SumByBalance: %w", err)
	}
	return total, nil
}

func (r *ItemRepository) ListByBalance(ctx context.Context, balanceID uuid.UUID) ([]domain.BalanceItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM balance_items
		 WHERE balance_id = $1 ORDER BY created_at`,
		balanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByBalance: %w", err)
	}
	defer rows.Close()

	var items []domain.BalanceItem
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByBalance: scan: %w", err)
		}
		items = append(items, *i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByBalance: rows: %w", err)
	}
	return items, nil
}

func scanItem(s scanner) (*domain.BalanceItem, error) {
	var i domain.BalanceItem
	err := s.Scan(
		&i.ID, &i.TillID, &i.BalanceID, &i.Kind, &i.Status,
		&i.Amount, &i.Credit, &i.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}
