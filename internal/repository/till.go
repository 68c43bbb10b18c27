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

const tillColumns = `id, name, till_float, last_cleared, created_at`

type TillRepository struct {
	db *sql.DB
}

func NewTillRepository(db *sql.DB) *TillRepository {
	return &TillRepository{db: db}
}

func (r *TillRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Till, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tillColumns+` FROM tills WHERE id = $1`, id,
	)
	t, err := scanTill(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrTillNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return t, nil
}

func (r *TillRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Till, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+tillColumns+` FROM tills WHERE id = $1 FOR UPDATE`, id,
	)
	t, err := scanTill(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrTillNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return t, nil
}

func (r *TillRepository) List(ctx context.Context) ([]domain.Till, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tillColumns+` FROM tills ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var tills []domain.Till
	for rows.Next() {
		t, err := scanTill(rows)
		if err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		tills = append(tills, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows: %w", err)
	}
	return tills, nil
}

func (r *TillRepository) Create(ctx context.Context, till *domain.Till) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tills (id, name, till_float, created_at)
		 VALUES ($1, $2, $3, $4)`,
		till.ID, till.Name, till.TillFloat, till.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// UpdateFloat records the declared float and clear time after a till clear.
func (r *TillRepository) UpdateFloat(ctx context.Context, tx *sql.Tx, id uuid.UUID, tillFloat decimal.Decimal, lastCleared time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE tills SET till_float = $2, last_cleared = $3 WHERE id = $1`,
		id, tillFloat, lastCleared,
	)
	if err != nil {
		return fmt.Errorf("UpdateFloat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateFloat: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("UpdateFloat: %w", domain.ErrTillNotFound)
	}
	return nil
}

func scanTill(s scanner) (*domain.Till, error) {
	var t domain.Till
	err := s.Scan(&t.ID, &t.Name, &t.TillFloat, &t.LastCleared, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
