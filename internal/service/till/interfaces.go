package till

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ej-moran/tillpoint/internal/domain"
)

type tillRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Till, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Till, error)
	List(ctx context.Context) ([]domain.Till, error)
	UpdateFloat(ctx context.Context, tx *sql.Tx, id uuid.UUID, tillFloat decimal.Decimal, lastCleared time.Time) error
}

type balanceRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TillBalance, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.TillBalance, error)
	GetUnclearedForUpdate(ctx context.Context, tx *sql.Tx, tillID uuid.UUID) (*domain.TillBalance, error)
	GetOpenByTill(ctx context.Context, tillID uuid.UUID) (*domain.TillBalance, error)
	HasInProgress(ctx context.Context, tx *sql.Tx, tillID uuid.UUID) (bool, error)
	Create(ctx context.Context, tx *sql.Tx, b *domain.TillBalance) error
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, from, to domain.BalanceStatus, endTime *time.Time) (bool, error)
	UpdateAmount(ctx context.Context, tx *sql.Tx, id uuid.UUID, amount decimal.Decimal) error
	LinkDeposit(ctx context.Context, tx *sql.Tx, id, depositID uuid.UUID) error
	SumByDeposit(ctx context.Context, tx *sql.Tx, depositID uuid.UUID) (decimal.Decimal, error)
}

type itemRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BalanceItem, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.BalanceItem, error)
	Create(ctx context.Context, tx *sql.Tx, item *domain.BalanceItem) error
	MarkPosted(ctx context.Context, tx *sql.Tx, id uuid.UUID) (bool, error)
	Link(ctx context.Context, tx *sql.Tx, itemID, balanceID uuid.UUID) (bool, error)
	Unlink(ctx context.Context, tx *sql.Tx, itemID, balanceID uuid.UUID) (bool, error)
	SetTill(ctx context.Context, tx *sql.Tx, itemID, tillID uuid.UUID) error
	SumByBalance(ctx context.Context, tx *sql.Tx, balanceID uuid.UUID) (decimal.Decimal, error)
	ListByBalance(ctx context.Context, balanceID uuid.UUID) ([]domain.BalanceItem, error)
}

type depositRepository interface {
	GetUndepositedForUpdate(ctx context.Context, tx *sql.Tx, accountID uuid.UUID) (*domain.BankDeposit, error)
	Create(ctx context.Context, tx *sql.Tx, d *domain.BankDeposit) error
	UpdateAmount(ctx context.Context, tx *sql.Tx, id uuid.UUID, amount decimal.Decimal) error
}

type accountRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error)
}
