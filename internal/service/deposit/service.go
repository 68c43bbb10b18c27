package deposit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ej-moran/tillpoint/internal/domain"
	"github.com/ej-moran/tillpoint/internal/logging"
	"github.com/ej-moran/tillpoint/internal/metrics"
)

type depositRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BankDeposit, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.BankDeposit, error)
	MarkDeposited(ctx context.Context, tx *sql.Tx, id uuid.UUID, depositedAt time.Time) (bool, error)
	ListByStatus(ctx context.Context, status domain.DepositStatus) ([]domain.BankDeposit, error)
}

type balanceRepository interface {
	ListByDeposit(ctx context.Context, depositID uuid.UUID) ([]domain.TillBalance, error)
}

// Service finalizes bank deposits once the collected cash has been banked.
type Service struct {
	deposits depositRepository
	balances balanceRepository
	db       *sql.DB
}

func NewService(deposits depositRepository, balances balanceRepository, db *sql.DB) *Service {
	return &Service{deposits: deposits, balances: balances, db: db}
}

// Deposit marks an open deposit as banked. Already-banked deposits are
// rejected.
func (s *Service) Deposit(ctx context.Context, depositID uuid.UUID) (*domain.BankDeposit, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Deposit: begin tx: %w", err)
	}
	defer tx.Rollback()

	deposit, err := s.deposits.GetForUpdate(ctx, tx, depositID)
	if err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}
	if deposit.Status != domain.DepositStatusUndeposited {
		return nil, fmt.Errorf("Deposit: %w", domain.ErrAlreadyDeposited)
	}

	now := time.Now().UTC()
	ok, err := s.deposits.MarkDeposited(ctx, tx, deposit.ID, now)
	if err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("Deposit: %w", domain.ErrAlreadyDeposited)
	}
	deposit.Status = domain.DepositStatusDeposited
	deposit.DepositedAt = &now

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Deposit: commit: %w", err)
	}
	metrics.IncDeposit()

	log.Info("deposit banked",
		"deposit_id", deposit.ID,
		"account_id", deposit.AccountID,
		"amount", deposit.Amount,
	)
	return deposit, nil
}

func (s *Service) GetDeposit(ctx context.Context, depositID uuid.UUID) (*domain.BankDeposit, []domain.TillBalance, error) {
	deposit, err := s.deposits.GetByID(ctx, depositID)
	if err != nil {
		return nil, nil, fmt.Errorf("GetDeposit: %w", err)
	}
	balances, err := s.balances.ListByDeposit(ctx, depositID)
	if err != nil {
		return nil, nil, fmt.Errorf("GetDeposit: %w", err)
	}
	return deposit, balances, nil
}

func (s *Service) ListDeposits(ctx context.Context, status domain.DepositStatus) ([]domain.BankDeposit, error) {
	deposits, err := s.deposits.ListByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("ListDeposits: %w", err)
	}
	return deposits, nil
}
