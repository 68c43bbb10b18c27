package till

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ej-moran/tillpoint/internal/domain"
	"github.com/ej-moran/tillpoint/internal/logging"
	"github.com/ej-moran/tillpoint/internal/metrics"
)

// StartClear freezes an uncleared balance for a physical cash count. The
// declared cash float is reconciled against the till's recorded float: any
// difference is written back as a balance adjustment, and the till is
// updated to the declared float.
func (s *Service) StartClear(ctx context.Context, balanceID uuid.UUID, cashFloat decimal.Decimal) (*domain.TillBalance, error) {
	log := logging.FromContext(ctx)

	balance, err := s.startClear(ctx, balanceID, cashFloat)
	if err != nil {
		metrics.IncClear(metrics.ClearModeStart, metrics.ResultError)
		return nil, fmt.Errorf("StartClear: %w", err)
	}
	metrics.IncClear(metrics.ClearModeStart, metrics.ResultSuccess)

	log.Info("till clear started",
		"balance_id", balance.ID,
		"till_id", balance.TillID,
		"declared_float", cashFloat,
		"amount", balance.Amount,
	)
	return balance, nil
}

func (s *Service) startClear(ctx context.Context, balanceID uuid.UUID, cashFloat decimal.Decimal) (*domain.TillBalance, error) {
	// Plain read to resolve the till: the till row is always locked before
	// its balance so concurrent item counting cannot deadlock with a clear.
	balance, err := s.balances.GetByID(ctx, balanceID)
	if err != nil {
		return nil, err
	}
	if balance.Status != domain.BalanceStatusUncleared {
		return nil, domain.ErrInvalidStatusForStartClear
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	till, err := s.tills.GetForUpdate(ctx, tx, balance.TillID)
	if err != nil {
		return nil, err
	}
	balance, err = s.balances.GetForUpdate(ctx, tx, balanceID)
	if err != nil {
		return nil, err
	}
	if balance.Status != domain.BalanceStatusUncleared {
		return nil, domain.ErrInvalidStatusForStartClear
	}

	inProgress, err := s.balances.HasInProgress(ctx, tx, balance.TillID)
	if err != nil {
		return nil, err
	}
	if inProgress {
		return nil, domain.ErrClearInProgress
	}

	// Conditional update is the authority: a concurrent start-clear that
	// won the race leaves zero rows for this one.
	ok, err := s.balances.UpdateStatus(ctx, tx, balance.ID,
		domain.BalanceStatusUncleared, domain.BalanceStatusInProgress, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrClearInProgress
	}
	balance.Status = domain.BalanceStatusInProgress

	if err := s.reconcileFloat(ctx, tx, till, balance, cashFloat); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return balance, nil
}

// Clear completes a clear started earlier, moving the balance into the
// account's open bank deposit.
func (s *Service) Clear(ctx context.Context, balanceID, accountID uuid.UUID) (*domain.TillBalance, error) {
	log := logging.FromContext(ctx)

	balance, err := s.clear(ctx, balanceID, accountID)
	if err != nil {
		metrics.IncClear(metrics.ClearModeFinish, metrics.ResultError)
		return nil, fmt.Errorf("Clear: %w", err)
	}
	metrics.IncClear(metrics.ClearModeFinish, metrics.ResultSuccess)

	log.Info("till cleared",
		"balance_id", balance.ID,
		"till_id", balance.TillID,
		"deposit_id", balance.DepositID,
		"amount", balance.Amount,
	)
	return balance, nil
}

func (s *Service) clear(ctx context.Context, balanceID, accountID uuid.UUID) (*domain.TillBalance, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	balance, err := s.balances.GetForUpdate(ctx, tx, balanceID)
	if err != nil {
		return nil, err
	}
	if balance.Status != domain.BalanceStatusInProgress {
		return nil, domain.ErrInvalidStatusForClear
	}
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ok, err := s.balances.UpdateStatus(ctx, tx, balance.ID,
		domain.BalanceStatusInProgress, domain.BalanceStatusCleared, &now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidStatusForClear
	}
	balance.Status = domain.BalanceStatusCleared
	balance.EndTime = &now

	if err := s.depositBalance(ctx, tx, balance, accountID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return balance, nil
}

// ClearDirect clears an uncleared balance in one step, skipping the
// in-progress count: float reconciliation, deposit linkage, and the till
// update happen in a single transaction.
func (s *Service) ClearDirect(ctx context.Context, balanceID uuid.UUID, cashFloat decimal.Decimal, accountID uuid.UUID) (*domain.TillBalance, error) {
	log := logging.FromContext(ctx)

	balance, err := s.clearDirect(ctx, balanceID, cashFloat, accountID)
	if err != nil {
		metrics.IncClear(metrics.ClearModeDirect, metrics.ResultError)
		return nil, fmt.Errorf("ClearDirect: %w", err)
	}
	metrics.IncClear(metrics.ClearModeDirect, metrics.ResultSuccess)

	log.Info("till cleared",
		"balance_id", balance.ID,
		"till_id", balance.TillID,
		"deposit_id", balance.DepositID,
		"declared_float", cashFloat,
		"amount", balance.Amount,
	)
	return balance, nil
}

func (s *Service) clearDirect(ctx context.Context, balanceID uuid.UUID, cashFloat decimal.Decimal, accountID uuid.UUID) (*domain.TillBalance, error) {
	// Same till-before-balance lock order as startClear.
	balance, err := s.balances.GetByID(ctx, balanceID)
	if err != nil {
		return nil, err
	}
	if balance.Status != domain.BalanceStatusUncleared {
		return nil, domain.ErrInvalidStatusForClear
	}
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	till, err := s.tills.GetForUpdate(ctx, tx, balance.TillID)
	if err != nil {
		return nil, err
	}
	balance, err = s.balances.GetForUpdate(ctx, tx, balanceID)
	if err != nil {
		return nil, err
	}
	if balance.Status != domain.BalanceStatusUncleared {
		return nil, domain.ErrInvalidStatusForClear
	}

	// Reconcile while the balance can still take the adjustment.
	if err := s.reconcileFloat(ctx, tx, till, balance, cashFloat); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ok, err := s.balances.UpdateStatus(ctx, tx, balance.ID,
		domain.BalanceStatusUncleared, domain.BalanceStatusCleared, &now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidStatusForClear
	}
	balance.Status = domain.BalanceStatusCleared
	balance.EndTime = &now

	if err := s.depositBalance(ctx, tx, balance, accountID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return balance, nil
}

// reconcileFloat compares the declared cash float against the till's
// recorded float, synthesizing a posted adjustment for any difference
// (surplus cash is a credit, a shortfall a debit), and moves the till to the
// declared float.
func (s *Service) reconcileFloat(ctx context.Context, tx *sql.Tx, till *domain.Till, balance *domain.TillBalance, cashFloat decimal.Decimal) error {
	diff := cashFloat.Sub(till.TillFloat)
	if !diff.IsZero() {
		adjustment := &domain.BalanceItem{
			ID:        uuid.New(),
			TillID:    &till.ID,
			Kind:      domain.ItemKindAdjustment,
			Status:    domain.ItemStatusPosted,
			Amount:    diff.Abs(),
			Credit:    diff.IsPositive(),
			CreatedAt: time.Now().UTC(),
		}
		if err := s.items.Create(ctx, tx, adjustment); err != nil {
			return fmt.Errorf("reconcileFloat: %w", err)
		}
		if err := s.countItem(ctx, tx, adjustment, balance); err != nil {
			return fmt.Errorf("reconcileFloat: %w", err)
		}
	}

	if err := s.tills.UpdateFloat(ctx, tx, till.ID, cashFloat, time.Now().UTC()); err != nil {
		return fmt.Errorf("reconcileFloat: %w", err)
	}
	return nil
}

// depositBalance links a cleared balance into the account's open deposit,
// creating the deposit when none exists, and refreshes the deposit total.
func (s *Service) depositBalance(ctx context.Context, tx *sql.Tx, balance *domain.TillBalance, accountID uuid.UUID) error {
	deposit, err := s.deposits.GetUndepositedForUpdate(ctx, tx, accountID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("depositBalance: %w", err)
		}
		deposit = &domain.BankDeposit{
			ID:        uuid.New(),
			AccountID: accountID,
			Status:    domain.DepositStatusUndeposited,
			Amount:    decimal.Zero,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.deposits.Create(ctx, tx, deposit); err != nil {
			return fmt.Errorf("depositBalance: %w", err)
		}
	}

	if err := s.balances.LinkDeposit(ctx, tx, balance.ID, deposit.ID); err != nil {
		return fmt.Errorf("depositBalance: %w", err)
	}
	balance.DepositID = &deposit.ID

	total, err := s.balances.SumByDeposit(ctx, tx, deposit.ID)
	if err != nil {
		return fmt.Errorf("depositBalance: %w", err)
	}
	if err := s.deposits.UpdateAmount(ctx, tx, deposit.ID, total); err != nil {
		return fmt.Errorf("depositBalance: %w", err)
	}
	return nil
}
