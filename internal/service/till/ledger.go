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
	"github.com/ej-moran/tillpoint/internal/metrics"
)

// countItem links an item into a till balance and recomputes the balance
// total. When target is nil the item's till resolves (or lazily creates) its
// open uncleared balance. Items that are not countable yet, or are already
// counted, are a no-op; an already-counted adjustment instead triggers a
// recompute of the balance it belongs to.
func (s *Service) countItem(ctx context.Context, tx *sql.Tx, item *domain.BalanceItem, target *domain.TillBalance) error {
	switch item.Kind {
	case domain.ItemKindPayment, domain.ItemKindRefund:
		if item.Status != domain.ItemStatusPosted {
			return nil
		}
	case domain.ItemKindAdjustment:
	default:
		return fmt.Errorf("countItem: %s: %w", item.Kind, domain.ErrCantAddToTill)
	}

	if item.BalanceID != nil {
		if item.Kind != domain.ItemKindAdjustment {
			return nil
		}
		balance, err := s.balances.GetForUpdate(ctx, tx, *item.BalanceID)
		if err != nil {
			return fmt.Errorf("countItem: %w", err)
		}
		if _, err := s.recomputeBalance(ctx, tx, balance); err != nil {
			return fmt.Errorf("countItem: %w", err)
		}
		return nil
	}

	if item.TillID == nil {
		return fmt.Errorf("countItem: %w", domain.ErrMissingTill)
	}

	balance := target
	if balance == nil {
		var err error
		balance, err = s.openBalanceForUpdate(ctx, tx, *item.TillID)
		if err != nil {
			return fmt.Errorf("countItem: %w", err)
		}
	} else {
		if balance.Status == domain.BalanceStatusCleared {
			return fmt.Errorf("countItem: %w", domain.ErrClearedTill)
		}
		if balance.TillID != *item.TillID {
			return fmt.Errorf("countItem: %w", domain.ErrDifferentTills)
		}
	}

	linked, err := s.items.Link(ctx, tx, item.ID, balance.ID)
	if err != nil {
		return fmt.Errorf("countItem: %w", err)
	}
	if !linked {
		// Counted elsewhere in the meantime; never link twice.
		return nil
	}
	item.BalanceID = &balance.ID

	if _, err := s.recomputeBalance(ctx, tx, balance); err != nil {
		return fmt.Errorf("countItem: %w", err)
	}
	metrics.IncItemCounted(string(item.Kind))
	return nil
}

// openBalanceForUpdate returns the till's uncleared balance, creating one
// seeded with the till's current float when none exists. The till row lock
// serializes concurrent creations; the partial unique index backstops them.
func (s *Service) openBalanceForUpdate(ctx context.Context, tx *sql.Tx, tillID uuid.UUID) (*domain.TillBalance, error) {
	till, err := s.tills.GetForUpdate(ctx, tx, tillID)
	if err != nil {
		return nil, fmt.Errorf("openBalanceForUpdate: %w", err)
	}

	balance, err := s.balances.GetUnclearedForUpdate(ctx, tx, tillID)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("openBalanceForUpdate: %w", err)
	}

	inProgress, err := s.balances.HasInProgress(ctx, tx, tillID)
	if err != nil {
		return nil, fmt.Errorf("openBalanceForUpdate: %w", err)
	}
	if inProgress {
		return nil, fmt.Errorf("openBalanceForUpdate: %w", domain.ErrClearInProgress)
	}

	balance = &domain.TillBalance{
		ID:        uuid.New(),
		TillID:    tillID,
		Status:    domain.BalanceStatusUncleared,
		Amount:    decimal.Zero,
		CashFloat: till.TillFloat,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.balances.Create(ctx, tx, balance); err != nil {
		return nil, fmt.Errorf("openBalanceForUpdate: %w", err)
	}
	return balance, nil
}

// recomputeBalance refreshes the balance's cached total from its items.
// Reports false, without writing, when the stored amount already matches.
func (s *Service) recomputeBalance(ctx context.Context, tx *sql.Tx, balance *domain.TillBalance) (bool, error) {
	total, err := s.items.SumByBalance(ctx, tx, balance.ID)
	if err != nil {
		return false, fmt.Errorf("recomputeBalance: %w", err)
	}
	if total.Equal(balance.Amount) {
		return false, nil
	}
	if err := s.balances.UpdateAmount(ctx, tx, balance.ID, total); err != nil {
		return false, fmt.Errorf("recomputeBalance: %w", err)
	}
	balance.Amount = total
	return true, nil
}
