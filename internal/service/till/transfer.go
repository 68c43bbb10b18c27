package till

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/ej-moran/tillpoint/internal/domain"
	"github.com/ej-moran/tillpoint/internal/logging"
	"github.com/ej-moran/tillpoint/internal/metrics"
)

// Transfer moves a single payment or refund from a balance to another
// till's open balance: the item is unlinked, reassigned, the source total
// recomputed, and the item counted into the destination, all in one
// transaction.
func (s *Service) Transfer(ctx context.Context, balanceID, itemID, tillID uuid.UUID) error {
	log := logging.FromContext(ctx)

	if err := s.transfer(ctx, balanceID, itemID, tillID); err != nil {
		metrics.IncTransfer(metrics.ResultError)
		return fmt.Errorf("Transfer: %w", err)
	}
	metrics.IncTransfer(metrics.ResultSuccess)

	log.Info("item transferred",
		"balance_id", balanceID,
		"item_id", itemID,
		"to_till_id", tillID,
	)
	return nil
}

func (s *Service) transfer(ctx context.Context, balanceID, itemID, tillID uuid.UUID) error {
	// Plain read to resolve the source till; both tills are locked before
	// the balance and item rows, matching the order everywhere else.
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Kind != domain.ItemKindPayment && item.Kind != domain.ItemKindRefund {
		return fmt.Errorf("%s: %w", item.Kind, domain.ErrCantAddToTill)
	}
	if item.TillID == nil {
		return domain.ErrMissingTill
	}
	if *item.TillID == tillID {
		return domain.ErrInvalidTransferTill
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Both tills in a fixed order so two opposite transfers cannot deadlock.
	if err := s.lockTillsInOrder(ctx, tx, *item.TillID, tillID); err != nil {
		return err
	}

	balance, err := s.balances.GetForUpdate(ctx, tx, balanceID)
	if err != nil {
		return err
	}
	if balance.Status != domain.BalanceStatusUncleared {
		return domain.ErrClearedTill
	}

	item, err = s.items.GetForUpdate(ctx, tx, itemID)
	if err != nil {
		return err
	}
	if item.TillID == nil {
		return domain.ErrMissingTill
	}
	if *item.TillID == tillID {
		return domain.ErrInvalidTransferTill
	}

	// A concurrent move leaves the item linked elsewhere; Unlink then
	// matches zero rows and the transfer is refused.
	unlinked, err := s.items.Unlink(ctx, tx, item.ID, balance.ID)
	if err != nil {
		return err
	}
	if !unlinked {
		return domain.ErrMissingRelationship
	}
	item.BalanceID = nil

	if err := s.items.SetTill(ctx, tx, item.ID, tillID); err != nil {
		return err
	}
	item.TillID = &tillID

	if _, err := s.recomputeBalance(ctx, tx, balance); err != nil {
		return err
	}
	if err := s.countItem(ctx, tx, item, nil); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Service) lockTillsInOrder(ctx context.Context, tx *sql.Tx, ids ...uuid.UUID) error {
	sorted := append([]uuid.UUID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})
	for _, id := range sorted {
		if _, err := s.tills.GetForUpdate(ctx, tx, id); err != nil {
			return fmt.Errorf("lockTillsInOrder: %w", err)
		}
	}
	return nil
}
