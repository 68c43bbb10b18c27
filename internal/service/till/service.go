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
)

// Service orchestrates till reconciliation: counting items into a till's
// open balance, clearing tills, and moving items between tills. Every
// multi-record mutation runs inside a single database transaction.
type Service struct {
	tills    tillRepository
	balances balanceRepository
	items    itemRepository
	deposits depositRepository
	accounts accountRepository
	db       *sql.DB
}

func NewService(
	tills tillRepository,
	balances balanceRepository,
	items itemRepository,
	deposits depositRepository,
	accounts accountRepository,
	db *sql.DB,
) *Service {
	return &Service{
		tills:    tills,
		balances: balances,
		items:    items,
		deposits: deposits,
		accounts: accounts,
		db:       db,
	}
}

type RecordItemRequest struct {
	TillID uuid.UUID
	Kind   domain.ItemKind
	Amount decimal.Decimal
	// Credit is only consulted for adjustments; payments are always
	// credits and refunds always debits.
	Credit bool
	// Post records the item as posted immediately, counting it into the
	// till's open balance. Pending items are counted when posted later.
	Post bool
}

// RecordItem creates a payment, refund, or adjustment against a till.
// Posted items are counted into the till's open balance in the same
// transaction; pending items wait for PostItem.
func (s *Service) RecordItem(ctx context.Context, req RecordItemRequest) (*domain.BalanceItem, error) {
	log := logging.FromContext(ctx)

	if !req.Kind.IsValid() {
		return nil, fmt.Errorf("RecordItem: %s: %w", req.Kind, domain.ErrCantAddToTill)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("RecordItem: %w", domain.ErrInvalidAmount)
	}

	now := time.Now().UTC()
	item := &domain.BalanceItem{
		ID:        uuid.New(),
		TillID:    &req.TillID,
		Kind:      req.Kind,
		Status:    domain.ItemStatusPending,
		Amount:    req.Amount,
		CreatedAt: now,
	}
	switch req.Kind {
	case domain.ItemKindPayment:
		item.Credit = true
	case domain.ItemKindRefund:
		item.Credit = false
	case domain.ItemKindAdjustment:
		item.Credit = req.Credit
	}
	// Adjustments have no pending state.
	if req.Post || req.Kind == domain.ItemKindAdjustment {
		item.Status = domain.ItemStatusPosted
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("RecordItem: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.tills.GetForUpdate(ctx, tx, req.TillID); err != nil {
		return nil, fmt.Errorf("RecordItem: %w", err)
	}
	if err := s.items.Create(ctx, tx, item); err != nil {
		return nil, fmt.Errorf("RecordItem: %w", err)
	}
	if item.Status == domain.ItemStatusPosted {
		if err := s.countItem(ctx, tx, item, nil); err != nil {
			return nil, fmt.Errorf("RecordItem: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("RecordItem: commit: %w", err)
	}

	log.Info("item recorded",
		"item_id", item.ID,
		"till_id", req.TillID,
		"kind", item.Kind,
		"status", item.Status,
		"amount", item.Amount,
	)

	return item, nil
}

// PostItem posts a pending payment or refund and counts it into its till's
// open balance.
func (s *Service) PostItem(ctx context.Context, itemID uuid.UUID) (*domain.BalanceItem, error) {
	// Resolve the item's till with a plain read first: row locks are always
	// taken till, then balance, then item.
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("PostItem: %w", err)
	}
	if item.Status != domain.ItemStatusPending {
		return nil, fmt.Errorf("PostItem: %w", domain.ErrItemAlreadyPosted)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("PostItem: begin tx: %w", err)
	}
	defer tx.Rollback()

	if item.TillID != nil {
		if _, err := s.tills.GetForUpdate(ctx, tx, *item.TillID); err != nil {
			return nil, fmt.Errorf("PostItem: %w", err)
		}
	}

	item, err = s.items.GetForUpdate(ctx, tx, itemID)
	if err != nil {
		return nil, fmt.Errorf("PostItem: %w", err)
	}
	if item.Status != domain.ItemStatusPending {
		return nil, fmt.Errorf("PostItem: %w", domain.ErrItemAlreadyPosted)
	}

	ok, err := s.items.MarkPosted(ctx, tx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("PostItem: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("PostItem: %w", domain.ErrItemAlreadyPosted)
	}
	item.Status = domain.ItemStatusPosted

	if err := s.countItem(ctx, tx, item, nil); err != nil {
		return nil, fmt.Errorf("PostItem: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("PostItem: commit: %w", err)
	}
	return item, nil
}

// UpdateBalance recomputes a balance's cached total from its items and
// reports whether the stored amount changed. Cleared balances are immutable.
func (s *Service) UpdateBalance(ctx context.Context, balanceID uuid.UUID) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("UpdateBalance: begin tx: %w", err)
	}
	defer tx.Rollback()

	balance, err := s.balances.GetForUpdate(ctx, tx, balanceID)
	if err != nil {
		return false, fmt.Errorf("UpdateBalance: %w", err)
	}
	if balance.Status == domain.BalanceStatusCleared {
		return false, fmt.Errorf("UpdateBalance: %w", domain.ErrClearedTill)
	}

	changed, err := s.recomputeBalance(ctx, tx, balance)
	if err != nil {
		return false, fmt.Errorf("UpdateBalance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("UpdateBalance: commit: %w", err)
	}
	return changed, nil
}

// IsClearInProgress reports whether the till has a balance frozen for a cash
// count.
func (s *Service) IsClearInProgress(ctx context.Context, tillID uuid.UUID) (bool, error) {
	balance, err := s.balances.GetOpenByTill(ctx, tillID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("IsClearInProgress: %w", err)
	}
	return balance.Status == domain.BalanceStatusInProgress, nil
}

func (s *Service) ListTills(ctx context.Context) ([]domain.Till, error) {
	tills, err := s.tills.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTills: %w", err)
	}
	return tills, nil
}

func (s *Service) GetTill(ctx context.Context, id uuid.UUID) (*domain.Till, error) {
	t, err := s.tills.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetTill: %w", err)
	}
	return t, nil
}

// GetOpenBalance returns the till's current non-cleared balance with its
// items.
func (s *Service) GetOpenBalance(ctx context.Context, tillID uuid.UUID) (*domain.TillBalance, []domain.BalanceItem, error) {
	balance, err := s.balances.GetOpenByTill(ctx, tillID)
	if err != nil {
		return nil, nil, fmt.Errorf("GetOpenBalance: %w", err)
	}
	items, err := s.items.ListByBalance(ctx, balance.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("GetOpenBalance: %w", err)
	}
	return balance, items, nil
}
