package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BalanceStatus string

const (
	// BalanceStatusUncleared is the single open balance accumulating items.
	BalanceStatusUncleared BalanceStatus = "uncleared"
	// BalanceStatusInProgress freezes the balance while cash is counted.
	BalanceStatusInProgress BalanceStatus = "in_progress"
	// BalanceStatusCleared is terminal; cleared balances are immutable.
	BalanceStatusCleared BalanceStatus = "cleared"
)

// TillBalance aggregates the monetary items of one till over one open
// reconciliation period. Amount caches the signed sum of linked items;
// CashFloat snapshots the till float at creation time.
type TillBalance struct {
	ID        uuid.UUID
	TillID    uuid.UUID
	Status    BalanceStatus
	Amount    decimal.Decimal
	CashFloat decimal.Decimal
	DepositID *uuid.UUID
	EndTime   *time.Time
	CreatedAt time.Time
}

type ItemKind string

const (
	ItemKindPayment    ItemKind = "payment"
	ItemKindRefund     ItemKind = "refund"
	ItemKindAdjustment ItemKind = "adjustment"
)

func (k ItemKind) IsValid() bool {
	switch k {
	case ItemKindPayment, ItemKindRefund, ItemKindAdjustment:
		return true
	}
	return false
}

type ItemStatus string

const (
	ItemStatusPending ItemStatus = "pending"
	ItemStatusPosted  ItemStatus = "posted"
)

// BalanceItem is a payment, refund, or float adjustment counted against a
// till. Amount is always absolute; Credit carries the sign. Once BalanceID
// is set the item is "counted" and only a transfer may move it.
type BalanceItem struct {
	ID        uuid.UUID
	TillID    *uuid.UUID
	BalanceID *uuid.UUID
	Kind      ItemKind
	Status    ItemStatus
	Amount    decimal.Decimal
	Credit    bool
	CreatedAt time.Time
}

// SignedAmount is the item's contribution to a balance total: credits add,
// debits subtract.
func (i *BalanceItem) SignedAmount() decimal.Decimal {
	if i.Credit {
		return i.Amount
	}
	return i.Amount.Neg()
}
