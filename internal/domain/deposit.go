package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BankAccount struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

type DepositStatus string

const (
	DepositStatusUndeposited DepositStatus = "undeposited"
	DepositStatusDeposited   DepositStatus = "deposited"
)

// BankDeposit collects cleared till balances for one bank account until the
// cash is physically banked. Amount is the sum of linked balances' amounts.
type BankDeposit struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Status      DepositStatus
	Amount      decimal.Decimal
	DepositedAt *time.Time
	CreatedAt   time.Time
}
