package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Till is a physical cash drawer. TillFloat is the cash amount expected to
// remain in the drawer after a clear; LastCleared is set each time the till
// is cleared.
type Till struct {
	ID          uuid.UUID
	Name        string
	TillFloat   decimal.Decimal
	LastCleared *time.Time
	CreatedAt   time.Time
}
