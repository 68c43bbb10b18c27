package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ej-moran/tillpoint/internal/domain"
)

type depositService interface {
	Deposit(ctx context.Context, depositID uuid.UUID) (*domain.BankDeposit, error)
	GetDeposit(ctx context.Context, depositID uuid.UUID) (*domain.BankDeposit, []domain.TillBalance, error)
	ListDeposits(ctx context.Context, status domain.DepositStatus) ([]domain.BankDeposit, error)
}

type DepositHandler struct {
	deposits depositService
}

func NewDepositHandler(deposits depositService) *DepositHandler {
	return &DepositHandler{deposits: deposits}
}

type depositDTO struct {
	ID          uuid.UUID       `json:"id"`
	AccountID   uuid.UUID       `json:"account_id"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	DepositedAt *time.Time      `json:"deposited_at,omitempty"`
}

func toDepositDTO(d *domain.BankDeposit) depositDTO {
	return depositDTO{
		ID:          d.ID,
		AccountID:   d.AccountID,
		Status:      string(d.Status),
		Amount:      d.Amount,
		DepositedAt: d.DepositedAt,
	}
}

func (h *DepositHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.DepositStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.DepositStatusUndeposited
	}
	if status != domain.DepositStatusUndeposited && status != domain.DepositStatusDeposited {
		RespondValidationError(w, []FieldError{{Field: "status", Message: "must be undeposited or deposited"}})
		return
	}

	deposits, err := h.deposits.ListDeposits(r.Context(), status)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]depositDTO, 0, len(deposits))
	for i := range deposits {
		dtos = append(dtos, toDepositDTO(&deposits[i]))
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *DepositHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	deposit, balances, err := h.deposits.GetDeposit(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]balanceDTO, 0, len(balances))
	for i := range balances {
		dtos = append(dtos, toBalanceDTO(&balances[i]))
	}
	RespondSuccess(w, http.StatusOK, map[string]any{
		"deposit":  toDepositDTO(deposit),
		"balances": dtos,
	})
}

func (h *DepositHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	deposit, err := h.deposits.Deposit(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toDepositDTO(deposit))
}
