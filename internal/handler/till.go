package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ej-moran/tillpoint/internal/domain"
	"github.com/ej-moran/tillpoint/internal/service/till"
)

type tillService interface {
	ListTills(ctx context.Context) ([]domain.Till, error)
	GetTill(ctx context.Context, id uuid.UUID) (*domain.Till, error)
	GetOpenBalance(ctx context.Context, tillID uuid.UUID) (*domain.TillBalance, []domain.BalanceItem, error)
	IsClearInProgress(ctx context.Context, tillID uuid.UUID) (bool, error)
	RecordItem(ctx context.Context, req till.RecordItemRequest) (*domain.BalanceItem, error)
	PostItem(ctx context.Context, itemID uuid.UUID) (*domain.BalanceItem, error)
	StartClear(ctx context.Context, balanceID uuid.UUID, cashFloat decimal.Decimal) (*domain.TillBalance, error)
	Clear(ctx context.Context, balanceID, accountID uuid.UUID) (*domain.TillBalance, error)
	ClearDirect(ctx context.Context, balanceID uuid.UUID, cashFloat decimal.Decimal, accountID uuid.UUID) (*domain.TillBalance, error)
	Transfer(ctx context.Context, balanceID, itemID, tillID uuid.UUID) error
	UpdateBalance(ctx context.Context, balanceID uuid.UUID) (bool, error)
}

type TillHandler struct {
	tills tillService
}

func NewTillHandler(tills tillService) *TillHandler {
	return &TillHandler{tills: tills}
}

type tillDTO struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	TillFloat   decimal.Decimal `json:"till_float"`
	LastCleared *time.Time      `json:"last_cleared"`
}

type balanceDTO struct {
	ID        uuid.UUID       `json:"id"`
	TillID    uuid.UUID       `json:"till_id"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	CashFloat decimal.Decimal `json:"cash_float"`
	DepositID *uuid.UUID      `json:"deposit_id,omitempty"`
	EndTime   *time.Time      `json:"end_time,omitempty"`
}

type itemDTO struct {
	ID        uuid.UUID       `json:"id"`
	TillID    *uuid.UUID      `json:"till_id"`
	BalanceID *uuid.UUID      `json:"balance_id,omitempty"`
	Kind      string          `json:"kind"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Credit    bool            `json:"credit"`
}

func toTillDTO(t *domain.Till) tillDTO {
	return tillDTO{
		ID:          t.ID,
		Name:        t.Name,
		TillFloat:   t.TillFloat,
		LastCleared: t.LastCleared,
	}
}

func toBalanceDTO(b *domain.TillBalance) balanceDTO {
	return balanceDTO{
		ID:        b.ID,
		TillID:    b.TillID,
		Status:    string(b.Status),
		Amount:    b.Amount,
		CashFloat: b.CashFloat,
		DepositID: b.DepositID,
		EndTime:   b.EndTime,
	}
}

func toItemDTO(i *domain.BalanceItem) itemDTO {
	return itemDTO{
		ID:        i.ID,
		TillID:    i.TillID,
		BalanceID: i.BalanceID,
		Kind:      string(i.Kind),
		Status:    string(i.Status),
		Amount:    i.Amount,
		Credit:    i.Credit,
	}
}

func (h *TillHandler) List(w http.ResponseWriter, r *http.Request) {
	tills, err := h.tills.ListTills(r.Context())
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]tillDTO, 0, len(tills))
	for i := range tills {
		dtos = append(dtos, toTillDTO(&tills[i]))
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *TillHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	t, err := h.tills.GetTill(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	clearing, err := h.tills.IsClearInProgress(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"till":              toTillDTO(t),
		"clear_in_progress": clearing,
	})
}

func (h *TillHandler) OpenBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	balance, items, err := h.tills.GetOpenBalance(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]itemDTO, 0, len(items))
	for i := range items {
		dtos = append(dtos, toItemDTO(&items[i]))
	}
	RespondSuccess(w, http.StatusOK, map[string]any{
		"balance": toBalanceDTO(balance),
		"items":   dtos,
	})
}

type recordItemRequest struct {
	Kind   string `json:"kind"`
	Amount string `json:"amount"`
	Credit bool   `json:"credit"`
	Post   bool   `json:"post"`
}

func (r recordItemRequest) Validate() []FieldError {
	var errs []FieldError

	if r.Kind == "" {
		errs = append(errs, FieldError{Field: "kind", Message: "required"})
	} else if !domain.ItemKind(r.Kind).IsValid() {
		errs = append(errs, FieldError{Field: "kind", Message: "must be payment, refund, or adjustment"})
	}

	if r.Amount == "" {
		errs = append(errs, FieldError{Field: "amount", Message: "required"})
	} else if amt, err := decimal.NewFromString(r.Amount); err != nil {
		errs = append(errs, FieldError{Field: "amount", Message: "must be a decimal number"})
	} else if !amt.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}

	return errs
}

func (h *TillHandler) RecordItem(w http.ResponseWriter, r *http.Request) {
	tillID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req recordItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	amount, _ := decimal.NewFromString(req.Amount)
	item, err := h.tills.RecordItem(r.Context(), till.RecordItemRequest{
		TillID: tillID,
		Kind:   domain.ItemKind(req.Kind),
		Amount: amount,
		Credit: req.Credit,
		Post:   req.Post,
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toItemDTO(item))
}

func (h *TillHandler) PostItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	item, err := h.tills.PostItem(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toItemDTO(item))
}

type startClearRequest struct {
	CashFloat string `json:"cash_float"`
}

func (r startClearRequest) Validate() []FieldError {
	var errs []FieldError
	if r.CashFloat == "" {
		errs = append(errs, FieldError{Field: "cash_float", Message: "required"})
	} else if amt, err := decimal.NewFromString(r.CashFloat); err != nil {
		errs = append(errs, FieldError{Field: "cash_float", Message: "must be a decimal number"})
	} else if amt.IsNegative() {
		errs = append(errs, FieldError{Field: "cash_float", Message: "must not be negative"})
	}
	return errs
}

func (h *TillHandler) StartClear(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req startClearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	cashFloat, _ := decimal.NewFromString(req.CashFloat)
	balance, err := h.tills.StartClear(r.Context(), id, cashFloat)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toBalanceDTO(balance))
}

type clearRequest struct {
	AccountID string  `json:"account_id"`
	CashFloat *string `json:"cash_float"`
}

func (r clearRequest) Validate() []FieldError {
	var errs []FieldError

	if r.AccountID == "" {
		errs = append(errs, FieldError{Field: "account_id", Message: "required"})
	} else if _, err := uuid.Parse(r.AccountID); err != nil {
		errs = append(errs, FieldError{Field: "account_id", Message: "must be a UUID"})
	}

	if r.CashFloat != nil {
		if amt, err := decimal.NewFromString(*r.CashFloat); err != nil {
			errs = append(errs, FieldError{Field: "cash_float", Message: "must be a decimal number"})
		} else if amt.IsNegative() {
			errs = append(errs, FieldError{Field: "cash_float", Message: "must not be negative"})
		}
	}

	return errs
}

// Clear completes a started clear, or clears an uncleared balance directly
// when a declared cash float accompanies the request.
func (h *TillHandler) Clear(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req clearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	accountID, _ := uuid.Parse(req.AccountID)

	var balance *domain.TillBalance
	var err error
	if req.CashFloat != nil {
		cashFloat, _ := decimal.NewFromString(*req.CashFloat)
		balance, err = h.tills.ClearDirect(r.Context(), id, cashFloat, accountID)
	} else {
		balance, err = h.tills.Clear(r.Context(), id, accountID)
	}
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toBalanceDTO(balance))
}

type transferRequest struct {
	ItemID string `json:"item_id"`
	TillID string `json:"till_id"`
}

func (r transferRequest) Validate() []FieldError {
	var errs []FieldError
	if _, err := uuid.Parse(r.ItemID); err != nil {
		errs = append(errs, FieldError{Field: "item_id", Message: "must be a UUID"})
	}
	if _, err := uuid.Parse(r.TillID); err != nil {
		errs = append(errs, FieldError{Field: "till_id", Message: "must be a UUID"})
	}
	return errs
}

func (h *TillHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	itemID, _ := uuid.Parse(req.ItemID)
	tillID, _ := uuid.Parse(req.TillID)

	if err := h.tills.Transfer(r.Context(), id, itemID, tillID); err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]any{
		"balance_id": id,
		"item_id":    itemID,
		"till_id":    tillID,
	})
}

func (h *TillHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	changed, err := h.tills.UpdateBalance(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]any{"changed": changed})
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: name, Message: "must be a UUID"}})
		return uuid.Nil, false
	}
	return id, true
}
