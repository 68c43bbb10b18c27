package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ej-moran/tillpoint/internal/domain"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

func RespondDomainError(w http.ResponseWriter, err error) {
	var appErr *AppError

	switch {
	case errors.Is(err, domain.ErrTillNotFound):
		appErr = ErrTillNotFound
	case errors.Is(err, domain.ErrNotFound):
		appErr = ErrResourceNotFound
	case errors.Is(err, domain.ErrMissingTill):
		appErr = ErrMissingTill
	case errors.Is(err, domain.ErrClearedTill):
		appErr = ErrClearedTill
	case errors.Is(err, domain.ErrUnclearedTillExists):
		appErr = ErrUnclearedTillExists
	case errors.Is(err, domain.ErrCantAddToTill):
		appErr = ErrCantAddToTill
	case errors.Is(err, domain.ErrClearInProgress):
		appErr = ErrClearInProgress
	case errors.Is(err, domain.ErrInvalidStatusForStartClear):
		appErr = ErrInvalidStatusStartClear
	case errors.Is(err, domain.ErrInvalidStatusForClear):
		appErr = ErrInvalidStatusClear
	case errors.Is(err, domain.ErrDifferentTills):
		appErr = ErrDifferentTills
	case errors.Is(err, domain.ErrInvalidTransferTill):
		appErr = ErrInvalidTransferTill
	case errors.Is(err, domain.ErrMissingRelationship):
		appErr = ErrMissingRelationship
	case errors.Is(err, domain.ErrItemAlreadyPosted):
		appErr = ErrItemAlreadyPosted
	case errors.Is(err, domain.ErrAlreadyDeposited):
		appErr = ErrAlreadyDeposited
	case errors.Is(err, domain.ErrInvalidAmount):
		appErr = ErrInvalidAmount
	case errors.Is(err, domain.ErrInvalidRequest):
		appErr = ErrInvalidRequest
	default:
		slog.Error("unhandled domain error", "error", err)
		appErr = ErrInternalError
	}

	RespondAppError(w, appErr, nil)
}
