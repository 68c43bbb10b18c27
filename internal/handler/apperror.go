package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken       = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken       = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidCredentials = &AppError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"}
	ErrInvalidRequest     = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed   = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound   = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError      = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrTillNotFound             = &AppError{http.StatusNotFound, "TILL_NOT_FOUND", "Till not found"}
	ErrMissingTill              = &AppError{http.StatusUnprocessableEntity, "MISSING_TILL", "Item has no till assigned"}
	ErrClearedTill              = &AppError{http.StatusConflict, "CLEARED_TILL", "Till balance is already cleared"}
	ErrUnclearedTillExists      = &AppError{http.StatusConflict, "UNCLEARED_TILL_EXISTS", "Till already has an open balance"}
	ErrCantAddToTill            = &AppError{http.StatusUnprocessableEntity, "CANT_ADD_TO_TILL", "Item kind cannot be added to a till balance"}
	ErrClearInProgress          = &AppError{http.StatusConflict, "CLEAR_IN_PROGRESS", "A clear is already in progress for this till"}
	ErrInvalidStatusStartClear  = &AppError{http.StatusConflict, "INVALID_STATUS_FOR_START_CLEAR", "Balance must be uncleared to start a clear"}
	ErrInvalidStatusClear       = &AppError{http.StatusConflict, "INVALID_STATUS_FOR_CLEAR", "Balance has the wrong status for this clear"}
	ErrDifferentTills           = &AppError{http.StatusUnprocessableEntity, "DIFFERENT_TILLS", "Item and balance belong to different tills"}
	ErrInvalidTransferTill      = &AppError{http.StatusUnprocessableEntity, "INVALID_TRANSFER_TILL", "Cannot transfer an item to its own till"}
	ErrMissingRelationship      = &AppError{http.StatusUnprocessableEntity, "MISSING_RELATIONSHIP", "Item is not linked to this balance"}
	ErrItemAlreadyPosted        = &AppError{http.StatusConflict, "ITEM_ALREADY_POSTED", "Item already posted"}
	ErrAlreadyDeposited         = &AppError{http.StatusConflict, "ALREADY_DEPOSITED", "Deposit already banked"}
	ErrInvalidAmount            = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
)
