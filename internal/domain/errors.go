package domain

import "errors"

var (
	ErrNotFound                   = errors.New("not found")
	ErrTillNotFound               = errors.New("till not found")
	ErrMissingTill                = errors.New("item has no till assigned")
	ErrClearedTill                = errors.New("till balance already cleared")
	ErrUnclearedTillExists        = errors.New("till already has an open balance")
	ErrCantAddToTill              = errors.New("item kind cannot be added to a till balance")
	ErrClearInProgress            = errors.New("a clear is already in progress for this till")
	ErrInvalidStatusForStartClear = errors.New("balance must be uncleared to start a clear")
	ErrInvalidStatusForClear      = errors.New("balance has the wrong status for this clear")
	ErrDifferentTills             = errors.New("item and balance belong to different tills")
	ErrInvalidTransferTill        = errors.New("cannot transfer an item to its own till")
	ErrMissingRelationship        = errors.New("item is not linked to this balance")
	ErrItemAlreadyPosted          = errors.New("item already posted")
	ErrAlreadyDeposited           = errors.New("deposit already banked")
	ErrInvalidAmount              = errors.New("amount must be greater than zero")
	ErrInvalidRequest             = errors.New("invalid request")
)
