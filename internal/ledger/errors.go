package ledger

import (
	"errors"

	"goldpay/internal/store"
)

var (
	ErrAccountNotFound   = errors.New("ledger: account not found")
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrInvalidAmount     = errors.New("ledger: amount must be positive")
	ErrInvalidAccount    = errors.New("ledger: invalid account")
	// ErrConcurrencyConflict means the account stayed busy for the whole lock
	// wait, or the commit kept losing version races. Callers may retry.
	ErrConcurrencyConflict = errors.New("ledger: concurrent modification, retry")
	// ErrPersistence is the store's persistence error, so errors.Is matches
	// failures raised by either package.
	ErrPersistence = store.ErrPersistence
)
