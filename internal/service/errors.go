package service

import (
	"errors"
	"fmt"

	"goldpay/internal/ledger"
)

// Validation failures. They always come wrapped in a *ValidationError.
var (
	ErrInvalidRoutingCode = errors.New("routing code failed checksum validation")
	ErrInvalidAmount      = ledger.ErrInvalidAmount
	ErrInvalidBeneficiary = errors.New("beneficiary name must have at least 3 characters")
	ErrInvalidConcept     = errors.New("concept must have at least 3 characters")
	ErrInvalidOwner       = errors.New("owner id is required")
	ErrInvalidCurrency    = errors.New("currency is required")
	ErrInvalidValueDate   = errors.New("value date is required")
	ErrInvalidInstitution = errors.New("institution is required")
	ErrMissingID          = errors.New("id is required")
)

// Business failures surfaced from the ledger as-is.
var (
	ErrInsufficientFunds   = ledger.ErrInsufficientFunds
	ErrAccountNotFound     = ledger.ErrAccountNotFound
	ErrConcurrencyConflict = ledger.ErrConcurrencyConflict
	ErrPersistence         = ledger.ErrPersistence
)

var (
	ErrAlreadyOnboarded  = errors.New("owner already has a main account")
	ErrDuplicateFeed     = errors.New("bank feed already ingested")
	ErrRecordNotFound    = errors.New("record not found")
	ErrAlreadyReconciled = errors.New("record already reconciled")
	ErrMatchRejected     = errors.New("records cannot be matched")
)

// ValidationError reports a rejected request field. No state was changed.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
