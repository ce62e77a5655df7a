package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionStatusCompleted = "Completed"
	TransactionStatusPending   = "Pending"
	TransactionStatusFailed    = "Failed"
)

const (
	CategoryTransfer  = "Transfer"
	CategoryIncome    = "Income"
	CategoryShopping  = "Shopping"
	CategoryTransport = "Transport"
	CategoryFood      = "Food"
)

// Reconciliation states of an internal transaction.
const (
	ReconciliationPending      = "PENDING"
	ReconciliationReconciled   = "RECONCILED"
	ReconciliationManualReview = "MANUAL_REVIEW"
)

// Transaction is an internal ledger movement.
//
// Append only. ReconciliationStatus is the one field that changes after
// creation, and only the matcher or a manual review changes it.
type Transaction struct {
	ID                   string          `json:"id"`
	AccountID            string          `json:"account_id"`
	OwnerID              string          `json:"owner_id"`
	Institution          string          `json:"institution"`
	Description          string          `json:"description"`
	Amount               decimal.Decimal `json:"amount"` // negative = outflow
	Currency             string          `json:"currency"`
	OccurredAt           time.Time       `json:"occurred_at"`
	Category             string          `json:"category"`
	CounterpartyName     string          `json:"counterparty_name,omitempty"`
	Status               string          `json:"status"`
	ReconciliationStatus string          `json:"reconciliation_status"`
}

// IsReconciled reports whether the transaction already has a reconciliation log.
func (t *Transaction) IsReconciled() bool {
	return t.ReconciliationStatus == ReconciliationReconciled
}
