package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferCompletedEvent is published after a transfer commits.
type TransferCompletedEvent struct {
	TransferID             string          `json:"transfer_id"`
	TransactionID          string          `json:"transaction_id"`
	BankFeedID             string          `json:"bank_feed_id"`
	OwnerID                string          `json:"owner_id"`
	SourceAccountID        string          `json:"source_account_id"`
	Amount                 decimal.Decimal `json:"amount"`
	Currency               string          `json:"currency"`
	BeneficiaryName        string          `json:"beneficiary_name"`
	DestinationInstitution string          `json:"destination_institution"`
	OccurredAt             time.Time       `json:"occurred_at"`
}

// ReconciliationCompletedEvent is published after a matcher pass or a manual
// confirmation writes reconciliation logs.
type ReconciliationCompletedEvent struct {
	OwnerID      string              `json:"owner_id"`
	Logs         []ReconciliationLog `json:"logs"`
	ManualReview int                 `json:"manual_review"`
	CompletedAt  time.Time           `json:"completed_at"`
}
