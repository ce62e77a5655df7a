package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	FeedStatusPending      = "PENDING"
	FeedStatusMatched      = "MATCHED"
	FeedStatusManualReview = "MANUAL_REVIEW"
)

// BankFeed is one statement line from an external settlement source. It is
// independent of any internal Transaction and can arrive before, after, or
// never relative to it.
type BankFeed struct {
	ID                   string          `json:"id"`
	OwnerID              string          `json:"owner_id"`
	Institution          string          `json:"institution"`
	Description          string          `json:"description"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	ValueDate            time.Time       `json:"value_date"`
	CreatedAt            time.Time       `json:"created_at"`
	ExternalRef          string          `json:"external_ref,omitempty"` // statement line id from the source, used for dedup
	ReconciliationStatus string          `json:"reconciliation_status"`
}

// IsMatched reports whether the feed already has a reconciliation log.
func (f *BankFeed) IsMatched() bool {
	return f.ReconciliationStatus == FeedStatusMatched
}
