package model

import "time"

const (
	MatchMethodAuto   = "AUTO"
	MatchMethodManual = "MANUAL"
)

// ReconciliationLog binds one Transaction to one BankFeed. Each transaction id
// and each bank feed id appears in at most one log.
type ReconciliationLog struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	TransactionID string    `json:"transaction_id"`
	BankFeedID    string    `json:"bank_feed_id"`
	MatchScore    float64   `json:"match_score"`
	MatchMethod   string    `json:"match_method"`
	CreatedAt     time.Time `json:"created_at"`
}
