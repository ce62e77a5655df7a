package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AccountStatusActive   = "active"
	AccountStatusInactive = "inactive"
	AccountStatusSyncing  = "syncing"
)

const (
	ProviderGoldPayments = "GoldPayments" // internally issued accounts
	ProviderBelvo        = "Belvo"        // linked external accounts
)

// Balance is an amount in a single currency. Amount never goes below zero.
type Balance struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Account is a ledger account held by an owner.
// The balance is owned by the ledger; nothing else writes to it.
type Account struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Provider      string    `json:"provider"`
	Institution   string    `json:"institution"`
	AccountName   string    `json:"account_name"`
	AccountNumber string    `json:"account_number"` // CLABE or masked display number
	Balance       Balance   `json:"balance"`
	Status        string    `json:"status"`
	LastSyncedAt  time.Time `json:"last_synced_at"`
	Version       int       `json:"version"` // bumped on every balance change
	CreatedAt     time.Time `json:"created_at"`
}
