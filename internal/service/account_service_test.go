package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"goldpay/internal/clabe"
	"goldpay/internal/model"

	"github.com/shopspring/decimal"
)

func TestOnboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.accounts.Onboard(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Onboard failed: %v", err)
	}

	acct := result.Account
	if acct.Provider != model.ProviderGoldPayments || acct.AccountName != "Cuenta Principal" {
		t.Errorf("account = %+v", acct)
	}
	if !clabe.Validate(acct.AccountNumber) {
		t.Errorf("account number %q is not a valid CLABE", acct.AccountNumber)
	}
	if !acct.Balance.Amount.Equal(decimal.NewFromInt(100000)) || acct.Balance.Currency != "MXN" {
		t.Errorf("balance = %+v", acct.Balance)
	}

	if result.BonusTransaction == nil || result.BonusFeed == nil || result.BonusLog == nil {
		t.Fatalf("bonus records missing: %+v", result)
	}
	if result.BonusTransaction.ReconciliationStatus != model.ReconciliationReconciled ||
		result.BonusTransaction.Category != model.CategoryIncome {
		t.Errorf("bonus transaction = %+v", result.BonusTransaction)
	}
	if result.BonusFeed.ReconciliationStatus != model.FeedStatusMatched || result.BonusFeed.Institution != "STP" {
		t.Errorf("bonus feed = %+v", result.BonusFeed)
	}
	if result.BonusLog.MatchScore != 100 || result.BonusLog.MatchMethod != model.MatchMethodAuto {
		t.Errorf("bonus log = %+v", result.BonusLog)
	}

	// the bonus is already settled, so a pass has nothing to do
	report, err := f.reconciler.Reconcile(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if report.Candidates != 0 || report.Matched != 0 {
		t.Errorf("report = %+v", report)
	}
	if logs := f.logs(t, "owner-1"); len(logs) != 1 {
		t.Errorf("logs = %d, want 1", len(logs))
	}
}

func TestOnboard_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.accounts.Onboard(ctx, "owner-1"); err != nil {
		t.Fatalf("first Onboard failed: %v", err)
	}
	before := f.dump(t)

	_, err := f.accounts.Onboard(ctx, "owner-1")
	if !errors.Is(err, ErrAlreadyOnboarded) {
		t.Fatalf("error = %v, want ErrAlreadyOnboarded", err)
	}
	if !equalDumps(before, f.dump(t)) {
		t.Error("second onboarding changed stored state")
	}
}

func TestOnboard_WithoutBonus(t *testing.T) {
	f := newFixture(t)
	f.cfg.Business.SignupBonus = "0"

	result, err := f.accounts.Onboard(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("Onboard failed: %v", err)
	}
	if !result.Account.Balance.Amount.IsZero() || result.BonusTransaction != nil {
		t.Errorf("result = %+v", result)
	}
	if txs := f.transactions(t, "owner-1"); len(txs) != 0 {
		t.Errorf("transactions = %d, want 0", len(txs))
	}
}

var maskedNumber = regexp.MustCompile(`^\*{4} \*{4} \*{4} \d{4}$`)

func TestLinkExternalAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acct, err := f.accounts.LinkExternalAccount(ctx, &LinkAccountRequest{
		OwnerID:        "owner-1",
		Institution:    "BBVA",
		OpeningBalance: decimal.NewFromInt(2500),
	})
	if err != nil {
		t.Fatalf("LinkExternalAccount failed: %v", err)
	}
	if acct.Provider != model.ProviderBelvo || acct.Institution != "BBVA" || acct.AccountName != "Cuenta de Ahorros" {
		t.Errorf("account = %+v", acct)
	}
	if !maskedNumber.MatchString(acct.AccountNumber) {
		t.Errorf("account number = %q, want masked", acct.AccountNumber)
	}

	accounts, err := f.accounts.ListAccounts(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(accounts) != 1 || accounts[0].ID != acct.ID {
		t.Errorf("accounts = %+v", accounts)
	}

	// a linked account does not count as onboarding
	if _, err := f.accounts.Onboard(ctx, "owner-1"); err != nil {
		t.Errorf("Onboard after link failed: %v", err)
	}
}

func TestLinkExternalAccount_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		req     LinkAccountRequest
		wantErr error
	}{
		{"missing owner", LinkAccountRequest{Institution: "BBVA"}, ErrInvalidOwner},
		{"missing institution", LinkAccountRequest{OwnerID: "owner-1", Institution: " "}, ErrInvalidInstitution},
		{"negative balance", LinkAccountRequest{OwnerID: "owner-1", Institution: "BBVA", OpeningBalance: decimal.NewFromInt(-1)}, ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := f.accounts.LinkExternalAccount(context.Background(), &req)
			if !errors.Is(err, tt.wantErr) || !IsValidation(err) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetAccount_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.accounts.GetAccount(context.Background(), "ACC-missing")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("error = %v, want ErrAccountNotFound", err)
	}
}

func TestLinkExternalAccount_ImportsHistoryForReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	f.accounts.now = func() time.Time { return now }

	acct, err := f.accounts.LinkExternalAccount(ctx, &LinkAccountRequest{
		OwnerID:        "owner-1",
		Institution:    "BBVA",
		OpeningBalance: decimal.NewFromInt(2500),
	})
	if err != nil {
		t.Fatalf("LinkExternalAccount failed: %v", err)
	}
	if !acct.Balance.Amount.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("balance = %s, want opening balance untouched", acct.Balance.Amount)
	}

	txs := f.transactions(t, "owner-1")
	if len(txs) != linkedHistorySize {
		t.Fatalf("transactions = %d, want %d", len(txs), linkedHistorySize)
	}
	categories := map[string]bool{model.CategoryShopping: true, model.CategoryTransport: true, model.CategoryFood: true}
	days := make(map[string]bool)
	for _, tx := range txs {
		if tx.AccountID != acct.ID || tx.Institution != "BBVA" || tx.Currency != "MXN" {
			t.Errorf("transaction = %+v", tx)
		}
		if tx.Amount.GreaterThan(decimal.NewFromInt(-50)) || tx.Amount.LessThan(decimal.NewFromInt(-1050)) {
			t.Errorf("amount = %s, want an outflow between 50 and 1050", tx.Amount)
		}
		if !categories[tx.Category] || !strings.HasPrefix(tx.Description, "Compra en ") {
			t.Errorf("category %q description %q", tx.Category, tx.Description)
		}
		if tx.ReconciliationStatus != model.ReconciliationPending {
			t.Errorf("reconciliation status = %s", tx.ReconciliationStatus)
		}
		days[tx.OccurredAt.Format("2006-01-02")] = true
	}
	if len(days) != linkedHistorySize || !days["2024-03-10"] || !days["2024-03-06"] {
		t.Errorf("days = %v, want one per day ending 2024-03-10", days)
	}

	// nothing on the statement side, so every imported outflow goes to review
	report, err := f.reconciler.Reconcile(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if report.Matched != 0 || report.ReviewTransactions != linkedHistorySize {
		t.Errorf("report = %+v", report)
	}
}
