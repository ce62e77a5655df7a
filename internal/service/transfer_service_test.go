package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"goldpay/internal/model"

	"github.com/shopspring/decimal"
)

func validTransfer(sourceID string) *TransferRequest {
	return &TransferRequest{
		SourceAccountID:        sourceID,
		Amount:                 decimal.NewFromInt(1500),
		BeneficiaryName:        "Juan Perez",
		DestinationRoutingCode: validCLABE,
		Concept:                "Renta octubre",
	}
}

func TestExecuteTransfer_ValidationOrder(t *testing.T) {
	f := newFixture(t)
	acct := f.openAccount(t, "owner-1", 5000)

	tests := []struct {
		name    string
		mutate  func(r *TransferRequest)
		field   string
		wantErr error
	}{
		{
			name: "bad checksum reported before everything else",
			mutate: func(r *TransferRequest) {
				r.DestinationRoutingCode = "002180001183597194"
				r.Amount = decimal.Zero
				r.BeneficiaryName = ""
				r.Concept = ""
			},
			field:   "destination_routing_code",
			wantErr: ErrInvalidRoutingCode,
		},
		{
			name:    "short routing code",
			mutate:  func(r *TransferRequest) { r.DestinationRoutingCode = "0021800011835" },
			field:   "destination_routing_code",
			wantErr: ErrInvalidRoutingCode,
		},
		{
			name: "non positive amount before beneficiary",
			mutate: func(r *TransferRequest) {
				r.Amount = decimal.NewFromInt(-10)
				r.BeneficiaryName = "Jo"
			},
			field:   "amount",
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "more than two decimals",
			mutate:  func(r *TransferRequest) { r.Amount = decimal.RequireFromString("10.005") },
			field:   "amount",
			wantErr: ErrInvalidAmount,
		},
		{
			name: "short beneficiary before concept",
			mutate: func(r *TransferRequest) {
				r.BeneficiaryName = "  Jo  "
				r.Concept = ""
			},
			field:   "beneficiary_name",
			wantErr: ErrInvalidBeneficiary,
		},
		{
			name:    "short concept",
			mutate:  func(r *TransferRequest) { r.Concept = "ok" },
			field:   "concept",
			wantErr: ErrInvalidConcept,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.dump(t)

			req := validTransfer(acct.ID)
			tt.mutate(req)
			_, err := f.transfers.ExecuteTransfer(context.Background(), req)

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("error = %v, want validation error on %s", err, tt.field)
			}
			if !equalDumps(before, f.dump(t)) {
				t.Error("state changed after a rejected transfer")
			}
		})
	}
	if calls := f.trigger.calls(); len(calls) != 0 {
		t.Errorf("trigger called %v for rejected transfers", calls)
	}
}

func TestExecuteTransfer_Success(t *testing.T) {
	f := newFixture(t)
	acct := f.openAccount(t, "owner-1", 5000)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f.transfers.now = fixedClock(now)

	receipt, err := f.transfers.ExecuteTransfer(context.Background(), validTransfer(acct.ID))
	if err != nil {
		t.Fatalf("ExecuteTransfer failed: %v", err)
	}

	if !receipt.BalanceAfter.Equal(decimal.NewFromInt(3500)) {
		t.Errorf("balance after = %s, want 3500", receipt.BalanceAfter)
	}
	if receipt.DestinationInstitution != "Banamex" {
		t.Errorf("destination = %q, want Banamex", receipt.DestinationInstitution)
	}
	if receipt.Currency != "MXN" || !receipt.CreatedAt.Equal(now) {
		t.Errorf("receipt = %+v", receipt)
	}

	stored, err := f.ledger.GetAccount(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if !stored.Balance.Amount.Equal(decimal.NewFromInt(3500)) || stored.Version != acct.Version+1 {
		t.Errorf("stored account = %+v", stored)
	}

	txs := f.transactions(t, "owner-1")
	if len(txs) != 1 {
		t.Fatalf("transactions = %d, want 1", len(txs))
	}
	tx := txs[0]
	if tx.ID != receipt.TransactionID || !tx.Amount.Equal(decimal.NewFromInt(-1500)) ||
		tx.ReconciliationStatus != model.ReconciliationPending || tx.Category != model.CategoryTransfer ||
		tx.CounterpartyName != "Juan Perez" || tx.Description != "Renta octubre" {
		t.Errorf("transaction = %+v", tx)
	}

	feeds := f.bankFeeds(t, "owner-1")
	if len(feeds) != 1 {
		t.Fatalf("bank feeds = %d, want 1", len(feeds))
	}
	feed := feeds[0]
	if feed.ID != receipt.BankFeedID || !feed.Amount.Equal(decimal.NewFromInt(-1500)) ||
		feed.Description != "SPEI A JUAN PEREZ" || feed.ReconciliationStatus != model.FeedStatusPending {
		t.Errorf("bank feed = %+v", feed)
	}
	if want := now.Add(f.cfg.Business.SettlementDelay); !feed.ValueDate.Equal(want) {
		t.Errorf("value date = %s, want %s", feed.ValueDate, want)
	}

	msgs := f.outbox(t)
	if len(msgs) != 1 {
		t.Fatalf("outbox messages = %d, want 1", len(msgs))
	}
	if msgs[0].Topic != f.cfg.Kafka.Topic.TransferCompleted || msgs[0].MessageKey != receipt.TransferID ||
		msgs[0].Status != model.OutboxStatusPending {
		t.Errorf("outbox message = %+v", msgs[0])
	}
	var event model.TransferCompletedEvent
	if err := json.Unmarshal([]byte(msgs[0].Payload), &event); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if event.TransactionID != tx.ID || event.BankFeedID != feed.ID || event.OwnerID != "owner-1" {
		t.Errorf("event = %+v", event)
	}

	if calls := f.trigger.calls(); len(calls) != 1 || calls[0] != "owner-1" {
		t.Errorf("trigger calls = %v, want [owner-1]", calls)
	}
}

func TestExecuteTransfer_FailuresLeaveStateUnchanged(t *testing.T) {
	f := newFixture(t)
	acct := f.openAccount(t, "owner-1", 1000)

	tests := []struct {
		name    string
		req     *TransferRequest
		wantErr error
	}{
		{
			name: "insufficient funds",
			req: func() *TransferRequest {
				r := validTransfer(acct.ID)
				r.Amount = decimal.RequireFromString("1000.01")
				return r
			}(),
			wantErr: ErrInsufficientFunds,
		},
		{
			name:    "unknown account",
			req:     validTransfer("ACC-missing"),
			wantErr: ErrAccountNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.dump(t)
			_, err := f.transfers.ExecuteTransfer(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if IsValidation(err) {
				t.Errorf("error %v reported as validation failure", err)
			}
			if !equalDumps(before, f.dump(t)) {
				t.Error("state changed after a failed transfer")
			}
		})
	}
}

func TestExecuteTransfer_ExplicitDestinationInstitution(t *testing.T) {
	f := newFixture(t)
	acct := f.openAccount(t, "owner-1", 1000)

	req := validTransfer(acct.ID)
	req.Amount = decimal.NewFromInt(10)
	req.DestinationInstitution = "Mi Banco"
	receipt, err := f.transfers.ExecuteTransfer(context.Background(), req)
	if err != nil {
		t.Fatalf("ExecuteTransfer failed: %v", err)
	}
	if receipt.DestinationInstitution != "Mi Banco" {
		t.Errorf("destination = %q, want Mi Banco", receipt.DestinationInstitution)
	}
}

func TestExecuteTransfer_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	acct := f.openAccount(t, "owner-1", 1000)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := validTransfer(acct.ID)
			req.Amount = decimal.NewFromInt(700)
			_, err := f.transfers.ExecuteTransfer(context.Background(), req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			successes++
		}()
	}
	wg.Wait()

	if successes != 1 || len(failures) != 1 || !errors.Is(failures[0], ErrInsufficientFunds) {
		t.Fatalf("successes = %d, failures = %v", successes, failures)
	}
	stored, _ := f.ledger.GetAccount(context.Background(), acct.ID)
	if !stored.Balance.Amount.Equal(decimal.NewFromInt(300)) {
		t.Errorf("balance = %s, want 300", stored.Balance.Amount)
	}
	if txs := f.transactions(t, "owner-1"); len(txs) != 1 {
		t.Errorf("transactions = %d, want 1", len(txs))
	}
}

func TestExecuteTransfer_DistinctAccountsRunInParallel(t *testing.T) {
	f := newFixture(t)

	const n = 40
	accts := make([]*model.Account, n)
	for i := range accts {
		accts[i] = f.openAccount(t, fmt.Sprintf("owner-%d", i%4), 1000)
	}

	ctx, stop := context.WithCancel(context.Background())
	var bg sync.WaitGroup
	bg.Add(1)
	go func() {
		defer bg.Done()
		for ctx.Err() == nil {
			if _, err := f.reconciler.ReconcileAll(ctx); err != nil && ctx.Err() == nil {
				t.Errorf("ReconcileAll: %v", err)
			}
		}
	}()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []error
	)
	for _, acct := range accts {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			req := validTransfer(id)
			req.Amount = decimal.NewFromInt(100)
			if _, err := f.transfers.ExecuteTransfer(context.Background(), req); err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
		}(acct.ID)
	}
	wg.Wait()
	stop()
	bg.Wait()

	if len(failures) != 0 {
		t.Fatalf("%d of %d transfers failed, first: %v", len(failures), n, failures[0])
	}
	for _, acct := range accts {
		stored, _ := f.ledger.GetAccount(context.Background(), acct.ID)
		if !stored.Balance.Amount.Equal(decimal.NewFromInt(900)) {
			t.Errorf("account %s balance = %s, want 900", acct.ID, stored.Balance.Amount)
		}
	}
}
