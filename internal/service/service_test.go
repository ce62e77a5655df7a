package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"goldpay/internal/config"
	"goldpay/internal/ledger"
	"goldpay/internal/model"
	"goldpay/internal/store"
	"goldpay/internal/store/memory"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const validCLABE = "002180001183597195" // Banamex

type fixture struct {
	st         *store.Store
	cfg        *config.Config
	ledger     *ledger.Ledger
	transfers  *TransferService
	reconciler *ReconcileService
	accounts   *AccountService
	feeds      *FeedService
	queries    *QueryService
	trigger    *recordingTrigger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	st := store.New(memory.NewBackend(), store.WithMaxRetries(cfg.Store.MaxRetries))
	log := zerolog.Nop()

	matcher, err := MatcherFromConfig(cfg.Reconcile)
	if err != nil {
		t.Fatalf("MatcherFromConfig: %v", err)
	}

	lg := ledger.New(st,
		ledger.WithMaxRetries(cfg.Ledger.MaxRetries),
		ledger.WithLockTimeout(cfg.Ledger.LockTimeout),
	)
	f := &fixture{
		st:         st,
		cfg:        cfg,
		ledger:     lg,
		transfers:  NewTransferService(st, lg, cfg, log),
		reconciler: NewReconcileService(st, matcher, cfg, log),
		accounts:   NewAccountService(st, lg, cfg, log),
		feeds:      NewFeedService(st, log),
		queries:    NewQueryService(st),
		trigger:    &recordingTrigger{},
	}
	f.transfers.SetTrigger(f.trigger)
	f.feeds.SetTrigger(f.trigger)
	return f
}

func (f *fixture) openAccount(t *testing.T, owner string, balance int64) *model.Account {
	t.Helper()
	acct, err := f.ledger.OpenAccount(context.Background(), ledger.OpenAccountRequest{
		OwnerID:        owner,
		Institution:    "GoldPayments",
		OpeningBalance: decimal.NewFromInt(balance),
	})
	if err != nil {
		t.Fatalf("OpenAccount: %v", err)
	}
	return acct
}

func (f *fixture) transactions(t *testing.T, owner string) []*model.Transaction {
	t.Helper()
	page, err := f.queries.ListTransactions(context.Background(), owner, 0, 0)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	return page.Items
}

func (f *fixture) bankFeeds(t *testing.T, owner string) []*model.BankFeed {
	t.Helper()
	page, err := f.queries.ListBankFeeds(context.Background(), owner, 0, 0)
	if err != nil {
		t.Fatalf("ListBankFeeds: %v", err)
	}
	return page.Items
}

func (f *fixture) logs(t *testing.T, owner string) []*model.ReconciliationLog {
	t.Helper()
	page, err := f.queries.ListReconciliationLogs(context.Background(), owner, 0, 0)
	if err != nil {
		t.Fatalf("ListReconciliationLogs: %v", err)
	}
	return page.Items
}

func (f *fixture) outbox(t *testing.T) []model.OutboxMessage {
	t.Helper()
	var msgs []model.OutboxMessage
	err := f.st.View(context.Background(), func(uow *store.UnitOfWork) error {
		var err error
		msgs, err = store.Get[model.OutboxMessage](context.Background(), uow, store.CollectionOutbox)
		return err
	})
	if err != nil {
		t.Fatalf("read outbox: %v", err)
	}
	return msgs
}

// dump returns every stored collection as raw documents.
func (f *fixture) dump(t *testing.T) map[string][]string {
	t.Helper()
	out := make(map[string][]string)
	for _, name := range []string{
		store.CollectionAccounts,
		store.CollectionTransactions,
		store.CollectionBankFeeds,
		store.CollectionReconciliationLogs,
		store.CollectionOutbox,
	} {
		snap, err := f.st.Backend().LoadCollection(context.Background(), name)
		if err != nil {
			t.Fatalf("LoadCollection %s: %v", name, err)
		}
		for _, doc := range snap.Docs {
			out[name] = append(out[name], string(doc))
		}
	}
	return out
}

func equalDumps(a, b map[string][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, docs := range a {
		other := b[k]
		if len(docs) != len(other) {
			return false
		}
		for i := range docs {
			if docs[i] != other[i] {
				return false
			}
		}
	}
	return true
}

type recordingTrigger struct {
	mu     sync.Mutex
	owners []string
}

func (r *recordingTrigger) Trigger(ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners = append(r.owners, ownerID)
}

func (r *recordingTrigger) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.owners...)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
