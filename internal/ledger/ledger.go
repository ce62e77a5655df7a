package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"goldpay/internal/clabe"
	"goldpay/internal/infrastructure/lock"
	"goldpay/internal/model"
	"goldpay/internal/repository"
	"goldpay/internal/store"
	"goldpay/pkg/idgen"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	DefaultCurrency    = "MXN"
	defaultLockTimeout = 3 * time.Second
	defaultMaxRetries  = 10
)

// Ledger is the only component that writes account balances.
type Ledger struct {
	st          *store.Store
	accountRepo *repository.AccountRepository
	locker      lock.Locker
	lockTimeout time.Duration
	maxRetries  int
	logger      zerolog.Logger
}

type Option func(*Ledger)

// WithLocker replaces the in-process locker, e.g. with a lock.RedisLocker
// when several processes share the store.
func WithLocker(l lock.Locker) Option {
	return func(lg *Ledger) { lg.locker = l }
}

// WithLockTimeout bounds how long a debit waits for its account.
func WithLockTimeout(d time.Duration) Option {
	return func(lg *Ledger) {
		if d > 0 {
			lg.lockTimeout = d
		}
	}
}

// WithMaxRetries bounds commit retries after a version conflict.
func WithMaxRetries(n int) Option {
	return func(lg *Ledger) {
		if n >= 0 {
			lg.maxRetries = n
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(lg *Ledger) { lg.logger = logger }
}

func New(st *store.Store, opts ...Option) *Ledger {
	lg := &Ledger{
		st:          st,
		accountRepo: repository.NewAccountRepository(st),
		locker:      lock.NewLocalLocker(),
		lockTimeout: defaultLockTimeout,
		maxRetries:  defaultMaxRetries,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(lg)
	}
	lg.logger = lg.logger.With().Str("component", "Ledger").Logger()
	return lg
}

// ============================================================================
// Debit
// ============================================================================
//
//   1. amount > 0
//   2. take the account lock (bounded wait)
//   3. in one unit of work: read account -> check balance -> deduct -> then()
//   4. commit; a version conflict re-runs step 3 on fresh data
//
// Nothing is written unless every step succeeds.
//
// ============================================================================

// CommitFunc runs inside a ledger unit of work with the account just written.
// Records it writes through uow commit together with the account.
type CommitFunc func(uow *store.UnitOfWork, account *model.Account) error

// Debit withdraws amount from the account and returns the updated account.
func (l *Ledger) Debit(ctx context.Context, accountID string, amount decimal.Decimal) (*model.Account, error) {
	return l.DebitWith(ctx, accountID, amount, nil)
}

// DebitWith withdraws amount and runs then in the same commit. An error from
// then aborts the debit.
func (l *Ledger) DebitWith(ctx context.Context, accountID string, amount decimal.Decimal, then CommitFunc) (*model.Account, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	release, err := l.locker.Acquire(ctx, lock.AccountLockKey(accountID), l.lockTimeout)
	if err != nil {
		if errors.Is(err, lock.ErrLockFailed) {
			l.logger.Warn().Str("account_id", accountID).Msg("account lock wait timed out")
			return nil, fmt.Errorf("%w: account %s is busy", ErrConcurrencyConflict, accountID)
		}
		return nil, err
	}
	defer release()

	var updated *model.Account
	err = l.st.Update(ctx, func(uow *store.UnitOfWork) error {
		account, err := l.accountRepo.GetByID(ctx, uow, accountID)
		if err != nil {
			return translate(err, accountID)
		}
		if account.Status == model.AccountStatusInactive {
			return fmt.Errorf("%w: account %s is inactive", ErrInvalidAccount, accountID)
		}

		updated, err = l.accountRepo.Deduct(ctx, uow, accountID, amount, account.Version)
		if err != nil {
			return translate(err, accountID)
		}

		if then != nil {
			return then(uow, updated)
		}
		return nil
	}, store.WithMaxRetries(l.maxRetries))

	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
		}
		return nil, err
	}

	l.logger.Info().
		Str("account_id", accountID).
		Str("amount", amount.StringFixed(2)).
		Str("balance_after", updated.Balance.Amount.StringFixed(2)).
		Int("version", updated.Version).
		Msg("debit committed")
	return updated, nil
}

func translate(err error, accountID string) error {
	switch {
	case errors.Is(err, repository.ErrAccountNotFound):
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	case errors.Is(err, repository.ErrBalanceNotEnough):
		return ErrInsufficientFunds
	case errors.Is(err, repository.ErrOptimisticLock):
		return fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
	}
	return err
}

// ============================================================================
// Account opening and reads
// ============================================================================

// OpenAccountRequest describes a new account. An empty AccountNumber on an
// internally issued account gets a freshly generated CLABE.
type OpenAccountRequest struct {
	OwnerID        string
	Provider       string
	Institution    string
	AccountName    string
	AccountNumber  string
	OpeningBalance decimal.Decimal
	Currency       string
	Status         string
}

// OpenAccount creates an account holding its opening balance.
func (l *Ledger) OpenAccount(ctx context.Context, req OpenAccountRequest) (*model.Account, error) {
	return l.OpenAccountWith(ctx, req, nil)
}

// OpenAccountWith creates the account and runs then in the same commit.
// The opening balance is the only balance write outside a debit.
func (l *Ledger) OpenAccountWith(ctx context.Context, req OpenAccountRequest, then CommitFunc) (*model.Account, error) {
	account, err := l.newAccount(req)
	if err != nil {
		return nil, err
	}

	err = l.st.Update(ctx, func(uow *store.UnitOfWork) error {
		if err := l.accountRepo.Create(ctx, uow, account); err != nil {
			return err
		}
		if then != nil {
			return then(uow, account)
		}
		return nil
	}, store.WithMaxRetries(l.maxRetries))
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
		}
		return nil, err
	}

	l.logger.Info().
		Str("account_id", account.ID).
		Str("owner_id", account.OwnerID).
		Str("provider", account.Provider).
		Str("opening_balance", account.Balance.Amount.StringFixed(2)).
		Msg("account opened")
	return account, nil
}

func (l *Ledger) newAccount(req OpenAccountRequest) (*model.Account, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrInvalidAccount)
	}
	if req.OpeningBalance.IsNegative() {
		return nil, ErrInvalidAmount
	}

	provider := req.Provider
	if provider == "" {
		provider = model.ProviderGoldPayments
	}

	number := req.AccountNumber
	if number == "" {
		if provider != model.ProviderGoldPayments {
			return nil, fmt.Errorf("%w: account number is required for linked accounts", ErrInvalidAccount)
		}
		generated, err := clabe.GenerateDefault()
		if err != nil {
			return nil, fmt.Errorf("generate clabe: %w", err)
		}
		number = generated
	}

	institution := req.Institution
	if institution == "" {
		institution = clabe.LookupInstitution(number)
	}

	currency := req.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	status := req.Status
	if status == "" {
		status = model.AccountStatusActive
	}

	name := req.AccountName
	if name == "" {
		name = institution
	}

	now := time.Now().UTC()
	return &model.Account{
		ID:            idgen.AccountID(),
		OwnerID:       req.OwnerID,
		Provider:      provider,
		Institution:   institution,
		AccountName:   name,
		AccountNumber: number,
		Balance:       model.Balance{Amount: req.OpeningBalance, Currency: currency},
		Status:        status,
		LastSyncedAt:  now,
		CreatedAt:     now,
	}, nil
}

func (l *Ledger) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := l.accountRepo.GetByID(ctx, nil, accountID)
	if err != nil {
		return nil, translate(err, accountID)
	}
	return account, nil
}

func (l *Ledger) ListAccounts(ctx context.Context, ownerID string) ([]*model.Account, error) {
	return l.accountRepo.ListByOwner(ctx, nil, ownerID)
}
