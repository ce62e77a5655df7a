package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"goldpay/internal/config"
	"goldpay/internal/ledger"
	"goldpay/internal/model"
	"goldpay/internal/repository"
	"goldpay/internal/store"
	"goldpay/pkg/idgen"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	mainAccountName        = "Cuenta Principal"
	linkedAccountName      = "Cuenta de Ahorros"
	signupBonusDescription = "Bono de Registro"
	signupBonusFeedText    = "DEPOSITO SPEI GOLD PAYMENTS"
	signupBonusFeedBank    = "STP"

	// past outflows imported with a freshly linked account
	linkedHistorySize = 5
)

var (
	linkedHistoryMerchants  = []string{"Amazon", "MercadoLibre", "Uber", "Rappi"}
	linkedHistoryCategories = []string{model.CategoryShopping, model.CategoryTransport, model.CategoryFood}
)

type AccountService struct {
	ledger          *ledger.Ledger
	cfg             *config.Config
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	feedRepo        *repository.BankFeedRepository
	logRepo         *repository.ReconciliationLogRepository
	logger          zerolog.Logger
	now             func() time.Time
}

func NewAccountService(st *store.Store, lg *ledger.Ledger, cfg *config.Config, logger zerolog.Logger) *AccountService {
	return &AccountService{
		ledger:          lg,
		cfg:             cfg,
		accountRepo:     repository.NewAccountRepository(st),
		transactionRepo: repository.NewTransactionRepository(st),
		feedRepo:        repository.NewBankFeedRepository(st),
		logRepo:         repository.NewReconciliationLogRepository(st),
		logger:          logger.With().Str("component", "AccountService").Logger(),
		now:             time.Now,
	}
}

type OnboardResult struct {
	Account          *model.Account           `json:"account"`
	BonusTransaction *model.Transaction       `json:"bonus_transaction,omitempty"`
	BonusFeed        *model.BankFeed          `json:"bonus_feed,omitempty"`
	BonusLog         *model.ReconciliationLog `json:"bonus_log,omitempty"`
}

// Onboard opens the owner's main account with the signup bonus. The bonus
// arrives already reconciled: its transaction, bank feed line and AUTO log
// are written in the same commit as the account.
func (s *AccountService) Onboard(ctx context.Context, ownerID string) (*OnboardResult, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, invalid("owner_id", ErrInvalidOwner)
	}

	bonus, err := s.cfg.Business.SignupBonusAmount()
	if err != nil {
		return nil, err
	}

	result := &OnboardResult{}
	account, err := s.ledger.OpenAccountWith(ctx, ledger.OpenAccountRequest{
		OwnerID:        ownerID,
		Provider:       model.ProviderGoldPayments,
		Institution:    model.ProviderGoldPayments,
		AccountName:    mainAccountName,
		OpeningBalance: bonus,
		Currency:       s.cfg.Business.Currency,
	}, func(uow *store.UnitOfWork, acct *model.Account) error {
		existing, err := s.accountRepo.ListByOwner(ctx, uow, ownerID)
		if err != nil {
			return err
		}
		for _, a := range existing {
			if a.ID != acct.ID && a.Provider == model.ProviderGoldPayments {
				return ErrAlreadyOnboarded
			}
		}

		if !bonus.IsPositive() {
			return nil
		}
		return s.recordBonus(ctx, uow, acct, bonus, result)
	})
	if err != nil {
		return nil, err
	}

	result.Account = account
	s.logger.Info().
		Str("owner_id", ownerID).
		Str("account_id", account.ID).
		Str("clabe", account.AccountNumber).
		Msg("owner onboarded")
	return result, nil
}

func (s *AccountService) recordBonus(ctx context.Context, uow *store.UnitOfWork, acct *model.Account, bonus decimal.Decimal, result *OnboardResult) error {
	now := s.now().UTC()

	trans := &model.Transaction{
		ID:                   idgen.TransactionID(),
		AccountID:            acct.ID,
		OwnerID:              acct.OwnerID,
		Institution:          acct.Institution,
		Description:          signupBonusDescription,
		Amount:               bonus,
		Currency:             acct.Balance.Currency,
		OccurredAt:           now,
		Category:             model.CategoryIncome,
		CounterpartyName:     model.ProviderGoldPayments,
		Status:               model.TransactionStatusCompleted,
		ReconciliationStatus: model.ReconciliationReconciled,
	}
	feed := &model.BankFeed{
		ID:                   idgen.BankFeedID(),
		OwnerID:              acct.OwnerID,
		Institution:          signupBonusFeedBank,
		Description:          signupBonusFeedText,
		Amount:               bonus,
		Currency:             acct.Balance.Currency,
		ValueDate:            now,
		CreatedAt:            now,
		ReconciliationStatus: model.FeedStatusMatched,
	}
	log := &model.ReconciliationLog{
		ID:            idgen.ReconciliationLogID(),
		OwnerID:       acct.OwnerID,
		TransactionID: trans.ID,
		BankFeedID:    feed.ID,
		MatchScore:    100,
		MatchMethod:   model.MatchMethodAuto,
		CreatedAt:     now,
	}

	if err := s.transactionRepo.Create(ctx, uow, trans); err != nil {
		return fmt.Errorf("record bonus transaction: %w", err)
	}
	if err := s.feedRepo.Create(ctx, uow, feed); err != nil {
		return fmt.Errorf("record bonus feed: %w", err)
	}
	if err := s.logRepo.Append(ctx, uow, *log); err != nil {
		return fmt.Errorf("record bonus log: %w", err)
	}

	result.BonusTransaction = trans
	result.BonusFeed = feed
	result.BonusLog = log
	return nil
}

type LinkAccountRequest struct {
	OwnerID        string          `json:"owner_id" binding:"required"`
	Institution    string          `json:"institution" binding:"required"`
	AccountName    string          `json:"account_name"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Currency       string          `json:"currency"`
}

// LinkExternalAccount registers an account held at another institution. Only
// a masked number is kept. The account's recent outflows are imported in the
// same commit as PENDING transactions for the matcher to pick up.
func (s *AccountService) LinkExternalAccount(ctx context.Context, req *LinkAccountRequest) (*model.Account, error) {
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return nil, invalid("owner_id", ErrInvalidOwner)
	}
	institution := strings.TrimSpace(req.Institution)
	if institution == "" {
		return nil, invalid("institution", ErrInvalidInstitution)
	}
	if req.OpeningBalance.IsNegative() {
		return nil, invalid("opening_balance", ErrInvalidAmount)
	}

	name := strings.TrimSpace(req.AccountName)
	if name == "" {
		name = linkedAccountName
	}
	currency := req.Currency
	if currency == "" {
		currency = s.cfg.Business.Currency
	}

	account, err := s.ledger.OpenAccountWith(ctx, ledger.OpenAccountRequest{
		OwnerID:        ownerID,
		Provider:       model.ProviderBelvo,
		Institution:    institution,
		AccountName:    name,
		AccountNumber:  maskedAccountNumber(),
		OpeningBalance: req.OpeningBalance,
		Currency:       currency,
	}, func(uow *store.UnitOfWork, acct *model.Account) error {
		return s.importHistory(ctx, uow, acct)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("owner_id", ownerID).
		Str("account_id", account.ID).
		Str("institution", institution).
		Int("imported", linkedHistorySize).
		Msg("external account linked")
	return account, nil
}

// importHistory writes one outflow per day for the last linkedHistorySize
// days, newest first.
func (s *AccountService) importHistory(ctx context.Context, uow *store.UnitOfWork, acct *model.Account) error {
	now := s.now().UTC()
	for i := 0; i < linkedHistorySize; i++ {
		cents := 5000 + rand.Int63n(100000)
		trans := &model.Transaction{
			ID:                   idgen.TransactionID(),
			AccountID:            acct.ID,
			OwnerID:              acct.OwnerID,
			Institution:          acct.Institution,
			Description:          "Compra en " + linkedHistoryMerchants[rand.Intn(len(linkedHistoryMerchants))],
			Amount:               decimal.New(-cents, -2),
			Currency:             acct.Balance.Currency,
			OccurredAt:           now.Add(-time.Duration(i) * 24 * time.Hour),
			Category:             linkedHistoryCategories[rand.Intn(len(linkedHistoryCategories))],
			Status:               model.TransactionStatusCompleted,
			ReconciliationStatus: model.ReconciliationPending,
		}
		if err := s.transactionRepo.Create(ctx, uow, trans); err != nil {
			return fmt.Errorf("import linked history: %w", err)
		}
	}
	return nil
}

func maskedAccountNumber() string {
	return fmt.Sprintf("**** **** **** %04d", 1000+rand.Intn(9000))
}

func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	return s.ledger.GetAccount(ctx, accountID)
}

func (s *AccountService) ListAccounts(ctx context.Context, ownerID string) ([]*model.Account, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, invalid("owner_id", ErrInvalidOwner)
	}
	return s.ledger.ListAccounts(ctx, ownerID)
}
