package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"goldpay/internal/clabe"
	"goldpay/internal/config"
	"goldpay/internal/ledger"
	"goldpay/internal/model"
	"goldpay/internal/repository"
	"goldpay/internal/store"
	"goldpay/pkg/idgen"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const minTextLength = 3

// ReconcileTrigger asks for a reconciliation pass for an owner without
// waiting for it.
type ReconcileTrigger interface {
	Trigger(ownerID string)
}

type TransferService struct {
	st              *store.Store
	ledger          *ledger.Ledger
	cfg             *config.Config
	catalog         clabe.InstitutionCatalog
	transactionRepo *repository.TransactionRepository
	feedRepo        *repository.BankFeedRepository
	outboxRepo      *repository.OutboxRepository
	trigger         ReconcileTrigger
	logger          zerolog.Logger
	now             func() time.Time
}

func NewTransferService(st *store.Store, lg *ledger.Ledger, cfg *config.Config, logger zerolog.Logger) *TransferService {
	return &TransferService{
		st:              st,
		ledger:          lg,
		cfg:             cfg,
		catalog:         clabe.DefaultCatalog,
		transactionRepo: repository.NewTransactionRepository(st),
		feedRepo:        repository.NewBankFeedRepository(st),
		outboxRepo:      repository.NewOutboxRepository(st),
		logger:          logger.With().Str("component", "TransferService").Logger(),
		now:             time.Now,
	}
}

// SetTrigger registers who is told about new pending records after a transfer.
func (s *TransferService) SetTrigger(trigger ReconcileTrigger) {
	s.trigger = trigger
}

// SetCatalog replaces the institution catalog used for destination lookups.
func (s *TransferService) SetCatalog(catalog clabe.InstitutionCatalog) {
	s.catalog = catalog
}

type TransferRequest struct {
	SourceAccountID        string          `json:"source_account_id" binding:"required"`
	Amount                 decimal.Decimal `json:"amount"`
	BeneficiaryName        string          `json:"beneficiary_name"`
	DestinationRoutingCode string          `json:"destination_routing_code"`
	Concept                string          `json:"concept"`
	DestinationInstitution string          `json:"destination_institution"`
}

type TransferReceipt struct {
	TransferID             string          `json:"transfer_id"`
	TransactionID          string          `json:"transaction_id"`
	BankFeedID             string          `json:"bank_feed_id"`
	SourceAccountID        string          `json:"source_account_id"`
	Amount                 decimal.Decimal `json:"amount"`
	Currency               string          `json:"currency"`
	BalanceAfter           decimal.Decimal `json:"balance_after"`
	BeneficiaryName        string          `json:"beneficiary_name"`
	DestinationInstitution string          `json:"destination_institution"`
	CreatedAt              time.Time       `json:"created_at"`
}

// validate checks the request in a fixed order; the first failure wins.
func (s *TransferService) validate(req *TransferRequest) error {
	if !clabe.Validate(strings.TrimSpace(req.DestinationRoutingCode)) {
		return invalid("destination_routing_code", ErrInvalidRoutingCode)
	}
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Round(2)) {
		return invalid("amount", ErrInvalidAmount)
	}
	if utf8.RuneCountInString(strings.TrimSpace(req.BeneficiaryName)) < minTextLength {
		return invalid("beneficiary_name", ErrInvalidBeneficiary)
	}
	if utf8.RuneCountInString(strings.TrimSpace(req.Concept)) < minTextLength {
		return invalid("concept", ErrInvalidConcept)
	}
	return nil
}

// ExecuteTransfer debits the source account and records the transfer.
//
// The debit, the outgoing Transaction, the synthetic BankFeed that stands in
// for the bank's settlement line and the outbox event commit together or not
// at all. The Transaction and BankFeed are not linked to each other; the
// matcher pairs them later.
func (s *TransferService) ExecuteTransfer(ctx context.Context, req *TransferRequest) (*TransferReceipt, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	routingCode := strings.TrimSpace(req.DestinationRoutingCode)
	beneficiary := strings.TrimSpace(req.BeneficiaryName)
	concept := strings.TrimSpace(req.Concept)
	destination := strings.TrimSpace(req.DestinationInstitution)
	if destination == "" {
		destination = clabe.LookupInstitutionIn(s.catalog, routingCode)
	}

	transferID := idgen.TransferID()
	transactionID := idgen.TransactionID()
	feedID := idgen.BankFeedID()

	var receipt *TransferReceipt
	account, err := s.ledger.DebitWith(ctx, req.SourceAccountID, req.Amount, func(uow *store.UnitOfWork, acct *model.Account) error {
		now := s.now().UTC()
		outflow := req.Amount.Neg()

		trans := &model.Transaction{
			ID:                   transactionID,
			AccountID:            acct.ID,
			OwnerID:              acct.OwnerID,
			Institution:          acct.Institution,
			Description:          concept,
			Amount:               outflow,
			Currency:             acct.Balance.Currency,
			OccurredAt:           now,
			Category:             model.CategoryTransfer,
			CounterpartyName:     beneficiary,
			Status:               model.TransactionStatusCompleted,
			ReconciliationStatus: model.ReconciliationPending,
		}
		if err := s.transactionRepo.Create(ctx, uow, trans); err != nil {
			return fmt.Errorf("record transaction: %w", err)
		}

		feed := &model.BankFeed{
			ID:                   feedID,
			OwnerID:              acct.OwnerID,
			Institution:          acct.Institution,
			Description:          "SPEI A " + strings.ToUpper(beneficiary),
			Amount:               outflow,
			Currency:             acct.Balance.Currency,
			ValueDate:            now.Add(s.cfg.Business.SettlementDelay),
			CreatedAt:            now,
			ReconciliationStatus: model.FeedStatusPending,
		}
		if err := s.feedRepo.Create(ctx, uow, feed); err != nil {
			return fmt.Errorf("record bank feed: %w", err)
		}

		receipt = &TransferReceipt{
			TransferID:             transferID,
			TransactionID:          transactionID,
			BankFeedID:             feedID,
			SourceAccountID:        acct.ID,
			Amount:                 req.Amount,
			Currency:               acct.Balance.Currency,
			BalanceAfter:           acct.Balance.Amount,
			BeneficiaryName:        beneficiary,
			DestinationInstitution: destination,
			CreatedAt:              now,
		}

		event := model.TransferCompletedEvent{
			TransferID:             transferID,
			TransactionID:          transactionID,
			BankFeedID:             feedID,
			OwnerID:                acct.OwnerID,
			SourceAccountID:        acct.ID,
			Amount:                 req.Amount,
			Currency:               acct.Balance.Currency,
			BeneficiaryName:        beneficiary,
			DestinationInstitution: destination,
			OccurredAt:             now,
		}
		msg, err := newOutboxMessage(s.cfg.Kafka.Topic.TransferCompleted, transferID, event, now)
		if err != nil {
			return err
		}
		if err := s.outboxRepo.Create(ctx, uow, msg); err != nil {
			return fmt.Errorf("write outbox message: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).
			Str("source_account_id", req.SourceAccountID).
			Str("amount", req.Amount.StringFixed(2)).
			Msg("transfer rejected")
		return nil, err
	}

	s.logger.Info().
		Str("transfer_id", transferID).
		Str("source_account_id", account.ID).
		Str("amount", req.Amount.StringFixed(2)).
		Str("destination", destination).
		Msg("transfer completed")

	if s.trigger != nil {
		s.trigger.Trigger(account.OwnerID)
	}
	return receipt, nil
}
