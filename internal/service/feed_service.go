package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"goldpay/internal/model"
	"goldpay/internal/repository"
	"goldpay/internal/store"
	"goldpay/pkg/idgen"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// FeedService appends statement lines coming from outside the ledger.
type FeedService struct {
	st       *store.Store
	feedRepo *repository.BankFeedRepository
	trigger  ReconcileTrigger
	logger   zerolog.Logger
	now      func() time.Time
}

func NewFeedService(st *store.Store, logger zerolog.Logger) *FeedService {
	return &FeedService{
		st:       st,
		feedRepo: repository.NewBankFeedRepository(st),
		logger:   logger.With().Str("component", "FeedService").Logger(),
		now:      time.Now,
	}
}

func (s *FeedService) SetTrigger(trigger ReconcileTrigger) {
	s.trigger = trigger
}

// IngestFeedRequest is one statement line. ExternalRef, when present, makes
// the ingest idempotent per owner.
type IngestFeedRequest struct {
	OwnerID     string          `json:"owner_id" binding:"required"`
	Institution string          `json:"institution"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	ValueDate   time.Time       `json:"value_date"`
	ExternalRef string          `json:"external_ref"`
}

func (s *FeedService) validate(req *IngestFeedRequest) error {
	if strings.TrimSpace(req.OwnerID) == "" {
		return invalid("owner_id", ErrInvalidOwner)
	}
	if req.Amount.IsZero() || !req.Amount.Equal(req.Amount.Round(2)) {
		return invalid("amount", ErrInvalidAmount)
	}
	if strings.TrimSpace(req.Currency) == "" {
		return invalid("currency", ErrInvalidCurrency)
	}
	if req.ValueDate.IsZero() {
		return invalid("value_date", ErrInvalidValueDate)
	}
	return nil
}

// Ingest stores the line as a PENDING bank feed. A line whose ExternalRef was
// already ingested for the owner returns ErrDuplicateFeed with the stored feed.
func (s *FeedService) Ingest(ctx context.Context, req *IngestFeedRequest) (*model.BankFeed, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	ownerID := strings.TrimSpace(req.OwnerID)
	ref := strings.TrimSpace(req.ExternalRef)
	feed := &model.BankFeed{
		ID:                   idgen.BankFeedID(),
		OwnerID:              ownerID,
		Institution:          strings.TrimSpace(req.Institution),
		Description:          strings.TrimSpace(req.Description),
		Amount:               req.Amount,
		Currency:             strings.ToUpper(strings.TrimSpace(req.Currency)),
		ValueDate:            req.ValueDate.UTC(),
		ExternalRef:          ref,
		ReconciliationStatus: model.FeedStatusPending,
	}

	var existing *model.BankFeed
	err := s.st.Update(ctx, func(uow *store.UnitOfWork) error {
		existing = nil
		if ref != "" {
			found, err := s.feedRepo.GetByExternalRef(ctx, uow, ownerID, ref)
			if err != nil {
				return err
			}
			if found != nil {
				existing = found
				return nil
			}
		}
		feed.CreatedAt = s.now().UTC()
		return s.feedRepo.Create(ctx, uow, feed)
	})
	if err != nil {
		return nil, fmt.Errorf("ingest bank feed: %w", err)
	}
	if existing != nil {
		s.logger.Debug().Str("owner_id", ownerID).Str("external_ref", ref).Msg("duplicate bank feed skipped")
		return existing, ErrDuplicateFeed
	}

	s.logger.Info().
		Str("owner_id", ownerID).
		Str("bank_feed_id", feed.ID).
		Str("amount", feed.Amount.StringFixed(2)).
		Msg("bank feed ingested")

	if s.trigger != nil {
		s.trigger.Trigger(ownerID)
	}
	return feed, nil
}
