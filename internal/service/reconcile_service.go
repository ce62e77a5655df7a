package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"goldpay/internal/config"
	"goldpay/internal/model"
	"goldpay/internal/reconcile"
	"goldpay/internal/repository"
	"goldpay/internal/store"
	"goldpay/pkg/idgen"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ReconcileService runs matcher passes against the store and records their
// outcome.
type ReconcileService struct {
	st              *store.Store
	matcher         *reconcile.Matcher
	cfg             *config.Config
	transactionRepo *repository.TransactionRepository
	feedRepo        *repository.BankFeedRepository
	logRepo         *repository.ReconciliationLogRepository
	outboxRepo      *repository.OutboxRepository
	inflight        singleflight.Group
	passMu          sync.Mutex
	passes          map[string]*sharedPass
	logger          zerolog.Logger
	now             func() time.Time
}

func NewReconcileService(st *store.Store, matcher *reconcile.Matcher, cfg *config.Config, logger zerolog.Logger) *ReconcileService {
	return &ReconcileService{
		st:              st,
		matcher:         matcher,
		cfg:             cfg,
		transactionRepo: repository.NewTransactionRepository(st),
		feedRepo:        repository.NewBankFeedRepository(st),
		logRepo:         repository.NewReconciliationLogRepository(st),
		outboxRepo:      repository.NewOutboxRepository(st),
		passes:          make(map[string]*sharedPass),
		logger:          logger.With().Str("component", "ReconcileService").Logger(),
		now:             time.Now,
	}
}

// MatcherFromConfig builds the matcher described by the reconcile section.
func MatcherFromConfig(cfg config.ReconcileConfig) (*reconcile.Matcher, error) {
	tolerance, err := cfg.Tolerance()
	if err != nil {
		return nil, err
	}
	return reconcile.NewMatcher(reconcile.Config{
		AmountTolerance:    tolerance,
		DateWindow:         cfg.DateWindow,
		AutoMatchThreshold: cfg.AutoMatchThreshold,
		Weights: reconcile.Weights{
			Amount:      cfg.Weights.Amount,
			Date:        cfg.Weights.Date,
			Institution: cfg.Weights.Institution,
		},
		ReviewGrace: cfg.ReviewGrace,
	}), nil
}

// ReconcileReport summarizes one committed pass.
type ReconcileReport struct {
	OwnerID            string                    `json:"owner_id"`
	Candidates         int                       `json:"candidates"`
	Matched            int                       `json:"matched"`
	LowConfidence      int                       `json:"low_confidence"`
	ReviewTransactions int                       `json:"review_transactions"`
	ReviewFeeds        int                       `json:"review_feeds"`
	Deferred           int                       `json:"deferred"`
	Logs               []model.ReconciliationLog `json:"logs"`
}

// ============================================================================
// Matcher pass
// ============================================================================
//
// One pass per owner at a time: concurrent callers for the same owner share
// the running pass and its report. The pass runs on its own context, which is
// cancelled once every waiting caller has gone, or after passTimeout.
//
// The pass reads PENDING transactions and feeds, runs the matcher and writes
// statuses, logs and the outbox event in one unit of work. Transfers and
// ingests from this process wait for the unit of work to finish and are seen
// by the next pass. A commit from another process sharing the backend causes
// a version conflict and the pass is re-run on fresh data.
//
// ============================================================================

const passTimeout = 2 * time.Minute

type sharedPass struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (s *ReconcileService) Reconcile(ctx context.Context, ownerID string) (*ReconcileReport, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, invalid("owner_id", ErrInvalidOwner)
	}

	pass := s.joinPass(ctx, ownerID)
	defer s.leavePass(ownerID, pass)

	for {
		ch := s.inflight.DoChan(ownerID, func() (interface{}, error) {
			return s.reconcileOwner(pass.ctx, ownerID)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			// a pass abandoned by all of its earlier callers can still be
			// finishing; start a fresh one
			if errors.Is(res.Err, context.Canceled) && pass.ctx.Err() == nil {
				continue
			}
			if res.Err != nil {
				return nil, res.Err
			}
			if res.Shared {
				s.logger.Debug().Str("owner_id", ownerID).Msg("joined running pass")
			}
			return res.Val.(*ReconcileReport), nil
		}
	}
}

func (s *ReconcileService) joinPass(ctx context.Context, ownerID string) *sharedPass {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	pass, ok := s.passes[ownerID]
	if !ok {
		passCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), passTimeout)
		pass = &sharedPass{ctx: passCtx, cancel: cancel}
		s.passes[ownerID] = pass
	}
	pass.waiters++
	return pass
}

func (s *ReconcileService) leavePass(ownerID string, pass *sharedPass) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	pass.waiters--
	if pass.waiters == 0 {
		pass.cancel()
		delete(s.passes, ownerID)
	}
}

func (s *ReconcileService) reconcileOwner(ctx context.Context, ownerID string) (*ReconcileReport, error) {
	started := s.now()

	var report *ReconcileReport
	err := s.st.Update(ctx, func(uow *store.UnitOfWork) error {
		report = &ReconcileReport{OwnerID: ownerID}

		txs, err := s.transactionRepo.ListByReconciliationStatus(ctx, uow, ownerID, model.ReconciliationPending)
		if err != nil {
			return err
		}
		feeds, err := s.feedRepo.ListByReconciliationStatus(ctx, uow, ownerID, model.FeedStatusPending)
		if err != nil {
			return err
		}

		res, err := s.matcher.Reconcile(ctx, txs, feeds)
		if err != nil {
			return err
		}
		report.Candidates = res.Candidates
		report.Deferred = res.Deferred
		if res.Empty() {
			return nil
		}

		now := s.now().UTC()
		txTargets := make(map[string]string)
		feedTargets := make(map[string]string)
		logs := make([]model.ReconciliationLog, 0, len(res.AutoMatches))

		for _, m := range res.AutoMatches {
			logs = append(logs, model.ReconciliationLog{
				ID:            idgen.ReconciliationLogID(),
				OwnerID:       ownerID,
				TransactionID: m.TransactionID,
				BankFeedID:    m.BankFeedID,
				MatchScore:    m.Score,
				MatchMethod:   model.MatchMethodAuto,
				CreatedAt:     now,
			})
			txTargets[m.TransactionID] = model.ReconciliationReconciled
			feedTargets[m.BankFeedID] = model.FeedStatusMatched
		}
		for _, id := range res.ReviewTransactionIDs {
			txTargets[id] = model.ReconciliationManualReview
		}
		for _, id := range res.ReviewFeedIDs {
			feedTargets[id] = model.FeedStatusManualReview
		}

		// both collections are written so the commit also checks that neither
		// changed since they were read
		if _, err := s.transactionRepo.UpdateReconciliationStatus(ctx, uow, txTargets, model.ReconciliationPending); err != nil {
			return err
		}
		if _, err := s.feedRepo.UpdateReconciliationStatus(ctx, uow, feedTargets, model.FeedStatusPending); err != nil {
			return err
		}
		if err := s.logRepo.Append(ctx, uow, logs...); err != nil {
			return err
		}

		report.Matched = len(logs)
		report.LowConfidence = len(res.LowConfidence)
		report.ReviewTransactions = len(res.ReviewTransactionIDs)
		report.ReviewFeeds = len(res.ReviewFeedIDs)
		report.Logs = logs

		event := model.ReconciliationCompletedEvent{
			OwnerID:      ownerID,
			Logs:         logs,
			ManualReview: report.ReviewTransactions + report.ReviewFeeds,
			CompletedAt:  now,
		}
		msg, err := newOutboxMessage(s.cfg.Kafka.Topic.ReconciliationCompleted, ownerID, event, now)
		if err != nil {
			return err
		}
		return s.outboxRepo.Create(ctx, uow, msg)
	})
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			err = fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
		}
		s.logger.Warn().Err(err).Str("owner_id", ownerID).Msg("reconciliation pass aborted")
		return nil, err
	}

	s.logger.Info().
		Str("owner_id", ownerID).
		Int("candidates", report.Candidates).
		Int("matched", report.Matched).
		Int("review_transactions", report.ReviewTransactions).
		Int("review_feeds", report.ReviewFeeds).
		Int("deferred", report.Deferred).
		Dur("took", s.now().Sub(started)).
		Msg("reconciliation pass committed")
	return report, nil
}

// PendingOwners lists owners with at least one PENDING transaction or feed.
func (s *ReconcileService) PendingOwners(ctx context.Context) ([]string, error) {
	owners := make(map[string]bool)
	err := s.st.View(ctx, func(uow *store.UnitOfWork) error {
		txs, err := s.transactionRepo.ListByReconciliationStatus(ctx, uow, "", model.ReconciliationPending)
		if err != nil {
			return err
		}
		feeds, err := s.feedRepo.ListByReconciliationStatus(ctx, uow, "", model.FeedStatusPending)
		if err != nil {
			return err
		}
		for _, t := range txs {
			owners[t.OwnerID] = true
		}
		for _, f := range feeds {
			owners[f.OwnerID] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(owners))
	for owner := range owners {
		result = append(result, owner)
	}
	sort.Strings(result)
	return result, nil
}

// ReconcileAll runs a pass for every owner with pending work, at most
// reconcile.concurrency at a time. A failing owner does not stop the others;
// their errors are joined.
func (s *ReconcileService) ReconcileAll(ctx context.Context) ([]*ReconcileReport, error) {
	owners, err := s.PendingOwners(ctx)
	if err != nil {
		return nil, err
	}

	limit := s.cfg.Reconcile.Concurrency
	if limit <= 0 {
		limit = 1
	}

	var (
		mu      sync.Mutex
		reports []*ReconcileReport
		errs    []error
	)
	var g errgroup.Group
	g.SetLimit(limit)
	for _, owner := range owners {
		owner := owner
		g.Go(func() error {
			report, err := s.Reconcile(ctx, owner)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("owner %s: %w", owner, err))
				return nil
			}
			reports = append(reports, report)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(reports, func(i, j int) bool { return reports[i].OwnerID < reports[j].OwnerID })
	return reports, errors.Join(errs...)
}

// ============================================================================
// Manual review
// ============================================================================

// ConfirmManualMatch records a human decision that txID and feedID are the
// same movement. Both must belong to ownerID, share a currency and have no
// log yet. Records in PENDING or MANUAL_REVIEW are accepted.
func (s *ReconcileService) ConfirmManualMatch(ctx context.Context, ownerID, txID, feedID string) (*model.ReconciliationLog, error) {
	switch {
	case strings.TrimSpace(ownerID) == "":
		return nil, invalid("owner_id", ErrInvalidOwner)
	case strings.TrimSpace(txID) == "":
		return nil, invalid("transaction_id", ErrMissingID)
	case strings.TrimSpace(feedID) == "":
		return nil, invalid("bank_feed_id", ErrMissingID)
	}

	var log *model.ReconciliationLog
	err := s.st.Update(ctx, func(uow *store.UnitOfWork) error {
		trans, err := s.transactionRepo.GetByID(ctx, uow, txID)
		if errors.Is(err, repository.ErrTransactionNotFound) || (err == nil && trans.OwnerID != ownerID) {
			return fmt.Errorf("%w: transaction %s", ErrRecordNotFound, txID)
		} else if err != nil {
			return err
		}
		feed, err := s.feedRepo.GetByID(ctx, uow, feedID)
		if errors.Is(err, repository.ErrBankFeedNotFound) || (err == nil && feed.OwnerID != ownerID) {
			return fmt.Errorf("%w: bank feed %s", ErrRecordNotFound, feedID)
		} else if err != nil {
			return err
		}

		if trans.IsReconciled() || feed.IsMatched() {
			return ErrAlreadyReconciled
		}
		if !strings.EqualFold(trans.Currency, feed.Currency) {
			return fmt.Errorf("%w: currency %s vs %s", ErrMatchRejected, trans.Currency, feed.Currency)
		}

		_, err = s.transactionRepo.UpdateReconciliationStatus(ctx, uow,
			map[string]string{txID: model.ReconciliationReconciled},
			model.ReconciliationPending, model.ReconciliationManualReview)
		if err != nil {
			return err
		}
		_, err = s.feedRepo.UpdateReconciliationStatus(ctx, uow,
			map[string]string{feedID: model.FeedStatusMatched},
			model.FeedStatusPending, model.FeedStatusManualReview)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		log = &model.ReconciliationLog{
			ID:            idgen.ReconciliationLogID(),
			OwnerID:       ownerID,
			TransactionID: txID,
			BankFeedID:    feedID,
			MatchScore:    s.matcher.Score(*trans, *feed),
			MatchMethod:   model.MatchMethodManual,
			CreatedAt:     now,
		}
		if err := s.logRepo.Append(ctx, uow, *log); err != nil {
			if errors.Is(err, repository.ErrAlreadyMatched) {
				return ErrAlreadyReconciled
			}
			return err
		}

		event := model.ReconciliationCompletedEvent{
			OwnerID:     ownerID,
			Logs:        []model.ReconciliationLog{*log},
			CompletedAt: now,
		}
		msg, err := newOutboxMessage(s.cfg.Kafka.Topic.ReconciliationCompleted, ownerID, event, now)
		if err != nil {
			return err
		}
		return s.outboxRepo.Create(ctx, uow, msg)
	})
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
		}
		return nil, err
	}

	s.logger.Info().
		Str("owner_id", ownerID).
		Str("transaction_id", txID).
		Str("bank_feed_id", feedID).
		Float64("score", log.MatchScore).
		Msg("manual match confirmed")
	return log, nil
}
