package job

import (
	"context"
	"sync"
	"time"

	"goldpay/internal/config"
	"goldpay/internal/model"
	"goldpay/internal/repository"
	"goldpay/internal/store"

	"github.com/rs/zerolog"
)

// Publisher delivers one outbox message to the broker.
type Publisher interface {
	Publish(ctx context.Context, topic, key, value string) error
}

// OutboxSender polls PENDING outbox messages and publishes them. A message
// that keeps failing is marked FAILED after business.max_retry_count attempts.
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  Publisher
	maxRetry   int
	stopCh     chan struct{}
	stopOnce   sync.Once
	interval   time.Duration
	batchSize  int
	logger     zerolog.Logger
}

func NewOutboxSender(st *store.Store, publisher Publisher, cfg *config.Config, logger zerolog.Logger) *OutboxSender {
	interval := cfg.Business.OutboxInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	batchSize := cfg.Business.OutboxBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(st),
		publisher:  publisher,
		maxRetry:   cfg.Business.MaxRetryCount,
		stopCh:     make(chan struct{}),
		interval:   interval,
		batchSize:  batchSize,
		logger:     logger.With().Str("component", "OutboxSender").Logger(),
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("outbox sender started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("context done, outbox sender exiting")
			return
		case <-s.stopCh:
			s.logger.Info().Msg("outbox sender stopped")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// processPendingMessages sends one batch and returns how many were delivered.
func (s *OutboxSender) processPendingMessages(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("load pending messages")
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	log := s.logger.With().Str("message_id", msg.ID).Str("topic", msg.Topic).Logger()

	err := s.publisher.Publish(ctx, msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			log.Error().Err(updateErr).Msg("mark message sent")
			return false
		}
		log.Debug().Str("key", msg.MessageKey).Msg("message sent")
		return true
	}

	log.Warn().Err(err).Int("retry_count", msg.RetryCount).Msg("publish failed")

	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		log.Error().Err(err).Msg("increment retry count")
	}

	if msg.RetryCount+1 >= s.maxRetry {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			log.Error().Err(err).Msg("mark message failed")
		} else {
			log.Error().Msg("message exceeded max retries, marked failed")
		}
	}
	return false
}
