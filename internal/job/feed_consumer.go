package job

import (
	"context"
	"encoding/json"
	"errors"

	"goldpay/internal/model"
	"goldpay/internal/service"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// Ingester stores incoming bank statement lines.
type Ingester interface {
	Ingest(ctx context.Context, req *service.IngestFeedRequest) (*model.BankFeed, error)
}

// FeedConsumer reads bank statement lines from Kafka and ingests them.
//
// A message is marked once it is stored, was already stored, or can never be
// stored (bad JSON, failed validation). Any other failure ends the session
// without marking, so the message is delivered again.
type FeedConsumer struct {
	ingester Ingester
	logger   zerolog.Logger
}

func NewFeedConsumer(ingester Ingester, logger zerolog.Logger) *FeedConsumer {
	return &FeedConsumer{
		ingester: ingester,
		logger:   logger.With().Str("component", "FeedConsumer").Logger(),
	}
}

// Run consumes topics until ctx is done.
func (c *FeedConsumer) Run(ctx context.Context, group sarama.ConsumerGroup, topics ...string) error {
	c.logger.Info().Strs("topics", topics).Msg("feed consumer started")
	go func() {
		for err := range group.Errors() {
			c.logger.Error().Err(err).Msg("consumer group error")
		}
	}()

	for {
		if err := group.Consume(ctx, topics, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.Error().Err(err).Msg("consume session ended")
		}
		if ctx.Err() != nil {
			c.logger.Info().Msg("context done, feed consumer exiting")
			return nil
		}
	}
}

func (c *FeedConsumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *FeedConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *FeedConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.handle(session.Context(), msg); err != nil {
				return err
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *FeedConsumer) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	log := c.logger.With().
		Str("topic", msg.Topic).
		Int32("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Logger()

	var req service.IngestFeedRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		log.Error().Err(err).Msg("dropping undecodable bank feed message")
		return nil
	}

	feed, err := c.ingester.Ingest(ctx, &req)
	switch {
	case err == nil:
		log.Debug().Str("bank_feed_id", feed.ID).Msg("bank feed consumed")
		return nil
	case errors.Is(err, service.ErrDuplicateFeed):
		log.Debug().Str("external_ref", req.ExternalRef).Msg("duplicate bank feed")
		return nil
	case service.IsValidation(err):
		log.Error().Err(err).Msg("dropping invalid bank feed message")
		return nil
	default:
		return err
	}
}

var _ sarama.ConsumerGroupHandler = (*FeedConsumer)(nil)
