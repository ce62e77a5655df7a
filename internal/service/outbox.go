package service

import (
	"encoding/json"
	"fmt"
	"time"

	"goldpay/internal/model"
	"goldpay/pkg/idgen"
)

// newOutboxMessage encodes payload as a PENDING outbox message. The caller
// writes it in the same unit of work as the change it announces.
func newOutboxMessage(topic, key string, payload interface{}, now time.Time) (*model.OutboxMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", topic, err)
	}
	return &model.OutboxMessage{
		ID:         idgen.OutboxMessageID(),
		MessageKey: key,
		Topic:      topic,
		Payload:    string(body),
		Status:     model.OutboxStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
