package repository

import (
	"context"
	"sort"
	"time"

	"goldpay/internal/model"
	"goldpay/internal/store"
)

type OutboxRepository struct {
	st *store.Store
}

func NewOutboxRepository(st *store.Store) *OutboxRepository {
	return &OutboxRepository{st: st}
}

func (r *OutboxRepository) Create(ctx context.Context, uow *store.UnitOfWork, msg *model.OutboxMessage) error {
	return write(ctx, r.st, uow, func(uow *store.UnitOfWork) error {
		messages, err := store.Get[model.OutboxMessage](ctx, uow, store.CollectionOutbox)
		if err != nil {
			return err
		}
		return store.Put(ctx, uow, store.CollectionOutbox, append(messages, *msg))
	})
}

func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	return r.listByStatus(ctx, model.OutboxStatusPending, limit)
}

func (r *OutboxRepository) GetFailedMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	return r.listByStatus(ctx, model.OutboxStatusFailed, limit)
}

func (r *OutboxRepository) listByStatus(ctx context.Context, status string, limit int) ([]*model.OutboxMessage, error) {
	var result []*model.OutboxMessage
	err := r.st.View(ctx, func(uow *store.UnitOfWork) error {
		messages, err := store.Get[model.OutboxMessage](ctx, uow, store.CollectionOutbox)
		if err != nil {
			return err
		}
		for i := range messages {
			if messages[i].Status == status {
				result = append(result, &messages[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *OutboxRepository) UpdateStatus(ctx context.Context, id, status string) error {
	return r.modify(ctx, id, func(msg *model.OutboxMessage) {
		msg.Status = status
	})
}

func (r *OutboxRepository) IncrementRetryCount(ctx context.Context, id string) error {
	return r.modify(ctx, id, func(msg *model.OutboxMessage) {
		msg.RetryCount++
	})
}

func (r *OutboxRepository) MarkAsFailed(ctx context.Context, id string) error {
	return r.modify(ctx, id, func(msg *model.OutboxMessage) {
		msg.Status = model.OutboxStatusFailed
	})
}

func (r *OutboxRepository) modify(ctx context.Context, id string, fn func(*model.OutboxMessage)) error {
	return r.st.Update(ctx, func(uow *store.UnitOfWork) error {
		messages, err := store.Get[model.OutboxMessage](ctx, uow, store.CollectionOutbox)
		if err != nil {
			return err
		}
		for i := range messages {
			if messages[i].ID == id {
				fn(&messages[i])
				messages[i].UpdatedAt = time.Now().UTC()
				return store.Put(ctx, uow, store.CollectionOutbox, messages)
			}
		}
		return ErrMessageNotFound
	})
}
