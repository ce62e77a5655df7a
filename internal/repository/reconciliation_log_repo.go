package repository

import (
	"context"
	"fmt"
	"sort"

	"goldpay/internal/model"
	"goldpay/internal/store"
)

type ReconciliationLogRepository struct {
	st *store.Store
}

func NewReconciliationLogRepository(st *store.Store) *ReconciliationLogRepository {
	return &ReconciliationLogRepository{st: st}
}

// Append adds logs. It fails with ErrAlreadyMatched, writing nothing, if any
// transaction or bank feed would then appear in two logs.
func (r *ReconciliationLogRepository) Append(ctx context.Context, uow *store.UnitOfWork, logs ...model.ReconciliationLog) error {
	if len(logs) == 0 {
		return nil
	}
	return write(ctx, r.st, uow, func(uow *store.UnitOfWork) error {
		existing, err := store.Get[model.ReconciliationLog](ctx, uow, store.CollectionReconciliationLogs)
		if err != nil {
			return err
		}

		txSeen := make(map[string]bool, len(existing)+len(logs))
		feedSeen := make(map[string]bool, len(existing)+len(logs))
		for _, l := range existing {
			txSeen[l.TransactionID] = true
			feedSeen[l.BankFeedID] = true
		}
		for _, l := range logs {
			if txSeen[l.TransactionID] {
				return fmt.Errorf("%w: transaction %s", ErrAlreadyMatched, l.TransactionID)
			}
			if feedSeen[l.BankFeedID] {
				return fmt.Errorf("%w: bank feed %s", ErrAlreadyMatched, l.BankFeedID)
			}
			txSeen[l.TransactionID] = true
			feedSeen[l.BankFeedID] = true
		}

		return store.Put(ctx, uow, store.CollectionReconciliationLogs, append(existing, logs...))
	})
}

// ListByOwner returns the owner's logs, newest first.
func (r *ReconciliationLogRepository) ListByOwner(ctx context.Context, uow *store.UnitOfWork, ownerID string, page, pageSize int) ([]*model.ReconciliationLog, int64, error) {
	var result []*model.ReconciliationLog
	err := read(ctx, r.st, uow, func(uow *store.UnitOfWork) error {
		logs, err := store.Get[model.ReconciliationLog](ctx, uow, store.CollectionReconciliationLogs)
		if err != nil {
			return err
		}
		for i := range logs {
			if logs[i].OwnerID == ownerID {
				result = append(result, &logs[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, page, pageSize), int64(len(result)), nil
}

// GetByTransactionID returns the log for a transaction, or nil if it has none.
func (r *ReconciliationLogRepository) GetByTransactionID(ctx context.Context, uow *store.UnitOfWork, transactionID string) (*model.ReconciliationLog, error) {
	var found *model.ReconciliationLog
	err := read(ctx, r.st, uow, func(uow *store.UnitOfWork) error {
		logs, err := store.Get[model.ReconciliationLog](ctx, uow, store.CollectionReconciliationLogs)
		if err != nil {
			return err
		}
		for i := range logs {
			if logs[i].TransactionID == transactionID {
				found = &logs[i]
				return nil
			}
		}
		return nil
	})
	return found, err
}
