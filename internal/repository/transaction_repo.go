package repository

import (
	"context"
	"fmt"
	"sort"

	"goldpay/internal/model"
	"goldpay/internal/store"
)

type TransactionRepository struct {
	st *store.Store
}

func NewTransactionRepository(st *store.Store) *TransactionRepository {
	return &TransactionRepository{st: st}
}

func (r *TransactionRepository) Create(ctx context.Context, uow *store.UnitOfWork, trans *model.Transaction) error {
	return write(ctx, r.st, uow, func(uow *store.UnitOfWork) error {
		transactions, err := store.Get[model.Transaction](ctx, uow, store.CollectionTransactions)
		if err != nil {
			return err
		}
		for i := range transactions {
			if transactions[i].ID == trans.ID {
				return ErrDuplicateID
			}
		}
		return store.Put(ctx, uow, store.CollectionTransactions, append(transactions, *trans))
	})
}

func (r *TransactionRepository) GetByID(ctx context.Context, uow *store.UnitOfWork, id string) (*model.Transaction, error) {
	var found *model.Transaction
	err := read(ctx, r.st, uow, func(uow *store.UnitOfWork) error {
		transactions, err := store.Get[model.Transaction](ctx, uow, store.CollectionTransactions)
		if err != nil {
			return err
		}
		for i := range transactions {
			if transactions[i].ID == id {
				found = &transactions[i]
				return nil
			}
		}
		return ErrTransactionNotFound
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// ListByOwner returns the owner's transactions, newest first, and the total
// count before pagination.
func (r *TransactionRepository) ListByOwner(ctx context.Context, uow *store.UnitOfWork, ownerID string, page, pageSize int) ([]*model.Transaction, int64, error) {
	var result []*model.Transaction
	err := read(ctx, r.st, uow, func(uow *store.UnitOfWork) error {
		transactions, err := store.Get[model.Transaction](ctx, uow, store.CollectionTransactions)
		if err != nil {
			return err
		}
		for i := range transactions {
			if transactions[i].OwnerID == ownerID {
				result = append(result, &transactions[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OccurredAt.After(result[j].OccurredAt)
	})
	return paginate(result, page, pageSize), int64(len(result)), nil
}

// ListByReconciliationStatus returns the owner's transactions in status.
// An empty ownerID matches every owner.
func (r *TransactionRepository) ListByReconciliationStatus(ctx context.Context, uow *store.UnitOfWork, ownerID, status string) ([]model.Transaction, error) {
	var result []model.Transaction
	err := read(ctx, r.st, uow, func(uow *store.UnitOfWork) error {
		transactions, err := store.Get[model.Transaction](ctx, uow, store.CollectionTransactions)
		if err != nil {
			return err
		}
		for _, t := range transactions {
			if t.ReconciliationStatus == status && (ownerID == "" || t.OwnerID == ownerID) {
				result = append(result, t)
			}
		}
		return nil
	})
	return result, err
}

// UpdateReconciliationStatus moves each listed transaction from one of the
// from statuses to its target status. Transactions in any other status are
// left alone and returned in skipped.
func (r *TransactionRepository) UpdateReconciliationStatus(ctx context.Context, uow *store.UnitOfWork, targets map[string]string, from ...string) (skipped []string, err error) {
	err = write(ctx, r.st, uow, func(uow *store.UnitOfWork) error {
		skipped = nil
		transactions, err := store.Get[model.Transaction](ctx, uow, store.CollectionTransactions)
		if err != nil {
			return err
		}

		seen := make(map[string]bool, len(targets))
		for i := range transactions {
			status, ok := targets[transactions[i].ID]
			if !ok {
				continue
			}
			seen[transactions[i].ID] = true
			if !statusIn(transactions[i].ReconciliationStatus, from) {
				skipped = append(skipped, transactions[i].ID)
				continue
			}
			transactions[i].ReconciliationStatus = status
		}
		for id := range targets {
			if !seen[id] {
				return fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
			}
		}
		return store.Put(ctx, uow, store.CollectionTransactions, transactions)
	})
	return skipped, err
}

func statusIn(status string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}
