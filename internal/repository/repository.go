package repository

import (
	"context"
	"errors"

	"goldpay/internal/store"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrBalanceNotEnough    = errors.New("balance not enough")
	ErrOptimisticLock      = errors.New("account version changed, retry")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrBankFeedNotFound    = errors.New("bank feed not found")
	ErrMessageNotFound     = errors.New("outbox message not found")
	ErrDuplicateID         = errors.New("duplicate record id")
	ErrAlreadyMatched      = errors.New("record already has a reconciliation log")
)

// Every repository method takes an optional unit of work, the way a gorm
// repository takes an optional *gorm.DB transaction: nil means the call runs
// in its own unit of work, a non-nil uow joins the caller's commit.

func read(ctx context.Context, st *store.Store, uow *store.UnitOfWork, fn func(*store.UnitOfWork) error) error {
	if uow != nil {
		return fn(uow)
	}
	return st.View(ctx, fn)
}

func write(ctx context.Context, st *store.Store, uow *store.UnitOfWork, fn func(*store.UnitOfWork) error) error {
	if uow != nil {
		return fn(uow)
	}
	return st.Update(ctx, fn)
}

// paginate returns page (1 based) of items. pageSize <= 0 returns everything.
func paginate[T any](items []T, page, pageSize int) []T {
	if pageSize <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
