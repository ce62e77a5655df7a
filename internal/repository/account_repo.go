package repository

import (
	"context"
	"sort"
	"time"

	"goldpay/internal/model"
	"goldpay/internal/store"

	"github.com/shopspring/decimal"
)

type AccountRepository struct {
	st *store.Store
}

func NewAccountRepository(st *store.Store) *AccountRepository {
	return &AccountRepository{st: st}
}

func (r *AccountRepository) Create(ctx context.Context, uow *store.UnitOfWork, account *model.Account) error {
	return write(ctx, r.st, uow, func(uow *store.UnitOfWork) error {
		accounts, err := store.Get[model.Account](ctx, uow, store.CollectionAccounts)
		if err != nil {
			return err
		}
		for i := range accounts {
			if accounts[i].ID == account.ID {
				return ErrDuplicateID
			}
		}
		return store.Put(ctx, uow, store.CollectionAccounts, append(accounts, *account))
	})
}

func (r *AccountRepository) GetByID(ctx context.Context, uow *store.UnitOfWork, id string) (*model.Account, error) {
	var found *model.Account
	err := read(ctx, r.st, uow, func(uow *store.UnitOfWork) error {
		accounts, err := store.Get[model.Account](ctx, uow, store.CollectionAccounts)
		if err != nil {
			return err
		}
		for i := range accounts {
			if accounts[i].ID == id {
				found = &accounts[i]
				return nil
			}
		}
		return ErrAccountNotFound
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// ListByOwner returns the owner's accounts, oldest first.
func (r *AccountRepository) ListByOwner(ctx context.Context, uow *store.UnitOfWork, ownerID string) ([]*model.Account, error) {
	var result []*model.Account
	err := read(ctx, r.st, uow, func(uow *store.UnitOfWork) error {
		accounts, err := store.Get[model.Account](ctx, uow, store.CollectionAccounts)
		if err != nil {
			return err
		}
		for i := range accounts {
			if accounts[i].OwnerID == ownerID {
				result = append(result, &accounts[i])
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
	return result, nil
}

// Deduct subtracts amount from the balance if the account is still at version
// and holds enough funds. It returns the updated account.
func (r *AccountRepository) Deduct(ctx context.Context, uow *store.UnitOfWork, id string, amount decimal.Decimal, version int) (*model.Account, error) {
	var updated *model.Account
	err := write(ctx, r.st, uow, func(uow *store.UnitOfWork) error {
		accounts, err := store.Get[model.Account](ctx, uow, store.CollectionAccounts)
		if err != nil {
			return err
		}

		idx := -1
		for i := range accounts {
			if accounts[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrAccountNotFound
		}

		account := &accounts[idx]
		if account.Balance.Amount.LessThan(amount) {
			return ErrBalanceNotEnough
		}
		if account.Version != version {
			return ErrOptimisticLock
		}

		account.Balance.Amount = account.Balance.Amount.Sub(amount)
		account.Version++
		account.LastSyncedAt = time.Now().UTC()

		if err := store.Put(ctx, uow, store.CollectionAccounts, accounts); err != nil {
			return err
		}
		copied := *account
		updated = &copied
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
