package repository

import (
	"context"
	"fmt"
	"sort"

	"goldpay/internal/model"
	"goldpay/internal/store"
)

type BankFeedRepository struct {
	st *store.Store
}

func NewBankFeedRepository(st *store.Store) *BankFeedRepository {
	return &BankFeedRepository{st: st}
}

func (r *BankFeedRepository) Create(ctx context.Context, uow *store.UnitOfWork, feed *model.BankFeed) error {
	return write(ctx, r.st, uow, func(uow *store.UnitOfWork) error {
		feeds, err := store.Get[model.BankFeed](ctx, uow, store.CollectionBankFeeds)
		if err != nil {
			return err
		}
		for i := range feeds {
			if feeds[i].ID == feed.ID {
				return ErrDuplicateID
			}
		}
		return store.Put(ctx, uow, store.CollectionBankFeeds, append(feeds, *feed))
	})
}

func (r *BankFeedRepository) GetByID(ctx context.Context, uow *store.UnitOfWork, id string) (*model.BankFeed, error) {
	var found *model.BankFeed
	err := read(ctx, r.st, uow, func(uow *store.UnitOfWork) error {
		feeds, err := store.Get[model.BankFeed](ctx, uow, store.CollectionBankFeeds)
		if err != nil {
			return err
		}
		for i := range feeds {
			if feeds[i].ID == id {
				found = &feeds[i]
				return nil
			}
		}
		return ErrBankFeedNotFound
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// GetByExternalRef returns the owner's feed carrying ref, or nil if none does.
func (r *BankFeedRepository) GetByExternalRef(ctx context.Context, uow *store.UnitOfWork, ownerID, ref string) (*model.BankFeed, error) {
	var found *model.BankFeed
	err := read(ctx, r.st, uow, func(uow *store.UnitOfWork) error {
		feeds, err := store.Get[model.BankFeed](ctx, uow, store.CollectionBankFeeds)
		if err != nil {
			return err
		}
		for i := range feeds {
			if feeds[i].OwnerID == ownerID && feeds[i].ExternalRef == ref {
				found = &feeds[i]
				return nil
			}
		}
		return nil
	})
	return found, err
}

// ListByOwner returns the owner's feeds, latest value date first.
func (r *BankFeedRepository) ListByOwner(ctx context.Context, uow *store.UnitOfWork, ownerID string, page, pageSize int) ([]*model.BankFeed, int64, error) {
	var result []*model.BankFeed
	err := read(ctx, r.st, uow, func(uow *store.UnitOfWork) error {
		feeds, err := store.Get[model.BankFeed](ctx, uow, store.CollectionBankFeeds)
		if err != nil {
			return err
		}
		for i := range feeds {
			if feeds[i].OwnerID == ownerID {
				result = append(result, &feeds[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ValueDate.After(result[j].ValueDate)
	})
	return paginate(result, page, pageSize), int64(len(result)), nil
}

// ListByReconciliationStatus returns the owner's feeds in status. An empty
// ownerID matches every owner.
func (r *BankFeedRepository) ListByReconciliationStatus(ctx context.Context, uow *store.UnitOfWork, ownerID, status string) ([]model.BankFeed, error) {
	var result []model.BankFeed
	err := read(ctx, r.st, uow, func(uow *store.UnitOfWork) error {
		feeds, err := store.Get[model.BankFeed](ctx, uow, store.CollectionBankFeeds)
		if err != nil {
			return err
		}
		for _, f := range feeds {
			if f.ReconciliationStatus == status && (ownerID == "" || f.OwnerID == ownerID) {
				result = append(result, f)
			}
		}
		return nil
	})
	return result, err
}

// UpdateReconciliationStatus works like TransactionRepository.UpdateReconciliationStatus.
func (r *BankFeedRepository) UpdateReconciliationStatus(ctx context.Context, uow *store.UnitOfWork, targets map[string]string, from ...string) (skipped []string, err error) {
	err = write(ctx, r.st, uow, func(uow *store.UnitOfWork) error {
		skipped = nil
		feeds, err := store.Get[model.BankFeed](ctx, uow, store.CollectionBankFeeds)
		if err != nil {
			return err
		}

		seen := make(map[string]bool, len(targets))
		for i := range feeds {
			status, ok := targets[feeds[i].ID]
			if !ok {
				continue
			}
			seen[feeds[i].ID] = true
			if !statusIn(feeds[i].ReconciliationStatus, from) {
				skipped = append(skipped, feeds[i].ID)
				continue
			}
			feeds[i].ReconciliationStatus = status
		}
		for id := range targets {
			if !seen[id] {
				return fmt.Errorf("%w: %s", ErrBankFeedNotFound, id)
			}
		}
		return store.Put(ctx, uow, store.CollectionBankFeeds, feeds)
	})
	return skipped, err
}
