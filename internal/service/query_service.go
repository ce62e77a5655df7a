package service

import (
	"context"
	"strings"

	"goldpay/internal/model"
	"goldpay/internal/repository"
	"goldpay/internal/store"
)

// QueryService serves the read model. Nothing here writes.
type QueryService struct {
	transactionRepo *repository.TransactionRepository
	feedRepo        *repository.BankFeedRepository
	logRepo         *repository.ReconciliationLogRepository
}

func NewQueryService(st *store.Store) *QueryService {
	return &QueryService{
		transactionRepo: repository.NewTransactionRepository(st),
		feedRepo:        repository.NewBankFeedRepository(st),
		logRepo:         repository.NewReconciliationLogRepository(st),
	}
}

// Page is a slice of results plus the total before pagination.
type Page[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

func (s *QueryService) ListTransactions(ctx context.Context, ownerID string, page, pageSize int) (*Page[*model.Transaction], error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, invalid("owner_id", ErrInvalidOwner)
	}
	items, total, err := s.transactionRepo.ListByOwner(ctx, nil, ownerID, page, pageSize)
	if err != nil {
		return nil, err
	}
	return newPage(items, total, page, pageSize), nil
}

func (s *QueryService) ListBankFeeds(ctx context.Context, ownerID string, page, pageSize int) (*Page[*model.BankFeed], error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, invalid("owner_id", ErrInvalidOwner)
	}
	items, total, err := s.feedRepo.ListByOwner(ctx, nil, ownerID, page, pageSize)
	if err != nil {
		return nil, err
	}
	return newPage(items, total, page, pageSize), nil
}

func (s *QueryService) ListReconciliationLogs(ctx context.Context, ownerID string, page, pageSize int) (*Page[*model.ReconciliationLog], error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, invalid("owner_id", ErrInvalidOwner)
	}
	items, total, err := s.logRepo.ListByOwner(ctx, nil, ownerID, page, pageSize)
	if err != nil {
		return nil, err
	}
	return newPage(items, total, page, pageSize), nil
}

func newPage[T any](items []T, total int64, page, pageSize int) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{Items: items, Total: total, Page: page, PageSize: pageSize}
}
