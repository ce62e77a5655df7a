package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"goldpay/internal/model"

	"github.com/shopspring/decimal"
)

func validFeed() *IngestFeedRequest {
	return &IngestFeedRequest{
		OwnerID:     "owner-1",
		Institution: "BBVA",
		Description: "CARGO DOMICILIADO",
		Amount:      decimal.RequireFromString("-249.90"),
		Currency:    "mxn",
		ValueDate:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		ExternalRef: "stmt-0001",
	}
}

func TestIngest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	feed, err := f.feeds.Ingest(ctx, validFeed())
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if feed.ReconciliationStatus != model.FeedStatusPending || feed.Currency != "MXN" || feed.CreatedAt.IsZero() {
		t.Errorf("feed = %+v", feed)
	}
	if calls := f.trigger.calls(); len(calls) != 1 || calls[0] != "owner-1" {
		t.Errorf("trigger calls = %v", calls)
	}

	again, err := f.feeds.Ingest(ctx, validFeed())
	if !errors.Is(err, ErrDuplicateFeed) {
		t.Fatalf("second ingest error = %v, want ErrDuplicateFeed", err)
	}
	if again.ID != feed.ID {
		t.Errorf("duplicate returned %s, want %s", again.ID, feed.ID)
	}
	if feeds := f.bankFeeds(t, "owner-1"); len(feeds) != 1 {
		t.Errorf("feeds = %d, want 1", len(feeds))
	}
	if calls := f.trigger.calls(); len(calls) != 1 {
		t.Errorf("duplicate triggered a pass: %v", calls)
	}
}

func TestIngest_SameRefOtherOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.feeds.Ingest(ctx, validFeed()); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	req := validFeed()
	req.OwnerID = "owner-2"
	if _, err := f.feeds.Ingest(ctx, req); err != nil {
		t.Errorf("Ingest for other owner failed: %v", err)
	}
}

func TestIngest_WithoutRefIsNeverDeduplicated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		req := validFeed()
		req.ExternalRef = ""
		if _, err := f.feeds.Ingest(ctx, req); err != nil {
			t.Fatalf("Ingest %d failed: %v", i, err)
		}
	}
	if feeds := f.bankFeeds(t, "owner-1"); len(feeds) != 2 {
		t.Errorf("feeds = %d, want 2", len(feeds))
	}
}

func TestIngest_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		mutate  func(r *IngestFeedRequest)
		wantErr error
	}{
		{"missing owner", func(r *IngestFeedRequest) { r.OwnerID = "" }, ErrInvalidOwner},
		{"zero amount", func(r *IngestFeedRequest) { r.Amount = decimal.Zero }, ErrInvalidAmount},
		{"three decimals", func(r *IngestFeedRequest) { r.Amount = decimal.RequireFromString("1.001") }, ErrInvalidAmount},
		{"missing currency", func(r *IngestFeedRequest) { r.Currency = " " }, ErrInvalidCurrency},
		{"missing value date", func(r *IngestFeedRequest) { r.ValueDate = time.Time{} }, ErrInvalidValueDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validFeed()
			tt.mutate(req)
			_, err := f.feeds.Ingest(context.Background(), req)
			if !errors.Is(err, tt.wantErr) || !IsValidation(err) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestQueryService_Pagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		req := validFeed()
		req.ExternalRef = ""
		req.ValueDate = req.ValueDate.Add(time.Duration(i) * time.Hour)
		if _, err := f.feeds.Ingest(ctx, req); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
	}

	page, err := f.queries.ListBankFeeds(ctx, "owner-1", 2, 2)
	if err != nil {
		t.Fatalf("ListBankFeeds failed: %v", err)
	}
	if page.Total != 5 || len(page.Items) != 2 || page.Page != 2 {
		t.Fatalf("page = %+v", page)
	}
	if !page.Items[0].ValueDate.After(page.Items[1].ValueDate) {
		t.Error("feeds are not newest first")
	}

	empty, err := f.queries.ListTransactions(ctx, "owner-1", 1, 10)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if empty.Items == nil || len(empty.Items) != 0 {
		t.Errorf("empty page items = %#v, want empty slice", empty.Items)
	}

	_, err = f.queries.ListReconciliationLogs(ctx, "", 1, 10)
	if !errors.Is(err, ErrInvalidOwner) {
		t.Errorf("error = %v, want ErrInvalidOwner", err)
	}
}
