package redisstore

import (
	"context"
	"errors"
	"testing"

	"goldpay/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestBackend(t *testing.T) (*Backend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewBackend(client, "goldpay:test:"), mr
}

func TestBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	b, mr := newTestBackend(t)

	err := b.SaveCollections(ctx, store.Snapshot{
		Name: store.CollectionTransactions,
		Docs: []store.Document{store.Document(`{"id":"TXN1"}`)},
	})
	if err != nil {
		t.Fatalf("SaveCollections: %v", err)
	}

	if v := mr.HGet("goldpay:test:transactions", fieldVersion); v != "1" {
		t.Errorf("stored version = %q, want 1", v)
	}

	snap, err := b.LoadCollection(ctx, store.CollectionTransactions)
	if err != nil {
		t.Fatalf("LoadCollection: %v", err)
	}
	if snap.Version != 1 || len(snap.Docs) != 1 || string(snap.Docs[0]) != `{"id":"TXN1"}` {
		t.Errorf("loaded %+v", snap)
	}
}

func TestBackend_MissingCollectionIsEmpty(t *testing.T) {
	b, _ := newTestBackend(t)
	snap, err := b.LoadCollection(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("LoadCollection: %v", err)
	}
	if snap.Version != 0 || snap.Docs != nil {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestBackend_VersionConflictWritesNothing(t *testing.T) {
	ctx := context.Background()
	b, mr := newTestBackend(t)
	if err := b.SaveCollections(ctx, store.Snapshot{Name: "b"}); err != nil {
		t.Fatalf("create b: %v", err)
	}

	err := b.SaveCollections(ctx,
		store.Snapshot{Name: "a", Docs: []store.Document{store.Document(`{}`)}},
		store.Snapshot{Name: "b", Version: 0},
	)
	if !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("error = %v, want ErrVersionConflict", err)
	}
	if mr.Exists("goldpay:test:a") {
		t.Error("collection a written despite conflict")
	}
}

func TestBackend_CorruptPayload(t *testing.T) {
	b, mr := newTestBackend(t)
	mr.HSet("goldpay:test:a", fieldVersion, "3", fieldPayload, "{not json")

	if _, err := b.LoadCollection(context.Background(), "a"); err == nil {
		t.Fatal("expected decode error")
	}
}
