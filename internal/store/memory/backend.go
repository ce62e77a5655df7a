package memory

import (
	"context"
	"sync"

	"goldpay/internal/store"
)

// Backend is an in-memory implementation of store.Backend.
// It is safe for concurrent use. Data is lost on restart.
type Backend struct {
	mu          sync.RWMutex
	collections map[string]store.Snapshot
}

// NewBackend creates an empty in-memory backend.
func NewBackend() *Backend {
	return &Backend{
		collections: make(map[string]store.Snapshot),
	}
}

// LoadCollection returns a copy of the collection so callers can't modify stored state.
func (b *Backend) LoadCollection(ctx context.Context, name string) (store.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return store.Snapshot{}, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	snap, ok := b.collections[name]
	if !ok {
		return store.Snapshot{Name: name}, nil
	}
	return copySnapshot(snap), nil
}

// SaveCollections checks every version before writing anything.
func (b *Backend) SaveCollections(ctx context.Context, snapshots ...store.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, snap := range snapshots {
		if b.collections[snap.Name].Version != snap.Version {
			return store.ErrVersionConflict
		}
	}

	for _, snap := range snapshots {
		stored := copySnapshot(snap)
		stored.Version = snap.Version + 1
		b.collections[snap.Name] = stored
	}
	return nil
}

func copySnapshot(snap store.Snapshot) store.Snapshot {
	docs := make([]store.Document, len(snap.Docs))
	for i, doc := range snap.Docs {
		docs[i] = append(store.Document(nil), doc...)
	}
	return store.Snapshot{Name: snap.Name, Version: snap.Version, Docs: docs}
}

var _ store.Backend = (*Backend)(nil)
