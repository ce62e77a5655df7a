package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"goldpay/internal/store"

	"github.com/go-redis/redis/v8"
)

const (
	fieldVersion = "version"
	fieldPayload = "payload"
)

// Backend keeps each collection in a hash {version, payload}. Saves WATCH
// every key involved and write inside MULTI, so a concurrent save makes the
// whole transaction fail.
type Backend struct {
	client *redis.Client
	prefix string
}

// NewBackend returns a backend storing keys as <prefix><collection>.
func NewBackend(client *redis.Client, prefix string) *Backend {
	return &Backend{client: client, prefix: prefix}
}

func (b *Backend) key(name string) string {
	return b.prefix + name
}

func (b *Backend) LoadCollection(ctx context.Context, name string) (store.Snapshot, error) {
	values, err := b.client.HGetAll(ctx, b.key(name)).Result()
	if err != nil {
		return store.Snapshot{}, err
	}
	return decode(name, values)
}

func (b *Backend) SaveCollections(ctx context.Context, snapshots ...store.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	keys := make([]string, 0, len(snapshots))
	payloads := make([]string, 0, len(snapshots))
	for _, snap := range snapshots {
		docs := snap.Docs
		if docs == nil {
			docs = []store.Document{}
		}
		payload, err := json.Marshal(docs)
		if err != nil {
			return fmt.Errorf("encode collection %s: %w", snap.Name, err)
		}
		keys = append(keys, b.key(snap.Name))
		payloads = append(payloads, string(payload))
	}

	err := b.client.Watch(ctx, func(tx *redis.Tx) error {
		for i, snap := range snapshots {
			current, err := tx.HGet(ctx, keys[i], fieldVersion).Int64()
			if errors.Is(err, redis.Nil) {
				current = 0
			} else if err != nil {
				return err
			}
			if current != snap.Version {
				return store.ErrVersionConflict
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, snap := range snapshots {
				pipe.HSet(ctx, keys[i], fieldVersion, snap.Version+1, fieldPayload, payloads[i])
			}
			return nil
		})
		return err
	}, keys...)

	if errors.Is(err, redis.TxFailedErr) {
		return store.ErrVersionConflict
	}
	return err
}

func decode(name string, values map[string]string) (store.Snapshot, error) {
	if len(values) == 0 {
		return store.Snapshot{Name: name}, nil
	}

	version, err := strconv.ParseInt(values[fieldVersion], 10, 64)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("decode version of %s: %w", name, err)
	}

	var docs []store.Document
	if payload := values[fieldPayload]; payload != "" {
		if err := json.Unmarshal([]byte(payload), &docs); err != nil {
			return store.Snapshot{}, fmt.Errorf("decode collection %s: %w", name, err)
		}
	}
	return store.Snapshot{Name: name, Version: version, Docs: docs}, nil
}

var _ store.Backend = (*Backend)(nil)
