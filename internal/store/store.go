package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Collection names.
const (
	CollectionAccounts           = "accounts"
	CollectionTransactions       = "transactions"
	CollectionBankFeeds          = "bank_feeds"
	CollectionReconciliationLogs = "reconciliation_logs"
	CollectionOutbox             = "outbox_messages"
)

var (
	// ErrVersionConflict is returned by a backend when a collection changed
	// between load and save.
	ErrVersionConflict = errors.New("store: collection modified concurrently")
	// ErrPersistence wraps every other backend failure.
	ErrPersistence = errors.New("store: persistence failure")
	// ErrReadOnly is returned when writing through a View unit of work.
	ErrReadOnly = errors.New("store: read-only unit of work")
)

// Document is one JSON encoded record.
type Document = json.RawMessage

// Snapshot is a whole collection at a given version. Version 0 means the
// collection has never been saved.
type Snapshot struct {
	Name    string
	Version int64
	Docs    []Document
}

// Backend is the persistence contract: whole collections are read and written,
// never single rows.
//
// SaveCollections must be atomic: either every snapshot is written (each with
// Version+1) or none is. A snapshot whose Version no longer matches the stored
// version fails the whole call with ErrVersionConflict.
type Backend interface {
	LoadCollection(ctx context.Context, name string) (Snapshot, error)
	SaveCollections(ctx context.Context, snapshots ...Snapshot) error
}

// SaveCollection writes a single collection.
func SaveCollection(ctx context.Context, b Backend, snapshot Snapshot) error {
	return b.SaveCollections(ctx, snapshot)
}

const (
	defaultMaxRetries = 10
	backoffBase       = 2 * time.Millisecond
	backoffMax        = 100 * time.Millisecond
)

// Store runs read-modify-write units of work against a Backend.
//
// Units of work started through the same Store are serialized: an Update
// holds the write side of mu from first load to commit, a View holds the read
// side. Version conflicts can then only come from other processes sharing the
// backend, and those are retried with jittered backoff.
type Store struct {
	backend    Backend
	maxRetries int
	mu         sync.RWMutex
}

// Option configures a Store or a single Update call.
type Option func(*updateOptions)

type updateOptions struct {
	maxRetries int
}

// WithMaxRetries bounds how often a unit of work is re-run after a version conflict.
func WithMaxRetries(n int) Option {
	return func(o *updateOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// New wraps backend.
func New(backend Backend, opts ...Option) *Store {
	o := updateOptions{maxRetries: defaultMaxRetries}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store{backend: backend, maxRetries: o.maxRetries}
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Update runs fn in a fresh unit of work and commits every collection fn
// wrote in one SaveCollections call. On ErrVersionConflict fn is re-run on
// fresh data. Errors returned by fn abort the unit of work without writing.
// fn must not start another unit of work on s.
func (s *Store) Update(ctx context.Context, fn func(uow *UnitOfWork) error, opts ...Option) error {
	o := updateOptions{maxRetries: s.maxRetries}
	for _, opt := range opts {
		opt(&o)
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		retry, err := s.runOnce(ctx, fn)
		if err == nil || !retry || attempt >= o.maxRetries {
			return err
		}
		if err := sleep(ctx, backoff(attempt)); err != nil {
			return err
		}
	}
}

// runOnce reports whether a failure was a version conflict worth retrying.
func (s *Store) runOnce(ctx context.Context, fn func(uow *UnitOfWork) error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uow := newUnitOfWork(s.backend, false)
	if err := fn(uow); err != nil {
		return false, err
	}
	err := uow.commit(ctx)
	return errors.Is(err, ErrVersionConflict), err
}

// backoff grows exponentially from backoffBase up to backoffMax; the wait is
// drawn uniformly from the upper half of that bound.
func backoff(attempt int) time.Duration {
	d := backoffMax
	if attempt < 6 {
		d = backoffBase << attempt
		if d > backoffMax {
			d = backoffMax
		}
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// View runs fn in a read-only unit of work. fn sees every collection as of
// the same commit. fn must not start another unit of work on s.
func (s *Store) View(ctx context.Context, fn func(uow *UnitOfWork) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(newUnitOfWork(s.backend, true))
}

// UnitOfWork caches the collections it loads and tracks which ones were
// replaced. Collections are loaded lazily, at most once per unit of work.
type UnitOfWork struct {
	backend  Backend
	readOnly bool
	loaded   map[string]Snapshot
	dirty    []string
}

func newUnitOfWork(backend Backend, readOnly bool) *UnitOfWork {
	return &UnitOfWork{
		backend:  backend,
		readOnly: readOnly,
		loaded:   make(map[string]Snapshot),
	}
}

func (u *UnitOfWork) load(ctx context.Context, name string) (Snapshot, error) {
	if snap, ok := u.loaded[name]; ok {
		return snap, nil
	}
	snap, err := u.backend.LoadCollection(ctx, name)
	if err != nil {
		return Snapshot{}, wrapBackendErr("load "+name, err)
	}
	snap.Name = name
	u.loaded[name] = snap
	return snap, nil
}

func (u *UnitOfWork) markDirty(name string) {
	for _, n := range u.dirty {
		if n == name {
			return
		}
	}
	u.dirty = append(u.dirty, name)
}

func (u *UnitOfWork) commit(ctx context.Context) error {
	if len(u.dirty) == 0 {
		return nil
	}
	snaps := make([]Snapshot, 0, len(u.dirty))
	for _, name := range u.dirty {
		snaps = append(snaps, u.loaded[name])
	}
	if err := u.backend.SaveCollections(ctx, snaps...); err != nil {
		return wrapBackendErr("save", err)
	}
	return nil
}

// Get decodes every record of a collection.
func Get[T any](ctx context.Context, u *UnitOfWork, name string) ([]T, error) {
	snap, err := u.load(ctx, name)
	if err != nil {
		return nil, err
	}

	records := make([]T, 0, len(snap.Docs))
	for i, doc := range snap.Docs {
		var record T
		if err := json.Unmarshal(doc, &record); err != nil {
			return nil, fmt.Errorf("%w: decode %s[%d]: %w", ErrPersistence, name, i, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// Put replaces a collection with records. The write happens at commit.
func Put[T any](ctx context.Context, u *UnitOfWork, name string, records []T) error {
	if u.readOnly {
		return ErrReadOnly
	}

	snap, err := u.load(ctx, name)
	if err != nil {
		return err
	}

	docs := make([]Document, 0, len(records))
	for i := range records {
		doc, err := json.Marshal(records[i])
		if err != nil {
			return fmt.Errorf("%w: encode %s[%d]: %w", ErrPersistence, name, i, err)
		}
		docs = append(docs, doc)
	}
	snap.Docs = docs
	u.loaded[name] = snap
	u.markDirty(name)
	return nil
}

func wrapBackendErr(op string, err error) error {
	if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrPersistence) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
