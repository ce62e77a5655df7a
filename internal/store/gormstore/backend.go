package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"goldpay/internal/store"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// collectionRow holds one whole collection as a JSON array.
type collectionRow struct {
	Name      string    `gorm:"type:varchar(64);primaryKey"`
	Version   int64     `gorm:"not null;default:0"`
	Payload   string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (collectionRow) TableName() string {
	return "ledger_collection"
}

// Backend stores collections in a SQL table through gorm. Versions work like
// the optimistic lock column on an account row: an update only matches the
// version that was read.
type Backend struct {
	db *gorm.DB
}

// NewBackend migrates the collection table and returns a backend on db.
func NewBackend(db *gorm.DB) (*Backend, error) {
	if err := db.AutoMigrate(&collectionRow{}); err != nil {
		return nil, fmt.Errorf("migrate ledger_collection: %w", err)
	}
	return &Backend{db: db}, nil
}

func (b *Backend) LoadCollection(ctx context.Context, name string) (store.Snapshot, error) {
	var row collectionRow
	err := b.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return store.Snapshot{Name: name}, nil
		}
		return store.Snapshot{}, err
	}

	var docs []store.Document
	if err := json.Unmarshal([]byte(row.Payload), &docs); err != nil {
		return store.Snapshot{}, fmt.Errorf("decode collection %s: %w", name, err)
	}
	return store.Snapshot{Name: name, Version: row.Version, Docs: docs}, nil
}

func (b *Backend) SaveCollections(ctx context.Context, snapshots ...store.Snapshot) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, snap := range snapshots {
			if err := b.save(tx, snap); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Backend) save(tx *gorm.DB, snap store.Snapshot) error {
	docs := snap.Docs
	if docs == nil {
		docs = []store.Document{}
	}
	payload, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", snap.Name, err)
	}

	if snap.Version == 0 {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&collectionRow{Name: snap.Name, Version: 1, Payload: string(payload)})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return store.ErrVersionConflict
		}
		return nil
	}

	result := tx.Model(&collectionRow{}).
		Where("name = ? AND version = ?", snap.Name, snap.Version).
		Updates(map[string]interface{}{
			"payload": string(payload),
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrVersionConflict
	}
	return nil
}

var _ store.Backend = (*Backend)(nil)
