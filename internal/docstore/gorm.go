package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// documentRow is the single-table persistence shape of the GORM backend:
// one row per document, the payload stored as JSON text so the same schema
// works on Postgres and on SQLite in tests. Filtering happens client-side,
// which matches how the services use the store (full or indexed scans).
type documentRow struct {
	Collection string `gorm:"primaryKey;size:64"`
	ID         string `gorm:"primaryKey;size:128"`
	Data       string `gorm:"type:text;not null"`
	UpdatedAt  time.Time
}

func (documentRow) TableName() string { return "documents" }

// GormStore persists documents in a relational database through GORM.
// Apply runs inside a transaction with a row lock on Postgres, giving the
// per-document atomicity the Store contract requires.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open GORM connection. The connection should be
// opened with TranslateError enabled so duplicate-key violations surface
// as gorm.ErrDuplicatedKey.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates the documents table if missing.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&documentRow{})
}

func decodeRow(row documentRow) (Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(row.Data), &doc); err != nil {
		return nil, fmt.Errorf("docstore: corrupt document %s/%s: %w", row.Collection, row.ID, err)
	}
	return doc, nil
}

func encodeDoc(doc Document) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("docstore: encode document: %w", err)
	}
	return string(raw), nil
}

// Get implements Store.
func (s *GormStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var row documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRow(row)
}

// List implements Store.
func (s *GormStore) List(ctx context.Context, collection string) ([]Document, error) {
	var rows []documentRow
	if err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc, err := decodeRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// Query implements Store. The filter runs client-side over the collection.
func (s *GormStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	docs, err := s.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := docs[:0]
	for _, doc := range docs {
		if matches(doc, filters) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Set implements Store.
func (s *GormStore) Set(ctx context.Context, collection, id string, doc Document) error {
	data, err := encodeDoc(doc)
	if err != nil {
		return err
	}
	row := documentRow{Collection: collection, ID: id, Data: data, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(&row).Error
}

// Create implements Store.
func (s *GormStore) Create(ctx context.Context, collection, id string, doc Document) error {
	data, err := encodeDoc(doc)
	if err != nil {
		return err
	}
	row := documentRow{Collection: collection, ID: id, Data: data, UpdatedAt: time.Now().UTC()}
	err = s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrExists
	}
	return err
}

// Apply implements Store.
func (s *GormStore) Apply(ctx context.Context, collection, id string, update Update) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("collection = ? AND id = ?", collection, id)
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var row documentRow
		err := query.First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		doc, err := decodeRow(row)
		if err != nil {
			return err
		}
		applyUpdate(doc, update)

		data, err := encodeDoc(doc)
		if err != nil {
			return err
		}
		return tx.Model(&documentRow{}).
			Where("collection = ? AND id = ?", collection, id).
			Updates(map[string]interface{}{
				"data":       data,
				"updated_at": time.Now().UTC(),
			}).Error
	})
}

// Delete implements Store.
func (s *GormStore) Delete(ctx context.Context, collection, id string) error {
	return s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&documentRow{}).Error
}

var _ Store = (*GormStore)(nil)
