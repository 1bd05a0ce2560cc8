package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"webcarros/internal/observability"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Document is one row of the documents table.
type Document struct {
	Collection string    `gorm:"primaryKey;size:64"`
	ID         string    `gorm:"primaryKey;size:64"`
	Data       Record    `gorm:"serializer:json;type:text;not null"`
	CreatedAt  time.Time `gorm:"index"`
	UpdatedAt  time.Time
}

// TableName pins the table name.
func (Document) TableName() string {
	return "documents"
}

// GormStore keeps every collection in one JSON documents table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore returns a Store backed by db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, collection string, data Record) (string, error) {
	defer observability.TrackQuery("create", collection)()

	doc := &Document{Collection: collection, ID: uuid.NewString(), Data: data}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return "", fmt.Errorf("create %s document: %w", collection, err)
	}
	return doc.ID, nil
}

func (s *GormStore) Set(ctx context.Context, collection, id string, data Record) error {
	defer observability.TrackQuery("set", collection)()

	doc := &Document{Collection: collection, ID: id, Data: data}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(doc).Error
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	defer observability.TrackQuery("get", collection)()

	var doc Document
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return &Snapshot{ID: doc.ID, Data: doc.Data}, nil
}

// Query returns the documents whose top-level field equals value.
func (s *GormStore) Query(ctx context.Context, collection, field string, value any) ([]Snapshot, error) {
	if err := validField(field); err != nil {
		return nil, err
	}
	defer observability.TrackQuery("query", collection)()

	q := s.db.WithContext(ctx).Where("collection = ?", collection)
	if s.db.Name() == "postgres" {
		q = q.Where("data::jsonb ->> ? = ?", field, fmt.Sprint(value))
	} else {
		q = q.Where("json_extract(data, ?) = ?", "$."+field, value)
	}

	var docs []Document
	if err := q.Order("created_at").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("query %s by %s: %w", collection, field, err)
	}
	return snapshots(docs), nil
}

func (s *GormStore) List(ctx context.Context, collection string) ([]Snapshot, error) {
	defer observability.TrackQuery("list", collection)()

	var docs []Document
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("created_at").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return snapshots(docs), nil
}

func (s *GormStore) Delete(ctx context.Context, collection, id string) error {
	defer observability.TrackQuery("delete", collection)()

	res := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&Document{})
	if res.Error != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func snapshots(docs []Document) []Snapshot {
	out := make([]Snapshot, 0, len(docs))
	for _, d := range docs {
		out = append(out, Snapshot{ID: d.ID, Data: d.Data})
	}
	return out
}
