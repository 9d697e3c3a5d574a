package docstore

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormDocument is the database row for a single record. Fields are serialized as a JSON object.
type GormDocument struct {
	gorm.Model
	Path       string `gorm:"uniqueIndex"`
	Collection string `gorm:"index:idx_document_collection_docid,priority:1"`
	DocID      string `gorm:"index:idx_document_collection_docid,priority:2"`
	Data       string
}

// GormStore is a gorm-backed implementation of the Store interface
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&GormDocument{}); err != nil {
		return nil, fmt.Errorf("migrating document table: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Put creates or replaces a record.
func (s *GormStore) Put(ctx context.Context, path string, data map[string]any) error {
	coll, id, ok := SplitPath(path)
	if !ok {
		return fmt.Errorf("invalid record path: %q", path)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding record fields: %w", err)
	}
	doc := &GormDocument{
		Path:       path,
		Collection: coll,
		DocID:      id,
		Data:       string(raw),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(doc).Error
}

func (s *GormStore) loadDoc(db *gorm.DB, path string) (*GormDocument, error) {
	var doc GormDocument
	if err := db.Where("path = ?", path).Limit(1).Find(&doc).Error; err != nil {
		return nil, err
	}
	if doc.ID == 0 {
		return nil, ErrNotFound
	}
	return &doc, nil
}

func (doc *GormDocument) record() (*Record, error) {
	data := make(map[string]any)
	if doc.Data != "" {
		if err := json.Unmarshal([]byte(doc.Data), &data); err != nil {
			return nil, fmt.Errorf("decoding record fields (%s): %w", doc.Path, err)
		}
	}
	return &Record{
		Path: doc.Path,
		ID:   doc.DocID,
		Data: data,
	}, nil
}

func (s *GormStore) Get(ctx context.Context, path string) (*Record, error) {
	doc, err := s.loadDoc(s.db.WithContext(ctx), path)
	if err != nil {
		return nil, err
	}
	return doc.record()
}

func (s *GormStore) List(ctx context.Context, collection, startAfter string, limit int) ([]*Record, error) {
	q := s.db.WithContext(ctx).Where("collection = ?", collection)
	if startAfter != "" {
		_, id, ok := SplitPath(startAfter)
		if !ok {
			return nil, fmt.Errorf("invalid cursor path: %q", startAfter)
		}
		q = q.Where("doc_id > ?", id)
	}
	q = q.Order("doc_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var docs []GormDocument
	if err := q.Find(&docs).Error; err != nil {
		return nil, err
	}

	out := make([]*Record, 0, len(docs))
	for i := range docs {
		rec, err := docs[i].record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *GormStore) Merge(ctx context.Context, path string, fields map[string]any) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := s.loadDoc(tx, path)
		if err != nil {
			return err
		}
		rec, err := doc.record()
		if err != nil {
			return err
		}
		for k, v := range fields {
			rec.Data[k] = v
		}
		raw, err := json.Marshal(rec.Data)
		if err != nil {
			return fmt.Errorf("encoding record fields: %w", err)
		}
		return tx.Model(doc).Update("data", string(raw)).Error
	})
}

func (s *GormStore) Delete(ctx context.Context, path string) error {
	return s.db.WithContext(ctx).Unscoped().Where("path = ?", path).Delete(&GormDocument{}).Error
}
