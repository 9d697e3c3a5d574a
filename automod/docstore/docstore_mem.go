package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemStore is a simple in-memory implementation of the Store interface
type MemStore struct {
	lk   sync.RWMutex
	docs map[string]*Record
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		docs: make(map[string]*Record),
	}
}

// Put creates or replaces a record. Used by upstream producers and tests.
func (s *MemStore) Put(ctx context.Context, path string, data map[string]any) error {
	_, id, ok := SplitPath(path)
	if !ok {
		return fmt.Errorf("invalid record path: %q", path)
	}
	s.lk.Lock()
	defer s.lk.Unlock()
	s.docs[path] = &Record{
		Path: path,
		ID:   id,
		Data: copyData(data),
	}
	return nil
}

func (s *MemStore) Get(ctx context.Context, path string) (*Record, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()
	rec, ok := s.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return &Record{Path: rec.Path, ID: rec.ID, Data: copyData(rec.Data)}, nil
}

func (s *MemStore) List(ctx context.Context, collection, startAfter string, limit int) ([]*Record, error) {
	afterID := ""
	if startAfter != "" {
		_, id, ok := SplitPath(startAfter)
		if !ok {
			return nil, fmt.Errorf("invalid cursor path: %q", startAfter)
		}
		afterID = id
	}

	s.lk.RLock()
	defer s.lk.RUnlock()

	var out []*Record
	for _, rec := range s.docs {
		coll, _, _ := SplitPath(rec.Path)
		if coll != collection {
			continue
		}
		if afterID != "" && rec.ID <= afterID {
			continue
		}
		out = append(out, &Record{Path: rec.Path, ID: rec.ID, Data: copyData(rec.Data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) Merge(ctx context.Context, path string, fields map[string]any) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	rec, ok := s.docs[path]
	if !ok {
		return ErrNotFound
	}
	for k, v := range fields {
		rec.Data[k] = v
	}
	return nil
}

func (s *MemStore) Delete(ctx context.Context, path string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	delete(s.docs, path)
	return nil
}

// Len returns the number of stored records
func (s *MemStore) Len() int {
	s.lk.RLock()
	defer s.lk.RUnlock()
	return len(s.docs)
}
