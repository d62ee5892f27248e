package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stratum-hq/bastion/pkg/security"
)

// MemoryStore is an in-memory Store for tests and single-node development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*security.Record
	order   []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*security.Record)}
}

// Create persists a new record.
func (s *MemoryStore) Create(ctx context.Context, record *security.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return NewStoreError("memory", "create", fmt.Errorf("record %s already exists", record.ID))
	}
	s.records[record.ID] = cloneRecord(record)
	s.order = append(s.order, record.ID)
	return nil
}

// Get returns the record with the given id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*security.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok || r.IsDeleted {
		return nil, ErrNotFound
	}
	return cloneRecord(r), nil
}

// List returns records matching the query in creation order.
func (s *MemoryStore) List(ctx context.Context, query *ListQuery) ([]*security.Record, error) {
	if query == nil {
		query = &ListQuery{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []*security.Record{}
	for _, id := range s.order {
		r := s.records[id]
		if r.IsDeleted {
			continue
		}
		if query.CreatedBy != "" && r.CreatedBy != query.CreatedBy {
			continue
		}
		matched = append(matched, r)
	}

	if query.Offset > 0 {
		if query.Offset >= len(matched) {
			return []*security.Record{}, nil
		}
		matched = matched[query.Offset:]
	}
	if query.Limit > 0 && len(matched) > query.Limit {
		matched = matched[:query.Limit]
	}

	out := make([]*security.Record, len(matched))
	for i, r := range matched {
		out[i] = cloneRecord(r)
	}
	return out, nil
}

// Update replaces the record's fields and cells.
func (s *MemoryStore) Update(ctx context.Context, record *security.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[record.ID]
	if !ok || existing.IsDeleted {
		return ErrNotFound
	}

	updated := cloneRecord(record)
	updated.CreatedAt = existing.CreatedAt
	updated.CreatedBy = existing.CreatedBy
	if updated.UpdatedAt.IsZero() {
		updated.UpdatedAt = time.Now().UTC()
	}
	s.records[record.ID] = updated
	return nil
}

// SoftDelete marks the record deleted without removing it.
func (s *MemoryStore) SoftDelete(ctx context.Context, id, deletedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok || r.IsDeleted {
		return ErrNotFound
	}
	r.IsDeleted = true
	r.UpdatedBy = deletedBy
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Close releases resources. A no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
