package storage

import (
	"context"
	"sort"
	"sync"

	"stratum-hq/bastion/pkg/audit"
)

// MemoryStorage implements audit.Storage in memory. Intended for tests and
// development; events are lost on process exit.
type MemoryStorage struct {
	mu     sync.RWMutex
	events []*audit.Event
}

// NewMemoryStorage creates an empty in-memory audit store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Store persists an audit event.
func (s *MemoryStorage) Store(ctx context.Context, event *audit.Event) error {
	if err := ctx.Err(); err != nil {
		return audit.NewStorageError("memory", "store", err)
	}

	clone := *event
	clone.CompartmentsRequired = append([]string(nil), event.CompartmentsRequired...)
	if event.Details != nil {
		clone.Details = make(map[string]any, len(event.Details))
		for k, v := range event.Details {
			clone.Details[k] = v
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, &clone)
	return nil
}

// Query retrieves events matching the query filters.
func (s *MemoryStorage) Query(ctx context.Context, query *audit.Query) ([]*audit.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, audit.NewStorageError("memory", "query", err)
	}

	s.mu.RLock()
	matched := s.filter(query)
	s.mu.RUnlock()

	sortEvents(matched, query.SortBy, query.SortOrder)

	// Pagination
	offset := query.Offset
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]

	limit := 100
	if query.Limit > 0 {
		limit = query.Limit
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*audit.Event, len(matched))
	for i, e := range matched {
		clone := *e
		out[i] = &clone
	}
	return out, nil
}

// Count returns the number of events matching the query filters.
func (s *MemoryStorage) Count(ctx context.Context, query *audit.Query) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, audit.NewStorageError("memory", "count", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.filter(query))), nil
}

// Delete removes events matching the query filters.
func (s *MemoryStorage) Delete(ctx context.Context, query *audit.Query) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, audit.NewStorageError("memory", "delete", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*audit.Event
	var deleted int64
	for _, e := range s.events {
		if matches(e, query) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return deleted, nil
}

// Close is a no-op for the memory backend.
func (s *MemoryStorage) Close() error {
	return nil
}

// filter returns pointers to the stored events matching the query. Caller
// holds at least a read lock.
func (s *MemoryStorage) filter(query *audit.Query) []*audit.Event {
	var out []*audit.Event
	for _, e := range s.events {
		if matches(e, query) {
			out = append(out, e)
		}
	}
	return out
}

func matches(e *audit.Event, q *audit.Query) bool {
	if q.StartTime != nil && e.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && e.Timestamp.After(*q.EndTime) {
		return false
	}
	if q.Username != "" && e.Username != q.Username {
		return false
	}
	if q.Organization != "" && e.Organization != q.Organization {
		return false
	}
	if q.Action != "" && e.Action != q.Action {
		return false
	}
	if q.ResourceType != "" && e.ResourceType != q.ResourceType {
		return false
	}
	if q.ResourceID != "" && e.ResourceID != q.ResourceID {
		return false
	}
	if q.FieldName != "" && e.FieldName != q.FieldName {
		return false
	}
	if q.WasAllowed != nil && e.WasAllowed != *q.WasAllowed {
		return false
	}
	return true
}

func sortEvents(events []*audit.Event, sortBy, order string) {
	asc := order == "asc"
	sort.SliceStable(events, func(i, j int) bool {
		var less bool
		switch sortBy {
		case "username":
			less = events[i].Username < events[j].Username
		case "action":
			less = events[i].Action < events[j].Action
		default:
			less = events[i].Timestamp.Before(events[j].Timestamp)
		}
		if asc {
			return less
		}
		return !less
	})
}
