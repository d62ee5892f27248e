// Package store persists classified records and their cells.
//
// The store is deliberately dumb: it never evaluates access. Every read and
// write that needs an access decision goes through pkg/security at the
// server layer first; the store's only security-adjacent behavior is soft
// deletion, which keeps the row for the audit trail.
package store

import (
	"context"
	"errors"
	"fmt"

	"stratum-hq/bastion/pkg/security"
)

// ErrNotFound is returned when a record does not exist or is soft-deleted.
var ErrNotFound = errors.New("record not found")

// StoreError wraps a backend failure with the backend name and operation.
type StoreError struct {
	Backend   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %s failed: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// NewStoreError creates a new StoreError.
func NewStoreError(backend, operation string, cause error) *StoreError {
	return &StoreError{Backend: backend, Operation: operation, Cause: cause}
}

// ListQuery filters and paginates record listings. Soft-deleted records are
// never listed.
type ListQuery struct {
	// CreatedBy filters by the creating principal's id.
	CreatedBy string

	// Limit caps the number of records returned. Zero means no cap.
	Limit int

	// Offset skips that many records, for pagination.
	Offset int
}

// Store is the records persistence interface.
//
// Implementations return deep copies: a caller mutating a returned record
// must never affect stored state.
type Store interface {
	// Create persists a new record with its cells. The record id must not
	// already exist.
	Create(ctx context.Context, record *security.Record) error

	// Get returns the record with the given id, or ErrNotFound if it does
	// not exist or is soft-deleted.
	Get(ctx context.Context, id string) (*security.Record, error)

	// List returns records matching the query in creation order.
	List(ctx context.Context, query *ListQuery) ([]*security.Record, error)

	// Update replaces the record's fields and cells. ErrNotFound if the
	// record does not exist or is soft-deleted.
	Update(ctx context.Context, record *security.Record) error

	// SoftDelete marks the record deleted without removing the row.
	SoftDelete(ctx context.Context, id, deletedBy string) error

	// Close releases resources held by the backend.
	Close() error
}

// cloneRecord deep-copies a record including cells and the NTK grant.
func cloneRecord(r *security.Record) *security.Record {
	out := *r
	out.Cells = make([]security.Cell, len(r.Cells))
	for i, c := range r.Cells {
		out.Cells[i] = c
		out.Cells[i].Compartments = append([]string(nil), c.Compartments...)
	}
	if r.NTK != nil {
		ntk := *r.NTK
		ntk.Users = append([]string(nil), r.NTK.Users...)
		ntk.Compartments = append([]string(nil), r.NTK.Compartments...)
		out.NTK = &ntk
	}
	return &out
}
