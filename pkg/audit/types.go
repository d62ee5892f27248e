// Package audit defines the audit event model and storage contract.
//
// Every access decision the engine makes — allowed or denied, record-level or
// cell-level — produces exactly one audit event. Recording is synchronous and
// durable: a decision whose event cannot be persisted is treated as a failed
// operation by the caller, never silently dropped.
package audit

import (
	"context"
	"io"
	"time"

	"stratum-hq/bastion/pkg/classification"
)

// Audit actions. Read actions split by outcome: the allowed and denied forms
// of the same operation are distinct actions so denial reports can filter on
// action alone.
const (
	ActionReadRecord       = "READ_RECORD"
	ActionAccessDenied     = "ACCESS_DENIED"
	ActionReadCell         = "READ_CELL"
	ActionCellAccessDenied = "CELL_ACCESS_DENIED"
	ActionCreate           = "CREATE"
	ActionUpdate           = "UPDATE"
	ActionUpdateDenied     = "UPDATE_DENIED"
	ActionCellUpdateDenied = "CELL_UPDATE_DENIED"
	ActionDelete           = "DELETE"
)

// Resource types.
const (
	ResourceRecord = "record"
	ResourceCell   = "cell"
)

// Event is one immutable audit trail entry.
//
// Principal attributes are copied by value at decision time: later changes to
// a user's clearance or compartments must not rewrite history.
type Event struct {
	// Identity
	ID        string    `json:"id"` // UUID v4
	Timestamp time.Time `json:"timestamp"`

	// Principal snapshot
	Username      string               `json:"username"`
	Organization  string               `json:"organization"`
	UserClearance classification.Level `json:"user_clearance"`

	// What was attempted
	Action       string `json:"action"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id,omitempty"`
	RecordTitle  string `json:"record_title,omitempty"`
	FieldName    string `json:"field_name,omitempty"`

	// What the resource demanded
	ClassificationRequired classification.Level `json:"classification_required,omitempty"`
	CompartmentsRequired   []string             `json:"compartments_required,omitempty"`

	// Outcome
	WasAllowed   bool   `json:"was_allowed"`
	DenialReason string `json:"denial_reason,omitempty"`

	// Mutation detail
	OldValue string `json:"old_value,omitempty"`
	NewValue string `json:"new_value,omitempty"`

	// Request provenance
	IPAddress     string `json:"ip_address,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
	RequestPath   string `json:"request_path,omitempty"`
	RequestMethod string `json:"request_method,omitempty"`
	SessionID     string `json:"session_id,omitempty"`

	// Details holds free-form context (missing compartments, cell counts).
	Details map[string]any `json:"details,omitempty"`
}

// Query defines filter parameters for querying audit events.
type Query struct {
	// Time range (inclusive)
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// Filters
	Username     string `json:"username,omitempty"`
	Organization string `json:"organization,omitempty"`
	Action       string `json:"action,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
	FieldName    string `json:"field_name,omitempty"`

	// WasAllowed filters by outcome when non-nil.
	WasAllowed *bool `json:"was_allowed,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// Sorting: "timestamp" (default), "username", "action"; "asc"/"desc".
	SortBy    string `json:"sort_by,omitempty"`
	SortOrder string `json:"sort_order,omitempty"`
}

// Storage defines the interface for audit storage backends.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Store persists one audit event. Returns an error if the event cannot
	// be written durably.
	Store(ctx context.Context, event *Event) error

	// Query retrieves events matching the query filters, newest first by
	// default. Returns an empty slice when nothing matches.
	Query(ctx context.Context, query *Query) ([]*Event, error)

	// Count returns the number of events matching the query filters.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes events matching the query filters and returns how
	// many were removed. Used for retention enforcement only.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Close releases resources held by the backend.
	Close() error
}

// Exporter writes audit events to an output stream in a concrete format.
type Exporter interface {
	Export(ctx context.Context, events []*Event, w io.Writer) error
}
