// Package recorder provides the synchronous audit recorder.
//
// Recording is deliberately synchronous: an access decision is not complete
// until its audit event is durably stored, and a storage failure must surface
// to the caller so the operation can be failed rather than served unaudited.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"stratum-hq/bastion/pkg/audit"
	"stratum-hq/bastion/pkg/security"
	"stratum-hq/bastion/pkg/telemetry/metrics"
)

// Config contains configuration for the audit recorder.
type Config struct {
	// WriteTimeout bounds each storage write.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// Metrics, when non-nil, receives write outcome and latency.
	Metrics *metrics.Collector
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder writes audit events to storage, one durable write per event.
type Recorder struct {
	storage audit.Storage
	config  *Config
	logger  *slog.Logger
}

// NewRecorder creates a recorder backed by the given storage.
func NewRecorder(storage audit.Storage, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	return &Recorder{
		storage: storage,
		config:  config,
		logger:  slog.Default().With("component", "audit.recorder"),
	}
}

// Record persists one audit event. Missing ID and Timestamp are filled in.
// The returned error wraps the storage failure; callers must treat it as a
// failure of the audited operation.
func (r *Recorder) Record(ctx context.Context, event *audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	writeCtx := ctx
	if r.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, r.config.WriteTimeout)
		defer cancel()
	}

	start := time.Now()
	err := r.storage.Store(writeCtx, event)
	if r.config.Metrics != nil {
		r.config.Metrics.RecordAuditWrite(err, time.Since(start))
	}
	if err != nil {
		r.logger.Error("audit write failed",
			"event_id", event.ID,
			"action", event.Action,
			"error", err)
		return audit.NewRecorderError(event.ID, err)
	}

	r.logger.Debug("audit event recorded",
		"event_id", event.ID,
		"action", event.Action,
		"username", event.Username,
		"was_allowed", event.WasAllowed)
	return nil
}

// BatchError reports a partially failed batch. Failed holds the indices of
// the events that could not be stored, in input order.
type BatchError struct {
	Failed []int
	Causes []error
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	return fmt.Sprintf("audit batch: %d event(s) failed at indices %v: %v", len(e.Failed), e.Failed, e.Causes[0])
}

// Unwrap returns the first underlying cause.
func (e *BatchError) Unwrap() error {
	return e.Causes[0]
}

// RecordBatch persists a batch of events. The batch is not atomic: every
// event is attempted, and a *BatchError naming the failed indices is returned
// when any write fails.
func (r *Recorder) RecordBatch(ctx context.Context, events []*audit.Event) error {
	var failed []int
	var causes []error
	for i, event := range events {
		if err := r.Record(ctx, event); err != nil {
			failed = append(failed, i)
			causes = append(causes, err)
		}
	}
	if len(failed) > 0 {
		return &BatchError{Failed: failed, Causes: causes}
	}
	return nil
}

// RequestInfo carries request provenance copied onto every event.
type RequestInfo struct {
	IPAddress     string
	UserAgent     string
	RequestPath   string
	RequestMethod string
	SessionID     string
}

// baseEvent snapshots the principal and request provenance.
func baseEvent(p *security.Principal, req RequestInfo) *audit.Event {
	username := "anonymous"
	organization := "unknown"
	if p.Username != "" {
		username = p.Username
	}
	if p.Organization != "" {
		organization = p.Organization
	}
	return &audit.Event{
		Username:      username,
		Organization:  organization,
		UserClearance: p.EffectiveClearance(),
		IPAddress:     req.IPAddress,
		UserAgent:     req.UserAgent,
		RequestPath:   req.RequestPath,
		RequestMethod: req.RequestMethod,
		SessionID:     req.SessionID,
	}
}

// RecordAccessEvent builds the event for a record-level read attempt.
func RecordAccessEvent(p *security.Principal, recordID, recordTitle string, d security.Decision, req RequestInfo) *audit.Event {
	event := baseEvent(p, req)
	event.ResourceType = audit.ResourceRecord
	event.ResourceID = recordID
	event.RecordTitle = recordTitle
	event.WasAllowed = d.Allowed
	if d.Allowed {
		event.Action = audit.ActionReadRecord
	} else {
		event.Action = audit.ActionAccessDenied
		event.DenialReason = string(d.Reason)
	}
	return event
}

// CellAccessEvents builds one event per cell decision, in decision order.
// The 1:1 correspondence with the input is an invariant callers may rely on.
func CellAccessEvents(p *security.Principal, recordID, recordTitle string, decisions []security.CellDecision, req RequestInfo) []*audit.Event {
	events := make([]*audit.Event, 0, len(decisions))
	for _, cd := range decisions {
		event := baseEvent(p, req)
		event.ResourceType = audit.ResourceCell
		event.ResourceID = recordID
		event.RecordTitle = recordTitle
		event.FieldName = cd.FieldName
		event.ClassificationRequired = cd.RequiredClassification
		event.CompartmentsRequired = append([]string(nil), cd.RequiredCompartments...)
		event.WasAllowed = cd.Decision.Allowed
		if cd.Decision.Allowed {
			event.Action = audit.ActionReadCell
		} else {
			event.Action = audit.ActionCellAccessDenied
			event.DenialReason = string(cd.Decision.Reason)
			if len(cd.Decision.MissingCompartments) > 0 {
				event.Details = map[string]any{
					"missing_compartments": strings.Join(cd.Decision.MissingCompartments, ","),
				}
			}
		}
		events = append(events, event)
	}
	return events
}

// MutationEvent builds the event for a create, update or delete of a record,
// with optional before/after values.
func MutationEvent(p *security.Principal, action, recordID, recordTitle, oldValue, newValue string, req RequestInfo) *audit.Event {
	event := baseEvent(p, req)
	event.Action = action
	event.ResourceType = audit.ResourceRecord
	event.ResourceID = recordID
	event.RecordTitle = recordTitle
	event.WasAllowed = true
	event.OldValue = oldValue
	event.NewValue = newValue
	return event
}

// MutationDeniedEvent builds the event for a denied mutation attempt.
func MutationDeniedEvent(p *security.Principal, action, recordID, recordTitle string, d security.Decision, req RequestInfo) *audit.Event {
	event := baseEvent(p, req)
	event.Action = action
	event.ResourceType = audit.ResourceRecord
	event.ResourceID = recordID
	event.RecordTitle = recordTitle
	event.WasAllowed = false
	event.DenialReason = string(d.Reason)
	return event
}
