package recorder

import (
	"context"
	"errors"
	"testing"

	"stratum-hq/bastion/pkg/audit"
	"stratum-hq/bastion/pkg/audit/storage"
	"stratum-hq/bastion/pkg/classification"
	"stratum-hq/bastion/pkg/security"
)

// failingStorage fails Store for events whose FieldName is "poison".
type failingStorage struct {
	*storage.MemoryStorage
}

func (s *failingStorage) Store(ctx context.Context, event *audit.Event) error {
	if event.FieldName == "poison" {
		return audit.NewStorageError("memory", "store", errors.New("simulated failure"))
	}
	return s.MemoryStorage.Store(ctx, event)
}

func testPrincipal() *security.Principal {
	return &security.Principal{
		ID:           "u-1",
		Username:     "alpha-senior",
		Organization: "agency-alpha",
		Clearance:    classification.Secret,
		Compartments: []string{"PROJECT_ALPHA"},
	}
}

func TestRecorder_Record(t *testing.T) {
	store := storage.NewMemoryStorage()
	r := NewRecorder(store, nil)

	event := RecordAccessEvent(testPrincipal(), "r-1", "Asset report",
		security.Decision{Allowed: true}, RequestInfo{IPAddress: "10.0.0.1"})

	if err := r.Record(context.Background(), event); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if event.ID == "" || event.Timestamp.IsZero() {
		t.Error("Record did not fill in id/timestamp")
	}

	stored, err := store.Query(context.Background(), &audit.Query{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("got %d events, want 1", len(stored))
	}
	if stored[0].Action != audit.ActionReadRecord || !stored[0].WasAllowed {
		t.Errorf("stored event = %+v", stored[0])
	}
	if stored[0].Username != "alpha-senior" || stored[0].UserClearance != classification.Secret {
		t.Errorf("principal snapshot = %+v", stored[0])
	}
}

// TestRecorder_StorageFailureSurfaces verifies the synchronous contract: a
// failed write returns an error the caller can act on.
func TestRecorder_StorageFailureSurfaces(t *testing.T) {
	store := &failingStorage{storage.NewMemoryStorage()}
	r := NewRecorder(store, nil)

	event := RecordAccessEvent(testPrincipal(), "r-1", "t", security.Decision{Allowed: true}, RequestInfo{})
	event.FieldName = "poison"

	err := r.Record(context.Background(), event)
	if err == nil {
		t.Fatal("storage failure did not surface")
	}
	var recErr *audit.RecorderError
	if !errors.As(err, &recErr) {
		t.Errorf("error type = %T, want *audit.RecorderError", err)
	}
}

// TestRecorder_RecordBatch verifies non-atomic batch semantics: good events
// persist and failed indices are reported.
func TestRecorder_RecordBatch(t *testing.T) {
	store := &failingStorage{storage.NewMemoryStorage()}
	r := NewRecorder(store, nil)

	p := testPrincipal()
	decisions := []security.CellDecision{
		{FieldName: "title", Decision: security.Decision{Allowed: true}},
		{FieldName: "poison", Decision: security.Decision{Allowed: true}},
		{FieldName: "status", Decision: security.Decision{Allowed: false, Reason: security.ReasonNeedToKnowRequired, MissingCompartments: []string{"PROJECT_OMEGA"}}},
	}
	events := CellAccessEvents(p, "r-1", "Asset report", decisions, RequestInfo{})
	if len(events) != len(decisions) {
		t.Fatalf("got %d events for %d decisions", len(events), len(decisions))
	}

	err := r.RecordBatch(context.Background(), events)
	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("error = %v, want *BatchError", err)
	}
	if len(batchErr.Failed) != 1 || batchErr.Failed[0] != 1 {
		t.Errorf("failed indices = %v, want [1]", batchErr.Failed)
	}

	count, _ := store.Count(context.Background(), &audit.Query{})
	if count != 2 {
		t.Errorf("stored count = %d, want 2", count)
	}
}

func TestCellAccessEvents(t *testing.T) {
	p := testPrincipal()
	decisions := []security.CellDecision{
		{
			FieldName:              "title",
			RequiredClassification: classification.Unclassified,
			Decision:               security.Decision{Allowed: true},
		},
		{
			FieldName:              "asset_status",
			RequiredClassification: classification.Secret,
			RequiredCompartments:   []string{"PROJECT_OMEGA"},
			Decision: security.Decision{
				Allowed:             false,
				Reason:              security.ReasonNeedToKnowRequired,
				MissingCompartments: []string{"PROJECT_OMEGA"},
			},
		},
	}

	events := CellAccessEvents(p, "r-1", "Asset report", decisions, RequestInfo{RequestPath: "/api/records/r-1"})

	if events[0].Action != audit.ActionReadCell || !events[0].WasAllowed {
		t.Errorf("allowed event = %+v", events[0])
	}
	if events[1].Action != audit.ActionCellAccessDenied || events[1].WasAllowed {
		t.Errorf("denied event = %+v", events[1])
	}
	if events[1].DenialReason != string(security.ReasonNeedToKnowRequired) {
		t.Errorf("denial reason = %q", events[1].DenialReason)
	}
	if events[1].Details["missing_compartments"] != "PROJECT_OMEGA" {
		t.Errorf("details = %v", events[1].Details)
	}
	for i, e := range events {
		if e.ResourceType != audit.ResourceCell || e.ResourceID != "r-1" {
			t.Errorf("event %d resource = %s/%s", i, e.ResourceType, e.ResourceID)
		}
	}
}

func TestMutationEvents(t *testing.T) {
	p := testPrincipal()

	e := MutationEvent(p, audit.ActionUpdate, "r-1", "Asset report", "old", "new", RequestInfo{})
	if e.Action != audit.ActionUpdate || !e.WasAllowed || e.OldValue != "old" || e.NewValue != "new" {
		t.Errorf("mutation event = %+v", e)
	}

	d := security.Decision{Allowed: false, Reason: security.ReasonInsufficientClearance}
	e = MutationDeniedEvent(p, audit.ActionUpdateDenied, "r-1", "Asset report", d, RequestInfo{})
	if e.WasAllowed || e.DenialReason != string(security.ReasonInsufficientClearance) {
		t.Errorf("denied mutation event = %+v", e)
	}
}

// TestBaseEvent_AnonymousFallbacks verifies empty principal attributes fall
// back to stable placeholders rather than empty columns.
func TestBaseEvent_AnonymousFallbacks(t *testing.T) {
	e := RecordAccessEvent(&security.Principal{}, "r-1", "t", security.Decision{Allowed: false, Reason: security.ReasonInsufficientClearance}, RequestInfo{})
	if e.Username != "anonymous" || e.Organization != "unknown" {
		t.Errorf("fallbacks = %q/%q", e.Username, e.Organization)
	}
	if e.UserClearance != classification.Unclassified {
		t.Errorf("clearance = %q", e.UserClearance)
	}
}
