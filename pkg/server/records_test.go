package server

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"stratum-hq/bastion/pkg/audit"
	"stratum-hq/bastion/pkg/classification"
	"stratum-hq/bastion/pkg/security"
)

// seedRecord files a CONFIDENTIAL record with an open title cell and a
// SECRET compartmented cell.
func seedRecord(t *testing.T, env *testEnv, id string) {
	t.Helper()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	err := env.store.Create(context.Background(), &security.Record{
		ID:             id,
		Title:          "Asset Summary",
		Classification: classification.Confidential,
		Cells: []security.Cell{
			{
				ID: id + "-c1", RecordID: id, FieldName: "title",
				FieldValue:     "Asset Summary",
				Classification: classification.Unclassified,
				CreatedAt:      now, UpdatedAt: now,
			},
			{
				ID: id + "-c2", RecordID: id, FieldName: "asset_status",
				FieldValue:     "ACTIVE",
				Classification: classification.Secret,
				Compartments:   []string{"PROJECT_OMEGA"},
				CreatedAt:      now, UpdatedAt: now,
			},
		},
		CreatedBy: "u-100",
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func auditEvents(t *testing.T, env *testEnv, query *audit.Query) []*audit.Event {
	t.Helper()
	events, err := env.audit.Query(context.Background(), query)
	if err != nil {
		t.Fatalf("audit query: %v", err)
	}
	return events
}

func TestGetRecord_RedactsDeniedCells(t *testing.T) {
	env := newTestEnv(t)
	seedRecord(t, env, "r-1")

	rec := env.request(t, "GET", "/api/records/r-1", analystClaims(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	view := decodeBody[recordView](t, rec)
	if len(view.Cells) != 2 {
		t.Fatalf("cell count = %d", len(view.Cells))
	}
	if view.Cells[0].FieldValue != "Asset Summary" || !view.Cells[0].Accessible {
		t.Errorf("open cell = %+v", view.Cells[0])
	}
	// PROJECT_OMEGA not held: value and compartments replaced by the sentinel.
	if view.Cells[1].FieldValue != security.Redacted {
		t.Errorf("denied cell value = %q", view.Cells[1].FieldValue)
	}
	if len(view.Cells[1].Compartments) != 1 || view.Cells[1].Compartments[0] != security.Redacted {
		t.Errorf("denied cell compartments = %v", view.Cells[1].Compartments)
	}
	if strings.Contains(rec.Body.String(), "PROJECT_OMEGA") {
		t.Error("required compartment name leaked into the response")
	}
	if view.AccessStats.AccessibleCells != 1 || view.AccessStats.RedactedCells != 1 {
		t.Errorf("stats = %+v", view.AccessStats)
	}

	// One record event plus one event per cell, all for this read.
	events := auditEvents(t, env, &audit.Query{ResourceID: "r-1"})
	if len(events) != 3 {
		t.Fatalf("audit event count = %d, want 3", len(events))
	}
	denied := auditEvents(t, env, &audit.Query{Action: audit.ActionCellAccessDenied})
	if len(denied) != 1 || denied[0].FieldName != "asset_status" {
		t.Errorf("denied events = %+v", denied)
	}
	if denied[0].Details["missing_compartments"] != "PROJECT_OMEGA" {
		t.Errorf("missing compartments detail = %v", denied[0].Details)
	}
}

func TestGetRecord_RecordDenialShortCircuits(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	if err := env.store.Create(context.Background(), &security.Record{
		ID:             "r-ts",
		Title:          "Eyes Only",
		Classification: classification.TopSecret,
		Cells: []security.Cell{
			{ID: "c1", RecordID: "r-ts", FieldName: "title", FieldValue: "Eyes Only",
				Classification: classification.Unclassified, CreatedAt: now, UpdatedAt: now},
		},
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := env.request(t, "GET", "/api/records/r-ts", analystClaims(t), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}

	body := decodeBody[errorResponse](t, rec)
	if body.Reason != string(security.ReasonInsufficientClearance) {
		t.Errorf("reason = %q", body.Reason)
	}

	// Only the record-level denial is audited; cells were never evaluated.
	events := auditEvents(t, env, &audit.Query{ResourceID: "r-ts"})
	if len(events) != 1 || events[0].Action != audit.ActionAccessDenied {
		t.Errorf("events = %+v", events)
	}
}

func TestGetRecord_AuditFailureFailsRequest(t *testing.T) {
	env := newTestEnv(t)
	seedRecord(t, env, "r-1")
	env.audit.FailNextStore()

	rec := env.request(t, "GET", "/api/records/r-1", analystClaims(t), nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 on audit failure", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "Asset Summary") {
		t.Error("record data served despite failed audit write")
	}
}

func TestGetRecord_NotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, "GET", "/api/records/ghost", analystClaims(t), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestListRecords_FiltersByClearance(t *testing.T) {
	env := newTestEnv(t)
	seedRecord(t, env, "r-1")
	now := time.Now().UTC()
	if err := env.store.Create(context.Background(), &security.Record{
		ID: "r-ts", Title: "Eyes Only", Classification: classification.TopSecret,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := env.request(t, "GET", "/api/records", analystClaims(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["total"] != float64(1) {
		t.Errorf("total = %v", body["total"])
	}
	if strings.Contains(rec.Body.String(), "Eyes Only") {
		t.Error("TOP_SECRET record title leaked into listing")
	}
}

func TestCreateRecord(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, "POST", "/api/records", analystClaims(t), recordInput{
		Title:          "Field Report",
		Classification: classification.Confidential,
		Cells: []cellInput{
			{FieldName: "summary", FieldValue: "routine", Classification: classification.Confidential},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	created := decodeBody[map[string]string](t, rec)
	stored, err := env.store.Get(context.Background(), created["id"])
	if err != nil {
		t.Fatalf("stored record missing: %v", err)
	}
	if stored.CreatedBy != "u-100" || len(stored.Cells) != 1 {
		t.Errorf("stored = %+v", stored)
	}

	events := auditEvents(t, env, &audit.Query{Action: audit.ActionCreate})
	if len(events) != 1 {
		t.Errorf("create events = %d", len(events))
	}
}

// TestCreateRecord_CappedAtCreatorClearance verifies nobody files data above
// their own clearance, at either the record or cell level.
func TestCreateRecord_CappedAtCreatorClearance(t *testing.T) {
	env := newTestEnv(t)

	for _, input := range []recordInput{
		{Title: "Over-classified", Classification: classification.TopSecret},
		{
			Title:          "Cell over cap",
			Classification: classification.Confidential,
			Cells: []cellInput{
				{FieldName: "x", Classification: classification.TopSecret},
			},
		},
	} {
		rec := env.request(t, "POST", "/api/records", analystClaims(t), input)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s: status = %d, want 403", input.Title, rec.Code)
		}
	}
}

func TestCreateRecord_RequiresAnalystRole(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, "POST", "/api/records", auditorClaims(t), recordInput{
		Title:          "Nope",
		Classification: classification.Unclassified,
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d", rec.Code)
	}
}

// TestUpdateRecord_DeniedCellsSkipped verifies updates authorize against the
// EXISTING cell values, keep denied cells untouched, and audit each skip.
func TestUpdateRecord_DeniedCellsSkipped(t *testing.T) {
	env := newTestEnv(t)
	seedRecord(t, env, "r-1")

	rec := env.request(t, "PUT", "/api/records/r-1", analystClaims(t), recordInput{
		Title:          "Asset Summary (rev 2)",
		Classification: classification.Confidential,
		Cells: []cellInput{
			{FieldName: "title", FieldValue: "Asset Summary (rev 2)", Classification: classification.Unclassified},
			// Existing cell requires PROJECT_OMEGA, which the caller lacks.
			{FieldName: "asset_status", FieldValue: "BURNED", Classification: classification.Unclassified},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody[map[string]any](t, rec)
	if body["skipped_cells"] != float64(1) {
		t.Errorf("skipped_cells = %v", body["skipped_cells"])
	}

	stored, err := env.store.Get(context.Background(), "r-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for _, c := range stored.Cells {
		switch c.FieldName {
		case "title":
			if c.FieldValue != "Asset Summary (rev 2)" {
				t.Errorf("title cell not updated: %q", c.FieldValue)
			}
		case "asset_status":
			// The denied write must not relax the stored value or its protection.
			if c.FieldValue != "ACTIVE" || c.Classification != classification.Secret {
				t.Errorf("denied cell modified: %+v", c)
			}
		}
	}

	denied := auditEvents(t, env, &audit.Query{Action: audit.ActionCellUpdateDenied})
	if len(denied) != 1 || denied[0].FieldName != "asset_status" {
		t.Errorf("denied events = %+v", denied)
	}
}

// TestUpdateRecord_NTKGrant verifies the need-to-know grant is updatable,
// but only by a manager: sharing scope is not an analyst edit.
func TestUpdateRecord_NTKGrant(t *testing.T) {
	env := newTestEnv(t)
	seedRecord(t, env, "r-1")

	input := recordInput{
		Title:          "Asset Summary",
		Classification: classification.Confidential,
		NTK: &ntkInput{
			Required: true,
			Users:    []string{"u-100"},
		},
	}

	rec := env.request(t, "PUT", "/api/records/r-1", analystClaims(t), input)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("analyst NTK change status = %d, want 403", rec.Code)
	}
	stored, err := env.store.Get(context.Background(), "r-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.NTK != nil {
		t.Fatalf("denied NTK change was applied: %+v", stored.NTK)
	}

	leadClaims := claimsHeader(t, map[string]any{
		"sub":                "u-500",
		"preferred_username": "lead",
		"organization":       "agency-alpha",
		"clearance_level":    "SECRET",
		"realm_access":       map[string]any{"roles": []any{"analyst", "manager"}},
	})
	rec = env.request(t, "PUT", "/api/records/r-1", leadClaims, input)
	if rec.Code != http.StatusOK {
		t.Fatalf("manager NTK change status = %d: %s", rec.Code, rec.Body.String())
	}

	stored, err = env.store.Get(context.Background(), "r-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.NTK == nil || !stored.NTK.Required || len(stored.NTK.Users) != 1 || stored.NTK.Users[0] != "u-100" {
		t.Errorf("stored grant = %+v", stored.NTK)
	}

	// An update that omits NTK leaves the grant in place.
	rec = env.request(t, "PUT", "/api/records/r-1", analystClaims(t), recordInput{
		Title:          "Asset Summary (rev 3)",
		Classification: classification.Confidential,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("follow-up update status = %d: %s", rec.Code, rec.Body.String())
	}
	stored, err = env.store.Get(context.Background(), "r-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.NTK == nil || !stored.NTK.Required {
		t.Errorf("grant lost on NTK-less update: %+v", stored.NTK)
	}
}

func TestDeleteRecord(t *testing.T) {
	env := newTestEnv(t)
	seedRecord(t, env, "r-1")

	managerClaims := claimsHeader(t, map[string]any{
		"sub":                "u-500",
		"preferred_username": "lead",
		"organization":       "agency-alpha",
		"clearance_level":    "SECRET",
		"realm_access":       map[string]any{"roles": []any{"manager"}},
	})

	// Analyst may not delete.
	rec := env.request(t, "DELETE", "/api/records/r-1", analystClaims(t), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("analyst delete status = %d", rec.Code)
	}

	rec = env.request(t, "DELETE", "/api/records/r-1", managerClaims, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("manager delete status = %d: %s", rec.Code, rec.Body.String())
	}

	// Soft delete: gone from the API, present in the audit trail.
	rec = env.request(t, "GET", "/api/records/r-1", managerClaims, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status after delete = %d", rec.Code)
	}
	events := auditEvents(t, env, &audit.Query{Action: audit.ActionDelete})
	if len(events) != 1 {
		t.Errorf("delete events = %d", len(events))
	}
}
