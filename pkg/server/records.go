package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"stratum-hq/bastion/pkg/audit"
	"stratum-hq/bastion/pkg/audit/recorder"
	"stratum-hq/bastion/pkg/classification"
	"stratum-hq/bastion/pkg/security"
)

// recordView is the caller-facing projection of a record after filtering.
type recordView struct {
	ID             string               `json:"id"`
	Title          string               `json:"title"`
	Description    string               `json:"description"`
	Classification classification.Level `json:"classification"`
	Cells          []security.CellView  `json:"cells"`
	AccessStats    security.AccessStats `json:"access_stats"`
	CreatedBy      string               `json:"created_by"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// recordSummary is the listing projection: metadata only, no cells.
type recordSummary struct {
	ID             string               `json:"id"`
	Title          string               `json:"title"`
	Classification classification.Level `json:"classification"`
	CellCount      int                  `json:"cell_count"`
	CreatedBy      string               `json:"created_by"`
	CreatedAt      time.Time            `json:"created_at"`
}

// cellInput is a cell in a create or update payload.
type cellInput struct {
	FieldName      string               `json:"field_name"`
	FieldValue     string               `json:"field_value"`
	Classification classification.Level `json:"classification"`
	Compartments   []string             `json:"compartments"`
}

// ntkInput is a need-to-know grant in a create or update payload.
type ntkInput struct {
	Required     bool     `json:"required"`
	Users        []string `json:"users"`
	Compartments []string `json:"compartments"`
}

// recordInput is the create/update payload.
type recordInput struct {
	Title          string               `json:"title"`
	Description    string               `json:"description"`
	Classification classification.Level `json:"classification"`
	Cells          []cellInput          `json:"cells"`
	NTK            *ntkInput            `json:"ntk,omitempty"`
}

// handleListRecords lists the records whose record-level classification the
// caller satisfies. Listing returns metadata only; reading cells goes through
// the audited GET path.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())

	records, err := s.store.List(r.Context(), nil)
	if err != nil {
		writeFault(w, err)
		return
	}

	visible := []recordSummary{}
	for _, record := range records {
		d := security.CheckRecordAccess(p, record.Classification)
		s.recordDecision("record", d)
		if !d.Allowed {
			continue
		}
		visible = append(visible, recordSummary{
			ID:             record.ID,
			Title:          record.Title,
			Classification: record.Classification,
			CellCount:      len(record.Cells),
			CreatedBy:      record.CreatedBy,
			CreatedAt:      record.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": visible,
		"total":   len(visible),
	})
}

// handleGetRecord reads one record with cell-level redaction.
//
// The audit write happens before any denial or data leaves the server, and a
// failed write fails the request: unaccounted access is worse than no access.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	req := requestInfo(r)

	record, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFault(w, err)
		return
	}

	recordDecision := security.CheckRecordAccess(p, record.Classification)
	s.recordDecision("record", recordDecision)
	if err := s.recorder.Record(r.Context(),
		recorder.RecordAccessEvent(p, record.ID, record.Title, recordDecision, req)); err != nil {
		writeFault(w, err)
		return
	}
	if !recordDecision.Allowed {
		// Record-level denial short-circuits: cells are never evaluated.
		writeDenial(w, recordDecision)
		return
	}

	views, decisions := security.FilterCells(p, record.Cells, record.NTK)
	for _, cd := range decisions {
		s.recordDecision("cell", cd.Decision)
	}
	if err := s.recorder.RecordBatch(r.Context(),
		recorder.CellAccessEvents(p, record.ID, record.Title, decisions, req)); err != nil {
		writeFault(w, err)
		return
	}

	writeJSON(w, http.StatusOK, recordView{
		ID:             record.ID,
		Title:          record.Title,
		Description:    record.Description,
		Classification: record.Classification,
		Cells:          views,
		AccessStats:    security.StatsFor(views),
		CreatedBy:      record.CreatedBy,
		CreatedAt:      record.CreatedAt,
		UpdatedAt:      record.UpdatedAt,
	})
}

// handleCreateRecord creates a record. The record and every cell are capped
// at the creator's own clearance: nobody files data they could not read back.
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	req := requestInfo(r)

	if !p.IsAnalyst() {
		writeError(w, http.StatusForbidden, "analyst role required")
		return
	}

	var input recordInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := validateInput(&input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if d := capCheck(p, &input); !d.Allowed {
		event := recorder.MutationDeniedEvent(p, audit.ActionUpdateDenied, "", input.Title, d, req)
		if err := s.recorder.Record(r.Context(), event); err != nil {
			writeFault(w, err)
			return
		}
		writeDenial(w, d)
		return
	}

	record := buildRecord(&input, p)
	if err := s.store.Create(r.Context(), record); err != nil {
		writeFault(w, err)
		return
	}

	event := recorder.MutationEvent(p, audit.ActionCreate, record.ID, record.Title, "", record.Title, req)
	if err := s.recorder.Record(r.Context(), event); err != nil {
		writeFault(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": record.ID})
}

// handleUpdateRecord updates a record. Authorization runs against the
// EXISTING record and cell values: what a cell currently protects decides
// who may rewrite it, not what the caller wants it to become.
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	req := requestInfo(r)

	if !p.IsAnalyst() {
		writeError(w, http.StatusForbidden, "analyst role required")
		return
	}

	existing, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFault(w, err)
		return
	}

	var input recordInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := validateInput(&input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Rewriting the need-to-know grant changes who the record is shared
	// with, so it takes more than the analyst role.
	if input.NTK != nil && !p.IsManager() {
		writeError(w, http.StatusForbidden, "manager role required to change the need-to-know grant")
		return
	}

	recordDecision := security.CheckRecordAccess(p, existing.Classification)
	s.recordDecision("record", recordDecision)
	if !recordDecision.Allowed {
		event := recorder.MutationDeniedEvent(p, audit.ActionUpdateDenied,
			existing.ID, existing.Title, recordDecision, req)
		if err := s.recorder.Record(r.Context(), event); err != nil {
			writeFault(w, err)
			return
		}
		writeDenial(w, recordDecision)
		return
	}

	updated, deniedEvents := applyCellUpdates(p, existing, &input, req)
	for _, e := range deniedEvents {
		s.recordDecision("cell", security.Decision{Allowed: false, Reason: security.Reason(e.DenialReason)})
	}
	if len(deniedEvents) > 0 {
		if err := s.recorder.RecordBatch(r.Context(), deniedEvents); err != nil {
			writeFault(w, err)
			return
		}
	}

	updated.UpdatedBy = p.ID
	updated.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(r.Context(), updated); err != nil {
		writeFault(w, err)
		return
	}

	event := recorder.MutationEvent(p, audit.ActionUpdate,
		updated.ID, updated.Title, existing.Title, updated.Title, req)
	if err := s.recorder.Record(r.Context(), event); err != nil {
		writeFault(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":            updated.ID,
		"skipped_cells": len(deniedEvents),
	})
}

// handleDeleteRecord soft-deletes a record. Manager role required.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	req := requestInfo(r)

	if !p.IsManager() {
		writeError(w, http.StatusForbidden, "manager role required")
		return
	}

	record, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFault(w, err)
		return
	}

	recordDecision := security.CheckRecordAccess(p, record.Classification)
	s.recordDecision("record", recordDecision)
	if !recordDecision.Allowed {
		event := recorder.MutationDeniedEvent(p, audit.ActionUpdateDenied,
			record.ID, record.Title, recordDecision, req)
		if err := s.recorder.Record(r.Context(), event); err != nil {
			writeFault(w, err)
			return
		}
		writeDenial(w, recordDecision)
		return
	}

	if err := s.store.SoftDelete(r.Context(), record.ID, p.ID); err != nil {
		writeFault(w, err)
		return
	}

	event := recorder.MutationEvent(p, audit.ActionDelete, record.ID, record.Title, record.Title, "", req)
	if err := s.recorder.Record(r.Context(), event); err != nil {
		writeFault(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": record.ID, "status": "deleted"})
}

// recordDecision forwards a decision to metrics when collection is on.
func (s *Server) recordDecision(layer string, d security.Decision) {
	if s.metrics != nil {
		s.metrics.RecordDecision(layer, d.Allowed, string(d.Reason))
	}
}

func validateInput(input *recordInput) error {
	if input.Title == "" {
		return fmt.Errorf("title is required")
	}
	if !classification.Valid(input.Classification) {
		return fmt.Errorf("invalid classification %q", input.Classification)
	}
	for _, c := range input.Cells {
		if c.FieldName == "" {
			return fmt.Errorf("cell field_name is required")
		}
		if !classification.Valid(c.Classification) {
			return fmt.Errorf("invalid cell classification %q", c.Classification)
		}
	}
	return nil
}

// capCheck verifies the creator can read everything they are filing: the
// record classification and every cell classification must be at or below
// the creator's clearance.
func capCheck(p *security.Principal, input *recordInput) security.Decision {
	if d := security.CheckRecordAccess(p, input.Classification); !d.Allowed {
		return d
	}
	for _, c := range input.Cells {
		if !classification.Satisfies(p.EffectiveClearance(), c.Classification) {
			return security.CheckRecordAccess(p, c.Classification)
		}
	}
	return security.Decision{Allowed: true}
}

func buildRecord(input *recordInput, p *security.Principal) *security.Record {
	now := time.Now().UTC()
	record := &security.Record{
		ID:             uuid.New().String(),
		Title:          input.Title,
		Description:    input.Description,
		Classification: input.Classification,
		CreatedBy:      p.ID,
		UpdatedBy:      p.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, c := range input.Cells {
		record.Cells = append(record.Cells, security.Cell{
			ID:             uuid.New().String(),
			RecordID:       record.ID,
			FieldName:      c.FieldName,
			FieldValue:     c.FieldValue,
			Classification: c.Classification,
			Compartments:   append([]string(nil), c.Compartments...),
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	if input.NTK != nil {
		record.NTK = &security.NeedToKnowGrant{
			Required:     input.NTK.Required,
			Users:        append([]string(nil), input.NTK.Users...),
			Compartments: append([]string(nil), input.NTK.Compartments...),
		}
	}
	return record
}

// applyCellUpdates merges the update payload into the existing record.
// Each updated cell is authorized against the EXISTING cell's classification
// and compartments; denied cells keep their stored values and produce a
// CELL_UPDATE_DENIED event. New cells are capped at the caller's clearance.
// A nil NTK in the payload leaves the stored grant untouched; the handler
// has already gated a non-nil one on the manager role.
func applyCellUpdates(p *security.Principal, existing *security.Record, input *recordInput, req recorder.RequestInfo) (*security.Record, []*audit.Event) {
	updated := *existing
	updated.Title = input.Title
	updated.Description = input.Description
	if input.NTK != nil {
		updated.NTK = &security.NeedToKnowGrant{
			Required:     input.NTK.Required,
			Users:        append([]string(nil), input.NTK.Users...),
			Compartments: append([]string(nil), input.NTK.Compartments...),
		}
	}

	byField := make(map[string]*security.Cell, len(existing.Cells))
	for i := range existing.Cells {
		byField[existing.Cells[i].FieldName] = &existing.Cells[i]
	}

	now := time.Now().UTC()
	var deniedEvents []*audit.Event
	cells := make([]security.Cell, 0, len(input.Cells))

	for _, in := range input.Cells {
		prev, exists := byField[in.FieldName]

		if exists {
			d := security.CheckCellAccess(p, prev.Classification, prev.Compartments)
			if !d.Allowed {
				event := recorder.MutationDeniedEvent(p, audit.ActionCellUpdateDenied,
					existing.ID, existing.Title, d, req)
				event.ResourceType = audit.ResourceCell
				event.FieldName = in.FieldName
				event.ClassificationRequired = prev.Classification
				event.CompartmentsRequired = append([]string(nil), prev.Compartments...)
				deniedEvents = append(deniedEvents, event)

				// Denied cells are skipped, keeping stored values.
				cells = append(cells, *prev)
				continue
			}
			next := *prev
			next.FieldValue = in.FieldValue
			next.Classification = in.Classification
			next.Compartments = append([]string(nil), in.Compartments...)
			next.UpdatedAt = now
			cells = append(cells, next)
			continue
		}

		if !classification.Satisfies(p.EffectiveClearance(), in.Classification) {
			d := security.Decision{Allowed: false, Reason: security.ReasonInsufficientClearance}
			event := recorder.MutationDeniedEvent(p, audit.ActionCellUpdateDenied,
				existing.ID, existing.Title, d, req)
			event.ResourceType = audit.ResourceCell
			event.FieldName = in.FieldName
			event.ClassificationRequired = in.Classification
			deniedEvents = append(deniedEvents, event)
			continue
		}
		cells = append(cells, security.Cell{
			ID:             uuid.New().String(),
			RecordID:       existing.ID,
			FieldName:      in.FieldName,
			FieldValue:     in.FieldValue,
			Classification: in.Classification,
			Compartments:   append([]string(nil), in.Compartments...),
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	// Cells absent from the payload are untouched.
	inPayload := make(map[string]struct{}, len(input.Cells))
	for _, in := range input.Cells {
		inPayload[in.FieldName] = struct{}{}
	}
	for _, prev := range existing.Cells {
		if _, ok := inPayload[prev.FieldName]; !ok {
			cells = append(cells, prev)
		}
	}

	updated.Cells = cells
	return &updated, deniedEvents
}
