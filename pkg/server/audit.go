package server

import (
	"net/http"
	"strconv"
	"time"

	"stratum-hq/bastion/pkg/audit"
)

// requireAuditor gates the audit endpoints to auditor and admin roles.
// Returns false after writing the response when the caller lacks the role.
func (s *Server) requireAuditor(w http.ResponseWriter, r *http.Request) bool {
	if !principalFrom(r.Context()).IsAuditor() {
		writeError(w, http.StatusForbidden, "auditor role required")
		return false
	}
	return true
}

// handleAuditLogs serves a filtered, paginated page of the audit trail.
func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if !s.requireAuditor(w, r) {
		return
	}

	query, err := auditQueryFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, total, err := s.reporter.Logs(r.Context(), query)
	if err != nil {
		writeFault(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// handleAuditStats serves activity aggregates for the past window.
func (s *Server) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireAuditor(w, r) {
		return
	}

	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid hours")
			return
		}
		hours = parsed
	}

	stats, err := s.reporter.Stats(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleAuditDenials serves the newest denied events for security review.
func (s *Server) handleAuditDenials(w http.ResponseWriter, r *http.Request) {
	if !s.requireAuditor(w, r) {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	denials, err := s.reporter.RecentDenials(r.Context(), limit)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"denials": denials,
		"total":   len(denials),
	})
}

// auditQueryFrom builds an audit query from request parameters.
func auditQueryFrom(r *http.Request) (*audit.Query, error) {
	q := r.URL.Query()
	query := &audit.Query{
		Username:     q.Get("username"),
		Organization: q.Get("organization"),
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		FieldName:    q.Get("field_name"),
		SortBy:       q.Get("sort_by"),
		SortOrder:    q.Get("sort_order"),
		Limit:        100,
	}

	if raw := q.Get("was_allowed"); raw != "" {
		allowed, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, err
		}
		query.WasAllowed = &allowed
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return nil, strconv.ErrSyntax
		}
		query.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return nil, strconv.ErrSyntax
		}
		query.Offset = offset
	}
	if raw := q.Get("start_time"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, err
		}
		query.StartTime = &t
	}
	if raw := q.Get("end_time"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, err
		}
		query.EndTime = &t
	}

	return query, nil
}
