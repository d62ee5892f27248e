package server

import (
	"net/http"
	"strconv"

	"stratum-hq/bastion/pkg/search"
	"stratum-hq/bastion/pkg/security"
)

// handleSearch runs a filtered search and masks sensitive fields.
//
// The filter mode comes from the request, downgraded or defaulted by the
// sharing policy. The query filter itself is built entirely from the
// principal's attributes, so an empty query still returns only what the
// caller may see.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())

	mode, err := s.policy.EffectiveMode(search.Mode(r.URL.Query().Get("mode")))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := s.config.Search.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	if max := s.config.Search.MaxLimit; max > 0 && limit > max {
		limit = max
	}

	pred, err := search.BuildFilter(p, r.URL.Query().Get("q"), mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	docs := s.index.Search(pred, limit)

	// The masker is built per request from the active policy so a hot reload
	// of sensitive_fields takes effect without a restart.
	masker := search.NewFieldMasker(search.MaskerConfig{
		SensitiveFields: s.policy.Current().SensitiveFields,
	})
	masked := masker.Mask(p, docs, mode)

	if s.metrics != nil {
		s.metrics.RecordSearch(string(mode))
		counts := make(map[search.MaskState]int)
		for _, doc := range masked {
			for _, state := range doc.FieldAccess {
				if state == search.MaskRedacted || state == search.MaskNTKRedacted {
					counts[state]++
				}
			}
		}
		for state, n := range counts {
			s.metrics.RecordMaskedFields(string(state), n)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":    mode,
		"total":   len(masked),
		"results": masked,
	})
}

// handleAccessSummary returns the caller's own access summary. It contains
// nothing the caller does not already hold.
func (s *Server) handleAccessSummary(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	writeJSON(w, http.StatusOK, security.Summarize(p))
}
