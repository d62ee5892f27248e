package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"stratum-hq/bastion/pkg/audit"
	"stratum-hq/bastion/pkg/identity"
	"stratum-hq/bastion/pkg/security"
	"stratum-hq/bastion/pkg/store"
)

// errorResponse is the JSON error body. It never carries decision internals
// beyond the denial reason code.
type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDenial answers a 403 with the denial reason code. The missing
// compartments on the decision are audit data and are never serialized here.
func writeDenial(w http.ResponseWriter, d security.Decision) {
	writeJSON(w, http.StatusForbidden, errorResponse{
		Error:  "access denied",
		Reason: string(d.Reason),
	})
}

// writeFault maps infrastructure failures to status codes. I/O faults answer
// 503, never 403: a denial must always mean the caller was evaluated and
// refused, not that a dependency was down.
func writeFault(w http.ResponseWriter, err error) {
	var unavailable *identity.UnavailableError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "record not found")
	case errors.As(err, &unavailable):
		writeError(w, http.StatusServiceUnavailable, "identity provider unavailable")
	default:
		var recorderErr *audit.RecorderError
		var storageErr *audit.StorageError
		var storeErr *store.StoreError
		if errors.As(err, &recorderErr) || errors.As(err, &storageErr) || errors.As(err, &storeErr) {
			writeError(w, http.StatusServiceUnavailable, "system unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
