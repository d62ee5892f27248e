// Package server provides the HTTP API over the access-control engine.
//
// # Endpoints
//
//	GET    /api/records           list records the caller may see (metadata)
//	POST   /api/records           create a record (capped at caller clearance)
//	GET    /api/records/{id}      read a record with cell-level redaction
//	PUT    /api/records/{id}      update a record (authorized against existing cells)
//	DELETE /api/records/{id}      soft-delete a record
//	GET    /api/search            filtered search with field masking
//	GET    /api/me/access         the caller's own access summary
//	GET    /api/audit/logs        audit trail page (auditor/admin)
//	GET    /api/audit/stats       activity aggregates (auditor/admin)
//	GET    /api/audit/denials     recent denials (auditor/admin)
//	GET    /healthz, /readyz      liveness and readiness
//	GET    /metrics               Prometheus metrics
//
// # Audit coupling
//
// Every record and cell access decision is written to the audit trail before
// the response is sent. A failed audit write fails the request with 503: the
// system never serves data it could not account for. Infrastructure faults
// (store, audit, identity provider) also answer 503, never 403, so a denial
// always means the caller was actually evaluated and refused.
package server
