package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"stratum-hq/bastion/pkg/audit"
	"stratum-hq/bastion/pkg/audit/recorder"
	"stratum-hq/bastion/pkg/audit/report"
	"stratum-hq/bastion/pkg/audit/storage"
	"stratum-hq/bastion/pkg/config"
	"stratum-hq/bastion/pkg/policy"
	"stratum-hq/bastion/pkg/search"
	"stratum-hq/bastion/pkg/store"
)

// flakyStorage wraps the memory backend so a test can force the next audit
// write to fail.
type flakyStorage struct {
	*storage.MemoryStorage
	failNext bool
}

func (f *flakyStorage) Store(ctx context.Context, event *audit.Event) error {
	if f.failNext {
		f.failNext = false
		return audit.NewStorageError("memory", "store", errors.New("disk full"))
	}
	return f.MemoryStorage.Store(ctx, event)
}

// FailNextStore makes the next Store call fail.
func (f *flakyStorage) FailNextStore() { f.failNext = true }

// testEnv bundles the server with the in-memory backends behind it so tests
// can seed state and inspect the audit trail.
type testEnv struct {
	server  *Server
	store   *store.MemoryStore
	audit   *flakyStorage
	index   *search.Index
	policy  *policy.Manager
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithDeps(t, Deps{})
}

// newTestEnvWithDeps builds the standard test environment, honoring any
// dependencies the caller has pre-filled on deps.
func newTestEnvWithDeps(t *testing.T, deps Deps) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	recordsStore := store.NewMemoryStore()
	auditStorage := &flakyStorage{MemoryStorage: storage.NewMemoryStorage()}

	if deps.Policy == nil {
		manager, err := policy.NewManager("")
		if err != nil {
			t.Fatalf("policy.NewManager: %v", err)
		}
		deps.Policy = manager
	}

	index := search.NewIndex()
	deps.Store = recordsStore
	deps.Recorder = recorder.NewRecorder(auditStorage, nil)
	deps.Reporter = report.NewReporter(auditStorage)
	deps.Index = index
	srv := NewServer(cfg, deps)

	return &testEnv{
		server:  srv,
		store:   recordsStore,
		audit:   auditStorage,
		index:   index,
		policy:  deps.Policy,
		handler: srv.Handler(),
	}
}

// claimsHeader encodes a claims payload the way the gateway does.
func claimsHeader(t *testing.T, payload map[string]any) string {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return base64.StdEncoding.EncodeToString(data)
}

// analystClaims is a SECRET-cleared analyst in PROJECT_ALPHA.
func analystClaims(t *testing.T) string {
	return claimsHeader(t, map[string]any{
		"sub":                "u-100",
		"preferred_username": "alpha-senior",
		"organization":       "agency-alpha",
		"clearance_level":    "SECRET",
		"compartments":       "PROJECT_ALPHA",
		"cell_memberships":   "cell-east",
		"realm_access":       map[string]any{"roles": []any{"analyst"}},
	})
}

// auditorClaims is an UNCLASSIFIED-cleared auditor.
func auditorClaims(t *testing.T) string {
	return claimsHeader(t, map[string]any{
		"sub":                "u-900",
		"preferred_username": "overseer",
		"organization":       "agency-alpha",
		"realm_access":       map[string]any{"roles": []any{"auditor"}},
	})
}

func (e *testEnv) request(t *testing.T, method, path, claims string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if claims != "" {
		req.Header.Set(ClaimsHeader, claims)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v\n%s", err, rec.Body.String())
	}
	return out
}

func TestServer_RequestIDEchoed(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, "GET", "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("no request id header on response")
	}
}

func TestServer_ClientRequestIDHonored(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set(RequestIDHeader, "client-supplied")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "client-supplied" {
		t.Errorf("request id = %q", got)
	}
}

func TestServer_MalformedClaimsRejected(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/api/me/access", nil)
	req.Header.Set(ClaimsHeader, "not base64!!!")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestServer_AccessSummary(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, "GET", "/api/me/access", analystClaims(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	summary := decodeBody[map[string]any](t, rec)
	if summary["clearance_level"] != "SECRET" {
		t.Errorf("clearance = %v", summary["clearance_level"])
	}
	if summary["can_view_top_secret"] != false || summary["can_view_secret"] != true {
		t.Errorf("level flags = %v", summary)
	}
}
