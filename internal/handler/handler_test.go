package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/maxkornevpro/key/internal/audit"
	"github.com/maxkornevpro/key/internal/keys"
	"github.com/maxkornevpro/key/internal/service"
	"github.com/maxkornevpro/key/internal/store"
)

const testAPISecret = "client-shared-secret"

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	keys   *keys.Service
	store  *store.Store
	audit  *audit.Log
	router chi.Router
}

// newTestEnv creates a fresh key store in a temp dir, an in-memory audit log
// and a Chi router with routes mounted (no auth middleware). apiSecret may be
// empty to disable the shared-secret check.
func newTestEnv(t *testing.T, apiSecret string) *testEnv {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "keys.json"), nil)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	auditLog, err := audit.Open("")
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	t.Cleanup(func() { auditLog.Close() })

	svc := keys.New(st, nil, keys.WithAuditor(auditLog), keys.WithAdmins(1))
	authSvc := service.NewAuthService(apiSecret, "", svc)

	keyHandler := NewKeyHandler(svc, authSvc, nil)
	adminHandler := NewAdminHandler(svc, auditLog, nil)

	r := chi.NewRouter()
	r.Get("/", keyHandler.Index)
	r.Get("/openapi.json", NewOpenAPIHandler("test").ServeSpec)
	r.Route("/api", func(r chi.Router) {
		r.Get("/validate", keyHandler.Validate)
		r.Post("/validate", keyHandler.Validate)
		r.Get("/health", keyHandler.Health)
		r.Post("/issue", adminHandler.IssueKey)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/keys", adminHandler.ListKeys)
			r.Post("/keys", adminHandler.CreateKey)
			r.Get("/keys/{key}", adminHandler.GetKey)
			r.Delete("/keys/{key}", adminHandler.DeleteKey)
			r.Post("/keys/{key}/revoke", adminHandler.RevokeKey)
			r.Post("/keys/{key}/restore", adminHandler.RestoreKey)
			r.Get("/users", adminHandler.UserStats)
			r.Get("/users/{userID}/keys", adminHandler.UserKeys)
			r.Get("/audit", adminHandler.Audit)
		})
	})

	return &testEnv{
		keys:   svc,
		store:  st,
		audit:  auditLog,
		router: r,
	}
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}
