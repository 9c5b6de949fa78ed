package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/maxkornevpro/key/internal/audit"
	"github.com/maxkornevpro/key/internal/keys"
	"github.com/maxkornevpro/key/internal/mcp"
	"github.com/maxkornevpro/key/internal/service"
	"github.com/maxkornevpro/key/internal/store"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const (
	testJWTSecret = "test-secret-for-jwt-integration-tests"
	testAPISecret = "shared-client-secret"
	testAdminID   = int64(1)
)

// testEnv holds all the shared state for integration tests.
type testEnv struct {
	server  *Server
	keys    *keys.Service
	store   *store.Store
	audit   *audit.Log
	authSvc *service.AuthService
}

// newTestEnv creates a fresh key store in a temp dir, an in-memory audit
// log and a fully wired Server with admin id 1 on the allowlist.
func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
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

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	keysSvc := keys.New(st, logger,
		keys.WithAuditor(auditLog),
		keys.WithMetrics(keys.NewMetrics(reg)),
		keys.WithAdmins(testAdminID),
	)
	authSvc := service.NewAuthService(testAPISecret, testJWTSecret, keysSvc)

	cfg := DefaultConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}
	srv := New(cfg, Deps{
		Keys:     keysSvc,
		Auth:     authSvc,
		Audit:    auditLog,
		Registry: reg,
		MCP:      mcp.NewMCPServer(keysSvc, logger, "test").Handler(),
	}, logger)

	return &testEnv{
		server:  srv,
		keys:    keysSvc,
		store:   st,
		audit:   auditLog,
		authSvc: authSvc,
	}
}

// adminToken returns a JWT for the allowlisted admin.
func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	token, err := e.authSvc.IssueJWT(context.Background(), testAdminID, time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	return token
}

// do executes an HTTP request against the test server and returns the recorder.
// headers is an optional map of header key-value pairs.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

// doAuth executes an authenticated HTTP request using the admin JWT.
func (e *testEnv) doAuth(t *testing.T, method, path string, body io.Reader, token string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// doSecret executes a request carrying the shared validation secret.
func (e *testEnv) doSecret(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{
		"X-API-Secret": testAPISecret,
	})
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("jsonBody: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func assertContentType(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	got := rr.Header().Get("Content-Type")
	if got != want {
		t.Errorf("Content-Type = %q, want %q", got, want)
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Health check tests
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/healthz", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	assertContentType(t, rr, "application/json")

	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want %q", resp["status"], "ok")
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	var resp map[string]interface{}
	decodeJSON(t, rr, &resp)
	checks, ok := resp["checks"].(map[string]interface{})
	if !ok || checks["store"] != "ok" {
		t.Errorf("checks = %v, want store ok", resp["checks"])
	}
}

func TestReadyz_MalformedStore(t *testing.T) {
	env := newTestEnv(t)
	if err := os.WriteFile(env.store.Path(), []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusServiceUnavailable)
}

func TestIndexAndOpenAPI(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	rr = env.do(t, "GET", "/openapi.json", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	var doc map[string]interface{}
	decodeJSON(t, rr, &doc)
	if _, ok := doc["paths"].(map[string]interface{})["/api/validate"]; !ok {
		t.Error("openapi document should describe /api/validate")
	}
}

// ---------------------------------------------------------------------------
// Validation endpoint
// ---------------------------------------------------------------------------

func TestValidate_RequiresSecret(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.keys.IssueSelfService(context.Background(), 10, "ann")
	if err != nil {
		t.Fatal(err)
	}
	path := "/api/validate?key=" + res.Record.Key

	rr := env.do(t, "GET", path, nil, nil)
	assertStatus(t, rr, http.StatusUnauthorized)

	rr = env.doSecret(t, "GET", path, nil)
	assertStatus(t, rr, http.StatusOK)

	// The admin token is not a substitute for the shared secret.
	rr = env.doAuth(t, "GET", path, nil, env.adminToken(t))
	assertStatus(t, rr, http.StatusUnauthorized)
}

func TestValidate_RateLimited(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.RateLimit = 2 })

	var last int
	for i := 0; i < 3; i++ {
		last = env.doSecret(t, "GET", "/api/validate?key=abc", nil).Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last)
	}

	// Health is outside the limited group.
	rr := env.do(t, "GET", "/api/health", nil, nil)
	assertStatus(t, rr, http.StatusOK)
}

// ---------------------------------------------------------------------------
// Admin authentication
// ---------------------------------------------------------------------------

func TestAdminEndpoints_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/api/admin/keys"},
		{"POST", "/api/admin/keys"},
		{"DELETE", "/api/admin/keys/abc"},
		{"POST", "/api/admin/keys/abc/revoke"},
		{"GET", "/api/admin/users"},
		{"GET", "/api/admin/audit"},
		{"POST", "/api/issue"},
	}
	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			rr := env.do(t, ep.method, ep.path, nil, nil)
			assertStatus(t, rr, http.StatusUnauthorized)
		})
	}
}

func TestAdminEndpoints_SecretIsNotAdmin(t *testing.T) {
	env := newTestEnv(t)
	rr := env.doSecret(t, "GET", "/api/admin/keys", nil)
	assertStatus(t, rr, http.StatusUnauthorized)
}

func TestAdminEndpoints_InvalidJWT(t *testing.T) {
	env := newTestEnv(t)
	rr := env.doAuth(t, "GET", "/api/admin/keys", nil, "not.a.jwt")
	assertStatus(t, rr, http.StatusUnauthorized)
}

func TestAdminEndpoints_ExpiredJWT(t *testing.T) {
	env := newTestEnv(t)

	token, err := env.authSvc.IssueJWT(context.Background(), testAdminID, -1*time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}

	rr := env.doAuth(t, "GET", "/api/admin/keys", nil, token)
	assertStatus(t, rr, http.StatusUnauthorized)
}

type allowAll struct{}

func (allowAll) IsAdmin(int64) bool { return true }

func TestAdminEndpoints_TokenForNonAdmin(t *testing.T) {
	env := newTestEnv(t)

	// Same signing secret, but id 2 is not on the server's allowlist.
	other := service.NewAuthService("", testJWTSecret, allowAll{})
	token, err := other.IssueJWT(context.Background(), 2, time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}

	rr := env.doAuth(t, "GET", "/api/admin/keys", nil, token)
	assertStatus(t, rr, http.StatusUnauthorized)
}

func TestErrorResponseFormat(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/api/admin/keys", nil, nil)
	assertStatus(t, rr, http.StatusUnauthorized)

	var errResp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeJSON(t, rr, &errResp)

	if errResp.Error.Code != 401 {
		t.Errorf("error.code = %d, want 401", errResp.Error.Code)
	}
	if errResp.Error.Message == "" {
		t.Error("expected non-empty error.message")
	}
}

// ---------------------------------------------------------------------------
// Full workflow: create -> validate -> revoke -> validate -> audit
// ---------------------------------------------------------------------------

func TestFullWorkflow(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t)

	rr := env.doAuth(t, "POST", "/api/admin/keys", jsonBody(t, map[string]interface{}{
		"user_id":  123456789,
		"duration": "1year",
	}), token)
	assertStatus(t, rr, http.StatusCreated)
	var created map[string]interface{}
	decodeJSON(t, rr, &created)
	key := created["key"].(string)

	rr = env.doSecret(t, "POST", "/api/validate", jsonBody(t, map[string]string{"key": key}))
	assertStatus(t, rr, http.StatusOK)
	var valid map[string]interface{}
	decodeJSON(t, rr, &valid)
	if valid["username"] != "admin_created_123456789" {
		t.Errorf("username = %v", valid["username"])
	}

	rr = env.doAuth(t, "POST", "/api/admin/keys/"+key+"/revoke", nil, token)
	assertStatus(t, rr, http.StatusOK)

	rr = env.doSecret(t, "GET", "/api/validate?key="+key, nil)
	assertStatus(t, rr, http.StatusForbidden)
	if !strings.Contains(rr.Body.String(), "Key is inactive") {
		t.Errorf("body = %s", rr.Body.String())
	}

	rr = env.doAuth(t, "GET", "/api/admin/audit", nil, token)
	assertStatus(t, rr, http.StatusOK)
	var events struct {
		Resource []map[string]interface{} `json:"resource"`
	}
	decodeJSON(t, rr, &events)
	if len(events.Resource) != 2 {
		t.Fatalf("got %d audit events, want 2", len(events.Resource))
	}
	for _, ev := range events.Resource {
		if ev["actor"] != "admin:1" {
			t.Errorf("event %v: actor = %v, want admin:1", ev["action"], ev["actor"])
		}
	}

	rr = env.doAuth(t, "DELETE", "/api/admin/keys/"+key, nil, token)
	assertStatus(t, rr, http.StatusOK)
	rr = env.doSecret(t, "GET", "/api/validate?key="+key, nil)
	assertStatus(t, rr, http.StatusNotFound)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.doSecret(t, "GET", "/api/validate?key=unknown", nil)

	rr := env.do(t, "GET", "/metrics", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	body := rr.Body.String()
	for _, want := range []string{
		`key_validations_total{outcome="not_found"} 1`,
		`key_http_requests_total{method="GET",route="/api/validate",status="404"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

// ---------------------------------------------------------------------------
// Transport details
// ---------------------------------------------------------------------------

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "OPTIONS", "/api/validate", nil, map[string]string{
		"Origin":                         "http://localhost:3000",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "Content-Type,X-API-Secret",
	})

	if rr.Code < 200 || rr.Code >= 300 {
		t.Errorf("CORS preflight status = %d, want 2xx", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected Access-Control-Allow-Origin header")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "PATCH", "/healthz", nil, nil)
	if rr.Code != http.StatusMethodNotAllowed && rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 405 or 404", rr.Code)
	}
}

func TestRequestBodyTooLarge(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.MaxBodySize = 32 })

	body := strings.NewReader(`{"key":"` + strings.Repeat("a", 100) + `"}`)
	rr := env.doSecret(t, "POST", "/api/validate", body)
	assertStatus(t, rr, http.StatusBadRequest)
}

// ---------------------------------------------------------------------------
// MCP endpoint
// ---------------------------------------------------------------------------

func mcpInitialize(t *testing.T) *bytes.Buffer {
	return jsonBody(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]interface{}{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]interface{}{},
			"clientInfo": map[string]interface{}{
				"name":    "test",
				"version": "1.0",
			},
		},
	})
}

func TestMCPEndpoint_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "POST", "/mcp", mcpInitialize(t), nil)
	assertStatus(t, rr, http.StatusUnauthorized)
}

func TestMCPEndpoint_WithJWT(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doAuth(t, "POST", "/mcp", mcpInitialize(t), env.adminToken(t))
	if rr.Code == http.StatusUnauthorized || rr.Code == http.StatusForbidden {
		t.Fatalf("MCP endpoint returned %d with valid JWT", rr.Code)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v; body = %s", err, rr.Body.String())
	}
	if resp["jsonrpc"] != "2.0" {
		t.Errorf("jsonrpc = %v, want 2.0", resp["jsonrpc"])
	}
	if resp["result"] == nil {
		t.Error("expected result in JSON-RPC response")
	}
}
