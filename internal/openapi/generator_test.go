package openapi

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestGenerate_Info(t *testing.T) {
	doc := Generate("http://localhost:5000", "1.2.3")

	if doc.OpenAPI != "3.1.0" {
		t.Errorf("OpenAPI version = %q, want %q", doc.OpenAPI, "3.1.0")
	}
	if doc.Info == nil {
		t.Fatal("Info is nil")
	}
	if doc.Info.Version != "1.2.3" {
		t.Errorf("Info.Version = %q, want %q", doc.Info.Version, "1.2.3")
	}
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "http://localhost:5000" {
		t.Errorf("Servers not set correctly")
	}
}

func TestGenerate_SecuritySchemes(t *testing.T) {
	doc := Generate("http://localhost:5000", "dev")

	secret, ok := doc.Components.SecuritySchemes["apiSecret"]
	if !ok {
		t.Fatal("apiSecret security scheme not found")
	}
	if secret.Value.In != "header" || secret.Value.Name != "X-API-Secret" {
		t.Errorf("apiSecret = %s %q, want header X-API-Secret", secret.Value.In, secret.Value.Name)
	}

	bearer, ok := doc.Components.SecuritySchemes["bearerAuth"]
	if !ok {
		t.Fatal("bearerAuth security scheme not found")
	}
	if bearer.Value.Scheme != "bearer" || bearer.Value.BearerFormat != "JWT" {
		t.Errorf("bearerAuth = %s %s", bearer.Value.Scheme, bearer.Value.BearerFormat)
	}
}

func TestGenerate_ValidatePath(t *testing.T) {
	doc := Generate("http://localhost:5000", "dev")

	item := doc.Paths.Find("/api/validate")
	if item == nil {
		t.Fatal("/api/validate not found")
	}
	if item.Get == nil || item.Post == nil {
		t.Fatal("validate should support GET and POST")
	}
	if item.Get.RequestBody != nil {
		t.Error("GET validate should not declare a request body")
	}
	if item.Post.RequestBody == nil {
		t.Error("POST validate should declare a request body")
	}

	for _, code := range []string{"200", "400", "401", "403", "404", "500"} {
		if item.Get.Responses.Value(code) == nil {
			t.Errorf("validate missing %s response", code)
		}
	}
}

func TestGenerate_AdminPathsRequireBearer(t *testing.T) {
	doc := Generate("http://localhost:5000", "dev")

	paths := []string{
		"/api/admin/keys",
		"/api/admin/keys/{key}",
		"/api/admin/keys/{key}/revoke",
		"/api/admin/keys/{key}/restore",
		"/api/admin/users",
		"/api/admin/users/{userID}/keys",
		"/api/admin/audit",
		"/api/issue",
	}
	for _, p := range paths {
		item := doc.Paths.Find(p)
		if item == nil {
			t.Errorf("path %s not found", p)
			continue
		}
		for method, op := range item.Operations() {
			if op.Security == nil || len(*op.Security) != 1 {
				t.Errorf("%s %s: expected a single security requirement", method, p)
				continue
			}
			if _, ok := (*op.Security)[0]["bearerAuth"]; !ok {
				t.Errorf("%s %s: expected bearerAuth", method, p)
			}
		}
	}
}

func TestGenerate_ComponentSchemas(t *testing.T) {
	doc := Generate("http://localhost:5000", "dev")

	for _, name := range []string{"ErrorResponse", "ValidateResponse", "ValidateError", "KeyRecord", "UserStat", "AuditEvent", "Health"} {
		if _, ok := doc.Components.Schemas[name]; !ok {
			t.Errorf("schema %s not found", name)
		}
	}

	rec := doc.Components.Schemas["KeyRecord"].Value
	for _, field := range []string{"user_id", "username", "created_at", "expires_at", "duration", "active", "created_by_admin"} {
		if _, ok := rec.Properties[field]; !ok {
			t.Errorf("KeyRecord missing %s", field)
		}
	}
}

func TestGenerate_MarshalsToJSON(t *testing.T) {
	doc := Generate("http://localhost:5000", "dev")

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"/api/validate"`) {
		t.Error("marshaled document missing /api/validate")
	}
	if !strings.Contains(string(data), "#/components/schemas/KeyRecord") {
		t.Error("marshaled document missing KeyRecord reference")
	}
}
