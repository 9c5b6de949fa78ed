package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// Generate builds the OpenAPI 3.1 document for the key service HTTP API.
func Generate(baseURL, version string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Key Validation API",
			Description: "Validate license keys and administer the key store.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["apiSecret"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: "X-API-Secret",
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}

	addSchemas(doc.Components.Schemas)

	doc.Paths = openapi3.NewPaths()
	addPublicPaths(doc)
	addAdminPaths(doc)
	return doc
}

func addSchemas(schemas openapi3.Schemas) {
	schemas["ErrorResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
							"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"context": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
						},
					},
				},
			},
		},
	}

	schemas["ValidateResponse"] = objectSchema(openapi3.Schemas{
		"valid":      boolSchema("Always true for a usable key."),
		"user_id":    int64Schema("Owner of the key."),
		"username":   stringSchema("Owner display name."),
		"expires_at": nullable(timestampSchema("Expiry in local time; null for perpetual keys.")),
	}, "valid", "user_id", "username", "expires_at")

	schemas["ValidateError"] = objectSchema(openapi3.Schemas{
		"valid": boolSchema("Always false."),
		"error": &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type: &openapi3.Types{"string"},
			Enum: []interface{}{
				"Key is required", "Key not found", "Key is inactive", "Key expired",
				"Invalid API secret", "Invalid JSON body", "Key store is malformed", "Internal error",
			},
		}},
	}, "valid", "error")

	schemas["KeyRecord"] = objectSchema(openapi3.Schemas{
		"key":              stringSchema("16-character key identifier."),
		"user_id":          int64Schema("Owner of the key."),
		"username":         stringSchema("Display name recorded at issuance."),
		"created_at":       timestampSchema("Creation time."),
		"expires_at":       timestampSchema("Expiry time; absent for perpetual keys."),
		"duration":         stringSchema("Duration token the key was issued with."),
		"active":           boolSchema("False once revoked."),
		"created_by_admin": boolSchema("True for admin-issued keys."),
		"valid":            boolSchema("Unexpired at response time."),
	}, "key", "user_id", "created_at", "active")

	schemas["UserStat"] = objectSchema(openapi3.Schemas{
		"user_id":     int64Schema(""),
		"username":    stringSchema("Username of the first record seen for the user."),
		"keys_count":  int64Schema("Total records held."),
		"active_keys": int64Schema("Records unexpired at response time."),
	}, "user_id", "keys_count", "active_keys")

	schemas["AuditEvent"] = objectSchema(openapi3.Schemas{
		"id":      int64Schema(""),
		"action":  stringSchema("issue, create, delete, revoke or restore."),
		"key":     stringSchema(""),
		"user_id": int64Schema(""),
		"actor":   stringSchema("Who performed the mutation."),
		"detail":  stringSchema("Duration token for issuance events."),
		"at":      &openapi3.SchemaRef{Value: openapi3.NewDateTimeSchema()},
	}, "id", "action", "key", "at")

	schemas["Health"] = objectSchema(openapi3.Schemas{
		"status":     stringSchema("ok or error."),
		"keys_file":  stringSchema("Path of the key store."),
		"keys_count": int64Schema("Number of stored records."),
		"error":      stringSchema("Present when the store cannot be read."),
	}, "status", "keys_file")
}

func addPublicPaths(doc *openapi3.T) {
	keyParam := &openapi3.ParameterRef{
		Value: openapi3.NewQueryParameter("key").
			WithDescription("Key to validate. For POST, the JSON body field takes precedence.").
			WithSchema(openapi3.NewStringSchema()),
	}
	secret := &openapi3.SecurityRequirements{{"apiSecret": {}}, {}}

	validateBody := &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Description: "Key to validate",
			Content: openapi3.NewContentWithJSONSchema(
				openapi3.NewObjectSchema().WithProperty("key", openapi3.NewStringSchema()),
			),
		},
	}

	validate := func(method string) *openapi3.Operation {
		op := &openapi3.Operation{
			Tags:        []string{"validate"},
			Summary:     "Validate a key",
			Description: "Checks existence, then the active flag, then expiry. The first failing check is reported.",
			OperationID: method + "_validate",
			Parameters:  openapi3.Parameters{keyParam},
			Security:    secret,
			Responses:   validateResponses(),
		}
		if method == "post" {
			op.RequestBody = validateBody
		}
		return op
	}

	doc.Paths.Set("/api/validate", &openapi3.PathItem{
		Get:  validate("get"),
		Post: validate("post"),
	})

	doc.Paths.Set("/api/health", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Store health",
			OperationID: "health",
			Responses: responses(
				"200", "Store is readable", ref("Health"),
				"503", "Store cannot be read", ref("Health"),
			),
		},
	})
}

func addAdminPaths(doc *openapi3.T) {
	bearer := &openapi3.SecurityRequirements{{"bearerAuth": {}}}
	keyPath := &openapi3.ParameterRef{
		Value: openapi3.NewPathParameter("key").
			WithDescription("Key identifier.").
			WithSchema(openapi3.NewStringSchema()),
	}
	userPath := &openapi3.ParameterRef{
		Value: openapi3.NewPathParameter("userID").
			WithDescription("Owner user id.").
			WithSchema(openapi3.NewInt64Schema()),
	}
	limit := &openapi3.ParameterRef{
		Value: openapi3.NewQueryParameter("limit").
			WithDescription("Maximum number of entries to return; 0 for all.").
			WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}),
	}

	op := func(id, summary string, params openapi3.Parameters, body *openapi3.RequestBodyRef, status string, schema *openapi3.SchemaRef) *openapi3.Operation {
		return &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     summary,
			OperationID: id,
			Parameters:  params,
			RequestBody: body,
			Security:    bearer,
			Responses:   adminResponses(status, summary, schema),
		}
	}

	createBody := &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Required: true,
			Content: openapi3.NewContentWithJSONSchema(
				openapi3.NewObjectSchema().
					WithProperty("user_id", openapi3.NewInt64Schema()).
					WithProperty("duration", openapi3.NewStringSchema().WithPattern(`^\d+(s|m|h|d|w|year)$`)).
					WithProperty("perpetual", openapi3.NewBoolSchema()),
			),
		},
	}
	issueBody := &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Required: true,
			Content: openapi3.NewContentWithJSONSchema(
				openapi3.NewObjectSchema().
					WithProperty("user_id", openapi3.NewInt64Schema()).
					WithProperty("username", openapi3.NewStringSchema()),
			),
		},
	}

	doc.Paths.Set("/api/admin/keys", &openapi3.PathItem{
		Get:  op("list_keys", "List keys", openapi3.Parameters{limit}, nil, "200", listOf(ref("KeyRecord"))),
		Post: op("create_key", "Create an admin key", nil, createBody, "201", ref("KeyRecord")),
	})
	doc.Paths.Set("/api/admin/keys/{key}", &openapi3.PathItem{
		Get:    op("get_key", "Get a key with its audit history", openapi3.Parameters{keyPath}, nil, "200", ref("KeyRecord")),
		Delete: op("delete_key", "Delete a key", openapi3.Parameters{keyPath}, nil, "200", objectSchema(openapi3.Schemas{
			"key":     stringSchema(""),
			"deleted": boolSchema(""),
		}, "key", "deleted")),
	})
	doc.Paths.Set("/api/admin/keys/{key}/revoke", &openapi3.PathItem{
		Post: op("revoke_key", "Revoke a key", openapi3.Parameters{keyPath}, nil, "200", ref("KeyRecord")),
	})
	doc.Paths.Set("/api/admin/keys/{key}/restore", &openapi3.PathItem{
		Post: op("restore_key", "Restore a revoked key", openapi3.Parameters{keyPath}, nil, "200", ref("KeyRecord")),
	})
	doc.Paths.Set("/api/admin/users", &openapi3.PathItem{
		Get: op("user_stats", "Per-user key counts", nil, nil, "200", listOf(ref("UserStat"))),
	})
	doc.Paths.Set("/api/admin/users/{userID}/keys", &openapi3.PathItem{
		Get: op("user_keys", "Keys held by a user", openapi3.Parameters{userPath}, nil, "200", listOf(ref("KeyRecord"))),
	})
	doc.Paths.Set("/api/admin/audit", &openapi3.PathItem{
		Get: op("audit_log", "Recent key mutations", openapi3.Parameters{limit}, nil, "200", listOf(ref("AuditEvent"))),
	})
	doc.Paths.Set("/api/issue", &openapi3.PathItem{
		Post: op("issue_key", "Self-service issuance on behalf of a user", nil, issueBody, "200", ref("KeyRecord")),
	})
}

func validateResponses() *openapi3.Responses {
	return responses(
		"200", "Key is usable", ref("ValidateResponse"),
		"400", "Key is missing", ref("ValidateError"),
		"401", "Invalid API secret", ref("ValidateError"),
		"403", "Key is inactive or expired", ref("ValidateError"),
		"404", "Key not found", ref("ValidateError"),
		"500", "Store failure", ref("ValidateError"),
	)
}

func adminResponses(status, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	errorRef := ref("ErrorResponse")
	return responses(
		status, description, schema,
		"400", "Bad request", errorRef,
		"401", "Unauthorized", errorRef,
		"403", "Forbidden", errorRef,
		"404", "Not found", errorRef,
		"500", "Internal server error", errorRef,
	)
}

// responses takes (status, description, schema) triples.
func responses(triples ...interface{}) *openapi3.Responses {
	out := openapi3.NewResponses()
	for i := 0; i+2 < len(triples); i += 3 {
		desc := triples[i+1].(string)
		out.Set(triples[i].(string), &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(triples[i+2].(*openapi3.SchemaRef)),
			},
		})
	}
	return out
}

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func listOf(item *openapi3.SchemaRef) *openapi3.SchemaRef {
	return objectSchema(openapi3.Schemas{
		"resource": &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: item,
			},
		},
		"meta": metaSchema(),
	}, "resource")
}

func metaSchema() *openapi3.SchemaRef {
	return objectSchema(openapi3.Schemas{
		"count":   int64Schema("Entries in this response."),
		"total":   int64Schema("Entries in the collection."),
		"limit":   int64Schema("Limit applied, if any."),
		"omitted": int64Schema("Entries left out by the limit."),
	})
}

func objectSchema(props openapi3.Schemas, required ...string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: props,
		Required:   required,
	}}
}

func stringSchema(desc string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Description: desc}}
}

func int64Schema(desc string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64", Description: desc}}
}

func boolSchema(desc string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}, Description: desc}}
}

// timestampSchema describes the store's zone-less local timestamp format.
func timestampSchema(desc string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:        &openapi3.Types{"string"},
		Description: desc,
		Pattern:     `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?$`,
		Example:     "2025-01-15T10:30:00.123456",
	}}
}

func nullable(s *openapi3.SchemaRef) *openapi3.SchemaRef {
	s.Value.Type = &openapi3.Types{"string", "null"}
	return s
}
