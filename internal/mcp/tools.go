package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/maxkornevpro/key/internal/keys"
	"github.com/maxkornevpro/key/internal/model"
	"github.com/maxkornevpro/key/internal/store"
)

// registerTools registers all key tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Read tools -----

	srv.AddTool(
		mcp.NewTool("key_validate",
			mcp.WithDescription(
				"Check whether a license key may be used right now. Returns the owner's "+
					"user id, username and expiry for a usable key, or the reason it was "+
					"rejected: not found, inactive or expired.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("key",
				mcp.Required(),
				mcp.Description("The key to validate"),
			),
		),
		s.handleValidate,
	)

	srv.AddTool(
		mcp.NewTool("key_list",
			mcp.WithDescription(
				"List keys in the order they were issued. Each entry carries the owner, "+
					"creation and expiry time, duration token and flags. The response says "+
					"how many keys were left out by the limit.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of keys to return (default 20, 0 for all)"),
			),
		),
		s.handleList,
	)

	srv.AddTool(
		mcp.NewTool("key_user_stats",
			mcp.WithDescription(
				"Summarise keys per user: total keys held and how many are still unexpired.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleUserStats,
	)

	// ----- Mutation tools -----

	srv.AddTool(
		mcp.NewTool("key_issue",
			mcp.WithDescription(
				"Self-service issuance: return the user's existing unexpired key, or "+
					"issue a new 30 day key if they have none. Safe to call repeatedly.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation(false)),
			mcp.WithNumber("user_id",
				mcp.Required(),
				mcp.Description("Numeric id of the user the key is for"),
			),
			mcp.WithString("username",
				mcp.Description("Display name stored with a newly issued key"),
			),
		),
		s.handleIssue,
	)

	srv.AddTool(
		mcp.NewTool("key_create",
			mcp.WithDescription(
				"Admin issuance: always create a new key for the user. Duration is a "+
					"single number and unit: s, m, h, d, w or year (e.g. 30d, 1year). Set "+
					"perpetual instead of duration for a key that never expires.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation(false)),
			mcp.WithNumber("user_id",
				mcp.Required(),
				mcp.Description("Numeric id of the user the key is for"),
			),
			mcp.WithString("duration",
				mcp.Description("Lifetime of the key, e.g. 7d or 1year"),
			),
			mcp.WithBoolean("perpetual",
				mcp.Description("Create a key without expiry"),
			),
		),
		s.handleCreate,
	)

	srv.AddTool(
		mcp.NewTool("key_delete",
			mcp.WithDescription(
				"Permanently delete a key. Prefer key_revoke when the key may need to be "+
					"restored later.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation(true)),
			mcp.WithString("key",
				mcp.Required(),
				mcp.Description("The key to delete"),
			),
		),
		s.handleDelete,
	)

	srv.AddTool(
		mcp.NewTool("key_revoke",
			mcp.WithDescription("Mark a key inactive so validation rejects it. The record is kept."),
			mcp.WithToolAnnotation(mutatingAnnotation(false)),
			mcp.WithString("key",
				mcp.Required(),
				mcp.Description("The key to revoke"),
			),
		),
		s.handleRevoke,
	)

	srv.AddTool(
		mcp.NewTool("key_restore",
			mcp.WithDescription("Reactivate a revoked key."),
			mcp.WithToolAnnotation(mutatingAnnotation(false)),
			mcp.WithString("key",
				mcp.Required(),
				mcp.Description("The key to restore"),
			),
		),
		s.handleRestore,
	)
}

// --------------------------------------------------------------------------
// Tool handlers
// --------------------------------------------------------------------------

func (s *MCPServer) handleValidate(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	key, err := requireString(request, "key")
	if err != nil {
		return toolError("%v", err)
	}

	res, err := s.keys.Validate(ctx, key)
	if err != nil {
		return storeError("Validation failed", err)
	}
	if !res.Valid {
		return successJSON(map[string]interface{}{
			"valid": false,
			"error": res.Reason.Message(),
		})
	}
	return successJSON(map[string]interface{}{
		"valid":      true,
		"user_id":    res.UserID,
		"username":   res.Username,
		"expires_at": res.ExpiresAt,
	})
}

func (s *MCPServer) handleList(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	limit := clamp(optionalInt(request, "limit", 20), 0, 10000)
	res, err := s.keys.List(ctx, limit)
	if err != nil {
		return storeError("Failed to list keys", err)
	}

	now := s.keys.Now()
	items := make([]keyInfo, len(res.Keys))
	for i := range res.Keys {
		items[i] = newKeyInfo(&res.Keys[i], now)
	}
	return successJSON(map[string]interface{}{
		"keys":    items,
		"total":   res.Total,
		"omitted": res.Omitted,
	})
}

func (s *MCPServer) handleUserStats(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	stats, err := s.keys.UserStats(ctx)
	if err != nil {
		return storeError("Failed to compute user stats", err)
	}
	return successJSON(stats)
}

func (s *MCPServer) handleIssue(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	userID, err := requireInt64(request, "user_id")
	if err != nil {
		return toolError("%v", err)
	}
	username := optionalString(request, "username")

	res, err := s.keys.IssueSelfService(ctx, userID, username)
	if err != nil {
		return storeError("Issuance failed", err)
	}
	return successJSON(map[string]interface{}{
		"created": res.Created,
		"key":     newKeyInfo(&res.Record, s.keys.Now()),
	})
}

func (s *MCPServer) handleCreate(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	userID, err := requireInt64(request, "user_id")
	if err != nil {
		return toolError("%v", err)
	}
	duration := optionalString(request, "duration")
	perpetual := request.GetBool("perpetual", false)

	switch {
	case perpetual && duration != "":
		return toolError("Specify either duration or perpetual, not both")
	case !perpetual && duration == "":
		return toolError("A duration such as 30d or 1year is required unless perpetual is set")
	}

	var rec model.KeyRecord
	if perpetual {
		rec, err = s.keys.IssuePerpetual(ctx, userID)
	} else {
		rec, err = s.keys.IssueAdmin(ctx, userID, duration)
	}
	if errors.Is(err, keys.ErrInvalidDuration) {
		return toolError("Invalid duration %q. Use a number followed by s, m, h, d, w or year, e.g. 30d", duration)
	}
	if err != nil {
		return storeError("Create failed", err)
	}
	return successJSON(newKeyInfo(&rec, s.keys.Now()))
}

func (s *MCPServer) handleDelete(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	key, err := requireString(request, "key")
	if err != nil {
		return toolError("%v", err)
	}

	if err := s.keys.Delete(ctx, key); err != nil {
		return storeError("Delete failed", err)
	}
	return successJSON(map[string]interface{}{
		"key":     key,
		"deleted": true,
	})
}

func (s *MCPServer) handleRevoke(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	return s.setActive(ctx, request, s.keys.Revoke)
}

func (s *MCPServer) handleRestore(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	return s.setActive(ctx, request, s.keys.Restore)
}

func (s *MCPServer) setActive(
	ctx context.Context,
	request mcp.CallToolRequest,
	apply func(context.Context, string) (model.KeyRecord, error),
) (*mcp.CallToolResult, error) {

	key, err := requireString(request, "key")
	if err != nil {
		return toolError("%v", err)
	}
	rec, err := apply(ctx, key)
	if err != nil {
		return storeError("Update failed", err)
	}
	return successJSON(newKeyInfo(&rec, s.keys.Now()))
}

// storeError turns a keys-service error into a tool error result.
func storeError(prefix string, err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, keys.ErrNotFound):
		return toolError("Key not found")
	case errors.Is(err, store.ErrMalformedData):
		return toolError("%s: key store is malformed: %v", prefix, err)
	case errors.Is(err, store.ErrWriteFailed):
		return toolError("%s: key store could not be written: %v", prefix, err)
	}
	return toolError("%s: %v", prefix, err)
}
