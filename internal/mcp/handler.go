package mcp

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/maxkornevpro/key/internal/keys"
	"github.com/maxkornevpro/key/internal/model"
)

// --------------------------------------------------------------------------
// Parameter extraction helpers
// --------------------------------------------------------------------------

// requireString extracts a required, non-empty string argument.
func requireString(request mcp.CallToolRequest, key string) (string, error) {
	val, err := request.RequireString(key)
	if err != nil || val == "" {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	return val, nil
}

// optionalString extracts an optional string argument from the tool request.
func optionalString(request mcp.CallToolRequest, key string) string {
	return request.GetString(key, "")
}

// optionalInt extracts an optional integer argument from the tool request.
func optionalInt(request mcp.CallToolRequest, key string, defaultVal int) int {
	return request.GetInt(key, defaultVal)
}

// requireInt64 extracts a whole-number argument. JSON numbers arrive as
// float64; numeric strings are accepted for ids too large for a client's
// number type.
func requireInt64(request mcp.CallToolRequest, key string) (int64, error) {
	args := request.GetArguments()
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, fmt.Errorf("missing required parameter %q", key)
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > 1<<53 {
			return 0, fmt.Errorf("parameter %q must be a whole number", key)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %q must be a whole number", key)
		}
		return n, nil
	}
	return 0, fmt.Errorf("parameter %q must be a number", key)
}

// --------------------------------------------------------------------------
// Response builders
// --------------------------------------------------------------------------

// keyInfo is the tool-facing view of a record.
type keyInfo struct {
	Key            string           `json:"key"`
	UserID         int64            `json:"user_id"`
	Username       string           `json:"username"`
	CreatedAt      model.Timestamp  `json:"created_at"`
	ExpiresAt      *model.Timestamp `json:"expires_at"`
	Duration       string           `json:"duration"`
	Active         bool             `json:"active"`
	CreatedByAdmin bool             `json:"created_by_admin"`
	Valid          bool             `json:"valid"`
}

func newKeyInfo(rec *model.KeyRecord, now time.Time) keyInfo {
	return keyInfo{
		Key:            rec.Key,
		UserID:         rec.UserID,
		Username:       rec.Username,
		CreatedAt:      rec.CreatedAt,
		ExpiresAt:      rec.ExpiresAt,
		Duration:       rec.Duration,
		Active:         rec.Active,
		CreatedByAdmin: rec.CreatedByAdmin,
		Valid:          keys.Usable(rec, now),
	}
}

// successJSON marshals data to JSON and returns it as a tool result.
func successJSON(data interface{}) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError returns a tool-level error result. Errors returned this way are
// visible to the model so it can self-correct; they do not end the session.
func toolError(format string, args ...interface{}) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...)), nil
}

// clamp constrains val to [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
