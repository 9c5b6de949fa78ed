package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	statsURI       = "key://stats"
	userKeysPrefix = "key://users/"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	// key://stats: per-user key counts
	srv.AddResource(
		mcp.NewResource(
			statsURI,
			"Key Holders",
			mcp.WithResourceDescription(
				"Every user holding keys, with the number of keys and how many are unexpired.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleStatsResource,
	)

	// key://users/{user_id}/keys: one user's keys (template)
	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			userKeysPrefix+"{user_id}/keys",
			"User Keys",
			mcp.WithTemplateDescription(
				"All keys held by one user in issue order, with their current validity.",
			),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleUserKeysResource,
	)
}

func (s *MCPServer) handleStatsResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	stats, err := s.keys.UserStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute user stats: %w", err)
	}
	return jsonContents(statsURI, stats)
}

func (s *MCPServer) handleUserKeysResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	uri := request.Params.URI
	userID, err := parseUserKeysURI(uri)
	if err != nil {
		return nil, err
	}

	list, err := s.keys.UserKeys(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys for user %d: %w", userID, err)
	}
	now := s.keys.Now()
	items := make([]keyInfo, len(list))
	for i := range list {
		items[i] = newKeyInfo(&list[i].KeyRecord, now)
	}
	return jsonContents(uri, items)
}

// parseUserKeysURI extracts the user id from "key://users/{user_id}/keys".
func parseUserKeysURI(uri string) (int64, error) {
	rest, ok := strings.CutPrefix(uri, userKeysPrefix)
	if ok {
		rest, ok = strings.CutSuffix(rest, "/keys")
	}
	if !ok || rest == "" {
		return 0, fmt.Errorf("invalid resource URI %q: expected %s{user_id}/keys", uri, userKeysPrefix)
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q in resource URI", rest)
	}
	return id, nil
}

func jsonContents(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
