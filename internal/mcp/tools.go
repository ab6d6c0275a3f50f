package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/chatsearch-mcp/internal/indexer"
	"github.com/dshills/chatsearch-mcp/internal/searcher"
	"github.com/dshills/chatsearch-mcp/internal/storage"
	"github.com/dshills/chatsearch-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeForbidden          = -32005 // Caller may not read the requested chat
)

// searchMessagesResponse is the search_messages payload
type searchMessagesResponse struct {
	Results    []types.SearchResult `json:"results"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// getMessagesResponse is the get_messages payload
type getMessagesResponse struct {
	Messages []types.SearchResult `json:"messages"`
}

// handleSearchMessages handles the search_messages tool invocation
func (s *Server) handleSearchMessages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	userID, err := requireString(args, "user_id")
	if err != nil {
		return nil, err
	}

	query, ok := args["query"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required", map[string]interface{}{
			"param":  "query",
			"reason": "missing or not a string",
		})
	}

	mode, err := types.ParseSearchMode(getStringDefault(args, "mode", ""))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"value":   args["mode"],
			"allowed": []types.SearchMode{types.ModeHybrid, types.ModeSemantic, types.ModeText},
		})
	}

	limit := getIntDefault(args, "limit", 0)
	if limit < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be positive", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	messageTypes, err := getStringSlice(args, "message_types")
	if err != nil {
		return nil, err
	}
	dateFrom, err := getTime(args, "date_from")
	if err != nil {
		return nil, err
	}
	dateTo, err := getTime(args, "date_to")
	if err != nil {
		return nil, err
	}

	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
		UserID:       userID,
		Query:        query,
		Mode:         mode,
		ChatID:       getStringDefault(args, "chat_id", ""),
		FromUserID:   getStringDefault(args, "from_user_id", ""),
		MessageTypes: messageTypes,
		DateFrom:     dateFrom,
		DateTo:       dateTo,
		Limit:        limit,
		Cursor:       getStringDefault(args, "cursor", ""),
	})
	if err != nil {
		return nil, searchError(err)
	}

	return mcp.NewToolResultText(formatJSON(searchMessagesResponse{
		Results:    resp.Results,
		NextCursor: resp.NextCursor,
	})), nil
}

// handleGetMessages handles the get_messages tool invocation
func (s *Server) handleGetMessages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	userID, err := requireString(args, "user_id")
	if err != nil {
		return nil, err
	}

	ids, err := getStringSlice(args, "message_ids")
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "message_ids parameter is required", map[string]interface{}{
			"param":  "message_ids",
			"reason": "missing or empty",
		})
	}
	if len(ids) > storage.MaxBatchIDs {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("at most %d message ids per call", storage.MaxBatchIDs), map[string]interface{}{
			"param": "message_ids",
			"value": len(ids),
		})
	}

	results, err := s.searcher.GetMessages(ctx, userID, ids)
	if err != nil {
		return nil, searchError(err)
	}

	return mcp.NewToolResultText(formatJSON(getMessagesResponse{Messages: results})), nil
}

// handleIndexMessages handles the index_messages tool invocation
func (s *Server) handleIndexMessages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		// No arguments at all is a full incremental run
		args = map[string]interface{}{}
	}

	config := &indexer.Config{
		ChatID: getStringDefault(args, "chat_id", ""),
		Force:  getBoolDefault(args, "force", false),
	}

	stats, err := s.indexer.IndexMessages(ctx, config)
	if errors.Is(err, indexer.ErrIndexInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}
	if err != nil {
		s.logger.Error("indexing failed", "chat_id", config.ChatID, "error", err)
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", nil)
	}

	response := map[string]interface{}{
		"messages_indexed":   stats.MessagesIndexed,
		"messages_skipped":   stats.MessagesSkipped,
		"messages_failed":    stats.MessagesFailed,
		"embeddings_created": stats.EmbeddingsCreated,
		"duration_ms":        stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		s.logger.Error("status query failed", "error", err)
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", nil)
	}

	lastIndexed := ""
	if !status.LastIndexedAt.IsZero() {
		lastIndexed = status.LastIndexedAt.Format(time.RFC3339)
	}

	response := map[string]interface{}{
		"statistics": map[string]interface{}{
			"users_count":      status.UsersCount,
			"chats_count":      status.ChatsCount,
			"messages_count":   status.MessagesCount,
			"documents_count":  status.DocumentsCount,
			"embeddings_count": status.EmbeddingsCount,
			"pending_count":    status.PendingCount,
			"index_size_mb":    fmt.Sprintf("%.2f", status.IndexSizeMB),
			"last_indexed_at":  lastIndexed,
		},
		"embedding": map[string]interface{}{
			"provider":  s.embedder.Provider(),
			"model":     s.embedder.Model(),
			"dimension": s.embedder.Dimension(),
		},
		"indexing_in_progress": s.indexer.Running(),
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
			"fts_indexes_built":    status.Health.FTSIndexesBuilt,
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// searchError maps searcher errors onto MCP errors. Backend details never
// reach the client; the searcher has already logged them.
func searchError(err error) error {
	switch {
	case errors.Is(err, searcher.ErrNotAuthorized):
		return newMCPError(ErrorCodeForbidden, "forbidden", nil)
	case errors.Is(err, searcher.ErrInvalidRequest):
		return newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	default:
		return newMCPError(ErrorCodeInternalError, "search failed", nil)
	}
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// requireString extracts a non-empty string parameter
func requireString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || val == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return val, nil
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an optional array of strings
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}

	invalid := newMCPError(ErrorCodeInvalidParams, key+" must be an array of strings", map[string]interface{}{
		"param": key,
	})

	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, invalid
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, invalid
	}
}

// getTime extracts an optional RFC 3339 timestamp
func getTime(args map[string]interface{}, key string) (*time.Time, error) {
	raw := getStringDefault(args, key, "")
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, key+" must be an RFC 3339 timestamp", map[string]interface{}{
			"param": key,
			"value": raw,
		})
	}
	return &t, nil
}
