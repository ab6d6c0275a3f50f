package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/chatsearch-mcp/internal/storage"
	"github.com/dshills/chatsearch-mcp/pkg/types"
)

// searchMessagesTool returns the tool definition for search_messages
func searchMessagesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_messages",
		Description: "Search chat messages the user can read, combining semantic and keyword matching. Results are newest first.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "Id of the user searching; only chats they belong to are searched",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords). Blank returns no results",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Retrieval strategy: hybrid (semantic + keyword), semantic (embeddings only), or text (keywords only)",
					"enum":        []types.SearchMode{types.ModeHybrid, types.ModeSemantic, types.ModeText},
					"default":     types.ModeHybrid,
				},
				"chat_id": map[string]interface{}{
					"type":        "string",
					"description": "Restrict the search to one chat the user belongs to",
				},
				"from_user_id": map[string]interface{}{
					"type":        "string",
					"description": "Only messages sent by this user",
				},
				"message_types": map[string]interface{}{
					"type":        "array",
					"description": "Only these message types (e.g. text, voice, image)",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"date_from": map[string]interface{}{
					"type":        "string",
					"format":      "date-time",
					"description": "Earliest creation time, inclusive (RFC 3339)",
				},
				"date_to": map[string]interface{}{
					"type":        "string",
					"format":      "date-time",
					"description": "Latest creation time, inclusive (RFC 3339)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Page size (default 30, capped at 100)",
					"minimum":     1,
					"maximum":     storage.MaxBatchIDs,
				},
				"cursor": map[string]interface{}{
					"type":        "string",
					"description": "next_cursor from the previous page",
				},
			},
			Required: []string{"user_id", "query"},
		},
	}
}

// getMessagesTool returns the tool definition for get_messages
func getMessagesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_messages",
		Description: "Fetch messages by id. Messages in chats the user does not belong to are omitted",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "Id of the requesting user",
				},
				"message_ids": map[string]interface{}{
					"type":        "array",
					"description": "Message ids to fetch",
					"items": map[string]interface{}{
						"type": "string",
					},
					"minItems": 1,
					"maxItems": storage.MaxBatchIDs,
				},
			},
			Required: []string{"user_id", "message_ids"},
		},
	}
}

// indexMessagesTool returns the tool definition for index_messages
func indexMessagesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_messages",
		Description: "Build or update the search index for new and edited messages",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"chat_id": map[string]interface{}{
					"type":        "string",
					"description": "Only index this chat",
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, re-index every message ignoring content hashes (full rebuild)",
					"default":     false,
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Corpus and index statistics with health checks",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
