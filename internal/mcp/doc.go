// Package mcp implements the Model Context Protocol (MCP) server for chatsearch.
//
// The MCP server exposes four tools:
//   - search_messages: hybrid search over the chats a user belongs to
//   - get_messages: fetch messages by id, filtered by membership
//   - index_messages: build or update the search index
//   - get_status: corpus statistics and health
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started via the serve command:
//
//	chatsearch serve
//
// # Tool: search_messages
//
//	Request:
//	{
//	  "name": "search_messages",
//	  "arguments": {
//	    "user_id": "user-42",
//	    "query": "pizza",
//	    "mode": "hybrid",
//	    "limit": 20
//	  }
//	}
//
//	Response:
//	{
//	  "results": [
//	    {
//	      "message": {
//	        "id": "abc123",
//	        "content": "pizza at eight?",
//	        "user": {"id": "user-7", "display_name": "Sam"},
//	        "reactions": [],
//	        "mentions": []
//	      },
//	      "chat": {"id": "chat-1", "name": "Friday plans"},
//	      "similarity": 0.9,
//	      "matched_field": "content"
//	    }
//	  ],
//	  "next_cursor": "2024-05-01T09:03:00.000Z"
//	}
//
// Pass next_cursor back as cursor for the following page. It is omitted
// on the last page.
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "chatsearch": {
//	      "command": "/usr/local/bin/chatsearch",
//	      "args": ["serve"],
//	      "env": {
//	        "CHATSEARCH_DB_PATH": "/var/lib/chatsearch/chat.db",
//	        "CHATSEARCH_EMBEDDING_API_KEY": "your-api-key"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments, unknown mode)
//   - -32603: Internal error; search failures carry no backend details
//   - -32002: Indexing in progress
//   - -32005: Forbidden (chat_id names a chat the user is not in)
//
// An empty query or a user without chats is not an error; the result list
// is empty.
//
// # Logging
//
// The server logs to stderr through log/slog; stdout is reserved for the
// MCP protocol.
package mcp
