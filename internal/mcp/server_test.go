package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/chatsearch-mcp/internal/app"
	"github.com/dshills/chatsearch-mcp/internal/config"
	"github.com/dshills/chatsearch-mcp/internal/embedder"
	"github.com/dshills/chatsearch-mcp/internal/storage"
)

type toolHandler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		DBPath:    filepath.Join(t.TempDir(), "chat.db"),
		LogLevel:  "info",
		Embedding: config.EmbeddingConfig{Provider: embedder.ProviderLocal},
		Search:    config.SearchConfig{SimilarityThreshold: 0.3, DefaultLimit: 30, MaxLimit: 100},
	}
	a, err := app.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return NewServer(a)
}

// seedCorpus creates two chats: alice and bob share "dinner", carol is alone in "ops"
func seedCorpus(t *testing.T, s *Server) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)

	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, s.storage.CreateUser(ctx, &storage.User{ID: id, DisplayName: id}))
	}
	require.NoError(t, s.storage.CreateChat(ctx, &storage.Chat{ID: "dinner", Name: "Dinner"}))
	require.NoError(t, s.storage.CreateChat(ctx, &storage.Chat{ID: "ops", Name: "Ops"}))
	for _, m := range []*storage.ChatMember{
		{ChatID: "dinner", UserID: "alice"},
		{ChatID: "dinner", UserID: "bob"},
		{ChatID: "ops", UserID: "carol"},
	} {
		require.NoError(t, s.storage.AddChatMember(ctx, m))
	}

	msgs := []struct{ id, chat, sender, content string }{
		{"m1", "dinner", "bob", "pizza at eight?"},
		{"m2", "dinner", "alice", "sure, pizza works"},
		{"m3", "dinner", "bob", "bring napkins"},
		{"m4", "ops", "carol", "pizza budget approved"},
	}
	for i, m := range msgs {
		sender := m.sender
		require.NoError(t, s.storage.CreateMessage(ctx, &storage.Message{
			ID: m.id, ChatID: m.chat, SenderID: &sender, Content: m.content,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	_, err := callTool(t, s.handleIndexMessages, map[string]interface{}{})
	require.NoError(t, err)
}

func callTool(t *testing.T, handler toolHandler, args interface{}) (string, error) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args

	result, err := handler(context.Background(), req)
	if err != nil {
		return "", err
	}
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, nil
}

func assertMCPError(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
}

func TestNewServer(t *testing.T) {
	s := setupTestServer(t)

	assert.NotNil(t, s.mcp, "MCP server should be initialized")
	assert.NotNil(t, s.storage)
	assert.NotNil(t, s.indexer)
	assert.NotNil(t, s.searcher)
	assert.NotNil(t, s.embedder)
}

func TestSearchMessages(t *testing.T) {
	s := setupTestServer(t)
	seedCorpus(t, s)

	text, err := callTool(t, s.handleSearchMessages, map[string]interface{}{
		"user_id": "alice",
		"query":   "pizza",
	})
	require.NoError(t, err)

	var resp searchMessagesResponse
	require.NoError(t, json.Unmarshal([]byte(text), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "m2", resp.Results[0].Message.ID, "newest first")
	assert.Equal(t, "m1", resp.Results[1].Message.ID)
	assert.Equal(t, "Dinner", resp.Results[0].Chat.Name)
	assert.Empty(t, resp.NextCursor)
}

func TestSearchMessages_Pagination(t *testing.T) {
	s := setupTestServer(t)
	seedCorpus(t, s)

	args := map[string]interface{}{"user_id": "bob", "query": "pizza", "mode": "text", "limit": float64(1)}
	text, err := callTool(t, s.handleSearchMessages, args)
	require.NoError(t, err)

	var page1 searchMessagesResponse
	require.NoError(t, json.Unmarshal([]byte(text), &page1))
	require.Len(t, page1.Results, 1)
	require.NotEmpty(t, page1.NextCursor)

	args["cursor"] = page1.NextCursor
	text, err = callTool(t, s.handleSearchMessages, args)
	require.NoError(t, err)

	var page2 searchMessagesResponse
	require.NoError(t, json.Unmarshal([]byte(text), &page2))
	require.Len(t, page2.Results, 1)
	assert.NotEqual(t, page1.Results[0].Message.ID, page2.Results[0].Message.ID)
}

func TestSearchMessages_EmptyQuery(t *testing.T) {
	s := setupTestServer(t)
	seedCorpus(t, s)

	text, err := callTool(t, s.handleSearchMessages, map[string]interface{}{"user_id": "alice", "query": "  "})
	require.NoError(t, err)
	assert.JSONEq(t, `{"results": []}`, text)
}

func TestSearchMessages_Forbidden(t *testing.T) {
	s := setupTestServer(t)
	seedCorpus(t, s)

	_, err := callTool(t, s.handleSearchMessages, map[string]interface{}{
		"user_id": "alice",
		"query":   "pizza",
		"chat_id": "ops",
	})
	assertMCPError(t, err, ErrorCodeForbidden)
	assert.Equal(t, "MCP error -32005: forbidden", err.Error())
}

func TestSearchMessages_InvalidParams(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name string
		args interface{}
	}{
		{"not an object", "pizza"},
		{"missing user", map[string]interface{}{"query": "pizza"}},
		{"missing query", map[string]interface{}{"user_id": "alice"}},
		{"unknown mode", map[string]interface{}{"user_id": "alice", "query": "pizza", "mode": "fuzzy"}},
		{"negative limit", map[string]interface{}{"user_id": "alice", "query": "pizza", "limit": float64(-1)}},
		{"bad date", map[string]interface{}{"user_id": "alice", "query": "pizza", "date_from": "yesterday"}},
		{"bad message types", map[string]interface{}{"user_id": "alice", "query": "pizza", "message_types": []interface{}{"text", 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := callTool(t, s.handleSearchMessages, tt.args)
			assertMCPError(t, err, ErrorCodeInvalidParams)
		})
	}
}

func TestSearchMessages_Filters(t *testing.T) {
	s := setupTestServer(t)
	seedCorpus(t, s)

	text, err := callTool(t, s.handleSearchMessages, map[string]interface{}{
		"user_id":       "alice",
		"query":         "pizza",
		"from_user_id":  "bob",
		"message_types": []interface{}{"text"},
		"date_from":     "2024-05-01T18:00:00Z",
		"date_to":       "2024-05-01T18:00:30Z",
	})
	require.NoError(t, err)

	var resp searchMessagesResponse
	require.NoError(t, json.Unmarshal([]byte(text), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "m1", resp.Results[0].Message.ID)
}

func TestGetMessages(t *testing.T) {
	s := setupTestServer(t)
	seedCorpus(t, s)

	text, err := callTool(t, s.handleGetMessages, map[string]interface{}{
		"user_id":     "alice",
		"message_ids": []interface{}{"m4", "m3", "m1"},
	})
	require.NoError(t, err)

	var resp getMessagesResponse
	require.NoError(t, json.Unmarshal([]byte(text), &resp))
	require.Len(t, resp.Messages, 2, "m4 belongs to a foreign chat")
	assert.Equal(t, "m3", resp.Messages[0].Message.ID)
	assert.Equal(t, "m1", resp.Messages[1].Message.ID)
}

func TestGetMessages_InvalidParams(t *testing.T) {
	s := setupTestServer(t)

	tooMany := make([]interface{}, storage.MaxBatchIDs+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("m%d", i)
	}

	for _, args := range []map[string]interface{}{
		{"message_ids": []interface{}{"m1"}},
		{"user_id": "alice"},
		{"user_id": "alice", "message_ids": []interface{}{}},
		{"user_id": "alice", "message_ids": tooMany},
	} {
		_, err := callTool(t, s.handleGetMessages, args)
		assertMCPError(t, err, ErrorCodeInvalidParams)
	}
}

func TestIndexMessages(t *testing.T) {
	s := setupTestServer(t)
	seedCorpus(t, s)

	// Everything was indexed during seeding
	text, err := callTool(t, s.handleIndexMessages, map[string]interface{}{})
	require.NoError(t, err)
	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &stats))
	assert.Equal(t, float64(0), stats["messages_indexed"])

	text, err = callTool(t, s.handleIndexMessages, map[string]interface{}{"chat_id": "ops", "force": true})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(text), &stats))
	assert.Equal(t, float64(1), stats["messages_indexed"])
	assert.Equal(t, float64(1), stats["embeddings_created"])
	assert.NotContains(t, stats, "errors")
}

func TestGetStatus(t *testing.T) {
	s := setupTestServer(t)
	seedCorpus(t, s)

	text, err := callTool(t, s.handleGetStatus, nil)
	require.NoError(t, err)

	var status struct {
		Statistics struct {
			UsersCount      int    `json:"users_count"`
			ChatsCount      int    `json:"chats_count"`
			MessagesCount   int    `json:"messages_count"`
			DocumentsCount  int    `json:"documents_count"`
			EmbeddingsCount int    `json:"embeddings_count"`
			PendingCount    int    `json:"pending_count"`
			LastIndexedAt   string `json:"last_indexed_at"`
		} `json:"statistics"`
		Embedding struct {
			Provider string `json:"provider"`
		} `json:"embedding"`
		IndexingInProgress bool `json:"indexing_in_progress"`
		Health             struct {
			DatabaseAccessible  bool `json:"database_accessible"`
			EmbeddingsAvailable bool `json:"embeddings_available"`
			FTSIndexesBuilt     bool `json:"fts_indexes_built"`
		} `json:"health"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &status))

	assert.Equal(t, 3, status.Statistics.UsersCount)
	assert.Equal(t, 2, status.Statistics.ChatsCount)
	assert.Equal(t, 4, status.Statistics.MessagesCount)
	assert.Equal(t, 4, status.Statistics.DocumentsCount)
	assert.Equal(t, 4, status.Statistics.EmbeddingsCount)
	assert.Zero(t, status.Statistics.PendingCount)
	assert.NotEmpty(t, status.Statistics.LastIndexedAt)
	assert.Equal(t, embedder.ProviderLocal, status.Embedding.Provider)
	assert.False(t, status.IndexingInProgress)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.True(t, status.Health.EmbeddingsAvailable)
	assert.True(t, status.Health.FTSIndexesBuilt)
}

func TestSearchError(t *testing.T) {
	err := searchError(fmt.Errorf("wrapped: %w", context.Canceled))
	assertMCPError(t, err, ErrorCodeInternalError)
	assert.Equal(t, "MCP error -32603: search failed", err.Error())
}

func TestGetStringSlice(t *testing.T) {
	args := map[string]interface{}{
		"typed":   []string{"a"},
		"generic": []interface{}{"b", "c"},
		"bad":     "d",
	}

	got, err := getStringSlice(args, "typed")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)

	got, err = getStringSlice(args, "generic")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, got)

	got, err = getStringSlice(args, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = getStringSlice(args, "bad")
	assertMCPError(t, err, ErrorCodeInvalidParams)
}
