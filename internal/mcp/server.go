package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/chatsearch-mcp/internal/app"
	"github.com/dshills/chatsearch-mcp/internal/embedder"
	"github.com/dshills/chatsearch-mcp/internal/indexer"
	"github.com/dshills/chatsearch-mcp/internal/searcher"
	"github.com/dshills/chatsearch-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "chatsearch-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	embedder embedder.Embedder
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	logger   *slog.Logger
}

// NewServer creates a new MCP server over the application's components
func NewServer(a *app.App) *Server {
	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:      mcpServer,
		storage:  a.Storage,
		embedder: a.Embedder,
		indexer:  a.Indexer,
		searcher: a.Searcher,
		logger:   a.Logger.With("component", "mcp"),
	}

	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until ctx is done or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchMessagesTool(), s.handleSearchMessages)
	s.mcp.AddTool(getMessagesTool(), s.handleGetMessages)
	s.mcp.AddTool(indexMessagesTool(), s.handleIndexMessages)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
