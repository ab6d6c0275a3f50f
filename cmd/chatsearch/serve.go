package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/dshills/chatsearch-mcp/internal/mcp"
	"github.com/dshills/chatsearch-mcp/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Starts the MCP server. Requests are read from stdin and responses written
to stdout; logs go to stderr. The server stops on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("chatsearch MCP server starting",
		"version", version,
		"build_mode", storage.BuildMode,
		"driver", storage.DriverName,
		"db_path", cfg.DBPath,
	)

	err = mcp.NewServer(a).Serve(cmd.Context())
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}
