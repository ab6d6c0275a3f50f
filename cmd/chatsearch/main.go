// Command chatsearch serves hybrid chat message search over MCP and offers
// maintenance commands for importing, indexing and querying a corpus.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/chatsearch-mcp/internal/app"
	"github.com/dshills/chatsearch-mcp/internal/config"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configFile string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chatsearch",
	Short: "Hybrid search over chat messages",
	Long: `chatsearch indexes chat messages for keyword (FTS5) and semantic
(embedding) retrieval and serves permission-scoped search to MCP clients.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./chatsearch.yaml or ~/.chatsearch/chatsearch.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

// loadConfig reads configuration and installs the stderr logger.
// Stdout is left alone; serve uses it for the MCP protocol.
func loadConfig(cmd *cobra.Command, _ []string) error {
	if cmd == versionCmd {
		return nil
	}

	loaded, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.LogLevel = logLevel
	}
	level, err := loaded.SlogLevel()
	if err != nil {
		return err
	}

	cfg = loaded
	logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// openApp builds the application from the loaded configuration
func openApp() (*app.App, error) {
	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.DBPath, err)
	}
	return a, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	// Command output is for the user; cobra defaults it to stderr
	rootCmd.SetOut(os.Stdout)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
