package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/chatsearch-mcp/internal/indexer"
)

var (
	indexChat  string
	indexForce bool
	indexLimit int
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index new and edited messages",
	Long: `Builds search documents and embeddings for messages that were never
indexed or were edited since. --force rebuilds everything.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexChat, "chat", "", "only index this chat")
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "re-index every message")
	indexCmd.Flags().IntVar(&indexLimit, "limit", 0, "maximum messages to process (0 = all)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.Indexer.IndexMessages(cmd.Context(), &indexer.Config{
		ChatID: indexChat,
		Force:  indexForce,
		Limit:  indexLimit,
	})
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	cmd.Printf("Indexed %d messages (%d unchanged, %d failed), %d embeddings in %s\n",
		stats.MessagesIndexed, stats.MessagesSkipped, stats.MessagesFailed,
		stats.EmbeddingsCreated, stats.Duration.Round(time.Millisecond))
	for i, msg := range stats.ErrorMessages {
		if i == 5 {
			cmd.Printf("  ... and %d more\n", len(stats.ErrorMessages)-i)
			break
		}
		cmd.Printf("  %s\n", msg)
	}
	return nil
}
