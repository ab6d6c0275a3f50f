package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/chatsearch-mcp/internal/cipher"
)

var importEncrypt bool

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Load users, chats and messages from a JSON export",
	Long: `Imports a JSON export with "users", "chats" and "messages" arrays in a
single transaction. With --encrypt, message content, transcriptions and
descriptions are sealed with the configured encryption key before storage.
Run "chatsearch index" afterwards to make the messages searchable.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importEncrypt, "encrypt", false, "encrypt message text with the configured key")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	var box *cipher.Box
	if importEncrypt {
		if cfg.EncryptionKey == "" {
			return errors.New("--encrypt requires encryption_key to be configured")
		}
		var err error
		box, err = cipher.NewBoxFromBase64(cfg.EncryptionKey)
		if err != nil {
			return fmt.Errorf("invalid encryption key: %w", err)
		}
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.Import(cmd.Context(), f, box)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	cmd.Printf("Imported %d users, %d chats (%d members), %d messages (%d reactions, %d mentions)\n",
		stats.Users, stats.Chats, stats.Members, stats.Messages, stats.Reactions, stats.Mentions)
	return nil
}
