package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dshills/chatsearch-mcp/internal/searcher"
	"github.com/dshills/chatsearch-mcp/pkg/types"
)

var (
	searchUser     string
	searchMode     string
	searchChat     string
	searchFrom     string
	searchTypes    []string
	searchDateFrom string
	searchDateTo   string
	searchLimit    int
	searchCursor   string
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search messages as a user",
	Long: `Runs a permission-scoped search over the chats --user belongs to.
The default hybrid mode combines semantic (embedding) and keyword (BM25)
retrieval. Results are newest first; pass the printed cursor to --cursor
for the next page.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchUser, "user", "u", "", "id of the searching user (required)")
	searchCmd.Flags().StringVarP(&searchMode, "mode", "m", string(types.ModeHybrid), "hybrid, semantic or text")
	searchCmd.Flags().StringVar(&searchChat, "chat", "", "restrict to one chat")
	searchCmd.Flags().StringVar(&searchFrom, "from", "", "only messages sent by this user id")
	searchCmd.Flags().StringSliceVar(&searchTypes, "type", nil, "only these message types")
	searchCmd.Flags().StringVar(&searchDateFrom, "since", "", "earliest creation time (RFC 3339)")
	searchCmd.Flags().StringVar(&searchDateTo, "until", "", "latest creation time (RFC 3339)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "page size (default 30, max 100)")
	searchCmd.Flags().StringVar(&searchCursor, "cursor", "", "cursor from a previous page")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	_ = searchCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	mode, err := types.ParseSearchMode(searchMode)
	if err != nil {
		return err
	}
	dateFrom, err := parseFlagTime("since", searchDateFrom)
	if err != nil {
		return err
	}
	dateTo, err := parseFlagTime("until", searchDateTo)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Searcher.Search(cmd.Context(), searcher.SearchRequest{
		UserID:       searchUser,
		Query:        args[0],
		Mode:         mode,
		ChatID:       searchChat,
		FromUserID:   searchFrom,
		MessageTypes: searchTypes,
		DateFrom:     dateFrom,
		DateTo:       dateTo,
		Limit:        searchLimit,
		Cursor:       searchCursor,
	})
	if err != nil {
		return err
	}

	if searchJSON {
		return outputSearchJSON(cmd, resp)
	}
	outputSearchText(cmd, resp)
	return nil
}

func parseFlagTime(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, fmt.Errorf("--%s must be an RFC 3339 timestamp: %w", name, err)
	}
	return &t, nil
}

func outputSearchJSON(cmd *cobra.Command, resp *searcher.SearchResponse) error {
	data, err := json.MarshalIndent(struct {
		Results    []types.SearchResult `json:"results"`
		NextCursor string               `json:"next_cursor,omitempty"`
	}{resp.Results, resp.NextCursor}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchText(cmd *cobra.Command, resp *searcher.SearchResponse) {
	if len(resp.Results) == 0 {
		cmd.Println("No results found.")
		return
	}

	bold := color.New(color.Bold).SprintFunc()
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	for i, r := range resp.Results {
		msg := r.Message
		header := fmt.Sprintf("[%d] %s  %s  %s",
			i+1, msg.CreatedAt.Local().Format("2006-01-02 15:04"), cyan(r.Chat.Name), bold(msg.User.DisplayName))
		if r.Similarity != nil {
			header += faint(fmt.Sprintf("  (%.2f)", *r.Similarity))
		}
		cmd.Println(header)

		cmd.Printf("    %s\n", strings.ReplaceAll(displayText(r), "\n", "\n    "))
		if msg.ReplyTo != nil {
			cmd.Printf("    %s\n", faint("↳ in reply to: "+msg.ReplyTo.Content))
		}
	}

	cmd.Println()
	cmd.Printf("%d results in %s\n", len(resp.Results), resp.Duration.Round(time.Millisecond))
	if resp.NextCursor != "" {
		cmd.Printf("More results: --cursor %s\n", resp.NextCursor)
	}
}

// displayText picks the field worth showing: the one that matched, else the
// first non-empty one
func displayText(r types.SearchResult) string {
	msg := r.Message
	switch {
	case r.MatchedField == types.MatchedTranscription, msg.Content == "" && msg.Transcription != "":
		return "[voice] " + msg.Transcription
	case r.MatchedField == types.MatchedDescription, msg.Content == "" && msg.Description != "":
		return "[image] " + msg.Description
	default:
		return msg.Content
	}
}
