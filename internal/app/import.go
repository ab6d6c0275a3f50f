package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dshills/chatsearch-mcp/internal/cipher"
	"github.com/dshills/chatsearch-mcp/internal/storage"
)

// Export is the JSON document accepted by Import
type Export struct {
	Users    []ExportUser    `json:"users"`
	Chats    []ExportChat    `json:"chats"`
	Messages []ExportMessage `json:"messages"`
}

type ExportUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

type ExportChat struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	ImageURL string   `json:"image_url"`
	IsGroup  bool     `json:"is_group"`
	Members  []string `json:"members"`
}

type ExportMessage struct {
	ID            string           `json:"id"`
	ChatID        string           `json:"chat_id"`
	SenderID      *string          `json:"sender_id"`
	Content       string           `json:"content"`
	MessageType   string           `json:"message_type"`
	Transcription string           `json:"transcription"`
	Description   string           `json:"description"`
	ReplyToID     *string          `json:"reply_to_id"`
	CreatedAt     time.Time        `json:"created_at"`
	EditedAt      *time.Time       `json:"edited_at"`
	Reactions     []ExportReaction `json:"reactions"`
	Mentions      []string         `json:"mentions"` // User ids
}

type ExportReaction struct {
	UserID string `json:"user_id"`
	Emoji  string `json:"emoji"`
}

// ImportStats counts imported rows
type ImportStats struct {
	Users     int
	Chats     int
	Members   int
	Messages  int
	Reactions int
	Mentions  int
}

// Import loads an export in a single transaction. With a non-nil box the
// message text fields are encrypted before they are stored.
func (a *App) Import(ctx context.Context, r io.Reader, box *cipher.Box) (*ImportStats, error) {
	var export Export
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to decode export: %w", err)
	}

	// Oldest first so reply targets exist before their replies
	sort.SliceStable(export.Messages, func(i, j int) bool {
		return export.Messages[i].CreatedAt.Before(export.Messages[j].CreatedAt)
	})

	tx, err := a.Storage.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stats := &ImportStats{}
	if err := importCorpus(ctx, tx, &export, box, stats); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}

	a.Logger.Info("import complete",
		"users", stats.Users,
		"chats", stats.Chats,
		"messages", stats.Messages,
		"encrypted", box != nil,
	)
	return stats, nil
}

func importCorpus(ctx context.Context, tx storage.Tx, export *Export, box *cipher.Box, stats *ImportStats) error {
	for _, u := range export.Users {
		if err := tx.CreateUser(ctx, &storage.User{ID: u.ID, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}); err != nil {
			return fmt.Errorf("user %s: %w", u.ID, err)
		}
		stats.Users++
	}

	for _, c := range export.Chats {
		if err := tx.CreateChat(ctx, &storage.Chat{ID: c.ID, Name: c.Name, ImageURL: c.ImageURL, IsGroup: c.IsGroup}); err != nil {
			return fmt.Errorf("chat %s: %w", c.ID, err)
		}
		stats.Chats++
		for _, userID := range c.Members {
			if err := tx.AddChatMember(ctx, &storage.ChatMember{ChatID: c.ID, UserID: userID}); err != nil {
				return fmt.Errorf("chat %s member %s: %w", c.ID, userID, err)
			}
			stats.Members++
		}
	}

	for _, m := range export.Messages {
		msg := &storage.Message{
			ID:            m.ID,
			ChatID:        m.ChatID,
			SenderID:      m.SenderID,
			Content:       m.Content,
			MessageType:   m.MessageType,
			Transcription: m.Transcription,
			Description:   m.Description,
			ReplyToID:     m.ReplyToID,
			CreatedAt:     m.CreatedAt,
			EditedAt:      m.EditedAt,
		}
		if box != nil {
			if err := sealMessage(box, msg); err != nil {
				return fmt.Errorf("message %s: %w", m.ID, err)
			}
		}
		if err := tx.CreateMessage(ctx, msg); err != nil {
			return fmt.Errorf("message %s: %w", m.ID, err)
		}
		stats.Messages++

		for _, r := range m.Reactions {
			if err := tx.AddReaction(ctx, &storage.Reaction{MessageID: msg.ID, UserID: r.UserID, Emoji: r.Emoji}); err != nil {
				return fmt.Errorf("message %s reaction: %w", m.ID, err)
			}
			stats.Reactions++
		}
		for _, userID := range m.Mentions {
			if err := tx.AddMention(ctx, &storage.Mention{MessageID: msg.ID, UserID: userID}); err != nil {
				return fmt.Errorf("message %s mention: %w", m.ID, err)
			}
			stats.Mentions++
		}
	}
	return nil
}

// sealMessage encrypts the non-empty text fields of msg in place
func sealMessage(box *cipher.Box, msg *storage.Message) error {
	for _, field := range []*string{&msg.Content, &msg.Transcription, &msg.Description} {
		if *field == "" {
			continue
		}
		sealed, err := box.Encrypt(*field)
		if err != nil {
			return err
		}
		*field = sealed
	}
	return nil
}
