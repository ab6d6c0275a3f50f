package searcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dshills/chatsearch-mcp/internal/storage"
	"github.com/dshills/chatsearch-mcp/pkg/types"
)

// hydrate loads, decrypts and formats exactly the page's messages. Messages
// without a resolvable sender are dropped, so a page can come back shorter
// than the candidates it was built from. Page order is preserved.
func (s *Searcher) hydrate(ctx context.Context, log *slog.Logger, page []Candidate) ([]types.SearchResult, error) {
	if len(page) == 0 {
		return []types.SearchResult{}, nil
	}

	ids := make([]string, len(page))
	for i, c := range page {
		ids[i] = c.MessageID
	}

	records, err := s.store.GetMessagesByIDs(ctx, ids)
	if err != nil {
		return nil, s.failure(ctx, log, "hydration fetch failed", err)
	}

	byID := make(map[string]*storage.MessageRecord, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	results := make([]types.SearchResult, 0, len(page))
	for _, c := range page {
		rec, ok := byID[c.MessageID]
		if !ok || rec.Sender == nil {
			continue
		}

		result, err := s.toResult(ctx, rec)
		if err != nil {
			return nil, s.failure(ctx, log, "decryption failed", fmt.Errorf("message %s: %w", rec.ID, err))
		}
		result.MatchedField = c.MatchedField
		result.Similarity = c.Similarity
		results = append(results, result)
	}

	return results, nil
}

// toResult converts a hydrated record into a decrypted search result
func (s *Searcher) toResult(ctx context.Context, rec *storage.MessageRecord) (types.SearchResult, error) {
	msg, err := s.decryptMessage(ctx, &rec.Message)
	if err != nil {
		return types.SearchResult{}, err
	}

	msg.User = userSummary(rec.Sender)

	if rec.ReplyTo != nil {
		content, err := s.decrypter.Decrypt(ctx, rec.ReplyTo.Content)
		if err != nil {
			return types.SearchResult{}, fmt.Errorf("reply %s: %w", rec.ReplyTo.ID, err)
		}
		preview := &types.ReplyPreview{
			ID:          rec.ReplyTo.ID,
			Content:     content,
			MessageType: rec.ReplyTo.MessageType,
			CreatedAt:   rec.ReplyTo.CreatedAt,
		}
		if rec.ReplyTo.Sender != nil {
			u := userSummary(rec.ReplyTo.Sender)
			preview.User = &u
		}
		msg.ReplyTo = preview
	}

	msg.Reactions = make([]types.Reaction, len(rec.Reactions))
	for i, r := range rec.Reactions {
		msg.Reactions[i] = types.Reaction{UserID: r.UserID, Emoji: r.Emoji}
	}
	msg.Mentions = make([]types.Mention, len(rec.Mentions))
	for i, m := range rec.Mentions {
		msg.Mentions[i] = types.Mention{UserID: m.UserID, DisplayName: m.DisplayName}
	}

	return types.SearchResult{
		Message: msg,
		Chat: types.ChatSummary{
			ID:    rec.Chat.ID,
			Name:  rec.Chat.Name,
			Image: rec.Chat.ImageURL,
		},
	}, nil
}

// decryptMessage decrypts every text field that may be stored encrypted
func (s *Searcher) decryptMessage(ctx context.Context, m *storage.Message) (types.Message, error) {
	msg := types.Message{
		ID:          m.ID,
		ChatID:      m.ChatID,
		MessageType: m.MessageType,
		CreatedAt:   m.CreatedAt,
		EditedAt:    m.EditedAt,
	}

	fields := []struct {
		src string
		dst *string
	}{
		{m.Content, &msg.Content},
		{m.Transcription, &msg.Transcription},
		{m.Description, &msg.Description},
	}
	for _, f := range fields {
		if f.src == "" {
			continue
		}
		plain, err := s.decrypter.Decrypt(ctx, f.src)
		if err != nil {
			return types.Message{}, err
		}
		*f.dst = plain
	}

	return msg, nil
}

func userSummary(u *storage.User) types.UserSummary {
	return types.UserSummary{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}
