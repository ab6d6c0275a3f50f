package searcher

import (
	"context"
	"log/slog"
)

// resolveScope returns the chat ids the search may read. An explicit chat
// must be one the user belongs to. A nil, error-free result means the user
// has no chats and the search is empty.
func (s *Searcher) resolveScope(ctx context.Context, log *slog.Logger, userID, chatID string) ([]string, error) {
	if chatID != "" {
		member, err := s.store.IsChatMember(ctx, userID, chatID)
		if err != nil {
			return nil, s.failure(ctx, log, "membership check failed", err)
		}
		if !member {
			log.Info("search denied", "chat_id", chatID)
			return nil, ErrNotAuthorized
		}
		return []string{chatID}, nil
	}

	chatIDs, err := s.store.ListChatIDsForUser(ctx, userID)
	if err != nil {
		return nil, s.failure(ctx, log, "listing chats failed", err)
	}
	if len(chatIDs) == 0 {
		return nil, nil
	}
	return chatIDs, nil
}

// failure logs err and returns the caller-facing error: the context error
// when the request was cancelled, ErrSearchFailed otherwise.
func (s *Searcher) failure(ctx context.Context, log *slog.Logger, msg string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	log.Error(msg, "error", err)
	return ErrSearchFailed
}
