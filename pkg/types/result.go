package types

import "time"

// SearchResult represents a single hydrated search hit
type SearchResult struct {
	Message      Message      `json:"message"`
	Chat         ChatSummary  `json:"chat"`
	Similarity   *float64     `json:"similarity,omitempty"` // Set only when the semantic branch matched
	MatchedField MatchedField `json:"matched_field,omitempty"`
}

// Message is a decrypted message ready for presentation
type Message struct {
	ID            string        `json:"id"`
	ChatID        string        `json:"chat_id"`
	Content       string        `json:"content"`
	MessageType   string        `json:"message_type"`
	Transcription string        `json:"transcription,omitempty"`
	Description   string        `json:"description,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	EditedAt      *time.Time    `json:"edited_at,omitempty"`
	User          UserSummary   `json:"user"`
	ReplyTo       *ReplyPreview `json:"reply_to,omitempty"`
	Reactions     []Reaction    `json:"reactions"`
	Mentions      []Mention     `json:"mentions"`
}

// UserSummary is the sender or mentioned user of a message
type UserSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// ChatSummary is the parent chat of a message
type ChatSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// ReplyPreview is the message a result replies to
type ReplyPreview struct {
	ID          string       `json:"id"`
	Content     string       `json:"content"`
	MessageType string       `json:"message_type"`
	User        *UserSummary `json:"user,omitempty"` // Nil when the replied-to message has no sender
	CreatedAt   time.Time    `json:"created_at"`
}

// Reaction is an emoji reaction left on a message
type Reaction struct {
	UserID string `json:"user_id"`
	Emoji  string `json:"emoji"`
}

// Mention is a user mentioned in a message
type Mention struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// Validate checks if the search result is presentable
func (sr *SearchResult) Validate() error {
	if sr.Message.ID == "" {
		return ErrInvalidMessageID
	}

	if sr.Message.User.ID == "" {
		return ErrMissingSender
	}

	if sr.Chat.ID == "" {
		return ErrMissingChat
	}

	if sr.Similarity != nil && (*sr.Similarity < 0 || *sr.Similarity > 1) {
		return ErrInvalidScore
	}

	if sr.MatchedField != "" {
		if err := sr.MatchedField.Validate(); err != nil {
			return err
		}
	}

	return nil
}
