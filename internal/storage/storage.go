package storage

import (
	"context"
	"time"
)

// MaxBatchIDs caps bulk-by-id lookups
const MaxBatchIDs = 100

// Storage defines the interface for persisting and querying the chat corpus
type Storage interface {
	// User operations
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, userID string) (*User, error)

	// Chat operations
	CreateChat(ctx context.Context, chat *Chat) error
	GetChat(ctx context.Context, chatID string) (*Chat, error)
	AddChatMember(ctx context.Context, member *ChatMember) error
	IsChatMember(ctx context.Context, userID, chatID string) (bool, error)
	ListChatIDsForUser(ctx context.Context, userID string) ([]string, error)

	// Message operations
	CreateMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, messageID string) (*Message, error)
	GetMessagesByIDs(ctx context.Context, messageIDs []string) ([]*MessageRecord, error)
	ListMessagesForIndexing(ctx context.Context, chatID string, force bool, limit int) ([]*Message, error)
	AddReaction(ctx context.Context, reaction *Reaction) error
	AddMention(ctx context.Context, mention *Mention) error

	// Index operations
	GetSearchDocument(ctx context.Context, messageID string) (*SearchDocument, error)
	UpsertSearchDocument(ctx context.Context, doc *SearchDocument) error
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
	DeleteEmbeddingsByMessage(ctx context.Context, messageID string) error

	// Search operations
	SearchVector(ctx context.Context, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error)
	SearchText(ctx context.Context, query string, limit int, filters *SearchFilters) ([]TextResult, error)

	// Status operations
	GetStatus(ctx context.Context) (*CorpusStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// User represents a chat participant
type User struct {
	ID          string
	DisplayName string
	AvatarURL   string
	CreatedAt   time.Time
}

// Chat represents a direct or group conversation
type Chat struct {
	ID        string
	Name      string
	ImageURL  string
	IsGroup   bool
	CreatedAt time.Time
}

// ChatMember grants a user read access to a chat's messages
type ChatMember struct {
	ChatID   string
	UserID   string
	Role     string
	JoinedAt time.Time
}

// Message represents a stored chat message
type Message struct {
	ID            string
	ChatID        string
	SenderID      *string // Nullable - system and assistant messages have no sender
	Content       string  // May be encrypted at rest
	MessageType   string
	Transcription string // Voice note transcription
	Description   string // Generated image description
	ReplyToID     *string
	CreatedAt     time.Time
	EditedAt      *time.Time
}

// Reaction is an emoji reaction on a message
type Reaction struct {
	MessageID string
	UserID    string
	Emoji     string
	CreatedAt time.Time
}

// Mention links a message to a mentioned user
type Mention struct {
	MessageID string
	UserID    string
}

// MentionRecord is a mention with the mentioned user's display name
type MentionRecord struct {
	UserID      string
	DisplayName string
}

// MessageRecord is a message with its associations joined in
type MessageRecord struct {
	Message
	Sender    *User // Nil when sender_id is null or the user no longer exists
	Chat      Chat
	ReplyTo   *MessageRecord // Shallow: only Sender is populated
	Reactions []Reaction
	Mentions  []MentionRecord
}

// SearchDocument is the plaintext full-text document for a message
type SearchDocument struct {
	MessageID     string
	Content       string
	Transcription string
	Description   string
	ContentHash   [32]byte
	IndexedAt     time.Time
}

// Embedding represents a vector embedding for one field of a message
type Embedding struct {
	ID        int64
	MessageID string
	Field     string
	Vector    []byte // Serialized float32 array
	Dimension int
	Provider  string
	Model     string
	CreatedAt time.Time
}

// SearchFilters scopes a search. An empty ChatIDs slice matches nothing.
type SearchFilters struct {
	ChatIDs       []string
	SenderID      string
	MessageTypes  []string
	DateFrom      *time.Time // Inclusive
	DateTo        *time.Time // Inclusive
	MinSimilarity float64    // Vector search only
}

// VectorResult represents the best-matching field of a message from vector search
type VectorResult struct {
	MessageID       string
	Field           string
	SimilarityScore float64
	CreatedAt       time.Time
}

// TextResult represents a result from full-text search
type TextResult struct {
	MessageID string
	Field     string
	BM25Score float64 // Normalized to (0, 1], higher is better
	CreatedAt time.Time
}

// CorpusStatus contains statistics about the stored corpus
type CorpusStatus struct {
	UsersCount      int
	ChatsCount      int
	MessagesCount   int
	DocumentsCount  int
	EmbeddingsCount int
	PendingCount    int
	IndexSizeMB     float64
	LastIndexedAt   time.Time
	Health          HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	FTSIndexesBuilt     bool
}

// toMillis converts a time to the unix-millisecond column representation
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// fromMillis converts a unix-millisecond column back to a UTC time
func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
