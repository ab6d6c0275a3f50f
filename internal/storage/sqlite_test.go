package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	return storage
}

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

// seedChat creates alice and bob sharing chat-1, plus carol alone in chat-2
func seedChat(t *testing.T, s *SQLiteStorage) {
	t.Helper()
	ctx := context.Background()

	for _, u := range []*User{
		{ID: "alice", DisplayName: "Alice", AvatarURL: "https://img/alice.png"},
		{ID: "bob", DisplayName: "Bob"},
		{ID: "carol", DisplayName: "Carol"},
	} {
		require.NoError(t, s.CreateUser(ctx, u))
	}
	require.NoError(t, s.CreateChat(ctx, &Chat{ID: "chat-1", Name: "Dinner", IsGroup: true}))
	require.NoError(t, s.CreateChat(ctx, &Chat{ID: "chat-2", Name: "Private"}))
	require.NoError(t, s.AddChatMember(ctx, &ChatMember{ChatID: "chat-1", UserID: "alice"}))
	require.NoError(t, s.AddChatMember(ctx, &ChatMember{ChatID: "chat-1", UserID: "bob"}))
	require.NoError(t, s.AddChatMember(ctx, &ChatMember{ChatID: "chat-2", UserID: "carol"}))
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	assert.NotNil(t, storage)
	assert.NotNil(t, storage.db)
}

func TestClose(t *testing.T) {
	storage := setupTestDB(t)
	err := storage.Close()
	assert.NoError(t, err)
}

func TestCreateUser(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	user := &User{DisplayName: "Dana"}
	require.NoError(t, storage.CreateUser(ctx, user))
	assert.NotEmpty(t, user.ID)

	retrieved, err := storage.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dana", retrieved.DisplayName)

	// Duplicate id violates the primary key
	err = storage.CreateUser(ctx, &User{ID: user.ID, DisplayName: "Other"})
	assert.Error(t, err)

	err = storage.CreateUser(ctx, &User{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetUser_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	_, err := storage.GetUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetChat(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	seedChat(t, storage)

	chat, err := storage.GetChat(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "Dinner", chat.Name)
	assert.True(t, chat.IsGroup)

	_, err = storage.GetChat(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIsChatMember(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	seedChat(t, storage)
	ctx := context.Background()

	ok, err := storage.IsChatMember(ctx, "alice", "chat-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = storage.IsChatMember(ctx, "alice", "chat-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListChatIDsForUser(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	seedChat(t, storage)
	ctx := context.Background()

	require.NoError(t, storage.AddChatMember(ctx, &ChatMember{ChatID: "chat-2", UserID: "alice"}))

	ids, err := storage.ListChatIDsForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"chat-1", "chat-2"}, ids)

	ids, err = storage.ListChatIDsForUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCreateMessage(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	seedChat(t, storage)
	ctx := context.Background()

	edited := baseTime.Add(time.Minute)
	msg := &Message{
		ChatID:    "chat-1",
		SenderID:  strPtr("alice"),
		Content:   "hello",
		CreatedAt: baseTime.Add(1500 * time.Microsecond),
		EditedAt:  &edited,
	}
	require.NoError(t, storage.CreateMessage(ctx, msg))
	assert.NotEmpty(t, msg.ID)

	retrieved, err := storage.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "text", retrieved.MessageType)
	assert.Equal(t, "alice", *retrieved.SenderID)
	assert.Nil(t, retrieved.ReplyToID)
	// Stored at millisecond precision
	assert.Equal(t, baseTime.Add(time.Millisecond), retrieved.CreatedAt)
	require.NotNil(t, retrieved.EditedAt)
	assert.Equal(t, edited, *retrieved.EditedAt)

	err = storage.CreateMessage(ctx, &Message{Content: "orphan"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetMessagesByIDs(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	seedChat(t, storage)
	ctx := context.Background()

	require.NoError(t, storage.CreateMessage(ctx, &Message{ID: "m1", ChatID: "chat-1", SenderID: strPtr("bob"), Content: "pizza?", CreatedAt: baseTime}))
	require.NoError(t, storage.CreateMessage(ctx, &Message{ID: "m2", ChatID: "chat-1", SenderID: strPtr("alice"), Content: "yes", ReplyToID: strPtr("m1"), CreatedAt: baseTime.Add(time.Minute)}))
	require.NoError(t, storage.CreateMessage(ctx, &Message{ID: "m3", ChatID: "chat-1", Content: "system notice", MessageType: "system", CreatedAt: baseTime.Add(2 * time.Minute)}))
	require.NoError(t, storage.AddReaction(ctx, &Reaction{MessageID: "m2", UserID: "bob", Emoji: "👍"}))
	require.NoError(t, storage.AddReaction(ctx, &Reaction{MessageID: "m2", UserID: "bob", Emoji: "👍"}))
	require.NoError(t, storage.AddMention(ctx, &Mention{MessageID: "m2", UserID: "bob"}))

	records, err := storage.GetMessagesByIDs(ctx, []string{"m3", "missing", "m2", "m1"})
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Input order is preserved, unknown ids skipped
	assert.Equal(t, "m3", records[0].ID)
	assert.Equal(t, "m2", records[1].ID)
	assert.Equal(t, "m1", records[2].ID)

	assert.Nil(t, records[0].Sender)
	assert.Equal(t, "Dinner", records[0].Chat.Name)

	m2 := records[1]
	require.NotNil(t, m2.Sender)
	assert.Equal(t, "Alice", m2.Sender.DisplayName)
	assert.Equal(t, "https://img/alice.png", m2.Sender.AvatarURL)
	require.NotNil(t, m2.ReplyTo)
	assert.Equal(t, "m1", m2.ReplyTo.ID)
	assert.Equal(t, "pizza?", m2.ReplyTo.Content)
	require.NotNil(t, m2.ReplyTo.Sender)
	assert.Equal(t, "Bob", m2.ReplyTo.Sender.DisplayName)
	require.Len(t, m2.Reactions, 1)
	assert.Equal(t, "👍", m2.Reactions[0].Emoji)
	require.Len(t, m2.Mentions, 1)
	assert.Equal(t, MentionRecord{UserID: "bob", DisplayName: "Bob"}, m2.Mentions[0])

	assert.Empty(t, records[2].Reactions)
	assert.NotNil(t, records[2].Reactions)
}

func TestGetMessagesByIDs_Limits(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	records, err := storage.GetMessagesByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, records)

	ids := make([]string, MaxBatchIDs+1)
	for i := range ids {
		ids[i] = "m"
	}
	_, err = storage.GetMessagesByIDs(ctx, ids)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestDeletedSenderIsNulled(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	seedChat(t, storage)
	ctx := context.Background()

	require.NoError(t, storage.CreateMessage(ctx, &Message{ID: "m1", ChatID: "chat-1", SenderID: strPtr("bob"), Content: "bye", CreatedAt: baseTime}))
	_, err := storage.db.ExecContext(ctx, "DELETE FROM users WHERE id = 'bob'")
	require.NoError(t, err)

	records, err := storage.GetMessagesByIDs(ctx, []string{"m1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].SenderID)
	assert.Nil(t, records[0].Sender)
}

func TestListMessagesForIndexing(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	seedChat(t, storage)
	ctx := context.Background()

	require.NoError(t, storage.CreateMessage(ctx, &Message{ID: "m1", ChatID: "chat-1", Content: "one", CreatedAt: baseTime}))
	require.NoError(t, storage.CreateMessage(ctx, &Message{ID: "m2", ChatID: "chat-1", Content: "two", CreatedAt: baseTime.Add(time.Second)}))
	require.NoError(t, storage.CreateMessage(ctx, &Message{ID: "m3", ChatID: "chat-2", Content: "three", CreatedAt: baseTime.Add(2 * time.Second)}))

	pending, err := storage.ListMessagesForIndexing(ctx, "", false, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	indexedAt := baseTime.Add(time.Hour)
	require.NoError(t, storage.UpsertSearchDocument(ctx, &SearchDocument{MessageID: "m1", Content: "one", IndexedAt: indexedAt}))

	pending, err = storage.ListMessagesForIndexing(ctx, "chat-1", false, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "m2", pending[0].ID)

	// Editing after indexing makes the message pending again
	_, err = storage.db.ExecContext(ctx, "UPDATE messages SET edited_at = ? WHERE id = 'm1'", toMillis(indexedAt.Add(time.Minute)))
	require.NoError(t, err)
	pending, err = storage.ListMessagesForIndexing(ctx, "chat-1", false, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	pending, err = storage.ListMessagesForIndexing(ctx, "", true, 2)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestUpsertSearchDocument(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	seedChat(t, storage)
	ctx := context.Background()

	require.NoError(t, storage.CreateMessage(ctx, &Message{ID: "m1", ChatID: "chat-1", Content: "x", CreatedAt: baseTime}))

	doc := &SearchDocument{MessageID: "m1", Content: "first draft", ContentHash: [32]byte{1}}
	require.NoError(t, storage.UpsertSearchDocument(ctx, doc))

	doc.Content = "second draft"
	doc.ContentHash = [32]byte{2}
	require.NoError(t, storage.UpsertSearchDocument(ctx, doc))

	retrieved, err := storage.GetSearchDocument(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "second draft", retrieved.Content)
	assert.Equal(t, [32]byte{2}, retrieved.ContentHash)

	var n int
	require.NoError(t, storage.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM message_fts").Scan(&n))
	assert.Equal(t, 1, n)

	// Cascading delete clears the FTS row
	_, err = storage.db.ExecContext(ctx, "DELETE FROM messages WHERE id = 'm1'")
	require.NoError(t, err)
	require.NoError(t, storage.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM message_fts").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestUpsertEmbedding(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	seedChat(t, storage)
	ctx := context.Background()

	require.NoError(t, storage.CreateMessage(ctx, &Message{ID: "m1", ChatID: "chat-1", Content: "x", CreatedAt: baseTime}))

	emb := &Embedding{MessageID: "m1", Field: FieldContent, Vector: serializeVector([]float32{1, 0}), Dimension: 2, Provider: "local", Model: "hash"}
	require.NoError(t, storage.UpsertEmbedding(ctx, emb))
	firstID := emb.ID
	assert.Greater(t, firstID, int64(0))

	// Same (message, field) updates in place
	emb.Vector = serializeVector([]float32{0, 1})
	require.NoError(t, storage.UpsertEmbedding(ctx, emb))
	assert.Equal(t, firstID, emb.ID)

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.EmbeddingsCount)

	require.NoError(t, storage.DeleteEmbeddingsByMessage(ctx, "m1"))
	status, err = storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.EmbeddingsCount)
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	seedChat(t, storage)
	ctx := context.Background()

	require.NoError(t, storage.CreateMessage(ctx, &Message{ID: "m1", ChatID: "chat-1", Content: "x", CreatedAt: baseTime}))
	require.NoError(t, storage.CreateMessage(ctx, &Message{ID: "m2", ChatID: "chat-1", Content: "y", CreatedAt: baseTime}))
	require.NoError(t, storage.UpsertSearchDocument(ctx, &SearchDocument{MessageID: "m1", Content: "x", IndexedAt: baseTime}))

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, status.UsersCount)
	assert.Equal(t, 2, status.ChatsCount)
	assert.Equal(t, 2, status.MessagesCount)
	assert.Equal(t, 1, status.DocumentsCount)
	assert.Equal(t, 1, status.PendingCount)
	assert.Equal(t, baseTime, status.LastIndexedAt)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.True(t, status.Health.FTSIndexesBuilt)
	assert.False(t, status.Health.EmbeddingsAvailable)
	assert.Greater(t, status.IndexSizeMB, 0.0)
}

func TestBeginTx_CommitRollback(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()

	// Test commit
	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)

	user := &User{ID: "u1", DisplayName: "One"}
	require.NoError(t, tx.CreateUser(ctx, user))
	require.NoError(t, tx.Commit())

	// Verify committed
	retrieved, err := storage.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "One", retrieved.DisplayName)

	// Test rollback
	tx2, err := storage.BeginTx(ctx)
	require.NoError(t, err)

	require.NoError(t, tx2.CreateUser(ctx, &User{ID: "u2", DisplayName: "Two"}))
	require.NoError(t, tx2.Rollback())

	// Verify not committed
	_, err = storage.GetUser(ctx, "u2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTx_NestedNotSupported(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	_, err = tx.BeginTx(ctx)
	assert.Error(t, err)
	assert.NoError(t, tx.Close())
}

func TestRollbackMigration(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	require.NoError(t, RollbackMigration(ctx, storage.db))

	var name string
	err := storage.db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='messages'").Scan(&name)
	assert.Error(t, err)

	// Re-applying restores the schema
	require.NoError(t, ApplyMigrations(ctx, storage.db))
	require.NoError(t, storage.db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='messages'").Scan(&name))
	assert.Equal(t, "messages", name)
}
