package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrBatchTooLarge is returned when a bulk lookup exceeds MaxBatchIDs
	ErrBatchTooLarge = errors.New("batch size exceeds limit")
	// ErrInvalidInput is returned when a required field is missing
	ErrInvalidInput = errors.New("invalid input")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// newID returns a fresh identifier for rows created without one
func newID() string {
	return uuid.NewString()
}

// placeholders builds a parameterized IN list and its arguments
func placeholders(values []string) (string, []interface{}) {
	marks := make([]string, len(values))
	args := make([]interface{}, len(values))
	for i, v := range values {
		marks[i] = "?"
		args[i] = v
	}
	return strings.Join(marks, ","), args
}

// User operations

func (s *SQLiteStorage) createUserWithQuerier(ctx context.Context, q querier, user *User) error {
	if user.DisplayName == "" {
		return fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	if user.ID == "" {
		user.ID = newID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO users (id, display_name, avatar_url, created_at) VALUES (?, ?, ?, ?)`
	if _, err := q.ExecContext(ctx, query, user.ID, user.DisplayName, user.AvatarURL, toMillis(user.CreatedAt)); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) CreateUser(ctx context.Context, user *User) error {
	return s.createUserWithQuerier(ctx, s.querier(), user)
}

func (s *SQLiteStorage) getUserWithQuerier(ctx context.Context, q querier, userID string) (*User, error) {
	var user User
	var createdAt int64
	err := q.QueryRowContext(ctx,
		`SELECT id, display_name, avatar_url, created_at FROM users WHERE id = ?`, userID,
	).Scan(&user.ID, &user.DisplayName, &user.AvatarURL, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user.CreatedAt = fromMillis(createdAt)
	return &user, nil
}

func (s *SQLiteStorage) GetUser(ctx context.Context, userID string) (*User, error) {
	return s.getUserWithQuerier(ctx, s.querier(), userID)
}

// Chat operations

func (s *SQLiteStorage) createChatWithQuerier(ctx context.Context, q querier, chat *Chat) error {
	if chat.ID == "" {
		chat.ID = newID()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO chats (id, name, image_url, is_group, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := q.ExecContext(ctx, query, chat.ID, chat.Name, chat.ImageURL, chat.IsGroup, toMillis(chat.CreatedAt)); err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) CreateChat(ctx context.Context, chat *Chat) error {
	return s.createChatWithQuerier(ctx, s.querier(), chat)
}

func (s *SQLiteStorage) getChatWithQuerier(ctx context.Context, q querier, chatID string) (*Chat, error) {
	var chat Chat
	var createdAt int64
	err := q.QueryRowContext(ctx,
		`SELECT id, name, image_url, is_group, created_at FROM chats WHERE id = ?`, chatID,
	).Scan(&chat.ID, &chat.Name, &chat.ImageURL, &chat.IsGroup, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	chat.CreatedAt = fromMillis(createdAt)
	return &chat, nil
}

func (s *SQLiteStorage) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	return s.getChatWithQuerier(ctx, s.querier(), chatID)
}

func (s *SQLiteStorage) addChatMemberWithQuerier(ctx context.Context, q querier, member *ChatMember) error {
	if member.ChatID == "" || member.UserID == "" {
		return fmt.Errorf("%w: chat and user are required", ErrInvalidInput)
	}
	if member.Role == "" {
		member.Role = "member"
	}
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO chat_members (chat_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET role = excluded.role
	`
	if _, err := q.ExecContext(ctx, query, member.ChatID, member.UserID, member.Role, toMillis(member.JoinedAt)); err != nil {
		return fmt.Errorf("failed to add chat member: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) AddChatMember(ctx context.Context, member *ChatMember) error {
	return s.addChatMemberWithQuerier(ctx, s.querier(), member)
}

func (s *SQLiteStorage) isChatMemberWithQuerier(ctx context.Context, q querier, userID, chatID string) (bool, error) {
	var exists int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM chat_members WHERE user_id = ? AND chat_id = ?`, userID, chatID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return true, nil
}

// IsChatMember reports whether the user may read the chat
func (s *SQLiteStorage) IsChatMember(ctx context.Context, userID, chatID string) (bool, error) {
	return s.isChatMemberWithQuerier(ctx, s.querier(), userID, chatID)
}

func (s *SQLiteStorage) listChatIDsForUserWithQuerier(ctx context.Context, q querier, userID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT chat_id FROM chat_members WHERE user_id = ? ORDER BY chat_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	chatIDs := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		chatIDs = append(chatIDs, id)
	}
	return chatIDs, rows.Err()
}

// ListChatIDsForUser returns every chat the user belongs to
func (s *SQLiteStorage) ListChatIDsForUser(ctx context.Context, userID string) ([]string, error) {
	return s.listChatIDsForUserWithQuerier(ctx, s.querier(), userID)
}

// Message operations

func (s *SQLiteStorage) createMessageWithQuerier(ctx context.Context, q querier, msg *Message) error {
	if msg.ChatID == "" {
		return fmt.Errorf("%w: chat is required", ErrInvalidInput)
	}
	if msg.ID == "" {
		msg.ID = newID()
	}
	if msg.MessageType == "" {
		msg.MessageType = "text"
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	var editedAt interface{}
	if msg.EditedAt != nil {
		editedAt = toMillis(*msg.EditedAt)
	}

	query := `
		INSERT INTO messages (
			id, chat_id, sender_id, content, message_type, transcription,
			description, reply_to_id, created_at, edited_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		msg.ID, msg.ChatID, nullableString(msg.SenderID), msg.Content, msg.MessageType,
		msg.Transcription, msg.Description, nullableString(msg.ReplyToID),
		toMillis(msg.CreatedAt), editedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) CreateMessage(ctx context.Context, msg *Message) error {
	return s.createMessageWithQuerier(ctx, s.querier(), msg)
}

const messageColumns = `
	m.id, m.chat_id, m.sender_id, m.content, m.message_type, m.transcription,
	m.description, m.reply_to_id, m.created_at, m.edited_at
`

// rowScanner is implemented by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMessage reads messageColumns into a Message, followed by any extra destinations
func scanMessage(r rowScanner, msg *Message, extra ...interface{}) error {
	var senderID, replyToID sql.NullString
	var createdAt int64
	var editedAt sql.NullInt64

	dest := []interface{}{
		&msg.ID, &msg.ChatID, &senderID, &msg.Content, &msg.MessageType, &msg.Transcription,
		&msg.Description, &replyToID, &createdAt, &editedAt,
	}
	if err := r.Scan(append(dest, extra...)...); err != nil {
		return err
	}

	if senderID.Valid {
		id := senderID.String
		msg.SenderID = &id
	}
	if replyToID.Valid {
		id := replyToID.String
		msg.ReplyToID = &id
	}
	msg.CreatedAt = fromMillis(createdAt)
	if editedAt.Valid {
		t := fromMillis(editedAt.Int64)
		msg.EditedAt = &t
	}
	return nil
}

func (s *SQLiteStorage) getMessageWithQuerier(ctx context.Context, q querier, messageID string) (*Message, error) {
	var msg Message
	err := scanMessage(q.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages m WHERE m.id = ?`, messageID), &msg)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *SQLiteStorage) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	return s.getMessageWithQuerier(ctx, s.querier(), messageID)
}

// GetMessagesByIDs hydrates messages with sender, chat, reply target, reactions
// and mentions. Results follow the order of messageIDs; unknown ids are skipped.
func (s *SQLiteStorage) GetMessagesByIDs(ctx context.Context, messageIDs []string) ([]*MessageRecord, error) {
	return s.getMessagesByIDsWithQuerier(ctx, s.querier(), messageIDs)
}

func (s *SQLiteStorage) getMessagesByIDsWithQuerier(ctx context.Context, q querier, messageIDs []string) ([]*MessageRecord, error) {
	if len(messageIDs) == 0 {
		return []*MessageRecord{}, nil
	}
	if len(messageIDs) > MaxBatchIDs {
		return nil, fmt.Errorf("%w: %d ids requested, max %d", ErrBatchTooLarge, len(messageIDs), MaxBatchIDs)
	}

	byID, err := s.loadRecords(ctx, q, messageIDs, true)
	if err != nil {
		return nil, err
	}

	// Load reply targets in one round trip
	replyIDs := make([]string, 0)
	for _, rec := range byID {
		if rec.ReplyToID != nil {
			replyIDs = append(replyIDs, *rec.ReplyToID)
		}
	}
	if len(replyIDs) > 0 {
		replies, err := s.loadRecords(ctx, q, replyIDs, false)
		if err != nil {
			return nil, err
		}
		for _, rec := range byID {
			if rec.ReplyToID != nil {
				rec.ReplyTo = replies[*rec.ReplyToID]
			}
		}
	}

	if err := s.attachReactions(ctx, q, byID); err != nil {
		return nil, err
	}
	if err := s.attachMentions(ctx, q, byID); err != nil {
		return nil, err
	}

	records := make([]*MessageRecord, 0, len(messageIDs))
	for _, id := range messageIDs {
		if rec, ok := byID[id]; ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// loadRecords fetches messages with their sender and, optionally, their chat
func (s *SQLiteStorage) loadRecords(ctx context.Context, q querier, ids []string, withChat bool) (map[string]*MessageRecord, error) {
	in, args := placeholders(ids)
	query := `
		SELECT ` + messageColumns + `,
		       u.id, u.display_name, u.avatar_url,
		       c.id, c.name, c.image_url, c.is_group
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		INNER JOIN chats c ON c.id = m.chat_id
		WHERE m.id IN (` + in + `)
	`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make(map[string]*MessageRecord, len(ids))
	for rows.Next() {
		rec := &MessageRecord{}
		var userID, displayName, avatarURL sql.NullString
		var chat Chat
		err := scanMessage(rows, &rec.Message,
			&userID, &displayName, &avatarURL,
			&chat.ID, &chat.Name, &chat.ImageURL, &chat.IsGroup,
		)
		if err != nil {
			return nil, err
		}
		if userID.Valid {
			rec.Sender = &User{ID: userID.String, DisplayName: displayName.String, AvatarURL: avatarURL.String}
		}
		if withChat {
			rec.Chat = chat
		}
		rec.Reactions = []Reaction{}
		rec.Mentions = []MentionRecord{}
		records[rec.ID] = rec
	}
	return records, rows.Err()
}

func recordIDs(records map[string]*MessageRecord) []string {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	return ids
}

func (s *SQLiteStorage) attachReactions(ctx context.Context, q querier, records map[string]*MessageRecord) error {
	if len(records) == 0 {
		return nil
	}
	in, args := placeholders(recordIDs(records))
	rows, err := q.QueryContext(ctx, `
		SELECT message_id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id IN (`+in+`)
		ORDER BY created_at, user_id
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to load reactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var r Reaction
		var createdAt int64
		if err := rows.Scan(&r.MessageID, &r.UserID, &r.Emoji, &createdAt); err != nil {
			return err
		}
		r.CreatedAt = fromMillis(createdAt)
		if rec, ok := records[r.MessageID]; ok {
			rec.Reactions = append(rec.Reactions, r)
		}
	}
	return rows.Err()
}

func (s *SQLiteStorage) attachMentions(ctx context.Context, q querier, records map[string]*MessageRecord) error {
	if len(records) == 0 {
		return nil
	}
	in, args := placeholders(recordIDs(records))
	rows, err := q.QueryContext(ctx, `
		SELECT mm.message_id, mm.user_id, COALESCE(u.display_name, '')
		FROM message_mentions mm
		LEFT JOIN users u ON u.id = mm.user_id
		WHERE mm.message_id IN (`+in+`)
		ORDER BY mm.user_id
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to load mentions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var messageID string
		var m MentionRecord
		if err := rows.Scan(&messageID, &m.UserID, &m.DisplayName); err != nil {
			return err
		}
		if rec, ok := records[messageID]; ok {
			rec.Mentions = append(rec.Mentions, m)
		}
	}
	return rows.Err()
}

func (s *SQLiteStorage) listMessagesForIndexingWithQuerier(ctx context.Context, q querier, chatID string, force bool, limit int) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		LEFT JOIN search_documents d ON d.message_id = m.id
		WHERE 1 = 1
	`
	args := make([]interface{}, 0, 2)
	if !force {
		query += " AND (d.message_id IS NULL OR (m.edited_at IS NOT NULL AND m.edited_at > d.indexed_at))"
	}
	if chatID != "" {
		query += " AND m.chat_id = ?"
		args = append(args, chatID)
	}
	query += " ORDER BY m.created_at, m.id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for indexing: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]*Message, 0)
	for rows.Next() {
		var msg Message
		if err := scanMessage(rows, &msg); err != nil {
			return nil, err
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// ListMessagesForIndexing returns messages with no search document, or whose
// document predates their last edit. With force, every message is returned.
func (s *SQLiteStorage) ListMessagesForIndexing(ctx context.Context, chatID string, force bool, limit int) ([]*Message, error) {
	return s.listMessagesForIndexingWithQuerier(ctx, s.querier(), chatID, force, limit)
}

func (s *SQLiteStorage) addReactionWithQuerier(ctx context.Context, q querier, reaction *Reaction) error {
	if reaction.CreatedAt.IsZero() {
		reaction.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(message_id, user_id, emoji) DO NOTHING
	`
	if _, err := q.ExecContext(ctx, query, reaction.MessageID, reaction.UserID, reaction.Emoji, toMillis(reaction.CreatedAt)); err != nil {
		return fmt.Errorf("failed to add reaction: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) AddReaction(ctx context.Context, reaction *Reaction) error {
	return s.addReactionWithQuerier(ctx, s.querier(), reaction)
}

func (s *SQLiteStorage) addMentionWithQuerier(ctx context.Context, q querier, mention *Mention) error {
	query := `
		INSERT INTO message_mentions (message_id, user_id) VALUES (?, ?)
		ON CONFLICT(message_id, user_id) DO NOTHING
	`
	if _, err := q.ExecContext(ctx, query, mention.MessageID, mention.UserID); err != nil {
		return fmt.Errorf("failed to add mention: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) AddMention(ctx context.Context, mention *Mention) error {
	return s.addMentionWithQuerier(ctx, s.querier(), mention)
}

// Index operations

func (s *SQLiteStorage) getSearchDocumentWithQuerier(ctx context.Context, q querier, messageID string) (*SearchDocument, error) {
	query := `
		SELECT d.message_id, f.content, f.transcription, f.description, d.content_hash, d.indexed_at
		FROM search_documents d
		INNER JOIN message_fts f ON f.message_id = d.message_id
		WHERE d.message_id = ?
	`
	var doc SearchDocument
	var hash []byte
	var indexedAt int64
	err := q.QueryRowContext(ctx, query, messageID).Scan(
		&doc.MessageID, &doc.Content, &doc.Transcription, &doc.Description, &hash, &indexedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	copy(doc.ContentHash[:], hash)
	doc.IndexedAt = fromMillis(indexedAt)
	return &doc, nil
}

func (s *SQLiteStorage) GetSearchDocument(ctx context.Context, messageID string) (*SearchDocument, error) {
	return s.getSearchDocumentWithQuerier(ctx, s.querier(), messageID)
}

func (s *SQLiteStorage) upsertSearchDocumentWithQuerier(ctx context.Context, q querier, doc *SearchDocument) error {
	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = time.Now().UTC()
	}

	// FTS5 tables have no upsert; replace the row
	if _, err := q.ExecContext(ctx, `DELETE FROM message_fts WHERE message_id = ?`, doc.MessageID); err != nil {
		return fmt.Errorf("failed to clear search document: %w", err)
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO message_fts (message_id, content, transcription, description) VALUES (?, ?, ?, ?)`,
		doc.MessageID, doc.Content, doc.Transcription, doc.Description)
	if err != nil {
		return fmt.Errorf("failed to write search document: %w", err)
	}

	query := `
		INSERT INTO search_documents (message_id, content_hash, indexed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			indexed_at = excluded.indexed_at
	`
	if _, err := q.ExecContext(ctx, query, doc.MessageID, doc.ContentHash[:], toMillis(doc.IndexedAt)); err != nil {
		return fmt.Errorf("failed to upsert search document: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertSearchDocument(ctx context.Context, doc *SearchDocument) error {
	return s.upsertSearchDocumentWithQuerier(ctx, s.querier(), doc)
}

func (s *SQLiteStorage) upsertEmbeddingWithQuerier(ctx context.Context, q querier, embedding *Embedding) error {
	query := `
		INSERT INTO embeddings (message_id, field, vector, dimension, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id, field) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model,
			created_at = excluded.created_at
		RETURNING id
	`
	now := time.Now().UTC()
	err := q.QueryRowContext(ctx, query,
		embedding.MessageID, embedding.Field, embedding.Vector, embedding.Dimension,
		embedding.Provider, embedding.Model, toMillis(now),
	).Scan(&embedding.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	embedding.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return s.upsertEmbeddingWithQuerier(ctx, s.querier(), embedding)
}

func (s *SQLiteStorage) deleteEmbeddingsByMessageWithQuerier(ctx context.Context, q querier, messageID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM embeddings WHERE message_id = ?`, messageID)
	return err
}

func (s *SQLiteStorage) DeleteEmbeddingsByMessage(ctx context.Context, messageID string) error {
	return s.deleteEmbeddingsByMessageWithQuerier(ctx, s.querier(), messageID)
}

// Search operations

func (s *SQLiteStorage) SearchVector(ctx context.Context, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, s.querier(), queryVector, limit, filters)
}

func (s *SQLiteStorage) SearchText(ctx context.Context, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return searchText(ctx, s.querier(), query, limit, filters)
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*CorpusStatus, error) {
	status := &CorpusStatus{}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM users", &status.UsersCount},
		{"SELECT COUNT(*) FROM chats", &status.ChatsCount},
		{"SELECT COUNT(*) FROM messages", &status.MessagesCount},
		{"SELECT COUNT(*) FROM search_documents", &status.DocumentsCount},
		{"SELECT COUNT(*) FROM embeddings", &status.EmbeddingsCount},
		{`SELECT COUNT(*) FROM messages m
		  LEFT JOIN search_documents d ON d.message_id = m.id
		  WHERE d.message_id IS NULL OR (m.edited_at IS NOT NULL AND m.edited_at > d.indexed_at)`, &status.PendingCount},
	}
	for _, c := range counts {
		if err := q.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	var lastIndexed sql.NullInt64
	if err := q.QueryRowContext(ctx, "SELECT MAX(indexed_at) FROM search_documents").Scan(&lastIndexed); err != nil {
		return nil, err
	}
	if lastIndexed.Valid {
		status.LastIndexedAt = fromMillis(lastIndexed.Int64)
	}

	// Calculate database size
	var pageCount, pageSize int
	err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	var ftsTable string
	ftsErr := q.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='message_fts'").Scan(&ftsTable)

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.EmbeddingsCount > 0,
		FTSIndexesBuilt:     ftsErr == nil,
	}

	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*CorpusStatus, error) {
	return s.getStatusWithQuerier(ctx, s.querier())
}

// nullableString maps a nil pointer to SQL NULL
func nullableString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// Transaction implementations delegate to the storage helpers with the tx querier

func (t *sqliteTx) CreateUser(ctx context.Context, user *User) error {
	return t.storage.createUserWithQuerier(ctx, t.querier(), user)
}

func (t *sqliteTx) GetUser(ctx context.Context, userID string) (*User, error) {
	return t.storage.getUserWithQuerier(ctx, t.querier(), userID)
}

func (t *sqliteTx) CreateChat(ctx context.Context, chat *Chat) error {
	return t.storage.createChatWithQuerier(ctx, t.querier(), chat)
}

func (t *sqliteTx) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	return t.storage.getChatWithQuerier(ctx, t.querier(), chatID)
}

func (t *sqliteTx) AddChatMember(ctx context.Context, member *ChatMember) error {
	return t.storage.addChatMemberWithQuerier(ctx, t.querier(), member)
}

func (t *sqliteTx) IsChatMember(ctx context.Context, userID, chatID string) (bool, error) {
	return t.storage.isChatMemberWithQuerier(ctx, t.querier(), userID, chatID)
}

func (t *sqliteTx) ListChatIDsForUser(ctx context.Context, userID string) ([]string, error) {
	return t.storage.listChatIDsForUserWithQuerier(ctx, t.querier(), userID)
}

func (t *sqliteTx) CreateMessage(ctx context.Context, msg *Message) error {
	return t.storage.createMessageWithQuerier(ctx, t.querier(), msg)
}

func (t *sqliteTx) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	return t.storage.getMessageWithQuerier(ctx, t.querier(), messageID)
}

func (t *sqliteTx) GetMessagesByIDs(ctx context.Context, messageIDs []string) ([]*MessageRecord, error) {
	return t.storage.getMessagesByIDsWithQuerier(ctx, t.querier(), messageIDs)
}

func (t *sqliteTx) ListMessagesForIndexing(ctx context.Context, chatID string, force bool, limit int) ([]*Message, error) {
	return t.storage.listMessagesForIndexingWithQuerier(ctx, t.querier(), chatID, force, limit)
}

func (t *sqliteTx) AddReaction(ctx context.Context, reaction *Reaction) error {
	return t.storage.addReactionWithQuerier(ctx, t.querier(), reaction)
}

func (t *sqliteTx) AddMention(ctx context.Context, mention *Mention) error {
	return t.storage.addMentionWithQuerier(ctx, t.querier(), mention)
}

func (t *sqliteTx) GetSearchDocument(ctx context.Context, messageID string) (*SearchDocument, error) {
	return t.storage.getSearchDocumentWithQuerier(ctx, t.querier(), messageID)
}

func (t *sqliteTx) UpsertSearchDocument(ctx context.Context, doc *SearchDocument) error {
	return t.storage.upsertSearchDocumentWithQuerier(ctx, t.querier(), doc)
}

func (t *sqliteTx) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return t.storage.upsertEmbeddingWithQuerier(ctx, t.querier(), embedding)
}

func (t *sqliteTx) DeleteEmbeddingsByMessage(ctx context.Context, messageID string) error {
	return t.storage.deleteEmbeddingsByMessageWithQuerier(ctx, t.querier(), messageID)
}

func (t *sqliteTx) SearchVector(ctx context.Context, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, t.querier(), vector, limit, filters)
}

func (t *sqliteTx) SearchText(ctx context.Context, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return searchText(ctx, t.querier(), query, limit, filters)
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*CorpusStatus, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
