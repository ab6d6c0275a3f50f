// Package storage provides SQLite-based persistence for the chat corpus and
// its search indexes.
//
// # Database Schema
//
// Tables:
//   - users, chats, chat_members: participants and read access
//   - messages: chat messages, content possibly encrypted at rest
//   - message_reactions, message_mentions: message associations
//   - search_documents: per-message index bookkeeping (hash, indexed_at)
//   - message_fts: FTS5 index over plaintext content, transcription and description
//   - embeddings: one vector per (message, field)
//
// Timestamps are stored as unix milliseconds.
//
// # Scope
//
// Every search takes a SearchFilters whose ChatIDs lists the chats the caller
// may read. An empty ChatIDs matches nothing; there is no unscoped search.
//
//	results, err := db.SearchText(ctx, "dinner plans", 60, &storage.SearchFilters{
//	    ChatIDs: chatIDs,
//	})
//
// # Transactions
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = tx.Rollback() }()
//
//	if err := tx.UpsertSearchDocument(ctx, doc); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// The pool holds a single connection, so never call the parent storage while
// a transaction is open.
//
// # Build Tags
//
// The default build uses modernc.org/sqlite. Building with
// -tags "cgo_sqlite,sqlite_fts5" switches to github.com/mattn/go-sqlite3.
package storage
