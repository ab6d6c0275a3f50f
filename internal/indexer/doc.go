// Package indexer builds the search index for stored chat messages.
//
// For every pending message the indexer writes a plaintext full-text
// document and one embedding per non-empty field (content, transcription,
// description). A message is pending when it has no document yet or was
// edited after it was last indexed.
//
// # Basic Usage
//
//	idx := indexer.New(store,
//	    indexer.WithEmbedder(emb),
//	    indexer.WithDecrypter(box),
//	    indexer.WithLogger(logger),
//	)
//
//	stats, err := idx.IndexMessages(ctx, &indexer.Config{ChatID: "chat-1"})
//	fmt.Printf("Indexed %d messages in %v\n", stats.MessagesIndexed, stats.Duration)
//
// # Pipeline
//
//  1. List: load pending messages (all messages with Force)
//  2. Prepare: decrypt fields and hash them (worker pool)
//  3. Embed: batch non-empty fields across messages, embedder.MaxBatchSize per call (worker pool)
//  4. Store: write documents and embeddings, BatchSize messages per transaction
//
// Workers never touch the database while a transaction is open. Writes
// happen on one goroutine after all embeddings are generated.
//
// # Incremental Indexing
//
// An edited message whose decrypted fields hash to the stored content hash
// only has its document refreshed; its embeddings are kept and no embedding
// calls are made. Force re-embeds everything.
//
// # Error Handling
//
// A message that fails to decrypt or embed is counted in MessagesFailed,
// listed in ErrorMessages and left pending for the next run. Storage
// failures and cancellation abort the run.
//
// Only one run executes at a time; a concurrent call gets ErrIndexInProgress.
package indexer
