package indexer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/chatsearch-mcp/internal/cipher"
	"github.com/dshills/chatsearch-mcp/internal/embedder"
	"github.com/dshills/chatsearch-mcp/internal/storage"
)

// ErrIndexInProgress is returned when another indexing run holds the lock
var ErrIndexInProgress = errors.New("indexing already in progress")

// Indexer coordinates the indexing pipeline: decrypt -> hash -> embed -> store
type Indexer struct {
	storage   storage.Storage
	embedder  embedder.Embedder // Nil disables embeddings; FTS documents are still written
	decrypter cipher.Decrypter
	logger    *slog.Logger
	lock      IndexLock

	// Worker pool configuration
	workers int
}

// Config contains configuration for one indexing run
type Config struct {
	ChatID    string // Optional: only index this chat
	Force     bool   // Re-index every message, ignoring content hashes
	Limit     int    // Maximum messages to consider (0 = all pending)
	Workers   int    // Number of concurrent workers (default: runtime.NumCPU())
	BatchSize int    // Number of messages to commit per transaction (default: 20)
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	MessagesIndexed   int
	MessagesSkipped   int // Unchanged content; document refreshed, embeddings kept
	MessagesFailed    int
	EmbeddingsCreated int
	Duration          time.Duration
	ErrorMessages     []string
}

// Option configures an Indexer
type Option func(*Indexer)

// WithEmbedder enables embedding generation
func WithEmbedder(emb embedder.Embedder) Option {
	return func(idx *Indexer) { idx.embedder = emb }
}

// WithDecrypter sets the decrypter for encrypted message fields
func WithDecrypter(d cipher.Decrypter) Option {
	return func(idx *Indexer) { idx.decrypter = d }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(idx *Indexer) { idx.logger = l }
}

// New creates a new Indexer instance
func New(store storage.Storage, opts ...Option) *Indexer {
	idx := &Indexer{
		storage:   store,
		decrypter: cipher.Passthrough{},
		logger:    slog.Default(),
		workers:   runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Running reports whether an indexing run is in progress
func (idx *Indexer) Running() bool {
	return idx.lock.Running()
}

// pendingMessage is a message moving through the pipeline
type pendingMessage struct {
	doc       storage.SearchDocument
	unchanged bool
	vectors   map[string]*embedder.Embedding // field -> embedding
	err       error
}

// fieldText is one non-empty field queued for embedding
type fieldText struct {
	msg   *pendingMessage
	field string
	text  string
}

// IndexMessages brings the search documents and embeddings of pending
// messages up to date. Only one run may execute at a time.
func (idx *Indexer) IndexMessages(ctx context.Context, config *Config) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	if config == nil {
		config = &Config{}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = idx.workers
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}

	startTime := time.Now()
	stats := &Statistics{
		ErrorMessages: make([]string, 0),
	}

	messages, err := idx.storage.ListMessagesForIndexing(ctx, config.ChatID, config.Force, config.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}

	pending, err := idx.prepare(ctx, messages, config.Force, workers)
	if err != nil {
		return nil, err
	}

	if idx.embedder != nil {
		if err := idx.embed(ctx, pending, workers); err != nil {
			return nil, err
		}
	}

	if err := idx.store(ctx, pending, batchSize, stats); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(startTime)
	idx.logger.Info("indexing complete",
		"chat_id", config.ChatID,
		"indexed", stats.MessagesIndexed,
		"skipped", stats.MessagesSkipped,
		"failed", stats.MessagesFailed,
		"embeddings", stats.EmbeddingsCreated,
		"duration", stats.Duration,
	)
	return stats, nil
}

// prepare decrypts messages and compares their content hash with the stored
// document. It runs on a bounded worker pool.
func (idx *Indexer) prepare(ctx context.Context, messages []*storage.Message, force bool, workers int) ([]*pendingMessage, error) {
	pending := make([]*pendingMessage, len(messages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, msg := range messages {
		g.Go(func() error {
			p := &pendingMessage{doc: storage.SearchDocument{MessageID: msg.ID}}
			pending[i] = p

			fields := []struct {
				src string
				dst *string
			}{
				{msg.Content, &p.doc.Content},
				{msg.Transcription, &p.doc.Transcription},
				{msg.Description, &p.doc.Description},
			}
			for _, f := range fields {
				plain, err := idx.decrypter.Decrypt(gctx, f.src)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					p.err = fmt.Errorf("decrypt: %w", err)
					return nil
				}
				*f.dst = plain
			}
			p.doc.ContentHash = contentHash(&p.doc)

			if force {
				return nil
			}
			existing, err := idx.storage.GetSearchDocument(gctx, msg.ID)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.err = err
				return nil
			}
			p.unchanged = existing != nil && existing.ContentHash == p.doc.ContentHash
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pending, nil
}

// embed generates embeddings for every non-empty field of changed messages,
// batching texts across messages up to embedder.MaxBatchSize per call.
// A failed batch fails its messages only.
func (idx *Indexer) embed(ctx context.Context, pending []*pendingMessage, workers int) error {
	var queue []fieldText
	for _, p := range pending {
		if p.err != nil || p.unchanged {
			continue
		}
		p.vectors = make(map[string]*embedder.Embedding)
		for _, f := range []fieldText{
			{p, storage.FieldContent, p.doc.Content},
			{p, storage.FieldTranscription, p.doc.Transcription},
			{p, storage.FieldDescription, p.doc.Description},
		} {
			if f.text != "" {
				queue = append(queue, f)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	var mu sync.Mutex

	for start := 0; start < len(queue); start += embedder.MaxBatchSize {
		batch := queue[start:min(start+embedder.MaxBatchSize, len(queue))]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, f := range batch {
				texts[i] = f.text
			}

			resp, err := idx.embedder.GenerateBatch(gctx, embedder.BatchEmbeddingRequest{Texts: texts})
			if err == nil && len(resp.Embeddings) != len(batch) {
				err = fmt.Errorf("expected %d embeddings, got %d", len(batch), len(resp.Embeddings))
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				for _, f := range batch {
					f.msg.err = fmt.Errorf("embed %s: %w", f.field, err)
				}
				return nil
			}
			for i, f := range batch {
				f.msg.vectors[f.field] = resp.Embeddings[i]
			}
			return nil
		})
	}

	return g.Wait()
}

// store writes documents and embeddings in transactions of batchSize messages.
// Writes are sequential; the database allows a single writer.
func (idx *Indexer) store(ctx context.Context, pending []*pendingMessage, batchSize int, stats *Statistics) error {
	for start := 0; start < len(pending); start += batchSize {
		batch := pending[start:min(start+batchSize, len(pending))]

		tx, err := idx.storage.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		for _, p := range batch {
			if p.err != nil {
				stats.MessagesFailed++
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", p.doc.MessageID, p.err))
				idx.logger.Warn("message not indexed", "message_id", p.doc.MessageID, "error", p.err)
				continue
			}

			n, err := idx.storeMessage(ctx, tx, p)
			if err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("failed to store message %s: %w", p.doc.MessageID, err)
			}
			stats.EmbeddingsCreated += n
			if p.unchanged {
				stats.MessagesSkipped++
			} else {
				stats.MessagesIndexed++
			}
		}

		if err := tx.Commit(); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
	}
	return nil
}

// storeMessage writes one message's document and, if its content changed,
// replaces its embeddings. It returns the number of embeddings written.
func (idx *Indexer) storeMessage(ctx context.Context, tx storage.Tx, p *pendingMessage) (int, error) {
	p.doc.IndexedAt = time.Now().UTC()
	if err := tx.UpsertSearchDocument(ctx, &p.doc); err != nil {
		return 0, err
	}
	if p.unchanged || idx.embedder == nil {
		return 0, nil
	}

	if err := tx.DeleteEmbeddingsByMessage(ctx, p.doc.MessageID); err != nil {
		return 0, fmt.Errorf("failed to delete old embeddings: %w", err)
	}
	for _, field := range []string{storage.FieldContent, storage.FieldTranscription, storage.FieldDescription} {
		emb, ok := p.vectors[field]
		if !ok {
			continue
		}
		record := &storage.Embedding{
			MessageID: p.doc.MessageID,
			Field:     field,
			Vector:    storage.SerializeVector(emb.Vector),
			Dimension: emb.Dimension,
			Provider:  emb.Provider,
			Model:     emb.Model,
		}
		if err := tx.UpsertEmbedding(ctx, record); err != nil {
			return 0, fmt.Errorf("failed to store embedding: %w", err)
		}
	}
	return len(p.vectors), nil
}

// contentHash fingerprints the plaintext fields of a document
func contentHash(doc *storage.SearchDocument) [32]byte {
	h := sha256.New()
	for _, s := range []string{doc.Content, doc.Transcription, doc.Description} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
