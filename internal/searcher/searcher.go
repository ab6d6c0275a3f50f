package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dshills/chatsearch-mcp/internal/cipher"
	"github.com/dshills/chatsearch-mcp/internal/embedder"
	"github.com/dshills/chatsearch-mcp/internal/storage"
	"github.com/dshills/chatsearch-mcp/pkg/types"
)

const (
	DefaultLimit               = 30
	MaxLimit                   = storage.MaxBatchIDs
	OverFetchFactor            = 2
	DefaultSimilarityThreshold = 0.3
)

// Store is the read side of storage used by search
type Store interface {
	IsChatMember(ctx context.Context, userID, chatID string) (bool, error)
	ListChatIDsForUser(ctx context.Context, userID string) ([]string, error)
	SearchVector(ctx context.Context, vector []float32, limit int, filters *storage.SearchFilters) ([]storage.VectorResult, error)
	SearchText(ctx context.Context, query string, limit int, filters *storage.SearchFilters) ([]storage.TextResult, error)
	GetMessagesByIDs(ctx context.Context, messageIDs []string) ([]*storage.MessageRecord, error)
}

// QueryEmbedder turns query text into a vector
type QueryEmbedder interface {
	GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error)
}

// Config tunes a Searcher. Zero values select the defaults.
type Config struct {
	SimilarityThreshold float64
	DefaultLimit        int
	MaxLimit            int // Capped at storage.MaxBatchIDs
	Logger              *slog.Logger
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	UserID       string
	Query        string
	Mode         types.SearchMode // Empty means hybrid
	ChatID       string           // Optional: restrict to one chat
	FromUserID   string           // Optional: restrict to one sender
	MessageTypes []string
	DateFrom     *time.Time
	DateTo       *time.Time
	Limit        int
	Cursor       string // created_at of the previous page's last result
}

// SearchResponse contains one page of results and metadata
type SearchResponse struct {
	Results      []types.SearchResult
	NextCursor   string // Empty when there are no further pages
	SearchMode   types.SearchMode
	SemanticHits int
	LexicalHits  int
	Duration     time.Duration
}

// Searcher runs hybrid message search for a user across their chats
type Searcher struct {
	store     Store
	embedder  QueryEmbedder
	decrypter cipher.Decrypter
	cfg       Config
	logger    *slog.Logger
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store Store, emb QueryEmbedder, decrypter cipher.Decrypter, cfg Config) *Searcher {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.MaxLimit <= 0 || cfg.MaxLimit > MaxLimit {
		cfg.MaxLimit = MaxLimit
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if decrypter == nil {
		decrypter = cipher.Passthrough{}
	}

	return &Searcher{
		store:     store,
		embedder:  emb,
		decrypter: decrypter,
		cfg:       cfg,
		logger:    logger,
	}
}

// Search finds messages matching req.Query in the chats the user belongs to.
//
// Both branches see the same scope and time window. Results are ordered newest
// first; pass NextCursor back as Cursor for the following page. Errors are
// ErrInvalidRequest, ErrNotAuthorized, ErrSearchFailed or the context error.
// An empty query or a user without chats yields an empty page.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	mode, err := types.ParseSearchMode(string(req.Mode))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	response := &SearchResponse{Results: []types.SearchResult{}, SearchMode: mode}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		response.Duration = time.Since(startTime)
		return response, nil
	}

	log := s.logger.With("user_id", req.UserID, "query", query, "mode", string(mode))
	limit := s.normalizeLimit(req.Limit)

	scope, err := s.resolveScope(ctx, log, req.UserID, req.ChatID)
	if err != nil {
		return nil, err
	}
	if len(scope) == 0 {
		response.Duration = time.Since(startTime)
		return response, nil
	}

	if req.Cursor != "" {
		if _, ok := ParseCursor(req.Cursor); !ok {
			log.Debug("ignoring malformed cursor", "cursor", req.Cursor)
		}
	}

	filters := storage.SearchFilters{
		ChatIDs:      scope,
		SenderID:     req.FromUserID,
		MessageTypes: req.MessageTypes,
		DateFrom:     req.DateFrom,
		DateTo:       EffectiveUpperBound(req.DateTo, req.Cursor),
	}

	branches := s.dispatch(ctx, log, mode, query, filters, limit*OverFetchFactor)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, b := range branches {
		switch b.branch {
		case BranchSemantic:
			response.SemanticHits = len(b.candidates)
		case BranchLexical:
			response.LexicalHits = len(b.candidates)
		}
	}

	page, next := selectPage(fuse(branches...), limit)

	results, err := s.hydrate(ctx, log, page)
	if err != nil {
		return nil, err
	}

	response.Results = results
	response.NextCursor = next
	response.Duration = time.Since(startTime)

	log.Debug("search complete",
		"semantic_hits", response.SemanticHits,
		"lexical_hits", response.LexicalHits,
		"results", len(results),
		"duration", response.Duration,
	)

	return response, nil
}

// GetMessages hydrates messages by id, keeping only those in chats the user
// belongs to. At most storage.MaxBatchIDs ids are accepted.
func (s *Searcher) GetMessages(ctx context.Context, userID string, messageIDs []string) ([]types.SearchResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	if len(messageIDs) > storage.MaxBatchIDs {
		return nil, fmt.Errorf("%w: at most %d message ids", ErrInvalidRequest, storage.MaxBatchIDs)
	}
	if len(messageIDs) == 0 {
		return []types.SearchResult{}, nil
	}

	log := s.logger.With("user_id", userID)

	chatIDs, err := s.store.ListChatIDsForUser(ctx, userID)
	if err != nil {
		return nil, s.failure(ctx, log, "listing chats failed", err)
	}
	allowed := make(map[string]bool, len(chatIDs))
	for _, id := range chatIDs {
		allowed[id] = true
	}

	records, err := s.store.GetMessagesByIDs(ctx, messageIDs)
	if err != nil {
		return nil, s.failure(ctx, log, "message fetch failed", err)
	}

	results := make([]types.SearchResult, 0, len(records))
	for _, rec := range records {
		if !allowed[rec.ChatID] || rec.Sender == nil {
			continue
		}
		result, err := s.toResult(ctx, rec)
		if err != nil {
			return nil, s.failure(ctx, log, "decryption failed", fmt.Errorf("message %s: %w", rec.ID, err))
		}
		results = append(results, result)
	}
	return results, nil
}

// normalizeLimit applies the default and the hard cap
func (s *Searcher) normalizeLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		return s.cfg.MaxLimit
	}
	return limit
}
