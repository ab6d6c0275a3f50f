package searcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dshills/chatsearch-mcp/internal/embedder"
	"github.com/dshills/chatsearch-mcp/internal/storage"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return t0.Add(time.Duration(minutes) * time.Minute)
}

func f64(v float64) *float64 { return &v }

// mockEmbedder implements QueryEmbedder for testing
type mockEmbedder struct {
	generateFunc func(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error)
	calls        int
	mu           sync.Mutex
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.generateFunc != nil {
		return m.generateFunc(ctx, req)
	}
	return &embedder.Embedding{Vector: []float32{1, 0, 0}, Dimension: 3, Provider: "mock", Model: "mock-model"}, nil
}

// stubStore is an in-memory Store. Search hits are filtered by scope and
// the date window the way the SQL backend filters them.
type stubStore struct {
	mu sync.Mutex

	members    map[string][]string // user id -> chat ids
	chatOf     map[string]string   // message id -> chat id
	vectorHits []storage.VectorResult
	textHits   []storage.TextResult
	records    map[string]*storage.MessageRecord

	memberErr error
	vectorErr error
	textErr   error
	fetchErr  error

	calls         map[string]int
	vectorFilters []storage.SearchFilters
	textFilters   []storage.SearchFilters
	fetchedIDs    [][]string
}

func newStubStore() *stubStore {
	return &stubStore{
		members: map[string][]string{},
		chatOf:  map[string]string{},
		records: map[string]*storage.MessageRecord{},
		calls:   map[string]int{},
	}
}

func (s *stubStore) record(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
}

func (s *stubStore) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *stubStore) searchCalls() int {
	return s.count("SearchVector") + s.count("SearchText")
}

// addMessage registers a message record in chat, sent by sender (nil for none)
func (s *stubStore) addMessage(id, chatID string, sender *storage.User, content string, createdAt time.Time) *storage.MessageRecord {
	rec := &storage.MessageRecord{
		Message: storage.Message{
			ID:          id,
			ChatID:      chatID,
			Content:     content,
			MessageType: "text",
			CreatedAt:   createdAt,
		},
		Sender:    sender,
		Chat:      storage.Chat{ID: chatID, Name: "chat " + chatID},
		Reactions: []storage.Reaction{},
		Mentions:  []storage.MentionRecord{},
	}
	if sender != nil {
		rec.SenderID = &sender.ID
	}
	s.records[id] = rec
	s.chatOf[id] = chatID
	return rec
}

func (s *stubStore) IsChatMember(ctx context.Context, userID, chatID string) (bool, error) {
	s.record("IsChatMember")
	if s.memberErr != nil {
		return false, s.memberErr
	}
	for _, c := range s.members[userID] {
		if c == chatID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) ListChatIDsForUser(ctx context.Context, userID string) ([]string, error) {
	s.record("ListChatIDsForUser")
	if s.memberErr != nil {
		return nil, s.memberErr
	}
	return s.members[userID], nil
}

func (s *stubStore) inWindow(id string, createdAt time.Time, f *storage.SearchFilters) bool {
	inScope := false
	for _, c := range f.ChatIDs {
		if s.chatOf[id] == c {
			inScope = true
		}
	}
	if !inScope {
		return false
	}
	if f.DateFrom != nil && createdAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && createdAt.After(*f.DateTo) {
		return false
	}
	return true
}

func (s *stubStore) SearchVector(ctx context.Context, vector []float32, limit int, filters *storage.SearchFilters) ([]storage.VectorResult, error) {
	s.record("SearchVector")
	s.mu.Lock()
	s.vectorFilters = append(s.vectorFilters, *filters)
	s.mu.Unlock()
	if s.vectorErr != nil {
		return nil, s.vectorErr
	}
	out := make([]storage.VectorResult, 0)
	for _, h := range s.vectorHits {
		if s.inWindow(h.MessageID, h.CreatedAt, filters) && h.SimilarityScore >= filters.MinSimilarity && len(out) < limit {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *stubStore) SearchText(ctx context.Context, query string, limit int, filters *storage.SearchFilters) ([]storage.TextResult, error) {
	s.record("SearchText")
	s.mu.Lock()
	s.textFilters = append(s.textFilters, *filters)
	s.mu.Unlock()
	if s.textErr != nil {
		return nil, s.textErr
	}
	out := make([]storage.TextResult, 0)
	for _, h := range s.textHits {
		if s.inWindow(h.MessageID, h.CreatedAt, filters) && len(out) < limit {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *stubStore) GetMessagesByIDs(ctx context.Context, messageIDs []string) ([]*storage.MessageRecord, error) {
	s.record("GetMessagesByIDs")
	s.mu.Lock()
	s.fetchedIDs = append(s.fetchedIDs, append([]string(nil), messageIDs...))
	s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if len(messageIDs) > storage.MaxBatchIDs {
		return nil, storage.ErrBatchTooLarge
	}
	out := make([]*storage.MessageRecord, 0, len(messageIDs))
	for _, id := range messageIDs {
		if rec, ok := s.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

var errBackend = errors.New("backend exploded: password=hunter2")

// failingDecrypter fails on every call
type failingDecrypter struct{}

func (failingDecrypter) Decrypt(context.Context, string) (string, error) {
	return "", errors.New("bad key")
}

func resultIDs(resp *SearchResponse) []string {
	ids := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		ids[i] = r.Message.ID
	}
	return ids
}
