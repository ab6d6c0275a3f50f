package searcher

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/chatsearch-mcp/internal/embedder"
	"github.com/dshills/chatsearch-mcp/internal/storage"
	"github.com/dshills/chatsearch-mcp/pkg/types"
)

// Score scales put both branches on a comparable footing: a 0.9 similarity
// scores 9 and a 0.5 lexical rank scores 10.
const (
	SemanticScoreScale = 10.0
	LexicalScoreScale  = 20.0
)

// branchResult is the outcome of one retrieval branch. A non-nil err means
// the branch degraded and its candidates are ignored.
type branchResult struct {
	branch     Branch
	candidates []Candidate
	err        error
}

// dispatch runs the branches enabled by mode concurrently and joins them.
// Results are returned in a fixed order, semantic before lexical, regardless
// of which finished first.
func (s *Searcher) dispatch(ctx context.Context, log *slog.Logger, mode types.SearchMode, query string, filters storage.SearchFilters, fetchLimit int) []branchResult {
	var g errgroup.Group
	results := make([]branchResult, 0, 2)

	var semantic, lexical *branchResult
	if mode.UsesSemantic() {
		semantic = &branchResult{branch: BranchSemantic}
		g.Go(func() error {
			*semantic = s.semanticBranch(ctx, query, filters, fetchLimit)
			return nil
		})
	}
	if mode.UsesLexical() {
		lexical = &branchResult{branch: BranchLexical}
		g.Go(func() error {
			*lexical = s.lexicalBranch(ctx, query, filters, fetchLimit)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range []*branchResult{semantic, lexical} {
		if r == nil {
			continue
		}
		if r.err != nil {
			log.Warn("retrieval branch degraded", "branch", r.branch, "error", r.err)
		}
		results = append(results, *r)
	}
	return results
}

func (s *Searcher) semanticBranch(ctx context.Context, query string, filters storage.SearchFilters, fetchLimit int) branchResult {
	res := branchResult{branch: BranchSemantic}

	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		res.err = &RetrievalError{Branch: BranchSemantic, Err: err}
		return res
	}

	filters.MinSimilarity = s.cfg.SimilarityThreshold
	hits, err := s.store.SearchVector(ctx, emb.Vector, fetchLimit, &filters)
	if err != nil {
		res.err = &RetrievalError{Branch: BranchSemantic, Err: err}
		return res
	}

	res.candidates = make([]Candidate, 0, len(hits))
	for _, h := range hits {
		similarity := h.SimilarityScore
		res.candidates = append(res.candidates, Candidate{
			MessageID:    h.MessageID,
			Score:        similarity * SemanticScoreScale,
			MatchedField: matchedField(h.Field),
			Similarity:   &similarity,
			CreatedAt:    h.CreatedAt,
		})
	}
	return res
}

func (s *Searcher) lexicalBranch(ctx context.Context, query string, filters storage.SearchFilters, fetchLimit int) branchResult {
	res := branchResult{branch: BranchLexical}

	hits, err := s.store.SearchText(ctx, query, fetchLimit, &filters)
	if err != nil {
		res.err = &RetrievalError{Branch: BranchLexical, Err: err}
		return res
	}

	res.candidates = make([]Candidate, 0, len(hits))
	for _, h := range hits {
		rank := h.BM25Score
		res.candidates = append(res.candidates, Candidate{
			MessageID:    h.MessageID,
			Score:        rank * LexicalScoreScale,
			MatchedField: matchedField(h.Field),
			Rank:         &rank,
			CreatedAt:    h.CreatedAt,
		})
	}
	return res
}

// matchedField maps a storage field name onto the response tag
func matchedField(field string) types.MatchedField {
	f := types.MatchedField(field)
	if f.Validate() != nil {
		return types.MatchedContent
	}
	return f
}
