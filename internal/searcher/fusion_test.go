package searcher

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/chatsearch-mcp/pkg/types"
)

func semanticHit(id string, similarity float64, field types.MatchedField, createdAt time.Time) Candidate {
	return Candidate{MessageID: id, Score: similarity * SemanticScoreScale, Similarity: f64(similarity), MatchedField: field, CreatedAt: createdAt}
}

func lexicalHit(id string, rank float64, field types.MatchedField, createdAt time.Time) Candidate {
	return Candidate{MessageID: id, Score: rank * LexicalScoreScale, Rank: f64(rank), MatchedField: field, CreatedAt: createdAt}
}

func TestFuse_Corroboration(t *testing.T) {
	semantic := branchResult{branch: BranchSemantic, candidates: []Candidate{
		semanticHit("abc123", 0.9, types.MatchedTranscription, at(1)),
	}}
	lexical := branchResult{branch: BranchLexical, candidates: []Candidate{
		lexicalHit("abc123", 0.5, types.MatchedContent, at(1)),
	}}

	fused := fuse(semantic, lexical)
	require.Len(t, fused, 1)
	c := fused[0]
	assert.InDelta(t, 19.0, c.Score, 1e-9)
	assert.Equal(t, types.MatchedTranscription, c.MatchedField, "first branch labels the match")
	require.NotNil(t, c.Similarity)
	assert.InDelta(t, 0.9, *c.Similarity, 1e-9)
	require.NotNil(t, c.Rank)
	assert.InDelta(t, 0.5, *c.Rank, 1e-9)
}

func TestFuse_SumIsAtLeastEachPart(t *testing.T) {
	for _, sim := range []float64{0.3, 0.55, 0.99} {
		for _, rank := range []float64{0.05, 0.5, 1} {
			s := semanticHit("both", sim, types.MatchedContent, at(0))
			l := lexicalHit("both", rank, types.MatchedContent, at(0))
			fused := fuse(branchResult{candidates: []Candidate{s}}, branchResult{candidates: []Candidate{l}})
			require.Len(t, fused, 1)
			assert.InDelta(t, s.Score+l.Score, fused[0].Score, 1e-9)
			assert.GreaterOrEqual(t, fused[0].Score, s.Score)
			assert.GreaterOrEqual(t, fused[0].Score, l.Score)
		}
	}
}

func TestFuse_BothBranchesOutscoreOne(t *testing.T) {
	// Comparable per-branch magnitudes
	fused := fuse(
		branchResult{candidates: []Candidate{
			semanticHit("both", 0.6, types.MatchedContent, at(0)),
			semanticHit("semantic-only", 0.9, types.MatchedContent, at(0)),
		}},
		branchResult{candidates: []Candidate{
			lexicalHit("both", 0.3, types.MatchedContent, at(0)),
			lexicalHit("lexical-only", 0.45, types.MatchedContent, at(0)),
		}},
	)

	scores := map[string]float64{}
	for _, c := range fused {
		scores[c.MessageID] = c.Score
	}
	assert.Greater(t, scores["both"], scores["semantic-only"])
	assert.Greater(t, scores["both"], scores["lexical-only"])
}

func TestFuse_KeepsMaxima(t *testing.T) {
	fused := fuse(
		branchResult{candidates: []Candidate{semanticHit("m", 0.4, types.MatchedDescription, at(0))}},
		branchResult{candidates: []Candidate{semanticHit("m", 0.8, types.MatchedContent, at(0))}},
		branchResult{candidates: []Candidate{lexicalHit("m", 0.7, types.MatchedContent, at(0))}},
		branchResult{candidates: []Candidate{lexicalHit("m", 0.2, types.MatchedContent, at(0))}},
	)
	require.Len(t, fused, 1)
	assert.InDelta(t, 0.8, *fused[0].Similarity, 1e-9)
	assert.InDelta(t, 0.7, *fused[0].Rank, 1e-9)
	assert.Equal(t, types.MatchedDescription, fused[0].MatchedField)
}

func TestFuse_FailedBranchIsEmpty(t *testing.T) {
	failed := branchResult{
		branch:     BranchSemantic,
		candidates: []Candidate{semanticHit("ghost", 0.99, types.MatchedContent, at(0))},
		err:        &RetrievalError{Branch: BranchSemantic, Err: errors.New("timeout")},
	}
	ok := branchResult{branch: BranchLexical, candidates: []Candidate{lexicalHit("real", 0.5, types.MatchedContent, at(0))}}

	fused := fuse(failed, ok)
	require.Len(t, fused, 1)
	assert.Equal(t, "real", fused[0].MessageID)

	assert.Empty(t, fuse())
	assert.Empty(t, fuse(failed))
}

func TestSelectPage_RecencyOrder(t *testing.T) {
	cands := []Candidate{
		{MessageID: "old-but-relevant", Score: 30, CreatedAt: at(1)},
		{MessageID: "new-barely-relevant", Score: 3, CreatedAt: at(9)},
		{MessageID: "middle", Score: 12, CreatedAt: at(5)},
	}

	page, next := selectPage(cands, 10)
	require.Len(t, page, 3)
	assert.Equal(t, "new-barely-relevant", page[0].MessageID)
	assert.Equal(t, "middle", page[1].MessageID)
	assert.Equal(t, "old-but-relevant", page[2].MessageID)
	assert.Empty(t, next, "short page has no continuation")

	for i := 1; i < len(page); i++ {
		assert.False(t, page[i].CreatedAt.After(page[i-1].CreatedAt))
	}
}

func TestSelectPage_TruncatesAndEmitsCursor(t *testing.T) {
	cands := []Candidate{
		{MessageID: "t1", CreatedAt: at(1)},
		{MessageID: "t3", CreatedAt: at(3)},
		{MessageID: "t2", CreatedAt: at(2)},
	}
	page, next := selectPage(cands, 2)
	require.Len(t, page, 2)
	assert.Equal(t, "t3", page[0].MessageID)
	assert.Equal(t, "t2", page[1].MessageID)
	assert.Equal(t, FormatCursor(at(2)), next)
}

func TestSelectPage_TieBreakByID(t *testing.T) {
	cands := []Candidate{
		{MessageID: "a", CreatedAt: at(1)},
		{MessageID: "c", CreatedAt: at(1)},
		{MessageID: "b", CreatedAt: at(1)},
	}
	page, _ := selectPage(cands, 3)
	assert.Equal(t, "c", page[0].MessageID)
	assert.Equal(t, "b", page[1].MessageID)
	assert.Equal(t, "a", page[2].MessageID)
}

func TestFuseAndSelect_Deterministic(t *testing.T) {
	build := func() []branchResult {
		sem := make([]Candidate, 0)
		lex := make([]Candidate, 0)
		for i := 0; i < 20; i++ {
			id := fmt.Sprintf("m%02d", i)
			sem = append(sem, semanticHit(id, 0.3+float64(i%7)/10, types.MatchedContent, at(i%5)))
			if i%3 == 0 {
				lex = append(lex, lexicalHit(id, 0.2+float64(i%4)/10, types.MatchedTranscription, at(i%5)))
			}
		}
		return []branchResult{{branch: BranchSemantic, candidates: sem}, {branch: BranchLexical, candidates: lex}}
	}

	first, firstNext := selectPage(fuse(build()...), 8)
	for i := 0; i < 10; i++ {
		again, againNext := selectPage(fuse(build()...), 8)
		assert.Equal(t, first, again)
		assert.Equal(t, firstNext, againNext)
	}
}
