package searcher

import (
	"time"

	"github.com/dshills/chatsearch-mcp/pkg/types"
)

// Candidate is a per-request scoring record for one message, built by the
// retrieval branches and merged by fuse.
type Candidate struct {
	MessageID    string
	Score        float64
	MatchedField types.MatchedField
	Similarity   *float64 // Semantic similarity, when the semantic branch matched
	Rank         *float64 // Normalized lexical rank, when the lexical branch matched
	CreatedAt    time.Time
}

// fuse merges branch candidates by message id. Scores of an id found by
// several branches add up; similarity and rank keep their maxima and the
// first matched field wins. Branches that failed contribute nothing.
func fuse(results ...branchResult) []Candidate {
	index := make(map[string]int)
	fused := make([]Candidate, 0)

	for _, r := range results {
		if r.err != nil {
			continue
		}
		for _, c := range r.candidates {
			i, seen := index[c.MessageID]
			if !seen {
				index[c.MessageID] = len(fused)
				fused = append(fused, c)
				continue
			}

			existing := &fused[i]
			existing.Score += c.Score
			existing.Similarity = maxPtr(existing.Similarity, c.Similarity)
			existing.Rank = maxPtr(existing.Rank, c.Rank)
		}
	}

	return fused
}

func maxPtr(a, b *float64) *float64 {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *b > *a:
		return b
	default:
		return a
	}
}
