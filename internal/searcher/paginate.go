package searcher

import "sort"

// selectPage orders candidates newest first and keeps at most limit of them.
// Relevance only decides which messages are candidates; it does not affect
// order. Ties on created_at fall back to message id, descending.
//
// next is the cursor for the following page, or empty when the page is not
// full and nothing further can follow.
func selectPage(cands []Candidate, limit int) (page []Candidate, next string) {
	sort.SliceStable(cands, func(i, j int) bool {
		if !cands[i].CreatedAt.Equal(cands[j].CreatedAt) {
			return cands[i].CreatedAt.After(cands[j].CreatedAt)
		}
		return cands[i].MessageID > cands[j].MessageID
	})

	if len(cands) > limit {
		cands = cands[:limit]
	}
	if len(cands) == limit && limit > 0 {
		next = FormatCursor(cands[len(cands)-1].CreatedAt)
	}
	return cands, next
}
