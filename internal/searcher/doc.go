// Package searcher implements hybrid message search across the chats a user belongs to.
//
// A search runs in five stages:
//   - Scope: resolve the chat ids the user may read (one explicit chat or all memberships)
//   - Retrieval: run the semantic and lexical branches concurrently over the same scope
//   - Fusion: merge candidates by message id, summing branch scores
//   - Pagination: order newest first and cut one page
//   - Hydration: load, decrypt and format only the page's messages
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, embedder, box, searcher.Config{Logger: logger})
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    UserID: "user-42",
//	    Query:  "where are we getting pizza",
//	    Limit:  20,
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("%s [%s] %s\n", r.Message.CreatedAt, r.Chat.Name, r.Message.Content)
//	}
//
// # Search Modes
//
//   - hybrid (default): semantic and lexical branches, fused
//   - semantic: embedding similarity only
//   - text: FTS5 keyword matching only
//
// A branch that fails (embedding provider down, index error) is logged and
// contributes nothing. The search still succeeds with the other branch.
//
// # Scoring
//
// Semantic candidates score similarity*10 and lexical candidates score
// rank*20. A message found by both branches scores the sum, keeps the first
// branch's matched field and carries the maximum similarity and rank.
// Scores gate inclusion only; results are ordered by created_at descending
// with message id as the tie-break.
//
// # Pagination
//
// Each branch over-fetches limit*2 candidates. When a page is full its
// NextCursor is the created_at of the last result. Passing it back bounds the
// next search to messages strictly older than the cursor (one millisecond
// earlier), combined with any explicit DateTo by taking the earlier bound.
// A malformed cursor is ignored.
//
// Two messages sharing the cursor's exact millisecond can straddle a page
// boundary, in which case the later page skips the remainder.
//
// # Errors
//
//   - ErrInvalidRequest: missing user id or unknown mode
//   - ErrNotAuthorized: explicit chat the user is not a member of
//   - ErrSearchFailed: storage or decryption failure; the cause is logged only
//   - context errors are returned as is and no partial page is produced
package searcher
