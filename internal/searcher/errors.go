package searcher

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthorized is returned when the user is not a member of the requested chat
	ErrNotAuthorized = errors.New("not authorized to search this chat")

	// ErrSearchFailed is the generic failure surfaced to callers. The cause is
	// logged, never wrapped, so backend details do not leak.
	ErrSearchFailed = errors.New("search failed")

	// ErrInvalidRequest is returned for a missing user id or an unknown mode
	ErrInvalidRequest = errors.New("invalid search request")
)

// Branch names a retrieval strategy
type Branch string

const (
	BranchSemantic Branch = "semantic"
	BranchLexical  Branch = "lexical"
)

// RetrievalError records a failed retrieval branch. It is logged and the
// branch contributes no candidates; it never reaches the caller.
type RetrievalError struct {
	Branch Branch
	Err    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("%s retrieval failed: %v", e.Branch, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}
