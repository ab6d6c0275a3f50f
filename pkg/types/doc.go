// Package types provides shared type definitions for the chatsearch MCP server.
//
// These are the externally visible shapes returned by search and bulk-fetch
// operations. Storage rows live in internal/storage; the types here are what a
// client renders.
//
// # Search Results
//
// SearchResult pairs a fully hydrated, decrypted message with the summary of
// the chat it belongs to and the retrieval metadata that surfaced it:
//
//	result := types.SearchResult{
//	    Message:      msg,
//	    Chat:         types.ChatSummary{ID: "c1", Name: "Team"},
//	    Similarity:   &sim,
//	    MatchedField: types.MatchedContent,
//	}
//
// Every Message carries a non-empty sender. Messages without an attributable
// sender (system or assistant authorship) are never returned from search.
//
// # Modes and Fields
//
// SearchMode selects which retrieval branches run:
//
//	types.ModeText     // full-text only
//	types.ModeSemantic // vector similarity only
//	types.ModeHybrid   // both, fused by message id (default)
//
// MatchedField records which part of a message produced the hit: its content,
// the transcription of a voice note, or the generated description of an image.
package types
