// Package embedder generates vector embeddings for message text.
//
// Two kinds of provider implement Embedder:
//   - APIProvider talks to an OpenAI-compatible /v1/embeddings endpoint
//     (Jina AI and OpenAI presets, or any compatible base URL)
//   - LocalProvider hashes words into a fixed-size vector, offline
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:  "jina",
//	    APIKey:    key,
//	    CacheSize: 10000,
//	})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "where did we say we'd meet?",
//	})
//
// # Provider Selection
//
// Config.Provider picks the provider explicitly. When it is empty, an
// APIKey selects Jina AI and no key selects the local provider.
//
// # Batching and Caching
//
// GenerateBatch accepts up to MaxBatchSize texts and returns embeddings in
// input order. With a cache configured, texts already embedded by the same
// model are served from an LRU keyed by content hash and only the rest are
// sent to the API.
//
// # Error Handling
//
// Transient API failures (network errors, 5xx, 429) are retried with
// exponential backoff. Other 4xx responses fail immediately. Either way the
// returned error wraps ErrProviderFailed:
//
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // degrade to lexical-only search
//	}
package embedder
