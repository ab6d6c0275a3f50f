package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
)

// Searchable field names, in precedence order for matched-field detection
const (
	FieldContent       = "content"
	FieldTranscription = "transcription"
	FieldDescription   = "description"
)

// searchVector scores every stored embedding in scope against queryVector.
// Each message contributes its best-scoring field.
func searchVector(ctx context.Context, q querier, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	if filters == nil || len(filters.ChatIDs) == 0 {
		return []VectorResult{}, nil
	}
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ErrInvalidInput)
	}

	query := `
		SELECT e.message_id, e.field, e.vector, m.created_at
		FROM embeddings e
		INNER JOIN messages m ON m.id = e.message_id
		WHERE 1 = 1
	`
	query, args := applyMessageFilters(query, nil, filters)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, queryVector, filters)
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	return buildVectorResults(candidates, limit), nil
}

// computeSimilarityScores reduces rows to one candidate per message
func computeSimilarityScores(rows *sql.Rows, queryVector []float32, filters *SearchFilters) ([]candidate, error) {
	best := make(map[string]int)
	candidates := make([]candidate, 0, 256)

	for rows.Next() {
		var messageID, field string
		var vectorBlob []byte
		var createdAt int64
		if err := rows.Scan(&messageID, &field, &vectorBlob, &createdAt); err != nil {
			return nil, err
		}

		vector := deserializeVector(vectorBlob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		similarity := cosineSimilarity(queryVector, vector)
		if filters.MinSimilarity > 0 && similarity < filters.MinSimilarity {
			continue
		}

		if i, ok := best[messageID]; ok {
			if similarity > candidates[i].score {
				candidates[i].score = similarity
				candidates[i].field = field
			}
			continue
		}
		best[messageID] = len(candidates)
		candidates = append(candidates, candidate{
			messageID: messageID,
			field:     field,
			score:     similarity,
			createdAt: createdAt,
		})
	}

	return candidates, rows.Err()
}

// buildVectorResults creates VectorResult slice from candidates
func buildVectorResults(candidates []candidate, limit int) []VectorResult {
	// Handle negative or zero limit - return all candidates
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]VectorResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = VectorResult{
			MessageID:       candidates[i].messageID,
			Field:           candidates[i].field,
			SimilarityScore: candidates[i].score,
			CreatedAt:       fromMillis(candidates[i].createdAt),
		}
	}
	return results
}

// searchText runs an FTS5 match over the plaintext search documents in scope
func searchText(ctx context.Context, q querier, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	if filters == nil || len(filters.ChatIDs) == 0 {
		return []TextResult{}, nil
	}

	terms := queryTerms(query)
	match := sanitizeFTSQuery(terms)
	if match == "" {
		return []TextResult{}, nil
	}

	sqlQuery := `
		SELECT message_fts.message_id, bm25(message_fts) AS score, m.created_at,
		       message_fts.content, message_fts.transcription, message_fts.description
		FROM message_fts
		INNER JOIN messages m ON m.id = message_fts.message_id
		WHERE message_fts MATCH ?
	`
	sqlQuery, args := applyMessageFilters(sqlQuery, []interface{}{match}, filters)
	sqlQuery += " ORDER BY score"
	if limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("text search query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectTextResults(rows, terms)
}

// collectTextResults normalizes BM25 scores and detects the matched field
func collectTextResults(rows *sql.Rows, terms []string) ([]TextResult, error) {
	results := make([]TextResult, 0)

	for rows.Next() {
		var result TextResult
		var createdAt int64
		var content, transcription, description string
		if err := rows.Scan(&result.MessageID, &result.BM25Score, &createdAt, &content, &transcription, &description); err != nil {
			return nil, err
		}

		// BM25 scores are negative, lower is better, typically in [-50, 0]
		result.BM25Score = 1.0 / (1.0 + math.Abs(result.BM25Score)/50.0)
		result.CreatedAt = fromMillis(createdAt)
		result.Field = matchedField(terms, content, transcription, description)

		results = append(results, result)
	}

	return results, rows.Err()
}

// applyMessageFilters appends scope, sender, type and date predicates on alias m
func applyMessageFilters(query string, args []interface{}, filters *SearchFilters) (string, []interface{}) {
	in, chatArgs := placeholders(filters.ChatIDs)
	query += " AND m.chat_id IN (" + in + ")"
	args = append(args, chatArgs...)

	if filters.SenderID != "" {
		query += " AND m.sender_id = ?"
		args = append(args, filters.SenderID)
	}
	if len(filters.MessageTypes) > 0 {
		in, typeArgs := placeholders(filters.MessageTypes)
		query += " AND m.message_type IN (" + in + ")"
		args = append(args, typeArgs...)
	}
	if filters.DateFrom != nil {
		query += " AND m.created_at >= ?"
		args = append(args, toMillis(*filters.DateFrom))
	}
	if filters.DateTo != nil {
		query += " AND m.created_at <= ?"
		args = append(args, toMillis(*filters.DateTo))
	}
	return query, args
}

// matchedField returns the first field containing any query term
func matchedField(terms []string, content, transcription, description string) string {
	fields := []struct {
		name string
		text string
	}{
		{FieldContent, content},
		{FieldTranscription, transcription},
		{FieldDescription, description},
	}
	for _, f := range fields {
		lower := strings.ToLower(f.text)
		for _, term := range terms {
			if strings.Contains(lower, strings.ToLower(term)) {
				return f.name
			}
		}
	}
	return FieldContent
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidate represents a message with its best similarity score
type candidate struct {
	messageID string
	field     string
	score     float64
	createdAt int64
}

// sortCandidates orders by score descending, newest first on ties
func sortCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].createdAt > candidates[j].createdAt
	})
}

// queryTerms splits a raw query into terms carrying at least one letter or digit
func queryTerms(query string) []string {
	terms := make([]string, 0)
	for _, tok := range strings.Fields(query) {
		if strings.IndexFunc(tok, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}) >= 0 {
			terms = append(terms, tok)
		}
	}
	return terms
}

// sanitizeFTSQuery quotes every term so FTS5 treats it as a literal string.
// Operators like AND, NEAR or * lose their meaning; terms are implicitly ANDed.
func sanitizeFTSQuery(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

// SerializeVector encodes a vector in the embeddings column format
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector decodes a vector from the embeddings column format
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
