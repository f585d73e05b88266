package memory

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// searchFacts returns up to semanticK fact strings for the operator,
// ranked by hybrid score when a query embedding is available and by
// BM25 alone otherwise.
func (s *Store) searchFacts(ctx context.Context, userID int64, query string) ([]string, error) {
	var queryEmb []float32
	if s.embedder != nil {
		if emb, err := s.embedder.Embed(ctx, clipRunes(query, 4000)); err == nil {
			queryEmb = emb
		}
	}
	if len(queryEmb) == 0 {
		return s.searchFTS(ctx, userID, query, s.semanticK)
	}
	return s.searchHybrid(ctx, userID, query, queryEmb, s.semanticK)
}

// searchFTS uses FTS5 BM25 ranking alone.
func (s *Store) searchFTS(ctx context.Context, userID int64, query string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT content FROM facts_fts
WHERE facts_fts MATCH ? AND user_id = ?
ORDER BY bm25(facts_fts) ASC
LIMIT ?`,
		sanitizeFTSQuery(query), userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var content string
		if rows.Scan(&content) == nil {
			out = append(out, content)
		}
	}
	return out, rows.Err()
}

type scoredFact struct {
	id      string
	content string
	score   float64
}

// searchHybrid combines 70% cosine similarity + 30% normalized BM25.
func (s *Store) searchHybrid(ctx context.Context, userID int64, query string, queryEmb []float32, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, embedding FROM facts WHERE user_id = ? AND embedding IS NOT NULL`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("hybrid search fetch: %w", err)
	}

	var candidates []scoredFact
	for rows.Next() {
		var id, content string
		var embBlob []byte
		if rows.Scan(&id, &content, &embBlob) != nil {
			continue
		}
		emb := bytesToFloat32Slice(embBlob)
		if len(emb) == 0 {
			continue
		}
		candidates = append(candidates, scoredFact{
			id:      id,
			content: content,
			score:   float64(cosineSimilarity(queryEmb, emb)),
		})
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hybrid search scan: %w", err)
	}

	bm25 := s.bm25Scores(ctx, userID, query, limit*3)
	for i := range candidates {
		candidates[i].score = 0.7*candidates[i].score + 0.3*bm25[candidates[i].id]
	}

	sortScoredFacts(candidates)

	out := make([]string, 0, limit)
	for i, c := range candidates {
		if i >= limit {
			break
		}
		out = append(out, c.content)
	}
	return out, nil
}

// bm25Scores returns BM25 ranks normalized to [0, 1] per fact id.
// Any FTS failure yields an empty map; hybrid scoring then degrades to
// cosine-only.
func (s *Store) bm25Scores(ctx context.Context, userID int64, query string, limit int) map[string]float64 {
	scores := make(map[string]float64)

	rows, err := s.db.QueryContext(ctx, `
SELECT id, bm25(facts_fts) AS score
FROM facts_fts
WHERE facts_fts MATCH ? AND user_id = ?
ORDER BY score ASC
LIMIT ?`,
		sanitizeFTSQuery(query), userID, limit,
	)
	if err != nil {
		return scores
	}
	defer func() { _ = rows.Close() }()

	type idScore struct {
		id    string
		score float64
	}
	var idScores []idScore
	for rows.Next() {
		var is idScore
		if rows.Scan(&is.id, &is.score) == nil {
			idScores = append(idScores, is)
		}
	}
	if len(idScores) == 0 {
		return scores
	}

	// Lower BM25 = better match, so normalize and invert.
	minS, maxS := idScores[0].score, idScores[0].score
	for _, is := range idScores {
		if is.score < minS {
			minS = is.score
		}
		if is.score > maxS {
			maxS = is.score
		}
	}
	rng := maxS - minS
	for _, is := range idScores {
		normalized := 0.5
		if rng != 0 {
			normalized = 1.0 - (is.score-minS)/rng
		}
		scores[is.id] = normalized
	}
	return scores
}

// float32SliceToBytes converts a []float32 to a little-endian byte slice.
func float32SliceToBytes(f []float32) []byte {
	b := make([]byte, len(f)*4)
	for i, v := range f {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// bytesToFloat32Slice converts a little-endian byte slice back to []float32.
func bytesToFloat32Slice(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	f := make([]float32, len(b)/4)
	for i := range f {
		f[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return f
}

// cosineSimilarity computes cosine similarity between two vectors.
// Returns 0 if either vector has zero magnitude.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// sanitizeFTSQuery converts a natural-language query to a safe FTS5
// query: each word becomes an independent token (implicit AND), special
// FTS5 characters are stripped.
func sanitizeFTSQuery(q string) string {
	words := strings.Fields(strings.TrimSpace(q))
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		cleaned := strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
				(r >= '0' && r <= '9') || r == '-' || r == '_' {
				return r
			}
			return -1
		}, w)
		if cleaned != "" {
			tokens = append(tokens, cleaned)
		}
	}
	if len(tokens) == 0 {
		return `""`
	}
	return strings.Join(tokens, " ")
}

// sortScoredFacts sorts in place by score descending (insertion sort;
// candidate sets are small).
func sortScoredFacts(facts []scoredFact) {
	for i := 1; i < len(facts); i++ {
		key := facts[i]
		j := i - 1
		for j >= 0 && facts[j].score < key.score {
			facts[j+1] = facts[j]
			j--
		}
		facts[j+1] = key
	}
}

// clipRunes truncates s to at most n runes.
func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
