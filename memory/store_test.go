package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focuslock/cooagent/provider"
)

// stubEmbedder maps known texts to fixed vectors.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func openTestStore(t *testing.T, embedder *stubEmbedder, recentTurns int) *Store {
	t.Helper()
	var emb provider.Embedder
	if embedder != nil {
		emb = embedder
	}
	s, err := Open(filepath.Join(t.TempDir(), "mem.db"), emb, recentTurns, 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecentTurnsOldestFirstAndCapped(t *testing.T) {
	s := openTestStore(t, nil, 3)
	ctx := context.Background()

	turns := []string{"first", "second", "third", "fourth", "fifth"}
	for i, content := range turns {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		require.NoError(t, s.RememberTurn(ctx, 42, role, content))
	}

	got := s.GetContext(ctx, 42, "")
	require.Len(t, got.Recent, 3)
	assert.Equal(t, []string{"user: third", "assistant: fourth", "user: fifth"}, got.Recent)
}

func TestTurnsAreScopedPerOperator(t *testing.T) {
	s := openTestStore(t, nil, 12)
	ctx := context.Background()

	require.NoError(t, s.RememberTurn(ctx, 1, "user", "mine"))
	require.NoError(t, s.RememberTurn(ctx, 2, "user", "theirs"))

	got := s.GetContext(ctx, 1, "")
	assert.Equal(t, []string{"user: mine"}, got.Recent)
}

func TestEmptyTurnIgnored(t *testing.T) {
	s := openTestStore(t, nil, 12)
	ctx := context.Background()

	require.NoError(t, s.RememberTurn(ctx, 42, "user", "   "))
	assert.Empty(t, s.GetContext(ctx, 42, "").Recent)
}

func TestShortFactDropped(t *testing.T) {
	s := openTestStore(t, nil, 12)
	ctx := context.Background()

	require.NoError(t, s.RememberFact(ctx, 42, "too short"))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM facts`).Scan(&n))
	assert.Zero(t, n, "fact below minimum length must not be stored")
}

func TestFullTextFactRetrieval(t *testing.T) {
	s := openTestStore(t, nil, 12)
	ctx := context.Background()

	require.NoError(t, s.RememberFact(ctx, 42, "The quarterly revenue target is two million dollars"))
	require.NoError(t, s.RememberFact(ctx, 42, "Weekly standup happens every Monday at nine sharp"))

	got := s.GetContext(ctx, 42, "quarterly revenue")
	require.Len(t, got.Semantic, 1)
	assert.Contains(t, got.Semantic[0], "revenue target")
}

func TestSemanticSkippedForBlankQuery(t *testing.T) {
	s := openTestStore(t, nil, 12)
	ctx := context.Background()

	require.NoError(t, s.RememberFact(ctx, 42, "The quarterly revenue target is two million dollars"))
	assert.Empty(t, s.GetContext(ctx, 42, "  ").Semantic)
}

func TestHybridRankingPrefersCloserVector(t *testing.T) {
	factA := "The product launch deadline is the end of October"
	factB := "Office plants need watering twice a week always"
	emb := &stubEmbedder{vectors: map[string][]float32{
		"deadline": {1, 0, 0},
		factA:      {0.9, 0.1, 0},
		factB:      {0, 1, 0},
	}}
	s, err := Open(filepath.Join(t.TempDir(), "mem.db"), emb, 12, 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	require.NoError(t, s.RememberFact(ctx, 42, factB))
	require.NoError(t, s.RememberFact(ctx, 42, factA))

	got := s.GetContext(ctx, 42, "deadline")
	require.Len(t, got.Semantic, 2)
	assert.Equal(t, factA, got.Semantic[0])
}

func TestEmbedFailureFallsBackToFullText(t *testing.T) {
	emb := &stubEmbedder{err: errors.New("embedding service down")}
	s, err := Open(filepath.Join(t.TempDir(), "mem.db"), emb, 12, 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	require.NoError(t, s.RememberFact(ctx, 42, "The board meeting moved to Thursday afternoon this week"))

	got := s.GetContext(ctx, 42, "board meeting")
	require.Len(t, got.Semantic, 1)
	assert.Contains(t, got.Semantic[0], "board meeting")
}

func TestFormatContext(t *testing.T) {
	c := Context{
		Recent:   []string{"user: hi", "assistant: hello"},
		Semantic: []string{"Prefers async updates"},
	}
	got := FormatContext(c)
	assert.Contains(t, got, "Recent dialogue:\n- user: hi\n- assistant: hello")
	assert.Contains(t, got, "Relevant long-term memory:\n- Prefers async updates")

	assert.Equal(t, "", FormatContext(Context{}))
}

func TestSanitizeFTSQuery(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello, world!", "hello world"},
		{`"quoted" (grouped) OR-ish`, "quoted grouped OR-ish"},
		{"???", `""`},
		{"", `""`},
		{"snake_case kebab-case", "snake_case kebab-case"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFTSQuery(tt.in), "input %q", tt.in)
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3}
	out := bytesToFloat32Slice(float32SliceToBytes(in))
	assert.Equal(t, in, out)

	assert.Nil(t, bytesToFloat32Slice([]byte{1, 2, 3}), "truncated blob")
}
