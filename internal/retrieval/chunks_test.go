package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutor-agent/backend/internal/lexicon"
	"github.com/tutor-agent/backend/internal/vector/milvus"
	"github.com/tutor-agent/backend/pkg/config"
)

type fakeSearcher struct {
	hits []milvus.SearchResult
	err  error
}

func (f *fakeSearcher) Search(ctx context.Context, queryEmbedding []float32, sessionID string, topK int) ([]milvus.SearchResult, error) {
	return f.hits, f.err
}

type fakeEmbedder struct {
	embedding []float32
	batchErr  error
	embedErr  error
	calls     int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text, model string) ([]float32, error) {
	f.calls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return f.embedding, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, model string) ([][]float32, error) {
	f.calls++
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.embedding
	}
	return out, nil
}

func chunkConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		TopK:            5,
		MinScore:        0.3,
		ChunkTimeoutSec: 60,
	}
}

func TestChunkRetrieveNilDependencies(t *testing.T) {
	r := NewChunkRetriever(nil, &fakeEmbedder{}, nil, chunkConfig())
	assert.Nil(t, r.Retrieve(context.Background(), Query{Text: "x"}))

	r = NewChunkRetriever(&fakeSearcher{}, nil, nil, chunkConfig())
	assert.Nil(t, r.Retrieve(context.Background(), Query{Text: "x"}))
}

func TestChunkRetrieveFailuresYieldEmpty(t *testing.T) {
	tests := []struct {
		name     string
		searcher *fakeSearcher
		embedder *fakeEmbedder
	}{
		{"embedding fails", &fakeSearcher{}, &fakeEmbedder{embedErr: errors.New("timeout")}},
		{"search fails", &fakeSearcher{err: errors.New("unreachable")}, &fakeEmbedder{embedding: []float32{0.1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewChunkRetriever(tt.searcher, tt.embedder, nil, chunkConfig())
			assert.Empty(t, r.Retrieve(context.Background(), Query{Text: "query", SessionID: "s"}))
		})
	}
}

func TestChunkRetrieveDistanceConversion(t *testing.T) {
	searcher := &fakeSearcher{hits: []milvus.SearchResult{
		// Score above 1 is an L2 distance: 1 - d.
		{ChunkID: "near", Content: "content", Score: 1.4},
		// Score within [0,1] is already a similarity.
		{ChunkID: "sim", Content: "content", Score: 0.8},
		// Distance far enough that 1 - d clamps to 0, below min score.
		{ChunkID: "far", Content: "content", Score: 3.0},
	}}

	r := NewChunkRetriever(searcher, &fakeEmbedder{embedding: []float32{0.1}}, nil, chunkConfig())
	chunks := r.Retrieve(context.Background(), Query{Text: "unrelated words", SessionID: "s"})

	require.Len(t, chunks, 1)
	assert.Equal(t, "sim", chunks[0].ChunkID)
	assert.InDelta(t, 0.8, chunks[0].BaseScore, 1e-9)
}

func TestChunkRetrieveMinScoreFilter(t *testing.T) {
	searcher := &fakeSearcher{hits: []milvus.SearchResult{
		{ChunkID: "keep", Content: "a", Score: 0.5},
		{ChunkID: "drop", Content: "b", Score: 0.2},
	}}

	r := NewChunkRetriever(searcher, &fakeEmbedder{embedding: []float32{0.1}}, nil, chunkConfig())
	chunks := r.Retrieve(context.Background(), Query{Text: "zzz", SessionID: "s"})

	require.Len(t, chunks, 1)
	assert.Equal(t, "keep", chunks[0].ChunkID)
}

func TestRescoreBoostsAndCaps(t *testing.T) {
	r := NewChunkRetriever(nil, nil, nil, chunkConfig())

	tests := []struct {
		name             string
		chunk            Chunk
		keywords         []string
		wantTitleBoost   float64
		wantContentBoost float64
	}{
		{
			name:             "single title and content match",
			chunk:            Chunk{Title: "sorting algorithms", Content: "quicksort is a sorting method", BaseScore: 0.5},
			keywords:         []string{"sorting"},
			wantTitleBoost:   0.1,
			wantContentBoost: 0.05,
		},
		{
			name:             "title boost capped at 0.3",
			chunk:            Chunk{Title: "alpha beta gamma delta", Content: "", BaseScore: 0.5},
			keywords:         []string{"alpha", "beta", "gamma", "delta"},
			wantTitleBoost:   0.3,
			wantContentBoost: 0,
		},
		{
			name:             "content boost capped at 0.2",
			chunk:            Chunk{Title: "", Content: "a b c d e f", BaseScore: 0.5},
			keywords:         []string{"a", "b", "c", "d", "e"},
			wantTitleBoost:   0,
			wantContentBoost: 0.2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunk := tt.chunk
			r.rescore(&chunk, tt.keywords)

			assert.InDelta(t, tt.wantTitleBoost, chunk.TitleBoost, 1e-9)
			assert.InDelta(t, tt.wantContentBoost, chunk.ContentBoost, 1e-9)
			assert.Zero(t, chunk.NegativePenalty)
			assert.InDelta(t, clamp01(chunk.BaseScore+chunk.TitleBoost+chunk.ContentBoost), chunk.FinalScore, 1e-9)
		})
	}
}

func TestRescoreAntonymPenalty(t *testing.T) {
	lex := lexicon.New(map[string]string{"maximum": "minimum"})
	r := NewChunkRetriever(nil, nil, lex, chunkConfig())

	chunk := Chunk{
		Title:     "finding the minimum",
		Content:   "the minimum value of the function",
		BaseScore: 0.6,
	}
	r.rescore(&chunk, []string{"maximum"})

	assert.InDelta(t, -0.2, chunk.NegativePenalty, 1e-9)
	assert.Less(t, chunk.FinalScore, chunk.BaseScore)
}

func TestRescoreFinalScoreClamped(t *testing.T) {
	r := NewChunkRetriever(nil, nil, nil, chunkConfig())

	chunk := Chunk{Title: "alpha beta gamma", Content: "alpha beta gamma", BaseScore: 0.95}
	r.rescore(&chunk, []string{"alpha", "beta", "gamma"})

	assert.LessOrEqual(t, chunk.FinalScore, 1.0)
}

func TestChunkRetrieveSortedByFinalScore(t *testing.T) {
	searcher := &fakeSearcher{hits: []milvus.SearchResult{
		{ChunkID: "c1", Content: "nothing relevant", Score: 0.6},
		{ChunkID: "c2", Title: "gradient descent", Content: "gradient descent steps", Score: 0.55},
	}}

	r := NewChunkRetriever(searcher, &fakeEmbedder{embedding: []float32{0.1}}, nil, chunkConfig())
	chunks := r.Retrieve(context.Background(), Query{Text: "gradient descent", SessionID: "s"})

	require.Len(t, chunks, 2)
	// Keyword boosts rank the matching chunk above the higher base score.
	assert.Equal(t, "c2", chunks[0].ChunkID)
	assert.GreaterOrEqual(t, chunks[0].FinalScore, chunks[1].FinalScore)
}

func TestSanitizeContentStripsMarkup(t *testing.T) {
	html := `<html><body><script>alert(1)</script><nav>menu</nav><p>Binary   search halves the range.</p></body></html>`

	got := sanitizeContent(html)

	assert.NotContains(t, got, "alert")
	assert.NotContains(t, got, "menu")
	assert.Contains(t, got, "Binary search halves the range.")
}
