package retrieval

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/lexicon"
	"github.com/tutor-agent/backend/internal/vector/milvus"
	"github.com/tutor-agent/backend/pkg/config"
	"github.com/tutor-agent/backend/pkg/logger"
)

type VectorSearcher interface {
	Search(ctx context.Context, queryEmbedding []float32, sessionID string, topK int) ([]milvus.SearchResult, error)
}

type Embedder interface {
	Embed(ctx context.Context, text, model string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// ChunkRetriever runs the vector search branch and re-scores hits with
// query-keyword boosts and antonym penalties. A failed dependency yields an
// empty list, never an error.
type ChunkRetriever struct {
	searcher VectorSearcher
	embedder Embedder
	lexicon  *lexicon.Lexicon
	cfg      config.RetrievalConfig
}

func NewChunkRetriever(searcher VectorSearcher, embedder Embedder, lex *lexicon.Lexicon, cfg config.RetrievalConfig) *ChunkRetriever {
	return &ChunkRetriever{
		searcher: searcher,
		embedder: embedder,
		lexicon:  lex,
		cfg:      cfg,
	}
}

func (r *ChunkRetriever) Retrieve(ctx context.Context, q Query) []Chunk {
	if r.searcher == nil || r.embedder == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.ChunkTimeout())
	defer cancel()

	embedding, err := r.embedder.Embed(ctx, q.Text, q.EmbeddingModel)
	if err != nil {
		logger.Warn("Chunk retrieval: query embedding failed", zap.Error(err))
		return nil
	}

	topK := q.TopK
	if topK <= 0 {
		topK = r.cfg.TopK
	}

	hits, err := r.searcher.Search(ctx, embedding, q.SessionID, topK)
	if err != nil {
		logger.Warn("Chunk retrieval: vector search failed", zap.Error(err))
		return nil
	}

	keywords := contentKeywords(q.Text)

	chunks := make([]Chunk, 0, len(hits))
	for _, hit := range hits {
		base := float64(hit.Score)
		// Scores above 1 are L2 distances, not similarities.
		if base > 1 {
			base = 1 - base
			if base < 0 {
				base = 0
			}
		}
		if base < r.cfg.MinScore {
			continue
		}

		chunk := Chunk{
			ChunkID:   hit.ChunkID,
			Content:   sanitizeContent(hit.Content),
			Title:     hit.Title,
			Metadata:  hit.Metadata,
			BaseScore: base,
		}
		r.rescore(&chunk, keywords)
		chunks = append(chunks, chunk)
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].FinalScore > chunks[j].FinalScore
	})

	logger.Debug("Chunk retrieval completed",
		zap.Int("hits", len(hits)),
		zap.Int("kept", len(chunks)),
	)

	return chunks
}

func (r *ChunkRetriever) rescore(chunk *Chunk, keywords []string) {
	title := strings.ToLower(chunk.Title)
	content := strings.ToLower(chunk.Content)

	titleMatches := 0
	contentMatches := 0
	penalized := false

	for _, kw := range keywords {
		if strings.Contains(title, kw) {
			titleMatches++
		}
		if strings.Contains(content, kw) {
			contentMatches++
		}

		if !penalized && r.lexicon != nil {
			if opposite, ok := r.lexicon.Antonym(kw); ok {
				if strings.Contains(content, opposite) || strings.Contains(title, opposite) {
					penalized = true
				}
			}
		}
	}

	chunk.TitleBoost = float64(titleMatches) * 0.1
	if chunk.TitleBoost > 0.3 {
		chunk.TitleBoost = 0.3
	}

	chunk.ContentBoost = float64(contentMatches) * 0.05
	if chunk.ContentBoost > 0.2 {
		chunk.ContentBoost = 0.2
	}

	if penalized {
		chunk.NegativePenalty = -0.2
	}

	chunk.FinalScore = clamp01(chunk.BaseScore + chunk.TitleBoost + chunk.ContentBoost + chunk.NegativePenalty)
}
