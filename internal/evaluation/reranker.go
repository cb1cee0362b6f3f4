package evaluation

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/retrieval"
	"github.com/tutor-agent/backend/pkg/logger"
)

// RerankOutput carries the reordered candidates together with the raw
// cross-encoder scores. Reordered is false when scoring failed and the
// input order was kept.
type RerankOutput struct {
	Results   []retrieval.MergedResult `json:"results"`
	Scores    []float64                `json:"scores"`
	MaxScore  float64                  `json:"max_score"`
	AvgScore  float64                  `json:"avg_score"`
	Reordered bool                     `json:"reordered"`
}

// Reranker reorders a candidate list by cross-encoder relevance. Failures
// return the original order unchanged.
type Reranker struct {
	scorer Scorer
}

func NewReranker(scorer Scorer) *Reranker {
	return &Reranker{scorer: scorer}
}

func (r *Reranker) Rerank(ctx context.Context, query string, results []retrieval.MergedResult) *RerankOutput {
	passthrough := &RerankOutput{Results: results, Scores: []float64{}}

	if len(results) == 0 || r.scorer == nil || !r.scorer.Available() {
		return passthrough
	}

	texts := make([]string, len(results))
	for i, result := range results {
		texts[i] = result.Content
	}

	scores, err := r.scorer.Score(ctx, query, texts)
	if err != nil || len(scores) != len(results) {
		logger.Warn("Reranking failed, keeping original order", zap.Error(err))
		return passthrough
	}

	indices := make([]int, len(results))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return scores[indices[a]] > scores[indices[b]]
	})

	reordered := make([]retrieval.MergedResult, len(results))
	orderedScores := make([]float64, len(results))
	for pos, idx := range indices {
		result := results[idx]
		score := scores[idx]
		result.EvaluatorScore = &score
		reordered[pos] = result
		orderedScores[pos] = score
	}

	avg, max, _ := aggregate(scores)

	return &RerankOutput{
		Results:   reordered,
		Scores:    orderedScores,
		MaxScore:  max,
		AvgScore:  avg,
		Reordered: true,
	}
}
