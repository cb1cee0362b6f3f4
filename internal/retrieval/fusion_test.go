package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutor-agent/backend/internal/storage/models"
	"github.com/tutor-agent/backend/pkg/config"
)

func fusionConfig() config.FusionConfig {
	return config.FusionConfig{
		ChunkWeight:  0.4,
		KBWeight:     0.3,
		QAWeight:     0.3,
		ChunkLimit:   8,
		QALimit:      3,
		QAFloor:      0.85,
		RRFConstant:  60,
		DefaultStyle: "weighted",
	}
}

func kbResult(topicID, summary string, relevance float64) KBResult {
	return KBResult{
		Entry:          models.KnowledgeBaseEntry{TopicID: topicID, Summary: summary},
		RelevanceScore: relevance,
	}
}

func TestWeightedScoreContributions(t *testing.T) {
	f := NewFusion(fusionConfig())

	chunks := []Chunk{{ChunkID: "c1", Content: "chunk", FinalScore: 0.9}}
	kb := []KBResult{kbResult("t1", "summary", 0.8)}
	qa := []QAMatch{{QAID: "q1", Question: "q", Answer: "answer", Similarity: 0.9}}

	merged := f.Weighted(chunks, kb, qa)
	require.Len(t, merged, 3)

	scores := map[string]float64{}
	for _, r := range merged {
		scores[r.Source] = r.FinalScore
	}

	assert.InDelta(t, 0.9*0.4, scores[SourceChunk], 1e-9)
	assert.InDelta(t, 0.8*0.3, scores[SourceKB], 1e-9)
	assert.InDelta(t, 0.9*0.3, scores[SourceQA], 1e-9)
}

func TestWeightedOrderedByFinalScore(t *testing.T) {
	f := NewFusion(fusionConfig())

	merged := f.Weighted(
		[]Chunk{{ChunkID: "c1", FinalScore: 0.5}},
		[]KBResult{kbResult("t1", "s", 0.95)},
		[]QAMatch{{QAID: "q1", Similarity: 0.99}},
	)

	require.Len(t, merged, 3)
	for i := 1; i < len(merged); i++ {
		assert.GreaterOrEqual(t, merged[i-1].FinalScore, merged[i].FinalScore)
	}
	assert.Equal(t, SourceQA, merged[0].Source)
}

func TestWeightedChunkLimit(t *testing.T) {
	cfg := fusionConfig()
	cfg.ChunkLimit = 2
	f := NewFusion(cfg)

	chunks := []Chunk{
		{ChunkID: "c1", FinalScore: 0.9},
		{ChunkID: "c2", FinalScore: 0.8},
		{ChunkID: "c3", FinalScore: 0.7},
	}

	merged := f.Weighted(chunks, nil, nil)
	assert.Len(t, merged, 2)
}

func TestWeightedQAFloorAndLimit(t *testing.T) {
	f := NewFusion(fusionConfig())

	qa := []QAMatch{
		{QAID: "q1", Similarity: 0.95},
		{QAID: "q2", Similarity: 0.85}, // at the floor, excluded
		{QAID: "q3", Similarity: 0.92},
		{QAID: "q4", Similarity: 0.91},
		{QAID: "q5", Similarity: 0.90},
	}

	merged := f.Weighted(nil, nil, qa)

	require.Len(t, merged, 3)
	for _, r := range merged {
		assert.Equal(t, SourceQA, r.Source)
		assert.Greater(t, r.OriginalScore, 0.85)
	}
}

func TestWeightedDeterministic(t *testing.T) {
	f := NewFusion(fusionConfig())

	chunks := []Chunk{
		{ChunkID: "c1", FinalScore: 0.6},
		{ChunkID: "c2", FinalScore: 0.6},
	}

	first := f.Weighted(chunks, nil, nil)
	second := f.Weighted(chunks, nil, nil)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Metadata["chunk_id"], second[i].Metadata["chunk_id"])
	}
	// Stable sort preserves input order on ties.
	assert.Equal(t, "c1", first[0].Metadata["chunk_id"])
}

func TestReciprocalRank(t *testing.T) {
	f := NewFusion(fusionConfig())

	chunks := []Chunk{
		{ChunkID: "c1", FinalScore: 0.9},
		{ChunkID: "c2", FinalScore: 0.8},
	}
	kb := []KBResult{kbResult("t1", "s", 0.5)}

	merged := f.ReciprocalRank(chunks, kb, nil)
	require.Len(t, merged, 3)

	// Rank 0 in each list scores 1/61, rank 1 scores 1/62.
	assert.InDelta(t, 1.0/61, merged[0].FinalScore, 1e-9)
	assert.InDelta(t, 1.0/61, merged[1].FinalScore, 1e-9)
	assert.InDelta(t, 1.0/62, merged[2].FinalScore, 1e-9)
	assert.Equal(t, "c2", merged[2].Metadata["chunk_id"])
}

func TestMergeDispatchesOnStyle(t *testing.T) {
	chunks := []Chunk{{ChunkID: "c1", FinalScore: 0.9}}

	weighted := NewFusion(fusionConfig()).Merge(chunks, nil, nil)
	require.Len(t, weighted, 1)
	assert.InDelta(t, 0.9*0.4, weighted[0].FinalScore, 1e-9)

	cfg := fusionConfig()
	cfg.DefaultStyle = "rrf"
	rrf := NewFusion(cfg).Merge(chunks, nil, nil)
	require.Len(t, rrf, 1)
	assert.InDelta(t, 1.0/61, rrf[0].FinalScore, 1e-9)
}

func TestChunkMetadata(t *testing.T) {
	chunk := Chunk{
		ChunkID:   "c1",
		Title:     "Linked Lists",
		BaseScore: 0.8123,
		Metadata:  map[string]string{"page": "4", "chunk_id": "shadowed"},
	}

	meta := chunkMetadata(chunk)

	assert.Equal(t, "c1", meta["chunk_id"], "chunk id is never overwritten by metadata")
	assert.Equal(t, "Linked Lists", meta["title"])
	assert.Equal(t, "4", meta["page"])
	assert.Equal(t, "0.8123", meta["base_score"])
}
